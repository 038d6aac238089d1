package model

import (
	"time"

	"gorm.io/datatypes"
)

// FeedState Feed每日生命周期状态
type FeedState string

const (
	FeedStatePending   FeedState = "pending"   // 等待调度
	FeedStateUpdating  FeedState = "updating"  // 正在拉取
	FeedStateCompleted FeedState = "completed" // 当日已完成
	FeedStateFailed    FeedState = "failed"    // 当日重试耗尽
)

// QuotaWindowKind 配额窗口类型
type QuotaWindowKind string

const (
	QuotaWindowDaily   QuotaWindowKind = "daily"   // 每日窗口（本地零点重置）
	QuotaWindowMonthly QuotaWindowKind = "monthly" // 每月窗口（自然月重置）
)

// Feed 每个联赛/体育项目一条记录，启动时从配置创建，只重置不删除
type Feed struct {
	ID           uint64     `gorm:"column:id;primaryKey;autoIncrement;comment:自增主键ID"`
	FeedKey      string     `gorm:"column:feed_key;type:varchar(64);uniqueIndex;not null;comment:联赛唯一标识（如 soccer_epl）"`
	Title        string     `gorm:"column:title;type:varchar(128);not null;comment:联赛展示名称"`
	ScheduledAt  string     `gorm:"column:scheduled_at;type:varchar(8);not null;comment:每日计划更新时刻（HH:MM）"`
	State        FeedState  `gorm:"column:state;type:varchar(16);default:pending;comment:状态：pending/updating/completed/failed"`
	Attempts     int        `gorm:"column:attempts;type:int;default:0;comment:当日已尝试次数"`
	LastError    string     `gorm:"column:last_error;type:varchar(512);comment:最近一次错误信息"`
	LastUpdateAt *time.Time `gorm:"column:last_update_at;type:timestamp;comment:最近成功更新时间"`
	NextUpdateAt time.Time  `gorm:"column:next_update_at;type:timestamp;not null;comment:下次计划更新时间"`
	CreatedAt    time.Time  `gorm:"column:created_at;type:timestamp;default:now();comment:创建时间"`
	UpdatedAt    time.Time  `gorm:"column:updated_at;type:timestamp;default:now();comment:更新时间"`
}

// QuotaWindow 配额计数窗口，daily/monthly各一条，是"还能不能调接口"的唯一权威
type QuotaWindow struct {
	ID          uint64          `gorm:"column:id;primaryKey;autoIncrement;comment:自增主键ID"`
	Kind        QuotaWindowKind `gorm:"column:kind;type:varchar(8);uniqueIndex;not null;comment:窗口类型：daily/monthly"`
	PeriodStart time.Time       `gorm:"column:period_start;type:timestamp;not null;comment:当前计数周期起点"`
	Used        int             `gorm:"column:used;type:int;default:0;comment:本周期已消耗请求数"`
	Limit       int             `gorm:"column:quota_limit;type:int;not null;comment:本周期请求上限"`
	UpdatedAt   time.Time       `gorm:"column:updated_at;type:timestamp;default:now();comment:更新时间"`
}

// Snapshot 一个Feed最近一次成功拉取的完整赔率数据集；整行替换，读者永远看到完整值
type Snapshot struct {
	ID        uint64         `gorm:"column:id;primaryKey;autoIncrement;comment:自增主键ID"`
	FeedKey   string         `gorm:"column:feed_key;type:varchar(64);uniqueIndex;not null;comment:所属Feed"`
	Records   datatypes.JSON `gorm:"column:records;type:jsonb;not null;comment:赔率记录列表"`
	FetchedAt time.Time      `gorm:"column:fetched_at;type:timestamp;not null;comment:拉取时间"`
	UpdatedAt time.Time      `gorm:"column:updated_at;type:timestamp;default:now();comment:更新时间"`
}

// Meta 调度器自身的键值元数据（如 last_reset_date）
type Meta struct {
	Key       string    `gorm:"column:key;type:varchar(64);primaryKey;comment:元数据键"`
	Value     string    `gorm:"column:value;type:varchar(256);not null;comment:元数据值"`
	UpdatedAt time.Time `gorm:"column:updated_at;type:timestamp;default:now();comment:更新时间"`
}

func (Feed) TableName() string        { return "feeds" }
func (QuotaWindow) TableName() string { return "quota_windows" }
func (Snapshot) TableName() string    { return "snapshots" }
func (Meta) TableName() string        { return "meta" }
