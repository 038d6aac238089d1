package interfaces

import (
	"context"
	"errors"
	"time"

	"OddsSync/internal/model"
)

// ErrNotFound 记录不存在
var ErrNotFound = errors.New("记录不存在")

// QuotaRepository 配额窗口的持久化接口，是跨进程重启的计数权威
type QuotaRepository interface {
	// GetWindow 读取指定类型的配额窗口，不存在返回ErrNotFound
	GetWindow(ctx context.Context, kind model.QuotaWindowKind) (*model.QuotaWindow, error)
	// SaveWindow 整行upsert配额窗口
	SaveWindow(ctx context.Context, w *model.QuotaWindow) error
}

// FeedRepository Feed调度状态的持久化接口
type FeedRepository interface {
	// CreateIfAbsent 按feed_key创建，已存在则不动
	CreateIfAbsent(ctx context.Context, feed *model.Feed) error
	// GetByKey 按feed_key查询
	GetByKey(ctx context.Context, feedKey string) (*model.Feed, error)
	// ListAll 返回全部Feed
	ListAll(ctx context.Context) ([]*model.Feed, error)
	// ListDue state=pending且next_update_at<=now的Feed，按next_update_at升序
	ListDue(ctx context.Context, now time.Time) ([]*model.Feed, error)
	// Save 整行保存调度状态
	Save(ctx context.Context, feed *model.Feed) error
}

// SnapshotRepository 最近成功数据集的持久化接口；Put为原子整行替换
type SnapshotRepository interface {
	Put(ctx context.Context, snap *model.Snapshot) error
	// Get 不存在返回ErrNotFound
	Get(ctx context.Context, feedKey string) (*model.Snapshot, error)
}

// MetaRepository 调度器键值元数据（如last_reset_date）
type MetaRepository interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}
