package repository

import (
	"context"
	"errors"
	"fmt"

	"OddsSync/internal/interfaces"
	"OddsSync/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type snapshotRepository struct {
	db *gorm.DB
}

// NewSnapshotRepository 创建SnapshotRepository实例
func NewSnapshotRepository(db *gorm.DB) interfaces.SnapshotRepository {
	return &snapshotRepository{db: db}
}

// Put 按feed_key整行替换；upsert在单条语句内完成，读者不会看到半写状态
func (r *snapshotRepository) Put(ctx context.Context, snap *model.Snapshot) error {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "feed_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"records", "fetched_at", "updated_at"}),
	}).Create(snap).Error
	if err != nil {
		return fmt.Errorf("保存Snapshot失败: %w, feed_key: %s", err, snap.FeedKey)
	}
	return nil
}

// Get 读取Feed最近一次成功数据集
func (r *snapshotRepository) Get(ctx context.Context, feedKey string) (*model.Snapshot, error) {
	var snap model.Snapshot
	err := r.db.WithContext(ctx).Where("feed_key = ?", feedKey).First(&snap).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, interfaces.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("查询Snapshot失败: %w, feed_key: %s", err, feedKey)
	}
	return &snap, nil
}
