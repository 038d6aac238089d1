package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"OddsSync/internal/interfaces"
	"OddsSync/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type feedRepository struct {
	db *gorm.DB
}

// NewFeedRepository 创建FeedRepository实例
func NewFeedRepository(db *gorm.DB) interfaces.FeedRepository {
	return &feedRepository{db: db}
}

// CreateIfAbsent 启动时按配置建档；feed_key冲突说明已存在，保留原状态
func (r *feedRepository) CreateIfAbsent(ctx context.Context, feed *model.Feed) error {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "feed_key"}},
		DoNothing: true,
	}).Create(feed).Error
	if err != nil {
		return fmt.Errorf("创建Feed失败: %w, feed_key: %s", err, feed.FeedKey)
	}
	return nil
}

// GetByKey 按feed_key查询
func (r *feedRepository) GetByKey(ctx context.Context, feedKey string) (*model.Feed, error) {
	var feed model.Feed
	err := r.db.WithContext(ctx).Where("feed_key = ?", feedKey).First(&feed).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, interfaces.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("查询Feed失败: %w, feed_key: %s", err, feedKey)
	}
	return &feed, nil
}

// ListAll 返回全部Feed（按feed_key排序，状态接口用）
func (r *feedRepository) ListAll(ctx context.Context) ([]*model.Feed, error) {
	var feeds []*model.Feed
	if err := r.db.WithContext(ctx).Order("feed_key ASC").Find(&feeds).Error; err != nil {
		return nil, fmt.Errorf("查询Feed列表失败: %w", err)
	}
	return feeds, nil
}

// ListDue 到期且仍为pending的Feed；逾期的pending依然返回，不会被丢弃
func (r *feedRepository) ListDue(ctx context.Context, now time.Time) ([]*model.Feed, error) {
	var feeds []*model.Feed
	err := r.db.WithContext(ctx).
		Where("state = ? AND next_update_at <= ?", model.FeedStatePending, now).
		Order("next_update_at ASC").
		Find(&feeds).Error
	if err != nil {
		return nil, fmt.Errorf("查询到期Feed失败: %w", err)
	}
	return feeds, nil
}

// Save 整行保存调度状态
func (r *feedRepository) Save(ctx context.Context, feed *model.Feed) error {
	if err := r.db.WithContext(ctx).Save(feed).Error; err != nil {
		return fmt.Errorf("保存Feed状态失败: %w, feed_key: %s", err, feed.FeedKey)
	}
	return nil
}
