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

type metaRepository struct {
	db *gorm.DB
}

// NewMetaRepository 创建MetaRepository实例
func NewMetaRepository(db *gorm.DB) interfaces.MetaRepository {
	return &metaRepository{db: db}
}

func (r *metaRepository) Get(ctx context.Context, key string) (string, error) {
	var m model.Meta
	err := r.db.WithContext(ctx).Where("key = ?", key).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", interfaces.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("查询元数据失败: %w, key: %s", err, key)
	}
	return m.Value, nil
}

func (r *metaRepository) Set(ctx context.Context, key, value string) error {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&model.Meta{Key: key, Value: value, UpdatedAt: time.Now()}).Error
	if err != nil {
		return fmt.Errorf("写入元数据失败: %w, key: %s", err, key)
	}
	return nil
}

func (r *metaRepository) Delete(ctx context.Context, key string) error {
	if err := r.db.WithContext(ctx).Where("key = ?", key).Delete(&model.Meta{}).Error; err != nil {
		return fmt.Errorf("删除元数据失败: %w, key: %s", err, key)
	}
	return nil
}
