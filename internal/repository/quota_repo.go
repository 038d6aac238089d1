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

type quotaRepository struct {
	db *gorm.DB
}

// NewQuotaRepository 创建QuotaRepository实例
func NewQuotaRepository(db *gorm.DB) interfaces.QuotaRepository {
	return &quotaRepository{db: db}
}

// GetWindow 读取配额窗口
func (r *quotaRepository) GetWindow(ctx context.Context, kind model.QuotaWindowKind) (*model.QuotaWindow, error) {
	var w model.QuotaWindow
	err := r.db.WithContext(ctx).Where("kind = ?", kind).First(&w).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, interfaces.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("查询%s配额窗口失败: %w", kind, err)
	}
	return &w, nil
}

// SaveWindow 按kind整行upsert；计数只有先落库成功才算数
func (r *quotaRepository) SaveWindow(ctx context.Context, w *model.QuotaWindow) error {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "kind"}},
		DoUpdates: clause.AssignmentColumns([]string{"period_start", "used", "quota_limit", "updated_at"}),
	}).Create(w).Error
	if err != nil {
		return fmt.Errorf("保存%s配额窗口失败: %w", w.Kind, err)
	}
	return nil
}
