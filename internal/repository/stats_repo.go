package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/qs3c/journal_server/internal/model"
)

type StatsRepository struct {
	db *gorm.DB
}

func NewStatsRepository(db *gorm.DB) *StatsRepository {
	return &StatsRepository{db: db}
}

func (r *StatsRepository) WithTx(tx *gorm.DB) *StatsRepository {
	return &StatsRepository{db: tx}
}

// Get 获取用户统计，不存在时创建空记录
func (r *StatsRepository) Get(ctx context.Context, userID int64) (*model.UserStats, error) {
	stats := model.UserStats{UserID: userID}
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).FirstOrCreate(&stats).Error
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrConcurrentInsert
		}
		return nil, err
	}
	return &stats, nil
}

func (r *StatsRepository) Save(ctx context.Context, stats *model.UserStats) error {
	return r.db.WithContext(ctx).Save(stats).Error
}
