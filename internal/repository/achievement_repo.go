package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/qs3c/journal_server/internal/model"
)

type AchievementRepository struct {
	db *gorm.DB
}

func NewAchievementRepository(db *gorm.DB) *AchievementRepository {
	return &AchievementRepository{db: db}
}

func (r *AchievementRepository) WithTx(tx *gorm.DB) *AchievementRepository {
	return &AchievementRepository{db: tx}
}

func (r *AchievementRepository) ListByUser(ctx context.Context, userID int64) ([]model.Achievement, error) {
	var list []model.Achievement
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("id ASC").
		Find(&list).Error
	return list, err
}

// Create 插入成就进度；(user_id, achievement_id) 已存在时返回 ErrConcurrentInsert
func (r *AchievementRepository) Create(ctx context.Context, a *model.Achievement) error {
	err := r.db.WithContext(ctx).Create(a).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrConcurrentInsert
	}
	return err
}

// UpdateProgress 只更新未解锁成就的进度
func (r *AchievementRepository) UpdateProgress(ctx context.Context, id int64, current, target int64) error {
	return r.db.WithContext(ctx).Model(&model.Achievement{}).
		Where("id = ? AND unlocked_at IS NULL", id).
		Updates(map[string]interface{}{
			"current_value": current,
			"target_value":  target,
		}).Error
}

// Unlock 写入解锁时间；已解锁的行不受影响，返回 false
func (r *AchievementRepository) Unlock(ctx context.Context, id int64, current int64, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&model.Achievement{}).
		Where("id = ? AND unlocked_at IS NULL", id).
		Updates(map[string]interface{}{
			"current_value": current,
			"unlocked_at":   at,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
