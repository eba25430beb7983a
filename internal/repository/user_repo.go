package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/qs3c/journal_server/internal/model"
)

var (
	// ErrVersionConflict 乐观锁版本不匹配，行已被其他事务修改
	ErrVersionConflict = errors.New("version conflict")
	// ErrConcurrentInsert 唯一键冲突，同一行已由并发事务插入
	ErrConcurrentInsert = errors.New("row inserted by a concurrent transaction")
)

type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

// WithTx 返回绑定到事务的仓储
func (r *UserRepository) WithTx(tx *gorm.DB) *UserRepository {
	return &UserRepository{db: tx}
}

func (r *UserRepository) Create(ctx context.Context, user *model.User) error {
	return r.db.WithContext(ctx).Create(user).Error
}

func (r *UserRepository) GetByID(ctx context.Context, id int64) (*model.User, error) {
	var user model.User
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*model.User, error) {
	var user model.User
	err := r.db.WithContext(ctx).Where("username = ?", username).First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *UserRepository) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.User{}).Where("username = ?", username).Count(&count).Error
	return count > 0, err
}

// CompareAndSwap 以 user.Version 为条件写回账本与经验字段，成功后 Version 加一。
// tier 归计费系统所有，不在此写回
func (r *UserRepository) CompareAndSwap(ctx context.Context, user *model.User) error {
	res := r.db.WithContext(ctx).Model(&model.User{}).
		Where("id = ? AND version = ?", user.ID, user.Version).
		Updates(map[string]interface{}{
			"prompts_remaining":       user.PromptsRemaining,
			"prompts_used_this_month": user.PromptsUsedThisMonth,
			"storage_used_mb":         user.StorageUsedMB,
			"storage_limit_mb":        user.StorageLimitMB,
			"billing_cycle_anchor":    user.BillingCycleAnchor,
			"xp":                      user.XP,
			"version":                 gorm.Expr("version + 1"),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrVersionConflict
	}
	user.Version++
	return nil
}

// UpdateTier 只由计费回调调用，与同一事务内的 CompareAndSwap 配合使用
func (r *UserRepository) UpdateTier(ctx context.Context, id int64, tier string) error {
	return r.db.WithContext(ctx).Model(&model.User{}).Where("id = ?", id).Update("tier", tier).Error
}

// SetProgressionLocked 设置成长数据只读标记，不参与版本校验
func (r *UserRepository) SetProgressionLocked(ctx context.Context, id int64, locked bool, reason string) error {
	return r.db.WithContext(ctx).Model(&model.User{}).Where("id = ?", id).Updates(map[string]interface{}{
		"progression_locked": locked,
		"lock_reason":        reason,
		"version":            gorm.Expr("version + 1"),
	}).Error
}

// ListDueForRollover 列出账单锚点早于 before 的用户 ID，按 ID 游标分页
func (r *UserRepository) ListDueForRollover(ctx context.Context, before time.Time, afterID int64, limit int) ([]int64, error) {
	var ids []int64
	err := r.db.WithContext(ctx).Model(&model.User{}).
		Where("billing_cycle_anchor <= ? AND id > ?", before, afterID).
		Order("id ASC").
		Limit(limit).
		Pluck("id", &ids).Error
	return ids, err
}
