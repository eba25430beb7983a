package repository

import (
	"context"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/qs3c/journal_server/internal/model"
)

type PromoRepository struct {
	db *gorm.DB
}

func NewPromoRepository(db *gorm.DB) *PromoRepository {
	return &PromoRepository{db: db}
}

func (r *PromoRepository) WithTx(tx *gorm.DB) *PromoRepository {
	return &PromoRepository{db: tx}
}

// CreateCode 创建优惠码，code 统一存为大写
func (r *PromoRepository) CreateCode(ctx context.Context, code *model.PromoCode) error {
	code.Code = strings.ToUpper(strings.TrimSpace(code.Code))
	return r.db.WithContext(ctx).Create(code).Error
}

// GetCodeByCode 按 code 查询（大小写不敏感）
func (r *PromoRepository) GetCodeByCode(ctx context.Context, code string) (*model.PromoCode, error) {
	var pc model.PromoCode
	err := r.db.WithContext(ctx).
		Where("code = ?", strings.ToUpper(strings.TrimSpace(code))).
		First(&pc).Error
	if err != nil {
		return nil, err
	}
	return &pc, nil
}

// IncrementUses 条件递增使用次数，返回 false 表示已达上限
func (r *PromoRepository) IncrementUses(ctx context.Context, codeID int64) (bool, error) {
	res := r.db.WithContext(ctx).Model(&model.PromoCode{}).
		Where("id = ? AND (max_uses IS NULL OR current_uses < max_uses)", codeID).
		Update("current_uses", gorm.Expr("current_uses + 1"))
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *PromoRepository) HasGrant(ctx context.Context, userID, codeID int64) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.PromoGrant{}).
		Where("user_id = ? AND promo_code_id = ?", userID, codeID).
		Count(&count).Error
	return count > 0, err
}

// CreateGrant 写入权益；重复兑换由唯一索引拦截，返回 gorm.ErrDuplicatedKey
func (r *PromoRepository) CreateGrant(ctx context.Context, grant *model.PromoGrant) error {
	return r.db.WithContext(ctx).Create(grant).Error
}

func (r *PromoRepository) ListGrants(ctx context.Context, userID int64) ([]model.PromoGrant, error) {
	var grants []model.PromoGrant
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("applied_at ASC, id ASC").
		Find(&grants).Error
	return grants, err
}

// ListUsersWithGrantsExpiredBetween 列出在 (from, to] 内有权益到期的用户
func (r *PromoRepository) ListUsersWithGrantsExpiredBetween(ctx context.Context, from, to time.Time) ([]int64, error) {
	var ids []int64
	err := r.db.WithContext(ctx).Model(&model.PromoGrant{}).
		Where("expires_at > ? AND expires_at <= ?", from, to).
		Distinct().
		Pluck("user_id", &ids).Error
	return ids, err
}
