package service

import (
	"context"
	"fmt"
	"time"

	"github.com/qs3c/journal_server/config"
	"github.com/qs3c/journal_server/internal/model"
	"github.com/qs3c/journal_server/internal/repository"
)

// UnlimitedPrompts 不限次数的标记值，配合 Entitlement.Unlimited 使用
const UnlimitedPrompts = -1

// Entitlement 某一时刻的有效权益
type Entitlement struct {
	Tier            string // 计费系统写入的套餐
	EffectiveTier   string // 叠加 pro_time 后用于查基线的套餐
	PromptsPerMonth int
	Unlimited       bool
	StorageLimitMB  int
	DiscountPercent int
}

// TierResolver 由套餐基线与优惠权益计算有效额度，每次访问重新计算
type TierResolver struct {
	tiers     map[string]config.TierConfig
	userRepo  *repository.UserRepository
	promoRepo *repository.PromoRepository
	now       func() time.Time
}

func NewTierResolver(cfg config.EntitlementConfig, userRepo *repository.UserRepository, promoRepo *repository.PromoRepository) *TierResolver {
	return &TierResolver{
		tiers:     cfg.Tiers,
		userRepo:  userRepo,
		promoRepo: promoRepo,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// ValidTier 套餐是否存在
func (r *TierResolver) ValidTier(tier string) bool {
	_, ok := r.tiers[tier]
	return ok
}

func (r *TierResolver) baseline(tier string) (string, config.TierConfig) {
	if t, ok := r.tiers[tier]; ok {
		return tier, t
	}
	return model.TierFree, r.tiers[model.TierFree]
}

// Resolve 计算有效权益：
// 有效的 pro_time 在等级更高时替换基线套餐，extra_prompts 叠加到月度额度，
// pro_discount 取最大折扣。存储上限只取基线
func (r *TierResolver) Resolve(tier string, grants []model.PromoGrant, now time.Time) Entitlement {
	effective, base := r.baseline(tier)
	extra := 0
	discount := 0

	for i := range grants {
		g := &grants[i]
		if !g.ActiveAt(now) {
			continue
		}
		switch g.Type {
		case model.PromoProTime:
			if pro, ok := r.tiers[model.TierPro]; ok && pro.Rank > base.Rank {
				effective, base = model.TierPro, pro
			}
		case model.PromoExtraPrompts:
			extra += g.Value
		case model.PromoProDiscount:
			if g.Value > discount {
				discount = g.Value
			}
		}
	}
	if discount > 100 {
		discount = 100
	}

	ent := Entitlement{
		Tier:            tier,
		EffectiveTier:   effective,
		StorageLimitMB:  base.StorageLimitMB,
		DiscountPercent: discount,
	}
	if base.Unlimited {
		ent.Unlimited = true
		ent.PromptsPerMonth = UnlimitedPrompts
	} else {
		ent.PromptsPerMonth = base.PromptsPerMonth + extra
	}
	return ent
}

// EffectiveEntitlement 查询用户当前的有效权益
func (r *TierResolver) EffectiveEntitlement(ctx context.Context, userID int64) (*Entitlement, error) {
	user, err := loadUser(ctx, r.userRepo, userID)
	if err != nil {
		return nil, err
	}
	ent, err := r.resolveFor(ctx, r.promoRepo, user, r.now())
	if err != nil {
		return nil, err
	}
	return &ent, nil
}

// resolveFor 在给定仓储（可为事务内）上读取权益并计算
func (r *TierResolver) resolveFor(ctx context.Context, promoRepo *repository.PromoRepository, user *model.User, now time.Time) (Entitlement, error) {
	grants, err := promoRepo.ListGrants(ctx, user.ID)
	if err != nil {
		return Entitlement{}, fmt.Errorf("failed to list grants: %w", err)
	}
	return r.Resolve(user.Tier, grants, now), nil
}
