package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/qs3c/journal_server/internal/model"
	"github.com/qs3c/journal_server/internal/pkg/metrics"
	"github.com/qs3c/journal_server/internal/repository"
)

var (
	ErrPromoNotFound        = errors.New("优惠码无效")
	ErrPromoExpired         = errors.New("优惠码已过期")
	ErrPromoExhausted       = errors.New("优惠码已被领完")
	ErrPromoAlreadyRedeemed = errors.New("您已兑换过该优惠码")
	ErrInvalidPromoCode     = errors.New("优惠码参数无效")
	ErrPromoCodeExists      = errors.New("优惠码已存在")
)

// PromoService 优惠码兑换
type PromoService struct {
	promoRepo *repository.PromoRepository
	userRepo  *repository.UserRepository
	ledger    *QuotaLedger
	tiers     *TierResolver
	runner    *txRunner
	metrics   *metrics.Collector
	log       logrus.FieldLogger
	now       func() time.Time
}

func NewPromoService(
	promoRepo *repository.PromoRepository,
	userRepo *repository.UserRepository,
	ledger *QuotaLedger,
	m *metrics.Collector,
	log logrus.FieldLogger,
) *PromoService {
	return &PromoService{
		promoRepo: promoRepo,
		userRepo:  userRepo,
		ledger:    ledger,
		tiers:     ledger.tiers,
		runner:    ledger.runner,
		metrics:   m,
		log:       log,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// checkCode 依次校验：存在且启用、有效期、使用次数
func checkCode(pc *model.PromoCode, now time.Time) error {
	if !pc.IsActive || now.Before(pc.ValidFrom) {
		return ErrPromoNotFound
	}
	if pc.ValidUntil != nil && now.After(*pc.ValidUntil) {
		return ErrPromoExpired
	}
	if pc.MaxUses != nil && pc.CurrentUses >= *pc.MaxUses {
		return ErrPromoExhausted
	}
	return nil
}

// grantFor 由优惠码生成权益；pro_time 按天数到期，其余类型仅在配置了 grant_valid_days 时到期
func grantFor(userID int64, pc *model.PromoCode, now time.Time) *model.PromoGrant {
	g := &model.PromoGrant{
		UserID:      userID,
		PromoCodeID: pc.ID,
		Type:        pc.Type,
		Value:       pc.Value,
		AppliedAt:   now,
	}
	switch {
	case pc.Type == model.PromoProTime:
		exp := now.AddDate(0, 0, pc.Value)
		g.ExpiresAt = &exp
	case pc.GrantValidDays != nil:
		exp := now.AddDate(0, 0, *pc.GrantValidDays)
		g.ExpiresAt = &exp
	}
	return g
}

// Redeem 兑换优惠码。权益写入、使用次数递增与账户额度调整在同一事务内完成
func (s *PromoService) Redeem(ctx context.Context, userID int64, code string) (*model.PromoGrant, error) {
	var grant *model.PromoGrant
	err := s.runner.run(ctx, userID, func(tx *gorm.DB) error {
		now := s.now()
		promoRepo := s.promoRepo.WithTx(tx)

		pc, err := promoRepo.GetCodeByCode(ctx, code)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrPromoNotFound
			}
			return fmt.Errorf("failed to load promo code: %w", err)
		}
		if err := checkCode(pc, now); err != nil {
			return err
		}

		redeemed, err := promoRepo.HasGrant(ctx, userID, pc.ID)
		if err != nil {
			return fmt.Errorf("failed to check grant: %w", err)
		}
		if redeemed {
			return ErrPromoAlreadyRedeemed
		}

		acc, err := s.ledger.open(ctx, tx, userID, now)
		if err != nil {
			return err
		}

		g := grantFor(userID, pc, now)
		if err := promoRepo.CreateGrant(ctx, g); err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrPromoAlreadyRedeemed
			}
			return fmt.Errorf("failed to create grant: %w", err)
		}

		ok, err := promoRepo.IncrementUses(ctx, pc.ID)
		if err != nil {
			return fmt.Errorf("failed to increment promo uses: %w", err)
		}
		if !ok {
			return ErrPromoExhausted
		}

		after, err := s.tiers.resolveFor(ctx, promoRepo, acc.user, now)
		if err != nil {
			return err
		}
		applyGrantEffect(acc, after)

		if err := saveUser(ctx, s.userRepo.WithTx(tx), acc.user); err != nil {
			return err
		}
		grant = g
		return nil
	})

	s.metrics.PromoRedeemed(redeemResult(err))
	if err != nil {
		if !errors.Is(err, ErrInconsistentState) {
			s.log.WithFields(logrus.Fields{
				"user_id": userID,
				"code":    strings.ToUpper(code),
			}).WithError(err).Info("promo redemption rejected")
		}
		return nil, s.ledger.guard.handle(ctx, userID, err)
	}

	s.log.WithFields(logrus.Fields{
		"user_id": userID,
		"type":    grant.Type,
		"value":   grant.Value,
	}).Info("promo code redeemed")
	return grant, nil
}

// applyGrantEffect 兑换立即生效：月度额度增加的部分计入当前余额，存储上限按新权益刷新
func applyGrantEffect(acc *account, after Entitlement) {
	user := acc.user
	if !after.Unlimited && !acc.ent.Unlimited && after.PromptsPerMonth > acc.ent.PromptsPerMonth {
		user.PromptsRemaining += after.PromptsPerMonth - acc.ent.PromptsPerMonth
	}
	user.StorageLimitMB = after.StorageLimitMB
	acc.ent = after
}

func redeemResult(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrPromoNotFound):
		return "not_found"
	case errors.Is(err, ErrPromoExpired):
		return "expired"
	case errors.Is(err, ErrPromoExhausted):
		return "exhausted"
	case errors.Is(err, ErrPromoAlreadyRedeemed):
		return "already_redeemed"
	default:
		return "error"
	}
}

// CreateCode 创建优惠码（管理端）
func (s *PromoService) CreateCode(ctx context.Context, pc *model.PromoCode) error {
	pc.Code = strings.ToUpper(strings.TrimSpace(pc.Code))
	if pc.Code == "" || pc.Value <= 0 {
		return ErrInvalidPromoCode
	}
	switch pc.Type {
	case model.PromoExtraPrompts, model.PromoProTime:
	case model.PromoProDiscount:
		if pc.Value > 100 {
			return ErrInvalidPromoCode
		}
	default:
		return ErrInvalidPromoCode
	}
	if pc.MaxUses != nil && *pc.MaxUses <= 0 {
		return ErrInvalidPromoCode
	}
	if pc.ValidFrom.IsZero() {
		pc.ValidFrom = s.now()
	}
	if pc.ValidUntil != nil && pc.ValidUntil.Before(pc.ValidFrom) {
		return ErrInvalidPromoCode
	}
	pc.CurrentUses = 0
	pc.IsActive = true

	if err := s.promoRepo.CreateCode(ctx, pc); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrPromoCodeExists
		}
		return fmt.Errorf("failed to create promo code: %w", err)
	}
	return nil
}

// ListGrants 列出用户已兑换的权益
func (s *PromoService) ListGrants(ctx context.Context, userID int64) ([]model.PromoGrant, error) {
	return s.promoRepo.ListGrants(ctx, userID)
}
