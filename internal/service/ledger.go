package service

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/qs3c/journal_server/config"
	"github.com/qs3c/journal_server/internal/model"
	"github.com/qs3c/journal_server/internal/model/dto"
	"github.com/qs3c/journal_server/internal/pkg/metrics"
	"github.com/qs3c/journal_server/internal/repository"
)

// DebitResult 扣减后的余额
type DebitResult struct {
	Remaining int
	Unlimited bool
}

// StorageResult 存储账本状态
type StorageResult struct {
	UsedMB    int
	LimitMB   int
	OverQuota bool
}

// QuotaLedger 提示次数与存储空间账本
type QuotaLedger struct {
	userRepo  *repository.UserRepository
	promoRepo *repository.PromoRepository
	tiers     *TierResolver
	runner    *txRunner
	guard     *integrityGuard
	metrics   *metrics.Collector
	log       logrus.FieldLogger
	now       func() time.Time
}

func NewQuotaLedger(
	db *gorm.DB,
	userRepo *repository.UserRepository,
	promoRepo *repository.PromoRepository,
	tiers *TierResolver,
	cfg config.LedgerConfig,
	m *metrics.Collector,
	log logrus.FieldLogger,
) *QuotaLedger {
	return &QuotaLedger{
		userRepo:  userRepo,
		promoRepo: promoRepo,
		tiers:     tiers,
		runner:    newTxRunner(db, cfg, m, log),
		guard:     newIntegrityGuard(userRepo, log),
		metrics:   m,
		log:       log,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// account 事务内加载的用户账本
type account struct {
	user    *model.User
	ent     Entitlement
	rolled  bool
	changed bool
}

// open 事务内加载用户，执行延迟的月度重置并刷新存储上限
func (l *QuotaLedger) open(ctx context.Context, tx *gorm.DB, userID int64, now time.Time) (*account, error) {
	user, err := loadUser(ctx, l.userRepo.WithTx(tx), userID)
	if err != nil {
		return nil, err
	}
	if err := checkAccount(user); err != nil {
		return nil, err
	}

	ent, err := l.tiers.resolveFor(ctx, l.promoRepo.WithTx(tx), user, now)
	if err != nil {
		return nil, err
	}

	acc := &account{user: user, ent: ent}
	acc.rolled = rollover(user, ent, now)
	if user.StorageLimitMB != ent.StorageLimitMB {
		user.StorageLimitMB = ent.StorageLimitMB
		acc.changed = true
	}
	acc.changed = acc.changed || acc.rolled
	return acc, nil
}

// nextCycle 账单锚点后推一个自然月，保留账单日并截断到月末
func nextCycle(anchor time.Time, day int) time.Time {
	if day <= 0 {
		day = anchor.Day()
	}
	y, m, _ := anchor.Date()
	firstOfNext := time.Date(y, m+1, 1, 0, 0, 0, 0, anchor.Location())
	lastDay := firstOfNext.AddDate(0, 1, -1).Day()
	if day > lastDay {
		day = lastDay
	}
	return time.Date(firstOfNext.Year(), firstOfNext.Month(), day,
		anchor.Hour(), anchor.Minute(), anchor.Second(), anchor.Nanosecond(), anchor.Location())
}

// rollover 每过一个账单周期锚点前进一个月；发生重置时额度恢复为基线，不结转
func rollover(user *model.User, ent Entitlement, now time.Time) bool {
	rolled := false
	for {
		next := nextCycle(user.BillingCycleAnchor, user.BillingCycleDay)
		if now.Before(next) {
			break
		}
		user.BillingCycleAnchor = next
		rolled = true
	}
	if !rolled {
		return false
	}

	user.PromptsUsedThisMonth = 0
	if !ent.Unlimited {
		user.PromptsRemaining = ent.PromptsPerMonth
	}
	return true
}

func applyDebit(acc *account) (*DebitResult, error) {
	user := acc.user
	if acc.ent.Unlimited {
		user.PromptsUsedThisMonth++
		return &DebitResult{Remaining: UnlimitedPrompts, Unlimited: true}, nil
	}
	if user.PromptsRemaining <= 0 {
		return nil, ErrInsufficientBalance
	}
	user.PromptsRemaining--
	user.PromptsUsedThisMonth++
	return &DebitResult{Remaining: user.PromptsRemaining}, nil
}

func applyStorage(acc *account, deltaMB int) (*StorageResult, bool, error) {
	user := acc.user
	clamped := false
	if deltaMB > 0 {
		if user.StorageUsedMB+deltaMB > user.StorageLimitMB {
			return nil, false, ErrOverQuota
		}
		user.StorageUsedMB += deltaMB
	} else {
		user.StorageUsedMB += deltaMB
		if user.StorageUsedMB < 0 {
			user.StorageUsedMB = 0
			clamped = true
		}
	}
	return storageResult(user), clamped, nil
}

func storageResult(user *model.User) *StorageResult {
	return &StorageResult{
		UsedMB:    user.StorageUsedMB,
		LimitMB:   user.StorageLimitMB,
		OverQuota: user.StorageUsedMB > user.StorageLimitMB,
	}
}

// DebitPrompt 扣减一次提示额度；余额不足时不做任何修改
func (l *QuotaLedger) DebitPrompt(ctx context.Context, userID int64) (*DebitResult, error) {
	var result *DebitResult
	err := l.runner.run(ctx, userID, func(tx *gorm.DB) error {
		acc, err := l.open(ctx, tx, userID, l.now())
		if err != nil {
			return err
		}
		res, err := applyDebit(acc)
		if err != nil {
			return err
		}
		if err := saveUser(ctx, l.userRepo.WithTx(tx), acc.user); err != nil {
			return err
		}
		result = res
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrInsufficientBalance) {
			l.metrics.Rejected("insufficient_balance")
			l.log.WithField("user_id", userID).Info("prompt debit rejected: insufficient balance")
		}
		return nil, l.guard.handle(ctx, userID, err)
	}

	l.metrics.PromptDebited()
	return result, nil
}

// CreditPrompt 补偿一次提示额度（AI 调用失败时由调用方发起）
func (l *QuotaLedger) CreditPrompt(ctx context.Context, userID int64) (*DebitResult, error) {
	var result *DebitResult
	err := l.runner.run(ctx, userID, func(tx *gorm.DB) error {
		acc, err := l.open(ctx, tx, userID, l.now())
		if err != nil {
			return err
		}
		user := acc.user
		if user.PromptsUsedThisMonth > 0 {
			user.PromptsUsedThisMonth--
		}
		if acc.ent.Unlimited {
			result = &DebitResult{Remaining: UnlimitedPrompts, Unlimited: true}
		} else {
			user.PromptsRemaining++
			result = &DebitResult{Remaining: user.PromptsRemaining}
		}
		return saveUser(ctx, l.userRepo.WithTx(tx), user)
	})
	if err != nil {
		return nil, l.guard.handle(ctx, userID, err)
	}

	l.metrics.PromptRefunded()
	return result, nil
}

// CreditStorage 调整存储用量：正数超过上限时拒绝，负数总是允许并在 0 处截断
func (l *QuotaLedger) CreditStorage(ctx context.Context, userID int64, deltaMB int) (*StorageResult, error) {
	var (
		result  *StorageResult
		clamped bool
	)
	err := l.runner.run(ctx, userID, func(tx *gorm.DB) error {
		acc, err := l.open(ctx, tx, userID, l.now())
		if err != nil {
			return err
		}
		res, c, err := applyStorage(acc, deltaMB)
		if err != nil {
			return err
		}
		if err := saveUser(ctx, l.userRepo.WithTx(tx), acc.user); err != nil {
			return err
		}
		result, clamped = res, c
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrOverQuota) {
			l.metrics.Rejected("over_quota")
			l.log.WithFields(logrus.Fields{
				"user_id":  userID,
				"delta_mb": deltaMB,
			}).Info("storage credit rejected: over quota")
		}
		return nil, l.guard.handle(ctx, userID, err)
	}

	if clamped {
		l.log.WithFields(logrus.Fields{
			"user_id":  userID,
			"delta_mb": deltaMB,
		}).Warn("storage release exceeded recorded usage, clamped to zero")
	}
	l.metrics.StorageCredited(deltaMB)
	return result, nil
}

// MonthlyReset 到期时执行月度重置，返回是否发生了重置
func (l *QuotaLedger) MonthlyReset(ctx context.Context, userID int64) (bool, error) {
	rolled := false
	err := l.runner.run(ctx, userID, func(tx *gorm.DB) error {
		acc, err := l.open(ctx, tx, userID, l.now())
		if err != nil {
			return err
		}
		rolled = acc.rolled
		if !acc.changed {
			return nil
		}
		return saveUser(ctx, l.userRepo.WithTx(tx), acc.user)
	})
	if err != nil {
		return false, l.guard.handle(ctx, userID, err)
	}

	if rolled {
		l.metrics.MonthlyReset()
		l.log.WithField("user_id", userID).Debug("monthly quota reset applied")
	}
	return rolled, nil
}

// SweepRollovers 批量执行到期用户的月度重置，返回重置的用户数
func (l *QuotaLedger) SweepRollovers(ctx context.Context, batch int) (int, error) {
	if batch <= 0 {
		batch = 200
	}
	// 月末截断时周期最短 28 天，候选集宽一些，是否到期由 MonthlyReset 判断
	before := l.now().AddDate(0, 0, -28)

	var afterID int64
	reset := 0
	for {
		ids, err := l.userRepo.ListDueForRollover(ctx, before, afterID, batch)
		if err != nil {
			return reset, err
		}
		for _, id := range ids {
			rolled, err := l.MonthlyReset(ctx, id)
			if err != nil {
				l.log.WithError(err).WithField("user_id", id).Warn("monthly reset failed")
				continue
			}
			if rolled {
				reset++
			}
		}
		if len(ids) < batch {
			return reset, nil
		}
		afterID = ids[len(ids)-1]
		if err := ctx.Err(); err != nil {
			return reset, err
		}
	}
}

// GetQuotaInfo 获取用户额度信息，读取前执行延迟重置
func (l *QuotaLedger) GetQuotaInfo(ctx context.Context, userID int64) (*dto.QuotaInfo, error) {
	var acc *account
	err := l.runner.run(ctx, userID, func(tx *gorm.DB) error {
		a, err := l.open(ctx, tx, userID, l.now())
		if err != nil {
			return err
		}
		if a.changed {
			if err := saveUser(ctx, l.userRepo.WithTx(tx), a.user); err != nil {
				return err
			}
		}
		acc = a
		return nil
	})
	if err != nil {
		return nil, l.guard.handle(ctx, userID, err)
	}

	user := acc.user
	return &dto.QuotaInfo{
		Tier:                 user.Tier,
		EffectiveTier:        acc.ent.EffectiveTier,
		PromptsPerMonth:      acc.ent.PromptsPerMonth,
		Unlimited:            acc.ent.Unlimited,
		PromptsRemaining:     user.PromptsRemaining,
		PromptsUsedThisMonth: user.PromptsUsedThisMonth,
		StorageUsedMB:        user.StorageUsedMB,
		StorageLimitMB:       user.StorageLimitMB,
		OverQuota:            user.StorageUsedMB > user.StorageLimitMB,
		DiscountPercent:      acc.ent.DiscountPercent,
		ResetAt:              nextCycle(user.BillingCycleAnchor, user.BillingCycleDay).Format(time.RFC3339),
	}, nil
}
