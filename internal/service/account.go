package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/qs3c/journal_server/internal/model"
	"github.com/qs3c/journal_server/internal/repository"
)

var ErrUsernameExists = errors.New("用户名已被占用")

// AccountService 账户开通、套餐变更与数据修复
type AccountService struct {
	db        *gorm.DB
	userRepo  *repository.UserRepository
	statsRepo *repository.StatsRepository
	promoRepo *repository.PromoRepository
	ledger    *QuotaLedger
	tiers     *TierResolver
	log       logrus.FieldLogger
	now       func() time.Time
}

func NewAccountService(
	db *gorm.DB,
	userRepo *repository.UserRepository,
	statsRepo *repository.StatsRepository,
	promoRepo *repository.PromoRepository,
	ledger *QuotaLedger,
	log logrus.FieldLogger,
) *AccountService {
	return &AccountService{
		db:        db,
		userRepo:  userRepo,
		statsRepo: statsRepo,
		promoRepo: promoRepo,
		ledger:    ledger,
		tiers:     ledger.tiers,
		log:       log,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Provision 注册时开通账户：按套餐基线初始化额度，账单锚点为注册时刻
func (s *AccountService) Provision(ctx context.Context, user *model.User) error {
	if user.Tier == "" {
		user.Tier = model.TierFree
	}
	if !s.tiers.ValidTier(user.Tier) {
		return ErrInvalidTier
	}

	now := s.now()
	ent := s.tiers.Resolve(user.Tier, nil, now)
	user.PromptsRemaining = 0
	if !ent.Unlimited {
		user.PromptsRemaining = ent.PromptsPerMonth
	}
	user.PromptsUsedThisMonth = 0
	user.StorageUsedMB = 0
	user.StorageLimitMB = ent.StorageLimitMB
	user.BillingCycleAnchor = now
	user.BillingCycleDay = now.Day()
	user.XP = 0
	user.Version = 1
	if user.Timezone == "" {
		user.Timezone = "UTC"
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		exists, err := s.userRepo.WithTx(tx).ExistsByUsername(ctx, user.Username)
		if err != nil {
			return err
		}
		if exists {
			return ErrUsernameExists
		}
		if err := s.userRepo.WithTx(tx).Create(ctx, user); err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrUsernameExists
			}
			return fmt.Errorf("failed to create user: %w", err)
		}
		if _, err := s.statsRepo.WithTx(tx).Get(ctx, user.ID); err != nil {
			return fmt.Errorf("failed to create stats: %w", err)
		}
		return nil
	})
}

// SetTier 计费系统回调修改套餐；月度额度的差额立即计入当前余额
func (s *AccountService) SetTier(ctx context.Context, userID int64, tier string) error {
	if !s.tiers.ValidTier(tier) {
		return ErrInvalidTier
	}

	var from string
	err := s.ledger.runner.run(ctx, userID, func(tx *gorm.DB) error {
		now := s.now()
		acc, err := s.ledger.open(ctx, tx, userID, now)
		if err != nil {
			return err
		}
		user := acc.user
		from = user.Tier
		before := acc.ent

		user.Tier = tier
		after, err := s.tiers.resolveFor(ctx, s.promoRepo.WithTx(tx), user, now)
		if err != nil {
			return err
		}

		switch {
		case after.Unlimited:
		case before.Unlimited:
			user.PromptsRemaining = after.PromptsPerMonth - user.PromptsUsedThisMonth
		default:
			user.PromptsRemaining += after.PromptsPerMonth - before.PromptsPerMonth
		}
		if user.PromptsRemaining < 0 {
			user.PromptsRemaining = 0
		}
		user.StorageLimitMB = after.StorageLimitMB

		userRepo := s.userRepo.WithTx(tx)
		if err := saveUser(ctx, userRepo, user); err != nil {
			return err
		}
		return userRepo.UpdateTier(ctx, userID, tier)
	})
	if err != nil {
		return s.ledger.guard.handle(ctx, userID, err)
	}

	s.log.WithFields(logrus.Fields{
		"user_id": userID,
		"from":    from,
		"to":      tier,
	}).Info("user tier changed")
	return nil
}

// RefreshLimits 按当前有效权益刷新存储上限，返回是否有变化
func (s *AccountService) RefreshLimits(ctx context.Context, userID int64) (bool, error) {
	changed := false
	err := s.ledger.runner.run(ctx, userID, func(tx *gorm.DB) error {
		acc, err := s.ledger.open(ctx, tx, userID, s.now())
		if err != nil {
			return err
		}
		changed = acc.changed
		if !changed {
			return nil
		}
		return saveUser(ctx, s.userRepo.WithTx(tx), acc.user)
	})
	if err != nil {
		return false, s.ledger.guard.handle(ctx, userID, err)
	}
	return changed, nil
}

// RefreshExpiredGrants 刷新 (since, until] 内权益到期的用户，返回刷新的用户数
func (s *AccountService) RefreshExpiredGrants(ctx context.Context, since, until time.Time) (int, error) {
	ids, err := s.promoRepo.ListUsersWithGrantsExpiredBetween(ctx, since, until)
	if err != nil {
		return 0, err
	}
	refreshed := 0
	for _, id := range ids {
		changed, err := s.RefreshLimits(ctx, id)
		if err != nil {
			s.log.WithError(err).WithField("user_id", id).Warn("failed to refresh limits")
			continue
		}
		if changed {
			refreshed++
		}
	}
	return refreshed, nil
}

// RepairProgression 运维修复数据后解除只读状态；数据仍不一致时保持锁定
func (s *AccountService) RepairProgression(ctx context.Context, userID int64) error {
	user, err := loadUser(ctx, s.userRepo, userID)
	if err != nil {
		return err
	}
	stats, err := s.statsRepo.Get(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to load stats: %w", err)
	}
	if err := checkAccount(user); err != nil {
		return ErrInconsistentState
	}
	if err := checkProgression(user, stats); err != nil {
		return ErrInconsistentState
	}

	if err := s.userRepo.SetProgressionLocked(ctx, userID, false, ""); err != nil {
		return fmt.Errorf("failed to unlock progression: %w", err)
	}
	s.log.WithField("user_id", userID).Info("user progression unlocked")
	return nil
}
