package service

import (
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/qs3c/journal_server/config"
	"github.com/qs3c/journal_server/internal/pkg/metrics"
	"github.com/qs3c/journal_server/internal/repository"
)

// Services 引擎全部服务，server、worker 与 rollover 共用同一套装配
type Services struct {
	Tiers        *TierResolver
	Ledger       *QuotaLedger
	Promo        *PromoService
	Streak       *StreakTracker
	Progression  *ProgressionEngine
	Achievements *AchievementEvaluator
	Activity     *ActivityService
	Accounts     *AccountService
}

// NewServices publisher 为 nil 时不推送成长事件
func NewServices(db *gorm.DB, cfg *config.Config, publisher EventPublisher, m *metrics.Collector, log logrus.FieldLogger) *Services {
	userRepo := repository.NewUserRepository(db)
	statsRepo := repository.NewStatsRepository(db)
	promoRepo := repository.NewPromoRepository(db)
	achRepo := repository.NewAchievementRepository(db)

	s := &Services{}
	s.Tiers = NewTierResolver(cfg.Entitlement, userRepo, promoRepo)
	s.Ledger = NewQuotaLedger(db, userRepo, promoRepo, s.Tiers, cfg.Ledger, m, log)
	s.Promo = NewPromoService(promoRepo, userRepo, s.Ledger, m, log)
	s.Streak = NewStreakTracker(db, userRepo, statsRepo, cfg, m, log)
	s.Progression = NewProgressionEngine(db, userRepo, statsRepo, cfg, m, log)
	s.Achievements = NewAchievementEvaluator(db, achRepo, userRepo, s.Progression, cfg, m, log)
	s.Activity = NewActivityService(db, userRepo, statsRepo, s.Ledger, s.Streak,
		s.Progression, s.Achievements, publisher, cfg, m, log)
	s.Accounts = NewAccountService(db, userRepo, statsRepo, promoRepo, s.Ledger, log)
	return s
}
