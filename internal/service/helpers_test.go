package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"

	"github.com/qs3c/journal_server/config"
	"github.com/qs3c/journal_server/internal/model"
	"github.com/qs3c/journal_server/internal/pkg/logging"
	"github.com/qs3c/journal_server/internal/pkg/metrics"
	"github.com/qs3c/journal_server/internal/pkg/pubsub"
	"github.com/qs3c/journal_server/internal/repository"
	"github.com/qs3c/journal_server/internal/testutil"
)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t.UTC()
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []*pubsub.EventMessage
}

func (p *recordingPublisher) PublishEvent(_ context.Context, msg *pubsub.EventMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, msg)
	return nil
}

func (p *recordingPublisher) Events() []*pubsub.EventMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*pubsub.EventMessage(nil), p.events...)
}

type testEnv struct {
	db           *gorm.DB
	cfg          *config.Config
	clock        *testClock
	userRepo     *repository.UserRepository
	statsRepo    *repository.StatsRepository
	promoRepo    *repository.PromoRepository
	achRepo      *repository.AchievementRepository
	tiers        *TierResolver
	ledger       *QuotaLedger
	promo        *PromoService
	streak       *StreakTracker
	progression  *ProgressionEngine
	achievements *AchievementEvaluator
	activity     *ActivityService
	accounts     *AccountService
	publisher    *recordingPublisher
	registry     *prometheus.Registry
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.ApplyDefaults()
	cfg.Ledger.BaseDelay = time.Millisecond
	cfg.Ledger.MaxDelay = 5 * time.Millisecond
	return cfg
}

// newTestEnv 默认时钟 2026-01-20 10:00 UTC，测试用户的账单锚点为 2026-01-15
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db := testutil.SetupTestDB(t)
	t.Cleanup(func() { testutil.CleanupTestDB(t, db) })

	cfg := testConfig()
	log := logging.Discard()
	reg := prometheus.NewRegistry()
	m := metrics.NewCollector(reg)
	clock := &testClock{t: time.Date(2026, 1, 20, 10, 0, 0, 0, time.UTC)}

	env := &testEnv{
		db:        db,
		cfg:       cfg,
		clock:     clock,
		userRepo:  repository.NewUserRepository(db),
		statsRepo: repository.NewStatsRepository(db),
		promoRepo: repository.NewPromoRepository(db),
		achRepo:   repository.NewAchievementRepository(db),
		publisher: &recordingPublisher{},
		registry:  reg,
	}

	env.tiers = NewTierResolver(cfg.Entitlement, env.userRepo, env.promoRepo)
	env.ledger = NewQuotaLedger(db, env.userRepo, env.promoRepo, env.tiers, cfg.Ledger, m, log)
	env.promo = NewPromoService(env.promoRepo, env.userRepo, env.ledger, m, log)
	env.streak = NewStreakTracker(db, env.userRepo, env.statsRepo, cfg, m, log)
	env.progression = NewProgressionEngine(db, env.userRepo, env.statsRepo, cfg, m, log)
	env.achievements = NewAchievementEvaluator(db, env.achRepo, env.userRepo, env.progression, cfg, m, log)
	env.activity = NewActivityService(db, env.userRepo, env.statsRepo, env.ledger, env.streak,
		env.progression, env.achievements, env.publisher, cfg, m, log)
	env.accounts = NewAccountService(db, env.userRepo, env.statsRepo, env.promoRepo, env.ledger, log)

	env.tiers.now = clock.Now
	env.ledger.now = clock.Now
	env.promo.now = clock.Now
	env.achievements.now = clock.Now
	env.activity.now = clock.Now
	env.accounts.now = clock.Now

	return env
}

func (e *testEnv) reload(t *testing.T, userID int64) *model.User {
	t.Helper()
	user, err := e.userRepo.GetByID(context.Background(), userID)
	if err != nil {
		t.Fatalf("Failed to reload user: %v", err)
	}
	return user
}

func (e *testEnv) stats(t *testing.T, userID int64) *model.UserStats {
	t.Helper()
	stats, err := e.statsRepo.Get(context.Background(), userID)
	if err != nil {
		t.Fatalf("Failed to load stats: %v", err)
	}
	return stats
}

// counter 读取注册表中无标签计数器的当前值
func (e *testEnv) counter(t *testing.T, name string) float64 {
	t.Helper()
	families, err := e.registry.Gather()
	if err != nil {
		t.Fatalf("Failed to gather metrics: %v", err)
	}
	for _, f := range families {
		if f.GetName() == name && len(f.GetMetric()) > 0 {
			return f.GetMetric()[0].GetCounter().GetValue()
		}
	}
	return 0
}

// beforeUserWrite 在每次写 users 行之前、于同一事务内执行 fn，模拟并发写入者
func (e *testEnv) beforeUserWrite(t *testing.T, fn func(tx *gorm.DB)) {
	t.Helper()
	err := e.db.Callback().Update().Before("gorm:update").Register("test:before_user_write", func(tx *gorm.DB) {
		if tx.Statement.Table == "users" {
			fn(tx.Session(&gorm.Session{NewDB: true}))
		}
	})
	if err != nil {
		t.Fatalf("Failed to register callback: %v", err)
	}
}
