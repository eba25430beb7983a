package cron

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/qs3c/journal_server/config"
)

// RolloverSweeper 批量执行到期的月度重置
type RolloverSweeper interface {
	SweepRollovers(ctx context.Context, batch int) (int, error)
}

// GrantRefresher 刷新权益到期用户的额度上限
type GrantRefresher interface {
	RefreshExpiredGrants(ctx context.Context, since, until time.Time) (int, error)
}

type Service struct {
	ledger   RolloverSweeper
	accounts GrantRefresher
	batch    int
	every    time.Duration
	log      logrus.FieldLogger
	now      func() time.Time

	mu        sync.Mutex
	lastGrant time.Time

	stopChan chan struct{}
	stopOnce sync.Once
}

func NewService(ledger RolloverSweeper, accounts GrantRefresher, cfg config.LedgerConfig, log logrus.FieldLogger) *Service {
	every := cfg.SweepEvery
	if every <= 0 {
		every = time.Hour
	}
	now := func() time.Time { return time.Now().UTC() }
	return &Service{
		ledger:    ledger,
		accounts:  accounts,
		batch:     cfg.SweepBatch,
		every:     every,
		log:       log,
		now:       now,
		lastGrant: now().Add(-every),
		stopChan:  make(chan struct{}),
	}
}

// Start 启动定时任务
func (s *Service) Start() {
	go s.run()
	s.log.WithField("every", s.every.String()).Info("cron service started (rollover sweep + grant expiry)")
}

// Stop 停止定时任务，可重复调用
func (s *Service) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopChan)
		s.log.Info("cron service stopped")
	})
}

func (s *Service) run() {
	ticker := time.NewTicker(s.every)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), s.every)
			if err := s.RunNow(ctx); err != nil {
				s.log.WithError(err).Warn("scheduled sweep finished with errors")
			}
			cancel()
		}
	}
}

// RunNow 立即执行一轮：月度重置与权益到期刷新
func (s *Service) RunNow(ctx context.Context) error {
	var firstErr error

	if s.ledger != nil {
		reset, err := s.ledger.SweepRollovers(ctx, s.batch)
		if err != nil {
			s.log.WithError(err).Error("rollover sweep failed")
			firstErr = err
		}
		if reset > 0 {
			s.log.WithField("users", reset).Info("monthly quota reset applied")
		}
	}

	if s.accounts != nil {
		s.mu.Lock()
		since, until := s.lastGrant, s.now()
		s.mu.Unlock()

		refreshed, err := s.accounts.RefreshExpiredGrants(ctx, since, until)
		if err != nil {
			s.log.WithError(err).Error("grant expiry refresh failed")
			if firstErr == nil {
				firstErr = err
			}
		} else {
			s.mu.Lock()
			s.lastGrant = until
			s.mu.Unlock()
		}
		if refreshed > 0 {
			s.log.WithField("users", refreshed).Info("limits refreshed after grant expiry")
		}
	}

	return firstErr
}
