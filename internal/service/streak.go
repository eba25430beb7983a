package service

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/qs3c/journal_server/config"
	"github.com/qs3c/journal_server/internal/model"
	"github.com/qs3c/journal_server/internal/pkg/metrics"
	"github.com/qs3c/journal_server/internal/repository"
)

// StreakState 连续写作状态
type StreakState struct {
	Current  int
	Longest  int
	LastDate *time.Time
}

// AdvanceStreak 以用户本地日期 day 推进连续天数，返回新状态与是否发生变化。
// 同一天不变；相邻一天加一；首次或断档重置为 1；早于上次活动日期的补记不改变状态
func AdvanceStreak(state StreakState, day time.Time) (StreakState, bool) {
	day = civilDay(day)

	if state.LastDate != nil {
		gap := daysBetween(civilDay(*state.LastDate), day)
		switch {
		case gap <= 0:
			return state, false
		case gap == 1:
			state.Current++
		default:
			state.Current = 1
		}
	} else {
		state.Current = 1
	}

	if state.Current > state.Longest {
		state.Longest = state.Current
	}
	state.LastDate = &day
	return state, true
}

// civilDay 去掉时刻，只保留年月日（UTC 零点）
func civilDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func daysBetween(from, to time.Time) int {
	return int(to.Sub(from).Hours() / 24)
}

// StreakTracker 连续写作天数
type StreakTracker struct {
	userRepo   *repository.UserRepository
	statsRepo  *repository.StatsRepository
	runner     *txRunner
	guard      *integrityGuard
	defaultLoc *time.Location
	milestones map[int]bool
	log        logrus.FieldLogger
}

func NewStreakTracker(
	db *gorm.DB,
	userRepo *repository.UserRepository,
	statsRepo *repository.StatsRepository,
	cfg *config.Config,
	m *metrics.Collector,
	log logrus.FieldLogger,
) *StreakTracker {
	loc, err := time.LoadLocation(cfg.Progression.DefaultTimezone)
	if err != nil {
		loc = time.UTC
	}
	milestones := make(map[int]bool, len(cfg.Progression.StreakMilestones))
	for _, m := range cfg.Progression.StreakMilestones {
		milestones[m] = true
	}
	return &StreakTracker{
		userRepo:   userRepo,
		statsRepo:  statsRepo,
		runner:     newTxRunner(db, cfg.Ledger, m, log),
		guard:      newIntegrityGuard(userRepo, log),
		defaultLoc: loc,
		milestones: milestones,
		log:        log,
	}
}

// LocalDay 活动时刻在用户时区下的日历日期
func (t *StreakTracker) LocalDay(user *model.User, at time.Time) time.Time {
	return civilDay(at.In(user.Location(t.defaultLoc)))
}

// IsMilestone 连续天数是否为里程碑
func (t *StreakTracker) IsMilestone(days int) bool {
	return t.milestones[days]
}

// advance 事务内推进 stats，返回是否到达新的里程碑
func (t *StreakTracker) advance(user *model.User, stats *model.UserStats, at time.Time) (changed, milestone bool) {
	prev := StreakState{
		Current:  stats.CurrentStreak,
		Longest:  stats.LongestStreak,
		LastDate: stats.LastActivityDate,
	}
	next, changed := AdvanceStreak(prev, t.LocalDay(user, at))
	if !changed {
		return false, false
	}
	stats.CurrentStreak = next.Current
	stats.LongestStreak = next.Longest
	stats.LastActivityDate = next.LastDate
	return true, next.Current != prev.Current && t.IsMilestone(next.Current)
}

// RecordActivity 单独记录一次活动对连续天数的影响
func (t *StreakTracker) RecordActivity(ctx context.Context, userID int64, at time.Time) (*model.UserStats, error) {
	var stats *model.UserStats
	err := t.runner.run(ctx, userID, func(tx *gorm.DB) error {
		userRepo := t.userRepo.WithTx(tx)
		user, err := loadUser(ctx, userRepo, userID)
		if err != nil {
			return err
		}
		if user.ProgressionLocked {
			return ErrProgressionLocked
		}
		s, err := t.statsRepo.WithTx(tx).Get(ctx, userID)
		if err != nil {
			return fmt.Errorf("failed to load stats: %w", err)
		}
		if err := checkProgression(user, s); err != nil {
			return err
		}

		if changed, _ := t.advance(user, s, at); changed {
			if err := t.statsRepo.WithTx(tx).Save(ctx, s); err != nil {
				return fmt.Errorf("failed to save stats: %w", err)
			}
			// 版本号递增，与同一用户的其他写入串行化
			if err := saveUser(ctx, userRepo, user); err != nil {
				return err
			}
		}
		stats = s
		return nil
	})
	if err != nil {
		return nil, t.guard.handle(ctx, userID, err)
	}
	return stats, nil
}
