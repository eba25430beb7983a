package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/qs3c/journal_server/config"
	"github.com/qs3c/journal_server/internal/model"
	"github.com/qs3c/journal_server/internal/model/dto"
	"github.com/qs3c/journal_server/internal/pkg/metrics"
	"github.com/qs3c/journal_server/internal/pkg/pubsub"
	"github.com/qs3c/journal_server/internal/repository"
)

// EntryActivity 一篇已保存的日记
type EntryActivity struct {
	At         time.Time
	WordCount  int
	PhotoCount int
}

// Event 成长事件，由调用方推送给客户端
type Event struct {
	ID            string
	Type          string
	UserID        int64
	Level         int
	AchievementID string
	StreakDays    int
	At            time.Time
}

// ActivityResult 一次活动处理后的成长状态
type ActivityResult struct {
	XP        int64
	Level     int
	LeveledUp bool
	Stats     model.UserStats
	Prompt    *DebitResult
	Unlocked  []UnlockEvent
	Events    []Event
}

// EventPublisher 成长事件发布
type EventPublisher interface {
	PublishEvent(ctx context.Context, msg *pubsub.EventMessage) error
}

// ActivityService 日记活动处理流水线：
// 账本扣减、连续天数、经验、成就在同一事务内完成
type ActivityService struct {
	userRepo     *repository.UserRepository
	statsRepo    *repository.StatsRepository
	ledger       *QuotaLedger
	streak       *StreakTracker
	progression  *ProgressionEngine
	achievements *AchievementEvaluator
	runner       *txRunner
	guard        *integrityGuard
	publisher    EventPublisher
	metrics      *metrics.Collector
	log          logrus.FieldLogger
	now          func() time.Time
}

func NewActivityService(
	db *gorm.DB,
	userRepo *repository.UserRepository,
	statsRepo *repository.StatsRepository,
	ledger *QuotaLedger,
	streak *StreakTracker,
	progression *ProgressionEngine,
	achievements *AchievementEvaluator,
	publisher EventPublisher,
	cfg *config.Config,
	m *metrics.Collector,
	log logrus.FieldLogger,
) *ActivityService {
	return &ActivityService{
		userRepo:     userRepo,
		statsRepo:    statsRepo,
		ledger:       ledger,
		streak:       streak,
		progression:  progression,
		achievements: achievements,
		runner:       newTxRunner(db, cfg.Ledger, m, log),
		guard:        newIntegrityGuard(userRepo, log),
		publisher:    publisher,
		metrics:      m,
		log:          log,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// pipeline 单次请求在事务内的成长状态
type pipeline struct {
	user       *model.User
	stats      *model.UserStats
	startLevel int
	now        time.Time
	events     []Event
	unlocked   []UnlockEvent
}

func (p *pipeline) emit(ev Event) {
	ev.ID = uuid.NewString()
	ev.UserID = p.user.ID
	ev.At = p.now
	p.events = append(p.events, ev)
}

// begin 加载统计并校验；成长数据锁定时返回 ErrProgressionLocked
func (s *ActivityService) begin(ctx context.Context, tx *gorm.DB, user *model.User, now time.Time) (*pipeline, error) {
	if user.ProgressionLocked {
		return nil, ErrProgressionLocked
	}
	stats, err := s.statsRepo.WithTx(tx).Get(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load stats: %w", err)
	}
	if err := checkProgression(user, stats); err != nil {
		return nil, err
	}
	return &pipeline{
		user:       user,
		stats:      stats,
		startLevel: s.progression.LevelFor(user.XP),
		now:        now,
	}, nil
}

// reward 按动作发放经验，奖励表中没有的动作忽略
func (s *ActivityService) reward(p *pipeline, action string) error {
	xp, err := s.progression.Reward(action)
	if err != nil {
		return nil
	}
	_, err = s.progression.award(p.user, xp)
	return err
}

func (s *ActivityService) snapshot(user *model.User, stats *model.UserStats) ProgressSnapshot {
	return ProgressSnapshot{
		Entries:       int64(stats.TotalEntries),
		Words:         int64(stats.TotalWords),
		Photos:        int64(stats.TotalPhotos),
		PromptsUsed:   int64(stats.TotalPromptsUsed),
		CurrentStreak: int64(stats.CurrentStreak),
		LongestStreak: int64(stats.LongestStreak),
		XP:            user.XP,
		Level:         s.progression.LevelFor(user.XP),
	}
}

// finish 评估成就并保存统计，生成升级事件。用户行由调用方写回
func (s *ActivityService) finish(ctx context.Context, tx *gorm.DB, p *pipeline) error {
	unlocked, err := s.achievements.evaluate(ctx, tx, p.user, s.snapshot(p.user, p.stats), p.now)
	if err != nil {
		return err
	}
	for _, u := range unlocked {
		p.emit(Event{Type: pubsub.EventAchievementUnlocked, AchievementID: u.AchievementID})
	}
	p.unlocked = unlocked

	if level := s.progression.LevelFor(p.user.XP); level > p.startLevel {
		p.emit(Event{Type: pubsub.EventLevelUp, Level: level})
	}

	if err := s.statsRepo.WithTx(tx).Save(ctx, p.stats); err != nil {
		return fmt.Errorf("failed to save stats: %w", err)
	}
	return nil
}

func (s *ActivityService) result(p *pipeline) *ActivityResult {
	level := s.progression.LevelFor(p.user.XP)
	return &ActivityResult{
		XP:        p.user.XP,
		Level:     level,
		LeveledUp: level > p.startLevel,
		Stats:     *p.stats,
		Unlocked:  p.unlocked,
		Events:    p.events,
	}
}

// RecordEntry 记录一篇日记：累计计数、连续天数、经验与成就
func (s *ActivityService) RecordEntry(ctx context.Context, userID int64, entry EntryActivity) (*ActivityResult, error) {
	if entry.WordCount < 0 || entry.PhotoCount < 0 {
		return nil, ErrInvalidActivity
	}

	var result *ActivityResult
	err := s.runner.run(ctx, userID, func(tx *gorm.DB) error {
		now := s.now()
		at := entry.At
		if at.IsZero() || at.After(now) {
			at = now
		}

		userRepo := s.userRepo.WithTx(tx)
		user, err := loadUser(ctx, userRepo, userID)
		if err != nil {
			return err
		}
		p, err := s.begin(ctx, tx, user, now)
		if err != nil {
			return err
		}

		p.stats.TotalEntries++
		p.stats.TotalWords += entry.WordCount
		p.stats.TotalPhotos += entry.PhotoCount

		if err := s.reward(p, ActionEntryCreated); err != nil {
			return err
		}
		if _, milestone := s.streak.advance(user, p.stats, at); milestone {
			if err := s.reward(p, ActionStreakMilestone); err != nil {
				return err
			}
			p.emit(Event{Type: pubsub.EventStreakMilestone, StreakDays: p.stats.CurrentStreak})
		}

		if err := s.finish(ctx, tx, p); err != nil {
			return err
		}
		if err := saveUser(ctx, userRepo, user); err != nil {
			return err
		}
		result = s.result(p)
		return nil
	})
	if err != nil {
		return nil, s.guard.handle(ctx, userID, err)
	}

	s.after(ctx, userID, result)
	return result, nil
}

// RecordPromptUse 一次 AI 写作提示：扣减额度并计入成长。余额不足时整体不生效；
// 成长数据锁定时只扣减额度
func (s *ActivityService) RecordPromptUse(ctx context.Context, userID int64) (*ActivityResult, error) {
	var result *ActivityResult
	err := s.runner.run(ctx, userID, func(tx *gorm.DB) error {
		now := s.now()
		acc, err := s.ledger.open(ctx, tx, userID, now)
		if err != nil {
			return err
		}
		debit, err := applyDebit(acc)
		if err != nil {
			return err
		}
		user := acc.user

		if user.ProgressionLocked {
			if err := saveUser(ctx, s.userRepo.WithTx(tx), user); err != nil {
				return err
			}
			level := s.progression.LevelFor(user.XP)
			result = &ActivityResult{XP: user.XP, Level: level, Prompt: debit}
			return nil
		}

		p, err := s.begin(ctx, tx, user, now)
		if err != nil {
			return err
		}
		p.stats.TotalPromptsUsed++
		if err := s.reward(p, ActionPromptUsed); err != nil {
			return err
		}
		if err := s.finish(ctx, tx, p); err != nil {
			return err
		}
		if err := saveUser(ctx, s.userRepo.WithTx(tx), user); err != nil {
			return err
		}
		result = s.result(p)
		result.Prompt = debit
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrInsufficientBalance) {
			s.metrics.Rejected("insufficient_balance")
			s.log.WithField("user_id", userID).Info("prompt use rejected: insufficient balance")
		}
		return nil, s.guard.handle(ctx, userID, err)
	}

	s.metrics.PromptDebited()
	s.after(ctx, userID, result)
	return result, nil
}

// after 事务提交后记录指标并推送事件，推送失败不影响结果
func (s *ActivityService) after(ctx context.Context, userID int64, result *ActivityResult) {
	if result.LeveledUp {
		s.metrics.LevelUp()
		s.log.WithFields(logrus.Fields{
			"user_id": userID,
			"level":   result.Level,
		}).Info("user leveled up")
	}
	s.achievements.recordUnlocks(userID, result.Unlocked)

	if s.publisher == nil {
		return
	}
	for _, ev := range result.Events {
		msg := &pubsub.EventMessage{
			ID:            ev.ID,
			Type:          ev.Type,
			UserID:        ev.UserID,
			Level:         ev.Level,
			AchievementID: ev.AchievementID,
			StreakDays:    ev.StreakDays,
			At:            ev.At,
		}
		if err := s.publisher.PublishEvent(ctx, msg); err != nil {
			s.log.WithError(err).WithField("user_id", userID).Warn("failed to publish progression event")
		}
	}
}

// Snapshot 当前进度快照
func (s *ActivityService) Snapshot(ctx context.Context, userID int64) (*ProgressSnapshot, error) {
	user, err := loadUser(ctx, s.userRepo, userID)
	if err != nil {
		return nil, err
	}
	stats, err := s.statsRepo.Get(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load stats: %w", err)
	}
	snap := s.snapshot(user, stats)
	return &snap, nil
}

// GetProgress 成长信息
func (s *ActivityService) GetProgress(ctx context.Context, userID int64) (*dto.ProgressInfo, error) {
	user, err := loadUser(ctx, s.userRepo, userID)
	if err != nil {
		return nil, err
	}
	stats, err := s.statsRepo.Get(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load stats: %w", err)
	}

	info := &dto.ProgressInfo{
		XP:               user.XP,
		Level:            s.progression.LevelFor(user.XP),
		NextLevelXP:      s.progression.NextLevelXP(user.XP),
		CurrentStreak:    stats.CurrentStreak,
		LongestStreak:    stats.LongestStreak,
		TotalEntries:     stats.TotalEntries,
		TotalWords:       stats.TotalWords,
		TotalPhotos:      stats.TotalPhotos,
		TotalPromptsUsed: stats.TotalPromptsUsed,
		Locked:           user.ProgressionLocked,
	}
	if stats.LastActivityDate != nil {
		info.LastActivityDate = stats.LastActivityDate.Format("2006-01-02")
	}
	return info, nil
}

// ListAchievements 成就列表
func (s *ActivityService) ListAchievements(ctx context.Context, userID int64) ([]dto.AchievementInfo, error) {
	if _, err := loadUser(ctx, s.userRepo, userID); err != nil {
		return nil, err
	}
	rows, err := s.achievements.List(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list achievements: %w", err)
	}

	list := make([]dto.AchievementInfo, 0, len(rows))
	for _, r := range rows {
		info := dto.AchievementInfo{
			ID:           r.AchievementID,
			CurrentValue: r.CurrentValue,
			TargetValue:  r.TargetValue,
		}
		if def, ok := DefinitionByID(r.AchievementID); ok {
			info.Title = def.Title
			info.Description = def.Description
		}
		if r.UnlockedAt != nil {
			info.UnlockedAt = r.UnlockedAt.UTC().Format(time.RFC3339)
		}
		list = append(list, info)
	}
	return list, nil
}
