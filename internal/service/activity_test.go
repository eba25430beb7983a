package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qs3c/journal_server/internal/model"
	"github.com/qs3c/journal_server/internal/pkg/pubsub"
	"github.com/qs3c/journal_server/internal/testutil"
)

func eventTypes(events []Event) []string {
	types := make([]string, 0, len(events))
	for _, ev := range events {
		types = append(types, ev.Type)
	}
	return types
}

func TestActivityService_RecordEntry_First(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := testutil.TestUser(t, env.db)

	res, err := env.activity.RecordEntry(ctx, user.ID, EntryActivity{WordCount: 200})
	require.NoError(t, err)

	// entry_created 10 + first_entry 25
	assert.Equal(t, int64(35), res.XP)
	assert.Equal(t, 1, res.Level)
	assert.False(t, res.LeveledUp)
	assert.Equal(t, 1, res.Stats.TotalEntries)
	assert.Equal(t, 200, res.Stats.TotalWords)
	assert.Equal(t, 1, res.Stats.CurrentStreak)
	assert.Equal(t, []string{"first_entry"}, unlockedIDs(res.Unlocked))
	require.Len(t, res.Events, 1)
	assert.Equal(t, pubsub.EventAchievementUnlocked, res.Events[0].Type)
	assert.Equal(t, "first_entry", res.Events[0].AchievementID)
	assert.NotEmpty(t, res.Events[0].ID)

	published := env.publisher.Events()
	require.Len(t, published, 1)
	assert.Equal(t, user.ID, published[0].UserID)
	assert.Equal(t, res.Events[0].ID, published[0].ID)

	stored := env.reload(t, user.ID)
	assert.Equal(t, int64(35), stored.XP)
	stats := env.stats(t, user.ID)
	assert.Equal(t, 1, stats.TotalEntries)
	assert.Equal(t, 200, stats.TotalWords)
}

func TestActivityService_RecordEntry_InvalidCounts(t *testing.T) {
	env := newTestEnv(t)
	user := testutil.TestUser(t, env.db)

	_, err := env.activity.RecordEntry(context.Background(), user.ID, EntryActivity{WordCount: -1})
	assert.ErrorIs(t, err, ErrInvalidActivity)
	assert.Equal(t, 0, env.stats(t, user.ID).TotalEntries)
}

func TestActivityService_RecordEntry_StreakMilestoneAndLevelUp(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := testutil.TestUser(t, env.db)
	start := env.clock.Now()

	for i := 0; i < 2; i++ {
		env.clock.Set(start.AddDate(0, 0, i))
		_, err := env.activity.RecordEntry(ctx, user.ID, EntryActivity{WordCount: 10})
		require.NoError(t, err)
	}
	assert.Equal(t, int64(45), env.reload(t, user.ID).XP)

	env.clock.Set(start.AddDate(0, 0, 2))
	res, err := env.activity.RecordEntry(ctx, user.ID, EntryActivity{WordCount: 10})
	require.NoError(t, err)

	// 10 + 里程碑 50 + streak_3 25
	assert.Equal(t, int64(130), res.XP)
	assert.Equal(t, 2, res.Level)
	assert.True(t, res.LeveledUp)
	assert.Equal(t, 3, res.Stats.CurrentStreak)
	assert.Equal(t, []string{
		pubsub.EventStreakMilestone,
		pubsub.EventAchievementUnlocked,
		pubsub.EventLevelUp,
	}, eventTypes(res.Events))
	assert.Equal(t, 3, res.Events[0].StreakDays)
	assert.Equal(t, 2, res.Events[2].Level)
}

func TestActivityService_RecordEntry_FutureTimestampClamped(t *testing.T) {
	env := newTestEnv(t)
	user := testutil.TestUser(t, env.db)

	res, err := env.activity.RecordEntry(context.Background(), user.ID, EntryActivity{
		At: env.clock.Now().AddDate(0, 0, 5),
	})
	require.NoError(t, err)
	require.NotNil(t, res.Stats.LastActivityDate)
	assert.Equal(t, "2026-01-20", res.Stats.LastActivityDate.Format("2006-01-02"))
}

func TestActivityService_RecordEntry_Locked(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := testutil.TestUser(t, env.db)
	require.NoError(t, env.userRepo.SetProgressionLocked(ctx, user.ID, true, "manual"))

	_, err := env.activity.RecordEntry(ctx, user.ID, EntryActivity{WordCount: 5})
	assert.ErrorIs(t, err, ErrProgressionLocked)
	assert.Equal(t, 0, env.stats(t, user.ID).TotalEntries)
	assert.Empty(t, env.publisher.Events())
}

func TestActivityService_RecordPromptUse(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := testutil.TestUser(t, env.db, testutil.WithPrompts(5, 0))

	res, err := env.activity.RecordPromptUse(ctx, user.ID)
	require.NoError(t, err)
	require.NotNil(t, res.Prompt)
	assert.Equal(t, 4, res.Prompt.Remaining)
	// prompt_used 2 + prompts_1 25
	assert.Equal(t, int64(27), res.XP)
	assert.Equal(t, []string{"prompts_1"}, unlockedIDs(res.Unlocked))

	stored := env.reload(t, user.ID)
	assert.Equal(t, 4, stored.PromptsRemaining)
	assert.Equal(t, 1, stored.PromptsUsedThisMonth)
	assert.Equal(t, int64(27), stored.XP)
	assert.Equal(t, 1, env.stats(t, user.ID).TotalPromptsUsed)
}

func TestActivityService_RecordPromptUse_InsufficientBalance(t *testing.T) {
	env := newTestEnv(t)
	user := testutil.TestUser(t, env.db, testutil.WithPrompts(0, 100))

	res, err := env.activity.RecordPromptUse(context.Background(), user.ID)
	assert.ErrorIs(t, err, ErrInsufficientBalance)
	assert.Nil(t, res)

	stored := env.reload(t, user.ID)
	assert.Equal(t, int64(0), stored.XP)
	assert.Equal(t, 100, stored.PromptsUsedThisMonth)
	assert.Equal(t, 0, env.stats(t, user.ID).TotalPromptsUsed)
	assert.Empty(t, env.publisher.Events())
}

func TestActivityService_RecordPromptUse_LockedStillDebits(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := testutil.TestUser(t, env.db, testutil.WithPrompts(5, 0))
	require.NoError(t, env.userRepo.SetProgressionLocked(ctx, user.ID, true, "manual"))

	res, err := env.activity.RecordPromptUse(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, res.Prompt.Remaining)

	stored := env.reload(t, user.ID)
	assert.Equal(t, 4, stored.PromptsRemaining)
	assert.Equal(t, int64(0), stored.XP)
	assert.Equal(t, 0, env.stats(t, user.ID).TotalPromptsUsed)
}

func TestActivityService_InvariantViolationThenRepair(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := testutil.TestUser(t, env.db)
	require.NoError(t, env.db.Model(&model.UserStats{}).Where("user_id = ?", user.ID).
		Updates(map[string]interface{}{"current_streak": 5, "longest_streak": 2}).Error)

	_, err := env.activity.RecordEntry(ctx, user.ID, EntryActivity{WordCount: 10})
	assert.ErrorIs(t, err, ErrInconsistentState)
	stored := env.reload(t, user.ID)
	assert.True(t, stored.ProgressionLocked)
	assert.Equal(t, "longest_streak below current_streak", stored.LockReason)

	_, err = env.activity.RecordEntry(ctx, user.ID, EntryActivity{WordCount: 10})
	assert.ErrorIs(t, err, ErrProgressionLocked)

	// 数据未修复时保持锁定
	assert.ErrorIs(t, env.accounts.RepairProgression(ctx, user.ID), ErrInconsistentState)

	require.NoError(t, env.db.Model(&model.UserStats{}).Where("user_id = ?", user.ID).
		Update("longest_streak", 5).Error)
	require.NoError(t, env.accounts.RepairProgression(ctx, user.ID))
	assert.False(t, env.reload(t, user.ID).ProgressionLocked)

	_, err = env.activity.RecordEntry(ctx, user.ID, EntryActivity{WordCount: 10})
	assert.NoError(t, err)
}

func TestActivityService_GetProgress(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := testutil.TestUser(t, env.db)

	_, err := env.activity.RecordEntry(ctx, user.ID, EntryActivity{WordCount: 120, PhotoCount: 2})
	require.NoError(t, err)

	info, err := env.activity.GetProgress(ctx, user.ID)
	require.NoError(t, err)
	// entry 10 + first_entry 25 + photos_1 25
	assert.Equal(t, int64(60), info.XP)
	assert.Equal(t, 1, info.Level)
	assert.Equal(t, int64(100), info.NextLevelXP)
	assert.Equal(t, 1, info.CurrentStreak)
	assert.Equal(t, 2, info.TotalPhotos)
	assert.Equal(t, "2026-01-20", info.LastActivityDate)
	assert.False(t, info.Locked)
}

func TestActivityService_ListAchievements(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := testutil.TestUser(t, env.db)

	_, err := env.activity.RecordEntry(ctx, user.ID, EntryActivity{WordCount: 10})
	require.NoError(t, err)

	list, err := env.activity.ListAchievements(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, list, len(Definitions()))

	assert.Equal(t, "first_entry", list[0].ID)
	assert.NotEmpty(t, list[0].Title)
	assert.Equal(t, "2026-01-20T10:00:00Z", list[0].UnlockedAt)
	assert.Empty(t, list[1].UnlockedAt)

	_, err = env.activity.ListAchievements(ctx, 987654)
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestActivityService_Snapshot(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := testutil.TestUser(t, env.db, testutil.WithXP(260))

	snap, err := env.activity.Snapshot(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(260), snap.XP)
	assert.Equal(t, 3, snap.Level)
	assert.Equal(t, int64(0), snap.Entries)
}
