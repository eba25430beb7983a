package handler

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/qs3c/journal_server/internal/api/middleware"
	"github.com/qs3c/journal_server/internal/model/dto"
	"github.com/qs3c/journal_server/internal/pkg/response"
	"github.com/qs3c/journal_server/internal/service"
)

type ProgressHandler struct {
	activity *service.ActivityService
}

func NewProgressHandler(activity *service.ActivityService) *ProgressHandler {
	return &ProgressHandler{
		activity: activity,
	}
}

func eventInfos(events []service.Event) []dto.EventInfo {
	list := make([]dto.EventInfo, 0, len(events))
	for _, ev := range events {
		list = append(list, dto.EventInfo{
			Type:          ev.Type,
			Level:         ev.Level,
			AchievementID: ev.AchievementID,
			StreakDays:    ev.StreakDays,
			At:            ev.At.UTC().Format(time.RFC3339),
		})
	}
	return list
}

// GetProgress 经验、等级与连续天数
// GET /api/v1/user/progress
func (h *ProgressHandler) GetProgress(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	info, err := h.activity.GetProgress(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, info)
}

// ListAchievements 成就列表（含进度）
// GET /api/v1/user/achievements
func (h *ProgressHandler) ListAchievements(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	list, err := h.activity.ListAchievements(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, list)
}

// RecordEntry 日记保存后同步上报
// POST /api/v1/activity/entries
func (h *ProgressHandler) RecordEntry(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	var req dto.RecordEntryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误")
		return
	}

	entry := service.EntryActivity{
		WordCount:  req.WordCount,
		PhotoCount: req.PhotoCount,
	}
	if req.CreatedAt != nil {
		entry.At = *req.CreatedAt
	}

	result, err := h.activity.RecordEntry(c.Request.Context(), userID, entry)
	if err != nil {
		respondError(c, err)
		return
	}

	progress, err := h.activity.GetProgress(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, dto.ActivityResponse{
		Progress: progress,
		Events:   eventInfos(result.Events),
	})
}
