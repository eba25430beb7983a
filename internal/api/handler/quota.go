package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/qs3c/journal_server/internal/api/middleware"
	"github.com/qs3c/journal_server/internal/model/dto"
	"github.com/qs3c/journal_server/internal/pkg/response"
	"github.com/qs3c/journal_server/internal/service"
)

type QuotaHandler struct {
	ledger   *service.QuotaLedger
	activity *service.ActivityService
}

func NewQuotaHandler(ledger *service.QuotaLedger, activity *service.ActivityService) *QuotaHandler {
	return &QuotaHandler{
		ledger:   ledger,
		activity: activity,
	}
}

// GetQuota 获取当前用户额度信息
// GET /api/v1/user/quota
func (h *QuotaHandler) GetQuota(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	info, err := h.ledger.GetQuotaInfo(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, info)
}

// DebitPrompt 进程外的 AI 服务调用前扣减一次提示额度，同时计入成长
// POST /api/v1/prompts/debit
func (h *QuotaHandler) DebitPrompt(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	result, err := h.activity.RecordPromptUse(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, dto.DebitResponse{
		Remaining: result.Prompt.Remaining,
		Unlimited: result.Prompt.Unlimited,
	})
}

// RefundPrompt AI 调用失败后的补偿
// POST /api/v1/prompts/refund
func (h *QuotaHandler) RefundPrompt(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	result, err := h.ledger.CreditPrompt(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, dto.DebitResponse{
		Remaining: result.Remaining,
		Unlimited: result.Unlimited,
	})
}

// CreditStorage 进程外的文件服务上报存储变动，正数预占、负数释放
// POST /api/v1/storage/credit
func (h *QuotaHandler) CreditStorage(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	var req dto.StorageCreditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误")
		return
	}

	result, err := h.ledger.CreditStorage(c.Request.Context(), userID, req.DeltaMB)
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, dto.StorageResponse{
		UsedMB:    result.UsedMB,
		LimitMB:   result.LimitMB,
		OverQuota: result.OverQuota,
	})
}
