package handler

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/qs3c/journal_server/internal/model"
	"github.com/qs3c/journal_server/internal/model/dto"
	"github.com/qs3c/journal_server/internal/pkg/response"
	"github.com/qs3c/journal_server/internal/service"
)

// AdminHandler 计费回调与运营接口，需 admin token
type AdminHandler struct {
	promoService   *service.PromoService
	accountService *service.AccountService
}

func NewAdminHandler(promoService *service.PromoService, accountService *service.AccountService) *AdminHandler {
	return &AdminHandler{
		promoService:   promoService,
		accountService: accountService,
	}
}

// CreatePromoCode 创建优惠码
// POST /api/v1/admin/promo-codes
func (h *AdminHandler) CreatePromoCode(c *gin.Context) {
	var req dto.CreatePromoCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误")
		return
	}

	pc := &model.PromoCode{
		Code:           req.Code,
		Type:           req.Type,
		Value:          req.Value,
		ValidUntil:     req.ValidUntil,
		MaxUses:        req.MaxUses,
		GrantValidDays: req.GrantValidDays,
	}
	if req.ValidFrom != nil {
		pc.ValidFrom = *req.ValidFrom
	}

	if err := h.promoService.CreateCode(c.Request.Context(), pc); err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, pc)
}

// ProvisionUser 注册系统回调：按套餐基线开通账户
// POST /api/v1/admin/users
func (h *AdminHandler) ProvisionUser(c *gin.Context) {
	var req dto.ProvisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误")
		return
	}
	if req.Timezone != "" {
		if _, err := time.LoadLocation(req.Timezone); err != nil {
			response.ParamError(c, "无效的时区")
			return
		}
	}

	user := &model.User{
		Username: req.Username,
		Email:    req.Email,
		Tier:     req.Tier,
		Timezone: req.Timezone,
	}
	if err := h.accountService.Provision(c.Request.Context(), user); err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, user)
}

// SetTier 计费系统回调：更新用户套餐
// PUT /api/v1/admin/users/:id/tier
func (h *AdminHandler) SetTier(c *gin.Context) {
	userID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || userID <= 0 {
		response.ParamError(c, "无效的用户ID")
		return
	}

	var req dto.SetTierRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "无效的套餐")
		return
	}

	if err := h.accountService.SetTier(c.Request.Context(), userID, req.Tier); err != nil {
		respondError(c, err)
		return
	}

	response.SuccessWithMessage(c, "套餐已更新", nil)
}

// RepairProgression 运维修复数据后解除成长锁定
// POST /api/v1/admin/users/:id/repair
func (h *AdminHandler) RepairProgression(c *gin.Context) {
	userID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || userID <= 0 {
		response.ParamError(c, "无效的用户ID")
		return
	}

	if err := h.accountService.RepairProgression(c.Request.Context(), userID); err != nil {
		respondError(c, err)
		return
	}

	response.SuccessWithMessage(c, "已解除锁定", nil)
}
