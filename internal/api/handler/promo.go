package handler

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/qs3c/journal_server/internal/api/middleware"
	"github.com/qs3c/journal_server/internal/model"
	"github.com/qs3c/journal_server/internal/model/dto"
	"github.com/qs3c/journal_server/internal/pkg/response"
	"github.com/qs3c/journal_server/internal/service"
)

type PromoHandler struct {
	promoService *service.PromoService
}

func NewPromoHandler(promoService *service.PromoService) *PromoHandler {
	return &PromoHandler{
		promoService: promoService,
	}
}

func grantInfo(g *model.PromoGrant, code string) dto.GrantInfo {
	info := dto.GrantInfo{
		Code:      code,
		Type:      g.Type,
		Value:     g.Value,
		AppliedAt: g.AppliedAt.UTC().Format(time.RFC3339),
	}
	if g.ExpiresAt != nil {
		info.ExpiresAt = g.ExpiresAt.UTC().Format(time.RFC3339)
	}
	return info
}

// Redeem 兑换优惠码
// POST /api/v1/promo/redeem
func (h *PromoHandler) Redeem(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	var req dto.RedeemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "请输入优惠码")
		return
	}

	grant, err := h.promoService.Redeem(c.Request.Context(), userID, req.Code)
	if err != nil {
		respondError(c, err)
		return
	}

	response.SuccessWithMessage(c, "兑换成功", grantInfo(grant, strings.ToUpper(strings.TrimSpace(req.Code))))
}

// ListGrants 已兑换的权益
// GET /api/v1/promo/grants
func (h *PromoHandler) ListGrants(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.AuthError(c, "")
		return
	}

	grants, err := h.promoService.ListGrants(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}

	list := make([]dto.GrantInfo, 0, len(grants))
	for i := range grants {
		list = append(list, grantInfo(&grants[i], ""))
	}
	response.Success(c, list)
}
