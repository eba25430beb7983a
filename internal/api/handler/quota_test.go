package handler

import (
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qs3c/journal_server/internal/model"
	"github.com/qs3c/journal_server/internal/model/dto"
	"github.com/qs3c/journal_server/internal/pkg/response"
	"github.com/qs3c/journal_server/internal/testutil"
)

func quotaRouter(tc *testContext, userID int64) *gin.Engine {
	h := NewQuotaHandler(tc.Svc.Ledger, tc.Svc.Activity)
	router := gin.New()
	router.Use(mockAuth(userID))
	router.GET("/quota", h.GetQuota)
	router.POST("/debit", h.DebitPrompt)
	router.POST("/refund", h.RefundPrompt)
	router.POST("/storage", h.CreditStorage)
	return router
}

func TestQuotaHandler_GetQuota(t *testing.T) {
	tc := setupTestContext(t)
	user := tc.newUser(t, testutil.WithPrompts(40, 60), testutil.WithStorage(12, 100))

	var info dto.QuotaInfo
	code := decodeData(t, doJSON(quotaRouter(tc, user.ID), "GET", "/quota", nil), &info)

	require.Equal(t, response.CodeSuccess, code)
	assert.Equal(t, model.TierFree, info.Tier)
	assert.Equal(t, model.TierFree, info.EffectiveTier)
	assert.Equal(t, 100, info.PromptsPerMonth)
	assert.Equal(t, 40, info.PromptsRemaining)
	assert.Equal(t, 60, info.PromptsUsedThisMonth)
	assert.Equal(t, 12, info.StorageUsedMB)
	assert.Equal(t, 100, info.StorageLimitMB)
	assert.False(t, info.Unlimited)
	assert.NotEmpty(t, info.ResetAt)
}

func TestQuotaHandler_GetQuota_Power(t *testing.T) {
	tc := setupTestContext(t)
	user := tc.newUser(t, testutil.WithTier(model.TierPower), testutil.WithStorage(0, 2000))

	var info dto.QuotaInfo
	code := decodeData(t, doJSON(quotaRouter(tc, user.ID), "GET", "/quota", nil), &info)

	require.Equal(t, response.CodeSuccess, code)
	assert.True(t, info.Unlimited)
	assert.Equal(t, -1, info.PromptsPerMonth)
}

func TestQuotaHandler_GetQuota_UserNotFound(t *testing.T) {
	tc := setupTestContext(t)

	resp := parseResponse(t, doJSON(quotaRouter(tc, 99999), "GET", "/quota", nil))
	assert.Equal(t, response.CodeResourceNotFound, resp.Code)
}

func TestQuotaHandler_DebitAndRefund(t *testing.T) {
	tc := setupTestContext(t)
	user := tc.newUser(t, testutil.WithPrompts(2, 98))
	router := quotaRouter(tc, user.ID)

	var debit dto.DebitResponse
	require.Equal(t, response.CodeSuccess, decodeData(t, doJSON(router, "POST", "/debit", nil), &debit))
	assert.Equal(t, 1, debit.Remaining)

	require.Equal(t, response.CodeSuccess, decodeData(t, doJSON(router, "POST", "/debit", nil), &debit))
	assert.Equal(t, 0, debit.Remaining)

	resp := parseResponse(t, doJSON(router, "POST", "/debit", nil))
	assert.Equal(t, response.CodeQuotaExceeded, resp.Code)
	assert.Equal(t, 0, tc.reload(t, user.ID).PromptsRemaining)

	require.Equal(t, response.CodeSuccess, decodeData(t, doJSON(router, "POST", "/refund", nil), &debit))
	assert.Equal(t, 1, debit.Remaining)

	stored := tc.reload(t, user.ID)
	assert.Equal(t, 1, stored.PromptsRemaining)
	assert.Equal(t, 99, stored.PromptsUsedThisMonth)
	// prompt_used 2 + prompts_1 25 + prompt_used 2
	assert.Equal(t, int64(29), stored.XP)
}

func TestQuotaHandler_CreditStorage(t *testing.T) {
	tc := setupTestContext(t)
	user := tc.newUser(t, testutil.WithStorage(90, 100))
	router := quotaRouter(tc, user.ID)

	t.Run("reserve within limit", func(t *testing.T) {
		var res dto.StorageResponse
		code := decodeData(t, doJSON(router, "POST", "/storage", map[string]int{"delta_mb": 10}), &res)
		require.Equal(t, response.CodeSuccess, code)
		assert.Equal(t, 100, res.UsedMB)
		assert.False(t, res.OverQuota)
	})

	t.Run("over limit rejected", func(t *testing.T) {
		resp := parseResponse(t, doJSON(router, "POST", "/storage", map[string]int{"delta_mb": 1}))
		assert.Equal(t, response.CodeQuotaExceeded, resp.Code)
		assert.Equal(t, 100, tc.reload(t, user.ID).StorageUsedMB)
	})

	t.Run("release", func(t *testing.T) {
		var res dto.StorageResponse
		code := decodeData(t, doJSON(router, "POST", "/storage", map[string]int{"delta_mb": -30}), &res)
		require.Equal(t, response.CodeSuccess, code)
		assert.Equal(t, 70, res.UsedMB)
	})

	t.Run("missing delta", func(t *testing.T) {
		resp := parseResponse(t, doJSON(router, "POST", "/storage", map[string]int{}))
		assert.Equal(t, response.CodeParamError, resp.Code)
	})
}

func TestQuotaHandler_RequiresAuth(t *testing.T) {
	tc := setupTestContext(t)
	h := NewQuotaHandler(tc.Svc.Ledger, tc.Svc.Activity)
	router := gin.New()
	router.GET("/quota", h.GetQuota)

	resp := parseResponse(t, doJSON(router, "GET", "/quota", nil))
	assert.Equal(t, response.CodeAuthFailed, resp.Code)
}
