package handler

import (
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qs3c/journal_server/internal/model"
	"github.com/qs3c/journal_server/internal/model/dto"
	"github.com/qs3c/journal_server/internal/pkg/response"
	"github.com/qs3c/journal_server/internal/testutil"
)

func promoRouter(tc *testContext, userID int64) *gin.Engine {
	h := NewPromoHandler(tc.Svc.Promo)
	router := gin.New()
	router.Use(mockAuth(userID))
	router.POST("/redeem", h.Redeem)
	router.GET("/grants", h.ListGrants)
	return router
}

func TestPromoHandler_Redeem_Success(t *testing.T) {
	tc := setupTestContext(t)
	user := tc.newUser(t, testutil.WithPrompts(20, 80))
	testutil.TestPromoCode(t, tc.DB, "SPRING50", model.PromoExtraPrompts, 50)

	var grant dto.GrantInfo
	code := decodeData(t, doJSON(promoRouter(tc, user.ID), "POST", "/redeem", map[string]string{"code": " spring50 "}), &grant)

	require.Equal(t, response.CodeSuccess, code)
	assert.Equal(t, "SPRING50", grant.Code)
	assert.Equal(t, model.PromoExtraPrompts, grant.Type)
	assert.Equal(t, 50, grant.Value)
	assert.NotEmpty(t, grant.AppliedAt)
	assert.Empty(t, grant.ExpiresAt)
	assert.Equal(t, 70, tc.reload(t, user.ID).PromptsRemaining)
}

func TestPromoHandler_Redeem_Rejections(t *testing.T) {
	now := time.Now().UTC()
	yesterday := now.AddDate(0, 0, -1)

	tests := []struct {
		name     string
		opts     []func(*model.PromoCode)
		wantCode int
	}{
		{"inactive", []func(*model.PromoCode){testutil.WithInactive()}, response.CodePromoInvalid},
		{"not yet valid", []func(*model.PromoCode){testutil.WithWindow(now.AddDate(1, 0, 0), nil)}, response.CodePromoInvalid},
		{"expired", []func(*model.PromoCode){testutil.WithWindow(now.AddDate(-1, 0, 0), &yesterday)}, response.CodePromoExpired},
		{"exhausted", []func(*model.PromoCode){testutil.WithMaxUses(1), testutil.WithCurrentUses(1)}, response.CodePromoExhausted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tc := setupTestContext(t)
			user := tc.newUser(t)
			testutil.TestPromoCode(t, tc.DB, "CODE1", model.PromoExtraPrompts, 10, tt.opts...)

			resp := parseResponse(t, doJSON(promoRouter(tc, user.ID), "POST", "/redeem", map[string]string{"code": "CODE1"}))
			assert.Equal(t, tt.wantCode, resp.Code)
			assert.Equal(t, 100, tc.reload(t, user.ID).PromptsRemaining)
		})
	}
}

func TestPromoHandler_Redeem_UnknownAndRepeated(t *testing.T) {
	tc := setupTestContext(t)
	user := tc.newUser(t)
	testutil.TestPromoCode(t, tc.DB, "ONCE", model.PromoExtraPrompts, 5)
	router := promoRouter(tc, user.ID)

	resp := parseResponse(t, doJSON(router, "POST", "/redeem", map[string]string{"code": "NOPE"}))
	assert.Equal(t, response.CodePromoInvalid, resp.Code)

	resp = parseResponse(t, doJSON(router, "POST", "/redeem", map[string]string{"code": "ONCE"}))
	require.Equal(t, response.CodeSuccess, resp.Code)

	resp = parseResponse(t, doJSON(router, "POST", "/redeem", map[string]string{"code": "once"}))
	assert.Equal(t, response.CodePromoRedeemed, resp.Code)
	assert.Equal(t, 105, tc.reload(t, user.ID).PromptsRemaining)
}

func TestPromoHandler_Redeem_BadRequest(t *testing.T) {
	tc := setupTestContext(t)
	user := tc.newUser(t)
	router := promoRouter(tc, user.ID)

	for _, body := range []interface{}{"not json", map[string]string{}, map[string]string{"code": "ab"}} {
		resp := parseResponse(t, doJSON(router, "POST", "/redeem", body))
		assert.Equal(t, response.CodeParamError, resp.Code)
	}
}

func TestPromoHandler_ListGrants(t *testing.T) {
	tc := setupTestContext(t)
	user := tc.newUser(t)
	testutil.TestPromoCode(t, tc.DB, "PRO7", model.PromoProTime, 7)
	router := promoRouter(tc, user.ID)

	resp := parseResponse(t, doJSON(router, "POST", "/redeem", map[string]string{"code": "PRO7"}))
	require.Equal(t, response.CodeSuccess, resp.Code)

	var grants []dto.GrantInfo
	code := decodeData(t, doJSON(router, "GET", "/grants", nil), &grants)
	require.Equal(t, response.CodeSuccess, code)
	require.Len(t, grants, 1)
	assert.Equal(t, model.PromoProTime, grants[0].Type)
	assert.NotEmpty(t, grants[0].ExpiresAt)
}
