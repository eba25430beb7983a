package response

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func serve(t *testing.T, handler gin.HandlerFunc) (*httptest.ResponseRecorder, Response) {
	t.Helper()
	router := gin.New()
	router.GET("/test", handler)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))

	var resp Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return w, resp
}

func TestSuccess(t *testing.T) {
	w, resp := serve(t, func(c *gin.Context) {
		Success(c, gin.H{"remaining": 4})
	})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, CodeSuccess, resp.Code)
	assert.Equal(t, "success", resp.Message)

	data, ok := resp.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, float64(4), data["remaining"])
}

func TestSuccess_NilData(t *testing.T) {
	_, resp := serve(t, func(c *gin.Context) {
		Success(c, nil)
	})

	assert.Equal(t, CodeSuccess, resp.Code)
	assert.Nil(t, resp.Data)
}

func TestSuccessWithMessage(t *testing.T) {
	_, resp := serve(t, func(c *gin.Context) {
		SuccessWithMessage(c, "兑换成功", gin.H{"ok": true})
	})

	assert.Equal(t, CodeSuccess, resp.Code)
	assert.Equal(t, "兑换成功", resp.Message)
}

func TestError_CustomMessage(t *testing.T) {
	w, resp := serve(t, func(c *gin.Context) {
		Error(c, CodeServerError, "自定义错误消息")
	})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, CodeServerError, resp.Code)
	assert.Equal(t, "自定义错误消息", resp.Message)
	assert.Nil(t, resp.Data)
}

func TestError_UnknownCode(t *testing.T) {
	_, resp := serve(t, func(c *gin.Context) {
		Error(c, 9999, "")
	})

	assert.Equal(t, 9999, resp.Code)
	assert.Equal(t, "", resp.Message)
}

func TestErrorWithData(t *testing.T) {
	_, resp := serve(t, func(c *gin.Context) {
		ErrorWithData(c, CodeQuotaExceeded, "", gin.H{"used_mb": 80})
	})

	assert.Equal(t, CodeQuotaExceeded, resp.Code)
	assert.Equal(t, "额度不足", resp.Message)
	data, ok := resp.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, float64(80), data["used_mb"])
}

func TestHelpers(t *testing.T) {
	tests := []struct {
		name   string
		fn     func(*gin.Context, string)
		code   int
		defMsg string
	}{
		{"param", ParamError, CodeParamError, "参数错误"},
		{"auth", AuthError, CodeAuthFailed, "认证失败"},
		{"permission", PermissionError, CodePermissionDenied, "权限不足"},
		{"not found", NotFoundError, CodeResourceNotFound, "资源不存在"},
		{"quota", QuotaError, CodeQuotaExceeded, "额度不足"},
		{"duplicate", DuplicateError, CodeDuplicateAction, "重复操作"},
		{"conflict", ConflictError, CodeConcurrentUpdate, "请求冲突，请重试"},
		{"locked", LockedError, CodeProgressionLocked, "成长数据暂不可更新"},
		{"server", ServerError, CodeServerError, "服务器内部错误"},
	}

	for _, tt := range tests {
		t.Run(tt.name+" default message", func(t *testing.T) {
			_, resp := serve(t, func(c *gin.Context) { tt.fn(c, "") })
			assert.Equal(t, tt.code, resp.Code)
			assert.Equal(t, tt.defMsg, resp.Message)
		})
		t.Run(tt.name+" custom message", func(t *testing.T) {
			_, resp := serve(t, func(c *gin.Context) { tt.fn(c, "具体原因") })
			assert.Equal(t, tt.code, resp.Code)
			assert.Equal(t, "具体原因", resp.Message)
		})
	}
}

func TestPromoCodesHaveMessages(t *testing.T) {
	for _, code := range []int{CodePromoInvalid, CodePromoExpired, CodePromoExhausted, CodePromoRedeemed} {
		assert.NotEmpty(t, codeMessages[code], "code %d", code)
	}
}
