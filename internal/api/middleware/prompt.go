package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/qs3c/journal_server/internal/pkg/response"
	"github.com/qs3c/journal_server/internal/service"
)

const (
	PromptResultKey = "promptResult"
	promptFailedKey = "promptFailed"
)

// PromptDebit 调用 AI 前扣减一次提示额度。
// 后续处理 panic、返回 5xx、记录了 gin 错误或调用了 MarkPromptFailed 时补偿一次额度
func PromptDebit(activity *service.ActivityService, ledger *service.QuotaLedger, log logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := GetUserID(c)
		if !ok {
			response.AuthError(c, "")
			c.Abort()
			return
		}

		result, err := activity.RecordPromptUse(c.Request.Context(), userID)
		if err != nil {
			abortPromptError(c, err)
			return
		}
		c.Set(PromptResultKey, result)

		completed := false
		defer func() {
			if completed && !promptFailed(c) {
				return
			}
			ctx := context.WithoutCancel(c.Request.Context())
			if _, err := ledger.CreditPrompt(ctx, userID); err != nil {
				log.WithError(err).WithField("user_id", userID).Error("failed to refund prompt after handler failure")
				return
			}
			log.WithField("user_id", userID).Info("prompt refunded after handler failure")
		}()

		c.Next()
		completed = true
	}
}

// MarkPromptFailed AI 调用失败时由处理器标记，中间件据此补偿额度
func MarkPromptFailed(c *gin.Context) {
	c.Set(promptFailedKey, true)
}

// GetPromptResult 读取本次扣减后的状态
func GetPromptResult(c *gin.Context) (*service.ActivityResult, bool) {
	v, exists := c.Get(PromptResultKey)
	if !exists {
		return nil, false
	}
	r, ok := v.(*service.ActivityResult)
	return r, ok
}

func promptFailed(c *gin.Context) bool {
	return c.GetBool(promptFailedKey) || c.Writer.Status() >= http.StatusInternalServerError || len(c.Errors) > 0
}

func abortPromptError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrInsufficientBalance):
		response.QuotaError(c, err.Error())
	case errors.Is(err, service.ErrConcurrentUpdate):
		response.ConflictError(c, err.Error())
	case errors.Is(err, service.ErrUserNotFound):
		response.NotFoundError(c, err.Error())
	case errors.Is(err, service.ErrInconsistentState):
		response.LockedError(c, err.Error())
	default:
		response.ServerError(c, "额度检查失败")
	}
	c.Abort()
}
