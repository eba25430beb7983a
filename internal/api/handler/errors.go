package handler

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/qs3c/journal_server/internal/pkg/response"
	"github.com/qs3c/journal_server/internal/service"
)

// respondError 服务层错误映射为业务码，未识别的错误记录到 c.Errors 由日志中间件输出
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrInsufficientBalance),
		errors.Is(err, service.ErrOverQuota):
		response.QuotaError(c, err.Error())
	case errors.Is(err, service.ErrPromoNotFound):
		response.Error(c, response.CodePromoInvalid, err.Error())
	case errors.Is(err, service.ErrPromoExpired):
		response.Error(c, response.CodePromoExpired, err.Error())
	case errors.Is(err, service.ErrPromoExhausted):
		response.Error(c, response.CodePromoExhausted, err.Error())
	case errors.Is(err, service.ErrPromoAlreadyRedeemed):
		response.Error(c, response.CodePromoRedeemed, err.Error())
	case errors.Is(err, service.ErrPromoCodeExists),
		errors.Is(err, service.ErrUsernameExists):
		response.DuplicateError(c, err.Error())
	case errors.Is(err, service.ErrConcurrentUpdate):
		response.ConflictError(c, err.Error())
	case errors.Is(err, service.ErrProgressionLocked),
		errors.Is(err, service.ErrInconsistentState):
		response.LockedError(c, err.Error())
	case errors.Is(err, service.ErrUserNotFound),
		errors.Is(err, service.ErrFileNotFound):
		response.NotFoundError(c, err.Error())
	case errors.Is(err, service.ErrInvalidTier),
		errors.Is(err, service.ErrInvalidPromoCode),
		errors.Is(err, service.ErrInvalidActivity),
		errors.Is(err, service.ErrInvalidXPAmount),
		errors.Is(err, service.ErrFileTooLarge),
		errors.Is(err, service.ErrInvalidFormat),
		errors.Is(err, service.ErrEmptyFile):
		response.ParamError(c, err.Error())
	default:
		_ = c.Error(err)
		response.ServerError(c, "")
	}
}
