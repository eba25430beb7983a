package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// 错误码定义
const (
	CodeSuccess           = 0
	CodeParamError        = 1000
	CodeAuthFailed        = 1001
	CodePermissionDenied  = 1002
	CodeResourceNotFound  = 1003
	CodeQuotaExceeded     = 1004
	CodeDuplicateAction   = 1005
	CodePromoInvalid      = 1006
	CodePromoExpired      = 1007
	CodePromoExhausted    = 1008
	CodePromoRedeemed     = 1009
	CodeConcurrentUpdate  = 1010
	CodeProgressionLocked = 1011
	CodeServerError       = 5000
)

// 错误码对应的默认消息
var codeMessages = map[int]string{
	CodeSuccess:           "success",
	CodeParamError:        "参数错误",
	CodeAuthFailed:        "认证失败",
	CodePermissionDenied:  "权限不足",
	CodeResourceNotFound:  "资源不存在",
	CodeQuotaExceeded:     "额度不足",
	CodeDuplicateAction:   "重复操作",
	CodePromoInvalid:      "优惠码无效",
	CodePromoExpired:      "优惠码已过期",
	CodePromoExhausted:    "优惠码已被领完",
	CodePromoRedeemed:     "优惠码已兑换",
	CodeConcurrentUpdate:  "请求冲突，请重试",
	CodeProgressionLocked: "成长数据暂不可更新",
	CodeServerError:       "服务器内部错误",
}

// Response 统一响应结构
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data"`
}

// Success 成功响应
func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    CodeSuccess,
		Message: "success",
		Data:    data,
	})
}

// SuccessWithMessage 带自定义消息的成功响应
func SuccessWithMessage(c *gin.Context, message string, data interface{}) {
	c.JSON(http.StatusOK, Response{
		Code:    CodeSuccess,
		Message: message,
		Data:    data,
	})
}

// Error 错误响应，message 为空时使用错误码的默认消息
func Error(c *gin.Context, code int, message string) {
	if message == "" {
		message = codeMessages[code]
	}
	c.JSON(http.StatusOK, Response{
		Code:    code,
		Message: message,
		Data:    nil,
	})
}

// ErrorWithData 错误响应并附带数据（例如额度不足时的当前余额）
func ErrorWithData(c *gin.Context, code int, message string, data interface{}) {
	if message == "" {
		message = codeMessages[code]
	}
	c.JSON(http.StatusOK, Response{
		Code:    code,
		Message: message,
		Data:    data,
	})
}

func ParamError(c *gin.Context, message string) {
	Error(c, CodeParamError, message)
}

func AuthError(c *gin.Context, message string) {
	Error(c, CodeAuthFailed, message)
}

func PermissionError(c *gin.Context, message string) {
	Error(c, CodePermissionDenied, message)
}

func NotFoundError(c *gin.Context, message string) {
	Error(c, CodeResourceNotFound, message)
}

// QuotaError 提示次数或存储额度不足
func QuotaError(c *gin.Context, message string) {
	Error(c, CodeQuotaExceeded, message)
}

func DuplicateError(c *gin.Context, message string) {
	Error(c, CodeDuplicateAction, message)
}

// ConflictError 乐观锁重试耗尽
func ConflictError(c *gin.Context, message string) {
	Error(c, CodeConcurrentUpdate, message)
}

// LockedError 成长数据被锁定
func LockedError(c *gin.Context, message string) {
	Error(c, CodeProgressionLocked, message)
}

func ServerError(c *gin.Context, message string) {
	Error(c, CodeServerError, message)
}
