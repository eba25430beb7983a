package service

import (
	"errors"
	"fmt"
)

// 账本错误
var (
	ErrInsufficientBalance = errors.New("提示次数已用完")
	ErrOverQuota           = errors.New("存储空间不足")
	ErrConcurrentUpdate    = errors.New("账户正在被其他请求修改，请稍后重试")
	ErrUserNotFound        = errors.New("用户不存在")
	ErrInvalidTier         = errors.New("无效的套餐")
)

// 成长系统错误
var (
	ErrInvalidXPAmount   = errors.New("经验值必须为正数")
	ErrUnknownAction     = errors.New("未知的奖励动作")
	ErrInvalidActivity   = errors.New("活动数据无效")
	ErrInconsistentState = errors.New("成长数据异常，已暂停更新")
	ErrProgressionLocked = errors.New("成长数据已锁定，等待修复")
)

// invariantViolation 读取时发现的数据不一致，errors.Is 视为 ErrInconsistentState
type invariantViolation struct {
	userID int64
	reason string
}

func (e *invariantViolation) Error() string {
	return fmt.Sprintf("user %d: %s", e.userID, e.reason)
}

func (e *invariantViolation) Is(target error) bool {
	return target == ErrInconsistentState
}
