package domain

import (
	"errors"
	"fmt"
)

// 会话相关的业务错误定义
var (
	// ErrNoDomainsAvailable 邮件服务商没有返回任何可用域名
	ErrNoDomainsAvailable = errors.New("no domains available")
	// ErrAccountCreationFailed 邮件服务商拒绝创建账号或签发令牌
	ErrAccountCreationFailed = errors.New("account creation failed")
	// ErrNotFound 用户没有活动会话（从未创建或已过期）
	ErrNotFound = errors.New("session not found")
	// ErrSessionExpired 会话已过期；errors.Is(err, ErrNotFound) 同样成立
	ErrSessionExpired = fmt.Errorf("%w: expired", ErrNotFound)
	// ErrNoActiveSession 需要活动会话的操作在没有会话时被调用
	ErrNoActiveSession = errors.New("no active session")
	// ErrInvalidExpiry 过期时间不能为负数
	ErrInvalidExpiry = errors.New("invalid expiry")
	// ErrInvalidOwner 用户标识为空
	ErrInvalidOwner = errors.New("invalid owner")
)
