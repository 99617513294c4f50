package provider

import (
	"context"
	"errors"
	"fmt"

	"tempmail/mailbot/internal/domain"
)

var (
	// ErrConflict 账号地址已被占用
	ErrConflict = errors.New("account already exists")
	// ErrRateLimited 邮件服务商返回 429
	ErrRateLimited = errors.New("rate limited by mail provider")
)

// MailProvider 定义远程一次性邮箱服务商的能力。
type MailProvider interface {
	// ListDomains 返回当前可用于注册的域名。
	ListDomains(ctx context.Context) ([]string, error)
	// CreateAccount 在服务商处注册地址；地址已存在时返回 ErrConflict。
	CreateAccount(ctx context.Context, address, password string) error
	// IssueToken 使用地址和密码换取 Bearer 令牌。
	IssueToken(ctx context.Context, address, password string) (string, error)
	// ListMessages 列出令牌对应收件箱中的邮件。
	ListMessages(ctx context.Context, token string) ([]domain.Message, error)
}

// StatusError 服务商返回了非预期的 HTTP 状态码。
type StatusError struct {
	Op         string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("mail provider %s: unexpected status %d", e.Op, e.StatusCode)
}
