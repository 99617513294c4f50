// Package providertest 提供 MailProvider 的 testify 模拟实现。
package providertest

import (
	"context"

	"github.com/stretchr/testify/mock"

	"tempmail/mailbot/internal/domain"
)

// MockProvider 模拟邮件服务商
type MockProvider struct {
	mock.Mock
}

func (m *MockProvider) ListDomains(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockProvider) CreateAccount(ctx context.Context, address, password string) error {
	args := m.Called(ctx, address, password)
	return args.Error(0)
}

func (m *MockProvider) IssueToken(ctx context.Context, address, password string) (string, error) {
	args := m.Called(ctx, address, password)
	return args.String(0), args.Error(1)
}

func (m *MockProvider) ListMessages(ctx context.Context, token string) ([]domain.Message, error) {
	args := m.Called(ctx, token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Message), args.Error(1)
}
