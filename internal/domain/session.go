package domain

import (
	"time"
)

// Session 表示某个用户当前持有的一次性邮箱会话。
type Session struct {
	Owner      string     `json:"owner"`
	Address    string     `json:"address"`
	Credential string     `json:"-"` // 用于向邮件服务商换取令牌的密码
	Token      string     `json:"-"` // 邮件服务商的 Bearer 令牌
	CreatedAt  time.Time  `json:"createdAt"`
	ExpiresAt  *time.Time `json:"expiresAt,omitempty"` // 为空表示永不过期
}

// Expired 判断会话在 now 时刻是否已过期（到达 ExpiresAt 即视为过期）。
func (s *Session) Expired(now time.Time) bool {
	if s == nil || s.ExpiresAt == nil {
		return false
	}
	return !now.Before(*s.ExpiresAt)
}

// Clone 返回会话的深拷贝。
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	out := *s
	if s.ExpiresAt != nil {
		expiresAt := *s.ExpiresAt
		out.ExpiresAt = &expiresAt
	}
	return &out
}

// Favorite 是用户收藏的会话副本，与活动会话的生命周期相互独立。
type Favorite struct {
	Session
	SavedAt time.Time `json:"savedAt"`
}
