package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"tempmail/mailbot/internal/domain"
	"tempmail/mailbot/internal/monitoring"
)

// DefaultBaseURL mail.tm 公共 API 地址
const DefaultBaseURL = "https://api.mail.tm"

// Config 定义 mail.tm 客户端配置
type Config struct {
	BaseURL   string        // API 根地址，默认 DefaultBaseURL
	Timeout   time.Duration // 单次请求超时，默认 10 秒
	RateLimit float64       // 每秒最大请求数，<=0 表示不限流
	Burst     int           // 突发请求数，默认 1
}

// MailTM 是基于 HTTP 的 mail.tm 客户端，实现 MailProvider。
type MailTM struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *zap.Logger
	metrics    *monitoring.Metrics
}

// NewMailTM 创建 mail.tm 客户端
func NewMailTM(cfg Config, logger *zap.Logger) *MailTM {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}

	return &MailTM{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		limiter: rate.NewLimiter(limit, cfg.Burst),
		logger:  logger,
	}
}

// SetMetrics 设置监控指标（可选）
func (c *MailTM) SetMetrics(metrics *monitoring.Metrics) {
	c.metrics = metrics
}

// hydraCollection mail.tm 的集合响应格式
type hydraCollection[T any] struct {
	Members []T `json:"hydra:member"`
}

type domainDTO struct {
	Domain   string `json:"domain"`
	IsActive bool   `json:"isActive"`
}

type credentialsDTO struct {
	Address  string `json:"address"`
	Password string `json:"password"`
}

type tokenDTO struct {
	ID    string `json:"id"`
	Token string `json:"token"`
}

type messageDTO struct {
	ID   string `json:"id"`
	From struct {
		Address string `json:"address"`
		Name    string `json:"name"`
	} `json:"from"`
	Subject        string    `json:"subject"`
	Intro          string    `json:"intro"`
	Seen           bool      `json:"seen"`
	HasAttachments bool      `json:"hasAttachments"`
	CreatedAt      time.Time `json:"createdAt"`
	Attachments    []struct {
		ID          string `json:"id"`
		Filename    string `json:"filename"`
		ContentType string `json:"contentType"`
		Size        int64  `json:"size"`
	} `json:"attachments"`
}

// ListDomains 获取可用域名，只返回处于激活状态的域名。
func (c *MailTM) ListDomains(ctx context.Context) ([]string, error) {
	var out hydraCollection[domainDTO]
	if err := c.do(ctx, "list domains", http.MethodGet, "/domains", "", nil, http.StatusOK, &out); err != nil {
		return nil, err
	}

	domains := make([]string, 0, len(out.Members))
	for _, d := range out.Members {
		if d.IsActive && d.Domain != "" {
			domains = append(domains, strings.ToLower(d.Domain))
		}
	}
	return domains, nil
}

// CreateAccount 注册账号
func (c *MailTM) CreateAccount(ctx context.Context, address, password string) error {
	err := c.do(ctx, "create account", http.MethodPost, "/accounts", "",
		credentialsDTO{Address: address, Password: password}, http.StatusCreated, nil)
	return accountError(err)
}

// accountError 将地址已占用的状态码（409/422）归为 ErrConflict
func accountError(err error) error {
	var se *StatusError
	if errors.As(err, &se) {
		if se.StatusCode == http.StatusConflict || se.StatusCode == http.StatusUnprocessableEntity {
			return ErrConflict
		}
	}
	return err
}

// IssueToken 签发访问令牌
func (c *MailTM) IssueToken(ctx context.Context, address, password string) (string, error) {
	var out tokenDTO
	if err := c.do(ctx, "issue token", http.MethodPost, "/token", "",
		credentialsDTO{Address: address, Password: password}, http.StatusOK, &out); err != nil {
		return "", err
	}
	if out.Token == "" {
		return "", fmt.Errorf("mail provider issue token: empty token")
	}
	return out.Token, nil
}

// ListMessages 列出收件箱邮件
func (c *MailTM) ListMessages(ctx context.Context, token string) ([]domain.Message, error) {
	var out hydraCollection[messageDTO]
	if err := c.do(ctx, "list messages", http.MethodGet, "/messages", token, nil, http.StatusOK, &out); err != nil {
		return nil, err
	}

	messages := make([]domain.Message, 0, len(out.Members))
	for _, m := range out.Members {
		msg := domain.Message{
			ID:             m.ID,
			From:           m.From.Address,
			Subject:        m.Subject,
			Intro:          m.Intro,
			CreatedAt:      m.CreatedAt,
			Seen:           m.Seen,
			HasAttachments: m.HasAttachments,
		}
		for _, a := range m.Attachments {
			msg.Attachments = append(msg.Attachments, &domain.Attachment{
				ID:          a.ID,
				Filename:    a.Filename,
				ContentType: a.ContentType,
				Size:        a.Size,
			})
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

// do 执行一次限流后的 JSON 请求，状态码不等于 want 时返回 *StatusError。
func (c *MailTM) do(ctx context.Context, op, method, path, token string, body interface{}, want int, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("mail provider %s: %w", op, err)
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("mail provider %s: %w", op, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("mail provider %s: %w", op, err)
	}
	req.Header.Set("Accept", "application/ld+json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if c.metrics != nil {
		c.metrics.RecordProviderRequest(strings.ReplaceAll(op, " ", "_"), requestError(resp, err, want), time.Since(start))
	}
	if err != nil {
		c.logger.Warn("mail provider request failed",
			zap.String("op", op),
			zap.Error(err),
		)
		return fmt.Errorf("mail provider %s: %w", op, err)
	}
	defer resp.Body.Close()

	c.logger.Debug("mail provider request",
		zap.String("op", op),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)),
	)

	if resp.StatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("mail provider %s: %w", op, ErrRateLimited)
	}
	if resp.StatusCode != want {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return &StatusError{Op: op, StatusCode: resp.StatusCode}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("mail provider %s: decode response: %w", op, err)
	}
	return nil
}

// requestError 归一化一次请求的结果，仅用于指标统计
func requestError(resp *http.Response, err error, want int) error {
	if err != nil {
		return err
	}
	if resp.StatusCode != want {
		return &StatusError{StatusCode: resp.StatusCode}
	}
	return nil
}
