package httptransport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	_ "tempmail/mailbot/docs"
	"tempmail/mailbot/internal/config"
	"tempmail/mailbot/internal/domain"
	"tempmail/mailbot/internal/health"
	"tempmail/mailbot/internal/identity"
	"tempmail/mailbot/internal/monitoring"
	"tempmail/mailbot/internal/provider/providertest"
	"tempmail/mailbot/internal/session"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testEnv struct {
	router   *gin.Engine
	provider *providertest.MockProvider
	store    *session.Store
	now      time.Time
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	env := &testEnv{
		provider: &providertest.MockProvider{},
		now:      time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	}
	env.store = session.NewStore(env.provider, identity.NewGenerator(env.provider),
		session.WithClock(func() time.Time { return env.now }),
	)
	env.router = NewRouter(RouterDependencies{
		Config: &config.Config{CORS: config.CORSConfig{AllowedOrigins: []string{"*"}}},
		Store:  env.store,
	})
	return env
}

func (e *testEnv) expectAccount() {
	e.provider.On("ListDomains", mock.Anything).Return([]string{"domainx.test"}, nil)
	e.provider.On("CreateAccount", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	e.provider.On("IssueToken", mock.Anything, mock.Anything, mock.Anything).Return("secret-token", nil)
}

func (e *testEnv) do(method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

type envelope struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

func decode(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var resp envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestSessionHandler_CreateSession(t *testing.T) {
	t.Run("指定前缀创建成功", func(t *testing.T) {
		env := newTestEnv(t)
		env.expectAccount()

		w := env.do(http.MethodPost, "/api/owners/U1/session", `{"username":"Alice"}`)

		assert.Equal(t, http.StatusCreated, w.Code)
		resp := decode(t, w)
		assert.Equal(t, http.StatusCreated, resp.Code)

		var data sessionResponse
		require.NoError(t, json.Unmarshal(resp.Data, &data))
		assert.Equal(t, "alice@domainx.test", data.Address)
		assert.Equal(t, env.now, data.CreatedAt)
		assert.Nil(t, data.ExpiresAt)
		assert.NotContains(t, w.Body.String(), "secret-token", "令牌不能出现在响应中")
	})

	t.Run("空请求体随机生成", func(t *testing.T) {
		env := newTestEnv(t)
		env.expectAccount()

		w := env.do(http.MethodPost, "/api/owners/U1/session", "")

		assert.Equal(t, http.StatusCreated, w.Code)
		var data sessionResponse
		require.NoError(t, json.Unmarshal(decode(t, w).Data, &data))
		assert.True(t, strings.HasSuffix(data.Address, "@domainx.test"))
	})

	t.Run("请求体格式错误", func(t *testing.T) {
		env := newTestEnv(t)

		w := env.do(http.MethodPost, "/api/owners/U1/session", `{"username":`)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, MsgInvalidRequest, decode(t, w).Msg)
	})

	t.Run("非法前缀", func(t *testing.T) {
		env := newTestEnv(t)

		w := env.do(http.MethodPost, "/api/owners/U1/session", `{"username":"a b"}`)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("没有可用域名", func(t *testing.T) {
		env := newTestEnv(t)
		env.provider.On("ListDomains", mock.Anything).Return([]string{}, nil)

		w := env.do(http.MethodPost, "/api/owners/U1/session", "")

		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	})

	t.Run("注册失败", func(t *testing.T) {
		env := newTestEnv(t)
		env.provider.On("ListDomains", mock.Anything).Return([]string{"domainx.test"}, nil)
		env.provider.On("CreateAccount", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("upstream exploded"))

		w := env.do(http.MethodPost, "/api/owners/U1/session", "")

		assert.Equal(t, http.StatusBadGateway, w.Code)
		assert.NotContains(t, w.Body.String(), "upstream exploded")
	})
}

func TestSessionHandler_GetAndDelete(t *testing.T) {
	env := newTestEnv(t)
	env.expectAccount()

	w := env.do(http.MethodGet, "/api/owners/U1/session", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	require.Equal(t, http.StatusCreated, env.do(http.MethodPost, "/api/owners/U1/session", `{"username":"bob"}`).Code)

	w = env.do(http.MethodGet, "/api/owners/U1/session", "")
	assert.Equal(t, http.StatusOK, w.Code)
	var data sessionResponse
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &data))
	assert.Equal(t, "bob@domainx.test", data.Address)

	w = env.do(http.MethodDelete, "/api/owners/U1/session", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, MsgSessionDeleted, decode(t, w).Msg)

	// 重复删除同样成功
	assert.Equal(t, http.StatusOK, env.do(http.MethodDelete, "/api/owners/U1/session", "").Code)
	assert.Equal(t, http.StatusNotFound, env.do(http.MethodGet, "/api/owners/U1/session", "").Code)
}

func TestSessionHandler_Expiry(t *testing.T) {
	env := newTestEnv(t)
	env.expectAccount()

	w := env.do(http.MethodPut, "/api/owners/U1/expiry", `{"seconds":300}`)
	require.Equal(t, http.StatusOK, w.Code)
	var pref expiryResponse
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &pref))
	assert.Equal(t, 300, pref.Seconds)

	w = env.do(http.MethodPost, "/api/owners/U1/session", "")
	require.Equal(t, http.StatusCreated, w.Code)
	var data sessionResponse
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &data))
	require.NotNil(t, data.ExpiresAt)
	assert.Equal(t, env.now.Add(300*time.Second), *data.ExpiresAt)

	env.now = env.now.Add(301 * time.Second)
	w = env.do(http.MethodGet, "/api/owners/U1/session", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "邮箱已过期，请重新创建", decode(t, w).Msg)

	t.Run("参数校验", func(t *testing.T) {
		assert.Equal(t, http.StatusBadRequest, env.do(http.MethodPut, "/api/owners/U1/expiry", `{"seconds":-1}`).Code)
		assert.Equal(t, http.StatusBadRequest, env.do(http.MethodPut, "/api/owners/U1/expiry", `{}`).Code)
		assert.Equal(t, http.StatusBadRequest, env.do(http.MethodPut, "/api/owners/U1/expiry", `{"seconds":"soon"}`).Code)
		assert.Equal(t, http.StatusOK, env.do(http.MethodPut, "/api/owners/U1/expiry", `{"seconds":0}`).Code)
	})
}

func TestSessionHandler_InboxAndStats(t *testing.T) {
	env := newTestEnv(t)
	env.expectAccount()
	env.provider.On("ListMessages", mock.Anything, "secret-token").Return([]domain.Message{
		{ID: "m1", Subject: "Welcome", From: "noreply@example.com"},
		{ID: "m2", Subject: "Code 123456", HasAttachments: true, Attachments: []*domain.Attachment{{Filename: "a.pdf"}}},
	}, nil)

	w := env.do(http.MethodPost, "/api/owners/U1/session/inbox", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "当前没有可用的邮箱，请先创建", decode(t, w).Msg)

	require.Equal(t, http.StatusCreated, env.do(http.MethodPost, "/api/owners/U1/session", "").Code)

	w = env.do(http.MethodPost, "/api/owners/U1/session/inbox", "")
	require.Equal(t, http.StatusOK, w.Code)
	var inbox inboxResponse
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &inbox))
	assert.Equal(t, 2, inbox.Count)
	assert.Equal(t, "Code 123456", inbox.Messages[1].Subject)
	assert.Equal(t, "a.pdf", inbox.Messages[1].Attachments[0].Filename)

	w = env.do(http.MethodGet, "/api/owners/U1/stats", "")
	require.Equal(t, http.StatusOK, w.Code)
	var stats domain.Stats
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &stats))
	assert.Equal(t, domain.Stats{Created: 1, Received: 2}, stats)

	t.Run("未知用户统计为零", func(t *testing.T) {
		w := env.do(http.MethodGet, "/api/owners/nobody/stats", "")
		require.Equal(t, http.StatusOK, w.Code)
		var stats domain.Stats
		require.NoError(t, json.Unmarshal(decode(t, w).Data, &stats))
		assert.Equal(t, domain.Stats{}, stats)
	})
}

func TestSessionHandler_Favorite(t *testing.T) {
	env := newTestEnv(t)
	env.expectAccount()

	assert.Equal(t, http.StatusNotFound, env.do(http.MethodPost, "/api/owners/U1/favorite", "").Code)
	assert.Equal(t, http.StatusNotFound, env.do(http.MethodGet, "/api/owners/U1/favorite", "").Code)

	require.Equal(t, http.StatusCreated, env.do(http.MethodPost, "/api/owners/U1/session", `{"username":"keeper"}`).Code)

	w := env.do(http.MethodPost, "/api/owners/U1/favorite", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, MsgFavoriteSaved, decode(t, w).Msg)

	require.Equal(t, http.StatusOK, env.do(http.MethodDelete, "/api/owners/U1/session", "").Code)

	w = env.do(http.MethodGet, "/api/owners/U1/favorite", "")
	require.Equal(t, http.StatusOK, w.Code)
	var fav favoriteResponse
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &fav))
	assert.Equal(t, "keeper@domainx.test", fav.Address)
	assert.Equal(t, env.now, fav.SavedAt)
	assert.NotContains(t, w.Body.String(), "secret-token")
}

func TestRouter_OpsEndpoints(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "tempmail_sessions_active")

	w = env.do(http.MethodGet, "/swagger/doc.json", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "/api/owners/{owner}/session")

	// 未注册健康检查时返回 404
	assert.Equal(t, http.StatusNotFound, env.do(http.MethodGet, "/health/live", "").Code)
}

func TestRouter_HealthSummary(t *testing.T) {
	p := &providertest.MockProvider{}
	p.On("ListDomains", mock.Anything).Return([]string{"domainx.test"}, nil)
	store := session.NewStore(p, identity.NewGenerator(p))

	alerts := monitoring.NewAlertManager(nil)
	alerts.AddRule(monitoring.AlertRule{
		ID:        "always",
		Name:      "Always Firing",
		Condition: func() bool { return true },
		Level:     monitoring.AlertLevelWarning,
	})
	alerts.CheckRules(context.Background())

	router := NewRouter(RouterDependencies{
		Store:  store,
		Health: health.NewHealthChecker(store, p, health.Options{}, nil),
		Alerts: alerts,
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, w.Code)

	resp := decode(t, w)
	var data healthResponse
	require.NoError(t, json.Unmarshal(resp.Data, &data))
	assert.Equal(t, "OK", data.Checks["session-store"])
	assert.Equal(t, "OK", data.Checks["mail-provider"])
	assert.Equal(t, "0", data.Checks["active_sessions"])
	if assert.Len(t, data.Alerts, 1) {
		assert.Equal(t, "always", data.Alerts[0].RuleID)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"过期优先于不存在", domain.ErrSessionExpired, http.StatusNotFound},
		{"不存在", domain.ErrNotFound, http.StatusNotFound},
		{"没有活动会话", domain.ErrNoActiveSession, http.StatusNotFound},
		{"注册失败被包装", errors.Join(domain.ErrAccountCreationFailed, errors.New("x")), http.StatusBadGateway},
		{"无域名", domain.ErrNoDomainsAvailable, http.StatusServiceUnavailable},
		{"前缀过长", domain.ErrLocalPartTooLong, http.StatusBadRequest},
		{"未知错误", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, msg := classify(tt.err)
			assert.Equal(t, tt.status, status)
			assert.NotEmpty(t, msg)
		})
	}

	_, msg := classify(domain.ErrSessionExpired)
	assert.Equal(t, "邮箱已过期，请重新创建", msg)
}
