package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) *MailTM {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewMailTM(Config{BaseURL: srv.URL, Timeout: 2 * time.Second}, nil)
}

func TestMailTM_ListDomains(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/domains", r.URL.Path)
		_, _ = w.Write([]byte(`{"hydra:member":[
			{"domain":"Alpha.test","isActive":true},
			{"domain":"beta.test","isActive":false},
			{"domain":"gamma.test","isActive":true}
		]}`))
	})

	domains, err := client.ListDomains(context.Background())

	require.NoError(t, err)
	assert.Equal(t, []string{"alpha.test", "gamma.test"}, domains)
}

func TestMailTM_CreateAccount(t *testing.T) {
	t.Run("创建成功", func(t *testing.T) {
		client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "/accounts", r.URL.Path)
			var body credentialsDTO
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "meera1234@alpha.test", body.Address)
			assert.Equal(t, "secret", body.Password)
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{"id":"acc-1","address":"meera1234@alpha.test"}`))
		})

		err := client.CreateAccount(context.Background(), "meera1234@alpha.test", "secret")
		assert.NoError(t, err)
	})

	t.Run("地址已存在返回冲突", func(t *testing.T) {
		client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnprocessableEntity)
		})

		err := client.CreateAccount(context.Background(), "taken@alpha.test", "secret")
		assert.ErrorIs(t, err, ErrConflict)
	})

	t.Run("服务端错误返回状态码错误", func(t *testing.T) {
		client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		})

		err := client.CreateAccount(context.Background(), "x@alpha.test", "secret")
		var se *StatusError
		require.ErrorAs(t, err, &se)
		assert.Equal(t, http.StatusBadGateway, se.StatusCode)
	})

	t.Run("限流返回 ErrRateLimited", func(t *testing.T) {
		client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
		})

		err := client.CreateAccount(context.Background(), "x@alpha.test", "secret")
		assert.ErrorIs(t, err, ErrRateLimited)
	})
}

func TestAccountError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		conflict bool
	}{
		{"422", &StatusError{Op: "create account", StatusCode: http.StatusUnprocessableEntity}, true},
		{"包装后的 409", fmt.Errorf("retry: %w", &StatusError{Op: "create account", StatusCode: http.StatusConflict}), true},
		{"包装后的 502", fmt.Errorf("retry: %w", &StatusError{Op: "create account", StatusCode: http.StatusBadGateway}), false},
		{"网络错误", errors.New("connection reset"), false},
		{"nil", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := accountError(tt.err)
			if tt.conflict {
				assert.ErrorIs(t, err, ErrConflict)
				return
			}
			assert.Equal(t, tt.err, err)
		})
	}
}

func TestMailTM_IssueToken(t *testing.T) {
	t.Run("签发成功", func(t *testing.T) {
		client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/token", r.URL.Path)
			_, _ = w.Write([]byte(`{"id":"acc-1","token":"jwt-token"}`))
		})

		token, err := client.IssueToken(context.Background(), "a@alpha.test", "secret")
		require.NoError(t, err)
		assert.Equal(t, "jwt-token", token)
	})

	t.Run("空令牌视为失败", func(t *testing.T) {
		client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"id":"acc-1"}`))
		})

		_, err := client.IssueToken(context.Background(), "a@alpha.test", "secret")
		assert.Error(t, err)
	})
}

func TestMailTM_ListMessages(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/messages", r.URL.Path)
		assert.Equal(t, "Bearer jwt-token", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"hydra:member":[
			{"id":"m1","from":{"address":"noreply@example.com","name":"Example"},
			 "subject":"Welcome","intro":"Hello there","seen":false,"hasAttachments":true,
			 "createdAt":"2026-01-02T03:04:05+00:00",
			 "attachments":[{"id":"att1","filename":"invoice.pdf","contentType":"application/pdf","size":1024}]},
			{"id":"m2","from":{"address":"a@b.c"},"subject":"Second","createdAt":"2026-01-02T04:00:00+00:00"}
		]}`))
	})

	messages, err := client.ListMessages(context.Background(), "jwt-token")

	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, "Welcome", messages[0].Subject)
	assert.Equal(t, "noreply@example.com", messages[0].From)
	assert.Equal(t, "Hello there", messages[0].Intro)
	assert.True(t, messages[0].HasAttachments)
	require.Len(t, messages[0].Attachments, 1)
	assert.Equal(t, "invoice.pdf", messages[0].Attachments[0].Filename)
	assert.Equal(t, time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC), messages[0].CreatedAt.UTC())
	assert.Empty(t, messages[1].Attachments)
}

func TestMailTM_ContextCanceled(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"hydra:member":[]}`))
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.ListDomains(ctx)
	assert.Error(t, err)
}
