package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSession_Expired(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	expiresAt := now.Add(5 * time.Minute)
	session := &Session{Owner: "u1", CreatedAt: now, ExpiresAt: &expiresAt}

	assert.False(t, session.Expired(now))
	assert.False(t, session.Expired(expiresAt.Add(-time.Nanosecond)))
	assert.True(t, session.Expired(expiresAt), "到达过期时间即视为过期")
	assert.True(t, session.Expired(expiresAt.Add(time.Second)))

	never := &Session{Owner: "u1", CreatedAt: now}
	assert.False(t, never.Expired(now.Add(100*365*24*time.Hour)))

	var nilSession *Session
	assert.False(t, nilSession.Expired(now))
}

func TestSession_Clone(t *testing.T) {
	expiresAt := time.Now().Add(time.Minute)
	original := &Session{Owner: "u1", Address: "a@b.c", Token: "tok", ExpiresAt: &expiresAt}

	clone := original.Clone()
	assert.Equal(t, original, clone)

	*clone.ExpiresAt = clone.ExpiresAt.Add(time.Hour)
	clone.Address = "x@y.z"
	assert.Equal(t, expiresAt, *original.ExpiresAt)
	assert.Equal(t, "a@b.c", original.Address)

	var nilSession *Session
	assert.Nil(t, nilSession.Clone())
}

func TestErrSessionExpired_IsNotFound(t *testing.T) {
	assert.True(t, errors.Is(ErrSessionExpired, ErrNotFound))
	assert.False(t, errors.Is(ErrNotFound, ErrSessionExpired))
}
