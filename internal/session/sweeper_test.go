package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tempmail/mailbot/internal/domain"
	"tempmail/mailbot/internal/provider/providertest"
)

func TestStore_Sweep(t *testing.T) {
	p := &providertest.MockProvider{}
	expectHappyProvider(p)
	store, clock := newTestStore(p)
	ctx := context.Background()

	require.NoError(t, store.SetExpiryPreference("short", 60))
	require.NoError(t, store.SetExpiryPreference("long", 3600))
	for _, owner := range []string{"short", "long", "never"} {
		_, err := store.CreateSession(ctx, owner, "")
		require.NoError(t, err)
	}

	assert.Equal(t, 0, store.Sweep())
	assert.Equal(t, 3, store.ActiveSessions())

	clock.Advance(2 * time.Minute)
	assert.Equal(t, 1, store.Sweep())
	assert.Equal(t, 2, store.ActiveSessions())

	_, err := store.GetSession("short")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Equal(t, int64(1), store.GetStats("short").Created)

	clock.Advance(2 * time.Hour)
	assert.Equal(t, 1, store.Sweep())
	_, err = store.GetSession("never")
	assert.NoError(t, err)
}

func TestStore_RunSweeper(t *testing.T) {
	p := &providertest.MockProvider{}
	expectHappyProvider(p)
	store, clock := newTestStore(p)

	require.NoError(t, store.SetExpiryPreference("U1", 1))
	_, err := store.CreateSession(context.Background(), "U1", "")
	require.NoError(t, err)
	clock.Advance(time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		store.RunSweeper(ctx, 5*time.Millisecond)
		close(done)
	}()

	assert.Eventually(t, func() bool {
		return store.installedSessions() == 0
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop after context cancellation")
	}
}

func TestStore_RunSweeperDisabled(t *testing.T) {
	store, _ := newTestStore(&providertest.MockProvider{})

	done := make(chan struct{})
	go func() {
		store.RunSweeper(context.Background(), 0)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper with zero interval should return immediately")
	}
}
