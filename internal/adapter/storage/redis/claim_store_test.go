package redis

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClaimStore_FirstWriterWins(t *testing.T) {
	_, client := newTestClient(t)
	store := NewClaimStore(client)
	ctx := context.Background()

	ok, err := store.Claim(ctx, "deposit", "abc123", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.Claim(ctx, "deposit", "abc123", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "second claim should lose")
}

func TestClaimStore_NamespacesIndependent(t *testing.T) {
	_, client := newTestClient(t)
	store := NewClaimStore(client)
	ctx := context.Background()

	ok1, err := store.Claim(ctx, "deposit", "same", time.Minute)
	require.NoError(t, err)
	ok2, err := store.Claim(ctx, "commission", "same", time.Minute)
	require.NoError(t, err)

	assert.True(t, ok1)
	assert.True(t, ok2)
}

func TestClaimStore_ReleaseAndExpiry(t *testing.T) {
	s, client := newTestClient(t)
	store := NewClaimStore(client)
	ctx := context.Background()

	_, err := store.Claim(ctx, "deposit", "h1", time.Minute)
	require.NoError(t, err)
	require.NoError(t, store.Release(ctx, "deposit", "h1"))

	ok, err := store.Claim(ctx, "deposit", "h1", time.Second)
	require.NoError(t, err)
	assert.True(t, ok, "released claim should be available again")

	s.FastForward(2 * time.Second)
	ok, err = store.Claim(ctx, "deposit", "h1", time.Second)
	require.NoError(t, err)
	assert.True(t, ok, "expired claim should be available again")
}

func TestClaimStore_Concurrent(t *testing.T) {
	_, client := newTestClient(t)
	store := NewClaimStore(client)

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := store.Claim(context.Background(), "deposit", "race", time.Minute)
			if err == nil && ok {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())
}

func TestClaimStore_Held(t *testing.T) {
	s, client := newTestClient(t)
	store := NewClaimStore(client)
	ctx := context.Background()

	held, err := store.Held(ctx, "withdrawal", "w1")
	require.NoError(t, err)
	assert.False(t, held)

	_, err = store.Claim(ctx, "withdrawal", "w1", time.Second)
	require.NoError(t, err)
	held, err = store.Held(ctx, "withdrawal", "w1")
	require.NoError(t, err)
	assert.True(t, held)

	s.FastForward(2 * time.Second)
	held, err = store.Held(ctx, "withdrawal", "w1")
	require.NoError(t, err)
	assert.False(t, held)
}
