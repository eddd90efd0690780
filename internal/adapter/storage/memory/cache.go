package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"referral-ledger/internal/core/ports"
)

type entry struct {
	value     []byte
	count     int64
	expiresAt time.Time
}

// KV is a TTL key-value store standing in for Redis when no Redis is configured.
// It implements ports.IdempotencyCache, ports.ClaimStore and ports.RateLimitStore.
type KV struct {
	mu   sync.Mutex
	now  func() time.Time
	data map[string]*entry
}

// NewKV creates an empty KV.
func NewKV() *KV {
	return &KV{now: time.Now, data: make(map[string]*entry)}
}

// lookup returns the live entry for key. Callers hold mu.
func (kv *KV) lookup(key string) *entry {
	e, ok := kv.data[key]
	if !ok {
		return nil
	}
	if !e.expiresAt.IsZero() && !kv.now().Before(e.expiresAt) {
		delete(kv.data, key)
		return nil
	}
	return e
}

func (kv *KV) expiry(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return kv.now().Add(ttl)
}

func (kv *KV) Get(ctx context.Context, key string) ([]byte, error) {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	if e := kv.lookup("idempotency:" + key); e != nil {
		return e.value, nil
	}
	return nil, nil
}

func (kv *KV) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	if kv.lookup("idempotency:"+key) == nil {
		kv.data["idempotency:"+key] = &entry{value: value, expiresAt: kv.expiry(ttl)}
	}
	return nil
}

func (kv *KV) Claim(ctx context.Context, namespace string, key string, ttl time.Duration) (bool, error) {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	k := "claim:" + namespace + ":" + key
	if kv.lookup(k) != nil {
		return false, nil
	}
	kv.data[k] = &entry{expiresAt: kv.expiry(ttl)}
	return true, nil
}

func (kv *KV) Release(ctx context.Context, namespace string, key string) error {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	delete(kv.data, "claim:"+namespace+":"+key)
	return nil
}

func (kv *KV) Held(ctx context.Context, namespace string, key string) (bool, error) {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	return kv.lookup("claim:"+namespace+":"+key) != nil, nil
}

func (kv *KV) Allow(ctx context.Context, key string, limit int64, window time.Duration) (*ports.RateLimitResult, error) {
	seconds := int64(window.Seconds())
	if seconds < 1 {
		seconds = 1
	}

	kv.mu.Lock()
	defer kv.mu.Unlock()

	windowID := kv.now().Unix() / seconds
	k := fmt.Sprintf("ratelimit:%s:%d", key, windowID)
	e := kv.lookup(k)
	if e == nil {
		e = &entry{expiresAt: kv.expiry(window + time.Second)}
		kv.data[k] = e
	}
	e.count++

	remaining := limit - e.count
	if remaining < 0 {
		remaining = 0
	}
	return &ports.RateLimitResult{
		Allowed:   e.count <= limit,
		Limit:     limit,
		Remaining: remaining,
		ResetAt:   (windowID + 1) * seconds,
	}, nil
}
