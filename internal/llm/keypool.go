package llm

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"memoire/internal/domain"
)

// KeyPool rotates API keys round-robin. A key that hit a rate limit is put in
// cooldown and skipped by Next until the cooldown expires. Safe for concurrent use.
type KeyPool struct {
	keys        []string
	mu          sync.Mutex
	nextIdx     int
	cooldowns   []time.Time // parallel to keys; zero means available
	cooldownDur time.Duration
	nowFunc     func() time.Time
}

// NewKeyPool creates a KeyPool. Returns an error if keys is empty.
func NewKeyPool(keys []string, cooldownDur time.Duration) (*KeyPool, error) {
	if len(keys) == 0 {
		return nil, fmt.Errorf("keypool: at least one key is required")
	}
	return &KeyPool{
		keys:        keys,
		cooldowns:   make([]time.Time, len(keys)),
		cooldownDur: cooldownDur,
		nowFunc:     time.Now,
	}, nil
}

// Next returns the next available key and its index, or an error if every key
// is in cooldown.
func (kp *KeyPool) Next() (string, int, error) {
	kp.mu.Lock()
	defer kp.mu.Unlock()

	now := kp.nowFunc()
	n := len(kp.keys)
	for i := 0; i < n; i++ {
		idx := (kp.nextIdx + i) % n
		if kp.available(idx, now) {
			kp.nextIdx = (idx + 1) % n
			return kp.keys[idx], idx, nil
		}
	}
	return "", -1, fmt.Errorf("keypool: all %d keys are in cooldown", n)
}

// MarkCooldown puts the key at idx into cooldown. Out-of-range indices are ignored.
func (kp *KeyPool) MarkCooldown(idx int) {
	kp.mu.Lock()
	defer kp.mu.Unlock()

	if idx < 0 || idx >= len(kp.keys) {
		return
	}
	kp.cooldowns[idx] = kp.nowFunc().Add(kp.cooldownDur)
}

// Len returns the number of keys in the pool.
func (kp *KeyPool) Len() int {
	return len(kp.keys)
}

// Available returns the number of keys not in cooldown.
func (kp *KeyPool) Available() int {
	kp.mu.Lock()
	defer kp.mu.Unlock()

	now := kp.nowFunc()
	count := 0
	for i := range kp.cooldowns {
		if kp.available(i, now) {
			count++
		}
	}
	return count
}

func (kp *KeyPool) available(idx int, now time.Time) bool {
	cd := kp.cooldowns[idx]
	return cd.IsZero() || now.After(cd)
}

// isRateLimitError reports whether err looks like a 429 / rate-limit response.
func isRateLimitError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "429") || strings.Contains(msg, "rate limit")
}

// =============================================================================
// KeyPoolOracle
// =============================================================================

// KeyPoolOracle holds one oracle per API key and rotates between them. On a
// rate-limit error the key is put in cooldown and the call is retried once
// with the next available key.
type KeyPoolOracle struct {
	pool    *KeyPool
	oracles []domain.Oracle
}

// NewKeyPoolOracle pairs pool with oracles; both must have the same length.
func NewKeyPoolOracle(pool *KeyPool, oracles []domain.Oracle) (*KeyPoolOracle, error) {
	if pool == nil {
		return nil, fmt.Errorf("keypool oracle: pool must not be nil")
	}
	if len(oracles) == 0 {
		return nil, fmt.Errorf("keypool oracle: at least one oracle is required")
	}
	if pool.Len() != len(oracles) {
		return nil, fmt.Errorf("keypool oracle: pool size (%d) must match oracle count (%d)", pool.Len(), len(oracles))
	}
	return &KeyPoolOracle{pool: pool, oracles: oracles}, nil
}

// Complete implements domain.Oracle.
func (k *KeyPoolOracle) Complete(ctx context.Context, req domain.CompletionRequest) (*domain.Completion, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	_, idx, err := k.pool.Next()
	if err != nil {
		return nil, err
	}
	out, callErr := k.oracles[idx].Complete(ctx, req)
	if callErr == nil || !isRateLimitError(callErr) {
		return out, callErr
	}

	k.pool.MarkCooldown(idx)
	_, idx2, err := k.pool.Next()
	if err != nil {
		return nil, fmt.Errorf("all keys in cooldown after rate limit: %w", callErr)
	}
	return k.oracles[idx2].Complete(ctx, req)
}

var _ domain.Oracle = (*KeyPoolOracle)(nil)
