package shared

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// BalanceLockKey builds redis keys for per (client, date) critical sections.
func BalanceLockKey(clientID int64, date string) string {
	return fmt.Sprintf("ledger:balance:%d:%s:lock", clientID, date)
}

// SweepLockKey guards the reconcile sweep so a single worker runs it at a time.
func SweepLockKey() string {
	return "ledger:sweep:lock"
}

// Mutex is a best-effort redis lock for cross-process critical sections.
// In-transaction serialization uses postgres advisory locks instead; this
// exists for background jobs that span many transactions.
type Mutex struct {
	client *redis.Client
	key    string
	token  string
	ttl    time.Duration
}

// NewMutex constructs a mutex for the given key.
func NewMutex(client *redis.Client, key, token string, ttl time.Duration) *Mutex {
	return &Mutex{client: client, key: key, token: token, ttl: ttl}
}

// TryLock attempts to acquire the lock without blocking.
func (m *Mutex) TryLock(ctx context.Context) (bool, error) {
	if m == nil || m.client == nil {
		return false, fmt.Errorf("shared: mutex not configured")
	}
	ok, err := m.client.SetNX(ctx, m.key, m.token, m.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("shared: acquire lock %s: %w", m.key, err)
	}
	return ok, nil
}

var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Unlock releases the lock when still held by this token.
func (m *Mutex) Unlock(ctx context.Context) error {
	if m == nil || m.client == nil {
		return nil
	}
	if err := unlockScript.Run(ctx, m.client, []string{m.key}, m.token).Err(); err != nil {
		return fmt.Errorf("shared: release lock %s: %w", m.key, err)
	}
	return nil
}
