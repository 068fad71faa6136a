package bot

import (
	"fmt"
	"sync"
	"time"

	"stream-boost-bot/internal/conversation"
)

// Ограничение частоты команд по пользователю, в памяти процесса
type RateLimiter struct {
	mu       sync.Mutex
	lastCall map[int64]map[string]time.Time
	limits   map[string]time.Duration
	fallback time.Duration
	now      func() time.Time
}

func NewRateLimiter() *RateLimiter {
	return &RateLimiter{
		lastCall: make(map[int64]map[string]time.Time),
		limits: map[string]time.Duration{
			commandKey(conversation.Confirm{}):      3 * time.Second,
			commandKey(conversation.PayCrypto{}):    10 * time.Second,
			commandKey(conversation.CheckPayment{}): 5 * time.Second,
			commandKey(conversation.ShowProfile{}):  2 * time.Second,
			commandKey(conversation.Start{}):        2 * time.Second,
			commandKey(conversation.Text{}):         0,
		},
		fallback: 300 * time.Millisecond,
		now:      time.Now,
	}
}

func commandKey(cmd conversation.Command) string {
	return fmt.Sprintf("%T", cmd)
}

// IsLimited returns true if user is rate-limited for this command
func (r *RateLimiter) IsLimited(userID int64, cmd conversation.Command) bool {
	key := commandKey(cmd)
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	if r.lastCall[userID] == nil {
		r.lastCall[userID] = make(map[string]time.Time)
	}
	limit, ok := r.limits[key]
	if !ok {
		limit = r.fallback
	}
	last := r.lastCall[userID][key]
	if now.Sub(last) < limit {
		return true
	}
	r.lastCall[userID][key] = now
	return false
}

// Cleanup забывает пользователей, не писавших дольше maxAge
func (r *RateLimiter) Cleanup(maxAge time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cutoff := r.now().Add(-maxAge)
	for userID, calls := range r.lastCall {
		fresh := false
		for _, t := range calls {
			if t.After(cutoff) {
				fresh = true
				break
			}
		}
		if !fresh {
			delete(r.lastCall, userID)
		}
	}
}
