package utils

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	stateStore   = map[string]time.Time{}
	stateStoreMu sync.Mutex
)

// NewState issues a fresh OAuth state token and remembers it for ttl.
func NewState(ttl time.Duration) string {
	state := uuid.NewString()
	SaveState(state, ttl)
	return state
}

// SaveState stores an OAuth state token with TTL to mitigate CSRF.
func SaveState(state string, ttl time.Duration) {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	if rc := GetRedis(); rc != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := rc.Set(ctx, "oauth:state:"+state, "1", ttl).Err(); err == nil {
			return
		}
	}
	stateStoreMu.Lock()
	stateStore[state] = time.Now().Add(ttl)
	stateStoreMu.Unlock()
}

// ConsumeState validates and removes a state token. Each state is accepted once.
func ConsumeState(state string) bool {
	if rc := GetRedis(); rc != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if v, err := rc.GetDel(ctx, "oauth:state:"+state).Result(); err == nil && v != "" {
			return true
		}
	}
	stateStoreMu.Lock()
	expiresAt, ok := stateStore[state]
	if ok {
		delete(stateStore, state)
	}
	stateStoreMu.Unlock()
	return ok && time.Now().Before(expiresAt)
}
