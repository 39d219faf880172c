package memory

import (
	"time"

	"github.com/patrickmn/go-cache"
)

// SessionState is the in-flight working state of a live chat session:
// the model and retrieval toggle last requested over the socket. It is
// not persisted, a reconnecting client re-establishes it with its next
// frame.
type SessionState struct {
	SessionID string
	Model     string
	UseRAG    bool
	LastSeen  time.Time
}

type SessionRepository struct {
	cache *cache.Cache
}

func NewSessionRepository() *SessionRepository {
	// Create a cache with a default expiration time of 1 hour, and which
	// purges expired items every 10 minutes
	c := cache.New(1*time.Hour, 10*time.Minute)
	return &SessionRepository{
		cache: c,
	}
}

func (r *SessionRepository) Save(state *SessionState) {
	state.LastSeen = time.Now()
	r.cache.Set(state.SessionID, state, cache.DefaultExpiration)
}

func (r *SessionRepository) Get(sessionID string) (*SessionState, bool) {
	if x, found := r.cache.Get(sessionID); found {
		return x.(*SessionState), true
	}
	return nil, false
}

func (r *SessionRepository) Delete(sessionID string) {
	r.cache.Delete(sessionID)
}
