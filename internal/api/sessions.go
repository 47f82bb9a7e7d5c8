package api

import (
	"context"
	"sync"
	"time"

	"github.com/datawise/datawise/internal/auth"
	"github.com/datawise/datawise/internal/chat"
	"github.com/datawise/datawise/internal/conversation"
)

const DefaultMaxSessions = 100

// Session is one client conversation with an optional attached dataset.
// Callers hold mu for the whole request so a session handles one message at a time.
type Session struct {
	mu        sync.Mutex
	conv      *conversation.Context
	data      *chat.Data
	datasetID string
	owner     string
	createdAt time.Time
	lastUsed  time.Time
}

func (s *Session) ID() string {
	return s.conv.ID()
}

// SessionRegistry holds live sessions in memory, evicting the least recently
// used one once the limit is reached.
type SessionRegistry struct {
	options     conversation.Options
	maxSessions int
	now         func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewSessionRegistry(options conversation.Options, maxSessions int) *SessionRegistry {
	if maxSessions <= 0 {
		maxSessions = DefaultMaxSessions
	}
	now := options.Now
	if now == nil {
		now = time.Now
	}
	return &SessionRegistry{
		options:     options,
		maxSessions: maxSessions,
		now:         now,
		sessions:    map[string]*Session{},
	}
}

// Create starts a conversation and registers it. data may be nil. The session
// is owned by the authenticated client on ctx, if any.
func (r *SessionRegistry) Create(ctx context.Context, title string, datasetID string, data *chat.Data) *Session {
	conv := conversation.New(r.options)
	conv.Start(ctx, title)
	now := r.now()
	session := &Session{
		conv:      conv,
		data:      data,
		datasetID: datasetID,
		owner:     auth.ClientFromContext(ctx),
		createdAt: now,
		lastUsed:  now,
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for len(r.sessions) >= r.maxSessions {
		r.evictLocked()
	}
	r.sessions[session.ID()] = session
	return session
}

func (r *SessionRegistry) Get(id string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	session, ok := r.sessions[id]
	if ok {
		session.lastUsed = r.now()
	}
	return session, ok
}

// Remove unregisters the session and ends its conversation.
func (r *SessionRegistry) Remove(id string) bool {
	r.mu.Lock()
	session, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()
	if !ok {
		return false
	}
	session.mu.Lock()
	session.conv.End()
	session.mu.Unlock()
	return true
}

func (r *SessionRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

func (r *SessionRegistry) evictLocked() {
	oldestID := ""
	var oldest time.Time
	for id, session := range r.sessions {
		if oldestID == "" || session.lastUsed.Before(oldest) {
			oldestID, oldest = id, session.lastUsed
		}
	}
	delete(r.sessions, oldestID)
}
