package session

import (
	"sync"
	"time"
)

// Cursor sentinels. Any other cursor value is a question id from the catalog.
const (
	// CursorWelcome means the survey was started but the user has not yet
	// acknowledged the welcome screen.
	CursorWelcome = "@welcome"
	// CursorDone means the survey ran to completion.
	CursorDone = "@done"
)

// Session binds one Telegram user to one in-progress survey: its answer
// store, cursor and the metadata captured at start. State is volatile and
// lost on restart, which is fine for this bot.
type Session struct {
	UserID    int64
	Username  string
	LeadID    string
	UTM       map[string]string
	StartedAt time.Time

	// Cursor is the question id currently awaiting an answer, or a sentinel.
	Cursor string
	// Answers maps question id to the selected option labels. Only the
	// survey engine mutates it.
	Answers map[string][]string
}

// Registry owns all live sessions, keyed by user id. At most one session
// per user exists at a time.
type Registry struct {
	mu       sync.Mutex
	sessions map[int64]*Session
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[int64]*Session)}
}

// Get returns the live session for the user, if any.
func (r *Registry) Get(userID int64) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[userID]
	return s, ok
}

// GetOrCreate returns the live session for the user, creating an empty one
// if none exists.
func (r *Registry) GetOrCreate(userID int64) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[userID]; ok {
		return s
	}
	s := newSession(userID)
	r.sessions[userID] = s
	return s
}

// Reset discards any existing session for the user and installs a fresh one.
func (r *Registry) Reset(userID int64) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := newSession(userID)
	r.sessions[userID] = s
	return s
}

// Close tears the user's session down. Safe to call when no session exists.
func (r *Registry) Close(userID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, userID)
}

// Len reports the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

func newSession(userID int64) *Session {
	return &Session{
		UserID:  userID,
		Cursor:  CursorWelcome,
		Answers: make(map[string][]string),
	}
}
