package session

import (
	"sync"
	"time"
)

// Reminders schedules at most one pending reminder per user. Scheduling a
// new reminder cancels the previous one for the same user.
type Reminders struct {
	mu     sync.Mutex
	timers map[int64]*time.Timer
}

func NewReminders() *Reminders {
	return &Reminders{timers: make(map[int64]*time.Timer)}
}

// Schedule installs fn to run after delay, replacing any pending reminder
// for the user.
func (r *Reminders) Schedule(userID int64, delay time.Duration, fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.timers[userID]; ok {
		t.Stop()
	}
	r.timers[userID] = time.AfterFunc(delay, func() {
		r.mu.Lock()
		delete(r.timers, userID)
		r.mu.Unlock()
		fn()
	})
}

// Cancel stops the pending reminder for the user, if any. Reports whether
// a reminder was pending.
func (r *Reminders) Cancel(userID int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.timers[userID]
	if !ok {
		return false
	}
	t.Stop()
	delete(r.timers, userID)
	return true
}

// Pending reports whether a reminder is scheduled for the user.
func (r *Reminders) Pending(userID int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.timers[userID]
	return ok
}

// StopAll cancels every pending reminder.
func (r *Reminders) StopAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, t := range r.timers {
		t.Stop()
		delete(r.timers, id)
	}
}
