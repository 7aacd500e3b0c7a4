package session

import (
	"testing"
	"time"
)

func TestRegistryLifecycle(t *testing.T) {
	r := NewRegistry()

	if _, ok := r.Get(1); ok {
		t.Fatalf("empty registry returned a session")
	}

	s := r.GetOrCreate(1)
	if s.UserID != 1 || s.Cursor != CursorWelcome {
		t.Fatalf("unexpected fresh session: %+v", s)
	}
	if again := r.GetOrCreate(1); again != s {
		t.Fatalf("GetOrCreate created a second session for the same user")
	}
	if r.Len() != 1 {
		t.Fatalf("expected 1 live session, got %d", r.Len())
	}

	s.Answers["q1"] = []string{"A"}
	fresh := r.Reset(1)
	if fresh == s {
		t.Fatalf("Reset returned the old session")
	}
	if len(fresh.Answers) != 0 || fresh.Cursor != CursorWelcome {
		t.Fatalf("Reset did not clear state: %+v", fresh)
	}

	r.Close(1)
	if _, ok := r.Get(1); ok {
		t.Fatalf("session survived Close")
	}
	r.Close(1) // closing twice is fine
}

func TestRegistryIsolatesUsers(t *testing.T) {
	r := NewRegistry()
	a := r.GetOrCreate(1)
	b := r.GetOrCreate(2)

	a.Answers["q1"] = []string{"A"}
	if len(b.Answers) != 0 {
		t.Fatalf("answer leaked across users")
	}

	r.Reset(1)
	if got, _ := r.Get(2); got != b {
		t.Fatalf("reset of one user touched another")
	}
}

func TestReminderFires(t *testing.T) {
	r := NewReminders()
	fired := make(chan struct{})

	r.Schedule(1, 10*time.Millisecond, func() { close(fired) })

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatalf("reminder never fired")
	}
	if r.Pending(1) {
		t.Fatalf("fired reminder still pending")
	}
}

func TestReminderReplacesPrevious(t *testing.T) {
	r := NewReminders()
	fired := make(chan string, 2)

	r.Schedule(1, 20*time.Millisecond, func() { fired <- "first" })
	r.Schedule(1, 40*time.Millisecond, func() { fired <- "second" })

	select {
	case got := <-fired:
		if got != "second" {
			t.Fatalf("replaced reminder fired: %s", got)
		}
	case <-time.After(time.Second):
		t.Fatalf("reminder never fired")
	}

	select {
	case got := <-fired:
		t.Fatalf("more than one reminder fired: %s", got)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestReminderCancel(t *testing.T) {
	r := NewReminders()
	fired := make(chan struct{}, 1)

	r.Schedule(1, 20*time.Millisecond, func() { fired <- struct{}{} })
	if !r.Cancel(1) {
		t.Fatalf("Cancel found nothing to cancel")
	}
	if r.Cancel(1) {
		t.Fatalf("second Cancel reported a pending reminder")
	}

	select {
	case <-fired:
		t.Fatalf("cancelled reminder fired")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestRemindersPerUser(t *testing.T) {
	r := NewReminders()
	fired := make(chan int64, 2)

	r.Schedule(1, 10*time.Millisecond, func() { fired <- 1 })
	r.Schedule(2, 10*time.Millisecond, func() { fired <- 2 })

	seen := map[int64]bool{}
	for i := 0; i < 2; i++ {
		select {
		case id := <-fired:
			seen[id] = true
		case <-time.After(time.Second):
			t.Fatalf("expected both reminders to fire, saw %v", seen)
		}
	}
	if !seen[1] || !seen[2] {
		t.Fatalf("expected reminders for both users, saw %v", seen)
	}
}
