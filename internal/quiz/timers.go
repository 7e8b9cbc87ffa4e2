package quiz

import (
	"sync"
	"time"
)

// Stopper cancels a scheduled callback. *time.Timer implements it.
type Stopper interface {
	Stop() bool
}

// Scheduler runs f once after d. Tests substitute a manual implementation.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Stopper
}

type wallClock struct{}

func (wallClock) AfterFunc(d time.Duration, f func()) Stopper { return time.AfterFunc(d, f) }

// WallClock schedules on real time.
var WallClock Scheduler = wallClock{}

type timerSlot struct {
	token uint64
	stop  Stopper
}

// timers keeps at most one armed callback per user. Expiry does not touch the
// session: it posts the event (stamped with its token) back into the user's mailbox.
type timers struct {
	mu    sync.Mutex
	sched Scheduler
	slots map[string]timerSlot
	seq   uint64
	post  func(userID string, ev event)
}

func newTimers(sched Scheduler, post func(userID string, ev event)) *timers {
	if sched == nil {
		sched = WallClock
	}
	return &timers{sched: sched, slots: make(map[string]timerSlot), post: post}
}

// arm cancels whatever is armed for userID and schedules ev after d.
func (t *timers) arm(userID string, d time.Duration, ev event) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	if old, ok := t.slots[userID]; ok {
		old.stop.Stop()
	}
	t.seq++
	tok := t.seq
	ev.token = tok
	stop := t.sched.AfterFunc(d, func() { t.expire(userID, ev) })
	t.slots[userID] = timerSlot{token: tok, stop: stop}
	return tok
}

func (t *timers) expire(userID string, ev event) {
	t.mu.Lock()
	if cur, ok := t.slots[userID]; ok && cur.token == ev.token {
		delete(t.slots, userID)
	}
	t.mu.Unlock()
	// stale events are still posted; the handler compares tokens
	t.post(userID, ev)
}

func (t *timers) cancel(userID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if cur, ok := t.slots[userID]; ok {
		cur.stop.Stop()
		delete(t.slots, userID)
	}
}

func (t *timers) armed(userID string) (uint64, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	cur, ok := t.slots[userID]
	return cur.token, ok
}

func (t *timers) stopAll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for id, cur := range t.slots {
		cur.stop.Stop()
		delete(t.slots, id)
	}
}
