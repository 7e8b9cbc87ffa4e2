package quiz

import (
	"sync"
	"time"
)

type eventKind int

const (
	eventText eventKind = iota
	eventTimeout
	eventNextQuestion
)

func (k eventKind) String() string {
	switch k {
	case eventTimeout:
		return "timeout"
	case eventNextQuestion:
		return "next_question"
	default:
		return "text"
	}
}

type event struct {
	kind eventKind
	room string
	text string

	// timer events only
	token      uint64
	gameID     string
	questionID string

	at time.Time
}

// mailboxes runs one worker per user with pending events. Events for the same
// user are handled one at a time in arrival order; different users run in parallel.
// A worker exits when its queue drains and is recreated by the next post.
type mailboxes struct {
	mu      sync.Mutex
	idle    *sync.Cond
	queues  map[string][]event
	pending int
	closed  bool
	workers sync.WaitGroup

	handle func(userID string, ev event)
}

func newMailboxes(handle func(userID string, ev event)) *mailboxes {
	m := &mailboxes{queues: make(map[string][]event), handle: handle}
	m.idle = sync.NewCond(&m.mu)
	return m
}

// post enqueues ev and reports false once the mailboxes are closed.
func (m *mailboxes) post(userID string, ev event) bool {
	if ev.at.IsZero() {
		ev.at = time.Now()
	}
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return false
	}
	m.pending++
	q, running := m.queues[userID]
	m.queues[userID] = append(q, ev)
	if !running {
		m.workers.Add(1)
	}
	m.mu.Unlock()

	if !running {
		go m.run(userID)
	}
	return true
}

func (m *mailboxes) run(userID string) {
	defer m.workers.Done()
	for {
		m.mu.Lock()
		q := m.queues[userID]
		if len(q) == 0 {
			delete(m.queues, userID)
			m.mu.Unlock()
			return
		}
		ev := q[0]
		m.queues[userID] = q[1:]
		m.mu.Unlock()

		m.handle(userID, ev)

		m.mu.Lock()
		m.pending--
		if m.pending == 0 {
			m.idle.Broadcast()
		}
		m.mu.Unlock()
	}
}

// drain blocks until every posted event has been handled.
func (m *mailboxes) drain() {
	m.mu.Lock()
	for m.pending > 0 {
		m.idle.Wait()
	}
	m.mu.Unlock()
}

// close rejects further posts and waits for running workers to finish their queues.
func (m *mailboxes) close() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	m.workers.Wait()
}

func (m *mailboxes) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pending
}
