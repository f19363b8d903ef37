package app

import (
	"sync"
	"time"
)

// DefaultStatusHistory is how many status messages are kept.
const DefaultStatusHistory = 50

// StatusMessage is one status bar message.
type StatusMessage struct {
	Text string
	Time time.Time
}

// StatusBar is the headless status bar. It implements service.StatusBar and
// is safe for use from any goroutine.
type StatusBar struct {
	mu        sync.Mutex
	history   []StatusMessage
	limit     int
	listeners map[int]func(StatusMessage)
	nextID    int
	now       func() time.Time
}

// NewStatusBar creates a status bar keeping limit messages.
func NewStatusBar(limit int) *StatusBar {
	if limit <= 0 {
		limit = DefaultStatusHistory
	}
	return &StatusBar{
		limit:     limit,
		listeners: make(map[int]func(StatusMessage)),
		now:       time.Now,
	}
}

// SetMessage shows msg and notifies listeners.
func (s *StatusBar) SetMessage(msg string) {
	s.mu.Lock()
	m := StatusMessage{Text: msg, Time: s.now()}
	s.history = append(s.history, m)
	if len(s.history) > s.limit {
		s.history = append(s.history[:0:0], s.history[len(s.history)-s.limit:]...)
	}
	listeners := make([]func(StatusMessage), 0, len(s.listeners))
	for _, fn := range s.listeners {
		listeners = append(listeners, fn)
	}
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(m)
	}
}

// Message returns the current message, empty when none was shown.
func (s *StatusBar) Message() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.history) == 0 {
		return ""
	}
	return s.history[len(s.history)-1].Text
}

// History returns the kept messages, oldest first.
func (s *StatusBar) History() []StatusMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]StatusMessage, len(s.history))
	copy(out, s.history)
	return out
}

// Listen registers fn for new messages and returns a function removing it.
func (s *StatusBar) Listen(fn func(StatusMessage)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}
