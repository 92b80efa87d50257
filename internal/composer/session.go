package composer

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/odyssey-erp/odyssey-pos/internal/invoicing"
)

var (
	// ErrSessionNotFound is returned for unknown or swept sessions.
	ErrSessionNotFound = errors.New("composer: session not found")
	// ErrSessionClosed is returned when a request races the sweeper.
	ErrSessionClosed = errors.New("composer: session closed")
)

// Notice is a user-facing message queued until the next response.
type Notice struct {
	Kind    invoicing.NoticeKind `json:"kind"`
	Message string               `json:"message"`
}

// Session hosts one invoice engine. Every engine call, including deferred
// callbacks, runs under mu. lastSeen is kept outside mu so the sweeper never
// waits on a session that is busy committing.
type Session struct {
	ID        string
	Kind      invoicing.Kind
	CreatedAt time.Time

	mu       sync.Mutex
	engine   *invoicing.Engine
	keymap   *invoicing.Keymap
	notices  []Notice
	lastSeen atomic.Int64
	closed   bool
}

// Do runs fn against the engine and returns the resulting view with the notices
// queued so far. The view is built even when fn fails so the screen can show the
// errors it produced.
func (s *Session) Do(fn func(e *invoicing.Engine) error) (View, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return View{}, ErrSessionClosed
	}
	var err error
	if fn != nil {
		err = fn(s.engine)
	}
	return s.view(), err
}

// Key offers ev to the session's keyboard listeners.
func (s *Session) Key(ctx context.Context, ev invoicing.KeyEvent) (bool, View, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, View{}, ErrSessionClosed
	}
	handled, err := s.keymap.Dispatch(ctx, ev)
	return handled, s.view(), err
}

// Listeners returns the number of registered keyboard listeners.
func (s *Session) Listeners() int {
	return s.keymap.Len()
}

func (s *Session) notify(kind invoicing.NoticeKind, message string) {
	s.notices = append(s.notices, Notice{Kind: kind, Message: message})
}

func (s *Session) drainNotices() []Notice {
	out := s.notices
	s.notices = nil
	if out == nil {
		out = []Notice{}
	}
	return out
}

func (s *Session) touch(now time.Time) {
	s.lastSeen.Store(now.UnixNano())
}

func (s *Session) idleSince() time.Time {
	return time.Unix(0, s.lastSeen.Load())
}

func (s *Session) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.engine.Close()
}

// lockedScheduler runs deferred engine callbacks under the session lock and drops
// them once the session is closed.
type lockedScheduler struct {
	base    invoicing.Scheduler
	session *Session
}

func (l lockedScheduler) AfterFunc(d time.Duration, f func()) func() bool {
	return l.base.AfterFunc(d, func() {
		l.session.mu.Lock()
		defer l.session.mu.Unlock()
		if l.session.closed {
			return
		}
		f()
	})
}
