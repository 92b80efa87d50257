package composer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-pos/internal/catalog"
	"github.com/odyssey-erp/odyssey-pos/internal/invoicing"
)

// ReferenceLoader loads the reference data of an entry screen.
type ReferenceLoader interface {
	Load(ctx context.Context, kind invoicing.Kind) (*catalog.Snapshot, error)
}

// SessionGauge receives the number of open sessions.
type SessionGauge interface {
	SetSessions(n int)
}

// StoreConfig wires dependencies required by Store.
type StoreConfig struct {
	Catalog   ReferenceLoader
	Submitter invoicing.Submitter
	Printer   invoicing.Printer
	Screens   map[invoicing.Kind]invoicing.Config
	IdleTTL   time.Duration
	Scheduler invoicing.Scheduler
	Gauge     SessionGauge
	Location  *time.Location
	Logger    *slog.Logger
	Now       func() time.Time
}

// Store keeps composer sessions in memory.
type Store struct {
	catalog   ReferenceLoader
	submitter invoicing.Submitter
	printer   invoicing.Printer
	screens   map[invoicing.Kind]invoicing.Config
	idleTTL   time.Duration
	scheduler invoicing.Scheduler
	gauge     SessionGauge
	location  *time.Location
	logger    *slog.Logger
	now       func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewStore constructs a Store.
func NewStore(cfg StoreConfig) *Store {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	sched := cfg.Scheduler
	if sched == nil {
		sched = invoicing.TimerScheduler{}
	}
	ttl := cfg.IdleTTL
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &Store{
		catalog:   cfg.Catalog,
		submitter: cfg.Submitter,
		printer:   cfg.Printer,
		screens:   cfg.Screens,
		idleTTL:   ttl,
		scheduler: sched,
		gauge:     cfg.Gauge,
		location:  cfg.Location,
		logger:    logger,
		now:       now,
		sessions:  make(map[string]*Session),
	}
}

// Create opens a session for kind with freshly loaded reference data.
func (s *Store) Create(ctx context.Context, kind invoicing.Kind) (*Session, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: %q", catalog.ErrUnknownKind, kind)
	}
	if s.catalog == nil {
		return nil, fmt.Errorf("composer: catalog not configured")
	}
	snap, err := s.catalog.Load(ctx, kind)
	if err != nil {
		return nil, fmt.Errorf("composer: load catalog: %w", err)
	}
	cfg, ok := s.screens[kind]
	if !ok {
		cfg = invoicing.ConfigFor(kind)
	}

	created := s.now()
	sess := &Session{
		ID:        uuid.NewString(),
		Kind:      kind,
		CreatedAt: created,
		keymap:    invoicing.NewKeymap(),
	}
	sess.touch(created)
	sess.engine = invoicing.New(cfg, invoicing.Deps{
		Catalog:   snap,
		Submitter: s.submitter,
		Printer:   s.printer,
		Notifier:  invoicing.NotifierFunc(sess.notify),
		Scheduler: lockedScheduler{base: s.scheduler, session: sess},
		Keymap:    sess.keymap,
		Logger:    s.logger.With(slog.String("session", sess.ID)),
		Now:       s.now,
		Location:  s.location,
	})

	s.mu.Lock()
	s.sessions[sess.ID] = sess
	n := len(s.sessions)
	s.mu.Unlock()
	s.report(n)
	s.logger.Info("composer session opened", slog.String("session", sess.ID), slog.String("kind", string(kind)))
	return sess, nil
}

// Get returns the session and marks it as active.
func (s *Store) Get(id string) (*Session, error) {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	sess.touch(s.now())
	return sess, nil
}

// Delete closes and forgets the session.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	delete(s.sessions, id)
	n := len(s.sessions)
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	sess.close()
	s.report(n)
	return nil
}

// Len returns the number of open sessions.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Sweep closes sessions idle for longer than the idle TTL and returns how many
// were removed.
func (s *Store) Sweep() int {
	cutoff := s.now().Add(-s.idleTTL)

	s.mu.Lock()
	candidates := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		candidates = append(candidates, sess)
	}
	s.mu.Unlock()

	var stale []*Session
	for _, sess := range candidates {
		if sess.idleSince().Before(cutoff) {
			stale = append(stale, sess)
		}
	}
	if len(stale) == 0 {
		return 0
	}

	s.mu.Lock()
	expired := stale[:0]
	for _, sess := range stale {
		// A request may have touched it since the scan.
		if s.sessions[sess.ID] == sess && sess.idleSince().Before(cutoff) {
			delete(s.sessions, sess.ID)
			expired = append(expired, sess)
		}
	}
	n := len(s.sessions)
	s.mu.Unlock()
	stale = expired

	for _, sess := range stale {
		sess.close()
		s.logger.Info("composer session expired", slog.String("session", sess.ID))
	}
	if len(stale) > 0 {
		s.report(n)
	}
	return len(stale)
}

// Run sweeps idle sessions until ctx is done, then closes the rest.
func (s *Store) Run(ctx context.Context) {
	interval := s.idleTTL / 2
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.CloseAll()
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}

// CloseAll closes every session.
func (s *Store) CloseAll() {
	s.mu.Lock()
	all := s.sessions
	s.sessions = make(map[string]*Session)
	s.mu.Unlock()
	for _, sess := range all {
		sess.close()
	}
	s.report(0)
}

func (s *Store) report(n int) {
	if s.gauge != nil {
		s.gauge.SetSessions(n)
	}
}
