package inspection

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/autoerp-inspection/backend/internal/apperror"
)

// Registry holds the open sessions.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	deps     Deps
	newID    func() string
}

// NewRegistry creates an empty registry.
func NewRegistry(deps Deps) *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		deps:     deps,
		newID:    uuid.NewString,
	}
}

// Open starts a session for orderID, loading its inventory types and the
// first step.
func (r *Registry) Open(ctx context.Context, orderID int64) (*Session, error) {
	if orderID <= 0 {
		return nil, apperror.Invalid("order_id", "must be a positive id")
	}

	s := newSession(r.newID(), orderID, r.deps)
	if err := s.orch.Load(ctx); err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.sessions[s.ID] = s
	r.mu.Unlock()

	r.deps.Logger.Info("Opened inspection session",
		zap.String("session_id", s.ID),
		zap.Int64("order_id", orderID),
	)
	return s, nil
}

// Get returns an open session.
func (r *Registry) Get(id string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, apperror.ErrNotFound
	}
	return s, nil
}

// Close saves the mounted step and forgets the session. A failed save
// keeps the session open.
func (r *Registry) Close(ctx context.Context, id string) error {
	s, err := r.Get(id)
	if err != nil {
		return err
	}
	if err := s.Do(ctx, func(o *Orchestrator) error {
		return o.Finish(ctx)
	}); err != nil {
		return err
	}

	r.mu.Lock()
	delete(r.sessions, id)
	r.mu.Unlock()

	r.deps.Logger.Info("Closed inspection session", zap.String("session_id", id))
	return nil
}

// Len returns the number of open sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Sweep forgets sessions idle since before now minus maxIdle. A session
// with a mutation in flight is kept. Unsaved edits of a swept session are
// lost. It returns how many sessions were removed.
func (r *Registry) Sweep(now time.Time, maxIdle time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for id, s := range r.sessions {
		if now.Sub(s.LastUsed()) < maxIdle {
			continue
		}
		if !s.mu.TryLock() {
			continue
		}
		delete(r.sessions, id)
		s.mu.Unlock()
		removed++

		r.deps.Logger.Info("Expired idle inspection session",
			zap.String("session_id", id),
			zap.Int64("order_id", s.OrderID),
			zap.Time("last_used", s.LastUsed()),
		)
	}
	return removed
}

// RunSweeper calls Sweep every interval until ctx is done.
func (r *Registry) RunSweeper(ctx context.Context, interval, maxIdle time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case now := <-ticker.C:
			r.Sweep(now, maxIdle)
		case <-ctx.Done():
			return
		}
	}
}
