package inspection

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/autoerp-inspection/backend/internal/apperror"
)

// NoticeLevel grades a user-visible notice.
type NoticeLevel string

const (
	NoticeSuccess NoticeLevel = "success"
	NoticeWarning NoticeLevel = "warning"
	NoticeError   NoticeLevel = "error"
)

// Notice is a transient, non-blocking message for the user.
type Notice struct {
	Level   NoticeLevel `json:"level"`
	Message string      `json:"message"`
	At      time.Time   `json:"at"`
}

// Session is one open inspection of an order. Mutations never overlap: a
// second mutation while one is in flight fails with ErrBusy.
type Session struct {
	ID        string
	OrderID   int64
	CreatedAt time.Time

	mu       sync.Mutex
	orch     *Orchestrator
	logger   *zap.Logger
	lastUsed atomic.Int64

	noticeMu sync.Mutex
	notices  []Notice
}

func newSession(id string, orderID int64, deps Deps) *Session {
	s := &Session{
		ID:        id,
		OrderID:   orderID,
		CreatedAt: time.Now(),
		logger:    deps.Logger.With(zap.String("session_id", id), zap.Int64("order_id", orderID)),
	}
	s.orch = NewOrchestrator(orderID, deps, s.push)
	s.touch()
	return s
}

func (s *Session) touch() {
	s.lastUsed.Store(time.Now().UnixNano())
}

// LastUsed returns when the session was last read or mutated.
func (s *Session) LastUsed() time.Time {
	return time.Unix(0, s.lastUsed.Load())
}

// Do runs fn against the orchestrator under the session lock. Failures are
// logged and queued as error notices.
func (s *Session) Do(ctx context.Context, fn func(o *Orchestrator) error) error {
	if !s.mu.TryLock() {
		return apperror.ErrBusy
	}
	defer s.mu.Unlock()
	s.touch()

	if err := fn(s.orch); err != nil {
		s.fail(err)
		return err
	}
	return nil
}

// SessionState is the snapshot returned to clients.
type SessionState struct {
	ID        string            `json:"id"`
	CreatedAt time.Time         `json:"created_at"`
	State     OrchestratorState `json:"state"`
	Notices   []Notice          `json:"notices"`
}

// Snapshot returns the current state and drains the notice queue.
func (s *Session) Snapshot() SessionState {
	s.touch()
	s.mu.Lock()
	st := s.orch.State()
	s.mu.Unlock()

	return SessionState{
		ID:        s.ID,
		CreatedAt: s.CreatedAt,
		State:     st,
		Notices:   s.Drain(),
	}
}

// Drain returns and clears the queued notices.
func (s *Session) Drain() []Notice {
	s.noticeMu.Lock()
	defer s.noticeMu.Unlock()
	out := s.notices
	s.notices = nil
	if out == nil {
		out = []Notice{}
	}
	return out
}

func (s *Session) push(level NoticeLevel, message string) {
	s.noticeMu.Lock()
	s.notices = append(s.notices, Notice{Level: level, Message: message, At: time.Now()})
	s.noticeMu.Unlock()
}

func (s *Session) fail(err error) {
	if errors.Is(err, apperror.ErrBusy) || errors.Is(err, apperror.ErrBoundary) {
		s.logger.Debug("Transition rejected", zap.Error(err))
		return
	}
	if apperror.IsValidation(err) {
		s.logger.Info("Validation failed", zap.Error(err))
	} else {
		s.logger.Error("Inspection operation failed", zap.Error(err))
	}
	s.push(NoticeError, UserMessage(err))
}

// UserMessage picks the text shown to the user for err. The server's
// detail message is preferred when there is one.
func UserMessage(err error) string {
	var netErr *apperror.NetworkError
	if errors.As(err, &netErr) && netErr.Detail != "" {
		return netErr.Detail
	}
	var v *apperror.ValidationError
	if errors.As(err, &v) {
		return v.Error()
	}
	return err.Error()
}
