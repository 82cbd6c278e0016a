package inspection

import (
	"context"
	"sync"

	"github.com/autoerp-inspection/backend/internal/apperror"
)

// Guard runs before a transition. A non-nil error keeps the navigator where
// it is.
type Guard func(ctx context.Context) error

// Navigator walks an ordered sequence of count steps. Transitions are
// guarded and never overlap.
type Navigator struct {
	mu          sync.Mutex
	index       int
	count       int
	reachedLast bool
	busy        bool
	onLast      func()
}

// NewNavigator creates a navigator positioned on the first of count steps.
func NewNavigator(count int) *Navigator {
	return &Navigator{
		count:       count,
		reachedLast: count <= 1,
	}
}

// OnReachedLast registers fn to run the first time the last step is
// reached. If it was already reached, fn runs immediately.
func (n *Navigator) OnReachedLast(fn func()) {
	n.mu.Lock()
	n.onLast = fn
	reached := n.reachedLast
	n.mu.Unlock()

	if reached && fn != nil {
		fn()
	}
}

// Index returns the current position.
func (n *Navigator) Index() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.index
}

// Count returns the number of steps.
func (n *Navigator) Count() int {
	return n.count
}

func (n *Navigator) IsFirst() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.index == 0
}

func (n *Navigator) IsLast() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.index >= n.count-1
}

// ReachedLast reports whether the last step has been visited at least once.
func (n *Navigator) ReachedLast() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.reachedLast
}

// Busy reports whether a transition is in flight.
func (n *Navigator) Busy() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.busy
}

// Next moves forward one step after guard succeeds.
func (n *Navigator) Next(ctx context.Context, guard Guard) error {
	return n.move(ctx, 1, guard)
}

// Prev moves back one step after guard succeeds.
func (n *Navigator) Prev(ctx context.Context, guard Guard) error {
	return n.move(ctx, -1, guard)
}

func (n *Navigator) move(ctx context.Context, delta int, guard Guard) error {
	n.mu.Lock()
	if n.busy {
		n.mu.Unlock()
		return apperror.ErrBusy
	}
	target := n.index + delta
	if target < 0 || target >= n.count {
		n.mu.Unlock()
		return apperror.ErrBoundary
	}
	n.busy = true
	n.mu.Unlock()

	var err error
	if guard != nil {
		err = guard(ctx)
	}

	n.mu.Lock()
	n.busy = false
	if err != nil {
		n.mu.Unlock()
		return err
	}
	n.index = target
	fire := n.index == n.count-1 && !n.reachedLast
	if fire {
		n.reachedLast = true
	}
	cb := n.onLast
	n.mu.Unlock()

	if fire && cb != nil {
		cb()
	}
	return nil
}
