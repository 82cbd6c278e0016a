package inspection

import (
	"context"
	"fmt"
	"sort"

	"github.com/autoerp-inspection/backend/internal/apperror"
	"github.com/autoerp-inspection/backend/internal/models"
)

// Orchestrator walks the active inventory types of one order, mounting the
// matching step for each. Moving on saves the mounted step first; moving
// forward also requires it to be complete.
type Orchestrator struct {
	orderID   int64
	deps      Deps
	notify    Notify
	types     []models.InventoryType
	steps     map[int64]Step
	completed map[int64]bool
	nav       *Navigator
}

// NewOrchestrator creates an orchestrator for orderID. Call Load before use.
func NewOrchestrator(orderID int64, deps Deps, notify Notify) *Orchestrator {
	return &Orchestrator{
		orderID:   orderID,
		deps:      deps,
		notify:    notify,
		steps:     make(map[int64]Step),
		completed: make(map[int64]bool),
		nav:       NewNavigator(0),
	}
}

// Load fetches the active inventory types, ordered by position, and mounts
// the first one.
func (o *Orchestrator) Load(ctx context.Context) error {
	all, err := o.deps.Catalog.InventoryTypes(ctx)
	if err != nil {
		return fmt.Errorf("failed to load inventory types: %w", err)
	}

	var active []models.InventoryType
	for _, t := range all {
		if t.Active {
			active = append(active, t)
		}
	}
	if len(active) == 0 {
		return apperror.Invalid("inventory_types", "no active inventory types configured")
	}
	sort.SliceStable(active, func(i, j int) bool {
		return active[i].Position < active[j].Position
	})

	o.types = active
	o.nav = NewNavigator(len(active))
	_, err = o.mount(ctx, 0)
	return err
}

// mount returns the cached step for index i, creating and loading it on
// first use. A step that fails to load is not cached.
func (o *Orchestrator) mount(ctx context.Context, i int) (Step, error) {
	t := o.types[i]
	if s, ok := o.steps[t.ID]; ok {
		return s, nil
	}

	s := newStep(o.orderID, t, o.deps, o.notify)
	if err := s.Load(ctx); err != nil {
		return nil, err
	}
	s.OnCompletion(func(done bool) {
		o.completed[t.ID] = done
	})
	o.steps[t.ID] = s
	return s, nil
}

// Current returns the mounted step.
func (o *Orchestrator) Current() Step {
	if len(o.types) == 0 {
		return nil
	}
	return o.steps[o.types[o.nav.Index()].ID]
}

// Bodywork returns the mounted step when it is a bodywork step.
func (o *Orchestrator) Bodywork() (*BodyworkStep, error) {
	if s, ok := o.Current().(*BodyworkStep); ok {
		return s, nil
	}
	return nil, apperror.Invalid("step", "current step is not a bodywork inspection")
}

// Generic returns the mounted step when it is a generic checklist.
func (o *Orchestrator) Generic() (*GenericStep, error) {
	if s, ok := o.Current().(*GenericStep); ok {
		return s, nil
	}
	return nil, apperror.Invalid("step", "current step is not a checklist")
}

// Next saves the current step and mounts the following one.
func (o *Orchestrator) Next(ctx context.Context) error {
	return o.nav.Next(ctx, func(ctx context.Context) error {
		cur := o.Current()
		if !cur.Complete() {
			return apperror.Invalid("step", "%s is not complete yet", cur.InventoryType().Name)
		}
		if err := cur.SaveStep(ctx); err != nil {
			return err
		}
		_, err := o.mount(ctx, o.nav.Index()+1)
		return err
	})
}

// Prev saves the current step and mounts the previous one.
func (o *Orchestrator) Prev(ctx context.Context) error {
	return o.nav.Prev(ctx, func(ctx context.Context) error {
		if err := o.Current().SaveStep(ctx); err != nil {
			return err
		}
		_, err := o.mount(ctx, o.nav.Index()-1)
		return err
	})
}

// Finish saves the mounted step on the way out.
func (o *Orchestrator) Finish(ctx context.Context) error {
	cur := o.Current()
	if cur == nil {
		return nil
	}
	return cur.SaveStep(ctx)
}

// IsLastInventory reports whether the last inventory type is mounted.
func (o *Orchestrator) IsLastInventory() bool {
	return o.nav.IsLast()
}

// Complete reports whether every inventory type reported completion.
func (o *Orchestrator) Complete() bool {
	if len(o.types) == 0 {
		return false
	}
	for _, t := range o.types {
		if !o.completed[t.ID] {
			return false
		}
	}
	return true
}

// OrchestratorState is the snapshot returned by the inspection API.
type OrchestratorState struct {
	OrderID         int64                  `json:"order_id"`
	InventoryTypes  []models.InventoryType `json:"inventory_types"`
	Index           int                    `json:"index"`
	IsFirst         bool                   `json:"is_first"`
	IsLastInventory bool                   `json:"is_last_inventory"`
	Complete        bool                   `json:"complete"`
	Step            *StepState             `json:"step,omitempty"`
}

func (o *Orchestrator) State() OrchestratorState {
	st := OrchestratorState{
		OrderID:         o.orderID,
		InventoryTypes:  append([]models.InventoryType(nil), o.types...),
		Index:           o.nav.Index(),
		IsFirst:         o.nav.IsFirst(),
		IsLastInventory: o.IsLastInventory(),
		Complete:        o.Complete(),
	}
	if cur := o.Current(); cur != nil {
		s := cur.State()
		st.Step = &s
	}
	return st
}
