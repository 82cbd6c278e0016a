package persistence

import (
	"context"
	"fmt"
	"math"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/autoerp-inspection/backend/internal/apperror"
	"github.com/autoerp-inspection/backend/internal/models"
)

// coordinateTolerance absorbs float round-trips through the API when
// matching created points to their request entries.
const coordinateTolerance = 1e-3

// PointStore defines the damage-point operations of the ERP API.
type PointStore interface {
	// CreateDamagePoints creates points in one batch and returns them with
	// server ids, in request order.
	CreateDamagePoints(ctx context.Context, orderID int64, view models.ViewKey, points []models.DamagePoint) ([]models.DamagePoint, error)

	// UpdateDamagePoint replaces a persisted point.
	UpdateDamagePoint(ctx context.Context, orderID int64, point models.DamagePoint) error

	// DeleteDamagePoint removes a persisted point.
	DeleteDamagePoint(ctx context.Context, id int64) error
}

// AnswerStore defines the checklist-answer operations of the ERP API.
type AnswerStore interface {
	// UpsertItemAnswers writes the whole batch keyed by item id.
	UpsertItemAnswers(ctx context.Context, orderID int64, answers map[int64]models.ItemAnswer) error
}

// ViewResult is the outcome of a successful view save.
type ViewResult struct {
	// Points is the reconciled draft: pruned of empty points and carrying
	// server ids for everything that was created.
	Points []models.DamagePoint
	Plan   Plan
}

// Engine executes save plans.
type Engine struct {
	points  PointStore
	answers AnswerStore
	logger  *zap.Logger
}

// NewEngine creates a persistence engine.
func NewEngine(points PointStore, answers AnswerStore, logger *zap.Logger) *Engine {
	return &Engine{
		points:  points,
		answers: answers,
		logger:  logger,
	}
}

// SaveView persists the difference between draft and baseline for one view.
//
// Creates, updates and deletes run concurrently and are awaited as a whole.
// On any failure the error is returned and the caller must keep its
// baseline; on success the caller replaces both draft and baseline with
// deep copies of the returned points.
//
// When the batch create succeeded but another operation failed, the
// returned result still carries the reconciled points alongside the error.
// The caller should adopt them as its draft so a retry patches those points
// instead of creating them again.
func (e *Engine) SaveView(ctx context.Context, orderID int64, view models.ViewKey, draft, baseline []models.DamagePoint) (ViewResult, error) {
	plan := Compute(draft, baseline)
	if plan.Empty() {
		return ViewResult{Points: plan.Pruned, Plan: plan}, nil
	}

	// Siblings are not cancelled on failure: a create that reaches the
	// server must report its ids.
	var (
		created []models.DamagePoint
		g       errgroup.Group
	)

	if len(plan.Creates) > 0 {
		g.Go(func() error {
			out, err := e.points.CreateDamagePoints(ctx, orderID, view, plan.Creates)
			if err != nil {
				return fmt.Errorf("failed to create %d damage points: %w", len(plan.Creates), err)
			}
			created = out
			return nil
		})
	}
	for _, p := range plan.Updates {
		p := p
		g.Go(func() error {
			if err := e.points.UpdateDamagePoint(ctx, orderID, p); err != nil {
				return fmt.Errorf("failed to update damage point %d: %w", *p.ServerID, err)
			}
			return nil
		})
	}
	for _, id := range plan.Deletes {
		id := id
		g.Go(func() error {
			if err := e.points.DeleteDamagePoint(ctx, id); err != nil {
				return fmt.Errorf("failed to delete damage point %d: %w", id, err)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		e.logger.Error("Failed to save view",
			zap.Int64("order_id", orderID),
			zap.String("view", string(view)),
			zap.Error(err),
		)
		if created == nil {
			return ViewResult{}, err
		}
		points, rerr := reconcile(plan.Pruned, plan.Creates, created)
		if rerr != nil {
			return ViewResult{}, err
		}
		e.logger.Info("Kept server ids of created points after partial failure",
			zap.Int64("order_id", orderID),
			zap.String("view", string(view)),
			zap.Int("created", len(created)),
		)
		return ViewResult{Points: points, Plan: plan}, err
	}

	points, err := reconcile(plan.Pruned, plan.Creates, created)
	if err != nil {
		e.logger.Error("Create response could not be correlated",
			zap.Int64("order_id", orderID),
			zap.String("view", string(view)),
			zap.Error(err),
		)
		return ViewResult{}, err
	}

	e.logger.Info("Saved view",
		zap.Int64("order_id", orderID),
		zap.String("view", string(view)),
		zap.Int("created", len(plan.Creates)),
		zap.Int("updated", len(plan.Updates)),
		zap.Int("deleted", len(plan.Deletes)),
	)
	return ViewResult{Points: points, Plan: plan}, nil
}

// DeletePoint removes one persisted point immediately.
func (e *Engine) DeletePoint(ctx context.Context, id int64) error {
	if err := e.points.DeleteDamagePoint(ctx, id); err != nil {
		e.logger.Error("Failed to delete damage point", zap.Int64("id", id), zap.Error(err))
		return fmt.Errorf("failed to delete damage point %d: %w", id, err)
	}
	e.logger.Info("Deleted damage point", zap.Int64("id", id))
	return nil
}

// SaveAnswers upserts the non-empty answers of a generic checklist as one
// batch. Nothing is sent when the batch equals the baseline. The returned
// map is the new baseline.
func (e *Engine) SaveAnswers(ctx context.Context, orderID int64, draft, baseline map[int64]models.ItemAnswer) (map[int64]models.ItemAnswer, bool, error) {
	plan := PlanAnswers(draft, baseline)
	if !plan.Changed || len(plan.Batch) == 0 {
		return plan.Batch, false, nil
	}

	if err := e.answers.UpsertItemAnswers(ctx, orderID, plan.Batch); err != nil {
		e.logger.Error("Failed to upsert checklist answers",
			zap.Int64("order_id", orderID),
			zap.Int("count", len(plan.Batch)),
			zap.Error(err),
		)
		return nil, false, fmt.Errorf("failed to save checklist answers: %w", err)
	}

	e.logger.Info("Saved checklist answers", zap.Int64("order_id", orderID), zap.Int("count", len(plan.Batch)))
	return plan.Batch, true, nil
}

// reconcile merges server ids into the id-less entries of pruned. The
// create response carries no correlation token, so entries are matched by
// position and checked against their coordinates.
func reconcile(pruned, requested, created []models.DamagePoint) ([]models.DamagePoint, error) {
	if len(created) != len(requested) {
		return nil, &apperror.CorrelationError{Requested: len(requested), Returned: len(created)}
	}
	for i := range requested {
		switch {
		case created[i].ServerID == nil:
			return nil, &apperror.CorrelationError{Requested: len(requested), Returned: len(created), Index: i, Reason: "missing id"}
		case !near(created[i].X, requested[i].X) || !near(created[i].Y, requested[i].Y):
			return nil, &apperror.CorrelationError{
				Requested: len(requested),
				Returned:  len(created),
				Index:     i,
				Reason:    fmt.Sprintf("coordinates (%g, %g) differ from (%g, %g)", created[i].X, created[i].Y, requested[i].X, requested[i].Y),
			}
		}
	}

	out := models.ClonePoints(pruned)
	next := 0
	for i := range out {
		if out[i].ServerID != nil {
			continue
		}
		out[i].ServerID = models.Ptr(*created[next].ServerID)
		next++
	}
	return out, nil
}

func near(a, b float64) bool {
	return math.Abs(a-b) <= coordinateTolerance
}
