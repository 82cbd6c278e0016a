package inspection

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/autoerp-inspection/backend/internal/apperror"
	"github.com/autoerp-inspection/backend/internal/capture"
	"github.com/autoerp-inspection/backend/internal/models"
	"github.com/autoerp-inspection/backend/internal/photo"
)

// BodyworkStep annotates damage over the five silhouette views. It is
// complete once the last view has been reached.
type BodyworkStep struct {
	orderID  int64
	invType  models.InventoryType
	deps     Deps
	notify   Notify
	logger   *zap.Logger
	editor   *capture.Editor
	boards   []*capture.Board
	baseline map[models.ViewKey][]models.DamagePoint
	nav      *Navigator
	onDone   func(bool)
}

func newBodyworkStep(orderID int64, t models.InventoryType, deps Deps, notify Notify) *BodyworkStep {
	s := &BodyworkStep{
		orderID:  orderID,
		invType:  t,
		deps:     deps,
		notify:   notify,
		logger:   deps.Logger.With(zap.Int64("order_id", orderID), zap.String("inventory_type", t.Name)),
		editor:   capture.NewEditor(nil),
		baseline: make(map[models.ViewKey][]models.DamagePoint),
		nav:      NewNavigator(len(models.BodyViews)),
	}
	for _, v := range models.BodyViews {
		s.boards = append(s.boards, capture.NewBoard(v, nil))
	}
	s.nav.OnReachedLast(func() {
		if s.onDone != nil {
			s.onDone(true)
		}
	})
	return s
}

func (s *BodyworkStep) Kind() models.InventoryKind {
	return models.KindBodywork
}

func (s *BodyworkStep) InventoryType() models.InventoryType {
	return s.invType
}

// Load fetches the damage-type taxonomy and the order's existing points
// concurrently and seeds one board per view.
func (s *BodyworkStep) Load(ctx context.Context) error {
	var (
		types  []models.DamageType
		points []models.DamagePoint
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		types, err = s.deps.Catalog.DamageTypes(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		points, err = s.deps.Records.DamagePoints(gctx, s.orderID)
		return err
	})
	if err := g.Wait(); err != nil {
		return fmt.Errorf("failed to load bodywork inspection: %w", err)
	}

	byView := make(map[models.ViewKey][]models.DamagePoint)
	for _, p := range points {
		if !p.View.Valid() {
			s.logger.Warn("Skipping damage point with unknown view",
				zap.String("view", string(p.View)),
			)
			continue
		}
		byView[p.View] = append(byView[p.View], p)
	}

	s.editor = capture.NewEditor(types)
	for i, v := range models.BodyViews {
		s.boards[i] = capture.NewBoard(v, byView[v.Key])
		s.baseline[v.Key] = s.boards[i].Points()
	}

	s.logger.Info("Loaded bodywork inspection",
		zap.Int("damage_types", len(types)),
		zap.Int("points", len(points)),
	)
	return nil
}

func (s *BodyworkStep) board() *capture.Board {
	return s.boards[s.nav.Index()]
}

// Click places or selects a point on the current view.
func (s *BodyworkStep) Click(clientX, clientY float64, r capture.Rect) (capture.ClickResult, error) {
	return s.board().Click(clientX, clientY, r)
}

// Select moves the selection on the current view.
func (s *BodyworkStep) Select(localID string) error {
	_, err := s.board().Select(localID)
	return err
}

// UpdatePoint edits a point's type or notes.
func (s *BodyworkStep) UpdatePoint(localID string, patch capture.PointPatch) (models.DamagePoint, error) {
	return s.editor.Apply(s.board(), localID, patch)
}

// RemovePoint deletes a point. A persisted point is deleted on the server
// first and only then dropped from the draft and the baseline.
func (s *BodyworkStep) RemovePoint(ctx context.Context, localID string) error {
	b := s.board()
	p, ok := b.Find(localID)
	if !ok {
		return apperror.ErrNotFound
	}

	if p.Persisted() {
		if err := s.deps.Engine.DeletePoint(ctx, *p.ServerID); err != nil {
			return err
		}
		s.dropFromBaseline(b.View().Key, *p.ServerID)
	}
	if _, err := b.Remove(localID); err != nil {
		return err
	}

	if p.PhotoPath != nil {
		if err := s.deps.Photos.Delete(ctx, *p.PhotoPath); err != nil {
			s.notify(NoticeWarning, fmt.Sprintf("Point removed but its photo could not be deleted: %v", err))
		}
	}
	return nil
}

// AttachPhoto uploads a photo for a point, replacing any previous one.
func (s *BodyworkStep) AttachPhoto(ctx context.Context, localID string, f photo.File) (models.DamagePoint, error) {
	b := s.board()
	p, ok := b.Find(localID)
	if !ok {
		return models.DamagePoint{}, apperror.ErrNotFound
	}

	target := photo.Target{
		OrderID:       s.orderID,
		InventoryType: s.invType.SlugName(),
		Segment:       string(b.View().Key),
	}

	var (
		url string
		err error
	)
	if p.PhotoPath != nil {
		url, err = s.deps.Photos.Replace(ctx, f, target, *p.PhotoPath)
	} else {
		url, err = s.deps.Photos.Upload(ctx, f, target)
	}
	if url == "" {
		return models.DamagePoint{}, err
	}

	var deleteErr *photo.DeleteError
	if errors.As(err, &deleteErr) {
		s.notify(NoticeWarning, fmt.Sprintf("Photo replaced but the previous file could not be deleted: %v", err))
	}

	if err := b.SetPhoto(localID, &url); err != nil {
		return models.DamagePoint{}, err
	}
	p, _ = b.Find(localID)
	return p, nil
}

// RemovePhoto deletes the point's photo blob and then clears the field. A
// blob that is already gone or lives in another store does not block the
// clear.
func (s *BodyworkStep) RemovePhoto(ctx context.Context, localID string) (models.DamagePoint, error) {
	b := s.board()
	p, ok := b.Find(localID)
	if !ok {
		return models.DamagePoint{}, apperror.ErrNotFound
	}
	if p.PhotoPath == nil {
		return p, nil
	}

	if err := s.deps.Photos.Delete(ctx, *p.PhotoPath); err != nil {
		if !photo.BlobGone(err) {
			return models.DamagePoint{}, err
		}
		s.logger.Warn("Clearing photo that could not be deleted", zap.String("url", *p.PhotoPath), zap.Error(err))
		s.notify(NoticeWarning, fmt.Sprintf("Photo removed from the point but the file was not deleted: %v", err))
	}
	if err := b.SetPhoto(localID, nil); err != nil {
		return models.DamagePoint{}, err
	}
	p, _ = b.Find(localID)
	return p, nil
}

// NextView saves the current view and moves forward.
func (s *BodyworkStep) NextView(ctx context.Context) error {
	return s.nav.Next(ctx, s.saveCurrent)
}

// PrevView saves the current view and moves back.
func (s *BodyworkStep) PrevView(ctx context.Context) error {
	return s.nav.Prev(ctx, s.saveCurrent)
}

// SaveStep persists the current view.
func (s *BodyworkStep) SaveStep(ctx context.Context) error {
	return s.saveCurrent(ctx)
}

// saveCurrent leaves the selection (running the cleanup rule) and persists
// the diff of the current view. The baseline advances only on success.
func (s *BodyworkStep) saveCurrent(ctx context.Context) error {
	b := s.board()
	key := b.View().Key
	b.Deselect()

	res, err := s.deps.Engine.SaveView(ctx, s.orderID, key, b.Points(), s.baseline[key])
	if err != nil {
		// Created points keep their server ids; the baseline stays put.
		if res.Points != nil {
			b.Replace(res.Points)
		}
		return err
	}

	b.Replace(res.Points)
	s.baseline[key] = b.Points()
	if !res.Plan.Empty() {
		s.notify(NoticeSuccess, "Changes saved")
	}
	return nil
}

func (s *BodyworkStep) dropFromBaseline(key models.ViewKey, serverID int64) {
	kept := s.baseline[key][:0]
	for _, p := range s.baseline[key] {
		if p.ServerID != nil && *p.ServerID == serverID {
			continue
		}
		kept = append(kept, p)
	}
	s.baseline[key] = kept
}

func (s *BodyworkStep) Complete() bool {
	return s.nav.ReachedLast()
}

func (s *BodyworkStep) OnCompletion(fn func(bool)) {
	s.onDone = fn
	if s.nav.ReachedLast() && fn != nil {
		fn(true)
	}
}

func (s *BodyworkStep) State() StepState {
	b := s.board()
	return StepState{
		Kind:          models.KindBodywork,
		InventoryType: s.invType,
		Complete:      s.Complete(),
		Bodywork: &BodyworkState{
			View:          b.View(),
			ViewIndex:     s.nav.Index(),
			ViewCount:     s.nav.Count(),
			IsFirstView:   s.nav.IsFirst(),
			IsLastView:    s.nav.IsLast(),
			DamageTypes:   s.editor.Types(),
			Rows:          s.editor.Rows(b),
			SelectedID:    b.SelectedID(),
			SelectedIndex: b.SelectedIndex(),
		},
	}
}
