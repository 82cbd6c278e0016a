package inspection

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/autoerp-inspection/backend/internal/apperror"
	"github.com/autoerp-inspection/backend/internal/models"
	"github.com/autoerp-inspection/backend/internal/photo"
)

// AnswerPatch carries the editable fields of an item answer. A nil Status
// leaves the status untouched unless ClearStatus is set.
type AnswerPatch struct {
	Status      any     `json:"status,omitempty"`
	ClearStatus bool    `json:"clear_status,omitempty"`
	Notes       *string `json:"notes,omitempty"`
}

// GenericStep is a server-defined checklist answered item by item. It
// reports completion as soon as it is mounted.
type GenericStep struct {
	orderID  int64
	invType  models.InventoryType
	deps     Deps
	notify   Notify
	logger   *zap.Logger
	items    []models.ChecklistItem
	answers  map[int64]models.ItemAnswer
	baseline map[int64]models.ItemAnswer
}

func newGenericStep(orderID int64, t models.InventoryType, deps Deps, notify Notify) *GenericStep {
	return &GenericStep{
		orderID:  orderID,
		invType:  t,
		deps:     deps,
		notify:   notify,
		logger:   deps.Logger.With(zap.Int64("order_id", orderID), zap.String("inventory_type", t.Name)),
		answers:  make(map[int64]models.ItemAnswer),
		baseline: make(map[int64]models.ItemAnswer),
	}
}

func (s *GenericStep) Kind() models.InventoryKind {
	return models.KindGeneric
}

func (s *GenericStep) InventoryType() models.InventoryType {
	return s.invType
}

// Load fetches the checklist items and saved answers concurrently.
func (s *GenericStep) Load(ctx context.Context) error {
	var (
		items   []models.ChecklistItem
		answers map[int64]models.ItemAnswer
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		items, err = s.deps.Catalog.ChecklistItems(gctx, s.invType.ID)
		return err
	})
	g.Go(func() error {
		var err error
		answers, err = s.deps.Records.ItemAnswers(gctx, s.orderID, s.invType.ID)
		return err
	})
	if err := g.Wait(); err != nil {
		return fmt.Errorf("failed to load checklist %q: %w", s.invType.Name, err)
	}

	s.items = items
	s.answers = cloneAnswers(answers)
	s.baseline = cloneAnswers(answers)

	s.logger.Info("Loaded checklist",
		zap.Int("items", len(items)),
		zap.Int("answers", len(answers)),
	)
	return nil
}

func (s *GenericStep) item(itemID int64) (models.ChecklistItem, bool) {
	for _, it := range s.items {
		if it.ItemID == itemID {
			return it, true
		}
	}
	return models.ChecklistItem{}, false
}

// SetAnswer applies patch to the answer of itemID. The status is
// normalised for the item's input kind.
func (s *GenericStep) SetAnswer(itemID int64, patch AnswerPatch) (models.ItemAnswer, error) {
	it, ok := s.item(itemID)
	if !ok {
		return models.ItemAnswer{}, apperror.ErrNotFound
	}

	a := s.answers[itemID].Clone()
	switch {
	case patch.ClearStatus:
		a.Status = nil
	case patch.Status != nil:
		status, err := it.NormalizeStatus(patch.Status)
		if err != nil {
			return models.ItemAnswer{}, apperror.Invalid("status", "%v", err)
		}
		a.Status = status
	}
	if patch.Notes != nil {
		a.Notes = *patch.Notes
	}

	s.answers[itemID] = a
	return a.Clone(), nil
}

// AttachPhoto uploads a photo for an item that accepts one, replacing any
// previous photo.
func (s *GenericStep) AttachPhoto(ctx context.Context, itemID int64, f photo.File) (models.ItemAnswer, error) {
	it, ok := s.item(itemID)
	if !ok {
		return models.ItemAnswer{}, apperror.ErrNotFound
	}
	if !it.PhotoRequired {
		return models.ItemAnswer{}, apperror.Invalid("file", "item %q does not take a photo", it.Label)
	}

	target := photo.Target{
		OrderID:       s.orderID,
		InventoryType: s.invType.SlugName(),
		Segment:       strconv.FormatInt(itemID, 10),
	}

	a := s.answers[itemID].Clone()
	var (
		url string
		err error
	)
	if a.PhotoPath != nil {
		url, err = s.deps.Photos.Replace(ctx, f, target, *a.PhotoPath)
	} else {
		url, err = s.deps.Photos.Upload(ctx, f, target)
	}
	if url == "" {
		return models.ItemAnswer{}, err
	}

	var deleteErr *photo.DeleteError
	if errors.As(err, &deleteErr) {
		s.notify(NoticeWarning, fmt.Sprintf("Photo replaced but the previous file could not be deleted: %v", err))
	}

	a.PhotoPath = &url
	s.answers[itemID] = a
	return a.Clone(), nil
}

// RemovePhoto deletes the item's photo blob and then clears the field. A
// blob that is already gone or lives in another store does not block the
// clear.
func (s *GenericStep) RemovePhoto(ctx context.Context, itemID int64) (models.ItemAnswer, error) {
	if _, ok := s.item(itemID); !ok {
		return models.ItemAnswer{}, apperror.ErrNotFound
	}

	a := s.answers[itemID].Clone()
	if a.PhotoPath == nil {
		return a, nil
	}
	if err := s.deps.Photos.Delete(ctx, *a.PhotoPath); err != nil {
		if !photo.BlobGone(err) {
			return models.ItemAnswer{}, err
		}
		s.logger.Warn("Clearing photo that could not be deleted", zap.String("url", *a.PhotoPath), zap.Error(err))
		s.notify(NoticeWarning, fmt.Sprintf("Photo removed from the item but the file was not deleted: %v", err))
	}

	a.PhotoPath = nil
	s.answers[itemID] = a
	return a.Clone(), nil
}

// Validate checks that every mandatory item has a status, and a photo when
// the item takes one.
func (s *GenericStep) Validate() error {
	var missing []string
	for _, it := range s.items {
		if !it.Mandatory {
			continue
		}
		a := s.answers[it.ItemID]
		if !a.HasStatus() || (it.PhotoRequired && a.PhotoPath == nil) {
			missing = append(missing, it.Label)
		}
	}
	if len(missing) > 0 {
		return apperror.Invalid("answers", "mandatory items incomplete: %s", strings.Join(missing, ", "))
	}
	return nil
}

// SaveStep validates and upserts the non-empty answers as one batch.
func (s *GenericStep) SaveStep(ctx context.Context) error {
	if err := s.Validate(); err != nil {
		return err
	}

	saved, sent, err := s.deps.Engine.SaveAnswers(ctx, s.orderID, s.answers, s.baseline)
	if err != nil {
		return err
	}

	s.baseline = cloneAnswers(saved)
	if sent {
		s.notify(NoticeSuccess, "Changes saved")
	}
	return nil
}

func (s *GenericStep) Complete() bool {
	return true
}

func (s *GenericStep) OnCompletion(fn func(bool)) {
	if fn != nil {
		fn(true)
	}
}

func (s *GenericStep) State() StepState {
	items := append([]models.ChecklistItem(nil), s.items...)
	return StepState{
		Kind:          models.KindGeneric,
		InventoryType: s.invType,
		Complete:      true,
		Generic: &GenericState{
			Items:   items,
			Answers: cloneAnswers(s.answers),
		},
	}
}

func cloneAnswers(in map[int64]models.ItemAnswer) map[int64]models.ItemAnswer {
	out := make(map[int64]models.ItemAnswer, len(in))
	for k, v := range in {
		out[k] = v.Clone()
	}
	return out
}
