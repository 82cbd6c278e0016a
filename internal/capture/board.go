package capture

import (
	"math"

	"github.com/google/uuid"

	"github.com/autoerp-inspection/backend/internal/apperror"
	"github.com/autoerp-inspection/backend/internal/models"
)

// ClickResult describes what a click on the surface did.
type ClickResult struct {
	Point   models.DamagePoint
	Created bool
	// Discarded is the empty point dropped by the selection change, if any.
	Discarded *models.DamagePoint
}

// Board holds the draft points of one view and the current selection.
// It is not safe for concurrent use.
type Board struct {
	view     models.View
	surface  Surface
	points   []models.DamagePoint
	selected string
	newID    func() string
}

// NewBoard creates a board for view seeded with a copy of points.
// Points without a local id get one.
func NewBoard(view models.View, points []models.DamagePoint) *Board {
	b := &Board{
		view:    view,
		surface: Surface{Width: view.Width, Height: view.Height},
		newID:   uuid.NewString,
	}
	b.Replace(points)
	return b
}

// View returns the view this board annotates.
func (b *Board) View() models.View {
	return b.view
}

// Points returns a deep copy of the draft points in insertion order.
func (b *Board) Points() []models.DamagePoint {
	return models.ClonePoints(b.points)
}

// Len returns the number of draft points.
func (b *Board) Len() int {
	return len(b.points)
}

// SelectedID returns the local id of the selected point, or "".
func (b *Board) SelectedID() string {
	return b.selected
}

// SelectedIndex returns the list position of the selected point, or -1.
// The editor list scrolls to this row.
func (b *Board) SelectedIndex() int {
	return b.indexOf(b.selected)
}

// Find returns the point with the given local id.
func (b *Board) Find(localID string) (models.DamagePoint, bool) {
	i := b.indexOf(localID)
	if i < 0 {
		return models.DamagePoint{}, false
	}
	return b.points[i].Clone(), true
}

// Click handles a pointer click at viewport coordinates. Existing markers
// shadow the surface: a click inside a marker selects that point instead of
// creating a new one.
func (b *Board) Click(clientX, clientY float64, r Rect) (ClickResult, error) {
	x, y, err := b.surface.ToImage(clientX, clientY, r)
	if err != nil {
		return ClickResult{}, err
	}

	if hit := b.hitTest(x, y); hit >= 0 {
		id := b.points[hit].LocalID
		discarded, err := b.Select(id)
		if err != nil {
			return ClickResult{}, err
		}
		p, _ := b.Find(id)
		return ClickResult{Point: p, Discarded: discarded}, nil
	}

	discarded := b.leave()
	p := models.DamagePoint{
		LocalID: b.newID(),
		X:       x,
		Y:       y,
		View:    b.view.Key,
	}
	b.points = append(b.points, p)
	b.selected = p.LocalID
	return ClickResult{Point: p.Clone(), Created: true, Discarded: discarded}, nil
}

// Select moves the selection to localID. Selecting the already-selected
// point is a no-op.
func (b *Board) Select(localID string) (*models.DamagePoint, error) {
	if localID == b.selected {
		return nil, nil
	}
	if b.indexOf(localID) < 0 {
		return nil, apperror.ErrNotFound
	}
	discarded := b.leave()
	b.selected = localID
	return discarded, nil
}

// Deselect clears the selection, applying the cleanup rule to the point
// being left. Used when the view changes.
func (b *Board) Deselect() *models.DamagePoint {
	discarded := b.leave()
	b.selected = ""
	return discarded
}

// Update applies a patch to the point's editable fields.
func (b *Board) Update(localID string, patch PointPatch) (models.DamagePoint, error) {
	i := b.indexOf(localID)
	if i < 0 {
		return models.DamagePoint{}, apperror.ErrNotFound
	}
	p := &b.points[i]
	if patch.ClearType {
		p.DamageTypeID = nil
	} else if patch.DamageTypeID != nil {
		p.DamageTypeID = models.Ptr(*patch.DamageTypeID)
	}
	if patch.Notes != nil {
		p.Notes = *patch.Notes
	}
	return p.Clone(), nil
}

// SetPhoto sets or clears the point's photo URL.
func (b *Board) SetPhoto(localID string, url *string) error {
	i := b.indexOf(localID)
	if i < 0 {
		return apperror.ErrNotFound
	}
	if url == nil || *url == "" {
		b.points[i].PhotoPath = nil
	} else {
		b.points[i].PhotoPath = models.Ptr(*url)
	}
	return nil
}

// Remove deletes the point from the draft. Removing the selected point
// clears the selection without running the cleanup rule.
func (b *Board) Remove(localID string) (models.DamagePoint, error) {
	i := b.indexOf(localID)
	if i < 0 {
		return models.DamagePoint{}, apperror.ErrNotFound
	}
	removed := b.points[i]
	b.points = append(b.points[:i], b.points[i+1:]...)
	if b.selected == localID {
		b.selected = ""
	}
	return removed, nil
}

// Replace swaps the draft for points, typically the reconciled result of a
// save. The selection is kept when the selected point survived.
func (b *Board) Replace(points []models.DamagePoint) {
	b.points = models.ClonePoints(points)
	for i := range b.points {
		if b.points[i].LocalID == "" {
			b.points[i].LocalID = b.newID()
		}
	}
	if b.indexOf(b.selected) < 0 {
		b.selected = ""
	}
}

// leave applies the empty-point cleanup rule to the currently selected
// point. It runs once per selection change.
func (b *Board) leave() *models.DamagePoint {
	i := b.indexOf(b.selected)
	if i < 0 {
		return nil
	}
	if !b.points[i].IsEmpty() {
		return nil
	}
	dropped := b.points[i]
	b.points = append(b.points[:i], b.points[i+1:]...)
	b.selected = ""
	return &dropped
}

// hitTest returns the index of the topmost marker containing (x, y), or -1.
// Later points are drawn above earlier ones.
func (b *Board) hitTest(x, y float64) int {
	for i := len(b.points) - 1; i >= 0; i-- {
		p := b.points[i]
		r := MarkerRadius
		if p.LocalID == b.selected {
			r = SelectedMarkerRadius
		}
		if math.Hypot(p.X-x, p.Y-y) <= r {
			return i
		}
	}
	return -1
}

func (b *Board) indexOf(localID string) int {
	if localID == "" {
		return -1
	}
	for i := range b.points {
		if b.points[i].LocalID == localID {
			return i
		}
	}
	return -1
}
