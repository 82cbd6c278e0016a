package capture

import (
	"unicode/utf8"

	"github.com/autoerp-inspection/backend/internal/apperror"
	"github.com/autoerp-inspection/backend/internal/models"
)

// MaxNotesLength bounds the free-text notes of a point, in characters.
const MaxNotesLength = 500

// PointPatch carries the editable fields of a damage point. Nil fields are
// left untouched; ClearType resets the damage type.
type PointPatch struct {
	DamageTypeID *int64  `json:"damage_type_id,omitempty"`
	ClearType    bool    `json:"clear_type,omitempty"`
	Notes        *string `json:"notes,omitempty"`
}

// Row is one line of the point editor list.
type Row struct {
	Number   int                `json:"number"`
	Point    models.DamagePoint `json:"point"`
	Color    string             `json:"color"`
	Selected bool               `json:"selected"`
}

// Editor validates edits against the damage-type taxonomy before applying
// them to a board.
type Editor struct {
	types []models.DamageType
}

// NewEditor creates an editor over the given taxonomy.
func NewEditor(types []models.DamageType) *Editor {
	return &Editor{types: append([]models.DamageType(nil), types...)}
}

// Types returns the taxonomy the editor validates against.
func (e *Editor) Types() []models.DamageType {
	return append([]models.DamageType(nil), e.types...)
}

// Apply validates patch and applies it to the point on board.
func (e *Editor) Apply(b *Board, localID string, patch PointPatch) (models.DamagePoint, error) {
	if err := e.Validate(patch); err != nil {
		return models.DamagePoint{}, err
	}
	return b.Update(localID, patch)
}

// Validate checks a patch without applying it.
func (e *Editor) Validate(patch PointPatch) error {
	if patch.DamageTypeID != nil && !patch.ClearType && !e.known(*patch.DamageTypeID) {
		return apperror.Invalid("damage_type_id", "unknown damage type %d", *patch.DamageTypeID)
	}
	if patch.Notes != nil && utf8.RuneCountInString(*patch.Notes) > MaxNotesLength {
		return apperror.Invalid("notes", "exceeds maximum length of %d characters", MaxNotesLength)
	}
	return nil
}

// Rows renders the editor list for board, numbered from 1.
func (e *Editor) Rows(b *Board) []Row {
	points := b.Points()
	rows := make([]Row, 0, len(points))
	for i, p := range points {
		rows = append(rows, Row{
			Number:   i + 1,
			Point:    p,
			Color:    models.MarkerColor(e.types, p.DamageTypeID),
			Selected: p.LocalID == b.SelectedID(),
		})
	}
	return rows
}

func (e *Editor) known(id int64) bool {
	for _, t := range e.types {
		if t.ID == id {
			return true
		}
	}
	return false
}
