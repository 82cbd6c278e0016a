package models

import (
	"fmt"
	"strings"

	"github.com/spf13/cast"
)

// InputKind is the answer control a checklist item expects.
type InputKind string

const (
	InputTriState InputKind = "three_options"
	InputBoolean  InputKind = "checkbox"
	InputSlider   InputKind = "slider"
)

// Tri-state answer values.
const (
	StatusGood    = "bueno"
	StatusRegular = "regular"
	StatusBad     = "malo"
)

// Slider bounds.
const (
	SliderMin = 0
	SliderMax = 5
)

// ChecklistItem is an inspection question defined by the server.
type ChecklistItem struct {
	ItemID        int64     `json:"item_id"`
	Label         string    `json:"label"`
	Description   string    `json:"description"`
	InputKind     InputKind `json:"input_kind"`
	PhotoRequired bool      `json:"photo_required"`
	Mandatory     bool      `json:"mandatory"`
	Position      int       `json:"position"`
}

// NormalizeStatus converts a raw status into the canonical value for the
// item's input kind. A nil result means "no status".
func (i ChecklistItem) NormalizeStatus(raw any) (any, error) {
	if raw == nil {
		return nil, nil
	}
	switch i.InputKind {
	case InputTriState:
		s := strings.ToLower(strings.TrimSpace(cast.ToString(raw)))
		switch s {
		case "":
			return nil, nil
		case StatusGood, StatusRegular, StatusBad:
			return s, nil
		}
		return nil, fmt.Errorf("status %q is not one of %s, %s, %s", s, StatusGood, StatusRegular, StatusBad)
	case InputBoolean:
		b, err := cast.ToBoolE(raw)
		if err != nil {
			return nil, fmt.Errorf("status must be a boolean: %w", err)
		}
		return b, nil
	case InputSlider:
		n, err := cast.ToIntE(raw)
		if err != nil {
			return nil, fmt.Errorf("status must be a number: %w", err)
		}
		if n < SliderMin || n > SliderMax {
			return nil, fmt.Errorf("status %d outside %d..%d", n, SliderMin, SliderMax)
		}
		return n, nil
	}
	return nil, fmt.Errorf("unknown input kind %q", i.InputKind)
}

// ItemAnswer is the per-order response to one checklist item.
type ItemAnswer struct {
	Status    any     `json:"status,omitempty"`
	Notes     string  `json:"notes,omitempty"`
	PhotoPath *string `json:"picture_path,omitempty"`
}

// HasStatus reports whether a status has been given. An unchecked checkbox
// (false) counts as no status.
func (a ItemAnswer) HasStatus() bool {
	if a.Status == nil {
		return false
	}
	switch v := a.Status.(type) {
	case bool:
		return v
	case string:
		return strings.TrimSpace(v) != ""
	}
	return true
}

// IsEmpty reports whether the answer carries nothing worth persisting.
func (a ItemAnswer) IsEmpty() bool {
	return !a.HasStatus() && strings.TrimSpace(a.Notes) == "" && (a.PhotoPath == nil || *a.PhotoPath == "")
}

// Clone returns a deep copy of a.
func (a ItemAnswer) Clone() ItemAnswer {
	c := a
	c.PhotoPath = clonePtr(a.PhotoPath)
	return c
}

// Equal compares two answers by value, tolerating numeric representation
// differences such as 3 vs 3.0 from JSON decoding.
func (a ItemAnswer) Equal(o ItemAnswer) bool {
	if a.Notes != o.Notes || !equalPtr(a.PhotoPath, o.PhotoPath) {
		return false
	}
	if a.Status == nil || o.Status == nil {
		return a.Status == nil && o.Status == nil
	}
	return cast.ToString(a.Status) == cast.ToString(o.Status)
}

// InventoryKind discriminates which inspection variant handles a type.
type InventoryKind string

const (
	KindBodywork InventoryKind = "bodywork"
	KindGeneric  InventoryKind = "generic"
)

// InventoryType is a server-defined checklist category.
type InventoryType struct {
	ID       int64         `json:"id"`
	Name     string        `json:"name"`
	Position int           `json:"position"`
	Active   bool          `json:"active"`
	Kind     InventoryKind `json:"kind"`
}

// ResolveKind returns the declared kind or infers it from the name when
// the server did not send one.
func (t InventoryType) ResolveKind() InventoryKind {
	switch t.Kind {
	case KindBodywork, KindGeneric:
		return t.Kind
	}
	switch strings.ToLower(strings.TrimSpace(t.Name)) {
	case "carroceria", "carrocería", "bodywork":
		return KindBodywork
	}
	return KindGeneric
}

// SlugName is the blob-path segment for this type.
func (t InventoryType) SlugName() string {
	return strings.Join(strings.Fields(strings.ToLower(t.Name)), "_")
}
