// Package inspection drives a multi-step vehicle inspection: an ordered
// list of inventory types, each handled by a bodywork or a generic
// checklist step, with fail-closed guarded navigation between them.
package inspection

import (
	"context"

	"go.uber.org/zap"

	"github.com/autoerp-inspection/backend/internal/capture"
	"github.com/autoerp-inspection/backend/internal/models"
	"github.com/autoerp-inspection/backend/internal/persistence"
	"github.com/autoerp-inspection/backend/internal/photo"
)

// Catalog serves the server-defined taxonomies.
type Catalog interface {
	DamageTypes(ctx context.Context) ([]models.DamageType, error)
	InventoryTypes(ctx context.Context) ([]models.InventoryType, error)
	ChecklistItems(ctx context.Context, inventoryTypeID int64) ([]models.ChecklistItem, error)
}

// Records reads what is already persisted for an order.
type Records interface {
	DamagePoints(ctx context.Context, orderID int64) ([]models.DamagePoint, error)
	ItemAnswers(ctx context.Context, orderID, inventoryTypeID int64) (map[int64]models.ItemAnswer, error)
}

// Photos uploads and deletes attachment blobs.
type Photos interface {
	Upload(ctx context.Context, f photo.File, t photo.Target) (string, error)
	Replace(ctx context.Context, f photo.File, t photo.Target, oldURL string) (string, error)
	Delete(ctx context.Context, url string) error
}

// Deps are the collaborators shared by every session.
type Deps struct {
	Catalog Catalog
	Records Records
	Engine  *persistence.Engine
	Photos  Photos
	Logger  *zap.Logger
}

// Step is the contract every inventory-type variant satisfies.
type Step interface {
	Kind() models.InventoryKind
	InventoryType() models.InventoryType

	// Load fetches taxonomy and persisted state.
	Load(ctx context.Context) error

	// SaveStep persists the draft. On error nothing is advanced.
	SaveStep(ctx context.Context) error

	// Complete reports whether the step has reported completion.
	Complete() bool

	// OnCompletion registers the completion callback.
	OnCompletion(fn func(bool))

	State() StepState
}

// StepState is the snapshot of the mounted step. Exactly one of Bodywork
// and Generic is set.
type StepState struct {
	Kind          models.InventoryKind `json:"kind"`
	InventoryType models.InventoryType `json:"inventory_type"`
	Complete      bool                 `json:"complete"`
	Bodywork      *BodyworkState       `json:"bodywork,omitempty"`
	Generic       *GenericState        `json:"generic,omitempty"`
}

// BodyworkState is the snapshot of a bodywork step.
type BodyworkState struct {
	View          models.View         `json:"view"`
	ViewIndex     int                 `json:"view_index"`
	ViewCount     int                 `json:"view_count"`
	IsFirstView   bool                `json:"is_first_view"`
	IsLastView    bool                `json:"is_last_view"`
	DamageTypes   []models.DamageType `json:"damage_types"`
	Rows          []capture.Row       `json:"rows"`
	SelectedID    string              `json:"selected_id,omitempty"`
	SelectedIndex int                 `json:"selected_index"`
}

// GenericState is the snapshot of a generic checklist step.
type GenericState struct {
	Items   []models.ChecklistItem      `json:"items"`
	Answers map[int64]models.ItemAnswer `json:"answers"`
}

// Notify pushes a user-visible notice.
type Notify func(level NoticeLevel, message string)

// newStep dispatches on the inventory kind.
func newStep(orderID int64, t models.InventoryType, deps Deps, notify Notify) Step {
	switch t.ResolveKind() {
	case models.KindBodywork:
		return newBodyworkStep(orderID, t, deps, notify)
	default:
		return newGenericStep(orderID, t, deps, notify)
	}
}
