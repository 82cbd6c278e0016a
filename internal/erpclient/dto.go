package erpclient

import (
	"github.com/autoerp-inspection/backend/internal/models"
)

// Wire formats of the ERP REST API. Field names follow the API, not Go.

type damageTypeDTO struct {
	DetailTypeID int64  `json:"detail_type_id"`
	Type         string `json:"type"`
	Color        string `json:"color"`
}

func (d damageTypeDTO) model() models.DamageType {
	return models.DamageType{ID: d.DetailTypeID, Label: d.Type, ColorName: d.Color}
}

type inventoryTypeDTO struct {
	InvTypeID int64  `json:"inv_type_id"`
	Name      string `json:"name"`
	Position  int    `json:"position"`
	IsActive  bool   `json:"is_active"`
	Kind      string `json:"kind,omitempty"`
}

func (d inventoryTypeDTO) model() models.InventoryType {
	return models.InventoryType{
		ID:       d.InvTypeID,
		Name:     d.Name,
		Position: d.Position,
		Active:   d.IsActive,
		Kind:     models.InventoryKind(d.Kind),
	}
}

type checklistItemDTO struct {
	ItemID        int64  `json:"item_id"`
	Label         string `json:"label"`
	Description   string `json:"description"`
	InputType     string `json:"input_type"`
	PictureUpload bool   `json:"picture_upload"`
	IsMandatory   bool   `json:"is_mandatory"`
	Position      int    `json:"position"`
}

func (d checklistItemDTO) model() models.ChecklistItem {
	return models.ChecklistItem{
		ItemID:        d.ItemID,
		Label:         d.Label,
		Description:   d.Description,
		InputKind:     models.InputKind(d.InputType),
		PhotoRequired: d.PictureUpload,
		Mandatory:     d.IsMandatory,
		Position:      d.Position,
	}
}

type checklistItemsDTO struct {
	Items []checklistItemDTO `json:"items"`
}

type detailTypeRef struct {
	DetailTypeID *int64 `json:"detail_type_id"`
}

type bodyworkDetailDTO struct {
	DetailID    int64          `json:"detail_id"`
	View        string         `json:"view"`
	X           float64        `json:"x"`
	Y           float64        `json:"y"`
	DetailType  *detailTypeRef `json:"detail_type"`
	DetailNotes string         `json:"detail_notes"`
	PicturePath *string        `json:"picture_path"`
}

func (d bodyworkDetailDTO) model() models.DamagePoint {
	p := models.DamagePoint{
		ServerID:  models.Ptr(d.DetailID),
		X:         d.X,
		Y:         d.Y,
		Notes:     d.DetailNotes,
		PhotoPath: d.PicturePath,
		View:      models.ViewKey(d.View),
	}
	if d.DetailType != nil && d.DetailType.DetailTypeID != nil {
		p.DamageTypeID = models.Ptr(*d.DetailType.DetailTypeID)
	}
	if p.PhotoPath != nil && *p.PhotoPath == "" {
		p.PhotoPath = nil
	}
	return p
}

// bodyworkDetailPayload is the body of batch-create and patch requests.
// detail_type_id is omitted when unset so the server applies its default.
type bodyworkDetailPayload struct {
	OrderID         int64   `json:"order_id"`
	View            string  `json:"view"`
	X               float64 `json:"x"`
	Y               float64 `json:"y"`
	DetailNotes     string  `json:"detail_notes"`
	PicturePath     *string `json:"picture_path"`
	DetailTypeID    *int64  `json:"detail_type_id,omitempty"`
	IsFreeSelection bool    `json:"is_free_selection"`
}

func newDetailPayload(orderID int64, view models.ViewKey, p models.DamagePoint) bodyworkDetailPayload {
	return bodyworkDetailPayload{
		OrderID:         orderID,
		View:            string(view),
		X:               p.X,
		Y:               p.Y,
		DetailNotes:     p.Notes,
		PicturePath:     p.PhotoPath,
		DetailTypeID:    p.DamageTypeID,
		IsFreeSelection: true,
	}
}

type inventoryDataDTO struct {
	ItemID int64             `json:"item_id"`
	Data   models.ItemAnswer `json:"data"`
}

type inventoryDataPayload struct {
	OrderID int64             `json:"order_id"`
	ItemID  int64             `json:"item_id"`
	Data    models.ItemAnswer `json:"data"`
}

type errorBody struct {
	Detail  string `json:"detail"`
	Message string `json:"message"`
}
