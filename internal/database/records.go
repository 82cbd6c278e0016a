package database

import "encoding/json"

// Row types of the ERP records tables. JSON tags follow the ERP wire
// format served by the records API.

// DetailType is one entry of the damage-type taxonomy.
type DetailType struct {
	ID    int64  `json:"detail_type_id"`
	Type  string `json:"type"`
	Color string `json:"color"`
}

// InventoryType is one inspection step definition.
type InventoryType struct {
	ID       int64  `json:"inv_type_id"`
	Name     string `json:"name"`
	Position int    `json:"position"`
	IsActive bool   `json:"is_active"`
	Kind     string `json:"kind"`
}

// InventoryItem is one checklist question.
type InventoryItem struct {
	ItemID        int64  `json:"item_id"`
	InvTypeID     int64  `json:"inv_type_id"`
	Label         string `json:"label"`
	Description   string `json:"description"`
	InputType     string `json:"input_type"`
	PictureUpload bool   `json:"picture_upload"`
	IsMandatory   bool   `json:"is_mandatory"`
	Position      int    `json:"position"`
}

// DetailTypeRef is the nested damage-type reference of a bodywork detail.
type DetailTypeRef struct {
	DetailTypeID int64 `json:"detail_type_id"`
}

// BodyworkDetail is a persisted damage point.
type BodyworkDetail struct {
	DetailID        int64          `json:"detail_id"`
	OrderID         int64          `json:"order_id"`
	View            string         `json:"view"`
	X               float64        `json:"x"`
	Y               float64        `json:"y"`
	DetailType      *DetailTypeRef `json:"detail_type"`
	DetailNotes     string         `json:"detail_notes"`
	PicturePath     *string        `json:"picture_path"`
	IsFreeSelection bool           `json:"is_free_selection"`
}

// DetailInput is the create/patch body of a bodywork detail.
type DetailInput struct {
	OrderID         int64   `json:"order_id" binding:"required"`
	View            string  `json:"view" binding:"required"`
	X               float64 `json:"x"`
	Y               float64 `json:"y"`
	DetailNotes     string  `json:"detail_notes"`
	PicturePath     *string `json:"picture_path"`
	DetailTypeID    *int64  `json:"detail_type_id"`
	IsFreeSelection bool    `json:"is_free_selection"`
}

// InventoryData is the saved answer of one checklist item for an order.
type InventoryData struct {
	OrderID int64           `json:"order_id" binding:"required"`
	ItemID  int64           `json:"item_id" binding:"required"`
	Data    json.RawMessage `json:"data"`
}
