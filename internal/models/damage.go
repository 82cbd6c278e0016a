// Package models contains the data models for the application.
package models

import (
	"strings"
)

// ViewKey identifies one of the fixed vehicle silhouette angles.
type ViewKey string

const (
	ViewFront ViewKey = "front"
	ViewRight ViewKey = "right"
	ViewBack  ViewKey = "back"
	ViewLeft  ViewKey = "left"
	ViewUp    ViewKey = "up"
)

// Valid reports whether k is one of the five known views.
func (k ViewKey) Valid() bool {
	for _, v := range BodyViews {
		if v.Key == k {
			return true
		}
	}
	return false
}

// View is a silhouette backdrop with its intrinsic (viewBox) dimensions.
type View struct {
	Key    ViewKey `json:"key"`
	Title  string  `json:"title"`
	Image  string  `json:"image"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// BodyViews is the ordered sequence walked by the bodywork inspection.
var BodyViews = []View{
	{Key: ViewFront, Title: "Vista Frontal", Image: "/sedan-front.png", Width: 800, Height: 350},
	{Key: ViewRight, Title: "Lateral Derecho", Image: "/sedan-right.png", Width: 800, Height: 350},
	{Key: ViewBack, Title: "Vista Trasera", Image: "/sedan-back.png", Width: 800, Height: 350},
	{Key: ViewLeft, Title: "Lateral Izquierdo", Image: "/sedan-left.png", Width: 800, Height: 350},
	{Key: ViewUp, Title: "Vista Superior", Image: "/sedan-up.png", Width: 800, Height: 350},
}

// DamagePoint is one user-marked defect on a silhouette view.
// X and Y are in the view's intrinsic coordinate space.
type DamagePoint struct {
	LocalID      string  `json:"local_id"`
	ServerID     *int64  `json:"server_id"`
	X            float64 `json:"x"`
	Y            float64 `json:"y"`
	DamageTypeID *int64  `json:"damage_type_id"`
	Notes        string  `json:"notes"`
	PhotoPath    *string `json:"photo_path"`
	View         ViewKey `json:"view"`
}

// IsEmpty reports whether the point carries nothing worth persisting.
func (p DamagePoint) IsEmpty() bool {
	return p.DamageTypeID == nil && p.Notes == "" && p.PhotoPath == nil
}

// Persisted reports whether the server has assigned an identity.
func (p DamagePoint) Persisted() bool {
	return p.ServerID != nil
}

// Clone returns a deep copy of p.
func (p DamagePoint) Clone() DamagePoint {
	c := p
	c.ServerID = clonePtr(p.ServerID)
	c.DamageTypeID = clonePtr(p.DamageTypeID)
	c.PhotoPath = clonePtr(p.PhotoPath)
	return c
}

// SameContent compares the persisted fields of two points. LocalID is
// client-only and does not take part.
func (p DamagePoint) SameContent(o DamagePoint) bool {
	return p.X == o.X &&
		p.Y == o.Y &&
		p.View == o.View &&
		p.Notes == o.Notes &&
		equalPtr(p.ServerID, o.ServerID) &&
		equalPtr(p.DamageTypeID, o.DamageTypeID) &&
		equalPtr(p.PhotoPath, o.PhotoPath)
}

// ClonePoints deep-copies a slice of points. A nil input yields an empty slice.
func ClonePoints(points []DamagePoint) []DamagePoint {
	out := make([]DamagePoint, 0, len(points))
	for _, p := range points {
		out = append(out, p.Clone())
	}
	return out
}

// DamageType is a server-defined damage classification.
type DamageType struct {
	ID        int64  `json:"id"`
	Label     string `json:"label"`
	ColorName string `json:"color_name"`
}

const defaultMarkerColor = "#8c8c8c"

var markerColors = map[string]string{
	"rojo":     "#ff4d4f",
	"azul":     "#1677ff",
	"naranja":  "#faad14",
	"verde":    "#52c41a",
	"amarillo": "#fadb14",
}

// Color returns the CSS colour used for markers of this type.
func (t DamageType) Color() string {
	if t.ColorName == "" {
		return defaultMarkerColor
	}
	if c, ok := markerColors[strings.ToLower(t.ColorName)]; ok {
		return c
	}
	return t.ColorName
}

// MarkerColor resolves the marker colour for a possibly-unset damage type.
func MarkerColor(types []DamageType, id *int64) string {
	if id == nil {
		return defaultMarkerColor
	}
	for _, t := range types {
		if t.ID == *id {
			return t.Color()
		}
	}
	return defaultMarkerColor
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func equalPtr[T comparable](a, b *T) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T {
	return &v
}
