// Package capture implements the damage-annotation surface: converting
// pointer clicks on a scaled silhouette into intrinsic image coordinates,
// hit-testing existing markers, and keeping the per-view point list with its
// selection.
package capture

import (
	"math"

	"github.com/autoerp-inspection/backend/internal/apperror"
)

// Marker radii in intrinsic units.
const (
	MarkerRadius         = 15.0
	SelectedMarkerRadius = 20.0
)

// edgeTolerance absorbs sub-pixel rounding of clicks on the surface border,
// in viewport pixels.
const edgeTolerance = 0.5

// Rect is the rendered (CSS) box of the surface in viewport coordinates.
type Rect struct {
	Left   float64 `json:"left"`
	Top    float64 `json:"top"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Surface is an image of known intrinsic dimensions.
type Surface struct {
	Width  float64
	Height float64
}

// ToImage converts viewport coordinates into intrinsic image coordinates
// by ratio scaling against the rendered rect. Results are clamped into
// [0, Width] x [0, Height] so rounding at the edges never escapes the image.
func (s Surface) ToImage(clientX, clientY float64, r Rect) (float64, float64, error) {
	if s.Width <= 0 || s.Height <= 0 {
		return 0, 0, apperror.Invalid("surface", "intrinsic size must be positive")
	}
	if r.Width <= 0 || r.Height <= 0 || isBad(r.Width) || isBad(r.Height) {
		return 0, 0, apperror.Invalid("rect", "rendered size must be positive")
	}
	if isBad(clientX) || isBad(clientY) {
		return 0, 0, apperror.Invalid("click", "coordinates must be finite")
	}

	dx := clientX - r.Left
	dy := clientY - r.Top
	if dx < -edgeTolerance || dy < -edgeTolerance || dx > r.Width+edgeTolerance || dy > r.Height+edgeTolerance {
		return 0, 0, apperror.Invalid("click", "outside the surface")
	}

	x := dx * (s.Width / r.Width)
	y := dy * (s.Height / r.Height)
	return clamp(x, 0, s.Width), clamp(y, 0, s.Height), nil
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func isBad(v float64) bool {
	return math.IsNaN(v) || math.IsInf(v, 0)
}
