package capture

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autoerp-inspection/backend/internal/apperror"
)

func TestSurface_ToImage_RatioScaling(t *testing.T) {
	s := Surface{Width: 800, Height: 350}
	r := Rect{Left: 100, Top: 50, Width: 400, Height: 175}

	x, y, err := s.ToImage(300, 137.5, r)
	require.NoError(t, err)

	assert.InDelta(t, 400, x, 1e-9)
	assert.InDelta(t, 175, y, 1e-9)
}

func TestSurface_ToImage_StaysInsideImage(t *testing.T) {
	s := Surface{Width: 800, Height: 350}
	rendered := []Rect{
		{Left: 0, Top: 0, Width: 800, Height: 350},
		{Left: 12.5, Top: 40, Width: 600, Height: 262.5},
		{Left: 3, Top: 7, Width: 123.4, Height: 987.6},
		{Left: -50, Top: -20, Width: 1920, Height: 840},
	}

	for _, r := range rendered {
		for fx := 0.0; fx <= 1.0; fx += 0.125 {
			for fy := 0.0; fy <= 1.0; fy += 0.125 {
				cx := r.Left + fx*r.Width
				cy := r.Top + fy*r.Height

				x, y, err := s.ToImage(cx, cy, r)
				require.NoError(t, err)
				assert.GreaterOrEqual(t, x, 0.0)
				assert.LessOrEqual(t, x, s.Width)
				assert.GreaterOrEqual(t, y, 0.0)
				assert.LessOrEqual(t, y, s.Height)
			}
		}
	}
}

func TestSurface_ToImage_Rejects(t *testing.T) {
	s := Surface{Width: 800, Height: 350}

	tests := []struct {
		name string
		x, y float64
		r    Rect
	}{
		{"zero width", 1, 1, Rect{Width: 0, Height: 10}},
		{"left of surface", 5, 20, Rect{Left: 10, Top: 10, Width: 100, Height: 100}},
		{"below surface", 20, 200, Rect{Left: 10, Top: 10, Width: 100, Height: 100}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := s.ToImage(tt.x, tt.y, tt.r)
			assert.True(t, apperror.IsValidation(err))
		})
	}
}
