package photo

import (
	"bytes"
	"errors"
	"image"

	"github.com/disintegration/imaging"
)

var qualitySteps = []int{85, 75, 65, 55, 45, 35}

var errNotSmaller = errors.New("compressed image is not smaller than the original")

// compress fits the image within maxDim on both sides and re-encodes it as
// JPEG, stepping the quality down until the result is at most target bytes.
// The lowest quality is kept when no step reaches the target.
func compress(data []byte, maxDim int, target int64) ([]byte, error) {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, err
	}

	b := img.Bounds()
	resized := b.Dx() > maxDim || b.Dy() > maxDim
	var src image.Image = img
	if resized {
		src = imaging.Fit(img, maxDim, maxDim, imaging.Lanczos)
	}

	var out []byte
	for _, q := range qualitySteps {
		var buf bytes.Buffer
		if err := imaging.Encode(&buf, src, imaging.JPEG, imaging.JPEGQuality(q)); err != nil {
			return nil, err
		}
		out = buf.Bytes()
		if int64(len(out)) <= target {
			break
		}
	}

	if !resized && len(out) >= len(data) {
		return nil, errNotSmaller
	}
	return out, nil
}
