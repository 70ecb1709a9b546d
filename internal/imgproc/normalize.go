package imgproc

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"

	"github.com/disintegration/imaging"
	"github.com/rwcarlsen/goexif/exif"
	_ "golang.org/x/image/bmp"
)

// DefaultMaxSize bounds the longest image edge before face detection.
const DefaultMaxSize = 1024

// Normalizer loads images from disk and produces upright, size-bounded
// pixel data for the face detector. Phone photos commonly carry their
// rotation in EXIF instead of the pixel grid, so orientation has to be
// applied before detection.
type Normalizer struct {
	maxSize int
}

// New creates a Normalizer that bounds the longest edge to maxSize pixels.
func New(maxSize int) *Normalizer {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	return &Normalizer{maxSize: maxSize}
}

// Normalize reads the image at path, applies EXIF rotation and downscales
// it if either dimension exceeds the configured bound.
//
// Orientation handling is best effort: missing or corrupt metadata degrades
// to the raw decoded pixels instead of failing the pipeline. Only a file
// that cannot be decoded at all is an error.
func (n *Normalizer) Normalize(path string) (image.Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}

	oriented := applyOrientation(img, readOrientation(data))
	return n.bound(oriented), nil
}

// readOrientation extracts the EXIF orientation value, returning 1
// (no transform) when the metadata is absent or unreadable.
func readOrientation(data []byte) int {
	meta, err := exif.Decode(bytes.NewReader(data))
	if err != nil {
		return 1
	}
	tag, err := meta.Get(exif.Orientation)
	if err != nil {
		return 1
	}
	orientation, err := tag.Int(0)
	if err != nil {
		return 1
	}
	return orientation
}

// applyOrientation rotates the image upright for the three EXIF values
// that encode a pure rotation. Everything else (including the mirrored
// variants 2, 4, 5, 7, which cameras do not produce in practice) passes
// through untouched. The result is always NRGBA.
func applyOrientation(img image.Image, orientation int) *image.NRGBA {
	switch orientation {
	case 3:
		return imaging.Rotate180(img)
	case 6:
		return imaging.Rotate270(img)
	case 8:
		return imaging.Rotate90(img)
	default:
		return imaging.Clone(img)
	}
}

// bound downscales the image so its longest edge fits maxSize, keeping
// aspect ratio. The Box filter averages source pixel areas, which keeps
// small faces detectable after heavy downscaling.
func (n *Normalizer) bound(img *image.NRGBA) image.Image {
	size := img.Bounds().Size()
	if size.X <= n.maxSize && size.Y <= n.maxSize {
		return img
	}

	if size.X >= size.Y {
		return imaging.Resize(img, n.maxSize, 0, imaging.Box)
	}
	return imaging.Resize(img, 0, n.maxSize, imaging.Box)
}
