package facerec

import "image"

// Model selects the face detection model used by an encoder.
type Model string

const (
	// ModelHOG is the histogram-of-oriented-gradients detector (faster, CPU friendly).
	ModelHOG Model = "hog"
	// ModelCNN is the convolutional detector (slower, more accurate).
	ModelCNN Model = "cnn"
)

// Valid reports whether m names a known detection model.
func (m Model) Valid() bool {
	return m == ModelHOG || m == ModelCNN
}

// Box locates a face within an image's pixel grid,
// ordered top, right, bottom, left.
type Box struct {
	Top    int `json:"top"`
	Right  int `json:"right"`
	Bottom int `json:"bottom"`
	Left   int `json:"left"`
}

// Width returns the width of the box in pixels.
func (b Box) Width() int {
	return b.Right - b.Left
}

// Height returns the height of the box in pixels.
func (b Box) Height() int {
	return b.Bottom - b.Top
}

// Face pairs a bounding box with the identity descriptor computed for it.
type Face struct {
	Box        Box
	Descriptor []float32
}

// Encoder converts normalized pixels into zero or more detected faces.
// Zero faces is a normal outcome, not an error.
type Encoder interface {
	Encodings(img image.Image) ([]Face, error)
	Close()
}
