package facerec

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"

	"github.com/Kagami/go-face"
)

// DlibEncoder detects and encodes faces using the dlib models bundled
// with go-face. The detection model is fixed at construction.
type DlibEncoder struct {
	rec   *face.Recognizer
	model Model
}

// NewDlibEncoder loads the dlib models from modelsDir.
func NewDlibEncoder(modelsDir string, model Model) (*DlibEncoder, error) {
	if !model.Valid() {
		return nil, fmt.Errorf("unknown detection model %q (expected %q or %q)", model, ModelHOG, ModelCNN)
	}

	rec, err := face.NewRecognizer(modelsDir)
	if err != nil {
		return nil, fmt.Errorf("loading face models from %s: %w", modelsDir, err)
	}

	return &DlibEncoder{rec: rec, model: model}, nil
}

// Encodings detects face regions and computes one descriptor per region.
func (e *DlibEncoder) Encodings(img image.Image) ([]Face, error) {
	// dlib consumes compressed image bytes, not Go pixel buffers.
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		return nil, fmt.Errorf("encoding image for detector: %w", err)
	}

	var detected []face.Face
	var err error
	if e.model == ModelCNN {
		detected, err = e.rec.RecognizeCNN(buf.Bytes())
	} else {
		detected, err = e.rec.Recognize(buf.Bytes())
	}
	if err != nil {
		return nil, fmt.Errorf("face detection failed: %w", err)
	}

	faces := make([]Face, 0, len(detected))
	for _, d := range detected {
		faces = append(faces, fromDlib(d))
	}
	return faces, nil
}

// Close releases the dlib recognizer resources.
func (e *DlibEncoder) Close() {
	e.rec.Close()
}

func fromDlib(d face.Face) Face {
	descriptor := make([]float32, len(d.Descriptor))
	copy(descriptor, d.Descriptor[:])

	return Face{
		Box: Box{
			Top:    d.Rectangle.Min.Y,
			Right:  d.Rectangle.Max.X,
			Bottom: d.Rectangle.Max.Y,
			Left:   d.Rectangle.Min.X,
		},
		Descriptor: descriptor,
	}
}
