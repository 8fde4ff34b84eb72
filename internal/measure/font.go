package measure

import (
	"fmt"
	"sync"

	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
)

const dpi = 72 // 1pt == 1px

// FontMeasurer measures single-line text advance with an OpenType face
type FontMeasurer struct {
	mu   sync.Mutex // font.Face is not safe for concurrent use
	face font.Face
	size float64
}

// NewFontMeasurer creates a measurer for the bundled Go Regular face at size px
func NewFontMeasurer(size float64) (*FontMeasurer, error) {
	return NewFontMeasurerFromTTF(goregular.TTF, size)
}

// NewFontMeasurerFromTTF creates a measurer from raw TrueType/OpenType data
func NewFontMeasurerFromTTF(data []byte, size float64) (*FontMeasurer, error) {
	if size <= 0 {
		return nil, fmt.Errorf("invalid font size: %v", size)
	}

	f, err := opentype.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse font: %w", err)
	}

	face, err := opentype.NewFace(f, &opentype.FaceOptions{
		Size:    size,
		DPI:     dpi,
		Hinting: font.HintingNone,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create font face: %w", err)
	}

	return &FontMeasurer{face: face, size: size}, nil
}

// Measure returns the advance width of text in pixels, kerning included
func (m *FontMeasurer) Measure(text string) float64 {
	if text == "" {
		return 0
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	adv := font.MeasureString(m.face, text)
	return float64(adv) / 64
}

// Size returns the face size in pixels
func (m *FontMeasurer) Size() float64 {
	return m.size
}

// Close releases the face
func (m *FontMeasurer) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.face.Close()
}
