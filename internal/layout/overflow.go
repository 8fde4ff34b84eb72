package layout

import (
	"fmt"

	"github.com/genricoloni/nowpanel/internal/domain"
	"github.com/genricoloni/nowpanel/internal/measure"
	"go.uber.org/zap"
)

// Slot describes the container a label is painted in
type Slot struct {
	// Width is the visible width of the label's parent in pixels
	Width float64
	// Measurer measures text in the label's font
	Measurer domain.Measurer
}

// Evaluate decides whether original overflows its container and builds the
// content to render. It is a pure function of its inputs.
func Evaluate(original string, containerWidth, measuredWidth float64) domain.LabelContent {
	if original == "" || measuredWidth <= containerWidth {
		return domain.LabelContent{
			Original: original,
			Segments: []string{original},
		}
	}

	// Two copies, each followed by the separator, so the scroll wraps without a gap
	return domain.LabelContent{
		Original:    original,
		Overflowing: true,
		Segments:    []string{original, domain.Separator, original, domain.Separator},
	}
}

// Engine lays out panel labels and writes them to the render sink
type Engine struct {
	logger *zap.Logger
	sink   domain.RenderSink
	slots  map[domain.Label]Slot
}

// NewEngine creates a layout engine for the given label slots
func NewEngine(logger *zap.Logger, sink domain.RenderSink, slots map[domain.Label]Slot) *Engine {
	return &Engine{
		logger: logger,
		sink:   sink,
		slots:  slots,
	}
}

// NewEngineFromConfig builds the title and artist slots from the configured
// widths and font sizes
func NewEngineFromConfig(logger *zap.Logger, cfg domain.Config, sink domain.RenderSink) (*Engine, error) {
	title, err := measure.NewFontMeasurer(cfg.GetTitleFontSize())
	if err != nil {
		return nil, fmt.Errorf("title font: %w", err)
	}
	artist, err := measure.NewFontMeasurer(cfg.GetArtistFontSize())
	if err != nil {
		return nil, fmt.Errorf("artist font: %w", err)
	}

	return NewEngine(logger, sink, map[domain.Label]Slot{
		domain.LabelTitle:  {Width: cfg.GetTitleWidth(), Measurer: title},
		domain.LabelArtist: {Width: cfg.GetArtistWidth(), Measurer: artist},
	}), nil
}

// Layout measures text in the label's slot and writes the resulting content.
// The plain text is always measured, never a previous duplicated rendering,
// so repeated calls with the same text give the same result.
func (e *Engine) Layout(label domain.Label, text string) domain.LabelContent {
	slot, ok := e.slots[label]
	if !ok || slot.Measurer == nil {
		e.logger.Warn("No slot configured for label, rendering plain text", zap.String("label", string(label)))
		content := Evaluate(text, 0, 0)
		e.write(label, content)
		return content
	}

	measured := slot.Measurer.Measure(text)
	content := Evaluate(text, slot.Width, measured)

	e.logger.Debug("Label laid out",
		zap.String("label", string(label)),
		zap.Float64("container", slot.Width),
		zap.Float64("measured", measured),
		zap.Bool("overflowing", content.Overflowing))

	e.write(label, content)
	return content
}

func (e *Engine) write(label domain.Label, content domain.LabelContent) {
	if err := e.sink.SetLabel(label, content); err != nil {
		e.logger.Error("Failed to render label", zap.String("label", string(label)), zap.Error(err))
	}
}
