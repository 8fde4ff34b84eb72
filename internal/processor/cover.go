package processor

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png" // PNG format support
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"
	"github.com/genricoloni/nowpanel/internal/domain"
	"github.com/genricoloni/nowpanel/internal/fsutil"
	"github.com/google/uuid"
	"go.uber.org/zap"
	_ "golang.org/x/image/webp" // WebP format support
)

const (
	stagedPrefix = "cover-"
	jpegQuality  = 90
)

// CoverProcessor crops artwork to the square panel cover slot
type CoverProcessor struct {
	logger    *zap.Logger
	size      int
	outputDir string
}

// NewCoverProcessor creates a processor sized for the configured cover slot
func NewCoverProcessor(logger *zap.Logger, cfg domain.Config) *CoverProcessor {
	return &CoverProcessor{
		logger:    logger,
		size:      cfg.GetCoverSize(),
		outputDir: cfg.GetOutputDir(),
	}
}

// Process center-crops the image to a size×size JPEG
func (p *CoverProcessor) Process(ctx context.Context, imageData []byte) ([]byte, error) {
	img, format, err := image.Decode(bytes.NewReader(imageData))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	bounds := img.Bounds()
	if bounds.Dx() == 0 || bounds.Dy() == 0 {
		return nil, fmt.Errorf("invalid image dimensions: %dx%d", bounds.Dx(), bounds.Dy())
	}

	// Decoding is the slow part, skip the rest if the cover went stale meanwhile
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	thumb := imaging.Fill(img, p.size, p.size, imaging.Center, imaging.Lanczos)

	buf := new(bytes.Buffer)
	if err := jpeg.Encode(buf, thumb, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, fmt.Errorf("failed to encode cover: %w", err)
	}

	p.logger.Debug("Cover processed",
		zap.String("format", format),
		zap.Int("srcWidth", bounds.Dx()),
		zap.Int("srcHeight", bounds.Dy()),
		zap.Int("bytes", buf.Len()))
	return buf.Bytes(), nil
}

// Generate processes the artwork into a new file in the output directory and
// returns its absolute path. Moving it into place is up to the caller.
func (p *CoverProcessor) Generate(ctx context.Context, imgData []byte) (string, error) {
	data, err := p.Process(ctx, imgData)
	if err != nil {
		return "", fmt.Errorf("failed to process image: %w", err)
	}

	if err := os.MkdirAll(p.outputDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	outputPath := filepath.Join(p.outputDir, stagedPrefix+uuid.NewString()+".jpg")
	if err := fsutil.WriteFileAtomic(outputPath, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write cover file: %w", err)
	}

	p.logger.Debug("Cover staged", zap.String("path", outputPath), zap.Int("size", len(data)))

	absPath, err := filepath.Abs(outputPath)
	if err != nil {
		return outputPath, nil
	}
	return absPath, nil
}
