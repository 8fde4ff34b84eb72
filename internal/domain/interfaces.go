package domain

import (
	"context"
	"time"
)

// Monitor defines the interface for sources of media snapshots
//
//go:generate mockgen -destination=mocks/domain_mock.go -package=mocks github.com/genricoloni/nowpanel/internal/domain Monitor,ArtistSearcher,RenderSink,Measurer,Fetcher,Processor,Refresher
type Monitor interface {
	// Start begins monitoring for media events
	// It should block until context is cancelled or an error occurs
	Start(ctx context.Context) error

	// Stop gracefully stops the monitor
	Stop(ctx context.Context) error

	// Events returns a read-only channel that emits snapshots in arrival order
	Events() <-chan MediaSnapshot
}

// ArtistSearcher looks up artists by name on an external catalogue
type ArtistSearcher interface {
	// SearchArtists returns matches ordered by relevance
	SearchArtists(ctx context.Context, query string) ([]ArtistResult, error)
}

// RenderSink is the surface the panel is painted on
type RenderSink interface {
	// SetLabel writes the content of a label and its scrolling flag
	SetLabel(label Label, content LabelContent) error

	// SetCover sets the displayed image
	SetCover(url string) error
}

// StatusSink is implemented by render sinks that also show playback status
type StatusSink interface {
	SetStatus(status PlayerStatus) error
}

// Measurer returns the rendered width in pixels of a single unwrapped line
type Measurer interface {
	Measure(text string) float64
}

// Fetcher defines the interface for retrieving album artwork
type Fetcher interface {
	// Fetch downloads or reads image data from a URL or local path
	// Returns the raw image bytes or an error
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Processor turns artwork into the file shown in the panel cover slot
type Processor interface {
	// Generate writes the processed cover to a new file and returns its path
	Generate(ctx context.Context, imgData []byte) (string, error)
}

// Refresher tells the widget host that the panel state changed
type Refresher interface {
	Refresh(ctx context.Context, statePath string) error
}

// Config defines the interface for application configuration
type Config interface {
	// GetOutputDir returns the directory the panel state is written to
	GetOutputDir() string
	// GetSource returns the snapshot source kind ("mpris" or "stdin")
	GetSource() string

	GetPlaceholderTitle() string
	// GetPlaceholderArtist returns the artist shown when nothing is identified.
	// No artwork lookup is made for it.
	GetPlaceholderArtist() string

	GetTitleWidth() float64
	GetArtistWidth() float64
	GetTitleFontSize() float64
	GetArtistFontSize() float64

	// GetCoverSize returns the edge of the square cover slot in pixels
	GetCoverSize() int
	GetSearchURL() string
	GetLookupTimeout() time.Duration
	// GetRefreshCommand returns the command run after each panel write, or nil
	GetRefreshCommand() []string
}
