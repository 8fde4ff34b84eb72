package panel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/genricoloni/nowpanel/internal/domain"
	"github.com/genricoloni/nowpanel/internal/fsutil"
	"github.com/gofrs/flock"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

const (
	StateFilename = "state.json"
	CoverFilename = "cover.jpg"
	lockFilename  = "nowpanel.lock"
)

// LabelState is one label as the widget host should draw it
type LabelState struct {
	// Text is the label text without loop repetition
	Text string `json:"text"`
	// Content is what goes into the label, doubled with separators when scrolling
	Content   string `json:"content"`
	Scrolling bool   `json:"scrolling"`
}

// State is the document written to state.json
type State struct {
	Title  LabelState `json:"title"`
	Artist LabelState `json:"artist"`
	// CoverURL is the source of the image at CoverPath
	CoverURL  string              `json:"cover_url,omitempty"`
	CoverPath string              `json:"cover_path,omitempty"`
	Status    domain.PlayerStatus `json:"status,omitempty"`
	UpdatedAt time.Time           `json:"updated_at"`
}

// Panel is the render sink backing the widget. Label and status changes are
// written to state.json right away; covers are fetched and cropped on the
// panel's own goroutine, so the reconciler never blocks on I/O.
type Panel struct {
	logger    *zap.Logger
	fetcher   domain.Fetcher
	processor domain.Processor
	refresher domain.Refresher

	dir       string
	statePath string
	coverPath string
	lock      *flock.Flock

	mu          sync.Mutex
	state       State
	wantCover   string
	coverCancel context.CancelFunc

	dirty   chan struct{}
	coverCh chan struct{}

	cancel context.CancelFunc
	done   chan struct{}
}

func NewPanel(
	logger *zap.Logger,
	cfg domain.Config,
	fetcher domain.Fetcher,
	processor domain.Processor,
	refresher domain.Refresher,
) *Panel {
	dir := cfg.GetOutputDir()
	if abs, err := filepath.Abs(dir); err == nil {
		dir = abs
	}
	return &Panel{
		logger:    logger.Named("panel"),
		fetcher:   fetcher,
		processor: processor,
		refresher: refresher,
		dir:       dir,
		statePath: filepath.Join(dir, StateFilename),
		coverPath: filepath.Join(dir, CoverFilename),
		lock:      flock.New(filepath.Join(dir, lockFilename)),
		dirty:     make(chan struct{}, 1),
		coverCh:   make(chan struct{}, 1),
	}
}

// StatePath returns the location of state.json
func (p *Panel) StatePath() string {
	return p.statePath
}

// Start takes the output directory lock and launches the writer goroutine
func (p *Panel) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.done != nil {
		return errors.New("panel already started")
	}

	if err := os.MkdirAll(p.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	locked, err := p.lock.TryLock()
	if err != nil {
		return fmt.Errorf("failed to lock output directory: %w", err)
	}
	if !locked {
		return fmt.Errorf("another nowpanel instance is writing to %s", p.dir)
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	p.cancel = cancel
	p.done = make(chan struct{})

	p.logger.Info("Panel writer started", zap.String("state", p.statePath))

	// Publish the initial empty state
	p.markDirty()
	go p.run(runCtx, p.done)
	return nil
}

// Stop ends the writer goroutine and releases the directory lock
func (p *Panel) Stop(ctx context.Context) error {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.mu.Unlock()

	if done == nil {
		return nil
	}

	cancel()
	var err error
	select {
	case <-done:
	case <-ctx.Done():
		err = multierr.Append(err, fmt.Errorf("waiting for panel writer: %w", ctx.Err()))
	}

	err = multierr.Append(err, p.lock.Unlock())

	p.logger.Info("Panel writer stopped")
	return err
}

// SetLabel implements domain.RenderSink
func (p *Panel) SetLabel(label domain.Label, content domain.LabelContent) error {
	ls := LabelState{
		Text:      content.Original,
		Content:   content.Render(),
		Scrolling: content.Overflowing,
	}

	p.mu.Lock()
	switch label {
	case domain.LabelTitle:
		p.state.Title = ls
	case domain.LabelArtist:
		p.state.Artist = ls
	default:
		p.mu.Unlock()
		return fmt.Errorf("unknown label %q", label)
	}
	p.mu.Unlock()

	p.markDirty()
	return nil
}

// SetCover implements domain.RenderSink. A load still in flight for an older
// cover is abandoned.
func (p *Panel) SetCover(url string) error {
	p.mu.Lock()
	p.wantCover = url
	if p.coverCancel != nil {
		p.coverCancel()
	}
	p.mu.Unlock()

	select {
	case p.coverCh <- struct{}{}:
	default:
	}
	return nil
}

// SetStatus implements domain.StatusSink
func (p *Panel) SetStatus(status domain.PlayerStatus) error {
	p.mu.Lock()
	p.state.Status = status
	p.mu.Unlock()

	p.markDirty()
	return nil
}

// Snapshot returns a copy of the current state
func (p *Panel) Snapshot() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *Panel) markDirty() {
	select {
	case p.dirty <- struct{}{}:
	default:
	}
}

func (p *Panel) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.dirty:
			p.flush(ctx)
		case <-p.coverCh:
			p.loadCover(ctx)
		}
	}
}

// loadCover renders the most recently requested cover and moves it into
// place only if no newer cover was requested meanwhile. On failure the last
// good cover stays in place.
func (p *Panel) loadCover(ctx context.Context) {
	coverCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	p.mu.Lock()
	url := p.wantCover
	p.coverCancel = cancel
	p.mu.Unlock()

	if url == "" {
		return
	}

	data, err := p.fetcher.Fetch(coverCtx, url)
	if coverCtx.Err() != nil {
		p.logger.Debug("Cover load superseded", zap.String("url", shortURL(url)))
		return
	}
	if err != nil {
		p.logger.Warn("Failed to fetch cover", zap.String("url", shortURL(url)), zap.Error(err))
		return
	}
	staged, err := p.processor.Generate(coverCtx, data)
	if err != nil {
		if coverCtx.Err() != nil {
			p.logger.Debug("Cover load superseded", zap.String("url", shortURL(url)))
			return
		}
		p.logger.Warn("Failed to process cover", zap.String("url", shortURL(url)), zap.Error(err))
		return
	}

	p.mu.Lock()
	current := coverCtx.Err() == nil && p.wantCover == url
	if current {
		if err = os.Rename(staged, p.coverPath); err == nil {
			p.state.CoverURL = shortURL(url)
			p.state.CoverPath = p.coverPath
		}
	}
	p.coverCancel = nil
	p.mu.Unlock()

	if !current {
		p.logger.Debug("Cover load superseded", zap.String("url", shortURL(url)))
		p.discard(staged)
		return
	}
	if err != nil {
		p.logger.Warn("Failed to install cover", zap.String("url", shortURL(url)), zap.Error(err))
		p.discard(staged)
		return
	}
	p.flush(ctx)
}

func (p *Panel) discard(staged string) {
	if err := os.Remove(staged); err != nil && !errors.Is(err, os.ErrNotExist) {
		p.logger.Warn("Failed to remove staged cover", zap.String("path", staged), zap.Error(err))
	}
}

// flush writes state.json and pokes the widget host
func (p *Panel) flush(ctx context.Context) {
	p.mu.Lock()
	p.state.UpdatedAt = time.Now().UTC()
	data, err := json.MarshalIndent(p.state, "", "  ")
	p.mu.Unlock()
	if err != nil {
		p.logger.Error("Failed to encode panel state", zap.Error(err))
		return
	}

	if err := fsutil.WriteFileAtomic(p.statePath, data, 0o644); err != nil {
		p.logger.Error("Failed to write panel state", zap.Error(err))
		return
	}

	if err := p.refresher.Refresh(ctx, p.statePath); err != nil {
		p.logger.Warn("Widget refresh failed", zap.Error(err))
	}
}

// shortURL keeps inline data URLs out of logs and the state file
func shortURL(url string) string {
	if meta, _, ok := strings.Cut(url, ","); ok && strings.HasPrefix(url, "data:") {
		return meta + ",…"
	}
	return url
}
