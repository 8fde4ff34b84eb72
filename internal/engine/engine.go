package engine

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/genricoloni/nowpanel/internal/artwork"
	"github.com/genricoloni/nowpanel/internal/domain"
	"github.com/genricoloni/nowpanel/internal/layout"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// lookupResult carries a finished fallback lookup back into the loop,
// tagged with what was current when it was dispatched
type lookupResult struct {
	artist string
	epoch  uint64
	url    string
}

// Reconciler consumes media snapshots, diffs them against what is on screen
// and re-renders only the fields that changed.
//
// All state below is owned by the loop goroutine. Lookups run on their own
// goroutines and hand results back over the lookups channel.
type Reconciler struct {
	logger   *zap.Logger
	cfg      domain.Config
	monitor  domain.Monitor
	layout   *layout.Engine
	resolver *artwork.Resolver
	sink     domain.RenderSink

	title   domain.RenderedLabelState
	artist  domain.RenderedLabelState
	artwork domain.ArtworkCacheState

	displayedCover string
	status         domain.PlayerStatus
	// coverEpoch increments for every snapshot that carries cover art
	coverEpoch uint64

	lookups chan lookupResult

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	pending sync.WaitGroup
}

// NewReconciler creates a new update reconciler
func NewReconciler(
	logger *zap.Logger,
	cfg domain.Config,
	mon domain.Monitor,
	lay *layout.Engine,
	res *artwork.Resolver,
	sink domain.RenderSink,
) *Reconciler {
	return &Reconciler{
		logger:   logger.With(zap.String("instance", uuid.NewString())),
		cfg:      cfg,
		monitor:  mon,
		layout:   lay,
		resolver: res,
		sink:     sink,
		lookups:  make(chan lookupResult, 4),
	}
}

// Start launches the event processing loop in a goroutine.
// It returns immediately (non-blocking).
func (r *Reconciler) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cancel != nil {
		return errors.New("reconciler already running")
	}

	// The loop outlives the start context, it ends on Stop
	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	r.cancel = cancel
	r.done = make(chan struct{})

	r.logger.Info("Reconciler starting...")
	go r.runLoop(loopCtx, r.done)
	return nil
}

// Stop ends the loop and waits for it and any in-flight lookups to finish
func (r *Reconciler) Stop(ctx context.Context) error {
	r.mu.Lock()
	cancel, done := r.cancel, r.done
	r.cancel, r.done = nil, nil
	r.mu.Unlock()

	if cancel == nil {
		return nil
	}

	r.logger.Info("Reconciler stopping...")
	cancel()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	r.pending.Wait()
	return nil
}

// runLoop serializes snapshots and lookup results. A snapshot is handled to
// completion before the next one is read.
func (r *Reconciler) runLoop(ctx context.Context, done chan struct{}) {
	defer close(done)

	events := r.monitor.Events()
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("Reconciler loop stopped")
			return

		case snap, ok := <-events:
			if !ok {
				r.logger.Info("Monitor events channel closed")
				// Keep applying lookups that are already in flight
				events = nil
				continue
			}
			r.OnSnapshot(ctx, snap)

		case res := <-r.lookups:
			r.applyLookup(res)
		}
	}
}

// OnSnapshot reconciles one snapshot with the rendered state. It must not be
// called concurrently with itself or with the running loop.
func (r *Reconciler) OnSnapshot(ctx context.Context, snap domain.MediaSnapshot) {
	snap = sanitize(snap).WithPlaceholders(r.cfg.GetPlaceholderTitle(), r.cfg.GetPlaceholderArtist())

	r.logger.Debug("Snapshot received",
		zap.String("title", snap.Title),
		zap.String("artist", snap.Artist),
		zap.Bool("cover", snap.Cover != ""),
		zap.String("status", string(snap.Status)))

	r.reconcileLabel(domain.LabelTitle, &r.title, snap.Title)
	r.reconcileLabel(domain.LabelArtist, &r.artist, snap.Artist)
	r.reconcileCover(ctx, snap)
	r.reconcileStatus(snap.Status)
}

func (r *Reconciler) reconcileStatus(status domain.PlayerStatus) {
	ss, ok := r.sink.(domain.StatusSink)
	if !ok || status == "" || status == r.status {
		return
	}
	r.status = status
	if err := ss.SetStatus(status); err != nil {
		r.logger.Error("Failed to render status", zap.Error(err))
	}
}

func (r *Reconciler) reconcileLabel(label domain.Label, state *domain.RenderedLabelState, text string) {
	// Re-laying out unchanged text would restart a running scroll
	if !state.Changed(text) {
		return
	}
	state.Text = text
	state.Rendered = true

	content := r.layout.Layout(label, text)
	r.logger.Info("Label updated",
		zap.String("label", string(label)),
		zap.String("text", text),
		zap.Bool("scrolling", content.Overflowing))
}

func (r *Reconciler) reconcileCover(ctx context.Context, snap domain.MediaSnapshot) {
	// Cover art in a snapshot outdates pending lookups, even when it is
	// already the displayed image
	if snap.Cover != "" {
		r.coverEpoch++
	}

	res := r.resolver.Resolve(ctx, snap.Artist, snap.Cover, r.displayedCover, &r.artwork)

	if res.URL != "" {
		r.showCover(res.URL)
		return
	}

	if res.Pending == nil {
		return
	}

	artist, epoch := snap.Artist, r.coverEpoch
	r.logger.Info("Fallback artwork lookup dispatched", zap.String("artist", artist))

	r.pending.Add(1)
	go func() {
		defer r.pending.Done()
		url := <-res.Pending
		select {
		case r.lookups <- lookupResult{artist: artist, epoch: epoch, url: url}:
		case <-ctx.Done():
		}
	}()
}

// applyLookup shows a fallback image unless a newer snapshot made it stale
func (r *Reconciler) applyLookup(res lookupResult) {
	if res.url == "" {
		return
	}
	if res.epoch != r.coverEpoch || res.artist != r.artist.Text {
		r.logger.Debug("Discarding stale artwork lookup",
			zap.String("artist", res.artist),
			zap.String("currentArtist", r.artist.Text))
		return
	}
	if res.url == r.displayedCover {
		return
	}
	r.showCover(res.url)
}

func (r *Reconciler) showCover(url string) {
	r.displayedCover = url
	if err := r.sink.SetCover(url); err != nil {
		r.logger.Error("Failed to render cover", zap.Error(err))
		return
	}
	r.logger.Info("Cover updated", zap.Int("urlLength", len(url)))
}

// sanitize repairs text fields a misbehaving source may send
func sanitize(snap domain.MediaSnapshot) domain.MediaSnapshot {
	snap.Title = strings.ToValidUTF8(snap.Title, "\uFFFD")
	snap.Artist = strings.ToValidUTF8(snap.Artist, "\uFFFD")
	snap.Album = strings.ToValidUTF8(snap.Album, "\uFFFD")
	snap.Cover = strings.TrimSpace(snap.Cover)
	return snap
}
