package artwork

import (
	"context"
	"time"

	"github.com/genricoloni/nowpanel/internal/domain"
	"go.uber.org/zap"
)

// Resolution is the outcome of Resolve.
//
// URL is set when an explicit cover should be displayed right away. Pending is
// set when a fallback lookup was dispatched; it yields the picture URL, or ""
// when nothing was found, and is then closed.
type Resolution struct {
	URL     string
	Pending <-chan string
}

// Resolver picks the image to display for a snapshot, falling back to an
// artist search when no cover art is supplied
type Resolver struct {
	logger      *zap.Logger
	searcher    domain.ArtistSearcher
	placeholder string
	timeout     time.Duration
}

// NewResolver creates a resolver. Lookups for the placeholder artist are never
// made.
func NewResolver(logger *zap.Logger, searcher domain.ArtistSearcher, placeholder string, timeout time.Duration) *Resolver {
	return &Resolver{
		logger:      logger,
		searcher:    searcher,
		placeholder: placeholder,
		timeout:     timeout,
	}
}

// NewResolverFromConfig creates a resolver using the configured placeholder
// artist and lookup timeout
func NewResolverFromConfig(logger *zap.Logger, cfg domain.Config, searcher domain.ArtistSearcher) *Resolver {
	return NewResolver(logger, searcher, cfg.GetPlaceholderArtist(), cfg.GetLookupTimeout())
}

// Resolve decides what to display for artist given the explicit cover (empty
// when absent) and the image currently displayed, updating state.
//
// state is mutated synchronously, before any lookup is dispatched, so two
// rapid calls for the same artist never both start a lookup.
func (r *Resolver) Resolve(ctx context.Context, artist, explicitCover, displayed string, state *domain.ArtworkCacheState) Resolution {
	if explicitCover != "" {
		if explicitCover == displayed {
			return Resolution{}
		}
		// A later artist without cover art must get a fresh lookup
		state.Reset()
		return Resolution{URL: explicitCover}
	}

	if artist == state.LastQueriedArtist || artist == r.placeholder {
		return Resolution{}
	}

	query := NormalizeArtistQuery(artist)
	if query == "" {
		return Resolution{}
	}

	state.LastQueriedArtist = artist

	pending := make(chan string, 1)
	go func() {
		defer close(pending)
		pending <- r.lookup(ctx, artist, query)
	}()

	return Resolution{Pending: pending}
}

// lookup returns the first result's medium picture, or "" on any failure
func (r *Resolver) lookup(ctx context.Context, artist, query string) string {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	r.logger.Debug("Looking up artist picture",
		zap.String("artist", artist),
		zap.String("query", query))

	results, err := r.searcher.SearchArtists(ctx, query)
	if err != nil {
		r.logger.Warn("Artist picture lookup failed",
			zap.String("artist", artist),
			zap.String("query", query),
			zap.Error(err))
		return ""
	}

	if len(results) == 0 {
		r.logger.Info("No artist found for fallback artwork", zap.String("query", query))
		return ""
	}

	return results[0].PictureMedium
}
