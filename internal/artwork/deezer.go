package artwork

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/genricoloni/nowpanel/internal/domain"
	"go.uber.org/zap"
)

const _maxSearchResponse = 1 << 20 // 1 MB

// deezerSearchResponse mirrors GET /search/artist
type deezerSearchResponse struct {
	Data  []deezerArtist `json:"data"`
	Total int            `json:"total"`
	Error *deezerError   `json:"error,omitempty"`
}

type deezerArtist struct {
	ID            int64  `json:"id"`
	Name          string `json:"name"`
	Link          string `json:"link"`
	PictureMedium string `json:"picture_medium"`
	PictureBig    string `json:"picture_big"`
	NbFan         int64  `json:"nb_fan"`
}

type deezerError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// DeezerSearcher searches artists on the public Deezer API
type DeezerSearcher struct {
	logger   *zap.Logger
	client   *http.Client
	endpoint string
}

// NewDeezerSearcher creates a searcher against endpoint, e.g.
// https://api.deezer.com/search/artist
func NewDeezerSearcher(logger *zap.Logger, endpoint string) *DeezerSearcher {
	return &DeezerSearcher{
		logger:   logger,
		endpoint: endpoint,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// NewDeezerSearcherFromConfig creates a searcher for the configured endpoint
func NewDeezerSearcherFromConfig(logger *zap.Logger, cfg domain.Config) *DeezerSearcher {
	return NewDeezerSearcher(logger, cfg.GetSearchURL())
}

// SearchArtists queries the endpoint with q=query
func (s *DeezerSearcher) SearchArtists(ctx context.Context, query string) ([]domain.ArtistResult, error) {
	u, err := url.Parse(s.endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid search endpoint: %w", err)
	}
	params := u.Query()
	params.Set("q", query)
	u.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "nowpanel/1.0")
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("network error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	var body deezerSearchResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, _maxSearchResponse)).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}
	// Deezer reports quota and query errors with a 200 status
	if body.Error != nil {
		return nil, fmt.Errorf("search error %d: %s", body.Error.Code, body.Error.Message)
	}

	results := make([]domain.ArtistResult, 0, len(body.Data))
	for _, a := range body.Data {
		results = append(results, domain.ArtistResult{
			ID:            a.ID,
			Name:          a.Name,
			Link:          a.Link,
			PictureMedium: a.PictureMedium,
			PictureBig:    a.PictureBig,
			Fans:          a.NbFan,
		})
	}

	s.logger.Debug("Artist search completed",
		zap.String("query", query),
		zap.Int("results", len(results)))
	return results, nil
}
