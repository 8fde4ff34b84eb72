package fetcher

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
)

const _maxImageSize = 10 * 1024 * 1024 // 10 MB

// ErrTooLarge is returned for images over the size limit
var ErrTooLarge = errors.New("image exceeds size limit")

// CoverFetcher retrieves cover art from http(s), file and data URLs.
// Players report local art as file:// URLs and the event stream may inline it.
type CoverFetcher struct {
	logger  *zap.Logger
	client  *http.Client
	maxSize int64
}

func NewCoverFetcher(logger *zap.Logger) *CoverFetcher {
	return &CoverFetcher{
		logger: logger,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		maxSize: _maxImageSize,
	}
}

// Fetch returns the raw image bytes behind rawURL
func (f *CoverFetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	var (
		data []byte
		err  error
	)

	switch {
	case strings.HasPrefix(rawURL, "data:"):
		data, err = f.decodeDataURL(rawURL)
	case strings.HasPrefix(rawURL, "file://"), strings.HasPrefix(rawURL, "/"):
		data, err = f.readFile(rawURL)
	case strings.HasPrefix(rawURL, "http://"), strings.HasPrefix(rawURL, "https://"):
		data, err = f.download(ctx, rawURL)
	default:
		return nil, fmt.Errorf("unsupported cover url scheme: %.16q", rawURL)
	}
	if err != nil {
		return nil, err
	}

	f.logger.Debug("Cover fetched", zap.Int("bytes", len(data)))
	return data, nil
}

func (f *CoverFetcher) download(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "nowpanel/1.0")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("network error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "image/") {
		return nil, fmt.Errorf("url is not an image: %s", ct)
	}

	return f.readLimited(resp.Body)
}

func (f *CoverFetcher) readFile(rawURL string) ([]byte, error) {
	path := rawURL
	if strings.HasPrefix(rawURL, "file://") {
		u, err := url.Parse(rawURL)
		if err != nil {
			return nil, fmt.Errorf("invalid file url: %w", err)
		}
		path = u.Path
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open cover file: %w", err)
	}
	defer file.Close()

	return f.readLimited(file)
}

// decodeDataURL handles data:[<mediatype>][;base64],<data>
func (f *CoverFetcher) decodeDataURL(rawURL string) ([]byte, error) {
	meta, payload, ok := strings.Cut(strings.TrimPrefix(rawURL, "data:"), ",")
	if !ok {
		return nil, errors.New("malformed data url: missing comma")
	}
	if meta != "" && !strings.HasPrefix(meta, "image/") {
		return nil, fmt.Errorf("data url is not an image: %s", meta)
	}

	if strings.HasSuffix(meta, ";base64") {
		if int64(base64.StdEncoding.DecodedLen(len(payload))) > f.maxSize {
			return nil, ErrTooLarge
		}
		data, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			return nil, fmt.Errorf("invalid base64 in data url: %w", err)
		}
		return data, nil
	}

	data, err := url.PathUnescape(payload)
	if err != nil {
		return nil, fmt.Errorf("invalid escape in data url: %w", err)
	}
	if int64(len(data)) > f.maxSize {
		return nil, ErrTooLarge
	}
	return []byte(data), nil
}

// readLimited reads r fully, failing once more than maxSize bytes arrive
func (f *CoverFetcher) readLimited(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, f.maxSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}
	if int64(len(data)) > f.maxSize {
		return nil, ErrTooLarge
	}
	return data, nil
}
