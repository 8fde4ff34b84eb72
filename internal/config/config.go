package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

const (
	defaultOutputDir         = "/tmp/nowpanel"
	defaultSource            = SourceMPRIS
	defaultPlaceholderTitle  = "No music"
	defaultPlaceholderArtist = "Listening..."
	defaultLabelWidth        = 180
	defaultTitleFontSize     = 14
	defaultArtistFontSize    = 12
	defaultCoverSize         = 96
	defaultSearchURL         = "https://api.deezer.com/search/artist"
	defaultLookupTimeout     = 10
	defaultConfigPath        = "~/.config/nowpanel/config.toml"
)

// Snapshot source kinds
const (
	SourceMPRIS = "mpris"
	SourceStdin = "stdin"
)

// Path is the configuration file location requested on the command line.
// Empty selects NOWPANEL_CONFIG or the default path.
type Path string

type fileConfig struct {
	Panel   panelSection   `toml:"panel"`
	Labels  labelsSection  `toml:"labels"`
	Source  sourceSection  `toml:"source"`
	Artwork artworkSection `toml:"artwork"`
}

type panelSection struct {
	OutputDir      string   `toml:"output_dir"`
	CoverSize      int      `toml:"cover_size"`
	RefreshCommand []string `toml:"refresh_command"`
}

type labelsSection struct {
	TitleWidth        int     `toml:"title_width"`
	ArtistWidth       int     `toml:"artist_width"`
	TitleFontSize     int     `toml:"title_font_size"`
	ArtistFontSize    int     `toml:"artist_font_size"`
	PlaceholderTitle  *string `toml:"placeholder_title"`
	PlaceholderArtist *string `toml:"placeholder_artist"`
}

type sourceSection struct {
	Kind string `toml:"kind"`
}

type artworkSection struct {
	SearchURL            string `toml:"search_url"`
	LookupTimeoutSeconds int    `toml:"lookup_timeout_seconds"`
}

// AppConfig holds application configuration
type AppConfig struct {
	path              string
	outputDir         string
	source            string
	placeholderTitle  string
	placeholderArtist string
	titleWidth        float64
	artistWidth       float64
	titleFontSize     float64
	artistFontSize    float64
	coverSize         int
	searchURL         string
	lookupTimeout     time.Duration
	refreshCommand    []string
}

// NewAppConfig loads the configuration for the daemon and logs the result
func NewAppConfig(logger *zap.Logger, path Path) (*AppConfig, error) {
	cfg, err := Load(string(path))
	if err != nil {
		return nil, err
	}

	logger.Info("Configuration loaded",
		zap.String("file", cfg.path),
		zap.String("outputDir", cfg.outputDir),
		zap.String("source", cfg.source),
		zap.String("searchURL", cfg.searchURL))

	return cfg, nil
}

// Default returns the built-in configuration
func Default() *AppConfig {
	return &AppConfig{
		outputDir:         defaultOutputDir,
		source:            defaultSource,
		placeholderTitle:  defaultPlaceholderTitle,
		placeholderArtist: defaultPlaceholderArtist,
		titleWidth:        defaultLabelWidth,
		artistWidth:       defaultLabelWidth,
		titleFontSize:     defaultTitleFontSize,
		artistFontSize:    defaultArtistFontSize,
		coverSize:         defaultCoverSize,
		searchURL:         defaultSearchURL,
		lookupTimeout:     defaultLookupTimeout * time.Second,
	}
}

// Load builds the configuration from defaults, the TOML file at path (if it
// exists) and environment overrides, in that order.
func Load(path string) (*AppConfig, error) {
	cfg := Default()

	resolved, exists, err := resolvePath(path)
	if err != nil {
		return nil, err
	}

	if exists {
		file, err := os.Open(resolved)
		if err != nil {
			return nil, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		var fc fileConfig
		if err := toml.NewDecoder(file).Decode(&fc); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
		cfg.apply(fc)
		cfg.path = resolved
	}

	cfg.applyEnv()

	if cfg.outputDir, err = expandPath(cfg.outputDir); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *AppConfig) apply(fc fileConfig) {
	if fc.Panel.OutputDir != "" {
		c.outputDir = fc.Panel.OutputDir
	}
	if fc.Panel.CoverSize != 0 {
		c.coverSize = fc.Panel.CoverSize
	}
	if len(fc.Panel.RefreshCommand) > 0 {
		c.refreshCommand = append([]string(nil), fc.Panel.RefreshCommand...)
	}

	if fc.Labels.TitleWidth != 0 {
		c.titleWidth = float64(fc.Labels.TitleWidth)
	}
	if fc.Labels.ArtistWidth != 0 {
		c.artistWidth = float64(fc.Labels.ArtistWidth)
	}
	if fc.Labels.TitleFontSize != 0 {
		c.titleFontSize = float64(fc.Labels.TitleFontSize)
	}
	if fc.Labels.ArtistFontSize != 0 {
		c.artistFontSize = float64(fc.Labels.ArtistFontSize)
	}
	// Placeholders may be set to "" to disable substitution
	if fc.Labels.PlaceholderTitle != nil {
		c.placeholderTitle = *fc.Labels.PlaceholderTitle
	}
	if fc.Labels.PlaceholderArtist != nil {
		c.placeholderArtist = *fc.Labels.PlaceholderArtist
	}

	if fc.Source.Kind != "" {
		c.source = strings.ToLower(strings.TrimSpace(fc.Source.Kind))
	}

	if fc.Artwork.SearchURL != "" {
		c.searchURL = fc.Artwork.SearchURL
	}
	if fc.Artwork.LookupTimeoutSeconds != 0 {
		c.lookupTimeout = time.Duration(fc.Artwork.LookupTimeoutSeconds) * time.Second
	}
}

func (c *AppConfig) applyEnv() {
	if v := os.Getenv("NOWPANEL_OUTPUT_DIR"); v != "" {
		c.outputDir = v
	}
	if v := os.Getenv("NOWPANEL_SOURCE"); v != "" {
		c.source = strings.ToLower(strings.TrimSpace(v))
	}
	if v := os.Getenv("NOWPANEL_PLACEHOLDER_ARTIST"); v != "" {
		c.placeholderArtist = v
	}
}

// Validate checks that the configuration is usable
func (c *AppConfig) Validate() error {
	var err error
	if c.outputDir == "" {
		err = multierr.Append(err, errors.New("panel.output_dir must not be empty"))
	}
	if c.source != SourceMPRIS && c.source != SourceStdin {
		err = multierr.Append(err, fmt.Errorf("source.kind must be %q or %q, got %q", SourceMPRIS, SourceStdin, c.source))
	}
	if c.titleWidth <= 0 || c.artistWidth <= 0 {
		err = multierr.Append(err, errors.New("label widths must be positive"))
	}
	if c.titleFontSize <= 0 || c.artistFontSize <= 0 {
		err = multierr.Append(err, errors.New("font sizes must be positive"))
	}
	if c.coverSize <= 0 {
		err = multierr.Append(err, errors.New("panel.cover_size must be positive"))
	}
	if c.lookupTimeout <= 0 {
		err = multierr.Append(err, errors.New("artwork.lookup_timeout_seconds must be positive"))
	}
	if !strings.HasPrefix(c.searchURL, "http://") && !strings.HasPrefix(c.searchURL, "https://") {
		err = multierr.Append(err, fmt.Errorf("artwork.search_url must be an http(s) URL, got %q", c.searchURL))
	}
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func resolvePath(path string) (string, bool, error) {
	if path == "" {
		path = os.Getenv("NOWPANEL_CONFIG")
	}
	explicit := path != ""
	if !explicit {
		path = defaultConfigPath
	}

	expanded, err := expandPath(path)
	if err != nil {
		return "", false, err
	}

	info, err := os.Stat(expanded)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			if explicit {
				return "", false, fmt.Errorf("config file not found: %s", expanded)
			}
			return expanded, false, nil
		}
		return "", false, fmt.Errorf("stat config: %w", err)
	}
	if info.IsDir() {
		return "", false, fmt.Errorf("config path is a directory: %s", expanded)
	}
	return expanded, true, nil
}

// expandPath expands environment variables and a leading ~
func expandPath(path string) (string, error) {
	path = os.ExpandEnv(path)
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		path = filepath.Join(home, path[1:])
	}
	return path, nil
}

// GetPath returns the file the configuration was read from, or "" when only
// defaults and environment were used
func (c *AppConfig) GetPath() string {
	return c.path
}

// GetOutputDir returns the directory the panel state is written to
func (c *AppConfig) GetOutputDir() string {
	return c.outputDir
}

// GetSource returns the snapshot source kind
func (c *AppConfig) GetSource() string {
	return c.source
}

func (c *AppConfig) GetPlaceholderTitle() string {
	return c.placeholderTitle
}

func (c *AppConfig) GetPlaceholderArtist() string {
	return c.placeholderArtist
}

func (c *AppConfig) GetTitleWidth() float64 {
	return c.titleWidth
}

func (c *AppConfig) GetArtistWidth() float64 {
	return c.artistWidth
}

func (c *AppConfig) GetTitleFontSize() float64 {
	return c.titleFontSize
}

func (c *AppConfig) GetArtistFontSize() float64 {
	return c.artistFontSize
}

// GetCoverSize returns the edge of the square cover slot in pixels
func (c *AppConfig) GetCoverSize() int {
	return c.coverSize
}

// GetSearchURL returns the artist search endpoint
func (c *AppConfig) GetSearchURL() string {
	return c.searchURL
}

func (c *AppConfig) GetLookupTimeout() time.Duration {
	return c.lookupTimeout
}

// GetRefreshCommand returns the command run after each panel write
func (c *AppConfig) GetRefreshCommand() []string {
	return c.refreshCommand
}
