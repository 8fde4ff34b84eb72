package domain

import "strings"

// PlayerStatus represents the current state of the media player
type PlayerStatus string

const (
	// StatusPlaying indicates the media is currently playing
	StatusPlaying PlayerStatus = "Playing"
	// StatusPaused indicates the media is paused
	StatusPaused PlayerStatus = "Paused"
	// StatusStopped indicates the media is stopped
	StatusStopped PlayerStatus = "Stopped"
)

// MediaSnapshot is one point-in-time report of the currently playing media.
// An empty Cover means no cover art was supplied.
type MediaSnapshot struct {
	// Title of the currently playing track
	Title string
	// Artist credit, possibly listing several artists
	Artist string
	// Album name
	Album string
	// Cover is an http(s), file or data URL for the artwork
	Cover string
	// Status is the current playback status
	Status PlayerStatus
}

// WithPlaceholders returns a copy of s where an empty title or artist is
// replaced by the given placeholder. Empty placeholders leave the field alone.
func (s MediaSnapshot) WithPlaceholders(title, artist string) MediaSnapshot {
	if strings.TrimSpace(s.Title) == "" && title != "" {
		s.Title = title
	}
	if strings.TrimSpace(s.Artist) == "" && artist != "" {
		s.Artist = artist
	}
	return s
}

// Label identifies one text slot of the panel
type Label string

const (
	LabelTitle  Label = "title"
	LabelArtist Label = "artist"
)

// Separator follows each copy of a label in marquee content. U+00A0 does not
// collapse under whitespace trimming.
const Separator = "\u00a0\u00a0\u00a0\u00a0\u00a0\u00a0\u00a0\u00a0"

// LabelContent is the renderable form of a label.
type LabelContent struct {
	// Original is the raw, never duplicated text
	Original string
	// Overflowing is true when the text is wider than its container and must scroll
	Overflowing bool
	// Segments are the rendered pieces: [Original] or
	// [Original, Separator, Original, Separator] when overflowing
	Segments []string
}

// Render joins the segments into the string to paint
func (c LabelContent) Render() string {
	return strings.Join(c.Segments, "")
}

// RenderedLabelState holds the last raw text rendered for a label.
// Rendered is false until the first render.
type RenderedLabelState struct {
	Text     string
	Rendered bool
}

// Changed reports whether text differs from what was last rendered
func (s RenderedLabelState) Changed(text string) bool {
	return !s.Rendered || s.Text != text
}

// ArtworkCacheState remembers the artist for which a fallback lookup was last
// dispatched. An empty LastQueriedArtist means absent.
type ArtworkCacheState struct {
	LastQueriedArtist string
}

// Reset forgets the last queried artist
func (s *ArtworkCacheState) Reset() {
	s.LastQueriedArtist = ""
}

// ArtistResult is one entry of an artist search
type ArtistResult struct {
	ID            int64
	Name          string
	Link          string
	PictureMedium string
	PictureBig    string
	Fans          int64
}
