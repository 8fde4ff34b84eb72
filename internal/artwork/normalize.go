package artwork

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

const featToken = "feat"

// NormalizeArtistQuery reduces an artist credit to the primary artist name:
// the text before the first comma, cut before any "feat" token, trimmed.
//
//	"Queen, David Bowie feat. X" -> "Queen"
//	"A feat B, C"                -> "A"
func NormalizeArtistQuery(artist string) string {
	primary, _, _ := strings.Cut(artist, ",")
	if i := indexFeat(primary); i >= 0 {
		primary = primary[:i]
	}
	primary = strings.TrimRightFunc(primary, func(r rune) bool {
		return unicode.IsSpace(r) || r == '(' || r == '['
	})
	return norm.NFC.String(strings.TrimSpace(primary))
}

// indexFeat returns the byte offset of the first case-insensitive "feat"
// token, or -1. The token must follow whitespace or an opening bracket and
// must not run into further letters, so "Featherweight" is left alone.
func indexFeat(s string) int {
	for i := 1; i+len(featToken) <= len(s); i++ {
		if !strings.EqualFold(s[i:i+len(featToken)], featToken) {
			continue
		}
		prev := s[i-1]
		if prev != ' ' && prev != '\t' && prev != '(' && prev != '[' {
			continue
		}
		end := i + len(featToken)
		if end < len(s) && isASCIILetter(s[end]) && !strings.HasPrefix(strings.ToLower(s[end:]), "uring") {
			continue
		}
		return i
	}
	return -1
}

func isASCIILetter(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}
