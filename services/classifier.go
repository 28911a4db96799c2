package services

import (
	"strings"
	"unicode"

	"github.com/isir-tracker/isir-backend/shared"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// AuctionClassifier decides whether an event description announces an auction.
// Matching is a case-insensitive substring test, so a description that merely mentions
// a keyword also matches.
type AuctionClassifier struct {
	keywords []string
	folded   []string
}

// NewAuctionClassifier builds a classifier for keywords, or the default set when empty.
func NewAuctionClassifier(keywords []string) *AuctionClassifier {
	if len(keywords) == 0 {
		keywords = shared.DefaultKeywords()
	}
	c := &AuctionClassifier{}
	for _, kw := range keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw == "" {
			continue
		}
		c.keywords = append(c.keywords, kw)
		c.folded = append(c.folded, StripDiacritics(kw))
	}
	return c
}

// IsAuctionNotice reports whether description contains any keyword. Unaccented
// keywords also match accented text and vice versa.
func (c *AuctionClassifier) IsAuctionNotice(description string) bool {
	if description == "" {
		return false
	}
	lower := strings.ToLower(description)
	for _, kw := range c.keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}

	folded := StripDiacritics(lower)
	for _, kw := range c.folded {
		if strings.Contains(folded, kw) {
			return true
		}
	}
	return false
}

var defaultClassifier = NewAuctionClassifier(nil)

// IsAuctionNotice classifies description against the default keyword set.
func IsAuctionNotice(description string) bool {
	return defaultClassifier.IsAuctionNotice(description)
}

// StripDiacritics removes combining marks after NFD decomposition ("dražba" becomes "drazba").
func StripDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}
