package services

import (
	"regexp"

	"github.com/isir-tracker/isir-backend/shared"
)

var documentIDPattern = regexp.MustCompile(`idDokument=(\d+)`)

// DocumentURLBuilder re-expresses raw registry document links on the public document endpoint.
type DocumentURLBuilder struct {
	baseURL string
}

// NewDocumentURLBuilder uses baseURL, or the public registry endpoint when empty.
func NewDocumentURLBuilder(baseURL string) *DocumentURLBuilder {
	if baseURL == "" {
		baseURL = shared.DefaultDocumentBaseURL
	}
	return &DocumentURLBuilder{baseURL: baseURL}
}

// Derive returns base?idDokument=<digits>, or nil when raw carries no document id.
func (b *DocumentURLBuilder) Derive(raw *string) *string {
	if raw == nil {
		return nil
	}
	match := documentIDPattern.FindStringSubmatch(*raw)
	if match == nil {
		return nil
	}
	derived := b.baseURL + "?idDokument=" + match[1]
	return &derived
}

// DerivePublicDocumentURL derives the public link using the default base URL.
func DerivePublicDocumentURL(raw string) *string {
	return NewDocumentURLBuilder("").Derive(&raw)
}

// DocumentIDFromURL returns the idDokument digits of a registry link, or "" when absent.
func DocumentIDFromURL(raw string) string {
	match := documentIDPattern.FindStringSubmatch(raw)
	if match == nil {
		return ""
	}
	return match[1]
}
