package models

import (
	"fmt"
	"time"
)

// SequenceID is a position in the registry's append-only event sequence.
type SequenceID uint64

// RegistryRecord is one published registry event after decoding.
// PublishedAt is wall-clock time with the zone dropped and stored as UTC.
type RegistryRecord struct {
	ID            SequenceID `json:"id"`
	PublishedAt   time.Time  `json:"published_at"`
	Description   string     `json:"description"`
	DocumentURL   *string    `json:"document_url,omitempty"`
	CaseReference string     `json:"case_reference"`
}

// CaseKey identifies an insolvency case, e.g. "INS 12925/2022".
type CaseKey struct {
	Kind   string `json:"kind"`
	Number int    `json:"number"`
	Year   int    `json:"year"`
}

func (k CaseKey) String() string {
	return fmt.Sprintf("%s %d/%d", k.Kind, k.Number, k.Year)
}

// SubjectRecord is a debtor entry returned by the case lookup.
type SubjectRecord struct {
	CaseReference string  `json:"case_reference"`
	Name          string  `json:"name"`
	Status        string  `json:"status"`
	CompanyID     *string `json:"company_id,omitempty"`
	BirthNumber   *string `json:"birth_number,omitempty"`
	Address       *string `json:"address,omitempty"`
	DetailURL     *string `json:"detail_url,omitempty"`
}
