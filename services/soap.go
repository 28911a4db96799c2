package services

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/isir-tracker/isir-backend/models"
	"github.com/isir-tracker/isir-backend/shared"
	"github.com/sirupsen/logrus"
)

const soapEnvelopeNamespace = "http://schemas.xmlsoap.org/soap/envelope/"

type soapParam struct {
	Name  string
	Value string
}

// buildEnvelope renders a SOAP 1.1 request whose body element is <typ:{operation}Request>.
func buildEnvelope(namespace, operation string, params ...soapParam) []byte {
	var buf bytes.Buffer
	buf.WriteString(`<?xml version="1.0" encoding="UTF-8"?>`)
	fmt.Fprintf(&buf, `<soapenv:Envelope xmlns:soapenv="%s" xmlns:typ="%s">`, soapEnvelopeNamespace, namespace)
	buf.WriteString(`<soapenv:Header/><soapenv:Body>`)
	fmt.Fprintf(&buf, `<typ:%sRequest>`, operation)
	for _, p := range params {
		fmt.Fprintf(&buf, "<%s>", p.Name)
		_ = xml.EscapeText(&buf, []byte(p.Value))
		fmt.Fprintf(&buf, "</%s>", p.Name)
	}
	fmt.Fprintf(&buf, `</typ:%sRequest>`, operation)
	buf.WriteString(`</soapenv:Body></soapenv:Envelope>`)
	return buf.Bytes()
}

type soapFault struct {
	Code   string `xml:"faultcode"`
	String string `xml:"faultstring"`
}

func (f *soapFault) Error() string {
	return fmt.Sprintf("soap fault %s: %s", strings.TrimSpace(f.Code), strings.TrimSpace(f.String))
}

// soapResponse matches any envelope; element names are compared by local name only.
type soapResponse struct {
	Body struct {
		Fault   *soapFault  `xml:"Fault"`
		Payload soapPayload `xml:",any"`
	} `xml:"Body"`
}

type soapPayload struct {
	XMLName  xml.Name
	LastID   []string      `xml:"cisloPosledniId"`
	Data     []wireRecord  `xml:"data"`
	Subjects []wireSubject `xml:"isirWsCuzkData"`
	Status   *wireStatus   `xml:"stav"`
}

type wireStatus struct {
	Code    string `xml:"kodChyby"`
	Message string `xml:"textChyby"`
}

type wireRecord struct {
	ID            string `xml:"id"`
	PublishedAt   string `xml:"datumZverejneniUdalosti"`
	Description   string `xml:"popisUdalosti"`
	DocumentURL   string `xml:"dokumentUrl"`
	CaseReference string `xml:"spisovaZnacka"`
}

type wireSubject struct {
	CompanyID   string `xml:"ic"`
	BirthNumber string `xml:"rc"`
	Surname     string `xml:"nazevOsoby"`
	FirstName   string `xml:"jmeno"`
	CaseKind    string `xml:"druhVec"`
	CaseNumber  string `xml:"bcVec"`
	CaseYear    string `xml:"rocnik"`
	Status      string `xml:"druhStavKonkursu"`
	DetailURL   string `xml:"urlDetailRizeni"`
	City        string `xml:"mesto"`
	Street      string `xml:"ulice"`
	HouseNumber string `xml:"cisloPopisne"`
	PostalCode  string `xml:"psc"`
}

func decodeEnvelope(operation string, body []byte) (*soapPayload, error) {
	var resp soapResponse
	if err := xml.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%s: decode envelope: %w", operation, err)
	}
	if resp.Body.Fault != nil {
		return nil, resp.Body.Fault
	}
	return &resp.Body.Payload, nil
}

// decodeLastID unwraps cisloPosledniId, which may arrive as one value or a list.
func decodeLastID(operation string, payload *soapPayload) (models.SequenceID, error) {
	for _, raw := range payload.LastID {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%s: cisloPosledniId %q is not a sequence id: %w", operation, raw, err)
		}
		return models.SequenceID(id), nil
	}
	return 0, shared.NewMalformedResponseError(operation, "response carries no cisloPosledniId")
}

// decodeRecords converts wire records into RegistryRecords. Records without a usable id or
// timestamp are skipped with a warning; missing description and case reference default to "".
// A non-empty page in which no record decodes is a malformed response, not the end of history.
func decodeRecords(operation string, payload *soapPayload) ([]models.RegistryRecord, error) {
	records := make([]models.RegistryRecord, 0, len(payload.Data))
	for _, w := range payload.Data {
		id, err := strconv.ParseUint(strings.TrimSpace(w.ID), 10, 64)
		if err != nil {
			logSkippedRecord(operation, w, "id", err)
			continue
		}
		publishedAt, err := parseRegistryTime(w.PublishedAt)
		if err != nil {
			logSkippedRecord(operation, w, "datumZverejneniUdalosti", err)
			continue
		}
		records = append(records, models.RegistryRecord{
			ID:            models.SequenceID(id),
			PublishedAt:   publishedAt,
			Description:   strings.TrimSpace(w.Description),
			DocumentURL:   optionalString(w.DocumentURL),
			CaseReference: strings.TrimSpace(w.CaseReference),
		})
	}
	if len(payload.Data) > 0 && len(records) == 0 {
		return nil, shared.NewMalformedResponseError(operation,
			fmt.Sprintf("none of %d records carries a usable id and timestamp", len(payload.Data)))
	}
	return records, nil
}

func logSkippedRecord(operation string, w wireRecord, field string, err error) {
	logrus.WithFields(logrus.Fields{
		"component":    "ISIRClient",
		"operation":    operation,
		"field":        field,
		"raw_id":       w.ID,
		"raw_datetime": w.PublishedAt,
	}).WithError(err).Warn("Skipping undecodable registry record")
}

func decodeSubjects(payload *soapPayload, key models.CaseKey) []models.SubjectRecord {
	subjects := make([]models.SubjectRecord, 0, len(payload.Subjects))
	for _, w := range payload.Subjects {
		caseRef := key.String()
		if w.CaseKind != "" && w.CaseNumber != "" && w.CaseYear != "" {
			caseRef = fmt.Sprintf("%s %s/%s", strings.TrimSpace(w.CaseKind), strings.TrimSpace(w.CaseNumber), strings.TrimSpace(w.CaseYear))
		}
		subjects = append(subjects, models.SubjectRecord{
			CaseReference: caseRef,
			Name:          joinNonEmpty(" ", w.FirstName, w.Surname),
			Status:        strings.TrimSpace(w.Status),
			CompanyID:     optionalString(w.CompanyID),
			BirthNumber:   optionalString(w.BirthNumber),
			Address:       optionalString(joinNonEmpty(", ", joinNonEmpty(" ", w.Street, w.HouseNumber), joinNonEmpty(" ", w.PostalCode, w.City))),
			DetailURL:     optionalString(w.DetailURL),
		})
	}
	return subjects
}

var registryTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05.999999999Z0700",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// parseRegistryTime parses an xsd:dateTime and drops its zone, keeping the wall clock.
func parseRegistryTime(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	for _, layout := range registryTimeLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return NormalizeTimestamp(t), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", raw)
}

// NormalizeTimestamp strips the zone from t, returning the same wall-clock reading in UTC.
func NormalizeTimestamp(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC)
}

func optionalString(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

func joinNonEmpty(sep string, parts ...string) string {
	kept := parts[:0:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, sep)
}
