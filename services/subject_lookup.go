package services

import (
	"context"
	"errors"
	"regexp"
	"strconv"
	"strings"

	"github.com/isir-tracker/isir-backend/models"
	"github.com/isir-tracker/isir-backend/shared"
	"github.com/sirupsen/logrus"
)

// ErrSubjectNotFound is returned when the registry knows no subject for the query.
var ErrSubjectNotFound = errors.New("subject not found")

var (
	caseKeyPattern   = regexp.MustCompile(`^([A-Z]+)\s+(\d+)/(\d+)$`)
	companyIDPattern = regexp.MustCompile(`^\d{8}$`)
)

const caseKeyFormat = "KIND NUMBER/YEAR (e.g. INS 12925/2022)"

// ParseCaseKey parses "INS 12925/2022" into its kind, number and year.
func ParseCaseKey(text string) (models.CaseKey, error) {
	match := caseKeyPattern.FindStringSubmatch(strings.TrimSpace(text))
	if match == nil {
		return models.CaseKey{}, shared.NewFormatError("ParseCaseKey", text, caseKeyFormat)
	}
	number, err := strconv.Atoi(match[2])
	if err != nil {
		return models.CaseKey{}, shared.NewFormatError("ParseCaseKey", text, caseKeyFormat)
	}
	year, err := strconv.Atoi(match[3])
	if err != nil {
		return models.CaseKey{}, shared.NewFormatError("ParseCaseKey", text, caseKeyFormat)
	}
	return models.CaseKey{Kind: match[1], Number: number, Year: year}, nil
}

// CompanyLookup is implemented by clients that can search by registration number.
type CompanyLookup interface {
	SubjectByCompanyID(ctx context.Context, companyID string) ([]models.SubjectRecord, error)
}

// SubjectLookupService resolves case references or registration numbers to debtor records.
type SubjectLookupService struct {
	client RegistryClient
	logger *logrus.Entry
}

func NewSubjectLookupService(client RegistryClient) *SubjectLookupService {
	return &SubjectLookupService{
		client: client,
		logger: logrus.WithField("component", "SubjectLookupService"),
	}
}

// Lookup accepts either a case key or an eight digit registration number. Malformed input
// fails with a format error before any registry call.
func (s *SubjectLookupService) Lookup(ctx context.Context, query string) ([]models.SubjectRecord, error) {
	query = strings.TrimSpace(query)
	if companyIDPattern.MatchString(query) {
		return s.ByCompanyID(ctx, query)
	}
	key, err := ParseCaseKey(query)
	if err != nil {
		return nil, err
	}
	return s.ByCaseKey(ctx, key)
}

func (s *SubjectLookupService) ByCaseKey(ctx context.Context, key models.CaseKey) ([]models.SubjectRecord, error) {
	subjects, err := s.client.SubjectByCaseKey(ctx, key)
	if err != nil {
		s.logger.WithError(err).WithField("case", key.String()).Warn("Subject lookup failed")
		return nil, err
	}
	if len(subjects) == 0 {
		return nil, ErrSubjectNotFound
	}
	return subjects, nil
}

func (s *SubjectLookupService) ByCompanyID(ctx context.Context, companyID string) ([]models.SubjectRecord, error) {
	if !companyIDPattern.MatchString(companyID) {
		return nil, shared.NewFormatError("ByCompanyID", companyID, "eight digit registration number")
	}
	lookup, ok := s.client.(CompanyLookup)
	if !ok {
		return nil, shared.NewServiceError(shared.ErrorCategoryConfiguration, shared.CodeServiceUnavailable,
			"registration number lookup is not supported by this registry client", "subject_lookup", "ByCompanyID", false, nil)
	}
	subjects, err := lookup.SubjectByCompanyID(ctx, companyID)
	if err != nil {
		s.logger.WithError(err).WithField("company_id", companyID).Warn("Subject lookup failed")
		return nil, err
	}
	if len(subjects) == 0 {
		return nil, ErrSubjectNotFound
	}
	return subjects, nil
}
