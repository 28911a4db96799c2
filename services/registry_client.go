package services

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/isir-tracker/isir-backend/models"
	"github.com/isir-tracker/isir-backend/shared"
	"github.com/sirupsen/logrus"
)

const (
	opLatestSequenceID = "getIsirWsPublicPodnetPosledniId"
	opBatchAt          = "getIsirWsPublicPodnetId"
	opSubjectData      = "getIsirWsCuzkData"
)

// RegistryClient is the typed view of the registry operations the scanner and lookups need.
type RegistryClient interface {
	LatestSequenceID(ctx context.Context) (models.SequenceID, error)
	BatchAt(ctx context.Context, id models.SequenceID) ([]models.RegistryRecord, error)
	SubjectByCaseKey(ctx context.Context, key models.CaseKey) ([]models.SubjectRecord, error)
}

// ISIRClient talks SOAP to the public and CUZK registry services. Every call is retried
// through shared.CallWithRetry and spaced by the request rate limiter.
type ISIRClient struct {
	config      shared.RegistryConfig
	httpFactory *shared.HTTPClientFactory
	rateLimiter *shared.HTTPRequestRateLimiter
	metrics     *shared.ServiceMetrics
	logger      *logrus.Entry
}

// NewISIRClient creates a registry client. A nil factory builds one from the config.
func NewISIRClient(config shared.RegistryConfig, httpFactory *shared.HTTPClientFactory) *ISIRClient {
	if httpFactory == nil {
		httpFactory = shared.NewHTTPClientFactory(config.RequestTimeout, config.InsecureTLS)
	}
	return &ISIRClient{
		config:      config,
		httpFactory: httpFactory,
		rateLimiter: shared.NewHTTPRequestRateLimiter(config.RequestRateLimit),
		metrics:     shared.NewServiceMetrics("isir_registry"),
		logger: logrus.WithFields(logrus.Fields{
			"component": "ISIRClient",
			"endpoint":  config.PublicEndpoint,
		}),
	}
}

// Metrics exposes the client's request counters.
func (c *ISIRClient) Metrics() *shared.ServiceMetrics {
	return c.metrics
}

// LatestSequenceID returns the newest event id known to the registry.
func (c *ISIRClient) LatestSequenceID(ctx context.Context) (models.SequenceID, error) {
	envelope := buildEnvelope(c.config.PublicNamespace, opLatestSequenceID)

	return shared.CallWithRetry(ctx, c.config.RetryPolicy(), opLatestSequenceID, func(ctx context.Context) (models.SequenceID, error) {
		body, err := c.post(ctx, c.config.PublicEndpoint, opLatestSequenceID, envelope)
		if err != nil {
			return 0, err
		}
		payload, err := decodeEnvelope(opLatestSequenceID, body)
		if err != nil {
			return 0, err
		}
		return decodeLastID(opLatestSequenceID, payload)
	})
}

// BatchAt returns the upstream page of events starting at or near id, in ascending id order.
// An empty slice means there is no data at or beyond id.
func (c *ISIRClient) BatchAt(ctx context.Context, id models.SequenceID) ([]models.RegistryRecord, error) {
	envelope := buildEnvelope(c.config.PublicNamespace, opBatchAt,
		soapParam{Name: "idPodnetu", Value: strconv.FormatUint(uint64(id), 10)})

	records, err := shared.CallWithRetry(ctx, c.config.RetryPolicy(), opBatchAt, func(ctx context.Context) ([]models.RegistryRecord, error) {
		body, err := c.post(ctx, c.config.PublicEndpoint, opBatchAt, envelope)
		if err != nil {
			return nil, err
		}
		payload, err := decodeEnvelope(opBatchAt, body)
		if err != nil {
			return nil, err
		}
		if len(payload.Data) == 0 && payload.Status != nil && payload.Status.Code != "" {
			c.logger.WithFields(logrus.Fields{
				"id_podnetu": id,
				"code":       payload.Status.Code,
				"message":    payload.Status.Message,
			}).Debug("Registry returned no events")
		}
		return decodeRecords(opBatchAt, payload)
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// SubjectByCaseKey queries the CUZK service for debtors of one case. An empty slice means
// the case is unknown.
func (c *ISIRClient) SubjectByCaseKey(ctx context.Context, key models.CaseKey) ([]models.SubjectRecord, error) {
	envelope := buildEnvelope(c.config.CUZKNamespace, opSubjectData,
		soapParam{Name: "druhVec", Value: key.Kind},
		soapParam{Name: "bcVec", Value: strconv.Itoa(key.Number)},
		soapParam{Name: "rocnik", Value: strconv.Itoa(key.Year)},
	)
	return c.subjects(ctx, envelope, key)
}

// SubjectByCompanyID queries the CUZK service by registration number (IČ).
func (c *ISIRClient) SubjectByCompanyID(ctx context.Context, companyID string) ([]models.SubjectRecord, error) {
	envelope := buildEnvelope(c.config.CUZKNamespace, opSubjectData, soapParam{Name: "ic", Value: companyID})
	return c.subjects(ctx, envelope, models.CaseKey{})
}

func (c *ISIRClient) subjects(ctx context.Context, envelope []byte, key models.CaseKey) ([]models.SubjectRecord, error) {
	return shared.CallWithRetry(ctx, c.config.RetryPolicy(), opSubjectData, func(ctx context.Context) ([]models.SubjectRecord, error) {
		body, err := c.postWithCollector(ctx, c.config.CUZKEndpoint, opSubjectData, envelope)
		if err != nil {
			return nil, err
		}
		payload, err := decodeEnvelope(opSubjectData, body)
		if err != nil {
			return nil, err
		}
		return decodeSubjects(payload, key), nil
	})
}

func (c *ISIRClient) post(ctx context.Context, endpoint, operation string, envelope []byte) ([]byte, error) {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, err
	}
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(envelope))
	if err != nil {
		return nil, fmt.Errorf("%s: build request: %w", operation, err)
	}
	shared.SetBrowserLikeHeaders(req, "text/xml")
	req.Header.Set("Content-Type", "text/xml; charset=utf-8")
	req.Header.Set("SOAPAction", `""`)

	client := c.httpFactory.CreateOptimizedHTTPClient(c.config.RequestTimeout)
	resp, err := client.Do(req)
	if err != nil {
		c.metrics.RecordRequest(false, time.Since(start))
		return nil, fmt.Errorf("%s: %w", operation, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.metrics.RecordRequest(false, time.Since(start))
		return nil, fmt.Errorf("%s: read response: %w", operation, err)
	}

	// SOAP faults arrive with 500; let the decoder surface them.
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusInternalServerError {
		c.metrics.RecordRequest(false, time.Since(start))
		return nil, fmt.Errorf("%s: unexpected HTTP status %d", operation, resp.StatusCode)
	}

	c.metrics.RecordRequest(resp.StatusCode == http.StatusOK, time.Since(start))
	return body, nil
}

// postWithCollector sends the envelope through a colly collector.
func (c *ISIRClient) postWithCollector(ctx context.Context, endpoint, operation string, envelope []byte) ([]byte, error) {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, err
	}
	start := time.Now()

	collector := colly.NewCollector(
		colly.AllowURLRevisit(),
		colly.StdlibContext(ctx),
	)
	collector.ParseHTTPErrorResponse = true
	collector.SetRequestTimeout(c.config.RequestTimeout)
	collector.WithTransport(c.httpFactory.Transport())

	var (
		body       []byte
		statusCode int
		requestErr error
	)

	collector.OnRequest(func(r *colly.Request) {
		r.Headers.Set("Content-Type", "text/xml; charset=utf-8")
		r.Headers.Set("SOAPAction", `""`)
		r.Headers.Set("Accept", "text/xml")
	})

	collector.OnResponse(func(r *colly.Response) {
		statusCode = r.StatusCode
		body = r.Body
	})

	collector.OnError(func(r *colly.Response, err error) {
		requestErr = err
		if r != nil {
			statusCode = r.StatusCode
		}
	})

	if err := collector.PostRaw(endpoint, envelope); err != nil && requestErr == nil {
		requestErr = err
	}
	collector.Wait()

	if requestErr != nil {
		c.metrics.RecordRequest(false, time.Since(start))
		return nil, fmt.Errorf("%s: %w", operation, requestErr)
	}
	if statusCode != http.StatusOK && statusCode != http.StatusInternalServerError {
		c.metrics.RecordRequest(false, time.Since(start))
		return nil, fmt.Errorf("%s: unexpected HTTP status %d", operation, statusCode)
	}

	c.metrics.RecordRequest(statusCode == http.StatusOK, time.Since(start))
	return body, nil
}
