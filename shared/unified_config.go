package shared

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	DefaultPublicEndpoint  = "https://isir.justice.cz:8443/isir_public_ws/IsirWsPublicService"
	DefaultCUZKEndpoint    = "https://isir.justice.cz:8443/isir_cuzk_ws/IsirWsCuzkService"
	DefaultDocumentBaseURL = "https://isir.justice.cz:8443/isir_public_ws/doc/Document"
	DefaultPublicNamespace = "http://isirpublicws.cca.cz/types/"
	DefaultCUZKNamespace   = "http://isircuzkws.cca.cz/types/"

	CursorAdvanceLast = "last"
	CursorAdvanceNext = "next"
)

// UnifiedConfiguration holds all configuration parameters for the entire application
type UnifiedConfiguration struct {
	Registry  RegistryConfig `json:"registry" yaml:"registry"`
	Scanner   ScannerConfig  `json:"scanner" yaml:"scanner"`
	Documents DocumentConfig `json:"documents" yaml:"documents"`
	Summary   SummaryConfig  `json:"summary" yaml:"summary"`
	Report    ReportConfig   `json:"report" yaml:"report"`
	Jobs      JobsConfig     `json:"jobs" yaml:"jobs"`
	Database  DatabaseConfig `json:"database" yaml:"database"`
	Logging   LoggingConfig  `json:"logging" yaml:"logging"`
}

// RegistryConfig holds the SOAP endpoints and the per-call resilience settings
type RegistryConfig struct {
	PublicEndpoint   string        `json:"public_endpoint" yaml:"public_endpoint"`
	CUZKEndpoint     string        `json:"cuzk_endpoint" yaml:"cuzk_endpoint"`
	DocumentBaseURL  string        `json:"document_base_url" yaml:"document_base_url"`
	PublicNamespace  string        `json:"public_namespace" yaml:"public_namespace"`
	CUZKNamespace    string        `json:"cuzk_namespace" yaml:"cuzk_namespace"`
	RequestTimeout   time.Duration `json:"request_timeout" yaml:"request_timeout"`
	InsecureTLS      bool          `json:"insecure_tls" yaml:"insecure_tls"`
	MaxAttempts      int           `json:"max_attempts" yaml:"max_attempts"`
	RetryDelay       time.Duration `json:"retry_delay" yaml:"retry_delay"`
	RequestRateLimit time.Duration `json:"rate_limit" yaml:"rate_limit"`
}

// RetryPolicy derives the caller policy from the registry settings
func (c RegistryConfig) RetryPolicy() RetryPolicy {
	if c.MaxAttempts <= 0 {
		return DefaultRetryPolicy()
	}
	return RetryPolicy{MaxAttempts: c.MaxAttempts, Delay: c.RetryDelay}
}

// ScannerConfig tunes the window locator and the scan loop
type ScannerConfig struct {
	ProbeStride   uint64   `json:"probe_stride" yaml:"probe_stride"`
	LookbackUnit  uint64   `json:"lookback_unit" yaml:"lookback_unit"`
	LookbackUnits uint64   `json:"lookback_units" yaml:"lookback_units"`
	CursorAdvance string   `json:"cursor_advance" yaml:"cursor_advance"`
	MaxBatches    int      `json:"max_batches" yaml:"max_batches"`
	Keywords      []string `json:"keywords" yaml:"keywords"`
}

// DocumentConfig holds document download settings
type DocumentConfig struct {
	Directory string        `json:"directory" yaml:"directory"`
	ChunkSize int           `json:"chunk_size" yaml:"chunk_size"`
	Timeout   time.Duration `json:"timeout" yaml:"timeout"`
}

// SummaryConfig holds the AI summary settings
type SummaryConfig struct {
	APIKey       string        `json:"-" yaml:"-"`
	Endpoint     string        `json:"endpoint" yaml:"endpoint"`
	APIVersion   string        `json:"api_version" yaml:"api_version"`
	Model        string        `json:"model" yaml:"model"`
	Language     string        `json:"language" yaml:"language"`
	Timeout      time.Duration `json:"timeout" yaml:"timeout"`
	CacheTTL     time.Duration `json:"cache_ttl" yaml:"cache_ttl"`
	CacheMaxSize int           `json:"cache_max_size" yaml:"cache_max_size"`
}

// ReportConfig holds PDF rendering settings
type ReportConfig struct {
	ChromePath string        `json:"chrome_path" yaml:"chrome_path"`
	Timeout    time.Duration `json:"timeout" yaml:"timeout"`
}

// JobsConfig holds background job settings
type JobsConfig struct {
	DailyScanEnabled bool          `json:"daily_scan_enabled" yaml:"daily_scan_enabled"`
	ScanJobTTL       time.Duration `json:"scan_job_ttl" yaml:"scan_job_ttl"`
}

// DatabaseConfig holds database connection configuration
type DatabaseConfig struct {
	MaxOpenConns    int           `json:"max_open_conns" yaml:"max_open_conns"`
	MaxIdleConns    int           `json:"max_idle_conns" yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime" yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `json:"conn_max_idle_time" yaml:"conn_max_idle_time"`
	PingTimeout     time.Duration `json:"ping_timeout" yaml:"ping_timeout"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level       string `json:"level" yaml:"level"`
	Format      string `json:"format" yaml:"format"`
	ServiceName string `json:"service_name" yaml:"service_name"`
}

// DefaultKeywords is the auction notice keyword set: the accented phrase, its
// unaccented variant and the broader stems.
func DefaultKeywords() []string {
	return []string{"dražební vyhláška", "drazebni vyhlaska", "dražba", "dražební", "drazba", "drazebni"}
}

// NewDefaultUnifiedConfiguration returns production-ready default configuration
func NewDefaultUnifiedConfiguration() *UnifiedConfiguration {
	return &UnifiedConfiguration{
		Registry: RegistryConfig{
			PublicEndpoint:   DefaultPublicEndpoint,
			CUZKEndpoint:     DefaultCUZKEndpoint,
			DocumentBaseURL:  DefaultDocumentBaseURL,
			PublicNamespace:  DefaultPublicNamespace,
			CUZKNamespace:    DefaultCUZKNamespace,
			RequestTimeout:   30 * time.Second,
			InsecureTLS:      true,
			MaxAttempts:      5,
			RetryDelay:       2 * time.Second,
			RequestRateLimit: 0,
		},
		Scanner: ScannerConfig{
			ProbeStride:   25000,
			LookbackUnit:  1000,
			LookbackUnits: 50,
			CursorAdvance: CursorAdvanceLast,
			MaxBatches:    0,
			Keywords:      DefaultKeywords(),
		},
		Documents: DocumentConfig{
			Directory: "data/documents",
			ChunkSize: 8192,
			Timeout:   30 * time.Second,
		},
		Summary: SummaryConfig{
			Endpoint:     "https://generativelanguage.googleapis.com/",
			APIVersion:   "v1beta",
			Model:        "gemini-2.0-flash",
			Language:     "cs",
			Timeout:      90 * time.Second,
			CacheTTL:     24 * time.Hour,
			CacheMaxSize: 500,
		},
		Report: ReportConfig{
			Timeout: 45 * time.Second,
		},
		Jobs: JobsConfig{
			DailyScanEnabled: false,
			ScanJobTTL:       2 * time.Hour,
		},
		Database: DatabaseConfig{
			MaxOpenConns:    10,
			MaxIdleConns:    2,
			ConnMaxLifetime: 5 * time.Minute,
			ConnMaxIdleTime: 5 * time.Minute,
			PingTimeout:     5 * time.Second,
		},
		Logging: LoggingConfig{
			Level:       "info",
			Format:      "text",
			ServiceName: "isir-tracker",
		},
	}
}

// ValidateAndApplyDefaults validates configuration and applies defaults for invalid values
func (c *UnifiedConfiguration) ValidateAndApplyDefaults() {
	logger := logrus.WithField("component", "UnifiedConfiguration")
	defaults := NewDefaultUnifiedConfiguration()

	if c.Registry.PublicEndpoint == "" {
		c.Registry.PublicEndpoint = defaults.Registry.PublicEndpoint
		logger.Debug("Applied default Registry.PublicEndpoint")
	}
	if c.Registry.CUZKEndpoint == "" {
		c.Registry.CUZKEndpoint = defaults.Registry.CUZKEndpoint
		logger.Debug("Applied default Registry.CUZKEndpoint")
	}
	if c.Registry.DocumentBaseURL == "" {
		c.Registry.DocumentBaseURL = defaults.Registry.DocumentBaseURL
	}
	if c.Registry.PublicNamespace == "" {
		c.Registry.PublicNamespace = defaults.Registry.PublicNamespace
	}
	if c.Registry.CUZKNamespace == "" {
		c.Registry.CUZKNamespace = defaults.Registry.CUZKNamespace
	}
	if c.Registry.RequestTimeout <= 0 {
		c.Registry.RequestTimeout = defaults.Registry.RequestTimeout
		logger.Debug("Applied default Registry.RequestTimeout")
	}
	if c.Registry.MaxAttempts <= 0 {
		c.Registry.MaxAttempts = defaults.Registry.MaxAttempts
		logger.Debug("Applied default Registry.MaxAttempts")
	}
	if c.Registry.RetryDelay < 0 {
		c.Registry.RetryDelay = defaults.Registry.RetryDelay
	}

	if c.Scanner.ProbeStride == 0 {
		c.Scanner.ProbeStride = defaults.Scanner.ProbeStride
		logger.Debug("Applied default Scanner.ProbeStride")
	}
	if c.Scanner.LookbackUnit == 0 {
		c.Scanner.LookbackUnit = defaults.Scanner.LookbackUnit
	}
	if c.Scanner.LookbackUnits == 0 {
		c.Scanner.LookbackUnits = defaults.Scanner.LookbackUnits
	}
	switch strings.ToLower(c.Scanner.CursorAdvance) {
	case CursorAdvanceLast, CursorAdvanceNext:
		c.Scanner.CursorAdvance = strings.ToLower(c.Scanner.CursorAdvance)
	default:
		if c.Scanner.CursorAdvance != "" {
			logger.Warnf("Unknown cursor advance mode %q, using %q", c.Scanner.CursorAdvance, CursorAdvanceLast)
		}
		c.Scanner.CursorAdvance = CursorAdvanceLast
	}
	if c.Scanner.MaxBatches < 0 {
		c.Scanner.MaxBatches = 0
	}
	if len(c.Scanner.Keywords) == 0 {
		c.Scanner.Keywords = defaults.Scanner.Keywords
		logger.Debug("Applied default Scanner.Keywords")
	}

	if c.Documents.Directory == "" {
		c.Documents.Directory = defaults.Documents.Directory
	}
	if c.Documents.ChunkSize <= 0 {
		c.Documents.ChunkSize = defaults.Documents.ChunkSize
	}
	if c.Documents.Timeout <= 0 {
		c.Documents.Timeout = defaults.Documents.Timeout
	}

	if c.Summary.Endpoint == "" {
		c.Summary.Endpoint = defaults.Summary.Endpoint
	}
	if c.Summary.APIVersion == "" {
		c.Summary.APIVersion = defaults.Summary.APIVersion
	}
	if c.Summary.Model == "" {
		c.Summary.Model = defaults.Summary.Model
	}
	if c.Summary.Language == "" {
		c.Summary.Language = defaults.Summary.Language
	}
	if c.Summary.Timeout <= 0 {
		c.Summary.Timeout = defaults.Summary.Timeout
	}
	if c.Summary.CacheTTL <= 0 {
		c.Summary.CacheTTL = defaults.Summary.CacheTTL
	}
	if c.Summary.CacheMaxSize <= 0 {
		c.Summary.CacheMaxSize = defaults.Summary.CacheMaxSize
	}

	if c.Report.Timeout <= 0 {
		c.Report.Timeout = defaults.Report.Timeout
	}
	if c.Jobs.ScanJobTTL <= 0 {
		c.Jobs.ScanJobTTL = defaults.Jobs.ScanJobTTL
	}

	if c.Database.MaxOpenConns <= 0 {
		c.Database.MaxOpenConns = defaults.Database.MaxOpenConns
	}
	if c.Database.MaxIdleConns <= 0 {
		c.Database.MaxIdleConns = defaults.Database.MaxIdleConns
	}
	if c.Database.ConnMaxLifetime <= 0 {
		c.Database.ConnMaxLifetime = defaults.Database.ConnMaxLifetime
	}
	if c.Database.ConnMaxIdleTime <= 0 {
		c.Database.ConnMaxIdleTime = defaults.Database.ConnMaxIdleTime
	}
	if c.Database.PingTimeout <= 0 {
		c.Database.PingTimeout = defaults.Database.PingTimeout
	}

	if c.Logging.Level == "" {
		c.Logging.Level = defaults.Logging.Level
	}
	if c.Logging.Format == "" {
		c.Logging.Format = defaults.Logging.Format
	}
	if c.Logging.ServiceName == "" {
		c.Logging.ServiceName = defaults.Logging.ServiceName
	}
}

// ToJSON serializes the configuration to JSON
func (c *UnifiedConfiguration) ToJSON() ([]byte, error) {
	return json.MarshalIndent(c, "", "  ")
}

