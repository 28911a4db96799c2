package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/isir-tracker/isir-backend/shared"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

type Config struct {
	ServerPort  string
	DatabaseURL string
	AdminToken  string
	ScanFile    string

	Services *shared.UnifiedConfiguration
}

func LoadConfig() *Config {
	err := godotenv.Load()
	if err != nil {
		logrus.Warn("Error loading .env file, using system environment variables")
	}

	services := shared.NewDefaultUnifiedConfiguration()

	registry := &services.Registry
	registry.PublicEndpoint = getEnv("ISIR_PUBLIC_ENDPOINT", registry.PublicEndpoint)
	registry.CUZKEndpoint = getEnv("ISIR_CUZK_ENDPOINT", registry.CUZKEndpoint)
	registry.DocumentBaseURL = getEnv("ISIR_DOCUMENT_BASE_URL", registry.DocumentBaseURL)
	registry.RequestTimeout = getSeconds("ISIR_TIMEOUT_SECONDS", registry.RequestTimeout)
	registry.InsecureTLS = getBool("ISIR_TLS_INSECURE", registry.InsecureTLS)
	registry.MaxAttempts = getInt("RPC_MAX_ATTEMPTS", registry.MaxAttempts)
	registry.RetryDelay = getDuration("RPC_RETRY_DELAY", registry.RetryDelay)
	registry.RequestRateLimit = getDuration("ISIR_RATE_LIMIT", registry.RequestRateLimit)

	scanner := &services.Scanner
	scanner.ProbeStride = getUint("SCAN_PROBE_STRIDE", scanner.ProbeStride)
	scanner.LookbackUnit = getUint("SCAN_LOOKBACK_UNIT", scanner.LookbackUnit)
	scanner.CursorAdvance = getEnv("SCAN_CURSOR_ADVANCE", scanner.CursorAdvance)
	scanner.MaxBatches = getInt("SCAN_MAX_BATCHES", scanner.MaxBatches)
	if raw := getEnv("SCAN_KEYWORDS", ""); raw != "" {
		scanner.Keywords = splitList(raw)
	}

	services.Documents.Directory = getEnv("DOCUMENT_DIR", services.Documents.Directory)
	services.Summary.APIKey = getEnv("GOOGLE_API_KEY", "")
	services.Summary.Model = getEnv("GEMINI_MODEL", services.Summary.Model)
	services.Summary.Language = getEnv("SUMMARY_LANGUAGE", services.Summary.Language)
	services.Report.ChromePath = getEnv("CHROME_PATH", "")
	services.Jobs.DailyScanEnabled = getBool("DAILY_SCAN_ENABLED", services.Jobs.DailyScanEnabled)
	services.Logging.Level = getEnv("LOG_LEVEL", services.Logging.Level)
	services.Logging.Format = getEnv("LOG_FORMAT", services.Logging.Format)

	cfg := &Config{
		ServerPort:  getEnv("SERVER_PORT", "8080"),
		DatabaseURL: getEnv("DATABASE_URL", ""),
		AdminToken:  getEnv("ADMIN_TOKEN", ""),
		ScanFile:    getEnv("SCAN_CONFIG_FILE", ""),
		Services:    services,
	}

	if cfg.ScanFile != "" {
		if err := ApplyScannerFile(services, cfg.ScanFile); err != nil {
			logrus.Warnf("Ignoring scanner config file %s: %v", cfg.ScanFile, err)
		}
	}

	services.ValidateAndApplyDefaults()
	return cfg
}

// scannerFile is the YAML overlay for scanner tuning; absent keys keep their current value.
type scannerFile struct {
	Scanner struct {
		ProbeStride   *uint64  `yaml:"probe_stride"`
		LookbackUnit  *uint64  `yaml:"lookback_unit"`
		LookbackUnits *uint64  `yaml:"lookback_units"`
		CursorAdvance *string  `yaml:"cursor_advance"`
		MaxBatches    *int     `yaml:"max_batches"`
		Keywords      []string `yaml:"keywords"`
	} `yaml:"scanner"`
	Registry struct {
		MaxAttempts *int           `yaml:"max_attempts"`
		RetryDelay  *time.Duration `yaml:"retry_delay"`
		RateLimit   *time.Duration `yaml:"rate_limit"`
	} `yaml:"registry"`
}

// ApplyScannerFile overlays scanner and retry tuning from a YAML file.
func ApplyScannerFile(services *shared.UnifiedConfiguration, path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var f scannerFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	if f.Scanner.ProbeStride != nil {
		services.Scanner.ProbeStride = *f.Scanner.ProbeStride
	}
	if f.Scanner.LookbackUnit != nil {
		services.Scanner.LookbackUnit = *f.Scanner.LookbackUnit
	}
	if f.Scanner.LookbackUnits != nil {
		services.Scanner.LookbackUnits = *f.Scanner.LookbackUnits
	}
	if f.Scanner.CursorAdvance != nil {
		services.Scanner.CursorAdvance = *f.Scanner.CursorAdvance
	}
	if f.Scanner.MaxBatches != nil {
		services.Scanner.MaxBatches = *f.Scanner.MaxBatches
	}
	if len(f.Scanner.Keywords) > 0 {
		services.Scanner.Keywords = f.Scanner.Keywords
	}
	if f.Registry.MaxAttempts != nil {
		services.Registry.MaxAttempts = *f.Registry.MaxAttempts
	}
	if f.Registry.RetryDelay != nil {
		services.Registry.RetryDelay = *f.Registry.RetryDelay
	}
	if f.Registry.RateLimit != nil {
		services.Registry.RequestRateLimit = *f.Registry.RateLimit
	}
	return nil
}

// ConfigureLogging applies level and format to the standard logrus logger.
func ConfigureLogging(logging shared.LoggingConfig) {
	level, err := logrus.ParseLevel(logging.Level)
	if err != nil {
		logrus.Warnf("Invalid LOG_LEVEL value: %s, using info", logging.Level)
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)

	if strings.EqualFold(logging.Format, "json") {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getInt(key string, fallback int) int {
	raw, exists := os.LookupEnv(key)
	if !exists || raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		logrus.Warnf("Invalid %s value: %s, using default %d", key, raw, fallback)
		return fallback
	}
	return v
}

func getUint(key string, fallback uint64) uint64 {
	raw, exists := os.LookupEnv(key)
	if !exists || raw == "" {
		return fallback
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		logrus.Warnf("Invalid %s value: %s, using default %d", key, raw, fallback)
		return fallback
	}
	return v
}

func getBool(key string, fallback bool) bool {
	raw, exists := os.LookupEnv(key)
	if !exists || raw == "" {
		return fallback
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		logrus.Warnf("Invalid %s value: %s, using default %t", key, raw, fallback)
		return fallback
	}
	return v
}

func getDuration(key string, fallback time.Duration) time.Duration {
	raw, exists := os.LookupEnv(key)
	if !exists || raw == "" {
		return fallback
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		logrus.Warnf("Invalid %s value: %s, using default %v", key, raw, fallback)
		return fallback
	}
	return v
}

func getSeconds(key string, fallback time.Duration) time.Duration {
	raw, exists := os.LookupEnv(key)
	if !exists || raw == "" {
		return fallback
	}
	seconds, err := strconv.Atoi(raw)
	if err != nil || seconds <= 0 {
		logrus.Warnf("Invalid %s value: %s, using default %v", key, raw, fallback)
		return fallback
	}
	return time.Duration(seconds) * time.Second
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
