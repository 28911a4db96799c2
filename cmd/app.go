package cmd

import (
	"context"
	"time"

	"github.com/isir-tracker/isir-backend/config"
	"github.com/isir-tracker/isir-backend/database"
	"github.com/isir-tracker/isir-backend/jobs"
	"github.com/isir-tracker/isir-backend/services"
	"github.com/isir-tracker/isir-backend/shared"
	"github.com/sirupsen/logrus"
)

// application holds the services shared by the serve, scan and subject commands.
type application struct {
	cfg         *config.Config
	httpFactory *shared.HTTPClientFactory
	client      *services.ISIRClient
	scanner     *services.RegistryScanner
	lookup      *services.SubjectLookupService
	fetcher     *services.DocumentFetcher
	cache       *services.CacheService
	summaries   *services.SummaryService
	reports     *services.ReportService
	watchlist   *services.WatchlistService
	scanJobs    *jobs.ScanJobManager
}

func loadConfig() *config.Config {
	cfg := config.LoadConfig()
	config.ConfigureLogging(cfg.Services.Logging)
	return cfg
}

// newApplication wires the registry services. The watchlist is backed by postgres when
// withDatabase is set and DATABASE_URL is configured, and by memory otherwise.
func newApplication(cfg *config.Config, withDatabase bool) *application {
	sc := cfg.Services
	httpFactory := shared.NewHTTPClientFactory(sc.Registry.RequestTimeout, sc.Registry.InsecureTLS)

	client := services.NewISIRClient(sc.Registry, httpFactory)
	scanner := services.NewRegistryScanner(client, sc)
	fetcher := services.NewDocumentFetcher(sc.Documents, httpFactory)
	cache := services.NewCacheServiceWithConfig(sc.Summary.CacheTTL, sc.Summary.CacheMaxSize)
	summaries := services.NewSummaryService(sc.Summary, sc.Documents.Directory, fetcher, services.NewSummaryCache(cache))
	reports := services.NewReportService(sc.Report)

	var store database.WatchlistStore = database.NewMemoryWatchlistStore()
	if withDatabase && cfg.DatabaseURL != "" {
		if err := database.ConnectWithConfig(cfg.DatabaseURL, &sc.Database); err != nil {
			logrus.Errorf("Database unavailable, keeping the watchlist in memory: %v", err)
		} else {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			if err := database.Migrate(ctx); err != nil {
				logrus.Warnf("Migration warning: %v", err)
			}
			cancel()
			store = database.NewPostgresWatchlistStore(database.DB)
		}
	}

	return &application{
		cfg:         cfg,
		httpFactory: httpFactory,
		client:      client,
		scanner:     scanner,
		lookup:      services.NewSubjectLookupService(client),
		fetcher:     fetcher,
		cache:       cache,
		summaries:   summaries,
		reports:     reports,
		watchlist:   services.NewWatchlistService(store, reports),
		scanJobs:    jobs.NewScanJobManager(scanner, sc.Jobs.ScanJobTTL),
	}
}

func (a *application) close() {
	a.scanJobs.Shutdown()
	a.httpFactory.CleanupAllClients()
	database.Close()
}
