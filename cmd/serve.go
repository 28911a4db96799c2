package cmd

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/isir-tracker/isir-backend/handlers"
	"github.com/isir-tracker/isir-backend/jobs"
	"github.com/isir-tracker/isir-backend/shared"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func newServeCommand() *cobra.Command {
	var port string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Runs the HTTP API and the background jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig()
			if port != "" {
				cfg.ServerPort = port
			}

			if err := shared.RegisterPrometheusCollectors(prometheus.DefaultRegisterer); err != nil {
				logrus.Warnf("Prometheus collectors not registered: %v", err)
			}

			a := newApplication(cfg, true)
			defer a.close()

			if logrus.IsLevelEnabled(logrus.DebugLevel) {
				if effective, err := cfg.Services.ToJSON(); err == nil {
					logrus.Debugf("Effective configuration:\n%s", effective)
				}
			}

			sc := cfg.Services
			logrus.Info("ISIR tracker services initialized:")
			logrus.Infof("  - Registry client (endpoint: %s, attempts: %d, delay: %v)",
				sc.Registry.PublicEndpoint, sc.Registry.MaxAttempts, sc.Registry.RetryDelay)
			logrus.Infof("  - Scanner (stride: %d, lookback: %dx%d, cursor: %s)",
				sc.Scanner.ProbeStride, sc.Scanner.LookbackUnits, sc.Scanner.LookbackUnit, sc.Scanner.CursorAdvance)
			logrus.Infof("  - Summary cache (TTL: %v, max size: %d, summaries enabled: %t)",
				sc.Summary.CacheTTL, sc.Summary.CacheMaxSize, a.summaries.Enabled())

			stop := make(chan struct{})
			startJobs(a, stop)
			defer close(stop)

			app := fiber.New(fiber.Config{AppName: "isir-tracker"})
			app.Use(logger.New())
			app.Use(cors.New())

			metrics := []*shared.ServiceMetrics{a.client.Metrics(), a.scanner.Metrics(), a.fetcher.Metrics()}
			defer func() {
				for _, m := range metrics {
					m.LogSummary()
				}
			}()

			router := &handlers.Router{
				Health:    handlers.NewHealthHandler(prometheus.DefaultGatherer, metrics...),
				Scans:     handlers.NewScanHandler(a.scanJobs),
				Subjects:  handlers.NewSubjectHandler(a.lookup),
				Documents: handlers.NewDocumentHandler(a.fetcher, a.summaries, a.reports, a.watchlist, sc.Documents.Directory, sc.Registry.DocumentBaseURL),
				Watchlist: handlers.NewWatchlistHandler(a.watchlist),

				AdminToken: cfg.AdminToken,
			}
			router.Register(app)

			go func() {
				signals := make(chan os.Signal, 1)
				signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
				<-signals
				logrus.Info("Shutting down server")
				if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
					logrus.Errorf("Server shutdown failed: %v", err)
				}
			}()

			logrus.Infof("Server starting on port %s", cfg.ServerPort)
			return app.Listen(":" + cfg.ServerPort)
		},
	}

	cmd.Flags().StringVarP(&port, "port", "p", "", "Port to listen on (overrides SERVER_PORT)")

	return cmd
}

// startJobs schedules the cleanup job and, when enabled, the daily auction scan until stop is closed.
func startJobs(a *application, stop <-chan struct{}) {
	cleanupJob := jobs.NewCacheCleanupJob(a.cache, a.scanJobs)
	dailyJob := jobs.NewDailyAuctionScanJob(a.scanner)
	dailyEnabled := a.cfg.Services.Jobs.DailyScanEnabled

	go func() {
		if dailyEnabled {
			go dailyJob.Run()
		}

		dailyTicker := time.NewTicker(24 * time.Hour)
		cleanupTicker := time.NewTicker(1 * time.Hour)
		defer dailyTicker.Stop()
		defer cleanupTicker.Stop()

		for {
			select {
			case <-dailyTicker.C:
				if dailyEnabled {
					dailyJob.Run()
				}
			case <-cleanupTicker.C:
				cleanupJob.Run()
			case <-stop:
				return
			}
		}
	}()
}
