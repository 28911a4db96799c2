package cmd

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/isir-tracker/isir-backend/database"
	"github.com/spf13/cobra"
)

func newHealthcheckCommand() *cobra.Command {
	var serverURL string

	cmd := &cobra.Command{
		Use:   "healthcheck",
		Short: "Checks the registry, the database and a running server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig()
			a := newApplication(cfg, false)
			defer a.close()

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "ISIR Tracker Health Check - %s\n", time.Now().Format("2006-01-02 15:04:05"))
			fmt.Fprintln(out, strings.Repeat("=", 50))

			ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
			defer cancel()

			healthScore := 0
			totalTests := 0
			check := func(name string, fn func() (string, error)) {
				totalTests++
				fmt.Fprintf(out, "%-16s", name+":")
				detail, err := fn()
				if err != nil {
					fmt.Fprintf(out, "FAILED (%v)\n", err)
					return
				}
				healthScore++
				fmt.Fprintf(out, "OK %s\n", detail)
			}

			check("Registry", func() (string, error) {
				lastID, err := a.client.LatestSequenceID(ctx)
				if err != nil {
					return "", err
				}
				return fmt.Sprintf("(last id %d)", lastID), nil
			})

			if cfg.DatabaseURL != "" {
				check("Database", func() (string, error) {
					if err := database.ConnectWithConfig(cfg.DatabaseURL, &cfg.Services.Database); err != nil {
						return "", err
					}
					return "", database.HealthCheck(ctx)
				})
			}

			if serverURL == "" {
				serverURL = "http://localhost:" + cfg.ServerPort
			}
			check("Server", func() (string, error) {
				client := a.httpFactory.CreateOptimizedHTTPClient(5 * time.Second)
				req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(serverURL, "/")+"/health", nil)
				if err != nil {
					return "", err
				}
				resp, err := client.Do(req)
				if err != nil {
					return "", err
				}
				defer resp.Body.Close()
				if resp.StatusCode != http.StatusOK {
					return "", fmt.Errorf("status %d", resp.StatusCode)
				}
				return "(" + serverURL + ")", nil
			})

			fmt.Fprintln(out, strings.Repeat("-", 50))
			switch {
			case healthScore == totalTests:
				fmt.Fprintf(out, "SYSTEM HEALTHY: %d/%d checks passed\n", healthScore, totalTests)
				return nil
			case healthScore >= totalTests/2:
				fmt.Fprintf(out, "SYSTEM DEGRADED: %d/%d checks passed\n", healthScore, totalTests)
			default:
				fmt.Fprintf(out, "SYSTEM UNHEALTHY: %d/%d checks passed\n", healthScore, totalTests)
			}
			return fmt.Errorf("%d of %d health checks failed", totalTests-healthScore, totalTests)
		},
	}

	cmd.Flags().StringVar(&serverURL, "url", "", "Base URL of a running server (default http://localhost:$SERVER_PORT)")

	return cmd
}
