package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/isir-tracker/isir-backend/models"
	"github.com/spf13/cobra"
)

func newScanCommand() *cobra.Command {
	var period, from, to string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Scans the registry for auction notices published inside a date window",
		RunE: func(cmd *cobra.Command, args []string) error {
			window, err := scanWindow(period, from, to, time.Now())
			if err != nil {
				return err
			}

			a := newApplication(loadConfig(), false)
			defer a.close()

			fmt.Fprintf(os.Stderr, "Scanning %s - %s\n",
				window.Start.Format(models.DisplayTimeLayout), window.End.Format(models.DisplayTimeLayout))
			result, err := a.scanner.Scan(cmd.Context(), window, func(p models.ScanProgress) {
				fmt.Fprintf(os.Stderr, "\r%3.0f%% %s", p.Ratio*100, p.Label)
			})
			fmt.Fprintln(os.Stderr)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(result.Events)
			}

			for _, event := range result.Events {
				fmt.Fprintf(out, "%s  %-20s  %s\n", event.Date.Format(models.DisplayTimeLayout), event.Name, event.Event)
				if event.PDFURL != nil {
					fmt.Fprintf(out, "    %s\n", *event.PDFURL)
				}
			}
			fmt.Fprintf(out, "%d auction notices, %d records processed in %v\n",
				len(result.Events), result.Processed, result.Duration.Round(time.Second))
			return nil
		},
	}

	cmd.Flags().StringVarP(&period, "period", "p", models.PeriodToday, "today, last7 or last30")
	cmd.Flags().StringVar(&from, "from", "", "First day of a custom window (YYYY-MM-DD)")
	cmd.Flags().StringVar(&to, "to", "", "Last day of a custom window (YYYY-MM-DD)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print events as JSON")

	return cmd
}

func scanWindow(period, from, to string, now time.Time) (models.ScanWindow, error) {
	if from == "" && to == "" {
		return models.PresetWindow(period, now, time.Time{}, time.Time{})
	}
	if to == "" {
		to = from
	}
	start, err := time.Parse("2006-01-02", from)
	if err != nil {
		return models.ScanWindow{}, fmt.Errorf("--from must be YYYY-MM-DD: %w", err)
	}
	end, err := time.Parse("2006-01-02", to)
	if err != nil {
		return models.ScanWindow{}, fmt.Errorf("--to must be YYYY-MM-DD: %w", err)
	}
	return models.PresetWindow(models.PeriodCustom, now, start, end)
}
