package cmd

import (
	"fmt"
	"io"
	"time"

	"github.com/araddon/dateparse"
	"github.com/rodaine/table"
	"github.com/spf13/cobra"

	"github.com/ddworken/analytics-ingest/internal/database"
)

var (
	sinceFlag *string
	limitFlag *int
)

var recordsCmd = &cobra.Command{
	Use:   "records",
	Short: "List the most recently updated analytics records",
	RunE: func(cmd *cobra.Command, args []string) error {
		since, err := parseSince(*sinceFlag, time.Now())
		if err != nil {
			return err
		}
		cfg, logger, err := setup()
		if err != nil {
			return err
		}
		db, err := openDB(cfg, logger)
		if err != nil {
			return err
		}
		defer db.Close()

		records, err := db.RecentAnalyticsRecords(cmd.Context(), since, *limitFlag)
		if err != nil {
			return err
		}
		total, err := db.CountAllAnalyticsRecords(cmd.Context())
		if err != nil {
			return err
		}
		printRecords(cmd.OutOrStdout(), records)
		fmt.Fprintf(cmd.OutOrStdout(), "\nShowing %d of %d records\n", len(records), total)
		return nil
	},
}

// parseSince accepts any date format dateparse understands. Empty means the last 24 hours.
func parseSince(s string, now time.Time) (time.Time, error) {
	if s == "" {
		return now.Add(-24 * time.Hour), nil
	}
	t, err := dateparse.ParseIn(s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse --since=%q: %w", s, err)
	}
	return t, nil
}

func printRecords(w io.Writer, records []*database.AnalyticsRecord) {
	tbl := table.New("First Install", "Platform", "Locale", "Total Uses", "Client IP", "Created", "Updated")
	tbl.WithWriter(w)
	for _, r := range records {
		tbl.AddRow(
			r.FirstInstallDate,
			r.Platform,
			orEmpty(r.Locale),
			orEmpty(r.TotalUses),
			r.ClientIP,
			r.CreatedAt.UTC().Format(time.RFC3339),
			r.UpdatedAt.UTC().Format(time.RFC3339),
		)
	}
	tbl.Print()
}

func orEmpty[T any](v *T) any {
	if v == nil {
		return ""
	}
	return *v
}

func init() {
	rootCmd.AddCommand(recordsCmd)
	sinceFlag = recordsCmd.Flags().String("since", "", "Only show records updated at or after this time (default: the last 24 hours)")
	limitFlag = recordsCmd.Flags().Int("limit", 50, "The maximum number of records to show")
}
