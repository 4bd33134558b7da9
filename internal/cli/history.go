package cli

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/vertextoedge/czds-fetch/internal/adapter/sqlite"
	"github.com/vertextoedge/czds-fetch/internal/logger"
	"github.com/vertextoedge/czds-fetch/internal/port"
)

// NewHistoryCmd creates the history command
func NewHistoryCmd(configPath *string) *cobra.Command {
	var (
		limit int
		runID string
		zone  string
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show past download cycles",
		Long: `Show recent download cycles. With --run the per-zone outcomes of one
cycle are listed, with --zone the last successful download of a zone.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadLocal(*configPath)
			if err != nil {
				return err
			}
			defer logger.Sync()

			store, err := sqlite.Open(cfg.GetDatabasePath())
			if err != nil {
				return fmt.Errorf("failed to open history database: %w", err)
			}
			defer store.Close()

			out := cmd.OutOrStdout()
			switch {
			case runID != "":
				return printOutcomes(out, store, runID)
			case zone != "":
				return printLastSuccess(out, store, zone)
			default:
				return printRuns(out, store, limit)
			}
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "number of cycles to show")
	cmd.Flags().StringVar(&runID, "run", "", "show the zone outcomes of a cycle")
	cmd.Flags().StringVar(&zone, "zone", "", "show the last successful download of a zone")

	return cmd
}

func printRuns(out io.Writer, history port.HistoryRepository, limit int) error {
	runs, err := history.ListRuns(limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(out, "No download cycles recorded")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RUN\tSTARTED\tDURATION\tREQUESTED\tOK\tFAILED\tERROR")
	for _, run := range runs {
		duration := "running"
		if run.FinishedAt != nil {
			duration = run.FinishedAt.Sub(run.StartedAt).Round(time.Second).String()
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\t%s\n",
			run.ID, humanize.Time(run.StartedAt), duration,
			run.Requested, run.Succeeded, run.Failed, run.Error)
	}
	return w.Flush()
}

func printOutcomes(out io.Writer, history port.HistoryRepository, runID string) error {
	records, err := history.ListOutcomes(runID)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Fprintf(out, "No outcomes recorded for run %s\n", runID)
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ZONE\tFILE\tSIZE\tELAPSED\tERROR")
	for _, rec := range records {
		if rec.OK() {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t\n",
				rec.Zone, rec.FileName, humanize.Bytes(uint64(rec.Size)),
				(time.Duration(rec.ElapsedMs) * time.Millisecond).String())
			continue
		}
		fmt.Fprintf(w, "%s\t\t\t\t%s: %s\n", rec.Zone, rec.ErrorKind, rec.ErrorMessage)
	}
	return w.Flush()
}

func printLastSuccess(out io.Writer, history port.HistoryRepository, zone string) error {
	rec, err := history.LastSuccess(zone)
	if err != nil {
		return err
	}
	if rec == nil {
		fmt.Fprintf(out, "%s has never been downloaded\n", zone)
		return nil
	}

	fmt.Fprintf(out, "%s: %s (%s) %s, run %s\n",
		zone, rec.Path, humanize.Bytes(uint64(rec.Size)), humanize.Time(rec.CreatedAt), rec.RunID)
	return nil
}
