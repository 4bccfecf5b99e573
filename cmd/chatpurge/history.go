package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/p-blackswan/chatpurge/internal/config"
	"github.com/p-blackswan/chatpurge/internal/journal"
)

var historyFlags struct {
	journal string
	limit   int
	json    bool
}

// historyCmd lists journaled runs, or shows one run with its deletions.
var historyCmd = &cobra.Command{
	Use:   "history [run-id]",
	Short: "List previous runs from the journal",
	Long: `List previous runs from the journal, newest first.

With a run id (as printed by --json), show that run and every delete call it made.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		path := cfg.JournalPath
		if historyFlags.journal != "" {
			path = historyFlags.journal
		}
		if path == "" {
			return fmt.Errorf("no journal configured (set CHATPURGE_JOURNAL_PATH or --journal)")
		}

		j, err := journal.Open(path, zerolog.Nop())
		if err != nil {
			return err
		}
		defer j.Close()

		if len(args) == 1 {
			return showRun(cmd.Context(), cmd.OutOrStdout(), j, args[0], historyFlags.json)
		}

		runs, err := j.ListRuns(cmd.Context(), historyFlags.limit)
		if err != nil {
			return err
		}
		if historyFlags.json {
			return writeHistoryJSON(cmd.OutOrStdout(), runs)
		}
		return writeHistoryTable(cmd.OutOrStdout(), runs)
	},
}

func init() {
	f := historyCmd.Flags()
	f.StringVar(&historyFlags.journal, "journal", "", "path to the SQLite run journal")
	f.IntVarP(&historyFlags.limit, "limit", "n", 20, "maximum number of runs to list (0 for all)")
	f.BoolVar(&historyFlags.json, "json", false, "print runs as JSON")
}

func writeHistoryJSON(w io.Writer, runs []*journal.Run) error {
	if runs == nil {
		runs = []*journal.Run{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(runs)
}

func writeHistoryTable(w io.Writer, runs []*journal.Run) error {
	if len(runs) == 0 {
		_, err := fmt.Fprintln(w, "no runs recorded")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tBACKEND\tCHANNEL\tSTARTED\tSTATE\tDELETED\tPROCESSED\tREASON")
	for _, r := range runs {
		reason := r.Reason
		if r.FinishedAt == 0 {
			reason = "(unfinished)"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\t%d\t%s\n",
			shortID(r.ID), r.Backend, r.ChannelID,
			time.UnixMilli(r.StartedAt).UTC().Format(time.RFC3339),
			r.State, r.TotalDeleted, r.TotalProcessed, reason)
	}
	return tw.Flush()
}

// runDetail is the --json shape of a single run.
type runDetail struct {
	Run       *journal.Run        `json:"run"`
	Deletions []*journal.Deletion `json:"deletions"`
}

func showRun(ctx context.Context, w io.Writer, j *journal.Journal, id string, asJSON bool) error {
	run, err := j.GetRun(ctx, id)
	if err != nil {
		return err
	}
	if run == nil {
		return fmt.Errorf("run %s not found", id)
	}
	deletions, err := j.Deletions(ctx, id)
	if err != nil {
		return err
	}
	if deletions == nil {
		deletions = []*journal.Deletion{}
	}

	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(runDetail{Run: run, Deletions: deletions})
	}
	return writeRunDetail(w, run, deletions)
}

func writeRunDetail(w io.Writer, run *journal.Run, deletions []*journal.Deletion) error {
	finished := "(unfinished)"
	if run.FinishedAt != 0 {
		finished = time.UnixMilli(run.FinishedAt).UTC().Format(time.RFC3339)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Run:\t%s\n", run.ID)
	fmt.Fprintf(tw, "Backend:\t%s\n", run.Backend)
	fmt.Fprintf(tw, "Channel:\t%s\n", run.ChannelID)
	fmt.Fprintf(tw, "Owner:\t%s\n", run.OwnerID)
	fmt.Fprintf(tw, "Started:\t%s\n", time.UnixMilli(run.StartedAt).UTC().Format(time.RFC3339))
	fmt.Fprintf(tw, "Finished:\t%s\n", finished)
	fmt.Fprintf(tw, "State:\t%s\n", run.State)
	if run.Reason != "" {
		fmt.Fprintf(tw, "Reason:\t%s\n", run.Reason)
	}
	if run.Error != "" {
		fmt.Fprintf(tw, "Error:\t%s\n", run.Error)
	}
	fmt.Fprintf(tw, "Deleted:\t%d of %d processed\n", run.TotalDeleted, run.TotalProcessed)
	fmt.Fprintf(tw, "Fetch retries:\t%d (%d rate limited)\n", run.FetchRetries, run.RateLimited)
	if err := tw.Flush(); err != nil {
		return err
	}

	if len(deletions) == 0 {
		_, err := fmt.Fprintln(w, "\nno delete calls recorded")
		return err
	}

	fmt.Fprintln(w)
	tw = tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "MESSAGE\tOUTCOME\tAT\tERROR")
	for _, d := range deletions {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
			d.MessageID, d.Outcome,
			time.UnixMilli(d.CreatedAt).UTC().Format(time.RFC3339), d.Error)
	}
	return tw.Flush()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
