package commands

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/cagmero/ARGUS/internal/history"
)

var (
	flagDB    string
	flagLimit int
	flagKeep  int
)

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history [target]",
		Short: "List past scans recorded with --history-db",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runHistory,
	}
	cmd.PersistentFlags().StringVar(&flagDB, "db", history.DefaultPath(), "History database path")
	cmd.Flags().IntVar(&flagLimit, "limit", 20, "Number of scans to show")

	prune := &cobra.Command{
		Use:   "prune",
		Short: "Delete all but the newest scans of every target",
		Args:  cobra.NoArgs,
		RunE:  runHistoryPrune,
	}
	prune.Flags().IntVar(&flagKeep, "keep", 10, "Scans to keep per target")
	cmd.AddCommand(prune)
	return cmd
}

func runHistory(cmd *cobra.Command, args []string) error {
	store, err := history.Open(flagDB)
	if err != nil {
		return err
	}
	defer store.Close()

	target := ""
	if len(args) > 0 {
		target = args[0]
	}
	scans, err := store.List(cmd.Context(), target, flagLimit)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	if strings.EqualFold(flagFormat, "json") {
		if scans == nil {
			scans = []history.Scan{}
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(scans)
	}
	if len(scans) == 0 {
		fmt.Fprintln(w, "No scans recorded.")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "ID\tSCANNED\tTARGET\tFILES\tTOTAL\tCRIT\tHIGH\tMED\tLOW\tERRORS\tEXIT\n")
	for _, s := range scans {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%d\t%d\t%d\t%d\t%d\t%d\t%d\n",
			s.ID, s.ScannedAt.Local().Format(time.DateTime), s.Target, s.FilesScanned,
			s.Total, s.Critical, s.High, s.Medium, s.Low, s.Errors, s.ExitCode)
	}
	return tw.Flush()
}

func runHistoryPrune(cmd *cobra.Command, args []string) error {
	if flagKeep < 1 {
		return fmt.Errorf("--keep must be at least 1, got %d", flagKeep)
	}
	store, err := history.Open(flagDB)
	if err != nil {
		return err
	}
	defer store.Close()

	n, err := store.Prune(cmd.Context(), flagKeep)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d scans from %s\n", n, store.Path())
	return nil
}
