package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cagmero/ARGUS/internal/update"
)

// Version and Commit are set via ldflags at build time.
var (
	Version = "dev"
	Commit  = "none"
)

var (
	flagCheck  bool
	newChecker = update.NewChecker
)

func newVersionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		RunE:  runVersion,
	}
	cmd.Flags().BoolVar(&flagCheck, "check", false, "Also check GitHub for a newer release")
	return cmd
}

func runVersion(cmd *cobra.Command, args []string) error {
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "argus %s (commit: %s)\n", Version, Commit)
	if !flagCheck {
		return nil
	}

	r, err := newChecker().Latest(cmd.Context(), update.Repo, Version)
	if err != nil {
		return err
	}
	if r.Newer() {
		fmt.Fprintf(w, "A newer release is available: %s\n  %s\n", r.Latest, r.Install)
		return nil
	}
	fmt.Fprintf(w, "Latest release: %s\n", r.Latest)
	return nil
}
