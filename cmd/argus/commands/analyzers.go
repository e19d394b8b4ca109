package commands

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/cagmero/ARGUS"
	"github.com/cagmero/ARGUS/internal/config"
)

func newAnalyzersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "analyzers",
		Short: "List the registered analyzers and whether their tools are installed",
		Args:  cobra.NoArgs,
		RunE:  runAnalyzers,
	}
}

func runAnalyzers(cmd *cobra.Command, args []string) error {
	// analyzer_settings may point an external analyzer at another command
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return err
	}
	infos, err := argus.Analyzers(argus.WithConfig(cfg))
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	if strings.EqualFold(flagFormat, "json") {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(infos)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "NAME\tFILE TYPES\tSTATUS\tCOMMAND\n")
	for _, a := range infos {
		fts := make([]string, len(a.FileTypes))
		for i, ft := range a.FileTypes {
			fts[i] = ft.String()
		}
		status := "builtin"
		if a.External {
			status = "not installed"
			if a.Available {
				status = "available"
			}
		}
		command := a.Command
		if command == "" {
			command = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", a.Name, strings.Join(fts, ","), status, command)
	}
	return tw.Flush()
}
