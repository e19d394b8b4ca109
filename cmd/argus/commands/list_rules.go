package commands

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/cagmero/ARGUS"
	"github.com/cagmero/ARGUS/internal/types"
)

var (
	flagCategory string
	flagFileType string
)

func newListRulesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list-rules",
		Short: "List the detection rules of the builtin analyzer",
		Args:  cobra.NoArgs,
		RunE:  runListRules,
	}
	cmd.Flags().StringVar(&flagCategory, "category", "", "Filter by category")
	cmd.Flags().StringVar(&flagFileType, "file-type", "", "Only rules covering this artifact kind (asm, dsl, script)")
	return cmd
}

func runListRules(cmd *cobra.Command, args []string) error {
	opts := []argus.Option{argus.WithCustomRules(flagRules)}
	if flagFileType != "" {
		ft, err := types.ParseFileType(flagFileType)
		if err != nil {
			return fmt.Errorf("invalid --file-type: %w", err)
		}
		opts = append(opts, argus.WithFileType(ft))
	}
	infos, err := argus.ListRules(opts...)
	if err != nil {
		return err
	}

	if flagCategory != "" {
		var filtered []argus.RuleInfo
		for _, r := range infos {
			if r.Category == flagCategory {
				filtered = append(filtered, r)
			}
		}
		infos = filtered
	}

	w := cmd.OutOrStdout()
	if strings.EqualFold(flagFormat, "json") {
		if infos == nil {
			infos = []argus.RuleInfo{}
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(infos)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "ID\tSEVERITY\tCATEGORY\tFILE TYPES\tNAME\n")
	fmt.Fprintf(tw, "--\t--------\t--------\t----------\t----\n")
	for _, r := range infos {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", r.ID, r.Severity, r.Category, strings.Join(r.FileTypes, ","), r.Name)
	}
	tw.Flush()
	fmt.Fprintf(w, "\n%d rules loaded\n", len(infos))
	return nil
}
