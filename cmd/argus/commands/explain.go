package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cagmero/ARGUS"
)

func newExplainCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "explain <rule-id>",
		Short: "Show detailed information about a detection rule",
		Args:  cobra.ExactArgs(1),
		RunE:  runExplain,
	}
}

func runExplain(cmd *cobra.Command, args []string) error {
	rule, err := argus.ExplainRule(args[0], argus.WithCustomRules(flagRules))
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	if strings.EqualFold(flagFormat, "json") {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(rule)
	}

	noColor := flagNoColor || os.Getenv("NO_COLOR") != ""
	color := func(code, text string) string {
		if noColor {
			return text
		}
		return code + text + "\033[0m"
	}
	const (
		bold   = "\033[1m"
		dim    = "\033[2m"
		red    = "\033[31m"
		green  = "\033[32m"
		yellow = "\033[33m"
		cyan   = "\033[36m"
	)

	sevColor := cyan
	switch rule.Severity {
	case "CRITICAL":
		sevColor = red + bold
	case "HIGH":
		sevColor = red
	case "MEDIUM":
		sevColor = yellow
	}

	fmt.Fprintf(w, "\n%s %s\n", color(dim, "Rule:"), color(bold, rule.ID))
	fmt.Fprintf(w, "%s %s\n", color(dim, "Name:"), rule.Name)
	fmt.Fprintf(w, "%s %s\n", color(dim, "Severity:"), color(sevColor, rule.Severity))
	if rule.CWE != "" {
		fmt.Fprintf(w, "%s %s\n", color(dim, "CWE:"), rule.CWE)
	}
	fmt.Fprintf(w, "%s %s\n", color(dim, "Category:"), rule.Category)
	fmt.Fprintf(w, "%s %s\n", color(dim, "File types:"), strings.Join(rule.FileTypes, ", "))

	if rule.Description != "" {
		fmt.Fprintf(w, "\n%s\n%s\n", color(bold, "Description:"), strings.TrimSpace(rule.Description))
	}
	if rule.Fix != "" {
		fmt.Fprintf(w, "\n%s\n%s\n", color(bold, "Fix:"), strings.TrimSpace(rule.Fix))
	}
	if len(rule.Patterns) > 0 {
		fmt.Fprintf(w, "\n%s\n", color(bold, "Patterns:"))
		for i, p := range rule.Patterns {
			fmt.Fprintf(w, "  %d. %s\n", i+1, color(dim, p))
		}
	}
	if len(rule.TruePositives) > 0 {
		fmt.Fprintf(w, "\n%s\n", color(bold, "Flagged:"))
		for _, ex := range rule.TruePositives {
			fmt.Fprintf(w, "  %s %s\n", color(red, "✖"), ex)
		}
	}
	if len(rule.FalsePositives) > 0 {
		fmt.Fprintf(w, "\n%s\n", color(bold, "Not flagged:"))
		for _, ex := range rule.FalsePositives {
			fmt.Fprintf(w, "  %s %s\n", color(green, "✔"), ex)
		}
	}
	fmt.Fprintln(w)
	return nil
}
