package commands

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cagmero/ARGUS/internal/logging"
	"github.com/cagmero/ARGUS/internal/output"
)

// Exit codes besides the severity codes of a finished scan (3 CRITICAL,
// 2 HIGH, 1 MEDIUM, 0 otherwise).
const exitInvocation = 4

var (
	flagConfig  string
	flagFormat  string
	flagNoColor bool
	flagVerbose bool
	flagQuiet   bool
	flagRules   string
)

var logger = zap.NewNop().Sugar()

// exitError carries a non-zero exit code without an error message.
type exitError struct{ code int }

func (e *exitError) Error() string { return fmt.Sprintf("exit status %d", e.code) }

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "argus",
		Short: "Static vulnerability scanner for Algorand smart contracts and SDK code",
		Long: `Argus scans TEAL programs, PyTeal and Algorand Python contracts, and
TypeScript/JavaScript SDK code for security vulnerabilities, combining its
builtin rule engine with external analyzers such as tealer.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			l, err := logging.New(flagVerbose, flagQuiet)
			if err != nil {
				return fmt.Errorf("building logger: %w", err)
			}
			logger = l
			output.ToolVersion = Version
			return nil
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&flagConfig, "config", "", "Configuration file (default: .argus.yml next to the first target)")
	pf.StringVarP(&flagFormat, "format", "f", "", "Output format (json, structured, text, sarif, markdown, html)")
	pf.BoolVar(&flagNoColor, "no-color", false, "Disable colored output")
	pf.BoolVarP(&flagVerbose, "verbose", "v", false, "Show CWE and fix suggestions; enable debug logging")
	pf.BoolVarP(&flagQuiet, "quiet", "q", false, "Only log errors and hide progress")
	pf.StringVar(&flagRules, "rules", "", "Additional rules directory")
	root.MarkFlagsMutuallyExclusive("verbose", "quiet")

	root.AddCommand(
		newScanCmd(),
		newWatchCmd(),
		newListRulesCmd(),
		newExplainCmd(),
		newAnalyzersCmd(),
		newInitCmd(),
		newServeCmd(),
		newHistoryCmd(),
		newVersionCmd(),
	)
	return root
}

// Execute runs the CLI with the process arguments and returns the exit code.
func Execute() int {
	return run(os.Args[1:], os.Stdout, os.Stderr)
}

func run(args []string, stdout, stderr io.Writer) int {
	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.Execute()
	_ = logger.Sync()

	var ee *exitError
	switch {
	case err == nil:
		return 0
	case errors.As(err, &ee):
		return ee.code
	}
	fmt.Fprintf(stderr, "Error: %v\n", err)
	return exitInvocation
}
