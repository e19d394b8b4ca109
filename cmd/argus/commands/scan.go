package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/cagmero/ARGUS"
	"github.com/cagmero/ARGUS/internal/config"
	"github.com/cagmero/ARGUS/internal/history"
	"github.com/cagmero/ARGUS/internal/output"
	"github.com/cagmero/ARGUS/internal/types"
)

var (
	flagAnalyzers   []string
	flagOutput      string
	flagSeverity    string
	flagInclude     []string
	flagExclude     []string
	flagWorkers     int
	flagTimeout     int
	flagScanTimeout int
	flagChanged     bool
	flagHistoryDB   string
)

func newScanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan [paths...]",
		Short: "Scan files and directories for vulnerabilities",
		Long: `Scans TEAL (.teal), PyTeal/Algorand Python (.py) and TypeScript/JavaScript
(.ts, .tsx, .js, .jsx) files. With no paths the configured target_paths are used.

Exit codes: 3 when a CRITICAL vulnerability is reported, 2 for HIGH, 1 for
MEDIUM, 0 otherwise, 4 when the scan could not run.`,
		RunE: runScan,
	}
	addScanFlags(cmd)
	return cmd
}

// addScanFlags registers the flags shared by scan and watch.
func addScanFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringSliceVarP(&flagAnalyzers, "analyzers", "a", nil, "Analyzers to run (builtin, tealer, panda, quality-assurance)")
	f.StringVarP(&flagOutput, "output", "o", "", "Output file path (default: stdout)")
	f.StringVarP(&flagSeverity, "severity", "s", "", "Minimum severity to report (critical, high, medium, low, info)")
	f.StringSliceVar(&flagInclude, "include", nil, "Glob patterns of files to scan")
	f.StringSliceVar(&flagExclude, "exclude", nil, "Glob patterns of files to skip")
	f.IntVarP(&flagWorkers, "workers", "w", 0, "Number of concurrent analysis units")
	f.IntVarP(&flagTimeout, "timeout", "t", 0, "Deadline per analysis unit in seconds")
	f.IntVar(&flagScanTimeout, "scan-timeout", 0, "Deadline for the whole scan in seconds (0: none)")
	f.BoolVar(&flagChanged, "changed", false, "Only scan git-changed files (staged, unstaged, untracked)")
	f.StringVar(&flagHistoryDB, "history-db", "", "Record the scan in this SQLite history database")
}

func runScan(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, args)
	if err != nil {
		return err
	}

	ctx, cancel := contextWithInterrupt(cmd.Context())
	defer cancel()

	result, err := executeScan(ctx, cmd, cfg)
	if err != nil {
		return err
	}
	recordHistory(ctx, cmd, cfg, result)

	if err := writeOutput(cmd, cfg, result); err != nil {
		return err
	}
	if code := result.ExitCode(); code != 0 {
		return &exitError{code: code}
	}
	return nil
}

// loadConfig reads the configuration document (--config, or the first one
// found next to the first target) and applies the flags that were set.
func loadConfig(cmd *cobra.Command, args []string) (config.Config, error) {
	path := flagConfig
	if path == "" {
		dir := "."
		if len(args) > 0 {
			dir = args[0]
		}
		found, err := config.Find(dir)
		if err != nil {
			return config.Config{}, err
		}
		path = found
	}
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, err
	}
	if path != "" {
		logger.Debugw("loaded configuration", "path", path)
	}

	if len(args) > 0 {
		cfg.TargetPaths = args
	}
	flags := cmd.Flags()
	if flags.Changed("analyzers") {
		cfg.Analyzers = flagAnalyzers
	}
	if flags.Changed("format") {
		cfg.OutputFormat = flagFormat
	}
	if flags.Changed("output") {
		cfg.OutputFile = flagOutput
	}
	if flags.Changed("severity") {
		cfg.SeverityThreshold = flagSeverity
	}
	if flags.Changed("include") {
		cfg.IncludePatterns = flagInclude
	}
	if flags.Changed("exclude") {
		cfg.ExcludePatterns = flagExclude
	}
	if flags.Changed("workers") {
		cfg.MaxWorkers = flagWorkers
	}
	if flags.Changed("timeout") {
		cfg.Timeout = flagTimeout
	}
	if flags.Changed("scan-timeout") {
		cfg.ScanTimeout = flagScanTimeout
	}
	if flags.Changed("history-db") {
		cfg.HistoryDB = flagHistoryDB
	}
	if flags.Changed("rules") {
		cfg.RulesDir = flagRules
	}
	return cfg, nil
}

func executeScan(ctx context.Context, cmd *cobra.Command, cfg config.Config) (*types.ScanResult, error) {
	opts := []argus.Option{argus.WithConfig(cfg), argus.WithLogger(logger)}
	if flagChanged {
		opts = append(opts, argus.WithChangedOnly())
	}

	progress := newProgress(cmd.ErrOrStderr())
	if progress != nil {
		defer progress.Stop()
		opts = append(opts, argus.WithPhaseHook(func(p argus.Phase) {
			if p == argus.PhaseDone {
				progress.Stop()
				return
			}
			progress.Start(phaseMessage(p))
		}))
	}

	s, err := argus.NewScanner(opts...)
	if err != nil {
		return nil, err
	}
	result, err := s.Scan(ctx, cfg.TargetPaths...)
	if err != nil {
		return nil, fmt.Errorf("scan failed: %w", err)
	}
	return result, nil
}

// newProgress returns a spinner on w when w is an interactive terminal, nil
// otherwise.
func newProgress(w io.Writer) *output.Spinner {
	if flagQuiet || !isTerminal(w) {
		return nil
	}
	return output.NewSpinner(w)
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	stat, err := f.Stat()
	if err != nil {
		return false
	}
	return stat.Mode()&os.ModeCharDevice != 0
}

func phaseMessage(p argus.Phase) string {
	switch p {
	case argus.PhaseCollecting:
		return "Collecting files"
	case argus.PhaseDispatching:
		return "Dispatching analyzers"
	case argus.PhaseRunning:
		return "Analyzing"
	case argus.PhaseAggregating:
		return "Aggregating results"
	}
	return p.String()
}

// recordHistory stores the scan when a history database is configured and
// reports how many vulnerabilities are new since the previous scan. History
// problems never fail the scan.
func recordHistory(ctx context.Context, cmd *cobra.Command, cfg config.Config, result *types.ScanResult) {
	if cfg.HistoryDB == "" {
		return
	}
	store, err := history.Open(cfg.HistoryDB)
	if err != nil {
		logger.Warnw("opening scan history", "error", err)
		return
	}
	defer store.Close()

	fresh, err := store.NewSince(ctx, result)
	switch {
	case errors.Is(err, history.ErrNoPrevious):
	case err != nil:
		logger.Warnw("comparing with previous scan", "error", err)
	case !flagQuiet:
		fmt.Fprintf(cmd.ErrOrStderr(), "%d new vulnerabilities since the previous scan of %s\n", len(fresh), result.Target)
	}
	if _, err := store.Record(ctx, result, time.Now()); err != nil {
		logger.Warnw("recording scan history", "error", err)
	}
}

func writeOutput(cmd *cobra.Command, cfg config.Config, result *types.ScanResult) error {
	noColor := flagNoColor || cfg.OutputFile != ""
	formatter, err := output.New(cfg.OutputFormat, output.Options{NoColor: noColor, Verbose: flagVerbose})
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	if cfg.OutputFile != "" {
		f, err := os.Create(cfg.OutputFile)
		if err != nil {
			return fmt.Errorf("creating output file: %w", err)
		}
		defer func() { _ = f.Close() }()
		w = f
	}
	return formatter.Format(w, result)
}

func contextWithInterrupt(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt)
}
