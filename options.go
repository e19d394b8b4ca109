package argus

import (
	"time"

	"go.uber.org/zap"

	"github.com/cagmero/ARGUS/internal/config"
	"github.com/cagmero/ARGUS/internal/scanner"
)

// scanConfig holds the resolved settings for one call.
type scanConfig struct {
	cfg         config.Config
	logger      *zap.SugaredLogger
	observer    scanner.Observer
	onPhase     func(scanner.Phase)
	changedOnly bool
	fileType    FileType // only for ListRules
}

// Option configures a scan or a catalog query.
type Option func(*scanConfig)

// WithConfig replaces the whole configuration. Options given after it
// still apply on top.
func WithConfig(cfg Config) Option {
	return func(c *scanConfig) {
		c.cfg = cfg.Clone()
	}
}

// WithAnalyzers selects the analyzers to run (default: builtin).
func WithAnalyzers(ids ...string) Option {
	return func(c *scanConfig) {
		c.cfg.Analyzers = append([]string(nil), ids...)
	}
}

// WithMinSeverity sets the minimum severity of reported vulnerabilities.
func WithMinSeverity(sev Severity) Option {
	return func(c *scanConfig) {
		c.cfg.SeverityThreshold = sev.String()
	}
}

// WithWorkers sets the size of the worker pool.
func WithWorkers(n int) Option {
	return func(c *scanConfig) {
		c.cfg.MaxWorkers = n
	}
}

// WithTimeout sets the per-unit deadline, rounded up to whole seconds.
func WithTimeout(d time.Duration) Option {
	return func(c *scanConfig) {
		c.cfg.Timeout = seconds(d)
	}
}

// WithScanTimeout sets the deadline for a whole scan, rounded up to whole
// seconds. Zero disables it.
func WithScanTimeout(d time.Duration) Option {
	return func(c *scanConfig) {
		c.cfg.ScanTimeout = seconds(d)
	}
}

// WithPatterns replaces the include and exclude globs used during directory
// discovery. A nil slice keeps the current value.
func WithPatterns(include, exclude []string) Option {
	return func(c *scanConfig) {
		if include != nil {
			c.cfg.IncludePatterns = include
		}
		if exclude != nil {
			c.cfg.ExcludePatterns = exclude
		}
	}
}

// WithRuleOverrides changes rule severities or disables rules.
func WithRuleOverrides(overrides map[string]RuleOverride) Option {
	return func(c *scanConfig) {
		c.cfg.RuleOverrides = overrides
	}
}

// WithCustomRules loads additional pattern rules from a directory.
func WithCustomRules(dir string) Option {
	return func(c *scanConfig) {
		c.cfg.RulesDir = dir
	}
}

// WithAnalyzerSettings sets per-analyzer settings such as command overrides.
func WithAnalyzerSettings(id string, settings map[string]any) Option {
	return func(c *scanConfig) {
		if c.cfg.AnalyzerSettings == nil {
			c.cfg.AnalyzerSettings = map[string]map[string]any{}
		}
		c.cfg.AnalyzerSettings[id] = settings
	}
}

// WithChangedOnly limits directory scans to files changed in git.
func WithChangedOnly() Option {
	return func(c *scanConfig) {
		c.changedOnly = true
	}
}

// WithLogger sets the logger handed to the scanner.
func WithLogger(l *zap.SugaredLogger) Option {
	return func(c *scanConfig) {
		c.logger = l
	}
}

// WithObserver receives scan events, e.g. for metrics.
func WithObserver(o Observer) Option {
	return func(c *scanConfig) {
		c.observer = o
	}
}

// WithPhaseHook is called on every scan phase transition.
func WithPhaseHook(fn func(Phase)) Option {
	return func(c *scanConfig) {
		c.onPhase = fn
	}
}

// WithFileType filters rules by artifact kind (only applies to ListRules).
func WithFileType(ft FileType) Option {
	return func(c *scanConfig) {
		c.fileType = ft
	}
}

func seconds(d time.Duration) int {
	return int((d + time.Second - 1) / time.Second)
}
