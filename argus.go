// Package argus provides a public API for static vulnerability scanning of
// Algorand artifacts: TEAL programs, PyTeal and Algorand Python contracts,
// and TypeScript/JavaScript SDK code.
//
// This is the library entry point. For the CLI tool, see cmd/argus/.
package argus

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cagmero/ARGUS/internal/analyzers"
	"github.com/cagmero/ARGUS/internal/config"
	"github.com/cagmero/ARGUS/internal/rules"
	"github.com/cagmero/ARGUS/internal/scanner"
	"github.com/cagmero/ARGUS/internal/types"
)

// Re-export core types from internal packages so consumers don't need to
// import them.
type (
	Severity      = types.Severity
	FileType      = types.FileType
	Vulnerability = types.Vulnerability
	ScanError     = types.ScanError
	ScanSummary   = types.ScanSummary
	ScanResult    = types.ScanResult
	Config        = config.Config
	RuleOverride  = rules.RuleOverride
	Scanner       = scanner.Scanner
	Target        = scanner.Target
	Observer      = scanner.Observer
	Phase         = scanner.Phase
	AnalyzerInfo  = analyzers.Info
)

const (
	SeverityInfo     = types.SeverityInfo
	SeverityLow      = types.SeverityLow
	SeverityMedium   = types.SeverityMedium
	SeverityHigh     = types.SeverityHigh
	SeverityCritical = types.SeverityCritical
)

const (
	FileTypeContractASM = types.FileTypeContractASM
	FileTypeEmbeddedDSL = types.FileTypeEmbeddedDSL
	FileTypeScript      = types.FileTypeScript
)

const (
	PhaseCollecting  = scanner.PhaseCollecting
	PhaseDispatching = scanner.PhaseDispatching
	PhaseRunning     = scanner.PhaseRunning
	PhaseAggregating = scanner.PhaseAggregating
	PhaseDone        = scanner.PhaseDone
)

var (
	// ErrInvalidConfig wraps every configuration problem found before a scan.
	ErrInvalidConfig = errors.New("invalid configuration")
	// ErrNoTargets is returned when none of the target paths exist.
	ErrNoTargets = scanner.ErrNoTargets
	// ErrRuleNotFound is returned by ExplainRule.
	ErrRuleNotFound = errors.New("rule not found")
)

// DefaultConfig returns the configuration used when no option changes it.
func DefaultConfig() Config { return config.Default() }

// RuleInfo provides summary metadata about a detection rule.
type RuleInfo struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Severity  string   `json:"severity"`
	CWE       string   `json:"cwe_id,omitempty"`
	Category  string   `json:"category"`
	FileTypes []string `json:"file_types"`
}

// RuleDetail provides full information about a rule.
type RuleDetail struct {
	RuleInfo
	Description    string   `json:"description"`
	Fix            string   `json:"fix_suggestion,omitempty"`
	Patterns       []string `json:"patterns,omitempty"`
	TruePositives  []string `json:"true_positives,omitempty"`
	FalsePositives []string `json:"false_positives,omitempty"`
}

// Scan scans files and directories on disk. With no paths the configured
// target_paths are used.
func Scan(ctx context.Context, paths []string, opts ...Option) (*ScanResult, error) {
	cfg := applyOpts(opts)
	s, err := buildScanner(cfg)
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		paths = cfg.cfg.TargetPaths
	}
	return s.Scan(ctx, paths...)
}

// ScanContent scans inline content without writing it to disk unless an
// external analyzer needs a file. filename selects the artifact kind by its
// extension, e.g. "approval.teal" or "contract.py".
func ScanContent(ctx context.Context, content, filename string, opts ...Option) (*ScanResult, error) {
	if filename == "" {
		filename = "contract.teal"
	}
	s, err := NewScanner(opts...)
	if err != nil {
		return nil, err
	}
	return s.ScanTargets(ctx, []*Target{{RelPath: filename, Content: []byte(content)}})
}

// NewScanner returns a fully wired Scanner for repeated scans.
func NewScanner(opts ...Option) (*Scanner, error) {
	return buildScanner(applyOpts(opts))
}

// ListRules returns the available detection rules ordered by id. Use
// WithFileType to keep only the rules covering one artifact kind.
func ListRules(opts ...Option) ([]RuleInfo, error) {
	cfg := applyOpts(opts)
	catalog, err := loadCatalog(cfg)
	if err != nil {
		return nil, err
	}
	var infos []RuleInfo
	for _, r := range catalog.Rules() {
		if cfg.fileType != types.FileTypeUnknown && !r.Applies(cfg.fileType) {
			continue
		}
		infos = append(infos, ruleInfo(r))
	}
	return infos, nil
}

// ExplainRule returns detailed information about a rule.
func ExplainRule(id string, opts ...Option) (*RuleDetail, error) {
	catalog, err := loadCatalog(applyOpts(opts))
	if err != nil {
		return nil, err
	}
	r, ok := catalog.Get(strings.ToLower(strings.TrimSpace(id)))
	if !ok {
		r, ok = catalog.Get(strings.TrimSpace(id))
	}
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrRuleNotFound, id)
	}

	patterns := make([]string, len(r.Patterns))
	for i, p := range r.Patterns {
		switch p.Type {
		case rules.PatternRegex:
			patterns[i] = "[regex] " + p.Regex.String()
		case rules.PatternContains:
			patterns[i] = "[contains] " + p.Value
		}
	}
	return &RuleDetail{
		RuleInfo:       ruleInfo(r),
		Description:    r.Description,
		Fix:            r.Fix,
		Patterns:       patterns,
		TruePositives:  r.Examples.TruePositive,
		FalsePositives: r.Examples.FalsePositive,
	}, nil
}

// Analyzers lists the registered analyzers and whether their external tools
// are installed.
func Analyzers(opts ...Option) ([]AnalyzerInfo, error) {
	cfg := applyOpts(opts)
	catalog, err := loadCatalog(cfg)
	if err != nil {
		return nil, err
	}
	return analyzers.Describe(analyzers.Deps{Catalog: catalog, Settings: cfg.cfg.AnalyzerSettings})
}

// AnalyzerNames lists the registered analyzer ids.
func AnalyzerNames() []string { return analyzers.Names() }

// --- internal helpers ---

func applyOpts(opts []Option) *scanConfig {
	cfg := &scanConfig{cfg: config.Default()}
	for _, o := range opts {
		o(cfg)
	}
	return cfg
}

// loadCatalog loads the builtin rules, then custom rules and overrides.
func loadCatalog(cfg *scanConfig) (*rules.Catalog, error) {
	catalog, err := rules.Builtin()
	if err != nil {
		return nil, err
	}
	if cfg.cfg.RulesDir != "" {
		if catalog, err = catalog.WithCustom(cfg.cfg.RulesDir); err != nil {
			return nil, fmt.Errorf("%w: rules_dir %s: %w", ErrInvalidConfig, cfg.cfg.RulesDir, err)
		}
	}
	if len(cfg.cfg.RuleOverrides) > 0 {
		if catalog, err = catalog.WithOverrides(cfg.cfg.RuleOverrides); err != nil {
			return nil, fmt.Errorf("%w: rule_overrides: %w", ErrInvalidConfig, err)
		}
	}
	return catalog, nil
}

// buildScanner validates the configuration and wires a Scanner with the
// selected analyzers.
func buildScanner(cfg *scanConfig) (*scanner.Scanner, error) {
	c := cfg.cfg
	if err := c.Validate(analyzers.Known); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	catalog, err := loadCatalog(cfg)
	if err != nil {
		return nil, err
	}
	built, err := analyzers.Build(c.Analyzers, analyzers.Deps{Catalog: catalog, Settings: c.AnalyzerSettings})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	s := scanner.New(c.MaxWorkers)
	s.SetMinSeverity(c.Threshold())
	s.SetPatterns(c.IncludePatterns, c.ExcludePatterns)
	s.SetTimeout(c.UnitTimeout())
	s.SetScanTimeout(c.ScanDeadline())
	s.SetChangedOnly(cfg.changedOnly)
	s.SetLogger(cfg.logger)
	if cfg.observer != nil {
		s.SetObserver(cfg.observer)
	}
	if cfg.onPhase != nil {
		s.SetPhaseHook(cfg.onPhase)
	}
	for _, a := range built {
		s.RegisterAnalyzer(a)
	}
	return s, nil
}

func ruleInfo(r *rules.CompiledRule) RuleInfo {
	fts := make([]string, len(r.FileTypes))
	for i, ft := range r.FileTypes {
		fts[i] = ft.String()
	}
	return RuleInfo{
		ID:        r.ID,
		Name:      r.Name,
		Severity:  r.Severity.String(),
		CWE:       r.CWE,
		Category:  r.Category,
		FileTypes: fts,
	}
}
