package scanner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/cagmero/ARGUS/internal/classify"
	"github.com/cagmero/ARGUS/internal/meta"
	"github.com/cagmero/ARGUS/internal/parser"
	"github.com/cagmero/ARGUS/internal/types"
)

// ErrNoTargets is returned when none of the requested target paths exist.
var ErrNoTargets = errors.New("no target path could be resolved")

// DefaultTimeout is the per-unit deadline used when none is set.
const DefaultTimeout = 300 * time.Second

// Phase is a step of a scan.
type Phase int

const (
	PhaseCollecting Phase = iota
	PhaseDispatching
	PhaseRunning
	PhaseAggregating
	PhaseDone
)

func (p Phase) String() string {
	switch p {
	case PhaseCollecting:
		return "COLLECTING"
	case PhaseDispatching:
		return "DISPATCHING"
	case PhaseRunning:
		return "RUNNING"
	case PhaseAggregating:
		return "AGGREGATING"
	case PhaseDone:
		return "DONE"
	default:
		return "UNKNOWN"
	}
}

// Scanner runs registered analyzers over target files. Its settings are
// fixed before the first Scan; each Scan keeps its progress in local state,
// so one Scanner may serve concurrent scans.
type Scanner struct {
	analyzers   []Analyzer
	workers     int
	timeout     time.Duration
	scanTimeout time.Duration
	threshold   types.Severity
	include     []string
	exclude     []string
	changedOnly bool
	onPhase     func(Phase)
	observer    Observer
	logger      *zap.SugaredLogger
}

// New creates a scanner with the given number of workers.
func New(workers int) *Scanner {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Scanner{
		workers: workers,
		timeout: DefaultTimeout,
		logger:  zap.NewNop().Sugar(),
	}
}

// RegisterAnalyzer adds an analyzer. Units run analyzers in registration order.
func (s *Scanner) RegisterAnalyzer(a Analyzer) {
	s.analyzers = append(s.analyzers, a)
}

// Analyzers returns the registered analyzer ids.
func (s *Scanner) Analyzers() []string {
	names := make([]string, len(s.analyzers))
	for i, a := range s.analyzers {
		names[i] = a.Name()
	}
	return names
}

// SetMinSeverity sets the threshold below which findings are dropped.
func (s *Scanner) SetMinSeverity(sev types.Severity) {
	s.threshold = sev
}

// SetPatterns sets the include and exclude globs.
func (s *Scanner) SetPatterns(include, exclude []string) {
	s.include = include
	s.exclude = exclude
}

// SetTimeout sets the per-unit deadline.
func (s *Scanner) SetTimeout(d time.Duration) {
	if d > 0 {
		s.timeout = d
	}
}

// SetScanTimeout sets the scan-level deadline. Units not started when it
// passes are recorded as skipped. Zero disables it.
func (s *Scanner) SetScanTimeout(d time.Duration) {
	s.scanTimeout = d
}

// SetChangedOnly restricts directory walks to files git reports as changed.
func (s *Scanner) SetChangedOnly(v bool) {
	s.changedOnly = v
}

// SetPhaseHook installs a callback invoked on every phase transition.
func (s *Scanner) SetPhaseHook(fn func(Phase)) {
	s.onPhase = fn
}

// SetObserver installs an event sink, typically scan metrics.
func (s *Scanner) SetObserver(o Observer) {
	s.observer = o
}

// SetLogger replaces the no-op logger.
func (s *Scanner) SetLogger(l *zap.SugaredLogger) {
	if l != nil {
		s.logger = l
	}
}

// scan holds the state of one Scan invocation.
type scan struct {
	mu     sync.Mutex
	vulns  []types.Vulnerability
	errors []types.ScanError
}

func (sc *scan) addError(e types.ScanError) {
	sc.mu.Lock()
	sc.errors = append(sc.errors, e)
	sc.mu.Unlock()
}

func (sc *scan) addVulns(v []types.Vulnerability) {
	sc.mu.Lock()
	sc.vulns = append(sc.vulns, v...)
	sc.mu.Unlock()
}

type unit struct {
	file     *types.ParsedFile
	analyzer Analyzer
}

// Scan collects the files under paths (default "."), runs every applicable
// analyzer over each and aggregates the result. It fails only when no path
// exists or ctx is cancelled; every other problem becomes a ScanError.
func (s *Scanner) Scan(ctx context.Context, paths ...string) (*types.ScanResult, error) {
	start := time.Now()
	if len(paths) == 0 {
		paths = []string{"."}
	}
	sc := &scan{}

	s.phase(PhaseCollecting)
	files, err := s.collect(ctx, sc, paths)
	if err != nil {
		return nil, err
	}

	return s.analyze(ctx, sc, files, strings.Join(paths, ", "), start)
}

// ScanTargets scans the given targets as they are. Targets that carry
// Content are never read from disk; include and exclude patterns do not
// apply.
func (s *Scanner) ScanTargets(ctx context.Context, targets []*Target) (*types.ScanResult, error) {
	start := time.Now()
	sc := &scan{}

	s.phase(PhaseCollecting)
	if len(targets) == 0 {
		return nil, fmt.Errorf("%w: no targets given", ErrNoTargets)
	}
	files, err := s.parseAll(ctx, sc, targets)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(targets))
	for i, t := range targets {
		names[i] = t.RelPath
	}
	return s.analyze(ctx, sc, files, strings.Join(names, ", "), start)
}

func (s *Scanner) analyze(ctx context.Context, sc *scan, files []*types.ParsedFile, target string, start time.Time) (*types.ScanResult, error) {
	s.phase(PhaseDispatching)
	units, tools := s.dispatch(files)
	s.logger.Debugw("dispatching", "files", len(files), "units", len(units))

	s.phase(PhaseRunning)
	if err := s.run(ctx, sc, units, start); err != nil {
		return nil, err
	}

	s.phase(PhaseAggregating)
	result := meta.Aggregate(meta.Input{
		Target:          target,
		FilesScanned:    len(files),
		ToolsUsed:       tools,
		Vulnerabilities: sc.vulns,
		Errors:          sc.errors,
		Threshold:       s.threshold,
		Duration:        time.Since(start),
	})
	if s.observer != nil {
		s.observer.ScanFinished(result)
	}
	s.phase(PhaseDone)
	return result, nil
}

func (s *Scanner) phase(p Phase) {
	s.logger.Debugw("scan phase", "phase", p.String())
	if s.onPhase != nil {
		s.onPhase(p)
	}
}

// collect resolves paths into targets and parses them.
func (s *Scanner) collect(ctx context.Context, sc *scan, paths []string) ([]*types.ParsedFile, error) {
	td := &TargetDiscovery{Include: s.include, Exclude: s.exclude}
	seen := make(map[string]bool)
	var targets []*Target
	resolved := 0

	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			s.logger.Warnw("target path not found", "path", p, "error", err)
			sc.addError(types.ScanError{Category: types.ErrInput, File: p, Message: "target path not found"})
			continue
		}
		resolved++
		if !info.IsDir() {
			if !td.Admit(p) || seen[p] {
				continue
			}
			seen[p] = true
			targets = append(targets, &Target{Path: p, RelPath: filepath.ToSlash(filepath.Clean(p)), Explicit: true})
			continue
		}
		found, walkErrs, err := td.Discover(p)
		for _, e := range walkErrs {
			s.logger.Warnw("target entry not scanned", "path", e.File, "reason", e.Message)
			sc.addError(e)
		}
		if err != nil {
			sc.addError(types.ScanError{Category: types.ErrInput, File: p, Message: err.Error()})
			continue
		}
		if s.changedOnly {
			found = s.filterChanged(ctx, p, found)
		}
		for _, t := range found {
			if !seen[t.Path] {
				seen[t.Path] = true
				targets = append(targets, t)
			}
		}
	}
	if resolved == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoTargets, strings.Join(paths, ", "))
	}
	return s.parseAll(ctx, sc, targets)
}

// parseAll reads, classifies and parses targets with the worker count as the
// reader limit. The returned files are ordered by display path.
func (s *Scanner) parseAll(ctx context.Context, sc *scan, targets []*Target) ([]*types.ParsedFile, error) {
	parsed := make([]*types.ParsedFile, len(targets))
	work := make(chan int, len(targets))
	for i := range targets {
		work <- i
	}
	close(work)

	var wg sync.WaitGroup
	for range min(s.workers, max(len(targets), 1)) {
		wg.Go(func() {
			for i := range work {
				if ctx.Err() != nil {
					return
				}
				parsed[i] = s.load(sc, targets[i])
			}
		})
	}
	wg.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	files := make([]*types.ParsedFile, 0, len(parsed))
	for _, pf := range parsed {
		if pf != nil {
			files = append(files, pf)
		}
	}
	slices.SortFunc(files, func(a, b *types.ParsedFile) int {
		return strings.Compare(a.Path, b.Path)
	})
	return files, nil
}

// load reads and parses one target. It returns nil for files that are
// skipped or unreadable.
func (s *Scanner) load(sc *scan, t *Target) *types.ParsedFile {
	if err := t.LoadContent(); err != nil {
		sc.addError(types.ScanError{Category: types.ErrInput, File: t.RelPath, Message: err.Error()})
		return nil
	}
	if !classify.Decodable(t.Content) {
		sc.addError(types.ScanError{Category: types.ErrInput, File: t.RelPath, Message: "content is not valid UTF-8 text"})
		return nil
	}
	name := t.Path
	if name == "" {
		name = t.RelPath
	}
	ft := classify.Classify(name, t.Content)
	if ft == types.FileTypeUnknown {
		s.logger.Debugw("skipping unclassified file", "file", t.RelPath)
		return nil
	}

	pf := parser.Parse(t.RelPath, ft, t.Content)
	if t.Path != "" {
		pf.AbsPath, _ = filepath.Abs(t.Path)
	}
	for _, w := range pf.Warnings {
		s.logger.Debugw("parse warning", "file", pf.Path, "line", w.Line, "message", w.Message)
	}
	if s.observer != nil {
		s.observer.FileCollected(ft)
	}
	return pf
}

func (s *Scanner) filterChanged(ctx context.Context, root string, targets []*Target) []*Target {
	changed, err := GitChangedFiles(ctx, root)
	if err != nil {
		s.logger.Warnw("listing changed files", "root", root, "error", err)
		return targets
	}
	set := make(map[string]bool, len(changed))
	for _, f := range changed {
		set[f] = true
	}
	var out []*Target
	for _, t := range targets {
		rel, err := filepath.Rel(root, t.Path)
		if err == nil && set[filepath.ToSlash(rel)] {
			out = append(out, t)
		}
	}
	return out
}

// dispatch builds the (file, analyzer) units in file order, then analyzer
// registration order, and lists the analyzers in order of first use.
func (s *Scanner) dispatch(files []*types.ParsedFile) ([]unit, []string) {
	var units []unit
	var tools []string
	used := make(map[string]bool)
	for _, pf := range files {
		for _, a := range s.analyzers {
			if !a.Supports(pf.Type) {
				continue
			}
			units = append(units, unit{file: pf, analyzer: a})
			if !used[a.Name()] {
				used[a.Name()] = true
				tools = append(tools, a.Name())
			}
		}
	}
	return units, tools
}

// run executes units on the worker pool.
func (s *Scanner) run(ctx context.Context, sc *scan, units []unit, start time.Time) error {
	work := make(chan unit, len(units))
	for _, u := range units {
		work <- u
	}
	close(work)

	var deadline time.Time
	if s.scanTimeout > 0 {
		deadline = start.Add(s.scanTimeout)
	}

	var wg sync.WaitGroup
	for range min(s.workers, max(len(units), 1)) {
		wg.Go(func() {
			for u := range work {
				if ctx.Err() != nil {
					return
				}
				if !deadline.IsZero() && time.Now().After(deadline) {
					sc.addError(types.ScanError{
						Category: types.ErrSkipped,
						File:     u.file.Path,
						Analyzer: u.analyzer.Name(),
						Message:  fmt.Sprintf("not started before the %s scan deadline", s.scanTimeout),
					})
					s.observe(u.analyzer.Name(), OutcomeSkipped, 0)
					continue
				}
				s.runUnit(ctx, sc, u)
			}
		})
	}
	wg.Wait()
	return ctx.Err()
}

type unitOutput struct {
	vulns []types.Vulnerability
	err   error
}

// runUnit executes one unit under its own deadline. Output of a unit that
// misses the deadline is discarded and replaced by a single timeout error.
func (s *Scanner) runUnit(ctx context.Context, sc *scan, u unit) {
	name := u.analyzer.Name()
	began := time.Now()
	uctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	done := make(chan unitOutput, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- unitOutput{err: fmt.Errorf("analyzer panicked: %v", r)}
			}
		}()
		vulns, err := u.analyzer.Analyze(uctx, u.file)
		done <- unitOutput{vulns: vulns, err: err}
	}()

	var out unitOutput
	timedOut := false
	select {
	case out = <-done:
	case <-uctx.Done():
		timedOut = true
	}
	elapsed := time.Since(began)

	switch {
	case ctx.Err() != nil:
		// The whole scan is being cancelled; Scan reports ctx.Err().
		return
	case timedOut || (out.err != nil && errors.Is(uctx.Err(), context.DeadlineExceeded)):
		s.logger.Warnw("analyzer timed out", "analyzer", name, "file", u.file.Path, "timeout", s.timeout)
		sc.addError(types.ScanError{
			Category: types.ErrTimeout,
			File:     u.file.Path,
			Analyzer: name,
			Message:  fmt.Sprintf("exceeded %s deadline", s.timeout),
		})
		s.observe(name, OutcomeTimeout, elapsed)
	case out.err != nil:
		s.logger.Warnw("analyzer failed", "analyzer", name, "file", u.file.Path, "error", out.err)
		sc.addError(types.ScanError{
			Category: types.ErrAnalyzer,
			File:     u.file.Path,
			Analyzer: name,
			Message:  out.err.Error(),
		})
		s.observe(name, OutcomeError, elapsed)
	default:
		for i := range out.vulns {
			if out.vulns[i].File == "" {
				out.vulns[i].File = u.file.Path
			}
			if out.vulns[i].Tool == "" {
				out.vulns[i].Tool = name
			}
		}
		sc.addVulns(out.vulns)
		s.observe(name, OutcomeOK, elapsed)
	}
}

func (s *Scanner) observe(analyzer, outcome string, d time.Duration) {
	if s.observer != nil {
		s.observer.UnitFinished(analyzer, outcome, d.Seconds())
	}
}
