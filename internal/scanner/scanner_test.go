package scanner_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cagmero/ARGUS/internal/scanner"
	"github.com/cagmero/ARGUS/internal/types"
	"github.com/stretchr/testify/require"
)

// mockAnalyzer reports a fixed set of findings on every supported file.
type mockAnalyzer struct {
	name      string
	fileTypes []types.FileType
	findings  []types.Vulnerability
	err       error
}

func (m *mockAnalyzer) Name() string { return m.name }

func (m *mockAnalyzer) Supports(ft types.FileType) bool {
	if len(m.fileTypes) == 0 {
		return true
	}
	for _, t := range m.fileTypes {
		if t == ft {
			return true
		}
	}
	return false
}

func (m *mockAnalyzer) Analyze(_ context.Context, pf *types.ParsedFile) ([]types.Vulnerability, error) {
	var result []types.Vulnerability
	for _, f := range m.findings {
		f.File = pf.Path
		result = append(result, f)
	}
	return result, m.err
}

// stubbornAnalyzer ignores its context and returns findings after a delay.
type stubbornAnalyzer struct {
	delay time.Duration
}

func (stubbornAnalyzer) Name() string                 { return "stubborn" }
func (stubbornAnalyzer) Supports(types.FileType) bool { return true }

func (s stubbornAnalyzer) Analyze(_ context.Context, pf *types.ParsedFile) ([]types.Vulnerability, error) {
	time.Sleep(s.delay)
	return []types.Vulnerability{{File: pf.Path, Line: 1, RuleID: "late", Severity: types.SeverityCritical}}, nil
}

// politeAnalyzer returns partial findings together with the context error.
type politeAnalyzer struct{}

func (politeAnalyzer) Name() string                 { return "polite" }
func (politeAnalyzer) Supports(types.FileType) bool { return true }

func (politeAnalyzer) Analyze(ctx context.Context, pf *types.ParsedFile) ([]types.Vulnerability, error) {
	<-ctx.Done()
	return []types.Vulnerability{{File: pf.Path, Line: 1, RuleID: "partial", Severity: types.SeverityHigh}}, ctx.Err()
}

type panickyAnalyzer struct{}

func (panickyAnalyzer) Name() string                 { return "panicky" }
func (panickyAnalyzer) Supports(types.FileType) bool { return true }

func (panickyAnalyzer) Analyze(context.Context, *types.ParsedFile) ([]types.Vulnerability, error) {
	panic("index out of range")
}

const tealProgram = "#pragma version 8\ntxn Sender\nglobal CreatorAddress\n==\nreturn\n"

func newScanner() *scanner.Scanner {
	s := scanner.New(2)
	s.SetPatterns([]string{"**/*.teal", "**/*.py", "**/*.ts"}, []string{"**/vendor/**"})
	return s
}

func TestScannerOrchestrator(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "approval.teal"), []byte(tealProgram), 0644))

	s := newScanner()
	s.RegisterAnalyzer(&mockAnalyzer{
		name:     "builtin",
		findings: []types.Vulnerability{{RuleID: "R1", Severity: types.SeverityHigh, Line: 1}},
	})

	result, err := s.Scan(context.Background(), dir)
	require.NoError(t, err)
	require.Equal(t, 1, result.Summary.FilesScanned)
	require.Len(t, result.Vulnerabilities, 1)
	require.Equal(t, "R1", result.Vulnerabilities[0].RuleID)
	require.Equal(t, "builtin", result.Vulnerabilities[0].Tool)
	require.Equal(t, []string{"builtin"}, result.Summary.ToolsUsed)
	require.Greater(t, result.Summary.Duration, time.Duration(0))
	require.Empty(t, result.Errors)
}

func TestScannerExcludedFileNotScanned(t *testing.T) {
	dir := t.TempDir()
	writeTree(t, dir, map[string]string{
		"approval.teal":        tealProgram,
		"vendor/library.teal":  tealProgram,
		"vendor/nested/x.teal": tealProgram,
	})

	s := newScanner()
	s.RegisterAnalyzer(&mockAnalyzer{
		name:     "builtin",
		findings: []types.Vulnerability{{RuleID: "R1", Severity: types.SeverityHigh, Line: 2}},
	})

	result, err := s.Scan(context.Background(), dir)
	require.NoError(t, err)
	require.Equal(t, 1, result.Summary.FilesScanned)
	require.Len(t, result.Vulnerabilities, 1)
	require.Equal(t, "approval.teal", filepath.Base(result.Vulnerabilities[0].File))
	require.Empty(t, result.Errors)
}

func TestScannerExplicitFileBypassesInclude(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "approval")
	require.NoError(t, os.WriteFile(path, []byte(tealProgram), 0644))

	s := newScanner()
	s.RegisterAnalyzer(&mockAnalyzer{name: "builtin", fileTypes: []types.FileType{types.FileTypeContractASM}})

	result, err := s.Scan(context.Background(), path)
	require.NoError(t, err)
	require.Equal(t, 1, result.Summary.FilesScanned)
	require.Equal(t, []string{"builtin"}, result.Summary.ToolsUsed)

	// Walking the directory applies the include patterns.
	result, err = s.Scan(context.Background(), dir)
	require.NoError(t, err)
	require.Zero(t, result.Summary.FilesScanned)
	require.Empty(t, result.Summary.ToolsUsed)
}

func TestScannerExplicitFileStillExcluded(t *testing.T) {
	dir := t.TempDir()
	writeTree(t, dir, map[string]string{"vendor/lib.teal": tealProgram})

	s := newScanner()
	s.RegisterAnalyzer(&mockAnalyzer{name: "builtin"})

	result, err := s.Scan(context.Background(), filepath.Join(dir, "vendor", "lib.teal"))
	require.NoError(t, err)
	require.Zero(t, result.Summary.FilesScanned)
	require.Empty(t, result.Errors)
}

func TestScannerTwoAnalyzersSameLine(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "approval.teal"), []byte(tealProgram), 0644))

	s := newScanner()
	s.RegisterAnalyzer(&mockAnalyzer{
		name:     "tealer",
		findings: []types.Vulnerability{{RuleID: "unprotected-update", Severity: types.SeverityHigh, Line: 3}},
	})
	s.RegisterAnalyzer(&mockAnalyzer{
		name:     "builtin",
		findings: []types.Vulnerability{{RuleID: "missing-access-control", Severity: types.SeverityHigh, Line: 3}},
	})

	result, err := s.Scan(context.Background(), dir)
	require.NoError(t, err)
	require.Len(t, result.Vulnerabilities, 2)
	require.Equal(t, "builtin", result.Vulnerabilities[0].Tool)
	require.Equal(t, "tealer", result.Vulnerabilities[1].Tool)
	require.Equal(t, []string{"tealer", "builtin"}, result.Summary.ToolsUsed)
	require.Equal(t, 2, result.Summary.High)
}

func TestScannerSeverityFilter(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "approval.teal"), []byte(tealProgram), 0644))

	s := newScanner()
	s.SetMinSeverity(types.SeverityHigh)
	s.RegisterAnalyzer(&mockAnalyzer{
		name: "builtin",
		findings: []types.Vulnerability{
			{RuleID: "R1", Severity: types.SeverityCritical, Line: 1},
			{RuleID: "R2", Severity: types.SeverityHigh, Line: 2},
			{RuleID: "R3", Severity: types.SeverityMedium, Line: 3},
			{RuleID: "R4", Severity: types.SeverityLow, Line: 4},
		},
	})

	result, err := s.Scan(context.Background(), dir)
	require.NoError(t, err)
	require.Len(t, result.Vulnerabilities, 2)
	require.Equal(t, 2, result.Summary.TotalVulnerabilities)
	require.Equal(t, 1, result.Summary.Critical)
	require.Equal(t, 1, result.Summary.High)
	require.Zero(t, result.Summary.Medium)
	require.Zero(t, result.Summary.Low)
	require.Equal(t, 3, result.ExitCode())
}

func TestScannerSupportsFiltersUnits(t *testing.T) {
	dir := t.TempDir()
	writeTree(t, dir, map[string]string{
		"approval.teal": tealProgram,
		"counter.py":    "from pyteal import *\n",
	})

	s := newScanner()
	s.RegisterAnalyzer(&mockAnalyzer{
		name:      "tealer",
		fileTypes: []types.FileType{types.FileTypeContractASM},
		findings:  []types.Vulnerability{{RuleID: "T1", Severity: types.SeverityLow, Line: 1}},
	})

	result, err := s.Scan(context.Background(), dir)
	require.NoError(t, err)
	require.Equal(t, 2, result.Summary.FilesScanned)
	require.Len(t, result.Vulnerabilities, 1)
	require.Equal(t, "approval.teal", filepath.Base(result.Vulnerabilities[0].File))
}

func TestScannerUnitTimeout(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "approval.teal"), []byte(tealProgram), 0644))

	for _, a := range []scanner.Analyzer{stubbornAnalyzer{delay: 500 * time.Millisecond}, politeAnalyzer{}} {
		s := newScanner()
		s.SetTimeout(50 * time.Millisecond)
		s.RegisterAnalyzer(a)

		result, err := s.Scan(context.Background(), dir)
		require.NoError(t, err)
		require.Empty(t, result.Vulnerabilities, a.Name())
		require.Len(t, result.Errors, 1, a.Name())
		require.Equal(t, types.ErrTimeout, result.Errors[0].Category)
		require.Equal(t, a.Name(), result.Errors[0].Analyzer)
	}
}

func TestScannerAnalyzerErrorsAreScoped(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "approval.teal"), []byte(tealProgram), 0644))

	s := newScanner()
	s.RegisterAnalyzer(&mockAnalyzer{name: "tealer", err: errors.New("tealer not found on PATH")})
	s.RegisterAnalyzer(panickyAnalyzer{})
	s.RegisterAnalyzer(&mockAnalyzer{
		name:     "builtin",
		findings: []types.Vulnerability{{RuleID: "R1", Severity: types.SeverityMedium, Line: 1}},
	})

	result, err := s.Scan(context.Background(), dir)
	require.NoError(t, err)
	require.Len(t, result.Vulnerabilities, 1)
	require.Len(t, result.Errors, 2)
	for _, e := range result.Errors {
		require.Equal(t, types.ErrAnalyzer, e.Category)
	}
	require.Equal(t, "panicky", result.Errors[0].Analyzer)
	require.Contains(t, result.Errors[0].Message, "panicked")
	require.Equal(t, "tealer", result.Errors[1].Analyzer)
}

func TestScannerScanDeadlineSkipsUnits(t *testing.T) {
	dir := t.TempDir()
	writeTree(t, dir, map[string]string{
		"a.teal": tealProgram,
		"b.teal": tealProgram,
	})

	s := newScanner()
	s.SetScanTimeout(time.Nanosecond)
	s.RegisterAnalyzer(&mockAnalyzer{
		name:     "builtin",
		findings: []types.Vulnerability{{RuleID: "R1", Severity: types.SeverityHigh, Line: 1}},
	})

	result, err := s.Scan(context.Background(), dir)
	require.NoError(t, err)
	require.Empty(t, result.Vulnerabilities)
	require.Len(t, result.Errors, 2)
	for _, e := range result.Errors {
		require.Equal(t, types.ErrSkipped, e.Category)
	}
}

func TestScannerInputErrors(t *testing.T) {
	dir := t.TempDir()
	binary := filepath.Join(dir, "broken.teal")
	require.NoError(t, os.WriteFile(binary, []byte{0xff, 0xfe, 0x00, 0x01}, 0644))
	notes := filepath.Join(dir, "notes")
	require.NoError(t, os.WriteFile(notes, []byte("remember to rotate the keys\n"), 0644))

	s := newScanner()
	s.RegisterAnalyzer(&mockAnalyzer{name: "builtin"})

	result, err := s.Scan(context.Background(), binary, notes)
	require.NoError(t, err)
	require.Zero(t, result.Summary.FilesScanned)
	require.Len(t, result.Errors, 1)
	require.Equal(t, types.ErrInput, result.Errors[0].Category)
	require.Contains(t, result.Errors[0].File, "broken.teal")
}

func TestScannerUnreadableDirectoryIsReported(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("root ignores directory permissions")
	}
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "approval.teal"), []byte(tealProgram), 0644))
	locked := filepath.Join(dir, "locked")
	require.NoError(t, os.Mkdir(locked, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(locked, "clear.teal"), []byte(tealProgram), 0644))
	require.NoError(t, os.Chmod(locked, 0o000))
	t.Cleanup(func() { os.Chmod(locked, 0o755) })

	s := newScanner()
	s.RegisterAnalyzer(&mockAnalyzer{name: "builtin"})

	result, err := s.Scan(context.Background(), dir)
	require.NoError(t, err)
	require.Equal(t, 1, result.Summary.FilesScanned)
	require.Len(t, result.Errors, 1)
	require.Equal(t, types.ErrInput, result.Errors[0].Category)
	require.Equal(t, filepath.ToSlash(locked), result.Errors[0].File)
}

func TestScannerNoTargets(t *testing.T) {
	s := newScanner()
	_, err := s.Scan(context.Background(), filepath.Join(t.TempDir(), "missing"))
	require.ErrorIs(t, err, scanner.ErrNoTargets)
}

func TestScannerMissingPathAmongOthers(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "approval.teal"), []byte(tealProgram), 0644))

	s := newScanner()
	s.RegisterAnalyzer(&mockAnalyzer{name: "builtin"})

	result, err := s.Scan(context.Background(), dir, filepath.Join(dir, "missing"))
	require.NoError(t, err)
	require.Equal(t, 1, result.Summary.FilesScanned)
	require.Len(t, result.Errors, 1)
	require.Equal(t, types.ErrInput, result.Errors[0].Category)
}

func TestScannerPhases(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "approval.teal"), []byte(tealProgram), 0644))

	var phases []string
	s := newScanner()
	s.SetPhaseHook(func(p scanner.Phase) { phases = append(phases, p.String()) })
	s.RegisterAnalyzer(&mockAnalyzer{name: "builtin"})

	_, err := s.Scan(context.Background(), dir)
	require.NoError(t, err)
	require.Equal(t, []string{"COLLECTING", "DISPATCHING", "RUNNING", "AGGREGATING", "DONE"}, phases)
}

func TestScannerDeterministic(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{}
	for _, name := range []string{"a", "b", "c", "d", "e", "f"} {
		files[name+".teal"] = tealProgram
	}
	writeTree(t, dir, files)

	s := scanner.New(4)
	s.SetPatterns([]string{"**/*.teal"}, nil)
	for _, name := range []string{"x", "y", "z"} {
		s.RegisterAnalyzer(&mockAnalyzer{
			name: name,
			findings: []types.Vulnerability{
				{RuleID: "R1", Severity: types.SeverityHigh, Line: 2},
				{RuleID: "R2", Severity: types.SeverityLow, Line: 1},
			},
		})
	}

	first, err := s.Scan(context.Background(), dir)
	require.NoError(t, err)
	for range 5 {
		again, err := s.Scan(context.Background(), dir)
		require.NoError(t, err)
		require.Equal(t, first.Vulnerabilities, again.Vulnerabilities)
		require.Equal(t, first.Summary.ToolsUsed, again.Summary.ToolsUsed)
	}
}

func TestScannerContextCancellation(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "approval.teal"), []byte(tealProgram), 0644))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := newScanner()
	s.RegisterAnalyzer(&mockAnalyzer{name: "builtin"})

	_, err := s.Scan(ctx, dir)
	require.ErrorIs(t, err, context.Canceled)
}

// pathRecorder reports the absolute path it was handed as the message.
type pathRecorder struct{}

func (pathRecorder) Name() string                 { return "recorder" }
func (pathRecorder) Supports(types.FileType) bool { return true }

func (pathRecorder) Analyze(_ context.Context, pf *types.ParsedFile) ([]types.Vulnerability, error) {
	return []types.Vulnerability{{Line: 1, RuleID: "abs", Severity: types.SeverityLow, Message: pf.AbsPath}}, nil
}

func TestScannerScanTargetsInMemory(t *testing.T) {
	s := newScanner()
	s.RegisterAnalyzer(pathRecorder{})

	result, err := s.ScanTargets(context.Background(), []*scanner.Target{
		{RelPath: "inline/approval.teal", Content: []byte(tealProgram)},
		{RelPath: "inline/blob.teal", Content: []byte{0xff, 0xfe, 0x00}},
	})
	require.NoError(t, err)
	require.Equal(t, "inline/approval.teal, inline/blob.teal", result.Target)
	require.Equal(t, 1, result.Summary.FilesScanned)
	require.Len(t, result.Vulnerabilities, 1)
	require.Equal(t, "inline/approval.teal", result.Vulnerabilities[0].File)
	require.Empty(t, result.Vulnerabilities[0].Message, "in-memory files have no path on disk")
	require.Len(t, result.Errors, 1)
	require.Equal(t, types.ErrInput, result.Errors[0].Category)

	_, err = s.ScanTargets(context.Background(), nil)
	require.ErrorIs(t, err, scanner.ErrNoTargets)
}
