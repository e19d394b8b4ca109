package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/cagmero/ARGUS/internal/types"
)

// PandaName is the analyzer id of the panda adapter.
const PandaName = "panda"

// pandaDriver runs panda on sys.argv[1] and prints a JSON report.
const pandaDriver = `import json, sys
try:
    from panda import analyze_file
except ImportError:
    print(json.dumps({"error": "panda is not installed"}))
    sys.exit(0)
try:
    res = analyze_file(sys.argv[1])
    out = []
    for v in getattr(res, "vulnerabilities", []) or []:
        out.append({
            "rule_id": getattr(v, "rule_id", "unknown"),
            "message": getattr(v, "message", ""),
            "severity": str(getattr(v, "severity", "MEDIUM")),
            "line": getattr(v, "line", 1),
            "column": getattr(v, "column", None),
            "description": getattr(v, "description", None),
        })
    print(json.dumps({"vulnerabilities": out}))
except Exception as e:
    print(json.dumps({"error": str(e)}))
`

type pandaReport struct {
	Error           string `json:"error"`
	Vulnerabilities []struct {
		RuleID      string  `json:"rule_id"`
		Message     string  `json:"message"`
		Severity    string  `json:"severity"`
		Line        int     `json:"line"`
		Column      *int    `json:"column"`
		Description *string `json:"description"`
	} `json:"vulnerabilities"`
}

// Panda runs the panda analyzer over PyTeal contracts.
type Panda struct {
	tool
}

// NewPanda creates the panda adapter.
func NewPanda(settings Settings) *Panda {
	return &Panda{tool{
		name: PandaName,
		candidates: []Command{
			{Name: "python3", Args: []string{"-c", pandaDriver}},
			{Name: "python", Args: []string{"-c", pandaDriver}},
		},
		settings: settings,
		accept:   []int{0},
	}}
}

func (p *Panda) Name() string { return PandaName }

func (p *Panda) Supports(ft types.FileType) bool {
	return ft == types.FileTypeEmbeddedDSL
}

// Analyze skips Python files that do not import PyTeal.
func (p *Panda) Analyze(ctx context.Context, pf *types.ParsedFile) ([]types.Vulnerability, error) {
	if !pf.Imports("pyteal") {
		return nil, nil
	}
	path, cleanup, err := materialize(pf.AbsPath, pf.Path, pf.Content)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	out, err := p.run(ctx, path)
	if err != nil {
		return nil, err
	}
	return ParsePanda(out, pf)
}

// ParsePanda converts the driver's report into vulnerabilities.
func ParsePanda(data []byte, pf *types.ParsedFile) ([]types.Vulnerability, error) {
	var report pandaReport
	if err := json.Unmarshal(bytes.TrimSpace(data), &report); err != nil {
		return nil, fmt.Errorf("malformed panda output: %w", err)
	}
	if report.Error != "" {
		return nil, fmt.Errorf("panda: %s", report.Error)
	}

	vulns := make([]types.Vulnerability, 0, len(report.Vulnerabilities))
	for _, r := range report.Vulnerabilities {
		rule := r.RuleID
		if rule == "" {
			rule = "unknown"
		}
		msg := r.Message
		if msg == "" {
			msg = "panda reported " + rule
		}
		v := finding(PandaName, pf, r.Line, severityOf(r.Severity, nil), rule, msg)
		if r.Column != nil && *r.Column > 0 {
			v.Column = *r.Column
		}
		if r.Description != nil {
			v.Description = *r.Description
		}
		v.CWE = defaultCWE
		v.Confidence = "HIGH"
		vulns = append(vulns, v)
	}
	return vulns, nil
}
