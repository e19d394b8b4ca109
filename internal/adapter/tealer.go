package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/cagmero/ARGUS/internal/types"
)

// TealerName is the analyzer id of the tealer adapter.
const TealerName = "tealer"

type tealerElement struct {
	SourceMapping struct {
		Lines []int `json:"lines"`
	} `json:"source_mapping"`
}

type tealerDetector struct {
	Check       string          `json:"check"`
	Impact      string          `json:"impact"`
	Confidence  string          `json:"confidence"`
	Description string          `json:"description"`
	Markdown    string          `json:"markdown"`
	Elements    []tealerElement `json:"elements"`
}

// tealerReport accepts both the flat layout and the slither-style one that
// nests detectors under "results".
type tealerReport struct {
	Detectors []tealerDetector `json:"detectors"`
	Results   struct {
		Detectors []tealerDetector `json:"detectors"`
	} `json:"results"`
}

// Tealer runs the tealer static analyzer over TEAL programs.
type Tealer struct {
	tool
}

// NewTealer creates the tealer adapter.
func NewTealer(settings Settings) *Tealer {
	return &Tealer{tool{
		name: TealerName,
		candidates: []Command{
			{Name: "tealer", Args: []string{"--format", "json"}},
			{Name: "algokit", Args: []string{"task", "analyze", "--format", "json"}},
		},
		settings: settings,
		accept:   []int{0},
	}}
}

func (t *Tealer) Name() string { return TealerName }

func (t *Tealer) Supports(ft types.FileType) bool {
	return ft == types.FileTypeContractASM
}

func (t *Tealer) Analyze(ctx context.Context, pf *types.ParsedFile) ([]types.Vulnerability, error) {
	path, cleanup, err := materialize(pf.AbsPath, pf.Path, pf.Content)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	out, err := t.run(ctx, path)
	if err != nil {
		return nil, err
	}
	return ParseTealer(out, pf)
}

// ParseTealer converts a tealer JSON report into vulnerabilities, one per
// reported element.
func ParseTealer(data []byte, pf *types.ParsedFile) ([]types.Vulnerability, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	var report tealerReport
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("malformed tealer output: %w", err)
	}
	detectors := append(report.Detectors, report.Results.Detectors...)

	var vulns []types.Vulnerability
	for _, d := range detectors {
		check := d.Check
		if check == "" {
			check = "unknown"
		}
		info, ok := tealerChecks[check]
		if !ok {
			info = checkInfo{cwe: defaultCWE, fix: "Review the path reported by tealer and add the missing check."}
		}
		msg := d.Description
		if msg == "" {
			msg = "tealer reported " + check
		}
		elements := d.Elements
		if len(elements) == 0 {
			elements = []tealerElement{{}}
		}
		for _, e := range elements {
			line := 1
			if len(e.SourceMapping.Lines) > 0 {
				line = e.SourceMapping.Lines[0]
			}
			v := finding(TealerName, pf, line, severityOf(d.Impact, tealerImpact), check, msg)
			v.Description = d.Markdown
			v.CWE = info.cwe
			v.Confidence = confidenceOf(d.Confidence)
			v.FixSuggestion = info.fix
			vulns = append(vulns, v)
		}
	}
	return vulns, nil
}
