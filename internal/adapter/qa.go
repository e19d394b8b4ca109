package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/cagmero/ARGUS/internal/types"
)

// QualityAssuranceName is the analyzer id of the quality-assurance adapter.
const QualityAssuranceName = "quality-assurance"

// qaTextRe matches "file:line[:col]: warning|error|info: message".
var qaTextRe = regexp.MustCompile(`(?i)^(?:[^:]*):(\d+)(?::(\d+))?:\s*(error|warning|info|note)\s*:\s*(.+)$`)

var qaSeverity = map[string]types.Severity{
	"error":   types.SeverityHigh,
	"warning": types.SeverityMedium,
	"info":    types.SeverityLow,
	"note":    types.SeverityLow,
}

type qaReport struct {
	Issues []struct {
		RuleID         string `json:"rule_id"`
		Severity       string `json:"severity"`
		Line           int    `json:"line"`
		Column         int    `json:"column"`
		Message        string `json:"message"`
		Description    string `json:"description"`
		CWE            string `json:"cwe_id"`
		Confidence     string `json:"confidence"`
		CodeSnippet    string `json:"code_snippet"`
		Recommendation string `json:"recommendation"`
	} `json:"issues"`
}

// QualityAssurance runs the Algorand smart-contract quality-assurance tool.
type QualityAssurance struct {
	tool
}

// NewQualityAssurance creates the quality-assurance adapter.
func NewQualityAssurance(settings Settings) *QualityAssurance {
	return &QualityAssurance{tool{
		name: QualityAssuranceName,
		candidates: []Command{
			{Name: "algo-qa", Args: []string{"--json"}},
			{Name: "python3", Args: []string{"-m", "algo_qa", "--json"}},
			{Name: "algorand-qa", Args: []string{"--json"}},
		},
		settings: settings,
		// The tool exits 1 when it reports issues.
		accept: []int{0, 1},
	}}
}

func (q *QualityAssurance) Name() string { return QualityAssuranceName }

func (q *QualityAssurance) Supports(ft types.FileType) bool {
	return ft == types.FileTypeContractASM || ft == types.FileTypeEmbeddedDSL
}

func (q *QualityAssurance) Analyze(ctx context.Context, pf *types.ParsedFile) ([]types.Vulnerability, error) {
	path, cleanup, err := materialize(pf.AbsPath, pf.Path, pf.Content)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	out, err := q.run(ctx, path)
	if err != nil {
		return nil, err
	}
	return ParseQualityAssurance(out, pf)
}

// ParseQualityAssurance converts the tool's JSON report, or its plain text
// diagnostics when the output is not JSON.
func ParseQualityAssurance(data []byte, pf *types.ParsedFile) ([]types.Vulnerability, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, nil
	}
	var report qaReport
	if err := json.Unmarshal(data, &report); err != nil {
		return parseQAText(string(data), pf)
	}

	vulns := make([]types.Vulnerability, 0, len(report.Issues))
	for _, is := range report.Issues {
		rule := is.RuleID
		if rule == "" {
			rule = "unknown"
		}
		msg := is.Message
		if msg == "" {
			msg = "quality issue: " + rule
		}
		v := finding(QualityAssuranceName, pf, is.Line, severityOf(is.Severity, nil), rule, msg)
		v.Column = max(is.Column, 0)
		v.Description = is.Description
		v.CWE = is.CWE
		if v.CWE == "" {
			v.CWE = defaultCWE
		}
		v.Confidence = confidenceOf(is.Confidence)
		if is.CodeSnippet != "" {
			v.CodeSnippet = strings.TrimSpace(is.CodeSnippet)
		}
		v.FixSuggestion = is.Recommendation
		vulns = append(vulns, v)
	}
	return vulns, nil
}

func parseQAText(out string, pf *types.ParsedFile) ([]types.Vulnerability, error) {
	var vulns []types.Vulnerability
	for _, line := range strings.Split(out, "\n") {
		m := qaTextRe.FindStringSubmatch(strings.TrimSpace(line))
		if m == nil {
			continue
		}
		n, _ := strconv.Atoi(m[1])
		v := finding(QualityAssuranceName, pf, n, qaSeverity[strings.ToLower(m[3])], "text-issue", m[4])
		if m[2] != "" {
			v.Column, _ = strconv.Atoi(m[2])
		}
		v.CWE = defaultCWE
		v.Confidence = "LOW"
		vulns = append(vulns, v)
	}
	if vulns == nil {
		return nil, fmt.Errorf("malformed quality-assurance output: %s", excerpt(out))
	}
	return vulns, nil
}
