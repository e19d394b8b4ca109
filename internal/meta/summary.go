package meta

import (
	"time"

	"github.com/cagmero/ARGUS/internal/types"
)

// Input is everything the orchestrator collected during a scan.
type Input struct {
	Target          string
	FilesScanned    int
	ToolsUsed       []string
	Vulnerabilities []types.Vulnerability
	Errors          []types.ScanError
	Threshold       types.Severity
	Duration        time.Duration
}

// Summarize counts vulns per severity.
func Summarize(vulns []types.Vulnerability, filesScanned int, tools []string) types.ScanSummary {
	s := types.ScanSummary{
		FilesScanned:         filesScanned,
		TotalVulnerabilities: len(vulns),
		ToolsUsed:            append([]string(nil), tools...),
	}
	for _, v := range vulns {
		switch v.Severity {
		case types.SeverityCritical:
			s.Critical++
		case types.SeverityHigh:
			s.High++
		case types.SeverityMedium:
			s.Medium++
		case types.SeverityLow:
			s.Low++
		default:
			s.Info++
		}
	}
	return s
}

// FilterThreshold keeps the vulnerabilities at or above threshold.
func FilterThreshold(vulns []types.Vulnerability, threshold types.Severity) []types.Vulnerability {
	result := make([]types.Vulnerability, 0, len(vulns))
	for _, v := range vulns {
		if v.Severity >= threshold {
			result = append(result, v)
		}
	}
	return result
}

// Aggregate builds the final result: dedup, threshold filter, summary over
// the surviving list, canonical ordering of findings and errors.
func Aggregate(in Input) *types.ScanResult {
	vulns := FilterThreshold(Deduplicate(in.Vulnerabilities), in.Threshold)
	summary := Summarize(vulns, in.FilesScanned, in.ToolsUsed)
	summary.Duration = in.Duration

	errs := append([]types.ScanError(nil), in.Errors...)
	SortErrors(errs)

	return &types.ScanResult{
		Summary:         summary,
		Vulnerabilities: vulns,
		Errors:          errs,
		Target:          in.Target,
	}
}
