// Package meta aggregates unit outputs into a ScanResult: duplicate removal,
// summary counts, severity threshold filtering and the canonical ordering.
package meta

import "github.com/cagmero/ARGUS/internal/types"

// Deduplicate removes findings sharing (file, line, rule_id, tool). The input
// is put in canonical order first so the surviving instance does not depend on
// the order in which units finished.
func Deduplicate(vulns []types.Vulnerability) []types.Vulnerability {
	sorted := make([]types.Vulnerability, len(vulns))
	copy(sorted, vulns)
	Sort(sorted)

	seen := make(map[string]bool, len(sorted))
	result := make([]types.Vulnerability, 0, len(sorted))
	for _, v := range sorted {
		k := v.Key()
		if seen[k] {
			continue
		}
		seen[k] = true
		result = append(result, v)
	}
	return result
}
