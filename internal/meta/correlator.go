package meta

import (
	"slices"

	"github.com/cagmero/ARGUS/internal/types"
)

// proximity is the line distance within which findings are grouped.
const proximity = 5

// Hotspot is a run of findings in one file whose lines lie within proximity
// of each other and that more than one rule or analyzer agrees on.
type Hotspot struct {
	File      string
	StartLine int
	EndLine   int
	Findings  []types.Vulnerability
	// Max is the most severe finding in the group.
	Max types.Severity
}

// Correlate groups nearby findings per file and returns the groups reported
// by at least two distinct (tool, rule) pairs, most severe first.
func Correlate(vulns []types.Vulnerability) []Hotspot {
	byFile := make(map[string][]types.Vulnerability)
	var files []string
	for _, v := range vulns {
		if _, ok := byFile[v.File]; !ok {
			files = append(files, v.File)
		}
		byFile[v.File] = append(byFile[v.File], v)
	}
	slices.Sort(files)

	var spots []Hotspot
	for _, file := range files {
		fileVulns := byFile[file]
		slices.SortStableFunc(fileVulns, func(a, b types.Vulnerability) int {
			return a.Line - b.Line
		})

		var current []types.Vulnerability
		flush := func() {
			if h, ok := makeHotspot(file, current); ok {
				spots = append(spots, h)
			}
			current = nil
		}
		for _, v := range fileVulns {
			if len(current) > 0 && v.Line-current[len(current)-1].Line > proximity {
				flush()
			}
			current = append(current, v)
		}
		flush()
	}

	slices.SortStableFunc(spots, func(a, b Hotspot) int {
		if a.Max != b.Max {
			return int(b.Max) - int(a.Max)
		}
		return len(b.Findings) - len(a.Findings)
	})
	return spots
}

func makeHotspot(file string, group []types.Vulnerability) (Hotspot, bool) {
	sources := make(map[string]bool)
	for _, v := range group {
		sources[v.Tool+"\x00"+v.RuleID] = true
	}
	if len(sources) < 2 {
		return Hotspot{}, false
	}
	h := Hotspot{
		File:      file,
		StartLine: group[0].Line,
		EndLine:   group[len(group)-1].Line,
		Findings:  group,
		Max:       group[0].Severity,
	}
	for _, v := range group {
		h.Max = max(h.Max, v.Severity)
	}
	return h, true
}
