// Package scanner orchestrates target collection, classification, parsing
// and the concurrent execution of every applicable (file, analyzer) unit.
package scanner

import (
	"context"

	"github.com/cagmero/ARGUS/internal/types"
)

// Analyzer is the interface that all analysis engines and external tool
// adapters implement. Analyze must honour ctx: it is cancelled when the
// unit's deadline expires.
type Analyzer interface {
	Name() string
	Supports(ft types.FileType) bool
	Analyze(ctx context.Context, pf *types.ParsedFile) ([]types.Vulnerability, error)
}

// Observer receives scan events. The metrics package implements it.
type Observer interface {
	FileCollected(ft types.FileType)
	UnitFinished(analyzer string, outcome string, seconds float64)
	ScanFinished(result *types.ScanResult)
}

// Unit outcomes reported to an Observer.
const (
	OutcomeOK      = "ok"
	OutcomeError   = "error"
	OutcomeTimeout = "timeout"
	OutcomeSkipped = "skipped"
)
