// Package analyzers is the static registry mapping analyzer ids to their
// constructors.
package analyzers

import (
	"errors"
	"fmt"
	"slices"

	"github.com/cagmero/ARGUS/internal/adapter"
	"github.com/cagmero/ARGUS/internal/engine"
	"github.com/cagmero/ARGUS/internal/rules"
	"github.com/cagmero/ARGUS/internal/scanner"
	"github.com/cagmero/ARGUS/internal/types"
)

// ErrUnknownAnalyzer is returned for ids missing from the registry.
var ErrUnknownAnalyzer = errors.New("unknown analyzer")

// Deps carries what constructors may need.
type Deps struct {
	Catalog  *rules.Catalog
	Settings map[string]map[string]any
}

type entry struct {
	name      string
	fileTypes []types.FileType
	build     func(Deps) (scanner.Analyzer, error)
}

var registry = []entry{
	{
		name:      engine.Name,
		fileTypes: []types.FileType{types.FileTypeContractASM, types.FileTypeEmbeddedDSL, types.FileTypeScript},
		build: func(d Deps) (scanner.Analyzer, error) {
			if d.Catalog == nil {
				return nil, fmt.Errorf("builtin analyzer needs a rule catalog")
			}
			return engine.New(d.Catalog), nil
		},
	},
	{
		name:      adapter.TealerName,
		fileTypes: []types.FileType{types.FileTypeContractASM},
		build: func(d Deps) (scanner.Analyzer, error) {
			s, err := settings(d, adapter.TealerName)
			if err != nil {
				return nil, err
			}
			return adapter.NewTealer(s), nil
		},
	},
	{
		name:      adapter.PandaName,
		fileTypes: []types.FileType{types.FileTypeEmbeddedDSL},
		build: func(d Deps) (scanner.Analyzer, error) {
			s, err := settings(d, adapter.PandaName)
			if err != nil {
				return nil, err
			}
			return adapter.NewPanda(s), nil
		},
	},
	{
		name:      adapter.QualityAssuranceName,
		fileTypes: []types.FileType{types.FileTypeContractASM, types.FileTypeEmbeddedDSL},
		build: func(d Deps) (scanner.Analyzer, error) {
			s, err := settings(d, adapter.QualityAssuranceName)
			if err != nil {
				return nil, err
			}
			return adapter.NewQualityAssurance(s), nil
		},
	},
}

func settings(d Deps, id string) (adapter.Settings, error) {
	s, err := adapter.ParseSettings(d.Settings[id])
	if err != nil {
		return s, fmt.Errorf("analyzer_settings.%s: %w", id, err)
	}
	return s, nil
}

// Names lists the registered ids in registry order.
func Names() []string {
	names := make([]string, len(registry))
	for i, e := range registry {
		names[i] = e.name
	}
	return names
}

// Known reports whether id is registered.
func Known(id string) bool {
	return slices.Contains(Names(), id)
}

// Build constructs the analyzers for ids, in the order given. Duplicate ids
// are built once.
func Build(ids []string, deps Deps) ([]scanner.Analyzer, error) {
	var out []scanner.Analyzer
	seen := make(map[string]bool)
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		i := slices.IndexFunc(registry, func(e entry) bool { return e.name == id })
		if i < 0 {
			return nil, fmt.Errorf("%w: %q (known: %v)", ErrUnknownAnalyzer, id, Names())
		}
		a, err := registry[i].build(deps)
		if err != nil {
			return nil, fmt.Errorf("building analyzer %s: %w", id, err)
		}
		out = append(out, a)
	}
	return out, nil
}

// Info describes a registered analyzer for listings.
type Info struct {
	Name      string           `json:"name"`
	FileTypes []types.FileType `json:"file_types"`
	External  bool             `json:"external"`
	Available bool             `json:"available"`
	Command   string           `json:"command,omitempty"`
}

// availability is implemented by the external tool adapters.
type availability interface {
	Available() (string, bool)
}

// Describe lists every registered analyzer with the availability of its tool.
func Describe(deps Deps) ([]Info, error) {
	infos := make([]Info, 0, len(registry))
	for _, e := range registry {
		info := Info{Name: e.name, FileTypes: e.fileTypes, Available: true}
		a, err := e.build(deps)
		if err != nil {
			return nil, fmt.Errorf("building analyzer %s: %w", e.name, err)
		}
		if av, ok := a.(availability); ok {
			info.External = true
			info.Command, info.Available = av.Available()
		}
		infos = append(infos, info)
	}
	return infos, nil
}
