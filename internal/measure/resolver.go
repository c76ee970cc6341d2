package measure

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
)

// ResolveError aggregates every failed name from one Resolve call, so an
// operator can fix all of them in one pass. Missing aliases (user-input
// gap: upload a new config) are kept separate from corrupt or missing
// backing files (operator error).
type ResolveError struct {
	NotFound []string
	Corrupt  map[string]error
}

func (e *ResolveError) Error() string {
	var parts []string
	if len(e.NotFound) > 0 {
		parts = append(parts, fmt.Sprintf(
			"configuration not found for measure(s): %s; please upload the required JSON configuration files",
			strings.Join(e.NotFound, ", ")))
	}
	if len(e.Corrupt) > 0 {
		names := make([]string, 0, len(e.Corrupt))
		for name := range e.Corrupt {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			parts = append(parts, fmt.Sprintf("configuration for %q is unreadable: %v", name, e.Corrupt[name]))
		}
	}
	return "measure: " + strings.Join(parts, "; ")
}

// Resolver loads measure configurations by name or alias through the index.
type Resolver struct {
	index *Index
	dir   string
}

func NewResolver(idx *Index, measuresDir string) *Resolver {
	return &Resolver{index: idx, dir: measuresDir}
}

// Resolve loads a configuration for every requested name. All-or-nothing:
// if any name fails, no mapping is returned and the error names every
// failure, so downstream SQL generation can never silently drop a measure.
// Configs are fresh snapshots read from disk, never shared between runs.
func (r *Resolver) Resolve(names []string) (map[string]*Config, error) {
	configs := make(map[string]*Config, len(names))
	resErr := &ResolveError{Corrupt: make(map[string]error)}

	for _, name := range names {
		file, ok := r.index.Lookup(name)
		if !ok {
			resErr.NotFound = append(resErr.NotFound, name)
			continue
		}
		if !strings.HasSuffix(file, ".json") {
			file += ".json"
		}
		cfg, err := readConfigFile(filepath.Join(r.dir, file))
		if err != nil {
			resErr.Corrupt[name] = err
			continue
		}
		configs[name] = cfg
	}

	if len(resErr.NotFound) > 0 || len(resErr.Corrupt) > 0 {
		return nil, resErr
	}
	return configs, nil
}
