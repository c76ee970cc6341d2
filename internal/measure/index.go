package measure

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"sqlpilot/internal/jsonutil"
)

// reservedPrefix marks index keys that are annotations, not aliases.
// They are never read as lookups and never written on rebuild.
const reservedPrefix = "_"

// Index is the persisted alias-to-filename mapping for the measures
// directory. It is a cache: the directory contents are the sole source of
// truth, and a lookup miss triggers exactly one rescan before giving up.
//
// Rebuild and persist run under a single mutex so that two runs missing at
// the same time cannot interleave their writes.
type Index struct {
	dir       string
	indexFile string

	mu      sync.Mutex
	entries map[string]string
}

// NewIndex loads the persisted index if present. A malformed index file
// degrades to an empty index with a warning; the next lookup rebuilds it.
func NewIndex(measuresDir, indexFile string) *Index {
	idx := &Index{
		dir:       measuresDir,
		indexFile: indexFile,
		entries:   make(map[string]string),
	}
	idx.loadPersisted()
	return idx
}

func (x *Index) loadPersisted() {
	data, err := os.ReadFile(x.indexFile)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Printf("measure: could not read index file %s: %v", x.indexFile, err)
		}
		return
	}
	var raw map[string]string
	if err := json.Unmarshal(data, &raw); err != nil {
		log.Printf("measure: could not parse index file %s: %v", x.indexFile, err)
		return
	}
	for k, v := range raw {
		if strings.HasPrefix(k, reservedPrefix) {
			continue
		}
		x.entries[k] = v
	}
}

// Rebuild rescans the measures directory, replaces the in-memory index, and
// persists it. Keys are case-folded, trimmed aliases; the last file scanned
// wins on collision.
func (x *Index) Rebuild() error {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.rebuildLocked()
}

func (x *Index) rebuildLocked() error {
	entries := make(map[string]string)

	files, err := filepath.Glob(filepath.Join(x.dir, "*.json"))
	if err != nil {
		return fmt.Errorf("measure: scan %s: %w", x.dir, err)
	}
	for _, path := range files {
		name := filepath.Base(path)
		cfg, err := readConfigFile(path)
		if err != nil {
			log.Printf("measure: skipping %s during rebuild: %v", name, err)
			continue
		}
		for _, alias := range configAliases(cfg) {
			key := foldKey(alias)
			if key == "" || strings.HasPrefix(key, reservedPrefix) {
				continue
			}
			if prev, ok := entries[key]; ok && prev != name {
				log.Printf("measure: alias %q maps to both %s and %s; keeping %s", key, prev, name, name)
			}
			entries[key] = name
		}
	}

	x.entries = entries
	return x.persistLocked()
}

func (x *Index) persistLocked() error {
	data, err := jsonutil.MarshalNoEscapeIndent(x.entries, "", "  ")
	if err != nil {
		return fmt.Errorf("measure: encode index: %w", err)
	}
	if err := os.WriteFile(x.indexFile, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("measure: persist index: %w", err)
	}
	return nil
}

// Lookup resolves a measure name or alias to its config filename. On a miss
// it rebuilds once from the directory, so externally added files are found
// without an explicit rescan call.
func (x *Index) Lookup(name string) (string, bool) {
	key := foldKey(name)
	if key == "" || strings.HasPrefix(key, reservedPrefix) {
		return "", false
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	if file, ok := x.entries[key]; ok {
		return file, true
	}
	log.Printf("measure: %q not in index, rescanning %s", name, x.dir)
	if err := x.rebuildLocked(); err != nil {
		log.Printf("measure: rescan failed: %v", err)
		return "", false
	}
	file, ok := x.entries[key]
	return file, ok
}

// Update registers a measure's code and aliases for filename without a full
// rescan, then persists.
func (x *Index) Update(code string, aliases []string, filename string) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	keys := append([]string{code}, aliases...)
	for _, k := range keys {
		key := foldKey(k)
		if key == "" || strings.HasPrefix(key, reservedPrefix) {
			continue
		}
		x.entries[key] = filename
	}
	return x.persistLocked()
}

// Files returns the distinct config filenames currently indexed, after a
// fresh rescan.
func (x *Index) Files() ([]string, error) {
	x.mu.Lock()
	defer x.mu.Unlock()

	if err := x.rebuildLocked(); err != nil {
		return nil, err
	}
	seen := make(map[string]struct{})
	var out []string
	for _, f := range x.entries {
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	return out, nil
}

func foldKey(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func configAliases(cfg *Config) []string {
	out := make([]string, 0, len(cfg.Aliases)+2)
	if cfg.Code != "" {
		out = append(out, cfg.Code)
	}
	if cfg.Name != "" {
		out = append(out, cfg.Name)
	}
	return append(out, cfg.Aliases...)
}

func readConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
