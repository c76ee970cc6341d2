package measure

import (
	"os"
	"path/filepath"
	"testing"
)

func writeMeasureFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

const ceJSON = `{
  "measure_code": "CE",
  "measure_name": "Current Exposure",
  "info_type": "CE",
  "formula": "SUM(info_value)",
  "filters": ["info_type='CE'", "measure_code='CE'"],
  "default_group_by": ["obligor_rdm_id"],
  "aliases": ["current exposure", "exposure"]
}`

const eadJSON = `{
  "measure_code": "EAD",
  "measure_name": "Exposure at Default",
  "formula": "SUM(info_value)",
  "filters": ["info_type='EAD'"],
  "aliases": []
}`

func newTestIndex(t *testing.T) (*Index, string) {
	t.Helper()
	dir := t.TempDir()
	idx := NewIndex(dir, filepath.Join(dir, "index.json"))
	return idx, dir
}

func TestRebuildThenLookup_RoundTrip(t *testing.T) {
	idx, dir := newTestIndex(t)
	writeMeasureFile(t, dir, "CE.json", ceJSON)
	writeMeasureFile(t, dir, "EAD.json", eadJSON)

	if err := idx.Rebuild(); err != nil {
		t.Fatalf("rebuild: %v", err)
	}

	for alias, want := range map[string]string{
		"CE":                  "CE.json",
		"Current Exposure":    "CE.json",
		"current exposure":    "CE.json",
		"exposure":            "CE.json",
		"EAD":                 "EAD.json",
		"Exposure at Default": "EAD.json",
	} {
		got, ok := idx.Lookup(alias)
		if !ok {
			t.Fatalf("lookup %q: not found", alias)
		}
		if got != want {
			t.Fatalf("lookup %q: got %s, want %s", alias, got, want)
		}
	}
}

func TestLookup_CaseAndWhitespaceVariantsResolveIdentically(t *testing.T) {
	idx, dir := newTestIndex(t)
	writeMeasureFile(t, dir, "CE.json", ceJSON)

	for _, alias := range []string{"ce", "CE", "Ce", "  CE  "} {
		got, ok := idx.Lookup(alias)
		if !ok || got != "CE.json" {
			t.Fatalf("lookup %q: got (%s, %t), want (CE.json, true)", alias, got, ok)
		}
	}
}

func TestLookup_SelfHealsOnMiss(t *testing.T) {
	idx, dir := newTestIndex(t)
	writeMeasureFile(t, dir, "CE.json", ceJSON)
	if err := idx.Rebuild(); err != nil {
		t.Fatalf("rebuild: %v", err)
	}

	// A config added after the last rebuild resolves on first lookup.
	writeMeasureFile(t, dir, "LGD.json", `{"measure_code":"LGD","measure_name":"Loss Given Default"}`)
	got, ok := idx.Lookup("lgd")
	if !ok || got != "LGD.json" {
		t.Fatalf("expected self-healing lookup, got (%s, %t)", got, ok)
	}
}

func TestLookup_TrueMissAfterSingleRescan(t *testing.T) {
	idx, dir := newTestIndex(t)
	writeMeasureFile(t, dir, "CE.json", ceJSON)

	if _, ok := idx.Lookup("no-such-measure"); ok {
		t.Fatalf("expected miss")
	}
}

func TestRebuild_SkipsMalformedConfigs(t *testing.T) {
	idx, dir := newTestIndex(t)
	writeMeasureFile(t, dir, "CE.json", ceJSON)
	writeMeasureFile(t, dir, "broken.json", `{not json`)

	if err := idx.Rebuild(); err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	if _, ok := idx.Lookup("ce"); !ok {
		t.Fatalf("valid config must still be indexed")
	}
}

func TestPersistedIndex_ReservedKeysIgnored(t *testing.T) {
	dir := t.TempDir()
	indexFile := filepath.Join(dir, "index.json")
	if err := os.WriteFile(indexFile, []byte(`{"_comment":"notes","ce":"CE.json"}`), 0o644); err != nil {
		t.Fatalf("seed index: %v", err)
	}
	writeMeasureFile(t, dir, "CE.json", ceJSON)

	idx := NewIndex(dir, indexFile)
	if _, ok := idx.Lookup("_comment"); ok {
		t.Fatalf("reserved keys must not resolve")
	}
	if got, ok := idx.Lookup("ce"); !ok || got != "CE.json" {
		t.Fatalf("plain key must resolve, got (%s, %t)", got, ok)
	}
}

func TestPersistedIndex_MalformedFileDegradesToEmpty(t *testing.T) {
	dir := t.TempDir()
	indexFile := filepath.Join(dir, "index.json")
	if err := os.WriteFile(indexFile, []byte("not json at all"), 0o644); err != nil {
		t.Fatalf("seed index: %v", err)
	}
	writeMeasureFile(t, dir, "CE.json", ceJSON)

	// Construction must not fail; the first lookup rebuilds from disk.
	idx := NewIndex(dir, indexFile)
	if got, ok := idx.Lookup("ce"); !ok || got != "CE.json" {
		t.Fatalf("expected rebuild to recover, got (%s, %t)", got, ok)
	}
}

func TestUpdate_RegistersAliasesWithoutRescan(t *testing.T) {
	idx, _ := newTestIndex(t)
	if err := idx.Update("EPE", []string{"loan equivalent"}, "EPE.json"); err != nil {
		t.Fatalf("update: %v", err)
	}

	// Lookup must hit the in-memory entries; the backing dir has no EPE.json,
	// so a rescan would lose it.
	if got, ok := idx.Lookup("Loan Equivalent"); !ok || got != "EPE.json" {
		t.Fatalf("expected updated alias to resolve, got (%s, %t)", got, ok)
	}
}

func TestFiles_ListsDistinctConfigs(t *testing.T) {
	idx, dir := newTestIndex(t)
	writeMeasureFile(t, dir, "CE.json", ceJSON)
	writeMeasureFile(t, dir, "EAD.json", eadJSON)

	files, err := idx.Files()
	if err != nil {
		t.Fatalf("files: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("expected 2 distinct files, got %v", files)
	}
}
