package measure

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"
)

func newTestResolver(t *testing.T) (*Resolver, string) {
	t.Helper()
	dir := t.TempDir()
	idx := NewIndex(dir, filepath.Join(dir, "index.json"))
	return NewResolver(idx, dir), dir
}

func TestResolve_AllNamesResolve(t *testing.T) {
	r, dir := newTestResolver(t)
	writeMeasureFile(t, dir, "CE.json", ceJSON)
	writeMeasureFile(t, dir, "EAD.json", eadJSON)

	configs, err := r.Resolve([]string{"CE", "exposure at default"})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(configs) != 2 {
		t.Fatalf("expected 2 configs, got %d", len(configs))
	}
	ce := configs["CE"]
	if ce == nil || ce.Formula != "SUM(info_value)" {
		t.Fatalf("unexpected CE config: %+v", ce)
	}
	if len(ce.Filters) != 2 || ce.Filters[0] != "info_type='CE'" {
		t.Fatalf("filters must be carried verbatim: %v", ce.Filters)
	}
}

func TestResolve_AggregatesEveryUnresolvedName(t *testing.T) {
	r, dir := newTestResolver(t)
	writeMeasureFile(t, dir, "CE.json", ceJSON)

	configs, err := r.Resolve([]string{"CE", "UNKNOWN", "ALSO_MISSING"})
	if err == nil {
		t.Fatalf("expected aggregated failure")
	}
	if configs != nil {
		t.Fatalf("no partial mapping may be returned, got %v", configs)
	}

	var resErr *ResolveError
	if !errors.As(err, &resErr) {
		t.Fatalf("expected *ResolveError, got %T", err)
	}
	if len(resErr.NotFound) != 2 {
		t.Fatalf("expected both missing names, got %v", resErr.NotFound)
	}
	msg := err.Error()
	for _, name := range []string{"UNKNOWN", "ALSO_MISSING"} {
		if !strings.Contains(msg, name) {
			t.Fatalf("error must name %s: %q", name, msg)
		}
	}
	if strings.Contains(msg, `"CE"`) {
		t.Fatalf("resolved measure must not appear as a failure: %q", msg)
	}
}

func TestResolve_CorruptFileIsDistinctFromMissingAlias(t *testing.T) {
	r, dir := newTestResolver(t)
	writeMeasureFile(t, dir, "CE.json", ceJSON)
	if err := r.index.Update("bad", nil, "bad.json"); err != nil {
		t.Fatalf("seed index: %v", err)
	}
	writeMeasureFile(t, dir, "bad.json", `{broken`)

	_, err := r.Resolve([]string{"CE", "bad"})
	var resErr *ResolveError
	if !errors.As(err, &resErr) {
		t.Fatalf("expected *ResolveError, got %v", err)
	}
	if len(resErr.NotFound) != 0 {
		t.Fatalf("corrupt config must not be reported as not-found: %v", resErr.NotFound)
	}
	if _, ok := resErr.Corrupt["bad"]; !ok {
		t.Fatalf("expected corrupt entry for 'bad', got %+v", resErr.Corrupt)
	}
}

func TestResolve_IndexedButDeletedFileIsCorruptFailure(t *testing.T) {
	r, dir := newTestResolver(t)
	writeMeasureFile(t, dir, "CE.json", ceJSON)
	if err := r.index.Update("gone", nil, "gone.json"); err != nil {
		t.Fatalf("seed index: %v", err)
	}

	_, err := r.Resolve([]string{"gone"})
	var resErr *ResolveError
	if !errors.As(err, &resErr) {
		t.Fatalf("expected *ResolveError, got %v", err)
	}
	if _, ok := resErr.Corrupt["gone"]; !ok {
		t.Fatalf("missing backing file must be an operator failure, got %+v", resErr)
	}
}
