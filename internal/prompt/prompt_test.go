package prompt

import (
	"strings"
	"testing"
)

func TestBuild_RendersSections(t *testing.T) {
	out, err := Build(Interpret, map[string]any{"query": "show CE by obligor"})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	for _, sec := range []string{"[PURPOSE]", "[BACKGROUND]", "[INPUT]", "[OUTPUT]", "[CONSTRAINTS]", "[RULES]", "[OUTPUT_FORMAT]", "[EXAMPLES]"} {
		if !strings.Contains(out, sec) {
			t.Fatalf("expected section %s in prompt", sec)
		}
	}
	if !strings.Contains(out, "show CE by obligor") {
		t.Fatalf("input payload missing from prompt")
	}
}

func TestBuild_RequiresPurpose(t *testing.T) {
	_, err := Build(Spec{}, nil)
	if err == nil || !strings.Contains(err.Error(), "purpose") {
		t.Fatalf("expected purpose error, got %v", err)
	}
}

func TestDomainSpecs_StateTheCriticalRules(t *testing.T) {
	sql, err := Build(GenerateSQL, map[string]any{"confirmed_query": "x"})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if !strings.Contains(sql, "filters array") {
		t.Fatalf("SQL prompt must pin filters to the configuration")
	}
	if !strings.Contains(sql, "no data modification") {
		t.Fatalf("SQL prompt must forbid modification statements")
	}
}
