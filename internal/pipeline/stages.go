package pipeline

import (
	"context"
	"fmt"
	"log"

	"sqlpilot/internal/jsonutil"
	"sqlpilot/internal/prompt"
	"sqlpilot/internal/sqlcheck"
)

// intake records the inbound request. No failure path.
func (e *Engine) intake(_ context.Context, pc *Context) {
	log.Printf("run %s: query %q (sql review: %t)", pc.RunID, pc.QueryText, pc.ReviewEnabled)
}

// interpretReply is the structured-output contract for the interpret stage.
type interpretReply struct {
	Measures []string `json:"measures"`
	GroupBy  []string `json:"group_by"`
	Filters  []Filter `json:"filters"`
}

// interpret asks the oracle which measures, dimensions, and filters the raw
// query names. Malformed replies are a stage failure, not a crash.
func (e *Engine) interpret(ctx context.Context, pc *Context) {
	p, err := prompt.Build(prompt.Interpret, map[string]any{"query": pc.QueryText})
	if err != nil {
		pc.Err = fmt.Errorf("interpret: %w", err)
		return
	}
	raw, err := e.oracle.GenerateJSON(ctx, p, nil)
	if err != nil {
		pc.Err = fmt.Errorf("interpret: oracle: %w", err)
		return
	}
	var reply interpretReply
	if err := jsonutil.UnmarshalFenced(string(raw), &reply); err != nil {
		pc.Err = fmt.Errorf("interpret: parse oracle reply: %w", err)
		return
	}
	pc.IdentifiedMeasures = reply.Measures
	pc.GroupByDimensions = reply.GroupBy
	pc.UserFilters = reply.Filters
	log.Printf("run %s: measures=%v group_by=%v filters=%v",
		pc.RunID, pc.IdentifiedMeasures, pc.GroupByDimensions, pc.UserFilters)
}

// rewrite restates the query for human review. Measure configurations are
// deliberately not loaded yet; the reviewer sees measure and dimension
// names only, and resolution happens after the first confirmation.
func (e *Engine) rewrite(ctx context.Context, pc *Context) {
	p, err := prompt.Build(prompt.Rewrite, map[string]any{
		"query":    pc.QueryText,
		"measures": pc.IdentifiedMeasures,
		"group_by": pc.GroupByDimensions,
		"filters":  pc.UserFilters,
	})
	if err != nil {
		pc.Err = fmt.Errorf("rewrite: %w", err)
		return
	}
	text, err := e.oracle.GenerateText(ctx, p, nil)
	if err != nil {
		pc.Err = fmt.Errorf("rewrite: oracle: %w", err)
		return
	}
	pc.RewrittenText = jsonutil.StripFence(text)
}

// reviewQuery applies the first confirmation. The reviewer's edit arrives in
// ConfirmedText before this stage runs; absent an edit, the rewritten text
// is confirmed as-is.
func (e *Engine) reviewQuery(_ context.Context, pc *Context) {
	if pc.ConfirmedText == "" {
		pc.ConfirmedText = pc.RewrittenText
	}
}

// resolveConfigs loads a configuration for every identified measure.
// All-or-nothing: one aggregated error names every unresolved measure.
func (e *Engine) resolveConfigs(_ context.Context, pc *Context) {
	configs, err := e.resolver.Resolve(pc.IdentifiedMeasures)
	if err != nil {
		pc.Err = err
		return
	}
	pc.MeasureConfigs = configs
	log.Printf("run %s: resolved %d measure configuration(s)", pc.RunID, len(configs))
}

// generateSQL asks the oracle for the statement, strips any code fence, and
// immediately validates it. The oracle's output is not trusted merely
// because it answered.
func (e *Engine) generateSQL(ctx context.Context, pc *Context) {
	p, err := prompt.Build(prompt.GenerateSQL, map[string]any{
		"confirmed_query": pc.ConfirmedText,
		"measure_configs": pc.MeasureConfigs,
		"dimensions":      pc.GroupByDimensions,
		"user_filters":    pc.UserFilters,
	})
	if err != nil {
		pc.Err = fmt.Errorf("generate_sql: %w", err)
		return
	}
	text, err := e.oracle.GenerateText(ctx, p, nil)
	if err != nil {
		pc.Err = fmt.Errorf("generate_sql: oracle: %w", err)
		return
	}
	stmt := jsonutil.StripFence(text)
	if ok, reason := sqlcheck.Validate(stmt); !ok {
		pc.Err = fmt.Errorf("generated SQL validation failed: %s", reason)
		return
	}
	pc.GeneratedSQL = stmt
}

// reviewSQL applies the second confirmation. When review is disabled the
// gate never suspends and the generated SQL is confirmed directly.
func (e *Engine) reviewSQL(_ context.Context, pc *Context) {
	if !pc.ReviewEnabled || pc.ConfirmedSQL == "" {
		pc.ConfirmedSQL = pc.GeneratedSQL
	}
}

// execute re-validates the confirmed SQL (a human may have edited it during
// review) and runs it. Engine errors are surfaced verbatim.
func (e *Engine) execute(ctx context.Context, pc *Context) {
	stmt := pc.ConfirmedSQL
	if stmt == "" {
		stmt = pc.GeneratedSQL
	}
	if ok, reason := sqlcheck.Validate(stmt); !ok {
		pc.Err = fmt.Errorf("SQL validation failed: %s", reason)
		return
	}
	if e.executor == nil {
		pc.Err = fmt.Errorf("execute: database connection not configured")
		return
	}
	rows, err := e.executor.Query(ctx, stmt)
	if err != nil {
		pc.Err = err
		return
	}
	pc.Rows = rows
	log.Printf("run %s: %d row(s), columns %v", pc.RunID, len(rows.Records), rows.Columns)
}
