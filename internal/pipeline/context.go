// Package pipeline turns a free-text analytical question into a validated,
// executed SQL statement through a fixed sequence of stages with two human
// confirmation points.
package pipeline

import (
	"sqlpilot/internal/db"
	"sqlpilot/internal/measure"
)

// Filter is one user-stated filter condition from the interpretation stage.
type Filter struct {
	Column string `json:"column"`
	Value  string `json:"value"`
}

// Context is the single mutable record threaded through every stage. It is
// owned by one unit of work at a time and handed across the confirmation
// boundary; it is never mutated concurrently.
type Context struct {
	RunID         string
	QueryText     string // immutable after creation
	ReviewEnabled bool   // set once at creation; governs the SQL gate

	// Interpretation output.
	IdentifiedMeasures []string
	GroupByDimensions  []string
	UserFilters        []Filter

	// Rewrite output and its human-approved form.
	RewrittenText string
	ConfirmedText string

	// Populated atomically by resolution: all requested measures or none.
	MeasureConfigs map[string]*measure.Config

	// SQL output and its human-approved form.
	GeneratedSQL string
	ConfirmedSQL string

	// Execution output.
	Rows    *db.Rows
	CSVPath string

	// Terminal failure slot. Once set, no further stage executes.
	Err error
}

// NewContext creates the per-request context.
func NewContext(runID, queryText string, reviewEnabled bool) *Context {
	return &Context{
		RunID:         runID,
		QueryText:     queryText,
		ReviewEnabled: reviewEnabled,
	}
}

// Failed reports whether the pipeline has recorded a terminal failure.
func (c *Context) Failed() bool { return c.Err != nil }
