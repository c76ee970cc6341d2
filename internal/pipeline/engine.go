package pipeline

import (
	"context"
	"fmt"
	"log"

	"sqlpilot/internal/db"
	"sqlpilot/internal/llm"
	"sqlpilot/internal/measure"
)

// Stage names, in execution order.
type Stage string

const (
	StageIntake      Stage = "intake"
	StageInterpret   Stage = "interpret"
	StageRewrite     Stage = "rewrite"
	StageReviewQuery Stage = "review_query"
	StageResolve     Stage = "resolve_configs"
	StageGenerateSQL Stage = "generate_sql"
	StageReviewSQL   Stage = "review_sql"
	StageExecute     Stage = "execute"
	StageTerminal    Stage = "terminal"
)

// Engine drives the stage sequence. Dependencies are injected at
// construction so tests can substitute deterministic stand-ins.
type Engine struct {
	oracle   llm.Client
	resolver *measure.Resolver
	executor db.Executor
}

func NewEngine(oracle llm.Client, resolver *measure.Resolver, executor db.Executor) *Engine {
	return &Engine{oracle: oracle, resolver: resolver, executor: executor}
}

type stageDef struct {
	name Stage
	run  func(*Engine, context.Context, *Context)
	// gate reports whether the stage must wait for external confirmation
	// before it may run on this context.
	gate func(*Context) bool
}

var stages = []stageDef{
	{name: StageIntake, run: (*Engine).intake},
	{name: StageInterpret, run: (*Engine).interpret},
	{name: StageRewrite, run: (*Engine).rewrite},
	{name: StageReviewQuery, run: (*Engine).reviewQuery, gate: func(*Context) bool { return true }},
	{name: StageResolve, run: (*Engine).resolveConfigs},
	{name: StageGenerateSQL, run: (*Engine).generateSQL},
	{name: StageReviewSQL, run: (*Engine).reviewSQL, gate: func(pc *Context) bool { return pc.ReviewEnabled }},
	{name: StageExecute, run: (*Engine).execute},
}

func stageIndex(name Stage) int {
	for i, s := range stages {
		if s.name == name {
			return i
		}
	}
	return -1
}

// Advance runs stages starting at 'from' until the pipeline reaches the
// terminal state or arrives at a confirmation gate. When it stops at a gate
// the gate stage has NOT run yet: the caller applies the reviewer's input to
// the context and calls Advance again from the returned stage. Starting
// Advance exactly at a gate runs the gate (this is the resume path).
//
// The error slot is checked before every transition; once set, no further
// stage executes and Advance reports the terminal state.
func (e *Engine) Advance(ctx context.Context, pc *Context, from Stage) (Stage, bool) {
	i := stageIndex(from)
	if i < 0 {
		pc.Err = fmt.Errorf("pipeline: unknown stage %q", from)
		return StageTerminal, false
	}
	for ; i < len(stages); i++ {
		if pc.Failed() {
			return StageTerminal, false
		}
		s := stages[i]
		if s.name != from && s.gate != nil && s.gate(pc) {
			return s.name, true
		}
		e.runStage(ctx, s, pc)
	}
	return StageTerminal, false
}

// RunAll advances the whole pipeline without external confirmation; each
// gate applies its auto-confirm default. Used by non-interactive callers.
func (e *Engine) RunAll(ctx context.Context, pc *Context) {
	next, suspended := e.Advance(ctx, pc, StageIntake)
	for suspended {
		next, suspended = e.Advance(ctx, pc, next)
	}
}

func (e *Engine) runStage(ctx context.Context, s stageDef, pc *Context) {
	defer func() {
		if r := recover(); r != nil {
			pc.Err = fmt.Errorf("pipeline: stage %s panicked: %v", s.name, r)
		}
	}()
	log.Printf("run %s: stage %s", pc.RunID, s.name)
	s.run(e, llm.WithPhase(ctx, string(s.name)), pc)
}
