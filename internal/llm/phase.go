package llm

import "context"

type phaseContextKey struct{}

// WithPhase tags the context with the pipeline stage issuing the call,
// for request logging only.
func WithPhase(ctx context.Context, phase string) context.Context {
	return context.WithValue(ctx, phaseContextKey{}, phase)
}

func PhaseFrom(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	v, _ := ctx.Value(phaseContextKey{}).(string)
	return v
}
