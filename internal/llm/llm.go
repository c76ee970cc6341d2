package llm

import (
	"context"
	"encoding/json"
)

// Client is the text-generation oracle. Replies are untrusted: callers must
// parse and validate everything that comes back.
type Client interface {
	Name() string
	GenerateJSON(ctx context.Context, prompt string, input any) (json.RawMessage, error)
	GenerateText(ctx context.Context, prompt string, input any) (string, error)
	Close() error
}
