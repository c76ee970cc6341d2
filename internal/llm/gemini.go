package llm

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"strings"

	genai "google.golang.org/genai"
)

var ErrEmptyReply = errors.New("llm: empty reply from model")

// GeminiClient is a thin wrapper around the official genai client.
type GeminiClient struct {
	cli   *genai.Client
	model string
	rl    *rpsLimiter
}

// GeminiOptions configures the client. RPS <= 0 disables throttling.
type GeminiOptions struct {
	APIKey string
	Model  string
	RPS    float64
	Burst  int
}

func NewGeminiClient(ctx context.Context, opts GeminiOptions) (*GeminiClient, error) {
	cli, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  opts.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, err
	}
	return &GeminiClient{
		cli:   cli,
		model: opts.Model,
		rl:    newRPSLimiter(opts.RPS, opts.Burst),
	}, nil
}

func (g *GeminiClient) Name() string { return "Gemini:" + g.model }

func (g *GeminiClient) Close() error {
	if g.rl != nil {
		g.rl.Stop()
	}
	return nil
}

// GenerateJSON sends the concatenated prompt/input and requests application/json.
func (g *GeminiClient) GenerateJSON(ctx context.Context, prompt string, input any) (json.RawMessage, error) {
	txt, err := g.generate(ctx, prompt, input, "application/json")
	if err != nil {
		return nil, err
	}
	return json.RawMessage(txt), nil
}

// GenerateText sends the concatenated prompt/input and returns the raw reply.
func (g *GeminiClient) GenerateText(ctx context.Context, prompt string, input any) (string, error) {
	return g.generate(ctx, prompt, input, "")
}

func (g *GeminiClient) generate(ctx context.Context, prompt string, input any, mime string) (string, error) {
	full := prompt
	if input != nil {
		in, _ := json.MarshalIndent(input, "", "  ")
		full = prompt + "\n\n[INPUT JSON]\n" + string(in)
	}
	log.Printf("LLM request (%s): %d bytes", PhaseFrom(ctx), len(full))

	if err := g.rl.Acquire(ctx); err != nil {
		return "", err
	}
	var cfg *genai.GenerateContentConfig
	if mime != "" {
		cfg = &genai.GenerateContentConfig{ResponseMIMEType: mime}
	}
	resp, err := g.cli.Models.GenerateContent(ctx, g.model,
		[]*genai.Content{{Parts: []*genai.Part{{Text: full}}}}, cfg)
	if err != nil {
		return "", err
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", ErrEmptyReply
	}
	txt := resp.Candidates[0].Content.Parts[0].Text
	if strings.TrimSpace(txt) == "" {
		return "", ErrEmptyReply
	}
	return txt, nil
}
