package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// FakeClient returns scripted replies per phase for offline use and tests.
type FakeClient struct {
	mu      sync.Mutex
	replies map[string]string
	errs    map[string]error
	calls   []string
}

func NewFakeClient() *FakeClient {
	return &FakeClient{
		replies: make(map[string]string),
		errs:    make(map[string]error),
	}
}

// Script sets the reply returned for calls tagged with the given phase.
func (f *FakeClient) Script(phase, reply string) *FakeClient {
	f.mu.Lock()
	f.replies[phase] = reply
	f.mu.Unlock()
	return f
}

// Fail makes calls tagged with the given phase return err.
func (f *FakeClient) Fail(phase string, err error) *FakeClient {
	f.mu.Lock()
	f.errs[phase] = err
	f.mu.Unlock()
	return f
}

// Calls returns the phases seen so far, in call order.
func (f *FakeClient) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	copy(out, f.calls)
	return out
}

func (f *FakeClient) Name() string { return "FakeLLM" }
func (f *FakeClient) Close() error { return nil }

func (f *FakeClient) GenerateJSON(ctx context.Context, prompt string, input any) (json.RawMessage, error) {
	txt, err := f.GenerateText(ctx, prompt, input)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(txt), nil
}

func (f *FakeClient) GenerateText(ctx context.Context, prompt string, input any) (string, error) {
	phase := PhaseFrom(ctx)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, phase)
	if err, ok := f.errs[phase]; ok {
		return "", err
	}
	reply, ok := f.replies[phase]
	if !ok {
		return "", fmt.Errorf("llm: no scripted reply for phase %q", phase)
	}
	return reply, nil
}
