package llm

import (
	"context"
	"sync"
)

// Mock is a test double for Client. Responses are returned in order; after
// the scripted responses run out the last one repeats. An Err short-circuits
// every call. Delay, when set, respects context cancellation.
type Mock struct {
	mu        sync.Mutex
	Responses []string
	Err       error
	Delay     func(ctx context.Context) error

	calls   int
	Systems []string
	Prompts []string
}

// Complete implements Client.
func (m *Mock) Complete(ctx context.Context, prompt string) (string, error) {
	return m.CompleteWithSystem(ctx, "", prompt)
}

// CompleteWithSystem implements Client.
func (m *Mock) CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if m.Delay != nil {
		if err := m.Delay(ctx); err != nil {
			return "", err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.Systems = append(m.Systems, systemPrompt)
	m.Prompts = append(m.Prompts, userPrompt)

	if m.Err != nil {
		return "", m.Err
	}
	if len(m.Responses) == 0 {
		return "", nil
	}

	idx := m.calls
	if idx >= len(m.Responses) {
		idx = len(m.Responses) - 1
	}
	m.calls++
	return m.Responses[idx], nil
}

// Calls returns how many completions were requested.
func (m *Mock) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}
