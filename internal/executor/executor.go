package executor

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"lockstep/internal/config"
	"lockstep/internal/llm"
	"lockstep/internal/logging"
	"lockstep/internal/memory"
	"lockstep/internal/types"
)

// exchange is one prior turn of the conversation transcript.
type exchange struct {
	input    string
	response string
}

// Executor drives the generation collaborator under the current constraints.
// It holds read-only views of slow memory and writes only fast-tier signals.
type Executor struct {
	client llm.Client
	slow   memory.SlowView
	fast   *memory.FastStore
	policy func() config.Policy

	mu         sync.Mutex
	transcript []exchange
}

// New creates an executor.
func New(client llm.Client, slow memory.SlowView, fast *memory.FastStore, policy func() config.Policy) *Executor {
	return &Executor{client: client, slow: slow, fast: fast, policy: policy}
}

// Execute produces the response for one turn and reports its shape.
// Generation failure degrades the turn rather than failing it: the fallback
// response names the failure and the report carries Degraded so the
// evaluator sees it next turn.
func (e *Executor) Execute(ctx context.Context, tc types.TurnContext) (string, types.OutputReport) {
	pol := e.policy()
	start := time.Now()

	system := buildSystemPrompt(tc, e.slow.Lease(), e.slow.Principles(), e.fast.Progress().Stage)
	user := e.buildUserPrompt(tc.Input)

	response, err := e.client.CompleteWithSystem(ctx, system, user)
	report := types.OutputReport{
		Turn:     tc.Turn,
		Stance:   tc.Stance,
		Altitude: tc.Altitude,
		Latency:  time.Since(start),
	}

	if err != nil {
		logging.Executor("turn %d: generation failed: %v", tc.Turn, err)
		report.Degraded = true
		response = fmt.Sprintf("(generation unavailable: %v)", err)
		e.fast.AddSignal(types.InteractionSignal{
			Turn: tc.Turn, Kind: "degraded", Strength: 1.0, Note: err.Error(),
		})
	}

	// The altitude ceiling caps response length; truncation is reported,
	// never silent.
	ceiling := pol.AltitudeCeilings[int(tc.Altitude)]
	if ceiling > 0 && len(response) > ceiling {
		response = truncate(response, ceiling)
		report.Truncated = true
		e.fast.AddSignal(types.InteractionSignal{
			Turn: tc.Turn, Kind: "verbosity_gap", Strength: 0.5,
			Note: fmt.Sprintf("output exceeded %s ceiling", tc.Altitude),
		})
	}
	report.Length = len(response)

	e.record(tc.Input, response, pol.HistoryWindow)
	logging.Executor("turn %d: %d chars at %s/%s in %v",
		tc.Turn, report.Length, tc.Stance, tc.Altitude, report.Latency)
	return response, report
}

// buildUserPrompt prepends the recent transcript window to the input.
// The transcript is already bounded to the history window at record time.
func (e *Executor) buildUserPrompt(input string) string {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.transcript) == 0 {
		return input
	}

	var b strings.Builder
	b.WriteString("Recent exchange:\n")
	for _, ex := range e.transcript {
		fmt.Fprintf(&b, "User: %s\nAssistant: %s\n", ex.input, ex.response)
	}
	fmt.Fprintf(&b, "\nUser: %s", input)
	return b.String()
}

func (e *Executor) record(input, response string, window int) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.transcript = append(e.transcript, exchange{input: input, response: response})
	if over := len(e.transcript) - window; over > 0 {
		e.transcript = e.transcript[over:]
	}
}

// truncate cuts at the last word boundary under the limit, never splitting
// a multi-byte rune.
func truncate(s string, limit int) string {
	if limit <= 0 || len(s) <= limit {
		return s
	}
	end := limit
	for end > 0 && !utf8.RuneStart(s[end]) {
		end--
	}
	cut := s[:end]
	if i := strings.LastIndexByte(cut, ' '); i > limit/2 {
		cut = cut[:i]
	}
	return cut
}
