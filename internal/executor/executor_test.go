package executor

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"

	"lockstep/internal/config"
	"lockstep/internal/llm"
	"lockstep/internal/memory"
	"lockstep/internal/types"
)

func newTestExecutor(t *testing.T, mock *llm.Mock, lease *types.CommitmentLease) (*Executor, *memory.FastStore) {
	t.Helper()
	dir := t.TempDir()

	slow, err := memory.NewSlowStore(filepath.Join(dir, "slow.json"))
	if err != nil {
		t.Fatal(err)
	}
	if lease != nil {
		if err := slow.SetLease(lease); err != nil {
			t.Fatal(err)
		}
	}
	fast, err := memory.NewFastStore(filepath.Join(dir, "fast.json"), 20, 5)
	if err != nil {
		t.Fatal(err)
	}

	ex := New(mock, slow, fast, func() config.Policy { return config.DefaultPolicy() })
	return ex, fast
}

// =============================================================================
// CONSTRAINT ASSEMBLY
// =============================================================================

func TestSystemPromptCarriesStanceAndLease(t *testing.T) {
	t.Parallel()
	mock := &llm.Mock{Responses: []string{"done"}}
	lease := &types.CommitmentLease{
		ID: "l", Frame: "build the retry queue",
		Criteria: []string{"handles poison messages"},
		NonGoals: []string{"dashboard work"},
		Status:   types.LeaseActive,
	}
	ex, _ := newTestExecutor(t, mock, lease)

	ex.Execute(context.Background(), types.TurnContext{
		Turn: 1, Input: "continue",
		Stance: types.StanceExecution, Altitude: types.AltitudeOperational,
	})

	if len(mock.Systems) != 1 {
		t.Fatalf("calls = %d", len(mock.Systems))
	}
	system := mock.Systems[0]
	for _, want := range []string{
		"executing against the committed frame",
		"build the retry queue",
		"handles poison messages",
		"dashboard work",
	} {
		if !strings.Contains(system, want) {
			t.Errorf("system prompt missing %q", want)
		}
	}
}

func TestSystemPromptOmitsInactiveLease(t *testing.T) {
	t.Parallel()
	mock := &llm.Mock{Responses: []string{"ok"}}
	lease := &types.CommitmentLease{
		ID: "l", Frame: "an old frame", Status: types.LeaseExpired,
	}
	ex, _ := newTestExecutor(t, mock, lease)

	ex.Execute(context.Background(), types.TurnContext{
		Turn: 1, Input: "hello",
		Stance: types.StanceSensemaking, Altitude: types.AltitudeStrategic,
	})

	if strings.Contains(mock.Systems[0], "an old frame") {
		t.Error("expired lease leaked into constraints")
	}
}

// =============================================================================
// OUTPUT SHAPE
// =============================================================================

func TestExecuteReportsShape(t *testing.T) {
	t.Parallel()
	mock := &llm.Mock{Responses: []string{"a concise answer"}}
	ex, _ := newTestExecutor(t, mock, nil)

	response, report := ex.Execute(context.Background(), types.TurnContext{
		Turn: 4, Input: "status?",
		Stance: types.StanceExecution, Altitude: types.AltitudeTactical,
	})

	if response != "a concise answer" {
		t.Errorf("response = %q", response)
	}
	if report.Turn != 4 || report.Stance != types.StanceExecution ||
		report.Altitude != types.AltitudeTactical {
		t.Errorf("report = %+v", report)
	}
	if report.Length != len(response) || report.Degraded || report.Truncated {
		t.Errorf("report shape wrong: %+v", report)
	}
}

func TestExecuteTruncatesAtCeiling(t *testing.T) {
	t.Parallel()
	long := strings.Repeat("word ", 200) // 1000 chars, tactical ceiling is 400
	mock := &llm.Mock{Responses: []string{long}}
	ex, fast := newTestExecutor(t, mock, nil)

	response, report := ex.Execute(context.Background(), types.TurnContext{
		Turn: 1, Input: "go",
		Stance: types.StanceExecution, Altitude: types.AltitudeTactical,
	})

	if !report.Truncated {
		t.Fatal("over-ceiling output not reported truncated")
	}
	if len(response) > 400 {
		t.Errorf("response length %d exceeds ceiling", len(response))
	}
	found := false
	for _, sig := range fast.Signals() {
		if sig.Kind == "verbosity_gap" {
			found = true
		}
	}
	if !found {
		t.Error("truncation produced no verbosity signal")
	}
}

func TestTruncateKeepsRuneBoundaries(t *testing.T) {
	t.Parallel()
	// Two-byte runes with no spaces: the ceiling lands mid-rune.
	s := strings.Repeat("é", 100)
	out := truncate(s, 25)
	if !utf8.ValidString(out) {
		t.Fatalf("truncation produced invalid UTF-8: %q", out)
	}
	if len(out) == 0 || len(out) > 25 {
		t.Errorf("len = %d, want 1..25", len(out))
	}

	// A word boundary under the limit still wins over the raw cut.
	out = truncate("short words only here", 14)
	if out != "short words" {
		t.Errorf("out = %q", out)
	}
}

func TestExecuteDegradesOnFailure(t *testing.T) {
	t.Parallel()
	mock := &llm.Mock{Err: errors.New("connection refused")}
	ex, fast := newTestExecutor(t, mock, nil)

	response, report := ex.Execute(context.Background(), types.TurnContext{
		Turn: 2, Input: "go",
		Stance: types.StanceExecution, Altitude: types.AltitudeOperational,
	})

	if !report.Degraded {
		t.Fatal("failed generation not reported degraded")
	}
	if !strings.Contains(response, "generation unavailable") {
		t.Errorf("fallback response = %q", response)
	}
	found := false
	for _, sig := range fast.Signals() {
		if sig.Kind == "degraded" {
			found = true
		}
	}
	if !found {
		t.Error("degradation produced no signal")
	}
}

func TestExecuteCancelledContext(t *testing.T) {
	t.Parallel()
	mock := &llm.Mock{Delay: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}}
	ex, _ := newTestExecutor(t, mock, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, report := ex.Execute(ctx, types.TurnContext{
		Turn: 1, Input: "go",
		Stance: types.StanceExecution, Altitude: types.AltitudeOperational,
	})
	if !report.Degraded {
		t.Error("cancelled generation not reported degraded")
	}
}

// =============================================================================
// TRANSCRIPT WINDOW
// =============================================================================

func TestTranscriptWindowBoundsPrompt(t *testing.T) {
	t.Parallel()
	mock := &llm.Mock{Responses: []string{"r"}}
	ex, _ := newTestExecutor(t, mock, nil)

	// Default history window is 6; run more turns than that.
	for i := 1; i <= 10; i++ {
		ex.Execute(context.Background(), types.TurnContext{
			Turn: i, Input: "input-" + string(rune('a'+i-1)),
			Stance: types.StanceExecution, Altitude: types.AltitudeOperational,
		})
	}

	last := mock.Prompts[len(mock.Prompts)-1]
	if strings.Contains(last, "input-a") {
		t.Error("prompt still carries the oldest exchange")
	}
	if !strings.Contains(last, "input-i") {
		t.Error("prompt dropped a recent exchange")
	}
}
