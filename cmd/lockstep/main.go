package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"lockstep/internal/config"
	"lockstep/internal/llm"
	"lockstep/internal/session"
	"lockstep/internal/types"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// Global flags
	verbose   bool
	workspace string
	timeout   time.Duration

	// Logger
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "lockstep",
	Short: "lockstep - commitment-governed conversation engine",
	Long: `lockstep runs a conversation under explicit governance: an exclusive
stance machine, lease-based commitments, and gate-controlled transitions.

The model generates; the engine decides. Observers can only propose, the
gate controller alone disposes, and every accepted transition is recorded.

Run without arguments to start the interactive session.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zcfg := zap.NewProductionConfig()
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runChat(cmd, args)
	},
}

// runCmd processes a single input through one governed turn
var runCmd = &cobra.Command{
	Use:   "run [input]",
	Short: "Process one input through a single governed turn",
	Long: `Runs exactly one turn: clocks tick, observers file proposals, the gate
controller applies what the transition table allows, and the executor
produces the response under the resulting stance and altitude.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runOnce,
}

// chatCmd starts the interactive session
var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive governed session",
	Long: `Interactive loop. Besides plain input, slash commands drive the
commitment lifecycle:

  /commit <frame>     commit to a frame (default lease length)
  /renew <turns>      extend the active lease
  /done               complete the active lease
  /status             show governed state
  /history            show recent gate transitions
  /quit               end the session`,
	RunE: runChat,
}

// statusCmd prints the governed state
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the current governed state",
	RunE:  runStatus,
}

// historyCmd prints recent gate transitions
var historyCmd = &cobra.Command{
	Use:   "history [limit]",
	Short: "Show recent gate transitions, newest first",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runHistory,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose logging")
	rootCmd.PersistentFlags().StringVarP(&workspace, "workspace", "w", "", "workspace directory (default: cwd)")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 2*time.Minute, "per-turn generation timeout")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(historyCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// =============================================================================
// ENGINE BOOT
// =============================================================================

func resolveWorkspace() (string, error) {
	if workspace != "" {
		return workspace, nil
	}
	return os.Getwd()
}

func bootEngine(ctx context.Context) (*session.Engine, error) {
	ws, err := resolveWorkspace()
	if err != nil {
		return nil, err
	}

	cfg, err := config.Load(ws)
	if err != nil {
		return nil, err
	}
	client, err := llm.New(cfg.LLM)
	if err != nil {
		return nil, fmt.Errorf("llm: %w (set ANTHROPIC_API_KEY or OPENAI_API_KEY)", err)
	}

	logger.Debug("booting engine", zap.String("workspace", ws))
	return session.NewEngine(ctx, ws, client)
}

// =============================================================================
// COMMANDS
// =============================================================================

func runOnce(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	engine, err := bootEngine(ctx)
	if err != nil {
		return err
	}
	defer engine.Close()

	input := strings.Join(args, " ")
	logger.Info("processing turn", zap.String("input", input))

	turnCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	result, err := engine.Process(turnCtx, input)
	if err != nil {
		return err
	}

	printTurn(result)
	return nil
}

func runChat(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	engine, err := bootEngine(ctx)
	if err != nil {
		return err
	}
	defer engine.Close()

	fmt.Println("lockstep session started. /quit to exit, /status for state.")
	scanner := bufio.NewScanner(os.Stdin)

	for {
		fmt.Printf("[%s] > ", engine.Stance())
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "/") {
			if quit := handleSlash(engine, line); quit {
				break
			}
			continue
		}

		turnCtx, cancel := context.WithTimeout(ctx, timeout)
		result, err := engine.Process(turnCtx, line)
		cancel()
		if err != nil {
			fmt.Fprintf(os.Stderr, "turn failed: %v\n", err)
			continue
		}
		printTurn(result)

		if ctx.Err() != nil {
			break
		}
	}
	fmt.Println("session ended.")
	return scanner.Err()
}

// handleSlash dispatches one slash command; returns true on /quit.
func handleSlash(engine *session.Engine, line string) bool {
	parts := strings.SplitN(line, " ", 2)
	arg := ""
	if len(parts) == 2 {
		arg = strings.TrimSpace(parts[1])
	}

	switch parts[0] {
	case "/quit", "/exit":
		return true

	case "/commit":
		if arg == "" {
			fmt.Println("usage: /commit <frame>")
			return false
		}
		lease, err := engine.Commit(arg, types.HorizonMid, nil, nil, 0)
		if err != nil {
			fmt.Fprintf(os.Stderr, "commit failed: %v\n", err)
			return false
		}
		fmt.Printf("committed: %s (%d turns)\n", lease.Frame, lease.RemainingTurns)

	case "/renew":
		turns, err := strconv.Atoi(arg)
		if err != nil || turns <= 0 {
			fmt.Println("usage: /renew <turns>")
			return false
		}
		if err := engine.RenewCommitment(turns); err != nil {
			fmt.Fprintf(os.Stderr, "renew failed: %v\n", err)
		}

	case "/done":
		if err := engine.CompleteCommitment(); err != nil {
			fmt.Fprintf(os.Stderr, "complete failed: %v\n", err)
		} else {
			fmt.Println("commitment completed.")
		}

	case "/status":
		status, err := engine.Status()
		if err != nil {
			fmt.Fprintf(os.Stderr, "status failed: %v\n", err)
			return false
		}
		printStatus(status)

	case "/history":
		entries, err := engine.History(10)
		if err != nil {
			fmt.Fprintf(os.Stderr, "history failed: %v\n", err)
			return false
		}
		printHistory(entries)

	default:
		fmt.Printf("unknown command: %s\n", parts[0])
	}
	return false
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	engine, err := bootEngine(ctx)
	if err != nil {
		return err
	}
	defer engine.Close()

	status, err := engine.Status()
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(status, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func runHistory(cmd *cobra.Command, args []string) error {
	limit := 20
	if len(args) == 1 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n <= 0 {
			return fmt.Errorf("limit must be a positive integer, got %q", args[0])
		}
		limit = n
	}

	ctx := context.Background()
	engine, err := bootEngine(ctx)
	if err != nil {
		return err
	}
	defer engine.Close()

	entries, err := engine.History(limit)
	if err != nil {
		return err
	}
	printHistory(entries)
	return nil
}

// =============================================================================
// OUTPUT
// =============================================================================

func printTurn(result *session.TurnResult) {
	fmt.Println(result.Response)

	for _, tr := range result.Transitions {
		if tr.Accepted {
			if tr.Deferred {
				fmt.Printf("  [gate] emergency accepted, effects deferred: %s\n", tr.Reason)
			} else {
				fmt.Printf("  [gate] %s -> %s via %s\n", tr.From, tr.To, tr.Gate)
			}
		}
	}
	for _, w := range result.Warnings {
		fmt.Fprintf(os.Stderr, "  [warn] %s\n", w)
	}
}

func printStatus(status *session.Status) {
	fmt.Printf("turn:     %d\n", status.Turn)
	fmt.Printf("stance:   %s\n", status.Stance)
	if status.Cooldown > 0 {
		fmt.Printf("cooldown: %d turns\n", status.Cooldown)
	}
	if status.Commitment != nil {
		c := status.Commitment
		fmt.Printf("lease:    %s [%s]", c.Frame, c.Status)
		if c.Status == types.LeaseActive && c.Expiry.Kind == types.ExpiryTurns {
			fmt.Printf(" (%d turns left)", c.RemainingTurns)
		}
		fmt.Println()
	} else {
		fmt.Println("lease:    none")
	}
	if status.Progress.Stage != "" {
		fmt.Printf("progress: %s", status.Progress.Stage)
		if status.Progress.Stale {
			fmt.Print(" (stale)")
		}
		fmt.Println()
	}
	for _, a := range status.Artifacts {
		fmt.Printf("artifact: %s [%s] -> %s\n", a.Name, a.Status, a.Pointer)
	}
	for _, wo := range status.WorkOrders {
		fmt.Printf("order:    %s [%s] %s\n", wo.ID, wo.Status, wo.Task)
	}
}

func printHistory(entries []types.HistoryEntry) {
	if len(entries) == 0 {
		fmt.Println("no transitions recorded.")
		return
	}
	for _, e := range entries {
		fmt.Printf("turn %3d  %-12s -> %-12s via %-10s %s\n",
			e.Turn, e.From, e.To, e.Gate, e.Reason)
	}
}
