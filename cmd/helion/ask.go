package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/nugget/helion/internal/agent"
	"github.com/nugget/helion/internal/checkpoint"
	"github.com/nugget/helion/internal/config"
)

// runAsk runs one turn on the selected thread and streams the answer
// to stdout. Logs go to stderr so stdout carries only the answer.
func runAsk(ctx context.Context, stdout, stderr io.Writer, opts options, message string) error {
	cfg, cfgPath, err := loadConfig(opts.configPath)
	if err != nil {
		return err
	}
	logger := config.NewLogger(stderr, cfg.Logging)
	logger.Debug("config loaded", "path", cfgPath)

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	out := make(chan string, 32)
	printed := make(chan struct{})
	go func() {
		defer close(printed)
		for tok := range out {
			io.WriteString(stdout, tok)
		}
	}()

	res, err := a.scheduler.Run(ctx, agent.Turn{
		ThreadID: opts.threadID,
		UserID:   opts.userID,
		Input:    message,
	}, out)
	close(out)
	<-printed
	if err != nil {
		return fmt.Errorf("ask: %w", err)
	}
	fmt.Fprintln(stdout)

	logger.Info("turn complete",
		"thread_id", res.ThreadID,
		"request_id", res.RequestID,
		"steps", res.Steps,
		"guardrail", res.Guardrail,
		"elapsed", res.Elapsed,
	)
	return nil
}

// runHistory prints the thread's most recent checkpoints, newest first.
func runHistory(ctx context.Context, stdout, stderr io.Writer, opts options) error {
	cfg, _, err := loadConfig(opts.configPath)
	if err != nil {
		return err
	}
	logger := config.NewLogger(stderr, cfg.Logging)

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	rows, err := a.checkpoints.ListRecent(ctx, opts.threadID, checkpoint.DefaultListLimit)
	if err != nil {
		return fmt.Errorf("history: %w", err)
	}

	if opts.outputFmt == "json" {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	}
	if len(rows) == 0 {
		fmt.Fprintf(stdout, "No checkpoints for thread %s\n", opts.threadID)
		return nil
	}
	fmt.Fprintf(stdout, "Thread %s (%d most recent):\n", opts.threadID, len(rows))
	for _, r := range rows {
		fmt.Fprintf(stdout, "  %s\n", r.Summary())
	}
	return nil
}

// runPrune deletes all but the newest checkpoints of a thread. The
// thread's latest state always survives.
func runPrune(ctx context.Context, stdout, stderr io.Writer, opts options, args []string) error {
	keep := checkpoint.DefaultListLimit
	for i := 0; i < len(args); i++ {
		arg := args[i]
		var val string
		switch {
		case arg == "-keep" && i+1 < len(args):
			val = args[i+1]
			i++
		case strings.HasPrefix(arg, "-keep="):
			val = strings.TrimPrefix(arg, "-keep=")
		case strings.HasPrefix(arg, "-"):
			return fmt.Errorf("usage: helion prune [thread] [-keep N]")
		default:
			opts.threadID = arg
			continue
		}
		n, err := strconv.Atoi(val)
		if err != nil || n < 1 {
			return fmt.Errorf("prune: -keep must be a positive integer, got %q", val)
		}
		keep = n
	}

	cfg, _, err := loadConfig(opts.configPath)
	if err != nil {
		return err
	}
	logger := config.NewLogger(stderr, cfg.Logging)

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	removed, err := a.checkpoints.Prune(ctx, opts.threadID, keep)
	if err != nil {
		return fmt.Errorf("prune: %w", err)
	}
	logger.Info("thread pruned", "thread_id", opts.threadID, "removed", removed, "keep", keep)

	if opts.outputFmt == "json" {
		return json.NewEncoder(stdout).Encode(map[string]any{
			"thread_id": opts.threadID,
			"removed":   removed,
			"keep":      keep,
		})
	}
	fmt.Fprintf(stdout, "Removed %d checkpoints from thread %s (kept up to %d)\n", removed, opts.threadID, keep)
	return nil
}
