// Helion is a conversational support agent.
//
// It answers user messages with a ReAct loop over a small tool set
// (weather, web search, semantic memory, date and time), streams answers
// over HTTP and websockets, and checkpoints every thread to SQLite.
// Configuration is loaded from a single YAML file discovered
// automatically (see [config.DefaultSearchPaths]).
//
// Usage:
//
//	helion serve               Start the API server
//	helion init [dir]          Write a starter config.yaml
//	helion ask <message>       Run one turn and stream the answer
//	helion history [thread]    List a thread's recent checkpoints
//	helion prune [thread]      Drop all but the newest checkpoints
//	helion version             Print version and build information
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/nugget/helion/internal/buildinfo"
	"github.com/nugget/helion/internal/config"
)

// defaultThread is the thread used by ask and history when -thread is
// not given.
const defaultThread = "cli"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

// options are the global flags shared by every subcommand.
type options struct {
	configPath string
	outputFmt  string
	threadID   string
	userID     string
}

// run is the real entry point. Arguments are parsed by hand so run can
// be called concurrently from tests without flag package globals.
func run(ctx context.Context, stdout io.Writer, stderr io.Writer, args []string) error {
	opts := options{outputFmt: "text", threadID: defaultThread, userID: "cli"}
	var command string
	var cmdArgs []string

	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == "-config" && i+1 < len(args):
			opts.configPath = args[i+1]
			i++
		case strings.HasPrefix(arg, "-config="):
			opts.configPath = strings.TrimPrefix(arg, "-config=")
		case arg == "-thread" && i+1 < len(args):
			opts.threadID = args[i+1]
			i++
		case strings.HasPrefix(arg, "-thread="):
			opts.threadID = strings.TrimPrefix(arg, "-thread=")
		case arg == "-user" && i+1 < len(args):
			opts.userID = args[i+1]
			i++
		case strings.HasPrefix(arg, "-user="):
			opts.userID = strings.TrimPrefix(arg, "-user=")
		case (arg == "-o" || arg == "--output") && i+1 < len(args):
			opts.outputFmt = args[i+1]
			i++
		case strings.HasPrefix(arg, "-o="):
			opts.outputFmt = strings.TrimPrefix(arg, "-o=")
		case arg == "-h" || arg == "-help" || arg == "--help":
			return printUsage(stdout)
		case !strings.HasPrefix(arg, "-") && command == "":
			command = arg
		default:
			if command == "" {
				return fmt.Errorf("unknown flag: %s", arg)
			}
			cmdArgs = append(cmdArgs, arg)
		}
	}

	if opts.outputFmt != "text" && opts.outputFmt != "json" {
		return fmt.Errorf("unknown output format: %q (expected text or json)", opts.outputFmt)
	}

	switch command {
	case "serve":
		return runServe(ctx, stdout, opts)
	case "init":
		dir := "."
		if len(cmdArgs) > 0 {
			dir = cmdArgs[0]
		}
		return runInit(stdout, dir)
	case "ask":
		if len(cmdArgs) == 0 {
			return fmt.Errorf("usage: helion ask <message>")
		}
		return runAsk(ctx, stdout, stderr, opts, strings.Join(cmdArgs, " "))
	case "history":
		if len(cmdArgs) > 0 {
			opts.threadID = cmdArgs[0]
		}
		return runHistory(ctx, stdout, stderr, opts)
	case "prune":
		return runPrune(ctx, stdout, stderr, opts, cmdArgs)
	case "version":
		return runVersion(stdout, opts.outputFmt)
	case "":
		return printUsage(stdout)
	default:
		return fmt.Errorf("unknown command: %s", command)
	}
}

// runVersion prints build metadata in the requested output format.
func runVersion(w io.Writer, outputFmt string) error {
	info := buildinfo.RuntimeInfo()
	if outputFmt == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	}
	fmt.Fprintln(w, buildinfo.String())
	for _, k := range []string{"version", "git_commit", "build_time", "go_version", "os", "arch"} {
		if v, ok := info[k]; ok {
			fmt.Fprintf(w, "  %-12s %s\n", k+":", v)
		}
	}
	return nil
}

func printUsage(w io.Writer) error {
	fmt.Fprintln(w, "Helion - conversational support agent")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage: helion [flags] <command> [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  serve             Start the API server")
	fmt.Fprintln(w, "  init [dir]        Write a starter config.yaml (default: .)")
	fmt.Fprintln(w, "  ask <message>     Run one turn and stream the answer")
	fmt.Fprintln(w, "  history [thread]  List a thread's recent checkpoints")
	fmt.Fprintln(w, "  prune [thread] [-keep N]")
	fmt.Fprintln(w, "                    Delete all but the N newest checkpoints (default: 10)")
	fmt.Fprintln(w, "  version           Show version information")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	fmt.Fprintln(w, "  -config <path>    Path to config file (default: auto-discover)")
	fmt.Fprintln(w, "  -thread <id>      Thread for ask and history (default: cli)")
	fmt.Fprintln(w, "  -user <id>        User for ask (default: cli)")
	fmt.Fprintln(w, "  -o, --output fmt  Output format: text (default) or json")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Config search order:")
	fmt.Fprintln(w, "  ./config.yaml, ~/.config/helion/config.yaml, /etc/helion/config.yaml")
	return nil
}

// loadConfig locates and parses the YAML configuration file.
func loadConfig(explicit string) (*config.Config, string, error) {
	cfgPath, err := config.FindConfig(explicit)
	if err != nil {
		return nil, "", err
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, cfgPath, fmt.Errorf("load config %s: %w", cfgPath, err)
	}
	return cfg, cfgPath, nil
}
