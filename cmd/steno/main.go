package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/mattn/go-isatty"

	"github.com/hpungsan/steno/internal/config"
	"github.com/hpungsan/steno/internal/logging"
)

// Version is set via -ldflags at build time.
var Version = "dev"

// isTerminal returns true if f is an interactive terminal.
func isTerminal(f *os.File) bool {
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// isHelpOrVersion returns true if the user is requesting help or version info.
func isHelpOrVersion(args []string) bool {
	if len(args) < 2 {
		return false
	}
	arg := args[1]
	return arg == "--help" || arg == "-h" || arg == "--version" || arg == "-v" || arg == "help"
}

// resolveArgs maps a bare invocation with piped stdin to the MCP server,
// so MCP clients can launch the binary without arguments.
func resolveArgs(args []string, stdinTerminal bool) []string {
	if len(args) < 2 && !stdinTerminal {
		return append(args[:1:1], "mcp")
	}
	return args
}

// printBanner displays a friendly banner when run interactively without args.
func printBanner() {
	fmt.Println(`
   ___ | |_ ___ _ __   ___
  / __|| __/ _ \ '_ \ / _ \
  \__ \| ||  __/ | | | (_) |
  |___/ \__\___|_| |_|\___/

  Animated caption render service

  Usage: steno <command> [options]
         steno --help`)
}

// baseDir holds config.toml / config.json.
func baseDir() (string, error) {
	if dir := os.Getenv("STENO_HOME"); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".steno"), nil
}

func main() {
	if len(os.Args) < 2 && isTerminal(os.Stdin) {
		printBanner()
		return
	}

	if isHelpOrVersion(os.Args) {
		app := newCLIApp(&runtime{cfg: config.DefaultConfig(), stdout: os.Stdout, stderr: os.Stderr})
		if err := app.Run(os.Args); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	dir, err := baseDir()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	cfg, err := config.LoadWithEnv(dir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat, Output: os.Stderr})
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	rt := &runtime{cfg: cfg, logger: logger, stdout: os.Stdout, stderr: os.Stderr}
	defer rt.close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := newCLIApp(rt)
	if err := app.RunContext(ctx, resolveArgs(os.Args, isTerminal(os.Stdin))); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		rt.close()
		os.Exit(1)
	}
}
