package main

import (
	"fmt"
	"os"

	"github.com/mattjoyce/unitd/internal/config"
)

const version = "0.3.0"

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(argv []string) int {
	if len(argv) < 1 {
		printUsage(os.Stderr)
		return 1
	}

	cmd := argv[0]
	args := argv[1:]

	switch cmd {
	// --- SESSION ---
	case "run":
		return runRun(args)
	case "serve":
		return runServe(args)

	// --- QUERIES ---
	case "ps":
		return runPs(args)
	case "history":
		return runHistory(args)
	case "inspect":
		return runInspect(args)
	case "top":
		return runTop(args)

	// --- NOUNS ---
	case "config":
		return runConfigNoun(args)

	case "version":
		fmt.Printf("unitd version %s\n", version)
		return 0
	case "help", "--help", "-h":
		printUsage(os.Stdout)
		return 0
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage(os.Stderr)
		return 1
	}
}

func printUsage(w *os.File) {
	fmt.Fprint(w, `unitd - process lifecycle manager for sandboxed execution units

Usage:
  unitd <command> [flags]

Session Commands:
  run [-- cmd args]   Run a session attached to this terminal
  serve               Run a session as a daemon with the HTTP API

Query Commands:
  ps                  Show the live process table of a serving daemon
  history             Show recorded unit history
  inspect <pid>       Show a unit's recorded lineage
  top                 Live process monitor

Config Commands:
  config check        Validate configuration against this machine
  config show         Print the effective configuration

General:
  version             Show version information
  help                Show this help message

Use 'unitd <command> --help' for command flags.
`)
}

func isHelpToken(token string) bool {
	return token == "help" || token == "--help" || token == "-h"
}

// loadConfig loads configPath, or the discovered config when it is empty.
// With optional set, a missing config yields the defaults.
func loadConfig(configPath string, optional bool) (*config.Config, error) {
	if configPath == "" {
		discovered, err := config.Discover()
		if err != nil {
			if optional {
				return config.Defaults(), nil
			}
			return nil, err
		}
		configPath = discovered
	}
	return config.Load(configPath)
}
