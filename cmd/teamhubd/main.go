// Package main provides the teamhubd orchestrator daemon.
package main

import (
	"fmt"
	"os"
)

var version = "dev"

// Exit codes, per spec.md §6.
const (
	exitOK         = 0
	exitUsage      = 64
	exitDependency = 69
	exitInternal   = 70
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(exitUsage)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "serve":
		serveCmd(args)
	case "init":
		initCmd(args)
	case "reset":
		resetCmd(args)
	case "version":
		fmt.Printf("teamhubd %s\n", version)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		os.Exit(exitUsage)
	}
}

func printUsage() {
	fmt.Println(`teamhubd - multi-tenant agent-team orchestrator

Usage:
  teamhubd <command> [options]

Commands:
  serve     Start the orchestrator (REST + WS + heartbeat ingestion)
  init      Seed builtin templates into the configured store
  reset     Wipe orchestrator state (teams, templates) from the store
  version   Print version information
  help      Show this help message

Examples:
  teamhubd serve --addr :8080 --db teamhub.db
  teamhubd serve --memory-store teamhub.json
  teamhubd init --db teamhub.db
  teamhubd reset --db teamhub.db --yes

Run 'teamhubd <command> --help' for more information on a command.`)
}
