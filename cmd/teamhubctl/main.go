// Package main provides teamhubctl, a REST client for teamhubd.
package main

import (
	"fmt"
	"os"
)

var version = "dev"

// Exit codes, mirrored from spec.md §6/§7's error-kind table: 0 on
// success, 64 for a usage/validation problem the caller can fix, 69
// when the server or its driver is unreachable, 70 for anything else
// the server reports as internal, 75 for a transient condition worth
// retrying (rate limit, overflow-closed subscription).
const (
	exitOK         = 0
	exitUsage      = 64
	exitDependency = 69
	exitInternal   = 70
	exitTransient  = 75
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(exitUsage)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "teams":
		teamsCmd(args)
	case "agents":
		agentsCmd(args)
	case "messages":
		messagesCmd(args)
	case "templates":
		templatesCmd(args)
	case "version":
		fmt.Printf("teamhubctl %s\n", version)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		os.Exit(exitUsage)
	}
}

func printUsage() {
	fmt.Println(`teamhubctl - REST client for teamhubd

Usage:
  teamhubctl <resource> <action> [options]

Resources:
  teams      create, list, get, update, delete, start, stop
  agents     add, remove, nudge, interrupt, directive, exec
  messages   list, post
  templates  create, list, get, update, delete

Global options (set on every subcommand):
  --server   teamhubd base URL (default http://127.0.0.1:8080, or $TEAMHUB_SERVER)
  --token    bearer token (default $TEAMHUB_TOKEN)

Examples:
  teamhubctl teams create --name demo --repo https://github.com/acme/demo \
      --agent implementer:node --agent reviewer:node
  teamhubctl teams list
  teamhubctl agents nudge --team t_123 --agent a_456 --message "check CI"
  teamhubctl messages post --team t_123 --channel main --text "hello"

Run 'teamhubctl <resource> <action> --help' for more information.`)
}
