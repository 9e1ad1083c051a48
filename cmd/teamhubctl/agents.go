package main

import (
	"flag"
	"fmt"
	"os"
)

func agentsCmd(args []string) {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "Usage: teamhubctl agents <add|remove|nudge|interrupt|directive|exec> [options]")
		os.Exit(exitUsage)
	}
	action, rest := args[0], args[1:]
	switch action {
	case "add":
		agentsAdd(rest)
	case "remove":
		agentsRemove(rest)
	case "nudge":
		agentsSidecar("nudge", rest)
	case "interrupt":
		agentsSidecar("interrupt", rest)
	case "directive":
		agentsSidecar("directive", rest)
	case "exec":
		agentsExec(rest)
	default:
		fmt.Fprintf(os.Stderr, "Unknown agents action: %s\n", action)
		os.Exit(exitUsage)
	}
}

func agentsAdd(args []string) {
	fs := flag.NewFlagSet("agents add", flag.ExitOnError)
	server := fs.String("server", "", "teamhubd base URL")
	token := fs.String("token", "", "bearer token")
	team := fs.String("team", "", "team ID")
	role := fs.String("role", "", "agent role")
	runtime := fs.String("runtime", "", "agent runtime")
	model := fs.String("model", "", "agent model")
	if err := fs.Parse(args); err != nil {
		os.Exit(exitUsage)
	}
	requireFlag(*team, "--team")
	requireFlag(*role, "--role")

	req := agentSpec{Role: *role, Runtime: *runtime, Model: *model}
	var resp agentView
	clientFromEnv(*server, *token).do("POST", "/teams/"+*team+"/agents", req, &resp)
	printJSON(resp)
}

func agentsRemove(args []string) {
	fs := flag.NewFlagSet("agents remove", flag.ExitOnError)
	server := fs.String("server", "", "teamhubd base URL")
	token := fs.String("token", "", "bearer token")
	team := fs.String("team", "", "team ID")
	agent := fs.String("agent", "", "agent ID")
	if err := fs.Parse(args); err != nil {
		os.Exit(exitUsage)
	}
	requireFlag(*team, "--team")
	requireFlag(*agent, "--agent")
	clientFromEnv(*server, *token).do("DELETE", "/teams/"+*team+"/agents/"+*agent, nil, nil)
	fmt.Println("removed")
}

// agentsSidecar handles nudge/interrupt/directive, which all take an
// optional --message and post to the same shaped endpoint.
func agentsSidecar(action string, args []string) {
	fs := flag.NewFlagSet("agents "+action, flag.ExitOnError)
	server := fs.String("server", "", "teamhubd base URL")
	token := fs.String("token", "", "bearer token")
	team := fs.String("team", "", "team ID")
	agent := fs.String("agent", "", "agent ID")
	message := fs.String("message", "", "message/directive text")
	if err := fs.Parse(args); err != nil {
		os.Exit(exitUsage)
	}
	requireFlag(*team, "--team")
	requireFlag(*agent, "--agent")

	req := map[string]string{"message": *message}
	var resp map[string]string
	clientFromEnv(*server, *token).do("POST", "/teams/"+*team+"/agents/"+*agent+"/"+action, req, &resp)
	printJSON(resp)
}

func agentsExec(args []string) {
	fs := flag.NewFlagSet("agents exec", flag.ExitOnError)
	server := fs.String("server", "", "teamhubd base URL")
	token := fs.String("token", "", "bearer token")
	team := fs.String("team", "", "team ID")
	agent := fs.String("agent", "", "agent ID")
	if err := fs.Parse(args); err != nil {
		os.Exit(exitUsage)
	}
	requireFlag(*team, "--team")
	requireFlag(*agent, "--agent")
	command := fs.Args()
	if len(command) == 0 {
		fmt.Fprintln(os.Stderr, "usage: teamhubctl agents exec --team <id> --agent <id> -- <command...>")
		os.Exit(exitUsage)
	}

	req := map[string][]string{"command": command}
	var resp map[string]string
	clientFromEnv(*server, *token).do("POST", "/teams/"+*team+"/agents/"+*agent+"/exec", req, &resp)
	printJSON(resp)
}
