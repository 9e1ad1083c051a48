package main

import (
	"flag"
	"fmt"
	"os"
)

type templateView struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	Builtin     bool              `json:"builtin"`
	Agents      []agentSpec       `json:"agents"`
	Env         map[string]string `json:"env,omitempty"`
	Tags        []string          `json:"tags,omitempty"`
	CreatedAt   string            `json:"createdAt"`
}

func templatesCmd(args []string) {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "Usage: teamhubctl templates <create|list|get|update|delete> [options]")
		os.Exit(exitUsage)
	}
	action, rest := args[0], args[1:]
	switch action {
	case "create":
		templatesCreate(rest)
	case "list":
		templatesList(rest)
	case "get":
		templatesGet(rest)
	case "update":
		templatesUpdate(rest)
	case "delete":
		templatesDelete(rest)
	default:
		fmt.Fprintf(os.Stderr, "Unknown templates action: %s\n", action)
		os.Exit(exitUsage)
	}
}

func templatesCreate(args []string) {
	fs := flag.NewFlagSet("templates create", flag.ExitOnError)
	server := fs.String("server", "", "teamhubd base URL")
	token := fs.String("token", "", "bearer token")
	name := fs.String("name", "", "template name")
	description := fs.String("description", "", "template description")
	var agents agentFlags
	fs.Var(&agents, "agent", "agent spec role:runtime[:model] (repeatable)")
	var tags stringList
	fs.Var(&tags, "tag", "template tag (repeatable)")
	if err := fs.Parse(args); err != nil {
		os.Exit(exitUsage)
	}
	requireFlag(*name, "--name")
	if len(agents) == 0 {
		fmt.Fprintln(os.Stderr, "at least one --agent is required")
		os.Exit(exitUsage)
	}

	req := map[string]any{
		"name":        *name,
		"description": *description,
		"agents":      agents,
		"tags":        []string(tags),
	}
	var resp templateView
	clientFromEnv(*server, *token).do("POST", "/templates", req, &resp)
	printJSON(resp)
}

func templatesList(args []string) {
	fs := flag.NewFlagSet("templates list", flag.ExitOnError)
	server := fs.String("server", "", "teamhubd base URL")
	token := fs.String("token", "", "bearer token")
	if err := fs.Parse(args); err != nil {
		os.Exit(exitUsage)
	}
	var resp []templateView
	clientFromEnv(*server, *token).do("GET", "/templates", nil, &resp)
	printJSON(resp)
}

func templatesGet(args []string) {
	fs := flag.NewFlagSet("templates get", flag.ExitOnError)
	server := fs.String("server", "", "teamhubd base URL")
	token := fs.String("token", "", "bearer token")
	id := fs.String("id", "", "template ID")
	if err := fs.Parse(args); err != nil {
		os.Exit(exitUsage)
	}
	requireFlag(*id, "--id")
	var resp templateView
	clientFromEnv(*server, *token).do("GET", "/templates/"+*id, nil, &resp)
	printJSON(resp)
}

func templatesUpdate(args []string) {
	fs := flag.NewFlagSet("templates update", flag.ExitOnError)
	server := fs.String("server", "", "teamhubd base URL")
	token := fs.String("token", "", "bearer token")
	id := fs.String("id", "", "template ID")
	name := fs.String("name", "", "template name")
	description := fs.String("description", "", "template description")
	var agents agentFlags
	fs.Var(&agents, "agent", "agent spec role:runtime[:model] (repeatable)")
	var tags stringList
	fs.Var(&tags, "tag", "template tag (repeatable)")
	if err := fs.Parse(args); err != nil {
		os.Exit(exitUsage)
	}
	requireFlag(*id, "--id")
	requireFlag(*name, "--name")

	req := map[string]any{
		"name":        *name,
		"description": *description,
		"agents":      agents,
		"tags":        []string(tags),
	}
	var resp templateView
	clientFromEnv(*server, *token).do("PUT", "/templates/"+*id, req, &resp)
	printJSON(resp)
}

func templatesDelete(args []string) {
	fs := flag.NewFlagSet("templates delete", flag.ExitOnError)
	server := fs.String("server", "", "teamhubd base URL")
	token := fs.String("token", "", "bearer token")
	id := fs.String("id", "", "template ID")
	if err := fs.Parse(args); err != nil {
		os.Exit(exitUsage)
	}
	requireFlag(*id, "--id")
	clientFromEnv(*server, *token).do("DELETE", "/templates/"+*id, nil, nil)
	fmt.Println("deleted")
}
