package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
)

type agentSpec struct {
	Role    string
	Model   string
	Runtime string
}

type teamResponse struct {
	ID        string      `json:"id"`
	TenantID  string      `json:"tenantId"`
	Name      string      `json:"name"`
	RepoURL   string      `json:"repoUrl"`
	Channels  []string    `json:"channels"`
	Status    string      `json:"status"`
	ChatPort  int         `json:"chatPort"`
	CreatedAt string      `json:"createdAt"`
	UpdatedAt string      `json:"updatedAt"`
	Agents    []agentView `json:"agents"`
}

type agentView struct {
	ID              string  `json:"id"`
	Role            string  `json:"role"`
	Model           string  `json:"model,omitempty"`
	Runtime         string  `json:"runtime,omitempty"`
	Status          string  `json:"status"`
	LastHeartbeatAt *string `json:"lastHeartbeatAt,omitempty"`
}

// agentFlags accumulates repeated --agent role:runtime[:model] flags
// into agentSpec values.
type agentFlags []agentSpec

func (a *agentFlags) String() string { return fmt.Sprint(*a) }

func (a *agentFlags) Set(value string) error {
	parts := strings.SplitN(value, ":", 3)
	spec := agentSpec{Role: parts[0]}
	if len(parts) > 1 {
		spec.Runtime = parts[1]
	}
	if len(parts) > 2 {
		spec.Model = parts[2]
	}
	*a = append(*a, spec)
	return nil
}

func teamsCmd(args []string) {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "Usage: teamhubctl teams <create|list|get|update|delete|start|stop> [options]")
		os.Exit(exitUsage)
	}
	action, rest := args[0], args[1:]
	switch action {
	case "create":
		teamsCreate(rest)
	case "list":
		teamsList(rest)
	case "get":
		teamsGet(rest)
	case "update":
		teamsUpdate(rest)
	case "delete":
		teamsDelete(rest)
	case "start":
		teamsStart(rest)
	case "stop":
		teamsStop(rest)
	default:
		fmt.Fprintf(os.Stderr, "Unknown teams action: %s\n", action)
		os.Exit(exitUsage)
	}
}

func teamsCreate(args []string) {
	fs := flag.NewFlagSet("teams create", flag.ExitOnError)
	server := fs.String("server", "", "teamhubd base URL")
	token := fs.String("token", "", "bearer token")
	name := fs.String("name", "", "team name")
	repo := fs.String("repo", "", "repository URL")
	var channels stringList
	fs.Var(&channels, "channel", "chat channel to seed (repeatable)")
	var agents agentFlags
	fs.Var(&agents, "agent", "agent spec role:runtime[:model] (repeatable)")
	if err := fs.Parse(args); err != nil {
		os.Exit(exitUsage)
	}
	if *name == "" || len(agents) == 0 {
		fmt.Fprintln(os.Stderr, "--name and at least one --agent are required")
		os.Exit(exitUsage)
	}

	req := map[string]any{
		"name":     *name,
		"repo":     map[string]string{"url": *repo},
		"agents":   agents,
		"channels": []string(channels),
	}
	var resp teamResponse
	clientFromEnv(*server, *token).do("POST", "/teams", req, &resp)
	printJSON(resp)
}

func teamsList(args []string) {
	fs := flag.NewFlagSet("teams list", flag.ExitOnError)
	server := fs.String("server", "", "teamhubd base URL")
	token := fs.String("token", "", "bearer token")
	if err := fs.Parse(args); err != nil {
		os.Exit(exitUsage)
	}
	var resp []teamResponse
	clientFromEnv(*server, *token).do("GET", "/teams", nil, &resp)
	printJSON(resp)
}

func teamsGet(args []string) {
	fs := flag.NewFlagSet("teams get", flag.ExitOnError)
	server := fs.String("server", "", "teamhubd base URL")
	token := fs.String("token", "", "bearer token")
	id := fs.String("id", "", "team ID")
	if err := fs.Parse(args); err != nil {
		os.Exit(exitUsage)
	}
	requireFlag(*id, "--id")
	var resp teamResponse
	clientFromEnv(*server, *token).do("GET", "/teams/"+*id, nil, &resp)
	printJSON(resp)
}

func teamsUpdate(args []string) {
	fs := flag.NewFlagSet("teams update", flag.ExitOnError)
	server := fs.String("server", "", "teamhubd base URL")
	token := fs.String("token", "", "bearer token")
	id := fs.String("id", "", "team ID")
	name := fs.String("name", "", "new team name (omit to leave unchanged)")
	var channels stringList
	fs.Var(&channels, "channel", "replacement channel list entry (repeatable; only applied if at least one is given)")
	if err := fs.Parse(args); err != nil {
		os.Exit(exitUsage)
	}
	requireFlag(*id, "--id")

	patch := map[string]any{}
	if *name != "" {
		patch["name"] = *name
	}
	if len(channels) > 0 {
		patch["channels"] = []string(channels)
	}
	var resp teamResponse
	clientFromEnv(*server, *token).do("PATCH", "/teams/"+*id, patch, &resp)
	printJSON(resp)
}

func teamsDelete(args []string) {
	fs := flag.NewFlagSet("teams delete", flag.ExitOnError)
	server := fs.String("server", "", "teamhubd base URL")
	token := fs.String("token", "", "bearer token")
	id := fs.String("id", "", "team ID")
	if err := fs.Parse(args); err != nil {
		os.Exit(exitUsage)
	}
	requireFlag(*id, "--id")
	clientFromEnv(*server, *token).do("DELETE", "/teams/"+*id, nil, nil)
	fmt.Println("deleted")
}

func teamsStart(args []string) {
	fs := flag.NewFlagSet("teams start", flag.ExitOnError)
	server := fs.String("server", "", "teamhubd base URL")
	token := fs.String("token", "", "bearer token")
	id := fs.String("id", "", "team ID")
	if err := fs.Parse(args); err != nil {
		os.Exit(exitUsage)
	}
	requireFlag(*id, "--id")
	var resp map[string]string
	clientFromEnv(*server, *token).do("POST", "/teams/"+*id+"/start", nil, &resp)
	printJSON(resp)
}

func teamsStop(args []string) {
	fs := flag.NewFlagSet("teams stop", flag.ExitOnError)
	server := fs.String("server", "", "teamhubd base URL")
	token := fs.String("token", "", "bearer token")
	id := fs.String("id", "", "team ID")
	if err := fs.Parse(args); err != nil {
		os.Exit(exitUsage)
	}
	requireFlag(*id, "--id")
	var resp map[string]string
	clientFromEnv(*server, *token).do("POST", "/teams/"+*id+"/stop", nil, &resp)
	printJSON(resp)
}

// stringList accumulates repeated flag occurrences into a slice.
type stringList []string

func (s *stringList) String() string { return strings.Join(*s, ",") }

func (s *stringList) Set(value string) error {
	*s = append(*s, value)
	return nil
}

func requireFlag(value, name string) {
	if value == "" {
		fmt.Fprintf(os.Stderr, "%s is required\n", name)
		os.Exit(exitUsage)
	}
}
