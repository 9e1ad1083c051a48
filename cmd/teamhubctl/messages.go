package main

import (
	"flag"
	"fmt"
	"os"
)

type messageView struct {
	Time    string `json:"time"`
	Nick    string `json:"nick"`
	Text    string `json:"text"`
	Tag     string `json:"tag,omitempty"`
	TagBody string `json:"tagBody,omitempty"`
}

func messagesCmd(args []string) {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "Usage: teamhubctl messages <list|post> [options]")
		os.Exit(exitUsage)
	}
	action, rest := args[0], args[1:]
	switch action {
	case "list":
		messagesList(rest)
	case "post":
		messagesPost(rest)
	default:
		fmt.Fprintf(os.Stderr, "Unknown messages action: %s\n", action)
		os.Exit(exitUsage)
	}
}

func messagesList(args []string) {
	fs := flag.NewFlagSet("messages list", flag.ExitOnError)
	server := fs.String("server", "", "teamhubd base URL")
	token := fs.String("token", "", "bearer token")
	team := fs.String("team", "", "team ID")
	channel := fs.String("channel", "main", "channel name")
	if err := fs.Parse(args); err != nil {
		os.Exit(exitUsage)
	}
	requireFlag(*team, "--team")

	var resp []messageView
	clientFromEnv(*server, *token).do("GET", "/teams/"+*team+"/channels/"+*channel+"/messages", nil, &resp)
	printJSON(resp)
}

func messagesPost(args []string) {
	fs := flag.NewFlagSet("messages post", flag.ExitOnError)
	server := fs.String("server", "", "teamhubd base URL")
	token := fs.String("token", "", "bearer token")
	team := fs.String("team", "", "team ID")
	channel := fs.String("channel", "main", "channel name")
	nick := fs.String("nick", "operator", "nick the message is attributed to")
	text := fs.String("text", "", "message text")
	if err := fs.Parse(args); err != nil {
		os.Exit(exitUsage)
	}
	requireFlag(*team, "--team")
	requireFlag(*text, "--text")

	req := map[string]string{"nick": *nick, "text": *text}
	var resp map[string]string
	clientFromEnv(*server, *token).do("POST", "/teams/"+*team+"/channels/"+*channel+"/messages", req, &resp)
	printJSON(resp)
}
