package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"

	"github.com/forgeworks/teamhub"
)

// initCmd seeds the builtin templates (templates/*.yaml, embedded at
// build time) into a store so `teamhubctl templates list` has
// something to show on a brand new deployment. Mirrors the teacher's
// interactive init wizard shape, scaled down to the one thing teamhubd
// actually needs provisioned up front: no API keys to collect here,
// since auth is a bearer token the operator supplies to `serve`
// directly.
func initCmd(args []string) {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	dbPath := fs.String("db", "", "path to a SQLite database file (default: JSON snapshot teamhub.snapshot.json)")
	memoryPath := fs.String("memory-store", "", "path to a JSON snapshot file instead of SQLite")
	force := fs.Bool("force", false, "overwrite templates that already exist in the store")
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, `Usage: teamhubd init [options]

Seeds the builtin agent-team templates into the configured store.

Options:`)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		os.Exit(exitUsage)
	}

	_, templateStore, closeStore, err := openStore(*dbPath, *memoryPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open store: %v\n", err)
		os.Exit(exitDependency)
	}
	defer closeStore()

	builtins, err := teamhub.LoadBuiltinTemplates()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load builtin templates: %v\n", err)
		os.Exit(exitInternal)
	}

	reader := bufio.NewReader(os.Stdin)
	seeded := 0
	for _, tmpl := range builtins {
		existing, ok, err := templateStore.GetTemplate(tmpl.ID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to check template %s: %v\n", tmpl.Name, err)
			os.Exit(exitInternal)
		}
		if ok && !*force {
			if !confirm(reader, fmt.Sprintf("template %q already exists (added %s) — overwrite?", existing.Name, existing.CreatedAt.Format("2006-01-02"))) {
				fmt.Printf("skipped %s\n", tmpl.Name)
				continue
			}
		}
		if err := templateStore.SaveTemplate(tmpl); err != nil {
			fmt.Fprintf(os.Stderr, "failed to save template %s: %v\n", tmpl.Name, err)
			os.Exit(exitInternal)
		}
		fmt.Printf("seeded %s\n", tmpl.Name)
		seeded++
	}

	fmt.Printf("done: %d/%d builtin templates seeded\n", seeded, len(builtins))
}

func confirm(reader *bufio.Reader, prompt string) bool {
	fmt.Printf("%s [y/N]: ", prompt)
	line, _ := reader.ReadString('\n')
	switch line {
	case "y\n", "Y\n", "yes\n":
		return true
	default:
		return false
	}
}
