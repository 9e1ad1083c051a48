package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
)

// resetCmd wipes every team and template out of the configured store.
// The teacher's reset.go counts rows per table before confirming and
// vacuums afterward; the new schema has exactly two stores instead of
// half a dozen tables, so the equivalent here lists teams/templates by
// ID and deletes each through the store interface rather than reaching
// for table-level SQL.
func resetCmd(args []string) {
	fs := flag.NewFlagSet("reset", flag.ExitOnError)
	dbPath := fs.String("db", "", "path to a SQLite database file (default: JSON snapshot teamhub.snapshot.json)")
	memoryPath := fs.String("memory-store", "", "path to a JSON snapshot file instead of SQLite")
	tenantID := fs.String("tenant", "", "only reset teams/templates owned by this tenant (default: all tenants)")
	yes := fs.Bool("yes", false, "skip the confirmation prompt")
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, `Usage: teamhubd reset [options]

Deletes every team and non-builtin template from the configured store.
Running containers are not touched; stop teams first if you want their
containers torn down.

Options:`)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		os.Exit(exitUsage)
	}

	teamStore, templateStore, closeStore, err := openStore(*dbPath, *memoryPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open store: %v\n", err)
		os.Exit(exitDependency)
	}
	defer closeStore()

	teams, err := teamStore.ListTeams(*tenantID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to list teams: %v\n", err)
		os.Exit(exitInternal)
	}
	templates, err := templateStore.ListTemplates(*tenantID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to list templates: %v\n", err)
		os.Exit(exitInternal)
	}
	customTemplates := templates[:0]
	for _, t := range templates {
		if !t.Builtin {
			customTemplates = append(customTemplates, t)
		}
	}

	if len(teams) == 0 && len(customTemplates) == 0 {
		fmt.Println("nothing to reset")
		return
	}

	fmt.Printf("this will delete %d team(s) and %d template(s)", len(teams), len(customTemplates))
	if *tenantID != "" {
		fmt.Printf(" for tenant %q", *tenantID)
	}
	fmt.Println(".")

	if !*yes {
		reader := bufio.NewReader(os.Stdin)
		if !confirm(reader, "proceed?") {
			fmt.Println("aborted")
			return
		}
	}

	for _, t := range teams {
		if err := teamStore.DeleteTeam(t.ID); err != nil {
			fmt.Fprintf(os.Stderr, "failed to delete team %s: %v\n", t.ID, err)
			os.Exit(exitInternal)
		}
	}
	for _, t := range customTemplates {
		if err := templateStore.DeleteTemplate(t.ID); err != nil {
			fmt.Fprintf(os.Stderr, "failed to delete template %s: %v\n", t.ID, err)
			os.Exit(exitInternal)
		}
	}

	fmt.Printf("deleted %d team(s), %d template(s)\n", len(teams), len(customTemplates))
}
