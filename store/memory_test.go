package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/forgeworks/teamhub"
)

func TestMemoryInitMissingFileStartsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshot.json")
	m := NewMemory(path)
	if err := m.Init(); err != nil {
		t.Fatalf("Init on a missing file should not error, got %v", err)
	}
	teams, err := m.ListTeams("")
	if err != nil {
		t.Fatalf("ListTeams: %v", err)
	}
	if len(teams) != 0 {
		t.Fatalf("expected no teams, got %d", len(teams))
	}
}

func TestMemorySaveTeamRoundTripsThroughDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshot.json")
	m := NewMemory(path)
	if err := m.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}

	row := teamhub.TeamRow{ID: "team-1", TenantID: "tenant-1", Name: "alpha", Status: "running", CreatedAt: time.Now()}
	if err := m.SaveTeam(row); err != nil {
		t.Fatalf("SaveTeam: %v", err)
	}

	reopened := NewMemory(path)
	if err := reopened.Init(); err != nil {
		t.Fatalf("Init reopened: %v", err)
	}
	got, ok, err := reopened.GetTeam("team-1")
	if err != nil || !ok {
		t.Fatalf("GetTeam after reopen = (%+v, %v, %v), want a hit", got, ok, err)
	}
	if got.Name != "alpha" || got.TenantID != "tenant-1" {
		t.Fatalf("round-tripped row = %+v, want Name=alpha TenantID=tenant-1", got)
	}
}

func TestMemoryListTeamsFiltersByTenant(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshot.json")
	m := NewMemory(path)
	_ = m.Init()

	_ = m.SaveTeam(teamhub.TeamRow{ID: "t1", TenantID: "tenant-a"})
	_ = m.SaveTeam(teamhub.TeamRow{ID: "t2", TenantID: "tenant-b"})

	onlyA, err := m.ListTeams("tenant-a")
	if err != nil {
		t.Fatalf("ListTeams: %v", err)
	}
	if len(onlyA) != 1 || onlyA[0].ID != "t1" {
		t.Fatalf("ListTeams(tenant-a) = %+v, want just t1", onlyA)
	}

	all, err := m.ListTeams("")
	if err != nil {
		t.Fatalf("ListTeams: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("ListTeams(\"\") = %d rows, want 2", len(all))
	}
}

func TestMemoryDeleteTeam(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshot.json")
	m := NewMemory(path)
	_ = m.Init()
	_ = m.SaveTeam(teamhub.TeamRow{ID: "t1"})

	if err := m.DeleteTeam("t1"); err != nil {
		t.Fatalf("DeleteTeam: %v", err)
	}
	if _, ok, _ := m.GetTeam("t1"); ok {
		t.Fatal("team should be gone after DeleteTeam")
	}
}

func TestMemoryListTemplatesIncludesBuiltinsForEveryTenant(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshot.json")
	m := NewMemory(path)
	_ = m.Init()

	_ = m.SaveTemplate(teamhub.TemplateRow{ID: "builtin-1", Builtin: true})
	_ = m.SaveTemplate(teamhub.TemplateRow{ID: "custom-1", TenantID: "tenant-a"})
	_ = m.SaveTemplate(teamhub.TemplateRow{ID: "custom-2", TenantID: "tenant-b"})

	visible, err := m.ListTemplates("tenant-a")
	if err != nil {
		t.Fatalf("ListTemplates: %v", err)
	}
	ids := map[string]bool{}
	for _, tmpl := range visible {
		ids[tmpl.ID] = true
	}
	if !ids["builtin-1"] || !ids["custom-1"] || ids["custom-2"] {
		t.Fatalf("ListTemplates(tenant-a) = %+v, want builtin-1 and custom-1 only", visible)
	}
}

func TestMemoryDeleteTemplate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshot.json")
	m := NewMemory(path)
	_ = m.Init()
	_ = m.SaveTemplate(teamhub.TemplateRow{ID: "tmpl-1"})

	if err := m.DeleteTemplate("tmpl-1"); err != nil {
		t.Fatalf("DeleteTemplate: %v", err)
	}
	if _, ok, _ := m.GetTemplate("tmpl-1"); ok {
		t.Fatal("template should be gone after DeleteTemplate")
	}
}
