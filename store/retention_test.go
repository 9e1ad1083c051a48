package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/forgeworks/teamhub"
)

func TestRetentionSchedulerSweepPurgesOldDeletedTeams(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshot.json")
	mem := NewMemory(path)
	if err := mem.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}

	old := teamhub.TeamRow{
		ID:        "old-deleted",
		Status:    string(teamhub.TeamDeleted),
		UpdatedAt: time.Now().Add(-48 * time.Hour),
	}
	recent := teamhub.TeamRow{
		ID:        "recent-deleted",
		Status:    string(teamhub.TeamDeleted),
		UpdatedAt: time.Now(),
	}
	stillRunning := teamhub.TeamRow{
		ID:        "still-running",
		Status:    string(teamhub.TeamRunning),
		UpdatedAt: time.Now().Add(-48 * time.Hour),
	}
	for _, row := range []teamhub.TeamRow{old, recent, stillRunning} {
		if err := mem.SaveTeam(row); err != nil {
			t.Fatalf("SaveTeam(%s): %v", row.ID, err)
		}
	}

	sched := NewRetentionScheduler(mem, 24*time.Hour)
	sched.sweep()

	if _, ok, _ := mem.GetTeam("old-deleted"); ok {
		t.Error("old-deleted should have been purged")
	}
	if _, ok, _ := mem.GetTeam("recent-deleted"); !ok {
		t.Error("recent-deleted is within the retention window and should survive")
	}
	if _, ok, _ := mem.GetTeam("still-running"); !ok {
		t.Error("still-running is not deleted and should never be purged regardless of age")
	}
}

func TestNewRetentionSchedulerDefaultsRetention(t *testing.T) {
	mem := NewMemory(filepath.Join(t.TempDir(), "snapshot.json"))
	sched := NewRetentionScheduler(mem, 0)
	if sched.retention != DefaultDeletedTeamRetention {
		t.Errorf("retention = %v, want default %v", sched.retention, DefaultDeletedTeamRetention)
	}
}

func TestRetentionSchedulerStartAndStop(t *testing.T) {
	mem := NewMemory(filepath.Join(t.TempDir(), "snapshot.json"))
	_ = mem.Init()

	sched := NewRetentionScheduler(mem, time.Hour)
	if err := sched.Start(DefaultSweepSchedule); err != nil {
		t.Fatalf("Start: %v", err)
	}
	sched.Stop()
}
