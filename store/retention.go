package store

import (
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/forgeworks/teamhub"
)

// DefaultDeletedTeamRetention is how long a deleted team's row survives
// before RetentionScheduler purges it for good.
const DefaultDeletedTeamRetention = 7 * 24 * time.Hour

// DefaultSweepSchedule runs the sweep hourly.
const DefaultSweepSchedule = "0 * * * *"

// RetentionScheduler periodically purges deleted-team rows past their
// retention window. It wraps robfig/cron/v3 the way the teacher's
// serve/scheduler.go wraps it for agent-directed jobs, repurposed here
// for a fixed internal housekeeping job instead of user-defined ones.
type RetentionScheduler struct {
	c         *cron.Cron
	store     teamhub.TeamStore
	retention time.Duration
	log       *slog.Logger

	mu      sync.Mutex
	entryID cron.EntryID
}

// NewRetentionScheduler constructs a scheduler over store. retention is
// the deleted-row lifetime; zero uses DefaultDeletedTeamRetention.
func NewRetentionScheduler(store teamhub.TeamStore, retention time.Duration) *RetentionScheduler {
	if retention <= 0 {
		retention = DefaultDeletedTeamRetention
	}
	return &RetentionScheduler{
		c:         cron.New(),
		store:     store,
		retention: retention,
		log:       slog.Default().With("component", "retention"),
	}
}

// Start registers the sweep job and begins the cron runner. schedule is
// a standard 5-field cron expression; empty uses DefaultSweepSchedule.
func (s *RetentionScheduler) Start(schedule string) error {
	if schedule == "" {
		schedule = DefaultSweepSchedule
	}

	id, err := s.c.AddFunc(schedule, s.sweep)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.entryID = id
	s.mu.Unlock()

	s.c.Start()
	s.log.Info("retention scheduler started", "schedule", schedule)
	return nil
}

// Stop halts the cron runner, waiting for any in-flight sweep to finish.
func (s *RetentionScheduler) Stop() {
	ctx := s.c.Stop()
	<-ctx.Done()
	s.log.Info("retention scheduler stopped")
}

// sweep deletes every deleted-status team row older than the retention
// window. It reads every tenant's teams (ListTeams("") returns the full
// fleet), which is acceptable at the housekeeping cadence this runs at.
func (s *RetentionScheduler) sweep() {
	teams, err := s.store.ListTeams("")
	if err != nil {
		s.log.Warn("retention sweep: list teams failed", "error", err)
		return
	}

	cutoff := time.Now().Add(-s.retention)
	purged := 0
	for _, t := range teams {
		if t.Status != string(teamhub.TeamDeleted) {
			continue
		}
		if t.UpdatedAt.After(cutoff) {
			continue
		}
		if err := s.store.DeleteTeam(t.ID); err != nil {
			s.log.Warn("retention sweep: purge failed", "team", t.ID, "error", err)
			continue
		}
		purged++
	}
	if purged > 0 {
		s.log.Info("retention sweep complete", "purged", purged)
	}
}
