package session

import (
	"fmt"
	"os"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

const (
	DefaultRetention = 7 * 24 * time.Hour

	// DefaultCleanupSchedule runs the prune daily at 03:00.
	DefaultCleanupSchedule = "0 3 * * *"
)

// Cleanup prunes persisted sessions older than a retention window on a
// cron schedule. Cleanup failures are logged, never fatal.
type Cleanup struct {
	store     *Store
	retention time.Duration
	schedule  string
	cron      *cron.Cron
}

// NewCleanup creates a cleanup handler for the store. Zero values fall back
// to DefaultRetention and DefaultCleanupSchedule.
func NewCleanup(store *Store, retention time.Duration, schedule string) *Cleanup {
	if retention <= 0 {
		retention = DefaultRetention
	}
	if schedule == "" {
		schedule = DefaultCleanupSchedule
	}
	return &Cleanup{
		store:     store,
		retention: retention,
		schedule:  schedule,
	}
}

// Start begins scheduled pruning.
func (c *Cleanup) Start() error {
	if c.cron != nil {
		return fmt.Errorf("cleanup is already running")
	}

	c.cron = cron.New()
	if _, err := c.cron.AddFunc(c.schedule, func() {
		if _, err := c.RunOnce(); err != nil {
			log.Error().Err(err).Msg("Session cleanup failed")
		}
	}); err != nil {
		c.cron = nil
		return fmt.Errorf("invalid cleanup schedule %q: %w", c.schedule, err)
	}
	c.cron.Start()

	log.Info().
		Dur("retention", c.retention).
		Str("schedule", c.schedule).
		Msg("Session cleanup started")

	return nil
}

// Stop halts scheduled pruning. Safe to call when not running.
func (c *Cleanup) Stop() {
	if c.cron == nil {
		return
	}
	c.cron.Stop()
	c.cron = nil
	log.Info().Msg("Session cleanup stopped")
}

// RunOnce prunes sessions whose files are older than the retention window
// and returns how many were removed.
func (c *Cleanup) RunOnce() (int, error) {
	ids, err := c.store.List()
	if err != nil {
		return 0, err
	}

	cutoff := time.Now().Add(-c.retention)
	removed := 0

	for _, id := range ids {
		info, err := os.Stat(c.store.path(id))
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		if err := c.store.Delete(id); err != nil {
			log.Warn().Str("session_id", id).Err(err).Msg("Failed to prune session")
			continue
		}
		removed++
	}

	if removed > 0 {
		log.Info().Int("removed", removed).Msg("Pruned old sessions")
	}

	return removed, nil
}
