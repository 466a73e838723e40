package alias

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// DefaultRetentionSchedule runs the janitor at the top of every hour.
const DefaultRetentionSchedule = "0 * * * *"

// Janitor periodically clears scopes idle for longer than a TTL.
type Janitor struct {
	cron     *cron.Cron
	registry *Registry
	ttl      time.Duration
}

// NewJanitor registers a purge job on schedule, a standard 5-field cron
// expression (e.g. "*/15 * * * *").
func NewJanitor(reg *Registry, schedule string, ttl time.Duration) (*Janitor, error) {
	if schedule == "" {
		schedule = DefaultRetentionSchedule
	}
	j := &Janitor{cron: cron.New(), registry: reg, ttl: ttl}
	if _, err := j.cron.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		j.RunOnce(ctx)
	}); err != nil {
		return nil, fmt.Errorf("registering retention cron %q: %w", schedule, err)
	}
	return j, nil
}

// RunOnce purges idle scopes now and returns the purged scope ids.
func (j *Janitor) RunOnce(ctx context.Context) []string {
	purged, err := j.registry.PurgeIdle(ctx, j.ttl)
	if err != nil {
		log.Error().Err(err).Msg("alias_retention_failed")
	}
	if len(purged) > 0 {
		log.Info().Int("scopes", len(purged)).Dur("ttl", j.ttl).Msg("alias_scopes_purged")
	}
	return purged
}

// Start begins executing the retention job.
func (j *Janitor) Start() {
	j.cron.Start()
}

// Stop halts the janitor and waits for a running purge to complete.
func (j *Janitor) Stop() {
	ctx := j.cron.Stop()
	<-ctx.Done()
}
