package session

import (
	"log"
	"time"

	"github.com/robfig/cron/v3"
)

// IdleReaper periodically drops sessions that have been idle past a TTL,
// grounded on agents/registry.go's StartWatcher poll-ticker shape, but
// scheduled with the pack's cron library instead of a hand-rolled ticker.
type IdleReaper struct {
	registry *Registry
	ttl      time.Duration
	logger   *log.Logger
	cron     *cron.Cron
}

// NewIdleReaper builds a reaper that will sweep registry on the given cron
// schedule, dropping sessions idle longer than ttl.
func NewIdleReaper(registry *Registry, ttl time.Duration, schedule string, logger *log.Logger) (*IdleReaper, error) {
	if logger == nil {
		logger = log.Default()
	}
	r := &IdleReaper{registry: registry, ttl: ttl, logger: logger, cron: cron.New()}
	if _, err := r.cron.AddFunc(schedule, r.sweep); err != nil {
		return nil, err
	}
	return r, nil
}

// Start begins the cron schedule. Stop must be called to release it.
func (r *IdleReaper) Start() { r.cron.Start() }

// Stop halts the cron schedule, waiting for any in-flight sweep to finish.
func (r *IdleReaper) Stop() { <-r.cron.Stop().Done() }

func (r *IdleReaper) sweep() {
	cutoff := time.Now().Add(-r.ttl)
	for _, id := range r.registry.IdleSessions(cutoff) {
		r.registry.Drop(id)
		r.logger.Printf("session %s dropped: idle past %s", id, r.ttl)
	}
}
