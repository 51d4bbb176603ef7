package digest

// The scheduler wires up the cron job that fires the digest pass at the
// two configured times per day. A Redis lock keeps two instances from
// double-sending the same slot.

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
)

// lockTTL must outlive one full pass; the lock expires on its own so a
// crashed instance never wedges the next slot.
const lockTTL = 30 * time.Minute

// Scheduler wraps robfig/cron and manages the digest loop.
type Scheduler struct {
	cron   *cron.Cron
	rdb    *redis.Client
	runner *Runner
	spec   string // cron spec, e.g. "0 8,18 * * *"
}

// NewScheduler creates a Scheduler firing on the given cron spec.
func NewScheduler(rdb *redis.Client, runner *Runner, spec string) *Scheduler {
	return &Scheduler{
		cron:   cron.New(cron.WithLogger(cron.DefaultLogger)),
		rdb:    rdb,
		runner: runner,
		spec:   spec,
	}
}

// Start registers the job and starts the scheduler.
func (s *Scheduler) Start(ctx context.Context) error {
	_, err := s.cron.AddFunc(s.spec, func() {
		s.runOnce(ctx)
	})
	if err != nil {
		return fmt.Errorf("cron.AddFunc: %w", err)
	}

	s.cron.Start()
	log.Printf("[scheduler] Cron started — spec: %s", s.spec)
	return nil
}

// Stop gracefully shuts down the scheduler.
func (s *Scheduler) Stop() {
	s.cron.Stop()
	log.Println("[scheduler] Cron stopped")
}

// RunNow triggers one pass outside the schedule (startup backfill, manual
// kicks). Subject to the same lock as scheduled runs.
func (s *Scheduler) RunNow(ctx context.Context) {
	s.runOnce(ctx)
}

func (s *Scheduler) runOnce(ctx context.Context) {
	key := "digest:lock:" + time.Now().UTC().Format("2006-01-02T15")
	ok, err := s.rdb.SetNX(ctx, key, "1", lockTTL).Result()
	if err != nil {
		log.Printf("[scheduler] Lock error: %v — running unlocked", err)
	} else if !ok {
		log.Println("[scheduler] Another instance holds the digest lock — skipping")
		return
	}

	log.Println("[scheduler] Digest pass started")
	if _, err := s.runner.Run(ctx); err != nil {
		log.Printf("[scheduler] Digest pass error: %v", err)
	}
}
