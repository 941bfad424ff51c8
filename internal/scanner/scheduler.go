package scanner

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler drives the scanner on cron specs. Jobs run sequentially within
// the cron goroutine; the ledger's own locking handles the rest.
type Scheduler struct {
	cron *cron.Cron
}

func NewScheduler() *Scheduler {
	return &Scheduler{cron: cron.New()}
}

// RegisterScan runs a scan tick on the given cron spec (e.g. "*/5 * * * *").
func (s *Scheduler) RegisterScan(ctx context.Context, spec string, sc *Scanner) error {
	_, err := s.cron.AddFunc(spec, func() {
		now := time.Now().UTC()
		actions, err := sc.Tick(ctx, now)
		if err != nil {
			log.Printf("RegisterScan | tick: %v", err)
			return
		}
		if len(actions) > 0 {
			log.Printf("RegisterScan | tick at %s took %d actions", now.Format(time.RFC3339), len(actions))
		}
	})
	if err != nil {
		return fmt.Errorf("RegisterScan | invalid spec %q: %w", spec, err)
	}
	return nil
}

// RegisterJob schedules an arbitrary job, e.g. a daily stats push.
func (s *Scheduler) RegisterJob(spec string, job func()) error {
	if _, err := s.cron.AddFunc(spec, job); err != nil {
		return fmt.Errorf("RegisterJob | invalid spec %q: %w", spec, err)
	}
	return nil
}

// Start launches the cron loop in its own goroutine.
func (s *Scheduler) Start() { s.cron.Start() }

// Stop halts scheduling and waits for a running job to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}
