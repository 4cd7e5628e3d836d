package escalation

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/robfig/cron/v3"
)

// Runner triggers Tick on a cron schedule. Overlapping runs are skipped.
type Runner struct {
	scheduler *Scheduler
	schedule  string
	now       func() time.Time
}

// NewRunner returns a runner for a cron spec such as "@every 1m" or "*/5 * * * *".
func NewRunner(s *Scheduler, schedule string) *Runner {
	return &Runner{scheduler: s, schedule: schedule, now: time.Now}
}

// Run blocks until ctx is done, then waits for a running tick to finish.
func (r *Runner) Run(ctx context.Context) error {
	logger := cron.PrintfLogger(log.New(os.Stderr, "escalation: ", log.LstdFlags))
	c := cron.New(cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)))
	if _, err := c.AddFunc(r.schedule, func() { r.tick(ctx) }); err != nil {
		return err
	}
	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}

func (r *Runner) tick(ctx context.Context) {
	rep, err := r.scheduler.Tick(ctx, r.now())
	if err != nil {
		log.Printf("escalation: tick: %v", err)
		return
	}
	if rep.Warned+rep.Escalated+rep.Failed > 0 {
		log.Printf("escalation: tick warned=%d escalated=%d skipped=%d failed=%d", rep.Warned, rep.Escalated, rep.Skipped, rep.Failed)
	}
}
