package reminder

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/wolfman30/practice-concierge/pkg/logging"
)

// CronRunner triggers Scan on a cron schedule. Overlapping runs in the same
// process are skipped.
type CronRunner struct {
	scanner *Scanner
	spec    string
	timeout time.Duration
	logger  *logging.Logger
	cron    *cron.Cron
}

// NewCronRunner builds a runner. spec accepts standard cron or "@every 15m".
// Each run is bounded by timeout.
func NewCronRunner(scanner *Scanner, spec string, timeout time.Duration, logger *logging.Logger) (*CronRunner, error) {
	if logger == nil {
		logger = logging.Default()
	}
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	r := &CronRunner{scanner: scanner, spec: spec, timeout: timeout, logger: logger}
	r.cron = cron.New(cron.WithChain(
		cron.Recover(cron.DefaultLogger),
		cron.SkipIfStillRunning(cron.DefaultLogger),
	))
	if _, err := r.cron.AddFunc(spec, r.RunOnce); err != nil {
		return nil, err
	}
	return r, nil
}

// RunOnce performs a single bounded scan.
func (r *CronRunner) RunOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	if _, err := r.scanner.Scan(ctx); err != nil {
		r.logger.Error("reminder scan failed", "error", err)
	}
}

// Start runs one scan immediately and then follows the schedule until ctx is done.
func (r *CronRunner) Start(ctx context.Context) {
	r.logger.Info("reminder scheduler starting", "spec", r.spec)
	r.RunOnce()
	r.cron.Start()
	<-ctx.Done()
	stopped := r.cron.Stop()
	<-stopped.Done()
	r.logger.Info("reminder scheduler stopped")
}
