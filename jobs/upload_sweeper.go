package jobs

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// StaleUploadSweeper is implemented by backends that stage uploads in
// temporary files.
type StaleUploadSweeper interface {
	SweepStaleUploads(ctx context.Context, cutoff time.Time) (int, error)
}

// UploadSweeper removes upload temp files abandoned by interrupted
// requests or crashes.
type UploadSweeper struct {
	target     StaleUploadSweeper
	schedule   string
	staleAfter time.Duration
	timeout    time.Duration
	cron       *cron.Cron
	job        cron.Job
	wg         sync.WaitGroup
	logger     *log.Logger
	now        func() time.Time
}

func NewUploadSweeper(target StaleUploadSweeper, schedule string, staleAfter time.Duration) *UploadSweeper {
	logger := log.New(log.Writer(), "[UPLOAD_SWEEPER] ", log.LstdFlags)
	s := &UploadSweeper{
		target:     target,
		schedule:   schedule,
		staleAfter: staleAfter,
		timeout:    30 * time.Minute,
		logger:     logger,
		now:        time.Now,
		cron:       cron.New(),
	}
	// one wrapped job serves the startup sweep and the schedule, so they
	// share the skip guard
	s.job = cron.NewChain(
		cron.SkipIfStillRunning(cron.PrintfLogger(logger)),
		cron.Recover(cron.PrintfLogger(logger)),
	).Then(cron.FuncJob(s.runScheduled))
	return s
}

// Start registers the sweep, runs it once immediately and returns. The
// schedule accepts standard cron expressions and descriptors like "@every 1h".
func (s *UploadSweeper) Start() error {
	if _, err := s.cron.AddJob(s.schedule, s.job); err != nil {
		return fmt.Errorf("invalid upload sweep schedule %q: %w", s.schedule, err)
	}

	s.logger.Printf("Starting upload sweeper (%s, stale after %v)", s.schedule, s.staleAfter)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.job.Run()
	}()
	s.cron.Start()
	return nil
}

// Stop halts the schedule and waits for any running sweep, including the
// startup one, to finish.
func (s *UploadSweeper) Stop() {
	<-s.cron.Stop().Done()
	s.wg.Wait()
	s.logger.Println("Upload sweeper stopped")
}

func (s *UploadSweeper) runScheduled() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	if _, err := s.RunOnce(ctx); err != nil {
		s.logger.Printf("Error sweeping stale uploads: %v", err)
	}
}

// RunOnce removes temp files untouched for longer than staleAfter.
func (s *UploadSweeper) RunOnce(ctx context.Context) (int, error) {
	cutoff := s.now().Add(-s.staleAfter)

	removed, err := s.target.SweepStaleUploads(ctx, cutoff)
	if err != nil {
		return removed, err
	}
	if removed > 0 {
		s.logger.Printf("Removed %d stale uploads older than %s", removed, cutoff.Format(time.RFC3339))
	}
	return removed, nil
}
