/*
scheduler.go - Periodic boot check

PURPOSE:
  Re-runs the day-close boot check while the server stays up, so a process
  running across midnight still notices a previous day that was never closed.

DESIGN:
  - RunNow runs one check synchronously (used once at startup)
  - Start launches a background goroutine ticking every Interval
  - Interval <= 0 disables the ticker; startup still runs RunNow
  - Each tick examines yesterday only, like the startup check

USAGE:
  scheduler := NewBootCheckScheduler(ledger, autoClose, interval, logger)
  scheduler.RunNow(ctx)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: POST /api/boot-check (manual run), GET /api/boot-check/last
  - dayclose/boot.go: BootCheck
*/
package api

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/warp/pos-engine/dayclose"
	"github.com/warp/pos-engine/pos"
)

// BootCheckScheduler runs the boot check periodically.
type BootCheckScheduler struct {
	Ledger    *dayclose.Ledger
	AutoClose bool
	Interval  time.Duration

	log    logrus.FieldLogger
	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex

	reportMu sync.RWMutex
	last     dayclose.BootReport
	lastAt   time.Time
	ran      bool
}

// NewBootCheckScheduler creates a new scheduler.
func NewBootCheckScheduler(ledger *dayclose.Ledger, autoClose bool, interval time.Duration, logger logrus.FieldLogger) *BootCheckScheduler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &BootCheckScheduler{
		Ledger:    ledger,
		AutoClose: autoClose,
		Interval:  interval,
		log:       logger.WithField("component", "scheduler"),
	}
}

// Start begins periodic checks. The first tick fires after Interval.
func (s *BootCheckScheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Interval <= 0 {
		s.log.Info("periodic boot check disabled")
		return
	}
	if s.ticker != nil {
		return
	}

	s.stop = make(chan struct{})
	s.ticker = time.NewTicker(s.Interval)
	s.wg.Add(1)
	go s.run(s.ticker.C, s.stop)

	s.log.WithField("interval", s.Interval.String()).Info("boot check scheduler started")
}

// Stop stops the scheduler and waits for a running check to finish.
func (s *BootCheckScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ticker != nil {
		s.ticker.Stop()
		close(s.stop)
		s.wg.Wait()
		s.ticker = nil
		s.log.Info("boot check scheduler stopped")
	}
}

func (s *BootCheckScheduler) run(ticks <-chan time.Time, stop <-chan struct{}) {
	defer s.wg.Done()

	for {
		select {
		case <-ticks:
			s.RunNow(context.Background())
		case <-stop:
			return
		}
	}
}

// RunNow performs one boot check and records its report.
// pos.ErrNoStores is logged as a warning by the ledger and not repeated here.
func (s *BootCheckScheduler) RunNow(ctx context.Context) (dayclose.BootReport, error) {
	report, err := s.Ledger.BootCheck(ctx, s.AutoClose)
	if err != nil && !errors.Is(err, pos.ErrNoStores) {
		s.log.WithError(err).Error("boot check failed")
	}

	s.reportMu.Lock()
	s.last, s.lastAt, s.ran = report, time.Now(), true
	s.reportMu.Unlock()

	return report, err
}

// LastReport returns the most recent report and when it ran.
func (s *BootCheckScheduler) LastReport() (dayclose.BootReport, time.Time, bool) {
	s.reportMu.RLock()
	defer s.reportMu.RUnlock()
	return s.last, s.lastAt, s.ran
}
