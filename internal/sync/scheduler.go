// Package sync runs the mailbox fetch-and-process cycle, either on a timer
// or on demand.
package sync

import (
	"context"
	"errors"
	"fmt"
	gosync "sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/nhle/procurement-inbox/internal/classify"
	"github.com/nhle/procurement-inbox/internal/mailbox"
	"github.com/nhle/procurement-inbox/internal/metrics"
	"github.com/nhle/procurement-inbox/internal/reconcile"
)

const (
	defaultIntervalMinutes = 5
	defaultCycleTimeout    = 10 * time.Minute
)

// Config holds the scheduler settings.
type Config struct {
	// IntervalMinutes is used when Start is called with a non-positive value.
	IntervalMinutes int

	// MaxMessages caps how many of the most recent matches one cycle fetches.
	MaxMessages int

	// CycleTimeout bounds a single cycle.
	CycleTimeout time.Duration
}

// Scheduler owns the polling timer and guards against overlapping cycles.
// The zero value is not usable; create one with New.
type Scheduler struct {
	mailbox Mailbox
	engine  Processor
	vendors VendorLister
	metrics *metrics.Metrics
	logger  *zap.Logger
	cfg     Config

	// unit scales the interval; tests shrink it.
	unit time.Duration

	guard   *semaphore.Weighted
	inCycle atomic.Bool

	mu          gosync.Mutex
	running     bool
	stopCh      chan struct{}
	interval    int
	lastFetch   *time.Time
	lastError   string
	lastSummary *Summary
}

// New creates a stopped Scheduler.
func New(mb Mailbox, engine Processor, vendors VendorLister, cfg Config, m *metrics.Metrics, logger *zap.Logger) *Scheduler {
	if cfg.IntervalMinutes <= 0 {
		cfg.IntervalMinutes = defaultIntervalMinutes
	}
	if cfg.CycleTimeout <= 0 {
		cfg.CycleTimeout = defaultCycleTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		mailbox: mb,
		engine:  engine,
		vendors: vendors,
		metrics: m,
		logger:  logger.Named("scheduler"),
		cfg:     cfg,
		unit:    time.Minute,
		guard:   semaphore.NewWeighted(1),
	}
}

// Start validates the mailbox configuration, runs one cycle immediately in
// the background and then repeats it every intervalMinutes. Calling Start
// while running is a no-op.
func (s *Scheduler) Start(intervalMinutes int) error {
	if !s.mailbox.Configured() {
		return errNotConfigured
	}
	if intervalMinutes <= 0 {
		intervalMinutes = s.cfg.IntervalMinutes
	}

	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = true
	s.interval = intervalMinutes
	s.stopCh = make(chan struct{})
	stopCh := s.stopCh
	s.mu.Unlock()

	s.metrics.SetRunning(true)
	s.logger.Info("polling started", zap.Int("interval_minutes", intervalMinutes))

	go s.loop(stopCh, time.Duration(intervalMinutes)*s.unit)
	return nil
}

// Stop cancels future cycles. A cycle already in progress runs to completion.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}

	close(s.stopCh)
	s.running = false
	s.interval = 0
	s.metrics.SetRunning(false)
	s.logger.Info("polling stopped")
}

// Shutdown stops the timer and waits for an in-flight cycle to finish or
// ctx to expire.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	s.Stop()
	if err := s.guard.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("waiting for in-flight cycle: %w", err)
	}
	s.guard.Release(1)
	return nil
}

// Status returns a snapshot of the scheduler state.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{
		Configured:      s.mailbox.Configured(),
		Running:         s.running,
		CycleInProgress: s.inCycle.Load(),
		IntervalMinutes: s.interval,
		LastError:       s.lastError,
		LastSummary:     s.lastSummary,
	}
	if s.lastFetch != nil {
		t := *s.lastFetch
		st.LastFetchTimestamp = &t
	}
	return st
}

// TestConnection connects to the mailbox, lists its folders and selects the
// configured one.
func (s *Scheduler) TestConnection(ctx context.Context) (*ConnectionReport, error) {
	if !s.mailbox.Configured() {
		return nil, errNotConfigured
	}

	probe, err := s.mailbox.Probe(ctx)
	if err != nil {
		s.logger.Warn("mailbox connection test failed", zap.Error(err))
		return &ConnectionReport{OK: false, Error: err.Error()}, err
	}

	return &ConnectionReport{
		OK:        true,
		Folder:    probe.Folder,
		Mailboxes: probe.Mailboxes,
		Messages:  probe.Messages,
	}, nil
}

// FetchAndProcessEmails runs one cycle synchronously, independent of the
// timer. It returns ErrCycleInProgress if another cycle is running. The
// cycle is not cancelled with ctx; it is bounded by the cycle timeout.
func (s *Scheduler) FetchAndProcessEmails(ctx context.Context) (*Summary, error) {
	if !s.mailbox.Configured() {
		return nil, errNotConfigured
	}
	return s.runCycle(ctx, false)
}

// loop runs the immediate cycle and then one per tick until stopCh closes.
// The immediate cycle waits for a cycle still running from before a restart
// rather than being skipped; stopping abandons the wait.
func (s *Scheduler) loop(stopCh <-chan struct{}, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	s.runScheduled(ctx, true)

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			select {
			case <-stopCh:
				return
			default:
			}
			s.runScheduled(ctx, false)
		}
	}
}

func (s *Scheduler) runScheduled(ctx context.Context, wait bool) {
	_, err := s.runCycle(ctx, wait)
	switch {
	case errors.Is(err, ErrCycleInProgress):
		s.logger.Debug("skipping tick, cycle in progress")
		s.metrics.ObserveCycle(metrics.CycleSkipped, time.Now())
	case errors.Is(err, errStopped):
		s.logger.Debug("stopped while waiting for in-flight cycle")
	}
}

// acquire takes the cycle guard. Without wait it fails fast with
// ErrCycleInProgress; with wait it blocks until the guard frees or ctx ends.
func (s *Scheduler) acquire(ctx context.Context, wait bool) error {
	if !wait {
		if !s.guard.TryAcquire(1) {
			return ErrCycleInProgress
		}
		return nil
	}
	if err := s.guard.Acquire(ctx, 1); err != nil {
		return errStopped
	}
	return nil
}

func (s *Scheduler) runCycle(ctx context.Context, wait bool) (*Summary, error) {
	if err := s.acquire(ctx, wait); err != nil {
		return nil, err
	}
	defer s.guard.Release(1)

	s.inCycle.Store(true)
	defer s.inCycle.Store(false)

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.CycleTimeout)
	defer cancel()

	started := time.Now()
	summary, err := s.cycle(ctx, started)
	if summary != nil {
		summary.FinishedAt = time.Now().UTC()
	}

	result := metrics.CycleOK
	switch {
	case summary != nil && summary.Aborted:
		result = metrics.CycleAborted
	case err != nil:
		result = metrics.CycleError
	}
	s.metrics.ObserveCycle(result, started)
	s.finish(summary, err)

	if err != nil {
		s.logger.Error("mailbox cycle failed", zap.Error(err), zap.String("result", result))
	} else {
		s.logger.Info("mailbox cycle complete",
			zap.Int("fetched", summary.Fetched),
			zap.Int("ignored", summary.Ignored),
			zap.Int("created", summary.Created),
			zap.Int("updated", summary.Updated),
			zap.Int("skipped", summary.Skipped),
			zap.Int("failed", summary.Failed),
			zap.Duration("elapsed", time.Since(started)),
		)
	}

	return summary, err
}

// cycle fetches unread candidate messages and processes them in mailbox
// order. Irrelevant messages are left unread. Relevant and undecodable ones
// are marked seen before processing; a database failure marks the message unseen again and
// aborts the cycle so it is retried next time.
func (s *Scheduler) cycle(ctx context.Context, started time.Time) (*Summary, error) {
	emails, err := s.vendors.ListActiveVendorEmails(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading vendor emails: %w", err)
	}
	known := classify.NewVendorSet(emails)

	sess, err := s.mailbox.Open(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := sess.Close(); err != nil {
			s.logger.Warn("closing mailbox session", zap.Error(err))
		}
	}()

	msgs, err := sess.Search(ctx, mailbox.DefaultCriteria(s.cfg.MaxMessages))
	if err != nil {
		return nil, err
	}

	summary := &Summary{StartedAt: started.UTC(), Fetched: len(msgs), Results: []reconcile.Result{}}

	for i := range msgs {
		msg := &msgs[i]

		if err := ctx.Err(); err != nil {
			summary.Aborted = true
			summary.Error = err.Error()
			return summary, fmt.Errorf("cycle interrupted: %w", err)
		}

		// Undecodable placeholders skip classification so they are audited
		// and marked seen instead of being refetched every cycle.
		if !msg.Undecodable() && classify.Classify(msg, known) == classify.ReasonNone {
			summary.Ignored++
			s.metrics.ObserveMessage("ignored")
			s.logger.Debug("ignoring irrelevant message",
				zap.Uint32("uid", msg.UID), zap.String("subject", msg.Subject))
			continue
		}

		if err := sess.MarkSeen(ctx, msg.UID); err != nil {
			s.logger.Warn("marking message seen", zap.Uint32("uid", msg.UID), zap.Error(err))
			res := reconcile.Result{
				Action:  reconcile.ActionFailed,
				Reason:  err.Error(),
				UID:     msg.UID,
				Subject: msg.Subject,
				From:    msg.From,
			}
			summary.add(res)
			s.metrics.ObserveMessage(string(res.Action))
			continue
		}

		res, err := s.engine.Process(ctx, msg)
		summary.add(res)
		s.metrics.ObserveMessage(string(res.Action))

		if err != nil {
			if uerr := sess.MarkUnseen(ctx, msg.UID); uerr != nil {
				s.logger.Warn("restoring unseen flag", zap.Uint32("uid", msg.UID), zap.Error(uerr))
			}
			summary.Aborted = true
			summary.Error = err.Error()
			return summary, fmt.Errorf("processing message UID %d: %w", msg.UID, err)
		}
	}

	return summary, nil
}

// finish records the outcome of a cycle in the status.
func (s *Scheduler) finish(summary *Summary, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if summary != nil {
		s.lastSummary = summary
	}
	if err != nil {
		s.lastError = err.Error()
		return
	}
	now := time.Now().UTC()
	s.lastFetch = &now
	s.lastError = ""
}
