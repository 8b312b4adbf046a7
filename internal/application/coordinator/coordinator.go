// Package coordinator schedules flushes and send cycles for the current
// session and drains sessions left over from earlier runs.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dreschagin/session-telemetry/internal/application/port"
	"github.com/dreschagin/session-telemetry/internal/application/session"
	"github.com/dreschagin/session-telemetry/internal/application/usecase"
	"github.com/dreschagin/session-telemetry/internal/domain/entity"
	"github.com/dreschagin/session-telemetry/internal/domain/service"
	"github.com/dreschagin/session-telemetry/pkg/logger"
	"golang.org/x/time/rate"
)

const (
	DefaultSendInterval         = 30 * time.Second
	DefaultFlushThreshold       = 100
	DefaultEarlySendMinInterval = 5 * time.Second
)

// ErrClosed is returned by operations on a closed coordinator.
var ErrClosed = errors.New("coordinator is closed")

// Config tunes scheduling.
type Config struct {
	SendInterval         time.Duration
	FlushThreshold       int
	EarlySendMinInterval time.Duration
	UrgencyThreshold     float64
	SendOnClose          bool
}

func (c Config) withDefaults() Config {
	if c.SendInterval <= 0 {
		c.SendInterval = DefaultSendInterval
	}
	if c.FlushThreshold <= 0 {
		c.FlushThreshold = DefaultFlushThreshold
	}
	if c.EarlySendMinInterval <= 0 {
		c.EarlySendMinInterval = DefaultEarlySendMinInterval
	}
	if c.UrgencyThreshold <= 0 {
		c.UrgencyThreshold = service.DefaultUrgencyThreshold
	}
	return c
}

// CycleReport is the outcome of one flush-send-drain pass.
type CycleReport struct {
	Flushed int
	Send    *usecase.SendReport
	Drain   *usecase.DrainReport
}

// Snapshot is a point-in-time view of the coordinator for health endpoints.
type Snapshot struct {
	SessionID       string
	StartedAt       time.Time
	Interval        time.Duration
	LastRunAt       time.Time
	LastError       string
	LastReport      *CycleReport
	QueueDepth      int
	PendingSessions int
	Suspended       bool
	Running         bool
}

// Coordinator owns the current session. Submit is safe from any goroutine and
// never touches the disk; flushes and uploads run on coordinator goroutines.
type Coordinator struct {
	session   *session.Session
	flush     *usecase.FlushSessionUseCase
	send      *usecase.SendSessionUseCase
	drain     *usecase.DrainSavedSessionsUseCase
	validator *service.EntryValidator
	scorer    *service.UrgencyScorer
	metrics   port.PipelineMetrics
	cfg       Config
	logger    *logger.Logger

	flushReq  chan struct{}
	sendReq   chan struct{}
	resumeReq chan struct{}
	earlySend *rate.Limiter

	runMu     sync.Mutex
	cycling   atomic.Bool
	rerun     atomic.Bool
	suspended atomic.Bool
	closed    atomic.Bool

	lifecycleMu sync.Mutex
	running     bool
	cancel      context.CancelFunc
	wg          sync.WaitGroup

	mu         sync.RWMutex
	startedAt  time.Time
	lastRunAt  time.Time
	lastError  string
	lastReport *CycleReport
}

// New creates a coordinator for sess. scorer and metrics may be nil.
func New(
	sess *session.Session,
	flush *usecase.FlushSessionUseCase,
	send *usecase.SendSessionUseCase,
	drain *usecase.DrainSavedSessionsUseCase,
	scorer *service.UrgencyScorer,
	metrics port.PipelineMetrics,
	cfg Config,
	log *logger.Logger,
) *Coordinator {
	cfg = cfg.withDefaults()
	if scorer == nil {
		scorer = service.NewUrgencyScorer(service.DefaultUrgencyWeights())
	}
	if metrics == nil {
		metrics = port.NopPipelineMetrics{}
	}

	return &Coordinator{
		session:   sess,
		flush:     flush,
		send:      send,
		drain:     drain,
		validator: service.NewEntryValidator(),
		scorer:    scorer,
		metrics:   metrics,
		cfg:       cfg,
		logger:    log,
		flushReq:  make(chan struct{}, 1),
		sendReq:   make(chan struct{}, 1),
		resumeReq: make(chan struct{}, 1),
		earlySend: rate.NewLimiter(rate.Every(cfg.EarlySendMinInterval), 1),
		startedAt: time.Now(),
	}
}

// SessionID returns the current session id.
func (c *Coordinator) SessionID() string {
	return c.session.ID().String()
}

// Start launches the scheduling loop and an initial cycle that picks up
// sessions saved by earlier runs. Calling Start twice is a no-op.
func (c *Coordinator) Start(ctx context.Context) error {
	c.lifecycleMu.Lock()
	defer c.lifecycleMu.Unlock()

	if c.closed.Load() {
		return ErrClosed
	}
	if c.running {
		return nil
	}

	loopCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.running = true

	c.wg.Add(1)
	go c.loop(loopCtx)

	c.logger.Info("Coordinator started",
		"session_id", c.SessionID(),
		"interval", c.cfg.SendInterval.String(),
		"flush_threshold", c.cfg.FlushThreshold,
	)
	return nil
}

// Submit validates and enqueues an entry. Invalid entries are dropped and
// counted; Submit reports whether the entry was accepted.
func (c *Coordinator) Submit(entry entity.Entry) bool {
	if c.closed.Load() {
		c.metrics.EntriesDropped(port.DropReasonClosed, 1)
		return false
	}

	if err := c.validator.Validate(entry); err != nil {
		c.metrics.EntriesDropped(port.DropReasonInvalid, 1)
		c.logger.Debug("Entry rejected", "error", err.Error())
		return false
	}
	entry, _ = entity.Normalize(entry)

	depth := c.session.Queue().Enqueue(entry)
	c.metrics.EntriesSubmitted(1)

	urgent := c.scorer.Score(entry) >= c.cfg.UrgencyThreshold
	if urgent || depth > c.cfg.FlushThreshold {
		signal(c.flushReq)
	}
	if urgent {
		signal(c.sendReq)
	}
	return true
}

// OnSuspend flushes the queue to disk right away and pauses sending.
func (c *Coordinator) OnSuspend(ctx context.Context) error {
	if c.suspended.Swap(true) {
		return c.flushNow(ctx)
	}

	c.logger.Info("Coordinator suspended", "session_id", c.SessionID())
	return c.flushNow(ctx)
}

// OnResume restarts sending and schedules an immediate cycle.
func (c *Coordinator) OnResume() {
	if !c.suspended.Swap(false) {
		return
	}

	c.logger.Info("Coordinator resumed", "session_id", c.SessionID())
	signal(c.resumeReq)
}

// Suspended reports whether sending is paused.
func (c *Coordinator) Suspended() bool {
	return c.suspended.Load()
}

// RunOnce flushes the current session, sends it and drains saved sessions.
// Errors of one step do not skip the following steps. While suspended only
// the flush runs.
func (c *Coordinator) RunOnce(ctx context.Context) (*CycleReport, error) {
	c.runMu.Lock()
	defer c.runMu.Unlock()

	report := &CycleReport{}
	var errs []error

	// 1. Сбрасываем очередь текущей сессии
	result, err := c.flush.Execute(ctx, c.session)
	if err != nil {
		errs = append(errs, err)
	}
	report.Flushed = result.Written

	// В приостановленном состоянии только сохраняем на диск
	if c.suspended.Load() {
		err := errors.Join(errs...)
		if err != nil {
			c.updateFailure(time.Now(), report, err)
		}
		return report, err
	}

	// 2. Отправляем текущую сессию
	sendReport, err := c.send.Execute(ctx, c.session.Store())
	report.Send = sendReport
	if err != nil {
		errs = append(errs, fmt.Errorf("current session: %w", err))
	}

	// 3. Выгружаем сессии прошлых запусков
	if c.drain != nil && ctx.Err() == nil {
		drainReport, err := c.drain.Execute(ctx, c.session.ID())
		report.Drain = drainReport
		if err != nil {
			errs = append(errs, err)
		}
	}

	runAt := time.Now()
	if err := errors.Join(errs...); err != nil {
		wrappedErr := fmt.Errorf("send cycle failed: %w", err)
		c.updateFailure(runAt, report, wrappedErr)
		c.logger.Warn("Send cycle failed, will retry", "error", wrappedErr.Error())
		return report, wrappedErr
	}

	c.updateSuccess(runAt, report)
	if sendReport != nil && sendReport.OutfilesSent > 0 {
		c.logger.Info("Send cycle completed",
			"session_id", c.SessionID(),
			"outfiles_sent", sendReport.OutfilesSent,
			"entries_sent", sendReport.EntriesSent,
		)
	}
	return report, nil
}

// Close stops the loop, waits for background work and persists whatever is
// still queued. With SendOnClose a final send is attempted unless suspended.
func (c *Coordinator) Close(ctx context.Context) error {
	if c.closed.Swap(true) {
		return nil
	}

	c.lifecycleMu.Lock()
	if c.cancel != nil {
		c.cancel()
	}
	c.running = false
	c.lifecycleMu.Unlock()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		c.logger.Warn("Background send still running at shutdown")
	}

	var errs []error
	if err := c.flushNow(ctx); err != nil {
		errs = append(errs, err)
	}

	if c.cfg.SendOnClose && !c.suspended.Load() && ctx.Err() == nil {
		if _, err := c.send.Execute(ctx, c.session.Store()); err != nil {
			errs = append(errs, fmt.Errorf("final send: %w", err))
		}
	}

	c.logger.Info("Coordinator stopped",
		"session_id", c.SessionID(),
		"queue_depth", c.session.Queue().Count(),
	)
	return errors.Join(errs...)
}

// Snapshot returns the current status.
func (c *Coordinator) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	snapshot := Snapshot{
		SessionID:  c.SessionID(),
		StartedAt:  c.startedAt,
		Interval:   c.cfg.SendInterval,
		LastRunAt:  c.lastRunAt,
		LastError:  c.lastError,
		QueueDepth: c.session.Queue().Count(),
		Suspended:  c.suspended.Load(),
		Running:    !c.closed.Load(),
	}

	if c.lastReport != nil {
		copied := *c.lastReport
		snapshot.LastReport = &copied
		if copied.Drain != nil {
			snapshot.PendingSessions = copied.Drain.Pending()
		}
	}

	return snapshot
}

func (c *Coordinator) loop(ctx context.Context) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.cfg.SendInterval)
	defer ticker.Stop()

	c.startCycle(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// В приостановленном состоянии RunOnce только сбрасывает очередь
			c.startCycle(ctx)
		case <-c.flushReq:
			if ctx.Err() != nil {
				return
			}
			_ = c.flushNow(ctx)
		case <-c.sendReq:
			if c.suspended.Load() || !c.earlySend.Allow() {
				continue
			}
			c.startCycle(ctx)
		case <-c.resumeReq:
			ticker.Reset(c.cfg.SendInterval)
			c.startCycle(ctx)
		}
	}
}

// startCycle runs RunOnce in the background. A trigger that arrives while a
// cycle is running schedules exactly one more pass after it.
func (c *Coordinator) startCycle(ctx context.Context) {
	c.rerun.Store(true)
	if !c.cycling.CompareAndSwap(false, true) {
		return
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()

		for {
			for c.rerun.Swap(false) && ctx.Err() == nil {
				_, _ = c.RunOnce(ctx)
			}
			c.cycling.Store(false)

			if !c.rerun.Load() || ctx.Err() != nil || !c.cycling.CompareAndSwap(false, true) {
				return
			}
		}
	}()
}

func (c *Coordinator) flushNow(ctx context.Context) error {
	if _, err := c.flush.Execute(ctx, c.session); err != nil {
		return err
	}
	return nil
}

func (c *Coordinator) updateFailure(runAt time.Time, report *CycleReport, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.lastRunAt = runAt
	c.lastError = err.Error()
	c.lastReport = report
}

func (c *Coordinator) updateSuccess(runAt time.Time, report *CycleReport) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.lastRunAt = runAt
	c.lastError = ""
	c.lastReport = report
}

func signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
