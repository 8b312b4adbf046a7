// Package telemetry is the public handle of the telemetry pipeline: entries
// submitted here are buffered in memory, persisted per session and uploaded
// to the ingest service in the background.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/dreschagin/session-telemetry/internal/application/coordinator"
	"github.com/dreschagin/session-telemetry/internal/application/dto"
	"github.com/dreschagin/session-telemetry/internal/application/port"
	"github.com/dreschagin/session-telemetry/internal/application/usecase"
	"github.com/dreschagin/session-telemetry/internal/domain/entity"
	"github.com/dreschagin/session-telemetry/internal/domain/service"
	"github.com/dreschagin/session-telemetry/internal/domain/valueobject"
	"github.com/dreschagin/session-telemetry/internal/infrastructure/ingest"
	"github.com/dreschagin/session-telemetry/internal/infrastructure/persistence/filesystem"
	"github.com/dreschagin/session-telemetry/pkg/config"
	"github.com/dreschagin/session-telemetry/pkg/logger"
	"github.com/google/uuid"
)

// Agent status values reported by Status.
const (
	StatusOK        = "ok"
	StatusSuspended = "suspended"
	StatusDegraded  = "degraded"
)

// Option injects optional infrastructure.
type Option func(*options)

type options struct {
	publisher  port.EventPublisher
	archive    port.BatchArchive
	tokens     port.TokenCache
	metrics    port.PipelineMetrics
	collector  port.DeviceCollector
	httpClient *http.Client
}

// WithPublisher publishes ingestion notifications.
func WithPublisher(p port.EventPublisher) Option {
	return func(o *options) { o.publisher = p }
}

// WithArchive copies every acknowledged batch to an object store.
func WithArchive(a port.BatchArchive) Option {
	return func(o *options) { o.archive = a }
}

// WithTokenCache shares access tokens between processes.
func WithTokenCache(c port.TokenCache) Option {
	return func(o *options) { o.tokens = c }
}

// WithMetrics reports pipeline counters.
func WithMetrics(m port.PipelineMetrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithCollector describes the device and process in session metadata.
func WithCollector(c port.DeviceCollector) Option {
	return func(o *options) { o.collector = c }
}

// WithHTTPClient overrides the ingest HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

// pipeline holds the wiring shared by Agent and DrainSaved.
type pipeline struct {
	repo  *filesystem.Repository
	flush *usecase.FlushSessionUseCase
	send  *usecase.SendSessionUseCase
	drain *usecase.DrainSavedSessionsUseCase
	opts  options
}

func buildPipeline(cfg *config.Config, log *logger.Logger, opts []Option) (*pipeline, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}

	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.metrics == nil {
		o.metrics = port.NopPipelineMetrics{}
	}

	repo, err := filesystem.NewRepository(cfg.Storage.DataDir, filesystem.Options{
		Policy:     service.NewRotationPolicy(cfg.Storage.MaxFileBytes, cfg.Storage.UrgencyThreshold),
		Weights:    service.DefaultUrgencyWeights(),
		SyncWrites: cfg.Storage.SyncWrites,
	}, log)
	if err != nil {
		return nil, err
	}

	client, err := ingest.NewClient(ingest.Config{
		BaseURL:    cfg.Ingest.URL,
		KeyID:      cfg.Ingest.KeyID,
		Secret:     cfg.Ingest.Secret,
		AuthHeader: ingest.AuthHeaderMode(cfg.Ingest.AuthHeader),
		Timeout:    cfg.Ingest.Timeout,
		Gzip:       cfg.Ingest.Gzip,
		HTTPClient: o.httpClient,
	}, o.tokens, o.metrics, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create ingest client: %w", err)
	}
	if !client.HasCredentials() {
		log.Warn("Ingest credentials are not configured, entries will stay on disk")
	}

	send := usecase.NewSendSessionUseCase(client, o.publisher, o.archive, o.metrics, usecase.SendSessionConfig{
		MaxConcurrentSessions: int64(cfg.Scheduler.MaxConcurrentSessions),
		SubjectPrefix:         cfg.NATS.SubjectPrefix,
		ArchivePrefix:         cfg.S3.KeyPrefix,
	}, log)

	return &pipeline{
		repo:  repo,
		flush: usecase.NewFlushSessionUseCase(o.metrics, log),
		send:  send,
		drain: usecase.NewDrainSavedSessionsUseCase(repo, send, cfg.Scheduler.MaxConcurrentSessions, log),
		opts:  o,
	}, nil
}

// Agent owns the current session of the process.
type Agent struct {
	coordinator *coordinator.Coordinator
	log         *logger.Logger

	closeOnce sync.Once
	closeErr  error
}

// New creates the current session and saves its metadata. Nothing is sent
// until Start. A malformed key pair is reported here; a missing one is not.
func New(cfg *config.Config, log *logger.Logger, opts ...Option) (*Agent, error) {
	p, err := buildPipeline(cfg, log, opts)
	if err != nil {
		return nil, err
	}

	start := usecase.NewStartSessionUseCase(p.repo, p.opts.collector, log)
	sess, err := start.Execute(context.Background())
	if err != nil {
		return nil, err
	}

	scorer := service.NewUrgencyScorer(service.DefaultUrgencyWeights())
	coord := coordinator.New(sess, p.flush, p.send, p.drain, scorer, p.opts.metrics, coordinator.Config{
		SendInterval:         cfg.Scheduler.SendInterval,
		FlushThreshold:       cfg.Scheduler.FlushThreshold,
		EarlySendMinInterval: cfg.Scheduler.EarlySendMinInterval,
		UrgencyThreshold:     cfg.Storage.UrgencyThreshold,
		SendOnClose:          true,
	}, log)

	return &Agent{
		coordinator: coord,
		log:         log,
	}, nil
}

// SessionID returns the local id of the current session.
func (a *Agent) SessionID() string {
	return a.coordinator.SessionID()
}

// Start begins periodic sending and drains sessions of earlier runs.
func (a *Agent) Start(ctx context.Context) error {
	return a.coordinator.Start(ctx)
}

// Submit enqueues an entry. It never blocks on I/O.
func (a *Agent) Submit(entry entity.Entry) bool {
	return a.coordinator.Submit(entry)
}

// Log records a log entry with the caller's source location.
func (a *Agent) Log(level valueobject.LogLevel, message string) bool {
	entry, err := entity.NewLog(level, message, entity.CallerLocation(1))
	if err != nil {
		return false
	}
	return a.coordinator.Submit(entry)
}

// Event records a named event. attributes and metrics may be nil.
func (a *Agent) Event(name string, attributes map[string]string, metrics map[string]float64) bool {
	event, err := entity.NewEvent(name)
	if err != nil {
		return false
	}
	for k, v := range attributes {
		event = event.WithAttribute(k, v)
	}
	for k, v := range metrics {
		event = event.WithMetric(k, v)
	}
	return a.coordinator.Submit(event)
}

// Measure runs fn and records an event with its duration. fn's error is returned.
func (a *Agent) Measure(name string, fn func() error) error {
	event, err := entity.NewTimedEvent(name, fn)
	if event.Name != "" {
		a.coordinator.Submit(event)
	}
	return err
}

// OnSuspend persists buffered entries and pauses sending.
func (a *Agent) OnSuspend(ctx context.Context) error {
	return a.coordinator.OnSuspend(ctx)
}

// OnResume restarts sending.
func (a *Agent) OnResume() {
	a.coordinator.OnResume()
}

// Sync runs one flush and send cycle right away.
func (a *Agent) Sync(ctx context.Context) error {
	_, err := a.coordinator.RunOnce(ctx)
	return err
}

// Status returns the pipeline state for health endpoints.
func (a *Agent) Status() dto.AgentStatusDTO {
	snapshot := a.coordinator.Snapshot()

	status := dto.AgentStatusDTO{
		Status:          StatusOK,
		SessionID:       snapshot.SessionID,
		Uptime:          time.Since(snapshot.StartedAt).Round(time.Second).String(),
		LastError:       snapshot.LastError,
		QueueDepth:      snapshot.QueueDepth,
		PendingSessions: snapshot.PendingSessions,
	}

	switch {
	case snapshot.Suspended:
		status.Status = StatusSuspended
	case snapshot.LastError != "":
		status.Status = StatusDegraded
	}

	if !snapshot.LastRunAt.IsZero() {
		lastRunAt := snapshot.LastRunAt
		status.LastRunAt = &lastRunAt
	}

	if snapshot.LastReport != nil && snapshot.LastReport.Send != nil {
		send := snapshot.LastReport.Send
		status.LastReport = &dto.SendReportDTO{
			State:           string(send.State),
			Registered:      send.Registered,
			OutfilesSent:    send.OutfilesSent,
			EntriesSent:     send.EntriesSent,
			OutfilesPending: send.OutfilesPending,
		}
	}

	return status
}

// QueueDepth returns the number of entries buffered in memory.
func (a *Agent) QueueDepth() int {
	return a.coordinator.Snapshot().QueueDepth
}

// Close stops the background loop, flushes the queue and makes a last send
// attempt. Entries that were not acknowledged stay on disk for the next run.
func (a *Agent) Close(ctx context.Context) error {
	a.closeOnce.Do(func() {
		a.closeErr = a.coordinator.Close(ctx)
	})
	return a.closeErr
}

// DrainResult summarizes a DrainSaved run.
type DrainResult struct {
	Discovered int
	Drained    int
	Failed     int
	Skipped    int
}

// DrainSaved uploads every session found under the data directory and
// removes the drained ones without starting a new session.
func DrainSaved(ctx context.Context, cfg *config.Config, log *logger.Logger, opts ...Option) (*DrainResult, error) {
	p, err := buildPipeline(cfg, log, opts)
	if err != nil {
		return nil, err
	}

	report, err := p.drain.Execute(ctx, uuid.Nil)
	if err != nil {
		return nil, err
	}

	return &DrainResult{
		Discovered: report.Discovered,
		Drained:    report.Drained,
		Failed:     report.Failed,
		Skipped:    report.Skipped,
	}, nil
}
