package cloudwatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs/types"

	applicationPort "github.com/dreschagin/session-telemetry/internal/application/port"
)

const (
	// CloudWatch Logs limits
	maxLogEventsPerRequest = 10000
	maxLogBatchSize        = 1048576 // 1 MB
	maxLogEventSize        = 256000  // 256 KB
	logEventOverhead       = 26
)

// logsAPI is the part of the CloudWatch Logs client the publisher uses.
type logsAPI interface {
	PutLogEvents(ctx context.Context, params *cloudwatchlogs.PutLogEventsInput, optFns ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.PutLogEventsOutput, error)
	CreateLogGroup(ctx context.Context, params *cloudwatchlogs.CreateLogGroupInput, optFns ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.CreateLogGroupOutput, error)
	CreateLogStream(ctx context.Context, params *cloudwatchlogs.CreateLogStreamInput, optFns ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.CreateLogStreamOutput, error)
}

// LogsPublisherConfig holds configuration for forwarding agent diagnostics.
type LogsPublisherConfig struct {
	AWS           AWSConfig
	LogGroupName  string
	LogStreamName string
	BatchSize     int // lines that wake the flush loop early
	MaxBuffered   int // oldest lines are dropped beyond this
	FlushInterval time.Duration
	AutoCreate    bool
}

// LogsPublisher forwards the agent's own log lines to CloudWatch Logs.
// Publish only buffers, so it is safe to call from the logger on any goroutine;
// all network I/O happens on the flush loop.
type LogsPublisher struct {
	client        logsAPI
	logGroupName  string
	logStreamName string

	mu          sync.Mutex
	buffer      []applicationPort.LogEntry
	batchSize   int
	maxBuffered int
	dropped     atomic.Int64

	sendMu        sync.Mutex
	sequenceToken *string

	wakeCh   chan struct{}
	stopCh   chan struct{}
	interval time.Duration
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewLogsPublisher creates the publisher and starts its flush loop.
func NewLogsPublisher(ctx context.Context, cfg LogsPublisherConfig) (*LogsPublisher, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	awsCfg, err := buildAWSConfig(ctx, cfg.AWS)
	if err != nil {
		return nil, fmt.Errorf("failed to build AWS config: %w", err)
	}

	p := newLogsPublisher(cloudwatchlogs.NewFromConfig(awsCfg), cfg)

	if cfg.AutoCreate {
		if err := p.ensureLogGroupAndStream(ctx); err != nil {
			return nil, fmt.Errorf("failed to create log group/stream: %w", err)
		}
	}

	p.start()
	return p, nil
}

func (cfg *LogsPublisherConfig) validate() error {
	if cfg.LogGroupName == "" {
		return fmt.Errorf("log group name is required")
	}
	if cfg.LogStreamName == "" {
		return fmt.Errorf("log stream name is required")
	}
	if cfg.AWS.Region == "" {
		return fmt.Errorf("region is required")
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.MaxBuffered < cfg.BatchSize {
		cfg.MaxBuffered = 20 * cfg.BatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 5 * time.Second
	}
	return nil
}

func newLogsPublisher(client logsAPI, cfg LogsPublisherConfig) *LogsPublisher {
	return &LogsPublisher{
		client:        client,
		logGroupName:  cfg.LogGroupName,
		logStreamName: cfg.LogStreamName,
		batchSize:     cfg.BatchSize,
		maxBuffered:   cfg.MaxBuffered,
		wakeCh:        make(chan struct{}, 1),
		stopCh:        make(chan struct{}),
		interval:      cfg.FlushInterval,
	}
}

func (p *LogsPublisher) start() {
	p.wg.Add(1)
	go p.flushLoop()
}

// Publish buffers one line and never blocks on the network.
func (p *LogsPublisher) Publish(ctx context.Context, entry applicationPort.LogEntry) error {
	return p.PublishBatch(ctx, []applicationPort.LogEntry{entry})
}

// PublishBatch buffers several lines and never blocks on the network.
func (p *LogsPublisher) PublishBatch(ctx context.Context, entries []applicationPort.LogEntry) error {
	if len(entries) == 0 {
		return nil
	}

	p.mu.Lock()
	p.buffer = append(p.buffer, entries...)
	if overflow := len(p.buffer) - p.maxBuffered; overflow > 0 {
		p.buffer = append(p.buffer[:0], p.buffer[overflow:]...)
		p.dropped.Add(int64(overflow))
	}
	full := len(p.buffer) >= p.batchSize
	p.mu.Unlock()

	if full {
		select {
		case p.wakeCh <- struct{}{}:
		default:
		}
	}
	return nil
}

// Dropped returns how many lines were discarded because the buffer was full.
func (p *LogsPublisher) Dropped() int64 {
	return p.dropped.Load()
}

// Flush sends everything buffered so far. Lines that fail to send are put back.
func (p *LogsPublisher) Flush(ctx context.Context) error {
	p.mu.Lock()
	pending := p.buffer
	p.buffer = nil
	p.mu.Unlock()

	if len(pending) == 0 {
		return nil
	}

	if err := p.send(ctx, pending); err != nil {
		p.mu.Lock()
		p.buffer = append(pending, p.buffer...)
		p.mu.Unlock()
		return err
	}
	return nil
}

// Close stops the flush loop and sends what is left.
func (p *LogsPublisher) Close(ctx context.Context) error {
	p.stopOnce.Do(func() {
		close(p.stopCh)
	})
	p.wg.Wait()

	return p.Flush(ctx)
}

func (p *LogsPublisher) flushLoop() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
		case <-p.wakeCh:
		case <-p.stopCh:
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
		// Ошибка не логируется: логгер сам пишет в этот publisher
		_ = p.Flush(ctx)
		cancel()
	}
}

func (p *LogsPublisher) send(ctx context.Context, entries []applicationPort.LogEntry) error {
	p.sendMu.Lock()
	defer p.sendMu.Unlock()

	// CloudWatch Logs требует хронологический порядок внутри запроса
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Timestamp.Before(entries[j].Timestamp)
	})

	events := make([]types.InputLogEvent, 0, len(entries))
	for _, entry := range entries {
		event, err := convertToLogEvent(entry)
		if err != nil {
			continue
		}
		events = append(events, event)
	}

	for _, chunk := range chunkLogEvents(events) {
		if err := p.putWithRetry(ctx, chunk); err != nil {
			return fmt.Errorf("failed to publish log events: %w", err)
		}
	}
	return nil
}

// chunkLogEvents splits events by the per-request count and byte limits.
func chunkLogEvents(events []types.InputLogEvent) [][]types.InputLogEvent {
	var chunks [][]types.InputLogEvent
	start, size := 0, 0

	for i, event := range events {
		eventSize := len(aws.ToString(event.Message)) + logEventOverhead
		if i > start && (i-start >= maxLogEventsPerRequest || size+eventSize > maxLogBatchSize) {
			chunks = append(chunks, events[start:i])
			start, size = i, 0
		}
		size += eventSize
	}
	if start < len(events) {
		chunks = append(chunks, events[start:])
	}
	return chunks
}

func (p *LogsPublisher) putWithRetry(ctx context.Context, events []types.InputLogEvent) error {
	return withRetry(ctx, func() error {
		output, err := p.client.PutLogEvents(ctx, &cloudwatchlogs.PutLogEventsInput{
			LogGroupName:  aws.String(p.logGroupName),
			LogStreamName: aws.String(p.logStreamName),
			LogEvents:     events,
			SequenceToken: p.sequenceToken,
		})
		if err != nil {
			return err
		}
		p.sequenceToken = output.NextSequenceToken
		return nil
	}, func(err error) bool {
		var invalidSeqErr *types.InvalidSequenceTokenException
		if errors.As(err, &invalidSeqErr) {
			p.sequenceToken = invalidSeqErr.ExpectedSequenceToken
			return true
		}
		return false
	})
}

// convertToLogEvent renders a diagnostic line as structured JSON.
func convertToLogEvent(entry applicationPort.LogEntry) (types.InputLogEvent, error) {
	logData := map[string]interface{}{
		"timestamp": entry.Timestamp.Format(time.RFC3339Nano),
		"level":     string(entry.Level),
		"message":   entry.Message,
	}
	if len(entry.Fields) > 0 {
		logData["fields"] = entry.Fields
	}

	messageJSON, err := json.Marshal(logData)
	if err != nil {
		return types.InputLogEvent{}, fmt.Errorf("failed to marshal log entry: %w", err)
	}

	message := string(messageJSON)
	if len(message) > maxLogEventSize {
		message = message[:maxLogEventSize-3] + "..."
	}

	return types.InputLogEvent{
		Message:   aws.String(message),
		Timestamp: aws.Int64(entry.Timestamp.UnixMilli()),
	}, nil
}

func (p *LogsPublisher) ensureLogGroupAndStream(ctx context.Context) error {
	var alreadyExists *types.ResourceAlreadyExistsException

	_, err := p.client.CreateLogGroup(ctx, &cloudwatchlogs.CreateLogGroupInput{
		LogGroupName: aws.String(p.logGroupName),
	})
	if err != nil && !errors.As(err, &alreadyExists) {
		return fmt.Errorf("failed to create log group: %w", err)
	}

	_, err = p.client.CreateLogStream(ctx, &cloudwatchlogs.CreateLogStreamInput{
		LogGroupName:  aws.String(p.logGroupName),
		LogStreamName: aws.String(p.logStreamName),
	})
	if err != nil && !errors.As(err, &alreadyExists) {
		return fmt.Errorf("failed to create log stream: %w", err)
	}

	return nil
}
