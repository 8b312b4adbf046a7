package cloudwatch

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	applicationPort "github.com/dreschagin/session-telemetry/internal/application/port"
)

const (
	// CloudWatch limits
	maxMetricsPerRequest = 1000
)

// metricsAPI is the part of the CloudWatch client the publisher uses.
type metricsAPI interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// MetricsPublisherConfig holds configuration for pipeline metrics.
type MetricsPublisherConfig struct {
	AWS               AWSConfig
	Namespace         string            // e.g. "SessionTelemetry"
	DefaultDimensions map[string]string // added to every datum
	FlushInterval     time.Duration
	StorageResolution int32 // 1 or 60 seconds
}

type counterKey struct {
	name      string
	dimension string
	value     string
}

// MetricsPublisher implements port.PipelineMetrics by aggregating counters in
// memory and sending them to CloudWatch on a fixed interval.
type MetricsPublisher struct {
	client            metricsAPI
	namespace         string
	defaultDimensions []types.Dimension
	storageResolution int32

	mu        sync.Mutex
	counters  map[counterKey]float64
	durations []float64 // send cycle durations in ms

	interval time.Duration
	stopCh   chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

var _ applicationPort.PipelineMetrics = (*MetricsPublisher)(nil)

// NewMetricsPublisher creates the publisher and starts its flush loop.
func NewMetricsPublisher(ctx context.Context, cfg MetricsPublisherConfig) (*MetricsPublisher, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	awsCfg, err := buildAWSConfig(ctx, cfg.AWS)
	if err != nil {
		return nil, fmt.Errorf("failed to build AWS config: %w", err)
	}

	p := newMetricsPublisher(cloudwatch.NewFromConfig(awsCfg), cfg)
	p.wg.Add(1)
	go p.flushLoop()

	return p, nil
}

func (cfg *MetricsPublisherConfig) validate() error {
	if cfg.Namespace == "" {
		return fmt.Errorf("namespace is required")
	}
	if cfg.AWS.Region == "" {
		return fmt.Errorf("region is required")
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = time.Minute
	}
	if cfg.StorageResolution != 1 && cfg.StorageResolution != 60 {
		cfg.StorageResolution = 60
	}
	return nil
}

func newMetricsPublisher(client metricsAPI, cfg MetricsPublisherConfig) *MetricsPublisher {
	keys := make([]string, 0, len(cfg.DefaultDimensions))
	for key := range cfg.DefaultDimensions {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	dimensions := make([]types.Dimension, 0, len(keys))
	for _, key := range keys {
		dimensions = append(dimensions, types.Dimension{
			Name:  aws.String(key),
			Value: aws.String(cfg.DefaultDimensions[key]),
		})
	}

	return &MetricsPublisher{
		client:            client,
		namespace:         cfg.Namespace,
		defaultDimensions: dimensions,
		storageResolution: cfg.StorageResolution,
		counters:          make(map[counterKey]float64),
		interval:          cfg.FlushInterval,
		stopCh:            make(chan struct{}),
	}
}

func (p *MetricsPublisher) EntriesSubmitted(n int) {
	p.add(counterKey{name: "EntriesSubmitted"}, float64(n))
}

func (p *MetricsPublisher) EntriesDropped(reason string, n int) {
	p.add(counterKey{name: "EntriesDropped", dimension: "Reason", value: reason}, float64(n))
}

func (p *MetricsPublisher) EntriesFlushed(n int) {
	p.add(counterKey{name: "EntriesFlushed"}, float64(n))
}

func (p *MetricsPublisher) OutfileSealed(reason string) {
	p.add(counterKey{name: "OutfilesSealed", dimension: "Reason", value: reason}, 1)
}

func (p *MetricsPublisher) BatchUploaded(entries int) {
	p.add(counterKey{name: "BatchesUploaded"}, 1)
	p.add(counterKey{name: "EntriesUploaded"}, float64(entries))
}

func (p *MetricsPublisher) UploadFailed(operation string) {
	p.add(counterKey{name: "UploadFailures", dimension: "Operation", value: operation}, 1)
}

func (p *MetricsPublisher) SessionRegistered() {
	p.add(counterKey{name: "SessionsRegistered"}, 1)
}

func (p *MetricsPublisher) AuthRequested() {
	p.add(counterKey{name: "AuthRequests"}, 1)
}

func (p *MetricsPublisher) SendCycleObserved(duration time.Duration, err error) {
	result := "success"
	if err != nil {
		result = "failure"
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.counters[counterKey{name: "SendCycles", dimension: "Result", value: result}]++
	p.durations = append(p.durations, float64(duration)/float64(time.Millisecond))
}

func (p *MetricsPublisher) add(key counterKey, value float64) {
	if value <= 0 {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.counters[key] += value
}

// Flush sends the counters accumulated since the last flush.
// On failure they are merged back and retried on the next flush.
func (p *MetricsPublisher) Flush(ctx context.Context) error {
	p.mu.Lock()
	counters := p.counters
	durations := p.durations
	p.counters = make(map[counterKey]float64)
	p.durations = nil
	p.mu.Unlock()

	data := p.buildData(counters, durations, time.Now())
	if len(data) == 0 {
		return nil
	}

	for i := 0; i < len(data); i += maxMetricsPerRequest {
		end := i + maxMetricsPerRequest
		if end > len(data) {
			end = len(data)
		}

		if err := p.publishWithRetry(ctx, data[i:end]); err != nil {
			p.restore(counters, durations)
			return fmt.Errorf("failed to publish metrics: %w", err)
		}
	}

	return nil
}

// Close stops the flush loop and sends what is left.
func (p *MetricsPublisher) Close(ctx context.Context) error {
	p.stopOnce.Do(func() {
		close(p.stopCh)
	})
	p.wg.Wait()

	return p.Flush(ctx)
}

func (p *MetricsPublisher) flushLoop() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
			_ = p.Flush(ctx)
			cancel()
		case <-p.stopCh:
			return
		}
	}
}

func (p *MetricsPublisher) restore(counters map[counterKey]float64, durations []float64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for key, value := range counters {
		p.counters[key] += value
	}
	p.durations = append(durations, p.durations...)
}

func (p *MetricsPublisher) buildData(counters map[counterKey]float64, durations []float64, at time.Time) []types.MetricDatum {
	keys := make([]counterKey, 0, len(counters))
	for key := range counters {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].name != keys[j].name {
			return keys[i].name < keys[j].name
		}
		return keys[i].value < keys[j].value
	})

	data := make([]types.MetricDatum, 0, len(keys)+1)
	for _, key := range keys {
		data = append(data, p.datum(key, at, func(d *types.MetricDatum) {
			d.Value = aws.Float64(counters[key])
			d.Unit = types.StandardUnitCount
		}))
	}

	if len(durations) > 0 {
		stats := &types.StatisticSet{
			SampleCount: aws.Float64(float64(len(durations))),
			Minimum:     aws.Float64(durations[0]),
			Maximum:     aws.Float64(durations[0]),
			Sum:         aws.Float64(0),
		}
		for _, ms := range durations {
			*stats.Sum += ms
			if ms < *stats.Minimum {
				stats.Minimum = aws.Float64(ms)
			}
			if ms > *stats.Maximum {
				stats.Maximum = aws.Float64(ms)
			}
		}

		data = append(data, p.datum(counterKey{name: "SendCycleDuration"}, at, func(d *types.MetricDatum) {
			d.StatisticValues = stats
			d.Unit = types.StandardUnitMilliseconds
		}))
	}

	return data
}

func (p *MetricsPublisher) datum(key counterKey, at time.Time, fill func(*types.MetricDatum)) types.MetricDatum {
	dimensions := append([]types.Dimension(nil), p.defaultDimensions...)
	if key.dimension != "" {
		dimensions = append(dimensions, types.Dimension{
			Name:  aws.String(key.dimension),
			Value: aws.String(key.value),
		})
	}

	datum := types.MetricDatum{
		MetricName:        aws.String(key.name),
		Timestamp:         aws.Time(at),
		Dimensions:        dimensions,
		StorageResolution: aws.Int32(p.storageResolution),
	}
	fill(&datum)
	return datum
}

func (p *MetricsPublisher) publishWithRetry(ctx context.Context, data []types.MetricDatum) error {
	return withRetry(ctx, func() error {
		_, err := p.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
			Namespace:  aws.String(p.namespace),
			MetricData: data,
		})
		return err
	}, nil)
}
