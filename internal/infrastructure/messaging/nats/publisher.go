package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dreschagin/session-telemetry/internal/application/dto"
	"github.com/dreschagin/session-telemetry/pkg/logger"
	"github.com/nats-io/nats.go"
)

const (
	streamName     = "SESSION_TELEMETRY"
	streamMaxAge   = 24 * time.Hour
	flushTimeout   = 5 * time.Second
	dedupeWindow   = 10 * time.Minute
	maxPendingAcks = 256
)

// IngestionPublisher implements port.EventPublisher on NATS JetStream.
// Notifications go to "<prefix>.session.*" subjects captured by one stream.
type IngestionPublisher struct {
	nc     *nats.Conn
	js     nats.JetStreamContext
	prefix string
	logger *logger.Logger
}

// NewIngestionPublisher connects to NATS and makes sure the notification stream exists.
func NewIngestionPublisher(natsURL, subjectPrefix string, log *logger.Logger) (*IngestionPublisher, error) {
	nc, err := nats.Connect(natsURL,
		nats.Name("session-telemetry"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(10),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				log.Warn("NATS disconnected", "error", err.Error())
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("NATS reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := nc.JetStream(nats.PublishAsyncMaxPending(maxPendingAcks))
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to get JetStream context: %w", err)
	}

	p := &IngestionPublisher{
		nc:     nc,
		js:     js,
		prefix: strings.TrimSuffix(subjectPrefix, "."),
		logger: log,
	}

	if err := p.ensureStream(); err != nil {
		nc.Close()
		return nil, err
	}

	log.Info("Connected to NATS", "url", natsURL, "stream", streamName)
	return p, nil
}

func (p *IngestionPublisher) ensureStream() error {
	subjects := []string{p.prefix + ".session.>"}

	_, err := p.js.StreamInfo(streamName)
	if errors.Is(err, nats.ErrStreamNotFound) {
		_, err = p.js.AddStream(&nats.StreamConfig{
			Name:       streamName,
			Subjects:   subjects,
			MaxAge:     streamMaxAge,
			Duplicates: dedupeWindow,
		})
		if err != nil {
			return fmt.Errorf("failed to create stream %s: %w", streamName, err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to look up stream %s: %w", streamName, err)
	}
	return nil
}

// PublishEvent publishes asynchronously; delivery failures surface in the logs.
func (p *IngestionPublisher) PublishEvent(ctx context.Context, subject string, event interface{}) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	var opts []nats.PubOpt
	if id := messageID(subject, event); id != "" {
		opts = append(opts, nats.MsgId(id))
	}

	if _, err := p.js.PublishAsync(subject, data, opts...); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	p.logger.Debug("Ingestion event published",
		"subject", subject,
		"size", len(data),
	)
	return nil
}

// messageID lets JetStream drop duplicates when an outfile is acknowledged twice.
func messageID(subject string, event interface{}) string {
	ev, ok := event.(dto.IngestionEventDTO)
	if !ok || ev.Error != "" {
		return ""
	}
	return subject + ":" + ev.SessionID + ":" + ev.Outfile
}

// Close waits for pending acks and closes the connection.
func (p *IngestionPublisher) Close() error {
	if p.nc == nil {
		return nil
	}

	select {
	case <-p.js.PublishAsyncComplete():
	case <-time.After(flushTimeout):
		p.logger.Warn("NATS publish acks still pending at shutdown", "pending", p.js.PublishAsyncPending())
	}

	p.logger.Info("Closing NATS connection")
	p.nc.Close()
	return nil
}
