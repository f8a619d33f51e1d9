// Package audit publishes parity reports and posterior estimates to the
// compliance Kafka topics. Events are buffered on a channel and written by
// a single goroutine so the hot retrieval path never blocks on the broker.
package audit

import (
	"context"
	"log/slog"

	"github.com/esglens/retrieval-engine/internal/confidence"
	"github.com/esglens/retrieval-engine/internal/parity"
	"github.com/esglens/retrieval-engine/pkg/kafka"
	"github.com/esglens/retrieval-engine/pkg/logger"
	"github.com/esglens/retrieval-engine/pkg/metrics"
	"github.com/esglens/retrieval-engine/pkg/resilience"
)

type event struct {
	producer *kafka.Producer
	key      string
	value    any
}

// Publisher forwards audit events to Kafka asynchronously.
type Publisher struct {
	parityProducer    *kafka.Producer
	posteriorProducer *kafka.Producer
	eventCh           chan event
	done              chan struct{}
	logger            *slog.Logger
	metrics           *metrics.Metrics
}

// NewPublisher creates a Publisher writing to the two audit topics. m may
// be nil.
func NewPublisher(parityProducer, posteriorProducer *kafka.Producer, bufferSize int, m *metrics.Metrics) *Publisher {
	if bufferSize <= 0 {
		bufferSize = 1024
	}
	return &Publisher{
		parityProducer:    parityProducer,
		posteriorProducer: posteriorProducer,
		eventCh:           make(chan event, bufferSize),
		done:              make(chan struct{}),
		logger:            logger.WithComponent("audit-publisher"),
		metrics:           m,
	}
}

// Start launches the publishing goroutine. It drains remaining buffered
// events when ctx is cancelled.
func (p *Publisher) Start(ctx context.Context) {
	go func() {
		defer close(p.done)
		for {
			select {
			case ev, ok := <-p.eventCh:
				if !ok {
					return
				}
				p.publish(ctx, ev)
			case <-ctx.Done():
				p.drainRemaining()
				return
			}
		}
	}()
	p.logger.Info("audit publisher started", "buffer_size", cap(p.eventCh))
}

// ReportParity enqueues a parity report, keyed by query so reports for one
// query land on one partition. Drops the event if the buffer is full.
func (p *Publisher) ReportParity(report parity.Report) {
	p.enqueue(event{producer: p.parityProducer, key: report.Query, value: report})
}

// posteriorEvent is the wire shape for posterior publications.
type posteriorEvent struct {
	Theme string `json:"theme"`
	confidence.PosteriorEstimate
}

// ReportPosterior enqueues a posterior estimate for a theme.
func (p *Publisher) ReportPosterior(theme string, estimate confidence.PosteriorEstimate) {
	p.enqueue(event{
		producer: p.posteriorProducer,
		key:      theme,
		value:    posteriorEvent{Theme: theme, PosteriorEstimate: estimate},
	})
}

// Close stops accepting events and waits for the buffer to flush.
func (p *Publisher) Close() {
	close(p.eventCh)
	<-p.done
}

func (p *Publisher) enqueue(ev event) {
	select {
	case p.eventCh <- ev:
	default:
		p.logger.Warn("audit event dropped (buffer full)", "key", ev.key)
		p.count("dropped")
	}
}

func (p *Publisher) publish(ctx context.Context, ev event) {
	err := resilience.Retry(ctx, "audit-publish", resilience.RetryConfig{}, func() error {
		return ev.producer.Publish(ctx, kafka.Event{Key: ev.key, Value: ev.value})
	})
	if err != nil {
		p.logger.Error("failed to publish audit event", "key", ev.key, "error", err)
		p.count("error")
		return
	}
	p.count("ok")
}

func (p *Publisher) drainRemaining() {
	for {
		select {
		case ev, ok := <-p.eventCh:
			if !ok {
				return
			}
			p.publish(context.Background(), ev)
		default:
			return
		}
	}
}

func (p *Publisher) count(status string) {
	if p.metrics != nil {
		p.metrics.AuditPublishTotal.WithLabelValues(status).Inc()
	}
}
