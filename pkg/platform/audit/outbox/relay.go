// Package outbox relays committed audit entries from the database outbox to
// the Kafka audit stream.
//
// Records are keyed by document id so a document's entries land on one
// partition. A row is marked published only after the broker acknowledged it;
// rows that failed stay in the outbox and are retried on the next flush, so
// consumers must order by the entry sequence rather than by arrival.
package outbox

import (
	"context"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	audit "edms/pkg/platform/audit"
	"edms/pkg/platform/circuit"
	"edms/pkg/requestcontext"
)

// Source is the outbox table.
type Source interface {
	FetchUnpublished(ctx context.Context, limit int) ([]audit.OutboxRecord, error)
	MarkPublished(ctx context.Context, ids []int64, at time.Time) error
}

// Producer is the subset of *kgo.Client the relay uses.
type Producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
}

type Relay struct {
	source    Source
	producer  Producer
	topic     string
	batchSize int
	interval  time.Duration
	breaker   *circuit.Breaker
	logger    *slog.Logger
	metrics   *Metrics
}

type Option func(*Relay)

func WithBatchSize(n int) Option {
	return func(r *Relay) {
		if n > 0 {
			r.batchSize = n
		}
	}
}

func WithInterval(d time.Duration) Option {
	return func(r *Relay) {
		if d > 0 {
			r.interval = d
		}
	}
}

func WithBreaker(b *circuit.Breaker) Option {
	return func(r *Relay) {
		r.breaker = b
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(r *Relay) {
		r.logger = logger
	}
}

func WithMetrics(m *Metrics) Option {
	return func(r *Relay) {
		r.metrics = m
	}
}

func NewRelay(source Source, producer Producer, topic string, opts ...Option) *Relay {
	r := &Relay{
		source:    source,
		producer:  producer,
		topic:     topic,
		batchSize: 100,
		interval:  time.Second,
		breaker:   circuit.New("audit-kafka"),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run flushes the outbox every interval until ctx is done.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := r.Flush(ctx); err != nil {
				r.logger.WarnContext(ctx, "audit outbox flush failed", "error", err)
			}
		}
	}
}

// Flush relays one batch and returns how many rows were published.
func (r *Relay) Flush(ctx context.Context) (int, error) {
	if !r.breaker.Allow() {
		return 0, nil
	}

	pending, err := r.source.FetchUnpublished(ctx, r.batchSize)
	if err != nil {
		return 0, err
	}
	r.metrics.setPending(len(pending))
	if len(pending) == 0 {
		return 0, nil
	}

	records := make([]*kgo.Record, len(pending))
	byRecord := make(map[*kgo.Record]int64, len(pending))
	for i, p := range pending {
		rec := &kgo.Record{
			Topic: r.topic,
			Key:   []byte(p.DocumentID),
			Value: p.Payload,
			Headers: []kgo.RecordHeader{
				{Key: "action", Value: []byte(p.Action)},
				{Key: "entry_id", Value: []byte(p.EntryID)},
			},
		}
		records[i] = rec
		byRecord[rec] = p.ID
	}

	results := r.producer.ProduceSync(ctx, records...)
	published := make([]int64, 0, len(results))
	for _, res := range results {
		if res.Err != nil {
			continue
		}
		if id, ok := byRecord[res.Record]; ok {
			published = append(published, id)
		}
	}

	if err := results.FirstErr(); err != nil {
		if _, change := r.breaker.RecordFailure(); change.Opened {
			r.logger.ErrorContext(ctx, "audit relay circuit opened", "topic", r.topic, "error", err)
		}
		r.metrics.incFailures(len(pending) - len(published))
	} else if _, change := r.breaker.RecordSuccess(); change.Closed {
		r.logger.InfoContext(ctx, "audit relay circuit closed", "topic", r.topic)
	}

	if len(published) > 0 {
		if err := r.source.MarkPublished(ctx, published, requestcontext.Now(ctx)); err != nil {
			return 0, err
		}
		r.metrics.incPublished(len(published))
	}
	return len(published), results.FirstErr()
}
