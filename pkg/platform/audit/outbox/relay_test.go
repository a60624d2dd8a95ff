package outbox

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"

	audit "edms/pkg/platform/audit"
	"edms/pkg/platform/circuit"
)

type fakeSource struct {
	mu        sync.Mutex
	records   []audit.OutboxRecord
	published map[int64]bool
}

func (f *fakeSource) FetchUnpublished(_ context.Context, limit int) ([]audit.OutboxRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []audit.OutboxRecord
	for _, r := range f.records {
		if !f.published[r.ID] && len(out) < limit {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeSource) MarkPublished(_ context.Context, ids []int64, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range ids {
		f.published[id] = true
	}
	return nil
}

type fakeProducer struct {
	fail map[string]error
	sent []*kgo.Record
}

func (p *fakeProducer) ProduceSync(_ context.Context, rs ...*kgo.Record) kgo.ProduceResults {
	results := make(kgo.ProduceResults, 0, len(rs))
	for _, r := range rs {
		err := p.fail[string(r.Value)]
		if err == nil {
			p.sent = append(p.sent, r)
		}
		results = append(results, kgo.ProduceResult{Record: r, Err: err})
	}
	return results
}

func newSource() *fakeSource {
	return &fakeSource{
		records: []audit.OutboxRecord{
			{ID: 1, EntryID: "e1", DocumentID: "DOC-1", Action: audit.ActionDraftCreated, Payload: []byte("p1")},
			{ID: 2, EntryID: "e2", DocumentID: "DOC-1", Action: audit.ActionVersionCreated, Payload: []byte("p2")},
			{ID: 3, EntryID: "e3", DocumentID: "DOC-2", Action: audit.ActionDraftCreated, Payload: []byte("p3")},
		},
		published: map[int64]bool{},
	}
}

func TestFlushPublishesKeyedByDocument(t *testing.T) {
	source := newSource()
	producer := &fakeProducer{}
	relay := NewRelay(source, producer, "edms.audit")

	n, err := relay.Flush(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	require.Len(t, producer.sent, 3)
	assert.Equal(t, "DOC-1", string(producer.sent[0].Key))
	assert.Equal(t, "edms.audit", producer.sent[0].Topic)

	n, err = relay.Flush(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n, "nothing left to relay")
}

func TestFlushKeepsUnacknowledgedRows(t *testing.T) {
	source := newSource()
	producer := &fakeProducer{fail: map[string]error{"p2": errors.New("broker down")}}
	relay := NewRelay(source, producer, "edms.audit")

	n, err := relay.Flush(context.Background())
	require.Error(t, err)
	assert.Equal(t, 2, n)
	assert.False(t, source.published[2])

	producer.fail = nil
	n, err = relay.Flush(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.True(t, source.published[2])
}

func TestFlushSkipsWhileBreakerOpen(t *testing.T) {
	source := newSource()
	producer := &fakeProducer{fail: map[string]error{"p1": errors.New("x"), "p2": errors.New("x"), "p3": errors.New("x")}}
	breaker := circuit.New("test", circuit.WithFailureThreshold(1), circuit.WithCooldown(time.Hour))
	relay := NewRelay(source, producer, "edms.audit", WithBreaker(breaker))

	_, err := relay.Flush(context.Background())
	require.Error(t, err)
	assert.True(t, breaker.IsOpen())

	producer.fail = nil
	n, err := relay.Flush(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, producer.sent)
}
