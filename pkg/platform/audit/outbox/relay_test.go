package outbox

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	audit "outbreak/pkg/platform/audit"
	"outbreak/pkg/platform/audit/store/memory"
)

type fakeSource struct {
	pending   []audit.Event
	published []string
}

func (f *fakeSource) Pending(_ context.Context, limit int) ([]audit.Event, error) {
	var out []audit.Event
	for _, e := range f.pending {
		if len(out) == limit {
			break
		}
		if !f.isPublished(e.ID) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeSource) MarkPublished(_ context.Context, id string) error {
	f.published = append(f.published, id)
	return nil
}

func (f *fakeSource) isPublished(id string) bool {
	for _, p := range f.published {
		if p == id {
			return true
		}
	}
	return false
}

type failingSink struct{ after int }

func (f *failingSink) Append(context.Context, audit.Event) error {
	if f.after == 0 {
		return errors.New("broker down")
	}
	f.after--
	return nil
}

func TestRelay_FlushForwardsInOrder(t *testing.T) {
	source := &fakeSource{pending: []audit.Event{{ID: "1"}, {ID: "2"}, {ID: "3"}}}
	sink := memory.NewInMemoryStore()

	n, err := NewRelay(source, sink, WithBatchSize(2)).Flush(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"1", "2"}, source.published)

	n, err = NewRelay(source, sink, WithBatchSize(2)).Flush(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	events, err := sink.ListRecent(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, events, 3)
}

func TestRelay_StopsAtFirstSinkFailure(t *testing.T) {
	source := &fakeSource{pending: []audit.Event{{ID: "1"}, {ID: "2"}, {ID: "3"}}}

	n, err := NewRelay(source, &failingSink{after: 1}).Flush(context.Background())
	require.Error(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"1"}, source.published)
}

func TestRelay_RunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	relay := NewRelay(&fakeSource{}, memory.NewInMemoryStore(), WithInterval(10*time.Millisecond))

	done := make(chan error, 1)
	go func() { done <- relay.Run(ctx) }()
	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("relay did not stop")
	}
}
