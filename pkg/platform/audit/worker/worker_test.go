package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	audit "outbreak/pkg/platform/audit"
	"outbreak/pkg/platform/audit/store/memory"
)

type flakyStore struct {
	mu     sync.Mutex
	calls  int
	events []audit.Event
}

func (f *flakyStore) Append(_ context.Context, e audit.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls == 1 {
		return errors.New("boom")
	}
	f.events = append(f.events, e)
	return nil
}

func TestWorker_DrainsUntilInboxClosed(t *testing.T) {
	store := memory.NewInMemoryStore()
	inbox := make(chan audit.Event, 3)
	inbox <- audit.Event{Action: audit.ActionRegistrationCommitted, Subject: "A"}
	inbox <- audit.Event{Action: audit.ActionRegistrationCommitted, Subject: "B"}
	close(inbox)

	err := NewWorker(store, inbox, nil).Run(context.Background())
	require.NoError(t, err)

	events, err := store.ListRecent(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, events, 2)
}

func TestWorker_ContinuesAfterAppendError(t *testing.T) {
	store := &flakyStore{}
	inbox := make(chan audit.Event, 2)
	inbox <- audit.Event{Subject: "A"}
	inbox <- audit.Event{Subject: "B"}
	close(inbox)

	require.NoError(t, NewWorker(store, inbox, nil).Run(context.Background()))
	require.Len(t, store.events, 1)
	assert.Equal(t, "B", store.events[0].Subject)
}

func TestWorker_StopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- NewWorker(memory.NewInMemoryStore(), make(chan audit.Event), nil).Run(ctx)
	}()
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
}
