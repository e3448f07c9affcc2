// Package memory is an in-process registrations store used for tests and local runs.
package memory

import (
	"context"
	"sort"
	"sync"

	"outbreak/internal/registration/models"
	"outbreak/internal/registration/store"
	dErrors "outbreak/pkg/domain-errors"
	"outbreak/pkg/platform/sentinel"
)

// InMemory serializes transactions behind a single lock. Transaction id
// uniqueness spans keys, so per-key sharding would not be enough.
type InMemory struct {
	mu    sync.RWMutex
	txMu  sync.Mutex
	docs  map[string]models.Registration
	txnID map[string]string
}

func NewInMemory() *InMemory {
	return &InMemory{
		docs:  make(map[string]models.Registration),
		txnID: make(map[string]string),
	}
}

func (s *InMemory) FindByKey(_ context.Context, key string) (*models.Registration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	reg, ok := s.docs[key]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &reg, nil
}

func (s *InMemory) ExistsByField(_ context.Context, field models.Field, value string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if field == models.FieldTransactionID {
		_, ok := s.txnID[value]
		return ok, nil
	}
	for _, reg := range s.docs {
		switch field {
		case models.FieldTeamName:
			if reg.TeamName == value {
				return true, nil
			}
		case models.FieldLeaderRegNo:
			if reg.TeamLeader.RegNo == value {
				return true, nil
			}
		}
	}
	return false, nil
}

func (s *InMemory) List(_ context.Context) ([]*models.Registration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Registration, 0, len(s.docs))
	for _, reg := range s.docs {
		out = append(out, &reg)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].SubmittedAt.Equal(out[j].SubmittedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].SubmittedAt.After(out[j].SubmittedAt)
	})
	return out, nil
}

func (s *InMemory) Ping(context.Context) error {
	return nil
}

// RunInTx holds the transaction lock for the whole of fn and applies buffered
// writes only when fn succeeds.
func (s *InMemory) RunInTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	ctx, cancel := store.WithTxDeadline(ctx)
	defer cancel()

	s.txMu.Lock()
	defer s.txMu.Unlock()

	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	tx := &memoryTx{store: s}
	if err := fn(ctx, tx); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, reg := range tx.pending {
		if _, ok := s.docs[reg.ID]; ok {
			return store.ErrKeyTaken
		}
		if _, ok := s.txnID[reg.Payment.TransactionID]; ok {
			return store.ErrTransactionIDTaken
		}
	}
	for _, reg := range tx.pending {
		s.docs[reg.ID] = reg
		s.txnID[reg.Payment.TransactionID] = reg.ID
	}
	return nil
}

type memoryTx struct {
	store   *InMemory
	pending []models.Registration
}

func (t *memoryTx) Get(ctx context.Context, key string) (*models.Registration, error) {
	return t.store.FindByKey(ctx, key)
}

func (t *memoryTx) TransactionIDExists(ctx context.Context, transactionID string) (bool, error) {
	return t.store.ExistsByField(ctx, models.FieldTransactionID, transactionID)
}

func (t *memoryTx) Create(_ context.Context, reg *models.Registration) error {
	t.pending = append(t.pending, *reg)
	return nil
}
