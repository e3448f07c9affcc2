// Package store defines the persistence contract for committed registrations.
// Backends live in subpackages: memory, postgres, mongo and redis.
package store

import (
	"context"
	"fmt"
	"time"

	"outbreak/internal/registration/models"
	"outbreak/pkg/platform/sentinel"
)

var (
	// ErrKeyTaken is returned by Tx.Create when a document already exists at the key.
	ErrKeyTaken = fmt.Errorf("registration key: %w", sentinel.ErrAlreadyUsed)
	// ErrTransactionIDTaken is returned by Tx.Create when the transaction id is already recorded.
	ErrTransactionIDTaken = fmt.Errorf("transaction id: %w", sentinel.ErrAlreadyUsed)
)

// DefaultTxTimeout bounds a transaction whose context has no deadline.
const DefaultTxTimeout = 5 * time.Second

// Collection is the name of the registrations collection, table or key prefix.
const Collection = "registrations"

// Tx is the view of the store inside one atomic unit. Reads made through it
// are part of the unit: a concurrent commit that changes what was read makes
// this unit fail or retry instead of committing.
type Tx interface {
	// Get returns the document at key or sentinel.ErrNotFound.
	Get(ctx context.Context, key string) (*models.Registration, error)
	TransactionIDExists(ctx context.Context, transactionID string) (bool, error)
	// Create buffers the document for writing at reg.ID when the unit commits.
	Create(ctx context.Context, reg *models.Registration) error
}

// Store is a registrations collection keyed by models.RegistrationKey.
type Store interface {
	// FindByKey returns the document at key or sentinel.ErrNotFound.
	FindByKey(ctx context.Context, key string) (*models.Registration, error)
	// ExistsByField reports whether any document has value in the given field
	// (exact match on teamName, payment.transactionId or teamLeader.regNo).
	ExistsByField(ctx context.Context, field models.Field, value string) (bool, error)
	// List returns every document, screenshots included, newest first.
	List(ctx context.Context) ([]*models.Registration, error)
	// RunInTx runs fn in one atomic unit. Nothing is written unless fn returns nil.
	RunInTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	Ping(ctx context.Context) error
}

// WithTxDeadline applies DefaultTxTimeout when ctx has no deadline.
func WithTxDeadline(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, DefaultTxTimeout)
}
