package service

import (
	"context"
	"errors"
	"time"

	"outbreak/internal/registration/models"
	"outbreak/internal/registration/store"
	"outbreak/internal/registration/validation"
	dErrors "outbreak/pkg/domain-errors"
	"outbreak/pkg/platform/audit"
	"outbreak/pkg/platform/sentinel"
)

const (
	MsgTeamNameTaken      = "Team Name already taken! Please choose another."
	MsgTransactionIDTaken = "Transaction ID already used!"
	MsgBusy               = "System busy. Please try again in 5s."
	MsgQuotaExceeded      = "Quota exceeded. Contact Support."
)

func errTeamNameTaken() error {
	return dErrors.New(dErrors.CodeConflict, MsgTeamNameTaken).
		WithFields(map[string]string{models.FieldTeamName.ErrorKey(): validation.MsgAlreadyExists})
}

func errTransactionIDTaken() error {
	return dErrors.New(dErrors.CodeConflict, MsgTransactionIDTaken).
		WithFields(map[string]string{models.FieldTransactionID.ErrorKey(): validation.MsgAlreadyExists})
}

// commit writes reg in one store transaction: the key is read, the
// transaction id is checked, and only then is the document created. Two
// commits racing for one key cannot both succeed.
func (s *Service) commit(ctx context.Context, reg *models.Registration) error {
	start := time.Now()
	defer s.observeCommit(start)

	err := s.store.RunInTx(ctx, func(ctx context.Context, tx store.Tx) error {
		_, err := tx.Get(ctx, reg.ID)
		switch {
		case err == nil:
			return store.ErrKeyTaken
		case !errors.Is(err, sentinel.ErrNotFound):
			return err
		}

		used, err := tx.TransactionIDExists(ctx, reg.Payment.TransactionID)
		if err != nil {
			return err
		}
		if used {
			return store.ErrTransactionIDTaken
		}
		return tx.Create(ctx, reg)
	})
	if err != nil {
		derr := translateStoreError(err)
		switch {
		case dErrors.HasCode(derr, dErrors.CodeConflict):
			s.incrementCommit("conflict")
			s.logAudit(ctx, audit.ActionRegistrationRejected, reg.ID,
				"decision", "rejected",
				"reason", conflictReason(err),
			)
		default:
			s.incrementCommit("error")
			s.logger.ErrorContext(ctx, "registration commit failed", "key", reg.ID, "error", err)
		}
		return derr
	}

	s.incrementCommit("committed")
	s.logAudit(ctx, audit.ActionRegistrationCommitted, reg.ID,
		"decision", "accepted",
	)
	return nil
}

func conflictReason(err error) string {
	if errors.Is(err, store.ErrTransactionIDTaken) {
		return "transaction_id_taken"
	}
	return "team_name_taken"
}

// translateStoreError maps store and infrastructure failures onto the
// user-facing error taxonomy.
func translateStoreError(err error) error {
	switch {
	case errors.Is(err, store.ErrKeyTaken):
		return errTeamNameTaken()
	case errors.Is(err, store.ErrTransactionIDTaken):
		return errTransactionIDTaken()
	case errors.Is(err, sentinel.ErrResourceExhausted):
		return dErrors.Wrap(err, dErrors.CodeResourceExhausted, MsgQuotaExceeded)
	case errors.Is(err, sentinel.ErrUnavailable),
		errors.Is(err, context.DeadlineExceeded),
		dErrors.HasCode(err, dErrors.CodeTimeout):
		return dErrors.Wrap(err, dErrors.CodeUnavailable, MsgBusy)
	}
	if de, ok := dErrors.As(err); ok {
		return de
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "failed to access registrations")
}
