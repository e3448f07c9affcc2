// Package postgres stores registrations as JSONB documents in PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"outbreak/internal/registration/models"
	"outbreak/internal/registration/store"
	dErrors "outbreak/pkg/domain-errors"
	"outbreak/pkg/platform/sentinel"
	"outbreak/pkg/platform/tx"
)

//go:embed schema.sql
var schema string

const (
	constraintPrimaryKey    = "registrations_pkey"
	constraintTransactionID = "registrations_transaction_id_key"
)

// PostgresStore persists registrations in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed registrations store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// EnsureSchema creates the registrations table and its indexes if missing.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("ensure registrations schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) q(ctx context.Context) tx.Querier {
	return tx.Or(ctx, s.db)
}

func (s *PostgresStore) FindByKey(ctx context.Context, key string) (*models.Registration, error) {
	var doc []byte
	err := s.q(ctx).QueryRowContext(ctx,
		`SELECT document FROM registrations WHERE id = $1`, key,
	).Scan(&doc)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, classify(err, "find registration by key")
	}
	return decode(doc)
}

func (s *PostgresStore) ExistsByField(ctx context.Context, field models.Field, value string) (bool, error) {
	var query string
	switch field {
	case models.FieldTeamName:
		query = `SELECT EXISTS (SELECT 1 FROM registrations WHERE team_name = $1)`
	case models.FieldTransactionID:
		query = `SELECT EXISTS (SELECT 1 FROM registrations WHERE transaction_id = $1)`
	case models.FieldLeaderRegNo:
		query = `SELECT EXISTS (SELECT 1 FROM registrations WHERE leader_reg_no = $1)`
	default:
		return false, dErrors.New(dErrors.CodeBadRequest, "unsupported field: "+string(field))
	}
	var exists bool
	if err := s.q(ctx).QueryRowContext(ctx, query, value).Scan(&exists); err != nil {
		return false, classify(err, "check registration field")
	}
	return exists, nil
}

func (s *PostgresStore) List(ctx context.Context) ([]*models.Registration, error) {
	rows, err := s.q(ctx).QueryContext(ctx,
		`SELECT document FROM registrations ORDER BY submitted_at DESC, id ASC`)
	if err != nil {
		return nil, classify(err, "list registrations")
	}
	defer rows.Close()

	var out []*models.Registration
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("scan registration: %w", err)
		}
		reg, err := decode(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, reg)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err, "list registrations")
	}
	return out, nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return classify(s.db.PingContext(ctx), "ping postgres")
}

// RunInTx runs fn inside a database transaction. The primary key and the
// transaction id constraint make a racing commit fail at insert or commit time.
func (s *PostgresStore) RunInTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	ctx, cancel := store.WithTxDeadline(ctx)
	defer cancel()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return classify(err, "begin transaction")
	}
	txCtx := tx.WithTx(ctx, sqlTx)

	if err := fn(txCtx, &pgTx{store: s}); err != nil {
		_ = sqlTx.Rollback()
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return classify(err, "commit transaction")
	}
	return nil
}

type pgTx struct {
	store *PostgresStore
}

func (t *pgTx) Get(ctx context.Context, key string) (*models.Registration, error) {
	return t.store.FindByKey(ctx, key)
}

func (t *pgTx) TransactionIDExists(ctx context.Context, transactionID string) (bool, error) {
	return t.store.ExistsByField(ctx, models.FieldTransactionID, transactionID)
}

func (t *pgTx) Create(ctx context.Context, reg *models.Registration) error {
	doc, err := json.Marshal(reg)
	if err != nil {
		return fmt.Errorf("marshal registration: %w", err)
	}
	_, err = t.store.q(ctx).ExecContext(ctx,
		`INSERT INTO registrations (id, team_name, transaction_id, leader_reg_no, document, submitted_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		reg.ID, reg.TeamName, reg.Payment.TransactionID, reg.TeamLeader.RegNo, doc, reg.SubmittedAt,
	)
	if err != nil {
		return classify(err, "insert registration")
	}
	return nil
}

func decode(doc []byte) (*models.Registration, error) {
	var reg models.Registration
	if err := json.Unmarshal(doc, &reg); err != nil {
		return nil, fmt.Errorf("unmarshal registration: %w", err)
	}
	return &reg, nil
}

// classify maps driver errors onto store and sentinel errors.
func classify(err error, op string) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			switch pgErr.ConstraintName {
			case constraintPrimaryKey:
				return store.ErrKeyTaken
			case constraintTransactionID:
				return store.ErrTransactionIDTaken
			}
			return fmt.Errorf("%s: %w", op, sentinel.ErrAlreadyUsed)
		case "40001", "40P01", "57P03":
			return fmt.Errorf("%s: %w: %s", op, sentinel.ErrUnavailable, pgErr.Message)
		case "53300", "53200":
			return fmt.Errorf("%s: %w: %s", op, sentinel.ErrResourceExhausted, pgErr.Message)
		}
	}
	if errors.Is(err, driver.ErrBadConn) || pgconn.SafeToRetry(err) || pgconn.Timeout(err) {
		return fmt.Errorf("%s: %w: %v", op, sentinel.ErrUnavailable, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
