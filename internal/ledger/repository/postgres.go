package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"auditflow/backend/internal/actor"
	"auditflow/backend/internal/db"
	"auditflow/backend/internal/ledger/domain"
)

const uniqueViolation = "23505"

const blockColumns = `audit_id, block_number, current_hash, previous_hash, actor, actor_type, action,
	entity_kind, entity_id, payload, created_at`

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a ledger repository that uses the given db for persistence.
// Calls join the transaction carried by ctx, if any.
func NewPostgresRepository(conn *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: conn}
}

// LockChain takes a transaction-scoped advisory lock on the audit chain. Outside a transaction
// the lock is released as soon as the statement finishes.
func (r *PostgresRepository) LockChain(ctx context.Context, auditID string) error {
	_, err := db.Executor(ctx, r.db).ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, "ledger:"+auditID)
	return err
}

// Last returns the head block for the audit, or nil if the chain is empty.
func (r *PostgresRepository) Last(ctx context.Context, auditID string) (*domain.Block, error) {
	row := db.Executor(ctx, r.db).QueryRowContext(ctx,
		`SELECT `+blockColumns+` FROM ledger_blocks WHERE audit_id = $1 ORDER BY block_number DESC LIMIT 1`, auditID)
	b, err := scanBlock(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return b, nil
}

// Insert persists b. A taken block number yields ErrDuplicateBlock.
func (r *PostgresRepository) Insert(ctx context.Context, b *domain.Block) error {
	_, err := db.Executor(ctx, r.db).ExecContext(ctx,
		`INSERT INTO ledger_blocks (`+blockColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		b.AuditID, b.Number, b.Hash, b.PrevHash, b.Actor, string(b.ActorType), b.Action,
		string(b.EntityKind), b.EntityID, []byte(b.Payload), b.CreatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return ErrDuplicateBlock
	}
	return err
}

// List returns blocks of the audit in ascending order. A single statement reads one snapshot.
func (r *PostgresRepository) List(ctx context.Context, auditID string, q domain.Query) ([]*domain.Block, error) {
	query := `SELECT ` + blockColumns + ` FROM ledger_blocks WHERE audit_id = $1 AND block_number > $2 ORDER BY block_number`
	args := []any{auditID, q.AfterBlock}
	if q.Limit > 0 {
		query += ` LIMIT $3`
		args = append(args, q.Limit)
	}
	return r.queryBlocks(ctx, query, args...)
}

// ListByEntity returns every block touching entityID.
func (r *PostgresRepository) ListByEntity(ctx context.Context, entityID string) ([]*domain.Block, error) {
	return r.queryBlocks(ctx,
		`SELECT `+blockColumns+` FROM ledger_blocks WHERE entity_id = $1 ORDER BY created_at, audit_id, block_number`, entityID)
}

// HaltReason reports whether appends are halted for auditID.
func (r *PostgresRepository) HaltReason(ctx context.Context, auditID string) (string, bool, error) {
	var reason string
	err := db.Executor(ctx, r.db).QueryRowContext(ctx, `SELECT reason FROM ledger_halts WHERE audit_id = $1`, auditID).Scan(&reason)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, err
	}
	return reason, true, nil
}

// Halt records a halt; the first recorded reason is kept.
func (r *PostgresRepository) Halt(ctx context.Context, auditID, reason string, at time.Time) error {
	_, err := db.Executor(ctx, r.db).ExecContext(ctx,
		`INSERT INTO ledger_halts (audit_id, reason, halted_at) VALUES ($1, $2, $3) ON CONFLICT (audit_id) DO NOTHING`,
		auditID, reason, at)
	return err
}

// ClearHalt lifts a halt.
func (r *PostgresRepository) ClearHalt(ctx context.Context, auditID string) error {
	_, err := db.Executor(ctx, r.db).ExecContext(ctx, `DELETE FROM ledger_halts WHERE audit_id = $1`, auditID)
	return err
}

func (r *PostgresRepository) queryBlocks(ctx context.Context, query string, args ...any) ([]*domain.Block, error) {
	rows, err := db.Executor(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.Block
	for rows.Next() {
		b, err := scanBlock(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanBlock(s scanner) (*domain.Block, error) {
	var (
		b          domain.Block
		actorType  string
		entityKind string
		payload    []byte
	)
	if err := s.Scan(&b.AuditID, &b.Number, &b.Hash, &b.PrevHash, &b.Actor, &actorType, &b.Action,
		&entityKind, &b.EntityID, &payload, &b.CreatedAt); err != nil {
		return nil, err
	}
	b.ActorType = actor.Type(actorType)
	b.EntityKind = domain.EntityKind(entityKind)
	b.Payload = payload
	b.CreatedAt = b.CreatedAt.UTC()
	return &b, nil
}
