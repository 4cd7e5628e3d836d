package repository

import (
	"context"
	"database/sql"
	"errors"

	"auditflow/backend/internal/db"
	"auditflow/backend/internal/workflow/domain"
)

type PostgresRequestRepository struct {
	db *sql.DB
}

// NewPostgresRequestRepository returns an idempotency store that uses the given db for persistence.
func NewPostgresRequestRepository(conn *sql.DB) *PostgresRequestRepository {
	return &PostgresRequestRepository{db: conn}
}

// GetRequest returns the record for requestID on entityID, or nil if not found.
func (r *PostgresRequestRepository) GetRequest(ctx context.Context, entityID, requestID string) (*domain.Request, error) {
	var req domain.Request
	err := db.Executor(ctx, r.db).QueryRowContext(ctx,
		`SELECT request_id, entity_id, from_state, to_state, audit_id, block_number, block_hash, created_at
		FROM transition_requests WHERE entity_id = $1 AND request_id = $2`, entityID, requestID).
		Scan(&req.RequestID, &req.EntityID, &req.FromState, &req.ToState, &req.AuditID, &req.BlockNumber,
			&req.BlockHash, &req.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &req, nil
}

// SaveRequest stores the record. It runs in the transition's transaction, so the record and the
// block commit or roll back together.
func (r *PostgresRequestRepository) SaveRequest(ctx context.Context, req *domain.Request) error {
	_, err := db.Executor(ctx, r.db).ExecContext(ctx,
		`INSERT INTO transition_requests (request_id, entity_id, from_state, to_state, audit_id, block_number, block_hash, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		req.RequestID, req.EntityID, req.FromState, req.ToState, req.AuditID, req.BlockNumber, req.BlockHash, req.CreatedAt)
	return err
}
