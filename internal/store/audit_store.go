package store

import (
	"context"

	"bankledger/internal/models"
)

// AuditStore records every state-changing action, monetary or not. It is
// independent of the transaction ledger and equally append-only.
type AuditStore struct {
	db DB
}

func NewAuditStore(db DB) *AuditStore {
	return &AuditStore{db: db}
}

func (s *AuditStore) Log(ctx context.Context, tx Execer, actor, action, entityType, entityID, detail string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO audit_logs (id, actor, action, entity_type, entity_id, detail)
		VALUES (gen_random_uuid()::text, $1, $2, $3, $4, $5)
	`, actor, action, entityType, entityID, detail)
	return err
}

func (s *AuditStore) List(ctx context.Context, limit, offset int) ([]models.AuditRecord, error) {
	var rows []models.AuditRecord
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, actor, action, entity_type, entity_id, detail, created_at
		FROM audit_logs
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, err
	}
	return rows, nil
}
