package store

import (
	"context"
	"encoding/json"
	"strings"
	"time"
)

type AuditStore struct {
	db DB
}

// AuditEntry is one ledger write. Data is the JSON payload the service
// recorded, returned as-is.
type AuditEntry struct {
	ID         string          `db:"id" json:"id"`
	ActorID    string          `db:"actor_user_id" json:"actor_user_id"`
	Action     string          `db:"action" json:"action"`
	EntityType string          `db:"entity_type" json:"entity_type"`
	EntityID   string          `db:"entity_id" json:"entity_id"`
	Data       json.RawMessage `db:"data" json:"data"`
	CreatedAt  time.Time       `db:"created_at" json:"created_at"`
}

func NewAuditStore(db DB) *AuditStore {
	return &AuditStore{db: db}
}

// Log writes inside the caller's transaction so the audit row commits or
// rolls back with the balance change it describes. An empty payload is
// stored as {}.
func (s *AuditStore) Log(ctx context.Context, tx Execer, actorID, action, entityType, entityID, data string) error {
	if strings.TrimSpace(data) == "" {
		data = "{}"
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO audit_logs (id, actor_user_id, action, entity_type, entity_id, data)
		VALUES (gen_random_uuid()::text, $1, $2, $3, $4, $5::jsonb)
	`, actorID, action, entityType, entityID, data)
	return err
}

func (s *AuditStore) ListByActor(ctx context.Context, actorID string, limit, offset int) ([]AuditEntry, error) {
	var rows []AuditEntry
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, actor_user_id, action, entity_type, entity_id, data::text AS data, created_at
		FROM audit_logs
		WHERE actor_user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, actorID, limit, offset)
	if err != nil {
		return nil, err
	}
	return rows, nil
}
