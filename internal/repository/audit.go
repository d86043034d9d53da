package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"storefront-service/internal/entity"
)

func (t *mysqlTx) InsertAuditLog(ctx context.Context, a *entity.AuditLog) error {
	before, err := marshalChange(a.Before)
	if err != nil {
		return err
	}
	after, err := marshalChange(a.After)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO audit_logs (actor_id, action, entity_type, entity_id, entity_name,
			description, before_state, after_state, status, severity, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	res, err := t.tx.ExecContext(ctx, query, a.ActorID, a.Action, a.EntityType, a.EntityID,
		a.EntityName, a.Description, before, after, a.Status, a.Severity, a.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert audit log: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	a.ID = id
	return nil
}

// PurgeAuditLogs deletes entries older than the retention cutoff. Called
// periodically; stands in for a TTL index the database does not provide.
func (s *MySQLStore) PurgeAuditLogs(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM audit_logs WHERE created_at < ?`, olderThan)
	if err != nil {
		return 0, fmt.Errorf("purge audit logs: %w", err)
	}
	return res.RowsAffected()
}

func marshalChange(m map[string]any) ([]byte, error) {
	if m == nil {
		return nil, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshal audit change: %w", err)
	}
	return b, nil
}
