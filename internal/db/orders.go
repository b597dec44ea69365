package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// SQLOrderStore persists confirmed order payloads. The order record is a
// plain key-value row; the print pipeline only reads it back to re-render a
// ticket on retry.
type SQLOrderStore struct {
	db *sqlx.DB
}

func NewSQLOrderStore(conn *sqlx.DB) *SQLOrderStore {
	return &SQLOrderStore{db: conn}
}

func (s *SQLOrderStore) PutOrder(ctx context.Context, rec *OrderRecord) error {
	query := s.db.Rebind(`
		INSERT INTO orders (organization_id, order_id, payload)
		VALUES (?, ?, ?)
		ON CONFLICT (organization_id, order_id)
		DO UPDATE SET payload = excluded.payload`)
	if _, err := s.db.ExecContext(ctx, query, rec.OrganizationID, rec.OrderID, string(rec.Payload)); err != nil {
		return fmt.Errorf("failed to store order: %w", err)
	}
	return nil
}

func (s *SQLOrderStore) GetOrder(ctx context.Context, orgID, orderID string) (*OrderRecord, error) {
	var rec OrderRecord
	query := s.db.Rebind(`
		SELECT organization_id, order_id, payload, created_at
		FROM orders WHERE organization_id = ? AND order_id = ?`)
	err := s.db.GetContext(ctx, &rec, query, orgID, orderID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	return &rec, nil
}
