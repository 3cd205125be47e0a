package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const pendingColumns = `id, user_id, email, name, sector_id, subsector_id, role, status, reviewed_by, reviewed_at, created_at`

func scanPending(row interface{ Scan(...any) error }) (PendingUser, error) {
	var p PendingUser
	err := row.Scan(&p.ID, &p.UserID, &p.Email, &p.Name, &p.SectorID, &p.SubsectorID, &p.Role, &p.Status,
		&p.ReviewedBy, &p.ReviewedAt, &p.CreatedAt)
	return p, err
}

func (s *PostgresStore) InsertPendingUser(ctx context.Context, p PendingUser) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO pending_users (id, user_id, email, name, sector_id, subsector_id, role, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, p.ID, p.UserID, p.Email, p.Name, p.SectorID, p.SubsectorID, p.Role, p.Status)
	if err != nil {
		return fmt.Errorf("insert pending user: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetPendingUser(ctx context.Context, id string) (PendingUser, error) {
	p, err := scanPending(s.db.QueryRowContext(ctx, `SELECT `+pendingColumns+` FROM pending_users WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return PendingUser{}, ErrNotFound
	}
	if err != nil {
		return PendingUser{}, fmt.Errorf("get pending user: %w", err)
	}
	return p, nil
}

func (s *PostgresStore) ListPendingUsers(ctx context.Context, sectorID string, status PendingStatus) ([]PendingUser, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+pendingColumns+` FROM pending_users
		WHERE sector_id = $1 AND status = $2
		ORDER BY created_at`, sectorID, status)
	if err != nil {
		return nil, fmt.Errorf("list pending users: %w", err)
	}
	defer rows.Close()

	items := make([]PendingUser, 0)
	for rows.Next() {
		p, err := scanPending(rows)
		if err != nil {
			return nil, fmt.Errorf("scan pending user: %w", err)
		}
		items = append(items, p)
	}
	return items, rows.Err()
}

// SetPendingStatus moves a pending record out of the pending state; it never touches terminal rows.
func (s *PostgresStore) SetPendingStatus(ctx context.Context, id string, status PendingStatus, reviewedBy string, reviewedAt time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE pending_users SET status = $2, reviewed_by = $3, reviewed_at = $4
		WHERE id = $1 AND status = 'pending'
	`, id, status, reviewedBy, reviewedAt)
	if err != nil {
		return fmt.Errorf("update pending user: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
