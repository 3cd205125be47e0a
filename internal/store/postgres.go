package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrDuplicate = errors.New("duplicate record")
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

const profileColumns = `p.id, p.email, p.display_name, p.role, p.sector_id, p.subsector_id,
	p.is_approved, p.approved_by, p.approved_at, p.created_at, p.updated_at`

func scanProfile(row interface{ Scan(...any) error }) (Profile, error) {
	var p Profile
	err := row.Scan(&p.ID, &p.Email, &p.DisplayName, &p.Role, &p.SectorID, &p.SubsectorID,
		&p.IsApproved, &p.ApprovedBy, &p.ApprovedAt, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func (s *PostgresStore) GetProfile(ctx context.Context, userID string) (Profile, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+profileColumns+` FROM profiles p WHERE p.id = $1`, userID)
	profile, err := scanProfile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Profile{}, ErrNotFound
	}
	if err != nil {
		return Profile{}, fmt.Errorf("get profile: %w", err)
	}
	return profile, nil
}

func (s *PostgresStore) ListProfilesBySector(ctx context.Context, sectorID string) ([]Profile, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+profileColumns+` FROM profiles p
		WHERE p.sector_id = $1 AND p.is_approved
		ORDER BY p.display_name`, sectorID)
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	defer rows.Close()

	var out []Profile
	for rows.Next() {
		profile, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("scan profile: %w", err)
		}
		out = append(out, profile)
	}
	return out, rows.Err()
}

func (s *PostgresStore) InsertProfile(ctx context.Context, p Profile) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO profiles (id, email, display_name, role, sector_id, subsector_id, is_approved, approved_by, approved_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, p.ID, p.Email, p.DisplayName, p.Role, p.SectorID, p.SubsectorID, p.IsApproved, p.ApprovedBy, p.ApprovedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("insert profile: %w", err)
	}
	return nil
}

// DeleteUser removes a user's profile and auth identity after clearing their assignments.
func (s *PostgresStore) DeleteUser(ctx context.Context, userID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete user: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `UPDATE activities SET assignee_id = NULL, updated_at = NOW() WHERE assignee_id = $1`, userID); err != nil {
		return fmt.Errorf("clear assignments: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM activity_assignees WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("clear assignee rows: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM profiles WHERE id = $1`, userID)
	if err != nil {
		return fmt.Errorf("delete profile: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM auth_users WHERE id = $1`, userID); err != nil {
		return fmt.Errorf("delete auth user: %w", err)
	}
	return tx.Commit()
}

func (s *PostgresStore) GetAuthUserByEmail(ctx context.Context, email string) (AuthUser, error) {
	var u AuthUser
	err := s.db.QueryRowContext(ctx, `SELECT id, email, password_hash, created_at FROM auth_users WHERE LOWER(email) = LOWER($1)`, email).
		Scan(&u.ID, &u.Email, &u.PasswordHash, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return AuthUser{}, ErrNotFound
	}
	if err != nil {
		return AuthUser{}, fmt.Errorf("get auth user: %w", err)
	}
	return u, nil
}

func (s *PostgresStore) InsertAuthUser(ctx context.Context, u AuthUser) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO auth_users (id, email, password_hash) VALUES ($1, $2, $3)`,
		u.ID, strings.ToLower(strings.TrimSpace(u.Email)), u.PasswordHash)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("insert auth user: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetSubsector(ctx context.Context, subsectorID string) (Subsector, error) {
	var sub Subsector
	err := s.db.QueryRowContext(ctx, `SELECT id, sector_id, name, created_at FROM subsectors WHERE id = $1`, subsectorID).
		Scan(&sub.ID, &sub.SectorID, &sub.Name, &sub.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Subsector{}, ErrNotFound
	}
	if err != nil {
		return Subsector{}, fmt.Errorf("get subsector: %w", err)
	}
	return sub, nil
}

func (s *PostgresStore) ListSubsectors(ctx context.Context, sectorID string) ([]Subsector, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, sector_id, name, created_at FROM subsectors WHERE sector_id = $1 ORDER BY name`, sectorID)
	if err != nil {
		return nil, fmt.Errorf("list subsectors: %w", err)
	}
	defer rows.Close()

	var out []Subsector
	for rows.Next() {
		var sub Subsector
		if err := rows.Scan(&sub.ID, &sub.SectorID, &sub.Name, &sub.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan subsector: %w", err)
		}
		out = append(out, sub)
	}
	return out, rows.Err()
}

func (s *PostgresStore) GetSector(ctx context.Context, sectorID string) (Sector, error) {
	var sec Sector
	err := s.db.QueryRowContext(ctx, `SELECT id, name, created_at FROM sectors WHERE id = $1`, sectorID).
		Scan(&sec.ID, &sec.Name, &sec.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Sector{}, ErrNotFound
	}
	if err != nil {
		return Sector{}, fmt.Errorf("get sector: %w", err)
	}
	return sec, nil
}

func (s *PostgresStore) SectorExists(ctx context.Context, sectorID string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM sectors WHERE id = $1)`, sectorID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check sector: %w", err)
	}
	return exists, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
