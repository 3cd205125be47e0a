package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Personal lists

func (s *PostgresStore) ListPersonalLists(ctx context.Context, ownerID string) ([]PersonalList, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, owner_id, name, created_at FROM personal_lists WHERE owner_id = $1 ORDER BY created_at`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list personal lists: %w", err)
	}
	defer rows.Close()

	items := make([]PersonalList, 0)
	for rows.Next() {
		var l PersonalList
		if err := rows.Scan(&l.ID, &l.OwnerID, &l.Name, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan personal list: %w", err)
		}
		items = append(items, l)
	}
	return items, rows.Err()
}

func (s *PostgresStore) GetPersonalList(ctx context.Context, id string) (PersonalList, error) {
	var l PersonalList
	err := s.db.QueryRowContext(ctx, `SELECT id, owner_id, name, created_at FROM personal_lists WHERE id = $1`, id).
		Scan(&l.ID, &l.OwnerID, &l.Name, &l.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return PersonalList{}, ErrNotFound
	}
	if err != nil {
		return PersonalList{}, fmt.Errorf("get personal list: %w", err)
	}
	return l, nil
}

func (s *PostgresStore) InsertPersonalList(ctx context.Context, l PersonalList) (PersonalList, error) {
	err := s.db.QueryRowContext(ctx, `INSERT INTO personal_lists (id, owner_id, name) VALUES ($1, $2, $3) RETURNING created_at`,
		l.ID, l.OwnerID, l.Name).Scan(&l.CreatedAt)
	if err != nil {
		return PersonalList{}, fmt.Errorf("insert personal list: %w", err)
	}
	return l, nil
}

func (s *PostgresStore) RenamePersonalList(ctx context.Context, id, name string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE personal_lists SET name = $2 WHERE id = $1`, id, name)
	if err != nil {
		return fmt.Errorf("rename personal list: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) DeletePersonalList(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM personal_lists WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete personal list: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Activity assignees

func (s *PostgresStore) ListAssignees(ctx context.Context, activityID string) ([]ActivityAssignee, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT aa.activity_id, aa.user_id, COALESCE(p.display_name, ''), aa.assigned_at
		FROM activity_assignees aa
		LEFT JOIN profiles p ON p.id = aa.user_id
		WHERE aa.activity_id = $1
		ORDER BY aa.assigned_at
	`, activityID)
	if err != nil {
		return nil, fmt.Errorf("list assignees: %w", err)
	}
	defer rows.Close()

	items := make([]ActivityAssignee, 0)
	for rows.Next() {
		var a ActivityAssignee
		if err := rows.Scan(&a.ActivityID, &a.UserID, &a.DisplayName, &a.AssignedAt); err != nil {
			return nil, fmt.Errorf("scan assignee: %w", err)
		}
		items = append(items, a)
	}
	return items, rows.Err()
}

func (s *PostgresStore) InsertAssignee(ctx context.Context, activityID, userID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO activity_assignees (activity_id, user_id) VALUES ($1, $2)
		ON CONFLICT (activity_id, user_id) DO NOTHING
	`, activityID, userID)
	if err != nil {
		return fmt.Errorf("insert assignee: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteAssignee(ctx context.Context, activityID, userID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM activity_assignees WHERE activity_id = $1 AND user_id = $2`, activityID, userID)
	if err != nil {
		return fmt.Errorf("delete assignee: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Subsector memberships

func (s *PostgresStore) ListSubsectorMemberships(ctx context.Context, profileID string) ([]SubsectorMembership, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT ps.profile_id, ps.subsector_id, ss.name
		FROM profile_subsectors ps
		JOIN subsectors ss ON ss.id = ps.subsector_id
		WHERE ps.profile_id = $1
		ORDER BY ss.name
	`, profileID)
	if err != nil {
		return nil, fmt.Errorf("list memberships: %w", err)
	}
	defer rows.Close()

	items := make([]SubsectorMembership, 0)
	for rows.Next() {
		var m SubsectorMembership
		if err := rows.Scan(&m.ProfileID, &m.SubsectorID, &m.SubsectorName); err != nil {
			return nil, fmt.Errorf("scan membership: %w", err)
		}
		items = append(items, m)
	}
	return items, rows.Err()
}

func (s *PostgresStore) InsertSubsectorMembership(ctx context.Context, profileID, subsectorID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO profile_subsectors (profile_id, subsector_id) VALUES ($1, $2)
		ON CONFLICT (profile_id, subsector_id) DO NOTHING
	`, profileID, subsectorID)
	if err != nil {
		return fmt.Errorf("insert membership: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteSubsectorMembership(ctx context.Context, profileID, subsectorID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM profile_subsectors WHERE profile_id = $1 AND subsector_id = $2`, profileID, subsectorID)
	if err != nil {
		return fmt.Errorf("delete membership: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Notifications

func (s *PostgresStore) InsertNotification(ctx context.Context, n Notification) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notifications (id, user_id, kind, title, body, activity_id)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, n.ID, n.UserID, n.Kind, n.Title, n.Body, n.ActivityID)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListNotifications(ctx context.Context, userID string, unreadOnly bool, limit int) ([]Notification, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, kind, title, body, activity_id, read_at, created_at
		FROM notifications
		WHERE user_id = $1 AND (NOT $2 OR read_at IS NULL)
		ORDER BY created_at DESC
		LIMIT $3
	`, userID, unreadOnly, limit)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	items := make([]Notification, 0)
	for rows.Next() {
		var n Notification
		if err := rows.Scan(&n.ID, &n.UserID, &n.Kind, &n.Title, &n.Body, &n.ActivityID, &n.ReadAt, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		items = append(items, n)
	}
	return items, rows.Err()
}

func (s *PostgresStore) MarkNotificationRead(ctx context.Context, userID, id string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `UPDATE notifications SET read_at = $3 WHERE id = $1 AND user_id = $2 AND read_at IS NULL`, id, userID, at)
	if err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Invitations

func (s *PostgresStore) InsertInvitation(ctx context.Context, inv Invitation) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO invitations (id, email, sector_id, subsector_id, role, token_hash, invited_by, status, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, inv.ID, inv.Email, inv.SectorID, inv.SubsectorID, inv.Role, inv.TokenHash, inv.InvitedBy, inv.Status, inv.ExpiresAt)
	if err != nil {
		return fmt.Errorf("insert invitation: %w", err)
	}
	return nil
}

const invitationColumns = `id, email, sector_id, subsector_id, role, token_hash, invited_by, status, expires_at, created_at`

func scanInvitation(row interface{ Scan(...any) error }) (Invitation, error) {
	var inv Invitation
	err := row.Scan(&inv.ID, &inv.Email, &inv.SectorID, &inv.SubsectorID, &inv.Role, &inv.TokenHash,
		&inv.InvitedBy, &inv.Status, &inv.ExpiresAt, &inv.CreatedAt)
	return inv, err
}

// GetOpenInvitation returns an unexpired, unused invitation by token hash.
func (s *PostgresStore) GetOpenInvitation(ctx context.Context, tokenHash string) (Invitation, error) {
	inv, err := scanInvitation(s.db.QueryRowContext(ctx, `SELECT `+invitationColumns+` FROM invitations
		WHERE token_hash = $1 AND status = 'open' AND expires_at > NOW()`, tokenHash))
	if errors.Is(err, sql.ErrNoRows) {
		return Invitation{}, ErrNotFound
	}
	if err != nil {
		return Invitation{}, fmt.Errorf("get invitation: %w", err)
	}
	return inv, nil
}

func (s *PostgresStore) GetInvitation(ctx context.Context, id string) (Invitation, error) {
	inv, err := scanInvitation(s.db.QueryRowContext(ctx, `SELECT `+invitationColumns+` FROM invitations WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Invitation{}, ErrNotFound
	}
	if err != nil {
		return Invitation{}, fmt.Errorf("get invitation: %w", err)
	}
	return inv, nil
}

func (s *PostgresStore) ListInvitations(ctx context.Context, sectorID string) ([]Invitation, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+invitationColumns+` FROM invitations WHERE sector_id = $1 ORDER BY created_at DESC`, sectorID)
	if err != nil {
		return nil, fmt.Errorf("list invitations: %w", err)
	}
	defer rows.Close()

	items := make([]Invitation, 0)
	for rows.Next() {
		inv, err := scanInvitation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan invitation: %w", err)
		}
		items = append(items, inv)
	}
	return items, rows.Err()
}

func (s *PostgresStore) SetInvitationStatus(ctx context.Context, id, status string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE invitations SET status = $2 WHERE id = $1`, id, status)
	if err != nil {
		return fmt.Errorf("update invitation: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ViewerSubsectorIDs returns the profile's own subsector plus its extra memberships.
func (s *PostgresStore) ViewerSubsectorIDs(ctx context.Context, profileID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT subsector_id::text FROM profiles WHERE id = $1 AND subsector_id IS NOT NULL
		UNION
		SELECT subsector_id::text FROM profile_subsectors WHERE profile_id = $1
	`, profileID)
	if err != nil {
		return nil, fmt.Errorf("viewer subsectors: %w", err)
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan viewer subsector: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
