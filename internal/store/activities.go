package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

const activitySelect = `SELECT a.id, a.title, a.description, a.status, a.priority, a.due_date, a.assignee_id,
		a.created_by, a.sector_id, a.subsector_id, a.list_id, a.is_private, a.completed_at,
		a.created_at, a.updated_at, COALESCE(cp.display_name, ''), COALESCE(ss.name, '')
	FROM activities a
	LEFT JOIN profiles cp ON cp.id = a.created_by
	LEFT JOIN subsectors ss ON ss.id = a.subsector_id`

func scanActivity(row interface{ Scan(...any) error }) (Activity, error) {
	var a Activity
	err := row.Scan(&a.ID, &a.Title, &a.Description, &a.Status, &a.Priority, &a.DueDate, &a.AssigneeID,
		&a.CreatedBy, &a.SectorID, &a.SubsectorID, &a.ListID, &a.IsPrivate, &a.CompletedAt,
		&a.CreatedAt, &a.UpdatedAt, &a.CreatorName, &a.SubsectorName)
	return a, err
}

// buildActivityWhere renders the visibility rule and optional filters as a WHERE clause.
func buildActivityWhere(f ActivityFilter) (string, []any) {
	args := []any{f.SectorID, f.ViewerID}
	clauses := []string{
		"a.sector_id = $1",
		"(NOT a.is_private OR a.created_by = $2)",
	}

	if f.ViewerRole != RoleManager {
		args = append(args, f.ViewerSubsectorIDs)
		clauses = append(clauses, fmt.Sprintf("(a.subsector_id = ANY($%d::uuid[]) OR a.created_by = $2)", len(args)))
	}
	if f.SubsectorID != "" {
		args = append(args, f.SubsectorID)
		clauses = append(clauses, fmt.Sprintf("a.subsector_id = $%d", len(args)))
	}
	if f.AssigneeID != "" {
		args = append(args, f.AssigneeID)
		clauses = append(clauses, fmt.Sprintf("(a.assignee_id = $%d OR EXISTS (SELECT 1 FROM activity_assignees aa WHERE aa.activity_id = a.id AND aa.user_id = $%d))", len(args), len(args)))
	}
	if f.ListID != "" {
		args = append(args, f.ListID)
		clauses = append(clauses, fmt.Sprintf("a.list_id = $%d", len(args)))
	}
	if len(f.Statuses) > 0 {
		args = append(args, statusStrings(f.Statuses))
		clauses = append(clauses, fmt.Sprintf("a.status = ANY($%d::text[])", len(args)))
	}
	if len(f.ExcludeStatuses) > 0 {
		args = append(args, statusStrings(f.ExcludeStatuses))
		clauses = append(clauses, fmt.Sprintf("NOT (a.status = ANY($%d::text[]))", len(args)))
	}
	if f.IDs != nil {
		args = append(args, f.IDs)
		clauses = append(clauses, fmt.Sprintf("a.id = ANY($%d::uuid[])", len(args)))
	}
	if text := strings.TrimSpace(f.Text); text != "" {
		args = append(args, "%"+escapeLike(text)+"%")
		clauses = append(clauses, fmt.Sprintf("(a.title ILIKE $%d OR a.description ILIKE $%d)", len(args), len(args)))
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func (s *PostgresStore) ListActivities(ctx context.Context, f ActivityFilter) ([]Activity, error) {
	where, args := buildActivityWhere(f)
	query := activitySelect + where + " ORDER BY a.created_at DESC, a.id DESC"
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list activities: %w", err)
	}
	defer rows.Close()

	items := make([]Activity, 0)
	for rows.Next() {
		activity, err := scanActivity(rows)
		if err != nil {
			return nil, fmt.Errorf("scan activity: %w", err)
		}
		items = append(items, activity)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate activities: %w", err)
	}
	return items, nil
}

// ListSearchableActivities returns every non-archived activity across all sectors, oldest first.
// Only the search reindex reads this; it bypasses viewer visibility.
func (s *PostgresStore) ListSearchableActivities(ctx context.Context) ([]Activity, error) {
	rows, err := s.db.QueryContext(ctx, activitySelect+" WHERE a.status <> 'archived' ORDER BY a.created_at, a.id")
	if err != nil {
		return nil, fmt.Errorf("list searchable activities: %w", err)
	}
	defer rows.Close()

	items := make([]Activity, 0)
	for rows.Next() {
		activity, err := scanActivity(rows)
		if err != nil {
			return nil, fmt.Errorf("scan activity: %w", err)
		}
		items = append(items, activity)
	}
	return items, rows.Err()
}

func (s *PostgresStore) GetActivity(ctx context.Context, id string) (Activity, error) {
	activity, err := scanActivity(s.db.QueryRowContext(ctx, activitySelect+" WHERE a.id = $1", id))
	if errors.Is(err, sql.ErrNoRows) {
		return Activity{}, ErrNotFound
	}
	if err != nil {
		return Activity{}, fmt.Errorf("get activity: %w", err)
	}
	return activity, nil
}

func (s *PostgresStore) InsertActivity(ctx context.Context, a Activity) (Activity, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO activities (id, title, description, status, priority, due_date, assignee_id, created_by,
			sector_id, subsector_id, list_id, is_private, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`, a.ID, a.Title, a.Description, a.Status, a.Priority, a.DueDate, a.AssigneeID, a.CreatedBy,
		a.SectorID, a.SubsectorID, a.ListID, a.IsPrivate, a.CompletedAt)
	if err != nil {
		return Activity{}, fmt.Errorf("insert activity: %w", err)
	}
	return s.GetActivity(ctx, a.ID)
}

// UpdateActivity applies the patch verbatim; callers own the completion rule.
func (s *PostgresStore) UpdateActivity(ctx context.Context, id string, p ActivityPatch) (Activity, error) {
	sets := []string{"updated_at = NOW()"}
	args := []any{id}
	set := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if p.Title != nil {
		set("title", *p.Title)
	}
	if p.Description != nil {
		set("description", *p.Description)
	}
	if p.Status != nil {
		set("status", *p.Status)
	}
	if p.Priority != nil {
		set("priority", *p.Priority)
	}
	if p.ClearDueDate {
		sets = append(sets, "due_date = NULL")
	} else if p.DueDate != nil {
		set("due_date", *p.DueDate)
	}
	if p.ClearAssignee {
		sets = append(sets, "assignee_id = NULL")
	} else if p.AssigneeID != nil {
		set("assignee_id", *p.AssigneeID)
	}
	if p.SubsectorID != nil {
		set("subsector_id", *p.SubsectorID)
	}
	if p.ClearList {
		sets = append(sets, "list_id = NULL")
	} else if p.ListID != nil {
		set("list_id", *p.ListID)
	}
	if p.IsPrivate != nil {
		set("is_private", *p.IsPrivate)
	}
	if p.ClearCompletedAt {
		sets = append(sets, "completed_at = NULL")
	} else if p.CompletedAt != nil {
		set("completed_at", *p.CompletedAt)
	}

	res, err := s.db.ExecContext(ctx, "UPDATE activities SET "+strings.Join(sets, ", ")+" WHERE id = $1", args...)
	if err != nil {
		return Activity{}, fmt.Errorf("update activity: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return Activity{}, ErrNotFound
	}
	return s.GetActivity(ctx, id)
}

func (s *PostgresStore) DeleteActivity(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM activities WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete activity: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) InsertHistory(ctx context.Context, entry HistoryEntry) error {
	details := entry.Details
	if len(details) == 0 {
		details = json.RawMessage(`{}`)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO activity_history (activity_id, action, performed_by, details)
		VALUES ($1, $2, $3, $4)
	`, entry.ActivityID, entry.Action, entry.PerformedBy, []byte(details))
	if err != nil {
		return fmt.Errorf("insert history: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListHistory(ctx context.Context, activityID string) ([]HistoryEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, activity_id, action, performed_by, details, created_at
		FROM activity_history
		WHERE activity_id = $1
		ORDER BY created_at, id
	`, activityID)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	defer rows.Close()

	var out []HistoryEntry
	for rows.Next() {
		var entry HistoryEntry
		var details []byte
		if err := rows.Scan(&entry.ID, &entry.ActivityID, &entry.Action, &entry.PerformedBy, &details, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		entry.Details = json.RawMessage(details)
		out = append(out, entry)
	}
	return out, rows.Err()
}

func statusStrings(statuses []ActivityStatus) []string {
	out := make([]string, 0, len(statuses))
	for _, status := range statuses {
		out = append(out, string(status))
	}
	return out
}

func escapeLike(value string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return replacer.Replace(value)
}
