package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

func (s *PostgresStore) ListSubtasks(ctx context.Context, activityID string) ([]Subtask, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, activity_id, title, description, completed, order_index, created_at
		FROM subtasks
		WHERE activity_id = $1
		ORDER BY order_index, created_at
	`, activityID)
	if err != nil {
		return nil, fmt.Errorf("list subtasks: %w", err)
	}
	defer rows.Close()

	items := make([]Subtask, 0)
	for rows.Next() {
		var st Subtask
		if err := rows.Scan(&st.ID, &st.ActivityID, &st.Title, &st.Description, &st.Completed, &st.OrderIndex, &st.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan subtask: %w", err)
		}
		items = append(items, st)
	}
	return items, rows.Err()
}

// MaxSubtaskOrder returns the highest order index for the activity, or -1 when it has none.
func (s *PostgresStore) MaxSubtaskOrder(ctx context.Context, activityID string) (int, error) {
	var highest int
	err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(order_index), -1) FROM subtasks WHERE activity_id = $1`, activityID).Scan(&highest)
	if err != nil {
		return 0, fmt.Errorf("max subtask order: %w", err)
	}
	return highest, nil
}

func (s *PostgresStore) InsertSubtask(ctx context.Context, st Subtask) (Subtask, error) {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO subtasks (id, activity_id, title, description, completed, order_index)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`, st.ID, st.ActivityID, st.Title, st.Description, st.Completed, st.OrderIndex).Scan(&st.CreatedAt)
	if err != nil {
		return Subtask{}, fmt.Errorf("insert subtask: %w", err)
	}
	return st, nil
}

func (s *PostgresStore) GetSubtask(ctx context.Context, id string) (Subtask, error) {
	var st Subtask
	err := s.db.QueryRowContext(ctx, `
		SELECT id, activity_id, title, description, completed, order_index, created_at
		FROM subtasks WHERE id = $1
	`, id).Scan(&st.ID, &st.ActivityID, &st.Title, &st.Description, &st.Completed, &st.OrderIndex, &st.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Subtask{}, ErrNotFound
	}
	if err != nil {
		return Subtask{}, fmt.Errorf("get subtask: %w", err)
	}
	return st, nil
}

func (s *PostgresStore) SetSubtaskCompleted(ctx context.Context, id string, completed bool) error {
	res, err := s.db.ExecContext(ctx, `UPDATE subtasks SET completed = $2 WHERE id = $1`, id, completed)
	if err != nil {
		return fmt.Errorf("update subtask: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) DeleteSubtask(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM subtasks WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete subtask: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
