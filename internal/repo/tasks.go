package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"flowin/internal/domain"
)

const taskColumns = `id,project_id,title,description,status,priority,assignee_id,due_date,labels_json,ord,created_by,created_at,updated_at`

func scanTask(sc interface{ Scan(...any) error }) (domain.Task, error) {
	var t domain.Task
	var description, assignee, due sql.NullString
	var labels string
	err := sc.Scan(&t.ID, &t.ProjectID, &t.Title, &description, &t.Status, &t.Priority, &assignee, &due, &labels, &t.Order, &t.CreatedBy, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return t, ErrNotFound
	}
	if err != nil {
		return t, err
	}
	if description.Valid {
		t.Description = description.String
	}
	t.AssigneeID = stringPtr(assignee)
	t.DueDate = stringPtr(due)
	t.Labels = []string{}
	if labels != "" {
		if err := json.Unmarshal([]byte(labels), &t.Labels); err != nil {
			return t, fmt.Errorf("decode labels for %s: %w", t.ID, err)
		}
	}
	return t, nil
}

func encodeLabels(labels []string) (string, error) {
	if labels == nil {
		labels = []string{}
	}
	data, err := json.Marshal(labels)
	return string(data), err
}

func (r Repo) InsertTask(ctx context.Context, tx *sql.Tx, t domain.Task) error {
	labels, err := encodeLabels(t.Labels)
	if err != nil {
		return err
	}
	_, err = r.on(tx).ExecContext(ctx, `INSERT INTO tasks(`+taskColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		t.ID, t.ProjectID, t.Title, nullable(t.Description), t.Status, t.Priority, nullableStringPtr(t.AssigneeID),
		nullableStringPtr(t.DueDate), labels, t.Order, t.CreatedBy, t.CreatedAt, t.UpdatedAt)
	return err
}

// UpdateTask overwrites every mutable column of t.
func (r Repo) UpdateTask(ctx context.Context, tx *sql.Tx, t domain.Task) error {
	labels, err := encodeLabels(t.Labels)
	if err != nil {
		return err
	}
	res, err := r.on(tx).ExecContext(ctx, `UPDATE tasks SET title=?, description=?, status=?, priority=?, assignee_id=?, due_date=?, labels_json=?, ord=?, updated_at=? WHERE id=?`,
		t.Title, nullable(t.Description), t.Status, t.Priority, nullableStringPtr(t.AssigneeID), nullableStringPtr(t.DueDate),
		labels, t.Order, t.UpdatedAt, t.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) GetTask(ctx context.Context, tx *sql.Tx, id string) (domain.Task, error) {
	return scanTask(r.on(tx).QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id=?`, id))
}

func (r Repo) DeleteTask(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := r.on(tx).ExecContext(ctx, `DELETE FROM tasks WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListProjectTasks returns the project's tasks in feed order: order ascending, newest first among ties.
func (r Repo) ListProjectTasks(ctx context.Context, projectID string) ([]domain.Task, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE project_id=? ORDER BY ord ASC, created_at DESC, rowid DESC`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

// ListTasksDueBetween returns open tasks whose due date falls in [from, to] (YYYY-MM-DD, inclusive).
func (r Repo) ListTasksDueBetween(ctx context.Context, from, to string) ([]domain.Task, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+taskColumns+` FROM tasks
WHERE due_date IS NOT NULL AND due_date >= ? AND due_date <= ? AND status <> 'done'
ORDER BY due_date, rowid`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

// ApplyOrders writes order and status for each update; callers wrap it in a transaction.
func (r Repo) ApplyOrders(ctx context.Context, tx *sql.Tx, projectID string, updates []domain.OrderUpdate, updatedAt string) error {
	for _, u := range updates {
		res, err := r.on(tx).ExecContext(ctx, `UPDATE tasks SET ord=?, status=?, updated_at=? WHERE id=? AND project_id=?`,
			u.Order, u.Status, updatedAt, u.ID, projectID)
		if err != nil {
			return fmt.Errorf("reorder %s: %w", u.ID, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("reorder %s: %w", u.ID, ErrNotFound)
		}
	}
	return nil
}

func (r Repo) CountTasksByStatus(ctx context.Context, projectID string) (map[domain.TaskStatus]int, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT status, count(*) FROM tasks WHERE project_id=? GROUP BY status`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := map[domain.TaskStatus]int{}
	for rows.Next() {
		var status domain.TaskStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		res[status] = count
	}
	return res, rows.Err()
}
