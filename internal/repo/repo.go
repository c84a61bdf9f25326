package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"flowin/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// on runs against tx when present, otherwise against the pool.
func (r Repo) on(tx *sql.Tx) queryer {
	if tx != nil {
		return tx
	}
	return r.DB
}

const projectColumns = `id,name,COALESCE(description,''),owner_id,created_at,updated_at`

func scanProject(sc interface{ Scan(...any) error }) (domain.Project, error) {
	var p domain.Project
	err := sc.Scan(&p.ID, &p.Name, &p.Description, &p.OwnerID, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return p, ErrNotFound
	}
	return p, err
}

// InsertProject stores the project and its member list.
func (r Repo) InsertProject(ctx context.Context, tx *sql.Tx, p domain.Project) error {
	q := r.on(tx)
	if _, err := q.ExecContext(ctx, `INSERT INTO projects(id,name,description,owner_id,created_at,updated_at) VALUES (?,?,?,?,?,?)`,
		p.ID, p.Name, nullable(p.Description), p.OwnerID, p.CreatedAt, p.UpdatedAt); err != nil {
		return err
	}
	for _, m := range p.Members {
		if err := r.AddMember(ctx, tx, p.ID, m, p.CreatedAt); err != nil {
			return err
		}
	}
	return nil
}

func (r Repo) GetProject(ctx context.Context, tx *sql.Tx, id string) (domain.Project, error) {
	p, err := scanProject(r.on(tx).QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects WHERE id=?`, id))
	if err != nil {
		return p, err
	}
	p.Members, err = r.ListMembers(ctx, tx, id)
	return p, err
}

// ListUserProjects returns projects whose member list contains userID, most recently updated first.
func (r Repo) ListUserProjects(ctx context.Context, userID string) ([]domain.Project, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+projectColumns+` FROM projects
WHERE id IN (SELECT project_id FROM project_members WHERE user_id=?)
ORDER BY updated_at DESC, rowid DESC`, userID)
	if err != nil {
		return nil, err
	}
	var res []domain.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		res = append(res, p)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()
	for i := range res {
		members, err := r.ListMembers(ctx, nil, res[i].ID)
		if err != nil {
			return nil, err
		}
		res[i].Members = members
	}
	return res, nil
}

func (r Repo) CountUserProjects(ctx context.Context, tx *sql.Tx, userID string) (int, error) {
	var n int
	err := r.on(tx).QueryRowContext(ctx, `SELECT count(*) FROM project_members WHERE user_id=?`, userID).Scan(&n)
	return n, err
}

func (r Repo) UpdateProject(ctx context.Context, tx *sql.Tx, id string, name, description *string, updatedAt string) error {
	fields := []string{"updated_at=?"}
	args := []any{updatedAt}
	if name != nil {
		fields = append(fields, "name=?")
		args = append(args, *name)
	}
	if description != nil {
		fields = append(fields, "description=?")
		args = append(args, nullable(*description))
	}
	args = append(args, id)
	res, err := r.on(tx).ExecContext(ctx, fmt.Sprintf(`UPDATE projects SET %s WHERE id=?`, strings.Join(fields, ",")), args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// TouchProject bumps updated_at so member dashboards resort.
func (r Repo) TouchProject(ctx context.Context, tx *sql.Tx, id, updatedAt string) error {
	_, err := r.on(tx).ExecContext(ctx, `UPDATE projects SET updated_at=? WHERE id=?`, updatedAt, id)
	return err
}

func (r Repo) DeleteProject(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := r.on(tx).ExecContext(ctx, `DELETE FROM projects WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) ListMembers(ctx context.Context, tx *sql.Tx, projectID string) ([]string, error) {
	rows, err := r.on(tx).QueryContext(ctx, `SELECT user_id FROM project_members WHERE project_id=? ORDER BY added_at, rowid`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	members := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		members = append(members, id)
	}
	return members, rows.Err()
}

// AddMember appends userID to the project when absent.
func (r Repo) AddMember(ctx context.Context, tx *sql.Tx, projectID, userID, addedAt string) error {
	_, err := r.on(tx).ExecContext(ctx, `INSERT OR IGNORE INTO project_members(project_id,user_id,added_at) VALUES (?,?,?)`, projectID, userID, addedAt)
	return err
}

func (r Repo) IsMember(ctx context.Context, projectID, userID string) (bool, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT count(*) FROM project_members WHERE project_id=? AND user_id=?`, projectID, userID).Scan(&n)
	return n > 0, err
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil || *v == "" {
		return nil
	}
	return *v
}

func stringPtr(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}
