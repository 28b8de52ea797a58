package tasks

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const taskColumns = `id, title, owner, when_text, where_text, importance, category,
	created_by, created_at, completed, completed_at, completed_by`

// NewID returns a fresh task id
func NewID() string {
	return uuid.NewString()
}

func scanTask(scan func(dest ...any) error) (Task, error) {
	var (
		t           Task
		whenText    sql.NullString
		whereText   sql.NullString
		importance  string
		category    string
		createdAt   int64
		completed   int
		completedAt sql.NullInt64
		completedBy sql.NullString
	)
	err := scan(&t.ID, &t.Title, &t.Owner, &whenText, &whereText, &importance, &category,
		&t.CreatedBy, &createdAt, &completed, &completedAt, &completedBy)
	if err != nil {
		return Task{}, err
	}
	t.Importance = Importance(importance)
	t.Category = Category(category)
	t.CreatedAt = time.Unix(0, createdAt)
	t.Completed = completed != 0
	if whenText.Valid {
		t.WhenText = &whenText.String
	}
	if whereText.Valid {
		t.WhereText = &whereText.String
	}
	if completedAt.Valid {
		at := time.Unix(0, completedAt.Int64)
		t.CompletedAt = &at
	}
	if completedBy.Valid {
		t.CompletedBy = &completedBy.String
	}
	return t, nil
}

func collectTasks(rows *sql.Rows) ([]Task, error) {
	defer rows.Close()
	var result []Task
	for rows.Next() {
		t, err := scanTask(rows.Scan)
		if err != nil {
			return nil, err
		}
		result = append(result, t)
	}
	return result, rows.Err()
}

func nullString(p *string) any {
	if p == nil {
		return nil
	}
	return *p
}

// Active returns active tasks ordered by creation; owner "" returns all owners
func (s *DB) Active(ctx context.Context, owner string) ([]Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE completed = 0`
	var args []any
	if owner != "" {
		query += ` AND owner = ?`
		args = append(args, owner)
	}
	query += ` ORDER BY created_at ASC, id ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query active tasks: %w", err)
	}
	return collectTasks(rows)
}

// Get returns a task by id
func (s *DB) Get(ctx context.Context, id string) (*Task, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	t, err := scanTask(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get task %s: %w", id, err)
	}
	return &t, nil
}

// Insert adds a batch in one transaction. Rows that collide with the active
// uniqueness index are skipped; the batch continues.
func (s *DB) Insert(ctx context.Context, batch []Task) ([]Task, error) {
	if len(batch) == 0 {
		return nil, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin insert: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT OR IGNORE INTO tasks (`+taskColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 0, NULL, NULL)`)
	if err != nil {
		return nil, fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	var inserted []Task
	for _, t := range batch {
		if t.ID == "" {
			t.ID = NewID()
		}
		if t.Importance == "" {
			t.Importance = ImportanceNormal
		}
		if t.Category == "" {
			t.Category = CategoryGeneral
		}
		if t.CreatedAt.IsZero() {
			t.CreatedAt = time.Now()
		}
		t.Completed = false
		t.CompletedAt = nil
		t.CompletedBy = nil

		res, err := stmt.ExecContext(ctx, t.ID, t.Title, t.Owner, nullString(t.WhenText), nullString(t.WhereText),
			string(t.Importance), string(t.Category), t.CreatedBy, t.CreatedAt.UnixNano())
		if err != nil {
			return nil, fmt.Errorf("insert %q: %w", t.Title, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return nil, err
		}
		if n == 0 {
			continue // duplicate active title for this owner
		}
		inserted = append(inserted, t)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit insert: %w", err)
	}
	return inserted, nil
}

// Complete marks active tasks completed in one transaction
func (s *DB) Complete(ctx context.Context, ids []string, by string, at time.Time) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin complete: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `UPDATE tasks
		SET completed = 1, completed_at = ?, completed_by = ?
		WHERE id = ? AND completed = 0`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	total := 0
	for _, id := range ids {
		res, err := stmt.ExecContext(ctx, at.UnixNano(), by, id)
		if err != nil {
			return 0, fmt.Errorf("complete %s: %w", id, err)
		}
		n, _ := res.RowsAffected()
		total += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit complete: %w", err)
	}
	return total, nil
}

// Update applies a partial update to an active task and returns the new row
func (s *DB) Update(ctx context.Context, id string, patch Patch) (*Task, error) {
	var (
		sets []string
		args []any
	)
	if patch.Title != nil {
		sets = append(sets, "title = ?")
		args = append(args, *patch.Title)
	}
	if patch.Owner != nil {
		sets = append(sets, "owner = ?")
		args = append(args, *patch.Owner)
	}
	if patch.ClearWhen {
		sets = append(sets, "when_text = NULL")
	} else if patch.WhenText != nil {
		sets = append(sets, "when_text = ?")
		args = append(args, *patch.WhenText)
	}
	if patch.ClearWhere {
		sets = append(sets, "where_text = NULL")
	} else if patch.WhereText != nil {
		sets = append(sets, "where_text = ?")
		args = append(args, *patch.WhereText)
	}
	if patch.Importance != nil {
		sets = append(sets, "importance = ?")
		args = append(args, string(*patch.Importance))
	}
	if patch.Category != nil {
		sets = append(sets, "category = ?")
		args = append(args, string(*patch.Category))
	}
	if len(sets) == 0 {
		return s.Get(ctx, id)
	}

	args = append(args, id)
	res, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET `+strings.Join(sets, ", ")+` WHERE id = ? AND completed = 0`, args...)
	if err != nil {
		return nil, fmt.Errorf("update %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrNotFound
	}
	return s.Get(ctx, id)
}

// Delete removes a task row entirely
func (s *DB) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// CompletedBefore lists completed tasks older than cutoff, oldest first
func (s *DB) CompletedBefore(ctx context.Context, cutoff time.Time) ([]Task, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+taskColumns+` FROM tasks
		WHERE completed = 1 AND completed_at < ?
		ORDER BY completed_at ASC`, cutoff.UnixNano())
	if err != nil {
		return nil, fmt.Errorf("query completed tasks: %w", err)
	}
	return collectTasks(rows)
}

// DeleteMany removes tasks by id in one transaction
func (s *DB) DeleteMany(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin delete: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `DELETE FROM tasks WHERE id = ?`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	total := 0
	for _, id := range ids {
		res, err := stmt.ExecContext(ctx, id)
		if err != nil {
			return 0, fmt.Errorf("delete %s: %w", id, err)
		}
		n, _ := res.RowsAffected()
		total += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit delete: %w", err)
	}
	return total, nil
}

// Count returns the total number of task rows (active and completed)
func (s *DB) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tasks`).Scan(&n)
	return n, err
}

// All returns every task row, newest first. Used by the state inspector.
func (s *DB) All(ctx context.Context, limit int) ([]Task, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+taskColumns+` FROM tasks
		ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	return collectTasks(rows)
}

// Stats are row counts for the state inspector
type Stats struct {
	Active        int            `json:"active"`
	Completed     int            `json:"completed"`
	ActiveByOwner map[string]int `json:"active_by_owner"`
	Turns         int            `json:"turns"`
	Conversations int            `json:"conversations"`
}

// Stats counts tasks and conversation turns
func (s *DB) Stats(ctx context.Context) (*Stats, error) {
	st := &Stats{ActiveByOwner: make(map[string]int)}

	rows, err := s.db.QueryContext(ctx, `SELECT owner, completed, COUNT(*) FROM tasks GROUP BY owner, completed`)
	if err != nil {
		return nil, fmt.Errorf("count tasks: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			owner     string
			completed bool
			n         int
		)
		if err := rows.Scan(&owner, &completed, &n); err != nil {
			return nil, err
		}
		if completed {
			st.Completed += n
		} else {
			st.Active += n
			st.ActiveByOwner[owner] += n
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	err = s.db.QueryRowContext(ctx, `SELECT COUNT(*), COUNT(DISTINCT chat_id || ':' || user_id) FROM conversation_turns`).
		Scan(&st.Turns, &st.Conversations)
	if err != nil {
		return nil, fmt.Errorf("count turns: %w", err)
	}
	return st, nil
}
