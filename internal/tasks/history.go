package tasks

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// AppendTurn stores a turn and prunes the scope down to the newest keep rows
func (s *DB) AppendTurn(ctx context.Context, turn Turn, keep int) error {
	if turn.Timestamp.IsZero() {
		turn.Timestamp = time.Now()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `INSERT INTO conversation_turns (chat_id, user_id, role, content, created_at)
		VALUES (?, ?, ?, ?, ?)`, turn.ChatID, turn.UserID, turn.Role, turn.Content, turn.Timestamp.UnixNano()); err != nil {
		return fmt.Errorf("append turn: %w", err)
	}

	if keep > 0 {
		if _, err := tx.ExecContext(ctx, `DELETE FROM conversation_turns
			WHERE chat_id = ? AND user_id = ? AND id NOT IN (
				SELECT id FROM conversation_turns
				WHERE chat_id = ? AND user_id = ?
				ORDER BY id DESC LIMIT ?
			)`, turn.ChatID, turn.UserID, turn.ChatID, turn.UserID, keep); err != nil {
			return fmt.Errorf("prune turns: %w", err)
		}
	}

	return tx.Commit()
}

// RecentTurns returns the newest n turns for a scope in chronological order
func (s *DB) RecentTurns(ctx context.Context, chatID, userID string, n int) ([]Turn, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT chat_id, user_id, role, content, created_at
		FROM conversation_turns
		WHERE chat_id = ? AND user_id = ?
		ORDER BY id DESC LIMIT ?`, chatID, userID, n)
	if err != nil {
		return nil, fmt.Errorf("query turns: %w", err)
	}
	defer rows.Close()

	var turns []Turn
	for rows.Next() {
		var (
			t  Turn
			ts int64
		)
		if err := rows.Scan(&t.ChatID, &t.UserID, &t.Role, &t.Content, &ts); err != nil {
			return nil, err
		}
		t.Timestamp = time.Unix(0, ts)
		turns = append(turns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Newest-first from SQL; callers want oldest-first
	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}
	return turns, nil
}

// GetValue reads a kv entry
func (s *DB) GetValue(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get %s: %w", key, err)
	}
	return value, true, nil
}

// SetValue upserts a kv entry
func (s *DB) SetValue(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UnixNano())
	if err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

// Values returns every kv entry (state inspector)
func (s *DB) Values(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM kv ORDER BY key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, rows.Err()
}
