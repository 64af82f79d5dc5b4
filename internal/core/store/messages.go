package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jordancj7/folio/internal/core"
)

// ErrNotFound is returned when a message id does not exist.
var ErrNotFound = errors.New("not found")

const maxMessageLimit = 500

// MessageQuery filters ListMessages and CountMessages.
type MessageQuery struct {
	Unread  bool
	Starred bool
	// Limit caps the result size. Zero means no limit.
	Limit int
}

func (q MessageQuery) whereClause() string {
	var conds []string
	if q.Unread {
		conds = append(conds, "is_read = 0")
	}
	if q.Starred {
		conds = append(conds, "is_starred = 1")
	}
	if len(conds) == 0 {
		return ""
	}
	return "WHERE " + strings.Join(conds, " AND ")
}

// InsertMessage validates and stores a contact form submission.
func (s *Store) InsertMessage(ctx context.Context, in core.ContactInput) (*core.Message, error) {
	if s == nil || s.DB == nil {
		return nil, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if err := in.Validate(); err != nil {
		return nil, err
	}

	msg := &core.Message{
		ID:        uuid.NewString(),
		Name:      in.Name,
		Email:     in.Email,
		Subject:   in.Subject,
		Body:      in.Message,
		CreatedAt: time.Now().UTC(),
	}

	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO messages (id, name, email, subject, body, is_read, is_starred, created_at)
		VALUES (?, ?, ?, ?, ?, 0, 0, ?)
	`, msg.ID, msg.Name, msg.Email, msg.Subject, msg.Body, msg.CreatedAt.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}
	return msg, nil
}

// ListMessages returns messages newest first.
func (s *Store) ListMessages(ctx context.Context, q MessageQuery) ([]core.Message, error) {
	if s == nil || s.DB == nil {
		return nil, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	limit := q.Limit
	if limit <= 0 || limit > maxMessageLimit {
		limit = maxMessageLimit
	}

	rows, err := s.DB.QueryContext(ctx, fmt.Sprintf(`
		SELECT id, name, email, subject, body, is_read, is_starred, created_at
		FROM messages
		%s
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`, q.whereClause()), limit)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close() // nolint:errcheck // best-effort cleanup

	messages := []core.Message{}
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, *msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return messages, nil
}

// CountMessages counts messages matching q. Limit is ignored.
func (s *Store) CountMessages(ctx context.Context, q MessageQuery) (int, error) {
	if s == nil || s.DB == nil {
		return 0, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	var count int
	row := s.DB.QueryRowContext(ctx, "SELECT COUNT(*) FROM messages "+q.whereClause())
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("count messages: %w", err)
	}
	return count, nil
}

// GetMessage returns a single message or ErrNotFound.
func (s *Store) GetMessage(ctx context.Context, id string) (*core.Message, error) {
	if s == nil || s.DB == nil {
		return nil, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	row := s.DB.QueryRowContext(ctx, `
		SELECT id, name, email, subject, body, is_read, is_starred, created_at
		FROM messages
		WHERE id = ?
	`, strings.TrimSpace(id))
	msg, err := scanMessage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return msg, err
}

// DeleteMessage removes a message. Deleting a missing id returns ErrNotFound.
func (s *Store) DeleteMessage(ctx context.Context, id string) error {
	if s == nil || s.DB == nil {
		return errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	result, err := s.DB.ExecContext(ctx, `DELETE FROM messages WHERE id = ?`, strings.TrimSpace(id))
	if err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateMessageFlags applies a partial update to the read and starred flags
// and returns the updated message.
func (s *Store) UpdateMessageFlags(ctx context.Context, id string, flags core.MessageFlags) (*core.Message, error) {
	if s == nil || s.DB == nil {
		return nil, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if flags.Empty() {
		return nil, errors.New("no flags to update")
	}

	var (
		sets []string
		args []any
	)
	if flags.Read != nil {
		sets = append(sets, "is_read = ?")
		args = append(args, boolToInt(*flags.Read))
	}
	if flags.Starred != nil {
		sets = append(sets, "is_starred = ?")
		args = append(args, boolToInt(*flags.Starred))
	}
	args = append(args, strings.TrimSpace(id))

	result, err := s.DB.ExecContext(ctx, fmt.Sprintf(`UPDATE messages SET %s WHERE id = ?`, strings.Join(sets, ", ")), args...)
	if err != nil {
		return nil, fmt.Errorf("update message: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("update message: %w", err)
	}
	if affected == 0 {
		return nil, ErrNotFound
	}
	return s.GetMessage(ctx, id)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(row rowScanner) (*core.Message, error) {
	var (
		msg       core.Message
		read      int
		starred   int
		createdAt int64
	)
	if err := row.Scan(&msg.ID, &msg.Name, &msg.Email, &msg.Subject, &msg.Body, &read, &starred, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan message: %w", err)
	}
	msg.Read = read != 0
	msg.Starred = starred != 0
	msg.CreatedAt = time.UnixMilli(createdAt).UTC()
	return &msg, nil
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
