package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jordancj7/folio/internal/core"
)

// RateWindowEntry pairs a caller key with its stored window.
type RateWindowEntry struct {
	Key       string
	Window    core.RateWindow
	UpdatedAt time.Time
}

// RateWindowQuery selects rate windows for inspection or reset.
type RateWindowQuery struct {
	All    bool
	Key    string
	Prefix string
}

func (q RateWindowQuery) Validate() error {
	if q.All {
		return nil
	}
	if strings.TrimSpace(q.Key) != "" {
		return nil
	}
	if strings.TrimSpace(q.Prefix) != "" {
		return nil
	}
	return errors.New("must specify --all, --key, or --prefix")
}

func (q RateWindowQuery) whereClause() (string, []any, error) {
	if err := q.Validate(); err != nil {
		return "", nil, err
	}
	if q.All {
		return "", nil, nil
	}
	if key := strings.TrimSpace(q.Key); key != "" {
		return "WHERE caller_key = ?", []any{key}, nil
	}
	return "WHERE caller_key LIKE ?", []any{strings.TrimSpace(q.Prefix) + "%"}, nil
}

func (s *Store) ListRateWindows(ctx context.Context, q RateWindowQuery) ([]RateWindowEntry, error) {
	if s == nil || s.DB == nil {
		return nil, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	where, args, err := q.whereClause()
	if err != nil {
		return nil, err
	}

	rows, err := s.DB.QueryContext(ctx, fmt.Sprintf(`
		SELECT caller_key, timestamps, day, day_count, updated_at
		FROM rate_windows
		%s
		ORDER BY caller_key
	`, where), args...)
	if err != nil {
		return nil, fmt.Errorf("list rate windows: %w", err)
	}
	defer rows.Close() // nolint:errcheck // best-effort cleanup

	entries := []RateWindowEntry{}
	for rows.Next() {
		var (
			entry      RateWindowEntry
			timestamps string
			day        dayValue
			updatedAt  int64
		)
		if err := rows.Scan(&entry.Key, &timestamps, &day, &entry.Window.DayCount, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan rate windows: %w", err)
		}
		entry.Window.Day = string(day)
		if err := decodeTimestamps(timestamps, &entry.Window); err != nil {
			return nil, err
		}
		entry.UpdatedAt = time.UnixMilli(updatedAt).UTC()
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list rate windows: %w", err)
	}

	return entries, nil
}

func (s *Store) CountRateWindows(ctx context.Context, q RateWindowQuery) (int, error) {
	if s == nil || s.DB == nil {
		return 0, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	where, args, err := q.whereClause()
	if err != nil {
		return 0, err
	}

	var count int
	row := s.DB.QueryRowContext(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM rate_windows %s`, where), args...)
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("count rate windows: %w", err)
	}
	return count, nil
}

func (s *Store) ResetRateWindows(ctx context.Context, q RateWindowQuery) (int64, error) {
	if s == nil || s.DB == nil {
		return 0, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	where, args, err := q.whereClause()
	if err != nil {
		return 0, err
	}

	s.windowMu.Lock()
	defer s.windowMu.Unlock()

	result, err := s.DB.ExecContext(ctx, fmt.Sprintf(`DELETE FROM rate_windows %s`, where), args...)
	if err != nil {
		return 0, fmt.Errorf("reset rate windows: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("reset rate windows: %w", err)
	}
	return affected, nil
}
