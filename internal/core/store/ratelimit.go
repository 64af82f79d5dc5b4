package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jordancj7/folio/internal/core"
)

// GetRateWindow returns the stored window for a caller, or nil if none exists.
func (s *Store) GetRateWindow(ctx context.Context, key string) (*core.RateWindow, error) {
	if s == nil || s.DB == nil {
		return nil, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	key = strings.TrimSpace(key)
	if key == "" {
		return nil, errors.New("caller key is required")
	}

	window, err := getRateWindow(ctx, s.DB, key)
	if err != nil {
		return nil, err
	}
	return window, nil
}

// UpdateRateWindow reads the caller's window, applies fn, and writes the result
// inside one transaction. Updates from this process are serialized.
func (s *Store) UpdateRateWindow(ctx context.Context, key string, fn func(*core.RateWindow) error) error {
	if s == nil || s.DB == nil {
		return errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if fn == nil {
		return errors.New("update function is required")
	}

	key = strings.TrimSpace(key)
	if key == "" {
		return errors.New("caller key is required")
	}

	s.windowMu.Lock()
	defer s.windowMu.Unlock()

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin rate window update: %w", err)
	}
	defer tx.Rollback() // nolint:errcheck // no-op after commit

	window, err := getRateWindow(ctx, tx, key)
	if err != nil {
		return err
	}
	if window == nil {
		window = &core.RateWindow{}
	}
	if err := fn(window); err != nil {
		return err
	}

	timestamps := window.Timestamps
	if timestamps == nil {
		timestamps = []int64{}
	}
	encoded, err := json.Marshal(timestamps)
	if err != nil {
		return fmt.Errorf("encode rate window: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO rate_windows (caller_key, timestamps, day, day_count, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(caller_key) DO UPDATE SET
			timestamps = excluded.timestamps,
			day = excluded.day,
			day_count = excluded.day_count,
			updated_at = excluded.updated_at
	`, key, string(encoded), window.Day, window.DayCount, time.Now().UTC().UnixMilli())
	if err != nil {
		return fmt.Errorf("store rate window: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit rate window: %w", err)
	}
	return nil
}

// DeleteRateWindow forgets a caller's history.
func (s *Store) DeleteRateWindow(ctx context.Context, key string) error {
	if s == nil || s.DB == nil {
		return errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	s.windowMu.Lock()
	defer s.windowMu.Unlock()

	if _, err := s.DB.ExecContext(ctx, `DELETE FROM rate_windows WHERE caller_key = ?`, strings.TrimSpace(key)); err != nil {
		return fmt.Errorf("delete rate window: %w", err)
	}
	return nil
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getRateWindow(ctx context.Context, q queryRower, key string) (*core.RateWindow, error) {
	var (
		timestamps string
		day        dayValue
		dayCount   int
	)
	row := q.QueryRowContext(ctx, `
		SELECT timestamps, day, day_count
		FROM rate_windows
		WHERE caller_key = ?
	`, key)
	if err := row.Scan(&timestamps, &day, &dayCount); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("fetch rate window: %w", err)
	}

	window := &core.RateWindow{Day: string(day), DayCount: dayCount}
	if err := decodeTimestamps(timestamps, window); err != nil {
		return nil, err
	}
	return window, nil
}

// dayValue scans the day column. go-libsql returns date-shaped TEXT as a
// time.Time, which must read back as the same YYYY-MM-DD string.
type dayValue string

func (d *dayValue) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*d = ""
	case time.Time:
		*d = dayValue(v.Format(core.DayLayout))
	case string:
		*d = dayValue(normalizeDay(v))
	case []byte:
		*d = dayValue(normalizeDay(string(v)))
	default:
		return fmt.Errorf("unsupported day value %T", src)
	}
	return nil
}

func normalizeDay(raw string) string {
	raw = strings.TrimSpace(raw)
	if len(raw) <= len(core.DayLayout) {
		return raw
	}
	if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return t.Format(core.DayLayout)
	}
	if t, err := time.Parse("2006-01-02 15:04:05", raw); err == nil {
		return t.Format(core.DayLayout)
	}
	return raw
}

func decodeTimestamps(raw string, window *core.RateWindow) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(raw), &window.Timestamps); err != nil {
		return fmt.Errorf("decode rate window: %w", err)
	}
	return nil
}
