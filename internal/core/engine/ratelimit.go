package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/fulmenhq/gofulmen/logging"
	"go.uber.org/zap"

	"github.com/jordancj7/folio/internal/core"
)

const (
	// DefaultRPM is the per-minute request allowance when none is configured.
	DefaultRPM = 5
	// DefaultRPD is the per-day request allowance when none is configured.
	DefaultRPD = 20

	// GlobalKey is the caller key shared by all unauthenticated traffic.
	GlobalKey = "global_user_id_for_unauthenticated_access"

	// AllowedMessage accompanies every admitted request.
	AllowedMessage = "Request allowed."

	windowMillis int64 = 60_000
)

// RateLimits configures the two quotas enforced per caller.
type RateLimits struct {
	RequestsPerMinute int
	RequestsPerDay    int
}

// DefaultLimits returns the built-in quotas.
func DefaultLimits() RateLimits {
	return RateLimits{RequestsPerMinute: DefaultRPM, RequestsPerDay: DefaultRPD}
}

// Validate rejects non-positive quotas.
func (l RateLimits) Validate() error {
	if l.RequestsPerMinute <= 0 {
		return fmt.Errorf("requests per minute must be positive, got %d", l.RequestsPerMinute)
	}
	if l.RequestsPerDay <= 0 {
		return fmt.Errorf("requests per day must be positive, got %d", l.RequestsPerDay)
	}
	return nil
}

// RateWindowStore persists per-caller rate windows.
//
// UpdateRateWindow must give fn exclusive access to the caller's window for the
// duration of the call. A missing window is presented as the zero value. When fn
// returns an error, nothing is written.
type RateWindowStore interface {
	GetRateWindow(ctx context.Context, key string) (*core.RateWindow, error)
	UpdateRateWindow(ctx context.Context, key string, fn func(*core.RateWindow) error) error
	DeleteRateWindow(ctx context.Context, key string) error
}

// RateLimiter enforces a sliding per-minute window and a per-day counter for
// each caller key.
type RateLimiter struct {
	Store  RateWindowStore
	Limits RateLimits
	Clock  func() time.Time
	Logger *logging.Logger

	once sync.Once
}

// NewRateLimiter builds a limiter. A nil store selects an in-process store.
func NewRateLimiter(store RateWindowStore, limits RateLimits) *RateLimiter {
	if store == nil {
		store = NewMemoryWindowStore()
	}
	return &RateLimiter{Store: store, Limits: limits}
}

// Check evaluates and, when allowed, records a request for key.
//
// Check never fails. If the window store errors, the request is admitted and the
// failure is logged.
func (r *RateLimiter) Check(ctx context.Context, key string) core.Decision {
	if r == nil {
		return allowed()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	key = NormalizeKey(key)
	now := r.now()
	limits := r.limits()

	var decision core.Decision
	err := r.store().UpdateRateWindow(ctx, key, func(w *core.RateWindow) error {
		decision = applyRequest(w, now, limits)
		return nil
	})
	if err != nil {
		r.warn("rate window update failed; admitting request", key, err)
		return allowed()
	}
	return decision
}

// Status reports current usage for key without recording a request.
func (r *RateLimiter) Status(ctx context.Context, key string) (core.QuotaUsage, error) {
	if r == nil {
		return core.QuotaUsage{}, errors.New("rate limiter not configured")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	key = NormalizeKey(key)
	now := r.now()
	limits := r.limits()
	today := now.UTC().Format(core.DayLayout)

	usage := core.QuotaUsage{
		Key:         key,
		MinuteLimit: limits.RequestsPerMinute,
		DayLimit:    limits.RequestsPerDay,
		Day:         today,
	}

	window, err := r.store().GetRateWindow(ctx, key)
	if err != nil {
		return usage, fmt.Errorf("read rate window: %w", err)
	}
	if window == nil {
		return usage, nil
	}

	usage.MinuteUsed = len(recentTimestamps(window.Timestamps, now.UnixMilli()))
	if window.Day == today {
		usage.DayUsed = window.DayCount
	}
	return usage, nil
}

// Reset discards all recorded history for key.
func (r *RateLimiter) Reset(ctx context.Context, key string) error {
	if r == nil {
		return errors.New("rate limiter not configured")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	return r.store().DeleteRateWindow(ctx, NormalizeKey(key))
}

// NormalizeKey maps an empty caller key to GlobalKey.
func NormalizeKey(key string) string {
	key = strings.TrimSpace(key)
	if key == "" {
		return GlobalKey
	}
	return key
}

// applyRequest runs one admission decision against w, mutating it in place.
func applyRequest(w *core.RateWindow, now time.Time, limits RateLimits) core.Decision {
	nowMs := now.UnixMilli()
	recent := recentTimestamps(w.Timestamps, nowMs)
	w.Timestamps = recent

	if len(recent) >= limits.RequestsPerMinute {
		oldest := recent[0]
		for _, ts := range recent[1:] {
			if ts < oldest {
				oldest = ts
			}
		}
		waitMs := windowMillis - (nowMs - oldest)
		seconds := int64(math.Ceil(float64(waitMs) / 1000))
		return core.Decision{
			Allowed: false,
			Message: fmt.Sprintf(
				"Rate limit exceeded. Maximum %d requests per minute. Please try again in about %d seconds.",
				limits.RequestsPerMinute, seconds),
			Kind:       core.LimitRPM,
			RetryAfter: time.Duration(seconds) * time.Second,
		}
	}

	today := now.UTC().Format(core.DayLayout)
	if w.Day == today && w.DayCount >= limits.RequestsPerDay {
		return core.Decision{
			Allowed: false,
			Message: fmt.Sprintf(
				"Daily request limit exceeded. Maximum %d requests per day. Please try again tomorrow.",
				limits.RequestsPerDay),
			Kind:       core.LimitRPD,
			RetryAfter: untilNextDay(now),
		}
	}

	w.Timestamps = append(w.Timestamps, nowMs)
	if keep := limits.RequestsPerMinute * 2; len(w.Timestamps) > keep {
		w.Timestamps = append([]int64(nil), w.Timestamps[len(w.Timestamps)-keep:]...)
	}
	if w.Day == today {
		w.DayCount++
	} else {
		w.Day = today
		w.DayCount = 1
	}

	return allowed()
}

// recentTimestamps filters ts down to entries inside the one-minute window.
func recentTimestamps(ts []int64, nowMs int64) []int64 {
	recent := make([]int64, 0, len(ts)+1)
	for _, t := range ts {
		if nowMs-t < windowMillis {
			recent = append(recent, t)
		}
	}
	return recent
}

func untilNextDay(now time.Time) time.Duration {
	utc := now.UTC()
	midnight := time.Date(utc.Year(), utc.Month(), utc.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, 1)
	return midnight.Sub(utc)
}

func allowed() core.Decision {
	return core.Decision{Allowed: true, Message: AllowedMessage, Kind: core.LimitNone}
}

func (r *RateLimiter) store() RateWindowStore {
	r.once.Do(func() {
		if r.Store == nil {
			r.Store = NewMemoryWindowStore()
		}
	})
	return r.Store
}

func (r *RateLimiter) limits() RateLimits {
	limits := r.Limits
	if limits.RequestsPerMinute <= 0 {
		limits.RequestsPerMinute = DefaultRPM
	}
	if limits.RequestsPerDay <= 0 {
		limits.RequestsPerDay = DefaultRPD
	}
	return limits
}

func (r *RateLimiter) now() time.Time {
	if r != nil && r.Clock != nil {
		return r.Clock()
	}
	return time.Now().UTC()
}

func (r *RateLimiter) warn(msg, key string, err error) {
	if r.Logger == nil {
		return
	}
	r.Logger.Warn(msg, zap.String("caller_key", key), zap.Error(err))
}
