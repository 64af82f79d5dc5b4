package core

// DayLayout formats the UTC calendar day a daily count applies to.
const DayLayout = "2006-01-02"

// RateWindow captures per-caller request history for quota enforcement.
type RateWindow struct {
	// Timestamps holds epoch milliseconds of recently admitted requests,
	// oldest first.
	Timestamps []int64 `json:"timestamps"`
	// Day is the UTC calendar day (YYYY-MM-DD) that DayCount applies to.
	Day      string `json:"day"`
	DayCount int    `json:"day_count"`
}

// Clone returns a deep copy of the window.
func (w RateWindow) Clone() RateWindow {
	out := w
	if w.Timestamps != nil {
		out.Timestamps = append([]int64(nil), w.Timestamps...)
	}
	return out
}

// QuotaUsage is a read-only view of a caller's current consumption.
type QuotaUsage struct {
	Key         string `json:"key"`
	MinuteUsed  int    `json:"minute_used"`
	MinuteLimit int    `json:"minute_limit"`
	DayUsed     int    `json:"day_used"`
	DayLimit    int    `json:"day_limit"`
	Day         string `json:"day"`
}
