package driver

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"
)

// TraceEntry is one NDJSON line describing a provider round trip.
type TraceEntry struct {
	Timestamp   time.Time       `json:"timestamp"`
	Driver      string          `json:"driver"`
	Endpoint    string          `json:"endpoint"`
	Model       string          `json:"model,omitempty"`
	PromptSlug  string          `json:"prompt_slug,omitempty"`
	RequestBody json.RawMessage `json:"request_body,omitempty"`
	StatusCode  int             `json:"status_code,omitempty"`
	Response    json.RawMessage `json:"response,omitempty"`
	Error       string          `json:"error,omitempty"`
	DurationMs  int64           `json:"duration_ms"`
}

// Tracer appends trace entries to a file.
type Tracer struct {
	mu   sync.Mutex
	file *os.File
}

var (
	tracerMu     sync.Mutex
	activeTracer *Tracer
)

// EnableTracing starts appending provider traces to path. The returned function
// stops tracing and closes the file.
func EnableTracing(path string) (func(), error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600) // #nosec G304 -- operator-supplied trace path
	if err != nil {
		return nil, fmt.Errorf("open trace file: %w", err)
	}

	tracerMu.Lock()
	previous := activeTracer
	activeTracer = &Tracer{file: f}
	tracerMu.Unlock()
	_ = previous.Close()

	return DisableTracing, nil
}

// DisableTracing stops tracing and closes the trace file.
func DisableTracing() {
	tracerMu.Lock()
	t := activeTracer
	activeTracer = nil
	tracerMu.Unlock()
	_ = t.Close()
}

// IsTracingEnabled reports whether traces are being recorded.
func IsTracingEnabled() bool {
	tracerMu.Lock()
	defer tracerMu.Unlock()
	return activeTracer != nil
}

// TraceCall records a completed provider call when tracing is enabled.
func TraceCall(entry TraceEntry, started time.Time, err error) {
	tracerMu.Lock()
	t := activeTracer
	tracerMu.Unlock()
	if t == nil {
		return
	}

	entry.Timestamp = started.UTC()
	entry.DurationMs = time.Since(started).Milliseconds()
	if err != nil {
		entry.Error = err.Error()
	}
	if len(entry.RequestBody) > 0 && !json.Valid(entry.RequestBody) {
		entry.RequestBody = nil
	}
	if len(entry.Response) > 0 && !json.Valid(entry.Response) {
		quoted, _ := json.Marshal(string(entry.Response))
		entry.Response = quoted
	}
	t.write(entry)
}

func (t *Tracer) write(entry TraceEntry) {
	data, err := json.Marshal(entry)
	if err != nil {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.file == nil {
		return
	}
	_, _ = t.file.Write(append(data, '\n'))
}

// Close closes the trace file.
func (t *Tracer) Close() error {
	if t == nil {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.file == nil {
		return nil
	}
	err := t.file.Close()
	t.file = nil
	return err
}
