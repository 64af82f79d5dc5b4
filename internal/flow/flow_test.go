package flow

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/jordancj7/folio/internal/ailink"
	"github.com/jordancj7/folio/internal/core"
	"github.com/jordancj7/folio/internal/core/engine"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m, goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"))
}

// spyModel records every call and replies with a canned document.
type spyModel struct {
	mu    sync.Mutex
	calls []ailink.GenerateRequest
	raw   string
	err   error
}

func (m *spyModel) Generate(ctx context.Context, req ailink.GenerateRequest) (*ailink.GenerateResponse, error) {
	m.mu.Lock()
	m.calls = append(m.calls, req)
	m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	return &ailink.GenerateResponse{Raw: json.RawMessage(m.raw), Provider: "spy", Model: "spy-1"}, nil
}

func (m *spyModel) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

func (m *spyModel) last() ailink.GenerateRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[len(m.calls)-1]
}

// countingLimiter wraps a limiter and counts checks.
type countingLimiter struct {
	inner  Limiter
	mu     sync.Mutex
	checks int
}

func (l *countingLimiter) Check(ctx context.Context, key string) core.Decision {
	l.mu.Lock()
	l.checks++
	l.mu.Unlock()
	return l.inner.Check(ctx, key)
}

func (l *countingLimiter) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.checks
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newLimiter(rpm, rpd int) (*countingLimiter, *engine.RateLimiter, *clock) {
	clk := &clock{now: time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)}
	limiter := engine.NewRateLimiter(engine.NewMemoryWindowStore(), engine.RateLimits{RequestsPerMinute: rpm, RequestsPerDay: rpd})
	limiter.Clock = clk.Now
	return &countingLimiter{inner: limiter}, limiter, clk
}

func validRefine() RefineInput {
	return RefineInput{Description: "A tool that helps teams plan sprints.", TonePreferences: "formal"}
}

func TestRefineRejectsShortDescriptionBeforeLimiter(t *testing.T) {
	limiter, _, _ := newLimiter(5, 20)
	model := &spyModel{raw: `{"refinedDescription":"x"}`}
	refine, err := NewRefineFlow(Deps{Model: model, Limiter: limiter})
	require.NoError(t, err)

	_, err = refine.Invoke(context.Background(), "", RefineInput{Description: "too short", TonePreferences: "formal"})
	require.Error(t, err)

	ferr, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, KindInvalidInput, ferr.Kind)
	assert.Equal(t, 0, limiter.count())
	assert.Equal(t, 0, model.count())
}

func TestRefineRejectsToneBounds(t *testing.T) {
	limiter, _, _ := newLimiter(5, 20)
	model := &spyModel{raw: `{"refinedDescription":"x"}`}
	refine, err := NewRefineFlow(Deps{Model: model, Limiter: limiter})
	require.NoError(t, err)

	for _, tone := range []string{"ab", strings.Repeat("t", 101)} {
		in := validRefine()
		in.TonePreferences = tone
		_, err := refine.Invoke(context.Background(), "", in)
		ferr, ok := AsError(err)
		require.True(t, ok, tone)
		assert.Equal(t, KindInvalidInput, ferr.Kind)
	}

	in := validRefine()
	in.Description = strings.Repeat("d", 2001)
	_, err = refine.Invoke(context.Background(), "", in)
	ferr, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, KindInvalidInput, ferr.Kind)

	assert.Equal(t, 0, model.count())
}

func TestRefineSucceeds(t *testing.T) {
	limiter, _, _ := newLimiter(5, 20)
	model := &spyModel{raw: `{"refinedDescription":"A polished description."}`}
	refine, err := NewRefineFlow(Deps{Model: model, Limiter: limiter, Timeout: time.Second})
	require.NoError(t, err)

	out, err := refine.Invoke(context.Background(), "", validRefine())
	require.NoError(t, err)
	assert.Equal(t, "A polished description.", out.RefinedDescription)

	req := model.last()
	assert.Equal(t, RefinePromptSlug, req.PromptSlug)
	assert.Equal(t, "formal", req.Variables["tone"])
	assert.Equal(t, validRefine().Description, req.Variables["description"])
	assert.Equal(t, time.Second, req.Timeout)
	require.NotNil(t, req.ResponseSchema)
	assert.ElementsMatch(t, []any{"refinedDescription"}, req.ResponseSchema["required"])
}

func TestChatDenialMatchesLimiterMessage(t *testing.T) {
	limiter, inner, clk := newLimiter(1, 20)
	model := &spyModel{raw: `{"response":"hi","isRelevant":true}`}
	chat, err := NewChatFlow(Deps{Model: model, Limiter: limiter}, ChatOptions{})
	require.NoError(t, err)

	_, err = chat.Invoke(context.Background(), "", ChatInput{Message: "Who are you?"})
	require.NoError(t, err)
	require.Equal(t, 1, model.count())

	// Peek at the decision the limiter will give the next caller without recording it.
	usage, err := inner.Status(context.Background(), "")
	require.NoError(t, err)
	require.Equal(t, 1, usage.MinuteUsed)

	_, err = chat.Invoke(context.Background(), "", ChatInput{Message: "And again?"})
	require.Error(t, err)
	ferr, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, KindQuotaExceeded, ferr.Kind)
	assert.Equal(t, core.LimitRPM, ferr.Limit)
	assert.Equal(t, "Rate limit exceeded. Maximum 1 requests per minute. Please try again in about 60 seconds.", err.Error())
	assert.Equal(t, 60*time.Second, ferr.RetryAfter)
	assert.True(t, IsQuotaError(err))
	assert.Equal(t, 1, model.count())

	clk.Advance(61 * time.Second)
	_, err = chat.Invoke(context.Background(), "", ChatInput{Message: "After the window?"})
	require.NoError(t, err)
	assert.Equal(t, 2, model.count())
}

func TestChatDenialSkipsModelEntirely(t *testing.T) {
	denied := core.Decision{Allowed: false, Message: "Daily request limit exceeded. Maximum 20 requests per day. Please try again tomorrow.", Kind: core.LimitRPD, RetryAfter: time.Hour}
	model := &spyModel{raw: `{"response":"hi","isRelevant":true}`}
	chat, err := NewChatFlow(Deps{Model: model, Limiter: fixedLimiter(denied)}, ChatOptions{})
	require.NoError(t, err)

	_, err = chat.Invoke(context.Background(), "", ChatInput{Message: "hello"})
	require.Error(t, err)
	assert.Equal(t, denied.Message, err.Error())
	assert.Equal(t, 0, model.count())
}

type fixedLimiter core.Decision

func (f fixedLimiter) Check(context.Context, string) core.Decision { return core.Decision(f) }

func TestChatChecksRateBeforeValidation(t *testing.T) {
	limiter, _, _ := newLimiter(5, 20)
	model := &spyModel{raw: `{"response":"hi","isRelevant":true}`}
	chat, err := NewChatFlow(Deps{Model: model, Limiter: limiter}, ChatOptions{})
	require.NoError(t, err)

	_, err = chat.Invoke(context.Background(), "", ChatInput{Message: ""})
	ferr, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, KindInvalidInput, ferr.Kind)
	assert.Equal(t, 1, limiter.count())
	assert.Equal(t, 0, model.count())

	_, err = chat.Invoke(context.Background(), "", ChatInput{Message: "hi", ConversationHistory: []ChatTurn{{Role: "system", Content: "x"}}})
	ferr, ok = AsError(err)
	require.True(t, ok)
	assert.Equal(t, KindInvalidInput, ferr.Kind)
}

func TestChatRendersKnowledgeAndHistory(t *testing.T) {
	limiter, _, _ := newLimiter(5, 20)
	model := &spyModel{raw: `{"response":"Ada builds compilers.","isRelevant":true}`}
	chat, err := NewChatFlow(Deps{Model: model, Limiter: limiter}, ChatOptions{Owner: "Ada", Knowledge: "Ada builds compilers.", MaxHistory: 2})
	require.NoError(t, err)

	out, err := chat.Invoke(context.Background(), "ip:203.0.113.7", ChatInput{
		Message: "What does she build?",
		ConversationHistory: []ChatTurn{
			{Role: "user", Content: "dropped"},
			{Role: "user", Content: "Hi"},
			{Role: "assistant", Content: "Hello! Ask me about Ada."},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, ChatOutput{Response: "Ada builds compilers.", IsRelevant: true}, out)

	vars := model.last().Variables
	assert.Equal(t, "Ada", vars["owner"])
	assert.Equal(t, "Ada builds compilers.", vars["knowledge"])
	assert.Equal(t, "What does she build?", vars["message"])
	assert.Equal(t, "user: Hi\nassistant: Hello! Ask me about Ada.", vars["history"])
}

func TestChatDefaultsToEmbeddedKnowledge(t *testing.T) {
	limiter, _, _ := newLimiter(5, 20)
	model := &spyModel{raw: `{"response":"ok","isRelevant":false}`}
	chat, err := NewChatFlow(Deps{Model: model, Limiter: limiter}, ChatOptions{})
	require.NoError(t, err)

	_, err = chat.Invoke(context.Background(), "", ChatInput{Message: "What's the weather?"})
	require.NoError(t, err)
	vars := model.last().Variables
	assert.Equal(t, DefaultOwner, vars["owner"])
	assert.Equal(t, DefaultKnowledge(), vars["knowledge"])
	assert.Empty(t, vars["history"])
}

func TestProviderFailureConsumesQuota(t *testing.T) {
	limiter, inner, _ := newLimiter(5, 20)
	model := &spyModel{err: errors.New("upstream exploded")}
	refine, err := NewRefineFlow(Deps{Model: model, Limiter: limiter})
	require.NoError(t, err)

	_, err = refine.Invoke(context.Background(), "", validRefine())
	ferr, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, KindProviderFailure, ferr.Kind)
	assert.Equal(t, providerFailureMessage, err.Error())
	assert.NotContains(t, err.Error(), "exploded")
	assert.False(t, ferr.Timeout())

	usage, err := inner.Status(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, 1, usage.MinuteUsed)
	assert.Equal(t, 1, usage.DayUsed)
}

func TestProviderTimeout(t *testing.T) {
	limiter, _, _ := newLimiter(5, 20)
	model := &spyModel{err: context.DeadlineExceeded}
	refine, err := NewRefineFlow(Deps{Model: model, Limiter: limiter})
	require.NoError(t, err)

	_, err = refine.Invoke(context.Background(), "", validRefine())
	ferr, ok := AsError(err)
	require.True(t, ok)
	assert.True(t, ferr.Timeout())
	assert.True(t, ferr.Retryable())
}

func TestMalformedModelOutputIsProviderFailure(t *testing.T) {
	for _, raw := range []string{`{"refined":"wrong key"}`, `{"refinedDescription":42}`, ``} {
		limiter, _, _ := newLimiter(5, 20)
		model := &spyModel{raw: raw}
		refine, err := NewRefineFlow(Deps{Model: model, Limiter: limiter})
		require.NoError(t, err)

		_, err = refine.Invoke(context.Background(), "", validRefine())
		ferr, ok := AsError(err)
		require.True(t, ok, raw)
		assert.Equal(t, KindProviderFailure, ferr.Kind, raw)
	}
}

func TestStateTransitions(t *testing.T) {
	var (
		mu     sync.Mutex
		states []State
	)
	observe := func(tr Transition) {
		mu.Lock()
		defer mu.Unlock()
		states = append(states, tr.To)
	}
	reset := func() []State {
		mu.Lock()
		defer mu.Unlock()
		out := states
		states = nil
		return out
	}

	limiter, _, _ := newLimiter(1, 20)
	model := &spyModel{raw: `{"refinedDescription":"ok"}`}
	refine, err := NewRefineFlow(Deps{Model: model, Limiter: limiter, Observer: observe})
	require.NoError(t, err)

	_, err = refine.Invoke(context.Background(), "", validRefine())
	require.NoError(t, err)
	assert.Equal(t, []State{StateValidating, StateRateChecking, StatePrompting, StateModelCalling, StateSucceeded}, reset())

	_, err = refine.Invoke(context.Background(), "", validRefine())
	require.Error(t, err)
	assert.Equal(t, []State{StateValidating, StateRateChecking, StateRejected}, reset())

	chat, err := NewChatFlow(Deps{Model: model, Limiter: limiter, Observer: observe}, ChatOptions{})
	require.NoError(t, err)
	_, err = chat.Invoke(context.Background(), "", ChatInput{Message: "hi"})
	require.Error(t, err)
	got := reset()
	assert.Equal(t, []State{StateRateChecking, StateRejected}, got)
	assert.True(t, got[len(got)-1].Terminal())
}

func TestIsQuotaErrorByMessage(t *testing.T) {
	assert.True(t, IsQuotaError(errors.New("Daily request limit exceeded. Maximum 20 requests per day. Please try again tomorrow.")))
	assert.True(t, IsQuotaError(errors.New("Rate limit exceeded. Maximum 5 requests per minute.")))
	assert.False(t, IsQuotaError(errors.New("boom")))
	assert.False(t, IsQuotaError(nil))
	assert.False(t, IsQuotaError(&Error{Kind: KindInvalidInput, Message: "Rate limit exceeded"}))
}

func TestNewRequiresCollaborators(t *testing.T) {
	_, err := NewRefineFlow(Deps{})
	require.Error(t, err)
}
