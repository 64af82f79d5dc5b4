package flow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fulmenhq/gofulmen/logging"
	"go.uber.org/zap"

	"github.com/jordancj7/folio/internal/ailink"
	"github.com/jordancj7/folio/internal/core"
	"github.com/jordancj7/folio/internal/metrics"
)

// Model generates a JSON document from a named prompt. *ailink.Service
// implements it.
type Model interface {
	Generate(ctx context.Context, req ailink.GenerateRequest) (*ailink.GenerateResponse, error)
}

// Limiter admits or rejects a request for a caller key.
// *engine.RateLimiter implements it.
type Limiter interface {
	Check(ctx context.Context, key string) core.Decision
}

// Order selects whether input validation runs before or after the rate check.
type Order int

const (
	// ValidateFirst rejects malformed input without consuming quota.
	ValidateFirst Order = iota
	// RateCheckFirst consumes quota even for input that later fails validation.
	RateCheckFirst
)

// Deps are the collaborators shared by every flow.
type Deps struct {
	Model   Model
	Limiter Limiter
	Logger  *logging.Logger

	// Timeout bounds the model call. Zero leaves it to the model.
	Timeout time.Duration

	// Observer, when set, is called on every state change.
	Observer func(Transition)
}

// Definition describes one flow.
type Definition[In, Out any] struct {
	Name       string
	PromptSlug string
	Order      Order

	// Variables renders the prompt variables for a validated input.
	Variables func(In) map[string]string
}

// Flow is a rate limited, schema validated call to the model.
type Flow[In, Out any] struct {
	def          Definition[In, Out]
	deps         Deps
	inputSchema  map[string]any
	outputSchema map[string]any
}

// New builds a flow, deriving its input and output schemas from In and Out.
func New[In, Out any](def Definition[In, Out], deps Deps) (*Flow[In, Out], error) {
	if def.Name == "" || def.PromptSlug == "" {
		return nil, errors.New("flow name and prompt slug are required")
	}
	if def.Variables == nil {
		return nil, fmt.Errorf("flow %s: variables renderer is required", def.Name)
	}
	if deps.Model == nil || deps.Limiter == nil {
		return nil, fmt.Errorf("flow %s: model and limiter are required", def.Name)
	}

	inputSchema, err := ailink.ReflectSchema(new(In))
	if err != nil {
		return nil, fmt.Errorf("flow %s: input schema: %w", def.Name, err)
	}
	outputSchema, err := ailink.ReflectSchema(new(Out))
	if err != nil {
		return nil, fmt.Errorf("flow %s: output schema: %w", def.Name, err)
	}

	return &Flow[In, Out]{def: def, deps: deps, inputSchema: inputSchema, outputSchema: outputSchema}, nil
}

// Name returns the flow name.
func (f *Flow[In, Out]) Name() string {
	return f.def.Name
}

// InputSchema returns the JSON Schema the input is validated against.
func (f *Flow[In, Out]) InputSchema() map[string]any {
	return f.inputSchema
}

// Invoke runs the flow for callerKey. Rejected requests never reach the model;
// a failed model call still counts against the caller's quota.
func (f *Flow[In, Out]) Invoke(ctx context.Context, callerKey string, in In) (Out, error) {
	var zero Out
	run := &invocation{flow: f.def.Name, deps: f.deps, started: time.Now()}

	if f.def.Order == ValidateFirst {
		run.to(StateValidating)
		if err := f.validate(in); err != nil {
			return zero, run.fail(StateRejected, err)
		}
		run.to(StateRateChecking)
		if err := f.admit(ctx, callerKey); err != nil {
			return zero, run.fail(StateRejected, err)
		}
	} else {
		run.to(StateRateChecking)
		if err := f.admit(ctx, callerKey); err != nil {
			return zero, run.fail(StateRejected, err)
		}
		run.to(StateValidating)
		if err := f.validate(in); err != nil {
			return zero, run.fail(StateRejected, err)
		}
	}

	run.to(StatePrompting)
	req := ailink.GenerateRequest{
		PromptSlug:     f.def.PromptSlug,
		Variables:      f.def.Variables(in),
		ResponseSchema: f.outputSchema,
		Timeout:        f.deps.Timeout,
	}

	run.to(StateModelCalling)
	callCtx := ctx
	if f.deps.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, f.deps.Timeout)
		defer cancel()
	}
	resp, err := f.deps.Model.Generate(callCtx, req)
	if err != nil {
		return zero, run.fail(StateFailed, providerFailure(err))
	}

	out, err := f.decode(resp)
	if err != nil {
		return zero, run.fail(StateFailed, providerFailure(err))
	}

	run.to(StateSucceeded)
	run.finish(resp)
	return out, nil
}

func (f *Flow[In, Out]) validate(in In) *Error {
	payload, err := json.Marshal(in)
	if err != nil {
		return invalidInput("Invalid input.", err)
	}
	if err := ailink.ValidateJSON(f.inputSchema, payload); err != nil {
		return invalidInput("Invalid input: "+err.Error(), err)
	}
	return nil
}

func (f *Flow[In, Out]) admit(ctx context.Context, key string) *Error {
	decision := f.deps.Limiter.Check(ctx, key)
	metrics.RecordQuotaDecision(f.def.Name, string(decision.Kind), decision.Allowed)
	if !decision.Allowed {
		return quotaError(decision)
	}
	return nil
}

func (f *Flow[In, Out]) decode(resp *ailink.GenerateResponse) (Out, error) {
	var out Out
	if resp == nil || len(resp.Raw) == 0 {
		return out, errors.New("model returned no output")
	}
	if err := ailink.ValidateJSON(f.outputSchema, resp.Raw); err != nil {
		return out, err
	}
	if err := json.Unmarshal(resp.Raw, &out); err != nil {
		return out, fmt.Errorf("decode model output: %w", err)
	}
	return out, nil
}

// invocation tracks the state of one Invoke call.
type invocation struct {
	flow    string
	deps    Deps
	state   State
	entered bool
	started time.Time
}

func (r *invocation) to(next State) {
	from := r.state
	r.state = next
	if !r.entered {
		r.entered = true
		from = next
	}
	if r.deps.Logger != nil {
		r.deps.Logger.Debug("Flow state",
			zap.String("flow", r.flow),
			zap.String("from", from.String()),
			zap.String("to", next.String()))
	}
	if r.deps.Observer != nil {
		r.deps.Observer(Transition{Flow: r.flow, From: from, To: next})
	}
}

func (r *invocation) fail(terminal State, err *Error) error {
	r.to(terminal)
	metrics.RecordFlow(r.flow, string(err.Kind), time.Since(r.started))
	if r.deps.Logger != nil {
		fields := []zap.Field{
			zap.String("flow", r.flow),
			zap.String("kind", string(err.Kind)),
		}
		if err.Err != nil {
			fields = append(fields, zap.Error(err.Err))
		}
		if err.Kind == KindProviderFailure {
			r.deps.Logger.Warn("Flow failed", fields...)
		} else {
			r.deps.Logger.Info("Flow rejected", fields...)
		}
	}
	return err
}

func (r *invocation) finish(resp *ailink.GenerateResponse) {
	metrics.RecordFlow(r.flow, "success", time.Since(r.started))
	if r.deps.Logger == nil {
		return
	}
	fields := []zap.Field{
		zap.String("flow", r.flow),
		zap.Duration("duration", time.Since(r.started)),
		zap.String("provider", resp.Provider),
		zap.String("model", resp.Model),
	}
	if resp.Usage != nil {
		fields = append(fields, zap.Int("total_tokens", resp.Usage.TotalTokens))
	}
	r.deps.Logger.Debug("Flow succeeded", fields...)
}
