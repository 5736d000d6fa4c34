package sandbox

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// coarsePermissions is the fixed set of coarse capability tags
// synthesized for every invocation, per spec.md §4.7.
var coarsePermissions = []string{"memory:read", "memory:write", "ai:call", "net:fetch", "app:call"}

// EngineRequest is everything the sandbox engine needs to run one
// function invocation.
type EngineRequest struct {
	ExecutionID  string
	Source       string
	FunctionName string
	Args         []any // always a one-element positional list: [args]
	Surface      *Surface
	Permissions  []string
}

// EngineResult is the sandbox's raw outcome, before the gateway
// attaches timing.
type EngineResult struct {
	Success     bool
	Result      any
	Error       string
	Logs        []string
	AICostCents int64
}

// Engine runs EngineRequest to completion or its own wall-clock
// ceiling. The gateway imposes no second timeout layer (spec.md §5).
type Engine interface {
	Invoke(ctx context.Context, req EngineRequest) (EngineResult, error)
}

// Outcome adds gateway-measured duration to the engine's result, for
// the call logger and billing settler.
type Outcome struct {
	ExecutionID string
	Success     bool
	Result      any
	Error       string
	Logs        []string
	AICostCents int64
	Duration    time.Duration
}

// Gateway builds invocation requests and times the sandbox call.
type Gateway struct {
	engine Engine
	now    func() time.Time
}

// New builds a Gateway around engine.
func New(engine Engine) *Gateway {
	return &Gateway{engine: engine, now: time.Now}
}

// Invoke synthesizes an executionId, converts args into the
// one-element positional list the engine expects, times the call, and
// returns its Outcome.
func (g *Gateway) Invoke(ctx context.Context, source, functionName string, args map[string]any, surface *Surface) (Outcome, error) {
	executionID := uuid.NewString()

	req := EngineRequest{
		ExecutionID:  executionID,
		Source:       source,
		FunctionName: functionName,
		Args:         []any{args},
		Surface:      surface,
		Permissions:  coarsePermissions,
	}

	start := g.now()
	result, err := g.engine.Invoke(ctx, req)
	duration := g.now().Sub(start)

	if err != nil {
		return Outcome{ExecutionID: executionID, Duration: duration}, err
	}

	return Outcome{
		ExecutionID: executionID,
		Success:     result.Success,
		Result:      result.Result,
		Error:       result.Error,
		Logs:        result.Logs,
		AICostCents: result.AICostCents,
		Duration:    duration,
	}, nil
}
