package sandbox

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeEngine struct {
	result EngineResult
	err    error
	gotReq EngineRequest
	delay  time.Duration
}

func (f *fakeEngine) Invoke(ctx context.Context, req EngineRequest) (EngineResult, error) {
	f.gotReq = req
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	return f.result, f.err
}

func TestInvoke_WrapsArgsAsPositionalList(t *testing.T) {
	engine := &fakeEngine{result: EngineResult{Success: true, Result: "ok"}}
	gw := New(engine)

	args := map[string]any{"x": 1}
	_, err := gw.Invoke(context.Background(), "code", "doThing", args, &Surface{})
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}

	if len(engine.gotReq.Args) != 1 {
		t.Fatalf("expected one-element positional arg list, got %v", engine.gotReq.Args)
	}
	if m, ok := engine.gotReq.Args[0].(map[string]any); !ok || m["x"] != 1 {
		t.Errorf("expected args[0] to be the original arg map, got %v", engine.gotReq.Args[0])
	}
}

func TestInvoke_SynthesizesExecutionIDAndPermissions(t *testing.T) {
	engine := &fakeEngine{result: EngineResult{Success: true}}
	gw := New(engine)

	outcome, err := gw.Invoke(context.Background(), "code", "fn", nil, &Surface{})
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	if outcome.ExecutionID == "" {
		t.Error("expected a non-empty executionId")
	}
	if len(engine.gotReq.Permissions) != 5 {
		t.Errorf("expected 5 coarse permission tags, got %v", engine.gotReq.Permissions)
	}
}

func TestInvoke_MeasuresDuration(t *testing.T) {
	engine := &fakeEngine{result: EngineResult{Success: true}, delay: 10 * time.Millisecond}
	gw := New(engine)

	outcome, err := gw.Invoke(context.Background(), "code", "fn", nil, &Surface{})
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	if outcome.Duration < 10*time.Millisecond {
		t.Errorf("expected duration >= 10ms, got %v", outcome.Duration)
	}
}

func TestInvoke_EngineErrorPropagates(t *testing.T) {
	engine := &fakeEngine{err: errors.New("sandbox crashed")}
	gw := New(engine)

	_, err := gw.Invoke(context.Background(), "code", "fn", nil, &Surface{})
	if err == nil {
		t.Error("expected engine error to propagate")
	}
}

func TestNoBYOKAiCaller(t *testing.T) {
	resp, err := (NoBYOKAiCaller{}).Call(context.Background(), AiRequest{})
	if err != nil {
		t.Fatalf("Call() error = %v", err)
	}
	if resp.Error != "BYOK not configured" || resp.Usage.CostCents != 0 {
		t.Errorf("got %+v", resp)
	}
}

func TestBuildSurface_DefaultsAppScope(t *testing.T) {
	s := BuildSurface("app-42", nil, nil, nil, nil, map[string]string{"K": "v"})
	if s.AppScope != "app:app-42" {
		t.Errorf("got AppScope %q", s.AppScope)
	}
	if s.Env["K"] != "v" {
		t.Error("expected env to carry through")
	}
}
