package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/ultralight/host/internal/model"
)

func testLimits() EndpointLimits {
	return EndpointLimits{
		InitializePerMinute: 10,
		ToolsListPerMinute:  30,
		ToolsCallPerMinute:  3,
		WeeklyCallLimitByTier: map[string]int64{
			"free": 5,
		},
	}
}

func TestCheck_FallbackOnly_AllowsUnderLimit(t *testing.T) {
	l := New(nil, testLimits(), zerolog.Nop())
	req := Request{UserID: "u1", AppID: "app-1", Method: "tools/call", Tier: model.TierFree}

	for i := 0; i < 3; i++ {
		d := l.Check(context.Background(), req)
		if !d.Allowed {
			t.Fatalf("call %d: expected allow, got denial %+v", i, d)
		}
	}
}

func TestCheck_FallbackOnly_DeniesOverLimit(t *testing.T) {
	l := New(nil, testLimits(), zerolog.Nop())
	req := Request{UserID: "u2", AppID: "app-1", Method: "tools/call", Tier: model.TierPro}

	for i := 0; i < 3; i++ {
		l.Check(context.Background(), req)
	}
	d := l.Check(context.Background(), req)
	if d.Allowed {
		t.Error("expected 4th call within a minute to be denied (per-endpoint limit 3)")
	}
	if d.ResetAt.Before(time.Now()) {
		t.Error("expected ResetAt in the future")
	}
}

func TestCheck_OwnerBypassesAppLimits(t *testing.T) {
	limits := testLimits()
	limits.ToolsCallPerMinute = 1000 // avoid tripping the endpoint limit in this test
	l := New(nil, limits, zerolog.Nop())
	req := Request{
		UserID:    "owner-1",
		OwnerID:   "owner-1",
		AppID:     "app-1",
		Method:    "tools/call",
		Tier:      model.TierPro,
		AppLimits: model.RateLimitConfig{CallsPerMinute: 1},
	}

	for i := 0; i < 5; i++ {
		d := l.Check(context.Background(), req)
		if !d.Allowed {
			t.Fatalf("call %d: expected owner to bypass per-app limit, got %+v", i, d)
		}
	}
}

func TestCheck_NonOwnerHitsAppMinuteLimit(t *testing.T) {
	limits := testLimits()
	limits.ToolsCallPerMinute = 1000
	l := New(nil, limits, zerolog.Nop())
	req := Request{
		UserID:    "caller-1",
		OwnerID:   "owner-1",
		AppID:     "app-1",
		Method:    "tools/call",
		Tier:      model.TierEnterprise,
		AppLimits: model.RateLimitConfig{CallsPerMinute: 1},
	}

	first := l.Check(context.Background(), req)
	if !first.Allowed {
		t.Fatalf("expected first call to be allowed, got %+v", first)
	}
	second := l.Check(context.Background(), req)
	if second.Allowed {
		t.Error("expected second call to trip per-app-minute limit of 1")
	}
}

type erroringRemote struct{}

func (erroringRemote) IncrAndTest(ctx context.Context, key string, ttl time.Duration, limit int64) (int64, error) {
	return 0, errors.New("connection refused")
}

func TestCheck_RemoteErrorFallsBackInProcess(t *testing.T) {
	limits := testLimits()
	limits.ToolsCallPerMinute = 1
	l := New(erroringRemote{}, limits, zerolog.Nop())
	req := Request{UserID: "u3", AppID: "app-1", Method: "tools/call", Tier: model.TierPro}

	first := l.Check(context.Background(), req)
	if !first.Allowed {
		t.Fatalf("expected first call allowed via fallback, got %+v", first)
	}
	second := l.Check(context.Background(), req)
	if second.Allowed {
		t.Error("expected fallback to still enforce the limit on the second call")
	}
}

func TestCheck_InitializeOnlyChecksEndpointLimit(t *testing.T) {
	limits := testLimits()
	limits.InitializePerMinute = 1
	l := New(nil, limits, zerolog.Nop())
	req := Request{UserID: "u4", AppID: "app-1", OwnerID: "owner-1", Method: "initialize", Tier: model.TierFree}

	first := l.Check(context.Background(), req)
	if !first.Allowed {
		t.Fatalf("expected first initialize allowed, got %+v", first)
	}
	second := l.Check(context.Background(), req)
	if second.Allowed {
		t.Error("expected second initialize within the minute to be denied")
	}
}
