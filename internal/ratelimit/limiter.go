// Package ratelimit implements the Rate Limiter (C5): five fixed
// window limits applied in parallel, fail-open on remote-store error,
// with an in-process fallback. See spec.md §4.5.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ultralight/host/internal/model"
)

// Decision is one limiter's outcome.
type Decision struct {
	Allowed   bool
	LimitName string
	ResetAt   time.Time
}

// Request describes the call being admitted.
type Request struct {
	UserID    string
	AppID     string
	OwnerID   string
	Method    string // "initialize" | "tools/list" | "tools/call"
	Tier      model.Tier
	AppLimits model.RateLimitConfig
}

func (r Request) isOwnerCall() bool {
	return r.OwnerID != "" && r.UserID == r.OwnerID
}

// EndpointLimits configures the per-minute cap for each JSON-RPC
// method, and the weekly cap per tier.
type EndpointLimits struct {
	InitializePerMinute  int
	ToolsListPerMinute   int
	ToolsCallPerMinute   int
	WeeklyCallLimitByTier map[string]int64
}

// Limiter evaluates all five admission limits.
type Limiter struct {
	remote   RemoteStore
	fallback *inProcessFallback
	limits   EndpointLimits
	log      zerolog.Logger
	now      func() time.Time
}

// New builds a Limiter. remote may be nil to run fallback-only (e.g.
// tests, or a deployment without redis configured).
func New(remote RemoteStore, limits EndpointLimits, log zerolog.Logger) *Limiter {
	return &Limiter{
		remote:   remote,
		fallback: newInProcessFallback(),
		limits:   limits,
		log:      log,
		now:      time.Now,
	}
}

type check struct {
	name  string
	key   string
	win   window
	limit int64
}

// Check runs every limit applicable to req.Method in parallel and
// returns the first denial found, or an allowing Decision if none
// denied.
func (l *Limiter) Check(ctx context.Context, req Request) Decision {
	checks := l.checksFor(req)
	if len(checks) == 0 {
		return Decision{Allowed: true}
	}

	results := make([]Decision, len(checks))
	var wg sync.WaitGroup
	for i, c := range checks {
		wg.Add(1)
		go func(i int, c check) {
			defer wg.Done()
			results[i] = l.evaluate(ctx, c)
		}(i, c)
	}
	wg.Wait()

	for _, d := range results {
		if !d.Allowed {
			return d
		}
	}
	return Decision{Allowed: true}
}

func (l *Limiter) checksFor(req Request) []check {
	now := l.now()
	var checks []check

	if perMinute, name := l.endpointLimit(req.Method); perMinute > 0 {
		win := minuteWindow(now)
		checks = append(checks, check{
			name:  name,
			key:   fmt.Sprintf("rl:endpoint:%s:%s:%s", req.Method, req.UserID, win.bucket),
			win:   win,
			limit: int64(perMinute),
		})
	}

	if req.Method == "tools/call" {
		if weeklyLimit, ok := l.limits.WeeklyCallLimitByTier[string(req.Tier)]; ok && weeklyLimit > 0 {
			win := isoWeekWindow(now)
			checks = append(checks, check{
				name:  "per-user-weekly",
				key:   fmt.Sprintf("rl:weekly:%s:%s", req.UserID, win.bucket),
				win:   win,
				limit: weeklyLimit,
			})
		}

		if !req.isOwnerCall() {
			if req.AppLimits.CallsPerMinute > 0 {
				win := minuteWindow(now)
				checks = append(checks, check{
					name:  "per-app-minute",
					key:   fmt.Sprintf("rl:app-minute:%s:%s", req.AppID, win.bucket),
					win:   win,
					limit: int64(req.AppLimits.CallsPerMinute),
				})
			}
			if req.AppLimits.CallsPerDay > 0 {
				win := dayWindow(now)
				checks = append(checks, check{
					name:  "per-app-day",
					key:   fmt.Sprintf("rl:app-day:%s:%s", req.AppID, win.bucket),
					win:   win,
					limit: int64(req.AppLimits.CallsPerDay),
				})
			}
		}
	}

	return checks
}

func (l *Limiter) endpointLimit(method string) (int, string) {
	switch method {
	case "initialize":
		return l.limits.InitializePerMinute, "mcp:initialize"
	case "tools/list":
		return l.limits.ToolsListPerMinute, "mcp:tools/list"
	case "tools/call":
		return l.limits.ToolsCallPerMinute, "mcp:tools/call"
	default:
		return 0, ""
	}
}

func (l *Limiter) evaluate(ctx context.Context, c check) Decision {
	if l.remote != nil {
		count, err := l.remote.IncrAndTest(ctx, c.key, time.Until(c.win.resetAt), c.limit)
		if err == nil {
			return Decision{Allowed: count <= c.limit, LimitName: c.name, ResetAt: c.win.resetAt}
		}
		l.log.Warn().Err(err).Str("limit", c.name).Msg("rate limiter remote store failed, falling back")
	}

	count := l.fallback.incrAndTest(c.key, c.win.resetAt)
	return Decision{Allowed: count <= c.limit, LimitName: c.name, ResetAt: c.win.resetAt}
}
