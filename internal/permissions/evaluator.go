// Package permissions implements the Permission Resolver (C3) and the
// Constraint Evaluator (C4): resolving which functions a caller may
// invoke on an app, and checking a single permission row's constraints
// against a concrete call. See spec.md §4.4.
package permissions

import (
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/ultralight/host/internal/model"
)

// Decision is the Constraint Evaluator's pure result.
type Decision struct {
	Allowed bool
	Reason  string
}

func allow() Decision { return Decision{Allowed: true} }

func deny(reason string) Decision { return Decision{Allowed: false, Reason: reason} }

// Evaluate checks row's constraints against a concrete call, in the
// fixed precedence order spec.md §4.4 mandates: expiry, IP allowlist,
// time window, budget, argument whitelist. It is a pure function of
// its inputs — same (row, clientIP, now, args) always yields the same
// Decision (spec.md §8 invariant 2).
func Evaluate(row *model.PermissionRow, clientIP string, now time.Time, args map[string]any) Decision {
	if row == nil {
		return allow()
	}
	if !row.Allowed {
		return deny("not permitted")
	}

	if row.ExpiresAt != nil && !now.Before(*row.ExpiresAt) {
		return deny("expired")
	}

	if d := checkIPAllowlist(row.AllowedIPs, clientIP); !d.Allowed {
		return d
	}

	if d := checkTimeWindow(row.TimeWindow, now); !d.Allowed {
		return d
	}

	if row.BudgetLimit != nil && row.BudgetUsed >= *row.BudgetLimit {
		return deny("budget exhausted")
	}

	if d := checkArgWhitelist(row.AllowedArgs, args); !d.Allowed {
		return d
	}

	return allow()
}

func checkIPAllowlist(allowedIPs []string, clientIP string) Decision {
	if len(allowedIPs) == 0 || clientIP == "" {
		return allow()
	}

	ip := net.ParseIP(clientIP)
	if ip == nil {
		return deny(fmt.Sprintf("Permission denied: invalid client IP %q", clientIP))
	}

	for _, entry := range allowedIPs {
		if ipMatchesEntry(ip, entry) {
			return allow()
		}
	}
	return deny(fmt.Sprintf("Permission denied: %s not in allowlist", clientIP))
}

// ipMatchesEntry reports whether ip matches entry, which is either an
// exact IPv4 address or a CIDR a.b.c.d/p. Malformed entries never
// match (spec.md §4.4 item 2).
func ipMatchesEntry(ip net.IP, entry string) bool {
	if !strings.Contains(entry, "/") {
		exact := net.ParseIP(entry)
		return exact != nil && exact.Equal(ip)
	}

	_, network, err := net.ParseCIDR(entry)
	if err != nil {
		return false
	}
	return network.Contains(ip)
}

func checkTimeWindow(w *model.TimeWindow, now time.Time) Decision {
	if w == nil {
		return allow()
	}

	loc := time.UTC
	if w.Timezone != "" {
		l, err := time.LoadLocation(w.Timezone)
		if err == nil {
			loc = l
		}
	}

	local := now.In(loc)
	hour := local.Hour()
	weekday := int(local.Weekday())

	if len(w.Days) > 0 && !containsInt(w.Days, weekday) {
		return deny("outside allowed days")
	}

	var inWindow bool
	if w.StartHour < w.EndHour {
		inWindow = hour >= w.StartHour && hour < w.EndHour
	} else {
		inWindow = hour >= w.StartHour || hour < w.EndHour
	}
	if !inWindow {
		return deny("outside allowed time window")
	}

	return allow()
}

func checkArgWhitelist(allowedArgs map[string][]any, args map[string]any) Decision {
	if len(allowedArgs) == 0 {
		return allow()
	}

	for name, whitelist := range allowedArgs {
		value, present := args[name]
		if !present {
			continue
		}
		if !scalarInList(value, whitelist) {
			return deny(fmt.Sprintf("Permission denied: argument %q value not whitelisted", name))
		}
	}
	return allow()
}

func scalarInList(value any, whitelist []any) bool {
	for _, candidate := range whitelist {
		if candidate == value {
			return true
		}
	}
	return false
}

func containsInt(xs []int, v int) bool {
	for _, x := range xs {
		if x == v {
			return true
		}
	}
	return false
}

// PeriodStart computes the start of the budget period containing now,
// per spec.md §4.4 item 4. It is informational: the evaluator never
// resets budget_used itself, a separate sweeper does.
func PeriodStart(period model.BudgetPeriod, now time.Time) time.Time {
	u := now.UTC()
	switch period {
	case model.BudgetHour:
		return time.Date(u.Year(), u.Month(), u.Day(), u.Hour(), 0, 0, 0, time.UTC)
	case model.BudgetDay:
		return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
	case model.BudgetWeek:
		daysSinceSunday := int(u.Weekday())
		d := time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
		return d.AddDate(0, 0, -daysSinceSunday)
	case model.BudgetMonth:
		return time.Date(u.Year(), u.Month(), 1, 0, 0, 0, 0, time.UTC)
	case model.BudgetLifetime:
		return time.Unix(0, 0).UTC()
	default:
		return time.Unix(0, 0).UTC()
	}
}
