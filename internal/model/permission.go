package model

import "time"

// BudgetPeriod names how a budget_limit resets. Reset itself is the
// caller's concern (the evaluator is purely informational here) — see
// PeriodStart.
type BudgetPeriod string

const (
	BudgetHour     BudgetPeriod = "hour"
	BudgetDay      BudgetPeriod = "day"
	BudgetWeek     BudgetPeriod = "week"
	BudgetMonth    BudgetPeriod = "month"
	BudgetLifetime BudgetPeriod = "lifetime"
)

// TimeWindow restricts calls to an hour-of-day range (optionally further
// restricted to a set of weekdays) in a named timezone.
type TimeWindow struct {
	StartHour int // [0,24)
	EndHour   int // [0,24], 24 meaning end of day; window wraps past midnight when Start >= End
	Days      []int // 0=Sunday..6=Saturday; empty means "every day"
	Timezone  string // IANA zone name; "" means UTC
}

// PermissionRow is one (granted_to_user, app, function_name) tuple.
type PermissionRow struct {
	GrantedToUser string
	AppID         string
	FunctionName  string

	Allowed    bool
	AllowedIPs []string // exact IPv4 or CIDR; empty means unrestricted

	TimeWindow *TimeWindow

	BudgetLimit  *int64
	BudgetUsed   int64
	BudgetPeriod BudgetPeriod

	ExpiresAt *time.Time

	AllowedArgs map[string][]any // paramName -> whitelist of scalars
}

// ResolvedPermissions is the Permission Resolver's cache-stored result
// for a (user, app) pair. A nil *ResolvedPermissions means "no
// restrictions" (owner or public/unlisted visibility).
type ResolvedPermissions struct {
	Allowed map[string]struct{} // function names the caller may invoke
	Rows    []*PermissionRow
}

// RowFor finds the row governing a specific function, if any.
func (r *ResolvedPermissions) RowFor(function string) *PermissionRow {
	for _, row := range r.Rows {
		if row.FunctionName == function {
			return row
		}
	}
	return nil
}

// CanCall reports whether function is in the allowed set.
func (r *ResolvedPermissions) CanCall(function string) bool {
	if r == nil {
		return true // no restrictions
	}
	_, ok := r.Allowed[function]
	return ok
}
