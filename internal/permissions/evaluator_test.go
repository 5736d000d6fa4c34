package permissions

import (
	"testing"
	"time"

	"github.com/ultralight/host/internal/model"
)

func TestEvaluate_NilRowAllows(t *testing.T) {
	d := Evaluate(nil, "", time.Now(), nil)
	if !d.Allowed {
		t.Errorf("expected nil row to allow, got %+v", d)
	}
}

func TestEvaluate_NotAllowed(t *testing.T) {
	row := &model.PermissionRow{Allowed: false}
	d := Evaluate(row, "", time.Now(), nil)
	if d.Allowed {
		t.Error("expected denial for allowed=false row")
	}
}

func TestEvaluate_Expiry(t *testing.T) {
	past := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	row := &model.PermissionRow{Allowed: true, ExpiresAt: &past}
	d := Evaluate(row, "", time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), nil)
	if d.Allowed || d.Reason != "expired" {
		t.Errorf("got %+v", d)
	}
}

func TestEvaluate_IPAllowlist(t *testing.T) {
	row := &model.PermissionRow{Allowed: true, AllowedIPs: []string{"10.0.0.0/8"}}

	if d := Evaluate(row, "11.0.0.1", time.Now(), nil); d.Allowed {
		t.Error("expected denial for out-of-range IP")
	}
	if d := Evaluate(row, "10.5.5.5", time.Now(), nil); !d.Allowed {
		t.Errorf("expected allow for in-range IP, got %+v", d)
	}
}

func TestEvaluate_IPAllowlist_ExactMatch(t *testing.T) {
	row := &model.PermissionRow{Allowed: true, AllowedIPs: []string{"192.168.1.1"}}
	if d := Evaluate(row, "192.168.1.1", time.Now(), nil); !d.Allowed {
		t.Errorf("expected exact IP match to allow, got %+v", d)
	}
	if d := Evaluate(row, "192.168.1.2", time.Now(), nil); d.Allowed {
		t.Error("expected non-matching exact IP to deny")
	}
}

func TestEvaluate_IPAllowlist_SkippedWhenNoClientIP(t *testing.T) {
	row := &model.PermissionRow{Allowed: true, AllowedIPs: []string{"10.0.0.0/8"}}
	if d := Evaluate(row, "", time.Now(), nil); !d.Allowed {
		t.Errorf("expected skip when clientIP empty, got %+v", d)
	}
}

func TestEvaluate_CIDRBoundaries(t *testing.T) {
	cases := []struct {
		cidr  string
		ip    string
		match bool
	}{
		{"0.0.0.0/0", "1.2.3.4", true},
		{"1.2.3.4/32", "1.2.3.4", true},
		{"1.2.3.4/32", "1.2.3.5", false},
		{"1.2.3.0/24", "1.2.3.255", true},
		{"1.2.3.0/24", "1.2.4.0", false},
	}
	for _, tc := range cases {
		row := &model.PermissionRow{Allowed: true, AllowedIPs: []string{tc.cidr}}
		d := Evaluate(row, tc.ip, time.Now(), nil)
		if d.Allowed != tc.match {
			t.Errorf("cidr=%s ip=%s: allowed=%v, want %v", tc.cidr, tc.ip, d.Allowed, tc.match)
		}
	}
}

func TestEvaluate_TimeWindow_Normal(t *testing.T) {
	row := &model.PermissionRow{
		Allowed:    true,
		TimeWindow: &model.TimeWindow{StartHour: 9, EndHour: 17},
	}
	inWindow := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	outWindow := time.Date(2026, 1, 1, 20, 0, 0, 0, time.UTC)

	if d := Evaluate(row, "", inWindow, nil); !d.Allowed {
		t.Errorf("expected allow at noon, got %+v", d)
	}
	if d := Evaluate(row, "", outWindow, nil); d.Allowed {
		t.Error("expected deny at 20:00")
	}
}

func TestEvaluate_TimeWindow_WrapsPastMidnight(t *testing.T) {
	row := &model.PermissionRow{
		Allowed:    true,
		TimeWindow: &model.TimeWindow{StartHour: 22, EndHour: 6},
	}
	lateNight := time.Date(2026, 1, 1, 23, 0, 0, 0, time.UTC)
	earlyMorning := time.Date(2026, 1, 1, 3, 0, 0, 0, time.UTC)
	midday := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	if d := Evaluate(row, "", lateNight, nil); !d.Allowed {
		t.Errorf("expected allow at 23:00 for wrapping window, got %+v", d)
	}
	if d := Evaluate(row, "", earlyMorning, nil); !d.Allowed {
		t.Errorf("expected allow at 03:00 for wrapping window, got %+v", d)
	}
	if d := Evaluate(row, "", midday, nil); d.Allowed {
		t.Error("expected deny at noon for a 22-06 wrapping window")
	}
}

func TestEvaluate_TimeWindow_Days(t *testing.T) {
	row := &model.PermissionRow{
		Allowed:    true,
		TimeWindow: &model.TimeWindow{StartHour: 0, EndHour: 24, Days: []int{1, 2, 3, 4, 5}}, // weekdays
	}
	saturday := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC) // a Saturday
	monday := time.Date(2026, 8, 3, 12, 0, 0, 0, time.UTC)   // a Monday

	if d := Evaluate(row, "", saturday, nil); d.Allowed {
		t.Error("expected deny on Saturday")
	}
	if d := Evaluate(row, "", monday, nil); !d.Allowed {
		t.Errorf("expected allow on Monday, got %+v", d)
	}
}

func TestEvaluate_Budget(t *testing.T) {
	limit := int64(10)
	rowAtLimit := &model.PermissionRow{Allowed: true, BudgetLimit: &limit, BudgetUsed: 10}
	rowUnderLimit := &model.PermissionRow{Allowed: true, BudgetLimit: &limit, BudgetUsed: 9}

	if d := Evaluate(rowAtLimit, "", time.Now(), nil); d.Allowed || d.Reason != "budget exhausted" {
		t.Errorf("got %+v", d)
	}
	if d := Evaluate(rowUnderLimit, "", time.Now(), nil); !d.Allowed {
		t.Errorf("expected allow under budget, got %+v", d)
	}
}

func TestEvaluate_ArgWhitelist(t *testing.T) {
	row := &model.PermissionRow{
		Allowed:     true,
		AllowedArgs: map[string][]any{"region": {"us-east", "us-west"}},
	}

	if d := Evaluate(row, "", time.Now(), map[string]any{"region": "us-east"}); !d.Allowed {
		t.Errorf("expected allow for whitelisted value, got %+v", d)
	}
	if d := Evaluate(row, "", time.Now(), map[string]any{"region": "eu-west"}); d.Allowed {
		t.Error("expected deny for non-whitelisted value")
	}
	if d := Evaluate(row, "", time.Now(), map[string]any{"other": "anything"}); !d.Allowed {
		t.Errorf("expected allow for parameter absent from whitelist, got %+v", d)
	}
}

func TestEvaluate_ArgWhitelist_EmptyListBlocksAll(t *testing.T) {
	row := &model.PermissionRow{
		Allowed:     true,
		AllowedArgs: map[string][]any{"region": {}},
	}
	if d := Evaluate(row, "", time.Now(), map[string]any{"region": "us-east"}); d.Allowed {
		t.Error("expected empty whitelist to block all values for a present parameter")
	}
}

func TestEvaluate_Precedence_ExpiryBeforeIP(t *testing.T) {
	past := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	row := &model.PermissionRow{
		Allowed:    true,
		ExpiresAt:  &past,
		AllowedIPs: []string{"10.0.0.0/8"},
	}
	d := Evaluate(row, "11.0.0.1", time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), nil)
	if d.Reason != "expired" {
		t.Errorf("expected expiry to take precedence, got reason %q", d.Reason)
	}
}

func TestPeriodStart(t *testing.T) {
	now := time.Date(2026, 8, 5, 14, 30, 0, 0, time.UTC) // a Wednesday

	cases := []struct {
		period model.BudgetPeriod
		want   time.Time
	}{
		{model.BudgetHour, time.Date(2026, 8, 5, 14, 0, 0, 0, time.UTC)},
		{model.BudgetDay, time.Date(2026, 8, 5, 0, 0, 0, 0, time.UTC)},
		{model.BudgetWeek, time.Date(2026, 8, 2, 0, 0, 0, 0, time.UTC)}, // preceding Sunday
		{model.BudgetMonth, time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)},
	}
	for _, tc := range cases {
		got := PeriodStart(tc.period, now)
		if !got.Equal(tc.want) {
			t.Errorf("PeriodStart(%s) = %v, want %v", tc.period, got, tc.want)
		}
	}
}
