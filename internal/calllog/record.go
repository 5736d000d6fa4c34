// Package calllog implements the Call Logger (C10): a fire-and-forget,
// bounded-queue audit record for every tools/call. See spec.md §4.10.
package calllog

import (
	"time"

	"github.com/ultralight/host/internal/model"
)

// maxOutputBytes bounds how much of a call's output is persisted, per
// spec.md §4.10's "truncated by policy" requirement.
const maxOutputBytes = 8192

// Record captures everything spec.md §4.10 lists for one call.
type Record struct {
	Timestamp time.Time

	UserID         string
	AppID          string
	AppName        string
	AppVersion     string
	FunctionName   string
	Method         string
	Success        bool
	DurationMs     int64
	ErrorMessage   string
	InputArgs      map[string]any
	Output         string
	Tier           model.Tier
	AICostCents    int64
	SessionID      string
	SequenceNumber uint64
	UserQuery      string
	ResponseBytes  int
	ExecutionCostCents int64
	ChargeCents    int64
}

// Truncate bounds r.Output to maxOutputBytes, called before the record
// is handed to the logger.
func (r *Record) Truncate() {
	if len(r.Output) > maxOutputBytes {
		r.Output = r.Output[:maxOutputBytes]
	}
}
