// Package billing implements the Billing Settler (C9): atomic balance
// transfer on a successful priced call, with insufficient-balance and
// transport-failure outcomes handled per spec.md §4.8.
package billing

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/ultralight/host/internal/model"
)

// Store is the relational-store surface the settler needs.
type Store interface {
	// TransferBalance atomically moves amountCents from fromUserID to
	// toUserID via the store's transfer_balance stored procedure.
	// ok=false means the transfer was rejected for insufficient balance,
	// not a transport error.
	TransferBalance(ctx context.Context, fromUserID, toUserID string, amountCents int64) (ok bool, err error)
}

// Outcome is the settler's result for one call.
type Outcome struct {
	Charged         bool
	PaymentRequired bool
	AmountCents     int64
}

// Settler implements the Billing Settler.
type Settler struct {
	store Store
	log   zerolog.Logger
}

// New builds a Settler over store.
func New(store Store, log zerolog.Logger) *Settler {
	return &Settler{store: store, log: log}
}

// Settle charges callerID for one call of functionName against app,
// if and only if the sandbox call succeeded and callerID is not the
// app owner. See spec.md §4.8 for the three outcomes.
func (s *Settler) Settle(ctx context.Context, app *model.App, callerID, functionName string, sandboxSuccess bool) Outcome {
	if !sandboxSuccess || callerID == app.OwnerID {
		return Outcome{}
	}

	price := app.PriceForFunction(functionName)
	if price == 0 {
		return Outcome{}
	}

	ok, err := s.store.TransferBalance(ctx, callerID, app.OwnerID, price)
	if err != nil {
		// Transport failure: treat as "not charged" and continue
		// successfully — operators accept occasional unbilled calls in
		// exchange for availability (spec.md §4.8).
		s.log.Warn().Err(err).Str("appId", app.ID).Str("callerId", callerID).
			Msg("billing transfer failed, call not charged")
		return Outcome{}
	}

	if !ok {
		return Outcome{PaymentRequired: true, AmountCents: price}
	}

	s.log.Debug().Str("appId", app.ID).Str("callerId", callerID).Int64("amountCents", price).
		Msg("call charged")
	return Outcome{Charged: true, AmountCents: price}
}

// PaymentRequiredMessage builds the MCP content text for an
// insufficient-balance outcome, per spec.md's S8 scenario.
func PaymentRequiredMessage(priceCents int64) string {
	return fmt.Sprintf("Insufficient balance. This tool costs %d¢ per call. Add funds to continue.", priceCents)
}
