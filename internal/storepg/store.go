// Package storepg is the typed repository hiding the relational
// store's SQL queries and named stored procedures (e.g.
// transfer_balance) behind the narrow per-component Store interfaces
// each pipeline package declares (internal/apps.Store,
// internal/auth.Store, internal/billing.Store,
// internal/permissions.Store, internal/calllog.Store,
// internal/setup.SecretsStore/ProfileStore/DBConfigResolver). Per
// spec.md §9's Design Notes, a future migration off the current store
// touches only this package.
package storepg

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/ultralight/host/internal/cryptoenv"
)

// Repository is a thin struct-holds-pool wrapper in the teacher's
// syncservice idiom (NoteService, TaskService, ...): every method is a
// direct pgx query or stored-procedure call, no ORM layer.
type Repository struct {
	DB       *pgxpool.Pool
	envelope *cryptoenv.Envelope
	log      zerolog.Logger
}

// New builds a Repository over an already-connected pool (see
// internal/db.Open). envelope decrypts the legacy app-level upstream
// DB config column (the only ciphertext this package itself touches;
// env vars and per-user secrets are decrypted by internal/setup after
// the join).
func New(db *pgxpool.Pool, envelope *cryptoenv.Envelope, log zerolog.Logger) *Repository {
	return &Repository{DB: db, envelope: envelope, log: log}
}
