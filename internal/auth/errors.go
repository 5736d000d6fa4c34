package auth

// Subtype names the -32001 authentication failure subclass carried in
// the JSON-RPC error's data.type field, per spec.md §7.
type Subtype string

const (
	AuthRequired        Subtype = "AUTH_REQUIRED"
	AuthTokenExpired    Subtype = "AUTH_TOKEN_EXPIRED"
	AuthMissingToken    Subtype = "AUTH_MISSING_TOKEN"
	AuthInvalidToken    Subtype = "AUTH_INVALID_TOKEN"
	AuthAPITokenInvalid Subtype = "AUTH_API_TOKEN_INVALID"
)

// VerifyError is a classified authentication failure. The dispatcher
// maps it to a -32001 JSON-RPC error with data.type set to Subtype.
type VerifyError struct {
	Subtype Subtype
	Message string
}

func (e *VerifyError) Error() string {
	return e.Message
}

func newVerifyError(sub Subtype, msg string) error {
	return &VerifyError{Subtype: sub, Message: msg}
}
