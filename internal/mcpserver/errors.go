package mcpserver

import (
	"net/http"
)

// httpStatusForCode maps a JSON-RPC error code to the HTTP status the
// dispatcher sets, per DESIGN.md Open Question 2.
func httpStatusForCode(code int) int {
	switch code {
	case CodeRateLimited:
		return http.StatusTooManyRequests
	case CodeAuthFailed:
		return http.StatusUnauthorized
	case CodeNotFound:
		return http.StatusNotFound
	case CodeForbidden, CodeMissingSecrets:
		return http.StatusForbidden
	case CodeMethodNotFound:
		return http.StatusNotFound
	case CodeParseError, CodeInvalidRequest, CodeInvalidParams:
		return http.StatusBadRequest
	case CodeInternalError:
		return http.StatusInternalServerError
	default:
		return http.StatusOK
	}
}

// rpcError carries a JSON-RPC code/message/data so admission-chain
// failures can be returned as plain Go errors and translated uniformly
// at the handler boundary. It holds no HTTP status; that is derived
// from the code by httpStatusForCode when the error is written.
type rpcError struct {
	code    int
	message string
	data    any
}

func (e *rpcError) Error() string { return e.message }

func newRPCError(code int, message string) *rpcError {
	return &rpcError{code: code, message: message}
}
