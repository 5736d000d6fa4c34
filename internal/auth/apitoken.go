package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// apiTokenPrefix identifies an ultralight-issued API token, as opposed
// to a platform JWT.
const apiTokenPrefix = "ul_"

func isAPIToken(credential string) bool {
	return strings.HasPrefix(credential, apiTokenPrefix)
}

// hashAPIToken returns the hex-encoded SHA-256 of the full token value.
// Only this hash (and a short display prefix) is ever persisted.
func hashAPIToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
