package adapters

import (
	"testing"

	"github.com/rs/zerolog"

	"github.com/ultralight/host/internal/mcpserver"
)

// Compile-time assertion that Capabilities satisfies the Dispatcher's
// collaborator interface; this test's assignment stops compiling if
// that ever stops being true.
func TestNew_ImplementsCapabilityProvider(t *testing.T) {
	var _ mcpserver.CapabilityProvider = New(nil, NewOpenRouterCaller(zerolog.Nop()), NewLoopbackCaller("http://localhost", zerolog.Nop()), zerolog.Nop())
}
