package discovery

import "github.com/pagenode/pagenode-shell/internal/port"

// OverrideEnv is the environment variable holding the dev override.
const OverrideEnv = "PAGENODE_BACKEND_PORT"

// ResolveOverride applies the dev override. raw is the variable's value
// and present tells whether it was set at all.
//
// When the trimmed value parses as a 16-bit port, it is written into state
// and returned with true; the caller must then skip the sidecar. Anything
// else (absent, empty, non-numeric, above 65535) returns false and leaves
// state untouched, so startup falls through to the sidecar as if no
// override had been given.
func ResolveOverride(raw string, present bool, state *port.State) (uint16, bool) {
	if !present {
		return 0, false
	}
	p, err := port.ParsePort(raw)
	if err != nil {
		return 0, false
	}
	state.Set(p)
	return p, true
}
