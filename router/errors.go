package router

import "fmt"

// PolicyDenied is returned when the current node's policy forbids a tool
// call, before the dispatcher ever contacts the provider's subprocess.
// Grounded on framework/permissions.go's PermissionDeniedError shape.
type PolicyDenied struct {
	Node     string
	Provider string
	Allowed  []string
}

func (e *PolicyDenied) Error() string {
	return fmt.Sprintf("policy denied: node %s does not allow provider %s (allowed: %v)", e.Node, e.Provider, e.Allowed)
}

// SessionUnresolved is returned when a caller-facing operation names a
// session id the registry does not know about.
type SessionUnresolved struct {
	SessionID string
}

func (e *SessionUnresolved) Error() string {
	return fmt.Sprintf("session unresolved: %s", e.SessionID)
}
