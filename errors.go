package stepfunctions

import "fmt"

// DefinitionError reports a malformed or structurally invalid state-machine
// or event definition. It names the offending entity so the user can find it
// without reading the whole document.
type DefinitionError struct {
	Entity string // state machine name, or "stateMachine/event[i]" for bindings
	Detail string
}

func (e *DefinitionError) Error() string {
	return fmt.Sprintf("invalid definition %q: %s", e.Entity, e.Detail)
}

// ReferenceError reports an unresolved cross-resource reference or
// interpolation placeholder.
type ReferenceError struct {
	Entity      string
	Placeholder string
}

func (e *ReferenceError) Error() string {
	return fmt.Sprintf("unresolved reference %q in %q", e.Placeholder, e.Entity)
}

// NamingError reports input that cannot produce a valid logical identifier.
type NamingError struct {
	Name   string
	Reason string
}

func (e *NamingError) Error() string {
	return fmt.Sprintf("cannot derive logical id from %q: %s", e.Name, e.Reason)
}

// CollisionError reports two resources claiming the same logical identifier.
// Always fatal; resources are never silently overwritten.
type CollisionError struct {
	LogicalID string
	Existing  string // resource type already emitted under the identifier
	Incoming  string // resource type attempting the second emission
}

func (e *CollisionError) Error() string {
	return fmt.Sprintf("logical id %q already emitted as %s, refusing overwrite by %s",
		e.LogicalID, e.Existing, e.Incoming)
}

// TransportError wraps an execution-client call failure. It is distinct from
// the validation errors above: the caller may retry, the core never does.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
