package gateway

import "fmt"

// LineProtocolError maps a malformed or out-of-sequence client command
// to the numeric reply that should be sent back, without tearing the
// session down.
type LineProtocolError struct {
	Code string
	Args string
}

func (e *LineProtocolError) Error() string {
	return fmt.Sprintf("lineproto: %s %s", e.Code, e.Args)
}

// InvariantViolation marks a condition that should be structurally
// impossible given the backend's notification contract (e.g. a message
// referencing an unknown channel). The session handling this treats it
// as "drop and log at debug level", never as a reason to disconnect.
type InvariantViolation struct {
	Detail string
}

func (e *InvariantViolation) Error() string {
	return "invariant violation: " + e.Detail
}
