package mtk

import "fmt"

// ProtocolError reports a violation of the wire protocol: an unexpected
// status code, a checksum mismatch, an ack the device should not have sent.
// It corresponds to spec category 4 (Protocol errors), exit code 2.
type ProtocolError struct {
	Op  string
	Msg string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol error in %s: %s", e.Op, e.Msg)
}

// ContainerError reports a malformed or incompatible DA container: bad
// magic, version mismatch, truncated file, no matching entry, or a broken
// load-region invariant. Corresponds to spec category 5 (Container errors).
type ContainerError struct {
	Msg string
}

func (e *ContainerError) Error() string {
	return "DA container: " + e.Msg
}

// UsageError reports bad input caught by the core: a zero-length operation,
// or a missing download agent when the Preloader phase must run. Corresponds to
// spec category 1 (Usage errors), exit code 1.
type UsageError struct {
	Msg string
}

func (e *UsageError) Error() string {
	return e.Msg
}

func protoErr(op, format string, args ...any) error {
	return &ProtocolError{Op: op, Msg: fmt.Sprintf(format, args...)}
}
