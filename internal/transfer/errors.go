package transfer

import "fmt"

// Kind categorizes a transfer failure so callers can distinguish
// timeouts from bad HTTP statuses from disk problems.
type Kind int

const (
	// KindNetwork covers connect/read timeouts, resets, and DNS failures.
	KindNetwork Kind = iota + 1
	// KindProtocol covers HTTP statuses other than 200/206.
	KindProtocol
	// KindIO covers destination file failures (disk full, permissions).
	KindIO
	// KindArchive covers extraction failures after a complete download.
	KindArchive
)

func (k Kind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindProtocol:
		return "protocol"
	case KindIO:
		return "io"
	case KindArchive:
		return "archive"
	default:
		return "unknown"
	}
}

// Error is a categorized transfer failure. Retrieve it from a Failed
// snapshot's producing call with errors.As.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s error: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Err: fmt.Errorf(format, args...)}
}
