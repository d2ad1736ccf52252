package session

import "fmt"

// UserError reports a bad argument count, unknown verb, bad mode string, or
// missing host/mount — spec.md §7 class 1: reported to stderr, no state
// change (grounded on the teacher's style of small typed error wrappers,
// e.g. pkg/adapter/errors.go's Code()-bearing error type).
type UserError struct {
	Message string
}

func (e *UserError) Error() string { return e.Message }

// NewUserError builds a UserError with a formatted message.
func NewUserError(format string, args ...any) *UserError {
	return &UserError{Message: fmt.Sprintf(format, args...)}
}

// TransportError reports a portmap failure, connect failure, timeout, or
// RPC decode failure — spec.md §7 class 2.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string { return fmt.Sprintf("%s: %v", e.Op, e.Err) }
func (e *TransportError) Unwrap() error { return e.Err }

// NewTransportError wraps err with the operation that failed.
func NewTransportError(op string, err error) *TransportError {
	return &TransportError{Op: op, Err: err}
}

// ProtocolError reports nfsstat3 != NFS3_OK or mountstat3 != MNT3_OK —
// spec.md §7 class 3. Status carries the raw protocol status code and
// StatusText its human-readable translation, already resolved by the
// caller (internal/nfs3.StatusName / internal/mount.StatusName) so this
// package has no dependency on either codec package.
type ProtocolError struct {
	Op         string
	Status     uint32
	StatusText string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.StatusText)
}

// NewProtocolError builds a ProtocolError.
func NewProtocolError(op string, status uint32, statusText string) *ProtocolError {
	return &ProtocolError{Op: op, Status: status, StatusText: statusText}
}
