package objproxy

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// ErrorKind is a wire-stable error classification carried in a Response's
// status field.
type ErrorKind string

// Error kinds, per the wire protocol. These strings cross process
// boundaries and must never change once published.
const (
	ErrUnknownObject   ErrorKind = "UNKNOWN_OBJECT"
	ErrUnsupportedOp   ErrorKind = "UNSUPPORTED_OP"
	ErrRemoteRaised    ErrorKind = "REMOTE_RAISED"
	ErrUnserializable  ErrorKind = "UNSERIALIZABLE"
	ErrTimeout         ErrorKind = "TIMEOUT"
	ErrCancelled       ErrorKind = "CANCELLED"
	ErrConnectionLost  ErrorKind = "CONNECTION_LOST"
	ErrShuttingDown    ErrorKind = "SHUTTING_DOWN"
	ErrNoLocalServer   ErrorKind = "NO_LOCAL_SERVER"
	ErrBootstrapFailed ErrorKind = "BOOTSTRAP_FAILED"
)

// ExceptionChain describes one link in a remote exception's cause/context
// chain.
type ExceptionChain struct {
	TypeName string `msgpack:"type_name"`
	Message  string `msgpack:"message"`
}

// RemoteError is the structured payload of a REMOTE_RAISED response: a
// captured record of a target operation's failure, including its
// cause chain and a rendered textual traceback, so a caller can present
// useful diagnostics without holding a reference into the remote process.
type RemoteError struct {
	TypeName        string           `msgpack:"type_name"`
	Message         string           `msgpack:"message"`
	TracebackText   string           `msgpack:"traceback_text"`
	Chain           []ExceptionChain `msgpack:"chain"`
}

func (e *RemoteError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.TypeName, e.Message)
}

// NewRemoteError captures err (wrapped with github.com/pkg/errors for a
// stack trace if it isn't already) into a RemoteError suitable for
// transmission as a REMOTE_RAISED response payload.
func NewRemoteError(err error) *RemoteError {
	if err == nil {
		return nil
	}
	wrapped := err
	if _, ok := err.(stackTracer); !ok {
		wrapped = errors.WithStack(err)
	}

	re := &RemoteError{
		TypeName:      fmt.Sprintf("%T", unwrapRoot(err)),
		Message:       err.Error(),
		TracebackText: renderTraceback(wrapped),
	}

	cause := err
	for {
		next := errors.Unwrap(cause)
		if next == nil {
			break
		}
		re.Chain = append(re.Chain, ExceptionChain{
			TypeName: fmt.Sprintf("%T", next),
			Message:  next.Error(),
		})
		cause = next
	}
	return re
}

type stackTracer interface {
	StackTrace() errors.StackTrace
}

func renderTraceback(err error) string {
	st, ok := err.(stackTracer)
	if !ok {
		return err.Error()
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", err.Error())
	for _, f := range st.StackTrace() {
		fmt.Fprintf(&b, "  %+v\n", f)
	}
	return b.String()
}

func unwrapRoot(err error) error {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return err
		}
		err = next
	}
}

// WireError is an error reconstructed on the client side from a Response
// whose status was not "ok". It implements the standard error interface
// and carries the ErrorKind for programmatic dispatch.
type WireError struct {
	Kind    ErrorKind
	Remote  *RemoteError
	Message string
}

func (e *WireError) Error() string {
	if e.Remote != nil {
		return fmt.Sprintf("%s: %s", e.Kind, e.Remote.Error())
	}
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return string(e.Kind)
}

// Is allows errors.Is(err, objproxy.ErrorTimeout) style matching against
// a *WireError sentinel of the same ErrorKind.
func (e *WireError) Is(target error) bool {
	wk, ok := target.(*WireError)
	if !ok {
		return false
	}
	return wk.Kind == e.Kind
}

func newWireError(kind ErrorKind, msg string) *WireError {
	return &WireError{Kind: kind, Message: msg}
}

func kindSentinel(kind ErrorKind) *WireError {
	return &WireError{Kind: kind}
}

// Sentinels for errors.Is comparisons against fixed error kinds.
var (
	ErrorTimeout        = kindSentinel(ErrTimeout)
	ErrorCancelled      = kindSentinel(ErrCancelled)
	ErrorConnectionLost = kindSentinel(ErrConnectionLost)
	ErrorShuttingDown   = kindSentinel(ErrShuttingDown)
)
