package rdm

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrAlreadyCalled is the panic value when a Deferred is resolved twice.
	ErrAlreadyCalled = errors.New("deferred already called")
	// ErrConnectionLost rejects remote calls once a Channel or Session is disconnected.
	ErrConnectionLost = errors.New("connection lost")
	// ErrFailureThreshold is the reason given when too many exchanges failed in a row.
	ErrFailureThreshold = errors.New("failure threshold exceeded")
	// ErrClosedByRemote is the reason given when the peer sent a close action.
	ErrClosedByRemote = errors.New("connection closed by remote host")
	// ErrSessionExpired is the reason given when a Session saw no exchanges for too long.
	ErrSessionExpired = errors.New("session expired")
	// ErrPauseUnderflow is the panic value when Unpause is called more often than Pause.
	ErrPauseUnderflow = errors.New("unpause without matching pause")
	// ErrMalformedPacket is returned when a wire payload can't be decoded.
	ErrMalformedPacket = errors.New("malformed packet")
	// ErrAborted rejects the Deferred of an aborted Request.
	ErrAborted = errors.New("request aborted")
	// ErrLoopStopped is returned when work is posted to a stopped Loop.
	ErrLoopStopped = errors.New("loop stopped")
)

// ErrUnknownRequest is returned when a respond action names a request ID
// that has no outstanding call.
type ErrUnknownRequest struct {
	RequestID string
}

func (e ErrUnknownRequest) Error() string {
	return fmt.Sprintf("unknown request id %q", e.RequestID)
}

// ErrUnknownMethod is the failure sent back when a call names a method
// that isn't registered in the Namespace.
type ErrUnknownMethod struct {
	Name string
}

func (e ErrUnknownMethod) Error() string {
	return fmt.Sprintf("unknown method %q", e.Name)
}

// ErrorName implements NamedError.
func (ErrUnknownMethod) ErrorName() string { return "UnknownMethod" }

// ErrUnknownAction is logged when an inbound message has an unhandled kind.
type ErrUnknownAction struct {
	Kind string
}

func (e ErrUnknownAction) Error() string {
	return fmt.Sprintf("unknown action %q", e.Kind)
}

// StatusError is returned when an exchange gets a HTTP status other than 200.
type StatusError struct {
	Code int
}

func (e StatusError) Error() string {
	return fmt.Sprintf("unexpected HTTP status %d", e.Code)
}

// NamedError is implemented by errors that report a name to the peer
// when they fail a remote call.
type NamedError interface {
	error
	ErrorName() string
}

// RemoteError is a failure reported by the peer in answer to a call.
type RemoteError struct {
	Name    string
	Message string
}

func (e RemoteError) Error() string {
	return e.Name + ": " + e.Message
}

// ErrorName implements NamedError.
func (e RemoteError) ErrorName() string { return e.Name }

// encodeError renders err as the [name, message] failure payload.
func encodeError(err error) []interface{} {
	name := "Error"
	if ne, ok := errors.Cause(err).(NamedError); ok {
		name = ne.ErrorName()
	}
	msg := err.Error()
	if re, ok := errors.Cause(err).(RemoteError); ok {
		msg = re.Message
	}
	return []interface{}{name, msg}
}

// decodeError reconstructs the error described by a failure payload.
func decodeError(v interface{}) error {
	if pair, ok := v.([]interface{}); ok && len(pair) == 2 {
		name, nameOk := pair[0].(string)
		msg, msgOk := pair[1].(string)
		if nameOk && msgOk {
			return RemoteError{Name: name, Message: msg}
		}
	}
	return RemoteError{Name: "Error", Message: fmt.Sprint(v)}
}
