// Package gossiperr implements the tiered error model used throughout the
// gossip daemon to decide whether a failure should be logged and dropped,
// reported to the peer as a protocol error, bounced to an upstream
// collaborator, or treated as fatal.
package gossiperr

import (
	"fmt"

	goerrors "github.com/go-errors/errors"
)

// Tier classifies how a caller should react to an Error.
type Tier int

const (
	// TierSoftDrop means the message that triggered the error should be
	// silently discarded. The peer connection is not affected.
	TierSoftDrop Tier = iota

	// TierProtocol means the peer violated the wire protocol. The BOLT
	// `error` message should be sent back (if a channel id is known) and
	// the connection torn down.
	TierProtocol

	// TierUpstream means the failure originates in an external
	// collaborator (parent process, signer, connection daemon) and must
	// be surfaced to it rather than handled locally.
	TierUpstream

	// TierFatal means the daemon cannot make progress and must exit(2)
	// after flushing logs.
	TierFatal
)

func (t Tier) String() string {
	switch t {
	case TierSoftDrop:
		return "soft-drop"
	case TierProtocol:
		return "protocol"
	case TierUpstream:
		return "upstream"
	case TierFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Error is the typed error carried through the daemon's layers so that a
// caller can decide how to react without string matching.
type Error struct {
	Tier Tier

	// ChanID is the channel this error pertains to, if any. Zero value
	// means the error is not channel-scoped.
	ChanID uint64

	// cause is the underlying error, wrapped with a stack trace when it
	// originates inside this process.
	cause error
}

// New creates a tiered error wrapping cause. If cause does not already
// carry a stack trace, one is attached.
func New(tier Tier, chanID uint64, cause error) *Error {
	if cause == nil {
		return nil
	}
	if _, ok := cause.(*goerrors.Error); !ok {
		cause = goerrors.Wrap(cause, 1)
	}
	return &Error{Tier: tier, ChanID: chanID, cause: cause}
}

// Protocol is a convenience constructor for TierProtocol errors.
func Protocol(chanID uint64, format string, args ...interface{}) *Error {
	return New(TierProtocol, chanID, fmt.Errorf(format, args...))
}

// SoftDrop is a convenience constructor for TierSoftDrop errors.
func SoftDrop(format string, args ...interface{}) *Error {
	return New(TierSoftDrop, 0, fmt.Errorf(format, args...))
}

// Upstream is a convenience constructor for TierUpstream errors.
func Upstream(format string, args ...interface{}) *Error {
	return New(TierUpstream, 0, fmt.Errorf(format, args...))
}

// Fatal is a convenience constructor for TierFatal errors.
func Fatal(format string, args ...interface{}) *Error {
	return New(TierFatal, 0, fmt.Errorf(format, args...))
}

func (e *Error) Error() string {
	if e.ChanID != 0 {
		return fmt.Sprintf("[%s chan=%d] %v", e.Tier, e.ChanID, e.cause)
	}
	return fmt.Sprintf("[%s] %v", e.Tier, e.cause)
}

func (e *Error) Unwrap() error {
	return e.cause
}

// Stack returns a formatted stack trace when the cause carries one, for
// logging at TierFatal/TierUpstream severity.
func (e *Error) Stack() string {
	if ge, ok := e.cause.(*goerrors.Error); ok {
		return string(ge.Stack())
	}
	return ""
}
