package spp

import (
	"context"
	"errors"

	"github.com/Southclaws/fault"
	"github.com/Southclaws/fault/fctx"
	"github.com/Southclaws/fault/fmsg"
	"github.com/Southclaws/fault/ftag"
	"github.com/darkhz/btspp/pipe"
)

// The different error kinds returned by the SPP roles.
var (
	ErrAlreadyUp       = errors.New("role is already up")
	ErrNotUp           = errors.New("role is not up")
	ErrNotReady        = errors.New("channel is not ready")
	ErrChannelOpen     = errors.New("channel is already open")
	ErrPayloadTooLarge = errors.New("payload exceeds the maximum SPP payload size")
	ErrInvalidName     = errors.New("invalid device name")
	ErrInvalidSecret   = errors.New("invalid pairing secret")

	// ErrNoData is matched by every receive error, whether the pipe was
	// empty, busy, or asked for an invalid number of bytes.
	ErrNoData = pipe.ErrNoData
)

// wrapStackError wraps an error returned by a stack command.
func wrapStackError(err error, at, msg string) error {
	return fault.Wrap(err,
		fctx.With(context.Background(), "error_at", at),
		ftag.With(ftag.Internal),
		fmsg.With(msg),
	)
}
