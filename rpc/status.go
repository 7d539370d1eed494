package rpc

import (
	"errors"
	"net/rpc"
	"strings"

	"github.com/Southclaws/fault/ftag"
	"github.com/mini-leebee/leebee"
)

// StatusError is an error returned by the server, classified by code.
type StatusError struct {
	Code    ftag.Kind
	Message string
}

func (e *StatusError) Error() string {
	return string(e.Code) + ": " + e.Message
}

// Is matches the leebee sentinel named in the message, so that
// errors.Is(err, leebee.ErrPluginNotFound) works across the wire.
func (e *StatusError) Is(target error) bool {
	s := leebee.Sentinel(e.Message)
	return s != nil && s == target
}

// Retryable reports whether the call may succeed if repeated unchanged.
func (e *StatusError) Retryable() bool {
	return e.Code == leebee.ResourceExhausted
}

var codes = []ftag.Kind{
	ftag.NotFound,
	ftag.InvalidArgument,
	ftag.Internal,
	ftag.Cancelled,
	leebee.ResourceExhausted,
	leebee.FailedPrecondition,
}

func encodeError(err error) error {
	if err == nil {
		return nil
	}
	return errors.New(string(leebee.KindOf(err)) + ": " + err.Error())
}

// decodeError turns an error string from the server back into a
// StatusError. Transport errors are returned unchanged.
func decodeError(err error) error {
	var se rpc.ServerError
	if !errors.As(err, &se) {
		return err
	}
	code, msg, ok := strings.Cut(string(se), ": ")
	if ok {
		for _, c := range codes {
			if string(c) == code {
				return &StatusError{Code: c, Message: msg}
			}
		}
	}
	return &StatusError{Code: ftag.Internal, Message: string(se)}
}
