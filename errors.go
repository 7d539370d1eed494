package leebee

import (
	"errors"
	"strings"

	"github.com/Southclaws/fault/ftag"
)

var (
	ErrPluginNotFound          = errors.New("plugin not found")
	ErrInstantiationFailed     = errors.New("plugin instantiation failed")
	ErrCommandQueueFull        = errors.New("command queue full")
	ErrInvalidTrackID          = errors.New("invalid track id")
	ErrInvalidPatternReference = errors.New("invalid pattern reference")
	ErrInvalidPosition         = errors.New("invalid position")
	ErrTempoOutOfRange         = errors.New("tempo out of range")
	ErrTransportAlreadyRunning = errors.New("transport already running")
	ErrPluginFaulted           = errors.New("plugin faulted")
	ErrTrackLimit              = errors.New("track limit reached")
	ErrChainFull               = errors.New("plugin chain full")
	ErrPatternFull             = errors.New("pattern full")
	ErrPatternLimit            = errors.New("pattern limit reached")
	ErrInvalidArgument         = errors.New("invalid argument")
	ErrEngineHalted            = errors.New("engine halted")
)

// Kinds that ftag does not define itself.
const (
	ResourceExhausted  ftag.Kind = "RESOURCE_EXHAUSTED"
	FailedPrecondition ftag.Kind = "FAILED_PRECONDITION"
)

var sentinelKinds = []struct {
	err  error
	kind ftag.Kind
}{
	{ErrCommandQueueFull, ResourceExhausted},
	{ErrTrackLimit, ResourceExhausted},
	{ErrChainFull, ResourceExhausted},
	{ErrPatternFull, ResourceExhausted},
	{ErrPatternLimit, ResourceExhausted},
	{ErrPluginFaulted, FailedPrecondition},
	{ErrTransportAlreadyRunning, FailedPrecondition},
	{ErrEngineHalted, FailedPrecondition},
	{ErrInstantiationFailed, FailedPrecondition},
	{ErrPluginNotFound, ftag.NotFound},
	{ErrInvalidTrackID, ftag.NotFound},
	{ErrInvalidPatternReference, ftag.NotFound},
	{ErrInvalidPosition, ftag.InvalidArgument},
	{ErrTempoOutOfRange, ftag.InvalidArgument},
	{ErrInvalidArgument, ftag.InvalidArgument},
}

// KindOf classifies err for the control surfaces. Known sentinels win over
// ftag annotations; anything else is internal.
func KindOf(err error) ftag.Kind {
	if err == nil {
		return ""
	}
	for _, s := range sentinelKinds {
		if errors.Is(err, s.err) {
			return s.kind
		}
	}
	if k := ftag.Get(err); k != "" {
		return k
	}
	return ftag.Internal
}

// Sentinel returns the sentinel error whose text appears in msg, or nil.
// Clients use it to recover sentinels from error messages that crossed a
// process boundary.
func Sentinel(msg string) error {
	for _, s := range sentinelKinds {
		if strings.Contains(msg, s.err.Error()) {
			return s.err
		}
	}
	return nil
}
