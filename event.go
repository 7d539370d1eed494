package leebee

import "fmt"

// EventKind tells what an Event does when it fires.
type EventKind uint8

const (
	NoteOn EventKind = iota
	NoteOff
	ParamChange
)

var eventKindNames = [...]string{"note_on", "note_off", "param_change"}

func (k EventKind) String() string {
	if int(k) < len(eventKindNames) {
		return eventKindNames[k]
	}
	return fmt.Sprintf("EventKind(%d)", k)
}

// ParseEventKind is the inverse of EventKind.String.
func ParseEventKind(s string) (EventKind, error) {
	for i, n := range eventKindNames {
		if n == s {
			return EventKind(i), nil
		}
	}
	return 0, fmt.Errorf("%w: unknown event kind %q", ErrInvalidArgument, s)
}

func (k EventKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *EventKind) UnmarshalText(b []byte) error {
	v, err := ParseEventKind(string(b))
	if err != nil {
		return err
	}
	*k = v
	return nil
}

// Event is one scheduled occurrence inside a Pattern, positioned in ticks
// from the start of the pattern. Pitch and Velocity are used by notes; Slot,
// Port and Value by parameter changes, where Slot is the index of the target
// plugin in the track chain. A NoteOn with a positive Duration releases
// itself Duration ticks later.
type Event struct {
	Tick     int64     `json:"tick" yaml:"tick"`
	Kind     EventKind `json:"kind" yaml:"kind"`
	Pitch    uint8     `json:"pitch,omitempty" yaml:"pitch,omitempty"`
	Velocity uint8     `json:"velocity,omitempty" yaml:"velocity,omitempty"`
	Duration int64     `json:"duration,omitempty" yaml:"duration,omitempty"`
	Slot     int       `json:"slot,omitempty" yaml:"slot,omitempty"`
	Port     int       `json:"port,omitempty" yaml:"port,omitempty"`
	Value    float32   `json:"value,omitempty" yaml:"value,omitempty"`
}

func NoteOnEvent(tick int64, pitch, velocity uint8) Event {
	return Event{Tick: tick, Kind: NoteOn, Pitch: pitch, Velocity: velocity}
}

func NoteOffEvent(tick int64, pitch uint8) Event {
	return Event{Tick: tick, Kind: NoteOff, Pitch: pitch}
}

func ParamChangeEvent(tick int64, slot, port int, value float32) Event {
	return Event{Tick: tick, Kind: ParamChange, Slot: slot, Port: port, Value: value}
}

// Validate checks the event against the pattern length it is meant for.
func (e Event) Validate(length int64) error {
	if e.Tick < 0 || e.Tick >= length {
		return fmt.Errorf("%w: tick %d outside pattern of length %d", ErrInvalidPosition, e.Tick, length)
	}
	switch e.Kind {
	case NoteOn, NoteOff:
		if e.Pitch > 127 || e.Velocity > 127 {
			return fmt.Errorf("%w: pitch and velocity must be in 0..127", ErrInvalidArgument)
		}
		if e.Duration < 0 {
			return fmt.Errorf("%w: negative duration", ErrInvalidArgument)
		}
	case ParamChange:
		if e.Slot < 0 || e.Slot >= MaxChain || e.Port < 0 {
			return fmt.Errorf("%w: bad parameter target %d/%d", ErrInvalidArgument, e.Slot, e.Port)
		}
	default:
		return fmt.Errorf("%w: unknown event kind %d", ErrInvalidArgument, e.Kind)
	}
	return nil
}

// TimedEvent is an event delivered to a plugin, positioned in frames from
// the start of the current block. Slot is the chain index a ParamChange is
// meant for.
type TimedEvent struct {
	Offset   int
	Kind     EventKind
	Pitch    uint8
	Velocity uint8
	Slot     int
	Port     int
	Value    float32
}

func (e TimedEvent) String() string {
	switch e.Kind {
	case NoteOn:
		return fmt.Sprintf("@%d on %d/%d", e.Offset, e.Pitch, e.Velocity)
	case NoteOff:
		return fmt.Sprintf("@%d off %d", e.Offset, e.Pitch)
	}
	return fmt.Sprintf("@%d param %d=%g", e.Offset, e.Port, e.Value)
}
