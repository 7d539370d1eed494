package engine

import (
	"fmt"

	"github.com/mini-leebee/leebee"
)

type (
	// Command is a mutation request for the real-time thread. Commands are
	// built on the control side, including any allocation they need (new
	// tracks, plugin instances, patterns), so that applying them never
	// allocates.
	Command interface {
		commandName() string
	}

	// AddTrack appends a track built by the controller to the project.
	AddTrack struct{ Track *Track }

	RemoveTrack struct{ ID leebee.TrackID }

	RenameTrack struct {
		ID   leebee.TrackID
		Name string
	}

	// LoadPlugin inserts an instance into the chain of a track at Slot, or
	// appends it if Slot is negative.
	LoadPlugin struct {
		Track    leebee.TrackID
		Slot     int
		Instance *Instance
	}

	RemovePlugin struct {
		Track leebee.TrackID
		Slot  int
	}

	MovePlugin struct {
		Track    leebee.TrackID
		From, To int
	}

	SetParameter struct {
		Track leebee.TrackID
		Slot  int
		Port  int
		Value float32
	}

	SetGain struct {
		Track leebee.TrackID
		Gain  float32
	}

	SetPan struct {
		Track leebee.TrackID
		Pan   float32
	}

	SetMute struct {
		Track leebee.TrackID
		Mute  bool
	}

	SetSolo struct {
		Track leebee.TrackID
		Solo  bool
	}

	// ArmTrack routes live MIDI input to a track. ID 0 disarms.
	ArmTrack struct{ ID leebee.TrackID }

	CreatePattern struct{ Pattern *leebee.Pattern }

	DeletePattern struct{ ID leebee.PatternID }

	AddEvent struct {
		Pattern leebee.PatternID
		Event   leebee.Event
	}

	RemoveEvent struct {
		Pattern leebee.PatternID
		Index   int
	}

	MoveEvent struct {
		Pattern leebee.PatternID
		Index   int
		Tick    int64
	}

	// SetTrackPattern makes a pattern the active pattern of a track. Pattern
	// 0 clears it.
	SetTrackPattern struct {
		Track   leebee.TrackID
		Pattern leebee.PatternID
	}

	StartTransport struct{}

	StopTransport struct{}

	SetTempo struct{ BPM float64 }

	Seek struct{ Tick int64 }

	// SetLoop sets the loop region of the transport. End <= Start clears it.
	SetLoop struct{ Start, End int64 }

	SetMetronome struct{ Volume float32 }

	// NoteOn and NoteOff play a track by hand, outside of any pattern.
	NoteOn struct {
		Track    leebee.TrackID
		Pitch    uint8
		Velocity uint8
	}

	NoteOff struct {
		Track leebee.TrackID
		Pitch uint8
	}

	// Halt stops the engine for good: every sounding note is released, the
	// transport stops and no further audio or commands are processed. Once
	// a snapshot shows Halted, plugin instances can be torn down.
	Halt struct{}

	// CommandError records a command that failed to apply.
	CommandError struct {
		ID      uint64 `json:"id"`
		Command string `json:"command"`
		Message string `json:"message"`
		Err     error  `json:"-"`
	}

	// CommandBus carries commands from any number of control goroutines to
	// the real-time thread. Every accepted command gets an id; ids increase
	// in the order the commands will be applied.
	CommandBus struct {
		ring *Ring[Command]
	}
)

func (AddTrack) commandName() string        { return "AddTrack" }
func (RemoveTrack) commandName() string     { return "RemoveTrack" }
func (RenameTrack) commandName() string     { return "RenameTrack" }
func (LoadPlugin) commandName() string      { return "LoadPlugin" }
func (RemovePlugin) commandName() string    { return "RemovePlugin" }
func (MovePlugin) commandName() string      { return "MovePlugin" }
func (SetParameter) commandName() string    { return "SetParameter" }
func (SetGain) commandName() string         { return "SetGain" }
func (SetPan) commandName() string          { return "SetPan" }
func (SetMute) commandName() string         { return "SetMute" }
func (SetSolo) commandName() string         { return "SetSolo" }
func (ArmTrack) commandName() string        { return "ArmTrack" }
func (CreatePattern) commandName() string   { return "CreatePattern" }
func (DeletePattern) commandName() string   { return "DeletePattern" }
func (AddEvent) commandName() string        { return "AddEvent" }
func (RemoveEvent) commandName() string     { return "RemoveEvent" }
func (MoveEvent) commandName() string       { return "MoveEvent" }
func (SetTrackPattern) commandName() string { return "SetTrackPattern" }
func (StartTransport) commandName() string  { return "StartTransport" }
func (StopTransport) commandName() string   { return "StopTransport" }
func (SetTempo) commandName() string        { return "SetTempo" }
func (Seek) commandName() string            { return "Seek" }
func (SetLoop) commandName() string         { return "SetLoop" }
func (SetMetronome) commandName() string    { return "SetMetronome" }
func (NoteOn) commandName() string          { return "NoteOn" }
func (NoteOff) commandName() string         { return "NoteOff" }
func (Halt) commandName() string            { return "Halt" }

// CommandName returns the name of the command type, e.g. "SetTempo".
func CommandName(c Command) string {
	if c == nil {
		return "<nil>"
	}
	return c.commandName()
}

func (e CommandError) Error() string {
	return fmt.Sprintf("command %d (%s): %s", e.ID, e.Command, e.Message)
}

func (e CommandError) Unwrap() error {
	return e.Err
}

// NewCommandBus returns a bus holding at least capacity commands.
func NewCommandBus(capacity int) *CommandBus {
	return &CommandBus{ring: NewRing[Command](capacity)}
}

// TryEnqueue submits a command without blocking. When the bus is full it
// returns leebee.ErrCommandQueueFull; the caller decides whether to retry.
func (b *CommandBus) TryEnqueue(c Command) (id uint64, err error) {
	if c == nil {
		return 0, fmt.Errorf("%w: nil command", leebee.ErrInvalidArgument)
	}
	// ids are positions + 1 so that 0 can mean "nothing applied yet"
	pos, ok := b.ring.TryPush(c)
	if !ok {
		return 0, leebee.ErrCommandQueueFull
	}
	return pos + 1, nil
}

// Drain pops at most max commands and passes them to apply in FIFO order.
// It returns the number of commands popped. Only one goroutine, the
// real-time thread, may drain a bus.
func (b *CommandBus) Drain(max int, apply func(id uint64, c Command)) int {
	n := 0
	for ; n < max; n++ {
		pos := b.ring.dequeue.Load()
		c, ok := b.ring.TryPop()
		if !ok {
			break
		}
		apply(pos+1, c)
	}
	return n
}

// Len is the number of commands waiting.
func (b *CommandBus) Len() int {
	return b.ring.Len()
}
