// Package rpc serves the engine controller over net/rpc on HTTP, and
// provides the matching client.
package rpc

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"net/rpc"
	"time"

	"github.com/mini-leebee/leebee"
	"github.com/mini-leebee/leebee/engine"
)

// ServiceName is the name the service is registered under.
const ServiceName = "Leebee"

// DefaultTimeout bounds how long a call waits for the engine to apply its
// command.
const DefaultTimeout = 5 * time.Second

type (
	// Service exposes the controller to net/rpc. Errors are sent as
	// "CODE: message" strings; see StatusError.
	Service struct {
		ctrl    *engine.Controller
		timeout time.Duration
		verbose bool
	}

	// Server is a listening rpc endpoint.
	Server struct {
		listener net.Listener
		http     *http.Server
	}

	// State is the snapshot sent to clients.
	State struct {
		Snapshot engine.Snapshot
		Position engine.Position
	}

	TrackArgs struct {
		Track leebee.TrackID
	}

	CreateTrackArgs struct {
		Name    string
		Plugins []string
	}

	DeleteTracksArgs struct {
		Tracks []leebee.TrackID
	}

	RenameTrackArgs struct {
		Track leebee.TrackID
		Name  string
	}

	// LoadPluginArgs inserts a plugin at Slot; a negative Slot appends.
	LoadPluginArgs struct {
		Track  leebee.TrackID
		Plugin string
		Slot   int
	}

	SlotArgs struct {
		Track leebee.TrackID
		Slot  int
	}

	MovePluginArgs struct {
		Track    leebee.TrackID
		From, To int
	}

	ParameterArgs struct {
		Track leebee.TrackID
		Slot  int
		Port  int
		Value float32
	}

	ValueArgs struct {
		Track leebee.TrackID
		Value float32
	}

	FlagArgs struct {
		Track leebee.TrackID
		On    bool
	}

	CreatePatternArgs struct {
		Length int64
		Loop   bool
	}

	PatternArgs struct {
		Pattern leebee.PatternID
	}

	EventArgs struct {
		Pattern leebee.PatternID
		Event   leebee.Event
	}

	EventIndexArgs struct {
		Pattern leebee.PatternID
		Index   int
		Tick    int64 // used by MoveEvent
	}

	AssignArgs struct {
		Track   leebee.TrackID
		Pattern leebee.PatternID
	}

	TempoArgs struct {
		BPM float64
	}

	SeekArgs struct {
		Tick int64
	}

	LoopArgs struct {
		Start, End int64
	}

	MetronomeArgs struct {
		Volume float32
	}

	NoteArgs struct {
		Track    leebee.TrackID
		Pitch    uint8
		Velocity uint8
	}
)

// NewService wraps a controller. A zero timeout means DefaultTimeout.
func NewService(ctrl *engine.Controller, timeout time.Duration, verbose bool) *Service {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Service{ctrl: ctrl, timeout: timeout, verbose: verbose}
}

// Listen registers the service on a new rpc server reachable over HTTP at
// addr. Serve must be called to start answering.
func Listen(s *Service, addr string) (*Server, error) {
	srv := rpc.NewServer()
	if err := srv.RegisterName(ServiceName, s); err != nil {
		return nil, fmt.Errorf("rpc register failed: %w", err)
	}
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("net.listen failed: %w", err)
	}
	mux := http.NewServeMux()
	mux.Handle(rpc.DefaultRPCPath, srv)
	return &Server{listener: l, http: &http.Server{Handler: mux}}, nil
}

func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// Serve answers calls until Shutdown.
func (s *Server) Serve() error {
	if err := s.http.Serve(s.listener); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// call runs op with a timeout and encodes its error for the wire.
func (s *Service) call(name string, op func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	err := op(ctx)
	if s.verbose {
		log.Printf("[rpc] %s: %v", name, err)
	}
	return encodeError(err)
}

func (s *Service) GetState(args int, reply *State) error {
	snap := *s.ctrl.State()
	// the wrapped errors do not travel; their messages do
	snap.Errors = make([]engine.CommandError, len(snap.Errors))
	for i, e := range s.ctrl.State().Errors {
		e.Err = nil
		snap.Errors[i] = e
	}
	reply.Snapshot = snap
	reply.Position = s.ctrl.Position()
	return nil
}

func (s *Service) GetPlugins(args int, reply *[]leebee.Descriptor) error {
	*reply = s.ctrl.Plugins()
	return nil
}

func (s *Service) CreateTrack(args CreateTrackArgs, reply *leebee.TrackID) error {
	return s.call("CreateTrack", func(ctx context.Context) (err error) {
		*reply, err = s.ctrl.CreateTrack(ctx, args.Name, args.Plugins...)
		return err
	})
}

func (s *Service) DeleteTrack(args TrackArgs, reply *int) error {
	return s.call("DeleteTrack", func(ctx context.Context) error {
		return s.ctrl.DeleteTrack(ctx, args.Track)
	})
}

func (s *Service) DeleteTracks(args DeleteTracksArgs, reply *int) error {
	return s.call("DeleteTracks", func(ctx context.Context) error {
		return s.ctrl.DeleteTracks(ctx, args.Tracks...)
	})
}

func (s *Service) RenameTrack(args RenameTrackArgs, reply *int) error {
	return s.call("RenameTrack", func(ctx context.Context) error {
		return s.ctrl.RenameTrack(ctx, args.Track, args.Name)
	})
}

// LoadPlugin replies with the id of the new plugin instance.
func (s *Service) LoadPlugin(args LoadPluginArgs, reply *string) error {
	return s.call("LoadPlugin", func(ctx context.Context) error {
		id, err := s.ctrl.InsertPlugin(ctx, args.Track, args.Slot, args.Plugin)
		if err != nil {
			return err
		}
		*reply = id.String()
		return nil
	})
}

func (s *Service) RemovePlugin(args SlotArgs, reply *int) error {
	return s.call("RemovePlugin", func(ctx context.Context) error {
		return s.ctrl.RemovePlugin(ctx, args.Track, args.Slot)
	})
}

func (s *Service) MovePlugin(args MovePluginArgs, reply *int) error {
	return s.call("MovePlugin", func(ctx context.Context) error {
		return s.ctrl.MovePlugin(ctx, args.Track, args.From, args.To)
	})
}

func (s *Service) SetParameter(args ParameterArgs, reply *int) error {
	return s.call("SetParameter", func(ctx context.Context) error {
		return s.ctrl.SetParameter(ctx, args.Track, args.Slot, args.Port, args.Value)
	})
}

func (s *Service) SetGain(args ValueArgs, reply *int) error {
	return s.call("SetGain", func(ctx context.Context) error {
		return s.ctrl.SetGain(ctx, args.Track, args.Value)
	})
}

func (s *Service) SetPan(args ValueArgs, reply *int) error {
	return s.call("SetPan", func(ctx context.Context) error {
		return s.ctrl.SetPan(ctx, args.Track, args.Value)
	})
}

func (s *Service) SetMute(args FlagArgs, reply *int) error {
	return s.call("SetMute", func(ctx context.Context) error {
		return s.ctrl.SetMute(ctx, args.Track, args.On)
	})
}

func (s *Service) SetSolo(args FlagArgs, reply *int) error {
	return s.call("SetSolo", func(ctx context.Context) error {
		return s.ctrl.SetSolo(ctx, args.Track, args.On)
	})
}

func (s *Service) ArmTrack(args TrackArgs, reply *int) error {
	return s.call("ArmTrack", func(ctx context.Context) error {
		return s.ctrl.ArmTrack(ctx, args.Track)
	})
}

func (s *Service) CreatePattern(args CreatePatternArgs, reply *leebee.PatternID) error {
	return s.call("CreatePattern", func(ctx context.Context) (err error) {
		*reply, err = s.ctrl.CreatePattern(ctx, args.Length, args.Loop)
		return err
	})
}

func (s *Service) DeletePattern(args PatternArgs, reply *int) error {
	return s.call("DeletePattern", func(ctx context.Context) error {
		return s.ctrl.DeletePattern(ctx, args.Pattern)
	})
}

func (s *Service) AddEvent(args EventArgs, reply *int) error {
	return s.call("AddEvent", func(ctx context.Context) error {
		return s.ctrl.AddEvent(ctx, args.Pattern, args.Event)
	})
}

func (s *Service) RemoveEvent(args EventIndexArgs, reply *int) error {
	return s.call("RemoveEvent", func(ctx context.Context) error {
		return s.ctrl.RemoveEvent(ctx, args.Pattern, args.Index)
	})
}

func (s *Service) MoveEvent(args EventIndexArgs, reply *int) error {
	return s.call("MoveEvent", func(ctx context.Context) error {
		return s.ctrl.MoveEvent(ctx, args.Pattern, args.Index, args.Tick)
	})
}

func (s *Service) SetTrackPattern(args AssignArgs, reply *int) error {
	return s.call("SetTrackPattern", func(ctx context.Context) error {
		return s.ctrl.SetTrackPattern(ctx, args.Track, args.Pattern)
	})
}

func (s *Service) StartTransport(args int, reply *int) error {
	return s.call("StartTransport", s.ctrl.StartTransport)
}

func (s *Service) StopTransport(args int, reply *int) error {
	return s.call("StopTransport", s.ctrl.StopTransport)
}

func (s *Service) SetTempo(args TempoArgs, reply *int) error {
	return s.call("SetTempo", func(ctx context.Context) error {
		return s.ctrl.SetTempo(ctx, args.BPM)
	})
}

func (s *Service) Seek(args SeekArgs, reply *int) error {
	return s.call("Seek", func(ctx context.Context) error {
		return s.ctrl.Seek(ctx, args.Tick)
	})
}

func (s *Service) SetLoop(args LoopArgs, reply *int) error {
	return s.call("SetLoop", func(ctx context.Context) error {
		return s.ctrl.SetLoop(ctx, args.Start, args.End)
	})
}

func (s *Service) ClearLoop(args int, reply *int) error {
	return s.call("ClearLoop", s.ctrl.ClearLoop)
}

func (s *Service) SetMetronome(args MetronomeArgs, reply *int) error {
	return s.call("SetMetronome", func(ctx context.Context) error {
		return s.ctrl.SetMetronome(ctx, args.Volume)
	})
}

func (s *Service) NoteOn(args NoteArgs, reply *int) error {
	return s.call("NoteOn", func(ctx context.Context) error {
		return s.ctrl.NoteOn(ctx, args.Track, args.Pitch, args.Velocity)
	})
}

func (s *Service) NoteOff(args NoteArgs, reply *int) error {
	return s.call("NoteOff", func(ctx context.Context) error {
		return s.ctrl.NoteOff(ctx, args.Track, args.Pitch)
	})
}
