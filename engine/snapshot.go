package engine

import (
	"context"
	"math"
	"slices"
	"sync/atomic"
	"time"

	"github.com/mini-leebee/leebee"
)

type (
	// Snapshot is an immutable view of the engine, published by the
	// real-time thread after it applies commands. Readers never see a
	// partially applied command: a snapshot is built completely before it is
	// published with a single pointer swap.
	Snapshot struct {
		Version    uint64           `json:"version"`
		Applied    uint64           `json:"applied"` // id of the last command applied
		Block      uint64           `json:"block"`
		Halted     bool             `json:"halted"`
		SampleRate int              `json:"sample_rate"`
		BlockSize  int              `json:"block_size"`
		Transport  TransportState   `json:"transport"`
		Metronome  float32          `json:"metronome"`
		Armed      leebee.TrackID   `json:"armed"`
		Tracks     []TrackState     `json:"tracks"`
		Patterns   []leebee.Pattern `json:"patterns"`
		Errors     []CommandError   `json:"errors"` // most recent last
	}

	TransportState struct {
		Playing bool       `json:"playing"`
		Tempo   float64    `json:"tempo"`
		Tick    float64    `json:"tick"`
		Frames  uint64     `json:"frames"`
		Loop    LoopRegion `json:"loop"`
	}

	TrackState struct {
		ID      leebee.TrackID   `json:"id"`
		Name    string           `json:"name"`
		Gain    float32          `json:"gain"`
		Pan     float32          `json:"pan"`
		Mute    bool             `json:"mute"`
		Solo    bool             `json:"solo"`
		Pattern leebee.PatternID `json:"pattern"`
		Plugins []InstanceState  `json:"plugins"`
	}

	InstanceState struct {
		ID       string    `json:"id"`
		Plugin   string    `json:"plugin"`
		Name     string    `json:"name"`
		Faulted  bool      `json:"faulted"`
		Fault    string    `json:"fault,omitempty"`
		Controls []float32 `json:"controls"` // indexed by port
	}

	// Position is the live part of the transport, updated every block
	// without building a new snapshot.
	Position struct {
		Playing bool                        `json:"playing"`
		Tick    float64                     `json:"tick"`
		Frames  uint64                      `json:"frames"`
		Peak    [leebee.NumChannels]float32 `json:"peak"`
	}

	// Mirror is the publication point between the real-time thread and its
	// readers. Load never blocks and never fails once the engine exists.
	Mirror struct {
		snap    atomic.Pointer[Snapshot]
		playing atomic.Bool
		tick    atomic.Uint64 // float64 bits
		frames  atomic.Uint64
		peak    [leebee.NumChannels]atomic.Uint32 // float32 bits
	}
)

// Load returns the latest snapshot.
func (m *Mirror) Load() *Snapshot {
	return m.snap.Load()
}

// Position returns the live transport position and master peaks.
func (m *Mirror) Position() Position {
	p := Position{
		Playing: m.playing.Load(),
		Tick:    math.Float64frombits(m.tick.Load()),
		Frames:  m.frames.Load(),
	}
	for c := range p.Peak {
		p.Peak[c] = math.Float32frombits(m.peak[c].Load())
	}
	return p
}

// Wait polls until cond holds for a snapshot, and returns that snapshot.
func (m *Mirror) Wait(ctx context.Context, poll time.Duration, cond func(*Snapshot) bool) (*Snapshot, error) {
	if s := m.Load(); cond(s) {
		return s, nil
	}
	ticker := time.NewTicker(poll)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
			if s := m.Load(); cond(s) {
				return s, nil
			}
		}
	}
}

func (m *Mirror) publish(s *Snapshot) {
	m.snap.Store(s)
}

func (m *Mirror) publishPosition(t *Transport, peak [leebee.NumChannels]float32) {
	m.playing.Store(t.playing)
	m.tick.Store(math.Float64bits(t.tick))
	m.frames.Store(t.frames)
	for c, v := range peak {
		m.peak[c].Store(math.Float32bits(v))
	}
}

// Track returns the state of a track, or nil.
func (s *Snapshot) Track(id leebee.TrackID) *TrackState {
	for i := range s.Tracks {
		if s.Tracks[i].ID == id {
			return &s.Tracks[i]
		}
	}
	return nil
}

// Pattern returns a pattern, or nil.
func (s *Snapshot) Pattern(id leebee.PatternID) *leebee.Pattern {
	for i := range s.Patterns {
		if s.Patterns[i].ID == id {
			return &s.Patterns[i]
		}
	}
	return nil
}

// Error returns the error recorded for a command, if it failed and is
// still in the error log.
func (s *Snapshot) Error(id uint64) error {
	for _, e := range s.Errors {
		if e.ID == id {
			return e
		}
	}
	return nil
}

// Faulted lists the plugin instances that have faulted.
func (s *Snapshot) Faulted() []InstanceState {
	var ret []InstanceState
	for _, t := range s.Tracks {
		for _, p := range t.Plugins {
			if p.Faulted {
				ret = append(ret, p)
			}
		}
	}
	return ret
}

// snapshot builds a snapshot of the project. It allocates, so the engine
// only calls it in blocks where something changed.
func (e *Engine) snapshot() *Snapshot {
	s := &Snapshot{
		Version:    e.version,
		Applied:    e.applied,
		Block:      e.block,
		Halted:     e.halted,
		SampleRate: e.format.SampleRate,
		BlockSize:  e.format.BlockSize,
		Transport: TransportState{
			Playing: e.transport.playing,
			Tempo:   e.transport.tempo,
			Tick:    e.transport.tick,
			Frames:  e.transport.frames,
			Loop:    e.transport.loop,
		},
		Armed:  e.armed,
		Tracks: make([]TrackState, 0, len(e.graph.Routes())),
		Errors: e.errs.list(),
	}
	if e.metronome != nil {
		s.Metronome = e.metronome.Gain
	}
	for _, t := range e.graph.Routes() {
		ts := TrackState{
			ID:      t.ID,
			Name:    t.Name,
			Gain:    t.Gain,
			Pan:     t.Pan,
			Mute:    t.Mute,
			Solo:    t.Solo,
			Plugins: make([]InstanceState, 0, t.nChain),
		}
		if t.pattern != nil {
			ts.Pattern = t.pattern.ID
		}
		for _, inst := range t.Chain() {
			ts.Plugins = append(ts.Plugins, InstanceState{
				ID:       inst.ID.String(),
				Plugin:   inst.Desc.ID,
				Name:     inst.Desc.Name,
				Faulted:  inst.faulted,
				Fault:    inst.FaultReason(),
				Controls: slices.Clone(inst.controls),
			})
		}
		s.Tracks = append(s.Tracks, ts)
	}
	s.Patterns = make([]leebee.Pattern, 0, e.store.Len())
	e.store.Each(func(p *leebee.Pattern) {
		s.Patterns = append(s.Patterns, p.Copy())
	})
	slices.SortFunc(s.Patterns, func(a, b leebee.Pattern) int { return int(a.ID - b.ID) })
	return s
}

// errorLog keeps the most recent command errors in a fixed ring.
type errorLog struct {
	entries [64]errorEntry
	next    int
	n       int
}

type errorEntry struct {
	id   uint64
	name string
	err  error
}

func (l *errorLog) add(id uint64, cmd Command, err error) {
	l.entries[l.next] = errorEntry{id: id, name: CommandName(cmd), err: err}
	l.next = (l.next + 1) % len(l.entries)
	l.n = min(l.n+1, len(l.entries))
}

func (l *errorLog) list() []CommandError {
	ret := make([]CommandError, 0, l.n)
	for i := 0; i < l.n; i++ {
		e := l.entries[(l.next-l.n+i+len(l.entries))%len(l.entries)]
		ret = append(ret, CommandError{
			ID:      e.id,
			Command: e.name,
			Message: e.err.Error(),
			Err:     e.err,
		})
	}
	return ret
}
