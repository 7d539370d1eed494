// Package engine is the real-time core of leebee: a single-writer project
// (tracks, patterns, transport, plugin chains) owned by the audio thread,
// fed by a lock-free command bus and observed through atomically published
// snapshots.
package engine

import (
	"fmt"

	"github.com/mini-leebee/leebee"
)

type (
	// Format is the negotiated audio format.
	Format struct {
		SampleRate int `json:"sample_rate"`
		BlockSize  int `json:"block_size"`
	}

	// Options configure a new Engine.
	Options struct {
		Format        Format
		Quota         int // K: commands applied per block at most
		QueueCapacity int
		MaxTracks     int
		Tempo         float64
		TempoRange    leebee.TempoRange
		Metronome     leebee.Factory // plays the clicks; nil disables the metronome
	}

	// Engine renders audio. Process is called by the audio backend on its
	// real-time thread; everything else reaches the engine through the
	// command bus (see Controller) and observes it through the mirror.
	Engine struct {
		format Format
		quota  int

		bus     *CommandBus
		live    *Ring[LiveNote]
		retired *Ring[retiree]
		mirror  Mirror

		transport Transport
		store     PatternStore
		graph     Graph
		metronome *Track
		window    window

		armed   leebee.TrackID
		halted  bool
		version uint64 // bumped by every change visible in a snapshot
		applied uint64
		block   uint64
		errs    errorLog

		published uint64 // version of the last snapshot
		pubApply  uint64 // applied id of the last snapshot
	}

	// LiveNote is a note played live, routed to the armed track.
	LiveNote struct {
		On       bool
		Pitch    uint8
		Velocity uint8
	}

	// retiree is an instance the real-time thread no longer references once
	// the snapshot with the given version is published.
	retiree struct {
		version  uint64
		instance *Instance
	}
)

const (
	DefaultQuota         = 16
	DefaultQueueCapacity = 1024
	DefaultMaxTracks     = 64

	liveCapacity    = 256
	retireCapacity  = 1024
	livePerBlockMax = 64
)

// New creates an engine. It publishes an initial snapshot, so Mirror().Load
// never returns nil.
func New(o Options) (*Engine, error) {
	if o.Format.SampleRate <= 0 || o.Format.BlockSize <= 0 {
		return nil, fmt.Errorf("engine.New: %w: format %+v", leebee.ErrInvalidArgument, o.Format)
	}
	if o.Quota <= 0 {
		o.Quota = DefaultQuota
	}
	if o.QueueCapacity <= 0 {
		o.QueueCapacity = DefaultQueueCapacity
	}
	if o.MaxTracks <= 0 {
		o.MaxTracks = DefaultMaxTracks
	}
	if o.TempoRange == (leebee.TempoRange{}) {
		o.TempoRange = leebee.DefaultTempoRange
	}
	if o.Tempo == 0 {
		o.Tempo = leebee.DefaultTempo
	}
	if !o.TempoRange.Contains(o.Tempo) {
		return nil, fmt.Errorf("engine.New: %w: %v", leebee.ErrTempoOutOfRange, o.Tempo)
	}
	e := &Engine{
		format:    o.Format,
		quota:     o.Quota,
		bus:       NewCommandBus(o.QueueCapacity),
		live:      NewRing[LiveNote](liveCapacity),
		retired:   NewRing[retiree](retireCapacity),
		transport: newTransport(float64(o.Format.SampleRate), o.Tempo, o.TempoRange),
		graph:     newGraph(o.MaxTracks, o.Format.BlockSize),
	}
	if o.Metronome != nil {
		inst, err := newInstance(o.Metronome, float64(o.Format.SampleRate), o.Format.BlockSize)
		if err != nil {
			return nil, fmt.Errorf("engine.New: metronome: %w", err)
		}
		e.metronome = NewTrack(0, "Metronome", o.Format.BlockSize)
		e.metronome.Gain = 0
		e.metronome.insert(0, inst)
	}
	e.mirror.publish(e.snapshot())
	return e, nil
}

func (e *Engine) Bus() *CommandBus { return e.bus }
func (e *Engine) Mirror() *Mirror  { return &e.mirror }
func (e *Engine) Format() Format   { return e.format }

// PlayLive queues a live note for the armed track without blocking. It
// returns false if the live queue is full.
func (e *Engine) PlayLive(n LiveNote) bool {
	_, ok := e.live.TryPush(n)
	return ok
}

// Process renders len(buf) frames. Buffers longer than the block size are
// rendered as several blocks. It never blocks, and once the project is set
// up it does not allocate unless a command changed what the snapshot shows.
func (e *Engine) Process(buf leebee.AudioBuffer) {
	for len(buf) > 0 {
		n := min(len(buf), e.format.BlockSize)
		e.processBlock(buf[:n])
		buf = buf[n:]
	}
}

func (e *Engine) processBlock(out leebee.AudioBuffer) {
	frames := len(out)
	routes := e.graph.Routes()
	for _, t := range routes {
		t.nEvents = 0
	}
	if e.metronome != nil {
		e.metronome.nEvents = 0
	}
	e.drain()
	if e.halted {
		// the halt command flushed note offs; render them once more, then
		// stay silent
		e.renderTail(out)
		return
	}
	e.drainLive()
	routes = e.graph.Routes()
	e.transport.begin(frames, &e.window)
	for _, t := range routes {
		sequence(t, &e.window)
	}
	if e.metronome != nil {
		beats(e.metronome, &e.window)
	}
	e.render(frames, routes)
	e.graph.master.Interleave(out)
	e.transport.end(frames, &e.window)
	e.block++
	e.publish()
}

func (e *Engine) render(frames int, routes []*Track) {
	faulted := false
	for _, t := range routes {
		t.sortEvents()
		faulted = t.process(frames) || faulted
	}
	if e.metronome != nil {
		e.metronome.sortEvents()
		e.metronome.process(frames)
	}
	if faulted {
		e.version++
	}
	e.graph.Mix(frames, e.metronome)
}

func (e *Engine) renderTail(out leebee.AudioBuffer) {
	pending := false
	for _, t := range e.graph.Routes() {
		pending = pending || t.nEvents > 0
	}
	if pending {
		e.render(len(out), e.graph.Routes())
		e.graph.master.Interleave(out)
	} else {
		out.Clear()
	}
	e.block++
	e.publish()
}

// publish swaps in a new snapshot if anything changed and always updates
// the live position.
func (e *Engine) publish() {
	if e.version != e.published || e.applied != e.pubApply {
		e.mirror.publish(e.snapshot())
		e.published = e.version
		e.pubApply = e.applied
	}
	e.mirror.publishPosition(&e.transport, e.graph.Peak())
}

// drain applies at most quota commands. A command that fails is recorded
// and skipped; the block goes on.
func (e *Engine) drain() {
	e.bus.Drain(e.quota, e.applyOne)
}

func (e *Engine) applyOne(id uint64, c Command) {
	var err error
	if e.halted {
		err = leebee.ErrEngineHalted
		e.discard(c)
	} else {
		err = e.apply(c)
	}
	if err != nil {
		e.errs.add(id, c, err)
	}
	e.applied = id
}

func (e *Engine) drainLive() {
	armed := e.graph.Find(e.armed)
	for n := 0; n < livePerBlockMax; n++ {
		note, ok := e.live.TryPop()
		if !ok {
			return
		}
		if armed == nil {
			continue
		}
		if note.On {
			armed.noteOn(0, note.Pitch, note.Velocity)
		} else {
			armed.noteOff(0, note.Pitch)
		}
	}
}

// retire hands an unlinked instance to the control side for teardown. The
// version it carries is the one the next snapshot will have; seeing that
// version proves the real-time thread is done with the instance.
func (e *Engine) retire(inst *Instance) {
	if inst == nil {
		return
	}
	e.retired.TryPush(retiree{version: e.version, instance: inst})
}

func (e *Engine) retireTrack(t *Track) {
	for _, inst := range t.Chain() {
		e.retire(inst)
	}
}

// discard retires whatever a rejected command carried.
func (e *Engine) discard(c Command) {
	switch c := c.(type) {
	case AddTrack:
		if c.Track != nil {
			e.retireTrack(c.Track)
		}
	case LoadPlugin:
		e.retire(c.Instance)
	}
}

// SetFormat switches to a new audio format. The audio backend calls it on
// the real-time thread, between two Process calls, when the device
// renegotiates. Every plugin instance is re-created with buffers of the new
// size.
func (e *Engine) SetFormat(f Format) error {
	if e.halted {
		return fmt.Errorf("SetFormat: %w", leebee.ErrEngineHalted)
	}
	if f.SampleRate <= 0 || f.BlockSize <= 0 {
		return fmt.Errorf("SetFormat: %w: %+v", leebee.ErrInvalidArgument, f)
	}
	if f == e.format {
		return nil
	}
	sr := float64(f.SampleRate)
	e.format = f
	e.transport.sampleRate = sr
	e.graph.reformat(f.BlockSize)
	for _, t := range e.graph.Routes() {
		t.reformat(sr, f.BlockSize)
	}
	if e.metronome != nil {
		e.metronome.reformat(sr, f.BlockSize)
	}
	e.version++
	e.publish()
	return nil
}
