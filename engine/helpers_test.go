package engine_test

import (
	"context"
	"errors"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mini-leebee/leebee"
	"github.com/mini-leebee/leebee/engine"
)

const levelPort = 3

// recording collects what the processors of a recorderFactory saw. It is
// read by tests only after the engine has stopped processing, or from the
// goroutine that calls Process.
type recording struct {
	blocks       [][]leebee.TimedEvent
	levels       []float32
	rates        []float64
	instantiated atomic.Int32
	deactivated  atomic.Int32
}

// recorderFactory makes plugins that output their "level" control on both
// channels and remember the events of every block.
type recorderFactory struct {
	id      string
	class   leebee.PluginClass
	level   float32
	rec     *recording // may be nil
	fail    bool       // Instantiate returns an error
	panicAt int        // Run call that panics, 0 means never
}

type recorder struct {
	f     *recorderFactory
	out   [2][]float32
	level []float32
	runs  int
}

func (f *recorderFactory) Descriptor() leebee.Descriptor {
	return leebee.Descriptor{
		ID:    f.id,
		Name:  "Recorder",
		Class: f.class,
		Ports: []leebee.Port{
			{Index: 0, Symbol: "out_l", Name: "Out L", Kind: leebee.AudioOut},
			{Index: 1, Symbol: "out_r", Name: "Out R", Kind: leebee.AudioOut},
			{Index: 2, Symbol: "events", Name: "Events", Kind: leebee.EventIn},
			{Index: 3, Symbol: "level", Name: "Level", Kind: leebee.ControlIn, Default: f.level, Min: 0, Max: 1},
		},
	}
}

func (f *recorderFactory) Instantiate(sampleRate float64, blockSize int) (leebee.Processor, error) {
	if f.fail {
		return nil, errors.New("no license")
	}
	if f.rec != nil {
		f.rec.instantiated.Add(1)
		f.rec.rates = append(f.rec.rates, sampleRate)
	}
	return &recorder{f: f}, nil
}

func (r *recorder) ConnectPort(port int, data []float32) {
	switch port {
	case 0, 1:
		r.out[port] = data
	case levelPort:
		r.level = data
	}
}

func (r *recorder) Run(frames int, events []leebee.TimedEvent) error {
	r.runs++
	if rec := r.f.rec; rec != nil {
		rec.blocks = append(rec.blocks, slices.Clone(events))
		rec.levels = append(rec.levels, r.level[0])
	}
	if r.f.panicAt > 0 && r.runs == r.f.panicAt {
		panic("boom")
	}
	for c := range r.out {
		for i := range r.out[c][:frames] {
			r.out[c][i] = r.level[0]
		}
	}
	return nil
}

func (r *recorder) Deactivate() {
	if r.f.rec != nil {
		r.f.rec.deactivated.Add(1)
	}
}

func newEngine(t *testing.T, o engine.Options) *engine.Engine {
	t.Helper()
	if o.Format == (engine.Format{}) {
		o.Format = engine.Format{SampleRate: 48000, BlockSize: 256}
	}
	e, err := engine.New(o)
	if err != nil {
		t.Fatalf("engine.New failed: %v", err)
	}
	return e
}

func newHost(t *testing.T, factories ...leebee.Factory) *engine.Host {
	t.Helper()
	h, err := engine.NewHost(factories...)
	if err != nil {
		t.Fatalf("engine.NewHost failed: %v", err)
	}
	return h
}

func submit(t *testing.T, e *engine.Engine, cmds ...engine.Command) []uint64 {
	t.Helper()
	ids := make([]uint64, len(cmds))
	for i, c := range cmds {
		id, err := e.Bus().TryEnqueue(c)
		if err != nil {
			t.Fatalf("TryEnqueue(%s) failed: %v", engine.CommandName(c), err)
		}
		ids[i] = id
	}
	return ids
}

// process renders n blocks and returns the audio of the last one.
func process(e *engine.Engine, n int) leebee.AudioBuffer {
	buf := make(leebee.AudioBuffer, e.Format().BlockSize)
	for i := 0; i < n; i++ {
		e.Process(buf)
	}
	return buf
}

// addRecorderTrack adds a track with one instance of the plugin id in its
// chain, through the bus.
func addRecorderTrack(t *testing.T, e *engine.Engine, h *engine.Host, id leebee.TrackID, plugin string) {
	t.Helper()
	f := e.Format()
	inst, err := h.Instantiate(plugin, float64(f.SampleRate), f.BlockSize)
	if err != nil {
		t.Fatalf("Instantiate(%q) failed: %v", plugin, err)
	}
	submit(t, e,
		engine.AddTrack{Track: engine.NewTrack(id, "", f.BlockSize)},
		engine.LoadPlugin{Track: id, Slot: -1, Instance: inst},
	)
}

func newPattern(t *testing.T, id leebee.PatternID, length int64, loop bool, events ...leebee.Event) *leebee.Pattern {
	t.Helper()
	p, err := leebee.NewPattern(id, length, loop)
	if err != nil {
		t.Fatalf("NewPattern failed: %v", err)
	}
	for _, ev := range events {
		if err := p.Add(ev); err != nil {
			t.Fatalf("Pattern.Add(%v) failed: %v", ev, err)
		}
	}
	return p
}

func noteOnFor(tick int64, pitch, velocity uint8, duration int64) leebee.Event {
	e := leebee.NoteOnEvent(tick, pitch, velocity)
	e.Duration = duration
	return e
}

func on(offset int, pitch, velocity uint8) leebee.TimedEvent {
	return leebee.TimedEvent{Offset: offset, Kind: leebee.NoteOn, Pitch: pitch, Velocity: velocity}
}

func off(offset int, pitch uint8) leebee.TimedEvent {
	return leebee.TimedEvent{Offset: offset, Kind: leebee.NoteOff, Pitch: pitch}
}

// pump calls Process in the background until the returned stop function is
// called.
func pump(e *engine.Engine) (stop func()) {
	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		buf := make(leebee.AudioBuffer, e.Format().BlockSize)
		for ctx.Err() == nil {
			e.Process(buf)
			time.Sleep(50 * time.Microsecond)
		}
	}()
	return func() {
		cancel()
		wg.Wait()
	}
}
