package engine_test

import (
	"errors"
	"reflect"
	"strings"
	"sync"
	"testing"

	"github.com/Southclaws/fault/ftag"
	"github.com/mini-leebee/leebee"
	"github.com/mini-leebee/leebee/engine"
)

func TestScenarioNoteOffset(t *testing.T) {
	rec := &recording{}
	h := newHost(t, &recorderFactory{id: "test:rec", rec: rec})
	e := newEngine(t, engine.Options{})
	addRecorderTrack(t, e, h, 1, "test:rec")
	p := newPattern(t, 1, 16, true, leebee.NoteOnEvent(0, 60, 100), leebee.NoteOffEvent(8, 60))
	submit(t, e,
		engine.CreatePattern{Pattern: p},
		engine.SetTrackPattern{Track: 1, Pattern: 1},
		engine.StartTransport{},
	)
	process(e, 1)
	// 48 kHz at 120 BPM is 25 samples per tick
	expected := []leebee.TimedEvent{on(0, 60, 100), off(200, 60)}
	if !reflect.DeepEqual(rec.blocks[0], expected) {
		t.Fatalf("block 0: got %v, expected %v", rec.blocks[0], expected)
	}
}

func TestCommandsApplyWithinQuota(t *testing.T) {
	rec := &recording{}
	h := newHost(t, &recorderFactory{id: "test:rec", rec: rec})
	e := newEngine(t, engine.Options{Quota: 8, QueueCapacity: 128})
	addRecorderTrack(t, e, h, 1, "test:rec")
	process(e, 1)
	base := e.Mirror().Load().Applied
	for n := 1; n <= 100; n++ {
		submit(t, e, engine.SetParameter{Track: 1, Slot: 0, Port: levelPort, Value: float32(n) / 100})
	}
	for block := 1; block <= 13; block++ {
		process(e, 1)
		n := min(8*block, 100)
		s := e.Mirror().Load()
		if s.Applied != base+uint64(n) {
			t.Fatalf("after block %d: got %v applied, expected %v", block, s.Applied-base, n)
		}
		expected := float32(n) / 100
		if got := s.Tracks[0].Plugins[0].Controls[levelPort]; got != expected {
			t.Fatalf("after block %d: got control %v, expected %v", block, got, expected)
		}
		if got := rec.levels[block]; got != expected {
			t.Fatalf("block %d: plugin saw level %v, expected %v", block, got, expected)
		}
	}
	if s := e.Mirror().Load(); len(s.Errors) != 0 {
		t.Fatalf("got errors %v, expected none", s.Errors)
	}
}

func TestLoopIterationsRepeat(t *testing.T) {
	rec := &recording{}
	h := newHost(t, &recorderFactory{id: "test:rec", rec: rec})
	// 200 frames at 25 samples per tick: every block is exactly 8 ticks
	e := newEngine(t, engine.Options{Format: engine.Format{SampleRate: 48000, BlockSize: 200}})
	addRecorderTrack(t, e, h, 1, "test:rec")
	p := newPattern(t, 1, 64, true,
		noteOnFor(0, 60, 100, 20),
		leebee.NoteOnEvent(7, 64, 90),
		leebee.NoteOffEvent(8, 64),
		noteOnFor(37, 62, 80, 3),
		noteOnFor(63, 67, 70, 5), // ends in the next cycle
	)
	submit(t, e,
		engine.CreatePattern{Pattern: p},
		engine.SetTrackPattern{Track: 1, Pattern: 1},
		engine.StartTransport{},
	)
	process(e, 32)
	for n := 1; n < 3; n++ {
		a, b := rec.blocks[n*8:(n+1)*8], rec.blocks[(n+1)*8:(n+2)*8]
		if !reflect.DeepEqual(a, b) {
			t.Fatalf("iteration %d: got %v, iteration %d: got %v", n, a, n+1, b)
		}
	}
	expected := []leebee.TimedEvent{on(0, 60, 100), off(100, 67), on(175, 64, 90)}
	if got := rec.blocks[8]; !reflect.DeepEqual(got, expected) {
		t.Fatalf("first block of iteration 1: got %v, expected %v", got, expected)
	}
}

func TestLoopBoundaryFiresOnce(t *testing.T) {
	rec := &recording{}
	h := newHost(t, &recorderFactory{id: "test:rec", rec: rec})
	e := newEngine(t, engine.Options{Format: engine.Format{SampleRate: 48000, BlockSize: 200}})
	addRecorderTrack(t, e, h, 1, "test:rec")
	p := newPattern(t, 1, 12, true, noteOnFor(0, 60, 100, 4))
	submit(t, e,
		engine.CreatePattern{Pattern: p},
		engine.SetTrackPattern{Track: 1, Pattern: 1},
		engine.StartTransport{},
	)
	// 30 blocks of 8 ticks are 240 ticks: 20 cycles
	process(e, 30)
	ons, offs := 0, 0
	for _, block := range rec.blocks {
		for _, ev := range block {
			switch ev.Kind {
			case leebee.NoteOn:
				ons++
			case leebee.NoteOff:
				offs++
			}
		}
	}
	if ons != 20 || offs != 20 {
		t.Fatalf("got %v note ons and %v note offs, expected 20 and 20", ons, offs)
	}
	// tick 12 is the start of cycle 1, in the middle of block 1
	expected := []leebee.TimedEvent{on(100, 60, 100)}
	if !reflect.DeepEqual(rec.blocks[1], expected) {
		t.Fatalf("block 1: got %v, expected %v", rec.blocks[1], expected)
	}
}

func TestNoteEndsInsideItsBlock(t *testing.T) {
	rec := &recording{}
	h := newHost(t, &recorderFactory{id: "test:rec", rec: rec})
	e := newEngine(t, engine.Options{Format: engine.Format{SampleRate: 48000, BlockSize: 200}})
	addRecorderTrack(t, e, h, 1, "test:rec")
	p := newPattern(t, 1, 64, true, noteOnFor(0, 60, 100, 4))
	submit(t, e,
		engine.CreatePattern{Pattern: p},
		engine.SetTrackPattern{Track: 1, Pattern: 1},
		engine.StartTransport{},
	)
	process(e, 1)
	// block 0 covers ticks [0, 8), the note ends at tick 4
	expected := []leebee.TimedEvent{on(0, 60, 100), off(100, 60)}
	if !reflect.DeepEqual(rec.blocks[0], expected) {
		t.Fatalf("got %v, expected %v", rec.blocks[0], expected)
	}
}

func TestPendingOffsDoNotAccumulate(t *testing.T) {
	rec := &recording{}
	h := newHost(t, &recorderFactory{id: "test:rec", rec: rec})
	e := newEngine(t, engine.Options{Format: engine.Format{SampleRate: 48000, BlockSize: 200}})
	addRecorderTrack(t, e, h, 1, "test:rec")
	// one 8 tick cycle per block; pitch 60 ends in its own block, pitch 70
	// ends in the next one
	p := newPattern(t, 1, 8, true, noteOnFor(0, 60, 100, 1), noteOnFor(4, 70, 100, 6))
	submit(t, e,
		engine.CreatePattern{Pattern: p},
		engine.SetTrackPattern{Track: 1, Pattern: 1},
		engine.StartTransport{},
	)
	process(e, 400)
	expected := []leebee.TimedEvent{on(0, 60, 100), off(25, 60), off(50, 70), on(100, 70, 100)}
	for i, block := range rec.blocks[1:] {
		if !reflect.DeepEqual(block, expected) {
			t.Fatalf("block %d: got %v, expected %v", i+1, block, expected)
		}
	}
}

func TestStopReleasesActiveNotes(t *testing.T) {
	rec := &recording{}
	h := newHost(t, &recorderFactory{id: "test:rec", rec: rec})
	e := newEngine(t, engine.Options{})
	addRecorderTrack(t, e, h, 1, "test:rec")
	p := newPattern(t, 1, 960, true,
		leebee.NoteOnEvent(0, 67, 100),
		leebee.NoteOnEvent(0, 60, 100),
		leebee.NoteOnEvent(0, 64, 100),
	)
	submit(t, e,
		engine.CreatePattern{Pattern: p},
		engine.SetTrackPattern{Track: 1, Pattern: 1},
		engine.StartTransport{},
	)
	process(e, 1)
	submit(t, e, engine.StopTransport{})
	process(e, 1)
	expected := []leebee.TimedEvent{off(0, 60), off(0, 64), off(0, 67)}
	if !reflect.DeepEqual(rec.blocks[1], expected) {
		t.Fatalf("block after stop: got %v, expected %v", rec.blocks[1], expected)
	}
	submit(t, e, engine.StopTransport{})
	process(e, 2)
	for i, block := range rec.blocks[2:] {
		if len(block) != 0 {
			t.Fatalf("block %d after stop: got %v, expected no events", i+2, block)
		}
	}
	if s := e.Mirror().Load(); s.Transport.Playing {
		t.Fatalf("transport still playing after stop")
	}
}

func TestStopReleasesAuditionWhileStopped(t *testing.T) {
	rec := &recording{}
	h := newHost(t, &recorderFactory{id: "test:rec", rec: rec})
	e := newEngine(t, engine.Options{})
	addRecorderTrack(t, e, h, 1, "test:rec")
	submit(t, e, engine.NoteOn{Track: 1, Pitch: 48, Velocity: 64})
	process(e, 1)
	submit(t, e, engine.StopTransport{})
	process(e, 1)
	if expected := []leebee.TimedEvent{off(0, 48)}; !reflect.DeepEqual(rec.blocks[1], expected) {
		t.Fatalf("got %v, expected %v", rec.blocks[1], expected)
	}
}

func TestTempoChangeAppliesFromNextBlock(t *testing.T) {
	rec := &recording{}
	h := newHost(t, &recorderFactory{id: "test:rec", rec: rec})
	e := newEngine(t, engine.Options{Format: engine.Format{SampleRate: 48000, BlockSize: 200}})
	addRecorderTrack(t, e, h, 1, "test:rec")
	p := newPattern(t, 1, 64, true, noteOnFor(4, 60, 100, 0), noteOnFor(10, 62, 100, 0))
	submit(t, e,
		engine.CreatePattern{Pattern: p},
		engine.SetTrackPattern{Track: 1, Pattern: 1},
		engine.StartTransport{},
	)
	process(e, 1)
	submit(t, e, engine.SetTempo{BPM: 240})
	process(e, 1)
	if expected := []leebee.TimedEvent{on(100, 60, 100)}; !reflect.DeepEqual(rec.blocks[0], expected) {
		t.Fatalf("block 0: got %v, expected %v", rec.blocks[0], expected)
	}
	// at 240 BPM a tick is 12.5 samples and block 1 covers ticks [8, 24)
	if expected := []leebee.TimedEvent{on(25, 62, 100)}; !reflect.DeepEqual(rec.blocks[1], expected) {
		t.Fatalf("block 1: got %v, expected %v", rec.blocks[1], expected)
	}
	s := e.Mirror().Load()
	if s.Transport.Tempo != 240 || s.Transport.Tick != 24 {
		t.Fatalf("got tempo %v at tick %v, expected 240 at 24", s.Transport.Tempo, s.Transport.Tick)
	}
}

func TestTempoOutOfRangeIsRecorded(t *testing.T) {
	e := newEngine(t, engine.Options{})
	ids := submit(t, e, engine.SetTempo{BPM: 1000}, engine.SetTempo{BPM: 90})
	process(e, 1)
	s := e.Mirror().Load()
	if err := s.Error(ids[0]); !errors.Is(err, leebee.ErrTempoOutOfRange) {
		t.Fatalf("got error %v, expected %v", err, leebee.ErrTempoOutOfRange)
	}
	if err := s.Error(ids[1]); err != nil {
		t.Fatalf("valid command after a failed one: got error %v", err)
	}
	if s.Transport.Tempo != 90 {
		t.Fatalf("got tempo %v, expected 90", s.Transport.Tempo)
	}
}

func TestInvalidCommandsDoNotAbortBlock(t *testing.T) {
	e := newEngine(t, engine.Options{})
	ids := submit(t, e,
		engine.SetGain{Track: 99, Gain: 1},
		engine.SetTrackPattern{Track: 99, Pattern: 1},
		engine.AddTrack{Track: engine.NewTrack(1, "", 256)},
		engine.SetTrackPattern{Track: 1, Pattern: 7},
		engine.StartTransport{},
		engine.StartTransport{},
	)
	process(e, 1)
	s := e.Mirror().Load()
	expected := []error{
		leebee.ErrInvalidTrackID,
		leebee.ErrInvalidTrackID,
		nil,
		leebee.ErrInvalidPatternReference,
		nil,
		leebee.ErrTransportAlreadyRunning,
	}
	for i, id := range ids {
		err := s.Error(id)
		if expected[i] == nil && err != nil || expected[i] != nil && !errors.Is(err, expected[i]) {
			t.Fatalf("command %d: got error %v, expected %v", i, err, expected[i])
		}
	}
	if len(s.Tracks) != 1 || s.Tracks[0].Name != "Track 1" || !s.Transport.Playing {
		t.Fatalf("got %+v, expected one playing track", s)
	}
}

func TestOneShotPatternReleasesAtEnd(t *testing.T) {
	rec := &recording{}
	h := newHost(t, &recorderFactory{id: "test:rec", rec: rec})
	e := newEngine(t, engine.Options{Format: engine.Format{SampleRate: 48000, BlockSize: 200}})
	addRecorderTrack(t, e, h, 1, "test:rec")
	p := newPattern(t, 1, 16, false, leebee.NoteOnEvent(0, 60, 100))
	submit(t, e,
		engine.CreatePattern{Pattern: p},
		engine.SetTrackPattern{Track: 1, Pattern: 1},
		engine.StartTransport{},
	)
	process(e, 5)
	expected := [][]leebee.TimedEvent{{on(0, 60, 100)}, nil, {off(0, 60)}, nil, nil}
	for i := range expected {
		if len(expected[i]) == 0 && len(rec.blocks[i]) == 0 {
			continue
		}
		if !reflect.DeepEqual(rec.blocks[i], expected[i]) {
			t.Fatalf("block %d: got %v, expected %v", i, rec.blocks[i], expected[i])
		}
	}
}

func TestNoteDurationEndsInLaterBlock(t *testing.T) {
	rec := &recording{}
	h := newHost(t, &recorderFactory{id: "test:rec", rec: rec})
	e := newEngine(t, engine.Options{Format: engine.Format{SampleRate: 48000, BlockSize: 200}})
	addRecorderTrack(t, e, h, 1, "test:rec")
	p := newPattern(t, 1, 64, true, noteOnFor(4, 60, 100, 10))
	submit(t, e,
		engine.CreatePattern{Pattern: p},
		engine.SetTrackPattern{Track: 1, Pattern: 1},
		engine.StartTransport{},
	)
	process(e, 2)
	if expected := []leebee.TimedEvent{on(100, 60, 100)}; !reflect.DeepEqual(rec.blocks[0], expected) {
		t.Fatalf("block 0: got %v, expected %v", rec.blocks[0], expected)
	}
	if expected := []leebee.TimedEvent{off(150, 60)}; !reflect.DeepEqual(rec.blocks[1], expected) {
		t.Fatalf("block 1: got %v, expected %v", rec.blocks[1], expected)
	}
}

func TestRetriggerReleasesFirst(t *testing.T) {
	rec := &recording{}
	h := newHost(t, &recorderFactory{id: "test:rec", rec: rec})
	e := newEngine(t, engine.Options{Format: engine.Format{SampleRate: 48000, BlockSize: 200}})
	addRecorderTrack(t, e, h, 1, "test:rec")
	p := newPattern(t, 1, 64, true,
		leebee.NoteOnEvent(2, 60, 100),
		leebee.NoteOnEvent(4, 60, 90),
		leebee.NoteOnEvent(6, 60, 0),
	)
	submit(t, e,
		engine.CreatePattern{Pattern: p},
		engine.SetTrackPattern{Track: 1, Pattern: 1},
		engine.StartTransport{},
	)
	process(e, 1)
	expected := []leebee.TimedEvent{on(50, 60, 100), off(100, 60), on(100, 60, 90), off(150, 60)}
	if !reflect.DeepEqual(rec.blocks[0], expected) {
		t.Fatalf("got %v, expected %v", rec.blocks[0], expected)
	}
}

func TestSeekReleasesPatternNotes(t *testing.T) {
	rec := &recording{}
	h := newHost(t, &recorderFactory{id: "test:rec", rec: rec})
	e := newEngine(t, engine.Options{Format: engine.Format{SampleRate: 48000, BlockSize: 200}})
	addRecorderTrack(t, e, h, 1, "test:rec")
	p := newPattern(t, 1, 64, true, leebee.NoteOnEvent(0, 60, 100))
	submit(t, e,
		engine.CreatePattern{Pattern: p},
		engine.SetTrackPattern{Track: 1, Pattern: 1},
		engine.StartTransport{},
	)
	process(e, 1)
	submit(t, e, engine.Seek{Tick: 0})
	process(e, 1)
	expected := []leebee.TimedEvent{off(0, 60), on(0, 60, 100)}
	if !reflect.DeepEqual(rec.blocks[1], expected) {
		t.Fatalf("got %v, expected %v", rec.blocks[1], expected)
	}
}

func TestLoopRegionWraps(t *testing.T) {
	rec := &recording{}
	h := newHost(t, &recorderFactory{id: "test:rec", rec: rec})
	e := newEngine(t, engine.Options{Format: engine.Format{SampleRate: 48000, BlockSize: 200}})
	addRecorderTrack(t, e, h, 1, "test:rec")
	p := newPattern(t, 1, 64, true, leebee.NoteOnEvent(4, 60, 100), leebee.NoteOnEvent(20, 62, 100))
	submit(t, e,
		engine.CreatePattern{Pattern: p},
		engine.SetTrackPattern{Track: 1, Pattern: 1},
		engine.SetLoop{Start: 0, End: 16},
		engine.StartTransport{},
	)
	process(e, 3)
	expected := [][]leebee.TimedEvent{{on(100, 60, 100)}, {}, {off(0, 60), on(100, 60, 100)}}
	for i := range expected {
		if len(expected[i]) == 0 && len(rec.blocks[i]) == 0 {
			continue
		}
		if !reflect.DeepEqual(rec.blocks[i], expected[i]) {
			t.Fatalf("block %d: got %v, expected %v", i, rec.blocks[i], expected[i])
		}
	}
	if tick := e.Mirror().Position().Tick; tick != 8 {
		t.Fatalf("got tick %v, expected 8", tick)
	}
}

func TestLoopRegionSplitsBlock(t *testing.T) {
	rec := &recording{}
	h := newHost(t, &recorderFactory{id: "test:rec", rec: rec})
	e := newEngine(t, engine.Options{Format: engine.Format{SampleRate: 48000, BlockSize: 200}})
	addRecorderTrack(t, e, h, 1, "test:rec")
	p := newPattern(t, 1, 64, true, leebee.NoteOnEvent(2, 60, 100), leebee.NoteOnEvent(10, 62, 100))
	submit(t, e,
		engine.CreatePattern{Pattern: p},
		engine.SetTrackPattern{Track: 1, Pattern: 1},
		engine.SetLoop{Start: 0, End: 12},
		engine.StartTransport{},
	)
	process(e, 2)
	// block 1 covers ticks [8, 12) and then [0, 4) from frame 100
	expected := []leebee.TimedEvent{on(50, 62, 100), off(100, 60), off(100, 62), on(150, 60, 100)}
	if !reflect.DeepEqual(rec.blocks[1], expected) {
		t.Fatalf("got %v, expected %v", rec.blocks[1], expected)
	}
}

func TestShortLoopKeepsPositionInside(t *testing.T) {
	rec := &recording{}
	h := newHost(t, &recorderFactory{id: "test:rec", rec: rec})
	e := newEngine(t, engine.Options{})
	addRecorderTrack(t, e, h, 1, "test:rec")
	// a 256 frame block is 10.24 ticks, more than two passes of the loop
	submit(t, e, engine.SetLoop{Start: 0, End: 4}, engine.StartTransport{})
	for i := 0; i < 100; i++ {
		process(e, 1)
		if tick := e.Mirror().Position().Tick; tick < 0 || tick > 4 {
			t.Fatalf("block %d: got position %v, expected it inside [0, 4]", i, tick)
		}
	}
}

func TestAuditionAndLiveNotes(t *testing.T) {
	rec := &recording{}
	h := newHost(t, &recorderFactory{id: "test:rec", rec: rec})
	e := newEngine(t, engine.Options{})
	addRecorderTrack(t, e, h, 1, "test:rec")
	submit(t, e, engine.NoteOn{Track: 1, Pitch: 48, Velocity: 64})
	process(e, 1)
	submit(t, e, engine.NoteOff{Track: 1, Pitch: 48}, engine.ArmTrack{ID: 1})
	if !e.PlayLive(engine.LiveNote{On: true, Pitch: 50, Velocity: 70}) {
		t.Fatalf("PlayLive failed")
	}
	process(e, 1)
	if expected := []leebee.TimedEvent{on(0, 48, 64)}; !reflect.DeepEqual(rec.blocks[0], expected) {
		t.Fatalf("block 0: got %v, expected %v", rec.blocks[0], expected)
	}
	if expected := []leebee.TimedEvent{off(0, 48), on(0, 50, 70)}; !reflect.DeepEqual(rec.blocks[1], expected) {
		t.Fatalf("block 1: got %v, expected %v", rec.blocks[1], expected)
	}
	submit(t, e, engine.ArmTrack{ID: 0})
	process(e, 1)
	if expected := []leebee.TimedEvent{off(0, 50)}; !reflect.DeepEqual(rec.blocks[2], expected) {
		t.Fatalf("block 2: got %v, expected %v", rec.blocks[2], expected)
	}
}

func TestParamChangeEventTargetsSlot(t *testing.T) {
	rec := &recording{}
	h := newHost(t, &recorderFactory{id: "test:rec", rec: rec})
	e := newEngine(t, engine.Options{Format: engine.Format{SampleRate: 48000, BlockSize: 200}})
	addRecorderTrack(t, e, h, 1, "test:rec")
	p := newPattern(t, 1, 64, true, leebee.ParamChangeEvent(2, 0, levelPort, 0.5))
	submit(t, e,
		engine.CreatePattern{Pattern: p},
		engine.SetTrackPattern{Track: 1, Pattern: 1},
		engine.StartTransport{},
	)
	process(e, 1)
	expected := []leebee.TimedEvent{{Offset: 50, Kind: leebee.ParamChange, Slot: 0, Port: levelPort, Value: 0.5}}
	if !reflect.DeepEqual(rec.blocks[0], expected) {
		t.Fatalf("got %v, expected %v", rec.blocks[0], expected)
	}
	if rec.levels[0] != 0.5 {
		t.Fatalf("got level %v, expected 0.5", rec.levels[0])
	}
}

func TestMixing(t *testing.T) {
	h := newHost(t,
		&recorderFactory{id: "test:half", level: 0.5},
		&recorderFactory{id: "test:quarter", level: 0.25},
	)
	e := newEngine(t, engine.Options{})
	addRecorderTrack(t, e, h, 1, "test:half")
	addRecorderTrack(t, e, h, 2, "test:quarter")
	cases := []struct {
		name     string
		cmds     []engine.Command
		expected [2]float32
	}{
		{"sum", nil, [2]float32{0.375, 0.375}},
		{"solo", []engine.Command{engine.SetSolo{Track: 2, Solo: true}}, [2]float32{0.125, 0.125}},
		{"muted solo", []engine.Command{engine.SetMute{Track: 2, Mute: true}}, [2]float32{0, 0}},
		{"pan left", []engine.Command{
			engine.SetSolo{Track: 2, Solo: false},
			engine.SetMute{Track: 2, Mute: false},
			engine.SetGain{Track: 2, Gain: 0},
			engine.SetPan{Track: 1, Pan: -1},
		}, [2]float32{0.25, 0}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			submit(t, e, c.cmds...)
			buf := process(e, 1)
			for i, frame := range buf {
				if frame != c.expected {
					t.Fatalf("frame %d: got %v, expected %v", i, frame, c.expected)
				}
			}
		})
	}
}

func TestMasterIsSoftClipped(t *testing.T) {
	h := newHost(t, &recorderFactory{id: "test:full", level: 1})
	e := newEngine(t, engine.Options{})
	addRecorderTrack(t, e, h, 1, "test:full")
	addRecorderTrack(t, e, h, 2, "test:full")
	submit(t, e, engine.SetGain{Track: 1, Gain: 1}, engine.SetGain{Track: 2, Gain: 1})
	buf := process(e, 1)
	if v := buf[0][0]; v >= 1 || v < 0.99 {
		t.Fatalf("got %v, expected just below full scale", v)
	}
	if peak := e.Mirror().Position().Peak; peak[0] != buf[0][0] || peak[1] != buf[0][1] {
		t.Fatalf("got peak %v, expected %v", peak, buf[0])
	}
}

func TestUnknownPluginLeavesTopologyUnchanged(t *testing.T) {
	h := newHost(t, &recorderFactory{id: "test:rec"})
	e := newEngine(t, engine.Options{})
	c := engine.NewController(e, h)
	addRecorderTrack(t, e, h, 1, "test:rec")
	process(e, 1)
	before := e.Mirror().Load()
	_, err := c.LoadPlugin(t.Context(), 1, "test:missing")
	if !errors.Is(err, leebee.ErrPluginNotFound) {
		t.Fatalf("got error %v, expected %v", err, leebee.ErrPluginNotFound)
	}
	if k := leebee.KindOf(err); k != ftag.NotFound {
		t.Fatalf("got kind %v, expected %v", k, ftag.NotFound)
	}
	process(e, 1)
	after := e.Mirror().Load()
	if after.Version != before.Version || after.Applied != before.Applied || !reflect.DeepEqual(after.Tracks, before.Tracks) {
		t.Fatalf("topology changed: got %+v, expected %+v", after.Tracks, before.Tracks)
	}
}

func TestFaultIsolation(t *testing.T) {
	h := newHost(t,
		&recorderFactory{id: "test:crash", level: 0.5, panicAt: 2},
		&recorderFactory{id: "test:ok", level: 0.25},
	)
	e := newEngine(t, engine.Options{})
	addRecorderTrack(t, e, h, 1, "test:crash")
	addRecorderTrack(t, e, h, 2, "test:ok")
	if buf := process(e, 1); buf[0] != [2]float32{0.375, 0.375} {
		t.Fatalf("before the fault: got %v, expected 0.375", buf[0])
	}
	process(e, 1)
	s := e.Mirror().Load()
	faulted := s.Faulted()
	if len(faulted) != 1 || faulted[0].Plugin != "test:crash" || !strings.Contains(faulted[0].Fault, "boom") {
		t.Fatalf("got faulted %+v, expected test:crash", faulted)
	}
	for i := 0; i < 3; i++ {
		buf := process(e, 1)
		for j, frame := range buf {
			if frame != [2]float32{0.125, 0.125} {
				t.Fatalf("block %d frame %d: got %v, expected only the healthy track", i, j, frame)
			}
		}
	}
}

func TestSetFormatReinstantiates(t *testing.T) {
	rec := &recording{}
	h := newHost(t, &recorderFactory{id: "test:rec", rec: rec})
	e := newEngine(t, engine.Options{})
	addRecorderTrack(t, e, h, 1, "test:rec")
	submit(t, e, engine.SetParameter{Track: 1, Slot: 0, Port: levelPort, Value: 0.75})
	process(e, 1)
	if err := e.SetFormat(engine.Format{SampleRate: 44100, BlockSize: 128}); err != nil {
		t.Fatalf("SetFormat failed: %v", err)
	}
	s := e.Mirror().Load()
	if s.SampleRate != 44100 || s.BlockSize != 128 {
		t.Fatalf("got format %v/%v, expected 44100/128", s.SampleRate, s.BlockSize)
	}
	if !reflect.DeepEqual(rec.rates, []float64{48000, 44100}) {
		t.Fatalf("got instantiations at %v, expected [48000 44100]", rec.rates)
	}
	if n := rec.deactivated.Load(); n != 1 {
		t.Fatalf("got %v deactivations, expected 1", n)
	}
	buf := process(e, 1)
	if len(buf) != 128 || buf[127] != [2]float32{0.375, 0.375} {
		t.Fatalf("got %v frames ending in %v, expected 128 ending in 0.375", len(buf), buf[len(buf)-1])
	}
	if err := e.SetFormat(engine.Format{}); !errors.Is(err, leebee.ErrInvalidArgument) {
		t.Fatalf("got error %v, expected %v", err, leebee.ErrInvalidArgument)
	}
}

func TestSetFormatAfterHalt(t *testing.T) {
	e := newEngine(t, engine.Options{})
	submit(t, e, engine.Halt{})
	process(e, 1)
	if err := e.SetFormat(engine.Format{SampleRate: 44100, BlockSize: 128}); !errors.Is(err, leebee.ErrEngineHalted) {
		t.Fatalf("got error %v, expected %v", err, leebee.ErrEngineHalted)
	}
	if s := e.Mirror().Load(); s.SampleRate != 48000 || s.BlockSize != 256 {
		t.Fatalf("got format %v/%v, expected 48000/256", s.SampleRate, s.BlockSize)
	}
}

func TestMetronome(t *testing.T) {
	rec := &recording{}
	e := newEngine(t, engine.Options{
		Format:    engine.Format{SampleRate: 48000, BlockSize: 200},
		Metronome: &recorderFactory{id: "test:click", rec: rec, level: 1},
	})
	ids := submit(t, e, engine.SetMetronome{Volume: 2}, engine.SetMetronome{Volume: 0.5}, engine.StartTransport{})
	// a beat is 960 ticks, 120 blocks
	process(e, 121)
	s := e.Mirror().Load()
	if err := s.Error(ids[0]); !errors.Is(err, leebee.ErrInvalidArgument) {
		t.Fatalf("got error %v, expected %v", err, leebee.ErrInvalidArgument)
	}
	if s.Metronome != 0.5 {
		t.Fatalf("got volume %v, expected 0.5", s.Metronome)
	}
	type click struct {
		block int
		ev    leebee.TimedEvent
	}
	var got []click
	for i, block := range rec.blocks {
		for _, ev := range block {
			got = append(got, click{i, ev})
		}
	}
	expected := []click{{0, on(0, 84, 100)}, {15, off(0, 84)}, {120, on(0, 72, 100)}}
	if !reflect.DeepEqual(got, expected) {
		t.Fatalf("got %v, expected %v", got, expected)
	}
}

func TestRemovedInstancesAreRetired(t *testing.T) {
	rec := &recording{}
	h := newHost(t, &recorderFactory{id: "test:rec", rec: rec})
	e := newEngine(t, engine.Options{})
	c := engine.NewController(e, h)
	addRecorderTrack(t, e, h, 1, "test:rec")
	process(e, 1)
	submit(t, e, engine.RemoveTrack{ID: 1})
	if n := c.Collect(); n != 0 {
		t.Fatalf("collected %v instances before the removal was applied", n)
	}
	process(e, 1)
	if n := c.Collect(); n != 1 {
		t.Fatalf("got %v collected, expected 1", n)
	}
	if n := rec.deactivated.Load(); n != 1 {
		t.Fatalf("got %v deactivations, expected 1", n)
	}
}

func TestDeleteTracksIgnoresMissingIDs(t *testing.T) {
	h := newHost(t, &recorderFactory{id: "test:rec"})
	e := newEngine(t, engine.Options{})
	c := engine.NewController(e, h)
	stop := pump(e)
	defer stop()
	ctx := t.Context()
	for _, missingFirst := range []bool{false, true} {
		id, err := c.CreateTrack(ctx, "", "test:rec")
		if err != nil {
			t.Fatalf("CreateTrack failed: %v", err)
		}
		ids := []leebee.TrackID{id, 999}
		if missingFirst {
			ids = []leebee.TrackID{999, id}
		}
		if err := c.DeleteTracks(ctx, ids...); err != nil {
			t.Fatalf("DeleteTracks(%v): got error %v, expected nil", ids, err)
		}
		if c.State().Track(id) != nil {
			t.Fatalf("DeleteTracks(%v): track %d still present", ids, id)
		}
	}
	if err := c.DeleteTracks(ctx, 999); err != nil {
		t.Fatalf("got error %v, expected nil", err)
	}
}

func TestSnapshotNeverShowsPartialTracks(t *testing.T) {
	h := newHost(t, &recorderFactory{id: "test:a"}, &recorderFactory{id: "test:b"})
	e := newEngine(t, engine.Options{})
	c := engine.NewController(e, h)
	stop := pump(e)
	defer stop()
	ctx := t.Context()
	done := make(chan struct{})
	var wg sync.WaitGroup
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
				}
				s := c.State()
				for _, tr := range s.Tracks {
					if len(tr.Plugins) != 2 {
						t.Errorf("track %d shows %d plugins, expected 2", tr.ID, len(tr.Plugins))
						return
					}
				}
			}
		}()
	}
	for i := 0; i < 50; i++ {
		id, err := c.CreateTrack(ctx, "", "test:a", "test:b")
		if err != nil {
			t.Fatalf("CreateTrack failed: %v", err)
		}
		if i%2 == 0 {
			if err := c.DeleteTrack(ctx, id); err != nil {
				t.Fatalf("DeleteTrack failed: %v", err)
			}
		}
	}
	close(done)
	wg.Wait()
	if n := len(c.State().Tracks); n != 25 {
		t.Fatalf("got %v tracks, expected 25", n)
	}
}
