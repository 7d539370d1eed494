package engine

import (
	"math"

	"github.com/mini-leebee/leebee"
)

type (
	// segment is a contiguous stretch of musical time inside one block:
	// ticks [start, end) are played from frame base onwards.
	segment struct {
		start, end float64
		base       int
		spt        float64 // samples per tick, latched at block start
		frames     int
	}

	// window is the musical time covered by one block. It has two segments
	// when the transport wraps around its loop region inside the block.
	window struct {
		segs    [2]segment
		n       int
		wrapped bool
		wrapSeg int // segment starting at the loop start, if wrapped
		next    float64
	}
)

// offset maps a tick inside the segment to a frame inside the block.
func (s *segment) offset(tick float64) int {
	o := s.base + int(math.Floor((tick-s.start)*s.spt))
	return min(max(o, s.base), s.frames-1)
}

// Segments returns the played segments of the window.
func (w *window) segments() []segment {
	return w.segs[:w.n]
}

// sequence turns the events of the track's pattern that fall inside the
// window into timed events for this block. A looping pattern repeats every
// Length ticks from transport tick 0: an event at pattern tick p fires at
// the transport ticks c*Length+p, so the boundary between two cycles is
// crossed exactly once and tick 0 of the next cycle is the only event
// there. A one-shot pattern plays its first cycle only and releases its
// notes when it ends. Notes of pattern tracks are released where the
// transport wraps around its loop region.
func sequence(t *Track, w *window) {
	for i := range w.segments() {
		s := &w.segs[i]
		p := t.pattern
		if w.wrapped && i == w.wrapSeg && p != nil {
			// pattern playback jumps back with the loop
			t.releaseAll(s.base)
			t.ended = false
		}
		t.firePending(s)
		switch {
		case p == nil:
		case p.Loop:
			l := float64(p.Length)
			first := math.Floor(s.start / l)
			for c := first; c*l < s.end; c++ {
				emitCycle(t, s, p, c*l)
			}
		case !t.ended:
			emitCycle(t, s, p, 0)
			if end := float64(p.Length); end >= s.start && end < s.end {
				t.releaseAll(s.offset(end))
				t.ended = true
			}
		}
		// durations that end inside the segment they started in
		t.firePending(s)
	}
}

// emitCycle emits the events of one pattern cycle starting at transport
// tick base that fall inside the segment.
func emitCycle(t *Track, s *segment, p *leebee.Pattern, base float64) {
	lo := math.Ceil(s.start - base)
	if lo < 0 {
		lo = 0
	}
	hi := s.end - base
	for i := p.LowerBound(int64(lo)); i < len(p.Events); i++ {
		e := &p.Events[i]
		if float64(e.Tick) >= hi {
			break
		}
		tick := base + float64(e.Tick)
		off := s.offset(tick)
		switch e.Kind {
		case leebee.NoteOn:
			if t.noteOn(off, e.Pitch, e.Velocity) && e.Duration > 0 {
				t.schedule(tick+float64(e.Duration), e.Pitch&127)
			}
		case leebee.NoteOff:
			t.noteOff(off, e.Pitch)
		case leebee.ParamChange:
			t.push(leebee.TimedEvent{Offset: off, Kind: leebee.ParamChange, Slot: e.Slot, Port: e.Port, Value: e.Value})
		}
	}
}

// beats emits one click per beat inside the window: an accented one on the
// first beat of each 4/4 bar.
func beats(t *Track, w *window) {
	const (
		accentPitch = 84
		beatPitch   = 72
		clickLength = leebee.TicksPerBeat / 8
	)
	for i := range w.segments() {
		s := &w.segs[i]
		if w.wrapped && i == w.wrapSeg {
			t.releaseAll(s.base)
		}
		t.firePending(s)
		for b := math.Ceil(s.start / leebee.TicksPerBeat); b*leebee.TicksPerBeat < s.end; b++ {
			tick := b * leebee.TicksPerBeat
			pitch := uint8(beatPitch)
			if math.Mod(b, 4) == 0 {
				pitch = accentPitch
			}
			if t.noteOn(s.offset(tick), pitch, 100) {
				t.schedule(tick+clickLength, pitch)
			}
		}
		t.firePending(s)
	}
}
