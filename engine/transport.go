package engine

import (
	"math"

	"github.com/mini-leebee/leebee"
)

type (
	// Transport is the musical clock. It only changes when the real-time
	// thread applies a command, and the tempo it reports is latched at the
	// start of every block: a tempo change never moves events that were
	// already placed in the block being rendered.
	Transport struct {
		sampleRate float64
		tempo      float64
		tempoRange leebee.TempoRange
		playing    bool
		tick       float64 // musical position of the next block
		frames     uint64  // frames rendered while playing, never rewinds
		loop       LoopRegion
	}

	// LoopRegion makes the transport jump back to Start when it reaches End.
	LoopRegion struct {
		Start int64 `json:"start"`
		End   int64 `json:"end"`
	}
)

func newTransport(sampleRate, tempo float64, r leebee.TempoRange) Transport {
	return Transport{sampleRate: sampleRate, tempo: tempo, tempoRange: r}
}

// Start starts playing from the current position.
func (t *Transport) Start() error {
	if t.playing {
		return leebee.ErrTransportAlreadyRunning
	}
	t.playing = true
	return nil
}

// Stop stops playing and keeps the position. It reports whether the
// transport was playing.
func (t *Transport) Stop() bool {
	was := t.playing
	t.playing = false
	return was
}

// Seek moves the position. It takes effect at the next block.
func (t *Transport) Seek(tick int64) error {
	if tick < 0 {
		return leebee.ErrInvalidPosition
	}
	t.tick = float64(tick)
	return nil
}

// SetTempo changes the tempo for the blocks that follow.
func (t *Transport) SetTempo(bpm float64) error {
	if !t.tempoRange.Contains(bpm) {
		return leebee.ErrTempoOutOfRange
	}
	t.tempo = bpm
	return nil
}

// SetLoop sets the loop region; end <= start clears it.
func (t *Transport) SetLoop(start, end int64) error {
	if start < 0 || end < 0 {
		return leebee.ErrInvalidPosition
	}
	if end <= start {
		t.loop = LoopRegion{}
		return nil
	}
	t.loop = LoopRegion{Start: start, End: end}
	return nil
}

func (t *Transport) Playing() bool       { return t.playing }
func (t *Transport) Tempo() float64      { return t.tempo }
func (t *Transport) Tick() float64       { return t.tick }
func (t *Transport) Frames() uint64      { return t.frames }
func (t *Transport) Loop() LoopRegion    { return t.loop }
func (t *Transport) SampleRate() float64 { return t.sampleRate }

// begin computes the window of musical time covered by the next frames
// frames. A stopped transport covers no time.
func (t *Transport) begin(frames int, w *window) {
	*w = window{}
	if !t.playing || frames <= 0 {
		return
	}
	spt := leebee.SamplesPerTick(t.sampleRate, t.tempo)
	length := float64(frames) / spt
	start := t.tick
	loopEnd := float64(t.loop.End)
	if t.loop.End > t.loop.Start && start == loopEnd {
		// the previous block ended right on the loop end
		start = float64(t.loop.Start)
		w.wrapped = true
		w.wrapSeg = 0
	}
	end := start + length
	if t.loop.End > t.loop.Start && start < loopEnd && end > loopEnd {
		wrap := int((loopEnd - start) * spt)
		w.segs[0] = segment{start: start, end: loopEnd, base: 0, spt: spt, frames: frames}
		rest := end - loopEnd
		loopStart := float64(t.loop.Start)
		if n := loopEnd - loopStart; rest > n {
			// the loop is shorter than the block: whole passes inside the
			// block are skipped, the clock stays inside the region
			if rest = math.Mod(rest, n); rest == 0 {
				rest = n
			}
		}
		w.segs[1] = segment{start: loopStart, end: loopStart + rest, base: min(wrap, frames-1), spt: spt, frames: frames}
		w.n = 2
		w.wrapped = true
		w.wrapSeg = 1
		w.next = loopStart + rest
		return
	}
	w.segs[0] = segment{start: start, end: end, base: 0, spt: spt, frames: frames}
	w.n = 1
	w.next = end
}

// end advances the clock past the window.
func (t *Transport) end(frames int, w *window) {
	if !t.playing {
		return
	}
	t.tick = w.next
	t.frames += uint64(frames)
}
