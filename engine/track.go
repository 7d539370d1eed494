package engine

import (
	"fmt"

	"github.com/mini-leebee/leebee"
)

const maxPending = 256

type (
	// Track is one instrument channel: a serial plugin chain fed by the
	// sequencer, mixed into the master bus with gain and pan. A track lives
	// in one slot of the engine's track arena; all of its buffers are
	// allocated when it is built on the control side.
	Track struct {
		ID   leebee.TrackID
		Name string
		Gain float32
		Pan  float32
		Mute bool
		Solo bool

		pattern *leebee.Pattern

		chain  [leebee.MaxChain]*Instance
		nChain int

		silence leebee.PortBuffer // input of the first stage, never written
		out     leebee.PortBuffer // output of the last stage

		// events collected for the current block, sorted before processing
		events  [leebee.MaxBlockEvents]leebee.TimedEvent
		nEvents int

		active  [128]bool
		nActive int
		gen     [128]uint32 // bumped on every note on, to match pending offs
		pending [maxPending]pendingOff
		nPend   int
		ended   bool // a one-shot pattern has played to its end
	}

	// pendingOff is the note off of a note on that has a duration.
	pendingOff struct {
		tick  float64
		pitch uint8
		gen   uint32
	}
)

// room reserved in the event buffer for the note offs of every active note
const offReserve = 128

// NewTrack builds a track with buffers for blockSize frames.
func NewTrack(id leebee.TrackID, name string, blockSize int) *Track {
	if name == "" {
		name = fmt.Sprintf("Track %d", id)
	}
	t := &Track{
		ID:      id,
		Name:    name,
		Gain:    leebee.DefaultTrackGain,
		silence: leebee.NewPortBuffer(blockSize),
	}
	t.out = t.silence
	return t
}

// Chain returns the instances of the track in processing order.
func (t *Track) Chain() []*Instance {
	return t.chain[:t.nChain]
}

// Pattern returns the active pattern, or nil.
func (t *Track) Pattern() *leebee.Pattern {
	return t.pattern
}

func (t *Track) insert(slot int, inst *Instance) error {
	if t.nChain == leebee.MaxChain {
		return leebee.ErrChainFull
	}
	if slot < 0 || slot > t.nChain {
		slot = t.nChain
	}
	copy(t.chain[slot+1:t.nChain+1], t.chain[slot:t.nChain])
	t.chain[slot] = inst
	t.nChain++
	t.relink()
	return nil
}

func (t *Track) remove(slot int) (*Instance, error) {
	if slot < 0 || slot >= t.nChain {
		return nil, leebee.ErrInvalidArgument
	}
	inst := t.chain[slot]
	copy(t.chain[slot:], t.chain[slot+1:t.nChain])
	t.nChain--
	t.chain[t.nChain] = nil
	t.relink()
	return inst, nil
}

func (t *Track) move(from, to int) error {
	if from < 0 || from >= t.nChain || to < 0 || to >= t.nChain {
		return leebee.ErrInvalidArgument
	}
	inst := t.chain[from]
	if from < to {
		copy(t.chain[from:to], t.chain[from+1:to+1])
	} else {
		copy(t.chain[to+1:from+1], t.chain[to:from])
	}
	t.chain[to] = inst
	t.relink()
	return nil
}

// relink connects every stage of the chain to the output of the previous
// one. The chain is rebuilt as a whole whenever it changes.
func (t *Track) relink() {
	in := t.silence
	for _, inst := range t.chain[:t.nChain] {
		inst.connectInput(in)
		in = inst.out
	}
	t.out = in
}

// reformat resizes every buffer of the track and its instances.
func (t *Track) reformat(sampleRate float64, blockSize int) {
	t.silence = leebee.NewPortBuffer(blockSize)
	for _, inst := range t.chain[:t.nChain] {
		inst.reformat(sampleRate, blockSize)
	}
	t.relink()
}

// push appends an event for this block. Note ons and parameter changes
// leave room for releasing every note, so note offs are never lost.
func (t *Track) push(e leebee.TimedEvent) bool {
	limit := len(t.events)
	if e.Kind != leebee.NoteOff {
		limit -= offReserve
	}
	if t.nEvents >= limit {
		return false
	}
	t.events[t.nEvents] = e
	t.nEvents++
	return true
}

// noteOn starts a note, releasing it first if it is already sounding.
func (t *Track) noteOn(offset int, pitch, velocity uint8) bool {
	pitch &= 127
	if velocity == 0 {
		t.noteOff(offset, pitch)
		return false
	}
	if t.nEvents+2 > len(t.events)-offReserve {
		return false
	}
	if t.active[pitch] {
		t.noteOff(offset, pitch)
	}
	t.push(leebee.TimedEvent{Offset: offset, Kind: leebee.NoteOn, Pitch: pitch, Velocity: velocity})
	t.active[pitch] = true
	t.nActive++
	t.gen[pitch]++
	return true
}

// noteOff releases a sounding note; it does nothing for a silent one.
func (t *Track) noteOff(offset int, pitch uint8) {
	pitch &= 127
	if !t.active[pitch] {
		return
	}
	if t.push(leebee.TimedEvent{Offset: offset, Kind: leebee.NoteOff, Pitch: pitch}) {
		t.active[pitch] = false
		t.nActive--
	}
}

// releaseAll sends a note off for every sounding note and forgets pending
// note offs.
func (t *Track) releaseAll(offset int) {
	for p := 0; p < len(t.active) && t.nActive > 0; p++ {
		if t.active[p] {
			t.noteOff(offset, uint8(p))
		}
	}
	t.nPend = 0
}

func (t *Track) schedule(tick float64, pitch uint8) {
	if t.nPend == len(t.pending) {
		return
	}
	t.pending[t.nPend] = pendingOff{tick: tick, pitch: pitch, gen: t.gen[pitch]}
	t.nPend++
}

// firePending releases the notes whose duration ends before the end of the
// segment. An off that is already behind the segment fires at its start.
func (t *Track) firePending(s *segment) {
	for i := 0; i < t.nPend; {
		p := t.pending[i]
		if p.tick < s.end {
			if t.active[p.pitch] && t.gen[p.pitch] == p.gen {
				t.noteOff(s.offset(p.tick), p.pitch)
			}
			t.nPend--
			t.pending[i] = t.pending[t.nPend]
			continue
		}
		i++
	}
}

// ActiveNotes returns the number of sounding notes.
func (t *Track) ActiveNotes() int {
	return t.nActive
}

// sortEvents orders the block's events by offset. Insertion sort keeps the
// order of events at the same offset, so forced note offs stay in front of
// the note ons that follow them.
func (t *Track) sortEvents() {
	ev := t.events[:t.nEvents]
	for i := 1; i < len(ev); i++ {
		for j := i; j > 0 && ev[j].Offset < ev[j-1].Offset; j-- {
			ev[j], ev[j-1] = ev[j-1], ev[j]
		}
	}
}

// process runs the chain for one block. Note events go to every stage that
// takes events; a parameter change goes to its slot only and is also
// applied to the control port before the stage runs. It returns true if a
// plugin faulted during this block.
func (t *Track) process(frames int) (faulted bool) {
	ev := t.events[:t.nEvents]
	in := t.silence
	for slot, inst := range t.chain[:t.nChain] {
		inst.events = inst.events[:0]
		for _, e := range ev {
			if e.Kind == leebee.ParamChange {
				if e.Slot == slot {
					inst.SetControl(e.Port, e.Value)
					inst.events = append(inst.events, e)
				}
				continue
			}
			if inst.eventIn {
				inst.events = append(inst.events, e)
			}
		}
		if inst.run(frames, in) {
			faulted = true
		}
		in = inst.out
	}
	if t.nChain == 0 {
		t.out = t.silence
	}
	return faulted
}
