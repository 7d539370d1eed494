package engine

import (
	"github.com/mini-leebee/leebee"
)

// apply performs one command on the project. It runs on the real-time
// thread and returns plain sentinel errors, which cost no allocation.
func (e *Engine) apply(cmd Command) error {
	switch c := cmd.(type) {
	case AddTrack:
		return e.addTrack(c.Track)
	case RemoveTrack:
		t := e.graph.Remove(c.ID)
		if t == nil {
			return leebee.ErrInvalidTrackID
		}
		if e.armed == t.ID {
			e.armed = 0
		}
		e.version++
		e.retireTrack(t)
		return nil
	case RenameTrack:
		return e.withTrack(c.ID, func(t *Track) error {
			t.Name = c.Name
			return nil
		})
	case LoadPlugin:
		err := e.loadPlugin(c)
		if err != nil {
			e.retire(c.Instance)
		}
		return err
	case RemovePlugin:
		t := e.graph.Find(c.Track)
		if t == nil {
			return leebee.ErrInvalidTrackID
		}
		inst, err := t.remove(c.Slot)
		if err != nil {
			return err
		}
		e.version++
		e.retire(inst)
		return nil
	case MovePlugin:
		return e.withTrack(c.Track, func(t *Track) error { return t.move(c.From, c.To) })
	case SetParameter:
		return e.withTrack(c.Track, func(t *Track) error {
			if c.Slot < 0 || c.Slot >= t.nChain {
				return leebee.ErrInvalidArgument
			}
			return t.chain[c.Slot].SetControl(c.Port, c.Value)
		})
	case SetGain:
		if c.Gain < 0 {
			return leebee.ErrInvalidArgument
		}
		return e.withTrack(c.Track, func(t *Track) error {
			t.Gain = c.Gain
			return nil
		})
	case SetPan:
		if c.Pan < -1 || c.Pan > 1 {
			return leebee.ErrInvalidArgument
		}
		return e.withTrack(c.Track, func(t *Track) error {
			t.Pan = c.Pan
			return nil
		})
	case SetMute:
		return e.withTrack(c.Track, func(t *Track) error {
			t.Mute = c.Mute
			return nil
		})
	case SetSolo:
		return e.withTrack(c.Track, func(t *Track) error {
			t.Solo = c.Solo
			return nil
		})
	case ArmTrack:
		return e.arm(c.ID)
	case CreatePattern:
		if err := e.store.Add(c.Pattern); err != nil {
			return err
		}
		e.version++
		return nil
	case DeletePattern:
		p, err := e.store.Delete(c.ID)
		if err != nil {
			return err
		}
		for _, t := range e.graph.Routes() {
			if t.pattern == p {
				t.releaseAll(0)
				t.pattern = nil
			}
		}
		e.version++
		return nil
	case AddEvent:
		return e.bump(e.store.AddEvent(c.Pattern, c.Event))
	case RemoveEvent:
		return e.bump(e.store.RemoveEvent(c.Pattern, c.Index))
	case MoveEvent:
		return e.bump(e.store.MoveEvent(c.Pattern, c.Index, c.Tick))
	case SetTrackPattern:
		return e.setTrackPattern(c.Track, c.Pattern)
	case StartTransport:
		return e.bump(e.transport.Start())
	case StopTransport:
		// stopping also silences auditioned notes, playing or not
		e.transport.Stop()
		e.releaseAll()
		e.version++
		return nil
	case SetTempo:
		return e.bump(e.transport.SetTempo(c.BPM))
	case Seek:
		if err := e.transport.Seek(c.Tick); err != nil {
			return err
		}
		// every pattern track changes its playback position
		for _, t := range e.graph.Routes() {
			if t.pattern != nil {
				t.releaseAll(0)
				t.ended = false
			}
		}
		if e.metronome != nil {
			e.metronome.releaseAll(0)
		}
		e.version++
		return nil
	case SetLoop:
		return e.bump(e.transport.SetLoop(c.Start, c.End))
	case SetMetronome:
		if e.metronome == nil {
			return leebee.ErrPluginNotFound
		}
		if c.Volume < 0 || c.Volume > 1 {
			return leebee.ErrInvalidArgument
		}
		e.metronome.Gain = c.Volume
		e.version++
		return nil
	case NoteOn:
		t := e.graph.Find(c.Track)
		if t == nil {
			return leebee.ErrInvalidTrackID
		}
		t.noteOn(0, c.Pitch, c.Velocity)
		return nil
	case NoteOff:
		t := e.graph.Find(c.Track)
		if t == nil {
			return leebee.ErrInvalidTrackID
		}
		t.noteOff(0, c.Pitch)
		return nil
	case Halt:
		e.transport.Stop()
		e.releaseAll()
		e.halted = true
		e.version++
		return nil
	}
	return leebee.ErrInvalidArgument
}

// bump marks the project changed if err is nil, and passes err on.
func (e *Engine) bump(err error) error {
	if err == nil {
		e.version++
	}
	return err
}

func (e *Engine) withTrack(id leebee.TrackID, f func(t *Track) error) error {
	t := e.graph.Find(id)
	if t == nil {
		return leebee.ErrInvalidTrackID
	}
	return e.bump(f(t))
}

func (e *Engine) addTrack(t *Track) error {
	if t == nil || t.ID <= 0 {
		e.discard(AddTrack{Track: t})
		return leebee.ErrInvalidArgument
	}
	if e.graph.Find(t.ID) != nil {
		e.retireTrack(t)
		return leebee.ErrInvalidTrackID
	}
	if t.silence.Frames() != e.format.BlockSize {
		// built for a format that changed since
		t.reformat(float64(e.format.SampleRate), e.format.BlockSize)
	}
	if err := e.graph.Add(t); err != nil {
		e.retireTrack(t)
		return err
	}
	e.version++
	return nil
}

func (e *Engine) loadPlugin(c LoadPlugin) error {
	if c.Instance == nil {
		return leebee.ErrInvalidArgument
	}
	t := e.graph.Find(c.Track)
	if t == nil {
		return leebee.ErrInvalidTrackID
	}
	if c.Instance.blockSize != e.format.BlockSize {
		if err := c.Instance.reformat(float64(e.format.SampleRate), e.format.BlockSize); err != nil {
			return leebee.ErrInstantiationFailed
		}
	}
	if err := t.insert(c.Slot, c.Instance); err != nil {
		return err
	}
	e.version++
	return nil
}

func (e *Engine) setTrackPattern(id leebee.TrackID, pid leebee.PatternID) error {
	t := e.graph.Find(id)
	if t == nil {
		return leebee.ErrInvalidTrackID
	}
	var p *leebee.Pattern
	if pid != 0 {
		var err error
		if p, err = e.store.Get(pid); err != nil {
			return err
		}
	}
	t.releaseAll(0)
	t.pattern = p
	t.ended = false
	e.version++
	return nil
}

func (e *Engine) arm(id leebee.TrackID) error {
	if id != 0 && e.graph.Find(id) == nil {
		return leebee.ErrInvalidTrackID
	}
	if old := e.graph.Find(e.armed); old != nil && e.armed != id {
		old.releaseAll(0)
	}
	e.armed = id
	e.version++
	return nil
}

// releaseAll sends note offs for every sounding note of every track.
func (e *Engine) releaseAll() {
	for _, t := range e.graph.Routes() {
		t.releaseAll(0)
	}
	if e.metronome != nil {
		e.metronome.releaseAll(0)
	}
}
