package plugins

import (
	"math"

	"github.com/mini-leebee/leebee"
)

// Control ports of the sine synth.
const (
	SineAttack = iota + 3
	SineDecay
	SineSustain
	SineRelease
	SineVolume
)

// Sine is a polyphonic sine synthesizer with an ADSR envelope per voice.
type Sine struct{}

type (
	sine struct {
		sampleRate float64
		out        [leebee.NumChannels][]float32
		ctl        [SineVolume + 1][]float32
		voices     [MaxVoices]sineVoice
		clock      int64
	}

	sineVoice struct {
		note   uint8
		amp    float32
		phase  float64
		inc    float64
		env    adsr
		age    int64
		active bool
	}
)

func (Sine) Descriptor() leebee.Descriptor {
	return leebee.Descriptor{
		ID:    SineID,
		Name:  "Sine",
		Class: leebee.Instrument,
		Ports: append(stereoOut(),
			control(SineAttack, "attack", "Attack", 0.01, 0.001, 2),
			control(SineDecay, "decay", "Decay", 0.1, 0.001, 2),
			control(SineSustain, "sustain", "Sustain", 0.7, 0, 1),
			control(SineRelease, "release", "Release", 0.3, 0.001, 5),
			control(SineVolume, "volume", "Volume", 0.8, 0, 1),
		),
	}
}

func (Sine) Instantiate(sampleRate float64, blockSize int) (leebee.Processor, error) {
	s := &sine{sampleRate: sampleRate}
	for i := range s.voices {
		s.voices[i].env.sampleRate = float32(sampleRate)
	}
	return s, nil
}

func (s *sine) ConnectPort(p int, data []float32) {
	switch {
	case p < leebee.NumChannels:
		s.out[p] = data
	case p >= SineAttack && p <= SineVolume:
		s.ctl[p] = data
	}
}

func (s *sine) Run(frames int, events []leebee.TimedEvent) error {
	a := port(s.ctl[SineAttack], 0.01)
	d := port(s.ctl[SineDecay], 0.1)
	su := port(s.ctl[SineSustain], 0.7)
	r := port(s.ctl[SineRelease], 0.3)
	for i := range s.voices {
		s.voices[i].env.set(a, d, su, r)
	}
	runEvents(s, frames, events)
	return nil
}

func (s *sine) handle(e leebee.TimedEvent) {
	switch e.Kind {
	case leebee.NoteOn:
		v := s.allocate()
		v.note = e.Pitch
		v.amp = float32(e.Velocity) / 127
		v.phase = 0
		v.inc = 2 * math.Pi * noteFrequency(e.Pitch) / s.sampleRate
		v.age = s.clock
		v.active = true
		v.env.reset()
		v.env.trigger()
		s.clock++
	case leebee.NoteOff:
		for i := range s.voices {
			v := &s.voices[i]
			if v.active && v.note == e.Pitch && v.env.stage != envRelease {
				v.env.noteOff()
			}
		}
	}
}

// allocate returns a free voice, or steals the oldest one.
func (s *sine) allocate() *sineVoice {
	oldest := &s.voices[0]
	for i := range s.voices {
		v := &s.voices[i]
		if !v.active {
			return v
		}
		if v.age < oldest.age {
			oldest = v
		}
	}
	return oldest
}

func (s *sine) render(from, to int) {
	vol := port(s.ctl[SineVolume], 0.8)
	l, r := s.out[0][from:to], s.out[1][from:to]
	clear(l)
	for i := range s.voices {
		v := &s.voices[i]
		if !v.active {
			continue
		}
		for j := range l {
			l[j] += float32(math.Sin(v.phase)) * v.amp * v.env.next() * vol
			v.phase += v.inc
			if v.phase > 2*math.Pi {
				v.phase -= 2 * math.Pi
			}
		}
		if v.env.stage == envIdle {
			v.active = false
		}
	}
	copy(r, l)
}

func (s *sine) Deactivate() {}
