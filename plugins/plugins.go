// Package plugins contains the plugin variants built into leebee and the
// loader of the YAML plugin index that adds sample players to them.
package plugins

import (
	"math"

	"github.com/mini-leebee/leebee"
)

// Ids of the built-in plugins.
const (
	SineID    = "builtin:sine"
	SamplerID = "builtin:sampler"
	GainID    = "builtin:gain"
	ClickID   = "builtin:click"
)

// MaxVoices is the polyphony of the instruments.
const MaxVoices = 16

// Builtins returns the factories of the built-in plugins, without the
// metronome click, which is not a track plugin.
func Builtins() []leebee.Factory {
	return []leebee.Factory{
		Sine{},
		NewSampler(SamplerID, "Sampler", DefaultSample(), 60),
		Gain{},
	}
}

// stereoOut are the two audio output ports every instrument starts with.
func stereoOut() []leebee.Port {
	return []leebee.Port{
		{Index: 0, Symbol: "out_l", Name: "Out L", Kind: leebee.AudioOut},
		{Index: 1, Symbol: "out_r", Name: "Out R", Kind: leebee.AudioOut},
		{Index: 2, Symbol: "events", Name: "Events", Kind: leebee.EventIn},
	}
}

func control(index int, symbol, name string, def, lo, hi float32) leebee.Port {
	return leebee.Port{Index: index, Symbol: symbol, Name: name, Kind: leebee.ControlIn, Default: def, Min: lo, Max: hi}
}

// eventRenderer is a plugin that renders audio in stretches between the
// events of a block.
type eventRenderer interface {
	handle(e leebee.TimedEvent)
	render(from, to int)
}

// runEvents splits the block at the offsets of the events, so every event
// takes effect at its exact frame.
func runEvents(r eventRenderer, frames int, events []leebee.TimedEvent) {
	pos := 0
	for _, e := range events {
		at := min(max(e.Offset, pos), frames)
		if at > pos {
			r.render(pos, at)
			pos = at
		}
		r.handle(e)
	}
	if pos < frames {
		r.render(pos, frames)
	}
}

// noteFrequency is the equal-tempered frequency of a MIDI note, A4 = 440 Hz.
func noteFrequency(note uint8) float64 {
	return 440 * math.Pow(2, (float64(note)-69)/12)
}

// port returns the value bound to a control port, or def if none is bound.
func port(p []float32, def float32) float32 {
	if len(p) == 0 {
		return def
	}
	return p[0]
}
