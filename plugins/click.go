package plugins

import (
	"math"

	"github.com/mini-leebee/leebee"
)

// ClickVolume is the control port of the click level.
const ClickVolume = 3

// Click is the metronome sound: a short decaying blip at the pitch of the
// note that triggers it.
type Click struct{}

type click struct {
	sampleRate float64
	out        [leebee.NumChannels][]float32
	volume     []float32
	phase, inc float64
	amp        float64
	decay      float64 // per frame
}

func (Click) Descriptor() leebee.Descriptor {
	return leebee.Descriptor{
		ID:    ClickID,
		Name:  "Click",
		Class: leebee.Instrument,
		Ports: append(stereoOut(), control(ClickVolume, "volume", "Volume", 1, 0, 1)),
	}
}

func (Click) Instantiate(sampleRate float64, blockSize int) (leebee.Processor, error) {
	// -60 dB after 30 ms
	return &click{sampleRate: sampleRate, decay: math.Pow(0.001, 1/(0.03*sampleRate))}, nil
}

func (c *click) ConnectPort(p int, data []float32) {
	switch {
	case p < leebee.NumChannels:
		c.out[p] = data
	case p == ClickVolume:
		c.volume = data
	}
}

func (c *click) Run(frames int, events []leebee.TimedEvent) error {
	runEvents(c, frames, events)
	return nil
}

func (c *click) handle(e leebee.TimedEvent) {
	if e.Kind == leebee.NoteOn {
		c.phase = 0
		c.inc = 2 * math.Pi * noteFrequency(e.Pitch) / c.sampleRate
		c.amp = float64(e.Velocity) / 127
	}
}

func (c *click) render(from, to int) {
	vol := float64(port(c.volume, 1))
	l := c.out[0][from:to]
	for i := range l {
		l[i] = float32(math.Sin(c.phase) * c.amp * vol)
		c.phase += c.inc
		c.amp *= c.decay
	}
	if c.amp < 1e-6 {
		c.amp = 0
	}
	copy(c.out[1][from:to], l)
}

func (c *click) Deactivate() {}
