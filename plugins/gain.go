package plugins

import (
	"github.com/mini-leebee/leebee"
	"github.com/viterin/vek/vek32"
)

// Control ports of the gain effect.
const (
	GainLevel = 4
	GainPan   = 5
)

// Gain is a stereo gain and balance effect.
type Gain struct{}

type gain struct {
	in, out    [leebee.NumChannels][]float32
	level, pan []float32
}

func (Gain) Descriptor() leebee.Descriptor {
	return leebee.Descriptor{
		ID:    GainID,
		Name:  "Gain",
		Class: leebee.Effect,
		Ports: []leebee.Port{
			{Index: 0, Symbol: "in_l", Name: "In L", Kind: leebee.AudioIn},
			{Index: 1, Symbol: "in_r", Name: "In R", Kind: leebee.AudioIn},
			{Index: 2, Symbol: "out_l", Name: "Out L", Kind: leebee.AudioOut},
			{Index: 3, Symbol: "out_r", Name: "Out R", Kind: leebee.AudioOut},
			control(GainLevel, "gain", "Gain", 1, 0, 4),
			control(GainPan, "pan", "Pan", 0, -1, 1),
		},
	}
}

func (Gain) Instantiate(sampleRate float64, blockSize int) (leebee.Processor, error) {
	return &gain{}, nil
}

func (g *gain) ConnectPort(p int, data []float32) {
	switch p {
	case 0, 1:
		g.in[p] = data
	case 2, 3:
		g.out[p-2] = data
	case GainLevel:
		g.level = data
	case GainPan:
		g.pan = data
	}
}

func (g *gain) Run(frames int, events []leebee.TimedEvent) error {
	level := port(g.level, 1)
	pan := port(g.pan, 0)
	// linear balance: turning towards one side attenuates the other
	gains := [leebee.NumChannels]float32{level * min(1, 1-pan), level * min(1, 1+pan)}
	for c := range g.out {
		if g.in[c] == nil {
			clear(g.out[c][:frames])
			continue
		}
		vek32.MulNumber_Into(g.out[c][:frames], g.in[c][:frames], gains[c])
	}
	return nil
}

func (g *gain) Deactivate() {}
