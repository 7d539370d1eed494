package plugins

import (
	"fmt"
	"math"
	"os"

	"github.com/mini-leebee/leebee"
)

// SamplerVolume is the control port of the volume of a sampler.
const SamplerVolume = 3

// releaseTime is how long a released sampler voice takes to fade out, in
// seconds.
const releaseTime = 0.01

type (
	// Sample is decoded audio, one slice per channel.
	Sample struct {
		Channels   [][]float32
		SampleRate int
	}

	// Sampler plays a sample, transposed by the distance of each note from
	// the root note.
	Sampler struct {
		id, name string
		sample   Sample
		root     uint8
	}

	sampler struct {
		f          *Sampler
		sampleRate float64
		out        [leebee.NumChannels][]float32
		volume     []float32
		voices     [MaxVoices]samplerVoice
		clock      int64
	}

	samplerVoice struct {
		note   uint8
		pos    float64
		step   float64
		amp    float32
		fade   float32 // amplitude lost per frame once released
		age    int64
		active bool
	}
)

// NewSampler returns a sampler plugin variant.
func NewSampler(id, name string, sample Sample, root uint8) *Sampler {
	return &Sampler{id: id, name: name, sample: sample, root: root}
}

// LoadSample decodes a wav file.
func LoadSample(path string) (Sample, error) {
	f, err := os.Open(path)
	if err != nil {
		return Sample{}, fmt.Errorf("LoadSample: %w", err)
	}
	defer f.Close()
	channels, rate, err := leebee.ReadWav(f)
	if err != nil {
		return Sample{}, fmt.Errorf("LoadSample %s: %w", path, err)
	}
	return Sample{Channels: channels, SampleRate: rate}, nil
}

// DefaultSample is a short plucked tone at middle C, the sample of the
// built-in sampler.
func DefaultSample() Sample {
	const rate = 48000
	n := rate / 4
	ch := make([]float32, n)
	for i := range ch {
		t := float64(i) / rate
		ch[i] = float32(math.Sin(2*math.Pi*noteFrequency(60)*t) * math.Exp(-12*t))
	}
	return Sample{Channels: [][]float32{ch}, SampleRate: rate}
}

// Frames returns the length of the sample.
func (s Sample) Frames() int {
	if len(s.Channels) == 0 {
		return 0
	}
	return len(s.Channels[0])
}

func (f *Sampler) Descriptor() leebee.Descriptor {
	return leebee.Descriptor{
		ID:    f.id,
		Name:  f.name,
		Class: leebee.Instrument,
		Ports: append(stereoOut(), control(SamplerVolume, "volume", "Volume", 0.8, 0, 1)),
	}
}

func (f *Sampler) Instantiate(sampleRate float64, blockSize int) (leebee.Processor, error) {
	if f.sample.Frames() == 0 || f.sample.SampleRate <= 0 {
		return nil, fmt.Errorf("sampler %s has no sample", f.id)
	}
	return &sampler{f: f, sampleRate: sampleRate}, nil
}

func (s *sampler) ConnectPort(p int, data []float32) {
	switch {
	case p < leebee.NumChannels:
		s.out[p] = data
	case p == SamplerVolume:
		s.volume = data
	}
}

func (s *sampler) Run(frames int, events []leebee.TimedEvent) error {
	runEvents(s, frames, events)
	return nil
}

func (s *sampler) handle(e leebee.TimedEvent) {
	switch e.Kind {
	case leebee.NoteOn:
		v := &s.voices[0]
		for i := range s.voices {
			w := &s.voices[i]
			if !w.active {
				v = w
				break
			}
			if w.age < v.age {
				v = w
			}
		}
		semis := float64(int(e.Pitch) - int(s.f.root))
		*v = samplerVoice{
			note:   e.Pitch,
			step:   math.Pow(2, semis/12) * float64(s.f.sample.SampleRate) / s.sampleRate,
			amp:    float32(e.Velocity) / 127,
			age:    s.clock,
			active: true,
		}
		s.clock++
	case leebee.NoteOff:
		for i := range s.voices {
			v := &s.voices[i]
			if v.active && v.note == e.Pitch && v.fade == 0 {
				v.fade = v.amp / float32(max(releaseTime*s.sampleRate, 1))
			}
		}
	}
}

func (s *sampler) render(from, to int) {
	vol := port(s.volume, 0.8)
	l, r := s.out[0][from:to], s.out[1][from:to]
	clear(l)
	clear(r)
	chs := s.f.sample.Channels
	right := chs[len(chs)-1]
	n := s.f.sample.Frames()
	for i := range s.voices {
		v := &s.voices[i]
		for j := range l {
			if !v.active {
				break
			}
			k := int(v.pos)
			if k+1 >= n {
				v.active = false
				break
			}
			frac := float32(v.pos - float64(k))
			g := v.amp * vol
			l[j] += (chs[0][k] + (chs[0][k+1]-chs[0][k])*frac) * g
			r[j] += (right[k] + (right[k+1]-right[k])*frac) * g
			v.pos += v.step
			if v.fade > 0 {
				v.amp -= v.fade
				if v.amp <= 0 {
					v.active = false
				}
			}
		}
	}
}

func (s *sampler) Deactivate() {}
