package leebee

import "math"

// TicksPerBeat is the resolution of the musical time line.
const TicksPerBeat = 960

const (
	DefaultTempo = 120.0
	MinTempo     = 20.0
	MaxTempo     = 300.0
)

// SamplesPerTick returns how many audio samples one tick lasts at the given
// sample rate and tempo.
func SamplesPerTick(sampleRate, bpm float64) float64 {
	return sampleRate * 60 / (bpm * TicksPerBeat)
}

// TicksToSamples converts a tick distance to a sample distance.
func TicksToSamples(ticks, sampleRate, bpm float64) float64 {
	return ticks * SamplesPerTick(sampleRate, bpm)
}

// SamplesToTicks converts a sample distance to a tick distance.
func SamplesToTicks(samples, sampleRate, bpm float64) float64 {
	return samples / SamplesPerTick(sampleRate, bpm)
}

// TempoRange is the inclusive range of accepted tempos.
type TempoRange struct {
	Min, Max float64
}

// DefaultTempoRange is used when no range is configured.
var DefaultTempoRange = TempoRange{Min: MinTempo, Max: MaxTempo}

// Contains reports whether bpm is a valid tempo in the range.
func (r TempoRange) Contains(bpm float64) bool {
	if math.IsNaN(bpm) || math.IsInf(bpm, 0) {
		return false
	}
	return bpm >= r.Min && bpm <= r.Max
}
