package leebee

import (
	"fmt"
	"io"
	"math"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// WriteWav encodes the buffer as a 16-bit stereo PCM wav file.
func WriteWav(w io.WriteSeeker, buffer AudioBuffer, sampleRate int) error {
	enc := wav.NewEncoder(w, sampleRate, 16, NumChannels, 1)
	intBuf := &audio.IntBuffer{
		Format: &audio.Format{
			NumChannels: NumChannels,
			SampleRate:  sampleRate,
		},
		Data:           make([]int, len(buffer)*NumChannels),
		SourceBitDepth: 16,
	}
	for i, frame := range buffer {
		for c, v := range frame {
			intBuf.Data[i*NumChannels+c] = clamp(int(v*math.MaxInt16), math.MinInt16, math.MaxInt16)
		}
	}
	if err := enc.Write(intBuf); err != nil {
		return fmt.Errorf("WriteWav failed: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("WriteWav failed: %w", err)
	}
	return nil
}

// ReadWav decodes a wav file into a planar float buffer, one slice per
// channel of the file, values scaled to [-1, 1].
func ReadWav(r io.ReadSeeker) (channels [][]float32, sampleRate int, err error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return nil, 0, fmt.Errorf("%w: not a wav file", ErrInvalidArgument)
	}
	if err := dec.FwdToPCM(); err != nil {
		return nil, 0, fmt.Errorf("ReadWav failed: %w", err)
	}
	format := dec.Format()
	bitDepth := int(dec.SampleBitDepth())
	if bitDepth == 0 || format == nil || format.NumChannels == 0 {
		return nil, 0, fmt.Errorf("%w: wav file has no format", ErrInvalidArgument)
	}
	bytesPerSample := (bitDepth-1)/8 + 1
	samples := int(dec.PCMLen()) / bytesPerSample
	buf := &audio.IntBuffer{Format: format, Data: make([]int, samples), SourceBitDepth: bitDepth}
	read, err := dec.PCMBuffer(buf)
	if err != nil {
		return nil, 0, fmt.Errorf("ReadWav failed: %w", err)
	}
	n := format.NumChannels
	frames := read / n
	factor := float32(math.Pow(2, float64(bitDepth-1)))
	channels = make([][]float32, n)
	for c := range channels {
		channels[c] = make([]float32, frames)
	}
	for i := 0; i < frames*n; i++ {
		channels[i%n][i/n] = float32(buf.Data[i]) / factor
	}
	return channels, format.SampleRate, nil
}

func clamp(value, min, max int) int {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}
