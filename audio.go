package leebee

type (
	// AudioBuffer is interleaved stereo audio, one [2]float32 per frame. It is
	// the format exchanged with audio backends.
	AudioBuffer [][2]float32

	// PortBuffer is planar audio, one slice per channel, as bound to plugin
	// audio ports. All channels have the same length.
	PortBuffer [NumChannels][]float32

	// AudioSource renders the next len(buf) frames into buf. Engines
	// implement it; audio backends call it from their real-time thread.
	AudioSource interface {
		Process(buf AudioBuffer)
	}

	// AudioContext is a running connection to an audio device that pulls
	// audio from a source.
	AudioContext interface {
		SampleRate() int
		BlockSize() int
		Close() error
	}
)

// NewPortBuffer allocates a planar buffer of frames frames with one backing
// array for all channels.
func NewPortBuffer(frames int) PortBuffer {
	backing := make([]float32, NumChannels*frames)
	var ret PortBuffer
	for c := range ret {
		ret[c] = backing[c*frames : (c+1)*frames : (c+1)*frames]
	}
	return ret
}

// Frames returns the length of the buffer in frames.
func (b PortBuffer) Frames() int {
	return len(b[0])
}

// Clear zeroes the first frames frames of every channel.
func (b PortBuffer) Clear(frames int) {
	for c := range b {
		clear(b[c][:frames])
	}
}

// Interleave writes the first len(dst) frames of b into dst.
func (b PortBuffer) Interleave(dst AudioBuffer) {
	l, r := b[0][:len(dst)], b[1][:len(dst)]
	for i := range dst {
		dst[i] = [2]float32{l[i], r[i]}
	}
}

// Clear zeroes the buffer.
func (b AudioBuffer) Clear() {
	clear(b)
}
