// Package oto plays the output of an engine on the default audio device.
package oto

import (
	"fmt"
	"time"

	"github.com/ebitengine/oto/v3"
	"github.com/mini-leebee/leebee"
)

type (
	// Context is an open audio device pulling blocks from a source.
	Context struct {
		context    *oto.Context
		player     *oto.Player
		sampleRate int
		blockSize  int
	}

	// Reader renders blocks from a source on demand and serves them as
	// little-endian float32 bytes. oto reads it from its own thread.
	Reader struct {
		source  leebee.AudioSource
		block   leebee.AudioBuffer
		bytes   []byte
		pending []byte
	}
)

// device buffer in blocks; more blocks mean more latency but fewer underruns
const bufferBlocks = 4

// NewReader creates a reader rendering blockSize frames at a time.
func NewReader(source leebee.AudioSource, blockSize int) *Reader {
	block := make(leebee.AudioBuffer, blockSize)
	return &Reader{
		source: source,
		block:  block,
		bytes:  make([]byte, 0, blockSize*leebee.NumChannels*4),
	}
}

// Read fills p completely, rendering as many blocks as needed. Bytes of the
// last block that do not fit are kept for the next call.
func (r *Reader) Read(p []byte) (int, error) {
	n := 0
	for n < len(p) {
		if len(r.pending) == 0 {
			r.source.Process(r.block)
			r.bytes = AppendFloat32LE(r.bytes[:0], r.block)
			r.pending = r.bytes
		}
		c := copy(p[n:], r.pending)
		r.pending = r.pending[c:]
		n += c
	}
	return n, nil
}

// Open opens the audio device at the given format and starts pulling audio
// from source. oto allows only one context per process.
func Open(source leebee.AudioSource, sampleRate, blockSize int) (*Context, error) {
	if sampleRate <= 0 || blockSize <= 0 {
		return nil, fmt.Errorf("oto.Open: %w: %d Hz, %d frames", leebee.ErrInvalidArgument, sampleRate, blockSize)
	}
	op := &oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: leebee.NumChannels,
		Format:       oto.FormatFloat32LE,
		BufferSize:   time.Duration(bufferBlocks*blockSize) * time.Second / time.Duration(sampleRate),
	}
	context, ready, err := oto.NewContext(op)
	if err != nil {
		return nil, fmt.Errorf("cannot create oto context: %w", err)
	}
	<-ready
	player := context.NewPlayer(NewReader(source, blockSize))
	player.Play()
	return &Context{context: context, player: player, sampleRate: sampleRate, blockSize: blockSize}, nil
}

func (c *Context) SampleRate() int { return c.sampleRate }
func (c *Context) BlockSize() int  { return c.blockSize }

// Err returns the error the device reported, if any.
func (c *Context) Err() error {
	if err := c.player.Err(); err != nil {
		return err
	}
	return c.context.Err()
}

// Close stops pulling audio. The device itself stays open until the
// process exits.
func (c *Context) Close() error {
	if err := c.player.Close(); err != nil {
		return fmt.Errorf("cannot close oto player: %w", err)
	}
	if err := c.context.Suspend(); err != nil {
		return fmt.Errorf("cannot suspend oto context: %w", err)
	}
	return nil
}
