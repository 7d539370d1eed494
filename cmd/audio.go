package cmd

import (
	"context"

	"github.com/mini-leebee/leebee"
	"github.com/mini-leebee/leebee/config"
	"github.com/mini-leebee/leebee/engine"
	"github.com/mini-leebee/leebee/oto"
)

// OpenAudio starts driving the engine with the configured backend: the oto
// audio device, or a null clock that renders in real time without output.
func OpenAudio(c config.AudioConfig, e *engine.Engine) (leebee.AudioContext, error) {
	if c.Backend == config.BackendNull {
		return StartNullClock(c, e), nil
	}
	ret, err := oto.Open(e, c.SampleRate, c.BlockSize)
	if err != nil {
		return nil, err
	}
	return ret, nil
}

// NullContext is the audio context of the null backend.
type NullContext struct {
	clock  engine.NullClock
	cancel context.CancelFunc
	done   chan struct{}
}

func StartNullClock(c config.AudioConfig, p engine.Processor) *NullContext {
	ctx, cancel := context.WithCancel(context.Background())
	ret := &NullContext{
		clock:  engine.NullClock{SampleRate: c.SampleRate, BlockSize: c.BlockSize},
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go func() {
		ret.clock.Run(ctx, p)
		close(ret.done)
	}()
	return ret
}

func (n *NullContext) SampleRate() int { return n.clock.SampleRate }
func (n *NullContext) BlockSize() int  { return n.clock.BlockSize }

// Close stops the clock and waits until the last block is done.
func (n *NullContext) Close() error {
	n.cancel()
	<-n.done
	return nil
}
