package engine

import (
	"context"
	"time"

	"github.com/mini-leebee/leebee"
)

// Processor is what a clock drives: usually an *Engine.
type Processor interface {
	Process(buf leebee.AudioBuffer)
}

const maxCatchUp = 8

// NullClock renders blocks in real time and throws the audio away. It
// drives the engine of a server that has no audio device.
type NullClock struct {
	SampleRate int
	BlockSize  int
}

// Run calls p.Process once per block period until ctx is done. Blocks that
// are late are caught up, so the transport keeps wall-clock time.
func (c NullClock) Run(ctx context.Context, p Processor) error {
	buf := make(leebee.AudioBuffer, c.BlockSize)
	period := time.Duration(float64(time.Second) * float64(c.BlockSize) / float64(c.SampleRate))
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	next := time.Now()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			if now.Sub(next) > maxCatchUp*period {
				next = now
			}
			for !next.After(now) {
				p.Process(buf)
				next = next.Add(period)
			}
		}
	}
}
