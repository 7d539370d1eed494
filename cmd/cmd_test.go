package cmd_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mini-leebee/leebee"
	"github.com/mini-leebee/leebee/cmd"
	"github.com/mini-leebee/leebee/config"
	"github.com/mini-leebee/leebee/engine"
)

type counter struct {
	blocks chan int
}

func (c *counter) Process(buf leebee.AudioBuffer) {
	select {
	case c.blocks <- len(buf):
	default:
	}
}

func TestNullClock(t *testing.T) {
	c := &counter{blocks: make(chan int, 1)}
	n := cmd.StartNullClock(config.AudioConfig{Backend: config.BackendNull, SampleRate: 48000, BlockSize: 64}, c)
	select {
	case frames := <-c.blocks:
		if frames != 64 {
			t.Fatalf("got %d frames, expected 64", frames)
		}
	case <-time.After(time.Second):
		t.Fatalf("the clock did not render a block")
	}
	if err := n.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if n.SampleRate() != 48000 || n.BlockSize() != 64 {
		t.Fatalf("got %d Hz %d frames, expected 48000 Hz 64 frames", n.SampleRate(), n.BlockSize())
	}
}

func TestOpenAudioNull(t *testing.T) {
	e, err := engine.New(engine.Options{Format: engine.Format{SampleRate: 48000, BlockSize: 128}})
	if err != nil {
		t.Fatalf("engine.New failed: %v", err)
	}
	a, err := cmd.OpenAudio(config.AudioConfig{Backend: config.BackendNull, SampleRate: 48000, BlockSize: 128}, e)
	if err != nil {
		t.Fatalf("OpenAudio failed: %v", err)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
}

func TestStartProfiling(t *testing.T) {
	dir := t.TempDir()
	cpu, mem := filepath.Join(dir, "cpu.prof"), filepath.Join(dir, "mem.prof")
	stop, err := cmd.StartProfiling(cpu, mem)
	if err != nil {
		t.Fatalf("StartProfiling failed: %v", err)
	}
	if err := stop(); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	for _, name := range []string{cpu, mem} {
		if info, err := os.Stat(name); err != nil || info.Size() == 0 {
			t.Fatalf("profile %s: got %v, expected a non-empty file", name, err)
		}
	}
	stop, err = cmd.StartProfiling("", "")
	if err != nil {
		t.Fatalf("StartProfiling without files failed: %v", err)
	}
	if err := stop(); err != nil {
		t.Fatalf("stop without files failed: %v", err)
	}
	if _, err := cmd.StartProfiling(filepath.Join(dir, "missing", "cpu.prof"), ""); err == nil {
		t.Fatalf("got no error for a profile in a missing directory")
	}
}
