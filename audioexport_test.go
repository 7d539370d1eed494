package leebee_test

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/mini-leebee/leebee"
)

func TestWavRoundTrip(t *testing.T) {
	buf := make(leebee.AudioBuffer, 100)
	for i := range buf {
		buf[i] = [2]float32{float32(i) / 100, -float32(i) / 200}
	}
	buf[99] = [2]float32{2, -2} // clipped
	path := filepath.Join(t.TempDir(), "out.wav")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := leebee.WriteWav(f, buf, 44100); err != nil {
		t.Fatalf("WriteWav failed: %v", err)
	}
	f.Close()
	f, err = os.Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer f.Close()
	channels, rate, err := leebee.ReadWav(f)
	if err != nil {
		t.Fatalf("ReadWav failed: %v", err)
	}
	if rate != 44100 || len(channels) != 2 || len(channels[0]) != 100 {
		t.Fatalf("got %d Hz, %d channels, expected 44100 Hz, 2 channels of 100 frames", rate, len(channels))
	}
	for i := 0; i < 99; i++ {
		for c := 0; c < 2; c++ {
			if d := math.Abs(float64(channels[c][i] - buf[i][c])); d > 1e-3 {
				t.Fatalf("frame %d channel %d: got %v, expected %v", i, c, channels[c][i], buf[i][c])
			}
		}
	}
	if channels[0][99] < 0.99 || channels[1][99] > -0.99 {
		t.Fatalf("got (%v, %v), expected clipped full scale", channels[0][99], channels[1][99])
	}
}

func TestPortBufferInterleave(t *testing.T) {
	b := leebee.NewPortBuffer(4)
	for i := 0; i < 4; i++ {
		b[0][i], b[1][i] = float32(i), float32(-i)
	}
	dst := make(leebee.AudioBuffer, 3)
	b.Interleave(dst)
	if dst[2] != [2]float32{2, -2} || b.Frames() != 4 {
		t.Fatalf("got %v, expected interleaved frames", dst)
	}
	b.Clear(4)
	if b[0][3] != 0 || b[1][3] != 0 {
		t.Fatalf("got %v, expected cleared buffer", b)
	}
}
