package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mini-leebee/leebee"
	"github.com/mini-leebee/leebee/engine"
	"github.com/mini-leebee/leebee/plugins"
	"github.com/mini-leebee/leebee/rpc"
)

const song = `length: 3840
loop: true
events:
  - {tick: 0, kind: note_on, pitch: 60, velocity: 100, duration: 480}
  - {tick: 960, kind: note_on, pitch: 64, velocity: 90, duration: 480}
  - {tick: 1920, kind: param_change, slot: 0, port: 2, value: 0.5}
`

func start(t *testing.T) *rpc.Client {
	t.Helper()
	host, err := engine.NewHost(plugins.Builtins()...)
	if err != nil {
		t.Fatalf("NewHost failed: %v", err)
	}
	format := engine.Format{SampleRate: 48000, BlockSize: 256}
	e, err := engine.New(engine.Options{Format: format})
	if err != nil {
		t.Fatalf("engine.New failed: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go engine.NullClock{SampleRate: format.SampleRate, BlockSize: format.BlockSize}.Run(ctx, e)
	srv, err := rpc.Listen(rpc.NewService(engine.NewController(e, host), 0, false), "127.0.0.1:0")
	if err != nil {
		t.Fatalf("rpc.Listen error: %v", err)
	}
	go srv.Serve()
	t.Cleanup(func() { srv.Shutdown(context.Background()) })
	c, err := rpc.Dial(srv.Addr().String())
	if err != nil {
		t.Fatalf("rpc.Dial error: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestReadPattern(t *testing.T) {
	p, err := readPattern(strings.NewReader(song))
	if err != nil {
		t.Fatalf("readPattern failed: %v", err)
	}
	if p.Length != 3840 || !p.Loop || len(p.Events) != 3 {
		t.Fatalf("got %+v, expected a looping 3840 tick pattern with 3 events", p)
	}
	expected := leebee.ParamChangeEvent(1920, 0, 2, 0.5)
	if p.Events[2] != expected {
		t.Fatalf("got %+v, expected %+v", p.Events[2], expected)
	}
}

func TestReadPatternErrors(t *testing.T) {
	cases := map[string]string{
		"no length":     "loop: true\n",
		"unknown field": "length: 960\ntempo: 120\n",
		"bad kind":      "length: 960\nevents:\n  - {tick: 0, kind: bend}\n",
		"out of range":  "length: 960\nevents:\n  - {tick: 960, kind: note_on, pitch: 60, velocity: 100}\n",
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := readPattern(strings.NewReader(data)); err == nil {
				t.Fatalf("got no error, expected one")
			}
		})
	}
}

func TestCommands(t *testing.T) {
	c := start(t)
	ctx := context.Background()
	file := filepath.Join(t.TempDir(), "song.yml")
	if err := os.WriteFile(file, []byte(song), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	steps := []struct {
		args     []string
		expected string
	}{
		{[]string{"track", "lead", plugins.SineID}, "1\n"},
		{[]string{"import", file, "1"}, "1\n"},
		{[]string{"tempo", "100"}, ""},
		{[]string{"seek", "2"}, ""},
	}
	for _, s := range steps {
		var out bytes.Buffer
		if err := run(ctx, c, &out, "", s.args); err != nil {
			t.Fatalf("%v failed: %v", s.args, err)
		}
		if out.String() != s.expected {
			t.Fatalf("%v: got %q, expected %q", s.args, out.String(), s.expected)
		}
	}
	var out bytes.Buffer
	if err := run(ctx, c, &out, "", []string{"state"}); err != nil {
		t.Fatalf("state failed: %v", err)
	}
	for _, want := range []string{"stopped at 2 beats, 100 BPM", `track 1 "lead"`, "pattern 1 4 beats loop, 3 events", "0: builtin:sine"} {
		if !strings.Contains(out.String(), want) {
			t.Fatalf("got state\n%s\nexpected it to contain %q", out.String(), want)
		}
	}
	out.Reset()
	if err := run(ctx, c, &out, "{{ range . }}{{ .ID }} {{ end }}", []string{"plugins"}); err != nil {
		t.Fatalf("plugins failed: %v", err)
	}
	if !strings.Contains(out.String(), plugins.GainID) {
		t.Fatalf("got %q, expected the gain plugin", out.String())
	}
}

func TestUsageErrors(t *testing.T) {
	c := start(t)
	for _, args := range [][]string{{"fly"}, {"load", "1"}, {"param", "1", "x", "2", "3"}, {"delete"}} {
		if err := run(context.Background(), c, new(bytes.Buffer), "", args); !errors.Is(err, errUsage) {
			t.Fatalf("%v: got %v, expected %v", args, err, errUsage)
		}
	}
}
