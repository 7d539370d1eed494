package rpc_test

import (
	"context"
	"errors"
	"testing"

	"github.com/Southclaws/fault/ftag"
	"github.com/mini-leebee/leebee"
	"github.com/mini-leebee/leebee/engine"
	"github.com/mini-leebee/leebee/plugins"
	"github.com/mini-leebee/leebee/rpc"
)

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

func statusCode(t *testing.T, err error) ftag.Kind {
	t.Helper()
	var se *rpc.StatusError
	if !errors.As(err, &se) {
		t.Fatalf("got %v (%T), expected a *rpc.StatusError", err, err)
	}
	return se.Code
}

func TestBuildASong(t *testing.T) {
	c := start(t)
	ctx := context.Background()
	track, err := c.CreateTrack(ctx, "lead", plugins.SineID)
	if err != nil {
		t.Fatalf("CreateTrack failed: %v", err)
	}
	pattern, err := c.CreatePattern(ctx, 4*leebee.TicksPerBeat, true)
	if err != nil {
		t.Fatalf("CreatePattern failed: %v", err)
	}
	if err := c.AddEvent(ctx, pattern, leebee.Event{Tick: 0, Kind: leebee.NoteOn, Pitch: 60, Velocity: 100, Duration: 480}); err != nil {
		t.Fatalf("AddEvent failed: %v", err)
	}
	if err := c.SetTrackPattern(ctx, track, pattern); err != nil {
		t.Fatalf("SetTrackPattern failed: %v", err)
	}
	if err := c.SetParameter(ctx, track, 0, plugins.SineVolume, 0.25); err != nil {
		t.Fatalf("SetParameter failed: %v", err)
	}
	if err := c.StartTransport(ctx); err != nil {
		t.Fatalf("StartTransport failed: %v", err)
	}
	state, err := c.GetState(ctx)
	if err != nil {
		t.Fatalf("GetState failed: %v", err)
	}
	s := state.Snapshot
	tr := s.Track(track)
	if tr == nil || tr.Name != "lead" || tr.Pattern != pattern {
		t.Fatalf("got track %+v, expected lead playing pattern %v", tr, pattern)
	}
	if len(tr.Plugins) != 1 || tr.Plugins[0].Plugin != plugins.SineID || tr.Plugins[0].Controls[plugins.SineVolume] != 0.25 {
		t.Fatalf("got plugins %+v, expected one sine at volume 0.25", tr.Plugins)
	}
	if p := s.Pattern(pattern); p == nil || len(p.Events) != 1 || p.Events[0].Kind != leebee.NoteOn {
		t.Fatalf("got pattern %+v, expected one note", p)
	}
	if !s.Transport.Playing {
		t.Fatalf("got a stopped transport, expected it playing")
	}
}

func TestUnknownPlugin(t *testing.T) {
	c := start(t)
	ctx := context.Background()
	track, err := c.CreateTrack(ctx, "")
	if err != nil {
		t.Fatalf("CreateTrack failed: %v", err)
	}
	_, err = c.LoadPlugin(ctx, track, "lv2:nope")
	if code := statusCode(t, err); code != ftag.NotFound {
		t.Fatalf("got code %v, expected %v", code, ftag.NotFound)
	}
	if !errors.Is(err, leebee.ErrPluginNotFound) {
		t.Fatalf("got %v, expected it to match %v", err, leebee.ErrPluginNotFound)
	}
	state, err := c.GetState(ctx)
	if err != nil {
		t.Fatalf("GetState failed: %v", err)
	}
	if tr := state.Snapshot.Track(track); tr == nil || len(tr.Plugins) != 0 || tr.Name != "Track 1" {
		t.Fatalf("got track %+v, expected an empty Track 1", tr)
	}
}

func TestErrorCodes(t *testing.T) {
	c := start(t)
	ctx := context.Background()
	err := c.SetTempo(ctx, 1000)
	if code := statusCode(t, err); code != ftag.InvalidArgument || !errors.Is(err, leebee.ErrTempoOutOfRange) {
		t.Fatalf("got %v, expected %v", err, leebee.ErrTempoOutOfRange)
	}
	err = c.SetTrackPattern(ctx, 42, 0)
	if code := statusCode(t, err); code != ftag.NotFound || !errors.Is(err, leebee.ErrInvalidTrackID) {
		t.Fatalf("got %v, expected %v", err, leebee.ErrInvalidTrackID)
	}
	err = c.Seek(ctx, -1)
	if code := statusCode(t, err); code != ftag.InvalidArgument || !errors.Is(err, leebee.ErrInvalidPosition) {
		t.Fatalf("got %v, expected %v", err, leebee.ErrInvalidPosition)
	}
	if err := c.SetTempo(ctx, 90); err != nil {
		t.Fatalf("SetTempo failed: %v", err)
	}
	state, err := c.GetState(ctx)
	if err != nil {
		t.Fatalf("GetState failed: %v", err)
	}
	if got := state.Snapshot.Transport.Tempo; got != 90 {
		t.Fatalf("got tempo %v, expected 90", got)
	}
}

func TestGetPlugins(t *testing.T) {
	c := start(t)
	ds, err := c.GetPlugins(context.Background())
	if err != nil {
		t.Fatalf("GetPlugins failed: %v", err)
	}
	if len(ds) != len(plugins.Builtins()) {
		t.Fatalf("got %v plugins, expected %v", len(ds), len(plugins.Builtins()))
	}
	for _, d := range ds {
		if d.ID == plugins.GainID && d.Class != leebee.Effect {
			t.Fatalf("got class %v for gain, expected %v", d.Class, leebee.Effect)
		}
	}
}
