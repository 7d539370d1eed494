package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Southclaws/fault"
	"github.com/Southclaws/fault/fmsg"
	"github.com/Southclaws/fault/ftag"
	"github.com/google/uuid"
	"github.com/mini-leebee/leebee"
)

// Controller is the control side of an engine. Its methods can be called
// from any number of goroutines. Mutating methods submit a command, wait
// until the real-time thread has applied it and return the error it
// recorded, if any. A full command bus is reported immediately as
// leebee.ErrCommandQueueFull.
type Controller struct {
	engine *Engine
	host   *Host
	poll   time.Duration

	nextTrack   atomic.Int64
	nextPattern atomic.Int64

	mu        sync.Mutex // guards instances and retired
	instances map[uuid.UUID]*Instance
	retired   []retiree
	closed    bool
}

// NewController returns the controller of e using plugins from host.
func NewController(e *Engine, host *Host) *Controller {
	return &Controller{
		engine:    e,
		host:      host,
		poll:      time.Millisecond,
		instances: make(map[uuid.UUID]*Instance),
	}
}

// SetPollInterval changes how often waiting calls look at the mirror.
func (c *Controller) SetPollInterval(d time.Duration) {
	if d > 0 {
		c.poll = d
	}
}

// State returns the latest snapshot.
func (c *Controller) State() *Snapshot {
	return c.engine.mirror.Load()
}

// Position returns the live transport position.
func (c *Controller) Position() Position {
	return c.engine.mirror.Position()
}

// Plugins lists the plugin index.
func (c *Controller) Plugins() []leebee.Descriptor {
	return c.host.Descriptors()
}

// Submit enqueues a command without waiting for it.
func (c *Controller) Submit(cmd Command) (uint64, error) {
	id, err := c.engine.bus.TryEnqueue(cmd)
	if err != nil {
		return 0, fault.Wrap(err,
			fmsg.WithDesc("submit "+CommandName(cmd), "The engine is busy, try again."),
			ftag.With(leebee.KindOf(err)))
	}
	return id, nil
}

// Wait blocks until the command with the given id has been applied and
// returns the error it failed with, if any.
func (c *Controller) Wait(ctx context.Context, id uint64) error {
	s, err := c.engine.mirror.Wait(ctx, c.poll, func(s *Snapshot) bool { return s.Applied >= id })
	if err != nil {
		return fault.Wrap(err, fmsg.With(fmt.Sprintf("wait for command %d", id)), ftag.With(ftag.Cancelled))
	}
	c.Collect()
	return s.Error(id)
}

// do submits a command, waits for it and wraps any error with the name of
// the operation.
func (c *Controller) do(ctx context.Context, op string, cmd Command) error {
	id, err := c.engine.bus.TryEnqueue(cmd)
	if err == nil {
		err = c.Wait(ctx, id)
	}
	return wrap(err, op)
}

func wrap(err error, op string) error {
	if err == nil {
		return nil
	}
	return fault.Wrap(err, fmsg.With(op), ftag.With(leebee.KindOf(err)))
}

// CreateTrack adds a track with the given plugins already in its chain.
// An empty name becomes "Track N".
func (c *Controller) CreateTrack(ctx context.Context, name string, plugins ...string) (leebee.TrackID, error) {
	f := c.State()
	id := leebee.TrackID(c.nextTrack.Add(1))
	t := NewTrack(id, name, f.BlockSize)
	for _, p := range plugins {
		inst, err := c.instantiate(p, f)
		if err != nil {
			c.deactivate(t.Chain()...)
			return 0, wrap(err, "create track")
		}
		if err := t.insert(-1, inst); err != nil {
			c.deactivate(append(t.Chain(), inst)...)
			return 0, wrap(err, "create track")
		}
	}
	if err := c.do(ctx, "create track", AddTrack{Track: t}); err != nil {
		return 0, err
	}
	return id, nil
}

// DeleteTrack removes a track and tears down its plugins.
func (c *Controller) DeleteTrack(ctx context.Context, id leebee.TrackID) error {
	return c.do(ctx, "delete track", RemoveTrack{ID: id})
}

// DeleteTracks removes several tracks. Ids with no track are ignored, the
// rest are submitted before waiting.
func (c *Controller) DeleteTracks(ctx context.Context, ids ...leebee.TrackID) error {
	s := c.State()
	ids = slices.DeleteFunc(slices.Clone(ids), func(id leebee.TrackID) bool {
		return s.Track(id) == nil
	})
	var errs []error
	var last uint64
	for _, id := range ids {
		n, err := c.engine.bus.TryEnqueue(RemoveTrack{ID: id})
		if err != nil {
			errs = append(errs, err)
			break
		}
		last = n
	}
	if last > 0 {
		if err := c.Wait(ctx, last); err != nil {
			errs = append(errs, err)
		}
		s = c.State()
		for _, id := range ids {
			if s.Track(id) != nil {
				errs = append(errs, fmt.Errorf("%w: track %d", leebee.ErrInvalidTrackID, id))
			}
		}
	}
	return wrap(errors.Join(errs...), "delete tracks")
}

func (c *Controller) RenameTrack(ctx context.Context, id leebee.TrackID, name string) error {
	return c.do(ctx, "rename track", RenameTrack{ID: id, Name: name})
}

// LoadPlugin instantiates a plugin and appends it to a track's chain. An
// unknown plugin id fails with ErrPluginNotFound before anything is sent
// to the engine.
func (c *Controller) LoadPlugin(ctx context.Context, track leebee.TrackID, pluginID string) (uuid.UUID, error) {
	return c.InsertPlugin(ctx, track, -1, pluginID)
}

// InsertPlugin is LoadPlugin at a given chain slot.
func (c *Controller) InsertPlugin(ctx context.Context, track leebee.TrackID, slot int, pluginID string) (uuid.UUID, error) {
	s := c.State()
	if s.Track(track) == nil {
		return uuid.Nil, wrap(fmt.Errorf("%w: %d", leebee.ErrInvalidTrackID, track), "load plugin")
	}
	inst, err := c.instantiate(pluginID, s)
	if err != nil {
		return uuid.Nil, wrap(err, "load plugin")
	}
	if err := c.do(ctx, "load plugin", LoadPlugin{Track: track, Slot: slot, Instance: inst}); err != nil {
		return uuid.Nil, err
	}
	return inst.ID, nil
}

func (c *Controller) RemovePlugin(ctx context.Context, track leebee.TrackID, slot int) error {
	return c.do(ctx, "remove plugin", RemovePlugin{Track: track, Slot: slot})
}

func (c *Controller) MovePlugin(ctx context.Context, track leebee.TrackID, from, to int) error {
	return c.do(ctx, "move plugin", MovePlugin{Track: track, From: from, To: to})
}

// SetParameter sets a control port of the plugin at slot in a track.
func (c *Controller) SetParameter(ctx context.Context, track leebee.TrackID, slot, port int, value float32) error {
	return c.do(ctx, "set parameter", SetParameter{Track: track, Slot: slot, Port: port, Value: value})
}

func (c *Controller) SetGain(ctx context.Context, track leebee.TrackID, gain float32) error {
	return c.do(ctx, "set gain", SetGain{Track: track, Gain: gain})
}

func (c *Controller) SetPan(ctx context.Context, track leebee.TrackID, pan float32) error {
	return c.do(ctx, "set pan", SetPan{Track: track, Pan: pan})
}

func (c *Controller) SetMute(ctx context.Context, track leebee.TrackID, mute bool) error {
	return c.do(ctx, "set mute", SetMute{Track: track, Mute: mute})
}

func (c *Controller) SetSolo(ctx context.Context, track leebee.TrackID, solo bool) error {
	return c.do(ctx, "set solo", SetSolo{Track: track, Solo: solo})
}

// ArmTrack routes live MIDI to a track; 0 disarms.
func (c *Controller) ArmTrack(ctx context.Context, track leebee.TrackID) error {
	return c.do(ctx, "arm track", ArmTrack{ID: track})
}

// CreatePattern adds an empty pattern.
func (c *Controller) CreatePattern(ctx context.Context, length int64, loop bool) (leebee.PatternID, error) {
	id := leebee.PatternID(c.nextPattern.Add(1))
	p, err := leebee.NewPattern(id, length, loop)
	if err != nil {
		return 0, wrap(err, "create pattern")
	}
	if err := c.do(ctx, "create pattern", CreatePattern{Pattern: p}); err != nil {
		return 0, err
	}
	return id, nil
}

func (c *Controller) DeletePattern(ctx context.Context, id leebee.PatternID) error {
	return c.do(ctx, "delete pattern", DeletePattern{ID: id})
}

// AddEvent adds an event to a pattern. Events outside the pattern fail
// with ErrInvalidPosition.
func (c *Controller) AddEvent(ctx context.Context, pattern leebee.PatternID, ev leebee.Event) error {
	if p := c.State().Pattern(pattern); p != nil {
		if err := ev.Validate(p.Length); err != nil {
			return wrap(err, "add event")
		}
	}
	return c.do(ctx, "add event", AddEvent{Pattern: pattern, Event: ev})
}

func (c *Controller) RemoveEvent(ctx context.Context, pattern leebee.PatternID, index int) error {
	return c.do(ctx, "remove event", RemoveEvent{Pattern: pattern, Index: index})
}

func (c *Controller) MoveEvent(ctx context.Context, pattern leebee.PatternID, index int, tick int64) error {
	return c.do(ctx, "move event", MoveEvent{Pattern: pattern, Index: index, Tick: tick})
}

// SetTrackPattern assigns a pattern to a track; 0 clears it.
func (c *Controller) SetTrackPattern(ctx context.Context, track leebee.TrackID, pattern leebee.PatternID) error {
	return c.do(ctx, "set track pattern", SetTrackPattern{Track: track, Pattern: pattern})
}

func (c *Controller) StartTransport(ctx context.Context) error {
	return c.do(ctx, "start transport", StartTransport{})
}

func (c *Controller) StopTransport(ctx context.Context) error {
	return c.do(ctx, "stop transport", StopTransport{})
}

// SetTempo changes the tempo. Tempos outside the configured range fail
// with ErrTempoOutOfRange.
func (c *Controller) SetTempo(ctx context.Context, bpm float64) error {
	if !c.engine.transport.tempoRange.Contains(bpm) {
		return wrap(fmt.Errorf("%w: %v", leebee.ErrTempoOutOfRange, bpm), "set tempo")
	}
	return c.do(ctx, "set tempo", SetTempo{BPM: bpm})
}

func (c *Controller) Seek(ctx context.Context, tick int64) error {
	if tick < 0 {
		return wrap(fmt.Errorf("%w: tick %d", leebee.ErrInvalidPosition, tick), "seek")
	}
	return c.do(ctx, "seek", Seek{Tick: tick})
}

// SetLoop sets the loop region; end <= start clears it.
func (c *Controller) SetLoop(ctx context.Context, start, end int64) error {
	return c.do(ctx, "set loop", SetLoop{Start: start, End: end})
}

func (c *Controller) SetMetronome(ctx context.Context, volume float32) error {
	return c.do(ctx, "set metronome", SetMetronome{Volume: volume})
}

// NoteOn plays a note on a track by hand.
func (c *Controller) NoteOn(ctx context.Context, track leebee.TrackID, pitch, velocity uint8) error {
	return c.do(ctx, "note on", NoteOn{Track: track, Pitch: pitch, Velocity: velocity})
}

func (c *Controller) NoteOff(ctx context.Context, track leebee.TrackID, pitch uint8) error {
	return c.do(ctx, "note off", NoteOff{Track: track, Pitch: pitch})
}

// PlayLive forwards a live note to the armed track. It never blocks.
func (c *Controller) PlayLive(n LiveNote) bool {
	return c.engine.PlayLive(n)
}

// Shutdown halts the engine, waits until the real-time thread confirms it
// and then tears down every plugin instance.
func (c *Controller) Shutdown(ctx context.Context) error {
	if err := c.do(ctx, "shutdown", Halt{}); err != nil && !errors.Is(err, leebee.ErrEngineHalted) {
		return err
	}
	if _, err := c.engine.mirror.Wait(ctx, c.poll, func(s *Snapshot) bool { return s.Halted }); err != nil {
		return wrap(err, "shutdown")
	}
	c.mu.Lock()
	var all []*Instance
	for _, inst := range c.instances {
		all = append(all, inst)
	}
	c.instances = map[uuid.UUID]*Instance{}
	c.retired = nil
	c.closed = true
	c.mu.Unlock()
	for len(all) > 0 {
		c.teardown(all[0])
		all = all[1:]
	}
	if m := c.engine.metronome; m != nil {
		for _, inst := range m.Chain() {
			c.teardown(inst)
		}
	}
	return nil
}

// Collect tears down the instances the real-time thread has dropped and
// returns how many it tore down.
func (c *Controller) Collect() int {
	published := c.State().Version
	c.mu.Lock()
	for {
		r, ok := c.engine.retired.TryPop()
		if !ok {
			break
		}
		c.retired = append(c.retired, r)
	}
	var done []*Instance
	keep := c.retired[:0]
	for _, r := range c.retired {
		if r.version <= published {
			done = append(done, r.instance)
			delete(c.instances, r.instance.ID)
			continue
		}
		keep = append(keep, r)
	}
	c.retired = keep
	c.mu.Unlock()
	for _, inst := range done {
		c.teardown(inst)
	}
	return len(done)
}

// Run collects retired instances periodically until ctx is done.
func (c *Controller) Run(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Collect()
		}
	}
}

func (c *Controller) instantiate(pluginID string, s *Snapshot) (*Instance, error) {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed || s.Halted {
		return nil, leebee.ErrEngineHalted
	}
	inst, err := c.host.Instantiate(pluginID, float64(s.SampleRate), s.BlockSize)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.instances[inst.ID] = inst
	c.mu.Unlock()
	return inst, nil
}

// deactivate tears down instances that never reached the engine.
func (c *Controller) deactivate(insts ...*Instance) {
	c.mu.Lock()
	for _, inst := range insts {
		delete(c.instances, inst.ID)
	}
	c.mu.Unlock()
	for _, inst := range insts {
		c.teardown(inst)
	}
}

func (c *Controller) teardown(inst *Instance) {
	if err := inst.deactivate(); err != nil {
		log.Printf("[engine] %v", err)
	}
}

// ClearLoop removes the loop region.
func (c *Controller) ClearLoop(ctx context.Context) error {
	return c.do(ctx, "clear loop", SetLoop{})
}
