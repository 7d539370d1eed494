package engine

import (
	"fmt"
	"slices"
	"strings"

	"github.com/google/uuid"
	"github.com/mini-leebee/leebee"
)

type (
	// Host is the plugin index: the read-only table of plugin variants built
	// at startup. It instantiates plugins on the control side; the instances
	// then move to the real-time thread inside commands.
	Host struct {
		factories map[string]leebee.Factory
		descs     []leebee.Descriptor
	}

	// Instance is one live plugin in a track chain. Its buffers are sized to
	// the block size it was instantiated for and are only touched by the
	// real-time thread while the instance is linked into a track.
	Instance struct {
		ID   uuid.UUID
		Desc *leebee.Descriptor

		factory   leebee.Factory
		proc      leebee.Processor
		blockSize int

		audioIn  []int // port indices, at most leebee.NumChannels
		audioOut []int
		eventIn  bool

		out      leebee.PortBuffer
		controls []float32 // indexed by port; only control ports are bound
		events   []leebee.TimedEvent

		faulted bool
		fault   any // the error returned or value panicked by the plugin
	}
)

// NewHost builds the plugin index. Descriptor ids must be unique.
func NewHost(factories ...leebee.Factory) (*Host, error) {
	h := &Host{factories: make(map[string]leebee.Factory, len(factories))}
	for _, f := range factories {
		d := f.Descriptor()
		if err := d.Validate(); err != nil {
			return nil, fmt.Errorf("NewHost: %w", err)
		}
		if _, ok := h.factories[d.ID]; ok {
			return nil, fmt.Errorf("NewHost: %w: duplicate plugin id %q", leebee.ErrInvalidArgument, d.ID)
		}
		h.factories[d.ID] = f
		h.descs = append(h.descs, d)
	}
	slices.SortFunc(h.descs, func(a, b leebee.Descriptor) int { return strings.Compare(a.ID, b.ID) })
	return h, nil
}

// Descriptors lists every plugin in the index, sorted by id.
func (h *Host) Descriptors() []leebee.Descriptor {
	return slices.Clone(h.descs)
}

// Descriptor looks up one plugin.
func (h *Host) Descriptor(id string) (leebee.Descriptor, error) {
	f, ok := h.factories[id]
	if !ok {
		return leebee.Descriptor{}, fmt.Errorf("%w: %q", leebee.ErrPluginNotFound, id)
	}
	return f.Descriptor(), nil
}

// Instantiate creates a plugin instance with all of its buffers. It runs on
// the control side. A plugin that fails or panics during instantiation
// yields ErrInstantiationFailed.
func (h *Host) Instantiate(id string, sampleRate float64, blockSize int) (*Instance, error) {
	f, ok := h.factories[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", leebee.ErrPluginNotFound, id)
	}
	return newInstance(f, sampleRate, blockSize)
}

func newInstance(f leebee.Factory, sampleRate float64, blockSize int) (inst *Instance, err error) {
	if blockSize <= 0 || sampleRate <= 0 {
		return nil, fmt.Errorf("%w: bad format %v Hz / %v frames", leebee.ErrInvalidArgument, sampleRate, blockSize)
	}
	desc := f.Descriptor()
	inst = &Instance{
		ID:       uuid.New(),
		Desc:     &desc,
		factory:  f,
		controls: make([]float32, len(desc.Ports)),
		events:   make([]leebee.TimedEvent, 0, leebee.MaxBlockEvents),
	}
	for _, p := range desc.Ports {
		switch p.Kind {
		case leebee.AudioIn:
			inst.audioIn = append(inst.audioIn, p.Index)
		case leebee.AudioOut:
			inst.audioOut = append(inst.audioOut, p.Index)
		case leebee.EventIn:
			inst.eventIn = true
		case leebee.ControlIn:
			inst.controls[p.Index] = p.Default
		}
	}
	if err := inst.instantiate(sampleRate, blockSize); err != nil {
		return nil, err
	}
	return inst, nil
}

// instantiate (re)creates the processor and its buffers, keeping control
// values. Besides startup, it is only called when the audio format changes.
func (i *Instance) instantiate(sampleRate float64, blockSize int) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %s panicked: %v", leebee.ErrInstantiationFailed, i.Desc.ID, r)
		}
	}()
	proc, err := i.factory.Instantiate(sampleRate, blockSize)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", leebee.ErrInstantiationFailed, i.Desc.ID, err)
	}
	if proc == nil {
		return fmt.Errorf("%w: %s returned no processor", leebee.ErrInstantiationFailed, i.Desc.ID)
	}
	i.proc = proc
	i.blockSize = blockSize
	i.out = leebee.NewPortBuffer(blockSize)
	for c, port := range i.audioOut {
		proc.ConnectPort(port, i.out[c])
	}
	for _, p := range i.Desc.Ports {
		if p.Kind == leebee.ControlIn || p.Kind == leebee.ControlOut {
			proc.ConnectPort(p.Index, i.controls[p.Index:p.Index+1])
		}
	}
	return nil
}

// connectInput binds the audio inputs of the instance to the output of the
// previous stage of the chain.
func (i *Instance) connectInput(in leebee.PortBuffer) {
	if i.proc == nil {
		return
	}
	for c, port := range i.audioIn {
		i.proc.ConnectPort(port, in[c])
	}
}

// SetControl writes a control input port, clamping the value to its range.
func (i *Instance) SetControl(port int, value float32) error {
	if port < 0 || port >= len(i.Desc.Ports) || i.Desc.Ports[port].Kind != leebee.ControlIn {
		return leebee.ErrInvalidArgument
	}
	p := &i.Desc.Ports[port]
	i.controls[port] = min(max(value, p.Min), p.Max)
	return nil
}

// Control reads a control port.
func (i *Instance) Control(port int) float32 {
	if port < 0 || port >= len(i.controls) {
		return 0
	}
	return i.controls[port]
}

// Faulted reports whether the plugin failed and has been muted.
func (i *Instance) Faulted() bool {
	return i.faulted
}

// run processes one block. in is what the previous stage of the chain
// produced. Any error or panic from the plugin is contained here: the
// instance is marked faulted and outputs silence from then on.
func (i *Instance) run(frames int, in leebee.PortBuffer) (faultedNow bool) {
	if i.faulted {
		i.out.Clear(frames)
		return false
	}
	defer func() {
		if r := recover(); r != nil {
			i.fail(r)
			faultedNow = true
		}
	}()
	if err := i.proc.Run(frames, i.events); err != nil {
		i.fail(err)
		return true
	}
	switch len(i.audioOut) {
	case 0:
		// event-only plugins pass their input through
		for c := range i.out {
			copy(i.out[c][:frames], in[c][:frames])
		}
	case 1:
		copy(i.out[1][:frames], i.out[0][:frames])
	}
	return false
}

func (i *Instance) fail(reason any) {
	i.faulted = true
	i.fault = reason
	i.out.Clear(i.out.Frames())
}

// FaultReason describes why the instance faulted, or "" if it did not.
func (i *Instance) FaultReason() string {
	if !i.faulted {
		return ""
	}
	return fmt.Sprint(i.fault)
}

// deactivate tears the processor down. Only called on the control side,
// after the real-time thread has dropped the instance.
func (i *Instance) deactivate() (err error) {
	if i.proc == nil {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s: deactivate panicked: %v", i.Desc.ID, r)
		}
	}()
	proc := i.proc
	i.proc = nil
	proc.Deactivate()
	return nil
}

// reformat re-creates the instance for a new audio format. It is called by
// the real-time thread between blocks, so the old processor can be
// deactivated right away. A faulted instance only gets new buffers.
func (i *Instance) reformat(sampleRate float64, blockSize int) error {
	if i.faulted {
		i.out = leebee.NewPortBuffer(blockSize)
		i.blockSize = blockSize
		return nil
	}
	old := i.proc
	err := i.instantiate(sampleRate, blockSize)
	if err != nil {
		i.proc = nil
		i.out = leebee.NewPortBuffer(blockSize)
		i.blockSize = blockSize
		i.fail(err)
	}
	if old != nil {
		func() {
			defer func() { recover() }()
			old.Deactivate()
		}()
	}
	return err
}
