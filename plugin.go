package leebee

import "fmt"

type (
	// PluginClass tells whether a plugin makes sound from events or
	// processes the audio coming into it.
	PluginClass int

	// PortKind is the type and direction of a plugin port.
	PortKind int

	// Port is one connection point of a plugin. Default, Min and Max are
	// meaningful for control ports only.
	Port struct {
		Index   int      `json:"index" yaml:"index"`
		Symbol  string   `json:"symbol" yaml:"symbol"`
		Name    string   `json:"name" yaml:"name"`
		Kind    PortKind `json:"kind" yaml:"kind"`
		Default float32  `json:"default" yaml:"default"`
		Min     float32  `json:"min" yaml:"min"`
		Max     float32  `json:"max" yaml:"max"`
	}

	// Descriptor is the immutable metadata of a plugin. ID is unique in the
	// plugin index, e.g. "builtin:sine".
	Descriptor struct {
		ID    string      `json:"id" yaml:"id"`
		Name  string      `json:"name" yaml:"name"`
		Class PluginClass `json:"class" yaml:"class"`
		Ports []Port      `json:"ports" yaml:"ports"`
	}

	// Factory is one plugin variant registered in the plugin index.
	// Instantiate is called on the control side; it may allocate and block.
	Factory interface {
		Descriptor() Descriptor
		Instantiate(sampleRate float64, blockSize int) (Processor, error)
	}

	// Processor is a live plugin instance. All methods are called from the
	// real-time thread except Deactivate, which is called on the control
	// side once the real-time thread no longer references the instance.
	//
	// ConnectPort binds a buffer to a port: a block-sized slice for audio
	// ports, a one-element slice for control ports. Run processes frames
	// frames, reading the bound inputs and events (sorted by offset) and
	// writing the bound outputs. Run must not block or allocate.
	Processor interface {
		ConnectPort(port int, data []float32)
		Run(frames int, events []TimedEvent) error
		Deactivate()
	}
)

const (
	Instrument PluginClass = iota
	Effect
)

const (
	AudioIn PortKind = iota
	AudioOut
	ControlIn
	ControlOut
	EventIn
	EventOut
)

var (
	pluginClassNames = [...]string{"instrument", "effect"}
	portKindNames    = [...]string{"audio_in", "audio_out", "control_in", "control_out", "event_in", "event_out"}
)

func (c PluginClass) String() string {
	if c >= 0 && int(c) < len(pluginClassNames) {
		return pluginClassNames[c]
	}
	return fmt.Sprintf("PluginClass(%d)", int(c))
}

func (c PluginClass) MarshalText() ([]byte, error) { return []byte(c.String()), nil }

func (c *PluginClass) UnmarshalText(b []byte) error {
	for i, n := range pluginClassNames {
		if n == string(b) {
			*c = PluginClass(i)
			return nil
		}
	}
	return fmt.Errorf("%w: unknown plugin class %q", ErrInvalidArgument, b)
}

func (k PortKind) String() string {
	if k >= 0 && int(k) < len(portKindNames) {
		return portKindNames[k]
	}
	return fmt.Sprintf("PortKind(%d)", int(k))
}

func (k PortKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

func (k *PortKind) UnmarshalText(b []byte) error {
	for i, n := range portKindNames {
		if n == string(b) {
			*k = PortKind(i)
			return nil
		}
	}
	return fmt.Errorf("%w: unknown port kind %q", ErrInvalidArgument, b)
}

// Count returns the number of ports of the given kind.
func (d *Descriptor) Count(kind PortKind) int {
	n := 0
	for _, p := range d.Ports {
		if p.Kind == kind {
			n++
		}
	}
	return n
}

// ControlIndex returns the position of port among the control input ports,
// or -1 if port is not a control input.
func (d *Descriptor) ControlIndex(port int) int {
	n := 0
	for _, p := range d.Ports {
		if p.Kind != ControlIn {
			continue
		}
		if p.Index == port {
			return n
		}
		n++
	}
	return -1
}

// Validate checks that port indices are 0..len(Ports)-1 in order and that
// control ranges are sane.
func (d *Descriptor) Validate() error {
	if d.ID == "" {
		return fmt.Errorf("%w: descriptor without id", ErrInvalidArgument)
	}
	for i, p := range d.Ports {
		if p.Index != i {
			return fmt.Errorf("%w: %s port %d has index %d", ErrInvalidArgument, d.ID, i, p.Index)
		}
		if p.Kind == ControlIn && (p.Min > p.Max || p.Default < p.Min || p.Default > p.Max) {
			return fmt.Errorf("%w: %s port %s has bad range", ErrInvalidArgument, d.ID, p.Symbol)
		}
	}
	if d.Count(AudioOut) > NumChannels || d.Count(AudioIn) > NumChannels {
		return fmt.Errorf("%w: %s has more than %d audio ports per direction", ErrInvalidArgument, d.ID, NumChannels)
	}
	return nil
}
