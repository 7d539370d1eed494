//go:build cgo

package gomidi

import (
	"errors"
	"fmt"
	"log"
	"strings"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
	"gitlab.com/gomidi/midi/v2/drivers/rtmididrv"
)

// Input is an open MIDI input port.
type Input struct {
	driver *rtmididrv.Driver
	in     drivers.In
	stop   func()
}

// Ports lists the names of the MIDI input ports.
func Ports() ([]string, error) {
	driver, err := rtmididrv.New()
	if err != nil {
		return nil, fmt.Errorf("cannot open MIDI driver: %w", err)
	}
	defer driver.Close()
	ins, err := driver.Ins()
	if err != nil {
		return nil, fmt.Errorf("cannot list MIDI inputs: %w", err)
	}
	ret := make([]string, len(ins))
	for i, in := range ins {
		ret[i] = in.String()
	}
	return ret, nil
}

// Open opens the first input port whose name contains name and starts
// feeding l from it.
func Open(name string, l *Listener) (*Input, error) {
	driver, err := rtmididrv.New()
	if err != nil {
		return nil, fmt.Errorf("cannot open MIDI driver: %w", err)
	}
	ins, err := driver.Ins()
	if err != nil {
		driver.Close()
		return nil, fmt.Errorf("cannot list MIDI inputs: %w", err)
	}
	var found drivers.In
	for _, in := range ins {
		if strings.Contains(in.String(), name) {
			found = in
			break
		}
	}
	if found == nil {
		driver.Close()
		return nil, fmt.Errorf("MIDI input %q not found", name)
	}
	if err := found.Open(); err != nil {
		driver.Close()
		return nil, fmt.Errorf("opening MIDI input failed: %w", err)
	}
	stop, err := midi.ListenTo(found, l.HandleMessage, midi.HandleError(func(err error) {
		log.Printf("[midi] %s: %v", found.String(), err)
	}))
	if err != nil {
		found.Close()
		driver.Close()
		return nil, fmt.Errorf("cannot listen to MIDI input: %w", err)
	}
	return &Input{driver: driver, in: found, stop: stop}, nil
}

func (i *Input) String() string {
	return i.in.String()
}

func (i *Input) Close() error {
	i.stop()
	return errors.Join(i.in.Close(), i.driver.Close())
}
