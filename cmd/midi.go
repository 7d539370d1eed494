package cmd

import (
	"log"

	"github.com/mini-leebee/leebee/engine"
	"github.com/mini-leebee/leebee/gomidi"
)

// OpenMIDI connects the MIDI input matching name to the armed track of
// ctrl. A missing device is logged along with the ports there are.
func OpenMIDI(name string, ctrl *engine.Controller) *gomidi.Input {
	listener := gomidi.NewListener(ctrl, -1)
	input, err := gomidi.Open(name, listener)
	if err != nil {
		log.Printf("[midi] failed to open MIDI input '%s': %v", name, err)
		if ports, err := gomidi.Ports(); err == nil {
			log.Printf("[midi] available inputs: %q", ports)
		}
		return nil
	}
	log.Printf("[midi] listening to %s", input)
	return input
}
