//go:build !cgo

package gomidi

import "errors"

var errNoCgo = errors.New("MIDI input needs a cgo build")

// Input is an open MIDI input port. Without cgo none can be opened.
type Input struct{}

func Ports() ([]string, error) {
	return nil, errNoCgo
}

func Open(name string, l *Listener) (*Input, error) {
	return nil, errNoCgo
}

func (i *Input) String() string { return "" }

func (i *Input) Close() error { return nil }
