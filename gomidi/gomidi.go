// Package gomidi plays the notes of a MIDI input port live on the armed
// track.
package gomidi

import (
	"sync/atomic"

	"github.com/mini-leebee/leebee/engine"
	"gitlab.com/gomidi/midi/v2"
)

type (
	// Sink takes live notes without blocking. *engine.Engine and
	// *engine.Controller implement it.
	Sink interface {
		PlayLive(n engine.LiveNote) bool
	}

	// Listener converts MIDI messages to live notes. It is called from the
	// driver's goroutine.
	Listener struct {
		sink    Sink
		channel int // -1 listens to every channel
		dropped atomic.Int64
	}
)

// NewListener creates a listener forwarding to sink the notes of the given
// channel (0-15), or of every channel if channel is negative.
func NewListener(sink Sink, channel int) *Listener {
	return &Listener{sink: sink, channel: channel}
}

// Note translates a message to a live note. Other messages than note on
// and note off are ignored.
func Note(msg midi.Message) (n engine.LiveNote, channel uint8, ok bool) {
	var key, vel uint8
	switch {
	case msg.GetNoteStart(&channel, &key, &vel):
		return engine.LiveNote{On: true, Pitch: key, Velocity: vel}, channel, true
	case msg.GetNoteEnd(&channel, &key):
		return engine.LiveNote{Pitch: key}, channel, true
	}
	return engine.LiveNote{}, 0, false
}

// HandleMessage has the signature of a midi.ListenTo callback.
func (l *Listener) HandleMessage(msg midi.Message, timestampms int32) {
	n, ch, ok := Note(msg)
	if !ok || (l.channel >= 0 && int(ch) != l.channel) {
		return
	}
	// if the live queue is full, just drop the message
	if !l.sink.PlayLive(n) {
		l.dropped.Add(1)
	}
}

// Dropped returns how many notes were lost to a full live queue.
func (l *Listener) Dropped() int64 {
	return l.dropped.Load()
}
