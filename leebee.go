// Package leebee contains the plain data types shared by the sequencer engine,
// its plugins and its control surfaces: events and patterns, audio buffers,
// the plugin descriptor model and the tick/sample time conversion.
package leebee

type (
	// TrackID identifies a track. Track ids start at 1; 0 means "no track".
	TrackID int

	// PatternID identifies a pattern. Pattern ids start at 1; 0 means "no
	// pattern".
	PatternID int
)

const (
	// NumChannels is the channel count of every audio path in the engine.
	NumChannels = 2

	// MaxChain is the maximum number of plugin instances in one track.
	MaxChain = 16

	// MaxPatternEvents is the event capacity reserved for every pattern, so
	// that adding events never allocates on the real-time thread.
	MaxPatternEvents = 1024

	// MaxBlockEvents is the number of events a single track can receive in
	// one block. Events beyond this are dropped for that block.
	MaxBlockEvents = 256

	// DefaultTrackGain is the gain of a newly created track.
	DefaultTrackGain = 0.5
)
