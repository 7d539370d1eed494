package leebee

import (
	"fmt"
	"sort"
)

// Pattern is a loopable sequence of events. Events are kept sorted by tick
// (insertion order among equal ticks) in a slice whose capacity is reserved
// up front, so that Add, Remove and Move never allocate.
type Pattern struct {
	ID     PatternID `json:"id" yaml:"id"`
	Length int64     `json:"length" yaml:"length"`
	Loop   bool      `json:"loop" yaml:"loop"`
	Events []Event   `json:"events" yaml:"events"`
}

// NewPattern returns an empty pattern with room for MaxPatternEvents events.
func NewPattern(id PatternID, length int64, loop bool) (*Pattern, error) {
	if length <= 0 {
		return nil, fmt.Errorf("%w: pattern length must be positive, got %d", ErrInvalidArgument, length)
	}
	return &Pattern{
		ID:     id,
		Length: length,
		Loop:   loop,
		Events: make([]Event, 0, MaxPatternEvents),
	}, nil
}

// Add inserts the event keeping the events sorted. It fails with
// ErrInvalidPosition if the event is not inside the pattern.
func (p *Pattern) Add(e Event) error {
	if err := e.Validate(p.Length); err != nil {
		return err
	}
	if len(p.Events) == cap(p.Events) {
		return fmt.Errorf("%w: pattern %d holds %d events", ErrPatternFull, p.ID, len(p.Events))
	}
	i := p.upperBound(e.Tick)
	p.Events = p.Events[:len(p.Events)+1]
	copy(p.Events[i+1:], p.Events[i:])
	p.Events[i] = e
	return nil
}

// Remove deletes the event at index.
func (p *Pattern) Remove(index int) error {
	if index < 0 || index >= len(p.Events) {
		return fmt.Errorf("%w: pattern %d has no event %d", ErrInvalidArgument, p.ID, index)
	}
	copy(p.Events[index:], p.Events[index+1:])
	p.Events = p.Events[:len(p.Events)-1]
	return nil
}

// Move changes the tick of the event at index, keeping the events sorted.
func (p *Pattern) Move(index int, tick int64) error {
	if index < 0 || index >= len(p.Events) {
		return fmt.Errorf("%w: pattern %d has no event %d", ErrInvalidArgument, p.ID, index)
	}
	if tick < 0 || tick >= p.Length {
		return fmt.Errorf("%w: tick %d outside pattern of length %d", ErrInvalidPosition, tick, p.Length)
	}
	e := p.Events[index]
	e.Tick = tick
	if err := p.Remove(index); err != nil {
		return err
	}
	return p.Add(e)
}

// LowerBound returns the index of the first event with Tick >= tick.
func (p *Pattern) LowerBound(tick int64) int {
	lo, hi := 0, len(p.Events)
	for lo < hi {
		m := int(uint(lo+hi) >> 1)
		if p.Events[m].Tick < tick {
			lo = m + 1
		} else {
			hi = m
		}
	}
	return lo
}

func (p *Pattern) upperBound(tick int64) int {
	lo, hi := 0, len(p.Events)
	for lo < hi {
		m := int(uint(lo+hi) >> 1)
		if p.Events[m].Tick <= tick {
			lo = m + 1
		} else {
			hi = m
		}
	}
	return lo
}

// Copy returns a deep copy of the pattern. The copy has only as much
// capacity as it needs; it is meant for readers, not for further editing.
func (p *Pattern) Copy() Pattern {
	ret := *p
	ret.Events = append([]Event(nil), p.Events...)
	return ret
}

// Sorted reports whether the events are in tick order. Patterns built with
// Add always are.
func (p *Pattern) Sorted() bool {
	return sort.SliceIsSorted(p.Events, func(i, j int) bool { return p.Events[i].Tick < p.Events[j].Tick })
}
