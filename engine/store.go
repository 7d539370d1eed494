package engine

import (
	"github.com/mini-leebee/leebee"
)

// MaxPatterns is the number of pattern slots of a project.
const MaxPatterns = 256

// PatternStore holds the patterns of the project in fixed slots. Patterns
// arrive fully allocated inside commands; the store only links and unlinks
// them, so none of its operations allocate.
type PatternStore struct {
	slots [MaxPatterns]*leebee.Pattern
	n     int
}

// Add puts a new pattern into a free slot.
func (s *PatternStore) Add(p *leebee.Pattern) error {
	if p == nil || p.Length <= 0 {
		return leebee.ErrInvalidArgument
	}
	if s.find(p.ID) >= 0 {
		return leebee.ErrInvalidPatternReference
	}
	for i, q := range s.slots {
		if q == nil {
			s.slots[i] = p
			s.n++
			return nil
		}
	}
	return leebee.ErrPatternLimit
}

// Get returns the pattern with the given id.
func (s *PatternStore) Get(id leebee.PatternID) (*leebee.Pattern, error) {
	i := s.find(id)
	if i < 0 {
		return nil, leebee.ErrInvalidPatternReference
	}
	return s.slots[i], nil
}

// Delete unlinks a pattern. Tracks playing it must be cleared by the
// caller.
func (s *PatternStore) Delete(id leebee.PatternID) (*leebee.Pattern, error) {
	i := s.find(id)
	if i < 0 {
		return nil, leebee.ErrInvalidPatternReference
	}
	p := s.slots[i]
	s.slots[i] = nil
	s.n--
	return p, nil
}

// AddEvent adds an event to a pattern. The checks are repeated here with
// plain sentinels so that a rejected event costs no allocation.
func (s *PatternStore) AddEvent(id leebee.PatternID, e leebee.Event) error {
	p, err := s.Get(id)
	if err != nil {
		return err
	}
	switch {
	case e.Tick < 0 || e.Tick >= p.Length:
		return leebee.ErrInvalidPosition
	case len(p.Events) == cap(p.Events):
		return leebee.ErrPatternFull
	case e.Kind > leebee.ParamChange || e.Pitch > 127 || e.Velocity > 127 || e.Duration < 0:
		return leebee.ErrInvalidArgument
	case e.Kind == leebee.ParamChange && (e.Slot < 0 || e.Slot >= leebee.MaxChain || e.Port < 0):
		return leebee.ErrInvalidArgument
	}
	if p.Add(e) != nil {
		return leebee.ErrInvalidArgument
	}
	return nil
}

func (s *PatternStore) RemoveEvent(id leebee.PatternID, index int) error {
	p, err := s.Get(id)
	if err != nil {
		return err
	}
	if index < 0 || index >= len(p.Events) {
		return leebee.ErrInvalidArgument
	}
	p.Remove(index)
	return nil
}

func (s *PatternStore) MoveEvent(id leebee.PatternID, index int, tick int64) error {
	p, err := s.Get(id)
	if err != nil {
		return err
	}
	if index < 0 || index >= len(p.Events) {
		return leebee.ErrInvalidArgument
	}
	if tick < 0 || tick >= p.Length {
		return leebee.ErrInvalidPosition
	}
	p.Move(index, tick)
	return nil
}

// Len is the number of patterns.
func (s *PatternStore) Len() int {
	return s.n
}

// Each calls f for every pattern, in slot order.
func (s *PatternStore) Each(f func(p *leebee.Pattern)) {
	for _, p := range s.slots {
		if p != nil {
			f(p)
		}
	}
}

func (s *PatternStore) find(id leebee.PatternID) int {
	if id <= 0 {
		return -1
	}
	for i, p := range s.slots {
		if p != nil && p.ID == id {
			return i
		}
	}
	return -1
}
