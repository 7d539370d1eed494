package engine

import (
	"math"

	"github.com/mini-leebee/leebee"
	"github.com/viterin/vek/vek32"
)

// softClipKnee is the level above which the master limiter starts bending
// the signal towards, but never past, full scale.
const softClipKnee = 0.8

// Graph mixes the outputs of the tracks into the master bus. The list of
// routed tracks is never edited in place: a topology change writes the new
// list into the spare of two preallocated arrays and then switches to it.
type Graph struct {
	routes [2][]*Track
	cur    int

	master  leebee.PortBuffer
	scratch []float32
	peak    [leebee.NumChannels]float32
}

func newGraph(maxTracks, blockSize int) Graph {
	return Graph{
		routes: [2][]*Track{
			make([]*Track, 0, maxTracks),
			make([]*Track, 0, maxTracks),
		},
		master:  leebee.NewPortBuffer(blockSize),
		scratch: make([]float32, blockSize),
	}
}

// Routes returns the tracks in mixing order.
func (g *Graph) Routes() []*Track {
	return g.routes[g.cur]
}

// Find returns the routed track with the given id.
func (g *Graph) Find(id leebee.TrackID) *Track {
	for _, t := range g.routes[g.cur] {
		if t.ID == id {
			return t
		}
	}
	return nil
}

// Full reports whether no more tracks fit.
func (g *Graph) Full() bool {
	r := g.routes[g.cur]
	return len(r) == cap(r)
}

// Add routes a new track after the existing ones.
func (g *Graph) Add(t *Track) error {
	if g.Full() {
		return leebee.ErrTrackLimit
	}
	next := append(g.routes[1-g.cur][:0], g.routes[g.cur]...)
	g.replace(append(next, t))
	return nil
}

// Remove unroutes the track with the given id and returns it.
func (g *Graph) Remove(id leebee.TrackID) *Track {
	var removed *Track
	next := g.routes[1-g.cur][:0]
	for _, t := range g.routes[g.cur] {
		if t.ID == id {
			removed = t
			continue
		}
		next = append(next, t)
	}
	if removed != nil {
		g.replace(next)
	}
	return removed
}

func (g *Graph) replace(next []*Track) {
	g.routes[1-g.cur] = next
	g.cur = 1 - g.cur
	clear(g.routes[1-g.cur][:cap(g.routes[1-g.cur])])
	g.routes[1-g.cur] = g.routes[1-g.cur][:0]
}

func (g *Graph) reformat(blockSize int) {
	g.master = leebee.NewPortBuffer(blockSize)
	g.scratch = make([]float32, blockSize)
}

// Mix sums the audible tracks into the master bus, then limits it. When any
// track is soloed, only soloed tracks are audible; muted tracks never are.
// extra (the metronome, may be nil) is mixed unconditionally.
func (g *Graph) Mix(frames int, extra *Track) {
	g.master.Clear(frames)
	solo := false
	for _, t := range g.Routes() {
		solo = solo || t.Solo
	}
	for _, t := range g.Routes() {
		if t.Mute || (solo && !t.Solo) {
			continue
		}
		g.add(t, frames)
	}
	if extra != nil {
		g.add(extra, frames)
	}
	for c := range g.master {
		m := g.master[c][:frames]
		for i, v := range m {
			m[i] = softClip(v)
		}
		if frames > 0 {
			a := vek32.Abs_Into(g.scratch[:frames], m)
			g.peak[c] = vek32.Max(a)
		}
	}
}

func (g *Graph) add(t *Track, frames int) {
	if t.Gain == 0 {
		return
	}
	l, r := panGains(t.Pan)
	gains := [leebee.NumChannels]float32{t.Gain * l, t.Gain * r}
	for c := range g.master {
		if gains[c] == 0 {
			continue
		}
		vek32.MulNumber_Into(g.scratch[:frames], t.out[c][:frames], gains[c])
		vek32.Add_Inplace(g.master[c][:frames], g.scratch[:frames])
	}
}

// Peak returns the absolute peak of each master channel in the last block.
func (g *Graph) Peak() [leebee.NumChannels]float32 {
	return g.peak
}

// panGains is a constant-power balance law normalised to unity at the
// center: panning away from a side only attenuates that side.
func panGains(pan float32) (l, r float32) {
	pan = min(max(pan, -1), 1)
	theta := float64(pan+1) * math.Pi / 4
	l = float32(min(math.Cos(theta)*math.Sqrt2, 1))
	r = float32(min(math.Sin(theta)*math.Sqrt2, 1))
	return l, r
}

// softClip is linear below the knee and approaches full scale
// asymptotically above it.
func softClip(x float32) float32 {
	a := float32(math.Abs(float64(x)))
	if a <= softClipKnee {
		return x
	}
	y := softClipKnee + (1-softClipKnee)*float32(math.Tanh(float64((a-softClipKnee)/(1-softClipKnee))))
	if x < 0 {
		return -y
	}
	return y
}
