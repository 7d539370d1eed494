package plugins

type envStage int

const (
	envIdle envStage = iota
	envAttack
	envDecay
	envSustain
	envRelease
)

// adsr is a linear attack, decay, sustain, release envelope. Times are in
// seconds.
type adsr struct {
	stage      envStage
	level      float32
	sampleRate float32

	attack, decay, sustain, release float32
	releaseStep                     float32
}

func (e *adsr) set(attack, decay, sustain, release float32) {
	e.attack, e.decay, e.sustain, e.release = attack, decay, sustain, release
}

func (e *adsr) trigger() {
	e.stage = envAttack
}

func (e *adsr) noteOff() {
	if e.stage == envIdle {
		return
	}
	e.stage = envRelease
	e.releaseStep = e.level / max(e.release*e.sampleRate, 1)
}

func (e *adsr) reset() {
	e.stage = envIdle
	e.level = 0
}

func (e *adsr) next() float32 {
	switch e.stage {
	case envAttack:
		e.level += 1 / max(e.attack*e.sampleRate, 1)
		if e.level >= 1 {
			e.level = 1
			e.stage = envDecay
		}
	case envDecay:
		e.level -= (1 - e.sustain) / max(e.decay*e.sampleRate, 1)
		if e.level <= e.sustain {
			e.level = e.sustain
			e.stage = envSustain
		}
	case envRelease:
		e.level -= e.releaseStep
		if e.level <= 0 {
			e.reset()
		}
	}
	return e.level
}
