package api

import "github.com/mini-leebee/leebee"

type (
	CreateTrackRequest struct {
		Name    string   `json:"name" validate:"max=64"`
		Plugins []string `json:"plugins" validate:"max=16,dive,required"`
	}

	DeleteTracksRequest struct {
		IDs []leebee.TrackID `json:"ids" validate:"required,min=1,dive,min=1"`
	}

	// UpdateTrackRequest changes the fields that are present.
	UpdateTrackRequest struct {
		Name *string  `json:"name" validate:"omitempty,max=64"`
		Gain *float32 `json:"gain" validate:"omitempty,min=0,max=4"`
		Pan  *float32 `json:"pan" validate:"omitempty,min=-1,max=1"`
		Mute *bool    `json:"mute"`
		Solo *bool    `json:"solo"`
	}

	// LoadPluginRequest inserts at Slot, or appends without one.
	LoadPluginRequest struct {
		Plugin string `json:"plugin" validate:"required"`
		Slot   *int   `json:"slot" validate:"omitempty,min=0,max=15"`
	}

	MovePluginRequest struct {
		From *int `json:"from" validate:"required,min=0,max=15"`
		To   *int `json:"to" validate:"required,min=0,max=15"`
	}

	ValueRequest struct {
		Value *float32 `json:"value" validate:"required"`
	}

	AssignPatternRequest struct {
		Pattern leebee.PatternID `json:"pattern" validate:"min=0"`
	}

	NoteRequest struct {
		Pitch    *uint8 `json:"pitch" validate:"required,max=127"`
		Velocity uint8  `json:"velocity" validate:"max=127"`
		On       bool   `json:"on"`
	}

	ArmRequest struct {
		Track leebee.TrackID `json:"track" validate:"min=0"`
	}

	CreatePatternRequest struct {
		Length int64 `json:"length" validate:"required,min=1"`
		Loop   bool  `json:"loop"`
	}

	EventRequest struct {
		Tick     *int64  `json:"tick" validate:"required,min=0"`
		Kind     string  `json:"kind" validate:"required,oneof=note_on note_off param_change"`
		Pitch    uint8   `json:"pitch" validate:"max=127"`
		Velocity uint8   `json:"velocity" validate:"max=127"`
		Duration int64   `json:"duration" validate:"min=0"`
		Slot     int     `json:"slot" validate:"min=0,max=15"`
		Port     int     `json:"port" validate:"min=0"`
		Value    float32 `json:"value"`
	}

	MoveEventRequest struct {
		Tick *int64 `json:"tick" validate:"required,min=0"`
	}

	TempoRequest struct {
		BPM float64 `json:"bpm" validate:"required,gt=0"`
	}

	SeekRequest struct {
		Tick *int64 `json:"tick" validate:"required,min=0"`
	}

	LoopRequest struct {
		Start int64 `json:"start" validate:"min=0"`
		End   int64 `json:"end" validate:"gtfield=Start"`
	}

	MetronomeRequest struct {
		Volume *float32 `json:"volume" validate:"required,min=0,max=1"`
	}

	IDResponse struct {
		ID interface{} `json:"id"`
	}
)

// Event converts the request to a pattern event.
func (r *EventRequest) Event() (leebee.Event, error) {
	kind, err := leebee.ParseEventKind(r.Kind)
	if err != nil {
		return leebee.Event{}, err
	}
	return leebee.Event{
		Tick:     *r.Tick,
		Kind:     kind,
		Pitch:    r.Pitch,
		Velocity: r.Velocity,
		Duration: r.Duration,
		Slot:     r.Slot,
		Port:     r.Port,
		Value:    r.Value,
	}, nil
}
