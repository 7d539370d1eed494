package api

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/mini-leebee/leebee"
	"github.com/mini-leebee/leebee/engine"
)

// Handler answers the /api routes with the engine controller.
type Handler struct {
	ctrl      *engine.Controller
	validator *validator.Validate
	timeout   time.Duration
}

func NewHandler(ctrl *engine.Controller, v *validator.Validate, timeout time.Duration) *Handler {
	return &Handler{
		ctrl:      ctrl,
		validator: v,
		timeout:   timeout,
	}
}

// bind parses and validates the body into req. When it returns false, the
// response has been written already.
func (h *Handler) bind(c *fiber.Ctx, req interface{}) (bool, error) {
	if err := c.BodyParser(req); err != nil {
		return false, ValidationError(c, "Invalid request body", nil)
	}
	if err := h.validator.Struct(req); err != nil {
		return false, ValidationError(c, "Validation failed", formatValidationErrors(err))
	}
	return true, nil
}

func (h *Handler) context(c *fiber.Ctx) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.UserContext(), h.timeout)
}

// param reads a non-negative integer path parameter.
func param(c *fiber.Ctx, name string) (int, bool, error) {
	v, err := c.ParamsInt(name)
	if err != nil || v < 0 {
		return 0, false, ValidationError(c, "Invalid "+name, nil)
	}
	return v, true, nil
}

// done answers an operation that has no result.
func done(c *fiber.Ctx, err error) error {
	if err != nil {
		return EngineError(c, err)
	}
	return NoContent(c)
}

// State handles GET /api/state
func (h *Handler) State(c *fiber.Ctx) error {
	return OK(c, h.ctrl.State())
}

// Position handles GET /api/position
func (h *Handler) Position(c *fiber.Ctx) error {
	return OK(c, h.ctrl.Position())
}

// Plugins handles GET /api/plugins
func (h *Handler) Plugins(c *fiber.Ctx) error {
	return OK(c, h.ctrl.Plugins())
}

// CreateTrack handles POST /api/tracks
func (h *Handler) CreateTrack(c *fiber.Ctx) error {
	var req CreateTrackRequest
	if ok, err := h.bind(c, &req); !ok {
		return err
	}
	ctx, cancel := h.context(c)
	defer cancel()
	id, err := h.ctrl.CreateTrack(ctx, req.Name, req.Plugins...)
	if err != nil {
		return EngineError(c, err)
	}
	return Created(c, IDResponse{ID: id})
}

// DeleteTrack handles DELETE /api/tracks/:id
func (h *Handler) DeleteTrack(c *fiber.Ctx) error {
	id, ok, err := param(c, "id")
	if !ok {
		return err
	}
	ctx, cancel := h.context(c)
	defer cancel()
	return done(c, h.ctrl.DeleteTrack(ctx, leebee.TrackID(id)))
}

// DeleteTracks handles POST /api/tracks/delete
func (h *Handler) DeleteTracks(c *fiber.Ctx) error {
	var req DeleteTracksRequest
	if ok, err := h.bind(c, &req); !ok {
		return err
	}
	ctx, cancel := h.context(c)
	defer cancel()
	return done(c, h.ctrl.DeleteTracks(ctx, req.IDs...))
}

// UpdateTrack handles PATCH /api/tracks/:id
func (h *Handler) UpdateTrack(c *fiber.Ctx) error {
	id, ok, err := param(c, "id")
	if !ok {
		return err
	}
	var req UpdateTrackRequest
	if ok, err := h.bind(c, &req); !ok {
		return err
	}
	ctx, cancel := h.context(c)
	defer cancel()
	track := leebee.TrackID(id)
	var ops []func() error
	if req.Name != nil {
		ops = append(ops, func() error { return h.ctrl.RenameTrack(ctx, track, *req.Name) })
	}
	if req.Gain != nil {
		ops = append(ops, func() error { return h.ctrl.SetGain(ctx, track, *req.Gain) })
	}
	if req.Pan != nil {
		ops = append(ops, func() error { return h.ctrl.SetPan(ctx, track, *req.Pan) })
	}
	if req.Mute != nil {
		ops = append(ops, func() error { return h.ctrl.SetMute(ctx, track, *req.Mute) })
	}
	if req.Solo != nil {
		ops = append(ops, func() error { return h.ctrl.SetSolo(ctx, track, *req.Solo) })
	}
	for _, op := range ops {
		if err := op(); err != nil {
			return EngineError(c, err)
		}
	}
	if t := h.ctrl.State().Track(track); t != nil {
		return OK(c, t)
	}
	return NoContent(c)
}

// LoadPlugin handles POST /api/tracks/:id/plugins
func (h *Handler) LoadPlugin(c *fiber.Ctx) error {
	id, ok, err := param(c, "id")
	if !ok {
		return err
	}
	var req LoadPluginRequest
	if ok, err := h.bind(c, &req); !ok {
		return err
	}
	slot := -1
	if req.Slot != nil {
		slot = *req.Slot
	}
	ctx, cancel := h.context(c)
	defer cancel()
	inst, err := h.ctrl.InsertPlugin(ctx, leebee.TrackID(id), slot, req.Plugin)
	if err != nil {
		return EngineError(c, err)
	}
	return Created(c, IDResponse{ID: inst.String()})
}

// RemovePlugin handles DELETE /api/tracks/:id/plugins/:slot
func (h *Handler) RemovePlugin(c *fiber.Ctx) error {
	id, ok, err := param(c, "id")
	if !ok {
		return err
	}
	slot, ok, err := param(c, "slot")
	if !ok {
		return err
	}
	ctx, cancel := h.context(c)
	defer cancel()
	return done(c, h.ctrl.RemovePlugin(ctx, leebee.TrackID(id), slot))
}

// MovePlugin handles POST /api/tracks/:id/plugins/move
func (h *Handler) MovePlugin(c *fiber.Ctx) error {
	id, ok, err := param(c, "id")
	if !ok {
		return err
	}
	var req MovePluginRequest
	if ok, err := h.bind(c, &req); !ok {
		return err
	}
	ctx, cancel := h.context(c)
	defer cancel()
	return done(c, h.ctrl.MovePlugin(ctx, leebee.TrackID(id), *req.From, *req.To))
}

// SetParameter handles PUT /api/tracks/:id/plugins/:slot/params/:port
func (h *Handler) SetParameter(c *fiber.Ctx) error {
	id, ok, err := param(c, "id")
	if !ok {
		return err
	}
	slot, ok, err := param(c, "slot")
	if !ok {
		return err
	}
	port, ok, err := param(c, "port")
	if !ok {
		return err
	}
	var req ValueRequest
	if ok, err := h.bind(c, &req); !ok {
		return err
	}
	ctx, cancel := h.context(c)
	defer cancel()
	return done(c, h.ctrl.SetParameter(ctx, leebee.TrackID(id), slot, port, *req.Value))
}

// AssignPattern handles PUT /api/tracks/:id/pattern
func (h *Handler) AssignPattern(c *fiber.Ctx) error {
	id, ok, err := param(c, "id")
	if !ok {
		return err
	}
	var req AssignPatternRequest
	if ok, err := h.bind(c, &req); !ok {
		return err
	}
	ctx, cancel := h.context(c)
	defer cancel()
	return done(c, h.ctrl.SetTrackPattern(ctx, leebee.TrackID(id), req.Pattern))
}

// PlayNote handles POST /api/tracks/:id/notes
func (h *Handler) PlayNote(c *fiber.Ctx) error {
	id, ok, err := param(c, "id")
	if !ok {
		return err
	}
	var req NoteRequest
	if ok, err := h.bind(c, &req); !ok {
		return err
	}
	ctx, cancel := h.context(c)
	defer cancel()
	if req.On {
		return done(c, h.ctrl.NoteOn(ctx, leebee.TrackID(id), *req.Pitch, req.Velocity))
	}
	return done(c, h.ctrl.NoteOff(ctx, leebee.TrackID(id), *req.Pitch))
}

// Arm handles PUT /api/armed
func (h *Handler) Arm(c *fiber.Ctx) error {
	var req ArmRequest
	if ok, err := h.bind(c, &req); !ok {
		return err
	}
	ctx, cancel := h.context(c)
	defer cancel()
	return done(c, h.ctrl.ArmTrack(ctx, req.Track))
}

// CreatePattern handles POST /api/patterns
func (h *Handler) CreatePattern(c *fiber.Ctx) error {
	var req CreatePatternRequest
	if ok, err := h.bind(c, &req); !ok {
		return err
	}
	ctx, cancel := h.context(c)
	defer cancel()
	id, err := h.ctrl.CreatePattern(ctx, req.Length, req.Loop)
	if err != nil {
		return EngineError(c, err)
	}
	return Created(c, IDResponse{ID: id})
}

// DeletePattern handles DELETE /api/patterns/:id
func (h *Handler) DeletePattern(c *fiber.Ctx) error {
	id, ok, err := param(c, "id")
	if !ok {
		return err
	}
	ctx, cancel := h.context(c)
	defer cancel()
	return done(c, h.ctrl.DeletePattern(ctx, leebee.PatternID(id)))
}

// AddEvent handles POST /api/patterns/:id/events
func (h *Handler) AddEvent(c *fiber.Ctx) error {
	id, ok, err := param(c, "id")
	if !ok {
		return err
	}
	var req EventRequest
	if ok, err := h.bind(c, &req); !ok {
		return err
	}
	ev, err := req.Event()
	if err != nil {
		return EngineError(c, err)
	}
	ctx, cancel := h.context(c)
	defer cancel()
	if err := h.ctrl.AddEvent(ctx, leebee.PatternID(id), ev); err != nil {
		return EngineError(c, err)
	}
	return Created(c, ev)
}

// RemoveEvent handles DELETE /api/patterns/:id/events/:index
func (h *Handler) RemoveEvent(c *fiber.Ctx) error {
	id, ok, err := param(c, "id")
	if !ok {
		return err
	}
	index, ok, err := param(c, "index")
	if !ok {
		return err
	}
	ctx, cancel := h.context(c)
	defer cancel()
	return done(c, h.ctrl.RemoveEvent(ctx, leebee.PatternID(id), index))
}

// MoveEvent handles PUT /api/patterns/:id/events/:index
func (h *Handler) MoveEvent(c *fiber.Ctx) error {
	id, ok, err := param(c, "id")
	if !ok {
		return err
	}
	index, ok, err := param(c, "index")
	if !ok {
		return err
	}
	var req MoveEventRequest
	if ok, err := h.bind(c, &req); !ok {
		return err
	}
	ctx, cancel := h.context(c)
	defer cancel()
	return done(c, h.ctrl.MoveEvent(ctx, leebee.PatternID(id), index, *req.Tick))
}

// Start handles POST /api/transport/start
func (h *Handler) Start(c *fiber.Ctx) error {
	ctx, cancel := h.context(c)
	defer cancel()
	return done(c, h.ctrl.StartTransport(ctx))
}

// Stop handles POST /api/transport/stop
func (h *Handler) Stop(c *fiber.Ctx) error {
	ctx, cancel := h.context(c)
	defer cancel()
	return done(c, h.ctrl.StopTransport(ctx))
}

// SetTempo handles PUT /api/transport/tempo
func (h *Handler) SetTempo(c *fiber.Ctx) error {
	var req TempoRequest
	if ok, err := h.bind(c, &req); !ok {
		return err
	}
	ctx, cancel := h.context(c)
	defer cancel()
	return done(c, h.ctrl.SetTempo(ctx, req.BPM))
}

// Seek handles PUT /api/transport/position
func (h *Handler) Seek(c *fiber.Ctx) error {
	var req SeekRequest
	if ok, err := h.bind(c, &req); !ok {
		return err
	}
	ctx, cancel := h.context(c)
	defer cancel()
	return done(c, h.ctrl.Seek(ctx, *req.Tick))
}

// SetLoop handles PUT /api/transport/loop
func (h *Handler) SetLoop(c *fiber.Ctx) error {
	var req LoopRequest
	if ok, err := h.bind(c, &req); !ok {
		return err
	}
	ctx, cancel := h.context(c)
	defer cancel()
	return done(c, h.ctrl.SetLoop(ctx, req.Start, req.End))
}

// ClearLoop handles DELETE /api/transport/loop
func (h *Handler) ClearLoop(c *fiber.Ctx) error {
	ctx, cancel := h.context(c)
	defer cancel()
	return done(c, h.ctrl.ClearLoop(ctx))
}

// SetMetronome handles PUT /api/metronome
func (h *Handler) SetMetronome(c *fiber.Ctx) error {
	var req MetronomeRequest
	if ok, err := h.bind(c, &req); !ok {
		return err
	}
	ctx, cancel := h.context(c)
	defer cancel()
	return done(c, h.ctrl.SetMetronome(ctx, *req.Volume))
}
