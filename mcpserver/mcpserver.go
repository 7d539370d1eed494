// Package mcpserver exposes the engine controller as Model Context
// Protocol tools, so that an assistant can build and play songs.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/mini-leebee/leebee"
	"github.com/mini-leebee/leebee/engine"
)

// Server holds the MCP server and its tools.
type Server struct {
	ctrl    *engine.Controller
	mcp     *server.MCPServer
	tools   map[string]server.ServerTool
	timeout time.Duration
}

// New creates the server and registers the leebee_* tools.
func New(ctrl *engine.Controller, version string) *Server {
	s := &Server{
		ctrl: ctrl,
		mcp: server.NewMCPServer(
			"leebee",
			version,
			server.WithToolCapabilities(false),
		),
		tools:   map[string]server.ServerTool{},
		timeout: 5 * time.Second,
	}

	s.add(mcp.NewTool("leebee_get-state",
		mcp.WithDescription("Returns the engine state as JSON: transport, tracks with their plugin chains and control values, patterns with their events, and the latest command errors."),
	), s.getState)

	s.add(mcp.NewTool("leebee_list-plugins",
		mcp.WithDescription("Lists the plugins that can be loaded, with their ports. Control port indices are used by leebee_set-parameter."),
	), s.listPlugins)

	s.add(mcp.NewTool("leebee_create-track",
		mcp.WithDescription("Creates a track and returns its id."),
		mcp.WithString("name", mcp.Description("Name of the track. Defaults to \"Track N\".")),
		mcp.WithString("plugins", mcp.Description("Comma separated plugin ids to put in the chain, e.g. builtin:sine,builtin:gain.")),
	), s.createTrack)

	s.add(mcp.NewTool("leebee_load-plugin",
		mcp.WithDescription("Appends a plugin to the chain of a track."),
		mcp.WithNumber("track", mcp.Required(), mcp.Description("The track id.")),
		mcp.WithString("plugin", mcp.Required(), mcp.Description("The plugin id, see leebee_list-plugins.")),
	), s.loadPlugin)

	s.add(mcp.NewTool("leebee_set-parameter",
		mcp.WithDescription("Sets a control port of a plugin in a track chain."),
		mcp.WithNumber("track", mcp.Required(), mcp.Description("The track id.")),
		mcp.WithNumber("slot", mcp.Required(), mcp.Description("Position of the plugin in the chain, from 0.")),
		mcp.WithNumber("port", mcp.Required(), mcp.Description("Index of the control port.")),
		mcp.WithNumber("value", mcp.Required(), mcp.Description("The new value, inside the port range.")),
	), s.setParameter)

	s.add(mcp.NewTool("leebee_create-pattern",
		mcp.WithDescription("Creates an empty pattern and returns its id."),
		mcp.WithNumber("beats", mcp.Required(), mcp.Description("Length of the pattern in beats (quarter notes).")),
		mcp.WithBoolean("loop", mcp.Description("Whether the pattern repeats. Defaults to true.")),
	), s.createPattern)

	s.add(mcp.NewTool("leebee_add-note",
		mcp.WithDescription("Adds a note to a pattern."),
		mcp.WithNumber("pattern", mcp.Required(), mcp.Description("The pattern id.")),
		mcp.WithNumber("beat", mcp.Required(), mcp.Description("Start of the note in beats from the pattern start, may be fractional.")),
		mcp.WithNumber("pitch", mcp.Required(), mcp.Description("MIDI note number, 60 is middle C.")),
		mcp.WithNumber("velocity", mcp.Description("1-127, defaults to 100.")),
		mcp.WithNumber("duration", mcp.Description("Length in beats, defaults to 1.")),
	), s.addNote)

	s.add(mcp.NewTool("leebee_assign-pattern",
		mcp.WithDescription("Makes a track play a pattern. Pattern 0 stops the track from playing any."),
		mcp.WithNumber("track", mcp.Required(), mcp.Description("The track id.")),
		mcp.WithNumber("pattern", mcp.Required(), mcp.Description("The pattern id, or 0.")),
	), s.assignPattern)

	s.add(mcp.NewTool("leebee_transport",
		mcp.WithDescription("Starts or stops playback, or moves the play position."),
		mcp.WithString("action", mcp.Required(), mcp.Enum("start", "stop", "seek"), mcp.Description("What to do.")),
		mcp.WithNumber("beat", mcp.Description("The position for seek, in beats.")),
	), s.transport)

	s.add(mcp.NewTool("leebee_set-tempo",
		mcp.WithDescription("Sets the tempo in beats per minute."),
		mcp.WithNumber("bpm", mcp.Required(), mcp.Description("The tempo.")),
	), s.setTempo)

	return s
}

func (s *Server) add(tool mcp.Tool, handler server.ToolHandlerFunc) {
	s.tools[tool.Name] = server.ServerTool{Tool: tool, Handler: handler}
	s.mcp.AddTool(tool, handler)
}

// ServeStdio serves the tools on stdin and stdout until stdin closes.
func (s *Server) ServeStdio() error {
	log.Println("[mcp] serving on stdio")
	return server.ServeStdio(s.mcp)
}

// Tools lists the names of the registered tools.
func (s *Server) Tools() []string {
	ret := make([]string, 0, len(s.tools))
	for name := range s.tools {
		ret = append(ret, name)
	}
	return ret
}

// Call runs a tool directly, as a tools/call request would.
func (s *Server) Call(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error) {
	t, ok := s.tools[name]
	if !ok {
		return nil, fmt.Errorf("unknown tool %q", name)
	}
	var req mcp.CallToolRequest
	req.Params.Name = name
	req.Params.Arguments = args
	return t.Handler(ctx, req)
}

// failed reports an engine error to the model, tagged with its kind.
func failed(err error) *mcp.CallToolResult {
	return mcp.NewToolResultError(string(leebee.KindOf(err)) + ": " + err.Error())
}

func asJSON(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal to JSON: %v", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}

func beatsToTicks(beats float64) int64 {
	return int64(math.Round(beats * leebee.TicksPerBeat))
}

func (s *Server) getState(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	log.Println("[mcp] Handling get state request.")
	return asJSON(s.ctrl.State())
}

func (s *Server) listPlugins(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	log.Println("[mcp] Handling list plugins request.")
	return asJSON(s.ctrl.Plugins())
}

func (s *Server) createTrack(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name := request.GetString("name", "")
	var plugins []string
	for _, p := range strings.Split(request.GetString("plugins", ""), ",") {
		if p = strings.TrimSpace(p); p != "" {
			plugins = append(plugins, p)
		}
	}
	log.Println("[mcp] Creating track", name, plugins)

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	id, err := s.ctrl.CreateTrack(ctx, name, plugins...)
	if err != nil {
		return failed(err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Created track %d.", id)), nil
}

func (s *Server) loadPlugin(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	track, err := request.RequireInt("track")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	plugin, err := request.RequireString("plugin")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	id, err := s.ctrl.LoadPlugin(ctx, leebee.TrackID(track), plugin)
	if err != nil {
		return failed(err), nil
	}
	slot := -1
	if t := s.ctrl.State().Track(leebee.TrackID(track)); t != nil {
		slot = len(t.Plugins) - 1
	}
	return mcp.NewToolResultText(fmt.Sprintf("Loaded %s in slot %d of track %d, instance %s.", plugin, slot, track, id)), nil
}

func (s *Server) setParameter(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	track, err := request.RequireInt("track")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	slot, err := request.RequireInt("slot")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	port, err := request.RequireInt("port")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	value, err := request.RequireFloat("value")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.ctrl.SetParameter(ctx, leebee.TrackID(track), slot, port, float32(value)); err != nil {
		return failed(err), nil
	}
	return mcp.NewToolResultText("Parameter set."), nil
}

func (s *Server) createPattern(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	beats, err := request.RequireFloat("beats")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	loop := request.GetBool("loop", true)

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	id, err := s.ctrl.CreatePattern(ctx, beatsToTicks(beats), loop)
	if err != nil {
		return failed(err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Created pattern %d.", id)), nil
}

func (s *Server) addNote(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	pattern, err := request.RequireInt("pattern")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	beat, err := request.RequireFloat("beat")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	pitch, err := request.RequireInt("pitch")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	velocity := request.GetInt("velocity", 100)
	duration := request.GetFloat("duration", 1)
	if pitch < 0 || pitch > 127 || velocity < 1 || velocity > 127 || duration <= 0 {
		return mcp.NewToolResultError("pitch must be 0-127, velocity 1-127 and duration positive"), nil
	}

	ev := leebee.NoteOnEvent(beatsToTicks(beat), uint8(pitch), uint8(velocity))
	ev.Duration = max(1, beatsToTicks(duration))
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.ctrl.AddEvent(ctx, leebee.PatternID(pattern), ev); err != nil {
		return failed(err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Added note %d at tick %d to pattern %d.", pitch, ev.Tick, pattern)), nil
}

func (s *Server) assignPattern(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	track, err := request.RequireInt("track")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	pattern, err := request.RequireInt("pattern")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.ctrl.SetTrackPattern(ctx, leebee.TrackID(track), leebee.PatternID(pattern)); err != nil {
		return failed(err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Track %d plays pattern %d.", track, pattern)), nil
}

func (s *Server) transport(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	action, err := request.RequireString("action")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	log.Println("[mcp] Transport", action)

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	switch action {
	case "start":
		err = s.ctrl.StartTransport(ctx)
	case "stop":
		err = s.ctrl.StopTransport(ctx)
	case "seek":
		var beat float64
		if beat, err = request.RequireFloat("beat"); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		err = s.ctrl.Seek(ctx, beatsToTicks(beat))
	default:
		return mcp.NewToolResultError(fmt.Sprintf("unknown action %q", action)), nil
	}
	if err != nil {
		return failed(err), nil
	}
	return mcp.NewToolResultText("Transport " + action + " done."), nil
}

func (s *Server) setTempo(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	bpm, err := request.RequireFloat("bpm")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.ctrl.SetTempo(ctx, bpm); err != nil {
		return failed(err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Tempo set to %g BPM.", bpm)), nil
}
