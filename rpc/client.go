package rpc

import (
	"context"
	"fmt"
	"net/rpc"

	"github.com/mini-leebee/leebee"
)

// Client calls a leebee server. Its methods return *StatusError for
// errors reported by the engine.
type Client struct {
	rpc *rpc.Client
}

// Dial connects to the server at address, e.g. "127.0.0.1:21894".
func Dial(address string) (*Client, error) {
	c, err := rpc.DialHTTP("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("rpc.DialHTTP failed: %w", err)
	}
	return &Client{rpc: c}, nil
}

func (c *Client) Close() error {
	return c.rpc.Close()
}

// Call calls a service method by name. The call is abandoned, not
// cancelled on the server, when ctx is done.
func (c *Client) Call(ctx context.Context, method string, args, reply any) error {
	call := c.rpc.Go(ServiceName+"."+method, args, reply, make(chan *rpc.Call, 1))
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-call.Done:
		return decodeError(call.Error)
	}
}

func (c *Client) GetState(ctx context.Context) (*State, error) {
	var ret State
	if err := c.Call(ctx, "GetState", 0, &ret); err != nil {
		return nil, err
	}
	return &ret, nil
}

func (c *Client) GetPlugins(ctx context.Context) ([]leebee.Descriptor, error) {
	var ret []leebee.Descriptor
	err := c.Call(ctx, "GetPlugins", 0, &ret)
	return ret, err
}

func (c *Client) CreateTrack(ctx context.Context, name string, plugins ...string) (leebee.TrackID, error) {
	var id leebee.TrackID
	err := c.Call(ctx, "CreateTrack", CreateTrackArgs{Name: name, Plugins: plugins}, &id)
	return id, err
}

func (c *Client) DeleteTracks(ctx context.Context, tracks ...leebee.TrackID) error {
	return c.Call(ctx, "DeleteTracks", DeleteTracksArgs{Tracks: tracks}, new(int))
}

// LoadPlugin appends a plugin to a track and returns the instance id.
func (c *Client) LoadPlugin(ctx context.Context, track leebee.TrackID, plugin string) (string, error) {
	var id string
	err := c.Call(ctx, "LoadPlugin", LoadPluginArgs{Track: track, Plugin: plugin, Slot: -1}, &id)
	return id, err
}

func (c *Client) SetParameter(ctx context.Context, track leebee.TrackID, slot, port int, value float32) error {
	return c.Call(ctx, "SetParameter", ParameterArgs{Track: track, Slot: slot, Port: port, Value: value}, new(int))
}

func (c *Client) CreatePattern(ctx context.Context, length int64, loop bool) (leebee.PatternID, error) {
	var id leebee.PatternID
	err := c.Call(ctx, "CreatePattern", CreatePatternArgs{Length: length, Loop: loop}, &id)
	return id, err
}

func (c *Client) AddEvent(ctx context.Context, pattern leebee.PatternID, ev leebee.Event) error {
	return c.Call(ctx, "AddEvent", EventArgs{Pattern: pattern, Event: ev}, new(int))
}

func (c *Client) SetTrackPattern(ctx context.Context, track leebee.TrackID, pattern leebee.PatternID) error {
	return c.Call(ctx, "SetTrackPattern", AssignArgs{Track: track, Pattern: pattern}, new(int))
}

func (c *Client) StartTransport(ctx context.Context) error {
	return c.Call(ctx, "StartTransport", 0, new(int))
}

func (c *Client) StopTransport(ctx context.Context) error {
	return c.Call(ctx, "StopTransport", 0, new(int))
}

func (c *Client) SetTempo(ctx context.Context, bpm float64) error {
	return c.Call(ctx, "SetTempo", TempoArgs{BPM: bpm}, new(int))
}

func (c *Client) Seek(ctx context.Context, tick int64) error {
	return c.Call(ctx, "Seek", SeekArgs{Tick: tick}, new(int))
}
