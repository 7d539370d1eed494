//go:build plugin

package main

import (
	"context"
	"log"
	"time"

	"github.com/mini-leebee/leebee"
	"github.com/mini-leebee/leebee/config"
	"github.com/mini-leebee/leebee/engine"
	"github.com/mini-leebee/leebee/gomidi"
	"github.com/mini-leebee/leebee/plugins"
	"github.com/mini-leebee/leebee/rpc"
	"gitlab.com/gomidi/midi/v2"
	"pipelined.dev/audio/vst2"
)

const (
	pluginID   = 'l'<<24 | 'e'<<16 | 'e'<<8 | 'b'
	pluginName = "Leebee"
)

// hostTime follows the tempo and sample rate the host reports.
type hostTime struct {
	host       vst2.Host
	tempo      float64
	sampleRate float64
}

func (h *hostTime) update() (tempoChanged, rateChanged bool) {
	timeInfo := h.host.GetTimeInfo(vst2.TempoValid)
	if timeInfo == nil {
		return false, false
	}
	if timeInfo.Flags&vst2.TempoValid != 0 && timeInfo.Tempo != 0 && timeInfo.Tempo != h.tempo {
		h.tempo = timeInfo.Tempo
		tempoChanged = true
	}
	if timeInfo.SampleRate > 0 && timeInfo.SampleRate != h.sampleRate {
		h.sampleRate = timeInfo.SampleRate
		rateChanged = true
	}
	return tempoChanged, rateChanged
}

func init() {
	var (
		version = int32(100)
	)
	vst2.PluginAllocator = func(h vst2.Host) (vst2.Plugin, vst2.Dispatcher) {
		cfg, err := config.Load("")
		if err != nil {
			log.Printf("[vsti] %v, using defaults", err)
			cfg = config.Default()
		}
		factories, err := plugins.All(cfg.Plugins.Index)
		if err != nil {
			log.Printf("[vsti] %v, using the built-in plugins", err)
			factories = plugins.Builtins()
		}
		host, _ := engine.NewHost(factories...)
		opts := cfg.EngineOptions()
		opts.Metronome = plugins.Click{}
		e, err := engine.New(opts)
		if err != nil {
			log.Fatalf("[vsti] %v", err)
		}
		ctrl := engine.NewController(e, host)
		ctx, cancel := context.WithCancel(context.Background())
		go ctrl.Run(ctx, 100*time.Millisecond)
		srv, err := rpc.Listen(rpc.NewService(ctrl, rpc.DefaultTimeout, cfg.Log.Verbose), cfg.Server.RPCAddr)
		if err != nil {
			log.Printf("[vsti] no RPC server: %v", err)
		} else {
			go srv.Serve()
		}

		clock := hostTime{host: h, tempo: opts.Tempo, sampleRate: float64(opts.Format.SampleRate)}
		buf := make(leebee.AudioBuffer, opts.Format.BlockSize)
		return vst2.Plugin{
				UniqueID:       pluginID,
				Version:        version,
				InputChannels:  0,
				OutputChannels: 2,
				Name:           pluginName,
				Vendor:         "mini-leebee",
				Category:       vst2.PluginCategorySynth,
				Flags:          vst2.PluginIsSynth,
				ProcessFloatFunc: func(in, out vst2.FloatBuffer) {
					tempoChanged, rateChanged := clock.update()
					if rateChanged {
						f := e.Format()
						f.SampleRate = int(clock.sampleRate)
						if err := e.SetFormat(f); err != nil {
							log.Printf("[vsti] %v", err)
						}
					}
					if tempoChanged && opts.TempoRange.Contains(clock.tempo) {
						ctrl.Submit(engine.SetTempo{BPM: clock.tempo})
					}
					left := out.Channel(0)
					right := out.Channel(1)
					if len(buf) < out.Frames {
						buf = append(buf, make(leebee.AudioBuffer, out.Frames-len(buf))...)
					}
					buf = buf[:out.Frames]
					e.Process(buf)
					for i := 0; i < out.Frames; i++ {
						left[i], right[i] = buf[i][0], buf[i][1]
					}
				},
			}, vst2.Dispatcher{
				CanDoFunc: func(pcds vst2.PluginCanDoString) vst2.CanDoResponse {
					switch pcds {
					case vst2.PluginCanReceiveEvents, vst2.PluginCanReceiveMIDIEvent, vst2.PluginCanReceiveTimeInfo:
						return vst2.YesCanDo
					}
					return vst2.NoCanDo
				},
				ProcessEventsFunc: func(ev *vst2.EventsPtr) {
					for i := 0; i < ev.NumEvents(); i++ {
						a := ev.Event(i)
						switch v := a.(type) {
						case *vst2.MIDIEvent:
							// live notes start at the next block; the frame offset is lost
							data := v.Data
							if n, _, ok := gomidi.Note(midi.Message(data[:])); ok {
								e.PlayLive(n)
							}
						}
					}
				},
				CloseFunc: func() {
					shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), time.Second)
					defer shutdownCancel()
					if srv != nil {
						srv.Shutdown(shutdownCtx)
					}
					// the host stops calling process before close
					go func() {
						buf := make(leebee.AudioBuffer, e.Format().BlockSize)
						for shutdownCtx.Err() == nil {
							e.Process(buf)
							time.Sleep(time.Millisecond)
						}
					}()
					if err := ctrl.Shutdown(shutdownCtx); err != nil {
						log.Printf("[vsti] %v", err)
					}
					cancel()
				},
			}
	}
}

func main() {}
