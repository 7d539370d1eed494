package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mini-leebee/leebee/api"
	"github.com/mini-leebee/leebee/cmd"
	"github.com/mini-leebee/leebee/config"
	"github.com/mini-leebee/leebee/engine"
	"github.com/mini-leebee/leebee/mcpserver"
	"github.com/mini-leebee/leebee/plugins"
	"github.com/mini-leebee/leebee/rpc"
	"github.com/mini-leebee/leebee/version"
)

const (
	shutdownTimeout = 10 * time.Second
	collectEvery    = 100 * time.Millisecond
	streamEvery     = 50 * time.Millisecond
)

func main() {
	configFile := flag.String("config", "", "read the configuration from `file` instead of ./leebee.yml")
	backend := flag.String("backend", "", "audio backend, oto or null; overrides audio.backend")
	midiInput := flag.String("midi-input", "", "connect MIDI input to the device whose name contains this; overrides midi.input")
	mcp := flag.Bool("mcp", false, "serve MCP tools on stdin/stdout")
	verbose := flag.Bool("v", false, "log every request")
	versionFlag := flag.Bool("version", false, "print version and exit")
	cpuprofile := flag.String("cpuprofile", "", "write cpu profile to `file`")
	memprofile := flag.String("memprofile", "", "write memory profile to `file` at exit")
	flag.Usage = printUsage
	flag.Parse()
	if *versionFlag {
		fmt.Println(version.Describe("leebee"))
		os.Exit(0)
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Fatalf("[leebee] failed to load config: %v", err)
	}
	if isFlagPassed("backend") {
		cfg.Audio.Backend = *backend
	}
	if isFlagPassed("midi-input") {
		cfg.MIDI.Input = *midiInput
	}
	cfg.Server.MCP = cfg.Server.MCP || *mcp
	cfg.Log.Verbose = cfg.Log.Verbose || *verbose
	if err := cfg.Validate(); err != nil {
		log.Fatalf("[leebee] %v", err)
	}
	log.Printf("[leebee] %s", version.Describe("leebee"))
	stopProfiling, err := cmd.StartProfiling(*cpuprofile, *memprofile)
	if err != nil {
		log.Fatalf("[leebee] %v", err)
	}

	factories, err := plugins.All(cfg.Plugins.Index)
	if err != nil {
		log.Fatalf("[leebee] failed to load plugins: %v", err)
	}
	host, err := engine.NewHost(factories...)
	if err != nil {
		log.Fatalf("[leebee] %v", err)
	}
	opts := cfg.EngineOptions()
	opts.Metronome = plugins.Click{}
	e, err := engine.New(opts)
	if err != nil {
		log.Fatalf("[leebee] failed to create engine: %v", err)
	}
	ctrl := engine.NewController(e, host)

	audio, err := cmd.OpenAudio(cfg.Audio, e)
	if err != nil {
		log.Fatalf("[leebee] failed to open audio: %v", err)
	}
	log.Printf("[leebee] %s audio at %d Hz, %d frames per block", cfg.Audio.Backend, audio.SampleRate(), audio.BlockSize())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go ctrl.Run(ctx, collectEvery)

	if cfg.Metronome.Volume > 0 {
		if err := ctrl.SetMetronome(ctx, float32(cfg.Metronome.Volume)); err != nil {
			log.Printf("[leebee] failed to set the metronome: %v", err)
		}
	}

	if cfg.MIDI.Input != "" {
		if input := cmd.OpenMIDI(cfg.MIDI.Input, ctrl); input != nil {
			defer input.Close()
		}
	}

	rpcServer, err := rpc.Listen(rpc.NewService(ctrl, rpc.DefaultTimeout, cfg.Log.Verbose), cfg.Server.RPCAddr)
	if err != nil {
		log.Fatalf("[leebee] %v", err)
	}
	go func() {
		log.Printf("[leebee] RPC listening on %s", rpcServer.Addr())
		if err := rpcServer.Serve(); err != nil {
			log.Printf("[leebee] RPC server error: %v", err)
		}
	}()

	hub := api.NewHub(ctrl, streamEvery)
	go hub.Run(ctx)
	app := api.New(ctrl, hub, api.Options{Timeout: rpc.DefaultTimeout, Verbose: cfg.Log.Verbose})
	go func() {
		log.Printf("[leebee] HTTP listening on %s", cfg.Server.HTTPAddr)
		if err := app.Listen(cfg.Server.HTTPAddr); err != nil {
			log.Printf("[leebee] HTTP server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	if cfg.Server.MCP {
		go func() {
			if err := mcpserver.New(ctrl, version.VersionOrHash).ServeStdio(); err != nil {
				log.Printf("[mcp] %v", err)
			}
			// stdin closed: the client is gone
			quit <- syscall.SIGTERM
		}()
	}
	<-quit

	log.Println("[leebee] shutting down...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Printf("[leebee] HTTP shutdown error: %v", err)
	}
	if err := rpcServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("[leebee] RPC shutdown error: %v", err)
	}
	if err := ctrl.Shutdown(shutdownCtx); err != nil {
		log.Printf("[leebee] engine shutdown error: %v", err)
	}
	if err := audio.Close(); err != nil {
		log.Printf("[leebee] audio close error: %v", err)
	}
	if err := stopProfiling(); err != nil {
		log.Printf("[leebee] %v", err)
	}
}

func printUsage() {
	fmt.Fprintf(flag.CommandLine.Output(), "leebee serves a real-time sequencer and plugin host over RPC, HTTP and MCP.\nUsage: %s [flags]\n", os.Args[0])
	flag.PrintDefaults()
}

func isFlagPassed(name string) bool {
	found := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			found = true
		}
	})
	return found
}
