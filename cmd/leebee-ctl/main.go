package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/mini-leebee/leebee"
	"github.com/mini-leebee/leebee/rpc"
	"github.com/mini-leebee/leebee/version"
)

var errUsage = errors.New("invalid arguments")

const commands = `Commands:
  state                         print the engine state
  plugins                       list the plugins and their control ports
  track NAME [PLUGIN...]        create a track
  delete TRACK...               delete tracks
  load TRACK PLUGIN             append a plugin to a track
  param TRACK SLOT PORT VALUE   set a control port
  pattern BEATS                 create an empty looping pattern
  import FILE [TRACK]           create a pattern from a YAML file, optionally assigning it
  assign TRACK PATTERN          make a track play a pattern
  start | stop                  start or stop the transport
  tempo BPM                     set the tempo
  seek BEAT                     move the play position
`

func main() {
	addr := flag.String("addr", "127.0.0.1:21894", "address of the leebee RPC server")
	tmplFile := flag.String("t", "", "print state and plugins with the Go template in this file instead of the default")
	timeout := flag.Duration("timeout", rpc.DefaultTimeout, "give up on a command after this long")
	versionFlag := flag.Bool("v", false, "Print version.")
	flag.Usage = printUsage
	flag.Parse()
	if *versionFlag {
		fmt.Println(version.VersionOrHash)
		os.Exit(0)
	}
	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(0)
	}
	var tmpl string
	if *tmplFile != "" {
		b, err := os.ReadFile(*tmplFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "could not read template: %v\n", err)
			os.Exit(1)
		}
		tmpl = string(b)
	}
	c, err := rpc.Dial(*addr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "could not connect: %v\n", err)
		os.Exit(1)
	}
	defer c.Close()
	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()
	if err := run(ctx, c, os.Stdout, tmpl, flag.Args()); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", flag.Arg(0), err)
		if errors.Is(err, errUsage) {
			fmt.Fprint(os.Stderr, commands)
		}
		os.Exit(1)
	}
}

func run(ctx context.Context, c *rpc.Client, w io.Writer, tmpl string, args []string) error {
	cmd, args := args[0], args[1:]
	switch cmd {
	case "state":
		state, err := c.GetState(ctx)
		if err != nil {
			return err
		}
		return render(w, "state", or(tmpl, stateTemplate), state)
	case "plugins":
		descs, err := c.GetPlugins(ctx)
		if err != nil {
			return err
		}
		return render(w, "plugins", or(tmpl, pluginsTemplate), descs)
	case "track":
		if len(args) < 1 {
			return errUsage
		}
		id, err := c.CreateTrack(ctx, args[0], args[1:]...)
		if err != nil {
			return err
		}
		fmt.Fprintln(w, id)
	case "delete":
		ids := make([]leebee.TrackID, len(args))
		for i, a := range args {
			v, err := strconv.Atoi(a)
			if err != nil {
				return fmt.Errorf("%w: %v", errUsage, err)
			}
			ids[i] = leebee.TrackID(v)
		}
		if len(ids) == 0 {
			return errUsage
		}
		return c.DeleteTracks(ctx, ids...)
	case "load":
		if len(args) != 2 {
			return errUsage
		}
		track, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("%w: %v", errUsage, err)
		}
		id, err := c.LoadPlugin(ctx, leebee.TrackID(track), args[1])
		if err != nil {
			return err
		}
		fmt.Fprintln(w, id)
	case "param":
		if len(args) != 4 {
			return errUsage
		}
		ints, err := atois(args[:3])
		if err != nil {
			return err
		}
		value, err := strconv.ParseFloat(args[3], 32)
		if err != nil {
			return fmt.Errorf("%w: %v", errUsage, err)
		}
		return c.SetParameter(ctx, leebee.TrackID(ints[0]), ints[1], ints[2], float32(value))
	case "pattern":
		if len(args) != 1 {
			return errUsage
		}
		beats, err := strconv.ParseFloat(args[0], 64)
		if err != nil {
			return fmt.Errorf("%w: %v", errUsage, err)
		}
		id, err := c.CreatePattern(ctx, int64(beats*leebee.TicksPerBeat), true)
		if err != nil {
			return err
		}
		fmt.Fprintln(w, id)
	case "import":
		if len(args) < 1 || len(args) > 2 {
			return errUsage
		}
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()
		p, err := readPattern(f)
		if err != nil {
			return err
		}
		id, err := upload(ctx, c, p)
		if err != nil {
			return err
		}
		if len(args) == 2 {
			track, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("%w: %v", errUsage, err)
			}
			if err := c.SetTrackPattern(ctx, leebee.TrackID(track), id); err != nil {
				return err
			}
		}
		fmt.Fprintln(w, id)
	case "assign":
		if len(args) != 2 {
			return errUsage
		}
		ints, err := atois(args)
		if err != nil {
			return err
		}
		return c.SetTrackPattern(ctx, leebee.TrackID(ints[0]), leebee.PatternID(ints[1]))
	case "start":
		return c.StartTransport(ctx)
	case "stop":
		return c.StopTransport(ctx)
	case "tempo":
		if len(args) != 1 {
			return errUsage
		}
		bpm, err := strconv.ParseFloat(args[0], 64)
		if err != nil {
			return fmt.Errorf("%w: %v", errUsage, err)
		}
		return c.SetTempo(ctx, bpm)
	case "seek":
		if len(args) != 1 {
			return errUsage
		}
		beat, err := strconv.ParseFloat(args[0], 64)
		if err != nil {
			return fmt.Errorf("%w: %v", errUsage, err)
		}
		return c.Seek(ctx, int64(beat*leebee.TicksPerBeat))
	default:
		return fmt.Errorf("%w: unknown command %q", errUsage, cmd)
	}
	return nil
}

// readPattern reads a pattern from YAML. Its id is ignored.
//
//	length: 3840
//	loop: true
//	events:
//	  - {tick: 0, kind: note_on, pitch: 60, velocity: 100, duration: 480}
func readPattern(r io.Reader) (*leebee.Pattern, error) {
	var p leebee.Pattern
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil {
		return nil, fmt.Errorf("could not read pattern: %v", err)
	}
	if p.Length <= 0 {
		return nil, fmt.Errorf("pattern length must be positive, got %d", p.Length)
	}
	if len(p.Events) > leebee.MaxPatternEvents {
		return nil, fmt.Errorf("pattern has %d events, at most %d fit", len(p.Events), leebee.MaxPatternEvents)
	}
	for i, ev := range p.Events {
		if err := ev.Validate(p.Length); err != nil {
			return nil, fmt.Errorf("event %d: %w", i, err)
		}
	}
	return &p, nil
}

func upload(ctx context.Context, c *rpc.Client, p *leebee.Pattern) (leebee.PatternID, error) {
	id, err := c.CreatePattern(ctx, p.Length, p.Loop)
	if err != nil {
		return 0, err
	}
	for _, ev := range p.Events {
		if err := c.AddEvent(ctx, id, ev); err != nil {
			return id, err
		}
	}
	return id, nil
}

func atois(args []string) ([]int, error) {
	ret := make([]int, len(args))
	for i, a := range args {
		v, err := strconv.Atoi(a)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", errUsage, err)
		}
		ret[i] = v
	}
	return ret, nil
}

func or(a, b string) string {
	if a != "" {
		return a
	}
	return b
}

func printUsage() {
	fmt.Fprintf(os.Stderr, "leebee-ctl controls a running leebee server.\nUsage: %s [flags] command [args]\n", os.Args[0])
	flag.PrintDefaults()
	fmt.Fprint(os.Stderr, commands)
}
