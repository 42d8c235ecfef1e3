// Command labctl is the interactive host-side console for a labctrl module:
// type G-code lines at the prompt and watch the acks/errors come back. With
// no flags it runs the whole task graph in-process against simpolicy's
// deterministic fakes, so the REPL works without any hardware attached. Pass
// -device to instead open a real serial port and relay lines straight
// through to whatever firmware is listening on the other end.
package main

import (
	"bufio"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/urfave/cli"

	"labctrl/config"
	"labctrl/kernel"
	"labctrl/serialtransport"
	"labctrl/simpolicy"
	"labctrl/tasks/thermal"
)

var (
	okColor  = color.New(color.FgGreen)
	errColor = color.New(color.FgRed)
)

func main() {
	app := cli.NewApp()
	app.Name = "labctl"
	app.Usage = "send G-code to a labctrl module and watch the replies"
	app.Version = "0.1.0"
	app.Flags = []cli.Flag{
		cli.StringFlag{Name: "config", Usage: "TOML configuration file (overlays the built-in defaults)"},
		cli.StringFlag{Name: "device", Usage: "serial device to relay lines to, e.g. /dev/ttyACM0 (omit to run the in-process simulator)"},
		cli.IntFlag{Name: "channels", Value: 1, Usage: "number of plate thermal channels to simulate"},
	}
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx *cli.Context) error {
	cfg := config.Defaults
	if file := ctx.String("config"); file != "" {
		loaded, err := config.Load(file)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		cfg = loaded
	}

	if device := ctx.String("device"); device != "" {
		return runPassthrough(cfg, device)
	}
	return runSimulator(cfg, ctx.Int("channels"))
}

// runPassthrough relays stdin lines straight to a real serial port and
// prints whatever comes back, with no firmware task graph involved: the
// module on the other end of the wire does all the work.
func runPassthrough(cfg config.Config, device string) error {
	scfg := serialtransport.Config{
		Device:            device,
		BaudRate:          cfg.Serial.BaudRate,
		ReadTimeoutMillis: cfg.Serial.ReadTimeoutMillis,
	}
	transport, err := serialtransport.Open(scfg)
	if err != nil {
		return fmt.Errorf("opening %s: %w", device, err)
	}
	defer transport.Close()

	fmt.Printf("connected to %s at %d baud. Ctrl-D to quit.\n", device, cfg.Serial.BaudRate)
	go printReplies(transport.ReadAvailable)
	return readStdin(func(line string) {
		transport.Write([]byte(line + "\n"))
	})
}

// pollTransport is satisfied by both serialtransport.Transport and replTransport.
type pollTransport interface {
	ReadAvailable() []byte
}

func printReplies(readAvailable func() []byte) {
	for {
		buf := readAvailable()
		if len(buf) > 0 {
			printColorized(string(buf))
			continue
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func printColorized(s string) {
	for _, line := range splitLines(s) {
		if line == "" {
			continue
		}
		if len(line) >= 3 && line[:3] == "ERR" {
			errColor.Println(line)
		} else {
			okColor.Println(line)
		}
	}
}

func splitLines(s string) []string {
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	if start < len(s) {
		out = append(out, s[start:])
	}
	return out
}

// runSimulator builds a full kernel.Runtime backed by simpolicy fakes and
// an in-process transport fed from stdin, so the REPL exercises the real
// G-code parser, aggregator routing, and task state machines without any
// hardware attached.
func runSimulator(cfg config.Config, plateChannels int) error {
	channels := make([]thermal.Channel, plateChannels)
	transport := newReplTransport()

	rt := kernel.New(cfg, kernel.Policies{
		System: simpolicy.NewSystem(),
		Plate:  simpolicy.NewThermal(),
		Lid:    simpolicy.NewThermal(),
		Motor:  simpolicy.NewMotor(),
	}, channels, []thermal.Channel{{}}, transport)

	stop := make(chan struct{})
	go func() {
		for {
			select {
			case <-stop:
				return
			default:
				rt.StepAll()
				time.Sleep(time.Millisecond)
			}
		}
	}()
	defer close(stop)

	fmt.Println("labctl simulator ready. Type G-code lines, Ctrl-D to quit.")
	go printReplies(transport.Outgoing)
	return readStdin(func(line string) {
		transport.Feed([]byte(line + "\n"))
	})
}

func readStdin(handle func(line string)) error {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		handle(line)
	}
	return scanner.Err()
}

// replTransport is the simulator's policy.Transport: Feed stages bytes as
// if they'd arrived over the wire, ReadAvailable hands those staged bytes to
// the runtime, and Outgoing returns what the runtime has written back.
type replTransport struct {
	mu      sync.Mutex
	pending []byte
	written chan []byte
}

func newReplTransport() *replTransport {
	return &replTransport{written: make(chan []byte, 64)}
}

func (r *replTransport) Feed(b []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending = append(r.pending, b...)
}

func (r *replTransport) ReadAvailable() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.pending) == 0 {
		return nil
	}
	out := r.pending
	r.pending = nil
	return out
}

func (r *replTransport) Write(p []byte) (int, error) {
	cp := make([]byte, len(p))
	copy(cp, p)
	select {
	case r.written <- cp:
	default:
	}
	return len(p), nil
}

// Outgoing returns the next chunk the runtime has written back, or nil if
// none is pending, without blocking (matching pollTransport's contract).
func (r *replTransport) Outgoing() []byte {
	select {
	case b := <-r.written:
		return b
	default:
		return nil
	}
}

var _ pollTransport = (*replTransport)(nil)
