// Package interactive provides the interactive command-line interface
// for hub-probe.
package interactive

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/chzyer/readline"

	"github.com/hubwire-protocol/hubwire-go/pkg/hub"
	"github.com/hubwire-protocol/hubwire-go/pkg/transport"
)

// commandTimeout bounds start/stop issued from the prompt.
const commandTimeout = 2 * time.Minute

// Probe handles interactive mode for hub-probe.
type Probe struct {
	sup  *hub.Supervisor
	conn *transport.Conn
	rl   *readline.Instance
}

// New creates a new interactive probe handler.
func New(sup *hub.Supervisor, conn *transport.Conn) (*Probe, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "hub> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}

	return &Probe{sup: sup, conn: conn, rl: rl}, nil
}

// Stdout returns a writer that coordinates with the readline prompt.
// Use this for log output to avoid interfering with input.
func (p *Probe) Stdout() io.Writer {
	return p.rl.Stdout()
}

// Run starts the interactive command loop.
func (p *Probe) Run(ctx context.Context, cancel context.CancelFunc) {
	defer p.rl.Close()

	p.printHelp()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := p.rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			}
			fmt.Fprintln(p.rl.Stdout(), "Exiting...")
			cancel()
			return
		}

		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}

		parts := strings.Fields(input)
		cmd := strings.ToLower(parts[0])
		args := parts[1:]

		switch cmd {
		case "help", "?":
			p.printHelp()

		case "start":
			p.cmdStart(ctx)

		case "stop":
			p.cmdStop(ctx)

		case "state", "s":
			p.cmdState()

		case "send":
			p.cmdSend(args)

		case "quit", "exit", "q":
			fmt.Fprintln(p.rl.Stdout(), "Exiting...")
			cancel()
			return

		default:
			fmt.Fprintf(p.rl.Stdout(), "Unknown command: %s (try 'help')\n", cmd)
		}
	}
}

func (p *Probe) printHelp() {
	out := p.rl.Stdout()
	fmt.Fprintln(out, "Commands:")
	fmt.Fprintln(out, "  start        - Connect to the hub (retries with backoff)")
	fmt.Fprintln(out, "  stop         - Disconnect from the hub")
	fmt.Fprintln(out, "  state, s     - Show connection state")
	fmt.Fprintln(out, "  send <text>  - Send a data payload")
	fmt.Fprintln(out, "  quit, q      - Exit")
}

func (p *Probe) cmdStart(ctx context.Context) {
	cmdCtx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	if err := p.sup.Start(cmdCtx); err != nil {
		fmt.Fprintf(p.rl.Stdout(), "Start failed: %v\n", err)
		return
	}
	fmt.Fprintf(p.rl.Stdout(), "State: %s\n", p.sup.State())
}

func (p *Probe) cmdStop(ctx context.Context) {
	cmdCtx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	if err := p.sup.Stop(cmdCtx); err != nil {
		fmt.Fprintf(p.rl.Stdout(), "Stop failed: %v\n", err)
		return
	}
	fmt.Fprintln(p.rl.Stdout(), "Disconnected")
}

func (p *Probe) cmdState() {
	out := p.rl.Stdout()
	fmt.Fprintf(out, "State:         %s\n", p.sup.State())
	if id := p.sup.ConnectionID(); id != "" {
		fmt.Fprintf(out, "Connection ID: %s\n", id)
	}
}

func (p *Probe) cmdSend(args []string) {
	if len(args) == 0 {
		fmt.Fprintln(p.rl.Stdout(), "Usage: send <text>")
		return
	}

	payload := strings.Join(args, " ")
	if err := p.conn.Send([]byte(payload)); err != nil {
		fmt.Fprintf(p.rl.Stdout(), "Send failed: %v\n", err)
		return
	}
	fmt.Fprintf(p.rl.Stdout(), "Sent %d bytes\n", len(payload))
}
