// Command hub-probe is a diagnostic client for hubwire endpoints.
//
// It connects to a hub, keeps the connection alive through the supervisor's
// reconnection logic, and prints lifecycle events as they fire. Use it to
// verify endpoint reachability, credentials, and reconnection behavior.
//
// Usage:
//
//	hub-probe [flags]
//
// Flags:
//
//	-config string       Configuration file path (YAML)
//	-endpoint string     Hub endpoint URL (ws:// or wss://)
//	-token string        Static bearer token for the handshake
//	-retries int         Max retry attempts per reconnection cycle (default 10)
//	-retry-delay string  Base retry delay, Go duration syntax (default "1s")
//	-keepalive string    Ping interval, Go duration syntax (default transport setting)
//	-resume              Enable stateful session resume
//	-interactive         Enable interactive command mode
//	-event-log string    Capture lifecycle events to a CBOR file
//	-dump string         Print a captured event file and exit
//
// Examples:
//
//	# Probe an endpoint and watch lifecycle events
//	hub-probe -endpoint wss://hub.example.com/wire
//
//	# Interactive session with resume enabled
//	hub-probe -endpoint wss://hub.example.com/wire -resume -interactive
//
//	# Load settings from a file
//	hub-probe -config probe.yaml -interactive
//
//	# Capture events, then inspect them later
//	hub-probe -endpoint wss://hub.example.com/wire -event-log events.cbor
//	hub-probe -dump events.cbor
//
// Interactive Commands:
//
//	start        - Connect to the hub (retries with backoff)
//	stop         - Disconnect from the hub
//	state        - Show connection state
//	send <text>  - Send a data payload
//	quit         - Exit
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hubwire-protocol/hubwire-go/cmd/hub-probe/interactive"
	"github.com/hubwire-protocol/hubwire-go/pkg/hub"
	"github.com/hubwire-protocol/hubwire-go/pkg/hublog"
	"github.com/hubwire-protocol/hubwire-go/pkg/transport"
)

var (
	configFile    string
	endpoint      string
	token         string
	retries       int
	retryDelay    string
	keepalive     string
	resume        bool
	interactiveUI bool
	eventLog      string
	dumpFile      string
)

func init() {
	flag.StringVar(&configFile, "config", "", "Configuration file path (YAML)")
	flag.StringVar(&endpoint, "endpoint", "", "Hub endpoint URL (ws:// or wss://)")
	flag.StringVar(&token, "token", "", "Static bearer token for the handshake")
	flag.IntVar(&retries, "retries", hub.DefaultMaxRetryAttempts, "Max retry attempts per reconnection cycle")
	flag.StringVar(&retryDelay, "retry-delay", "", "Base retry delay (e.g. 500ms, 2s)")
	flag.StringVar(&keepalive, "keepalive", "", "Ping interval (e.g. 15s)")
	flag.BoolVar(&resume, "resume", false, "Enable stateful session resume")
	flag.BoolVar(&interactiveUI, "interactive", false, "Enable interactive command mode")
	flag.StringVar(&eventLog, "event-log", "", "Capture lifecycle events to a CBOR file")
	flag.StringVar(&dumpFile, "dump", "", "Print a captured event file and exit")
}

func main() {
	flag.Parse()
	log.SetFlags(log.Ltime | log.Lmicroseconds)

	if dumpFile != "" {
		if err := dumpEvents(dumpFile); err != nil {
			log.Fatalf("Failed to dump %s: %v", dumpFile, err)
		}
		return
	}

	cfg, err := buildConfig()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	cfg.OnClosed = func(err error) {
		if err != nil {
			log.Printf("[EVENT] Connection closed: %v", err)
		} else {
			log.Printf("[EVENT] Connection closed")
		}
	}
	cfg.OnReconnecting = func(err error) {
		if err != nil {
			log.Printf("[EVENT] Reconnecting after: %v", err)
		} else {
			log.Printf("[EVENT] Reconnecting...")
		}
	}
	cfg.OnReconnected = func(connectionID string) {
		log.Printf("[EVENT] Reconnected (connection: %s)", connectionID)
	}
	cfg.OnRetriesExhausted = func() {
		log.Printf("[EVENT] Retry budget exhausted; waiting for next trigger")
	}

	logger := hublog.Logger(hublog.NoopLogger{})
	if cfg.EnableLogging {
		logger = hublog.NewSlogAdapter(slog.New(slog.NewTextHandler(os.Stderr, nil)))
	}
	if eventLog != "" {
		capture, err := hublog.NewFileLogger(eventLog)
		if err != nil {
			log.Fatalf("Failed to open event log: %v", err)
		}
		defer capture.Close()
		logger = hublog.NewMultiLogger(logger, capture)
		log.Printf("Capturing lifecycle events to %s", eventLog)
	}

	keepAlive := transport.DefaultKeepAliveConfig()
	if cfg.KeepAliveInterval > 0 {
		keepAlive.PingInterval = cfg.KeepAliveInterval
	}

	conn := transport.NewConn(transport.ConnConfig{
		Endpoint:         cfg.EndpointURL,
		Headers:          cfg.Headers,
		TokenProvider:    cfg.TokenProvider,
		KeepAlive:        keepAlive,
		StatefulResume:   cfg.StatefulResume,
		ResumeBufferSize: cfg.ResumeBufferSize,
		Logger:           logger,
	})
	conn.SetMessageHandler(func(payload []byte) {
		log.Printf("[DATA] %s", payload)
	})

	sup, err := hub.NewWithConnection(*cfg, conn, logger)
	if err != nil {
		log.Fatalf("Failed to create supervisor: %v", err)
	}
	defer sup.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	log.Printf("Probing %s", cfg.EndpointURL)
	if err := sup.Start(ctx); err != nil {
		log.Printf("Start failed: %v", err)
	} else {
		log.Printf("State: %s", sup.State())
	}

	if interactiveUI {
		probe, err := interactive.New(sup, conn)
		if err != nil {
			log.Fatalf("Failed to create interactive probe: %v", err)
		}
		// Route log output through readline to keep the prompt intact.
		log.SetOutput(probe.Stdout())
		go probe.Run(ctx, cancel)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Printf("Received signal: %v", sig)
	case <-ctx.Done():
		// Cancelled by the interactive quit command.
	}

	log.Println("Shutting down...")
}

// buildConfig merges the config file (when given) with command-line flags.
// Flags override file values.
func buildConfig() (*hub.Config, error) {
	cfg := &hub.Config{
		MaxRetryAttempts:  hub.DefaultMaxRetryAttempts,
		InitialRetryDelay: hub.DefaultInitialRetryDelay,
		EnableLogging:     true,
	}

	if configFile != "" {
		loaded, err := hub.LoadConfig(configFile)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if endpoint != "" {
		cfg.EndpointURL = endpoint
	}
	if flagWasSet("retries") {
		cfg.MaxRetryAttempts = retries
	}
	if retryDelay != "" {
		d, err := time.ParseDuration(retryDelay)
		if err != nil {
			return nil, err
		}
		cfg.InitialRetryDelay = d
	}
	if keepalive != "" {
		d, err := time.ParseDuration(keepalive)
		if err != nil {
			return nil, err
		}
		cfg.KeepAliveInterval = d
	}
	if resume {
		cfg.StatefulResume = true
	}
	if token != "" {
		staticToken := token
		cfg.TokenProvider = func(ctx context.Context) (string, error) {
			return staticToken, nil
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// dumpEvents prints a captured event file, one event per line.
func dumpEvents(path string) error {
	r, err := hublog.NewReader(path)
	if err != nil {
		return err
	}
	defer r.Close()

	for {
		event, err := r.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		ts := event.Timestamp.Format(time.RFC3339Nano)
		switch {
		case event.StateChange != nil:
			fmt.Printf("%s [%s] %s: %s -> %s (%s)\n", ts, event.Category,
				event.ConnectionID, event.StateChange.OldState,
				event.StateChange.NewState, event.StateChange.Reason)
		case event.Retry != nil:
			fmt.Printf("%s [%s] %s: attempt %d failed, waiting %s: %s\n", ts,
				event.Category, event.ConnectionID, event.Retry.Attempt,
				event.Retry.Delay, event.Retry.Cause)
		case event.Error != nil:
			fmt.Printf("%s [%s] %s: %s\n", ts, event.Category,
				event.ConnectionID, event.Error.Message)
		default:
			fmt.Printf("%s [%s] %s\n", ts, event.Category, event.ConnectionID)
		}
	}
}

func flagWasSet(name string) bool {
	set := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return set
}
