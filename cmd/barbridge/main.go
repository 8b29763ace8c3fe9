package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"barbridge/internal/adapter/compositor"
	"barbridge/internal/adapter/gateway"
	"barbridge/internal/adapter/network"
	"barbridge/internal/infra/config"
	"barbridge/internal/infra/logger"
	"barbridge/internal/infra/tracer"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "--help", "-h", "help":
			showUsage()
			return
		}
	}

	if len(os.Args) < 2 || strings.HasPrefix(os.Args[1], "-") {
		if err := run(); err != nil {
			fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
			os.Exit(1)
		}
		return
	}

	switch os.Args[1] {
	case "doctor":
		if err := runDoctor(); err != nil {
			fmt.Fprintf(os.Stderr, "doctor: %v\n", err)
			os.Exit(1)
		}
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\nRun 'barbridge --help' for usage information.\n", os.Args[1])
		os.Exit(1)
	}
}

func showUsage() {
	fmt.Println(`barbridge - compositor and system event bridge

USAGE:
    barbridge [COMMAND] [FLAGS]

COMMANDS:
    doctor      Run health checks on the local setup

    (no command) - Run the bridge daemon

FLAGS:
    -h, --help         Show this help message
    --config PATH      Specify config file path (default: ./config.yaml)

CONFIGURATION:
    Config file: ./config.yaml
    Environment: BARBRIDGE_* variables override config

EXAMPLES:
    barbridge                    # Stream events as JSON lines on stdout
    barbridge --config /etc/barbridge.yaml
    barbridge doctor             # Check compositor socket and system bus`)
}

func run() error {
	// 1. Config
	cfg, err := config.Load(configPath())
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	// 2. Logger & Tracer
	log, logCloser, err := logger.New(cfg.Logger)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer logCloser()

	ctx := context.Background()
	tracerShutdown, err := tracer.Setup(ctx, cfg.Tracer)
	if err != nil {
		return fmt.Errorf("tracer: %w", err)
	}
	defer tracerShutdown(ctx)

	// 3. Graceful shutdown
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// 4. Compositor source
	comp := compositor.NewClient(cfg.Compositor, log)
	defer comp.Close()

	workspaceCh, wsCancel, err := comp.SubscribeWorkspaces(ctx)
	if err != nil {
		return fmt.Errorf("subscribe workspaces: %w", err)
	}
	defer wsCancel()

	keymodeCh, kmCancel, err := comp.SubscribeKeymode(ctx)
	if err != nil {
		return fmt.Errorf("subscribe keymode: %w", err)
	}
	defer kmCancel()

	// 5. Network source
	var wg sync.WaitGroup
	errCh := make(chan error, 2)

	var networkCh <-chan string
	if cfg.Network.Enabled {
		nm, err := network.NewClient(cfg.Network, log)
		if err != nil {
			return fmt.Errorf("network: %w", err)
		}
		defer nm.Close()

		ch, netCancel := nm.Subscribe()
		defer netCancel()
		networkCh = stateStrings(ch)

		wg.Add(1)
		go func() {
			defer wg.Done()
			// A dead network source stops its stream; the rest of the
			// bridge keeps running.
			if err := nm.Run(ctx); err != nil {
				log.Error("network bridge stopped", "error", err)
			}
		}()
	}

	// 6. Sinks
	if cfg.Gateway.Enabled {
		srv := gateway.NewServer(
			gateway.NewStaticTokenAuth(cfg.Gateway.Tokens),
			cfg.Gateway.Addr, cfg.Gateway.RequestsPerMin, log,
		)
		registerRPC(srv, comp)

		go gateway.Forward(srv, gateway.TopicWorkspace, workspaceCh)
		go gateway.Forward(srv, gateway.TopicKeymode, keymodeCh)
		if networkCh != nil {
			go gateway.Forward(srv, gateway.TopicNetwork, networkCh)
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := srv.Start(ctx); err != nil {
				errCh <- fmt.Errorf("gateway: %w", err)
				cancel()
			}
		}()
		defer func() {
			stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer stopCancel()
			if err := srv.Stop(stopCtx); err != nil {
				log.Error("gateway stop error", "error", err)
			}
		}()
	} else {
		streamStdout(ctx, &wg, workspaceCh, keymodeCh, networkCh)
	}

	log.Info("barbridge started",
		"network", cfg.Network.Enabled,
		"gateway", cfg.Gateway.Enabled,
	)

	<-ctx.Done()
	wg.Wait()

	select {
	case err := <-errCh:
		return err
	default:
		return nil
	}
}

// streamStdout prints every bridged event as one JSON object per line.
// This is the default sink when the gateway is disabled.
func streamStdout[W, K any](ctx context.Context, wg *sync.WaitGroup, workspaceCh <-chan W, keymodeCh <-chan K, networkCh <-chan string) {
	var mu sync.Mutex
	enc := json.NewEncoder(os.Stdout)

	emit := func(topic string, payload any) {
		mu.Lock()
		defer mu.Unlock()
		_ = enc.Encode(stdoutLine{Topic: topic, Payload: payload})
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-workspaceCh:
				if !ok {
					return
				}
				emit(gateway.TopicWorkspace, ev)
			case ev, ok := <-keymodeCh:
				if !ok {
					return
				}
				emit(gateway.TopicKeymode, ev)
			case st, ok := <-networkCh:
				if !ok {
					networkCh = nil
					continue
				}
				emit(gateway.TopicNetwork, st)
			}
		}
	}()
}

type stdoutLine struct {
	Topic   string `json:"topic"`
	Payload any    `json:"payload"`
}

// registerRPC wires gateway methods to compositor queries and commands.
func registerRPC(srv *gateway.Server, comp *compositor.Client) {
	srv.RegisterHandler("workspaces", func(ctx context.Context, _ *gateway.ClientInfo, _ json.RawMessage) (json.RawMessage, error) {
		workspaces, err := comp.Workspaces(ctx)
		if err != nil {
			return nil, err
		}
		return json.Marshal(workspaces)
	})

	srv.RegisterHandler("focus", func(ctx context.Context, _ *gateway.ClientInfo, payload json.RawMessage) (json.RawMessage, error) {
		var req struct {
			Name string `json:"name"`
		}
		if err := json.Unmarshal(payload, &req); err != nil {
			return nil, fmt.Errorf("decode focus request: %w", err)
		}
		if req.Name == "" {
			return nil, fmt.Errorf("focus request needs a workspace name")
		}
		if err := comp.FocusWorkspace(ctx, req.Name); err != nil {
			return nil, err
		}
		return json.Marshal(map[string]bool{"ok": true})
	})

	srv.RegisterHandler("version", func(ctx context.Context, _ *gateway.ClientInfo, _ json.RawMessage) (json.RawMessage, error) {
		version, err := comp.Version(ctx)
		if err != nil {
			return nil, err
		}
		return json.Marshal(map[string]string{"version": version})
	})
}

// stateStrings adapts the typed connectivity channel to strings so the
// stdout and gateway sinks serialize it as a plain value.
func stateStrings[T ~string](in <-chan T) <-chan string {
	out := make(chan string, cap(in))
	go func() {
		defer close(out)
		for st := range in {
			out <- string(st)
		}
	}()
	return out
}

func configPath() string {
	for i, arg := range os.Args {
		if arg == "--config" && i+1 < len(os.Args) {
			return os.Args[i+1]
		}
		if strings.HasPrefix(arg, "--config=") {
			return strings.TrimPrefix(arg, "--config=")
		}
	}
	if p := os.Getenv("BARBRIDGE_CONFIG"); p != "" {
		return p
	}
	return "config.yaml"
}
