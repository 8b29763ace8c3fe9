package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"strings"
	"time"

	"github.com/godbus/dbus/v5"

	"barbridge/internal/adapter/compositor"
	"barbridge/internal/infra/config"
)

// CheckStatus represents the result of a health check.
type CheckStatus string

const (
	StatusPass CheckStatus = "PASS"
	StatusWarn CheckStatus = "WARN"
	StatusFail CheckStatus = "FAIL"
)

// CheckResult holds the outcome of a single health check.
type CheckResult struct {
	Name    string
	Status  CheckStatus
	Message string
	Fix     string // optional fix suggestion
}

// Check is a named health check function.
type Check struct {
	Name string
	Fn   func(cfg *config.Config) CheckResult
}

// runDoctor executes all health checks and reports results.
func runDoctor() error {
	cfgPath := configPath()
	cfg, cfgErr := config.Load(cfgPath)
	if cfg == nil {
		cfg = config.Defaults()
	}

	checks := []Check{
		{Name: "Config file", Fn: checkConfigFile(cfgPath, cfgErr)},
		{Name: "Compositor socket", Fn: checkCompositorSocket},
		{Name: "Compositor IPC", Fn: checkCompositorIPC},
		{Name: "System bus", Fn: checkSystemBus},
		{Name: "NetworkManager", Fn: checkNetworkManager},
		{Name: "Gateway address", Fn: checkGatewayAddr},
	}

	fmt.Println("barbridge doctor")
	fmt.Println(strings.Repeat("=", 50))
	fmt.Println()

	var pass, warn, fail int
	for _, check := range checks {
		result := check.Fn(cfg)
		result.Name = check.Name

		fmt.Printf("  %s %s: %s\n", statusIcon(result.Status), result.Name, result.Message)
		if result.Fix != "" {
			fmt.Printf("      Fix: %s\n", result.Fix)
		}

		switch result.Status {
		case StatusPass:
			pass++
		case StatusWarn:
			warn++
		case StatusFail:
			fail++
		}
	}

	fmt.Println()
	fmt.Println(strings.Repeat("-", 50))
	fmt.Printf("Results: %d passed, %d warnings, %d failed\n", pass, warn, fail)

	if fail > 0 {
		fmt.Println("\nFix the FAIL issues above to ensure barbridge runs correctly.")
		return fmt.Errorf("%d check(s) failed", fail)
	}
	if warn > 0 {
		fmt.Println("\nbarbridge should work, but consider addressing the warnings.")
	} else {
		fmt.Println("\nAll checks passed! barbridge is ready to run.")
	}
	return nil
}

func statusIcon(s CheckStatus) string {
	switch s {
	case StatusPass:
		return "[PASS]"
	case StatusWarn:
		return "[WARN]"
	case StatusFail:
		return "[FAIL]"
	default:
		return "[????]"
	}
}

// checkConfigFile returns a check that verifies the config file exists and
// parses correctly. A missing file is a warning: defaults still work.
func checkConfigFile(cfgPath string, cfgErr error) func(*config.Config) CheckResult {
	return func(_ *config.Config) CheckResult {
		if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
			return CheckResult{
				Status:  StatusWarn,
				Message: fmt.Sprintf("no config file at %s, using defaults", cfgPath),
				Fix:     "Create config.yaml or set BARBRIDGE_CONFIG",
			}
		}
		if cfgErr != nil {
			return CheckResult{
				Status:  StatusFail,
				Message: fmt.Sprintf("config error: %v", cfgErr),
				Fix:     "Check config.yaml syntax",
			}
		}
		return CheckResult{
			Status:  StatusPass,
			Message: fmt.Sprintf("config loaded from %s", cfgPath),
		}
	}
}

func checkCompositorSocket(cfg *config.Config) CheckResult {
	path, err := compositor.SocketPath(cfg.Compositor.Socket)
	if err != nil {
		return CheckResult{
			Status:  StatusFail,
			Message: "no compositor socket found",
			Fix:     "Run under sway or i3, or set compositor.socket in config",
		}
	}
	if _, err := os.Stat(path); err != nil {
		return CheckResult{
			Status:  StatusFail,
			Message: fmt.Sprintf("socket %s not accessible: %v", path, err),
			Fix:     "Check that the compositor is running and the socket path is current",
		}
	}
	return CheckResult{Status: StatusPass, Message: path}
}

func checkCompositorIPC(cfg *config.Config) CheckResult {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	client := compositor.NewClient(cfg.Compositor, noopLogger())
	defer client.Close()

	version, err := client.Version(ctx)
	if err != nil {
		return CheckResult{
			Status:  StatusFail,
			Message: fmt.Sprintf("version query failed: %v", err),
			Fix:     "Verify the socket belongs to a sway or i3 instance",
		}
	}
	return CheckResult{Status: StatusPass, Message: fmt.Sprintf("compositor version %s", version)}
}

func checkSystemBus(cfg *config.Config) CheckResult {
	if !cfg.Network.Enabled {
		return CheckResult{Status: StatusPass, Message: "network bridge disabled, skipping"}
	}
	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return CheckResult{
			Status:  StatusFail,
			Message: fmt.Sprintf("cannot connect: %v", err),
			Fix:     "Check that dbus-daemon is running and DBUS_SYSTEM_BUS_ADDRESS is sane",
		}
	}
	conn.Close()
	return CheckResult{Status: StatusPass, Message: "system bus reachable"}
}

func checkNetworkManager(cfg *config.Config) CheckResult {
	if !cfg.Network.Enabled {
		return CheckResult{Status: StatusPass, Message: "network bridge disabled, skipping"}
	}
	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return CheckResult{Status: StatusFail, Message: fmt.Sprintf("cannot connect: %v", err)}
	}
	defer conn.Close()

	var owner string
	err = conn.BusObject().Call("org.freedesktop.DBus.GetNameOwner", 0,
		"org.freedesktop.NetworkManager").Store(&owner)
	if err != nil {
		return CheckResult{
			Status:  StatusWarn,
			Message: "NetworkManager not on the bus",
			Fix:     "Start NetworkManager, or set network.enabled: false",
		}
	}
	return CheckResult{Status: StatusPass, Message: fmt.Sprintf("NetworkManager owned by %s", owner)}
}

func checkGatewayAddr(cfg *config.Config) CheckResult {
	if !cfg.Gateway.Enabled {
		return CheckResult{Status: StatusPass, Message: "gateway disabled, skipping"}
	}
	ln, err := net.Listen("tcp", cfg.Gateway.Addr)
	if err != nil {
		return CheckResult{
			Status:  StatusFail,
			Message: fmt.Sprintf("cannot bind %s: %v", cfg.Gateway.Addr, err),
			Fix:     "Pick a free port in gateway.addr, or stop whatever holds it",
		}
	}
	ln.Close()
	return CheckResult{Status: StatusPass, Message: fmt.Sprintf("%s is bindable", cfg.Gateway.Addr)}
}

func noopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
