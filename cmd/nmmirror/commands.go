package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/AvengeMedia/nmmirror/internal/config"
	"github.com/AvengeMedia/nmmirror/internal/log"
	"github.com/AvengeMedia/nmmirror/internal/server"
	"github.com/AvengeMedia/nmmirror/internal/server/loginctl"
	"github.com/AvengeMedia/nmmirror/internal/server/network"
	"github.com/spf13/cobra"
)

var settings *config.Settings

var rootCmd = &cobra.Command{
	Use:           "nmmirror",
	Short:         "Mirror NetworkManager state and control connections",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		s, err := config.Load()
		if err != nil {
			return err
		}
		if level, _ := cmd.Flags().GetString("log-level"); level != "" {
			s.LogLevel = level
		}
		if dir, _ := cmd.Flags().GetString("socket-dir"); dir != "" {
			s.SocketDir = dir
		}
		if !log.SetLevel(s.LogLevel) {
			return fmt.Errorf("unknown log level: %s", s.LogLevel)
		}
		settings = s
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("nmmirror %s\n", Version)
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the API server",
	Long:  "Mirror NetworkManager and serve state and control over a Unix socket",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the current network state",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withManager(func(ctx context.Context, m *network.Manager) error {
			fmt.Print(renderStatus(m))
			return nil
		})
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stream network events until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runWatch()
	},
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Ask NetworkManager to re-check connectivity",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withManager(func(ctx context.Context, m *network.Manager) error {
			c, err := m.CheckConnectivity(ctx)
			if err != nil {
				return err
			}
			fmt.Println(renderConnectivity(c))
			return nil
		})
	},
}

var radioCmd = &cobra.Command{
	Use:   "radio",
	Short: "Switch radios on or off",
}

var radioWifiCmd = &cobra.Command{
	Use:       "wifi <on|off>",
	Short:     "Enable or disable Wi-Fi",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"on", "off"},
	RunE: func(cmd *cobra.Command, args []string) error {
		return setRadio(args[0], (*network.Manager).SetWirelessEnabled)
	},
}

var radioWwanCmd = &cobra.Command{
	Use:       "wwan <on|off>",
	Short:     "Enable or disable mobile broadband",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"on", "off"},
	RunE: func(cmd *cobra.Command, args []string) error {
		return setRadio(args[0], (*network.Manager).SetWWANEnabled)
	},
}

var activateCmd = &cobra.Command{
	Use:   "activate <uuid>",
	Short: "Activate a connection profile",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		device, _ := cmd.Flags().GetString("device")
		return withManager(func(ctx context.Context, m *network.Manager) error {
			ac, err := m.ActivateByUUID(ctx, args[0], device)
			if err != nil {
				return err
			}
			fmt.Printf("Activating %s (%s)\n", ac.ID, ac.Path)
			return nil
		})
	},
}

var deactivateCmd = &cobra.Command{
	Use:   "deactivate <uuid>",
	Short: "Deactivate an active connection",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withManager(func(ctx context.Context, m *network.Manager) error {
			if err := m.DeactivateByUUID(ctx, args[0]); err != nil {
				return err
			}
			fmt.Printf("Deactivating %s\n", args[0])
			return nil
		})
	},
}

func newManager() *network.Manager {
	return network.NewManager(network.NewNetworkManagerService,
		network.WithReconnectInterval(settings.ReconnectInterval),
		network.WithOperationTimeout(settings.OperationTimeout),
		network.WithEventBuffer(settings.EventBuffer),
	)
}

// withManager runs fn against a freshly initialized manager.
func withManager(fn func(ctx context.Context, m *network.Manager) error) error {
	m := network.NewManager(network.NewNetworkManagerService,
		network.WithOperationTimeout(settings.OperationTimeout),
	)
	defer m.Close()

	ctx, cancel := m.OperationContext()
	defer cancel()

	if !m.Initialize(ctx) {
		return fmt.Errorf("network service unavailable: %v", m.LastInitError())
	}
	return fn(ctx, m)
}

func setRadio(arg string, set func(*network.Manager, bool) error) error {
	var enabled bool
	switch arg {
	case "on":
		enabled = true
	case "off":
	default:
		return fmt.Errorf("expected on or off, got %q", arg)
	}

	return withManager(func(ctx context.Context, m *network.Manager) error {
		return set(m, enabled)
	})
}

func runServe() error {
	m := newManager()
	defer m.Close()

	ctx, cancel := m.OperationContext()
	if !m.Initialize(ctx) {
		log.Warnf("NetworkManager not available yet, retrying every %s", settings.ReconnectInterval)
	}
	cancel()

	if settings.ReconnectOnResume {
		if w, err := loginctl.NewSleepWatcher(func() { go reconnect(m) }); err != nil {
			log.Warnf("Resume detection disabled: %v", err)
		} else {
			defer w.Close()
		}
	}

	socketPath, stop, errCh, err := server.Start(*settings, m)
	if err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	defer stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		log.Infof("Received %s, shutting down %s", sig, socketPath)
		return nil
	case err := <-errCh:
		return err
	}
}

func reconnect(m *network.Manager) {
	ctx, cancel := m.OperationContext()
	defer cancel()
	if !m.Reconnect(ctx) {
		log.Warn("NetworkManager not available after resume")
	}
}

func runWatch() error {
	m := newManager()
	defer m.Close()

	_, events := m.Subscribe("cli-watch")

	ctx, cancel := m.OperationContext()
	m.Initialize(ctx)
	cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	for {
		select {
		case <-sigCh:
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			fmt.Println(renderEvent(ev))
		}
	}
}
