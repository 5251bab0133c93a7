package server

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/AvengeMedia/nmmirror/internal/config"
	"github.com/AvengeMedia/nmmirror/internal/log"
	"github.com/AvengeMedia/nmmirror/internal/server/models"
	"github.com/AvengeMedia/nmmirror/internal/server/network"
	"golang.org/x/sys/unix"
)

const (
	socketPrefix = "nmmirror-"
	socketSuffix = ".sock"
)

var networkManager *network.Manager

func getSocketDir(configured string) string {
	if configured != "" {
		return configured
	}

	if runtime := os.Getenv("XDG_RUNTIME_DIR"); runtime != "" {
		return runtime
	}

	if os.Getuid() == 0 {
		if _, err := os.Stat("/run"); err == nil {
			return "/run/nmmirror"
		}
		return "/var/run/nmmirror"
	}

	return os.TempDir()
}

func GetSocketPath(configured string) string {
	return filepath.Join(getSocketDir(configured), fmt.Sprintf("%s%d%s", socketPrefix, os.Getpid(), socketSuffix))
}

// FindSocket returns the socket of a running server in dir, if any.
func FindSocket(configured string) (string, error) {
	dir := getSocketDir(configured)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}

	for _, entry := range entries {
		pid, ok := socketPID(entry.Name())
		if !ok || !processAlive(pid) {
			continue
		}
		return filepath.Join(dir, entry.Name()), nil
	}

	return "", fmt.Errorf("no running nmmirror server in %s", dir)
}

// socketPID extracts the pid from nmmirror-<pid>.sock.
func socketPID(name string) (int, bool) {
	if !strings.HasPrefix(name, socketPrefix) || !strings.HasSuffix(name, socketSuffix) {
		return 0, false
	}
	pidStr := strings.TrimSuffix(strings.TrimPrefix(name, socketPrefix), socketSuffix)
	pid, err := strconv.Atoi(pidStr)
	if err != nil || pid <= 0 {
		return 0, false
	}
	return pid, true
}

// processAlive probes pid with signal 0. EPERM means the process exists but
// belongs to someone else.
func processAlive(pid int) bool {
	err := unix.Kill(pid, 0)
	return err == nil || errors.Is(err, unix.EPERM)
}

func cleanupStaleSockets(dir string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}

	for _, entry := range entries {
		pid, ok := socketPID(entry.Name())
		if !ok || processAlive(pid) {
			continue
		}
		socketPath := filepath.Join(dir, entry.Name())
		if err := os.Remove(socketPath); err == nil {
			log.Debugf("Removed stale socket: %s", socketPath)
		}
	}
}

func handleConnection(conn net.Conn) {
	defer conn.Close()

	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		line := scanner.Bytes()

		var req models.Request
		if err := json.Unmarshal(line, &req); err != nil {
			models.RespondError(conn, nil, "invalid json")
			continue
		}

		RouteRequest(conn, req)
	}
}

// Serve accepts clients on listener until it is closed.
func Serve(listener net.Listener, manager *network.Manager) error {
	networkManager = manager

	for {
		conn, err := listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		go handleConnection(conn)
	}
}

// Start listens on the per-process socket and serves until the listener
// fails or is closed through the returned stop function.
func Start(settings config.Settings, manager *network.Manager) (string, func(), <-chan error, error) {
	dir := getSocketDir(settings.SocketDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", nil, nil, fmt.Errorf("failed to create socket directory: %w", err)
	}
	cleanupStaleSockets(dir)

	socketPath := GetSocketPath(settings.SocketDir)
	os.Remove(socketPath)

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return "", nil, nil, err
	}

	log.Infof("nmmirror API server listening on: %s", socketPath)
	log.Info("Protocol: JSON over Unix socket")
	log.Info("Request format: {\"id\": <any>, \"method\": \"...\", \"params\": {...}}")
	log.Info("Response format: {\"id\": <any>, \"result\": {...}} or {\"id\": <any>, \"error\": \"...\"}")
	log.Debug("Available methods:")
	log.Debug("  ping - Test connection")
	log.Debug("  network.getState - Global state and availability")
	log.Debug("  network.devices / network.connections / network.activeConnections")
	log.Debug("  network.activate - Activate a profile (params: uuid, device?)")
	log.Debug("  network.deactivate - Deactivate a profile (params: uuid)")
	log.Debug("  network.checkConnectivity - Ask NetworkManager to re-check connectivity")
	log.Debug("  network.wireless.set / network.wwan.set - Radio switches (params: enabled)")
	log.Debug("  network.reconnect - Re-run initialization")
	log.Debug("  network.subscribe - Stream events")

	errCh := make(chan error, 1)
	go func() {
		errCh <- Serve(listener, manager)
	}()

	stop := func() {
		listener.Close()
		os.Remove(socketPath)
	}

	return socketPath, stop, errCh, nil
}
