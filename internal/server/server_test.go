package server

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/AvengeMedia/nmmirror/internal/errdefs"
	"github.com/AvengeMedia/nmmirror/internal/server/network"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSocketPID(t *testing.T) {
	testCases := []struct {
		name string
		pid  int
		ok   bool
	}{
		{"nmmirror-1234.sock", 1234, true},
		{"nmmirror-abc.sock", 0, false},
		{"nmmirror-0.sock", 0, false},
		{"danklinux-1234.sock", 0, false},
		{"nmmirror-1234.pid", 0, false},
	}

	for _, tc := range testCases {
		pid, ok := socketPID(tc.name)
		assert.Equal(t, tc.ok, ok, tc.name)
		assert.Equal(t, tc.pid, pid, tc.name)
	}
}

func TestGetSocketDir_Configured(t *testing.T) {
	assert.Equal(t, "/tmp/custom", getSocketDir("/tmp/custom"))

	t.Setenv("XDG_RUNTIME_DIR", "/run/user/1000")
	assert.Equal(t, "/run/user/1000", getSocketDir(""))
	assert.Equal(t, filepath.Join("/run/user/1000", fmt.Sprintf("nmmirror-%d.sock", os.Getpid())), GetSocketPath(""))
}

func TestCleanupStaleSockets(t *testing.T) {
	dir := t.TempDir()

	live := filepath.Join(dir, fmt.Sprintf("nmmirror-%d.sock", os.Getpid()))
	stale := filepath.Join(dir, "nmmirror-2147483646.sock")
	other := filepath.Join(dir, "unrelated.sock")
	for _, p := range []string{live, stale, other} {
		require.NoError(t, os.WriteFile(p, nil, 0o600))
	}

	cleanupStaleSockets(dir)

	assert.FileExists(t, live)
	assert.NoFileExists(t, stale)
	assert.FileExists(t, other)

	found, err := FindSocket(dir)
	require.NoError(t, err)
	assert.Equal(t, live, found)
}

func TestFindSocket_None(t *testing.T) {
	_, err := FindSocket(t.TempDir())
	assert.Error(t, err)
}

func unavailableManager(t *testing.T) *network.Manager {
	t.Helper()
	m := network.NewManager(func(ctx context.Context) (network.Service, error) {
		return nil, errdefs.ErrServiceUnavailable
	})
	t.Cleanup(m.Close)
	return m
}

func TestServe(t *testing.T) {
	m := unavailableManager(t)
	require.False(t, m.Initialize(context.Background()))

	socketPath := filepath.Join(t.TempDir(), "nmmirror-test.sock")
	listener, err := net.Listen("unix", socketPath)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- Serve(listener, m) }()

	conn, err := net.Dial("unix", socketPath)
	require.NoError(t, err)
	defer conn.Close()

	reader := bufio.NewReader(conn)
	roundTrip := func(line string) map[string]interface{} {
		_, err := conn.Write([]byte(line + "\n"))
		require.NoError(t, err)
		raw, err := reader.ReadBytes('\n')
		require.NoError(t, err)
		var resp map[string]interface{}
		require.NoError(t, json.Unmarshal(raw, &resp))
		return resp
	}

	resp := roundTrip(`{"id": 1, "method": "ping"}`)
	assert.Equal(t, "pong", resp["result"])

	resp = roundTrip(`not json`)
	assert.Equal(t, "invalid json", resp["error"])

	resp = roundTrip(`{"id": 2, "method": "plugins.list"}`)
	assert.Equal(t, "unknown method: plugins.list", resp["error"])

	resp = roundTrip(`{"id": 3, "method": "network.getState"}`)
	result, ok := resp["result"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, false, result["available"])
	assert.Equal(t, "Connectivity unknown", result["description"])

	resp = roundTrip(`{"id": 4, "method": "network.activate", "params": {"uuid": "u1"}}`)
	assert.Equal(t, "connection with UUID u1 not found", resp["error"])

	listener.Close()
	assert.NoError(t, <-done)
}
