package network

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateCache_Defaults(t *testing.T) {
	c := NewStateCache()

	assert.Equal(t, DefaultNetworkState(), c.CurrentState())
	assert.Empty(t, c.Devices())
	assert.Empty(t, c.Connections())
	assert.Empty(t, c.ActiveConnections())

	_, ok := c.FirstWiFiDevice()
	assert.False(t, ok)
	_, ok = c.ConnectionByUUID("u1")
	assert.False(t, ok)
}

func TestStateCache_AddDeviceDeduplicates(t *testing.T) {
	c := NewStateCache()

	assert.True(t, c.addDevice(wlan0))
	assert.False(t, c.addDevice(wlan0))
	assert.Len(t, c.Devices(), 1)
}

func TestStateCache_ReadersGetCopies(t *testing.T) {
	c := NewStateCache()
	c.replaceDevices([]Device{eth0, wlan0})

	devices := c.Devices()
	devices[0].Interface = "mangled"

	dev, ok := c.Device(eth0.Path)
	require.True(t, ok)
	assert.Equal(t, "eth0", dev.Interface)
}

func TestStateCache_OldSnapshotSurvivesWrites(t *testing.T) {
	c := NewStateCache()
	c.replaceDevices([]Device{eth0, wlan0})

	c.mu.RLock()
	snapshot := c.devices
	c.mu.RUnlock()

	_, ok := c.updateDeviceState(wlan0.Path, DeviceStateActivated)
	require.True(t, ok)
	_, ok = c.removeDevice(eth0.Path)
	require.True(t, ok)

	assert.Equal(t, []Device{eth0, wlan0}, snapshot)
	assert.Equal(t, DeviceStateActivated, c.Devices()[0].State)
}

func TestStateCache_Lookups(t *testing.T) {
	c := NewStateCache()
	c.replaceDevices([]Device{eth0, wlan0, wwan0})
	c.replaceConnections([]Connection{homeConn, wiredConn, vpnConn})
	c.replaceActiveConnections([]ActiveConnection{activeFor(wiredConn, 1, ActiveConnectionStateActivated)})

	wifi, ok := c.FirstWiFiDevice()
	require.True(t, ok)
	assert.Equal(t, "wlan0", wifi.Interface)

	wired, ok := c.FirstEthernetDevice()
	require.True(t, ok)
	assert.Equal(t, "eth0", wired.Interface)

	modem, ok := c.DeviceByInterface("wwan0")
	require.True(t, ok)
	assert.Equal(t, DeviceTypeModem, modem.Type)

	assert.Equal(t, []Device{wwan0}, c.DevicesByType(DeviceTypeModem))
	assert.Equal(t, []Connection{homeConn}, c.ConnectionsByType(ConnectionTypeWireless))

	conn, ok := c.ConnectionByUUID("u3")
	require.True(t, ok)
	assert.Equal(t, "Office", conn.ID)

	ac, ok := c.ActiveConnectionByUUID("u2")
	require.True(t, ok)
	assert.Equal(t, "Wired", ac.ID)

	_, ok = c.ActiveConnectionByUUID("u1")
	assert.False(t, ok)
}

func TestStateCache_ReplaceDropsDuplicatePaths(t *testing.T) {
	c := NewStateCache()
	c.replaceConnections([]Connection{homeConn, homeConn, wiredConn})

	assert.Equal(t, []Connection{homeConn, wiredConn}, c.Connections())
}

func TestStateCache_RemoveUnknown(t *testing.T) {
	c := NewStateCache()

	_, ok := c.removeDevice(wlan0.Path)
	assert.False(t, ok)
	_, ok = c.removeConnection(homeConn.Path)
	assert.False(t, ok)
	_, ok = c.updateDeviceState(wlan0.Path, DeviceStateFailed)
	assert.False(t, ok)
	_, ok = c.updateActiveConnectionState("/nope", ActiveConnectionStateActivated, 0)
	assert.False(t, ok)
}

func TestStateCache_UpdateActiveConnectionState(t *testing.T) {
	c := NewStateCache()
	ac := activeFor(homeConn, 1, ActiveConnectionStateActivating)
	assert.True(t, c.addActiveConnection(ac))
	assert.False(t, c.addActiveConnection(ac))

	updated, ok := c.updateActiveConnectionState(ac.Path, ActiveConnectionStateActivated, 1)
	require.True(t, ok)
	assert.Equal(t, ActiveConnectionStateActivated, updated.State)
	assert.Equal(t, uint32(1), updated.Reason)

	got, ok := c.activeConnection(ac.Path)
	require.True(t, ok)
	assert.Equal(t, updated, got)
}

func TestStateCache_StateIsolation(t *testing.T) {
	c := NewStateCache()
	c.setState(NetworkState{
		Connectivity:      ConnectivityFull,
		PrimaryConnection: &PrimaryConnection{ID: "Home", Type: ConnectionTypeWireless},
	})

	s := c.CurrentState()
	s.PrimaryConnection.ID = "changed"

	id, ok := c.CurrentState().PrimaryConnectionID()
	require.True(t, ok)
	assert.Equal(t, "Home", id)
}

func TestStateCache_Reset(t *testing.T) {
	c := NewStateCache()
	c.replaceDevices([]Device{eth0})
	c.replaceConnections([]Connection{homeConn})
	c.replaceActiveConnections([]ActiveConnection{activeFor(homeConn, 1, ActiveConnectionStateActivated)})
	c.setState(NetworkState{Connectivity: ConnectivityFull, NetworkingEnabled: true})

	c.Reset()

	assert.Empty(t, c.Devices())
	assert.Empty(t, c.Connections())
	assert.Empty(t, c.ActiveConnections())
	assert.Equal(t, DefaultNetworkState(), c.CurrentState())
}
