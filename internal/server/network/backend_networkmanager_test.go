package network

import (
	"context"
	"testing"
	"time"

	"github.com/Wifx/gonetworkmanager/v2"
	"github.com/godbus/dbus/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodePropertiesChanged(t *testing.T) {
	sig := &dbus.Signal{
		Path: dbusNMPath,
		Name: dbusPropsInterface + ".PropertiesChanged",
		Body: []interface{}{
			dbusNMInterface,
			map[string]dbus.Variant{
				"PrimaryConnectionType": dbus.MakeVariant("802-11-wireless"),
				"PrimaryConnection":     dbus.MakeVariant(dbus.ObjectPath("/org/freedesktop/NetworkManager/ActiveConnection/1")),
				"Connectivity":          dbus.MakeVariant(uint32(4)),
				"State":                 dbus.MakeVariant(uint32(70)),
			},
			[]string{},
		},
	}

	n, ok := decodePropertiesChanged(sig)
	require.True(t, ok)
	assert.Equal(t, NotifyPropertiesChanged, n.Kind)
	assert.Equal(t, []PropertyKind{PropConnectivity, PropPrimaryConnection}, n.Properties)
}

func TestDecodePropertiesChanged_Ignored(t *testing.T) {
	testCases := []struct {
		name string
		body []interface{}
	}{
		{"other interface", []interface{}{dbusNMDeviceInterface, map[string]dbus.Variant{"State": dbus.MakeVariant(uint32(100))}}},
		{"unmodeled property", []interface{}{dbusNMInterface, map[string]dbus.Variant{"Metered": dbus.MakeVariant(uint32(4))}}},
		{"short body", []interface{}{dbusNMInterface}},
		{"bad types", []interface{}{42, "nope"}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, ok := decodePropertiesChanged(&dbus.Signal{Path: dbusNMPath, Body: tc.body})
			assert.False(t, ok)
		})
	}
}

func TestDecodeDeviceStateChanged(t *testing.T) {
	sig := &dbus.Signal{
		Path: "/org/freedesktop/NetworkManager/Devices/3",
		Name: dbusNMDeviceInterface + ".StateChanged",
		Body: []interface{}{uint32(120), uint32(50), uint32(NmDeviceStateReasonNoSecrets)},
	}

	n, ok := decodeDeviceStateChanged(sig)
	require.True(t, ok)
	assert.Equal(t, NotifyDeviceStateChanged, n.Kind)
	assert.Equal(t, sig.Path, n.Path)
	assert.Equal(t, uint32(DeviceStateFailed), n.NewState)
	assert.Equal(t, uint32(DeviceStateConfig), n.OldState)
	assert.Equal(t, uint32(NmDeviceStateReasonNoSecrets), n.Reason)

	_, ok = decodeDeviceStateChanged(&dbus.Signal{Body: []interface{}{uint32(1), uint32(2)}})
	assert.False(t, ok)
}

func TestDecodeActiveConnectionStateChanged(t *testing.T) {
	sig := &dbus.Signal{
		Path: "/org/freedesktop/NetworkManager/ActiveConnection/4",
		Name: dbusNMActiveConnectionInterface + ".StateChanged",
		Body: []interface{}{uint32(2), uint32(0)},
	}

	n, ok := decodeActiveConnectionStateChanged(sig)
	require.True(t, ok)
	assert.Equal(t, NotifyActiveConnectionStateChanged, n.Kind)
	assert.Equal(t, uint32(ActiveConnectionStateActivated), n.NewState)

	_, ok = decodeActiveConnectionStateChanged(&dbus.Signal{Body: []interface{}{"2", uint32(0)}})
	assert.False(t, ok)
}

func TestDecodeNameOwnerChanged(t *testing.T) {
	vanished := &dbus.Signal{Body: []interface{}{dbusNMDest, ":1.7", ""}}
	n, ok := decodeNameOwnerChanged(vanished)
	require.True(t, ok)
	assert.Equal(t, NotifyServiceVanished, n.Kind)

	_, ok = decodeNameOwnerChanged(&dbus.Signal{Body: []interface{}{dbusNMDest, "", ":1.9"}})
	assert.False(t, ok)
	_, ok = decodeNameOwnerChanged(&dbus.Signal{Body: []interface{}{"org.freedesktop.login1", ":1.2", ""}})
	assert.False(t, ok)
}

func TestConnectionFromSettings(t *testing.T) {
	settings := gonetworkmanager.ConnectionSettings{
		"connection": {
			"id":   "Home",
			"uuid": "u1",
			"type": "802-11-wireless",
		},
		"802-11-wireless": {
			"ssid": []byte("Home"),
		},
	}

	conn, ok := connectionFromSettings("/org/freedesktop/NetworkManager/Settings/1", settings)
	require.True(t, ok)
	assert.Equal(t, homeConn, conn)

	_, ok = connectionFromSettings("/x", gonetworkmanager.ConnectionSettings{})
	assert.False(t, ok)
}

func TestDeviceTypeFromNM(t *testing.T) {
	assert.Equal(t, DeviceTypeEthernet, deviceTypeFromNM(1))
	assert.Equal(t, DeviceTypeWiFi, deviceTypeFromNM(2))
	assert.Equal(t, DeviceTypeModem, deviceTypeFromNM(8))
	assert.Equal(t, DeviceTypeWireGuard, deviceTypeFromNM(29))
	assert.Equal(t, DeviceTypeLoopback, deviceTypeFromNM(32))
	assert.Equal(t, DeviceTypeUnknown, deviceTypeFromNM(0))
	assert.Equal(t, DeviceTypeOther, deviceTypeFromNM(14))
}

func TestNetworkManagerService_Live(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	svc, err := NewNetworkManagerService(ctx)
	if err != nil {
		t.Skipf("NetworkManager not available: %v", err)
	}
	defer svc.Close()

	devices, err := svc.Devices()
	require.NoError(t, err)
	for _, dev := range devices {
		assert.NotEmpty(t, dev.Path)
		assert.NoError(t, svc.WatchDevice(dev.Path))
		assert.NoError(t, svc.WatchDevice(dev.Path))
	}

	_, err = svc.Connections()
	assert.NoError(t, err)
	_, err = svc.ActiveConnections()
	assert.NoError(t, err)
	_, err = svc.Properties()
	assert.NoError(t, err)
}

func TestNetworkManagerService_CloseEndsNotifications(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	svc, err := NewNetworkManagerService(ctx)
	if err != nil {
		t.Skipf("NetworkManager not available: %v", err)
	}

	svc.Close()
	svc.Close()

	select {
	case _, ok := <-svc.Notifications():
		for ok {
			_, ok = <-svc.Notifications()
		}
	case <-time.After(2 * time.Second):
		t.Fatal("notifications channel not closed")
	}
}
