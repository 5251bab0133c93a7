package network

import (
	"context"

	"github.com/godbus/dbus/v5"
)

// Service is the boundary to the remote network-management service. The
// NetworkManager implementation lives in backend_networkmanager.go.
type Service interface {
	Devices() ([]Device, error)
	Connections() ([]Connection, error)
	ActiveConnections() ([]ActiveConnection, error)
	Properties() (GlobalProperties, error)

	ActivateConnection(ctx context.Context, conn Connection, dev *Device) (ActiveConnection, error)
	DeactivateConnection(ctx context.Context, ac ActiveConnection) error
	CheckConnectivity(ctx context.Context) (Connectivity, error)

	SetWirelessEnabled(enabled bool) error
	SetWWANEnabled(enabled bool) error

	// Watch* subscribe to per-object StateChanged notifications. Calling them
	// twice for the same path must be harmless.
	WatchDevice(path dbus.ObjectPath) error
	WatchActiveConnection(path dbus.ObjectPath) error
	UnwatchActiveConnection(path dbus.ObjectPath)

	// Notifications is closed when the handle loses its bus connection.
	Notifications() <-chan Notification

	Close()
}

// ServiceFactory acquires a new handle. A nil handle with a nil error is
// treated as a failure.
type ServiceFactory func(ctx context.Context) (Service, error)

// ServiceSource hands out the currently attached handle, or nil.
type ServiceSource interface {
	Service() Service
}

// GlobalProperties is a single read of the manager object's properties.
type GlobalProperties struct {
	Connectivity            Connectivity
	NetworkingEnabled       bool
	WirelessEnabled         bool
	WirelessHardwareEnabled bool
	WwanEnabled             bool
	WwanHardwareEnabled     bool
	PrimaryConnection       *ActiveConnection
}

type NotificationKind int

const (
	NotifyPropertiesChanged NotificationKind = iota
	NotifyDeviceAdded
	NotifyDeviceRemoved
	NotifyConnectionAdded
	NotifyConnectionRemoved
	NotifyDeviceStateChanged
	NotifyActiveConnectionStateChanged
	NotifyServiceVanished
)

func (k NotificationKind) String() string {
	switch k {
	case NotifyPropertiesChanged:
		return "properties-changed"
	case NotifyDeviceAdded:
		return "device-added"
	case NotifyDeviceRemoved:
		return "device-removed"
	case NotifyConnectionAdded:
		return "connection-added"
	case NotifyConnectionRemoved:
		return "connection-removed"
	case NotifyDeviceStateChanged:
		return "device-state-changed"
	case NotifyActiveConnectionStateChanged:
		return "active-connection-state-changed"
	case NotifyServiceVanished:
		return "service-vanished"
	default:
		return "unknown"
	}
}

type PropertyKind int

const (
	PropConnectivity PropertyKind = iota
	PropNetworkingEnabled
	PropWirelessEnabled
	PropWirelessHardwareEnabled
	PropWwanEnabled
	PropWwanHardwareEnabled
	PropPrimaryConnection
	PropActiveConnections
)

// Notification is a raw change notification, already decoded from D-Bus.
type Notification struct {
	Kind NotificationKind

	// NotifyPropertiesChanged
	Properties []PropertyKind

	// Object the notification is about. Set for every kind except
	// NotifyPropertiesChanged and NotifyServiceVanished.
	Path dbus.ObjectPath

	// NotifyDeviceAdded
	Device *Device
	// NotifyConnectionAdded
	Connection *Connection

	// NotifyDeviceStateChanged / NotifyActiveConnectionStateChanged
	NewState uint32
	OldState uint32
	Reason   uint32
}

func (n Notification) has(kind PropertyKind) bool {
	for _, p := range n.Properties {
		if p == kind {
			return true
		}
	}
	return false
}
