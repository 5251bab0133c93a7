package network

import (
	"fmt"

	"github.com/godbus/dbus/v5"
)

type enum interface {
	~uint32
	String() string
}

// parseEnum is the inverse of String over the given values.
func parseEnum[T enum](kind string, text []byte, values []T) (T, error) {
	for _, v := range values {
		if v.String() == string(text) {
			return v, nil
		}
	}
	var zero T
	return zero, fmt.Errorf("unknown %s %q", kind, text)
}

// Connectivity mirrors NMConnectivityState numbering.
type Connectivity uint32

const (
	ConnectivityUnknown Connectivity = 0
	ConnectivityNone    Connectivity = 1
	ConnectivityPortal  Connectivity = 2
	ConnectivityLimited Connectivity = 3
	ConnectivityFull    Connectivity = 4
)

func (c Connectivity) String() string {
	switch c {
	case ConnectivityNone:
		return "none"
	case ConnectivityPortal:
		return "portal"
	case ConnectivityLimited:
		return "limited"
	case ConnectivityFull:
		return "full"
	default:
		return "unknown"
	}
}

// Description is the human-readable text shown next to the connectivity state.
func (c Connectivity) Description() string {
	switch c {
	case ConnectivityNone:
		return "No connectivity"
	case ConnectivityPortal:
		return "Captive portal detected"
	case ConnectivityLimited:
		return "Limited connectivity"
	case ConnectivityFull:
		return "Full connectivity"
	default:
		return "Connectivity unknown"
	}
}

func (c Connectivity) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *Connectivity) UnmarshalText(text []byte) error {
	v, err := parseEnum("connectivity", text, []Connectivity{
		ConnectivityUnknown, ConnectivityNone, ConnectivityPortal, ConnectivityLimited, ConnectivityFull,
	})
	*c = v
	return err
}

type PrimaryConnection struct {
	ID   string `json:"id"`
	Type string `json:"type"`
}

// NetworkState is the mirrored global state. PrimaryConnection is nil when
// NetworkManager reports no primary connection.
type NetworkState struct {
	Connectivity            Connectivity       `json:"connectivity"`
	NetworkingEnabled       bool               `json:"networkingEnabled"`
	WirelessEnabled         bool               `json:"wirelessEnabled"`
	WirelessHardwareEnabled bool               `json:"wirelessHardwareEnabled"`
	WwanEnabled             bool               `json:"wwanEnabled"`
	WwanHardwareEnabled     bool               `json:"wwanHardwareEnabled"`
	PrimaryConnection       *PrimaryConnection `json:"primaryConnection,omitempty"`
}

func DefaultNetworkState() NetworkState {
	return NetworkState{Connectivity: ConnectivityUnknown}
}

func (s NetworkState) clone() NetworkState {
	if s.PrimaryConnection != nil {
		p := *s.PrimaryConnection
		s.PrimaryConnection = &p
	}
	return s
}

func (s NetworkState) PrimaryConnectionID() (string, bool) {
	if s.PrimaryConnection == nil {
		return "", false
	}
	return s.PrimaryConnection.ID, true
}

func (s NetworkState) PrimaryConnectionType() (string, bool) {
	if s.PrimaryConnection == nil {
		return "", false
	}
	return s.PrimaryConnection.Type, true
}

type DeviceType uint32

const (
	DeviceTypeUnknown DeviceType = iota
	DeviceTypeEthernet
	DeviceTypeWiFi
	DeviceTypeModem
	DeviceTypeBridge
	DeviceTypeBond
	DeviceTypeVLAN
	DeviceTypeWireGuard
	DeviceTypeLoopback
	DeviceTypeOther
)

func (t DeviceType) String() string {
	switch t {
	case DeviceTypeEthernet:
		return "ethernet"
	case DeviceTypeWiFi:
		return "wifi"
	case DeviceTypeModem:
		return "modem"
	case DeviceTypeBridge:
		return "bridge"
	case DeviceTypeBond:
		return "bond"
	case DeviceTypeVLAN:
		return "vlan"
	case DeviceTypeWireGuard:
		return "wireguard"
	case DeviceTypeLoopback:
		return "loopback"
	case DeviceTypeOther:
		return "other"
	default:
		return "unknown"
	}
}

func (t DeviceType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *DeviceType) UnmarshalText(text []byte) error {
	v, err := parseEnum("device type", text, []DeviceType{
		DeviceTypeUnknown, DeviceTypeEthernet, DeviceTypeWiFi, DeviceTypeModem, DeviceTypeBridge,
		DeviceTypeBond, DeviceTypeVLAN, DeviceTypeWireGuard, DeviceTypeLoopback, DeviceTypeOther,
	})
	*t = v
	return err
}

// DeviceState mirrors NMDeviceState numbering.
type DeviceState uint32

const (
	DeviceStateUnknown      DeviceState = 0
	DeviceStateUnmanaged    DeviceState = 10
	DeviceStateUnavailable  DeviceState = 20
	DeviceStateDisconnected DeviceState = 30
	DeviceStatePrepare      DeviceState = 40
	DeviceStateConfig       DeviceState = 50
	DeviceStateNeedAuth     DeviceState = 60
	DeviceStateIPConfig     DeviceState = 70
	DeviceStateIPCheck      DeviceState = 80
	DeviceStateSecondaries  DeviceState = 90
	DeviceStateActivated    DeviceState = 100
	DeviceStateDeactivating DeviceState = 110
	DeviceStateFailed       DeviceState = 120
)

func (s DeviceState) String() string {
	switch s {
	case DeviceStateUnmanaged:
		return "unmanaged"
	case DeviceStateUnavailable:
		return "unavailable"
	case DeviceStateDisconnected:
		return "disconnected"
	case DeviceStatePrepare:
		return "prepare"
	case DeviceStateConfig:
		return "config"
	case DeviceStateNeedAuth:
		return "need-auth"
	case DeviceStateIPConfig:
		return "ip-config"
	case DeviceStateIPCheck:
		return "ip-check"
	case DeviceStateSecondaries:
		return "secondaries"
	case DeviceStateActivated:
		return "activated"
	case DeviceStateDeactivating:
		return "deactivating"
	case DeviceStateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

func (s DeviceState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *DeviceState) UnmarshalText(text []byte) error {
	values := make([]DeviceState, 0, 13)
	for v := DeviceStateUnknown; v <= DeviceStateFailed; v += 10 {
		values = append(values, v)
	}
	v, err := parseEnum("device state", text, values)
	*s = v
	return err
}

type Device struct {
	Path      dbus.ObjectPath `json:"path"`
	Interface string          `json:"interface"`
	Type      DeviceType      `json:"type"`
	State     DeviceState     `json:"state"`
}

const (
	ConnectionTypeWireless = "802-11-wireless"
	ConnectionTypeEthernet = "802-3-ethernet"
)

// Connection is a stored connection profile.
type Connection struct {
	Path dbus.ObjectPath `json:"path"`
	UUID string          `json:"uuid"`
	ID   string          `json:"id"`
	Type string          `json:"type"`
}

// ActiveConnectionState mirrors NMActiveConnectionState. Failed is not sent by
// NetworkManager; it is kept for consumers that track a failed activation.
type ActiveConnectionState uint32

const (
	ActiveConnectionStateUnknown      ActiveConnectionState = 0
	ActiveConnectionStateActivating   ActiveConnectionState = 1
	ActiveConnectionStateActivated    ActiveConnectionState = 2
	ActiveConnectionStateDeactivating ActiveConnectionState = 3
	ActiveConnectionStateDeactivated  ActiveConnectionState = 4
	ActiveConnectionStateFailed       ActiveConnectionState = 5
)

func (s ActiveConnectionState) String() string {
	switch s {
	case ActiveConnectionStateActivating:
		return "activating"
	case ActiveConnectionStateActivated:
		return "activated"
	case ActiveConnectionStateDeactivating:
		return "deactivating"
	case ActiveConnectionStateDeactivated:
		return "deactivated"
	case ActiveConnectionStateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

func (s ActiveConnectionState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *ActiveConnectionState) UnmarshalText(text []byte) error {
	v, err := parseEnum("active connection state", text, []ActiveConnectionState{
		ActiveConnectionStateUnknown, ActiveConnectionStateActivating, ActiveConnectionStateActivated,
		ActiveConnectionStateDeactivating, ActiveConnectionStateDeactivated, ActiveConnectionStateFailed,
	})
	*s = v
	return err
}

type ActiveConnection struct {
	Path           dbus.ObjectPath       `json:"path"`
	ConnectionPath dbus.ObjectPath       `json:"connectionPath"`
	UUID           string                `json:"uuid"`
	ID             string                `json:"id"`
	Type           string                `json:"type"`
	State          ActiveConnectionState `json:"state"`
	Reason         uint32                `json:"reason"`
}

// Profile returns the identity of the connection profile behind ac.
func (ac ActiveConnection) Profile() Connection {
	return Connection{
		Path: ac.ConnectionPath,
		UUID: ac.UUID,
		ID:   ac.ID,
		Type: ac.Type,
	}
}

type VariantKind string

const (
	VariantWiFiNetwork            VariantKind = "wifi_network"
	VariantBasicNetworkConnection VariantKind = "basic_network_connection"
)

type ConnectionKind string

const (
	ConnectionKindWifi     ConnectionKind = "wifi"
	ConnectionKindEthernet ConnectionKind = "ethernet"
)

// ConnectionVariant is the domain-facing classification of a connection.
type ConnectionVariant struct {
	Kind           VariantKind    `json:"kind"`
	ID             string         `json:"id"`
	Name           string         `json:"name"`
	ConnectionType ConnectionKind `json:"connectionType"`
}

type SuccessResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}
