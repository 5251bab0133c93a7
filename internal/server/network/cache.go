package network

import (
	"slices"
	"sync"

	"github.com/godbus/dbus/v5"
)

// StateCache holds the last-known mirrored state. Writes only happen on the
// Manager's event loop; every list is rebuilt and swapped, never edited in
// place, so readers holding an old slice keep a consistent view.
type StateCache struct {
	mu          sync.RWMutex
	state       NetworkState
	devices     []Device
	connections []Connection
	active      []ActiveConnection
}

func NewStateCache() *StateCache {
	return &StateCache{
		state:       DefaultNetworkState(),
		devices:     []Device{},
		connections: []Connection{},
		active:      []ActiveConnection{},
	}
}

func (c *StateCache) CurrentState() NetworkState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state.clone()
}

func (c *StateCache) Devices() []Device {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.devices)
}

func (c *StateCache) Connections() []Connection {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.connections)
}

func (c *StateCache) ActiveConnections() []ActiveConnection {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.active)
}

func (c *StateCache) DevicesByType(t DeviceType) []Device {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []Device
	for _, d := range c.devices {
		if d.Type == t {
			out = append(out, d)
		}
	}
	return out
}

func (c *StateCache) ConnectionsByType(connType string) []Connection {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []Connection
	for _, conn := range c.connections {
		if conn.Type == connType {
			out = append(out, conn)
		}
	}
	return out
}

func (c *StateCache) FirstWiFiDevice() (Device, bool) {
	return c.firstDevice(DeviceTypeWiFi)
}

func (c *StateCache) FirstEthernetDevice() (Device, bool) {
	return c.firstDevice(DeviceTypeEthernet)
}

func (c *StateCache) firstDevice(t DeviceType) (Device, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, d := range c.devices {
		if d.Type == t {
			return d, true
		}
	}
	return Device{}, false
}

func (c *StateCache) Device(path dbus.ObjectPath) (Device, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	i := slices.IndexFunc(c.devices, func(d Device) bool { return d.Path == path })
	if i < 0 {
		return Device{}, false
	}
	return c.devices[i], true
}

func (c *StateCache) DeviceByInterface(iface string) (Device, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	i := slices.IndexFunc(c.devices, func(d Device) bool { return d.Interface == iface })
	if i < 0 {
		return Device{}, false
	}
	return c.devices[i], true
}

func (c *StateCache) ConnectionByUUID(uuid string) (Connection, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	i := slices.IndexFunc(c.connections, func(conn Connection) bool { return conn.UUID == uuid })
	if i < 0 {
		return Connection{}, false
	}
	return c.connections[i], true
}

func (c *StateCache) ActiveConnectionByUUID(uuid string) (ActiveConnection, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	i := slices.IndexFunc(c.active, func(ac ActiveConnection) bool { return ac.UUID == uuid })
	if i < 0 {
		return ActiveConnection{}, false
	}
	return c.active[i], true
}

func (c *StateCache) activeConnection(path dbus.ObjectPath) (ActiveConnection, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	i := slices.IndexFunc(c.active, func(ac ActiveConnection) bool { return ac.Path == path })
	if i < 0 {
		return ActiveConnection{}, false
	}
	return c.active[i], true
}

// Reset drops every list and restores the default state.
func (c *StateCache) Reset() {
	c.mu.Lock()
	c.state = DefaultNetworkState()
	c.devices = []Device{}
	c.connections = []Connection{}
	c.active = []ActiveConnection{}
	c.mu.Unlock()
}

func (c *StateCache) setState(state NetworkState) {
	c.mu.Lock()
	c.state = state.clone()
	c.mu.Unlock()
}

func (c *StateCache) replaceDevices(devices []Device) {
	next := dedupeByPath(devices, func(d Device) dbus.ObjectPath { return d.Path })
	c.mu.Lock()
	c.devices = next
	c.mu.Unlock()
}

func (c *StateCache) replaceConnections(conns []Connection) {
	next := dedupeByPath(conns, func(conn Connection) dbus.ObjectPath { return conn.Path })
	c.mu.Lock()
	c.connections = next
	c.mu.Unlock()
}

func (c *StateCache) replaceActiveConnections(active []ActiveConnection) {
	next := dedupeByPath(active, func(ac ActiveConnection) dbus.ObjectPath { return ac.Path })
	c.mu.Lock()
	c.active = next
	c.mu.Unlock()
}

// addDevice appends dev unless a device with the same path is cached.
func (c *StateCache) addDevice(dev Device) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if slices.ContainsFunc(c.devices, func(d Device) bool { return d.Path == dev.Path }) {
		return false
	}
	c.devices = append(slices.Clone(c.devices), dev)
	return true
}

func (c *StateCache) removeDevice(path dbus.ObjectPath) (Device, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	i := slices.IndexFunc(c.devices, func(d Device) bool { return d.Path == path })
	if i < 0 {
		return Device{}, false
	}
	removed := c.devices[i]
	c.devices = slices.Delete(slices.Clone(c.devices), i, i+1)
	return removed, true
}

func (c *StateCache) updateDeviceState(path dbus.ObjectPath, state DeviceState) (Device, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	i := slices.IndexFunc(c.devices, func(d Device) bool { return d.Path == path })
	if i < 0 {
		return Device{}, false
	}
	next := slices.Clone(c.devices)
	next[i].State = state
	c.devices = next
	return next[i], true
}

func (c *StateCache) addConnection(conn Connection) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if slices.ContainsFunc(c.connections, func(existing Connection) bool { return existing.Path == conn.Path }) {
		return false
	}
	c.connections = append(slices.Clone(c.connections), conn)
	return true
}

func (c *StateCache) removeConnection(path dbus.ObjectPath) (Connection, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	i := slices.IndexFunc(c.connections, func(conn Connection) bool { return conn.Path == path })
	if i < 0 {
		return Connection{}, false
	}
	removed := c.connections[i]
	c.connections = slices.Delete(slices.Clone(c.connections), i, i+1)
	return removed, true
}

func (c *StateCache) addActiveConnection(ac ActiveConnection) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if slices.ContainsFunc(c.active, func(existing ActiveConnection) bool { return existing.Path == ac.Path }) {
		return false
	}
	c.active = append(slices.Clone(c.active), ac)
	return true
}

func (c *StateCache) updateActiveConnectionState(path dbus.ObjectPath, state ActiveConnectionState, reason uint32) (ActiveConnection, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	i := slices.IndexFunc(c.active, func(ac ActiveConnection) bool { return ac.Path == path })
	if i < 0 {
		return ActiveConnection{}, false
	}
	next := slices.Clone(c.active)
	next[i].State = state
	next[i].Reason = reason
	c.active = next
	return next[i], true
}

func dedupeByPath[T any](items []T, key func(T) dbus.ObjectPath) []T {
	seen := make(map[dbus.ObjectPath]struct{}, len(items))
	out := make([]T, 0, len(items))
	for _, item := range items {
		k := key(item)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, item)
	}
	return out
}
