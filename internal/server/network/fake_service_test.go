package network

import (
	"context"
	"fmt"
	"sync"

	"github.com/godbus/dbus/v5"
)

type fakeService struct {
	mu sync.Mutex

	devices     []Device
	connections []Connection
	active      []ActiveConnection
	props       GlobalProperties

	devicesErr  error
	propsErr    error
	activateErr error
	deactErr    error
	checkErr    error
	radioErr    error

	activateResult ActiveConnection
	connectivity   Connectivity

	remoteCalls   int
	wirelessSet   []bool
	wwanSet       []bool
	deviceWatches map[dbus.ObjectPath]int
	activeWatches map[dbus.ObjectPath]int
	unwatched     []dbus.ObjectPath

	notifications chan Notification
	closeOnce     sync.Once
	closed        bool
}

func newFakeService() *fakeService {
	return &fakeService{
		deviceWatches: make(map[dbus.ObjectPath]int),
		activeWatches: make(map[dbus.ObjectPath]int),
		notifications: make(chan Notification, 16),
	}
}

func (f *fakeService) Devices() ([]Device, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.devicesErr != nil {
		return nil, f.devicesErr
	}
	return append([]Device(nil), f.devices...), nil
}

func (f *fakeService) Connections() ([]Connection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Connection(nil), f.connections...), nil
}

func (f *fakeService) ActiveConnections() ([]ActiveConnection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]ActiveConnection(nil), f.active...), nil
}

func (f *fakeService) Properties() (GlobalProperties, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.propsErr != nil {
		return GlobalProperties{}, f.propsErr
	}
	return f.props, nil
}

func (f *fakeService) ActivateConnection(ctx context.Context, conn Connection, dev *Device) (ActiveConnection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.remoteCalls++
	if f.activateErr != nil {
		return ActiveConnection{}, f.activateErr
	}
	return f.activateResult, nil
}

func (f *fakeService) DeactivateConnection(ctx context.Context, ac ActiveConnection) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.remoteCalls++
	return f.deactErr
}

func (f *fakeService) CheckConnectivity(ctx context.Context) (Connectivity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.remoteCalls++
	if f.checkErr != nil {
		return ConnectivityUnknown, f.checkErr
	}
	return f.connectivity, nil
}

func (f *fakeService) SetWirelessEnabled(enabled bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.remoteCalls++
	f.wirelessSet = append(f.wirelessSet, enabled)
	return f.radioErr
}

func (f *fakeService) SetWWANEnabled(enabled bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.remoteCalls++
	f.wwanSet = append(f.wwanSet, enabled)
	return f.radioErr
}

func (f *fakeService) WatchDevice(path dbus.ObjectPath) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deviceWatches[path]++
	return nil
}

func (f *fakeService) WatchActiveConnection(path dbus.ObjectPath) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.activeWatches[path]++
	return nil
}

func (f *fakeService) UnwatchActiveConnection(path dbus.ObjectPath) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unwatched = append(f.unwatched, path)
}

func (f *fakeService) Notifications() <-chan Notification {
	return f.notifications
}

func (f *fakeService) Close() {
	f.closeOnce.Do(func() {
		f.mu.Lock()
		f.closed = true
		f.mu.Unlock()
		close(f.notifications)
	})
}

func (f *fakeService) set(fn func(f *fakeService)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

func (f *fakeService) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeService) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.remoteCalls
}

func (f *fakeService) deviceWatchCount(path dbus.ObjectPath) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.deviceWatches[path]
}

func (f *fakeService) activeWatchCount(path dbus.ObjectPath) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.activeWatches[path]
}

// factoryFor hands out the given services in order, one per call.
func factoryFor(services ...*fakeService) (ServiceFactory, *int) {
	calls := 0
	var mu sync.Mutex
	return func(ctx context.Context) (Service, error) {
		mu.Lock()
		defer mu.Unlock()
		i := calls
		calls++
		if i >= len(services) {
			return nil, nil
		}
		return services[i], nil
	}, &calls
}

type staticSource struct{ svc Service }

func (s staticSource) Service() Service { return s.svc }

type eventRecorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *eventRecorder) emit(ev Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *eventRecorder) types() []EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]EventType, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Type)
	}
	return out
}

func (r *eventRecorder) all() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

func (r *eventRecorder) reset() {
	r.mu.Lock()
	r.events = nil
	r.mu.Unlock()
}

var (
	wlan0 = Device{Path: "/org/freedesktop/NetworkManager/Devices/3", Interface: "wlan0", Type: DeviceTypeWiFi, State: DeviceStateDisconnected}
	eth0  = Device{Path: "/org/freedesktop/NetworkManager/Devices/2", Interface: "eth0", Type: DeviceTypeEthernet, State: DeviceStateActivated}
	wwan0 = Device{Path: "/org/freedesktop/NetworkManager/Devices/5", Interface: "wwan0", Type: DeviceTypeModem, State: DeviceStateUnavailable}

	homeConn  = Connection{Path: "/org/freedesktop/NetworkManager/Settings/1", UUID: "u1", ID: "Home", Type: ConnectionTypeWireless}
	wiredConn = Connection{Path: "/org/freedesktop/NetworkManager/Settings/2", UUID: "u2", ID: "Wired", Type: ConnectionTypeEthernet}
	vpnConn   = Connection{Path: "/org/freedesktop/NetworkManager/Settings/3", UUID: "u3", ID: "Office", Type: "vpn"}
)

func activeFor(conn Connection, n int, state ActiveConnectionState) ActiveConnection {
	return ActiveConnection{
		Path:           dbus.ObjectPath(fmt.Sprintf("/org/freedesktop/NetworkManager/ActiveConnection/%d", n)),
		ConnectionPath: conn.Path,
		UUID:           conn.UUID,
		ID:             conn.ID,
		Type:           conn.Type,
		State:          state,
	}
}
