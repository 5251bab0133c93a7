package network

import (
	"sort"

	"github.com/AvengeMedia/nmmirror/internal/log"
	"github.com/godbus/dbus/v5"
	"golang.org/x/exp/maps"
)

// EventRouter is the only component that turns notifications into cache
// mutations and events. All methods run on the Manager's event loop.
type EventRouter struct {
	cache    *StateCache
	services ServiceSource
	emit     func(Event)

	watchedDevices map[dbus.ObjectPath]struct{}
	watchedActive  map[dbus.ObjectPath]struct{}
}

func NewEventRouter(cache *StateCache, services ServiceSource, emit func(Event)) *EventRouter {
	return &EventRouter{
		cache:          cache,
		services:       services,
		emit:           emit,
		watchedDevices: make(map[dbus.ObjectPath]struct{}),
		watchedActive:  make(map[dbus.ObjectPath]struct{}),
	}
}

func (r *EventRouter) Handle(n Notification) {
	switch n.Kind {
	case NotifyPropertiesChanged:
		r.handlePropertiesChanged(n)
	case NotifyDeviceAdded:
		r.handleDeviceAdded(n)
	case NotifyDeviceRemoved:
		r.handleDeviceRemoved(n)
	case NotifyConnectionAdded:
		r.handleConnectionAdded(n)
	case NotifyConnectionRemoved:
		r.handleConnectionRemoved(n)
	case NotifyDeviceStateChanged:
		r.handleDeviceStateChanged(n)
	case NotifyActiveConnectionStateChanged:
		r.handleActiveConnectionStateChanged(n)
	default:
		log.Debugf("[EventRouter] Ignoring %s notification", n.Kind)
	}
}

func (r *EventRouter) handlePropertiesChanged(n Notification) {
	if n.has(PropActiveConnections) {
		r.syncActiveConnections()
	}

	state := r.refreshState()

	if n.has(PropConnectivity) {
		log.Infof("[EventRouter] Connectivity changed: %s", state.Connectivity.Description())
	} else {
		log.Debugf("[EventRouter] Global properties changed: %v", n.Properties)
	}

	r.emit(stateChanged(state))
}

func (r *EventRouter) handleDeviceAdded(n Notification) {
	if n.Device == nil {
		return
	}
	dev := *n.Device

	if !r.cache.addDevice(dev) {
		log.Debugf("[EventRouter] Device %s already cached", dev.Path)
		return
	}
	r.watchDevice(dev.Path)
	r.emit(deviceEvent(EventDeviceAdded, dev))
}

func (r *EventRouter) handleDeviceRemoved(n Notification) {
	delete(r.watchedDevices, n.Path)

	dev, ok := r.cache.removeDevice(n.Path)
	if !ok {
		return
	}
	r.emit(deviceEvent(EventDeviceRemoved, dev))
}

func (r *EventRouter) handleConnectionAdded(n Notification) {
	if n.Connection == nil {
		return
	}
	conn := *n.Connection

	if !r.cache.addConnection(conn) {
		return
	}
	r.emit(connectionEvent(EventConnectionAdded, conn))
}

func (r *EventRouter) handleConnectionRemoved(n Notification) {
	conn, ok := r.cache.removeConnection(n.Path)
	if !ok {
		return
	}
	r.emit(connectionEvent(EventConnectionRemoved, conn))
}

func (r *EventRouter) handleDeviceStateChanged(n Notification) {
	newState := DeviceState(n.NewState)
	oldState := DeviceState(n.OldState)

	dev, ok := r.cache.updateDeviceState(n.Path, newState)
	if !ok {
		log.Debugf("[EventRouter] State change for unknown device %s", n.Path)
		return
	}

	r.emit(deviceStateChanged(dev, newState, oldState, n.Reason))
	r.emit(stateChanged(r.refreshState()))
}

func (r *EventRouter) handleActiveConnectionStateChanged(n Notification) {
	state := ActiveConnectionState(n.NewState)

	ac, ok := r.cache.updateActiveConnectionState(n.Path, state, n.Reason)
	if !ok {
		log.Debugf("[EventRouter] State change for unknown active connection %s", n.Path)
		return
	}

	r.emit(connectionStateChanged(ac, state, n.Reason))

	var eventType EventType
	switch state {
	case ActiveConnectionStateActivated:
		eventType = EventConnectionActivated
	case ActiveConnectionStateDeactivated:
		eventType = EventConnectionDeactivated
	default:
		return
	}

	variant, ok := Classify(ac.Profile())
	if !ok {
		log.Debugf("[EventRouter] Connection %s has unmodeled type %q", ac.ID, ac.Type)
		return
	}
	r.emit(variantEvent(eventType, variant))
}

// refreshState re-reads every global property and stores the result. When
// the read fails the cached state is returned unchanged.
func (r *EventRouter) refreshState() NetworkState {
	svc := r.services.Service()
	if svc == nil {
		return r.cache.CurrentState()
	}

	props, err := svc.Properties()
	if err != nil {
		log.Warnf("[EventRouter] Failed to read global properties: %v", err)
		return r.cache.CurrentState()
	}

	state := stateFromProperties(props)
	r.cache.setState(state)
	return state
}

func stateFromProperties(props GlobalProperties) NetworkState {
	state := NetworkState{
		Connectivity:            props.Connectivity,
		NetworkingEnabled:       props.NetworkingEnabled,
		WirelessEnabled:         props.WirelessEnabled,
		WirelessHardwareEnabled: props.WirelessHardwareEnabled,
		WwanEnabled:             props.WwanEnabled,
		WwanHardwareEnabled:     props.WwanHardwareEnabled,
	}
	if p := props.PrimaryConnection; p != nil && p.Path != "" && p.Path != "/" {
		state.PrimaryConnection = &PrimaryConnection{ID: p.ID, Type: p.Type}
	}
	return state
}

// syncActiveConnections replaces the cached active set and keeps exactly one
// subscription per active connection.
func (r *EventRouter) syncActiveConnections() {
	svc := r.services.Service()
	if svc == nil {
		return
	}

	active, err := svc.ActiveConnections()
	if err != nil {
		log.Warnf("[EventRouter] Failed to list active connections: %v", err)
		return
	}

	r.cache.replaceActiveConnections(active)

	present := make(map[dbus.ObjectPath]struct{}, len(active))
	for _, ac := range active {
		present[ac.Path] = struct{}{}
		r.watchActiveConnection(ac.Path)
	}

	for path := range r.watchedActive {
		if _, ok := present[path]; ok {
			continue
		}
		svc.UnwatchActiveConnection(path)
		delete(r.watchedActive, path)
	}
}

// syncDeviceWatches subscribes every cached device and forgets devices that
// are no longer present.
func (r *EventRouter) syncDeviceWatches(devices []Device) {
	present := make(map[dbus.ObjectPath]struct{}, len(devices))
	for _, dev := range devices {
		present[dev.Path] = struct{}{}
		r.watchDevice(dev.Path)
	}
	for path := range r.watchedDevices {
		if _, ok := present[path]; !ok {
			delete(r.watchedDevices, path)
		}
	}
}

func (r *EventRouter) watchDevice(path dbus.ObjectPath) {
	if _, ok := r.watchedDevices[path]; ok {
		return
	}
	svc := r.services.Service()
	if svc == nil {
		return
	}
	if err := svc.WatchDevice(path); err != nil {
		log.Warnf("[EventRouter] Failed to watch device %s: %v", path, err)
		return
	}
	r.watchedDevices[path] = struct{}{}
}

func (r *EventRouter) watchActiveConnection(path dbus.ObjectPath) {
	if _, ok := r.watchedActive[path]; ok {
		return
	}
	svc := r.services.Service()
	if svc == nil {
		return
	}
	if err := svc.WatchActiveConnection(path); err != nil {
		log.Warnf("[EventRouter] Failed to watch active connection %s: %v", path, err)
		return
	}
	r.watchedActive[path] = struct{}{}
}

// trackActivation records an active connection returned by an activate call
// and subscribes to it.
func (r *EventRouter) trackActivation(ac ActiveConnection) {
	r.cache.addActiveConnection(ac)
	r.watchActiveConnection(ac.Path)
}

// reset forgets every subscription. Used when the handle is replaced or lost.
func (r *EventRouter) reset() {
	r.watchedDevices = make(map[dbus.ObjectPath]struct{})
	r.watchedActive = make(map[dbus.ObjectPath]struct{})
}

func (r *EventRouter) watchedPaths() []dbus.ObjectPath {
	paths := append(maps.Keys(r.watchedDevices), maps.Keys(r.watchedActive)...)
	sort.Slice(paths, func(i, j int) bool { return paths[i] < paths[j] })
	return paths
}
