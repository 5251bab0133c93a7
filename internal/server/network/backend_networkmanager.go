package network

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/AvengeMedia/nmmirror/internal/errdefs"
	"github.com/AvengeMedia/nmmirror/internal/log"
	"github.com/Wifx/gonetworkmanager/v2"
	"github.com/godbus/dbus/v5"
)

const notificationBuffer = 256

// managerProperties maps NetworkManager property names to the kinds the
// router cares about. Anything else is ignored.
var managerProperties = map[string]PropertyKind{
	"Connectivity":            PropConnectivity,
	"NetworkingEnabled":       PropNetworkingEnabled,
	"WirelessEnabled":         PropWirelessEnabled,
	"WirelessHardwareEnabled": PropWirelessHardwareEnabled,
	"WwanEnabled":             PropWwanEnabled,
	"WwanHardwareEnabled":     PropWwanHardwareEnabled,
	"PrimaryConnection":       PropPrimaryConnection,
	"PrimaryConnectionType":   PropPrimaryConnection,
	"ActiveConnections":       PropActiveConnections,
}

type matchRule struct {
	path   dbus.ObjectPath
	iface  string
	member string
}

func (r matchRule) options() []dbus.MatchOption {
	return []dbus.MatchOption{
		dbus.WithMatchObjectPath(r.path),
		dbus.WithMatchInterface(r.iface),
		dbus.WithMatchMember(r.member),
	}
}

var baseMatches = []matchRule{
	{dbusNMPath, dbusPropsInterface, "PropertiesChanged"},
	{dbusNMPath, dbusNMInterface, "DeviceAdded"},
	{dbusNMPath, dbusNMInterface, "DeviceRemoved"},
	{dbusNMSettingsPath, dbusNMSettingsInterface, "NewConnection"},
	{dbusNMSettingsPath, dbusNMSettingsInterface, "ConnectionRemoved"},
	{dbusPath, dbusInterface, "NameOwnerChanged"},
}

// NetworkManagerService is the Service backed by NetworkManager on the
// system bus. Reads go through gonetworkmanager; signals and cancellable
// method calls use a private bus connection.
type NetworkManagerService struct {
	nm       gonetworkmanager.NetworkManager
	settings gonetworkmanager.Settings

	dbusConn      *dbus.Conn
	signals       chan *dbus.Signal
	notifications chan Notification
	sigWG         sync.WaitGroup
	stopChan      chan struct{}
	closeOnce     sync.Once

	matchMutex sync.Mutex
	matches    map[dbus.ObjectPath]matchRule
}

// NewNetworkManagerService connects to the system bus and fails with
// ErrServiceUnavailable when NetworkManager is not running.
func NewNetworkManagerService(ctx context.Context) (Service, error) {
	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to system bus: %w", err)
	}

	var hasOwner bool
	if err := conn.BusObject().CallWithContext(ctx, dbusInterface+".NameHasOwner", 0, dbusNMDest).Store(&hasOwner); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to query %s: %w", dbusNMDest, err)
	}
	if !hasOwner {
		conn.Close()
		return nil, errdefs.ErrServiceUnavailable
	}

	nm, err := gonetworkmanager.NewNetworkManager()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to connect to NetworkManager: %w", err)
	}

	settings, err := gonetworkmanager.NewSettings()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to get settings: %w", err)
	}

	s := &NetworkManagerService{
		nm:            nm,
		settings:      settings,
		dbusConn:      conn,
		notifications: make(chan Notification, notificationBuffer),
		stopChan:      make(chan struct{}),
		matches:       make(map[dbus.ObjectPath]matchRule),
	}

	if err := s.startSignalPump(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to subscribe to NetworkManager signals: %w", err)
	}

	return s, nil
}

func (s *NetworkManagerService) startSignalPump() error {
	s.signals = make(chan *dbus.Signal, notificationBuffer)
	s.dbusConn.Signal(s.signals)

	for i, rule := range baseMatches {
		if err := s.dbusConn.AddMatchSignal(rule.options()...); err != nil {
			for _, added := range baseMatches[:i] {
				_ = s.dbusConn.RemoveMatchSignal(added.options()...)
			}
			s.dbusConn.RemoveSignal(s.signals)
			return err
		}
	}

	s.sigWG.Add(1)
	go func() {
		defer s.sigWG.Done()
		defer close(s.notifications)

		for {
			select {
			case <-s.stopChan:
				return
			case sig, ok := <-s.signals:
				if !ok {
					return
				}
				if sig == nil {
					continue
				}
				n, ok := s.translate(sig)
				if !ok {
					continue
				}
				select {
				case s.notifications <- n:
				case <-s.stopChan:
					return
				}
			}
		}
	}()

	return nil
}

func (s *NetworkManagerService) translate(sig *dbus.Signal) (Notification, bool) {
	switch sig.Name {
	case dbusPropsInterface + ".PropertiesChanged":
		if sig.Path != dbusNMPath {
			return Notification{}, false
		}
		return decodePropertiesChanged(sig)

	case dbusNMInterface + ".DeviceAdded":
		path, ok := objectPathArg(sig)
		if !ok {
			return Notification{}, false
		}
		dev, err := s.device(path)
		if err != nil {
			log.Warnf("[NetworkManagerService] Failed to read added device %s: %v", path, err)
			return Notification{}, false
		}
		return Notification{Kind: NotifyDeviceAdded, Path: path, Device: &dev}, true

	case dbusNMInterface + ".DeviceRemoved":
		path, ok := objectPathArg(sig)
		if !ok {
			return Notification{}, false
		}
		s.unwatch(path)
		return Notification{Kind: NotifyDeviceRemoved, Path: path}, true

	case dbusNMSettingsInterface + ".NewConnection":
		path, ok := objectPathArg(sig)
		if !ok {
			return Notification{}, false
		}
		conn, err := s.connection(path)
		if err != nil {
			log.Warnf("[NetworkManagerService] Failed to read new connection %s: %v", path, err)
			return Notification{}, false
		}
		return Notification{Kind: NotifyConnectionAdded, Path: path, Connection: &conn}, true

	case dbusNMSettingsInterface + ".ConnectionRemoved":
		path, ok := objectPathArg(sig)
		if !ok {
			return Notification{}, false
		}
		return Notification{Kind: NotifyConnectionRemoved, Path: path}, true

	case dbusNMDeviceInterface + ".StateChanged":
		return decodeDeviceStateChanged(sig)

	case dbusNMActiveConnectionInterface + ".StateChanged":
		return decodeActiveConnectionStateChanged(sig)

	case dbusInterface + ".NameOwnerChanged":
		return decodeNameOwnerChanged(sig)
	}

	return Notification{}, false
}

func objectPathArg(sig *dbus.Signal) (dbus.ObjectPath, bool) {
	if len(sig.Body) < 1 {
		return "", false
	}
	path, ok := sig.Body[0].(dbus.ObjectPath)
	return path, ok
}

func decodePropertiesChanged(sig *dbus.Signal) (Notification, bool) {
	if len(sig.Body) < 2 {
		return Notification{}, false
	}
	iface, ok := sig.Body[0].(string)
	if !ok || iface != dbusNMInterface {
		return Notification{}, false
	}
	changes, ok := sig.Body[1].(map[string]dbus.Variant)
	if !ok {
		return Notification{}, false
	}

	seen := make(map[PropertyKind]struct{})
	var props []PropertyKind
	for name := range changes {
		kind, ok := managerProperties[name]
		if !ok {
			continue
		}
		if _, dup := seen[kind]; dup {
			continue
		}
		seen[kind] = struct{}{}
		props = append(props, kind)
	}
	if len(props) == 0 {
		return Notification{}, false
	}
	sort.Slice(props, func(i, j int) bool { return props[i] < props[j] })

	return Notification{Kind: NotifyPropertiesChanged, Properties: props}, true
}

// Device.StateChanged carries (new, old, reason).
func decodeDeviceStateChanged(sig *dbus.Signal) (Notification, bool) {
	if len(sig.Body) < 3 {
		return Notification{}, false
	}
	newState, ok1 := sig.Body[0].(uint32)
	oldState, ok2 := sig.Body[1].(uint32)
	reason, ok3 := sig.Body[2].(uint32)
	if !ok1 || !ok2 || !ok3 {
		return Notification{}, false
	}
	return Notification{
		Kind:     NotifyDeviceStateChanged,
		Path:     sig.Path,
		NewState: newState,
		OldState: oldState,
		Reason:   reason,
	}, true
}

// Connection.Active.StateChanged carries (state, reason).
func decodeActiveConnectionStateChanged(sig *dbus.Signal) (Notification, bool) {
	if len(sig.Body) < 2 {
		return Notification{}, false
	}
	state, ok1 := sig.Body[0].(uint32)
	reason, ok2 := sig.Body[1].(uint32)
	if !ok1 || !ok2 {
		return Notification{}, false
	}
	return Notification{
		Kind:     NotifyActiveConnectionStateChanged,
		Path:     sig.Path,
		NewState: state,
		Reason:   reason,
	}, true
}

func decodeNameOwnerChanged(sig *dbus.Signal) (Notification, bool) {
	if len(sig.Body) < 3 {
		return Notification{}, false
	}
	name, _ := sig.Body[0].(string)
	newOwner, _ := sig.Body[2].(string)
	if name != dbusNMDest || newOwner != "" {
		return Notification{}, false
	}
	return Notification{Kind: NotifyServiceVanished}, true
}

func (s *NetworkManagerService) Notifications() <-chan Notification {
	return s.notifications
}

func (s *NetworkManagerService) WatchDevice(path dbus.ObjectPath) error {
	return s.watch(matchRule{path, dbusNMDeviceInterface, "StateChanged"})
}

func (s *NetworkManagerService) WatchActiveConnection(path dbus.ObjectPath) error {
	return s.watch(matchRule{path, dbusNMActiveConnectionInterface, "StateChanged"})
}

func (s *NetworkManagerService) UnwatchActiveConnection(path dbus.ObjectPath) {
	s.unwatch(path)
}

func (s *NetworkManagerService) watch(rule matchRule) error {
	s.matchMutex.Lock()
	defer s.matchMutex.Unlock()

	if _, ok := s.matches[rule.path]; ok {
		return nil
	}
	if err := s.dbusConn.AddMatchSignal(rule.options()...); err != nil {
		return err
	}
	s.matches[rule.path] = rule
	return nil
}

func (s *NetworkManagerService) unwatch(path dbus.ObjectPath) {
	s.matchMutex.Lock()
	defer s.matchMutex.Unlock()

	rule, ok := s.matches[path]
	if !ok {
		return
	}
	delete(s.matches, path)
	if err := s.dbusConn.RemoveMatchSignal(rule.options()...); err != nil {
		log.Debugf("[NetworkManagerService] Failed to remove match for %s: %v", path, err)
	}
}

func (s *NetworkManagerService) Devices() ([]Device, error) {
	devices, err := s.nm.GetDevices()
	if err != nil {
		return nil, fmt.Errorf("failed to get devices: %w", err)
	}

	result := make([]Device, 0, len(devices))
	for _, dev := range devices {
		d, err := deviceFromNM(dev)
		if err != nil {
			log.Debugf("[NetworkManagerService] Skipping device %s: %v", dev.GetPath(), err)
			continue
		}
		result = append(result, d)
	}
	return result, nil
}

func (s *NetworkManagerService) device(path dbus.ObjectPath) (Device, error) {
	dev, err := gonetworkmanager.NewDevice(path)
	if err != nil {
		return Device{}, err
	}
	return deviceFromNM(dev)
}

func deviceFromNM(dev gonetworkmanager.Device) (Device, error) {
	iface, err := dev.GetPropertyInterface()
	if err != nil {
		return Device{}, err
	}
	devType, err := dev.GetPropertyDeviceType()
	if err != nil {
		return Device{}, err
	}
	state, err := dev.GetPropertyState()
	if err != nil {
		return Device{}, err
	}
	return Device{
		Path:      dev.GetPath(),
		Interface: iface,
		Type:      deviceTypeFromNM(uint32(devType)),
		State:     DeviceState(state),
	}, nil
}

func deviceTypeFromNM(t uint32) DeviceType {
	switch t {
	case 0:
		return DeviceTypeUnknown
	case nmDeviceTypeEthernet:
		return DeviceTypeEthernet
	case nmDeviceTypeWifi:
		return DeviceTypeWiFi
	case nmDeviceTypeModem:
		return DeviceTypeModem
	case nmDeviceTypeBridge:
		return DeviceTypeBridge
	case nmDeviceTypeBond:
		return DeviceTypeBond
	case nmDeviceTypeVlan:
		return DeviceTypeVLAN
	case nmDeviceTypeWireguard:
		return DeviceTypeWireGuard
	case nmDeviceTypeLoopback:
		return DeviceTypeLoopback
	default:
		return DeviceTypeOther
	}
}

func (s *NetworkManagerService) Connections() ([]Connection, error) {
	connections, err := s.settings.ListConnections()
	if err != nil {
		return nil, fmt.Errorf("failed to get connections: %w", err)
	}

	result := make([]Connection, 0, len(connections))
	for _, c := range connections {
		path := c.GetPath()
		settings, err := c.GetSettings()
		if err != nil {
			log.Errorf("unable to get settings for %s: %v", path, err)
			continue
		}
		if conn, ok := connectionFromSettings(path, settings); ok {
			result = append(result, conn)
		}
	}
	return result, nil
}

func (s *NetworkManagerService) connection(path dbus.ObjectPath) (Connection, error) {
	c, err := gonetworkmanager.NewConnection(path)
	if err != nil {
		return Connection{}, err
	}
	settings, err := c.GetSettings()
	if err != nil {
		return Connection{}, err
	}
	conn, ok := connectionFromSettings(path, settings)
	if !ok {
		return Connection{}, fmt.Errorf("connection %s has no identity settings", path)
	}
	return conn, nil
}

func connectionFromSettings(path dbus.ObjectPath, settings gonetworkmanager.ConnectionSettings) (Connection, bool) {
	connectionSettings, ok := settings["connection"]
	if !ok {
		return Connection{}, false
	}
	connUUID, _ := connectionSettings["uuid"].(string)
	connID, _ := connectionSettings["id"].(string)
	connType, _ := connectionSettings["type"].(string)
	if connUUID == "" {
		return Connection{}, false
	}
	return Connection{Path: path, UUID: connUUID, ID: connID, Type: connType}, true
}

func (s *NetworkManagerService) ActiveConnections() ([]ActiveConnection, error) {
	activeConns, err := s.nm.GetPropertyActiveConnections()
	if err != nil {
		return nil, fmt.Errorf("failed to get active connections: %w", err)
	}

	result := make([]ActiveConnection, 0, len(activeConns))
	for _, activeConn := range activeConns {
		ac, err := activeConnectionFromNM(activeConn)
		if err != nil {
			log.Debugf("[NetworkManagerService] Skipping active connection %s: %v", activeConn.GetPath(), err)
			continue
		}
		result = append(result, ac)
	}
	return result, nil
}

func activeConnectionFromNM(activeConn gonetworkmanager.ActiveConnection) (ActiveConnection, error) {
	id, err := activeConn.GetPropertyID()
	if err != nil {
		return ActiveConnection{}, err
	}
	connUUID, err := activeConn.GetPropertyUUID()
	if err != nil {
		return ActiveConnection{}, err
	}
	connType, err := activeConn.GetPropertyType()
	if err != nil {
		return ActiveConnection{}, err
	}
	state, err := activeConn.GetPropertyState()
	if err != nil {
		return ActiveConnection{}, err
	}

	ac := ActiveConnection{
		Path:  activeConn.GetPath(),
		UUID:  connUUID,
		ID:    id,
		Type:  connType,
		State: ActiveConnectionState(state),
	}
	if conn, err := activeConn.GetPropertyConnection(); err == nil && conn != nil {
		ac.ConnectionPath = conn.GetPath()
	}
	return ac, nil
}

// Properties reads every global property in one GetAll call so the snapshot
// is consistent.
func (s *NetworkManagerService) Properties() (GlobalProperties, error) {
	var all map[string]dbus.Variant
	obj := s.dbusConn.Object(dbusNMDest, dbusNMPath)
	if err := obj.Call(dbusPropsInterface+".GetAll", 0, dbusNMInterface).Store(&all); err != nil {
		return GlobalProperties{}, fmt.Errorf("failed to read NetworkManager properties: %w", err)
	}

	props := GlobalProperties{
		Connectivity:            Connectivity(variantUint32(all["Connectivity"])),
		NetworkingEnabled:       variantBool(all["NetworkingEnabled"]),
		WirelessEnabled:         variantBool(all["WirelessEnabled"]),
		WirelessHardwareEnabled: variantBool(all["WirelessHardwareEnabled"]),
		WwanEnabled:             variantBool(all["WwanEnabled"]),
		WwanHardwareEnabled:     variantBool(all["WwanHardwareEnabled"]),
	}

	primaryPath, _ := all["PrimaryConnection"].Value().(dbus.ObjectPath)
	if primaryPath == "" || primaryPath == "/" {
		return props, nil
	}

	primaryConn, err := gonetworkmanager.NewActiveConnection(primaryPath)
	if err != nil {
		return GlobalProperties{}, fmt.Errorf("failed to open primary connection: %w", err)
	}
	primary, err := activeConnectionFromNM(primaryConn)
	if err != nil {
		// The primary connection can disappear between the two reads.
		log.Debugf("[NetworkManagerService] Primary connection %s vanished: %v", primaryPath, err)
		return props, nil
	}
	props.PrimaryConnection = &primary

	return props, nil
}

func variantBool(v dbus.Variant) bool {
	b, _ := v.Value().(bool)
	return b
}

func variantUint32(v dbus.Variant) uint32 {
	u, _ := v.Value().(uint32)
	return u
}

func (s *NetworkManagerService) ActivateConnection(ctx context.Context, conn Connection, dev *Device) (ActiveConnection, error) {
	devPath := dbus.ObjectPath("/")
	if dev != nil {
		devPath = dev.Path
	}

	var acPath dbus.ObjectPath
	obj := s.dbusConn.Object(dbusNMDest, dbusNMPath)
	call := obj.CallWithContext(ctx, dbusNMInterface+".ActivateConnection", 0, conn.Path, devPath, dbus.ObjectPath("/"))
	if err := call.Store(&acPath); err != nil {
		return ActiveConnection{}, err
	}
	if acPath == "" || acPath == "/" {
		return ActiveConnection{}, errNoActiveConnection
	}

	ac := ActiveConnection{
		Path:           acPath,
		ConnectionPath: conn.Path,
		UUID:           conn.UUID,
		ID:             conn.ID,
		Type:           conn.Type,
		State:          ActiveConnectionStateActivating,
	}
	if activeConn, err := gonetworkmanager.NewActiveConnection(acPath); err == nil {
		if state, err := activeConn.GetPropertyState(); err == nil {
			ac.State = ActiveConnectionState(state)
		}
	}
	return ac, nil
}

func (s *NetworkManagerService) DeactivateConnection(ctx context.Context, ac ActiveConnection) error {
	obj := s.dbusConn.Object(dbusNMDest, dbusNMPath)
	return obj.CallWithContext(ctx, dbusNMInterface+".DeactivateConnection", 0, ac.Path).Err
}

func (s *NetworkManagerService) CheckConnectivity(ctx context.Context) (Connectivity, error) {
	var state uint32
	obj := s.dbusConn.Object(dbusNMDest, dbusNMPath)
	if err := obj.CallWithContext(ctx, dbusNMInterface+".CheckConnectivity", 0).Store(&state); err != nil {
		return ConnectivityUnknown, err
	}
	return Connectivity(state), nil
}

func (s *NetworkManagerService) SetWirelessEnabled(enabled bool) error {
	if err := s.nm.SetPropertyWirelessEnabled(enabled); err != nil {
		return fmt.Errorf("failed to set WirelessEnabled: %w", err)
	}
	return nil
}

func (s *NetworkManagerService) SetWWANEnabled(enabled bool) error {
	obj := s.dbusConn.Object(dbusNMDest, dbusNMPath)
	if err := obj.SetProperty(dbusNMInterface+".WwanEnabled", dbus.MakeVariant(enabled)); err != nil {
		return fmt.Errorf("failed to set WwanEnabled: %w", err)
	}
	return nil
}

func (s *NetworkManagerService) Close() {
	s.closeOnce.Do(func() {
		close(s.stopChan)

		s.matchMutex.Lock()
		for path, rule := range s.matches {
			_ = s.dbusConn.RemoveMatchSignal(rule.options()...)
			delete(s.matches, path)
		}
		s.matchMutex.Unlock()

		for _, rule := range baseMatches {
			_ = s.dbusConn.RemoveMatchSignal(rule.options()...)
		}
		s.dbusConn.RemoveSignal(s.signals)

		s.sigWG.Wait()
		s.dbusConn.Close()
	})
}
