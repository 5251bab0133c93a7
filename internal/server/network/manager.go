package network

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/AvengeMedia/nmmirror/internal/log"
	"github.com/godbus/dbus/v5"
	"github.com/google/uuid"
)

var ErrManagerClosed = errors.New("network manager closed")

type Manager struct {
	cache     *StateCache
	router    *EventRouter
	activator *ConnectionActivator
	monitor   *AvailabilityMonitor

	subscribers map[string]chan Event
	subMutex    sync.RWMutex
	eventBuffer int

	tasks             chan func()
	stopChan          chan struct{}
	closeOnce         sync.Once
	loopWG            sync.WaitGroup
	reconnectInterval time.Duration
	operationTimeout  time.Duration
}

type Option func(*Manager)

// WithReconnectInterval makes the event loop retry Initialize at the given
// interval while the service is unavailable. Zero disables retries.
func WithReconnectInterval(d time.Duration) Option {
	return func(m *Manager) { m.reconnectInterval = d }
}

// WithOperationTimeout bounds remote calls started through OperationContext.
func WithOperationTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.operationTimeout = d
		}
	}
}

func WithEventBuffer(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.eventBuffer = n
		}
	}
}

// NewManager wires the components around factory and starts the event loop.
// The service stays unavailable until Initialize is called.
func NewManager(factory ServiceFactory, opts ...Option) *Manager {
	m := &Manager{
		cache:       NewStateCache(),
		subscribers: make(map[string]chan Event),
		eventBuffer: 64,
		tasks:       make(chan func()),
		stopChan:    make(chan struct{}),

		operationTimeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(m)
	}

	m.monitor = NewAvailabilityMonitor(factory, m.cache, m.broadcast)
	m.router = NewEventRouter(m.cache, m.monitor, m.broadcast)
	m.monitor.attachRouter(m.router)
	m.activator = NewConnectionActivator(m.monitor.liveService, m.trackActivation)

	m.loopWG.Add(1)
	go m.run()

	return m
}

func (m *Manager) run() {
	defer m.loopWG.Done()

	var retry <-chan time.Time
	if m.reconnectInterval > 0 {
		ticker := time.NewTicker(m.reconnectInterval)
		defer ticker.Stop()
		retry = ticker.C
	}

	for {
		notifications := m.monitor.notifications()

		select {
		case <-m.stopChan:
			return

		case task := <-m.tasks:
			task()

		case n, ok := <-notifications:
			if !ok {
				m.monitor.HandleUnavailable()
				continue
			}
			m.dispatch(n)

		case <-retry:
			if !m.monitor.Available() {
				log.Debug("[Manager] Retrying network service initialization")
				ctx, cancel := context.WithTimeout(context.Background(), m.reconnectInterval)
				m.monitor.Initialize(ctx)
				cancel()
			}
		}
	}
}

func (m *Manager) dispatch(n Notification) {
	if n.Kind == NotifyServiceVanished {
		m.monitor.HandleUnavailable()
		return
	}
	m.router.Handle(n)
}

// do runs fn on the event loop and waits for it. If ctx ends first, fn still
// runs but the caller stops waiting.
func (m *Manager) do(ctx context.Context, fn func()) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	done := make(chan struct{})
	task := func() {
		defer close(done)
		fn()
	}

	select {
	case m.tasks <- task:
	case <-m.stopChan:
		return ErrManagerClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-done:
		return nil
	case <-m.stopChan:
		return ErrManagerClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// trackActivation is posted with its own context: the subscription has to be
// set up even if the caller of Activate already gave up.
func (m *Manager) trackActivation(ac ActiveConnection) error {
	return m.do(context.Background(), func() { m.router.trackActivation(ac) })
}

func (m *Manager) broadcast(ev Event) {
	m.subMutex.RLock()
	defer m.subMutex.RUnlock()

	for id, ch := range m.subscribers {
		select {
		case ch <- ev:
		default:
			log.Warnf("[Manager] Subscriber %s is not keeping up, dropped %s", id, ev.Type)
		}
	}
}

// Initialize connects to the service. It returns whether the service is
// available afterwards; failures are reported as AvailabilityChanged(false).
func (m *Manager) Initialize(ctx context.Context) bool {
	var ok bool
	if err := m.do(ctx, func() { ok = m.monitor.Initialize(ctx) }); err != nil {
		return false
	}
	return ok
}

func (m *Manager) Reconnect(ctx context.Context) bool {
	var ok bool
	if err := m.do(ctx, func() { ok = m.monitor.Reconnect(ctx) }); err != nil {
		return false
	}
	return ok
}

// HandleUnavailable is called when something outside the manager notices
// that the service is gone.
func (m *Manager) HandleUnavailable() {
	_ = m.do(context.Background(), m.monitor.HandleUnavailable)
}

func (m *Manager) Available() bool {
	return m.monitor.Available()
}

func (m *Manager) LastInitError() error {
	return m.monitor.LastError()
}

func (m *Manager) GetState() NetworkState {
	return m.cache.CurrentState()
}

// OperationContext returns a context bounded by the configured operation
// timeout.
func (m *Manager) OperationContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), m.operationTimeout)
}

func (m *Manager) Cache() *StateCache {
	return m.cache
}

func (m *Manager) Activator() *ConnectionActivator {
	return m.activator
}

func (m *Manager) Activate(ctx context.Context, conn Connection, dev *Device) (ActiveConnection, error) {
	return m.activator.Activate(ctx, conn, dev)
}

// ActivateByUUID looks the profile up in the cache. An empty iface lets the
// service pick the device.
func (m *Manager) ActivateByUUID(ctx context.Context, connUUID, iface string) (ActiveConnection, error) {
	conn, ok := m.cache.ConnectionByUUID(connUUID)
	if !ok {
		return ActiveConnection{}, fmt.Errorf("connection with UUID %s not found", connUUID)
	}

	var dev *Device
	if iface != "" {
		d, ok := m.cache.DeviceByInterface(iface)
		if !ok {
			return ActiveConnection{}, fmt.Errorf("device %s not found", iface)
		}
		dev = &d
	}

	return m.activator.Activate(ctx, conn, dev)
}

func (m *Manager) Deactivate(ctx context.Context, ac ActiveConnection) error {
	return m.activator.Deactivate(ctx, ac)
}

func (m *Manager) DeactivateByUUID(ctx context.Context, connUUID string) error {
	ac, ok := m.cache.ActiveConnectionByUUID(connUUID)
	if !ok {
		return fmt.Errorf("connection with UUID %s is not active", connUUID)
	}
	return m.activator.Deactivate(ctx, ac)
}

func (m *Manager) CheckConnectivity(ctx context.Context) (Connectivity, error) {
	return m.activator.CheckConnectivity(ctx)
}

func (m *Manager) SetWirelessEnabled(enabled bool) error {
	return m.activator.SetWirelessEnabled(enabled)
}

func (m *Manager) SetWWANEnabled(enabled bool) error {
	return m.activator.SetWWANEnabled(enabled)
}

// WatchedPaths lists the object paths currently subscribed for state changes.
func (m *Manager) WatchedPaths(ctx context.Context) ([]dbus.ObjectPath, error) {
	var paths []dbus.ObjectPath
	if err := m.do(ctx, func() { paths = m.router.watchedPaths() }); err != nil {
		return nil, err
	}
	return paths, nil
}

// Subscribe registers a new event channel. An empty id gets a random one.
func (m *Manager) Subscribe(id string) (string, chan Event) {
	if id == "" {
		id = uuid.NewString()
	}
	ch := make(chan Event, m.eventBuffer)
	m.subMutex.Lock()
	if old, ok := m.subscribers[id]; ok {
		close(old)
	}
	m.subscribers[id] = ch
	m.subMutex.Unlock()
	return id, ch
}

func (m *Manager) Unsubscribe(id string) {
	m.subMutex.Lock()
	if ch, ok := m.subscribers[id]; ok {
		close(ch)
		delete(m.subscribers, id)
	}
	m.subMutex.Unlock()
}

// Close stops the event loop, releases the service handle and closes every
// subscriber channel.
func (m *Manager) Close() {
	m.closeOnce.Do(func() {
		close(m.stopChan)
		m.loopWG.Wait()

		if svc := m.monitor.Service(); svc != nil {
			m.monitor.setService(nil, false)
			svc.Close()
		}

		m.subMutex.Lock()
		for _, ch := range m.subscribers {
			close(ch)
		}
		m.subscribers = make(map[string]chan Event)
		m.subMutex.Unlock()
	})
}
