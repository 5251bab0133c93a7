package network

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/AvengeMedia/nmmirror/internal/errdefs"
	"github.com/AvengeMedia/nmmirror/internal/log"
)

var errNoHandle = errors.New("service factory returned no handle")

// AvailabilityMonitor owns the service handle. It is Unavailable until
// Initialize succeeds and goes back to Unavailable on HandleUnavailable.
// Initialize and HandleUnavailable must run on the Manager's event loop;
// Service and Available may be called from anywhere.
type AvailabilityMonitor struct {
	factory ServiceFactory
	cache   *StateCache
	router  *EventRouter
	emit    func(Event)

	mu        sync.RWMutex
	svc       Service
	available bool
	lastErr   error
}

func NewAvailabilityMonitor(factory ServiceFactory, cache *StateCache, emit func(Event)) *AvailabilityMonitor {
	return &AvailabilityMonitor{
		factory: factory,
		cache:   cache,
		emit:    emit,
	}
}

func (a *AvailabilityMonitor) attachRouter(r *EventRouter) {
	a.router = r
}

func (a *AvailabilityMonitor) Service() Service {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.svc
}

// liveService returns the handle only once initialization has completed.
func (a *AvailabilityMonitor) liveService() Service {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if !a.available {
		return nil
	}
	return a.svc
}

func (a *AvailabilityMonitor) Available() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.available
}

// LastError is the most recent initialization failure, or nil.
func (a *AvailabilityMonitor) LastError() error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.lastErr
}

func (a *AvailabilityMonitor) notifications() <-chan Notification {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.svc == nil {
		return nil
	}
	return a.svc.Notifications()
}

func (a *AvailabilityMonitor) setService(svc Service, available bool) {
	a.mu.Lock()
	a.svc = svc
	a.available = available
	a.mu.Unlock()
}

func (a *AvailabilityMonitor) fail(err error) bool {
	err = errdefs.NewInitializationFailed(err)
	log.Warnf("[AvailabilityMonitor] %v", err)

	a.mu.Lock()
	a.lastErr = err
	a.mu.Unlock()

	a.emit(availabilityChanged(false))
	return false
}

// Initialize acquires a handle when none is attached, repopulates the cache
// from it and reports whether the service is available afterwards. Failures
// are only surfaced as AvailabilityChanged(false).
func (a *AvailabilityMonitor) Initialize(ctx context.Context) bool {
	if svc := a.Service(); svc != nil {
		if err := a.refresh(svc); err != nil {
			log.Warnf("[AvailabilityMonitor] Refresh failed, keeping cached state: %v", err)
			return true
		}
		a.emit(stateChanged(a.cache.CurrentState()))
		return true
	}

	svc, err := a.factory(ctx)
	if err == nil && svc == nil {
		err = errNoHandle
	}
	if err != nil {
		return a.fail(err)
	}

	a.router.reset()
	a.setService(svc, false)

	if err := a.refresh(svc); err != nil {
		a.setService(nil, false)
		a.router.reset()
		a.cache.Reset()
		svc.Close()
		return a.fail(err)
	}

	a.mu.Lock()
	a.available = true
	a.lastErr = nil
	a.mu.Unlock()

	log.Info("[AvailabilityMonitor] Network service available")
	a.emit(availabilityChanged(true))
	a.emit(stateChanged(a.cache.CurrentState()))
	return true
}

// Reconnect re-enters Initialize. Running it while available only refreshes.
func (a *AvailabilityMonitor) Reconnect(ctx context.Context) bool {
	return a.Initialize(ctx)
}

// refresh discards and repopulates the cache from svc.
func (a *AvailabilityMonitor) refresh(svc Service) error {
	devices, err := svc.Devices()
	if err != nil {
		return fmt.Errorf("failed to get devices: %w", err)
	}

	connections, err := svc.Connections()
	if err != nil {
		return fmt.Errorf("failed to get connections: %w", err)
	}

	props, err := svc.Properties()
	if err != nil {
		return fmt.Errorf("failed to read global properties: %w", err)
	}

	a.cache.replaceDevices(devices)
	a.cache.replaceConnections(connections)
	a.router.syncDeviceWatches(a.cache.Devices())
	a.router.syncActiveConnections()
	a.cache.setState(stateFromProperties(props))

	return nil
}

// HandleUnavailable drops the handle and clears the cache. Safe to call in
// any state.
func (a *AvailabilityMonitor) HandleUnavailable() {
	a.mu.Lock()
	svc := a.svc
	a.svc = nil
	a.available = false
	a.mu.Unlock()

	if svc != nil {
		svc.Close()
	}

	a.router.reset()
	a.cache.Reset()

	log.Warn("[AvailabilityMonitor] Network service unavailable")
	a.emit(availabilityChanged(false))
	a.emit(stateChanged(a.cache.CurrentState()))
}
