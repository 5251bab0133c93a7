package network

import (
	"context"
	"errors"
	"sync"

	"github.com/AvengeMedia/nmmirror/internal/errdefs"
	"github.com/AvengeMedia/nmmirror/internal/log"
)

var errNoActiveConnection = errors.New("service returned no active connection")

// ConnectionActivator runs the remote control operations. Remote calls block
// the calling goroutine only; concurrent activations of the same connection
// are not coalesced.
type ConnectionActivator struct {
	service func() Service
	track   func(ac ActiveConnection) error

	mu       sync.Mutex
	inFlight map[string]int
	lastErr  error
}

// NewConnectionActivator takes the live handle source and a hook that
// subscribes a freshly activated connection. The hook must run to completion
// even when the caller of Activate has given up.
func NewConnectionActivator(service func() Service, track func(ac ActiveConnection) error) *ConnectionActivator {
	return &ConnectionActivator{
		service:  service,
		track:    track,
		inFlight: make(map[string]int),
	}
}

func (a *ConnectionActivator) begin(key string) func() {
	a.mu.Lock()
	a.inFlight[key]++
	a.mu.Unlock()

	return func() {
		a.mu.Lock()
		if a.inFlight[key] <= 1 {
			delete(a.inFlight, key)
		} else {
			a.inFlight[key]--
		}
		a.mu.Unlock()
	}
}

func (a *ConnectionActivator) record(op string, err error) error {
	log.Warnf("[ConnectionActivator] %s: %v", op, err)
	a.mu.Lock()
	a.lastErr = err
	a.mu.Unlock()
	return err
}

// InFlight reports how many operations on the connection uuid are pending.
func (a *ConnectionActivator) InFlight(uuid string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.inFlight[uuid]
}

func (a *ConnectionActivator) LastError() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastErr
}

// Activate brings conn up, optionally on dev, and subscribes to the returned
// active connection before handing it back.
func (a *ConnectionActivator) Activate(ctx context.Context, conn Connection, dev *Device) (ActiveConnection, error) {
	svc := a.service()
	if svc == nil {
		return ActiveConnection{}, errdefs.ErrServiceUnavailable
	}

	done := a.begin(conn.UUID)
	defer done()

	ac, err := svc.ActivateConnection(ctx, conn, dev)
	if err != nil {
		return ActiveConnection{}, a.record("activate "+conn.ID, errdefs.NewActivationFailed(err))
	}
	if ac.Path == "" || ac.Path == "/" {
		return ActiveConnection{}, a.record("activate "+conn.ID, errdefs.NewActivationFailed(errNoActiveConnection))
	}
	if ac.UUID == "" {
		ac.UUID = conn.UUID
	}
	if ac.ID == "" {
		ac.ID = conn.ID
	}
	if ac.Type == "" {
		ac.Type = conn.Type
	}
	if ac.ConnectionPath == "" {
		ac.ConnectionPath = conn.Path
	}

	if a.track != nil {
		if err := a.track(ac); err != nil {
			log.Warnf("[ConnectionActivator] Failed to subscribe to %s: %v", ac.Path, err)
		}
	}

	log.Infof("[ConnectionActivator] Activating %s (%s)", conn.ID, ac.Path)
	return ac, nil
}

func (a *ConnectionActivator) Deactivate(ctx context.Context, ac ActiveConnection) error {
	svc := a.service()
	if svc == nil {
		return errdefs.ErrServiceUnavailable
	}

	done := a.begin(ac.UUID)
	defer done()

	if err := svc.DeactivateConnection(ctx, ac); err != nil {
		return a.record("deactivate "+ac.ID, errdefs.NewDeactivationFailed(err))
	}
	return nil
}

func (a *ConnectionActivator) CheckConnectivity(ctx context.Context) (Connectivity, error) {
	svc := a.service()
	if svc == nil {
		return ConnectivityUnknown, errdefs.ErrServiceUnavailable
	}

	c, err := svc.CheckConnectivity(ctx)
	if err != nil {
		return ConnectivityUnknown, a.record("check connectivity", errdefs.NewConnectivityCheckFailed(err))
	}
	return c, nil
}

// SetWirelessEnabled is a no-op while the service is unavailable.
func (a *ConnectionActivator) SetWirelessEnabled(enabled bool) error {
	svc := a.service()
	if svc == nil {
		log.Debugf("[ConnectionActivator] Ignoring wireless=%t, service unavailable", enabled)
		return nil
	}
	if err := svc.SetWirelessEnabled(enabled); err != nil {
		return a.record("set wireless", err)
	}
	return nil
}

// SetWWANEnabled is a no-op while the service is unavailable.
func (a *ConnectionActivator) SetWWANEnabled(enabled bool) error {
	svc := a.service()
	if svc == nil {
		log.Debugf("[ConnectionActivator] Ignoring wwan=%t, service unavailable", enabled)
		return nil
	}
	if err := svc.SetWWANEnabled(enabled); err != nil {
		return a.record("set wwan", err)
	}
	return nil
}
