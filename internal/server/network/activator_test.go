package network

import (
	"context"
	"errors"
	"testing"

	"github.com/AvengeMedia/nmmirror/internal/errdefs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnectionActivator_UnavailableFailsWithoutRemoteCall(t *testing.T) {
	svc := newFakeService()
	var live Service
	a := NewConnectionActivator(func() Service { return live }, nil)
	ctx := context.Background()

	_, err := a.Activate(ctx, homeConn, nil)
	assert.True(t, errors.Is(err, errdefs.ErrServiceUnavailable))

	err = a.Deactivate(ctx, activeFor(homeConn, 1, ActiveConnectionStateActivated))
	assert.True(t, errors.Is(err, errdefs.ErrServiceUnavailable))

	c, err := a.CheckConnectivity(ctx)
	assert.True(t, errors.Is(err, errdefs.ErrServiceUnavailable))
	assert.Equal(t, ConnectivityUnknown, c)

	assert.NoError(t, a.SetWirelessEnabled(true))
	assert.NoError(t, a.SetWWANEnabled(false))

	assert.Equal(t, 0, svc.calls())
}

func TestConnectionActivator_Activate(t *testing.T) {
	svc := newFakeService()
	svc.set(func(f *fakeService) {
		f.activateResult = ActiveConnection{
			Path:  "/org/freedesktop/NetworkManager/ActiveConnection/7",
			State: ActiveConnectionStateActivating,
		}
	})

	var tracked []ActiveConnection
	a := NewConnectionActivator(func() Service { return svc }, func(ac ActiveConnection) error {
		tracked = append(tracked, ac)
		return nil
	})

	dev := wlan0
	ac, err := a.Activate(context.Background(), homeConn, &dev)
	require.NoError(t, err)

	assert.Equal(t, "u1", ac.UUID)
	assert.Equal(t, "Home", ac.ID)
	assert.Equal(t, ConnectionTypeWireless, ac.Type)
	assert.Equal(t, homeConn.Path, ac.ConnectionPath)
	assert.Equal(t, []ActiveConnection{ac}, tracked)
	assert.Equal(t, 0, a.InFlight("u1"))
	assert.Equal(t, 1, svc.calls())
}

func TestConnectionActivator_ActivateRemoteError(t *testing.T) {
	remote := errors.New("org.freedesktop.NetworkManager.UnknownConnection")
	svc := newFakeService()
	svc.set(func(f *fakeService) { f.activateErr = remote })
	a := NewConnectionActivator(func() Service { return svc }, nil)

	_, err := a.Activate(context.Background(), homeConn, nil)

	require.Error(t, err)
	assert.True(t, errdefs.IsType(err, errdefs.ErrTypeActivationFailed))
	assert.True(t, errors.Is(err, errdefs.ErrActivationFailed))
	assert.True(t, errors.Is(err, remote))
	assert.Equal(t, err, a.LastError())
}

func TestConnectionActivator_ActivateWithoutActiveConnection(t *testing.T) {
	svc := newFakeService()
	svc.set(func(f *fakeService) { f.activateResult = ActiveConnection{Path: "/"} })
	tracked := false
	a := NewConnectionActivator(func() Service { return svc }, func(ac ActiveConnection) error {
		tracked = true
		return nil
	})

	_, err := a.Activate(context.Background(), homeConn, nil)

	assert.True(t, errors.Is(err, errdefs.ErrActivationFailed))
	assert.ErrorIs(t, err, errNoActiveConnection)
	assert.False(t, tracked)
}

func TestConnectionActivator_TrackFailureIsNotFatal(t *testing.T) {
	svc := newFakeService()
	svc.set(func(f *fakeService) {
		f.activateResult = ActiveConnection{Path: "/org/freedesktop/NetworkManager/ActiveConnection/7"}
	})
	a := NewConnectionActivator(func() Service { return svc }, func(ac ActiveConnection) error {
		return ErrManagerClosed
	})

	_, err := a.Activate(context.Background(), homeConn, nil)
	assert.NoError(t, err)
}

func TestConnectionActivator_DeactivateError(t *testing.T) {
	svc := newFakeService()
	svc.set(func(f *fakeService) { f.deactErr = errors.New("not active") })
	a := NewConnectionActivator(func() Service { return svc }, nil)

	err := a.Deactivate(context.Background(), activeFor(homeConn, 1, ActiveConnectionStateActivated))

	assert.True(t, errors.Is(err, errdefs.ErrDeactivationFailed))
	assert.False(t, errors.Is(err, errdefs.ErrActivationFailed))
}

func TestConnectionActivator_CheckConnectivity(t *testing.T) {
	svc := newFakeService()
	svc.set(func(f *fakeService) { f.connectivity = ConnectivityPortal })
	a := NewConnectionActivator(func() Service { return svc }, nil)

	c, err := a.CheckConnectivity(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ConnectivityPortal, c)

	svc.set(func(f *fakeService) { f.checkErr = errors.New("timeout") })
	_, err = a.CheckConnectivity(context.Background())
	assert.True(t, errors.Is(err, errdefs.ErrConnectivityCheck))
}

func TestConnectionActivator_Radios(t *testing.T) {
	svc := newFakeService()
	a := NewConnectionActivator(func() Service { return svc }, nil)

	require.NoError(t, a.SetWirelessEnabled(false))
	require.NoError(t, a.SetWWANEnabled(true))
	assert.Equal(t, []bool{false}, svc.wirelessSet)
	assert.Equal(t, []bool{true}, svc.wwanSet)

	radioErr := errors.New("permission denied")
	svc.set(func(f *fakeService) { f.radioErr = radioErr })
	assert.ErrorIs(t, a.SetWirelessEnabled(true), radioErr)
	assert.ErrorIs(t, a.LastError(), radioErr)
}
