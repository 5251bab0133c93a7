package loginctl

import (
	"fmt"
	"sync"

	"github.com/AvengeMedia/nmmirror/internal/log"
	"github.com/godbus/dbus/v5"
)

const (
	dbusLogin1Path       = "/org/freedesktop/login1"
	dbusManagerInterface = "org.freedesktop.login1.Manager"
	prepareForSleep      = dbusManagerInterface + ".PrepareForSleep"
)

// SleepWatcher follows logind's PrepareForSleep signal and calls onResume
// each time the system wakes up.
type SleepWatcher struct {
	conn     *dbus.Conn
	signals  chan *dbus.Signal
	onResume func()

	sigWG     sync.WaitGroup
	stopChan  chan struct{}
	closeOnce sync.Once
}

func NewSleepWatcher(onResume func()) (*SleepWatcher, error) {
	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to system bus: %w", err)
	}

	w := &SleepWatcher{
		conn:     conn,
		signals:  make(chan *dbus.Signal, 16),
		onResume: onResume,
		stopChan: make(chan struct{}),
	}

	if err := w.startSignalPump(); err != nil {
		conn.Close()
		return nil, err
	}
	return w, nil
}

func matchOptions() []dbus.MatchOption {
	return []dbus.MatchOption{
		dbus.WithMatchObjectPath(dbusLogin1Path),
		dbus.WithMatchInterface(dbusManagerInterface),
		dbus.WithMatchMember("PrepareForSleep"),
	}
}

func (w *SleepWatcher) startSignalPump() error {
	w.conn.Signal(w.signals)

	if err := w.conn.AddMatchSignal(matchOptions()...); err != nil {
		w.conn.RemoveSignal(w.signals)
		return err
	}

	w.sigWG.Add(1)
	go func() {
		defer w.sigWG.Done()
		for {
			select {
			case <-w.stopChan:
				return
			case sig, ok := <-w.signals:
				if !ok {
					return
				}
				w.handleSignal(sig)
			}
		}
	}()
	return nil
}

func (w *SleepWatcher) handleSignal(sig *dbus.Signal) {
	preparing, ok := decodePrepareForSleep(sig)
	if !ok {
		return
	}
	if preparing {
		log.Debug("[SleepWatcher] System is going to sleep")
		return
	}
	log.Info("[SleepWatcher] System resumed")
	if w.onResume != nil {
		w.onResume()
	}
}

// decodePrepareForSleep returns the signal's argument: true before suspend,
// false after resume.
func decodePrepareForSleep(sig *dbus.Signal) (preparing bool, ok bool) {
	if sig == nil || sig.Name != prepareForSleep || len(sig.Body) == 0 {
		return false, false
	}
	preparing, ok = sig.Body[0].(bool)
	return preparing, ok
}

func (w *SleepWatcher) Close() {
	w.closeOnce.Do(func() {
		close(w.stopChan)
		_ = w.conn.RemoveMatchSignal(matchOptions()...)
		w.conn.RemoveSignal(w.signals)
		w.sigWG.Wait()
		w.conn.Close()
	})
}
