package network

type EventType string

const (
	EventAvailabilityChanged    EventType = "availability_changed"
	EventStateChanged           EventType = "state_changed"
	EventDeviceAdded            EventType = "device_added"
	EventDeviceRemoved          EventType = "device_removed"
	EventConnectionAdded        EventType = "connection_added"
	EventConnectionRemoved      EventType = "connection_removed"
	EventDeviceStateChanged     EventType = "device_state_changed"
	EventConnectionStateChanged EventType = "connection_state_changed"
	EventConnectionActivated    EventType = "connection_activated"
	EventConnectionDeactivated  EventType = "connection_deactivated"
)

// Event is one entry of the outbound event stream. Only the fields relevant to
// Type are set.
type Event struct {
	Type EventType `json:"type"`

	Available *bool         `json:"available,omitempty"`
	State     *NetworkState `json:"state,omitempty"`

	Device           *Device            `json:"device,omitempty"`
	Connection       *Connection        `json:"connection,omitempty"`
	ActiveConnection *ActiveConnection  `json:"activeConnection,omitempty"`
	Variant          *ConnectionVariant `json:"variant,omitempty"`

	NewDeviceState *DeviceState           `json:"newDeviceState,omitempty"`
	OldDeviceState *DeviceState           `json:"oldDeviceState,omitempty"`
	ActiveState    *ActiveConnectionState `json:"activeState,omitempty"`
	Reason         uint32                `json:"reason,omitempty"`
	ReasonCode     string                `json:"reasonCode,omitempty"`
}

func availabilityChanged(available bool) Event {
	return Event{Type: EventAvailabilityChanged, Available: &available}
}

func stateChanged(state NetworkState) Event {
	s := state.clone()
	return Event{Type: EventStateChanged, State: &s}
}

func deviceEvent(t EventType, dev Device) Event {
	return Event{Type: t, Device: &dev}
}

func connectionEvent(t EventType, conn Connection) Event {
	return Event{Type: t, Connection: &conn}
}

func deviceStateChanged(dev Device, newState, oldState DeviceState, reason uint32) Event {
	ev := Event{
		Type:           EventDeviceStateChanged,
		Device:         &dev,
		NewDeviceState: &newState,
		OldDeviceState: &oldState,
		Reason:         reason,
	}
	if reason != 0 && reason != NmDeviceStateReasonNewActivation &&
		(newState == DeviceStateFailed || (newState == DeviceStateDisconnected && oldState > DeviceStateDisconnected)) {
		ev.ReasonCode = ClassifyDeviceStateReason(reason)
	}
	return ev
}

func connectionStateChanged(ac ActiveConnection, state ActiveConnectionState, reason uint32) Event {
	return Event{
		Type:             EventConnectionStateChanged,
		ActiveConnection: &ac,
		ActiveState:      &state,
		Reason:           reason,
	}
}

func variantEvent(t EventType, v ConnectionVariant) Event {
	return Event{Type: t, Variant: &v}
}
