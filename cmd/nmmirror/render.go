package main

import (
	"fmt"
	"strings"

	"github.com/AvengeMedia/nmmirror/internal/server/network"
	"github.com/charmbracelet/lipgloss"
)

var titleStyle = lipgloss.NewStyle().
	Foreground(lipgloss.Color("#ccbeff")).
	Bold(true)

var labelStyle = lipgloss.NewStyle().
	Foreground(lipgloss.Color("#cac4cf"))

var okStyle = lipgloss.NewStyle().
	Foreground(lipgloss.Color("#ccbeff")).
	Bold(true)

var warnStyle = lipgloss.NewStyle().
	Foreground(lipgloss.Color("#eeb8ca"))

var errorStyle = lipgloss.NewStyle().
	Foreground(lipgloss.Color("#ffb4ab"))

func onOff(v bool) string {
	if v {
		return okStyle.Render("on")
	}
	return labelStyle.Render("off")
}

func renderConnectivity(c network.Connectivity) string {
	desc := c.Description()
	switch c {
	case network.ConnectivityFull:
		return okStyle.Render(desc)
	case network.ConnectivityPortal, network.ConnectivityLimited:
		return warnStyle.Render(desc)
	case network.ConnectivityNone:
		return errorStyle.Render(desc)
	default:
		return labelStyle.Render(desc)
	}
}

func renderState(s network.NetworkState) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s\n", labelStyle.Render("Connectivity:"), renderConnectivity(s.Connectivity))
	fmt.Fprintf(&b, "%s %s\n", labelStyle.Render("Networking:  "), onOff(s.NetworkingEnabled))
	fmt.Fprintf(&b, "%s %s (hardware %s)\n", labelStyle.Render("Wi-Fi:       "), onOff(s.WirelessEnabled), onOff(s.WirelessHardwareEnabled))
	fmt.Fprintf(&b, "%s %s (hardware %s)\n", labelStyle.Render("WWAN:        "), onOff(s.WwanEnabled), onOff(s.WwanHardwareEnabled))
	if id, ok := s.PrimaryConnectionID(); ok {
		typ, _ := s.PrimaryConnectionType()
		fmt.Fprintf(&b, "%s %s [%s]\n", labelStyle.Render("Primary:     "), id, typ)
	} else {
		fmt.Fprintf(&b, "%s %s\n", labelStyle.Render("Primary:     "), labelStyle.Render("none"))
	}
	return b.String()
}

func renderStatus(m *network.Manager) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Network"))
	b.WriteString("\n")
	b.WriteString(renderState(m.GetState()))

	b.WriteString("\n")
	b.WriteString(titleStyle.Render("Devices"))
	b.WriteString("\n")
	for _, dev := range m.Cache().Devices() {
		fmt.Fprintf(&b, "  %-12s %-10s %s\n", dev.Interface, dev.Type, dev.State)
	}

	active := m.Cache().ActiveConnections()
	if len(active) > 0 {
		b.WriteString("\n")
		b.WriteString(titleStyle.Render("Active connections"))
		b.WriteString("\n")
		for _, ac := range active {
			fmt.Fprintf(&b, "  %-24s %-36s %s\n", ac.ID, ac.UUID, ac.State)
		}
	}
	return b.String()
}

func renderEvent(ev network.Event) string {
	head := titleStyle.Render(string(ev.Type))

	switch ev.Type {
	case network.EventAvailabilityChanged:
		if ev.Available != nil && *ev.Available {
			return head + " " + okStyle.Render("available")
		}
		return head + " " + errorStyle.Render("unavailable")
	case network.EventStateChanged:
		if ev.State == nil {
			return head
		}
		return head + " " + renderConnectivity(ev.State.Connectivity)
	case network.EventDeviceAdded, network.EventDeviceRemoved:
		if ev.Device == nil {
			return head
		}
		return fmt.Sprintf("%s %s (%s)", head, ev.Device.Interface, ev.Device.Type)
	case network.EventConnectionAdded, network.EventConnectionRemoved:
		if ev.Connection == nil {
			return head
		}
		return fmt.Sprintf("%s %s [%s]", head, ev.Connection.ID, ev.Connection.Type)
	case network.EventDeviceStateChanged:
		if ev.Device == nil || ev.OldDeviceState == nil || ev.NewDeviceState == nil {
			return head
		}
		line := fmt.Sprintf("%s %s %s -> %s", head, ev.Device.Interface, *ev.OldDeviceState, *ev.NewDeviceState)
		if ev.ReasonCode != "" {
			line += " " + errorStyle.Render(ev.ReasonCode)
		}
		return line
	case network.EventConnectionStateChanged:
		if ev.ActiveConnection == nil || ev.ActiveState == nil {
			return head
		}
		return fmt.Sprintf("%s %s %s", head, ev.ActiveConnection.ID, *ev.ActiveState)
	case network.EventConnectionActivated, network.EventConnectionDeactivated:
		if ev.Variant == nil {
			return head
		}
		return fmt.Sprintf("%s %s (%s)", head, ev.Variant.Name, ev.Variant.ConnectionType)
	default:
		return head
	}
}
