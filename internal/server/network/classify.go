package network

import (
	"github.com/AvengeMedia/nmmirror/internal/errdefs"
)

// Classify maps a connection to its domain variant. Only Wi-Fi and Ethernet
// are modeled; VPN, bridge, bond, mobile broadband and everything else yield
// false.
func Classify(conn Connection) (ConnectionVariant, bool) {
	switch conn.Type {
	case ConnectionTypeWireless:
		return ConnectionVariant{
			Kind:           VariantWiFiNetwork,
			ID:             conn.UUID,
			Name:           conn.ID,
			ConnectionType: ConnectionKindWifi,
		}, true
	case ConnectionTypeEthernet:
		return ConnectionVariant{
			Kind:           VariantBasicNetworkConnection,
			ID:             conn.UUID,
			Name:           conn.ID,
			ConnectionType: ConnectionKindEthernet,
		}, true
	default:
		return ConnectionVariant{}, false
	}
}

// NMDeviceStateReason values that map to a distinct failure code.
const (
	NmDeviceStateReasonNoSecrets            = 6
	NmDeviceStateReasonSecretsRequired      = 7
	NmDeviceStateReasonWrongPassword        = 8
	NmDeviceStateReasonNoSsid               = 10
	NmDeviceStateReasonDhcpClientFailed     = 14
	NmDeviceStateReasonIpConfigUnavailable  = 18
	NmDeviceStateReasonSupplicantDisconnect = 23
	NmDeviceStateReasonSupplicantTimeout    = 24
	NmDeviceStateReasonSupplicantFailed     = 25
	NmDeviceStateReasonCarrier              = 40
	NmDeviceStateReasonNewActivation        = 60
)

// ClassifyDeviceStateReason turns an NMDeviceStateReason into a stable code.
func ClassifyDeviceStateReason(reason uint32) string {
	switch reason {
	case NmDeviceStateReasonWrongPassword,
		NmDeviceStateReasonSupplicantTimeout,
		NmDeviceStateReasonSupplicantFailed,
		NmDeviceStateReasonSecretsRequired:
		return errdefs.ErrBadCredentials
	case NmDeviceStateReasonNoSecrets:
		return errdefs.ErrUserCanceled
	case NmDeviceStateReasonNoSsid:
		return errdefs.ErrNoSuchSSID
	case NmDeviceStateReasonDhcpClientFailed,
		NmDeviceStateReasonIpConfigUnavailable:
		return errdefs.ErrDhcpTimeout
	case NmDeviceStateReasonSupplicantDisconnect,
		NmDeviceStateReasonCarrier:
		return errdefs.ErrAssocTimeout
	default:
		return errdefs.ErrConnectionFailed
	}
}
