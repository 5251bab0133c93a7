package network

const (
	dbusNMDest                      = "org.freedesktop.NetworkManager"
	dbusNMPath                      = "/org/freedesktop/NetworkManager"
	dbusNMInterface                 = "org.freedesktop.NetworkManager"
	dbusNMSettingsPath              = "/org/freedesktop/NetworkManager/Settings"
	dbusNMSettingsInterface         = "org.freedesktop.NetworkManager.Settings"
	dbusNMDeviceInterface           = "org.freedesktop.NetworkManager.Device"
	dbusNMActiveConnectionInterface = "org.freedesktop.NetworkManager.Connection.Active"
	dbusPropsInterface              = "org.freedesktop.DBus.Properties"
	dbusPath                        = "/org/freedesktop/DBus"
	dbusInterface                   = "org.freedesktop.DBus"
)

// NMDeviceType values that get their own DeviceType.
const (
	nmDeviceTypeEthernet  = 1
	nmDeviceTypeWifi      = 2
	nmDeviceTypeModem     = 8
	nmDeviceTypeBond      = 10
	nmDeviceTypeVlan      = 11
	nmDeviceTypeBridge    = 13
	nmDeviceTypeWireguard = 29
	nmDeviceTypeLoopback  = 32
)
