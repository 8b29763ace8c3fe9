package domain

// ConnectivityState is the categorical network state projected from
// NetworkManager properties. Only the latest value is meaningful;
// intermediate states are never replayed.
type ConnectivityState string

const (
	ConnectivityWired            ConnectivityState = "wired"
	ConnectivityWifi             ConnectivityState = "wifi"
	ConnectivityCellular         ConnectivityState = "cellular"
	ConnectivityVpn              ConnectivityState = "vpn"
	ConnectivityWifiDisconnected ConnectivityState = "wifi_disconnected"
	ConnectivityOffline          ConnectivityState = "offline"
	ConnectivityUnknown          ConnectivityState = "unknown"
)
