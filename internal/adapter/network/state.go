package network

import "barbridge/internal/domain"

// DetermineState computes the categorical connectivity state from the three
// NetworkManager properties that matter. Pure and total: unrecognized
// connection types fall through to Unknown rather than failing, so new
// NetworkManager device types degrade gracefully.
func DetermineState(primaryConnection, primaryConnectionType string, wirelessEnabled bool) domain.ConnectivityState {
	// "/" is NetworkManager's null object path: no primary connection.
	if primaryConnection == "/" {
		if wirelessEnabled {
			return domain.ConnectivityWifiDisconnected
		}
		return domain.ConnectivityOffline
	}

	switch primaryConnectionType {
	case "802-3-ethernet", "adsl", "pppoe":
		return domain.ConnectivityWired
	case "802-11-olpc-mesh", "802-11-wireless", "wifi-p2p":
		return domain.ConnectivityWifi
	case "cdma", "gsm", "wimax":
		return domain.ConnectivityCellular
	case "vpn", "wireguard":
		return domain.ConnectivityVpn
	default:
		return domain.ConnectivityUnknown
	}
}
