package device

// The four path shapes below are the entire persisted-state contract of the
// device-claim core.

func deviceClaimedByPath(deviceID string) string {
	return "devices/" + deviceID + "/status/claimedBy"
}

func deviceInfoPath(deviceID string) string {
	return "devices/" + deviceID + "/info"
}

func userDevicesPath(userID string) string {
	return "users/" + userID + "/devices"
}

func userDevicePath(userID, deviceID string) string {
	return "users/" + userID + "/devices/" + deviceID
}
