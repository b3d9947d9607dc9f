package device

// Info is the public descriptive record for a device, stored at
// devices/{deviceId}/info. It is owned and maintained outside this core and
// read-only from its perspective.
type Info struct {
	DeviceID     string   `json:"deviceId"`
	Nickname     string   `json:"deviceNickname,omitempty"`
	Model        string   `json:"model,omitempty"`
	Manufacturer string   `json:"manufacturer,omitempty"`
	Channels     []string `json:"channels,omitempty"`
	SamplingRate int      `json:"samplingRate,omitempty"`
	APIVersion   string   `json:"apiVersion,omitempty"`
	OSVersion    string   `json:"osVersion,omitempty"`
}

// claimRecord is the user-side row for one claimed device. claimedOn is
// assigned by the store at write time, never by the client.
type claimRecord struct {
	ClaimedOn int64 `json:"claimedOn"`
}
