package api

// ClaimDeviceRequest is the body of POST /claim
type ClaimDeviceRequest struct {
	DeviceID string `json:"deviceId"`
}

// ReleaseDeviceRequest is the body of POST /release
type ReleaseDeviceRequest struct {
	DeviceID string `json:"deviceId"`
}

// DeviceResponse mirrors the stored device info record
type DeviceResponse struct {
	DeviceID     string   `json:"deviceId"`
	Nickname     string   `json:"deviceNickname,omitempty"`
	Model        string   `json:"model,omitempty"`
	Manufacturer string   `json:"manufacturer,omitempty"`
	Channels     []string `json:"channels,omitempty"`
	SamplingRate int      `json:"samplingRate,omitempty"`
	APIVersion   string   `json:"apiVersion,omitempty"`
	OSVersion    string   `json:"osVersion,omitempty"`
}

// DeviceListResponse is the body of GET /devices
type DeviceListResponse struct {
	Devices []DeviceResponse `json:"devices"`
	Count   int              `json:"count"`
}

// PermissionResponse is the body of GET /devices/{deviceId}/permission
type PermissionResponse struct {
	DeviceID      string `json:"deviceId"`
	HasPermission bool   `json:"hasPermission"`
}

// SuccessResponse is the generic acknowledgement body
type SuccessResponse struct {
	Message string `json:"message"`
}

// ErrorResponse is the generic error body
type ErrorResponse struct {
	Code  string `json:"code"`
	Error string `json:"error"`
}
