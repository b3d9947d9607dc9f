package api

// LoginRequest carries one credential shape: email+password, customToken,
// or idToken+providerId
type LoginRequest struct {
	Email       string `json:"email,omitempty"`
	Password    string `json:"password,omitempty"`
	CustomToken string `json:"customToken,omitempty"`
	IDToken     string `json:"idToken,omitempty"`
	ProviderID  string `json:"providerId,omitempty"`
}

// RegisterRequest is the body of POST /register
type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// UserResponse is the public view of an authenticated user
type UserResponse struct {
	UID   string `json:"uid"`
	Email string `json:"email"`
}

// LoginResponse is the body of a successful login or registration
type LoginResponse struct {
	User        UserResponse `json:"user"`
	AccessToken string       `json:"accessToken"`
}

// TokenResponse is the body of POST /token
type TokenResponse struct {
	CustomToken string `json:"customToken"`
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
