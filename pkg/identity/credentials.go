package identity

import (
	apperrors "github.com/tendant/simple-claim/pkg/errors"
)

// Credentials carries exactly one of the three recognized login shapes:
// {Email, Password}, {CustomToken}, or {IDToken, ProviderID}.
type Credentials struct {
	Email       string `json:"email,omitempty"`
	Password    string `json:"password,omitempty"`
	CustomToken string `json:"custom_token,omitempty"`
	IDToken     string `json:"id_token,omitempty"`
	ProviderID  string `json:"provider_id,omitempty"`
}

// credentialShape identifies which login shape a Credentials value matches
type credentialShape int

const (
	shapeUnrecognized credentialShape = iota
	shapeCustomToken
	shapeProviderToken
	shapePassword
)

// shape resolves the credential shape. Custom tokens take precedence over
// provider tokens, which take precedence over password credentials.
func (c Credentials) shape() credentialShape {
	switch {
	case c.CustomToken != "":
		return shapeCustomToken
	case c.IDToken != "" && c.ProviderID != "":
		return shapeProviderToken
	case c.Email != "" && c.Password != "":
		return shapePassword
	default:
		return shapeUnrecognized
	}
}

// errInvalidCredentialsShape rejects a login without contacting the provider
func errInvalidCredentialsShape() error {
	return apperrors.New(apperrors.ErrCodeInvalidCredentialsShape,
		"either {email,password}, {customToken}, or {idToken,providerId} is required")
}
