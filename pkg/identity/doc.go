// Package identity wraps the external identity provider behind a session
// with explicit auth-state subscriptions.
//
// The Session resolves the current user, performs login/logout and account
// lifecycle against a Provider, and fans auth-state transitions out to an
// explicit subscriber registry. Every other part of the system is gated on
// the session: device claim, release, listing, and the live device list all
// require a resolved user id.
//
// Login accepts exactly one of three credential shapes: {email, password},
// {custom token}, or {external-provider id token + provider id}. Anything
// else is rejected without contacting the provider.
//
// Account deletion first releases every device the account has claimed (via
// the DeviceReleaser wired in with WithDeviceReleaser) and only then deletes
// the identity record; a release failure leaves the account intact.
//
// LocalProvider is an in-process Provider used by the demo binary and the
// tests. Production deployments implement Provider against their identity
// service.
package identity
