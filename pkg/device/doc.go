// Package device implements the device-claim protocol on top of the
// hierarchical store: claiming a device atomically transfers ownership to a
// user, releasing removes both sides of the relationship in one write, and
// the ordered device list is reconstructed from the user's claim records.
//
// A claimed device is represented twice: a pointer at
// devices/{deviceId}/status/claimedBy naming the owner, and a record at
// users/{userId}/devices/{deviceId} holding the server-assigned claim
// timestamp. The two are only ever written and deleted together.
package device
