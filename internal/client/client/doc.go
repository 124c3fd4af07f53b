// Package client contains the client-side building blocks for Arctic Chat.
//
// GRPCClient talks to the arctic.v1.Messaging service. It injects the access
// token into every call, maps gRPC status codes to the sentinel errors in
// this package, and decrypts message envelopes with epoch keys fetched on
// demand through KeyBundle and cached in a Keyring.
//
// Match errors with errors.Is: ErrUnavailable, ErrUnauthorized,
// ErrTokenExpired, ErrForbidden, ErrNotFound, ErrInvalid, ErrRateLimited.
package client
