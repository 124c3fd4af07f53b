package common

// AccessTokenHeaderName is the gRPC metadata key used to carry the
// identity provider's access token on inbound requests.
const AccessTokenHeaderName = "access_token"

// MaxMediaBytes is the upper bound for a single media upload (5 MiB).
const MaxMediaBytes = 5 * 1024 * 1024
