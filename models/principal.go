package models

// Principal is an opaque account identifier. It is used both as the actor
// of an operation and as the subject of a permission.
type Principal string

// SentinelPrincipal is the reserved burn identifier. It is never a valid user,
// authority or authority endpoint.
const SentinelPrincipal Principal = "SP000000000000000000002Q6VF78"

// SystemPrincipal is the caller recorded for operations the service performs
// on its own behalf, such as configuration bootstrap.
const SystemPrincipal Principal = "system"

// IsSentinel reports whether p is the reserved burn identifier.
func (p Principal) IsSentinel() bool {
	return p == SentinelPrincipal
}

func (p Principal) String() string {
	return string(p)
}
