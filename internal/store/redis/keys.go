package redis

const (
	// KeyPrefixService is the prefix for service records, keyed by endpoint
	KeyPrefixService = "emerald:service:"
	// KeyAllServices is the set of all registered endpoint keys
	KeyAllServices = "emerald:services:all"
	// KeyAlive is the hash endpoint key -> "1"/"0" of cached liveness
	KeyAlive = "emerald:alive"
	// KeyIncidents is the append-only list of incidents
	KeyIncidents = "emerald:incidents"
)

// ServiceKey returns the Redis key for the service registered at endpointKey
func ServiceKey(endpointKey string) string {
	return KeyPrefixService + endpointKey
}

// AllServicesKey returns the key for the set of all endpoint keys
func AllServicesKey() string {
	return KeyAllServices
}

// AliveKey returns the key of the cached liveness hash
func AliveKey() string {
	return KeyAlive
}

// IncidentsKey returns the key of the incident list
func IncidentsKey() string {
	return KeyIncidents
}
