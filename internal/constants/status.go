package constants

// Agent statuses reported in the status document
const (
	// StatusOnline indicates the TAK connection is open
	StatusOnline = "online"
	// StatusDegraded indicates the agent is reconnecting or reporting errors
	StatusDegraded = "degraded"
	// StatusOffline indicates the agent gave up reconnecting or is disconnected
	StatusOffline = "offline"
)

// Position providers selectable in configuration
const (
	ProviderStatic    = "static"
	ProviderSimulated = "simulated"
	ProviderSensor    = "sensor"
	ProviderGoogle    = "google"
)

// Transports selectable in configuration
const (
	TransportWebSocket = "websocket"
	TransportMQTT      = "mqtt"
)
