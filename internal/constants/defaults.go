package constants

import "time"

const (
	// DefaultConfigPath is used when -config is not given.
	DefaultConfigPath = "configs/config.yaml"

	// MapsAPIKeyEnv overrides position.maps_api_key.
	MapsAPIKeyEnv = "TAK_AGENT_MAPS_API_KEY"

	// DefaultMetricsAddr is the Prometheus listen address.
	DefaultMetricsAddr = ":9102"

	// DefaultStatusInterval is how often the status document is published.
	DefaultStatusInterval = 30 * time.Second

	// DefaultCollectTimeout bounds one round of system metric collection.
	DefaultCollectTimeout = 5 * time.Second

	// DefaultTrackTTL is how long a silent remote track is kept.
	DefaultTrackTTL = 5 * time.Minute

	// ShutdownTimeout bounds graceful shutdown of the metrics server.
	ShutdownTimeout = 5 * time.Second

	// CollectorWorkers is the worker pool size used by the status service.
	CollectorWorkers = 4
)
