package models

// Metric is one collected system metric.
type Metric struct {
	Value interface{} `json:"value"`
	Unit  string      `json:"unit"`
}

// MetricsConfig selects which collectors run.
type MetricsConfig struct {
	MonitorCPU        bool `yaml:"monitor_cpu" json:"monitor_cpu"`
	MonitorMemory     bool `yaml:"monitor_memory" json:"monitor_memory"`
	MonitorGoroutines bool `yaml:"monitor_goroutines" json:"monitor_goroutines"`
	MonitorTracks     bool `yaml:"monitor_tracks" json:"monitor_tracks"`
}
