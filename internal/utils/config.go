package utils

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/benmeehan/tak-agent/internal/constants"
	"github.com/benmeehan/tak-agent/internal/models"
	"github.com/benmeehan/tak-agent/internal/tak"
	"github.com/benmeehan/tak-agent/pkg/file"
	"github.com/benmeehan/tak-agent/pkg/location"
)

// Config represents the structure of the configuration file.
type Config struct {
	Logging struct {
		Level  string `yaml:"level"`  // trace, debug, info, warn, error
		Format string `yaml:"format"` // json or console
	} `yaml:"logging"`

	TAK struct {
		Server             string        `yaml:"server"`              // ws://, wss:// or MQTT broker URI
		UID                string        `yaml:"uid"`                 // Generated when empty
		Callsign           string        `yaml:"callsign"`            // Displayed callsign
		Group              string        `yaml:"group"`               // Red, Blue, Green or Yellow
		UpdateInterval     time.Duration `yaml:"update_interval"`     // Interval between position updates
		ConnectTimeout     time.Duration `yaml:"connect_timeout"`     // Timeout for a single dial
		Transport          string        `yaml:"transport"`           // websocket or mqtt
		DuplicateThreshold float64       `yaml:"duplicate_threshold"` // Degrees below which a sample is a duplicate
		HistorySize        int           `yaml:"history_size"`        // Positions kept for bearing and speed

		Reconnect struct {
			MaxRetries    int           `yaml:"max_retries"`    // Reconnect attempts before giving up
			BaseDelay     time.Duration `yaml:"base_delay"`     // Delay before the first reconnect
			BackoffFactor float64       `yaml:"backoff_factor"` // Multiplier per attempt
			StableAfter   time.Duration `yaml:"stable_after"`   // Uptime that resets the retry counter, negative resets on open
		} `yaml:"reconnect"`

		MQTT struct {
			ClientID       string `yaml:"client_id"`       // Client ID prefix for the CoT connection
			PublishTopic   string `yaml:"publish_topic"`   // Topic for outbound CoT
			SubscribeTopic string `yaml:"subscribe_topic"` // Topic for inbound CoT
			QOS            int    `yaml:"qos"`             // MQTT QoS level for CoT messages
			CACertificate  string `yaml:"ca_certificate"`  // Path to the CA certificate
		} `yaml:"mqtt"`
	} `yaml:"tak"`

	Position struct {
		Provider          string  `yaml:"provider"`        // static, simulated, sensor or google
		Latitude          float64 `yaml:"latitude"`        // Start or fixed latitude
		Longitude         float64 `yaml:"longitude"`       // Start or fixed longitude
		HAE               float64 `yaml:"hae"`             // Start or fixed height above ellipsoid
		Heading           float64 `yaml:"heading"`         // Simulated heading in degrees
		Speed             float64 `yaml:"speed"`           // Simulated ground speed in m/s
		GPSDevicePort     string  `yaml:"gps_device_port"` // UNIX Port where the GPS sensor is mounted
		GPSDeviceBaudRate int     `yaml:"gps_baud_rate"`   // The Baud rate for GPS sensor
		ModemIndex        int     `yaml:"modem_index"`     // mmcli modem used for cell towers
		MapsAPIKey        string  `yaml:"maps_api_key"`    // Google maps API Key

		Terrain struct {
			Enabled   bool    `yaml:"enabled"`   // Replace height with Google elevation
			Precision float64 `yaml:"precision"` // Cache grid in degrees
		} `yaml:"terrain"`
	} `yaml:"position"`

	Services struct {
		Receiver struct {
			Enabled       bool              `yaml:"enabled"`         // Track inbound CoT
			TrackTTL      time.Duration     `yaml:"track_ttl"`       // Drop tracks silent for longer than this
			LabelTemplate map[string]string `yaml:"label_templates"` // Per CoT type labels
		} `yaml:"receiver"`

		Status struct {
			Enabled              bool          `yaml:"enabled"`  // Enable/disable status service
			Topic                string        `yaml:"topic"`    // MQTT topic for status documents
			Interval             time.Duration `yaml:"interval"` // Interval between status documents
			Timeout              time.Duration `yaml:"timeout"`  // Timeout for collecting metrics
			QOS                  int           `yaml:"qos"`      // MQTT QoS level for status messages
			models.MetricsConfig `yaml:",inline"`
		} `yaml:"status"`
	} `yaml:"services"`

	MQTT struct {
		Broker        string `yaml:"broker"`         // MQTT broker address
		ClientID      string `yaml:"client_id"`      // MQTT client ID
		CACertificate string `yaml:"ca_certificate"` // Path to the CA certificate
	} `yaml:"mqtt"`

	Metrics struct {
		Enabled    bool   `yaml:"enabled"`     // Serve Prometheus metrics
		ListenAddr string `yaml:"listen_addr"` // Address of the /metrics endpoint
	} `yaml:"metrics"`
}

// DefaultConfig returns the configuration used for every key the file omits.
func DefaultConfig() *Config {
	var c Config
	c.Logging.Level = "info"
	c.Logging.Format = "json"

	c.TAK.Callsign = "A1"
	c.TAK.Group = string(tak.GroupBlue)
	c.TAK.UpdateInterval = tak.DefaultUpdateInterval
	c.TAK.ConnectTimeout = tak.DefaultDialTimeout
	c.TAK.Transport = constants.TransportWebSocket
	c.TAK.DuplicateThreshold = tak.DefaultDuplicateThreshold
	c.TAK.HistorySize = tak.DefaultHistorySize
	c.TAK.Reconnect.MaxRetries = tak.DefaultMaxRetries
	c.TAK.Reconnect.BaseDelay = tak.DefaultBaseDelay
	c.TAK.Reconnect.BackoffFactor = tak.DefaultBackoffFactor
	c.TAK.MQTT.ClientID = "tak-agent"
	c.TAK.MQTT.PublishTopic = "cot/out"
	c.TAK.MQTT.SubscribeTopic = "cot/in"
	c.TAK.MQTT.QOS = 1

	c.Position.Provider = constants.ProviderStatic
	c.Position.GPSDevicePort = "/dev/ttyUSB0"
	c.Position.GPSDeviceBaudRate = 9600
	c.Position.Terrain.Precision = location.DefaultTerrainPrecision

	c.Services.Receiver.Enabled = true
	c.Services.Receiver.TrackTTL = constants.DefaultTrackTTL
	c.Services.Status.Topic = "tak/status"
	c.Services.Status.Interval = constants.DefaultStatusInterval
	c.Services.Status.Timeout = constants.DefaultCollectTimeout
	c.Services.Status.QOS = 1
	c.Services.Status.MonitorCPU = true
	c.Services.Status.MonitorMemory = true

	c.MQTT.ClientID = "tak-agent-status"
	c.Metrics.ListenAddr = constants.DefaultMetricsAddr
	return &c
}

// LoadConfig loads the YAML configuration from the specified file on top of
// DefaultConfig and applies environment overrides.
func LoadConfig(filename string, fileClient file.FileOperations) (*Config, error) {
	config := DefaultConfig()
	if err := fileClient.ReadYamlFile(filename, config); err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", filename, err)
	}

	if key := os.Getenv(constants.MapsAPIKeyEnv); key != "" {
		config.Position.MapsAPIKey = key
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate checks settings that are not covered by tak.ClientConfig.
func (c *Config) Validate() error {
	switch c.TAK.Transport {
	case constants.TransportWebSocket, constants.TransportMQTT:
	default:
		return fmt.Errorf("unknown transport %q", c.TAK.Transport)
	}

	switch c.Position.Provider {
	case constants.ProviderStatic, constants.ProviderSimulated, constants.ProviderSensor:
	case constants.ProviderGoogle:
		if c.Position.MapsAPIKey == "" {
			return fmt.Errorf("provider %q requires a maps API key", c.Position.Provider)
		}
	default:
		return fmt.Errorf("unknown position provider %q", c.Position.Provider)
	}

	if c.Position.Terrain.Enabled && c.Position.MapsAPIKey == "" {
		return errors.New("terrain lookup requires a maps API key")
	}
	if c.Services.Status.Enabled && c.MQTT.Broker == "" {
		return errors.New("status service requires mqtt.broker")
	}
	if c.TAK.MQTT.QOS < 0 || c.TAK.MQTT.QOS > 2 || c.Services.Status.QOS < 0 || c.Services.Status.QOS > 2 {
		return errors.New("qos must be 0, 1 or 2")
	}
	return nil
}

// ClientConfig maps the tak section onto the client configuration.
func (c *Config) ClientConfig() tak.ClientConfig {
	return tak.ClientConfig{
		Server:         c.TAK.Server,
		UID:            c.TAK.UID,
		Callsign:       c.TAK.Callsign,
		Group:          tak.Group(c.TAK.Group),
		UpdateInterval: c.TAK.UpdateInterval,
		DialTimeout:    c.TAK.ConnectTimeout,
		Reconnect: tak.ReconnectPolicy{
			MaxRetries:    c.TAK.Reconnect.MaxRetries,
			BaseDelay:     c.TAK.Reconnect.BaseDelay,
			BackoffFactor: c.TAK.Reconnect.BackoffFactor,
			StableAfter:   c.TAK.Reconnect.StableAfter,
		},
		DuplicateThreshold: c.TAK.DuplicateThreshold,
		HistorySize:        c.TAK.HistorySize,
	}
}
