package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config represents the complete daemon configuration
type Config struct {
	InstanceID       string           `yaml:"instance_id"`
	ShutdownTimeoutS int              `yaml:"shutdown_timeout_s"` // Graceful shutdown timeout in seconds (default: 5)
	Simulation       SimulationConfig `yaml:"simulation"`
	Hardware         HardwareConfig   `yaml:"hardware"`
	Channels         ChannelsConfig   `yaml:"channels"`
	Camera           CameraConfig     `yaml:"camera"`
	Vision           VisionConfig     `yaml:"vision"`
	MQTT             MQTTConfig       `yaml:"mqtt"`
	Server           ServerConfig     `yaml:"server"`
}

// SimulationConfig contains the state simulator tunables. Step sizes and
// tolerances are tunables without a derived physical meaning.
type SimulationConfig struct {
	TickHz             float64 `yaml:"tick_hz"`               // state update rate (default: 1)
	HomeLat            float64 `yaml:"home_lat"`              // base position latitude
	HomeLng            float64 `yaml:"home_lng"`              // base position longitude
	InitialBatteryPct  float64 `yaml:"initial_battery_pct"`   // default: 100
	BatteryDrainPerMin float64 `yaml:"battery_drain_per_min"` // percent per minute while flying (default: 0.1)
	StepDeg            float64 `yaml:"step_deg"`              // per-tick lat/lng step toward a waypoint
	StepAltM           float64 `yaml:"step_alt_m"`            // per-tick altitude step toward a waypoint
	ArrivalTolDeg      float64 `yaml:"arrival_tol_deg"`       // per-axis lat/lng arrival tolerance
	ArrivalTolAltM     float64 `yaml:"arrival_tol_alt_m"`     // altitude arrival tolerance
}

// HardwareConfig selects the telemetry source. When feed_addr is empty
// the mock adapter is used directly without probing.
type HardwareConfig struct {
	FeedAddr     string `yaml:"feed_addr"`      // host:port of the normalized GPS feed
	DialTimeoutS int    `yaml:"dial_timeout_s"` // device probe timeout (default: 5)
	SampleHz     float64 `yaml:"sample_hz"`     // mock adapter sample rate (default: 10)
}

// ChannelsConfig contains the broadcast channel capacities and cadences.
type ChannelsConfig struct {
	TelemetryCapacity  int     `yaml:"telemetry_capacity"`  // default: 100
	VideoCapacity      int     `yaml:"video_capacity"`      // default: 10
	DetectionsCapacity int     `yaml:"detections_capacity"` // default: 50
	AlertsCapacity     int     `yaml:"alerts_capacity"`     // default: 20
	TelemetryHz        float64 `yaml:"telemetry_hz"`        // default: 10
	VideoHz            float64 `yaml:"video_hz"`            // default: 30
	DetectionsHz       float64 `yaml:"detections_hz"`       // default: 10
}

// CameraConfig contains the mock camera settings.
type CameraConfig struct {
	Width  int `yaml:"width"`  // default: 640
	Height int `yaml:"height"` // default: 480
	FPS    int `yaml:"fps"`    // default: 30
}

// VisionConfig contains the detection source settings.
type VisionConfig struct {
	Confidence float64 `yaml:"confidence"` // minimum confidence (default: 0.5)
	RateHz     float64 `yaml:"rate_hz"`    // detection batch rate (default: 2)
}

// MQTTConfig contains MQTT broker settings. An empty broker disables the
// MQTT control plane and emitter.
type MQTTConfig struct {
	Broker string          `yaml:"broker"`
	Topics MQTTTopics      `yaml:"topics"`
	QoS    map[string]byte `yaml:"qos"`
}

// MQTTTopics contains topic templates
type MQTTTopics struct {
	Control string `yaml:"control"`
	Alerts  string `yaml:"alerts"`
	Health  string `yaml:"health"`
}

// ServerConfig contains the client-facing listeners.
type ServerConfig struct {
	WSAddr     string `yaml:"ws_addr"`     // websocket listen address (default: :5001)
	HealthPort string `yaml:"health_port"` // health HTTP port (default: 8080)
}

// Load reads and parses a YAML configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Default returns a configuration with every default applied, suitable
// for tests and for running without a config file.
func Default() *Config {
	cfg := &Config{InstanceID: "sentinel-dev"}
	if err := Validate(cfg); err != nil {
		panic(err) // defaults are always valid
	}
	return cfg
}
