package config

import (
	"fmt"
	"regexp"
)

var instanceIDPattern = regexp.MustCompile(`^[a-z0-9\-]+$`)

// Validate checks the configuration and fills in defaults in place.
func Validate(cfg *Config) error {
	if cfg.InstanceID == "" {
		return fmt.Errorf("instance_id is required")
	}
	if !instanceIDPattern.MatchString(cfg.InstanceID) {
		return fmt.Errorf("instance_id must match pattern [a-z0-9-]+")
	}

	if cfg.ShutdownTimeoutS < 0 {
		return fmt.Errorf("shutdown_timeout_s must be >= 0")
	}
	if cfg.ShutdownTimeoutS == 0 {
		cfg.ShutdownTimeoutS = 5
	}

	// Simulation defaults follow the reference tunables: 1 Hz tick,
	// 5e-5 deg and 1 m per-tick steps, tolerance of twice the step.
	if cfg.Simulation.TickHz == 0 {
		cfg.Simulation.TickHz = 1
	}
	if cfg.Simulation.TickHz < 0 {
		return fmt.Errorf("simulation.tick_hz must be > 0")
	}
	if cfg.Simulation.HomeLat == 0 && cfg.Simulation.HomeLng == 0 {
		cfg.Simulation.HomeLat = 33.6844
		cfg.Simulation.HomeLng = 73.0479
	}
	if cfg.Simulation.HomeLat < -90 || cfg.Simulation.HomeLat > 90 {
		return fmt.Errorf("simulation.home_lat out of range [-90,90]")
	}
	if cfg.Simulation.HomeLng < -180 || cfg.Simulation.HomeLng > 180 {
		return fmt.Errorf("simulation.home_lng out of range [-180,180]")
	}
	if cfg.Simulation.InitialBatteryPct == 0 {
		cfg.Simulation.InitialBatteryPct = 100
	}
	if cfg.Simulation.InitialBatteryPct < 0 || cfg.Simulation.InitialBatteryPct > 100 {
		return fmt.Errorf("simulation.initial_battery_pct out of range [0,100]")
	}
	if cfg.Simulation.BatteryDrainPerMin == 0 {
		cfg.Simulation.BatteryDrainPerMin = 0.1
	}
	if cfg.Simulation.StepDeg == 0 {
		cfg.Simulation.StepDeg = 0.00005
	}
	if cfg.Simulation.StepAltM == 0 {
		cfg.Simulation.StepAltM = 1
	}
	if cfg.Simulation.ArrivalTolDeg == 0 {
		cfg.Simulation.ArrivalTolDeg = cfg.Simulation.StepDeg * 2
	}
	if cfg.Simulation.ArrivalTolAltM == 0 {
		cfg.Simulation.ArrivalTolAltM = 2
	}

	if cfg.Hardware.DialTimeoutS == 0 {
		cfg.Hardware.DialTimeoutS = 5
	}
	if cfg.Hardware.SampleHz == 0 {
		cfg.Hardware.SampleHz = 10
	}

	if cfg.Channels.TelemetryCapacity == 0 {
		cfg.Channels.TelemetryCapacity = 100
	}
	if cfg.Channels.VideoCapacity == 0 {
		cfg.Channels.VideoCapacity = 10
	}
	if cfg.Channels.DetectionsCapacity == 0 {
		cfg.Channels.DetectionsCapacity = 50
	}
	if cfg.Channels.AlertsCapacity == 0 {
		cfg.Channels.AlertsCapacity = 20
	}
	if cfg.Channels.TelemetryHz == 0 {
		cfg.Channels.TelemetryHz = 10
	}
	if cfg.Channels.VideoHz == 0 {
		cfg.Channels.VideoHz = 30
	}
	if cfg.Channels.DetectionsHz == 0 {
		cfg.Channels.DetectionsHz = 10
	}

	if cfg.Camera.Width == 0 {
		cfg.Camera.Width = 640
	}
	if cfg.Camera.Height == 0 {
		cfg.Camera.Height = 480
	}
	if cfg.Camera.FPS == 0 {
		cfg.Camera.FPS = 30
	}
	if cfg.Camera.FPS < 0 {
		return fmt.Errorf("camera.fps must be > 0")
	}

	if cfg.Vision.Confidence == 0 {
		cfg.Vision.Confidence = 0.5
	}
	if cfg.Vision.Confidence < 0 || cfg.Vision.Confidence > 1 {
		return fmt.Errorf("vision.confidence out of range [0,1]")
	}
	if cfg.Vision.RateHz == 0 {
		cfg.Vision.RateHz = 2
	}

	// MQTT is optional; topics and QoS get defaults only when a broker
	// is configured.
	if cfg.MQTT.Broker != "" {
		if cfg.MQTT.Topics.Control == "" {
			cfg.MQTT.Topics.Control = fmt.Sprintf("drone/control/%s", cfg.InstanceID)
		}
		if cfg.MQTT.Topics.Alerts == "" {
			cfg.MQTT.Topics.Alerts = fmt.Sprintf("drone/alerts/%s", cfg.InstanceID)
		}
		if cfg.MQTT.Topics.Health == "" {
			cfg.MQTT.Topics.Health = fmt.Sprintf("drone/health/%s", cfg.InstanceID)
		}
		if cfg.MQTT.QoS == nil {
			cfg.MQTT.QoS = map[string]byte{
				"control": 1,
				"alerts":  1,
				"health":  0,
			}
		}
	}

	if cfg.Server.WSAddr == "" {
		cfg.Server.WSAddr = ":5001"
	}
	if cfg.Server.HealthPort == "" {
		cfg.Server.HealthPort = "8080"
	}

	return nil
}
