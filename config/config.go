// Package config loads the simulator's YAML configuration. Every option is
// read once at startup and immutable afterwards.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/signalsfoundry/rover-simulator/core"
)

// Duration wraps time.Duration so YAML can carry either a Go duration string
// ("100ms") or a bare number of seconds, the form robot property files
// commonly use for periods.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var seconds float64
	if err := value.Decode(&seconds); err == nil {
		*d = Duration(time.Duration(seconds * float64(time.Second)))
		return nil
	}
	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("duration must be a string like \"100ms\" or a number of seconds")
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the full configuration file.
type Config struct {
	Simulation SimulationConfig `yaml:"simulation"`
	MQTT       MQTTConfig       `yaml:"mqtt"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

// SimulationConfig carries the simulation core's parameter set.
type SimulationConfig struct {
	Level               int         `yaml:"level"`
	PosStateDimension   int         `yaml:"pos_state_dimension"`
	Period              Duration    `yaml:"period"`
	MeasPeriod          Duration    `yaml:"meas_period"`
	SysNoiseMean        float64     `yaml:"sys_noise_mean"`
	SysNoiseCovariance  float64     `yaml:"sys_noise_covariance"`
	MeasDimension       int         `yaml:"meas_dimension"`
	MeasNoiseMean       []float64   `yaml:"meas_noise_mean"`
	MeasNoiseCovariance [][]float64 `yaml:"meas_noise_covariance"`
	MeasGain            []float64   `yaml:"meas_gain"`
	MeasOffset          float64     `yaml:"meas_offset"`
	StateTimerID        int         `yaml:"state_timer_id"`
	MeasTimerID         int         `yaml:"meas_timer_id"`
	Seed                uint64      `yaml:"seed"`
}

// MQTTConfig locates the message bus the control loop talks over.
type MQTTConfig struct {
	Broker           string   `yaml:"broker"`
	ClientID         string   `yaml:"client_id"`
	Username         string   `yaml:"username"`
	Password         string   `yaml:"password"`
	ControlTopic     string   `yaml:"control_topic"`
	MeasurementTopic string   `yaml:"measurement_topic"`
	PoseTopic        string   `yaml:"pose_topic"`
	QoS              byte     `yaml:"qos"`
	ConnectTimeout   Duration `yaml:"connect_timeout"`
	PublishTimeout   Duration `yaml:"publish_timeout"`
}

// MetricsConfig controls the Prometheus endpoint. An empty listen address
// disables the metrics server.
type MetricsConfig struct {
	Listen string `yaml:"listen"`
}

// Default returns the configuration used when an option is absent: a level-1
// platform stepping at 10 Hz against a local broker.
func Default() Config {
	return Config{
		Simulation: SimulationConfig{
			Level:               1,
			PosStateDimension:   3,
			Period:              Duration(100 * time.Millisecond),
			SysNoiseMean:        0,
			SysNoiseCovariance:  1e-4,
			MeasDimension:       1,
			MeasNoiseMean:       []float64{0},
			MeasNoiseCovariance: [][]float64{{1e-4}},
			StateTimerID:        1,
			MeasTimerID:         2,
		},
		MQTT: MQTTConfig{
			Broker:           "tcp://127.0.0.1:1883",
			ClientID:         "rover-simulator",
			ControlTopic:     "rover/cmd_vel",
			MeasurementTopic: "rover/distance",
			PoseTopic:        "rover/pose",
			ConnectTimeout:   Duration(5 * time.Second),
			PublishTimeout:   Duration(3 * time.Second),
		},
		Metrics: MetricsConfig{
			Listen: ":9090",
		},
	}
}

// Load reads and validates a configuration file. Options absent from the
// file keep their defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the option set for the inconsistencies that must block
// startup. Deeper dimensional checks (noise vs model dimensions, covariance
// definiteness) happen in core.Simulator.Configure.
func (c Config) Validate() error {
	s := c.Simulation
	if s.Level < 1 {
		return fmt.Errorf("simulation.level must be at least 1, got %d", s.Level)
	}
	if s.PosStateDimension < 1 {
		return fmt.Errorf("simulation.pos_state_dimension must be at least 1, got %d", s.PosStateDimension)
	}
	if s.Period.Std() <= 0 {
		return fmt.Errorf("simulation.period must be positive, got %v", s.Period.Std())
	}
	if s.MeasPeriod.Std() < 0 {
		return fmt.Errorf("simulation.meas_period must not be negative, got %v", s.MeasPeriod.Std())
	}
	if s.MeasDimension < 1 {
		return fmt.Errorf("simulation.meas_dimension must be at least 1, got %d", s.MeasDimension)
	}
	if len(s.MeasNoiseMean) != s.MeasDimension {
		return fmt.Errorf("simulation.meas_noise_mean has %d entries, meas_dimension is %d",
			len(s.MeasNoiseMean), s.MeasDimension)
	}
	if len(s.MeasNoiseCovariance) != s.MeasDimension {
		return fmt.Errorf("simulation.meas_noise_covariance has %d rows, meas_dimension is %d",
			len(s.MeasNoiseCovariance), s.MeasDimension)
	}
	if s.StateTimerID == s.MeasTimerID {
		return fmt.Errorf("simulation.state_timer_id and meas_timer_id must differ, both are %d", s.StateTimerID)
	}
	if c.MQTT.Broker == "" {
		return fmt.Errorf("mqtt.broker must not be empty")
	}
	if c.MQTT.QoS > 2 {
		return fmt.Errorf("mqtt.qos must be 0, 1 or 2, got %d", c.MQTT.QoS)
	}
	return nil
}

// Core converts the YAML surface into the simulation core's parameter set.
func (s SimulationConfig) Core() core.Config {
	return core.Config{
		Level:               s.Level,
		PosStateDimension:   s.PosStateDimension,
		Period:              s.Period.Std(),
		MeasPeriod:          s.MeasPeriod.Std(),
		SysNoiseMean:        s.SysNoiseMean,
		SysNoiseCovariance:  s.SysNoiseCovariance,
		MeasDimension:       s.MeasDimension,
		MeasNoiseMean:       s.MeasNoiseMean,
		MeasNoiseCovariance: s.MeasNoiseCovariance,
		MeasGain:            s.MeasGain,
		MeasOffset:          s.MeasOffset,
		StateTimerID:        s.StateTimerID,
		MeasTimerID:         s.MeasTimerID,
		Seed:                s.Seed,
	}
}
