// Package config loads the sortbot configuration file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/gwillem/sortbot/pkg/kinematics"
	"github.com/gwillem/sortbot/pkg/motion"
	"github.com/gwillem/sortbot/pkg/perception"
	"github.com/gwillem/sortbot/pkg/robot"
	"github.com/gwillem/sortbot/pkg/sequencer"
)

// DefaultConfigFile is looked up in the working directory.
const DefaultConfigFile = "sortbot.yaml"

// Environment overrides.
const (
	EnvPort   = "SORTBOT_PORT"
	EnvDryRun = "SORTBOT_DRY_RUN"
)

// Config holds all sortbot configuration. It is read once at startup.
type Config struct {
	Arm         ArmConfig         `yaml:"arm"`
	Calibration robot.Calibration `yaml:"calibration"`
	Strict      bool              `yaml:"strict"` // fail instead of saturating joints
	Motion      motion.Config     `yaml:"motion"`
	Sequence    sequencer.Config  `yaml:"sequence"`
	Link        robot.LinkConfig  `yaml:"link"`
	Perception  PerceptionConfig  `yaml:"perception"`
	Journal     JournalConfig     `yaml:"journal"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// ArmConfig holds the link lengths in millimetres.
type ArmConfig struct {
	UpperArm float64 `yaml:"upper_arm"`
	Forearm  float64 `yaml:"forearm"`
}

// PerceptionConfig tells where detections come from. DetectionsPath is
// the YAML file the vision process writes. With Pixels set it holds pixel
// centroids that are mapped through the homography in Frame.
type PerceptionConfig struct {
	DetectionsPath string                 `yaml:"detections_path"`
	Pixels         bool                   `yaml:"pixels"`
	Frame          perception.FrameConfig `yaml:"frame"`
}

// JournalConfig configures the task journal.
type JournalConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// LoggingConfig configures the logger.
type LoggingConfig struct {
	Level       string `yaml:"level"` // debug, info, warn, error
	Development bool   `yaml:"development"`
}

// Default returns the configuration of the reference arm.
func Default() *Config {
	return &Config{
		Arm: ArmConfig{
			UpperArm: kinematics.DefaultUpperArm,
			Forearm:  kinematics.DefaultForearm,
		},
		Calibration: robot.DefaultCalibration(),
		Motion:      motion.DefaultConfig(),
		Sequence:    sequencer.DefaultConfig(),
		Link:        robot.DefaultLinkConfig(),
		Perception: PerceptionConfig{
			DetectionsPath: "detections.yaml",
			Frame:          perception.DefaultFrameConfig(),
		},
		Journal: JournalConfig{
			Enabled: true,
			Path:    "sortbot.db",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads path on top of the defaults and applies environment
// overrides. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration to path.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

func (c *Config) applyEnvOverrides() {
	if port := os.Getenv(EnvPort); port != "" {
		c.Link.Port = port
	}
	if v := os.Getenv(EnvDryRun); v != "" {
		if dry, err := strconv.ParseBool(v); err == nil && dry {
			c.Link.Driver = robot.DriverNone
		}
	}
}

// Validate checks every section.
func (c *Config) Validate() error {
	if err := c.Solver().Validate(); err != nil {
		return fmt.Errorf("arm: %w", err)
	}
	if err := c.Calibration.Validate(); err != nil {
		return err
	}
	if err := c.Motion.Validate(); err != nil {
		return err
	}
	if err := c.Sequence.Validate(); err != nil {
		return err
	}
	home := c.Sequence.Home
	if c.Calibration.Clamp(home) != home {
		return fmt.Errorf("sequence: home %s is outside the calibrated ranges", home)
	}
	if _, err := c.Link.Serial.Normalize(); err != nil {
		return fmt.Errorf("link: %w", err)
	}
	if _, err := zapcore.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	return nil
}

// Solver returns the IK solver for the configured arm.
func (c *Config) Solver() kinematics.Solver {
	return kinematics.NewSolver(c.Arm.UpperArm, c.Arm.Forearm)
}

// Source returns the detection source described by the perception
// section.
func (c *Config) Source() (perception.Source, error) {
	if !c.Perception.Pixels {
		return perception.File{Path: c.Perception.DetectionsPath}, nil
	}
	mapper, err := perception.LoadPlaneMapper(c.Perception.Frame)
	if err != nil {
		return nil, err
	}
	return perception.Mapped{
		Blobs:  perception.BlobFile{Path: c.Perception.DetectionsPath},
		Mapper: mapper,
	}, nil
}

// Calibrator returns the joint calibrator.
func (c *Config) Calibrator() robot.Calibrator {
	return robot.Calibrator{Calibration: c.Calibration, Strict: c.Strict}
}
