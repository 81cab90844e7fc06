package robot

import (
	"errors"
	"fmt"
	"math"

	"gopkg.in/yaml.v3"

	"github.com/gwillem/sortbot/pkg/kinematics"
)

// ErrClamped is returned by a strict Calibrator when a joint would be
// saturated at its mechanical limit.
var ErrClamped = errors.New("joint outside mechanical range")

// JointCalibration maps a solved angle onto one servo.
type JointCalibration struct {
	Offset float64 `json:"offset" yaml:"offset"`
	Min    int     `json:"min" yaml:"min"`
	Max    int     `json:"max" yaml:"max"`
}

// Calibration holds calibration data for all axes, keyed by axis name.
type Calibration map[Axis]JointCalibration

// DefaultCalibration returns the offsets and ranges measured on the
// reference assembly.
func DefaultCalibration() Calibration {
	return Calibration{
		Base:     {Offset: 74, Min: 29, Max: 160},
		Shoulder: {Offset: 105, Min: 10, Max: 160},
		Elbow:    {Offset: -42, Min: 10, Max: 120},
		Claw:     {Offset: 0, Min: 0, Max: 180},
	}
}

// Raw converts a solved angle to servo degrees, truncating toward zero.
func (c JointCalibration) Raw(angle float64) int {
	return int(angle + c.Offset)
}

// Clamp saturates v to [Min, Max].
func (c JointCalibration) Clamp(v int) int {
	return max(c.Min, min(c.Max, v))
}

// Contains reports whether v lies within [Min, Max].
func (c JointCalibration) Contains(v int) bool {
	return v >= c.Min && v <= c.Max
}

// UnmarshalYAML decodes each axis on top of the values already in c, so a
// file can override a single field of one joint.
func (c *Calibration) UnmarshalYAML(value *yaml.Node) error {
	var axes map[Axis]yaml.Node
	if err := value.Decode(&axes); err != nil {
		return err
	}
	if *c == nil {
		*c = make(Calibration, len(axes))
	}
	for axis, node := range axes {
		jc := (*c)[axis]
		if err := node.Decode(&jc); err != nil {
			return fmt.Errorf("calibration %s: %w", axis, err)
		}
		(*c)[axis] = jc
	}
	return nil
}

// Validate checks that every axis has a non-empty range.
func (c Calibration) Validate() error {
	for _, a := range AllAxes() {
		jc, ok := c[a]
		if !ok {
			return fmt.Errorf("calibration: missing axis %s", a)
		}
		if jc.Min > jc.Max {
			return fmt.Errorf("calibration: %s range [%d, %d] is empty", a, jc.Min, jc.Max)
		}
		if math.IsNaN(jc.Offset) || math.IsInf(jc.Offset, 0) {
			return fmt.Errorf("calibration: %s offset is not finite", a)
		}
	}
	return nil
}

// Clamp saturates every axis of cmd to its range. Axes without
// calibration data are passed through.
func (c Calibration) Clamp(cmd Command) Command {
	for _, a := range AllAxes() {
		if jc, ok := c[a]; ok {
			cmd = cmd.With(a, jc.Clamp(cmd.Get(a)))
		}
	}
	return cmd
}

// Calibrator turns solved joint angles into actuator commands.
type Calibrator struct {
	Calibration Calibration
	// Strict makes Apply fail instead of saturating.
	Strict bool
}

// NewCalibrator returns a saturating calibrator for cal.
func NewCalibrator(cal Calibration) Calibrator {
	return Calibrator{Calibration: cal}
}

// Apply offsets and clamps the three joints and attaches the claw value.
// Out of range joints are saturated silently unless the calibrator is
// strict, in which case an error wrapping ErrClamped is returned.
func (c Calibrator) Apply(angles kinematics.JointAngles, claw int) (Command, error) {
	joints := [...]struct {
		axis  Axis
		angle float64
	}{
		{Base, angles.Base},
		{Shoulder, angles.Shoulder},
		{Elbow, angles.Elbow},
	}

	cmd := Command{Claw: claw}
	for _, j := range joints {
		jc := c.Calibration[j.axis]
		raw := jc.Raw(j.angle)
		if c.Strict && !jc.Contains(raw) {
			return Command{}, fmt.Errorf("%w: %s=%d not in [%d, %d]", ErrClamped, j.axis, raw, jc.Min, jc.Max)
		}
		cmd = cmd.With(j.axis, jc.Clamp(raw))
	}

	if jc, ok := c.Calibration[Claw]; ok {
		cmd.Claw = jc.Clamp(claw)
	}
	return cmd, nil
}
