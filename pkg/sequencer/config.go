package sequencer

import (
	"fmt"
	"time"

	"github.com/golang/geo/r3"

	"github.com/gwillem/sortbot/pkg/perception"
	"github.com/gwillem/sortbot/pkg/robot"
)

// Settle holds the pause after each motion, per phase.
type Settle struct {
	Home      time.Duration `json:"home" yaml:"home"`
	Approach  time.Duration `json:"approach" yaml:"approach"`
	Grasp     time.Duration `json:"grasp" yaml:"grasp"`
	Lift      time.Duration `json:"lift" yaml:"lift"`
	Transport time.Duration `json:"transport" yaml:"transport"`
	Release   time.Duration `json:"release" yaml:"release"`
	Return    time.Duration `json:"return" yaml:"return"`
}

// Config holds the geometry of a pick-and-place cycle.
type Config struct {
	Home       robot.Command `json:"home" yaml:"home"`
	ClawOpen   int           `json:"claw_open" yaml:"claw_open"`
	ClawClosed int           `json:"claw_closed" yaml:"claw_closed"`

	// Standoff is how far behind the target the approach starts, along
	// ApproachAxis.
	Standoff     float64   `json:"standoff" yaml:"standoff"`
	ApproachAxis r3.Vector `json:"approach_axis" yaml:"approach_axis"`
	SlideSteps   int       `json:"slide_steps" yaml:"slide_steps"`

	LiftHeight float64 `json:"lift_height" yaml:"lift_height"`
	// LiftFallback is subtracted from the shoulder when the lift point
	// has no solution.
	LiftFallback int `json:"lift_fallback" yaml:"lift_fallback"`

	// DropZones are joint poses per label; the claw value is ignored.
	DropZones map[perception.Label]robot.Command `json:"drop_zones" yaml:"drop_zones"`

	Settle Settle `json:"settle" yaml:"settle"`
}

// DefaultConfig returns the cycle used on the reference setup.
func DefaultConfig() Config {
	return Config{
		Home:         robot.Command{Base: 89, Shoulder: 134, Elbow: 42, Claw: 30},
		ClawOpen:     30,
		ClawClosed:   0,
		Standoff:     50,
		ApproachAxis: r3.Vector{X: 1},
		SlideSteps:   20,
		LiftHeight:   40,
		LiftFallback: 25,
		DropZones: map[perception.Label]robot.Command{
			perception.Green: {Base: 144, Shoulder: 137, Elbow: 23},
			perception.Black: {Base: 108, Shoulder: 137, Elbow: 42},
		},
		Settle: Settle{
			Home:      200 * time.Millisecond,
			Approach:  500 * time.Millisecond,
			Grasp:     500 * time.Millisecond,
			Lift:      300 * time.Millisecond,
			Transport: 500 * time.Millisecond,
			Release:   500 * time.Millisecond,
			Return:    500 * time.Millisecond,
		},
	}
}

// Validate checks the cycle geometry.
func (c Config) Validate() error {
	if c.Standoff < 0 {
		return fmt.Errorf("sequence: standoff %g must not be negative", c.Standoff)
	}
	if c.Standoff > 0 && c.ApproachAxis.Norm() == 0 {
		return fmt.Errorf("sequence: approach axis must not be zero")
	}
	if c.SlideSteps <= 0 {
		return fmt.Errorf("sequence: slide steps %d must be positive", c.SlideSteps)
	}
	if len(c.DropZones) == 0 {
		return fmt.Errorf("sequence: no drop zones configured")
	}
	if c.ClawOpen == c.ClawClosed {
		return fmt.Errorf("sequence: claw open and closed are both %d", c.ClawOpen)
	}
	return nil
}

// standoff returns the point the approach starts from.
func (c Config) standoff(target r3.Vector) r3.Vector {
	if c.Standoff == 0 {
		return target
	}
	return target.Sub(c.ApproachAxis.Normalize().Mul(c.Standoff))
}
