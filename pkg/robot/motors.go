// Package robot provides the actuator side of the sorting arm: axis names,
// calibrated commands and the links that carry them to the servos.
package robot

import (
	"fmt"
	"strconv"
	"strings"
)

// Axis identifies an actuator of the arm.
type Axis string

// Axes of the sorting arm, in wire order.
const (
	Base     Axis = "base"
	Shoulder Axis = "shoulder"
	Elbow    Axis = "elbow"
	Claw     Axis = "claw"
)

// AllAxes returns all axes in wire order.
func AllAxes() []Axis {
	return []Axis{
		Base,
		Shoulder,
		Elbow,
		Claw,
	}
}

// Command is one position per axis in servo degrees. It is the only thing
// ever written to the hardware.
type Command struct {
	Base     int `json:"base" yaml:"base"`
	Shoulder int `json:"shoulder" yaml:"shoulder"`
	Elbow    int `json:"elbow" yaml:"elbow"`
	Claw     int `json:"claw" yaml:"claw"`
}

// Get returns the value of one axis.
func (c Command) Get(a Axis) int {
	switch a {
	case Base:
		return c.Base
	case Shoulder:
		return c.Shoulder
	case Elbow:
		return c.Elbow
	case Claw:
		return c.Claw
	}
	return 0
}

// With returns a copy of c with one axis replaced.
func (c Command) With(a Axis, v int) Command {
	switch a {
	case Base:
		c.Base = v
	case Shoulder:
		c.Shoulder = v
	case Elbow:
		c.Elbow = v
	case Claw:
		c.Claw = v
	}
	return c
}

// String renders the line format understood by the servo controller,
// e.g. "89,134,42,30".
func (c Command) String() string {
	return fmt.Sprintf("%d,%d,%d,%d", c.Base, c.Shoulder, c.Elbow, c.Claw)
}

// ParseCommand parses the line format produced by Command.String.
func ParseCommand(s string) (Command, error) {
	fields := strings.Split(strings.TrimSpace(s), ",")
	if len(fields) != len(AllAxes()) {
		return Command{}, fmt.Errorf("parse command %q: want %d fields, got %d", s, len(AllAxes()), len(fields))
	}

	var cmd Command
	for i, a := range AllAxes() {
		v, err := strconv.Atoi(strings.TrimSpace(fields[i]))
		if err != nil {
			return Command{}, fmt.Errorf("parse command %q: %s: %w", s, a, err)
		}
		cmd = cmd.With(a, v)
	}
	return cmd, nil
}
