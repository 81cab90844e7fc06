// Package perception defines the detected objects handed to the sequencer
// and a few sources for them. Segmentation itself happens elsewhere; the
// sources here only carry its output into the base frame.
package perception

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/golang/geo/r3"
	"gopkg.in/yaml.v3"
)

// Label identifies the colour class of an object.
type Label string

// Labels known to the reference setup.
const (
	Green Label = "green"
	Black Label = "black"
)

// ParseLabel normalises a label name.
func ParseLabel(s string) Label {
	return Label(strings.ToLower(strings.TrimSpace(s)))
}

// Target is one detected object in the robot base frame.
type Target struct {
	Label    Label     `json:"label" yaml:"label"`
	Position r3.Vector `json:"position" yaml:"position"`
}

func (t Target) String() string {
	return fmt.Sprintf("%s@(%.1f, %.1f, %.1f)", t.Label, t.Position.X, t.Position.Y, t.Position.Z)
}

// ParseTarget parses "label:x,y,z", e.g. "green:30,100,-30".
func ParseTarget(s string) (Target, error) {
	label, coords, ok := strings.Cut(s, ":")
	if !ok {
		return Target{}, fmt.Errorf("parse target %q: want label:x,y,z", s)
	}
	fields := strings.Split(coords, ",")
	if len(fields) != 3 {
		return Target{}, fmt.Errorf("parse target %q: want 3 coordinates, got %d", s, len(fields))
	}
	var xyz [3]float64
	for i, f := range fields {
		v, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
		if err != nil {
			return Target{}, fmt.Errorf("parse target %q: %w", s, err)
		}
		xyz[i] = v
	}
	return Target{
		Label:    ParseLabel(label),
		Position: r3.Vector{X: xyz[0], Y: xyz[1], Z: xyz[2]},
	}, nil
}

// Source yields the objects seen at the time of the call.
type Source interface {
	Detect(ctx context.Context) ([]Target, error)
}

// Static is a Source that returns a fixed list.
type Static []Target

// Detect returns a copy of the list.
func (s Static) Detect(ctx context.Context) ([]Target, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([]Target, len(s))
	copy(out, s)
	return out, nil
}

// detection is the on-disk form written by the vision process.
type detection struct {
	Label string  `yaml:"label"`
	X     float64 `yaml:"x"`
	Y     float64 `yaml:"y"`
	Z     float64 `yaml:"z"`
}

// File is a Source that re-reads a YAML detection list on every call.
// Each entry has a label and x, y, z in millimetres:
//
//	[{label: green, x: 30, y: 100, z: -30}]
type File struct {
	Path string
}

// Detect reads the file. A missing file means nothing was seen.
func (f File) Detect(ctx context.Context) ([]Target, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(f.Path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read detections: %w", err)
	}

	var raw []detection
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse detections %s: %w", f.Path, err)
	}

	targets := make([]Target, 0, len(raw))
	for _, d := range raw {
		targets = append(targets, Target{
			Label:    ParseLabel(d.Label),
			Position: r3.Vector{X: d.X, Y: d.Y, Z: d.Z},
		})
	}
	return targets, nil
}
