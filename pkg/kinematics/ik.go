// Package kinematics solves joint angles for the 3-joint sorting arm.
//
// Positions are millimetres in the robot base frame: x forward, y left,
// z up from the shoulder pivot. Angles are degrees.
package kinematics

import (
	"errors"
	"fmt"
	"math"

	"github.com/golang/geo/r3"
)

var (
	// ErrUnreachable is returned when the target is farther than L1+L2.
	ErrUnreachable = errors.New("target out of reach")
	// ErrDomain is returned when a law-of-cosines argument leaves [-1, 1].
	ErrDomain = errors.New("joint angle outside cosine domain")
)

// Default link lengths of the sorting arm in millimetres.
const (
	DefaultUpperArm = 82.0
	DefaultForearm  = 81.0
)

// Branch selects one of the two elbow configurations that reach a point.
type Branch int

const (
	// ElbowUp adds the triangle angle at the shoulder to the target
	// elevation. It is the only configuration the arm is assembled for.
	ElbowUp Branch = iota
)

func (b Branch) String() string {
	switch b {
	case ElbowUp:
		return "elbow-up"
	default:
		return fmt.Sprintf("branch(%d)", int(b))
	}
}

// JointAngles holds the solved base, shoulder and elbow angles.
type JointAngles struct {
	Base     float64 `json:"base" yaml:"base"`
	Shoulder float64 `json:"shoulder" yaml:"shoulder"`
	Elbow    float64 `json:"elbow" yaml:"elbow"`
}

// Point builds a base-frame position.
func Point(x, y, z float64) r3.Vector {
	return r3.Vector{X: x, Y: y, Z: z}
}

// Solver is a closed-form inverse kinematics solver for a planar two-link
// arm on a rotating base.
type Solver struct {
	L1     float64 // shoulder to elbow
	L2     float64 // elbow to claw
	Branch Branch
}

// NewSolver returns a solver for the given link lengths.
func NewSolver(l1, l2 float64) Solver {
	return Solver{L1: l1, L2: l2, Branch: ElbowUp}
}

// Validate checks the link lengths and branch.
func (s Solver) Validate() error {
	if s.L1 <= 0 || s.L2 <= 0 {
		return fmt.Errorf("link lengths must be positive, got L1=%g L2=%g", s.L1, s.L2)
	}
	if s.Branch != ElbowUp {
		return fmt.Errorf("unsupported elbow %s", s.Branch)
	}
	return nil
}

// Reach returns the maximum distance the claw can be from the shoulder.
func (s Solver) Reach() float64 {
	return s.L1 + s.L2
}

// Solve returns the joint angles that place the claw at p.
// It returns either a complete solution or an error wrapping
// ErrUnreachable or ErrDomain.
func (s Solver) Solve(p r3.Vector) (JointAngles, error) {
	r := math.Hypot(p.X, p.Y)
	d := math.Hypot(r, p.Z)

	if d > s.Reach() {
		return JointAngles{}, fmt.Errorf("%w: %s is %.1fmm away, reach is %.1fmm", ErrUnreachable, fmtPoint(p), d, s.Reach())
	}

	base := degrees(math.Atan2(p.Y, p.X))

	cosAlpha := (s.L1*s.L1 + d*d - s.L2*s.L2) / (2 * s.L1 * d)
	cosBeta := (s.L1*s.L1 + s.L2*s.L2 - d*d) / (2 * s.L1 * s.L2)

	// NaN fails both comparisons, so test for the valid range instead.
	if !(cosAlpha >= -1 && cosAlpha <= 1) || !(cosBeta >= -1 && cosBeta <= 1) {
		return JointAngles{}, fmt.Errorf("%w: %s (cos alpha %.4f, cos beta %.4f)", ErrDomain, fmtPoint(p), cosAlpha, cosBeta)
	}

	elevation := math.Atan2(p.Z, r)
	alpha := math.Acos(cosAlpha)
	beta := math.Acos(cosBeta)

	return JointAngles{
		Base:     base,
		Shoulder: degrees(elevation + alpha),
		Elbow:    degrees(beta),
	}, nil
}

// Reachable reports whether Solve succeeds for p.
func (s Solver) Reachable(p r3.Vector) bool {
	_, err := s.Solve(p)
	return err == nil
}

// Lerp returns n evenly spaced points from a towards b. The first point is
// one step past a and the last point is b.
func Lerp(a, b r3.Vector, n int) []r3.Vector {
	if n <= 0 {
		return nil
	}
	delta := b.Sub(a)
	points := make([]r3.Vector, n)
	for i := 1; i <= n; i++ {
		points[i-1] = a.Add(delta.Mul(float64(i) / float64(n)))
	}
	points[n-1] = b
	return points
}

func degrees(rad float64) float64 {
	return rad * 180 / math.Pi
}

func fmtPoint(p r3.Vector) string {
	return fmt.Sprintf("(%.1f, %.1f, %.1f)", p.X, p.Y, p.Z)
}
