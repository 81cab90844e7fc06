package sequencer

import (
	"time"

	"github.com/golang/geo/r3"
	"github.com/google/uuid"

	"github.com/gwillem/sortbot/pkg/perception"
	"github.com/gwillem/sortbot/pkg/robot"
)

// Phase is a state of the pick-and-place cycle.
type Phase int

const (
	Idle Phase = iota
	Home
	Approach
	Slide
	Grasp
	Lift
	Transport
	Release
	Return
	Aborted
)

var phaseNames = [...]string{
	Idle:      "IDLE",
	Home:      "HOME",
	Approach:  "APPROACH",
	Slide:     "SLIDE",
	Grasp:     "GRASP",
	Lift:      "LIFT",
	Transport: "TRANSPORT",
	Release:   "RELEASE",
	Return:    "RETURN",
	Aborted:   "ABORTED",
}

func (p Phase) String() string {
	if p < 0 || int(p) >= len(phaseNames) {
		return "UNKNOWN"
	}
	return phaseNames[p]
}

// Task is one pick-and-place of a single target.
type Task struct {
	ID     uuid.UUID
	Target perception.Target
	Phase  Phase

	Standoff  r3.Vector
	Waypoints []r3.Vector   // slide points that solved
	Grasp     robot.Command // claw closed at the target
	Drop      robot.Command // drop zone pose, claw closed
}

// Report describes how a task went.
type Report struct {
	TaskID   uuid.UUID
	Target   perception.Target
	Phases   []Phase
	Started  time.Time
	Finished time.Time

	Waypoints    int  // slide waypoints driven
	Skipped      int  // slide waypoints without a solution
	LiftFallback bool // lift used the shoulder adjustment
	Ticks        int  // control ticks over the whole task

	GraspClaw   int
	ReleaseClaw int

	Err error
}

// Completed reports whether the object was delivered.
func (r *Report) Completed() bool {
	return r.Err == nil
}

// Visited reports whether the task entered phase p.
func (r *Report) Visited(p Phase) bool {
	for _, q := range r.Phases {
		if q == p {
			return true
		}
	}
	return false
}

// Duration returns how long the task took.
func (r *Report) Duration() time.Duration {
	return r.Finished.Sub(r.Started)
}
