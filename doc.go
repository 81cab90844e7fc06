// Package sortbot controls a three-joint arm that sorts coloured objects
// into drop zones.
//
// A detected object is solved with closed-form inverse kinematics, mapped
// onto servo commands and approached with a proportional motion profile
// that emits one command per control tick. Each pick runs a fixed state
// machine and always ends with the arm back at home.
//
// # Installation
//
//	go install github.com/gwillem/sortbot/cmd/sortbot@latest
//
// # Usage
//
// Write a configuration and set the serial port of the arm:
//
//	sortbot init
//	sortbot ports
//
// Then sort whatever the vision process reports:
//
//	sortbot run
//
// Without a reachable port the arm runs dry and commands are discarded.
//
// # Packages
//
//   - cmd/sortbot: CLI with run, solve, trace, ports, history and init
//   - pkg/kinematics: inverse kinematics solver
//   - pkg/robot: joint calibration and the actuator link
//   - pkg/motion: proportional motion profiler
//   - pkg/sequencer: pick-and-place state machine
//   - pkg/perception: detection sources and the camera plane mapping
//   - pkg/journal: sqlite record of finished tasks
//   - pkg/config: YAML configuration
package sortbot
