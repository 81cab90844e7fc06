package robot

import (
	"fmt"
	"strings"
	"time"

	"go.bug.st/serial"
)

// Link drivers.
const (
	DriverLine    = "line"    // comma separated degrees, one command per line
	DriverFeetech = "feetech" // Feetech STS serial bus servos
	DriverNone    = "none"    // dry run
)

// LinkConfig holds configuration for the actuator link.
type LinkConfig struct {
	Driver string      `json:"driver" yaml:"driver"`
	Port   string      `json:"port" yaml:"port"`
	Serial PortOptions `json:"serial" yaml:"serial"`
	// ResetDelay is waited after opening a line link; the controller
	// board reboots when the port opens.
	ResetDelay time.Duration `json:"reset_delay" yaml:"reset_delay"`
	// ServoIDs maps axes to bus IDs for the feetech driver.
	ServoIDs map[Axis]int `json:"servo_ids,omitempty" yaml:"servo_ids,omitempty"`
}

// DefaultLinkConfig returns a line link at 115200 baud.
func DefaultLinkConfig() LinkConfig {
	return LinkConfig{
		Driver:     DriverLine,
		Serial:     PortOptions{BaudRate: 115200},
		ResetDelay: 2 * time.Second,
		ServoIDs: map[Axis]int{
			Base:     1,
			Shoulder: 2,
			Elbow:    3,
			Claw:     4,
		},
	}
}

// IsDryRun returns true if no hardware is configured.
func (c *LinkConfig) IsDryRun() bool {
	return c.Driver == DriverNone || c.Port == ""
}

// PortOptions holds the serial settings of the link. Frames are always
// 8 data bits with one stop bit, which is what the servo controller and
// the feetech bus both speak.
type PortOptions struct {
	BaudRate int    `json:"baud_rate" yaml:"baud_rate"`
	Parity   string `json:"parity,omitempty" yaml:"parity,omitempty"` // none, even or odd
}

var parities = map[string]serial.Parity{
	"":     serial.NoParity,
	"none": serial.NoParity,
	"even": serial.EvenParity,
	"odd":  serial.OddParity,
}

// Normalize fills in the default baud rate and checks the parity name.
func (o PortOptions) Normalize() (PortOptions, error) {
	if o.BaudRate <= 0 {
		o.BaudRate = 115200
	}
	o.Parity = strings.ToLower(strings.TrimSpace(o.Parity))
	if _, ok := parities[o.Parity]; !ok {
		return o, fmt.Errorf("unsupported parity %q: expected none, even or odd", o.Parity)
	}
	if o.Parity == "" {
		o.Parity = "none"
	}
	return o, nil
}

// SerialMode returns the go.bug.st/serial mode for the options.
func (o PortOptions) SerialMode() (*serial.Mode, error) {
	opts, err := o.Normalize()
	if err != nil {
		return nil, err
	}
	return &serial.Mode{
		BaudRate: opts.BaudRate,
		DataBits: 8,
		Parity:   parities[opts.Parity],
		StopBits: serial.OneStopBit,
	}, nil
}
