package robot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/hipsterbrown/feetech-servo/feetech"
)

// STS servos resolve one turn into 4096 steps.
const (
	stepsPerTurn  = 4096
	degreesToStep = stepsPerTurn / 360.0
)

// servoGroup is the part of feetech.ServoGroup a BusLink drives.
type servoGroup interface {
	SetPositions(ctx context.Context, positions feetech.PositionMap) error
	DisableAll(ctx context.Context) error
}

// BusLink drives Feetech STS bus servos instead of a line-oriented
// controller board. Each axis maps to one servo ID.
type BusLink struct {
	bus   io.Closer
	group servoGroup
	ids   map[Axis]int
}

// NewBusLink opens the bus and enables torque on the configured servos.
func NewBusLink(ctx context.Context, cfg LinkConfig) (*BusLink, error) {
	opts, err := cfg.Serial.Normalize()
	if err != nil {
		return nil, err
	}

	ids := make([]int, 0, len(cfg.ServoIDs))
	for _, a := range AllAxes() {
		id, ok := cfg.ServoIDs[a]
		if !ok {
			return nil, fmt.Errorf("no servo id for axis %s", a)
		}
		ids = append(ids, id)
	}

	bus, err := feetech.NewBus(feetech.BusConfig{
		Port:     cfg.Port,
		BaudRate: opts.BaudRate,
		Protocol: feetech.ProtocolSTS,
		Timeout:  100 * time.Millisecond,
	})
	if err != nil {
		return nil, fmt.Errorf("open bus: %w", err)
	}

	group := feetech.NewServoGroupByIDs(bus, ids...)
	if err := group.EnableAll(ctx); err != nil {
		bus.Close()
		return nil, fmt.Errorf("enable servos: %w", err)
	}

	return &BusLink{
		bus:   bus,
		group: group,
		ids:   cfg.ServoIDs,
	}, nil
}

// Send writes all four axes with one sync write.
func (l *BusLink) Send(ctx context.Context, cmd Command) error {
	positions := make(feetech.PositionMap, len(l.ids))
	for _, a := range AllAxes() {
		positions[l.ids[a]] = DegreesToSteps(cmd.Get(a))
	}

	if err := l.group.SetPositions(ctx, positions); err != nil {
		return fmt.Errorf("write positions: %w", err)
	}
	return nil
}

// Close disables torque and closes the bus.
func (l *BusLink) Close() error {
	var errs []error
	if err := l.group.DisableAll(context.Background()); err != nil {
		errs = append(errs, fmt.Errorf("disable servos: %w", err))
	}
	if err := l.bus.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close bus: %w", err))
	}
	return errors.Join(errs...)
}

// DegreesToSteps converts servo degrees to raw STS steps.
func DegreesToSteps(deg int) int {
	return int(float64(deg)*degreesToStep + 0.5)
}
