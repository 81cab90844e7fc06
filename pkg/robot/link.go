package robot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"go.bug.st/serial"
	"go.uber.org/zap"
)

// ErrLinkUnavailable is returned when the actuator link cannot be opened.
var ErrLinkUnavailable = errors.New("actuator link unavailable")

// Link carries commands to the servos. Writes are fire-and-forget: nothing
// is read back, so the controller never learns the real arm pose.
type Link interface {
	Send(ctx context.Context, cmd Command) error
	Close() error
}

// PortOpener opens a serial port for writing. Tests replace it.
type PortOpener func(path string, mode *serial.Mode) (io.WriteCloser, error)

var openPort PortOpener = func(path string, mode *serial.Mode) (io.WriteCloser, error) {
	return serial.Open(path, mode)
}

// LineLink writes each command as one text line to a serial port.
type LineLink struct {
	mu   sync.Mutex
	port io.WriteCloser
}

// NewLineLink wraps an already open port.
func NewLineLink(port io.WriteCloser) *LineLink {
	return &LineLink{port: port}
}

// Send writes cmd followed by a line break.
func (l *LineLink) Send(ctx context.Context, cmd Command) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := io.WriteString(l.port, cmd.String()+"\n"); err != nil {
		return fmt.Errorf("write command %s: %w", cmd, err)
	}
	return nil
}

// Close closes the underlying port.
func (l *LineLink) Close() error {
	return l.port.Close()
}

// NopLink discards every command. It stands in for the hardware in dry runs.
type NopLink struct{}

func (NopLink) Send(context.Context, Command) error { return nil }

func (NopLink) Close() error { return nil }

// Open opens the link described by cfg. Failures to reach the hardware
// wrap ErrLinkUnavailable.
func Open(ctx context.Context, cfg LinkConfig) (Link, error) {
	if cfg.Driver == DriverNone {
		return NopLink{}, nil
	}
	if cfg.Port == "" {
		return nil, fmt.Errorf("%w: no port configured", ErrLinkUnavailable)
	}

	switch cfg.Driver {
	case DriverLine, "":
		return openLine(ctx, cfg)
	case DriverFeetech:
		link, err := NewBusLink(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrLinkUnavailable, err)
		}
		return link, nil
	default:
		return nil, fmt.Errorf("unknown link driver %q", cfg.Driver)
	}
}

// OpenOrDryRun opens the link described by cfg and falls back to a NopLink
// when the hardware is unavailable. The returned bool is false for the
// fallback.
func OpenOrDryRun(ctx context.Context, cfg LinkConfig, logger *zap.Logger) (Link, bool, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	link, err := Open(ctx, cfg)
	switch {
	case err == nil:
		_, dry := link.(NopLink)
		return link, !dry, nil
	case errors.Is(err, ErrLinkUnavailable):
		logger.Warn("Actuator link unavailable, running dry",
			zap.String("port", cfg.Port),
			zap.String("driver", cfg.Driver),
			zap.Error(err))
		return NopLink{}, false, nil
	default:
		return nil, false, err
	}
}

func openLine(ctx context.Context, cfg LinkConfig) (Link, error) {
	mode, err := cfg.Serial.SerialMode()
	if err != nil {
		return nil, err
	}

	port, err := openPort(cfg.Port, mode)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", ErrLinkUnavailable, cfg.Port, err)
	}

	if cfg.ResetDelay > 0 {
		timer := time.NewTimer(cfg.ResetDelay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			port.Close()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	return NewLineLink(port), nil
}
