// Package motion drives the arm toward target commands with a rate-limited
// proportional control law.
//
// The servos report nothing back, so the profiler keeps its own belief of
// the arm pose and updates it only from the commands it sends.
package motion

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/gwillem/sortbot/pkg/robot"
)

// ErrNoConvergence is returned when a move exceeds Config.MaxTicks.
var ErrNoConvergence = errors.New("motion did not converge")

// Config holds the control loop parameters.
type Config struct {
	Kp        float64       `json:"kp" yaml:"kp"`
	MaxStep   float64       `json:"max_step" yaml:"max_step"`   // degrees per tick
	Tolerance float64       `json:"tolerance" yaml:"tolerance"` // degrees
	Tick      time.Duration `json:"tick" yaml:"tick"`
	MaxTicks  int           `json:"max_ticks" yaml:"max_ticks"`
}

// DefaultConfig returns the tuning used on the reference arm.
func DefaultConfig() Config {
	return Config{
		Kp:        0.15,
		MaxStep:   4.0,
		Tolerance: 1.0,
		Tick:      30 * time.Millisecond,
		MaxTicks:  1000,
	}
}

// Validate checks the control parameters.
func (c Config) Validate() error {
	if c.Kp <= 0 || c.Kp > 1 {
		return fmt.Errorf("motion: kp %g must be in (0, 1]", c.Kp)
	}
	if c.MaxStep <= 0 {
		return fmt.Errorf("motion: max step %g must be positive", c.MaxStep)
	}
	if c.Tolerance < 0 {
		return fmt.Errorf("motion: tolerance %g must not be negative", c.Tolerance)
	}
	if c.Tick < 0 {
		return fmt.Errorf("motion: tick %s must not be negative", c.Tick)
	}
	return nil
}

// State is the believed position of each axis in servo degrees.
type State [4]float64

// StateOf converts a command to a state.
func StateOf(cmd robot.Command) State {
	var s State
	for i, a := range robot.AllAxes() {
		s[i] = float64(cmd.Get(a))
	}
	return s
}

// Command truncates the state toward zero on every axis.
func (s State) Command() robot.Command {
	var cmd robot.Command
	for i, a := range robot.AllAxes() {
		cmd = cmd.With(a, int(s[i]))
	}
	return cmd
}

// Tick describes one iteration of the control loop.
type Tick struct {
	N       int           // 1-based index within the move
	State   State         // belief after the step
	Command robot.Command // what was sent
	Arrived [4]bool
}

// Result summarises a completed move.
type Result struct {
	Ticks   int
	Arrived bool
	Final   robot.Command
}

// Profiler owns the arm state and the actuator link for its lifetime.
type Profiler struct {
	cfg    Config
	link   robot.Link
	limits robot.Calibration
	logger *zap.Logger

	observer func(Tick)

	mu      sync.Mutex   // held for a whole move
	stateMu sync.RWMutex // guards state; never held while calling out
	state   State
}

// Option configures a Profiler.
type Option func(*Profiler)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(p *Profiler) { p.logger = l }
}

// WithLimits clamps every emitted command to the given ranges.
func WithLimits(cal robot.Calibration) Option {
	return func(p *Profiler) { p.limits = cal }
}

// WithObserver registers a callback that receives every tick. It runs on
// the moving goroutine after the command was sent and may call State.
func WithObserver(fn func(Tick)) Option {
	return func(p *Profiler) { p.observer = fn }
}

// NewProfiler creates a profiler whose belief starts at home.
func NewProfiler(cfg Config, link robot.Link, home robot.Command, opts ...Option) *Profiler {
	if cfg.MaxTicks <= 0 {
		cfg.MaxTicks = DefaultConfig().MaxTicks
	}
	p := &Profiler{
		cfg:   cfg,
		link:  link,
		state: StateOf(home),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = zap.NewNop()
	}
	return p
}

// State returns the current belief of the arm pose.
func (p *Profiler) State() State {
	p.stateMu.RLock()
	defer p.stateMu.RUnlock()
	return p.state
}

// MoveTo steps every axis toward target until all are within tolerance,
// then waits settle before returning. One command is sent per tick.
func (p *Profiler) MoveTo(ctx context.Context, target robot.Command, settle time.Duration) (Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return Result{Final: p.state.Command()}, err
	}

	goal := StateOf(p.clamp(target))
	if p.state == goal {
		return Result{Arrived: true, Final: goal.Command()}, nil
	}

	var ticker *time.Ticker
	if p.cfg.Tick > 0 {
		ticker = time.NewTicker(p.cfg.Tick)
		defer ticker.Stop()
	}

	for n := 1; ; n++ {
		if n > p.cfg.MaxTicks {
			p.logger.Warn("Move did not converge",
				zap.Stringer("target", target),
				zap.Stringer("state", p.state.Command()),
				zap.Int("ticks", p.cfg.MaxTicks))
			return Result{Ticks: p.cfg.MaxTicks, Final: p.state.Command()},
				fmt.Errorf("%w after %d ticks toward %s", ErrNoConvergence, p.cfg.MaxTicks, target)
		}

		p.stateMu.Lock()
		arrived := p.step(goal)
		state := p.state
		p.stateMu.Unlock()

		cmd := p.clamp(state.Command())
		p.send(ctx, cmd)
		if p.observer != nil {
			p.observer(Tick{N: n, State: state, Command: cmd, Arrived: arrived})
		}

		if allArrived(arrived) {
			p.logger.Debug("Move complete", zap.Stringer("target", target), zap.Int("ticks", n))
			if err := wait(ctx, settle); err != nil {
				return Result{Ticks: n, Arrived: true, Final: cmd}, err
			}
			return Result{Ticks: n, Arrived: true, Final: cmd}, nil
		}

		if ticker != nil {
			select {
			case <-ctx.Done():
				return Result{Ticks: n, Final: cmd}, ctx.Err()
			case <-ticker.C:
			}
		} else if err := ctx.Err(); err != nil {
			return Result{Ticks: n, Final: cmd}, err
		}
	}
}

// Jump sets the belief to cmd, sends it once and waits delay. It is meant
// for homing at startup when the real pose is unknown.
func (p *Profiler) Jump(ctx context.Context, cmd robot.Command, delay time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	cmd = p.clamp(cmd)
	p.stateMu.Lock()
	p.state = StateOf(cmd)
	p.stateMu.Unlock()
	p.logger.Info("Jumping to pose", zap.Stringer("command", cmd))
	p.send(ctx, cmd)
	return wait(ctx, delay)
}

// step applies the control law to every axis.
func (p *Profiler) step(goal State) [4]bool {
	var arrived [4]bool
	for i := range p.state {
		e := goal[i] - p.state[i]
		if math.Abs(e) <= p.cfg.Tolerance {
			p.state[i] = goal[i]
			arrived[i] = true
			continue
		}
		delta := e * p.cfg.Kp
		delta = math.Max(-p.cfg.MaxStep, math.Min(p.cfg.MaxStep, delta))
		p.state[i] += delta
	}
	return arrived
}

func (p *Profiler) send(ctx context.Context, cmd robot.Command) {
	if err := p.link.Send(ctx, cmd); err != nil {
		p.logger.Warn("Send failed", zap.Stringer("command", cmd), zap.Error(err))
	}
}

func (p *Profiler) clamp(cmd robot.Command) robot.Command {
	if p.limits == nil {
		return cmd
	}
	return p.limits.Clamp(cmd)
}

func allArrived(a [4]bool) bool {
	for _, ok := range a {
		if !ok {
			return false
		}
	}
	return true
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
