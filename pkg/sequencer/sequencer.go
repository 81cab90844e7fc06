// Package sequencer runs the pick-and-place cycle of the sorting arm.
//
// A task moves through HOME, APPROACH, SLIDE, GRASP, LIFT, TRANSPORT,
// RELEASE and RETURN. A target that cannot be solved aborts the task
// before anything is grasped, and an aborted task still returns home.
package sequencer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang/geo/r3"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/gwillem/sortbot/pkg/kinematics"
	"github.com/gwillem/sortbot/pkg/motion"
	"github.com/gwillem/sortbot/pkg/perception"
	"github.com/gwillem/sortbot/pkg/robot"
)

var (
	// ErrPerceptionEmpty is returned by Cycle when no reachable target
	// was detected. No motion happens.
	ErrPerceptionEmpty = errors.New("no reachable target detected")
	// ErrUnknownLabel is returned when a target has no drop zone.
	ErrUnknownLabel = errors.New("no drop zone for label")
)

// Sequencer runs one task at a time.
type Sequencer struct {
	solver     kinematics.Solver
	calibrator robot.Calibrator
	profiler   *motion.Profiler
	cfg        Config
	logger     *zap.Logger
	onPhase    func(Phase, *Task)

	mu    sync.Mutex // held for the whole task
	phase atomic.Int32
}

// Option configures a Sequencer.
type Option func(*Sequencer)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Sequencer) { s.logger = l }
}

// WithPhaseHook registers a callback run on every phase change.
func WithPhaseHook(fn func(Phase, *Task)) Option {
	return func(s *Sequencer) { s.onPhase = fn }
}

// New creates a sequencer driving profiler.
func New(solver kinematics.Solver, cal robot.Calibrator, profiler *motion.Profiler, cfg Config, opts ...Option) *Sequencer {
	s := &Sequencer{
		solver:     solver,
		calibrator: cal,
		profiler:   profiler,
		cfg:        cfg,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	return s
}

// Phase returns the phase of the running task, or Idle.
func (s *Sequencer) Phase() Phase {
	return Phase(s.phase.Load())
}

// Cycle asks src for targets and runs the first one that can be solved.
// The rest are ignored until the next cycle.
func (s *Sequencer) Cycle(ctx context.Context, src perception.Source) (*Report, error) {
	targets, err := src.Detect(ctx)
	if err != nil {
		return nil, fmt.Errorf("detect targets: %w", err)
	}

	for _, t := range targets {
		if !s.solver.Reachable(t.Position) {
			s.logger.Debug("Skipping unreachable target", zap.Stringer("target", t))
			continue
		}
		s.logger.Info("Target selected", zap.Stringer("target", t), zap.Int("detected", len(targets)))
		return s.Run(ctx, t)
	}

	s.logger.Info("No reachable target", zap.Int("detected", len(targets)))
	return nil, ErrPerceptionEmpty
}

// Run performs a complete pick-and-place of target and always ends with
// the arm at home. The returned error is the reason the task aborted.
func (s *Sequencer) Run(ctx context.Context, target perception.Target) (*Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	task := &Task{ID: uuid.New(), Target: target}
	rep := &Report{TaskID: task.ID, Target: target, Started: time.Now()}
	log := s.logger.With(zap.String("task", task.ID.String()), zap.Stringer("target", target))

	log.Info("Task started")
	err := s.pick(ctx, task, rep, log)
	if err != nil {
		s.enter(Aborted, task, rep)
		log.Warn("Task aborted", zap.Stringer("phase", rep.Phases[len(rep.Phases)-2]), zap.Error(err))
	}

	// Home even if ctx was cancelled mid-task.
	s.enter(Return, task, rep)
	home := s.cfg.Home
	if retErr := s.move(context.WithoutCancel(ctx), home, s.cfg.Settle.Return, rep); retErr != nil {
		log.Error("Return home failed", zap.Error(retErr))
		err = errors.Join(err, fmt.Errorf("return home: %w", retErr))
	}

	s.enter(Idle, task, rep)
	rep.Finished = time.Now()
	rep.Err = err
	if err == nil {
		log.Info("Task complete", zap.Duration("took", rep.Duration()), zap.Int("ticks", rep.Ticks))
	}
	return rep, err
}

func (s *Sequencer) pick(ctx context.Context, task *Task, rep *Report, log *zap.Logger) error {
	cfg := s.cfg
	target := task.Target.Position

	s.enter(Home, task, rep)
	if err := s.move(ctx, cfg.Home, cfg.Settle.Home, rep); err != nil {
		return err
	}

	s.enter(Approach, task, rep)
	drop, ok := cfg.DropZones[task.Target.Label]
	if !ok {
		return fmt.Errorf("%w %q", ErrUnknownLabel, task.Target.Label)
	}
	task.Drop = drop.With(robot.Claw, cfg.ClawClosed)

	task.Standoff = cfg.standoff(target)
	approach, err := s.solve(task.Standoff, cfg.ClawOpen)
	if err != nil {
		return fmt.Errorf("approach: %w", err)
	}
	task.Grasp, err = s.solve(target, cfg.ClawClosed)
	if err != nil {
		return fmt.Errorf("grasp: %w", err)
	}
	if err := s.move(ctx, approach, cfg.Settle.Approach, rep); err != nil {
		return err
	}

	s.enter(Slide, task, rep)
	for _, p := range kinematics.Lerp(task.Standoff, target, cfg.SlideSteps) {
		cmd, err := s.solve(p, cfg.ClawOpen)
		if err != nil {
			rep.Skipped++
			log.Debug("Skipping slide waypoint", zap.Error(err))
			continue
		}
		task.Waypoints = append(task.Waypoints, p)
		if err := s.move(ctx, cmd, 0, rep); err != nil {
			return err
		}
		rep.Waypoints++
	}

	s.enter(Grasp, task, rep)
	rep.GraspClaw = task.Grasp.Claw
	if err := s.move(ctx, task.Grasp, cfg.Settle.Grasp, rep); err != nil {
		return err
	}

	s.enter(Lift, task, rep)
	lift, err := s.solve(r3.Vector{X: target.X, Y: target.Y, Z: target.Z + cfg.LiftHeight}, cfg.ClawClosed)
	if err != nil {
		rep.LiftFallback = true
		lift = s.calibrator.Calibration.Clamp(task.Grasp.With(robot.Shoulder, task.Grasp.Shoulder-cfg.LiftFallback))
		log.Info("Lift point unsolvable, lowering shoulder", zap.Stringer("command", lift), zap.Error(err))
	}
	if err := s.move(ctx, lift, cfg.Settle.Lift, rep); err != nil {
		return err
	}

	s.enter(Transport, task, rep)
	if err := s.move(ctx, task.Drop, cfg.Settle.Transport, rep); err != nil {
		return err
	}

	s.enter(Release, task, rep)
	release := task.Drop.With(robot.Claw, cfg.ClawOpen)
	rep.ReleaseClaw = release.Claw
	return s.move(ctx, release, cfg.Settle.Release, rep)
}

// solve runs IK and calibration for p.
func (s *Sequencer) solve(p r3.Vector, claw int) (robot.Command, error) {
	angles, err := s.solver.Solve(p)
	if err != nil {
		return robot.Command{}, err
	}
	return s.calibrator.Apply(angles, claw)
}

func (s *Sequencer) move(ctx context.Context, cmd robot.Command, settle time.Duration, rep *Report) error {
	res, err := s.profiler.MoveTo(ctx, cmd, settle)
	rep.Ticks += res.Ticks
	if err != nil {
		return fmt.Errorf("move to %s: %w", cmd, err)
	}
	return nil
}

func (s *Sequencer) enter(p Phase, task *Task, rep *Report) {
	task.Phase = p
	rep.Phases = append(rep.Phases, p)
	s.phase.Store(int32(p))
	s.logger.Debug("Phase", zap.String("task", task.ID.String()), zap.Stringer("phase", p))
	if s.onPhase != nil {
		s.onPhase(p, task)
	}
}
