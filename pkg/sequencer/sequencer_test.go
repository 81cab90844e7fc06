package sequencer

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/gwillem/sortbot/pkg/kinematics"
	"github.com/gwillem/sortbot/pkg/motion"
	"github.com/gwillem/sortbot/pkg/perception"
	"github.com/gwillem/sortbot/pkg/robot"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type harness struct {
	seq    *Sequencer
	link   *robot.RecordingLink
	prof   *motion.Profiler
	phases []Phase
	logs   *observer.ObservedLogs
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()

	cfg := DefaultConfig()
	cfg.Settle = Settle{}
	require.NoError(t, cfg.Validate())

	mcfg := motion.DefaultConfig()
	mcfg.Tick = 0

	h := &harness{link: &robot.RecordingLink{}}
	cal := robot.DefaultCalibration()
	h.prof = motion.NewProfiler(mcfg, h.link, cfg.Home, motion.WithLimits(cal))

	core, logs := observer.New(zap.DebugLevel)
	h.logs = logs
	opts = append([]Option{
		WithLogger(zap.New(core)),
		WithPhaseHook(func(p Phase, _ *Task) { h.phases = append(h.phases, p) }),
	}, opts...)

	h.seq = New(
		kinematics.NewSolver(kinematics.DefaultUpperArm, kinematics.DefaultForearm),
		robot.NewCalibrator(cal),
		h.prof,
		cfg,
		opts...,
	)
	return h
}

func (h *harness) sent(cmd robot.Command) int {
	for i, c := range h.link.Commands() {
		if c == cmd {
			return i
		}
	}
	return -1
}

func green(x, y, z float64) perception.Target {
	return perception.Target{Label: perception.Green, Position: kinematics.Point(x, y, z)}
}

func TestRun_Green(t *testing.T) {
	h := newHarness(t)

	rep, err := h.seq.Run(context.Background(), green(30, 100, -30))
	require.NoError(t, err)
	assert.True(t, rep.Completed())

	want := []Phase{Home, Approach, Slide, Grasp, Lift, Transport, Release, Return, Idle}
	if diff := cmp.Diff(want, rep.Phases); diff != "" {
		t.Errorf("phases mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, want, h.phases)
	assert.Equal(t, Idle, h.seq.Phase())

	assert.GreaterOrEqual(t, rep.Waypoints, 1)
	assert.Equal(t, 20, rep.Waypoints+rep.Skipped)
	assert.False(t, rep.LiftFallback)
	assert.Equal(t, 0, rep.GraspClaw)
	assert.Equal(t, 30, rep.ReleaseClaw)
	assert.Equal(t, len(h.link.Commands()), rep.Ticks)

	grasp := h.sent(robot.Command{Base: 147, Shoulder: 136, Elbow: 41, Claw: 0})
	transport := h.sent(robot.Command{Base: 144, Shoulder: 137, Elbow: 23, Claw: 0})
	release := h.sent(robot.Command{Base: 144, Shoulder: 137, Elbow: 23, Claw: 30})
	require.NotEqual(t, -1, grasp, "grasp pose never sent")
	require.NotEqual(t, -1, transport, "green drop zone never reached")
	require.NotEqual(t, -1, release, "claw never opened at drop zone")
	assert.Less(t, grasp, transport)
	assert.Less(t, transport, release)

	last, _ := h.link.Last()
	assert.Equal(t, DefaultConfig().Home, last)
}

func TestRun_ClawOnlyTogglesAtGraspAndRelease(t *testing.T) {
	type mark struct {
		phase Phase
		from  int
	}
	var marks []mark
	var h *harness
	h = newHarness(t, WithPhaseHook(func(p Phase, _ *Task) {
		marks = append(marks, mark{p, len(h.link.Commands())})
	}))

	_, err := h.seq.Run(context.Background(), green(30, 100, -30))
	require.NoError(t, err)

	cmds := h.link.Commands()
	claws := make(map[Phase][]int)
	for i, m := range marks {
		to := len(cmds)
		if i+1 < len(marks) {
			to = marks[i+1].from
		}
		for _, c := range cmds[m.from:to] {
			claws[m.phase] = append(claws[m.phase], c.Claw)
		}
	}

	for _, p := range []Phase{Approach, Slide} {
		for _, c := range claws[p] {
			assert.Equal(t, 30, c, "claw during %s", p)
		}
	}
	for _, p := range []Phase{Lift, Transport} {
		for _, c := range claws[p] {
			assert.Equal(t, 0, c, "claw during %s", p)
		}
	}
	require.NotEmpty(t, claws[Grasp])
	require.NotEmpty(t, claws[Release])
	assert.Equal(t, 0, claws[Grasp][len(claws[Grasp])-1])
	assert.Equal(t, 30, claws[Release][len(claws[Release])-1])
}

func TestRun_UnreachableTarget(t *testing.T) {
	h := newHarness(t)

	rep, err := h.seq.Run(context.Background(), green(200, 0, -30))
	require.ErrorIs(t, err, kinematics.ErrUnreachable)
	assert.False(t, rep.Completed())
	assert.ErrorIs(t, rep.Err, kinematics.ErrUnreachable)

	want := []Phase{Home, Approach, Aborted, Return, Idle}
	if diff := cmp.Diff(want, rep.Phases); diff != "" {
		t.Errorf("phases mismatch (-want +got):\n%s", diff)
	}
	assert.False(t, rep.Visited(Slide))
	assert.False(t, rep.Visited(Grasp))

	for _, c := range h.link.Commands() {
		assert.Equal(t, 30, c.Claw, "claw must stay open on abort")
	}
	assert.Equal(t, 1, h.logs.FilterMessage("Task aborted").Len())
	assert.Equal(t, motion.StateOf(DefaultConfig().Home), h.prof.State())
}

func TestRun_UnreachableStandoff(t *testing.T) {
	h := newHarness(t)

	rep, err := h.seq.Run(context.Background(), green(-130, -90, 0))
	require.ErrorIs(t, err, kinematics.ErrUnreachable)
	assert.Equal(t, []Phase{Home, Approach, Aborted, Return, Idle}, rep.Phases)
}

func TestRun_DomainError(t *testing.T) {
	h := newHarness(t)

	rep, err := h.seq.Run(context.Background(), green(0, 0, 0))
	require.ErrorIs(t, err, kinematics.ErrDomain)
	assert.Equal(t, []Phase{Home, Approach, Aborted, Return, Idle}, rep.Phases)
}

func TestRun_UnknownLabel(t *testing.T) {
	h := newHarness(t)

	target := perception.Target{Label: "red", Position: kinematics.Point(30, 100, -30)}
	rep, err := h.seq.Run(context.Background(), target)
	require.ErrorIs(t, err, ErrUnknownLabel)
	assert.Equal(t, []Phase{Home, Approach, Aborted, Return, Idle}, rep.Phases)
}

func TestRun_LiftFallback(t *testing.T) {
	h := newHarness(t)

	rep, err := h.seq.Run(context.Background(), green(160, 0, 0))
	require.NoError(t, err)
	assert.True(t, rep.LiftFallback)
	assert.True(t, rep.Visited(Transport))

	grasp := h.sent(robot.Command{Base: 74, Shoulder: 115, Elbow: 115, Claw: 0})
	lift := h.sent(robot.Command{Base: 74, Shoulder: 90, Elbow: 115, Claw: 0})
	require.NotEqual(t, -1, grasp)
	require.NotEqual(t, -1, lift)
	assert.Less(t, grasp, lift)
}

func TestRun_SlideSkipsUnsolvableWaypoints(t *testing.T) {
	h := newHarness(t)

	// The slide from (-25, 0, 0) passes through the shoulder pivot.
	rep, err := h.seq.Run(context.Background(), green(25, 0, 0))
	require.NoError(t, err)
	assert.Equal(t, 19, rep.Waypoints)
	assert.Equal(t, 1, rep.Skipped)
	assert.True(t, rep.Visited(Grasp))
	assert.Equal(t, 1, h.logs.FilterMessage("Skipping slide waypoint").Len())
}

func TestRun_CancelledStillReturnsHome(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h := newHarness(t, WithPhaseHook(func(p Phase, _ *Task) {
		if p == Slide {
			cancel()
		}
	}))

	rep, err := h.seq.Run(ctx, green(30, 100, -30))
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []Phase{Home, Approach, Slide, Aborted, Return, Idle}, rep.Phases)

	last, _ := h.link.Last()
	assert.Equal(t, DefaultConfig().Home, last)
}

func TestRun_DryRun(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Settle = Settle{}
	mcfg := motion.DefaultConfig()
	mcfg.Tick = 0

	seq := New(
		kinematics.NewSolver(kinematics.DefaultUpperArm, kinematics.DefaultForearm),
		robot.NewCalibrator(robot.DefaultCalibration()),
		motion.NewProfiler(mcfg, robot.NopLink{}, cfg.Home),
		cfg,
	)

	rep, err := seq.Run(context.Background(), perception.Target{Label: perception.Black, Position: kinematics.Point(30, 100, -30)})
	require.NoError(t, err)
	assert.True(t, rep.Visited(Release))
	assert.Positive(t, rep.Ticks)
}

func TestRun_LinkErrorsDoNotAbort(t *testing.T) {
	h := newHarness(t)
	h.link.SendError = errors.New("disconnected")

	rep, err := h.seq.Run(context.Background(), green(30, 100, -30))
	require.NoError(t, err)
	assert.True(t, rep.Completed())
}

func TestRun_Serial(t *testing.T) {
	var mu sync.Mutex
	var phases []Phase
	h := newHarness(t, WithPhaseHook(func(p Phase, _ *Task) {
		mu.Lock()
		phases = append(phases, p)
		mu.Unlock()
	}))

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.seq.Run(context.Background(), green(30, 100, -30))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	one := []Phase{Home, Approach, Slide, Grasp, Lift, Transport, Release, Return, Idle}
	assert.Equal(t, append(append([]Phase{}, one...), one...), phases)
}

func TestCycle_Empty(t *testing.T) {
	h := newHarness(t)

	rep, err := h.seq.Cycle(context.Background(), perception.Static{})
	assert.ErrorIs(t, err, ErrPerceptionEmpty)
	assert.Nil(t, rep)
	assert.Empty(t, h.link.Commands())
}

func TestCycle_NothingReachable(t *testing.T) {
	h := newHarness(t)

	rep, err := h.seq.Cycle(context.Background(), perception.Static{green(300, 0, 0), green(0, 0, 0)})
	assert.ErrorIs(t, err, ErrPerceptionEmpty)
	assert.Nil(t, rep)
	assert.Empty(t, h.link.Commands())
}

func TestCycle_FirstReachableWins(t *testing.T) {
	h := newHarness(t)

	src := perception.Static{
		green(300, 0, 0),
		{Label: perception.Black, Position: kinematics.Point(30, 100, -30)},
		green(-20, 110, -30),
	}
	rep, err := h.seq.Cycle(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, perception.Black, rep.Target.Label)
	assert.NotEqual(t, -1, h.sent(robot.Command{Base: 108, Shoulder: 137, Elbow: 42, Claw: 30}))
	assert.Equal(t, -1, h.sent(robot.Command{Base: 144, Shoulder: 137, Elbow: 23, Claw: 30}))
}

func TestCycle_SourceError(t *testing.T) {
	h := newHarness(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := h.seq.Cycle(ctx, perception.Static{green(30, 100, -30)})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, h.link.Commands())
}

func TestConfig_Validate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())

	cfg := DefaultConfig()
	cfg.SlideSteps = 0
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.DropZones = nil
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.ApproachAxis = r3.Vector{}
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.ClawClosed = cfg.ClawOpen
	assert.Error(t, cfg.Validate())
}

func TestConfig_Standoff(t *testing.T) {
	cfg := DefaultConfig()
	got := cfg.standoff(kinematics.Point(30, 100, -30))
	assert.Equal(t, kinematics.Point(-20, 100, -30), got)

	cfg.ApproachAxis = r3.Vector{Y: 2}
	got = cfg.standoff(kinematics.Point(30, 100, -30))
	assert.Equal(t, kinematics.Point(30, 50, -30), got)
}

func TestPhase_String(t *testing.T) {
	assert.Equal(t, "APPROACH", Approach.String())
	assert.Equal(t, "ABORTED", Aborted.String())
	assert.Equal(t, "UNKNOWN", Phase(42).String())
}
