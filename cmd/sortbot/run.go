package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"go.uber.org/zap"

	"github.com/gwillem/sortbot/pkg/config"
	"github.com/gwillem/sortbot/pkg/journal"
	"github.com/gwillem/sortbot/pkg/motion"
	"github.com/gwillem/sortbot/pkg/perception"
	"github.com/gwillem/sortbot/pkg/robot"
	"github.com/gwillem/sortbot/pkg/sequencer"
)

type RunCommand struct {
	Once   bool   `long:"once" description:"Run a single cycle without asking"`
	DryRun bool   `long:"dry-run" description:"Do not open the actuator link"`
	Target string `long:"target" value-name:"LABEL:X,Y,Z" description:"Pick this target instead of reading detections"`
}

func (c *RunCommand) Execute(args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if c.DryRun {
		cfg.Link.Driver = robot.DriverNone
	}

	logger, err := newLogger(cfg.Logging)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	link, live, err := robot.OpenOrDryRun(ctx, cfg.Link, logger)
	if err != nil {
		return err
	}
	defer link.Close()

	src, err := c.source(cfg)
	if err != nil {
		return err
	}

	var jrnl *journal.Journal
	if cfg.Journal.Enabled {
		jrnl, err = journal.Open(cfg.Journal.Path)
		if err != nil {
			return err
		}
		defer jrnl.Close()
	}

	profiler := motion.NewProfiler(cfg.Motion, link, cfg.Sequence.Home,
		motion.WithLogger(logger),
		motion.WithLimits(cfg.Calibration),
	)
	seq := sequencer.New(cfg.Solver(), cfg.Calibrator(), profiler, cfg.Sequence,
		sequencer.WithLogger(logger),
	)

	fmt.Println(headerStyle.Render("sortbot"))
	if live {
		fmt.Printf("Arm on %s (%s)\n", cfg.Link.Port, cfg.Link.Driver)
	} else {
		fmt.Println(dimStyle.Render("Dry run: commands are not sent anywhere"))
	}
	fmt.Println()

	// The real pose is unknown at startup, so command home directly.
	if err := profiler.Jump(ctx, cfg.Sequence.Home, cfg.Sequence.Settle.Home); err != nil {
		return fmt.Errorf("initial home: %w", err)
	}

	for {
		if !c.Once && !confirm("Pick the next object?") {
			break
		}

		rep, err := seq.Cycle(ctx, src)
		switch {
		case errors.Is(err, sequencer.ErrPerceptionEmpty):
			fmt.Println(dimStyle.Render("Nothing reachable in view."))
		case rep != nil:
			printReport(rep)
			record(ctx, jrnl, rep, logger)
		case err != nil:
			return err
		}

		if c.Once || ctx.Err() != nil {
			break
		}
	}
	return nil
}

func (c *RunCommand) source(cfg *config.Config) (perception.Source, error) {
	if c.Target == "" {
		return cfg.Source()
	}
	target, err := perception.ParseTarget(c.Target)
	if err != nil {
		return nil, err
	}
	return perception.Static{target}, nil
}

func confirm(title string) bool {
	var next bool
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title(title).
				Affirmative("Pick").
				Negative("Quit").
				Value(&next),
		),
	)
	if err := form.Run(); err != nil {
		return false
	}
	return next
}

func printReport(rep *sequencer.Report) {
	phases := make([]string, len(rep.Phases))
	for i, p := range rep.Phases {
		phases[i] = p.String()
	}

	if rep.Completed() {
		fmt.Println(successStyle.Render(fmt.Sprintf("Sorted %s", rep.Target)))
	} else {
		fmt.Println(errorStyle.Render(fmt.Sprintf("Aborted %s: %v", rep.Target, rep.Err)))
	}
	fmt.Println(dimStyle.Render(fmt.Sprintf("  %s  (%d ticks, %d waypoints, %d skipped, %s)",
		strings.Join(phases, " > "), rep.Ticks, rep.Waypoints, rep.Skipped, rep.Duration().Round(time.Millisecond))))
}

func record(ctx context.Context, jrnl *journal.Journal, rep *sequencer.Report, logger *zap.Logger) {
	if jrnl == nil {
		return
	}
	if err := jrnl.Record(context.WithoutCancel(ctx), rep); err != nil {
		logger.Error("Failed to record task", zap.Error(err))
	}
}
