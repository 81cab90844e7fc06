package main

import (
	"context"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/NimbleMarkets/ntcharts/canvas/runes"
	"github.com/NimbleMarkets/ntcharts/linechart/streamlinechart"

	"github.com/gwillem/sortbot/pkg/motion"
	"github.com/gwillem/sortbot/pkg/robot"
)

type TraceCommand struct {
	From  string `long:"from" description:"Start pose as base,shoulder,elbow,claw (default: home)"`
	Plain bool   `long:"plain" description:"Print ticks instead of drawing a chart"`

	Args struct {
		To string `positional-arg-name:"pose" description:"Target pose as base,shoulder,elbow,claw"`
	} `positional-args:"yes" required:"yes"`
}

const (
	headerHeight = 2 // title + blank line
	legendHeight = 2 // legend row + blank
	footerHeight = 3 // status box
	borderSize   = 2 // chart border
)

var axisColors = map[robot.Axis]string{
	robot.Base:     "196", // red
	robot.Shoulder: "208", // orange
	robot.Elbow:    "46",  // green
	robot.Claw:     "51",  // cyan
}

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	chartStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("240"))
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

// Messages from the move goroutine
type traceTickMsg motion.Tick
type traceDoneMsg struct {
	result motion.Result
	err    error
}

func waitForTrace(ch <-chan tea.Msg) tea.Cmd {
	return func() tea.Msg {
		return <-ch
	}
}

type traceModel struct {
	from, to robot.Command
	updates  <-chan tea.Msg
	chart    *streamlinechart.Model
	width    int
	height   int
	last     motion.Tick
	done     *traceDoneMsg
	quitting bool
}

func newTraceModel(from, to robot.Command, updates <-chan tea.Msg) traceModel {
	chart := streamlinechart.New(80, 20,
		streamlinechart.WithYRange(0, 180),
	)
	for _, axis := range robot.AllAxes() {
		style := lipgloss.NewStyle().Foreground(lipgloss.Color(axisColors[axis]))
		chart.SetDataSetStyles(string(axis), runes.ThinLineStyle, style)
	}
	// Seed the chart with the start pose.
	for _, axis := range robot.AllAxes() {
		chart.PushDataSet(string(axis), float64(from.Get(axis)))
	}
	chart.DrawAll()

	return traceModel{
		from:    from,
		to:      to,
		updates: updates,
		chart:   &chart,
	}
}

func (m *traceModel) resizeChart() {
	if m.width == 0 || m.height == 0 {
		return
	}
	w := max(m.width-borderSize-2, 40)
	h := max(m.height-headerHeight-legendHeight-footerHeight-borderSize, 10)
	m.chart.Resize(w, h)
	m.chart.DrawAll()
}

func (m traceModel) Init() tea.Cmd {
	return waitForTrace(m.updates)
}

func (m traceModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resizeChart()
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.quitting = true
			return m, tea.Quit
		}

	case traceTickMsg:
		m.last = motion.Tick(msg)
		for i, axis := range robot.AllAxes() {
			m.chart.PushDataSet(string(axis), m.last.State[i])
		}
		m.chart.DrawAll()
		return m, waitForTrace(m.updates)

	case traceDoneMsg:
		m.done = &msg
		return m, nil
	}

	return m, nil
}

func (m traceModel) View() string {
	if m.quitting {
		return ""
	}

	var sb strings.Builder
	sb.WriteString(titleStyle.Render("sortbot trace"))
	sb.WriteString(statusStyle.Render(fmt.Sprintf("  %s -> %s", m.from, m.to)))
	sb.WriteString("\n\n")

	sb.WriteString(chartStyle.Render(m.chart.View()))
	sb.WriteString("\n")
	sb.WriteString(renderLegend())
	sb.WriteString("\n\n")

	switch {
	case m.done == nil:
		sb.WriteString(statusStyle.Render(fmt.Sprintf("tick %d  %s", m.last.N, m.last.Command)))
	case m.done.err != nil:
		sb.WriteString(errorStyle.Render(fmt.Sprintf("%v", m.done.err)))
	default:
		sb.WriteString(successStyle.Render(fmt.Sprintf("Arrived at %s after %d ticks", m.done.result.Final, m.done.result.Ticks)))
	}
	sb.WriteString("\n")
	sb.WriteString(statusStyle.Render("Press 'q' to quit"))
	return sb.String()
}

func renderLegend() string {
	var items []string
	for _, axis := range robot.AllAxes() {
		colorStyle := lipgloss.NewStyle().Foreground(lipgloss.Color(axisColors[axis])).Bold(true)
		items = append(items, colorStyle.Render("━━")+" "+string(axis))
	}
	return strings.Join(items, "  ")
}

func (c *TraceCommand) Execute(args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	from := cfg.Sequence.Home
	if c.From != "" {
		if from, err = robot.ParseCommand(c.From); err != nil {
			return err
		}
	}
	to, err := robot.ParseCommand(c.Args.To)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if c.Plain {
		profiler := motion.NewProfiler(cfg.Motion, robot.NopLink{}, from,
			motion.WithLimits(cfg.Calibration),
			motion.WithObserver(func(t motion.Tick) {
				fmt.Printf("%4d  %s\n", t.N, t.Command)
			}),
		)
		res, err := profiler.MoveTo(ctx, to, 0)
		if err != nil {
			return err
		}
		fmt.Println(dimStyle.Render(fmt.Sprintf("%d ticks", res.Ticks)))
		return nil
	}

	updates := make(chan tea.Msg, 64)
	send := func(msg tea.Msg) {
		select {
		case updates <- msg:
		case <-ctx.Done():
		}
	}
	profiler := motion.NewProfiler(cfg.Motion, robot.NopLink{}, from,
		motion.WithLimits(cfg.Calibration),
		motion.WithObserver(func(t motion.Tick) { send(traceTickMsg(t)) }),
	)
	go func() {
		res, err := profiler.MoveTo(ctx, to, 0)
		send(traceDoneMsg{result: res, err: err})
	}()

	p := tea.NewProgram(newTraceModel(from, to, updates), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("run trace: %w", err)
	}
	return nil
}
