package main

import (
	"fmt"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/gwillem/sortbot/pkg/kinematics"
	"github.com/gwillem/sortbot/pkg/robot"
)

type SolveCommand struct {
	Claw int `long:"claw" default:"30" description:"Claw angle to include in the command"`

	Args struct {
		X string `positional-arg-name:"x" description:"Forward distance in mm"`
		Y string `positional-arg-name:"y" description:"Lateral distance in mm"`
		Z string `positional-arg-name:"z" description:"Height in mm"`
	} `positional-args:"yes" required:"yes"`
}

func (c *SolveCommand) Execute(args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	var xyz [3]float64
	for i, s := range []string{c.Args.X, c.Args.Y, c.Args.Z} {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("invalid coordinate %q: %w", s, err)
		}
		xyz[i] = v
	}
	p := kinematics.Point(xyz[0], xyz[1], xyz[2])

	solver := cfg.Solver()
	angles, err := solver.Solve(p)
	if err != nil {
		fmt.Println(errorStyle.Render(err.Error()))
		fmt.Println(dimStyle.Render(fmt.Sprintf("Reach is %.0f mm from the shoulder.", solver.Reach())))
		return nil
	}

	cal := cfg.Calibrator()
	cmd, err := cal.Apply(angles, c.Claw)
	if err != nil {
		return err
	}

	solved := map[robot.Axis]float64{
		robot.Base:     angles.Base,
		robot.Shoulder: angles.Shoulder,
		robot.Elbow:    angles.Elbow,
	}
	clamped := make([]bool, 0, 4)
	rows := make([][]string, 0, 4)
	for _, axis := range robot.AllAxes() {
		jc := cfg.Calibration[axis]
		angle := "-"
		raw := c.Claw
		if a, ok := solved[axis]; ok {
			angle = fmt.Sprintf("%.2f", a)
			raw = jc.Raw(a)
		}
		clamped = append(clamped, raw != cmd.Get(axis))
		rows = append(rows, []string{
			string(axis),
			angle,
			fmt.Sprintf("%d", cmd.Get(axis)),
			fmt.Sprintf("%d..%d", jc.Min, jc.Max),
		})
	}

	cellStyle := lipgloss.NewStyle().Padding(0, 1)
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(dimStyle).
		Headers("Joint", "IK angle", "Command", "Range").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return headerStyle.Padding(0, 1)
			case col == 2 && row >= 0 && row < len(clamped) && clamped[row]:
				return errorStyle.Padding(0, 1)
			default:
				return cellStyle
			}
		})

	fmt.Println(headerStyle.Render(fmt.Sprintf("Solution for (%.0f, %.0f, %.0f), %s", p.X, p.Y, p.Z, solver.Branch)))
	fmt.Println(t.Render())
	fmt.Println(dimStyle.Render("Wire: " + cmd.String()))
	return nil
}
