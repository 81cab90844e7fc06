package main

import (
	"context"
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/gwillem/sortbot/pkg/journal"
)

type HistoryCommand struct {
	Limit int `short:"n" long:"limit" default:"20" description:"Number of tasks to show"`
}

func (c *HistoryCommand) Execute(args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	jrnl, err := journal.Open(cfg.Journal.Path)
	if err != nil {
		return err
	}
	defer jrnl.Close()

	ctx := context.Background()
	entries, err := jrnl.Recent(ctx, c.Limit)
	if err != nil {
		return err
	}
	completed, aborted, err := jrnl.Stats(ctx)
	if err != nil {
		return err
	}

	if len(entries) == 0 {
		fmt.Println(dimStyle.Render("No tasks recorded yet."))
		return nil
	}

	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		outcome := "sorted"
		if !e.Completed {
			outcome = e.Error
		}
		rows = append(rows, []string{
			e.Started.Format("2006-01-02 15:04:05"),
			e.Label,
			fmt.Sprintf("%.0f, %.0f, %.0f", e.X, e.Y, e.Z),
			lastPhase(e.Phases),
			fmt.Sprintf("%d", e.Ticks),
			outcome,
		})
	}

	cellStyle := lipgloss.NewStyle().Padding(0, 1)
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(dimStyle).
		Headers("Started", "Label", "Target", "Phase", "Ticks", "Outcome").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return headerStyle.Padding(0, 1)
			case col == 5 && row >= 0 && row < len(entries):
				if entries[row].Completed {
					return successStyle.Padding(0, 1)
				}
				return errorStyle.Padding(0, 1)
			default:
				return cellStyle
			}
		})

	fmt.Println(t.Render())
	fmt.Println(dimStyle.Render(fmt.Sprintf("%d sorted, %d aborted", completed, aborted)))
	return nil
}

// lastPhase returns the furthest phase before the task wound down, or
// the final phase if it never got past winding down.
func lastPhase(phases []string) string {
	if len(phases) == 0 {
		return "-"
	}
	for i := len(phases) - 1; i >= 0; i-- {
		switch phases[i] {
		case "RETURN", "IDLE", "ABORTED":
			continue
		}
		return phases[i]
	}
	return phases[len(phases)-1]
}
