package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/charmbracelet/huh"

	"github.com/gwillem/sortbot/pkg/config"
)

type InitCommand struct {
	Force bool `short:"f" long:"force" description:"Overwrite an existing file without asking"`
}

func (c *InitCommand) Execute(args []string) error {
	path := opts.Config

	if _, err := os.Stat(path); err == nil && !c.Force {
		var overwrite bool
		form := huh.NewForm(
			huh.NewGroup(
				huh.NewConfirm().
					Title(fmt.Sprintf("%s exists. Overwrite?", path)).
					Value(&overwrite),
			),
		)
		if err := form.Run(); err != nil || !overwrite {
			fmt.Println(dimStyle.Render("Left unchanged."))
			return nil
		}
	} else if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}

	cfg := config.Default()
	if err := cfg.Save(path); err != nil {
		return err
	}

	fmt.Println(successStyle.Render("Wrote " + path))
	fmt.Println("Check link.port, then start with: " + headerStyle.Render("sortbot run"))
	return nil
}
