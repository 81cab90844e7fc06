package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hipsterbrown/feetech-servo/feetech"
	"go.bug.st/serial"
)

type PortsCommand struct {
	All  bool `long:"all" description:"Include Bluetooth ports"`
	Scan bool `long:"scan" description:"Probe each port for Feetech servos"`
	Baud int  `long:"baud" default:"1000000" description:"Bus baud rate used by --scan"`
}

func (c *PortsCommand) Execute(args []string) error {
	ports, err := serial.GetPortsList()
	if err != nil {
		return fmt.Errorf("list ports: %w", err)
	}

	var shown int
	for _, port := range ports {
		// Skip Bluetooth ports on macOS
		if !c.All && strings.Contains(port, "Bluetooth") {
			continue
		}
		shown++

		if !c.Scan {
			fmt.Println(port)
			continue
		}
		ids, err := c.scanPort(port)
		switch {
		case err != nil:
			fmt.Printf("%s  %s\n", port, dimStyle.Render(err.Error()))
		case len(ids) == 0:
			fmt.Printf("%s  %s\n", port, dimStyle.Render("no servos"))
		default:
			fmt.Printf("%s  %s\n", port, successStyle.Render(fmt.Sprintf("servos %v", ids)))
		}
	}

	if shown == 0 {
		fmt.Println(dimStyle.Render("No serial ports found. Is the arm connected?"))
		return nil
	}
	fmt.Println()
	fmt.Println(dimStyle.Render(fmt.Sprintf("Set link.port in %s or export SORTBOT_PORT.", opts.Config)))
	return nil
}

// scanPort returns the IDs of the servos answering on port. The four
// joints use IDs 1-4 by default.
func (c *PortsCommand) scanPort(port string) ([]int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	bus, err := feetech.NewBus(feetech.BusConfig{
		Port:     port,
		BaudRate: c.Baud,
		Protocol: feetech.ProtocolSTS,
		Timeout:  100 * time.Millisecond,
	})
	if err != nil {
		return nil, err
	}
	defer bus.Close()

	servos, err := bus.Scan(ctx, 1, 6)
	if err != nil {
		return nil, err
	}
	ids := make([]int, 0, len(servos))
	for _, s := range servos {
		ids = append(ids, s.ID)
	}
	return ids, nil
}
