package main

import (
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/jessevdk/go-flags"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/gwillem/sortbot/pkg/config"
)

type Options struct {
	Config  string `short:"c" long:"config" default:"sortbot.yaml" description:"Configuration file"`
	Verbose bool   `short:"v" long:"verbose" description:"Log at debug level"`

	Run     RunCommand     `command:"run" description:"Sort detected objects into their drop zones"`
	Solve   SolveCommand   `command:"solve" description:"Show the joint pose for a point"`
	Trace   TraceCommand   `command:"trace" description:"Plot a simulated move between two poses"`
	Ports   PortsCommand   `command:"ports" description:"List serial ports"`
	History HistoryCommand `command:"history" alias:"log" description:"Show recently finished tasks"`
	Init    InitCommand    `command:"init" description:"Write the default configuration"`
}

var opts Options
var parser = flags.NewParser(&opts, flags.Default)

var (
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

func main() {
	parser.LongDescription = "sortbot - colour sorting arm controller"

	_, err := parser.Parse()
	if err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				os.Exit(0)
			}
		}
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(opts.Config)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", opts.Config, err)
	}
	return cfg, nil
}

// newLogger builds the process logger. --verbose wins over the file.
func newLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	if cfg.Development || opts.Verbose {
		zcfg = zap.NewDevelopmentConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	if opts.Verbose {
		level = zapcore.DebugLevel
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)

	return zcfg.Build()
}
