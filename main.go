package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv"

	"midi-looper/config"
	"midi-looper/debug"
	"midi-looper/midi"
	"midi-looper/sequencer"
	"midi-looper/theme"
	"midi-looper/tui"
)

func main() {
	cfgPath := flag.String("config", "", "config file (default ~/.config/midi-looper/config.yaml)")
	inPort := flag.String("in", "", "input port name (overrides input_device)")
	outPort := flag.String("out", "", "output port name (overrides output_device)")
	internal := flag.Bool("internal", false, "use the internal clock")
	bpm := flag.Float64("bpm", 0, "internal clock tempo")
	debugLog := flag.Bool("debug", false, "write a debug log")
	paletteFile := flag.String("palette", "", "GIMP palette (.gpl) for the UI")
	flag.Parse()

	if *cfgPath == "" {
		p, err := config.ConfigPath()
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}
		*cfgPath = p
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	if *inPort != "" {
		cfg.InputDevice = *inPort
	}
	if *outPort != "" {
		cfg.OutputDevice = *outPort
	}
	if *internal {
		cfg.ClockSource = config.ClockInternal
	}
	if *bpm > 0 {
		cfg.InternalBPM = *bpm
	}

	if *debugLog || cfg.LogFile != "" {
		logPath := cfg.LogFile
		if logPath == "" {
			logPath = filepath.Join(filepath.Dir(*cfgPath), "debug.log")
		}
		if err := debug.Enable(logPath, cfg.LogLevel); err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}
		defer debug.Disable()
	}

	palette, err := theme.LoadOrDefault(*paletteFile)
	if err != nil {
		debug.Warn("main", "palette: %v", err)
	}
	th := theme.New(palette)

	source, err := sequencer.ParseSource(cfg.ClockSource)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	// Engine
	manager := sequencer.NewManager(nil, cfg.InternalBPM)
	manager.SetChannel(cfg.OutputChannel)
	manager.SetSendClock(cfg.SendClock)
	manager.SetSource(source)

	// Ports (hot-plug)
	deviceMgr := midi.NewDeviceManager(cfg.InputDevice, cfg.OutputDevice, manager.HandleExternal)
	manager.SetOutput(deviceMgr)

	grid, errs := sequencer.BuildGrid(cfg)
	for _, err := range errs {
		debug.Warn("main", "%v", err)
	}
	manager.LoadGrid(grid)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go deviceMgr.Run(ctx)
	go manager.Run(ctx)

	m := tui.NewModel(manager, deviceMgr, th, cfg, *cfgPath)
	p := tea.NewProgram(m, tea.WithAltScreen())

	if _, err := p.Run(); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}
