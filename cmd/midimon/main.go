package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"time"

	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv"

	"midi-looper/midi"
)

const scanTimeout = 3 * time.Second

func main() {
	if len(os.Args) < 2 {
		usage()
		return
	}

	switch os.Args[1] {
	case "list":
		listPorts()
	case "monitor":
		fs := flag.NewFlagSet("monitor", flag.ExitOnError)
		port := fs.String("port", "", "input port name (default: IAC bus or first port)")
		duration := fs.Duration("duration", 0, "stop after this long (0 = until interrupted)")
		hideClock := fs.Bool("hide-clock", false, "do not print timing clock pulses")
		fs.Parse(os.Args[2:])
		if err := monitor(*port, *duration, *hideClock); err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}
	default:
		usage()
	}
}

func usage() {
	fmt.Println("MIDI Monitor")
	fmt.Println("")
	fmt.Println("Commands:")
	fmt.Println("  list                                  - List all MIDI ports")
	fmt.Println("  monitor [-port P] [-duration D] [-hide-clock] - Print incoming messages")
}

func listPorts() {
	fmt.Println("(waiting up to 3 seconds...)")
	ins, outs, ok := midi.ListPorts(scanTimeout)
	if !ok {
		fmt.Println("\nTIMEOUT! CoreMIDI is hung.")
		fmt.Println("Fix: sudo killall coreaudiod midiserver")
		return
	}

	fmt.Println("=== MIDI Input Ports ===")
	for i, p := range ins {
		fmt.Printf("  %d: %s\n", i, p.String())
	}
	fmt.Println("\n=== MIDI Output Ports ===")
	for i, p := range outs {
		fmt.Printf("  %d: %s\n", i, p.String())
	}
}

func monitor(want string, duration time.Duration, hideClock bool) error {
	ins, _, ok := midi.ListPorts(scanTimeout)
	if !ok {
		return fmt.Errorf("port scan timed out after %s", scanTimeout)
	}
	names := make([]string, len(ins))
	for i, p := range ins {
		names[i] = p.String()
	}
	idx, ok := midi.PreferredPort(names, want)
	if !ok {
		return fmt.Errorf("no input port matching %q (have %s)", want, strings.Join(names, ", "))
	}

	start := time.Now()
	var clocks atomic.Uint64
	in, err := midi.OpenInput(ins[idx], func(msg []byte) {
		if msg[0] == midi.TimingClock {
			clocks.Add(1)
			if hideClock {
				return
			}
		}
		kind, details := midi.Describe(msg)
		fmt.Printf("%10.3f  %-16s %-10s %s\n", time.Since(start).Seconds(), kind, hexBytes(msg), details)
	})
	if err != nil {
		return err
	}
	defer in.Close()

	fmt.Printf("Monitoring %s (Ctrl+C to stop)\n\n", in.Name())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, duration)
		defer cancel()
	}
	<-ctx.Done()

	fmt.Printf("\n%d clock pulses in %s\n", clocks.Load(), time.Since(start).Round(time.Millisecond))
	return nil
}

func hexBytes(msg []byte) string {
	parts := make([]string, len(msg))
	for i, b := range msg {
		parts[i] = fmt.Sprintf("%02X", b)
	}
	return strings.Join(parts, " ")
}
