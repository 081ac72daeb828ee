package midi

import (
	"context"
	"errors"
	"sync"
	"time"

	"midi-looper/debug"

	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
)

// ErrNoOutput is returned by Send while no output port is connected
var ErrNoOutput = errors.New("no MIDI output connected")

// DeviceEvent is emitted when ports connect/disconnect
type DeviceEvent struct {
	Type DeviceEventType
	Name string
}

type DeviceEventType int

const (
	InputConnected DeviceEventType = iota
	InputDisconnected
	OutputConnected
	OutputDisconnected
)

func (t DeviceEventType) String() string {
	switch t {
	case InputConnected:
		return "input connected"
	case InputDisconnected:
		return "input disconnected"
	case OutputConnected:
		return "output connected"
	case OutputDisconnected:
		return "output disconnected"
	}
	return "unknown"
}

// DeviceManager keeps one input and one output port connected, following
// hot-plug. It implements Sink by forwarding to the current output.
type DeviceManager struct {
	wantIn  string
	wantOut string
	handler Handler

	input    *Input
	output   *Output
	inNames  []string
	outNames []string
	mu       sync.RWMutex

	events      chan DeviceEvent
	pollRate    time.Duration
	scanTimeout time.Duration
}

// NewDeviceManager creates a manager that forwards input messages to h.
// Empty port names select the preferred port (see PreferredPort).
func NewDeviceManager(wantIn, wantOut string, h Handler) *DeviceManager {
	return &DeviceManager{
		wantIn:      wantIn,
		wantOut:     wantOut,
		handler:     h,
		events:      make(chan DeviceEvent, 16),
		pollRate:    time.Second,
		scanTimeout: 3 * time.Second,
	}
}

// Events returns a channel of port connect/disconnect events
func (dm *DeviceManager) Events() <-chan DeviceEvent {
	return dm.events
}

// Ports returns a snapshot of the last scanned port names
func (dm *DeviceManager) Ports() (ins, outs []string) {
	dm.mu.RLock()
	defer dm.mu.RUnlock()
	return append([]string(nil), dm.inNames...), append([]string(nil), dm.outNames...)
}

// Connected returns the names of the connected input and output ("" if none)
func (dm *DeviceManager) Connected() (in, out string) {
	dm.mu.RLock()
	defer dm.mu.RUnlock()
	if dm.input != nil {
		in = dm.input.Name()
	}
	if dm.output != nil {
		out = dm.output.Name()
	}
	return in, out
}

// Send forwards msg to the connected output
func (dm *DeviceManager) Send(msg []byte) error {
	dm.mu.RLock()
	out := dm.output
	dm.mu.RUnlock()
	if out == nil {
		return ErrNoOutput
	}
	return out.Send(msg)
}

// Run starts the polling loop (blocking - run in goroutine)
func (dm *DeviceManager) Run(ctx context.Context) {
	ticker := time.NewTicker(dm.pollRate)
	defer ticker.Stop()

	// Initial scan
	dm.Scan()

	for {
		select {
		case <-ctx.Done():
			dm.closeAll()
			close(dm.events)
			return
		case <-ticker.C:
			dm.Scan()
		}
	}
}

// ListPorts enumerates driver ports, giving up after timeout (CoreMIDI can hang)
func ListPorts(timeout time.Duration) ([]drivers.In, []drivers.Out, bool) {
	type portsResult struct {
		inPorts  []drivers.In
		outPorts []drivers.Out
	}

	ch := make(chan portsResult, 1)
	go func() {
		inPorts := gomidi.GetInPorts()
		outPorts := gomidi.GetOutPorts()
		ch <- portsResult{inPorts: inPorts, outPorts: outPorts}
	}()

	select {
	case result := <-ch:
		return result.inPorts, result.outPorts, true
	case <-time.After(timeout):
		return nil, nil, false
	}
}

// Scan refreshes the port lists and (re)connects or drops ports
func (dm *DeviceManager) Scan() {
	inPorts, outPorts, ok := ListPorts(dm.scanTimeout)
	if !ok {
		debug.Log("ports", "port scan timed out after %s", dm.scanTimeout)
		return
	}

	inNames := make([]string, len(inPorts))
	for i, p := range inPorts {
		inNames[i] = p.String()
	}
	outNames := make([]string, len(outPorts))
	for i, p := range outPorts {
		outNames[i] = p.String()
	}

	dm.mu.Lock()
	dm.inNames = inNames
	dm.outNames = outNames
	input, output := dm.input, dm.output
	dm.mu.Unlock()

	// Drop ports that vanished
	if input != nil && !contains(inNames, input.Name()) {
		input.Close()
		dm.mu.Lock()
		dm.input = nil
		dm.mu.Unlock()
		dm.emit(DeviceEvent{Type: InputDisconnected, Name: input.Name()})
		input = nil
	}
	if output != nil && !contains(outNames, output.Name()) {
		output.Close()
		dm.mu.Lock()
		dm.output = nil
		dm.mu.Unlock()
		dm.emit(DeviceEvent{Type: OutputDisconnected, Name: output.Name()})
		output = nil
	}

	if input == nil && dm.handler != nil {
		if i, found := PreferredPort(inNames, dm.wantIn); found {
			in, err := OpenInput(inPorts[i], dm.handler)
			if err != nil {
				debug.Error("ports", "%v", err)
			} else {
				dm.mu.Lock()
				dm.input = in
				dm.mu.Unlock()
				dm.emit(DeviceEvent{Type: InputConnected, Name: in.Name()})
			}
		}
	}

	if output == nil {
		if i, found := PreferredPort(outNames, dm.wantOut); found {
			out, err := OpenOutput(outPorts[i])
			if err != nil {
				debug.Error("ports", "%v", err)
			} else {
				dm.mu.Lock()
				dm.output = out
				dm.mu.Unlock()
				dm.emit(DeviceEvent{Type: OutputConnected, Name: out.Name()})
			}
		}
	}
}

func (dm *DeviceManager) emit(ev DeviceEvent) {
	debug.Log("ports", "%s: %s", ev.Type, ev.Name)
	select {
	case dm.events <- ev:
	default:
		// nobody listening
	}
}

func (dm *DeviceManager) closeAll() {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	if dm.input != nil {
		dm.input.Close()
		dm.input = nil
	}
	if dm.output != nil {
		dm.output.Close()
		dm.output = nil
	}
}

func contains(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}
