package midi

import (
	"fmt"
	"strings"
	"sync"

	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
)

// Sink accepts raw protocol messages for an output device
type Sink interface {
	Send(msg []byte) error
}

// SinkFunc adapts a plain function to Sink
type SinkFunc func(msg []byte) error

func (f SinkFunc) Send(msg []byte) error {
	return f(msg)
}

// Handler receives raw protocol messages from an input device
type Handler func(msg []byte)

// Output is an opened output port
type Output struct {
	name string
	send func(gomidi.Message) error
	mu   sync.Mutex
}

// OpenOutput opens an output port for sending
func OpenOutput(port drivers.Out) (*Output, error) {
	send, err := gomidi.SendTo(port)
	if err != nil {
		return nil, fmt.Errorf("open output %q: %w", port.String(), err)
	}
	return &Output{name: port.String(), send: send}, nil
}

func (o *Output) Name() string {
	return o.name
}

// Send writes a single message; safe for concurrent use
func (o *Output) Send(msg []byte) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.send == nil {
		return fmt.Errorf("output %q closed", o.name)
	}
	return o.send(gomidi.Message(msg))
}

func (o *Output) Close() error {
	o.mu.Lock()
	o.send = nil
	o.mu.Unlock()
	return nil
}

// Input is an opened input port forwarding every message (including
// timing clock) to a Handler
type Input struct {
	name     string
	stopFunc func()
}

// OpenInput starts listening on port. Realtime clock is only delivered
// by the driver when time code is requested.
func OpenInput(port drivers.In, h Handler) (*Input, error) {
	in := &Input{name: port.String()}
	stop, err := gomidi.ListenTo(port, func(msg gomidi.Message, timestampms int32) {
		if len(msg) == 0 {
			return
		}
		h([]byte(msg))
	}, gomidi.UseTimeCode())
	if err != nil {
		return nil, fmt.Errorf("open input %q: %w", port.String(), err)
	}
	in.stopFunc = stop
	return in, nil
}

func (in *Input) Name() string {
	return in.name
}

func (in *Input) Close() error {
	if in.stopFunc != nil {
		in.stopFunc()
		in.stopFunc = nil
	}
	return nil
}

// PreferredPort picks the port named want (exact, then case-insensitive
// substring). With an empty want it prefers an IAC bus, then the first port.
func PreferredPort(names []string, want string) (int, bool) {
	if len(names) == 0 {
		return -1, false
	}
	if want != "" {
		for i, n := range names {
			if n == want {
				return i, true
			}
		}
		lw := strings.ToLower(want)
		for i, n := range names {
			if strings.Contains(strings.ToLower(n), lw) {
				return i, true
			}
		}
		return -1, false
	}
	for i, n := range names {
		if strings.Contains(n, "IAC") {
			return i, true
		}
	}
	return 0, true
}
