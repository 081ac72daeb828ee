package clock

import (
	"context"
	"math"
	"runtime"
	"sync/atomic"
	"time"

	"midi-looper/debug"
	"midi-looper/midi"
)

// Tempo range accepted by the generator
const (
	MinBPM = 20
	MaxBPM = 300
)

// Generator produces a fixed-tempo pulse train (START, CLOCK..., STOP) for
// use when no external clock drives the looper.
//
// Each pulse is scheduled at start + index*interval rather than by chained
// sleeps, so timer jitter does not accumulate. Enable/disable is polled once
// per pulse (or once per idle interval while off).
type Generator struct {
	bpmX100 atomic.Uint64
	enabled atomic.Bool
	emit    func(msg []byte)

	now        func() time.Time
	sleepUntil func(ctx context.Context, t time.Time) bool
}

// NewGenerator creates a disabled generator delivering messages to emit
func NewGenerator(bpm float64, emit func(msg []byte)) *Generator {
	g := &Generator{
		emit:       emit,
		now:        time.Now,
		sleepUntil: sleepUntil,
	}
	g.SetBPM(bpm)
	return g
}

// SetBPM clamps and sets the tempo; a running train re-anchors on the next pulse
func (g *Generator) SetBPM(bpm float64) {
	bpm = math.Max(MinBPM, math.Min(MaxBPM, bpm))
	g.bpmX100.Store(uint64(math.Round(bpm * 100)))
}

func (g *Generator) BPM() float64 {
	return float64(g.bpmX100.Load()) / 100
}

func (g *Generator) SetEnabled(on bool) {
	g.enabled.Store(on)
}

func (g *Generator) Enabled() bool {
	return g.enabled.Load()
}

// Interval returns the time between pulses at the current tempo
func (g *Generator) Interval() time.Duration {
	return time.Duration(pulseNanos(g.BPM()))
}

func pulseNanos(bpm float64) float64 {
	return float64(time.Minute) / (bpm * midi.PulsesPerBeat)
}

// Run drives the pulse train until ctx is done (blocking - run in goroutine)
func (g *Generator) Run(ctx context.Context) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	var (
		active  bool
		start   time.Time
		index   int64
		bpmX100 uint64
		nanos   float64
	)

	for {
		if ctx.Err() != nil {
			return
		}

		if !g.enabled.Load() {
			if active {
				active = false
				g.emit([]byte{midi.Stop})
				debug.Log("gen", "stopped after %d pulses", index)
			}
			if !g.sleepUntil(ctx, g.now().Add(g.Interval())) {
				return
			}
			continue
		}

		if !active {
			active = true
			start = g.now()
			index = 0
			bpmX100 = g.bpmX100.Load()
			nanos = pulseNanos(float64(bpmX100) / 100)
			debug.Log("gen", "started at %.2f bpm", float64(bpmX100)/100)
			g.emit([]byte{midi.Start})
		}

		if cur := g.bpmX100.Load(); cur != bpmX100 {
			// keep the phase of the next pulse, change spacing from here on
			start = start.Add(time.Duration(float64(index) * nanos))
			index = 0
			bpmX100 = cur
			nanos = pulseNanos(float64(cur) / 100)
		}

		deadline := start.Add(time.Duration(float64(index) * nanos))
		if !g.sleepUntil(ctx, deadline) {
			return
		}
		if !g.enabled.Load() {
			continue
		}

		g.emit([]byte{midi.TimingClock})
		index++
	}
}

func sleepUntil(ctx context.Context, t time.Time) bool {
	d := time.Until(t)
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
