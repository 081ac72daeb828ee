package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadMissingReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "none.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.OutputChannel != 1 || cfg.LoopBars != 1 || cfg.StartSlot != "A" ||
		cfg.ClockSource != ClockExternal || cfg.InternalBPM != 120 || cfg.LoopDir != "loops" {
		t.Fatalf("defaults = %+v", cfg)
	}
}

func TestLoadPartialKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
output_device: IAC Driver Bus 1
output_channel: 10
zero_indexed_countdown: true
slots:
  a:
    loop_file: drums.mid
    next_slot: b
  B:
    loop_file: bass.mid
    repeat_count: 3
    next_slot: A
`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.OutputDevice != "IAC Driver Bus 1" || cfg.OutputChannel != 10 || !cfg.ZeroIndexedCountdown {
		t.Fatalf("cfg = %+v", cfg)
	}
	if cfg.InternalBPM != 120 || cfg.LoopBars != 1 {
		t.Fatalf("defaults lost: %+v", cfg)
	}

	a := cfg.GetSlot("A")
	if a.LoopFile != "drums.mid" || a.RepeatCount != 1 || a.NextSlot != "B" {
		t.Fatalf("slot A = %+v", a)
	}
	if b := cfg.GetSlot("b"); b.RepeatCount != 3 || b.NextSlot != "A" {
		t.Fatalf("slot B = %+v", b)
	}
	if got := strings.Join(cfg.SlotKeys(), ","); got != "A,B" {
		t.Fatalf("keys = %s", got)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := DefaultConfig()
	cfg.ClockSource = ClockInternal
	cfg.InternalBPM = 96.5
	cfg.SendClock = true
	cfg.SetSlot("C", SlotConfig{LoopFile: "keys.mid", RepeatCount: 2, NextSlot: "C", Bars: 4})

	if err := cfg.Save(path); err != nil {
		t.Fatal(err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if got.ClockSource != ClockInternal || got.InternalBPM != 96.5 || !got.SendClock {
		t.Fatalf("loaded = %+v", got)
	}
	if s := got.GetSlot("C"); s != (SlotConfig{LoopFile: "keys.mid", RepeatCount: 2, NextSlot: "C", Bars: 4}) {
		t.Fatalf("slot C = %+v", s)
	}
}

func TestSetSlotDropsDefaults(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SetSlot("d", SlotConfig{RepeatCount: 2})
	if _, ok := cfg.Slots["D"]; !ok {
		t.Fatal("non-default slot not stored")
	}
	cfg.SetSlot("D", SlotConfig{RepeatCount: 1})
	if _, ok := cfg.Slots["D"]; ok {
		t.Fatal("default slot should be removed")
	}
	if s := cfg.GetSlot("D"); s.RepeatCount != 1 {
		t.Fatalf("missing slot = %+v", s)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(c *Config)
	}{
		{"channel low", func(c *Config) { c.OutputChannel = 0 }},
		{"channel high", func(c *Config) { c.OutputChannel = 17 }},
		{"bpm", func(c *Config) { c.InternalBPM = 400 }},
		{"source", func(c *Config) { c.ClockSource = "midi" }},
		{"bars", func(c *Config) { c.LoopBars = 0 }},
		{"start", func(c *Config) { c.StartSlot = "AA" }},
		{"key", func(c *Config) { c.Slots["1"] = SlotConfig{RepeatCount: 1} }},
		{"next", func(c *Config) { c.Slots["A"] = SlotConfig{NextSlot: "?"} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := DefaultConfig()
			tt.modify(c)
			if err := c.Validate(); !errors.Is(err, ErrInvalid) {
				t.Fatalf("err = %v, want ErrInvalid", err)
			}
		})
	}

	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("output_channel: 20\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); !errors.Is(err, ErrInvalid) {
		t.Fatalf("err = %v", err)
	}

	if err := os.WriteFile(path, []byte("slots: [oops"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected yaml error")
	}
}

func TestLoopPath(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LoopDir = "/music/loops"
	if got := cfg.LoopPath("a.mid"); got != filepath.Join("/music/loops", "a.mid") {
		t.Errorf("relative = %s", got)
	}
	if got := cfg.LoopPath("/abs/b.mid"); got != "/abs/b.mid" {
		t.Errorf("absolute = %s", got)
	}
	if cfg.LoopPath("") != "" {
		t.Error("empty should stay empty")
	}
}
