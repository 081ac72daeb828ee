package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrInvalid wraps every validation failure
var ErrInvalid = errors.New("invalid config")

// Clock sources
const (
	ClockExternal = "external"
	ClockInternal = "internal"
)

// SlotConfig is the persisted form of one sequence slot
type SlotConfig struct {
	LoopFile    string `yaml:"loop_file,omitempty"`
	RepeatCount int    `yaml:"repeat_count"`
	NextSlot    string `yaml:"next_slot,omitempty"`
	Bars        int    `yaml:"bars,omitempty"` // 0 = use LoopBars
}

// IsDefault reports whether the slot carries no settings worth saving
func (s SlotConfig) IsDefault() bool {
	return s.LoopFile == "" && s.RepeatCount <= 1 && s.NextSlot == "" && s.Bars == 0
}

// Config is the main configuration structure
type Config struct {
	OutputDevice         string `yaml:"output_device,omitempty"`
	InputDevice          string `yaml:"input_device,omitempty"`
	OutputChannel        int    `yaml:"output_channel"` // 1-16
	ZeroIndexedCountdown bool   `yaml:"zero_indexed_countdown"`

	LoopDir   string `yaml:"loop_dir"`
	LoopBars  int    `yaml:"loop_bars"`
	StartSlot string `yaml:"start_slot"`

	ClockSource string  `yaml:"clock_source"`
	InternalBPM float64 `yaml:"internal_bpm"`
	SendClock   bool    `yaml:"send_clock"`

	LogLevel string `yaml:"log_level,omitempty"`
	LogFile  string `yaml:"log_file,omitempty"`

	// Keyed by slot letter (A-Z)
	Slots map[string]SlotConfig `yaml:"slots,omitempty"`
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		OutputChannel: 1,
		LoopDir:       "loops",
		LoopBars:      1,
		StartSlot:     "A",
		ClockSource:   ClockExternal,
		InternalBPM:   120,
		Slots:         map[string]SlotConfig{},
	}
}

// ConfigDir returns the config directory path
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "midi-looper"), nil
}

// ConfigPath returns the full path to config.yaml
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// Load reads the config at path (empty = ConfigPath), or returns defaults
// if the file does not exist. Keys missing from the file keep defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		p, err := ConfigPath()
		if err != nil {
			return cfg, nil
		}
		path = p
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Save writes the config to path (empty = ConfigPath)
func (c *Config) Save(path string) error {
	if path == "" {
		p, err := ConfigPath()
		if err != nil {
			return err
		}
		path = p
	}

	// Create directory if it doesn't exist
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// normalize upper-cases slot keys and fills zero repeat counts
func (c *Config) normalize() {
	if c.Slots == nil {
		c.Slots = map[string]SlotConfig{}
	}
	slots := make(map[string]SlotConfig, len(c.Slots))
	for k, s := range c.Slots {
		if s.RepeatCount < 1 {
			s.RepeatCount = 1
		}
		s.NextSlot = strings.ToUpper(s.NextSlot)
		slots[strings.ToUpper(k)] = s
	}
	c.Slots = slots
	c.StartSlot = strings.ToUpper(c.StartSlot)
	if c.StartSlot == "" {
		c.StartSlot = "A"
	}
}

// Validate checks ranges and slot letters
func (c *Config) Validate() error {
	if c.OutputChannel < 1 || c.OutputChannel > 16 {
		return fmt.Errorf("%w: output_channel %d not in 1-16", ErrInvalid, c.OutputChannel)
	}
	if c.InternalBPM < 20 || c.InternalBPM > 300 {
		return fmt.Errorf("%w: internal_bpm %.1f not in 20-300", ErrInvalid, c.InternalBPM)
	}
	if c.ClockSource != ClockExternal && c.ClockSource != ClockInternal {
		return fmt.Errorf("%w: clock_source %q", ErrInvalid, c.ClockSource)
	}
	if c.LoopBars < 1 {
		return fmt.Errorf("%w: loop_bars %d", ErrInvalid, c.LoopBars)
	}
	if !isSlotLetter(c.StartSlot) {
		return fmt.Errorf("%w: start_slot %q", ErrInvalid, c.StartSlot)
	}
	for _, k := range c.SlotKeys() {
		s := c.Slots[k]
		if !isSlotLetter(k) {
			return fmt.Errorf("%w: slot key %q", ErrInvalid, k)
		}
		if s.NextSlot != "" && !isSlotLetter(s.NextSlot) {
			return fmt.Errorf("%w: slot %s next_slot %q", ErrInvalid, k, s.NextSlot)
		}
		if s.Bars < 0 {
			return fmt.Errorf("%w: slot %s bars %d", ErrInvalid, k, s.Bars)
		}
	}
	return nil
}

// SlotKeys returns the configured slot letters in order
func (c *Config) SlotKeys() []string {
	keys := make([]string, 0, len(c.Slots))
	for k := range c.Slots {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// GetSlot returns the slot config for letter, or the default
func (c *Config) GetSlot(letter string) SlotConfig {
	if s, ok := c.Slots[strings.ToUpper(letter)]; ok {
		return s
	}
	return SlotConfig{RepeatCount: 1}
}

// SetSlot stores s under letter, or removes the entry if s is all defaults
func (c *Config) SetSlot(letter string, s SlotConfig) {
	letter = strings.ToUpper(letter)
	if c.Slots == nil {
		c.Slots = map[string]SlotConfig{}
	}
	if s.IsDefault() {
		delete(c.Slots, letter)
		return
	}
	c.Slots[letter] = s
}

// LoopPath resolves a slot's loop file against LoopDir
func (c *Config) LoopPath(file string) string {
	if file == "" || filepath.IsAbs(file) {
		return file
	}
	return filepath.Join(c.LoopDir, file)
}

func isSlotLetter(s string) bool {
	return len(s) == 1 && s[0] >= 'A' && s[0] <= 'Z'
}
