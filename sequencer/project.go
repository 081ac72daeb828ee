package sequencer

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"midi-looper/config"
	"midi-looper/debug"
	"midi-looper/loop"
)

// LoopInfo represents a loop file in the loop directory (for listing)
type LoopInfo struct {
	Filename string // relative to the loop directory
	Name     string // filename without extension
}

// ListLoops returns the .mid/.midi files in dir, sorted by name.
// A missing directory is an empty list.
func ListLoops(dir string) ([]LoopInfo, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []LoopInfo{}, nil
		}
		return nil, err
	}

	var loops []LoopInfo
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		ext := strings.ToLower(filepath.Ext(name))
		if ext != ".mid" && ext != ".midi" {
			continue
		}
		loops = append(loops, LoopInfo{
			Filename: name,
			Name:     strings.TrimSuffix(name, filepath.Ext(name)),
		})
	}

	sort.Slice(loops, func(i, j int) bool {
		return strings.ToLower(loops[i].Name) < strings.ToLower(loops[j].Name)
	})
	return loops, nil
}

// LoadSlotLoop loads file (relative to the loop directory) with the given
// bar count (0 = cfg.LoopBars), remapped to the output channel.
func LoadSlotLoop(cfg *config.Config, file string, bars int) (*loop.Loop, error) {
	if bars <= 0 {
		bars = cfg.LoopBars
	}
	l, err := loop.Load(cfg.LoopPath(file), bars)
	if err != nil {
		return nil, err
	}
	l.SetChannel(uint8(cfg.OutputChannel - 1))
	return l, nil
}

// BuildGrid materializes the persisted slots. A loop that fails to load
// leaves its slot empty; the failures are returned together.
func BuildGrid(cfg *config.Config) (Grid, []error) {
	g := NewGrid()
	var errs []error

	if start, err := ParseSlotID(cfg.StartSlot); err == nil && start.Valid() {
		g.SetStart(start)
	}

	for _, key := range cfg.SlotKeys() {
		id, err := ParseSlotID(key)
		if err != nil || !id.Valid() {
			errs = append(errs, fmt.Errorf("slot %q: %w", key, ErrBadSlot))
			continue
		}
		sc := cfg.Slots[key]

		g.SetRepeat(id, sc.RepeatCount)
		if next, err := ParseSlotID(sc.NextSlot); err == nil {
			g.SetNext(id, next)
		} else {
			errs = append(errs, fmt.Errorf("slot %s next: %w", id, err))
		}

		if sc.LoopFile == "" {
			continue
		}
		l, err := LoadSlotLoop(cfg, sc.LoopFile, sc.Bars)
		if err != nil {
			debug.Warn("project", "slot %s: %v", id, err)
			errs = append(errs, fmt.Errorf("slot %s: %w", id, err))
			continue
		}
		g.SetLoop(id, l)
	}

	debug.Log("project", "built grid: start %s, %d slots configured, %d errors", g.Start, len(cfg.Slots), len(errs))
	return g, errs
}

// ApplyGrid writes the grid's slot settings back into cfg
func ApplyGrid(cfg *config.Config, g Grid) {
	cfg.StartSlot = g.Start.String()

	for i := range g.Slots {
		s := &g.Slots[i]
		sc := config.SlotConfig{RepeatCount: s.Repeat}
		if s.Next.Valid() {
			sc.NextSlot = s.Next.String()
		}
		if s.Loop != nil {
			sc.LoopFile = relLoopPath(cfg.LoopDir, s.Loop)
			if bars := s.Loop.Bars(); bars != cfg.LoopBars {
				sc.Bars = bars
			}
		}
		cfg.SetSlot(s.ID.String(), sc)
	}
}

func relLoopPath(dir string, l *loop.Loop) string {
	if l.Path == "" {
		return l.Name + ".mid"
	}
	if rel, err := filepath.Rel(dir, l.Path); err == nil && !strings.HasPrefix(rel, "..") {
		return rel
	}
	return l.Path
}
