package tui

import (
	"fmt"
	"path/filepath"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"midi-looper/config"
	"midi-looper/debug"
	"midi-looper/midi"
	"midi-looper/sequencer"
	"midi-looper/theme"
	"midi-looper/widgets"
)

// Table columns
const (
	colLoop = iota
	colBars
	colRepeat
	colNext
	numCols
)

const viewRows = 13

type Model struct {
	Manager   *sequencer.Manager
	DeviceMgr *midi.DeviceManager // may be nil
	Theme     *theme.Theme
	Config    *config.Config
	cfgPath   string

	loops    []sequencer.LoopInfo
	quitting bool

	// UI state
	cursorRow  int // slot
	cursorCol  int
	viewOffset int
	status     string
}

type UpdateMsg struct{}

type DeviceEventMsg midi.DeviceEvent

func NewModel(manager *sequencer.Manager, deviceMgr *midi.DeviceManager, th *theme.Theme, cfg *config.Config, cfgPath string) Model {
	m := Model{
		Manager:   manager,
		DeviceMgr: deviceMgr,
		Theme:     th,
		Config:    cfg,
		cfgPath:   cfgPath,
	}
	m.reloadLoops()
	return m
}

func ListenForUpdates(manager *sequencer.Manager) tea.Cmd {
	return func() tea.Msg {
		<-manager.UpdateChan
		return UpdateMsg{}
	}
}

func ListenForDevices(deviceMgr *midi.DeviceManager) tea.Cmd {
	if deviceMgr == nil {
		return nil
	}
	return func() tea.Msg {
		event, ok := <-deviceMgr.Events()
		if !ok {
			return nil
		}
		return DeviceEventMsg(event)
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		ListenForUpdates(m.Manager),
		ListenForDevices(m.DeviceMgr),
	)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg.String())

	case UpdateMsg:
		return m, ListenForUpdates(m.Manager)

	case DeviceEventMsg:
		event := midi.DeviceEvent(msg)
		m.status = fmt.Sprintf("%s: %s", event.Type, event.Name)
		return m, ListenForDevices(m.DeviceMgr)
	}

	return m, nil
}

func (m Model) handleKey(key string) (tea.Model, tea.Cmd) {
	switch key {
	case "q", "ctrl+c":
		m.quitting = true
		m.Manager.Stop()
		return m, tea.Quit

	case "h", "left":
		if m.cursorCol > 0 {
			m.cursorCol--
		}
	case "l", "right":
		if m.cursorCol < numCols-1 {
			m.cursorCol++
		}
	case "j", "down":
		if m.cursorRow < sequencer.NumSlots-1 {
			m.cursorRow++
			if m.cursorRow >= m.viewOffset+viewRows {
				m.viewOffset = m.cursorRow - viewRows + 1
			}
		}
	case "k", "up":
		if m.cursorRow > 0 {
			m.cursorRow--
			if m.cursorRow < m.viewOffset {
				m.viewOffset = m.cursorRow
			}
		}

	case "+", "=":
		m.adjust(1)
	case "-", "_":
		m.adjust(-1)

	case "x", "delete":
		g := m.Manager.Grid()
		g.ClearLoop(m.slot())
		m.Manager.UpdateGrid(g)
	case "s":
		g := m.Manager.Grid()
		g.SetStart(m.slot())
		m.Manager.UpdateGrid(g)
		m.status = fmt.Sprintf("start slot %s", m.slot())

	case " ":
		if m.Manager.Source() != sequencer.SourceInternal {
			m.status = "transport follows the external clock"
			break
		}
		m.Manager.TogglePlay()
	case "c":
		src := sequencer.SourceInternal
		if m.Manager.Source() == sequencer.SourceInternal {
			src = sequencer.SourceExternal
		}
		m.Manager.SetSource(src)
		m.Config.ClockSource = src.String()

	case "[":
		m.setTempo(m.Manager.Tempo() - 1)
	case "]":
		m.setTempo(m.Manager.Tempo() + 1)
	case "{":
		m.setTempo(m.Manager.Tempo() - 10)
	case "}":
		m.setTempo(m.Manager.Tempo() + 10)

	case "w":
		m.save()
	case "r":
		m.reloadLoops()
		m.status = fmt.Sprintf("%d loops in %s", len(m.loops), m.Config.LoopDir)
	}
	return m, nil
}

func (m *Model) slot() sequencer.SlotID {
	return sequencer.SlotID(m.cursorRow)
}

// adjust steps the value under the cursor by delta
func (m *Model) adjust(delta int) {
	g := m.Manager.Grid()
	id := m.slot()
	s := g.Get(id)

	switch m.cursorCol {
	case colLoop:
		if len(m.loops) == 0 {
			m.status = "no loops in " + m.Config.LoopDir
			return
		}
		idx := m.loopIndex(s)
		switch {
		case idx < 0 && delta > 0:
			idx = 0
		case idx < 0:
			idx = len(m.loops) - 1
		default:
			idx = (idx + delta + len(m.loops)) % len(m.loops)
		}
		bars := 0
		if s.Loop != nil {
			bars = s.Loop.Bars()
		}
		if !m.loadInto(&g, id, m.loops[idx].Filename, bars) {
			return
		}

	case colBars:
		if s.Loop == nil {
			return
		}
		bars := max(1, s.Loop.Bars()+delta)
		if !m.loadInto(&g, id, m.loopFile(s), bars) {
			return
		}

	case colRepeat:
		g.SetRepeat(id, s.Repeat+delta)

	case colNext:
		// cycle --, A..Z
		n := -1
		if s.Next.Valid() {
			n = int(s.Next)
		}
		n = (n+1+delta+sequencer.NumSlots+1)%(sequencer.NumSlots+1) - 1
		next := sequencer.NoSlot
		if n >= 0 {
			next = sequencer.SlotID(n)
		}
		g.SetNext(id, next)
	}

	m.Manager.UpdateGrid(g)
}

func (m *Model) loadInto(g *sequencer.Grid, id sequencer.SlotID, file string, bars int) bool {
	l, err := sequencer.LoadSlotLoop(m.Config, file, bars)
	if err != nil {
		debug.Error("tui", "load %s: %v", file, err)
		m.status = err.Error()
		return false
	}
	g.SetLoop(id, l)
	return true
}

func (m *Model) loopFile(s *sequencer.Slot) string {
	if rel, err := filepath.Rel(m.Config.LoopDir, s.Loop.Path); err == nil && !strings.HasPrefix(rel, "..") {
		return rel
	}
	return s.Loop.Path
}

func (m *Model) loopIndex(s *sequencer.Slot) int {
	if s.Loop == nil {
		return -1
	}
	file := m.loopFile(s)
	for i, l := range m.loops {
		if l.Filename == file {
			return i
		}
	}
	return -1
}

func (m *Model) reloadLoops() {
	loops, err := sequencer.ListLoops(m.Config.LoopDir)
	if err != nil {
		debug.Error("tui", "list loops: %v", err)
		m.status = err.Error()
	}
	m.loops = loops
}

func (m *Model) setTempo(bpm float64) {
	m.Manager.SetTempo(bpm)
	m.Config.InternalBPM = m.Manager.Tempo()
}

func (m *Model) save() {
	sequencer.ApplyGrid(m.Config, m.Manager.Grid())
	if err := m.Config.Save(m.cfgPath); err != nil {
		debug.Error("tui", "save: %v", err)
		m.status = "save failed: " + err.Error()
		return
	}
	m.status = "saved " + m.cfgPath
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}

	st := m.Manager.Status()
	grid := m.Manager.Grid()
	sym := m.Theme.Symbols

	headerStyle := lipgloss.NewStyle().Foreground(m.Theme.Accent())
	dimStyle := lipgloss.NewStyle().Foreground(m.Theme.Muted())
	cursorStyle := lipgloss.NewStyle().Reverse(true)

	var out strings.Builder
	out.WriteString("\n")
	out.WriteString(headerStyle.Render(m.header(st)))
	out.WriteString("\n")
	out.WriteString(m.playbackLine(st, &grid))
	out.WriteString("\n\n")

	out.WriteString(dimStyle.Render("    slot  loop                  bars  rep  next"))
	out.WriteString("\n")

	for row := m.viewOffset; row < m.viewOffset+viewRows && row < sequencer.NumSlots; row++ {
		s := &grid.Slots[row]

		marker := " "
		switch {
		case st.Playback.Active && st.Playback.Slot == s.ID:
			marker = widgets.RenderSymbol(sym.Playing, m.Theme.Active())
		case st.Playback.Active && st.Playback.Next == s.ID:
			marker = widgets.RenderSymbol(sym.Next, m.Theme.Warning())
		case grid.Start == s.ID:
			marker = widgets.RenderSymbol(sym.Start, m.Theme.Success())
		}

		name := s.LoopName()
		if !s.HasLoop() {
			name = string(sym.Empty)
		}
		cells := [numCols]string{
			widgets.Pad(name, 20),
			widgets.Pad(s.LengthBars(), 4),
			widgets.Pad(fmt.Sprintf("%d", s.Repeat), 3),
			widgets.Pad(s.Next.String(), 4),
		}
		if row == m.cursorRow {
			cells[m.cursorCol] = cursorStyle.Render(cells[m.cursorCol])
		}
		fmt.Fprintf(&out, " %s   %s   %s  %s  %s  %s\n", marker, s.ID, cells[0], cells[1], cells[2], cells[3])
	}

	out.WriteString("\n")
	out.WriteString(widgets.RenderLegend([]string{
		widgets.RenderLegendItem(sym.Playing, m.Theme.Active(), "playing"),
		widgets.RenderLegendItem(sym.Next, m.Theme.Warning(), "next"),
		widgets.RenderLegendItem(sym.Start, m.Theme.Success(), "start"),
		widgets.RenderLegendItem(sym.Empty, m.Theme.Muted(), "empty"),
	}))
	out.WriteString("\n\n")

	out.WriteString(dimStyle.Render(widgets.RenderKeyHelp([]widgets.KeySection{
		{Keys: []widgets.KeyBinding{
			{Key: "hjkl", Desc: "move"},
			{Key: "+ / -", Desc: "change loop / bars / repeats / next"},
			{Key: "x  s", Desc: "clear slot, set start slot"},
			{Key: "space  c", Desc: "play/stop (internal), toggle clock source"},
			{Key: "[ ] { }", Desc: "tempo -1 +1 -10 +10"},
			{Key: "w  r  q", Desc: "save, rescan loops, quit"},
		}},
	})))

	if m.status != "" {
		out.WriteString("\n\n")
		out.WriteString(m.status)
	}
	return out.String()
}

func (m Model) header(st sequencer.Status) string {
	transport := fmt.Sprintf("%c STOP", m.Theme.Symbols.Stopped)
	if st.Running {
		transport = fmt.Sprintf("%c PLAY", m.Theme.Symbols.Running)
	}

	bpm := "---.-"
	if st.BPM > 0 {
		bpm = fmt.Sprintf("%5.1f", st.BPM)
	}

	src := "ext"
	if st.Source == sequencer.SourceInternal {
		src = fmt.Sprintf("int %.0f", st.InternalBPM)
	}

	ports := ""
	if m.DeviceMgr != nil {
		in, out := m.DeviceMgr.Connected()
		ports = fmt.Sprintf("  in:%s out:%s", orNone(in), orNone(out))
	}

	return fmt.Sprintf("midi-looper  %s  %sbpm  %d.%d  [%s]%s",
		transport, bpm, st.Bar, st.Beat, src, ports)
}

func (m Model) playbackLine(st sequencer.Status, grid *sequencer.Grid) string {
	pb := st.Playback
	if !pb.Active {
		return fmt.Sprintf("slot --  start %s", grid.Start)
	}

	line := fmt.Sprintf("slot %s %d/%d  next %s  %s  %s",
		pb.Slot, pb.Iteration, pb.Repeat, pb.Next,
		sequencer.FormatCountdown(pb.Remaining, m.Config.ZeroIndexedCountdown), pb.LoopName)

	if s := grid.Get(pb.Slot); s != nil && s.Loop != nil && s.Loop.Length > 0 {
		total := float64(uint64(pb.Repeat) * s.Loop.Length)
		frac := 1 - float64(pb.Remaining)/total
		line += "  " + widgets.RenderProgress(frac, 16, m.Theme.Symbols.Filled, m.Theme.Symbols.Unfilled, m.Theme.Active())
	}
	return line
}

func orNone(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
