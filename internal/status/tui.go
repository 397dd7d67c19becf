package status

import (
	"context"
	"fmt"
	"os/exec"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/timvw/pane-mirror/internal/activity"
	"github.com/timvw/pane-mirror/internal/queue"
)

// view mode
type viewMode int

const (
	modeBrowse viewMode = iota
	modeInput
)

// listItem represents a row in the grouped pane list.
// It is either a session header or an individual pane.
type listItem struct {
	kind    itemKind
	session string
	paneIdx int // index into panes slice (only for itemPane)
}

type itemKind int

const (
	itemSession itemKind = iota
	itemPane
)

// sessionGroup holds the panes of a single mirrored session.
type sessionGroup struct {
	name    string // session directory name
	display string // session name from the snapshot headers
	panes   []int  // indices into the flat panes slice
	queued  int    // panes with waiting queue lines
}

// messages
type walkMsg struct {
	panes []PaneEntry
	err   error
}

type tickMsg struct{}

// TUI runs the interactive mirror browser.
type TUI struct {
	Root            string
	RefreshInterval time.Duration   // 0 disables auto-refresh
	ThemeName       string          // "dark" (default) or "light"
	Events          *activity.Store // nil hides the activity feed
}

// feedLines is how many recent activity events the feed panel shows.
const feedLines = 5

// model implements tea.Model
type tuiModel struct {
	root            string
	refreshInterval time.Duration
	events          *activity.Store
	st              styles

	panes  []PaneEntry
	groups []sessionGroup
	items  []listItem // visible items (rebuilt on panes/expand change)
	cursor int

	// expanded tracks per-session expansion; sessions not yet in the
	// map default to expanded on first sight.
	expanded map[string]bool

	mode viewMode

	// text input state
	textInput   textinput.Model
	inputTarget PaneEntry
	haveTarget  bool

	// dimensions
	width  int
	height int

	// status
	walking   bool
	message   string
	walkCount int
}

func (t *TUI) Run(ctx context.Context) error {
	ti := textinput.New()
	ti.Placeholder = "Line to queue; directives like /key C-c pass through..."
	ti.CharLimit = 2048
	ti.Width = 80

	m := &tuiModel{
		root:            t.Root,
		refreshInterval: t.RefreshInterval,
		events:          t.Events,
		st:              newStyles(ThemeByName(t.ThemeName)),
		expanded:        make(map[string]bool),
		textInput:       ti,
	}
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithMouseCellMotion(), tea.WithContext(ctx))
	_, err := p.Run()
	return err
}

func (m *tuiModel) Init() tea.Cmd {
	m.walking = true
	return m.doWalk()
}

// scheduleTick returns a tea.Cmd that sends a tickMsg after the refresh interval.
// Returns nil if auto-refresh is disabled (interval <= 0).
func (m *tuiModel) scheduleTick() tea.Cmd {
	if m.refreshInterval <= 0 {
		return nil
	}
	return tea.Tick(m.refreshInterval, func(time.Time) tea.Msg {
		return tickMsg{}
	})
}

func (m *tuiModel) doWalk() tea.Cmd {
	root := m.root
	return func() tea.Msg {
		panes, err := WalkRoot(root)
		return walkMsg{panes: panes, err: err}
	}
}

// rebuildGroups groups panes by session and rebuilds the visible items list.
func (m *tuiModel) rebuildGroups() {
	seen := map[string]int{} // session dir -> index in groups
	m.groups = nil
	for i, p := range m.panes {
		idx, ok := seen[p.Session]
		if !ok {
			idx = len(m.groups)
			seen[p.Session] = idx
			m.groups = append(m.groups, sessionGroup{name: p.Session, display: p.Session})
			if _, known := m.expanded[p.Session]; !known {
				m.expanded[p.Session] = true
			}
		}
		if p.HasHeader {
			m.groups[idx].display = p.Header.Session
		}
		m.groups[idx].panes = append(m.groups[idx].panes, i)
		if p.QueueDepth > 0 {
			m.groups[idx].queued++
		}
	}

	// Sort groups alphabetically for a stable, predictable order.
	sort.SliceStable(m.groups, func(i, j int) bool {
		return m.groups[i].name < m.groups[j].name
	})

	m.rebuildItems()
}

// rebuildItems builds the flat visible items list from groups + expanded state.
func (m *tuiModel) rebuildItems() {
	m.items = nil
	for _, g := range m.groups {
		m.items = append(m.items, listItem{kind: itemSession, session: g.name})
		if m.expanded[g.name] {
			for _, pi := range g.panes {
				m.items = append(m.items, listItem{kind: itemPane, session: g.name, paneIdx: pi})
			}
		}
	}
}

// selectedPane returns the pane for the currently selected item, or
// false when a session header (or nothing) is selected.
func (m *tuiModel) selectedPane() (PaneEntry, bool) {
	if m.cursor < 0 || m.cursor >= len(m.items) {
		return PaneEntry{}, false
	}
	item := m.items[m.cursor]
	if item.kind != itemPane {
		return PaneEntry{}, false
	}
	return m.panes[item.paneIdx], true
}

// selectedItemKey identifies the current selection across rebuilds:
// pane rows by their directory, session rows by their name.
func (m *tuiModel) selectedItemKey() string {
	if m.cursor < 0 || m.cursor >= len(m.items) {
		return ""
	}
	item := m.items[m.cursor]
	if item.kind == itemSession {
		return "s:" + item.session
	}
	return "p:" + m.panes[item.paneIdx].Dir
}

// restoreCursorByKey moves the cursor back to the item identified by
// key after a rebuild. A vanished selection lands on the nearest pane.
func (m *tuiModel) restoreCursorByKey(key string) {
	if key != "" {
		for i, item := range m.items {
			if item.kind == itemSession && "s:"+item.session == key {
				m.cursor = i
				return
			}
			if item.kind == itemPane && "p:"+m.panes[item.paneIdx].Dir == key {
				m.cursor = i
				return
			}
		}
	}
	if m.cursor >= len(m.items) {
		m.cursor = len(m.items) - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
	for m.cursor < len(m.items)-1 && m.items[m.cursor].kind == itemSession {
		m.cursor++
	}
}

func (m *tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.MouseMsg:
		return m.handleMouse(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case walkMsg:
		m.walking = false
		if msg.err != nil {
			m.message = fmt.Sprintf("Walk error: %v", msg.err)
		} else {
			key := m.selectedItemKey()
			m.panes = msg.panes
			m.walkCount++
			m.rebuildGroups()
			m.restoreCursorByKey(key)
		}
		if cmd := m.scheduleTick(); cmd != nil {
			return m, cmd
		}
		return m, nil

	case tickMsg:
		// Auto-refresh: skip if already walking or typing
		if m.walking || m.mode == modeInput {
			return m, m.scheduleTick()
		}
		m.walking = true
		return m, m.doWalk()
	}

	return m, nil
}

func (m *tuiModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch m.mode {
	case modeBrowse:
		return m.handleBrowseKey(msg)
	case modeInput:
		return m.handleInputKey(msg)
	}
	return m, nil
}

func (m *tuiModel) handleMouse(msg tea.MouseMsg) (tea.Model, tea.Cmd) {
	if m.mode != modeBrowse {
		return m, nil
	}
	if msg.Action != tea.MouseActionPress || msg.Button != tea.MouseButtonLeft {
		return m, nil
	}

	// Header line is row 0, items start at row 1.
	clickedIdx := msg.Y - 1
	if clickedIdx < 0 || clickedIdx >= len(m.items) {
		return m, nil
	}

	m.cursor = clickedIdx
	item := m.items[clickedIdx]
	if item.kind == itemPane {
		m.jumpToSelected()
	} else {
		m.toggleSession(item.session)
	}
	return m, nil
}

func (m *tuiModel) handleBrowseKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit

	case "up", "k":
		if len(m.items) > 0 && m.cursor > 0 {
			m.cursor--
			// Skip session headers — only panes are actionable
			for m.cursor > 0 && m.items[m.cursor].kind == itemSession {
				m.cursor--
			}
		}

	case "down", "j":
		if len(m.items) > 0 && m.cursor < len(m.items)-1 {
			m.cursor++
			// Skip session headers — only panes are actionable
			for m.cursor < len(m.items)-1 && m.items[m.cursor].kind == itemSession {
				m.cursor++
			}
		}

	case "enter":
		if m.cursor < 0 || m.cursor >= len(m.items) {
			return m, nil
		}
		item := m.items[m.cursor]
		if item.kind == itemSession {
			m.toggleSession(item.session)
			return m, nil
		}
		m.jumpToSelected()
		return m, nil

	case "right", "l", "tab":
		if m.cursor >= 0 && m.cursor < len(m.items) {
			item := m.items[m.cursor]
			if item.kind == itemSession && !m.expanded[item.session] {
				m.toggleSession(item.session)
			}
		}
		return m, nil

	case "left", "h":
		// On a pane: jump to its session header. On a session: collapse.
		if m.cursor < 0 || m.cursor >= len(m.items) {
			return m, nil
		}
		item := m.items[m.cursor]
		if item.kind == itemPane {
			for i := m.cursor - 1; i >= 0; i-- {
				if m.items[i].kind == itemSession && m.items[i].session == item.session {
					m.cursor = i
					break
				}
			}
			return m, nil
		}
		if m.expanded[item.session] {
			m.expanded[item.session] = false
			m.rebuildItems()
			if m.cursor >= len(m.items) {
				m.cursor = len(m.items) - 1
			}
		}

	case "t":
		// Open text input to queue a line for the selected pane
		if p, ok := m.selectedPane(); ok {
			m.mode = modeInput
			m.inputTarget = p
			m.haveTarget = true
			m.textInput.SetValue("")
			m.textInput.Focus()
			return m, textinput.Blink
		}
		return m, nil

	case "r":
		m.walking = true
		m.message = ""
		return m, m.doWalk()
	}

	return m, nil
}

func (m *tuiModel) handleInputKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc", "escape":
		m.mode = modeBrowse
		m.haveTarget = false
		m.textInput.Blur()
		return m, nil

	case "enter":
		text := m.textInput.Value()
		if text != "" && m.haveTarget {
			if err := queue.Append(m.inputTarget.Dir, text); err != nil {
				m.message = fmt.Sprintf("Queue failed: %v", err)
			} else {
				m.message = fmt.Sprintf("Queued '%s' for %s", truncate(text, 40), m.inputTarget.Target())
			}
		}
		m.mode = modeBrowse
		m.haveTarget = false
		m.textInput.Blur()
		// Refresh so the queue depth shows immediately
		m.walking = true
		return m, m.doWalk()
	}

	// Forward all other keys to the text input component
	var cmd tea.Cmd
	m.textInput, cmd = m.textInput.Update(msg)
	return m, cmd
}

// toggleSession flips a session's expansion and keeps the cursor sane.
func (m *tuiModel) toggleSession(session string) {
	m.expanded[session] = !m.expanded[session]
	m.rebuildItems()
	if m.expanded[session] && m.cursor+1 < len(m.items) {
		m.cursor++
	}
	if m.cursor >= len(m.items) {
		m.cursor = len(m.items) - 1
	}
}

// jumpToSelected switches the tmux client to the selected pane.
func (m *tuiModel) jumpToSelected() {
	p, ok := m.selectedPane()
	if !ok {
		return
	}
	if !p.HasHeader {
		m.message = "No snapshot header yet; cannot address the pane"
		return
	}
	target := p.Target()
	jumpToPane(target)
	m.message = "Jumped to " + target
}

func (m *tuiModel) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	switch m.mode {
	case modeBrowse:
		return m.viewBrowse()
	case modeInput:
		return m.viewInput()
	}
	return ""
}

func (m *tuiModel) viewBrowse() string {
	var b strings.Builder

	// Header: title + keybindings
	b.WriteString(m.st.title.Render("Pane Mirror"))
	b.WriteString("  ")
	b.WriteString(m.st.dim.Render("Enter/click=jump  t=type  ←→=fold  r=refresh  q=quit"))
	if m.walking {
		b.WriteString("  ")
		b.WriteString(m.st.waiting.Render("walking..."))
	}
	b.WriteString("\n")

	if len(m.items) == 0 {
		if m.walking {
			b.WriteString("  Reading mirror tree...\n")
		} else {
			b.WriteString(fmt.Sprintf("  No mirrored panes under %s. Is the daemon running?\n", m.root))
		}
		return b.String()
	}

	// Layout widths: name | detail
	nameWidth := 12
	for _, g := range m.groups {
		if len(g.display)+6 > nameWidth {
			nameWidth = len(g.display) + 6
		}
		for _, pi := range g.panes {
			p := m.panes[pi]
			if w := len(p.WindowDir) + 10; w > nameWidth {
				nameWidth = w
			}
		}
	}

	separator := " | "
	detailWidth := m.width - nameWidth - len(separator)
	if detailWidth < 15 {
		detailWidth = 15
	}

	// Rows available for the list after header, summary, feed, message.
	listHeight := m.height - 3
	if m.events != nil {
		listHeight -= feedLines + 1
	}
	if listHeight < 3 {
		listHeight = 3
	}
	maxVisible := listHeight
	if maxVisible > len(m.items) {
		maxVisible = len(m.items)
	}

	// Compute scroll window [start, end) that keeps cursor visible
	start := 0
	end := maxVisible
	if m.cursor >= end {
		end = m.cursor + 1
		start = end - maxVisible
	}
	if start < 0 {
		start = 0
		end = maxVisible
	}

	sep := m.st.header.Render(separator)
	now := time.Now()
	for i := start; i < end && i < len(m.items); i++ {
		item := m.items[i]
		var nameCol, detailCol string
		if item.kind == itemSession {
			nameCol, detailCol = m.renderSessionRow(item, i, nameWidth, detailWidth)
		} else {
			nameCol, detailCol = m.renderPaneRow(item, i, nameWidth, detailWidth, now)
		}
		b.WriteString(nameCol)
		b.WriteString(sep)
		b.WriteString(detailCol)
		b.WriteString("\n")
	}

	// Summary line
	queuedTotal := 0
	for _, p := range m.panes {
		queuedTotal += p.QueueDepth
	}
	summary := fmt.Sprintf("  %d sessions | %d panes | %d queued lines | walk #%d",
		len(m.groups), len(m.panes), queuedTotal, m.walkCount)
	if start > 0 || end < len(m.items) {
		summary += fmt.Sprintf(" | showing %d-%d", start+1, end)
	}
	b.WriteString(m.st.dim.Render(summary))
	b.WriteString("\n")

	m.renderFeed(&b, now)

	if m.message != "" {
		b.WriteString(m.st.dim.Render("  " + m.message))
		b.WriteString("\n")
	}

	return b.String()
}

// renderFeed appends the recent-activity panel when a store is wired.
func (m *tuiModel) renderFeed(b *strings.Builder, now time.Time) {
	if m.events == nil {
		return
	}
	b.WriteString(m.st.header.Render("  ── activity ──"))
	b.WriteString("\n")
	recent := m.events.Recent(now.UTC())
	if len(recent) == 0 {
		b.WriteString(m.st.dim.Render("  (no daemon events yet)"))
		b.WriteString("\n")
		return
	}
	if len(recent) > feedLines {
		recent = recent[:feedLines]
	}
	for _, e := range recent {
		line := fmt.Sprintf("  %s %-8s %s", e.TS.Local().Format("15:04:05"), e.Kind, e.Target)
		if e.Detail != "" {
			line += "  " + e.Detail
		}
		line = truncate(line, m.width)
		if e.Kind == activity.KindError {
			b.WriteString(m.st.err.Render(line))
		} else {
			b.WriteString(m.st.dim.Render(line))
		}
		b.WriteString("\n")
	}
}

func (m *tuiModel) renderSessionRow(item listItem, idx, nameWidth, detailWidth int) (string, string) {
	var group *sessionGroup
	for gi := range m.groups {
		if m.groups[gi].name == item.session {
			group = &m.groups[gi]
			break
		}
	}

	arrow := "▶"
	if m.expanded[item.session] {
		arrow = "▼"
	}

	var detail string
	name := item.session
	if group != nil {
		name = group.display
		parts := []string{fmt.Sprintf("%d pane", len(group.panes))}
		if len(group.panes) != 1 {
			parts[0] += "s"
		}
		if group.queued > 0 {
			parts = append(parts, fmt.Sprintf("%d with queued input", group.queued))
		}
		detail = strings.Join(parts, ", ")
	}

	icon := m.st.dim.Render("·")
	if group != nil && group.queued > 0 {
		icon = m.st.waiting.Render("◆")
	}

	if idx == m.cursor {
		nameCol := m.st.selected.Render(padRight(fmt.Sprintf("→ %s %s", arrow, name), nameWidth))
		return nameCol, m.st.selected.Render(padRight(detail, detailWidth))
	}
	nameCol := padRight(fmt.Sprintf("  %s %s %s", arrow, icon, name), nameWidth)
	return nameCol, m.st.dim.Render(padRight(detail, detailWidth))
}

func (m *tuiModel) renderPaneRow(item listItem, idx, nameWidth, detailWidth int, now time.Time) (string, string) {
	p := m.panes[item.paneIdx]

	paneLabel := p.WindowDir + "/" + lastPathSegment(p.Dir)

	var parts []string
	if p.HasHeader && p.Header.Title != "" {
		parts = append(parts, p.Header.Title)
	}
	if p.QueueDepth > 0 {
		parts = append(parts, fmt.Sprintf("%d queued", p.QueueDepth))
	}
	parts = append(parts, formatAge(p.Captured, now))
	detail := strings.Join(parts, ", ")
	if len(detail) > detailWidth-1 && detailWidth > 4 {
		detail = detail[:detailWidth-4] + "..."
	}

	icon := m.st.active.Render("·")
	if p.QueueDepth > 0 {
		icon = m.st.waiting.Render("◆")
	}

	if idx == m.cursor {
		nameCol := m.st.selected.Render(padRight("→     "+paneLabel, nameWidth))
		return nameCol, m.st.selected.Render(padRight(detail, detailWidth))
	}
	nameCol := padRight(fmt.Sprintf("      %s %s", icon, paneLabel), nameWidth)
	return nameCol, padRight(detail, detailWidth)
}

func (m *tuiModel) viewInput() string {
	if !m.haveTarget {
		return ""
	}

	var b strings.Builder

	b.WriteString(m.st.title.Render("  Queue Input"))
	b.WriteString("\n")
	b.WriteString(m.st.header.Render("  ─────────────────────────────────────────"))
	b.WriteString("\n")
	b.WriteString(fmt.Sprintf("  Target: %s\n", m.inputTarget.Target()))
	b.WriteString(fmt.Sprintf("  Queue:  %s\n", m.inputTarget.Dir))
	b.WriteString("\n")
	b.WriteString(m.st.dim.Render("  Enter=queue  Escape=cancel"))
	b.WriteString("\n\n")
	b.WriteString("  " + m.textInput.View())
	b.WriteString("\n")

	return b.String()
}

// jumpToPane switches the tmux client to the given pane target.
func jumpToPane(target string) {
	cmd := exec.Command("tmux", "switch-client", "-t", target)
	_ = cmd.Run()
}

// lastPathSegment returns the final path element (the pane index).
func lastPathSegment(path string) string {
	if i := strings.LastIndexByte(path, '/'); i >= 0 {
		return path[i+1:]
	}
	return path
}

// formatAge renders how long ago a snapshot was captured.
func formatAge(ts time.Time, now time.Time) string {
	if ts.IsZero() {
		return "-"
	}
	d := now.Sub(ts)
	switch {
	case d < time.Second:
		return "now"
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	default:
		return fmt.Sprintf("%dh", int(d.Hours()))
	}
}

// truncate cuts a string to at most maxLen characters.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}

// padRight pads a string with spaces to reach the desired visible width.
func padRight(s string, width int) string {
	visible := visibleLen(s)
	if visible >= width {
		return s
	}
	return s + strings.Repeat(" ", width-visible)
}

// visibleLen returns the visible length of a string, ignoring ANSI escape sequences.
func visibleLen(s string) int {
	n := 0
	inEscape := false
	for _, r := range s {
		if r == '\x1b' {
			inEscape = true
			continue
		}
		if inEscape {
			if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') {
				inEscape = false
			}
			continue
		}
		n++
	}
	return n
}
