package tui

import (
	"fmt"
	"image/color"
	"strings"
	"time"

	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"
	"github.com/charmbracelet/x/ansi"

	"github.com/hylla/agenda/internal/domain"
	"github.com/hylla/agenda/internal/gesture"
)

const (
	// boardTop is the first screen row of the column borders: title line plus one blank line.
	boardTop = 2
	// columnChrome is border plus horizontal padding on both sides, plus the right margin.
	columnChrome = 5
	// cardsOffset is the rows between a column's top border and its first card.
	cardsOffset = 3
	// footerRows is the notice line plus the bordered help line.
	footerRows = 3
	minColumnWidth = 18
)

var (
	accentColor  = lipgloss.Color("62")
	hoverColor   = lipgloss.Color("212")
	mutedColor   = lipgloss.Color("241")
	dimColor     = lipgloss.Color("239")
	errorColor   = lipgloss.Color("203")
	priorityTint = map[domain.Priority]color.Color{
		domain.PriorityHigh:   lipgloss.Color("203"),
		domain.PriorityMedium: lipgloss.Color("214"),
		domain.PriorityLow:    lipgloss.Color("244"),
	}
)

// boardLayout maps screen cells to board columns. It is rebuilt on every
// resize and bound to the drag controller as its drop-target resolver.
type boardLayout struct {
	top    int
	stride int
	height int
}

// ColumnAt implements gesture.Targets.
func (l boardLayout) ColumnAt(p gesture.Point) (domain.WorkflowState, bool) {
	if l.stride <= 0 || p.X < 0 || p.Y < l.top {
		return "", false
	}
	if l.height > 0 && p.Y >= l.top+l.height {
		return "", false
	}
	idx := p.X / l.stride
	if idx >= len(domain.WorkflowStates) {
		return "", false
	}
	return domain.WorkflowStates[idx], true
}

func (m Model) columnWidth() int {
	if m.width <= 0 {
		return minColumnWidth
	}
	return max(minColumnWidth, m.width/len(domain.WorkflowStates)-columnChrome)
}

// columnHeight is the outer height of a column including borders.
func (m Model) columnHeight() int {
	if m.height <= 0 {
		return cardsOffset + 1 + m.cardStride()*3
	}
	return max(cardsOffset+1+m.cardStride(), m.height-boardTop-footerRows)
}

func (m Model) layout() boardLayout {
	return boardLayout{
		top:    boardTop,
		stride: m.columnWidth() + columnChrome,
		height: m.columnHeight(),
	}
}

// cardLines is the number of text rows of one card.
func (m Model) cardLines() int {
	lines := 3
	if m.cards.ShowAddress {
		lines++
	}
	if m.cards.ShowDescription {
		lines++
	}
	return lines
}

// cardStride is one card plus its separator row.
func (m Model) cardStride() int {
	return m.cardLines() + 1
}

func (m Model) visibleCards() int {
	inner := m.columnHeight() - 2 - (cardsOffset - 1)
	return max(1, (inner+1)/m.cardStride())
}

// cardAt resolves a screen cell to a column and a card index in that column.
// col is -1 outside the board.
func (m Model) cardAt(x, y int) (col, idx int, ok bool) {
	state, inside := m.layout().ColumnAt(gesture.Point{X: x, Y: y})
	if !inside {
		return -1, 0, false
	}
	col = state.Index()
	rel := y - boardTop - cardsOffset
	if rel < 0 || rel%m.cardStride() == m.cardLines() {
		return col, 0, false
	}
	idx = m.scroll[col] + rel/m.cardStride()
	if idx >= len(m.columnTasks(col)) {
		return col, 0, false
	}
	return col, idx, true
}

// View renders the board, overlays and the drag ghost.
func (m Model) View() tea.View {
	v := tea.NewView(m.render())
	v.MouseMode = tea.MouseModeCellMotion
	v.AltScreen = true
	return v
}

func (m Model) render() string {
	if !m.ready {
		return "loading..."
	}
	content := m.renderBoard()
	height := m.height
	if height <= 0 {
		height = lipgloss.Height(content)
	}
	if overlay := m.renderModeOverlay(); overlay != "" {
		content = overlayOnContent(content, overlay, max(1, m.width), max(1, height))
	} else if m.drag.Dragging() {
		content = overlayAt(content, m.renderGhost(), m.drag.Position(), max(1, m.width), max(1, height))
	}
	return content
}

func (m Model) renderBoard() string {
	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("252"))
	statusStyle := lipgloss.NewStyle().Foreground(dimColor)

	total := len(m.board.Tasks())
	header := titleStyle.Render("agenda") + statusStyle.Render(fmt.Sprintf("  %d tasks", total))
	if filter := strings.TrimSpace(m.board.ClientFilter()); filter != "" && m.mode == modeTaskForm {
		header += statusStyle.Render("  client filter: " + truncate(filter, 24))
	}

	hovered, hovering := m.drag.Target()
	colWidth := m.columnWidth()
	colHeight := m.columnHeight()
	columns := make([]string, 0, len(domain.WorkflowStates))
	for colIdx, state := range domain.WorkflowStates {
		border := dimColor
		switch {
		case hovering && hovered == state:
			border = hoverColor
		case !m.drag.Dragging() && colIdx == m.selectedColumn:
			border = accentColor
		}
		style := lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(border).
			Padding(0, 1).
			MarginRight(1)
		body := m.renderColumn(colIdx, state, colWidth)
		columns = append(columns, style.Render(fitLines(body, max(1, colHeight-2))))
	}
	boardView := lipgloss.JoinHorizontal(lipgloss.Top, columns...)

	sections := []string{header, "", boardView, m.renderNoticeLine()}
	content := strings.Join(sections, "\n")

	helpBubble := m.help
	helpBubble.SetWidth(max(0, m.width-2))
	helpLine := lipgloss.NewStyle().
		Foreground(mutedColor).
		BorderTop(true).
		BorderForeground(dimColor).
		Padding(0, 1).
		Width(max(0, m.width)).
		Render(helpBubble.View(m.keys))
	if m.height > 0 {
		content = fitLines(content, max(0, m.height-lipgloss.Height(helpLine)))
	}
	return content + "\n" + helpLine
}

func (m Model) renderColumn(colIdx int, state domain.WorkflowState, width int) string {
	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(accentColor)
	emptyStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("243"))

	tasks := m.columnTasks(colIdx)
	lines := []string{
		padRight(titleStyle.Render(fmt.Sprintf("%s (%d)", state.Label(), len(tasks))), width),
		padRight("", width),
	}
	if len(tasks) == 0 {
		return strings.Join(append(lines, padRight(emptyStyle.Render("(no tasks)"), width)), "\n")
	}
	start := clamp(m.scroll[colIdx], 0, len(tasks)-1)
	end := min(len(tasks), start+m.visibleCards())
	for i := start; i < end; i++ {
		selected := colIdx == m.selectedColumn && i == m.selectedTask
		lines = append(lines, m.renderCard(tasks[i], selected, width)...)
		if i < end-1 {
			lines = append(lines, padRight("", width))
		}
	}
	if end < len(tasks) {
		lines = append(lines, padRight(emptyStyle.Render(fmt.Sprintf("+%d more", len(tasks)-end)), width))
	}
	return strings.Join(lines, "\n")
}

// renderCard renders exactly cardLines rows so mouse hit testing stays aligned.
func (m Model) renderCard(task domain.Task, selected bool, width int) []string {
	titleStyle := lipgloss.NewStyle().Bold(true)
	subStyle := lipgloss.NewStyle().Foreground(mutedColor)
	if selected {
		titleStyle = titleStyle.Foreground(hoverColor)
	}
	if m.drag.Dragging() && m.drag.TaskID() == task.ID {
		titleStyle = titleStyle.Foreground(dimColor).Faint(true)
		subStyle = subStyle.Faint(true)
	}

	marker := "  "
	switch {
	case selected:
		marker = "› "
	case m.board.Pending(task.ID):
		marker = "↻ "
	}
	name, address := m.board.ClientInfo(task.ClientID)
	badge := lipgloss.NewStyle().Foreground(priorityTint[task.Priority]).Render("● " + task.Priority.String())

	lines := []string{
		marker + titleStyle.Render(truncate(task.Title, width-2)),
		"  " + badge + subStyle.Render(" · "+formatDate(task.ScheduledDate, m.dateFormat)),
		"  " + subStyle.Render(truncate(name, width-2)),
	}
	if m.cards.ShowAddress {
		lines = append(lines, "  "+subStyle.Render(truncate(address, width-2)))
	}
	if m.cards.ShowDescription {
		desc := strings.Join(strings.Fields(task.Description), " ")
		lines = append(lines, "  "+subStyle.Render(truncate(desc, width-2)))
	}
	for i := range lines {
		lines[i] = padRight(lines[i], width)
	}
	return lines
}

func (m Model) renderNoticeLine() string {
	if m.notice.text != "" {
		style := lipgloss.NewStyle().Foreground(mutedColor)
		if m.notice.isError {
			style = lipgloss.NewStyle().Bold(true).Foreground(errorColor)
		}
		return style.Render("! "+m.notice.text) + lipgloss.NewStyle().Foreground(dimColor).Render("  esc dismiss")
	}
	if status := strings.TrimSpace(m.status); status != "" && status != "ready" {
		return lipgloss.NewStyle().Foreground(dimColor).Render(status)
	}
	return ""
}

// renderGhost draws the card following the pointer while dragging.
func (m Model) renderGhost() string {
	task, ok := m.board.Task(m.drag.TaskID())
	if !ok {
		return ""
	}
	label := "drop outside a column to cancel"
	if target, hovering := m.drag.Target(); hovering {
		label = "→ " + target.Label()
	}
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(hoverColor).
		Padding(0, 1).
		Render(truncate(task.Title, 28) + "\n" + lipgloss.NewStyle().Foreground(mutedColor).Render(label))
}

func (m Model) renderModeOverlay() string {
	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(accentColor).
		Padding(0, 1)
	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(accentColor)
	mutedStyle := lipgloss.NewStyle().Foreground(mutedColor)
	width := clamp(m.width-8, 36, 84)

	switch m.mode {
	case modeTaskForm:
		return boxStyle.Width(width).Render(m.renderForm(width - 4))
	case modeConfirmDelete:
		task, ok := m.board.Task(m.confirmID)
		if !ok {
			return ""
		}
		return boxStyle.BorderForeground(errorColor).Render(strings.Join([]string{
			titleStyle.Foreground(errorColor).Render("Delete task?"),
			"",
			truncate(task.Title, width-4),
			"",
			mutedStyle.Render("y confirm • n cancel"),
		}, "\n"))
	case modeTaskInfo:
		task, ok := m.board.Task(m.infoID)
		if !ok {
			return ""
		}
		name, address := m.board.ClientInfo(task.ClientID)
		body := m.markdown.render(taskMarkdown(task, name, address, m.dateFormat), width-4)
		return boxStyle.Width(width).Render(body + "\n\n" + mutedStyle.Render("e edit • y copy • esc close"))
	}
	return ""
}

func formatDate(ts time.Time, layout string) string {
	if ts.IsZero() {
		return "-"
	}
	if strings.TrimSpace(layout) == "" {
		layout = domain.DateLayout
	}
	return ts.Format(layout)
}

// clamp clamps v into [minV, maxV].
func clamp(v, minV, maxV int) int {
	if maxV < minV {
		return minV
	}
	if v < minV {
		return minV
	}
	if v > maxV {
		return maxV
	}
	return v
}

// fitLines pads or truncates content to exactly maxLines rows.
func fitLines(content string, maxLines int) string {
	if maxLines <= 0 {
		return ""
	}
	lines := strings.Split(content, "\n")
	switch {
	case len(lines) > maxLines:
		if maxLines == 1 {
			lines = []string{"…"}
		} else {
			lines = append(lines[:maxLines-1], "…")
		}
	case len(lines) < maxLines:
		padding := make([]string, maxLines-len(lines))
		lines = append(lines, padding...)
	}
	return strings.Join(lines, "\n")
}

// padRight pads a possibly styled line with spaces to width cells.
func padRight(s string, width int) string {
	if gap := width - lipgloss.Width(s); gap > 0 {
		return s + strings.Repeat(" ", gap)
	}
	return s
}

// overlayOnContent centers overlay above base.
func overlayOnContent(base, overlay string, width, height int) string {
	if width <= 0 || height <= 0 {
		if strings.TrimSpace(overlay) == "" {
			return base
		}
		return overlay + "\n\n" + base
	}

	base = fitLines(base, height)
	canvas := lipgloss.NewCanvas(width, height)
	baseLayer := lipgloss.NewLayer(base).X(0).Y(0).Z(0)
	centeredOverlay := lipgloss.Place(
		width,
		height,
		lipgloss.Center,
		lipgloss.Center,
		overlay,
	)
	overlayLayer := lipgloss.NewLayer(centeredOverlay).X(0).Y(0).Z(10)

	canvas.Compose(baseLayer)
	canvas.Compose(overlayLayer)
	return canvas.Render()
}

// overlayAt draws overlay with its top-left corner next to the pointer,
// shifted to stay on screen.
func overlayAt(base, overlay string, at gesture.Point, width, height int) string {
	if strings.TrimSpace(overlay) == "" {
		return base
	}
	x := clamp(at.X+1, 0, max(0, width-lipgloss.Width(overlay)))
	y := clamp(at.Y, 0, max(0, height-lipgloss.Height(overlay)))

	base = fitLines(base, height)
	canvas := lipgloss.NewCanvas(width, height)
	canvas.Compose(lipgloss.NewLayer(base).X(0).Y(0).Z(0))
	canvas.Compose(lipgloss.NewLayer(overlay).X(x).Y(y).Z(5))
	return canvas.Render()
}

// truncate shortens s to max terminal cells, marking the cut with an ellipsis.
func truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	return ansi.Truncate(s, max, "…")
}
