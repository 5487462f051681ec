package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"

	"github.com/hylla/agenda/internal/domain"
)

// markdownRenderer renders markdown for terminal views and recreates the renderer when wrap width changes.
type markdownRenderer struct {
	width    int
	renderer *glamour.TermRenderer
}

// render converts markdown input into ANSI-styled terminal text with the requested wrap width.
func (r *markdownRenderer) render(markdown string, width int) string {
	markdown = strings.TrimSpace(markdown)
	if markdown == "" {
		return ""
	}

	wrapWidth := max(width, 24)
	if r.renderer == nil || r.width != wrapWidth {
		renderer, err := glamour.NewTermRenderer(
			glamour.WithStandardStyle("dark"),
			glamour.WithWordWrap(wrapWidth),
		)
		if err != nil {
			return markdown
		}
		r.renderer = renderer
		r.width = wrapWidth
	}

	rendered, err := r.renderer.Render(markdown)
	if err != nil {
		return markdown
	}
	return strings.TrimRight(rendered, "\n")
}

// taskMarkdown builds the detail document for one task. The description is
// passed through as markdown.
func taskMarkdown(task domain.Task, clientName, clientAddress, dateFormat string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", task.Title)
	fmt.Fprintf(&b, "- **Status:** %s\n", task.State.Label())
	fmt.Fprintf(&b, "- **Priority:** %s\n", task.Priority)
	fmt.Fprintf(&b, "- **Scheduled:** %s\n", formatDate(task.ScheduledDate, dateFormat))
	fmt.Fprintf(&b, "- **Client:** %s\n", clientName)
	fmt.Fprintf(&b, "- **Address:** %s\n", clientAddress)
	if desc := strings.TrimSpace(task.Description); desc != "" {
		b.WriteString("\n---\n\n")
		b.WriteString(desc)
		b.WriteString("\n")
	}
	return b.String()
}

// taskSummary is the plain-text form copied to the clipboard.
func taskSummary(task domain.Task, clientName, clientAddress, dateFormat string) string {
	lines := []string{
		task.Title,
		fmt.Sprintf("%s · %s priority · %s", task.State.Label(), task.Priority, formatDate(task.ScheduledDate, dateFormat)),
		fmt.Sprintf("%s, %s", clientName, clientAddress),
	}
	if desc := strings.TrimSpace(task.Description); desc != "" {
		lines = append(lines, "", desc)
	}
	return strings.Join(lines, "\n")
}
