package tui

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"charm.land/bubbles/v2/textinput"
	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"

	"github.com/hylla/agenda/internal/app"
	"github.com/hylla/agenda/internal/domain"
)

// Form fields in focus order.
const (
	formTitle = iota
	formDescription
	formDate
	formPriority
	formStatus
	formClient
	formFieldCount
)

var formLabels = [formFieldCount]string{"title", "description", "date", "priority", "status", "client"}

// formErrorField maps a form row to the validator's field key.
var formErrorField = [formFieldCount]string{
	formTitle:    app.FieldTitle,
	formDate:     app.FieldScheduledDate,
	formPriority: app.FieldPriority,
	formStatus:   app.FieldStatus,
	formClient:   app.FieldClientID,
}

// taskForm is the create/edit modal. Text rows use textinput; status is a
// select and client is a filter input over the directory with a picker.
type taskForm struct {
	taskID      domain.TaskID
	inputs      map[int]*textinput.Model
	focus       int
	state       domain.WorkflowState
	clientID    domain.ClientID
	clientIndex int
	errors      app.FieldErrors
}

func newTextInput(prompt, placeholder string, limit int) *textinput.Model {
	in := textinput.New()
	in.Prompt = prompt
	in.Placeholder = placeholder
	in.CharLimit = limit
	return &in
}

// openForm starts the modal, prefilled from task when editing.
func (m *Model) openForm(task *domain.Task) tea.Cmd {
	form := taskForm{
		inputs: map[int]*textinput.Model{
			formTitle:       newTextInput("", "what needs doing", 120),
			formDescription: newTextInput("", "markdown allowed", 500),
			formDate:        newTextInput("", "YYYY-MM-DD", 10),
			formPriority:    newTextInput("", "1 high • 2 medium • 3 low", 1),
			formClient:      newTextInput("", "type to filter clients", 80),
		},
		state: domain.StateOpen,
	}
	draft := app.TaskDraft{State: domain.WorkflowStates[m.selectedColumn], Priority: domain.PriorityMedium}
	if task != nil {
		draft = app.DraftFromTask(*task)
	} else {
		draft.ScheduledDate = m.now().Format(domain.DateLayout)
	}
	form.taskID = draft.ID
	form.state = draft.State
	form.clientID = domain.ClientID(draft.ClientID)
	form.inputs[formTitle].SetValue(draft.Title)
	form.inputs[formDescription].SetValue(draft.Description)
	form.inputs[formDate].SetValue(draft.ScheduledDate)
	if draft.Priority != domain.PriorityUnset {
		form.inputs[formPriority].SetValue(strconv.Itoa(int(draft.Priority)))
	}

	m.board.SetClientFilter("")
	m.form = form
	m.syncClientIndex()
	m.mode = modeTaskForm
	m.notice = notice{}
	if task != nil {
		m.status = fmt.Sprintf("editing %q", task.Title)
	} else {
		m.status = "new task"
	}
	return m.focusFormField(formTitle)
}

func (m *Model) closeForm() {
	m.mode = modeNone
	m.form = taskForm{}
	m.board.SetClientFilter("")
}

func (m *Model) focusFormField(field int) tea.Cmd {
	m.form.focus = (field + formFieldCount) % formFieldCount
	var cmd tea.Cmd
	for idx, in := range m.form.inputs {
		if idx == m.form.focus {
			cmd = in.Focus()
		} else {
			in.Blur()
		}
	}
	return cmd
}

// syncClientIndex keeps the picker on the chosen client while the filter changes.
func (m *Model) syncClientIndex() {
	clients := m.board.FilteredClients()
	if idx := slices.IndexFunc(clients, func(c domain.Client) bool { return c.ID == m.form.clientID }); idx >= 0 {
		m.form.clientIndex = idx
		return
	}
	m.form.clientIndex = clamp(m.form.clientIndex, 0, len(clients)-1)
}

func (m *Model) pickClient(delta int) {
	clients := m.board.FilteredClients()
	if len(clients) == 0 {
		return
	}
	m.form.clientIndex = clamp(m.form.clientIndex+delta, 0, len(clients)-1)
	m.form.clientID = clients[m.form.clientIndex].ID
}

// draft collects the form values. ok is false when the priority text is not a number in range.
func (m Model) draft() (app.TaskDraft, bool) {
	priority, ok := app.ParsePriority(m.form.inputs[formPriority].Value())
	return app.TaskDraft{
		ID:            m.form.taskID,
		Title:         m.form.inputs[formTitle].Value(),
		Description:   m.form.inputs[formDescription].Value(),
		State:         m.form.state,
		Priority:      priority,
		ClientID:      string(m.form.clientID),
		ScheduledDate: m.form.inputs[formDate].Value(),
	}, ok
}

// submitForm validates the draft and submits it when every field is valid.
func (m Model) submitForm() (tea.Model, tea.Cmd) {
	draft, priorityOK := m.draft()
	errs := m.board.Validator().Validate(draft)
	if !priorityOK {
		errs[app.FieldPriority] = app.ReasonInvalidPriority
	}
	m.form.errors = errs
	if len(errs) > 0 {
		m.status = fmt.Sprintf("fix %d field(s)", len(errs))
		return m, nil
	}
	m.status = "saving..."
	return m, m.submitCmd(draft)
}

func (m Model) handleFormKey(msg tea.KeyPressMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.closeForm()
		m.status = "cancelled"
		return m, nil
	case "enter", "ctrl+s":
		return m.submitForm()
	case "tab", "down":
		if msg.String() == "down" && m.form.focus == formClient {
			m.pickClient(1)
			return m, nil
		}
		return m, m.focusFormField(m.form.focus + 1)
	case "shift+tab", "up":
		if msg.String() == "up" && m.form.focus == formClient {
			m.pickClient(-1)
			return m, nil
		}
		return m, m.focusFormField(m.form.focus - 1)
	}

	if m.form.focus == formStatus {
		switch msg.String() {
		case "left", "h":
			m.form.state = m.form.state.Prev()
		case "right", "l":
			m.form.state = m.form.state.Next()
		case "space":
			next := (m.form.state.Index() + 1) % len(domain.WorkflowStates)
			m.form.state = domain.WorkflowStates[next]
		}
		return m, nil
	}

	in, ok := m.form.inputs[m.form.focus]
	if !ok {
		return m, nil
	}
	updated, cmd := in.Update(msg)
	*in = updated
	if m.form.focus == formClient {
		m.board.SetClientFilter(in.Value())
		m.syncClientIndex()
		if clients := m.board.FilteredClients(); len(clients) == 1 {
			m.form.clientID = clients[0].ID
			m.form.clientIndex = 0
		}
	}
	return m, cmd
}

func (m Model) renderForm(width int) string {
	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(accentColor)
	labelStyle := lipgloss.NewStyle().Foreground(mutedColor).Width(12)
	focusLabel := labelStyle.Foreground(hoverColor).Bold(true)
	errStyle := lipgloss.NewStyle().Foreground(errorColor)
	hintStyle := lipgloss.NewStyle().Foreground(dimColor)

	heading := "New task"
	if m.form.taskID != "" {
		heading = "Edit task"
	}
	lines := []string{titleStyle.Render(heading), ""}
	for field := range formFieldCount {
		label := labelStyle.Render(formLabels[field])
		if field == m.form.focus {
			label = focusLabel.Render(formLabels[field])
		}
		var value string
		switch field {
		case formStatus:
			value = renderStateSelect(m.form.state)
		default:
			value = m.form.inputs[field].View()
		}
		line := label + value
		if key := formErrorField[field]; key != "" {
			if reason, bad := m.form.errors[key]; bad {
				line += "  " + errStyle.Render(reason)
			}
		}
		lines = append(lines, line)
	}

	lines = append(lines, "")
	clients := m.board.FilteredClients()
	if len(clients) == 0 {
		lines = append(lines, hintStyle.Render("no clients match"))
	}
	const pickerRows = 5
	start := clamp(m.form.clientIndex-pickerRows/2, 0, max(0, len(clients)-pickerRows))
	for i := start; i < min(len(clients), start+pickerRows); i++ {
		c := clients[i]
		marker := "  "
		if c.ID == m.form.clientID {
			marker = "● "
		} else if i == m.form.clientIndex && m.form.focus == formClient {
			marker = "› "
		}
		lines = append(lines, marker+truncate(c.Name+" · "+c.Address, width-2))
	}
	if m.form.clientID != "" && !slices.ContainsFunc(clients, func(c domain.Client) bool { return c.ID == m.form.clientID }) {
		name, _ := m.board.ClientInfo(m.form.clientID)
		lines = append(lines, hintStyle.Render("selected: "+name))
	}

	lines = append(lines, "", hintStyle.Render("tab next • ↑/↓ pick client • ←/→ status • enter save • esc cancel"))
	return strings.Join(lines, "\n")
}

func renderStateSelect(current domain.WorkflowState) string {
	parts := make([]string, 0, len(domain.WorkflowStates))
	for _, state := range domain.WorkflowStates {
		if state == current {
			parts = append(parts, lipgloss.NewStyle().Bold(true).Foreground(hoverColor).Render("["+state.Label()+"]"))
			continue
		}
		parts = append(parts, lipgloss.NewStyle().Foreground(mutedColor).Render(" "+state.Label()+" "))
	}
	return strings.Join(parts, " ")
}
