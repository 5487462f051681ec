package tui

import (
	"context"
	"errors"
	"fmt"
	"time"

	"charm.land/bubbles/v2/help"
	"charm.land/bubbles/v2/key"
	tea "charm.land/bubbletea/v2"

	"github.com/hylla/agenda/internal/app"
	"github.com/hylla/agenda/internal/domain"
	"github.com/hylla/agenda/internal/gesture"
)

// inputMode represents a selectable mode.
type inputMode int

const (
	modeNone inputMode = iota
	modeTaskForm
	modeConfirmDelete
	modeTaskInfo
)

// notice is the dismissable message line under the board.
type notice struct {
	text    string
	isError bool
}

// Model is the bubbletea model of the task board.
type Model struct {
	board *app.Board
	drag  *gesture.Controller
	log   app.Logger

	keys keyMap
	help help.Model

	ready         bool
	width, height int

	mode           inputMode
	selectedColumn int
	selectedTask   int
	scroll         []int

	dateFormat      string
	cards           CardFieldConfig
	refreshInterval time.Duration
	refreshGen      int
	followChanges   bool
	reloadConfig    func() (RuntimeConfig, error)
	copyText        func(string) error

	status string
	notice notice

	form      taskForm
	confirmID domain.TaskID
	infoID    domain.TaskID
	markdown  *markdownRenderer

	now func() time.Time
}

// boardLoadedMsg reports the end of a task and client refresh.
type boardLoadedMsg struct {
	err error
}

// transitionDoneMsg reports the persistence result of one transition.
type transitionDoneMsg struct {
	taskID domain.TaskID
	to     domain.WorkflowState
	err    error
}

// taskSavedMsg reports a form submit or priority change.
type taskSavedMsg struct {
	task    domain.Task
	created bool
	err     error
}

type taskDeletedMsg struct {
	taskID domain.TaskID
	title  string
	err    error
}

// boardChangedMsg is emitted when the board signals a change.
type boardChangedMsg struct{}

type refreshTickMsg struct {
	gen int
}

// configReloadedMsg carries runtime settings loaded through the reload callback.
type configReloadedMsg struct {
	config RuntimeConfig
	err    error
}

type copiedMsg struct {
	err error
}

// ConfigMsg wraps settings pushed from outside the program, e.g. a config
// file watcher, for tea.Program.Send.
func ConfigMsg(cfg RuntimeConfig) tea.Msg {
	return configReloadedMsg{config: cfg}
}

// NewModel constructs a new value for this package.
func NewModel(board *app.Board, opts ...Option) Model {
	h := help.New()
	h.ShowAll = false
	m := Model{
		board:      board,
		drag:       gesture.NewController(board, nil, gesture.DefaultConfig()),
		log:        nopLogger{},
		keys:       newKeyMap(),
		help:       h,
		scroll:     make([]int, len(domain.WorkflowStates)),
		dateFormat: "02/01/2006",
		cards:      DefaultCardFieldConfig(),
		copyText:   systemClipboard,
		status:     "loading...",
		markdown:   &markdownRenderer{},
		now:        time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&m)
		}
	}
	return m
}

// Init loads the board and starts the optional change feed and refresh timer.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{m.loadBoardCmd()}
	if m.followChanges {
		cmds = append(cmds, waitForBoardChange(m.board.Changes()))
	}
	if m.refreshInterval > 0 {
		cmds = append(cmds, refreshTick(m.refreshInterval, m.refreshGen))
	}
	return tea.Batch(cmds...)
}

// Update updates state for the requested operation.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		m.width = msg.Width
		m.height = msg.Height
		m.drag.Bind(m.layout())
		m.clampSelections()
		return m, nil

	case boardLoadedMsg:
		if msg.err != nil {
			m.setError("load failed", msg.err)
		} else if m.status == "loading..." {
			m.status = "ready"
		}
		m.clampSelections()
		return m, nil

	case boardChangedMsg:
		m.clampSelections()
		return m, waitForBoardChange(m.board.Changes())

	case refreshTickMsg:
		if msg.gen != m.refreshGen || m.refreshInterval <= 0 {
			return m, nil
		}
		return m, tea.Batch(m.loadBoardCmd(), refreshTick(m.refreshInterval, m.refreshGen))

	case transitionDoneMsg:
		if msg.err != nil {
			m.setError("move failed", msg.err)
		} else {
			m.status = "moved to " + msg.to.Label()
		}
		m.followTask(msg.taskID)
		return m, nil

	case taskSavedMsg:
		var loadErr *app.LoadError
		if msg.err != nil && !errors.As(msg.err, &loadErr) {
			m.setError("save failed", msg.err)
			return m, nil
		}
		if m.mode == modeTaskForm {
			m.closeForm()
		}
		if loadErr != nil {
			// The store accepted the task; only the follow-up reload failed.
			m.setError("saved, but refresh failed", msg.err)
			m.followTask(msg.task.ID)
			return m, nil
		}
		if msg.created {
			m.status = fmt.Sprintf("created %q", msg.task.Title)
		} else {
			m.status = fmt.Sprintf("saved %q", msg.task.Title)
		}
		m.followTask(msg.task.ID)
		return m, nil

	case taskDeletedMsg:
		var loadErr *app.LoadError
		if errors.As(msg.err, &loadErr) {
			m.setError("deleted, but refresh failed", msg.err)
			m.clampSelections()
			return m, nil
		}
		if msg.err != nil {
			m.setError("delete failed", msg.err)
			return m, nil
		}
		m.status = fmt.Sprintf("deleted %q", msg.title)
		m.clampSelections()
		return m, nil

	case configReloadedMsg:
		if msg.err != nil {
			m.setError("reload config failed", msg.err)
			return m, nil
		}
		return m, m.applyRuntimeConfig(msg.config)

	case copiedMsg:
		if msg.err != nil {
			m.setError("copy failed", msg.err)
			return m, nil
		}
		m.status = "copied task to clipboard"
		return m, nil

	case tea.KeyPressMsg:
		switch m.mode {
		case modeTaskForm:
			return m.handleFormKey(msg)
		case modeConfirmDelete:
			return m.handleConfirmKey(msg)
		case modeTaskInfo:
			return m.handleInfoKey(msg)
		default:
			return m.handleNormalModeKey(msg)
		}

	case tea.MouseClickMsg:
		return m.handleMouseClick(msg)

	case tea.MouseMotionMsg:
		return m.handleMouseMotion(msg)

	case tea.MouseReleaseMsg:
		return m.handleMouseRelease(msg)

	case tea.MouseWheelMsg:
		return m.handleMouseWheel(msg)

	default:
		return m, nil
	}
}

// applyRuntimeConfig applies reloaded settings and restarts the refresh timer
// when its interval changed.
func (m *Model) applyRuntimeConfig(cfg RuntimeConfig) tea.Cmd {
	prev := m.refreshInterval
	WithRuntimeConfig(cfg)(m)
	m.status = "config reloaded"
	if m.refreshInterval == prev {
		return nil
	}
	m.refreshGen++
	if m.refreshInterval <= 0 {
		return nil
	}
	return refreshTick(m.refreshInterval, m.refreshGen)
}

func (m Model) handleNormalModeKey(msg tea.KeyPressMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.cancel):
		if m.drag.Active() {
			m.drag.Cancel()
			m.status = "drag cancelled"
			return m, nil
		}
		if m.help.ShowAll {
			m.help.ShowAll = false
			return m, nil
		}
		m.notice = notice{}
		return m, nil
	case m.drag.Active():
		// Keys other than cancel wait for the gesture to finish.
		return m, nil
	case key.Matches(msg, m.keys.toggleHelp):
		m.help.ShowAll = !m.help.ShowAll
		return m, nil
	case key.Matches(msg, m.keys.reload):
		m.status = "reloading..."
		return m, m.loadBoardCmd()
	case key.Matches(msg, m.keys.reloadConfig):
		return m, m.reloadConfigCmd()
	case key.Matches(msg, m.keys.moveLeft):
		m.selectedColumn = clamp(m.selectedColumn-1, 0, len(domain.WorkflowStates)-1)
		m.clampSelections()
		return m, nil
	case key.Matches(msg, m.keys.moveRight):
		m.selectedColumn = clamp(m.selectedColumn+1, 0, len(domain.WorkflowStates)-1)
		m.clampSelections()
		return m, nil
	case key.Matches(msg, m.keys.moveUp):
		m.selectedTask--
		m.clampSelections()
		return m, nil
	case key.Matches(msg, m.keys.moveDown):
		m.selectedTask++
		m.clampSelections()
		return m, nil
	case key.Matches(msg, m.keys.addTask):
		return m, m.openForm(nil)
	case key.Matches(msg, m.keys.editTask):
		task, ok := m.selectedTaskValue()
		if !ok {
			return m, nil
		}
		return m, m.openForm(&task)
	case key.Matches(msg, m.keys.taskInfo):
		if task, ok := m.selectedTaskValue(); ok {
			m.mode = modeTaskInfo
			m.infoID = task.ID
		}
		return m, nil
	case key.Matches(msg, m.keys.deleteTask):
		if task, ok := m.selectedTaskValue(); ok {
			m.mode = modeConfirmDelete
			m.confirmID = task.ID
		}
		return m, nil
	case key.Matches(msg, m.keys.moveTaskLeft):
		return m.moveSelectedTask(-1)
	case key.Matches(msg, m.keys.moveTaskRight):
		return m.moveSelectedTask(1)
	case key.Matches(msg, m.keys.cyclePriority):
		task, ok := m.selectedTaskValue()
		if !ok {
			return m, nil
		}
		task.Priority = task.Priority.Next()
		return m, m.upsertCmd(task)
	case key.Matches(msg, m.keys.copyTask):
		if task, ok := m.selectedTaskValue(); ok {
			return m, m.copyTaskCmd(task)
		}
		return m, nil
	default:
		return m, nil
	}
}

func (m Model) handleConfirmKey(msg tea.KeyPressMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "y", "enter":
		id := m.confirmID
		m.mode = modeNone
		m.confirmID = ""
		task, ok := m.board.Task(id)
		if !ok {
			return m, nil
		}
		m.status = "deleting..."
		return m, m.removeCmd(task)
	case "n", "esc", "q":
		m.mode = modeNone
		m.confirmID = ""
		m.status = "delete cancelled"
	}
	return m, nil
}

func (m Model) handleInfoKey(msg tea.KeyPressMsg) (tea.Model, tea.Cmd) {
	task, ok := m.board.Task(m.infoID)
	if !ok {
		m.mode = modeNone
		m.infoID = ""
		return m, nil
	}
	switch {
	case key.Matches(msg, m.keys.cancel), key.Matches(msg, m.keys.taskInfo), msg.String() == "q":
		m.mode = modeNone
		m.infoID = ""
		return m, nil
	case key.Matches(msg, m.keys.editTask):
		m.infoID = ""
		return m, m.openForm(&task)
	case key.Matches(msg, m.keys.copyTask):
		return m, m.copyTaskCmd(task)
	}
	return m, nil
}

// moveSelectedTask requests a transition of the selected task one column to
// the left (dir < 0) or right.
func (m Model) moveSelectedTask(dir int) (tea.Model, tea.Cmd) {
	task, ok := m.selectedTaskValue()
	if !ok {
		return m, nil
	}
	to := task.State.Next()
	if dir < 0 {
		to = task.State.Prev()
	}
	if to == task.State {
		return m, nil
	}
	tr, err := m.board.RequestTransition(task.ID, to)
	if err != nil {
		m.setError("move failed", err)
		return m, nil
	}
	m.status = fmt.Sprintf("moving %q to %s", task.Title, to.Label())
	m.followTask(task.ID)
	return m, persistCmd(tr)
}

func (m Model) handleMouseClick(msg tea.MouseClickMsg) (tea.Model, tea.Cmd) {
	if m.mode != modeNone || m.help.ShowAll || msg.Button != tea.MouseLeft {
		return m, nil
	}
	col, idx, ok := m.cardAt(msg.X, msg.Y)
	if col >= 0 {
		m.selectedColumn = col
	}
	if !ok {
		m.clampSelections()
		return m, nil
	}
	m.selectedTask = idx
	m.clampSelections()
	task, found := m.selectedTaskValue()
	if !found {
		return m, nil
	}
	out := m.drag.Press(task.ID, gesture.Point{X: msg.X, Y: msg.Y}, gesture.Pointer, m.now())
	return m.applyOutcome(out)
}

func (m Model) handleMouseMotion(msg tea.MouseMotionMsg) (tea.Model, tea.Cmd) {
	if !m.drag.Active() {
		return m, nil
	}
	out := m.drag.Move(gesture.Point{X: msg.X, Y: msg.Y}, m.now())
	return m.applyOutcome(out)
}

func (m Model) handleMouseRelease(msg tea.MouseReleaseMsg) (tea.Model, tea.Cmd) {
	if !m.drag.Active() {
		return m, nil
	}
	out := m.drag.Release(gesture.Point{X: msg.X, Y: msg.Y}, m.now())
	return m.applyOutcome(out)
}

func (m Model) handleMouseWheel(msg tea.MouseWheelMsg) (tea.Model, tea.Cmd) {
	if m.mode != modeNone || m.drag.Active() {
		return m, nil
	}
	if col, _, _ := m.cardAt(msg.X, msg.Y); col >= 0 {
		m.selectedColumn = col
	}
	switch msg.Button {
	case tea.MouseWheelUp:
		m.selectedTask--
	case tea.MouseWheelDown:
		m.selectedTask++
	}
	m.clampSelections()
	return m, nil
}

// applyOutcome turns a gesture outcome into status text and, for drops, the
// persistence command.
func (m Model) applyOutcome(out gesture.Outcome) (tea.Model, tea.Cmd) {
	switch out.Kind {
	case gesture.Activated, gesture.HoverChanged:
		if task, ok := m.board.Task(out.TaskID); ok {
			m.status = fmt.Sprintf("dragging %q", task.Title)
			if out.Target != "" {
				m.status += " → " + out.Target.Label()
			}
		}
	case gesture.Dropped:
		m.status = "moving to " + out.Target.Label()
		m.followTask(out.TaskID)
		return m, persistCmd(out.Transition)
	case gesture.Noop:
		m.status = "already in " + out.Target.Label()
	case gesture.Cancelled, gesture.Aborted:
		m.status = "drag cancelled"
	case gesture.Failed:
		m.setError("move failed", out.Err)
	}
	return m, nil
}

// setError shows err on the notice line.
func (m *Model) setError(prefix string, err error) {
	m.log.Warn(prefix, "err", err)
	m.status = ""
	m.notice = notice{text: prefix + ": " + errorText(err), isError: true}
}

// errorText unwraps the board's error types into short operator messages.
func errorText(err error) string {
	var validation *app.ValidationError
	if errors.As(err, &validation) {
		return validation.Error()
	}
	return err.Error()
}

func (m Model) selectedTaskValue() (domain.Task, bool) {
	tasks := m.columnTasks(m.selectedColumn)
	if m.selectedTask < 0 || m.selectedTask >= len(tasks) {
		return domain.Task{}, false
	}
	return tasks[m.selectedTask], true
}

func (m Model) columnTasks(col int) []domain.Task {
	if col < 0 || col >= len(domain.WorkflowStates) {
		return nil
	}
	return m.board.TasksInState(domain.WorkflowStates[col])
}

// followTask moves the selection to the task's current column and row.
func (m *Model) followTask(id domain.TaskID) {
	task, ok := m.board.Task(id)
	if !ok {
		m.clampSelections()
		return
	}
	m.selectedColumn = task.State.Index()
	for i, t := range m.columnTasks(m.selectedColumn) {
		if t.ID == id {
			m.selectedTask = i
			break
		}
	}
	m.clampSelections()
}

// clampSelections keeps the selection on an existing card and scrolls it into view.
func (m *Model) clampSelections() {
	m.selectedColumn = clamp(m.selectedColumn, 0, len(domain.WorkflowStates)-1)
	tasks := m.columnTasks(m.selectedColumn)
	if len(tasks) == 0 {
		m.selectedTask = 0
	} else {
		m.selectedTask = clamp(m.selectedTask, 0, len(tasks)-1)
	}
	visible := m.visibleCards()
	for col := range m.scroll {
		count := len(m.columnTasks(col))
		top := m.scroll[col]
		if col == m.selectedColumn && count > 0 {
			if m.selectedTask < top {
				top = m.selectedTask
			}
			if m.selectedTask >= top+visible {
				top = m.selectedTask - visible + 1
			}
		}
		m.scroll[col] = clamp(top, 0, max(0, count-visible))
	}
}

func (m Model) loadBoardCmd() tea.Cmd {
	board := m.board
	return func() tea.Msg {
		return boardLoadedMsg{err: board.Refresh(context.Background())}
	}
}

func persistCmd(tr *app.Transition) tea.Cmd {
	return func() tea.Msg {
		err := tr.Persist(context.Background())
		return transitionDoneMsg{taskID: tr.TaskID, to: tr.To, err: err}
	}
}

func (m Model) upsertCmd(task domain.Task) tea.Cmd {
	board := m.board
	return func() tea.Msg {
		saved, err := board.Upsert(context.Background(), task)
		return taskSavedMsg{task: saved, created: task.IsDraft(), err: err}
	}
}

func (m Model) submitCmd(draft app.TaskDraft) tea.Cmd {
	board := m.board
	return func() tea.Msg {
		saved, err := board.SubmitDraft(context.Background(), draft)
		return taskSavedMsg{task: saved, created: draft.ID == "", err: err}
	}
}

func (m Model) removeCmd(task domain.Task) tea.Cmd {
	board := m.board
	return func() tea.Msg {
		err := board.Remove(context.Background(), task.ID)
		return taskDeletedMsg{taskID: task.ID, title: task.Title, err: err}
	}
}

func (m Model) copyTaskCmd(task domain.Task) tea.Cmd {
	name, address := m.board.ClientInfo(task.ClientID)
	text := taskSummary(task, name, address, m.dateFormat)
	write := m.copyText
	return func() tea.Msg {
		return copiedMsg{err: write(text)}
	}
}

// reloadConfigCmd reloads runtime settings through the configured callback.
func (m Model) reloadConfigCmd() tea.Cmd {
	if m.reloadConfig == nil {
		return func() tea.Msg {
			return configReloadedMsg{err: fmt.Errorf("config reload callback is unavailable")}
		}
	}
	reload := m.reloadConfig
	return func() tea.Msg {
		cfg, err := reload()
		return configReloadedMsg{config: cfg, err: err}
	}
}

func waitForBoardChange(changes <-chan struct{}) tea.Cmd {
	return func() tea.Msg {
		<-changes
		return boardChangedMsg{}
	}
}

func refreshTick(every time.Duration, gen int) tea.Cmd {
	return tea.Tick(every, func(time.Time) tea.Msg {
		return refreshTickMsg{gen: gen}
	})
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
