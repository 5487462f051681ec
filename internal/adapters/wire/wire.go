// Package wire maps board types to the task store's JSON representation.
package wire

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hylla/agenda/internal/domain"
)

// Store status values.
const (
	StatusOpen       = "EM_ABERTO"
	StatusInProgress = "EM_ANDAMENTO"
	StatusDone       = "FINALIZADO"
)

// ErrUnknownStatus reports a status outside the three store values.
var ErrUnknownStatus = errors.New("unknown status")

var stateByStatus = map[string]domain.WorkflowState{
	StatusOpen:       domain.StateOpen,
	StatusInProgress: domain.StateInProgress,
	StatusDone:       domain.StateDone,
}

// StateFromStatus maps a store status to a workflow state.
func StateFromStatus(status string) (domain.WorkflowState, error) {
	state, ok := stateByStatus[strings.TrimSpace(status)]
	if !ok {
		return "", fmt.Errorf("%w %q", ErrUnknownStatus, status)
	}
	return state, nil
}

// StatusFromState maps a workflow state to its store status.
func StatusFromState(state domain.WorkflowState) (string, error) {
	for status, s := range stateByStatus {
		if s == state {
			return status, nil
		}
	}
	return "", fmt.Errorf("%w: %q", domain.ErrInvalidWorkflowState, state)
}

// ID is a store identifier that may travel as a JSON number or string.
// Identifiers made only of digits are written back as numbers.
type ID string

// UnmarshalJSON accepts numbers, strings and null.
func (id *ID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case bytes.Equal(b, []byte("null")):
		*id = ""
		return nil
	case len(b) > 0 && b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	default:
		var n json.Number
		if err := json.Unmarshal(b, &n); err != nil {
			return fmt.Errorf("decode id: %w", err)
		}
		*id = ID(n.String())
		return nil
	}
}

// MarshalJSON writes numeric ids as numbers and everything else as strings.
func (id ID) MarshalJSON() ([]byte, error) {
	if isCanonicalInt(string(id)) {
		return []byte(id), nil
	}
	return json.Marshal(string(id))
}

func isCanonicalInt(s string) bool {
	if s == "" || len(s) > 18 {
		return false
	}
	if len(s) > 1 && s[0] == '0' {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// Task is the store's task representation.
type Task struct {
	ID            ID     `json:"id,omitempty"`
	Title         string `json:"titulo"`
	Description   string `json:"descricao"`
	Status        string `json:"status"`
	Priority      int    `json:"prioridade"`
	ClientID      ID     `json:"clienteId"`
	ScheduledDate string `json:"dataServico"`
	// Read-only enrichment some stores include.
	ClientName    string `json:"clienteNome,omitempty"`
	ClientAddress string `json:"clienteEndereco,omitempty"`
}

// FromTask converts a board task into its store representation.
func FromTask(task domain.Task) (Task, error) {
	status, err := StatusFromState(task.State)
	if err != nil {
		return Task{}, err
	}
	out := Task{
		ID:          ID(task.ID),
		Title:       task.Title,
		Description: task.Description,
		Status:      status,
		Priority:    int(task.Priority),
		ClientID:    ID(task.ClientID),
	}
	if !task.ScheduledDate.IsZero() {
		out.ScheduledDate = task.ScheduledDate.Format(domain.DateLayout)
	}
	return out, nil
}

// ToTask converts a store task into a board task. Unknown statuses fail; a
// missing priority reads as Medium.
func (t Task) ToTask() (domain.Task, error) {
	state, err := StateFromStatus(t.Status)
	if err != nil {
		return domain.Task{}, fmt.Errorf("task %s: %w", t.ID, err)
	}
	priority := domain.Priority(t.Priority)
	if priority == domain.PriorityUnset {
		priority = domain.PriorityMedium
	}
	if !priority.Valid() {
		return domain.Task{}, fmt.Errorf("task %s: %w %d", t.ID, domain.ErrInvalidPriority, t.Priority)
	}
	var date time.Time
	if raw := strings.TrimSpace(t.ScheduledDate); raw != "" {
		// Some stores send full timestamps; only the calendar day matters.
		if len(raw) > len(domain.DateLayout) {
			raw = raw[:len(domain.DateLayout)]
		}
		date, err = domain.ParseDate(raw)
		if err != nil {
			return domain.Task{}, fmt.Errorf("task %s: %w %q", t.ID, err, t.ScheduledDate)
		}
	}
	return domain.Task{
		ID:            domain.TaskID(t.ID),
		Title:         t.Title,
		Description:   t.Description,
		State:         state,
		Priority:      priority,
		ClientID:      domain.ClientID(t.ClientID),
		ScheduledDate: date,
	}, nil
}

// Client is the client directory's representation. Both the English and the
// legacy Portuguese field names are accepted on decode.
type Client struct {
	ID      ID     `json:"id"`
	Name    string `json:"name"`
	Address string `json:"address"`
}

// UnmarshalJSON implements json.Unmarshaler.
func (c *Client) UnmarshalJSON(b []byte) error {
	var raw struct {
		ID       ID     `json:"id"`
		Name     string `json:"name"`
		Nome     string `json:"nome"`
		Address  string `json:"address"`
		Endereco string `json:"endereco"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	c.ID = raw.ID
	c.Name = firstNonEmpty(raw.Name, raw.Nome)
	c.Address = firstNonEmpty(raw.Address, raw.Endereco)
	return nil
}

// FromClient converts a directory entry into its wire form.
func FromClient(c domain.Client) Client {
	return Client{ID: ID(c.ID), Name: c.Name, Address: c.Address}
}

// ToClient converts the wire form into a directory entry.
func (c Client) ToClient() (domain.Client, error) {
	return domain.NewClient(domain.ClientID(c.ID), c.Name, c.Address)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
