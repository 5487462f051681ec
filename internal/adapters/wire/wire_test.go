package wire

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hylla/agenda/internal/domain"
)

func TestStatusMapping(t *testing.T) {
	for status, state := range map[string]domain.WorkflowState{
		"EM_ABERTO":    domain.StateOpen,
		"EM_ANDAMENTO": domain.StateInProgress,
		"FINALIZADO":   domain.StateDone,
	} {
		got, err := StateFromStatus(status)
		require.NoError(t, err)
		assert.Equal(t, state, got)

		back, err := StatusFromState(state)
		require.NoError(t, err)
		assert.Equal(t, status, back)
	}

	_, err := StateFromStatus("CANCELADO")
	assert.True(t, errors.Is(err, ErrUnknownStatus))
	_, err = StatusFromState("BLOCKED")
	assert.True(t, errors.Is(err, domain.ErrInvalidWorkflowState))
}

func TestDecodeTaskWithNumericIDs(t *testing.T) {
	payload := `{"id":17,"titulo":"Limpeza","descricao":"","status":"EM_ANDAMENTO","prioridade":1,"clienteId":3,"dataServico":"2026-06-01"}`
	var dto Task
	require.NoError(t, json.Unmarshal([]byte(payload), &dto))

	task, err := dto.ToTask()
	require.NoError(t, err)
	assert.Equal(t, domain.TaskID("17"), task.ID)
	assert.Equal(t, domain.ClientID("3"), task.ClientID)
	assert.Equal(t, domain.StateInProgress, task.State)
	assert.Equal(t, domain.PriorityHigh, task.Priority)
	assert.Equal(t, time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC), task.ScheduledDate)
}

func TestDecodeTaskRejectsUnknownStatus(t *testing.T) {
	dto := Task{ID: "1", Title: "x", Status: "PAUSADO", ClientID: "1", ScheduledDate: "2026-06-01"}
	_, err := dto.ToTask()
	assert.ErrorIs(t, err, ErrUnknownStatus)
}

func TestDecodeTaskAcceptsTimestampDate(t *testing.T) {
	dto := Task{ID: "a", Title: "x", Status: StatusDone, ClientID: "c", ScheduledDate: "2026-06-01T00:00:00Z"}
	task, err := dto.ToTask()
	require.NoError(t, err)
	assert.Equal(t, 1, task.ScheduledDate.Day())
	assert.Equal(t, domain.PriorityMedium, task.Priority)
}

func TestEncodeTaskUsesStoreFieldNames(t *testing.T) {
	dto, err := FromTask(domain.Task{
		ID:            "5",
		Title:         "Pintura",
		State:         domain.StateInProgress,
		Priority:      domain.PriorityLow,
		ClientID:      "c-9",
		ScheduledDate: time.Date(2026, 7, 4, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	b, err := json.Marshal(dto)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":5,"titulo":"Pintura","descricao":"","status":"EM_ANDAMENTO","prioridade":3,"clienteId":"c-9","dataServico":"2026-07-04"}`, string(b))
}

func TestEncodeDraftOmitsID(t *testing.T) {
	dto, err := FromTask(domain.Task{Title: "x", State: domain.StateOpen, Priority: domain.PriorityMedium, ClientID: "1"})
	require.NoError(t, err)
	b, err := json.Marshal(dto)
	require.NoError(t, err)
	assert.NotContains(t, string(b), `"id"`)
}

func TestIDMarshal(t *testing.T) {
	cases := map[ID]string{
		"12":        `12`,
		"0":         `0`,
		"007":       `"007"`,
		"a1":        `"a1"`,
		"123456789": `123456789`,
	}
	for id, want := range cases {
		b, err := json.Marshal(id)
		require.NoError(t, err)
		assert.Equal(t, want, string(b), "id %q", id)
	}
	var id ID
	require.NoError(t, json.Unmarshal([]byte(`null`), &id))
	assert.Equal(t, ID(""), id)
	assert.Error(t, json.Unmarshal([]byte(`true`), &id))
}

func TestDecodeClientLegacyNames(t *testing.T) {
	var clients []Client
	require.NoError(t, json.Unmarshal([]byte(`[
		{"id":1,"name":"Padaria","address":"Rua A"},
		{"id":"2","nome":"Oficina","endereco":"Rua B"}
	]`), &clients))
	require.Len(t, clients, 2)
	assert.Equal(t, Client{ID: "1", Name: "Padaria", Address: "Rua A"}, clients[0])
	assert.Equal(t, Client{ID: "2", Name: "Oficina", Address: "Rua B"}, clients[1])

	c, err := clients[1].ToClient()
	require.NoError(t, err)
	assert.Equal(t, domain.ClientID("2"), c.ID)
}
