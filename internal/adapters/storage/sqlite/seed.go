package sqlite

import (
	"context"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/hylla/agenda/internal/domain"
)

// Seed is the YAML document used to populate an empty store.
type Seed struct {
	Clients []SeedClient `yaml:"clients"`
	Tasks   []SeedTask   `yaml:"tasks"`
}

// SeedClient is one client entry in a seed file.
type SeedClient struct {
	ID      string `yaml:"id"`
	Name    string `yaml:"name"`
	Address string `yaml:"address"`
}

// SeedTask is one task entry in a seed file.
type SeedTask struct {
	Title       string `yaml:"title"`
	Description string `yaml:"description"`
	State       string `yaml:"state"`
	Priority    int    `yaml:"priority"`
	Client      string `yaml:"client"`
	Date        string `yaml:"date"`
}

// LoadSeed reads and decodes a seed file.
func LoadSeed(path string) (Seed, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return Seed{}, fmt.Errorf("read seed file: %w", err)
	}
	var seed Seed
	if err := yaml.Unmarshal(content, &seed); err != nil {
		return Seed{}, fmt.Errorf("decode seed yaml: %w", err)
	}
	return seed, nil
}

// ApplySeed upserts every seed client. Seed tasks are inserted only into an
// empty task table so that restarts do not duplicate them.
func (r *Repository) ApplySeed(ctx context.Context, seed Seed) (clients, tasks int, err error) {
	for idx, sc := range seed.Clients {
		c, err := domain.NewClient(domain.ClientID(sc.ID), sc.Name, sc.Address)
		if err != nil {
			return clients, tasks, fmt.Errorf("seed clients[%d]: %w", idx, err)
		}
		if err := r.UpsertClient(ctx, c); err != nil {
			return clients, tasks, fmt.Errorf("seed clients[%d]: %w", idx, err)
		}
		clients++
	}

	existing, err := r.ListTasks(ctx)
	if err != nil {
		return clients, tasks, err
	}
	if len(existing) > 0 {
		return clients, tasks, nil
	}
	for idx, st := range seed.Tasks {
		task, err := st.toTask()
		if err != nil {
			return clients, tasks, fmt.Errorf("seed tasks[%d]: %w", idx, err)
		}
		if _, err := r.CreateTask(ctx, task); err != nil {
			return clients, tasks, fmt.Errorf("seed tasks[%d]: %w", idx, err)
		}
		tasks++
	}
	return clients, tasks, nil
}

func (st SeedTask) toTask() (domain.Task, error) {
	var state domain.WorkflowState
	if strings.TrimSpace(st.State) != "" {
		parsed, err := domain.ParseWorkflowState(st.State)
		if err != nil {
			return domain.Task{}, err
		}
		state = parsed
	}
	date, err := domain.ParseDate(st.Date)
	if err != nil {
		return domain.Task{}, fmt.Errorf("date %q: %w", st.Date, err)
	}
	return domain.NewTask(domain.TaskInput{
		Title:         st.Title,
		Description:   st.Description,
		State:         state,
		Priority:      domain.Priority(st.Priority),
		ClientID:      domain.ClientID(st.Client),
		ScheduledDate: date,
	})
}
