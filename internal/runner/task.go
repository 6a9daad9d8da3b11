package runner

import (
	"context"
	"sort"
	"time"
)

// Task is a unit of scheduled work.
type Task interface {
	// Name returns the unique name of the task
	Name() string

	// Schedule returns the cron expression, seconds field first
	Schedule() string

	Run(ctx context.Context) error

	// Timeout bounds a single run
	Timeout() time.Duration
}

// TaskRegistry holds the tasks a Runner schedules.
type TaskRegistry struct {
	tasks map[string]Task
}

func NewTaskRegistry() *TaskRegistry {
	return &TaskRegistry{
		tasks: make(map[string]Task),
	}
}

// Register adds task, replacing any task with the same name.
func (r *TaskRegistry) Register(task Task) {
	r.tasks[task.Name()] = task
}

func (r *TaskRegistry) Get(name string) (Task, bool) {
	task, exists := r.tasks[name]
	return task, exists
}

// Names returns the registered task names in order.
func (r *TaskRegistry) Names() []string {
	names := make([]string, 0, len(r.tasks))
	for name := range r.tasks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
