package engine

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"

	"taskqueue/internal/apperr"
	"taskqueue/internal/domain"
	"taskqueue/internal/events"
	"taskqueue/internal/repo"
)

// Engine applies the project and task lifecycle rules to the collection held by
// Store. Every mutating call reloads the store, validates, mutates and saves.
// Calls on engines sharing the same mutex are serialized; nothing protects the
// store from other processes, where the last writer wins.
type Engine struct {
	Store  repo.Store
	Events events.Sink
	IDs    IDGenerator
	Logger *slog.Logger

	mu *sync.Mutex
}

func New(store repo.Store) Engine {
	return Engine{
		Store:  store,
		Events: events.LogSink{},
		IDs:    SequentialIDs{},
		Logger: slog.New(slog.DiscardHandler),
		mu:     &sync.Mutex{},
	}
}

func (e Engine) lock() func() {
	if e.mu == nil {
		return func() {}
	}
	e.mu.Lock()
	return e.mu.Unlock
}

func (e Engine) logger() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return slog.New(slog.DiscardHandler)
}

func (e Engine) ids() IDGenerator {
	if e.IDs != nil {
		return e.IDs
	}
	return SequentialIDs{}
}

func (e Engine) load(ctx context.Context) (*domain.Collection, error) {
	c, err := e.Store.Load(ctx)
	if err != nil {
		e.logger().WarnContext(ctx, "load store", "error", err)
		return nil, err
	}
	return c, nil
}

func (e Engine) save(ctx context.Context, c *domain.Collection) error {
	if err := e.Store.Save(ctx, c); err != nil {
		e.logger().WarnContext(ctx, "save store", "error", err)
		return err
	}
	return nil
}

// emit records an event. The store has already been written, so a failing sink
// is logged and otherwise ignored.
func (e Engine) emit(ctx context.Context, rec events.Record) {
	if e.Events == nil {
		return
	}
	if err := e.Events.Append(ctx, rec); err != nil {
		e.logger().WarnContext(ctx, "append event", "type", rec.Type, "error", err)
	}
}

func projectAt(c *domain.Collection, projectID string) (*domain.Project, error) {
	if strings.TrimSpace(projectID) == "" {
		return nil, apperr.New(apperr.MissingParameter, "projectId is required")
	}
	i := c.ProjectIndex(projectID)
	if i < 0 {
		return nil, apperr.New(apperr.ProjectNotFound, "project %s not found", projectID).With("project_id", projectID)
	}
	return &c.Projects[i], nil
}

func taskAt(p *domain.Project, taskID string) (*domain.Task, error) {
	if strings.TrimSpace(taskID) == "" {
		return nil, apperr.New(apperr.MissingParameter, "taskId is required")
	}
	i := p.TaskIndex(taskID)
	if i < 0 {
		return nil, apperr.New(apperr.TaskNotFound, "task %s not found in project %s", taskID, p.ProjectID).
			With("project_id", p.ProjectID).With("task_id", taskID)
	}
	return &p.Tasks[i], nil
}

// IDGenerator assigns store-wide unique identifiers.
type IDGenerator interface {
	ProjectID(c *domain.Collection) string
	TaskID(c *domain.Collection) string
}

// SequentialIDs numbers projects proj-N and tasks task-N, one past the highest
// number present in the store.
type SequentialIDs struct{}

func (SequentialIDs) ProjectID(c *domain.Collection) string {
	max := 0
	for _, p := range c.Projects {
		max = maxSuffix(max, p.ProjectID, "proj-")
	}
	return "proj-" + strconv.Itoa(max+1)
}

func (SequentialIDs) TaskID(c *domain.Collection) string {
	max := 0
	for _, p := range c.Projects {
		for _, t := range p.Tasks {
			max = maxSuffix(max, t.ID, "task-")
		}
	}
	return "task-" + strconv.Itoa(max+1)
}

func maxSuffix(cur int, id, prefix string) int {
	rest, ok := strings.CutPrefix(id, prefix)
	if !ok {
		return cur
	}
	n, err := strconv.Atoi(rest)
	if err != nil || n <= cur {
		return cur
	}
	return n
}

// UUIDIDs assigns random identifiers, for stores shared by several writers.
type UUIDIDs struct{}

func (UUIDIDs) ProjectID(*domain.Collection) string { return "proj-" + uuid.NewString() }
func (UUIDIDs) TaskID(*domain.Collection) string    { return "task-" + uuid.NewString() }
