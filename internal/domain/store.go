package domain

import (
	"context"
	"time"
)

// Project is a registered project the agent can be pointed at.
type Project struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Path      string    `json:"path"`
	CreatedAt time.Time `json:"created_at"`
}

// Store is the durable state contract. Every status transition is
// persisted through it before being reported to any caller. Writes are
// atomic: a reader never observes a partially written record.
type Store interface {
	SaveExecution(ctx context.Context, e *WorkflowExecution) error
	GetExecution(ctx context.Context, id string) (*WorkflowExecution, error)
	// ListExecutions returns executions for a project (all projects when
	// projectID is empty), sorted by last-updated descending.
	ListExecutions(ctx context.Context, projectID string) ([]*WorkflowExecution, error)

	SaveOrchestration(ctx context.Context, o *OrchestrationExecution) error
	GetOrchestration(ctx context.Context, id string) (*OrchestrationExecution, error)
	ListOrchestrations(ctx context.Context, projectID string) ([]*OrchestrationExecution, error)

	CreateProject(ctx context.Context, p *Project) error
	GetProject(ctx context.Context, id string) (*Project, error)
	ListProjects(ctx context.Context) ([]*Project, error)

	Close() error
}
