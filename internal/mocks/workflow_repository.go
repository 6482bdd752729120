package mocks

import (
	"context"
	"fmt"
	"sync"

	"github.com/fieldline/automation-engine/internal/models"
	"github.com/google/uuid"
)

// WorkflowRepository is an in-memory workflow store for tests.
type WorkflowRepository struct {
	mu        sync.RWMutex
	workflows map[uuid.UUID]*models.Workflow
}

// NewWorkflowRepository creates a new in-memory workflow repository
func NewWorkflowRepository() *WorkflowRepository {
	return &WorkflowRepository{
		workflows: make(map[uuid.UUID]*models.Workflow),
	}
}

// AddWorkflow stores a workflow
func (r *WorkflowRepository) AddWorkflow(wf *models.Workflow) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.workflows[wf.ID] = wf
}

// GetWorkflowByID retrieves a workflow by ID
func (r *WorkflowRepository) GetWorkflowByID(ctx context.Context, id uuid.UUID) (*models.Workflow, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	wf, ok := r.workflows[id]
	if !ok {
		return nil, fmt.Errorf("workflow not found: %s", id)
	}

	copied := *wf
	return &copied, nil
}

// ListActiveWorkflows returns all active workflows
func (r *WorkflowRepository) ListActiveWorkflows(ctx context.Context) ([]models.Workflow, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var active []models.Workflow
	for _, wf := range r.workflows {
		if wf.Active {
			active = append(active, *wf)
		}
	}
	return active, nil
}
