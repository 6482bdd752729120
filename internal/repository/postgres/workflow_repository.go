package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/fieldline/automation-engine/internal/models"
	"github.com/google/uuid"
)

// WorkflowRepository handles workflow database operations
type WorkflowRepository struct {
	db *sql.DB
}

// NewWorkflowRepository creates a new workflow repository
func NewWorkflowRepository(db *sql.DB) *WorkflowRepository {
	return &WorkflowRepository{db: db}
}

// CreateWorkflow creates a new workflow
func (r *WorkflowRepository) CreateWorkflow(ctx context.Context, workflow *models.Workflow) error {
	query := `
		INSERT INTO workflows (id, name, description, definition, active)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at`

	err := r.db.QueryRowContext(
		ctx, query,
		workflow.ID, workflow.Name, workflow.Description,
		workflow.Definition, workflow.Active,
	).Scan(&workflow.CreatedAt, &workflow.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to create workflow: %w", err)
	}

	return nil
}

// UpdateWorkflow updates a workflow
func (r *WorkflowRepository) UpdateWorkflow(ctx context.Context, workflow *models.Workflow) error {
	query := `
		UPDATE workflows
		SET name = $2,
		    description = $3,
		    definition = $4,
		    active = $5,
		    updated_at = NOW()
		WHERE id = $1`

	result, err := r.db.ExecContext(
		ctx, query,
		workflow.ID, workflow.Name, workflow.Description,
		workflow.Definition, workflow.Active,
	)
	if err != nil {
		return fmt.Errorf("failed to update workflow: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("workflow not found")
	}

	return nil
}

// GetWorkflowByID retrieves a workflow by ID
func (r *WorkflowRepository) GetWorkflowByID(ctx context.Context, id uuid.UUID) (*models.Workflow, error) {
	workflow := &models.Workflow{}
	query := `
		SELECT id, name, description, definition, active, created_at, updated_at
		FROM workflows
		WHERE id = $1`

	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&workflow.ID, &workflow.Name, &workflow.Description,
		&workflow.Definition, &workflow.Active,
		&workflow.CreatedAt, &workflow.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("workflow not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get workflow: %w", err)
	}

	return workflow, nil
}

// ListActiveWorkflows returns every active workflow. The detector calls this
// on each mutation event.
func (r *WorkflowRepository) ListActiveWorkflows(ctx context.Context) ([]models.Workflow, error) {
	query := `
		SELECT id, name, description, definition, active, created_at, updated_at
		FROM workflows
		WHERE active = true
		ORDER BY created_at`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list active workflows: %w", err)
	}
	defer rows.Close()

	return scanWorkflows(rows)
}

// ListWorkflows returns workflows with pagination
func (r *WorkflowRepository) ListWorkflows(ctx context.Context, active *bool, limit, offset int) ([]models.Workflow, int64, error) {
	countQuery := `SELECT COUNT(*) FROM workflows WHERE ($1::boolean IS NULL OR active = $1)`

	var total int64
	if err := r.db.QueryRowContext(ctx, countQuery, active).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count workflows: %w", err)
	}

	query := `
		SELECT id, name, description, definition, active, created_at, updated_at
		FROM workflows
		WHERE ($1::boolean IS NULL OR active = $1)
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`

	rows, err := r.db.QueryContext(ctx, query, active, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list workflows: %w", err)
	}
	defer rows.Close()

	workflows, err := scanWorkflows(rows)
	if err != nil {
		return nil, 0, err
	}

	return workflows, total, nil
}

// DeleteWorkflow deletes a workflow
func (r *WorkflowRepository) DeleteWorkflow(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM workflows WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete workflow: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("workflow not found")
	}

	return nil
}

func scanWorkflows(rows *sql.Rows) ([]models.Workflow, error) {
	var workflows []models.Workflow
	for rows.Next() {
		var workflow models.Workflow
		if err := rows.Scan(
			&workflow.ID, &workflow.Name, &workflow.Description,
			&workflow.Definition, &workflow.Active,
			&workflow.CreatedAt, &workflow.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan workflow: %w", err)
		}
		workflows = append(workflows, workflow)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate workflows: %w", err)
	}

	return workflows, nil
}
