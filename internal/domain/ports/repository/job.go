package repository

import (
	"context"

	"coaching-ai-engine/internal/domain/model"
)

type JobRepository interface {
	Save(ctx context.Context, qx Tx, job *model.Job) error
	// FindByTenant is the tenant-scoped read: an id owned by another
	// tenant yields domain.ErrNotFound, not the record.
	FindByTenant(ctx context.Context, qx Tx, tenantID, jobID string) (*model.Job, error)
	// ListByTenantUser returns a tenant+user's jobs, most recent first.
	ListByTenantUser(ctx context.Context, qx Tx, tenantID, userID string, limit int) ([]*model.Job, error)
	// UpdateStatusIf writes the job's current fields conditional on the
	// stored status still being `expected`. domain.ErrStatusConflict is
	// returned when another consumer won the transition; this is the
	// compare-and-swap that makes duplicate delivery handling airtight.
	UpdateStatusIf(ctx context.Context, qx Tx, job *model.Job, expected model.JobStatus) error
}
