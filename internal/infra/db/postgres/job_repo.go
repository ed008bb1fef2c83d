package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"

	"coaching-ai-engine/internal/domain"
	"coaching-ai-engine/internal/domain/model"
	"coaching-ai-engine/internal/domain/ports/repository"
)

var _ repository.JobRepository = (*JobRepo)(nil)

// JobRepo persists jobs. Records expire via expires_at: reads filter lapsed
// rows and cleanup is left to the store, never done by business logic.
type JobRepo struct {
	pool *pgxpool.Pool
}

func NewJobRepo(pool *pgxpool.Pool) *JobRepo {
	return &JobRepo{pool: pool}
}

const jobColumns = `id, tenant_id, user_id, topic_id, parameters, session_id, user_message,
  enrichment_token, status, result, error, error_code,
  created_at, started_at, completed_at, expires_at, estimated_duration_ms, processing_time_ms`

func (r *JobRepo) Save(ctx context.Context, qx repository.Tx, job *model.Job) error {
	params, err := json.Marshal(job.Parameters)
	if err != nil {
		return fmt.Errorf("marshal parameters: %w", err)
	}
	result, err := marshalNullable(job.Result)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}

	const q = `
INSERT INTO jobs (` + jobColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)
ON CONFLICT (id) DO UPDATE SET
  status = EXCLUDED.status,
  result = EXCLUDED.result,
  error = EXCLUDED.error,
  error_code = EXCLUDED.error_code,
  started_at = EXCLUDED.started_at,
  completed_at = EXCLUDED.completed_at,
  processing_time_ms = EXCLUDED.processing_time_ms;`

	_, err = execSQL(ctx, r.pool, qx, q,
		job.ID, job.TenantID, job.UserID, string(job.TopicID), params, job.SessionID, job.UserMessage,
		job.EnrichmentToken, string(job.Status), result, job.Error, job.ErrorCode,
		job.CreatedAt, job.StartedAt, job.CompletedAt, job.ExpiresAt, job.EstimatedDurationMs, job.ProcessingTimeMs)
	return err
}

func (r *JobRepo) FindByTenant(ctx context.Context, qx repository.Tx, tenantID, jobID string) (*model.Job, error) {
	const q = `
SELECT ` + jobColumns + `
FROM jobs
WHERE id = $1 AND tenant_id = $2 AND expires_at > NOW();`

	row, err := pickRow(ctx, r.pool, qx, q, jobID, tenantID)
	if err != nil {
		return nil, err
	}
	return scanJob(row)
}

func (r *JobRepo) ListByTenantUser(ctx context.Context, qx repository.Tx, tenantID, userID string, limit int) ([]*model.Job, error) {
	if limit <= 0 {
		limit = 20
	}
	const q = `
SELECT ` + jobColumns + `
FROM jobs
WHERE tenant_id = $1 AND user_id = $2 AND expires_at > NOW()
ORDER BY created_at DESC
LIMIT $3;`

	rows, err := pickRows(ctx, r.pool, qx, q, tenantID, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

// UpdateStatusIf is the compare-and-swap behind at-most-once execution:
// the write only lands if the stored status still equals `expected`, which
// closes the race between two consumers that both read `pending`.
func (r *JobRepo) UpdateStatusIf(ctx context.Context, qx repository.Tx, job *model.Job, expected model.JobStatus) error {
	result, err := marshalNullable(job.Result)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}

	const q = `
UPDATE jobs SET
  status = $1, result = $2, error = $3, error_code = $4,
  started_at = $5, completed_at = $6, processing_time_ms = $7
WHERE id = $8 AND status = $9;`

	tag, err := execSQL(ctx, r.pool, qx, q,
		string(job.Status), result, job.Error, job.ErrorCode,
		job.StartedAt, job.CompletedAt, job.ProcessingTimeMs,
		job.ID, string(expected))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return r.classifyMiss(ctx, qx, job.ID)
	}
	return nil
}

// classifyMiss distinguishes "gone" from "someone else transitioned first".
func (r *JobRepo) classifyMiss(ctx context.Context, qx repository.Tx, jobID string) error {
	row, err := pickRow(ctx, r.pool, qx, `SELECT status FROM jobs WHERE id = $1;`, jobID)
	if err != nil {
		return err
	}
	var status string
	if err := row.Scan(&status); err != nil {
		return asNotFound(err)
	}
	return fmt.Errorf("%w: job %s is %s", domain.ErrStatusConflict, jobID, status)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanJob(row rowScanner) (*model.Job, error) {
	var (
		j           model.Job
		topicID     string
		statusStr   string
		paramsRaw   []byte
		resultRaw   []byte
		startedAt   *time.Time
		completedAt *time.Time
	)
	err := row.Scan(
		&j.ID, &j.TenantID, &j.UserID, &topicID, &paramsRaw, &j.SessionID, &j.UserMessage,
		&j.EnrichmentToken, &statusStr, &resultRaw, &j.Error, &j.ErrorCode,
		&j.CreatedAt, &startedAt, &completedAt, &j.ExpiresAt, &j.EstimatedDurationMs, &j.ProcessingTimeMs,
	)
	if err != nil {
		return nil, asNotFound(err)
	}
	j.TopicID = model.TopicID(topicID)
	j.Status = model.JobStatus(statusStr)
	j.StartedAt = startedAt
	j.CompletedAt = completedAt
	if len(paramsRaw) > 0 {
		if err := json.Unmarshal(paramsRaw, &j.Parameters); err != nil {
			return nil, fmt.Errorf("decode parameters: %w", err)
		}
	}
	if len(resultRaw) > 0 {
		if err := json.Unmarshal(resultRaw, &j.Result); err != nil {
			return nil, fmt.Errorf("decode result: %w", err)
		}
	}
	return &j, nil
}

func marshalNullable(m map[string]any) ([]byte, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}

// PurgeExpired removes rows whose TTL lapsed. Reads already filter these
// out, so deletion is purely a retention concern and never runs inside
// business logic.
func (r *JobRepo) PurgeExpired(ctx context.Context) (int64, error) {
	tag, err := execSQL(ctx, r.pool, nil, `DELETE FROM jobs WHERE expires_at <= NOW();`)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
