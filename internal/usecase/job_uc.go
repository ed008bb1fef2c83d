// File: internal/usecase/job_uc.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"coaching-ai-engine/internal/domain"
	"coaching-ai-engine/internal/domain/model"
	"coaching-ai-engine/internal/domain/ports/adapter"
	"coaching-ai-engine/internal/domain/ports/repository"
	"coaching-ai-engine/internal/infra/logging"
	"coaching-ai-engine/internal/infra/metrics"
	"coaching-ai-engine/internal/infra/security"
)

// Compile-time check
var _ JobOrchestrator = (*jobUC)(nil)

// JobOrchestrator owns the job lifecycle across the two invocation
// boundaries: creation (synchronous, validated, acknowledged immediately)
// and execution (triggered out of band by a bus event).
type JobOrchestrator interface {
	CreateJob(ctx context.Context, tenantID, userID string, topicID model.TopicID, params map[string]string) (*model.Job, error)
	CreateTurnJob(ctx context.Context, tenantID, userID, sessionID, userMessage string) (*model.Job, error)
	// ExecuteJobFromEvent is the idempotent consumer of trigger events.
	// Duplicate deliveries observe a non-pending status and no-op.
	ExecuteJobFromEvent(ctx context.Context, jobID, tenantID string) error
	GetJob(ctx context.Context, tenantID, jobID string) (*model.Job, error)
	ListJobs(ctx context.Context, tenantID, userID string, limit int) ([]*model.Job, error)
}

// TurnExecutor is the slice of the conversation engine the orchestrator
// needs to run one dialogue turn as a job.
type TurnExecutor interface {
	ExecuteTurn(ctx context.Context, job *model.Job) (map[string]any, error)
	SessionTopic(ctx context.Context, tenantID, sessionID string) (model.TopicID, error)
}

type jobUC struct {
	jobs   repository.JobRepository
	bus    adapter.EventBus
	gen    adapter.TextGenerator
	tokens *security.JobTokenService
	turns  TurnExecutor
	jobTTL time.Duration
	log    *zerolog.Logger
}

func NewJobOrchestrator(
	jobs repository.JobRepository,
	bus adapter.EventBus,
	gen adapter.TextGenerator,
	tokens *security.JobTokenService,
	turns TurnExecutor,
	jobTTL time.Duration,
	log *zerolog.Logger,
) *jobUC {
	if jobTTL <= 0 {
		jobTTL = 24 * time.Hour
	}
	return &jobUC{jobs: jobs, bus: bus, gen: gen, tokens: tokens, turns: turns, jobTTL: jobTTL, log: log}
}

func (u *jobUC) CreateJob(ctx context.Context, tenantID, userID string, topicID model.TopicID, params map[string]string) (*model.Job, error) {
	topic, ok := model.LookupTopic(topicID)
	if !ok || !topic.Active {
		return nil, fmt.Errorf("%w: %s", domain.ErrTopicNotFound, topicID)
	}
	if topic.Kind != model.TopicKindSingleShot {
		return nil, fmt.Errorf("%w: topic %s is not single-shot", domain.ErrInvalidArgument, topicID)
	}
	if _, ok := lookupContract(topic.ResponseContract); !ok {
		return nil, fmt.Errorf("%w: topic %s has no response contract", domain.ErrInvalidArgument, topicID)
	}
	var missing []string
	for _, p := range topic.RequiredParams {
		if strings.TrimSpace(params[p]) == "" {
			missing = append(missing, p)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing %s", domain.ErrParameterValidation, strings.Join(missing, ", "))
	}

	job := model.NewJob(ulid.Make().String(), tenantID, userID, topicID, params, model.EstimateFor(topicID), u.jobTTL)
	return u.persistAndTrigger(ctx, job, model.EventJobCreated)
}

func (u *jobUC) CreateTurnJob(ctx context.Context, tenantID, userID, sessionID, userMessage string) (*model.Job, error) {
	if strings.TrimSpace(userMessage) == "" {
		return nil, fmt.Errorf("%w: empty message", domain.ErrInvalidArgument)
	}
	topicID, err := u.turns.SessionTopic(ctx, tenantID, sessionID)
	if err != nil {
		return nil, err
	}

	job := model.NewJob(ulid.Make().String(), tenantID, userID, topicID, nil, model.EstimateFor(topicID), u.jobTTL)
	job.SessionID = sessionID
	job.UserMessage = userMessage
	return u.persistAndTrigger(ctx, job, model.EventMessageCreated)
}

// persistAndTrigger stores the pending record and publishes the trigger.
// A publish failure fails the job immediately and surfaces to the caller:
// nobody should believe a job is in flight when the trigger never left.
func (u *jobUC) persistAndTrigger(ctx context.Context, job *model.Job, trigger model.EventType) (*model.Job, error) {
	token, err := u.tokens.Mint(job.ID, job.TenantID, job.UserID)
	if err != nil {
		return nil, fmt.Errorf("%w: mint enrichment token: %v", domain.ErrInternal, err)
	}
	job.EnrichmentToken = token

	if err := u.jobs.Save(ctx, nil, job); err != nil {
		return nil, fmt.Errorf("save job: %w", err)
	}
	metrics.IncJobCreated(string(job.TopicID))

	ev := model.Event{
		ID:       job.ID + ":created",
		Type:     trigger,
		JobID:    job.ID,
		TenantID: job.TenantID,
		UserID:   job.UserID,
		TopicID:  job.TopicID,
	}
	if job.IsConversationTurn() {
		ev.Data = map[string]any{"session_id": job.SessionID}
	}
	if err := u.bus.Publish(ctx, ev); err != nil {
		job.Status = model.JobStatusFailed
		job.Error = "trigger publish failed"
		job.ErrorCode = string(domain.CodeInternal)
		if ferr := u.jobs.UpdateStatusIf(ctx, nil, job, model.JobStatusPending); ferr != nil {
			u.log.Error().Err(ferr).Str("job_id", job.ID).Msg("could not mark job failed after publish failure")
		}
		return nil, fmt.Errorf("%w: publish trigger: %v", domain.ErrInternal, err)
	}
	return job, nil
}

func (u *jobUC) ExecuteJobFromEvent(ctx context.Context, jobID, tenantID string) error {
	ctx = logging.WithJobID(logging.WithTenantID(ctx, tenantID), jobID)
	log := logging.With(ctx, u.log)

	job, err := u.jobs.FindByTenant(ctx, nil, tenantID, jobID)
	if err != nil {
		return err
	}
	if job.Status != model.JobStatusPending {
		// Duplicate delivery: the trigger was already consumed.
		metrics.IncDuplicateDelivery()
		log.Debug().Str("status", string(job.Status)).Msg("trigger redelivered for non-pending job, skipping")
		return nil
	}
	u.execute(ctx, job)
	return nil
}

// execute drives one job to a terminal state. Every failure is categorized
// and persisted; nothing propagates out as an unhandled fault.
func (u *jobUC) execute(ctx context.Context, job *model.Job) {
	log := logging.With(ctx, u.log)
	defer logging.TraceDuration(log, "JobOrchestrator.execute")()

	now := time.Now()
	job.Status = model.JobStatusProcessing
	job.StartedAt = &now
	if err := u.jobs.UpdateStatusIf(ctx, nil, job, model.JobStatusPending); err != nil {
		if errors.Is(err, domain.ErrStatusConflict) {
			// A concurrent consumer won the pending->processing swap.
			metrics.IncDuplicateDelivery()
			log.Debug().Msg("lost pending->processing race, skipping")
			return
		}
		log.Error().Err(err).Msg("could not mark job processing")
		return
	}

	u.publishBestEffort(ctx, job, model.EventJobStarted, nil)

	result, err := u.run(ctx, job)
	elapsed := time.Since(now)
	if err != nil {
		u.fail(ctx, job, err)
		return
	}

	done := time.Now()
	job.Status = model.JobStatusCompleted
	job.Result = result
	job.CompletedAt = &done
	job.ProcessingTimeMs = elapsed.Milliseconds()
	if err := u.jobs.UpdateStatusIf(ctx, nil, job, model.JobStatusProcessing); err != nil {
		log.Error().Err(err).Msg("could not persist completed job")
		return
	}
	metrics.IncJobProcessed(string(model.JobStatusCompleted), string(job.TopicID))
	metrics.ObserveJobProcessing(string(job.TopicID), job.ProcessingTimeMs)
	log.Info().Int64("processing_ms", job.ProcessingTimeMs).Msg("job completed")

	u.publishBestEffort(ctx, job, completionEvent(job), map[string]any{"result": result})
}

// run performs the actual generation for either job flavor.
func (u *jobUC) run(ctx context.Context, job *model.Job) (map[string]any, error) {
	if job.IsConversationTurn() {
		return u.turns.ExecuteTurn(ctx, job)
	}

	topic, ok := model.LookupTopic(job.TopicID)
	if !ok || !topic.Active {
		return nil, fmt.Errorf("%w: %s", domain.ErrTopicNotFound, job.TopicID)
	}
	contract, ok := lookupContract(topic.ResponseContract)
	if !ok {
		return nil, fmt.Errorf("%w: contract %s", domain.ErrTopicNotFound, topic.ResponseContract)
	}
	prompt, err := renderSingleShotPrompt(topic, job.Parameters)
	if err != nil {
		return nil, err
	}

	system := "You are a precise business coaching analyst. " + contract
	if enriched := u.enrichment(job); enriched != "" {
		system += "\n" + enriched
	}

	res, err := u.gen.Generate(ctx, system, []adapter.Message{{Role: "user", Content: prompt}}, adapter.GenerateOptions{})
	if err != nil {
		return nil, err
	}
	metrics.AddTokens(res.ProviderUsed, res.ModelUsed, res.Usage.PromptTokens, res.Usage.CompletionTokens)
	return parseResultObject(res.Text), nil
}

// enrichment resolves tenant-scoped context from the job's short-lived
// credential. An expired or invalid token degrades to no enrichment; it
// never fails the job.
func (u *jobUC) enrichment(job *model.Job) string {
	if job.EnrichmentToken == "" {
		return ""
	}
	claims, err := u.tokens.Verify(job.EnrichmentToken, job.ID, job.TenantID)
	if err != nil {
		u.log.Debug().Err(err).Str("job_id", job.ID).Msg("enrichment token rejected, continuing without")
		return ""
	}
	return fmt.Sprintf("Context: you are answering on behalf of workspace %s for user %s.", claims.TenantID, claims.UserID)
}

func (u *jobUC) fail(ctx context.Context, job *model.Job, cause error) {
	log := logging.With(ctx, u.log)
	code := domain.Categorize(cause)

	done := time.Now()
	job.Status = model.JobStatusFailed
	job.Error = cause.Error()
	job.ErrorCode = string(code)
	job.CompletedAt = &done
	if job.StartedAt != nil {
		job.ProcessingTimeMs = done.Sub(*job.StartedAt).Milliseconds()
	}
	if err := u.jobs.UpdateStatusIf(ctx, nil, job, model.JobStatusProcessing); err != nil {
		log.Error().Err(err).Msg("could not persist failed job")
	}
	metrics.IncJobProcessed(string(model.JobStatusFailed), string(job.TopicID))
	log.Warn().Str("error_code", string(code)).Err(cause).Msg("job failed")

	u.publishBestEffort(ctx, job, failureEvent(job), map[string]any{
		"error":      job.Error,
		"error_code": job.ErrorCode,
	})
}

// publishBestEffort emits a notification event. Failures are logged, never
// escalated: the persisted job state is the source of truth.
func (u *jobUC) publishBestEffort(ctx context.Context, job *model.Job, t model.EventType, data map[string]any) {
	ev := model.Event{
		ID:       fmt.Sprintf("%s:%s", job.ID, t),
		Type:     t,
		JobID:    job.ID,
		TenantID: job.TenantID,
		UserID:   job.UserID,
		TopicID:  job.TopicID,
		Data:     data,
	}
	if err := u.bus.Publish(ctx, ev); err != nil {
		logging.With(ctx, u.log).Warn().Err(err).Str("event", string(t)).Msg("notification publish failed")
	}
}

func completionEvent(job *model.Job) model.EventType {
	if job.IsConversationTurn() {
		return model.EventMessageCompleted
	}
	return model.EventJobCompleted
}

func failureEvent(job *model.Job) model.EventType {
	if job.IsConversationTurn() {
		return model.EventMessageFailed
	}
	return model.EventJobFailed
}

func (u *jobUC) GetJob(ctx context.Context, tenantID, jobID string) (*model.Job, error) {
	return u.jobs.FindByTenant(ctx, nil, tenantID, jobID)
}

func (u *jobUC) ListJobs(ctx context.Context, tenantID, userID string, limit int) ([]*model.Job, error) {
	return u.jobs.ListByTenantUser(ctx, nil, tenantID, userID, limit)
}
