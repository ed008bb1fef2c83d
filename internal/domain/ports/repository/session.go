package repository

import (
	"context"

	"coaching-ai-engine/internal/domain/model"
)

type SessionRepository interface {
	Save(ctx context.Context, qx Tx, session *model.ConversationSession) error
	SaveMessage(ctx context.Context, qx Tx, message *model.Message) error
	// FindByTenant applies the same tenant isolation rule as jobs.
	FindByTenant(ctx context.Context, qx Tx, tenantID, sessionID string) (*model.ConversationSession, error)
	// FindActiveByUser returns the newest active session for the user on
	// one topic; a user may hold active sessions on different topics.
	FindActiveByUser(ctx context.Context, qx Tx, tenantID, userID string, topicID model.TopicID) (*model.ConversationSession, error)
	UpdateStatus(ctx context.Context, qx Tx, sessionID string, status model.SessionStatus) error
}
