package redis

import (
	"context"
	"encoding/json"
	"time"

	"coaching-ai-engine/internal/domain/model"
)

// SessionCache keeps a non-authoritative copy of session state. The store
// remains the source of truth; every status-changing operation invalidates
// the cached entry so stale reads cannot drive decisions.
type SessionCache struct {
	client *Client
	ttl    time.Duration
}

func NewSessionCache(client *Client, ttl time.Duration) *SessionCache {
	return &SessionCache{client: client, ttl: ttl}
}

func (c *SessionCache) Store(ctx context.Context, session *model.ConversationSession) error {
	key := "conversation_session:" + session.ID
	data, err := json.Marshal(session)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, data, c.ttl)
}

func (c *SessionCache) Get(ctx context.Context, sessionID string) (*model.ConversationSession, error) {
	data, err := c.client.Get(ctx, "conversation_session:"+sessionID)
	if err != nil {
		return nil, err
	}
	var session model.ConversationSession
	if err := json.Unmarshal([]byte(data), &session); err != nil {
		return nil, err
	}
	return &session, nil
}

func (c *SessionCache) Invalidate(ctx context.Context, sessionID string) error {
	return c.client.Del(ctx, "conversation_session:"+sessionID)
}
