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
	"coaching-ai-engine/internal/infra/redis"
	"coaching-ai-engine/internal/infra/security"
)

var _ repository.SessionRepository = (*SessionRepo)(nil)

// SessionRepo persists conversation sessions. The bounded memory (summary,
// key points, recent window) is stored encrypted at rest; the append-only
// message log keeps the full audit history. The Redis cache is an
// optimization only and is invalidated on every write.
type SessionRepo struct {
	pool          *pgxpool.Pool
	cache         *redis.SessionCache
	encryptionSvc *security.EncryptionService
}

func NewSessionRepo(pool *pgxpool.Pool, cache *redis.SessionCache, encryptionSvc *security.EncryptionService) *SessionRepo {
	return &SessionRepo{pool: pool, cache: cache, encryptionSvc: encryptionSvc}
}

func (r *SessionRepo) Save(ctx context.Context, qx repository.Tx, session *model.ConversationSession) error {
	memory, err := r.encodeMemory(&session.Memory)
	if err != nil {
		return err
	}
	result, err := marshalNullable(session.Result)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}

	const q = `
INSERT INTO conversation_sessions
  (id, tenant_id, user_id, topic_id, status, turn, max_turns, memory, result,
   created_at, updated_at, last_activity_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,COALESCE($10,NOW()),$11,$12)
ON CONFLICT (id) DO UPDATE SET
  status = EXCLUDED.status,
  turn = EXCLUDED.turn,
  memory = EXCLUDED.memory,
  result = EXCLUDED.result,
  updated_at = EXCLUDED.updated_at,
  last_activity_at = EXCLUDED.last_activity_at;`

	_, err = execSQL(ctx, r.pool, qx, q,
		session.ID, session.TenantID, session.UserID, string(session.TopicID),
		string(session.Status), session.Turn, session.MaxTurns, memory, result,
		session.CreatedAt, session.UpdatedAt, session.LastActivityAt)
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}

	if r.cache != nil {
		_ = r.cache.Invalidate(ctx, session.ID)
	}
	return nil
}

func (r *SessionRepo) SaveMessage(ctx context.Context, qx repository.Tx, message *model.Message) error {
	content := message.Content
	if r.encryptionSvc != nil {
		enc, err := r.encryptionSvc.Encrypt(content)
		if err != nil {
			return fmt.Errorf("encrypt message: %w", err)
		}
		content = enc
	}
	const q = `
INSERT INTO conversation_messages (session_id, role, content, tokens, created_at)
VALUES ($1,$2,$3,$4,$5);`
	_, err := execSQL(ctx, r.pool, qx, q,
		message.SessionID, message.Role, content, message.Tokens, message.Timestamp)
	return err
}

func (r *SessionRepo) FindByTenant(ctx context.Context, qx repository.Tx, tenantID, sessionID string) (*model.ConversationSession, error) {
	// Cache first; the row read below remains authoritative for writes
	// because every status-changing operation re-reads after invalidation.
	if r.cache != nil && qx == nil {
		if s, err := r.cache.Get(ctx, sessionID); err == nil && s != nil && s.TenantID == tenantID {
			return s, nil
		}
	}

	const q = `
SELECT id, tenant_id, user_id, topic_id, status, turn, max_turns, memory, result,
       created_at, updated_at, last_activity_at
FROM conversation_sessions
WHERE id = $1 AND tenant_id = $2;`

	row, err := pickRow(ctx, r.pool, qx, q, sessionID, tenantID)
	if err != nil {
		return nil, err
	}
	s, err := r.scanSession(row)
	if err != nil {
		return nil, err
	}
	if r.cache != nil {
		_ = r.cache.Store(ctx, s)
	}
	return s, nil
}

func (r *SessionRepo) FindActiveByUser(ctx context.Context, qx repository.Tx, tenantID, userID string, topicID model.TopicID) (*model.ConversationSession, error) {
	const q = `
SELECT id, tenant_id, user_id, topic_id, status, turn, max_turns, memory, result,
       created_at, updated_at, last_activity_at
FROM conversation_sessions
WHERE tenant_id = $1 AND user_id = $2 AND topic_id = $3 AND status = 'active'
ORDER BY created_at DESC
LIMIT 1;`

	row, err := pickRow(ctx, r.pool, qx, q, tenantID, userID, string(topicID))
	if err != nil {
		return nil, err
	}
	return r.scanSession(row)
}

func (r *SessionRepo) UpdateStatus(ctx context.Context, qx repository.Tx, sessionID string, status model.SessionStatus) error {
	const q = `UPDATE conversation_sessions SET status = $1, updated_at = NOW() WHERE id = $2;`
	tag, err := execSQL(ctx, r.pool, qx, q, string(status), sessionID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrSessionNotFound
	}
	if r.cache != nil {
		_ = r.cache.Invalidate(ctx, sessionID)
	}
	return nil
}

func (r *SessionRepo) encodeMemory(m *model.ConversationMemory) (string, error) {
	raw, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("marshal memory: %w", err)
	}
	if r.encryptionSvc == nil {
		return string(raw), nil
	}
	return r.encryptionSvc.Encrypt(string(raw))
}

func (r *SessionRepo) decodeMemory(raw string, m *model.ConversationMemory) error {
	if r.encryptionSvc != nil {
		dec, err := r.encryptionSvc.Decrypt(raw)
		if err != nil {
			return fmt.Errorf("decrypt memory: %w", err)
		}
		raw = dec
	}
	return json.Unmarshal([]byte(raw), m)
}

func (r *SessionRepo) scanSession(row rowScanner) (*model.ConversationSession, error) {
	var (
		s         model.ConversationSession
		topicID   string
		statusStr string
		memoryRaw string
		resultRaw []byte
		updatedAt time.Time
	)
	err := row.Scan(
		&s.ID, &s.TenantID, &s.UserID, &topicID, &statusStr, &s.Turn, &s.MaxTurns,
		&memoryRaw, &resultRaw, &s.CreatedAt, &updatedAt, &s.LastActivityAt,
	)
	if err != nil {
		return nil, asNotFound(err)
	}
	s.TopicID = model.TopicID(topicID)
	s.Status = model.SessionStatus(statusStr)
	s.UpdatedAt = updatedAt
	if memoryRaw != "" {
		if err := r.decodeMemory(memoryRaw, &s.Memory); err != nil {
			return nil, err
		}
	}
	if len(resultRaw) > 0 {
		if err := json.Unmarshal(resultRaw, &s.Result); err != nil {
			return nil, fmt.Errorf("decode result: %w", err)
		}
	}
	return &s, nil
}

// ExpireIdle marks active sessions of a topic whose last activity predates
// the cutoff. SendMessage applies the same rule lazily on access; the sweep
// settles sessions nobody ever touches again.
func (r *SessionRepo) ExpireIdle(ctx context.Context, topicID model.TopicID, cutoff time.Time) (int64, error) {
	const q = `
UPDATE conversation_sessions SET status = 'expired', updated_at = NOW()
WHERE topic_id = $1 AND status = 'active' AND last_activity_at < $2
RETURNING id;`

	rows, err := pickRows(ctx, r.pool, nil, q, string(topicID), cutoff)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	var n int64
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return n, err
		}
		if r.cache != nil {
			_ = r.cache.Invalidate(ctx, id)
		}
		n++
	}
	return n, rows.Err()
}
