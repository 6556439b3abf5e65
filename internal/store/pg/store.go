package pg

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"recruit/internal/domain"
	"recruit/internal/store"
)

type Store struct {
	DB *pgxpool.Pool
}

func New(db *pgxpool.Pool) *Store { return &Store{DB: db} }

func (s *Store) FindMessageByIdempotency(ctx context.Context, threadID, idemKey string) (store.IdempotencyResult, error) {
	row := s.DB.QueryRow(ctx, `
		SELECT id, state, send_state FROM messages WHERE thread_id=$1 AND idempotency_key=$2
	`, threadID, idemKey)
	var out store.IdempotencyResult
	err := row.Scan(&out.MessageID, &out.State, &out.SendState)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.IdempotencyResult{Found: false}, nil
		}
		return store.IdempotencyResult{}, err
	}
	out.Found = true
	return out, nil
}

func (s *Store) InsertMessage(ctx context.Context, in store.MessageInsert) error {
	_, err := s.DB.Exec(ctx, `
		INSERT INTO messages (id, thread_id, idempotency_key, actor_role, actor, body, messaging_type, tag, send_state, state, last_error, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$12)
	`, in.ID, in.ThreadID, in.IdemKey, in.ActorRole, nullIfEmpty(in.Actor), in.Text,
		nullIfEmpty(in.MessagingType), nullIfEmpty(in.Tag), in.SendState, in.State, nullIfEmpty(in.LastError), in.Now)
	return err
}

func (s *Store) MarkMessageState(ctx context.Context, in store.MessageStateUpdate) error {
	_, err := s.DB.Exec(ctx, `
		UPDATE messages SET state=$2, last_error=$3, updated_at=$4 WHERE id=$1
	`, in.ID, in.State, nullIfEmpty(in.LastError), in.Now)
	return err
}

func (s *Store) SetProviderDetails(ctx context.Context, in store.ProviderDetailsUpdate) error {
	_, err := s.DB.Exec(ctx, `
		UPDATE messages SET provider=$2, provider_msg_id=$3, state=$4, updated_at=$5 WHERE id=$1
	`, in.ID, in.Provider, in.ProviderMsgID, in.State, in.Now)
	return err
}

func (s *Store) GetMessageForWorker(ctx context.Context, msgID string) (store.MessageForWorker, error) {
	row := s.DB.QueryRow(ctx, `
		SELECT thread_id, actor_role, body, COALESCE(messaging_type,''), COALESCE(tag,''), state, COALESCE(provider_msg_id,''), created_at
		FROM messages WHERE id=$1
	`, msgID)
	var out store.MessageForWorker
	err := row.Scan(&out.ThreadID, &out.ActorRole, &out.Text, &out.MessagingType, &out.Tag, &out.State, &out.ProviderMsgID, &out.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.MessageForWorker{}, store.ErrNotFound
		}
		return store.MessageForWorker{}, err
	}
	return out, nil
}

func (s *Store) InsertAttempt(ctx context.Context, in store.ProviderAttempt) error {
	reqB, _ := json.Marshal(in.RequestJSON)
	respB, _ := json.Marshal(in.ResponseJSON)
	_, err := s.DB.Exec(ctx, `
		INSERT INTO provider_attempts (message_id, provider, provider_msg_id, http_status, error_code, error_msg, request_json, response_json)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, in.MessageID, in.Provider, nullIfEmpty(in.ProviderMsgID), in.HTTPStatus, nullIfEmpty(in.ErrorCode), nullIfEmpty(in.ErrorMsg), reqB, respB)
	return err
}

func (s *Store) InsertDeliveryEvent(ctx context.Context, in store.DeliveryEvent) error {
	b, _ := json.Marshal(in.Payload)
	_, err := s.DB.Exec(ctx, `
		INSERT INTO delivery_events (provider, page_id, psid, provider_msg_id, kind, payload_json, occurred_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, in.Provider, nullIfEmpty(in.PageID), nullIfEmpty(in.PSID), nullIfEmpty(in.ProviderMsgID), in.Kind, b, in.OccurredAt)
	return err
}

// MarkDeliveredByProviderMsgID moves submitted messages to delivered.
func (s *Store) MarkDeliveredByProviderMsgID(ctx context.Context, provider string, providerMsgIDs []string, now time.Time) (int64, error) {
	ct, err := s.DB.Exec(ctx, `
		UPDATE messages
		SET state='delivered', updated_at=$3
		WHERE provider=$1 AND provider_msg_id = ANY($2) AND state='submitted'
	`, provider, providerMsgIDs, now)
	if err != nil {
		return 0, err
	}
	return ct.RowsAffected(), nil
}

func (s *Store) GetMessage(ctx context.Context, msgID string) (store.Message, bool, error) {
	var m store.Message
	row := s.DB.QueryRow(ctx, `
		SELECT id, thread_id, idempotency_key, actor_role, COALESCE(actor,''), body,
		       COALESCE(messaging_type,''), COALESCE(tag,''), send_state, state,
		       COALESCE(provider,''), COALESCE(provider_msg_id,''), COALESCE(last_error,''),
		       created_at, updated_at
		FROM messages WHERE id=$1
	`, msgID)

	err := row.Scan(&m.ID, &m.ThreadID, &m.IdempotencyKey, &m.ActorRole, &m.Actor, &m.Text,
		&m.MessagingType, &m.Tag, &m.SendState, &m.State,
		&m.Provider, &m.ProviderMsgID, &m.LastError, &m.CreatedAt, &m.UpdatedAt)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.Message{}, false, nil
		}
		return store.Message{}, false, err
	}
	return m, true, nil
}

// ClaimMessage attempts to move a message into processing state.
// It allows reclaiming if the message is still "processing" but stale.
func (s *Store) ClaimMessage(ctx context.Context, msgID string, now time.Time, staleAfter time.Duration) (bool, error) {
	staleBefore := now.Add(-staleAfter)
	ct, err := s.DB.Exec(ctx, `
		UPDATE messages
		SET state=$2, updated_at=$3
		WHERE id=$1 AND (state='queued' OR (state='processing' AND updated_at < $4))
	`, msgID, "processing", now, staleBefore)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() > 0, nil
}

func (s *Store) GetThread(ctx context.Context, threadID string) (domain.Thread, error) {
	row := s.DB.QueryRow(ctx, `
		SELECT id, page_id, COALESCE(candidate_id,''), recipient_psid, COALESCE(owner_ca,''), last_message_at, last_inbound_at
		FROM threads WHERE id=$1
	`, threadID)
	var th domain.Thread
	var lastMsg, lastIn *time.Time
	if err := row.Scan(&th.ID, &th.PageID, &th.CandidateID, &th.RecipientPSID, &th.OwnerCA, &lastMsg, &lastIn); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Thread{}, store.ErrNotFound
		}
		return domain.Thread{}, err
	}
	th.LastMessageAt = domain.TimestampPtr(lastMsg)
	th.LastInboundAt = domain.TimestampPtr(lastIn)
	return th, nil
}

// GetPage returns found=false for unknown pages; callers treat that as blocked.
func (s *Store) GetPage(ctx context.Context, pageID string) (domain.Page, bool, error) {
	row := s.DB.QueryRow(ctx, `
		SELECT page_id, connected, access_token, token_expires_at FROM pages WHERE page_id=$1
	`, pageID)
	var p domain.Page
	var exp *time.Time
	if err := row.Scan(&p.PageID, &p.Connected, &p.AccessToken, &exp); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Page{}, false, nil
		}
		return domain.Page{}, false, err
	}
	p.TokenExpiresAt = domain.TimestampPtr(exp)
	return p, true, nil
}

// ApplyInbound advances the thread and candidate timestamps for an inbound message,
// creating the thread on first contact. Timestamps never move backwards.
func (s *Store) ApplyInbound(ctx context.Context, in store.InboundMessage) (string, error) {
	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return "", err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// last_message_at before this message; an older inbound must not flip direction.
	var priorLast *time.Time
	err = tx.QueryRow(ctx, `
		SELECT last_message_at FROM threads WHERE page_id=$1 AND recipient_psid=$2 FOR UPDATE
	`, in.PageID, in.PSID).Scan(&priorLast)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return "", err
	}

	var threadID string
	var candidateID *string
	err = tx.QueryRow(ctx, `
		INSERT INTO threads (id, page_id, recipient_psid, last_message_at, last_inbound_at)
		VALUES ($1,$2,$3,$4,$4)
		ON CONFLICT (page_id, recipient_psid) DO UPDATE SET
			last_message_at = GREATEST(threads.last_message_at, EXCLUDED.last_message_at),
			last_inbound_at = GREATEST(threads.last_inbound_at, EXCLUDED.last_inbound_at)
		RETURNING id, candidate_id
	`, in.NewThreadID, in.PageID, in.PSID, in.ReceivedAt).Scan(&threadID, &candidateID)
	if err != nil {
		return "", err
	}

	if candidateID != nil {
		_, err = tx.Exec(ctx, `
			UPDATE candidates
			SET last_message_received_at = GREATEST(last_message_received_at, $2),
			    last_message_direction = CASE
			        WHEN $3::timestamptz IS NULL OR $2 >= $3::timestamptz THEN 'in'
			        ELSE last_message_direction
			    END,
			    updated_at = now()
			WHERE id=$1 AND (last_message_received_at IS NULL OR last_message_received_at <= $2)
		`, *candidateID, in.ReceivedAt, priorLast)
		if err != nil {
			return "", err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return "", err
	}
	return threadID, nil
}

func (s *Store) RecordOutbound(ctx context.Context, in store.OutboundSent) error {
	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var candidateID *string
	err = tx.QueryRow(ctx, `
		UPDATE threads SET last_message_at = GREATEST(last_message_at, $2)
		WHERE id=$1
		RETURNING candidate_id
	`, in.ThreadID, in.SentAt).Scan(&candidateID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.ErrNotFound
		}
		return err
	}
	if candidateID != nil {
		if _, err := tx.Exec(ctx, `
			UPDATE candidates SET last_message_direction='out', updated_at=now() WHERE id=$1
		`, *candidateID); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (s *Store) ListCandidates(ctx context.Context, q store.CandidateQuery) ([]domain.Candidate, error) {
	var limit *int
	if q.Limit > 0 {
		limit = &q.Limit
	}
	statuses := q.Statuses
	if statuses == nil {
		statuses = []string{}
	}
	rows, err := s.DB.Query(ctx, `
		SELECT id, name, COALESCE(owner_ca,''), status, last_message_received_at, next_scheduled_date,
		       requires_response, COALESCE(last_message_ai_judgment,''), COALESCE(last_message_direction,'')
		FROM candidates
		WHERE ($1 = '' OR owner_ca = $1)
		  AND (cardinality($2::text[]) = 0 OR status = ANY($2))
		ORDER BY id
		LIMIT $3
	`, q.OwnerCA, statuses, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Candidate
	for rows.Next() {
		var c domain.Candidate
		var status, judgment, direction string
		var received, next *time.Time
		if err := rows.Scan(&c.ID, &c.Name, &c.OwnerCA, &status, &received, &next,
			&c.RequiresResponse, &judgment, &direction); err != nil {
			return nil, err
		}
		c.CandidateStatus = domain.CandidateStatus(status)
		c.LastMessageAIJudgment = domain.AIJudgment(judgment)
		c.LastMessageDirection = domain.Direction(direction)
		c.LastMessageReceivedAt = domain.TimestampPtr(received)
		c.NextScheduledDate = domain.TimestampPtr(next)
		out = append(out, c)
	}
	return out, rows.Err()
}

const worklistFilterKey = "worklist_filter"

func (s *Store) GetWorklistFilter(ctx context.Context, userID string) (domain.WorklistFilter, bool, error) {
	var b []byte
	err := s.DB.QueryRow(ctx, `
		SELECT value_json FROM user_settings WHERE user_id=$1 AND key=$2
	`, userID, worklistFilterKey).Scan(&b)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.WorklistFilter{}, false, nil
		}
		return domain.WorklistFilter{}, false, err
	}
	var f domain.WorklistFilter
	if err := json.Unmarshal(b, &f); err != nil {
		return domain.WorklistFilter{}, false, err
	}
	return f, true, nil
}

func (s *Store) SaveWorklistFilter(ctx context.Context, userID string, f domain.WorklistFilter) error {
	b, err := json.Marshal(f)
	if err != nil {
		return err
	}
	_, err = s.DB.Exec(ctx, `
		INSERT INTO user_settings (user_id, key, value_json, updated_at)
		VALUES ($1,$2,$3,now())
		ON CONFLICT (user_id, key) DO UPDATE SET value_json=EXCLUDED.value_json, updated_at=now()
	`, userID, worklistFilterKey, b)
	return err
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
