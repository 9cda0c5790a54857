package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// PgxPool is the subset of pgxpool.Pool the store uses; pgxmock satisfies it.
type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store persists conversations, messages, workflow states, and lead
// assessments in Postgres.
type Store struct {
	pool   PgxPool
	tracer trace.Tracer
}

func New(pool PgxPool) *Store {
	if pool == nil {
		panic("store: pgx pool required")
	}
	return &Store{
		pool:   pool,
		tracer: otel.Tracer("tint.internal.store"),
	}
}

const conversationColumns = `id, phone, COALESCE(name, ''), COALESCE(channel_handle, ''),
	ai_enabled, ready_to_book, COALESCE(booking_notes, ''), needs_reply,
	COALESCE(last_message, ''), last_activity, call_suppressed_at, created_at`

func scanConversation(row pgx.Row) (Conversation, error) {
	var c Conversation
	err := row.Scan(
		&c.ID, &c.Phone, &c.Name, &c.ChannelHandle,
		&c.AIEnabled, &c.ReadyToBook, &c.BookingNotes, &c.NeedsReply,
		&c.LastMessage, &c.LastActivity, &c.CallSuppressedAt, &c.CreatedAt,
	)
	return c, err
}

// UpsertConversationByPhone inserts a conversation on first contact or
// refreshes the activity fields on a repeat one. The second return value
// reports whether the row was just created.
func (s *Store) UpsertConversationByPhone(ctx context.Context, nc NewConversation) (Conversation, bool, error) {
	ctx, span := s.tracer.Start(ctx, "store.upsert_conversation")
	defer span.End()

	query := `
		INSERT INTO conversations (id, phone, name, channel_handle, last_message, last_activity, needs_reply)
		VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), NULLIF($5, ''), now(), $6)
		ON CONFLICT (phone) DO UPDATE SET
			channel_handle = COALESCE(NULLIF(EXCLUDED.channel_handle, ''), conversations.channel_handle),
			last_message = COALESCE(EXCLUDED.last_message, conversations.last_message),
			last_activity = now(),
			needs_reply = EXCLUDED.needs_reply,
			updated_at = now()
		RETURNING ` + conversationColumns + `, (xmax = 0)`
	var c Conversation
	var created bool
	err := s.pool.QueryRow(ctx, query,
		uuid.New(), nc.Phone, nc.Name, nc.ChannelHandle, nc.LastMessage, nc.NeedsReply,
	).Scan(
		&c.ID, &c.Phone, &c.Name, &c.ChannelHandle,
		&c.AIEnabled, &c.ReadyToBook, &c.BookingNotes, &c.NeedsReply,
		&c.LastMessage, &c.LastActivity, &c.CallSuppressedAt, &c.CreatedAt,
		&created,
	)
	if err != nil {
		return Conversation{}, false, fmt.Errorf("store: upsert conversation: %w", err)
	}
	return c, created, nil
}

// GetConversationByPhone returns nil when the phone has never been seen.
func (s *Store) GetConversationByPhone(ctx context.Context, phone string) (*Conversation, error) {
	query := `SELECT ` + conversationColumns + ` FROM conversations WHERE phone = $1`
	c, err := scanConversation(s.pool.QueryRow(ctx, query, phone))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("store: get conversation by phone: %w", err)
	}
	return &c, nil
}

func (s *Store) GetConversationByID(ctx context.Context, id uuid.UUID) (*Conversation, error) {
	query := `SELECT ` + conversationColumns + ` FROM conversations WHERE id = $1`
	c, err := scanConversation(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("store: get conversation by id: %w", err)
	}
	return &c, nil
}

// UpdateConversation applies the non-nil fields of upd and returns the
// refreshed row.
func (s *Store) UpdateConversation(ctx context.Context, phone string, upd ConversationUpdate) (Conversation, error) {
	sets := []string{"updated_at = now()"}
	args := []any{phone}

	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if upd.Name != nil {
		add("name", *upd.Name)
	}
	if upd.ChannelHandle != nil {
		add("channel_handle", *upd.ChannelHandle)
	}
	if upd.AIEnabled != nil {
		add("ai_enabled", *upd.AIEnabled)
	}
	if upd.ReadyToBook != nil {
		add("ready_to_book", *upd.ReadyToBook)
	}
	if upd.BookingNotes != nil {
		add("booking_notes", *upd.BookingNotes)
	}
	if upd.NeedsReply != nil {
		add("needs_reply", *upd.NeedsReply)
	}
	if upd.LastMessage != nil {
		add("last_message", *upd.LastMessage)
		sets = append(sets, "last_activity = now()")
	}
	if upd.CallSuppressedAt != nil {
		add("call_suppressed_at", *upd.CallSuppressedAt)
	}

	query := `UPDATE conversations SET ` + strings.Join(sets, ", ") +
		` WHERE phone = $1 RETURNING ` + conversationColumns
	c, err := scanConversation(s.pool.QueryRow(ctx, query, args...))
	if err != nil {
		return Conversation{}, fmt.Errorf("store: update conversation: %w", err)
	}
	return c, nil
}

// InsertMessage appends one message and returns it with its generated id.
func (s *Store) InsertMessage(ctx context.Context, m Message) (Message, error) {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	query := `
		INSERT INTO messages (id, conversation_id, body, direction, status, source, external_id)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), NULLIF($7, ''))
		RETURNING created_at`
	err := s.pool.QueryRow(ctx, query,
		m.ID, m.ConversationID, m.Text, string(m.Direction), string(m.Status), m.Source, m.ExternalID,
	).Scan(&m.CreatedAt)
	if err != nil {
		return Message{}, fmt.Errorf("store: insert message: %w", err)
	}
	return m, nil
}

// ListMessages returns the full conversation history, oldest first.
func (s *Store) ListMessages(ctx context.Context, conversationID uuid.UUID) ([]Message, error) {
	ctx, span := s.tracer.Start(ctx, "store.list_messages")
	defer span.End()

	query := `
		SELECT id, conversation_id, body, direction, status, COALESCE(source, ''), COALESCE(external_id, ''), created_at
		FROM messages
		WHERE conversation_id = $1
		ORDER BY created_at ASC, id ASC`
	rows, err := s.pool.Query(ctx, query, conversationID)
	if err != nil {
		return nil, fmt.Errorf("store: list messages: %w", err)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Text, &m.Direction, &m.Status, &m.Source, &m.ExternalID, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("store: scan message: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list messages: %w", err)
	}
	return out, nil
}

// GetMessageByExternalID looks up a webhook-delivered message by its provider
// id; nil means the event has not been seen before.
func (s *Store) GetMessageByExternalID(ctx context.Context, source, externalID string) (*Message, error) {
	query := `
		SELECT id, conversation_id, body, direction, status, COALESCE(source, ''), COALESCE(external_id, ''), created_at
		FROM messages
		WHERE source = $1 AND external_id = $2`
	var m Message
	err := s.pool.QueryRow(ctx, query, source, externalID).
		Scan(&m.ID, &m.ConversationID, &m.Text, &m.Direction, &m.Status, &m.Source, &m.ExternalID, &m.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("store: get message by external id: %w", err)
	}
	return &m, nil
}

func (s *Store) UpdateMessageStatus(ctx context.Context, id uuid.UUID, status MessageStatus) error {
	query := `UPDATE messages SET status = $2 WHERE id = $1`
	if _, err := s.pool.Exec(ctx, query, id, string(status)); err != nil {
		return fmt.Errorf("store: update message status: %w", err)
	}
	return nil
}

// GetWorkflowState returns nil when no state has been computed yet.
func (s *Store) GetWorkflowState(ctx context.Context, conversationID uuid.UUID) (*WorkflowState, error) {
	query := `
		SELECT conversation_id, stage, COALESCE(intent, ''), data, updated_at
		FROM workflow_states
		WHERE conversation_id = $1`
	var ws WorkflowState
	err := s.pool.QueryRow(ctx, query, conversationID).
		Scan(&ws.ConversationID, &ws.Stage, &ws.Intent, &ws.Data, &ws.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("store: get workflow state: %w", err)
	}
	return &ws, nil
}

// UpsertWorkflowState replaces the one-per-conversation snapshot.
func (s *Store) UpsertWorkflowState(ctx context.Context, ws WorkflowState) error {
	query := `
		INSERT INTO workflow_states (conversation_id, stage, intent, data)
		VALUES ($1, $2, NULLIF($3, ''), $4)
		ON CONFLICT (conversation_id) DO UPDATE SET
			stage = EXCLUDED.stage,
			intent = EXCLUDED.intent,
			data = EXCLUDED.data,
			updated_at = now()`
	if _, err := s.pool.Exec(ctx, query, ws.ConversationID, ws.Stage, ws.Intent, ws.Data); err != nil {
		return fmt.Errorf("store: upsert workflow state: %w", err)
	}
	return nil
}

// UpsertAssessment overwrites the scoring snapshot for a conversation.
func (s *Store) UpsertAssessment(ctx context.Context, a LeadAssessment) error {
	query := `
		INSERT INTO lead_assessments (conversation_id, stage, probability, est_value, sentiment, vehicle_info, tint_preference, coverage, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (conversation_id) DO UPDATE SET
			stage = EXCLUDED.stage,
			probability = EXCLUDED.probability,
			est_value = EXCLUDED.est_value,
			sentiment = EXCLUDED.sentiment,
			vehicle_info = EXCLUDED.vehicle_info,
			tint_preference = EXCLUDED.tint_preference,
			coverage = EXCLUDED.coverage,
			notes = EXCLUDED.notes,
			updated_at = now()`
	_, err := s.pool.Exec(ctx, query,
		a.ConversationID, a.Stage, a.Probability, a.EstValue, a.Sentiment,
		a.VehicleInfo, a.TintPreference, a.Coverage, a.Notes,
	)
	if err != nil {
		return fmt.Errorf("store: upsert assessment: %w", err)
	}
	return nil
}
