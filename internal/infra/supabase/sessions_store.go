package supabase

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/boutikcards/chat-commerce-go/internal/domain"
	"github.com/boutikcards/chat-commerce-go/internal/infra/resilience"

	"go.opentelemetry.io/otel/attribute"
)

// ============================================================
// Sessions (implements port.SessionStore)
// ============================================================

// sessionRow maps the conversation_sessions table. The step machine's
// working state is stored as a JSON document in the state column so the
// table schema does not chase the Go struct.
type sessionRow struct {
	ID            string          `json:"id"`
	StoreID       string          `json:"store_id"`
	ProductID     string          `json:"product_id"`
	CurrentStep   string          `json:"current_step"`
	IntentScore   float64         `json:"intent_score"`
	MessageCount  int             `json:"message_count"`
	State         json.RawMessage `json:"state"`
	StartedAt     string          `json:"started_at"`
	LastMessageAt string          `json:"last_message_at"`
}

// GetSession fetches a persisted session by id. Returns ErrNotFound when
// no row exists.
func (c *Client) GetSession(ctx context.Context, sessionID string) (*domain.ConversationSession, error) {
	ctx, span := tracer.Start(ctx, "Supabase.GetSession")
	defer span.End()
	span.SetAttributes(attribute.String("session.id", sessionID))

	var session *domain.ConversationSession

	_, err := c.cb.Execute(func() (any, error) {
		return nil, resilience.RetryWithBackoff(ctx, c.cfg, func() error {
			path := fmt.Sprintf("conversation_sessions?id=eq.%s&limit=1", url.QueryEscape(sessionID))
			body, err := c.doRequest(ctx, http.MethodGet, path)
			if err != nil {
				return err
			}
			if body == nil || string(body) == "[]" {
				return &domain.ErrNotFound{Resource: "session", ID: sessionID}
			}

			var rows []sessionRow
			if err := json.Unmarshal(body, &rows); err != nil {
				return fmt.Errorf("failed to decode session: %w", err)
			}
			if len(rows) == 0 {
				return &domain.ErrNotFound{Resource: "session", ID: sessionID}
			}

			s := &domain.ConversationSession{}
			if len(rows[0].State) > 0 {
				if err := json.Unmarshal(rows[0].State, s); err != nil {
					return fmt.Errorf("failed to decode session state: %w", err)
				}
			}
			// Columns win over the snapshot for the indexed fields.
			s.ID = rows[0].ID
			s.StoreID = rows[0].StoreID
			s.ProductID = rows[0].ProductID
			s.CurrentStep = domain.Step(rows[0].CurrentStep)
			session = s
			return nil
		})
	})

	if err != nil {
		// ErrNotFound stays reachable through Unwrap for errors.As callers.
		return nil, &domain.ErrExternalService{Service: "supabase/sessions", Err: err}
	}

	return session, nil
}

// UpsertSession writes the session shadow row (merge on id).
func (c *Client) UpsertSession(ctx context.Context, session *domain.ConversationSession) error {
	ctx, span := tracer.Start(ctx, "Supabase.UpsertSession")
	defer span.End()
	span.SetAttributes(attribute.String("session.id", session.ID))

	state, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to encode session state: %w", err)
	}

	_, err = c.cb.Execute(func() (any, error) {
		return nil, resilience.RetryWithBackoff(ctx, c.cfg, func() error {
			_, err := c.doUpsert(ctx, "conversation_sessions?on_conflict=id", map[string]any{
				"id":              session.ID,
				"store_id":        session.StoreID,
				"product_id":      session.ProductID,
				"current_step":    string(session.CurrentStep),
				"intent_score":    session.IntentScore,
				"message_count":   session.MessageCount,
				"state":           json.RawMessage(state),
				"started_at":      session.StartedAt.Format(time.RFC3339),
				"last_message_at": session.LastMessageAt.Format(time.RFC3339),
			})
			return err
		})
	})

	if err != nil {
		return &domain.ErrExternalService{Service: "supabase/sessions", Err: err}
	}
	return nil
}
