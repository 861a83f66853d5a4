// Package domain defines the core business entities for the chat-commerce
// backend. These models are independent of external services and represent
// the canonical data structures used throughout the application.
package domain

import "time"

// ============================================================
// Conversation steps
// ============================================================

// Step identifies where a conversation currently is in the checkout flow.
// Transitions between steps are owned exclusively by the conversation
// service; nothing else mutates CurrentStep.
type Step string

const (
	StepInitialEngagement Step = "initial_engagement"
	StepProductEngagement Step = "product_engagement"
	StepCollectQuantity   Step = "collect_quantity"
	StepCollectName       Step = "collect_name"
	StepCollectPhone      Step = "collect_phone"
	StepCollectCity       Step = "collect_city"
	StepCollectAddress    Step = "collect_address"
	StepOrderSummary      Step = "order_summary"
	StepPaymentMethod     Step = "payment_method"
	StepPaymentProcessing Step = "payment_processing"
	StepOrderConfirmed    Step = "order_confirmed"
	StepErrorRecovery     Step = "error_recovery"
)

// Valid reports whether s is one of the known steps.
func (s Step) Valid() bool {
	switch s {
	case StepInitialEngagement, StepProductEngagement, StepCollectQuantity,
		StepCollectName, StepCollectPhone, StepCollectCity, StepCollectAddress,
		StepOrderSummary, StepPaymentMethod, StepPaymentProcessing,
		StepOrderConfirmed, StepErrorRecovery:
		return true
	}
	return false
}

// Terminal reports whether the conversation is finished at this step.
func (s Step) Terminal() bool {
	return s == StepOrderConfirmed
}

// ============================================================
// Conversation session
// ============================================================

// MessageWindow is the number of recent messages kept on the in-memory
// session. The full transcript lives in the store.
const MessageWindow = 5

// ChatMessage is one entry of the conversation transcript.
type ChatMessage struct {
	Role      string    `json:"role"` // "user", "assistant", "system"
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// ProcessedInput records the last (step, input) pair the step machine
// applied, so that a client retry of the same message can be answered
// from the stored reply instead of re-running side effects.
type ProcessedInput struct {
	Step  Step   `json:"step"`
	Input string `json:"input"`
	Reply *Reply `json:"reply,omitempty"`
}

// ConversationSession holds all in-progress state for one chat session.
// The in-memory copy is authoritative while the session is live; the
// persisted row is an eventually-consistent shadow (write-behind).
type ConversationSession struct {
	ID        string `json:"id"`
	StoreID   string `json:"store_id"`
	ProductID string `json:"product_id"`

	CurrentStep Step          `json:"current_step"`
	Messages    []ChatMessage `json:"messages"` // bounded window, see MessageWindow

	// IntentScore is the running max of per-message buying-intent scores.
	// It never decreases within a session.
	IntentScore float64  `json:"intent_score"`
	Concerns    []string `json:"concerns,omitempty"`
	Topics      []string `json:"topics,omitempty"`

	Order *Order `json:"order,omitempty"`

	// LastProcessed supports idempotent replay of the most recent message.
	LastProcessed *ProcessedInput `json:"last_processed,omitempty"`

	StartedAt     time.Time `json:"started_at"`
	LastMessageAt time.Time `json:"last_message_at"`
	MessageCount  int       `json:"message_count"`
}

// AppendMessage adds a message to the bounded window and bumps counters.
func (s *ConversationSession) AppendMessage(role, content string, at time.Time) {
	s.Messages = append(s.Messages, ChatMessage{Role: role, Content: content, Timestamp: at})
	if len(s.Messages) > MessageWindow {
		s.Messages = s.Messages[len(s.Messages)-MessageWindow:]
	}
	s.MessageCount++
	s.LastMessageAt = at
}

// RecordIntent folds a per-message score into the session running max
// and merges detected concerns/topics (deduplicated).
func (s *ConversationSession) RecordIntent(score float64, concerns, topics []string) {
	if score > s.IntentScore {
		s.IntentScore = score
	}
	s.Concerns = mergeUnique(s.Concerns, concerns)
	s.Topics = mergeUnique(s.Topics, topics)
}

func mergeUnique(existing, incoming []string) []string {
	seen := make(map[string]bool, len(existing))
	for _, v := range existing {
		seen[v] = true
	}
	for _, v := range incoming {
		if !seen[v] {
			existing = append(existing, v)
			seen[v] = true
		}
	}
	return existing
}

// ============================================================
// Assistant reply
// ============================================================

// Reply is what the step machine hands back to the chat UI after
// processing one message.
type Reply struct {
	SessionID string   `json:"session_id"`
	Step      Step     `json:"step"`
	Text      string   `json:"text"`
	Choices   []string `json:"choices,omitempty"`

	// Payment hand-off data, present when the machine initiated a payment.
	CheckoutURL  string `json:"checkout_url,omitempty"`
	QRCode       string `json:"qr_code,omitempty"`
	Instructions string `json:"instructions,omitempty"`

	Order *Order `json:"order,omitempty"`
}
