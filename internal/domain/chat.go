package domain

// ============================================================
// Chat API shapes
// ============================================================

// ChatRequest is the body of POST /v1/chat/message. SessionID is empty
// on the first message of a conversation; the server creates one.
type ChatRequest struct {
	SessionID string `json:"session_id,omitempty"`
	StoreID   string `json:"store_id"`
	ProductID string `json:"product_id"`
	Message   string `json:"message"`
}

// ============================================================
// Intent analysis
// ============================================================

// Analysis is the stateless per-message verdict of the intent analyzer.
// The session folds BuyingIntent into its running max; the analyzer
// itself holds no state between calls.
type Analysis struct {
	BuyingIntent float64  `json:"buying_intent"` // in [0, 1]
	Concerns     []string `json:"concerns,omitempty"`
	Topics       []string `json:"topics,omitempty"`

	// ReadyToBuy is true once the session's accumulated intent passes
	// the configured threshold.
	ReadyToBuy bool `json:"ready_to_buy"`

	// DirectPurchase flags an explicit purchase phrase in this message
	// ("je veux acheter", ...), which triggers the express-checkout
	// shortcut regardless of accumulated score.
	DirectPurchase bool `json:"direct_purchase"`

	NeedsMoreInfo     bool `json:"needs_more_info"`
	SuggestedNextStep Step `json:"suggested_next_step,omitempty"`
}

// ============================================================
// Text-generation service
// ============================================================

// CompletionRequest asks the text-generation service for display copy.
// The step machine's control flow never depends on the response beyond
// optional display text.
type CompletionRequest struct {
	SystemPrompt string `json:"system_prompt"`
	UserMessage  string `json:"user_message"`
	MaxTokens    int    `json:"max_tokens,omitempty"`
}

// CompletionResponse carries the generated text.
type CompletionResponse struct {
	Text       string `json:"text"`
	TokensUsed int    `json:"tokens_used,omitempty"`
}
