package service

import (
	"context"
	"time"

	"github.com/boutikcards/chat-commerce-go/internal/domain"
	"github.com/boutikcards/chat-commerce-go/internal/infra/observability"
	"github.com/boutikcards/chat-commerce-go/internal/intent"
	"github.com/boutikcards/chat-commerce-go/internal/port"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var convTracer = otel.Tracer("service/conversation")

// completionTimeout bounds the optional copy-enrichment call. The flow
// never waits longer than this for nicer wording.
const completionTimeout = 3 * time.Second

// Conversation is the step machine driving the chat checkout. All
// transitions run under the session lock, so two near-simultaneous
// messages can never advance from the same step twice.
type Conversation struct {
	sessions  *Sessions
	zones     *Zones
	analyzer  *intent.Analyzer
	payments  *Payments
	products  port.ProductStore
	orders    port.OrderStore
	completer port.Completer
	metrics   *observability.Metrics
	logger    *zap.Logger
	currency  string
}

// NewConversation wires the step machine.
func NewConversation(sessions *Sessions, zones *Zones, analyzer *intent.Analyzer, payments *Payments, products port.ProductStore, orders port.OrderStore, completer port.Completer, metrics *observability.Metrics, logger *zap.Logger, currency string) *Conversation {
	return &Conversation{
		sessions:  sessions,
		zones:     zones,
		analyzer:  analyzer,
		payments:  payments,
		products:  products,
		orders:    orders,
		completer: completer,
		metrics:   metrics,
		logger:    logger,
		currency:  currency,
	}
}

// ProcessMessage applies one user message to the session and returns
// the assistant's reply. Replaying a confirmation or payment choice
// against an already advanced session returns the stored reply without
// re-running the side effect.
func (c *Conversation) ProcessMessage(ctx context.Context, req *domain.ChatRequest) (*domain.Reply, error) {
	ctx, span := convTracer.Start(ctx, "Conversation.ProcessMessage")
	defer span.End()

	session := c.sessions.GetOrCreate(ctx, req.SessionID, req.StoreID, req.ProductID)
	span.SetAttributes(attribute.String("session.id", session.ID))

	var reply *domain.Reply
	err := c.sessions.WithLock(session.ID, func(sess *domain.ConversationSession) error {
		if lp := sess.LastProcessed; lp != nil && lp.Reply != nil &&
			lp.Input == req.Message && lp.Step != lp.Reply.Step && sess.CurrentStep == lp.Reply.Step &&
			sideEffectStep(lp.Step) {
			// Client retry of an order confirmation or payment choice:
			// the transition advanced and the session already reflects
			// this input, so answer from the stored reply instead of
			// re-applying the side effect. Everywhere else a repeated
			// text is a new message (re-prompts and failure replies keep
			// the step; consecutive collection answers may repeat).
			reply = lp.Reply
			return nil
		}

		stepBefore := sess.CurrentStep
		sess.AppendMessage("user", req.Message, time.Now())

		analysis := c.analyzer.Analyze(req.Message, sess.IntentScore)
		sess.RecordIntent(analysis.BuyingIntent, analysis.Concerns, analysis.Topics)
		span.SetAttributes(
			attribute.Float64("intent.score", sess.IntentScore),
			attribute.String("step.before", string(stepBefore)),
		)

		reply = c.transition(ctx, sess, req.Message, analysis)
		reply.SessionID = sess.ID
		reply.Step = sess.CurrentStep

		sess.AppendMessage("assistant", reply.Text, time.Now())
		sess.LastProcessed = &domain.ProcessedInput{
			Step:  stepBefore,
			Input: req.Message,
			Reply: reply,
		}

		span.SetAttributes(attribute.String("step.after", string(sess.CurrentStep)))
		c.metrics.IncrStep(string(sess.CurrentStep))
		c.sessions.Persist(sess)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return reply, nil
}

// sideEffectStep reports whether leaving this step applies an external
// side effect (order creation, payment initiation). Only those
// transitions get the stored-reply replay treatment.
func sideEffectStep(s domain.Step) bool {
	return s == domain.StepOrderSummary || s == domain.StepPaymentMethod
}

// transition is the single transition function of the machine. It
// never returns an error: side-effect failures become recovery replies
// that keep the current step.
func (c *Conversation) transition(ctx context.Context, sess *domain.ConversationSession, input string, analysis *domain.Analysis) *domain.Reply {
	switch sess.CurrentStep {
	case domain.StepInitialEngagement:
		return c.handleInitialEngagement(ctx, sess, input, analysis)
	case domain.StepProductEngagement:
		return c.handleProductEngagement(ctx, sess, input, analysis)
	case domain.StepCollectQuantity:
		return c.handleCollectQuantity(ctx, sess, input)
	case domain.StepCollectName:
		return c.handleCollectName(ctx, sess, input)
	case domain.StepCollectPhone:
		return c.handleCollectPhone(sess, input)
	case domain.StepCollectCity:
		return c.handleCollectCity(ctx, sess, input)
	case domain.StepCollectAddress:
		return c.handleCollectAddress(sess, input)
	case domain.StepOrderSummary:
		return c.handleOrderSummary(ctx, sess, input)
	case domain.StepPaymentMethod:
		return c.handlePaymentMethod(ctx, sess, input)
	case domain.StepPaymentProcessing:
		return c.handlePaymentProcessing(sess, input)
	case domain.StepOrderConfirmed:
		return &domain.Reply{Text: "Votre commande est confirmée. Merci encore pour votre achat!"}
	case domain.StepErrorRecovery:
		return c.handleErrorRecovery(sess, input)
	}

	c.logger.Error("session in unknown step, entering recovery",
		zap.String("session_id", sess.ID),
		zap.String("step", string(sess.CurrentStep)))
	sess.CurrentStep = domain.StepErrorRecovery
	return &domain.Reply{
		Text:    "Une erreur est survenue. Voulez-vous reprendre votre commande?",
		Choices: []string{"Reprendre", "Abandonner"},
	}
}

// enrich asks the text-generation service for nicer wording, falling
// back to the canned copy on any failure or timeout.
func (c *Conversation) enrich(ctx context.Context, systemPrompt, userMessage, fallback string) string {
	ctx, cancel := context.WithTimeout(ctx, completionTimeout)
	defer cancel()

	resp, err := c.completer.Complete(ctx, &domain.CompletionRequest{
		SystemPrompt: systemPrompt,
		UserMessage:  userMessage,
		MaxTokens:    200,
	})
	if err != nil {
		c.logger.Debug("completion unavailable, using canned copy", zap.Error(err))
		return fallback
	}
	if resp.Text == "" {
		return fallback
	}
	c.metrics.RecordTokens(0, resp.TokensUsed)
	return resp.Text
}
