package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/boutikcards/chat-commerce-go/internal/domain"
	"github.com/boutikcards/chat-commerce-go/internal/infra/realtime"
	"github.com/boutikcards/chat-commerce-go/internal/service"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// ============================================================
// 1. Conversation
// ============================================================

func chatMessageHandler(conv *service.Conversation, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/chat/message")
		defer span.End()

		var req domain.ChatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.Message == "" {
			writeError(w, http.StatusBadRequest, "message is required")
			return
		}
		if req.StoreID == "" || req.ProductID == "" {
			writeError(w, http.StatusBadRequest, "store_id and product_id are required")
			return
		}

		reply, err := conv.ProcessMessage(ctx, &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, reply)
	}
}

// sseHeartbeat keeps proxies from closing an idle event stream.
const sseHeartbeat = 25 * time.Second

// chatEventsHandler streams payment-status events for the session's
// order over SSE. The stream ends on a terminal status or when the
// client disconnects.
func chatEventsHandler(sessions *service.Sessions, hub *realtime.Hub, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID := chi.URLParam(r, "sessionID")

		// Get revives sessions evicted from memory, so a reconnect
		// after the idle window still finds the persisted order.
		if _, err := sessions.Get(r.Context(), sessionID); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		var orderID string
		err := sessions.WithLock(sessionID, func(sess *domain.ConversationSession) error {
			if sess.Order != nil {
				orderID = sess.Order.ID
			}
			return nil
		})
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		if orderID == "" {
			writeError(w, http.StatusConflict, "aucun paiement en cours pour cette session")
			return
		}

		flusher, ok := w.(http.Flusher)
		if !ok {
			writeError(w, http.StatusInternalServerError, "streaming unsupported")
			return
		}

		events, cancel := hub.Subscribe(orderID)
		defer cancel()

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)
		flusher.Flush()

		heartbeat := time.NewTicker(sseHeartbeat)
		defer heartbeat.Stop()

		for {
			select {
			case <-r.Context().Done():
				return
			case <-heartbeat.C:
				fmt.Fprint(w, ": ping\n\n")
				flusher.Flush()
			case event := <-events:
				data, err := json.Marshal(event)
				if err != nil {
					logger.Error("event marshal failed", zap.Error(err))
					continue
				}
				fmt.Fprintf(w, "event: payment.status\ndata: %s\n\n", data)
				flusher.Flush()
				if event.Status.Terminal() {
					return
				}
			}
		}
	}
}
