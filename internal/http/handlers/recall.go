package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	types "github.com/calegray/cardflow-backend/internal/domain"
	"github.com/calegray/cardflow-backend/internal/http/response"
	"github.com/calegray/cardflow-backend/internal/pkg/logger"
	"github.com/calegray/cardflow-backend/internal/recall"
)

// RecallHandler is the ingress for the safety component: it enqueues recall
// requests, it never performs the retraction inline.
type RecallHandler struct {
	log        *logger.Logger
	dispatcher recall.Dispatcher
}

func NewRecallHandler(log *logger.Logger, dispatcher recall.Dispatcher) *RecallHandler {
	return &RecallHandler{
		log:        log.With("handler", "RecallHandler"),
		dispatcher: dispatcher,
	}
}

type recallReq struct {
	SessionID        string `json:"session_id" binding:"required"`
	ChatID           string `json:"chat_id"`
	TriggerMessageID string `json:"trigger_message_id"`
	Reason           string `json:"reason" binding:"required"`
	Detail           string `json:"detail"`
}

// POST /api/recall
func (h *RecallHandler) Enqueue(c *gin.Context) {
	var req recallReq
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	err := h.dispatcher.Dispatch(c.Request.Context(), types.RecallRequest{
		SessionID:        req.SessionID,
		ChatID:           req.ChatID,
		TriggerMessageID: req.TriggerMessageID,
		Reason:           req.Reason,
		Detail:           req.Detail,
	}, 0, nil)
	if err != nil {
		response.RespondError(c, http.StatusServiceUnavailable, "recall_enqueue_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"enqueued": true, "session_id": req.SessionID})
}
