package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/calegray/cardflow-backend/internal/clients/inference"
	types "github.com/calegray/cardflow-backend/internal/domain"
	"github.com/calegray/cardflow-backend/internal/http/response"
	"github.com/calegray/cardflow-backend/internal/pkg/ctxutil"
	"github.com/calegray/cardflow-backend/internal/pkg/logger"
	"github.com/calegray/cardflow-backend/internal/services"
)

// MessageHandler receives chat-surface webhook events and kicks off reply
// sessions. The reply streams in the background; the webhook is acknowledged
// immediately.
type MessageHandler struct {
	log       *logger.Logger
	responses services.ResponseService
	inference inference.Client
}

func NewMessageHandler(log *logger.Logger, responses services.ResponseService, inf inference.Client) *MessageHandler {
	return &MessageHandler{
		log:       log.With("handler", "MessageHandler"),
		responses: responses,
		inference: inf,
	}
}

type inboundMessageReq struct {
	MessageID string `json:"message_id" binding:"required"`
	ChatID    string `json:"chat_id" binding:"required"`
	RootID    string `json:"root_id"`
	IsP2P     bool   `json:"is_p2p"`
	BotName   string `json:"bot_name"`
	Text      string `json:"text"`
}

// POST /api/webhook/message
func (h *MessageHandler) Inbound(c *gin.Context) {
	var req inboundMessageReq
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}

	session := types.Session{
		SessionID:        req.MessageID,
		ChatID:           req.ChatID,
		TriggerMessageID: req.MessageID,
		RootID:           req.RootID,
		IsP2P:            req.IsP2P,
		BotName:          req.BotName,
		CreatedAt:        time.Now().UTC(),
	}
	td := ctxutil.GetTraceData(c.Request.Context())

	go func() {
		ctx := context.Background()
		if td != nil {
			ctx = ctxutil.WithTraceData(ctx, td)
		}
		source, err := h.inference.Stream(ctx, session.SessionID, req.Text)
		if err != nil {
			h.log.Error("starting inference stream failed", "session_id", session.SessionID, "error", err)
			return
		}
		if err := h.responses.Respond(ctx, session, source); err != nil {
			h.log.Error("reply session failed", "session_id", session.SessionID, "error", err)
		}
	}()

	response.RespondOK(c, gin.H{"accepted": true, "session_id": session.SessionID})
}

type regenerateReq struct {
	SessionID      string `json:"session_id" binding:"required"`
	ChatID         string `json:"chat_id" binding:"required"`
	ReplyMessageID string `json:"reply_message_id" binding:"required"`
	BotName        string `json:"bot_name"`
	Prompt         string `json:"prompt"`
}

// POST /api/webhook/regenerate
//
// Card action callback from the retry button. Streams a fresh response into
// the existing card, resuming from its persisted sequence watermark.
func (h *MessageHandler) Regenerate(c *gin.Context) {
	var req regenerateReq
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}

	session := types.Session{
		SessionID: req.SessionID,
		ChatID:    req.ChatID,
		BotName:   req.BotName,
		CreatedAt: time.Now().UTC(),
	}
	td := ctxutil.GetTraceData(c.Request.Context())

	go func() {
		ctx := context.Background()
		if td != nil {
			ctx = ctxutil.WithTraceData(ctx, td)
		}
		source, err := h.inference.Stream(ctx, session.SessionID, req.Prompt)
		if err != nil {
			h.log.Error("starting inference stream failed", "session_id", session.SessionID, "error", err)
			return
		}
		if err := h.responses.Resume(ctx, session, req.ReplyMessageID, source); err != nil {
			h.log.Error("resume session failed", "session_id", session.SessionID, "error", err)
		}
	}()

	response.RespondOK(c, gin.H{"accepted": true, "session_id": session.SessionID})
}
