package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/calegray/cardflow-backend/internal/data/repos/records"
	"github.com/calegray/cardflow-backend/internal/http/response"
	"github.com/calegray/cardflow-backend/internal/pkg/dbctx"
	apperrors "github.com/calegray/cardflow-backend/internal/pkg/errors"
)

// RecordHandler exposes operator lookups of response records.
type RecordHandler struct {
	recs records.ResponseRecordRepo
}

func NewRecordHandler(recs records.ResponseRecordRepo) *RecordHandler {
	return &RecordHandler{recs: recs}
}

// GET /api/records/:sessionId
func (h *RecordHandler) Get(c *gin.Context) {
	sessionID := c.Param("sessionId")
	dbc := dbctx.Context{Ctx: c.Request.Context()}
	rec, err := h.recs.GetBySessionID(dbc, sessionID)
	if errors.Is(err, apperrors.ErrNotFound) {
		response.RespondError(c, http.StatusNotFound, "record_not_found", err)
		return
	}
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "record_lookup_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"record": rec})
}
