package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/historiasdelamente/detectar-backend/internal/store"
)

// ─── POST /api/send-report ────────────────────────────────────────────────────

type sendReportRequest struct {
	SessionID string `json:"sessionId"`
}

// handleSendReport re-sends the full report to a paid session — the recovery
// path when the fulfillment email bounced or got lost. Unpaid and unknown
// sessions get the same 402 so the endpoint cannot be used to probe ids.
func (s *Server) handleSendReport(w http.ResponseWriter, r *http.Request) {
	var req sendReportRequest
	if !decode(w, r, &req) {
		return
	}

	sessionID, err := uuid.Parse(req.SessionID)
	if err != nil {
		respondErr(w, http.StatusBadRequest, "invalid sessionId")
		return
	}

	err = s.fulfill.ResendReport(r.Context(), sessionID)
	if errors.Is(err, store.ErrNotApproved) {
		respondErr(w, http.StatusPaymentRequired, "session has no approved payment")
		return
	}
	if err != nil {
		s.respondInternalErr(w, r, fmt.Errorf("resend report: %w", err))
		return
	}

	respond(w, http.StatusOK, map[string]bool{"sent": true})
}
