package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/historiasdelamente/detectar-backend/internal/crm"
	"github.com/historiasdelamente/detectar-backend/internal/db"
	"github.com/historiasdelamente/detectar-backend/internal/email"
	"github.com/historiasdelamente/detectar-backend/internal/scoring"
	"github.com/historiasdelamente/detectar-backend/internal/store"
)

// ─── POST /api/capture-email ──────────────────────────────────────────────────

type captureEmailRequest struct {
	Email string `json:"email"`
	Name  string `json:"name"`
	// SessionID is set when the payment path already created a session for
	// this visitor; both paths then converge on the same row.
	SessionID string           `json:"sessionId"`
	Answers   []scoring.Answer `json:"answers"`
}

type captureEmailResponse struct {
	SessionID       string `json:"sessionId"`
	AlreadyEnrolled bool   `json:"alreadyEnrolled"`
}

// handleCaptureEmail persists the quiz outcome, enrolls the address in the
// three-step drip sequence, and tries to deliver step 1 inline.
//
// The inline send is best-effort: enrollment already wrote step 1 as a
// pending row due now, so if the send fails (or the process dies between the
// send and the status write) the sweep picks the step up. The pending → sent
// compare-and-set is what keeps the two paths from double-sending.
func (s *Server) handleCaptureEmail(w http.ResponseWriter, r *http.Request) {
	var req captureEmailRequest
	if !decode(w, r, &req) {
		return
	}

	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Email == "" || !strings.Contains(req.Email, "@") {
		respondErr(w, http.StatusBadRequest, "valid email is required")
		return
	}
	if len(req.Answers) == 0 {
		respondErr(w, http.StatusBadRequest, "answers are required")
		return
	}
	for _, a := range req.Answers {
		if a.Value < 0 || a.Value > 4 {
			respondErr(w, http.StatusBadRequest, fmt.Sprintf("answer value out of range for question %d", a.QuestionID))
			return
		}
	}

	sessionID := uuid.Nil
	if req.SessionID != "" {
		parsed, err := uuid.Parse(req.SessionID)
		if err != nil {
			respondErr(w, http.StatusBadRequest, "invalid sessionId")
			return
		}
		sessionID = parsed
	}

	// ── Persist the quiz outcome ──────────────────────────────────────────────
	result := scoring.CalculateResults(req.Answers)

	answersJSON, err := json.Marshal(req.Answers)
	if err != nil {
		s.respondInternalErr(w, r, fmt.Errorf("marshal answers: %w", err))
		return
	}
	catsJSON, err := json.Marshal(result.CategoryScores)
	if err != nil {
		s.respondInternalErr(w, r, fmt.Errorf("marshal category scores: %w", err))
		return
	}

	session, err := s.store.UpsertSession(r.Context(), store.UpsertSessionParams{
		SessionID:      sessionID,
		Answers:        answersJSON,
		TotalScore:     int32(result.TotalScore),
		Level:          db.RiskLevel(result.Level),
		CategoryScores: catsJSON,
		Email:          req.Email,
		Name:           req.Name,
	})
	if err != nil {
		s.respondInternalErr(w, r, fmt.Errorf("upsert session: %w", err))
		return
	}

	// ── Enroll in the drip sequence ───────────────────────────────────────────
	enrollment, err := s.store.Enroll(r.Context(), req.Email, session.ID, time.Now().UTC())
	if err != nil {
		s.respondInternalErr(w, r, fmt.Errorf("enroll sequence: %w", err))
		return
	}

	// ── Immediate step 1, only for a fresh enrollment ─────────────────────────
	if !enrollment.AlreadyEnrolled {
		s.sendFirstStep(r, req.Email, req.Name, result)
	}

	// ── CRM sync, fire-and-forget ─────────────────────────────────────────────
	// Detached from the request context so a slow Airtable call never delays
	// (or gets cancelled by) the HTTP response.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := s.crm.RecordLead(ctx, crm.Lead{
			Name:       req.Name,
			Email:      req.Email,
			CapturedAt: time.Now().UTC(),
			Score:      result.TotalScore,
			LevelLabel: result.LevelLabel,
		}); err != nil {
			s.logger.Warn("crm sync failed", "email", req.Email, "error", err)
		}
	}()

	respond(w, http.StatusOK, captureEmailResponse{
		SessionID:       session.ID.String(),
		AlreadyEnrolled: enrollment.AlreadyEnrolled,
	})
}

// sendFirstStep attempts the inline delivery of step 1 and records success
// with the same conditional write the sweep uses. Every failure mode leaves
// the row pending so the sweep retries it; nothing here reaches the client.
func (s *Server) sendFirstStep(r *http.Request, to, name string, result scoring.Result) {
	msg, err := email.BuildSequenceEmail(1, email.TemplateData{
		Email:          to,
		Name:           name,
		TotalScore:     result.TotalScore,
		MaxScore:       result.MaxScore,
		Level:          result.Level,
		CategoryScores: result.CategoryScores,
		TopCategory:    scoring.TopCategory(result.CategoryScores),
	})
	if err != nil {
		s.logger.Error("build welcome email", "error", err, logField(r))
		return
	}

	messageID, err := s.mailer.Send(r.Context(), msg)
	if err != nil {
		s.logger.Warn("welcome email failed, sweep will retry",
			"email", to,
			"error", err,
			logField(r),
		)
		return
	}

	affected, err := s.q.MarkStepSent(r.Context(), db.MarkStepSentParams{
		Email:          to,
		SequenceNumber: 1,
		SentAt:         time.Now().UTC(),
		ResendMessageID: sql.NullString{
			String: messageID,
			Valid:  messageID != "",
		},
	})
	if err != nil {
		s.logger.Error("mark welcome step sent", "email", to, "error", err, logField(r))
		return
	}
	if affected == 0 {
		// A sweep pass raced us and already resolved the step.
		s.logger.Debug("welcome step already resolved", "email", to, logField(r))
	}
}
