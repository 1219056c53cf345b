package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/historiasdelamente/detectar-backend/internal/crm"
	"github.com/historiasdelamente/detectar-backend/internal/db"
	"github.com/historiasdelamente/detectar-backend/internal/payment"
	"github.com/historiasdelamente/detectar-backend/internal/scoring"
	"github.com/historiasdelamente/detectar-backend/internal/store"
)

// ─── POST /api/payment/create ─────────────────────────────────────────────────

type createPaymentRequest struct {
	// SessionID is present when contact capture already created the session;
	// the payment path converges on that row instead of creating a new one.
	SessionID string           `json:"sessionId"`
	Email     string           `json:"email"`
	Answers   []scoring.Answer `json:"answers"`
}

type createPaymentResponse struct {
	SessionID string `json:"sessionId"`
	OrderID   string `json:"orderId"`
	// RedirectURL is set by redirect-style gateways (MercadoPago init_point).
	// Direct-capture gateways leave it empty and the client renders its own
	// payment UI against OrderID.
	RedirectURL string `json:"redirectUrl,omitempty"`
}

// handleCreatePayment makes sure a session row exists for this visitor, then
// opens an order with the configured gateway. The session id travels inside
// the order (custom_id / external_reference) so the later confirmation can
// find its way back without any client cooperation.
func (s *Server) handleCreatePayment(w http.ResponseWriter, r *http.Request) {
	var req createPaymentRequest
	if !decode(w, r, &req) {
		return
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
	if sessionID == uuid.Nil && len(req.Answers) == 0 {
		// Payment with neither a session nor answers has nothing to fulfill.
		respondErr(w, http.StatusBadRequest, "sessionId or answers are required")
		return
	}
	for _, a := range req.Answers {
		if a.Value < 0 || a.Value > 4 {
			respondErr(w, http.StatusBadRequest, fmt.Sprintf("answer value out of range for question %d", a.QuestionID))
			return
		}
	}

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
		Email:          strings.ToLower(strings.TrimSpace(req.Email)),
	})
	if err != nil {
		s.respondInternalErr(w, r, fmt.Errorf("upsert session: %w", err))
		return
	}

	order, err := s.provider.CreateOrder(r.Context(), payment.CreateOrderParams{
		SessionID: session.ID,
		Email:     req.Email,
	})
	if err != nil {
		s.respondInternalErr(w, r, fmt.Errorf("create %s order: %w", s.provider.Name(), err))
		return
	}

	// Record the provider reference on the session. Redirect gateways hand
	// out a preference id; direct-capture gateways an order id.
	params := db.AttachPaymentOrderParams{ID: session.ID}
	if order.RedirectURL != "" {
		params.PreferenceID = nullString(order.Ref)
	} else {
		params.PaymentID = nullString(order.Ref)
	}
	if _, err := s.q.AttachPaymentOrder(r.Context(), params); err != nil {
		s.respondInternalErr(w, r, fmt.Errorf("attach payment order: %w", err))
		return
	}

	respond(w, http.StatusOK, createPaymentResponse{
		SessionID:   session.ID.String(),
		OrderID:     order.Ref,
		RedirectURL: order.RedirectURL,
	})
}

// ─── POST /api/payment/capture ────────────────────────────────────────────────

type capturePaymentRequest struct {
	OrderID string `json:"orderId"`
}

type capturePaymentResponse struct {
	Status    string `json:"status"` // "approved" | "rejected"
	SessionID string `json:"sessionId,omitempty"`
}

// handleCapturePayment is the synchronous confirmation path (PayPal). The
// gateway's verdict — never the client's claim — decides the outcome, and a
// non-completed capture is reported as rejected, not as a server error.
func (s *Server) handleCapturePayment(w http.ResponseWriter, r *http.Request) {
	var req capturePaymentRequest
	if !decode(w, r, &req) {
		return
	}
	if req.OrderID == "" {
		respondErr(w, http.StatusBadRequest, "orderId is required")
		return
	}

	conf, err := s.provider.VerifyAndCapture(r.Context(), req.OrderID)
	if err != nil {
		s.respondInternalErr(w, r, fmt.Errorf("verify %s payment: %w", s.provider.Name(), err))
		return
	}

	sessionID, err := uuid.Parse(conf.SessionRef)
	if err != nil {
		// The order was not created by us (or the gateway dropped the
		// reference). Nothing to fulfill either way.
		s.logger.Error("capture confirmation without usable session reference",
			"order_id", req.OrderID,
			"session_ref", conf.SessionRef,
			logField(r),
		)
		respondErr(w, http.StatusUnprocessableEntity, "unknown order")
		return
	}

	if !conf.Approved {
		if err := s.store.RejectPayment(r.Context(), sessionID); err != nil {
			s.logger.Error("record rejected payment", "session_id", sessionID, "error", err, logField(r))
		}
		respond(w, http.StatusPaymentRequired, capturePaymentResponse{
			Status:    "rejected",
			SessionID: sessionID.String(),
		})
		return
	}

	if err := s.fulfill.Fulfill(r.Context(), sessionID, conf.PaymentRef); err != nil {
		s.respondInternalErr(w, r, fmt.Errorf("fulfill payment: %w", err))
		return
	}

	s.recordPaidLead(r, sessionID)

	respond(w, http.StatusOK, capturePaymentResponse{
		Status:    "approved",
		SessionID: sessionID.String(),
	})
}

// ─── POST /api/payment/webhook ────────────────────────────────────────────────

// handlePaymentWebhook is the asynchronous confirmation path (MercadoPago).
//
// It always answers 200: the gateway retries on anything else, and every
// failure mode here is either permanent (malformed payload, foreign order)
// or already covered by a retry at a different level (the gateway re-sends
// the event, the buyer retriggers verification by returning to the site).
// Duplicate deliveries are absorbed by the fulfillment guard.
func (s *Server) handlePaymentWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 256*1024))
	if err != nil {
		respond(w, http.StatusOK, map[string]bool{"received": true})
		return
	}

	paymentRef, ok := s.provider.WebhookPaymentRef(body)
	if !ok {
		// Not a payment notification (or not a gateway that uses webhooks).
		respond(w, http.StatusOK, map[string]bool{"received": true})
		return
	}

	// Never trust the webhook body's status — re-fetch from the gateway.
	conf, err := s.provider.VerifyAndCapture(r.Context(), paymentRef)
	if err != nil {
		s.logger.Error("webhook payment verification failed",
			"payment_ref", paymentRef,
			"error", err,
			logField(r),
		)
		respond(w, http.StatusOK, map[string]bool{"received": true})
		return
	}

	sessionID, err := uuid.Parse(conf.SessionRef)
	if err != nil {
		s.logger.Error("webhook confirmation without usable session reference",
			"payment_ref", paymentRef,
			"session_ref", conf.SessionRef,
			logField(r),
		)
		respond(w, http.StatusOK, map[string]bool{"received": true})
		return
	}

	if !conf.Approved {
		if err := s.store.RejectPayment(r.Context(), sessionID); err != nil {
			s.logger.Error("record rejected payment", "session_id", sessionID, "error", err, logField(r))
		}
		respond(w, http.StatusOK, map[string]bool{"received": true})
		return
	}

	if err := s.fulfill.Fulfill(r.Context(), sessionID, conf.PaymentRef); err != nil {
		s.logger.Error("webhook fulfillment failed",
			"session_id", sessionID,
			"payment_ref", paymentRef,
			"error", err,
			logField(r),
		)
		respond(w, http.StatusOK, map[string]bool{"received": true})
		return
	}

	s.recordPaidLead(r, sessionID)

	respond(w, http.StatusOK, map[string]bool{"received": true})
}

// recordPaidLead mirrors the purchase to the CRM, fire-and-forget. The
// session is read on the request path; only the Airtable call runs detached.
func (s *Server) recordPaidLead(r *http.Request, sessionID uuid.UUID) {
	session, err := s.q.GetSessionByID(r.Context(), sessionID)
	if err != nil || !session.Email.Valid {
		return
	}
	lead := crm.Lead{
		Name:       session.Name.String,
		Email:      session.Email.String,
		CapturedAt: time.Now().UTC(),
		Score:      int(session.TotalScore),
		LevelLabel: scoring.LevelLabel(scoring.RiskLevel(session.Level)),
		Paid:       true,
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := s.crm.RecordLead(ctx, lead); err != nil {
			s.logger.Warn("crm paid sync failed", "session_id", sessionID, "error", err)
		}
	}()
}

// nullString wraps a string in sql.NullString, empty meaning NULL.
func nullString(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}
