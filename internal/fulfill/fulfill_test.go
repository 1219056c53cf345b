package fulfill_test

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/historiasdelamente/detectar-backend/internal/db"
	"github.com/historiasdelamente/detectar-backend/internal/email"
	"github.com/historiasdelamente/detectar-backend/internal/fulfill"
	"github.com/historiasdelamente/detectar-backend/internal/store"
)

// ─── STUBS ───────────────────────────────────────────────────────────────────

// stubQuerier embeds db.Querier so unimplemented methods panic loudly if the
// code under test reaches them.
type stubQuerier struct {
	db.Querier

	session      db.QuizSession
	approveCalls int
	approveErr   error
}

func (s *stubQuerier) ApproveSessionPayment(_ context.Context, p db.ApproveSessionPaymentParams) (db.QuizSession, error) {
	s.approveCalls++
	if s.approveErr != nil {
		return db.QuizSession{}, s.approveErr
	}
	out := s.session
	out.PaymentStatus = db.PaymentStatusApproved
	out.PaymentID = sql.NullString{String: p.PaymentID, Valid: true}
	// A second confirmation matches zero rows.
	s.approveErr = sql.ErrNoRows
	return out, nil
}

func (s *stubQuerier) GetApprovedSession(context.Context, uuid.UUID) (db.QuizSession, error) {
	if s.session.PaymentStatus != db.PaymentStatusApproved {
		return db.QuizSession{}, sql.ErrNoRows
	}
	return s.session, nil
}

type stubSender struct {
	sent    []email.Message
	sendErr error
}

func (s *stubSender) Send(_ context.Context, m email.Message) (string, error) {
	if s.sendErr != nil {
		return "", s.sendErr
	}
	s.sent = append(s.sent, m)
	return "msg_1", nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func paidableSession() db.QuizSession {
	return db.QuizSession{
		ID:            uuid.New(),
		Answers:       json.RawMessage(`[{"question_id":1,"value":4},{"question_id":3,"value":2}]`),
		TotalScore:    6,
		Level:         db.RiskLevelBajo,
		Email:         sql.NullString{String: "laura@example.com", Valid: true},
		Name:          sql.NullString{String: "Laura", Valid: true},
		PaymentStatus: db.PaymentStatusPending,
	}
}

// ─── FULFILL ─────────────────────────────────────────────────────────────────

func TestFulfill_SendsReportOnceForDuplicateConfirmations(t *testing.T) {
	q := &stubQuerier{session: paidableSession()}
	sender := &stubSender{}
	orch := fulfill.New(store.New(nil, q), sender, discardLogger())

	// First confirmation approves and delivers.
	if err := orch.Fulfill(context.Background(), q.session.ID, "pay_1"); err != nil {
		t.Fatalf("first Fulfill: %v", err)
	}
	// Duplicate deliveries of the same confirmation are acknowledged quietly.
	if err := orch.Fulfill(context.Background(), q.session.ID, "pay_1"); err != nil {
		t.Fatalf("second Fulfill: %v", err)
	}
	if err := orch.Fulfill(context.Background(), q.session.ID, "pay_1"); err != nil {
		t.Fatalf("third Fulfill: %v", err)
	}

	if len(sender.sent) != 1 {
		t.Fatalf("report sent %d times, want exactly 1", len(sender.sent))
	}
	if q.approveCalls != 3 {
		t.Errorf("approve attempts = %d, want 3", q.approveCalls)
	}
	if got := sender.sent[0].To; got != "laura@example.com" {
		t.Errorf("report sent to %q", got)
	}
}

func TestFulfill_EmailFailureDoesNotFailConfirmation(t *testing.T) {
	q := &stubQuerier{session: paidableSession()}
	sender := &stubSender{sendErr: errors.New("resend down")}
	orch := fulfill.New(store.New(nil, q), sender, discardLogger())

	// The approval is durable; the provider must still get an ack.
	if err := orch.Fulfill(context.Background(), q.session.ID, "pay_1"); err != nil {
		t.Fatalf("Fulfill returned %v, want nil despite email failure", err)
	}
}

func TestFulfill_NoEmailOnSessionSkipsDelivery(t *testing.T) {
	s := paidableSession()
	s.Email = sql.NullString{}
	q := &stubQuerier{session: s}
	sender := &stubSender{}
	orch := fulfill.New(store.New(nil, q), sender, discardLogger())

	if err := orch.Fulfill(context.Background(), s.ID, "pay_1"); err != nil {
		t.Fatalf("Fulfill: %v", err)
	}
	if len(sender.sent) != 0 {
		t.Errorf("sent %d emails for a session with no address", len(sender.sent))
	}
}

// ─── RESEND ──────────────────────────────────────────────────────────────────

func TestResendReport_RequiresApprovedSession(t *testing.T) {
	q := &stubQuerier{session: paidableSession()} // still pending
	orch := fulfill.New(store.New(nil, q), &stubSender{}, discardLogger())

	err := orch.ResendReport(context.Background(), q.session.ID)
	if !errors.Is(err, store.ErrNotApproved) {
		t.Fatalf("error = %v, want ErrNotApproved", err)
	}
}

func TestResendReport_SendsToApprovedSession(t *testing.T) {
	s := paidableSession()
	s.PaymentStatus = db.PaymentStatusApproved
	q := &stubQuerier{session: s}
	sender := &stubSender{}
	orch := fulfill.New(store.New(nil, q), sender, discardLogger())

	if err := orch.ResendReport(context.Background(), s.ID); err != nil {
		t.Fatalf("ResendReport: %v", err)
	}
	if len(sender.sent) != 1 {
		t.Fatalf("sent %d emails, want 1", len(sender.sent))
	}
}

func TestResendReport_SurfacesSendFailure(t *testing.T) {
	s := paidableSession()
	s.PaymentStatus = db.PaymentStatusApproved
	q := &stubQuerier{session: s}
	orch := fulfill.New(store.New(nil, q), &stubSender{sendErr: errors.New("resend down")}, discardLogger())

	if err := orch.ResendReport(context.Background(), s.ID); err == nil {
		t.Fatal("expected error when resend delivery fails")
	}
}
