package store_test

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/historiasdelamente/detectar-backend/internal/db"
	"github.com/historiasdelamente/detectar-backend/internal/store"
)

// ─── TEST INFRASTRUCTURE ──────────────────────────────────────────────────────

// openTestStore returns a Store backed by DATABASE_URL. Skips if the env var
// is not set so the suite still passes in CI without a Postgres instance.
func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set — skipping store integration tests")
	}
	pool, err := sql.Open("postgres", dsn)
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	if err := pool.PingContext(context.Background()); err != nil {
		pool.Close()
		t.Fatalf("ping: %v", err)
	}
	t.Cleanup(func() { pool.Close() })
	return store.New(pool, db.New(pool))
}

// testEmail returns an address unique to the running test so enrollment
// rows from different tests never collide on the (email, sequence_number)
// unique key.
func testEmail(t *testing.T) string {
	t.Helper()
	return fmt.Sprintf("%s+%s@test.invalid", t.Name(), uuid.NewString()[:8])
}

// seedSession inserts a minimal scored session and returns it.
func seedSession(t *testing.T, ctx context.Context, st *store.Store) db.QuizSession {
	t.Helper()
	session, err := st.UpsertSession(ctx, store.UpsertSessionParams{
		Answers:    json.RawMessage(`[{"questionId":1,"value":3}]`),
		TotalScore: 3,
		Level:      db.RiskLevelBajo,
		Email:      testEmail(t),
	})
	if err != nil {
		t.Fatalf("seed session: %v", err)
	}
	return session
}

// ─── ENROLLMENT ──────────────────────────────────────────────────────────────

func TestEnroll_CreatesFullSchedule(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	session := seedSession(t, ctx, st)
	now := time.Now().UTC()

	res, err := st.Enroll(ctx, session.Email.String, session.ID, now)
	if err != nil {
		t.Fatalf("Enroll: %v", err)
	}
	if res.AlreadyEnrolled {
		t.Error("first enrollment reported AlreadyEnrolled")
	}

	// All three steps must be visible as pending once their time arrives.
	due, err := st.Q().ListDueSequenceEntries(ctx, db.ListDueSequenceEntriesParams{
		Now:   now.Add(72 * time.Hour),
		Limit: 100,
	})
	if err != nil {
		t.Fatalf("ListDueSequenceEntries: %v", err)
	}
	var mine []db.EmailSequence
	for _, e := range due {
		if e.Email == session.Email.String {
			mine = append(mine, e)
		}
	}
	if len(mine) != 3 {
		t.Fatalf("expected 3 schedule rows, got %d", len(mine))
	}
}

func TestEnroll_SecondCallIsNoOp(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	session := seedSession(t, ctx, st)
	now := time.Now().UTC()

	if _, err := st.Enroll(ctx, session.Email.String, session.ID, now); err != nil {
		t.Fatalf("first Enroll: %v", err)
	}

	// Re-enrolling the same address later must not move its schedule.
	res, err := st.Enroll(ctx, session.Email.String, session.ID, now.Add(time.Hour))
	if err != nil {
		t.Fatalf("second Enroll: %v", err)
	}
	if !res.AlreadyEnrolled {
		t.Error("second enrollment did not report AlreadyEnrolled")
	}
}

// ─── PAYMENT APPROVAL ────────────────────────────────────────────────────────

func TestApprovePayment_FirstWinsDuplicateSeesSentinel(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	session := seedSession(t, ctx, st)

	approved, err := st.ApprovePayment(ctx, session.ID, "pay_1")
	if err != nil {
		t.Fatalf("first ApprovePayment: %v", err)
	}
	if approved.PaymentStatus != db.PaymentStatusApproved {
		t.Errorf("payment_status = %s, want approved", approved.PaymentStatus)
	}
	if approved.PaymentID.String != "pay_1" {
		t.Errorf("payment_id = %q, want pay_1", approved.PaymentID.String)
	}

	// Duplicate confirmation — same payment or a racing second one.
	if _, err := st.ApprovePayment(ctx, session.ID, "pay_2"); !errors.Is(err, store.ErrAlreadyApproved) {
		t.Fatalf("duplicate ApprovePayment error = %v, want ErrAlreadyApproved", err)
	}

	// The first payment reference must survive the duplicate.
	got, err := st.Q().GetSessionByID(ctx, session.ID)
	if err != nil {
		t.Fatalf("GetSessionByID: %v", err)
	}
	if got.PaymentID.String != "pay_1" {
		t.Errorf("payment_id after duplicate = %q, want pay_1", got.PaymentID.String)
	}
}

func TestRejectPayment_NeverRegressesApproval(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	session := seedSession(t, ctx, st)

	if _, err := st.ApprovePayment(ctx, session.ID, "pay_1"); err != nil {
		t.Fatalf("ApprovePayment: %v", err)
	}

	// A late failure notification for an approved session is ignored.
	if err := st.RejectPayment(ctx, session.ID); err != nil {
		t.Fatalf("RejectPayment: %v", err)
	}

	got, err := st.Q().GetSessionByID(ctx, session.ID)
	if err != nil {
		t.Fatalf("GetSessionByID: %v", err)
	}
	if got.PaymentStatus != db.PaymentStatusApproved {
		t.Errorf("payment_status = %s, want approved", got.PaymentStatus)
	}
}

func TestApprovedSession_UnpaidIsRejected(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	session := seedSession(t, ctx, st)

	if _, err := st.ApprovedSession(ctx, session.ID); !errors.Is(err, store.ErrNotApproved) {
		t.Fatalf("unpaid session error = %v, want ErrNotApproved", err)
	}
	if _, err := st.ApprovedSession(ctx, uuid.New()); !errors.Is(err, store.ErrNotApproved) {
		t.Fatalf("unknown session error = %v, want ErrNotApproved", err)
	}

	if _, err := st.ApprovePayment(ctx, session.ID, "pay_1"); err != nil {
		t.Fatalf("ApprovePayment: %v", err)
	}
	if _, err := st.ApprovedSession(ctx, session.ID); err != nil {
		t.Fatalf("approved session error = %v, want nil", err)
	}
}

// ─── SESSION CONVERGENCE ─────────────────────────────────────────────────────

func TestUpsertSession_ConvergesOnExistingRow(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	session := seedSession(t, ctx, st)

	// Second entry path arrives with the same session id and a new email.
	updated, err := st.UpsertSession(ctx, store.UpsertSessionParams{
		SessionID:  session.ID,
		Answers:    json.RawMessage(`[]`),
		TotalScore: 0,
		Level:      db.RiskLevelBajo,
		Email:      "nuevo@test.invalid",
		Name:       "Ana",
	})
	if err != nil {
		t.Fatalf("UpsertSession converge: %v", err)
	}
	if updated.ID != session.ID {
		t.Error("convergence created a second row")
	}
	if updated.Email.String != "nuevo@test.invalid" || updated.Name.String != "Ana" {
		t.Errorf("contact fields = (%q, %q)", updated.Email.String, updated.Name.String)
	}
	// The original quiz snapshot wins.
	if updated.TotalScore != session.TotalScore {
		t.Errorf("total_score = %d, want %d", updated.TotalScore, session.TotalScore)
	}
}

func TestUpsertSession_UnknownIDCreatesFresh(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	ghost := uuid.New()
	session, err := st.UpsertSession(ctx, store.UpsertSessionParams{
		SessionID:  ghost,
		Answers:    json.RawMessage(`[]`),
		TotalScore: 0,
		Level:      db.RiskLevelBajo,
		Email:      testEmail(t),
	})
	if err != nil {
		t.Fatalf("UpsertSession: %v", err)
	}
	if session.ID == ghost {
		t.Error("server must issue its own id for unknown client ids")
	}
}
