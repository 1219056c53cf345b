package worker_test

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/historiasdelamente/detectar-backend/internal/db"
	"github.com/historiasdelamente/detectar-backend/internal/email"
	"github.com/historiasdelamente/detectar-backend/internal/worker"
)

// ─── STUBS ───────────────────────────────────────────────────────────────────

// stubQuerier models the schedule table in memory with the same conditional
// semantics as the real queries: terminal writes only land on pending rows.
type stubQuerier struct {
	db.Querier

	sessions map[uuid.UUID]db.QuizSession
	entries  map[uuid.UUID]*db.EmailSequence
}

func newStubQuerier() *stubQuerier {
	return &stubQuerier{
		sessions: make(map[uuid.UUID]db.QuizSession),
		entries:  make(map[uuid.UUID]*db.EmailSequence),
	}
}

func (s *stubQuerier) addSession() db.QuizSession {
	sess := db.QuizSession{
		ID:         uuid.New(),
		Answers:    json.RawMessage(`[{"question_id":1,"value":2}]`),
		TotalScore: 2,
		Level:      db.RiskLevelBajo,
		Email:      sql.NullString{String: "p@example.com", Valid: true},
	}
	s.sessions[sess.ID] = sess
	return sess
}

func (s *stubQuerier) addEntry(sessionID uuid.UUID, step int16, due time.Time) *db.EmailSequence {
	e := &db.EmailSequence{
		ID:             uuid.New(),
		Email:          "p@example.com",
		QuizSessionID:  sessionID,
		SequenceNumber: step,
		Status:         db.SequenceStatusPending,
		ScheduledAt:    due,
	}
	s.entries[e.ID] = e
	return e
}

func (s *stubQuerier) GetSessionByID(_ context.Context, id uuid.UUID) (db.QuizSession, error) {
	sess, ok := s.sessions[id]
	if !ok {
		return db.QuizSession{}, sql.ErrNoRows
	}
	return sess, nil
}

func (s *stubQuerier) ListDueSequenceEntries(_ context.Context, p db.ListDueSequenceEntriesParams) ([]db.EmailSequence, error) {
	var due []db.EmailSequence
	for _, e := range s.entries {
		if e.Status == db.SequenceStatusPending && !e.ScheduledAt.After(p.Now) {
			due = append(due, *e)
		}
		if len(due) == int(p.Limit) {
			break
		}
	}
	return due, nil
}

func (s *stubQuerier) MarkSequenceEntrySent(_ context.Context, p db.MarkSequenceEntrySentParams) (int64, error) {
	e, ok := s.entries[p.ID]
	if !ok || e.Status != db.SequenceStatusPending {
		return 0, nil
	}
	e.Status = db.SequenceStatusSent
	e.SentAt = sql.NullTime{Time: p.SentAt, Valid: true}
	e.ResendMessageID = p.ResendMessageID
	return 1, nil
}

func (s *stubQuerier) MarkSequenceEntryFailed(_ context.Context, id uuid.UUID) (int64, error) {
	e, ok := s.entries[id]
	if !ok || e.Status != db.SequenceStatusPending {
		return 0, nil
	}
	e.Status = db.SequenceStatusFailed
	return 1, nil
}

// scriptedSender returns the next queued error per send, nil once the script
// runs out. It records every delivery.
type scriptedSender struct {
	script []error
	sent   []email.Message
}

func (s *scriptedSender) Send(_ context.Context, m email.Message) (string, error) {
	var err error
	if len(s.script) > 0 {
		err, s.script = s.script[0], s.script[1:]
	}
	if err != nil {
		return "", err
	}
	s.sent = append(s.sent, m)
	return "msg_1", nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func past() time.Time { return time.Now().UTC().Add(-time.Hour) }

// ─── SWEEP ───────────────────────────────────────────────────────────────────

func TestSweep_SendsDueEntriesAndRecordsOutcome(t *testing.T) {
	q := newStubQuerier()
	sess := q.addSession()
	q.addEntry(sess.ID, 1, past())
	q.addEntry(sess.ID, 2, past())
	// Step 3 is not due yet and must be left alone.
	future := q.addEntry(sess.ID, 3, time.Now().UTC().Add(time.Hour))

	sender := &scriptedSender{}
	d := worker.NewDispatcher(q, sender, 0, discardLogger())

	res, err := d.Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if res.Processed != 2 || res.Sent != 2 || res.Failed != 0 {
		t.Errorf("result = %+v, want {2 2 0}", res)
	}
	if len(sender.sent) != 2 {
		t.Errorf("delivered %d emails, want 2", len(sender.sent))
	}
	if future.Status != db.SequenceStatusPending {
		t.Errorf("future entry status = %s, want pending", future.Status)
	}
	for _, e := range q.entries {
		if e.ID != future.ID && e.Status != db.SequenceStatusSent {
			t.Errorf("entry step %d status = %s, want sent", e.SequenceNumber, e.Status)
		}
	}
}

func TestSweep_MissingSessionIsTerminal(t *testing.T) {
	q := newStubQuerier()
	orphan := q.addEntry(uuid.New(), 1, past())

	sender := &scriptedSender{}
	d := worker.NewDispatcher(q, sender, 0, discardLogger())

	res, err := d.Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if res.Failed != 1 {
		t.Errorf("Failed = %d, want 1", res.Failed)
	}
	if orphan.Status != db.SequenceStatusFailed {
		t.Errorf("orphan status = %s, want failed", orphan.Status)
	}
	if len(sender.sent) != 0 {
		t.Error("no email should go out for an orphaned entry")
	}
}

func TestSweep_PermanentRejectionIsTerminal(t *testing.T) {
	q := newStubQuerier()
	sess := q.addSession()
	entry := q.addEntry(sess.ID, 1, past())

	sender := &scriptedSender{script: []error{
		&email.DispatchError{Permanent: true, Err: errors.New("invalid recipient")},
	}}
	d := worker.NewDispatcher(q, sender, 0, discardLogger())

	res, err := d.Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if res.Failed != 1 || res.Sent != 0 {
		t.Errorf("result = %+v, want 1 failed, 0 sent", res)
	}
	if entry.Status != db.SequenceStatusFailed {
		t.Errorf("entry status = %s, want failed", entry.Status)
	}
}

func TestSweep_TransientFailureLeavesEntryPending(t *testing.T) {
	q := newStubQuerier()
	sess := q.addSession()
	entry := q.addEntry(sess.ID, 1, past())

	sender := &scriptedSender{script: []error{
		&email.DispatchError{Err: errors.New("rate limited")},
	}}
	d := worker.NewDispatcher(q, sender, 0, discardLogger())

	res, err := d.Sweep(context.Background())
	if err != nil {
		t.Fatalf("first Sweep: %v", err)
	}
	if res.Sent != 0 || res.Failed != 0 {
		t.Errorf("first pass result = %+v, want no terminal outcomes", res)
	}
	if entry.Status != db.SequenceStatusPending {
		t.Fatalf("entry status = %s, want still pending", entry.Status)
	}

	// The next pass retries the same entry and succeeds — repeated sweeps
	// converge to every due entry resolved.
	res, err = d.Sweep(context.Background())
	if err != nil {
		t.Fatalf("second Sweep: %v", err)
	}
	if res.Sent != 1 {
		t.Errorf("second pass Sent = %d, want 1", res.Sent)
	}
	if entry.Status != db.SequenceStatusSent {
		t.Errorf("entry status = %s, want sent", entry.Status)
	}
	if len(sender.sent) != 1 {
		t.Errorf("delivered %d emails total, want 1", len(sender.sent))
	}
}

func TestSweep_ResolvedEntriesNeverResent(t *testing.T) {
	q := newStubQuerier()
	sess := q.addSession()
	q.addEntry(sess.ID, 1, past())

	sender := &scriptedSender{}
	d := worker.NewDispatcher(q, sender, 0, discardLogger())

	for i := 0; i < 3; i++ {
		if _, err := d.Sweep(context.Background()); err != nil {
			t.Fatalf("Sweep: %v", err)
		}
	}
	if len(sender.sent) != 1 {
		t.Fatalf("delivered %d emails across repeated sweeps, want 1", len(sender.sent))
	}
}

func TestSweep_BatchSizeBoundsOnePass(t *testing.T) {
	q := newStubQuerier()
	sess := q.addSession()
	q.addEntry(sess.ID, 1, past())
	q.addEntry(sess.ID, 2, past())
	q.addEntry(sess.ID, 3, past())

	sender := &scriptedSender{}
	d := worker.NewDispatcher(q, sender, 2, discardLogger())

	res, err := d.Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if res.Processed != 2 {
		t.Errorf("Processed = %d, want batch bound of 2", res.Processed)
	}

	// The remainder resolves on the next pass.
	res, err = d.Sweep(context.Background())
	if err != nil {
		t.Fatalf("second Sweep: %v", err)
	}
	if res.Processed != 1 {
		t.Errorf("second pass Processed = %d, want 1", res.Processed)
	}
}
