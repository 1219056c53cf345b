package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/historiasdelamente/detectar-backend/internal/db"
)

// Schedule offsets for the three drip steps, relative to enrollment.
// Step 1 is due immediately; the capture handler tries to send it inline and
// the sweep picks it up if that attempt fails.
var stepOffsets = [3]time.Duration{0, 24 * time.Hour, 48 * time.Hour}

// EnrollResult reports what Enroll actually did.
type EnrollResult struct {
	// AlreadyEnrolled is true when the email had a full schedule before this
	// call. The endpoint reports it so the client can show "ya estás dentro"
	// instead of a fresh welcome.
	AlreadyEnrolled bool
}

// Enroll creates the three-step schedule for an email address. The whole
// schedule goes in as one INSERT with ON CONFLICT (email, sequence_number)
// DO NOTHING, so two concurrent submits of the same address cannot
// double-enroll: the statement is atomic in Postgres, and whichever commits
// second inserts zero rows.
//
// Enrollment is per-email, not per-session: the same address retaking the
// quiz keeps its original schedule (and its original session link).
func (s *Store) Enroll(ctx context.Context, email string, sessionID uuid.UUID, now time.Time) (EnrollResult, error) {
	var scheduled [3]time.Time
	for i, off := range stepOffsets {
		scheduled[i] = now.Add(off)
	}

	inserted, err := s.q.InsertSequenceEntries(ctx, db.InsertSequenceEntriesParams{
		Email:         email,
		QuizSessionID: sessionID,
		ScheduledAt:   scheduled,
	})
	if err != nil {
		return EnrollResult{}, fmt.Errorf("Enroll: insert schedule: %w", err)
	}

	return EnrollResult{AlreadyEnrolled: inserted == 0}, nil
}
