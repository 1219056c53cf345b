package api

import (
	"fmt"
	"net/http"
)

// ─── GET /api/cron/send-emails ────────────────────────────────────────────────

// handleRunSweep runs one drip-sequence pass on behalf of the external
// scheduler. Auth lives in requireCronSecret; by the time this runs the
// caller is trusted.
//
// The response tally lets the scheduler's logs show drift at a glance: a
// growing processed count with a flat sent count means deliveries are
// failing transiently and piling up.
func (s *Server) handleRunSweep(w http.ResponseWriter, r *http.Request) {
	res, err := s.sweeper.Sweep(r.Context())
	if err != nil {
		s.respondInternalErr(w, r, fmt.Errorf("run sweep: %w", err))
		return
	}
	respond(w, http.StatusOK, res)
}
