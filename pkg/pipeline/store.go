package pipeline

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// RunSummary is the list-view projection of a run.
type RunSummary struct {
	Num         int                 `json:"num"`
	ID          string              `json:"id"`
	Status      RunStatus           `json:"status"`
	StartedAt   time.Time           `json:"started_at"`
	Duration    time.Duration       `json:"duration"`
	TriggeredBy string              `json:"triggered_by,omitempty"`
	Steps       map[Step]StepStatus `json:"steps"`
}

// Store owns every Run record. Exactly one run may be live at a time;
// events are only ever routed to it. All other runs are frozen history.
type Store struct {
	mu      sync.RWMutex
	runs    []*Run // most recent first
	nextNum int
	liveID  string

	dropped int // events rejected or addressed to a dead run
}

func NewStore() *Store {
	return &Store{nextNum: 1}
}

// NewRun allocates the next sequence number, creates a pending run and
// makes it the live run.
func (s *Store) NewRun(services []string, triggeredBy string, at time.Time) *Run {
	s.mu.Lock()
	defer s.mu.Unlock()

	num := s.nextNum
	s.nextNum++
	r := newRun(num, fmt.Sprintf("r%d", num), services, triggeredBy, at)
	s.runs = append([]*Run{r}, s.runs...)
	s.liveID = r.ID
	return r
}

// Append routes an event to the live run. Events addressed to any
// other run id are dropped with a counted anomaly: after an abort the
// collaborators may still be talking about a run that no longer exists.
func (s *Store) Append(ev Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	runID := ev.EventRunID()
	if runID == "" || runID != s.liveID {
		s.dropped++
		log.Debug().Str("run_id", runID).Int("dropped", s.dropped).
			Msg("event for non-live run dropped")
		return unknownRun(runID)
	}
	r := s.findLocked(runID)
	if r == nil || r.frozen {
		s.dropped++
		return unknownRun(runID)
	}
	if err := r.apply(ev); err != nil {
		s.dropped++
		log.Warn().Err(err).Str("run_id", runID).Msg("event rejected")
		return err
	}
	return nil
}

// OverrideStep force-sets a step status outside the legal event edge
// set. Operator interventions (force-proceed marking a failed step
// skipped, retry returning a failed step to running) are the only
// callers; upstream events always go through Append.
func (s *Store) OverrideStep(runID string, step Step, status StepStatus, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := s.findLocked(runID)
	if r == nil || r.frozen {
		return unknownRun(runID)
	}
	if !Known(step) {
		return &StateError{Code: CodeInvalidTransition, RunID: runID, Step: step,
			Message: "unknown step"}
	}
	r.Steps[step] = status
	switch {
	case status == StepRunning:
		r.StepTimes[step] = StepTiming{Start: at, Status: StepRunning}
	case status.Terminal():
		t := r.StepTimes[step]
		if !t.Start.IsZero() && t.Duration == 0 {
			t.Duration = at.Sub(t.Start)
		}
		t.Status = status
		r.StepTimes[step] = t
	}
	return nil
}

// RecordStats attaches derived statistics to the live run. Called by
// the controller just before finalizing.
func (s *Store) RecordStats(runID string, prop []PropagationStat, mttrSecs float64, retries int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := s.findLocked(runID)
	if r == nil {
		return unknownRun(runID)
	}
	if r.frozen {
		return unknownRun(runID)
	}
	r.PropagationStats = append([]PropagationStat{}, prop...)
	r.MTTRSecs = mttrSecs
	r.Retries = retries
	return nil
}

// Finalize sets the terminal status, computes the duration and freezes
// the record. Idempotent for the same outcome; a conflicting repeated
// outcome is an invalid transition.
func (s *Store) Finalize(runID string, outcome RunStatus, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !outcome.Terminal() {
		return &StateError{Code: CodeInvalidTransition, RunID: runID,
			Message: "finalize with non-terminal outcome " + string(outcome)}
	}
	r := s.findLocked(runID)
	if r == nil {
		return unknownRun(runID)
	}
	if r.frozen {
		if r.Status == outcome {
			return nil
		}
		return &StateError{Code: CodeInvalidTransition, RunID: runID,
			Message: fmt.Sprintf("already finalized %s, got %s", r.Status, outcome)}
	}
	r.Status = outcome
	r.Duration = at.Sub(r.StartedAt)
	r.frozen = true
	if s.liveID == runID {
		s.liveID = ""
	}
	log.Info().Str("run_id", runID).Str("status", string(outcome)).
		Dur("duration", r.Duration).Msg("run finalized")
	return nil
}

// List returns run summaries, most recent first.
func (s *Store) List() []RunSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]RunSummary, 0, len(s.runs))
	for _, r := range s.runs {
		steps := make(map[Step]StepStatus, len(r.Steps))
		for k, v := range r.Steps {
			steps[k] = v
		}
		out = append(out, RunSummary{
			Num:         r.Num,
			ID:          r.ID,
			Status:      r.Status,
			StartedAt:   r.StartedAt,
			Duration:    r.Duration,
			TriggeredBy: r.TriggeredBy,
			Steps:       steps,
		})
	}
	return out
}

// Get returns a run by id. Live runs are returned as snapshots so
// readers never race the writer; frozen runs are shared.
func (s *Store) Get(runID string) (*Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r := s.findLocked(runID)
	if r == nil {
		return nil, unknownRun(runID)
	}
	return r.Snapshot(), nil
}

// Live returns a snapshot of the live run, if any.
func (s *Store) Live() (*Run, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.liveID == "" {
		return nil, false
	}
	r := s.findLocked(s.liveID)
	if r == nil {
		return nil, false
	}
	return r.Snapshot(), true
}

// LiveID returns the id of the live run, or "".
func (s *Store) LiveID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.liveID
}

// Dropped returns the count of events dropped or rejected so far.
func (s *Store) Dropped() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dropped
}

func (s *Store) findLocked(runID string) *Run {
	for _, r := range s.runs {
		if r.ID == runID {
			return r
		}
	}
	return nil
}
