// internal/pipeline/lifecycle/machine.go
package lifecycle

import (
	"time"

	"jobhunter-workers/internal/common/config"
	"jobhunter-workers/internal/common/errors"
	"jobhunter-workers/internal/common/logger"
	"jobhunter-workers/internal/models"
)

// transitions is the closed set of legal status moves. ARCHIVED is
// reachable from every non-terminal state, so it is handled separately.
var transitions = map[string][]string{
	models.StatusDiscovered: {models.StatusScored},
	models.StatusScored:     {models.StatusEnriched},
	models.StatusEnriched:   {models.StatusMessaged},
	models.StatusMessaged:   {models.StatusDispatched},
	models.StatusDispatched: {models.StatusResponded, models.StatusFollowedUp},
	models.StatusFollowedUp: {models.StatusResponded, models.StatusFollowedUp},
	models.StatusResponded:  {models.StatusInterviewScheduled, models.StatusRejected},
}

// Machine drives application records through their lifecycle. Every
// transition appends to the timeline; history is never rewritten.
type Machine struct {
	maxFollowUps int
	ladder       []time.Duration
	log          logger.Logger
	now          func() time.Time
}

func NewMachine(cfg config.OrchestratorConfig, log logger.Logger) *Machine {
	return &Machine{
		maxFollowUps: cfg.MaxFollowUps,
		ladder:       cfg.FollowUpLadder,
		log:          log,
		now:          time.Now,
	}
}

// NewRecord starts a record in DISCOVERED with the discovery entry
// already on the timeline.
func (m *Machine) NewRecord(opportunityID string) *models.ApplicationRecord {
	now := m.now()
	return &models.ApplicationRecord{
		OpportunityID: opportunityID,
		Status:        models.StatusDiscovered,
		Timeline: []models.TimelineEntry{
			{Status: models.StatusDiscovered, At: now},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Transition moves the record to a new status, appending a timeline
// entry and maintaining the follow-up schedule. Illegal moves return
// INVALID_TRANSITION with the record untouched.
func (m *Machine) Transition(record *models.ApplicationRecord, to, note string) error {
	if !m.legal(record.Status, to) {
		return errors.NewInvalidTransitionError(record.Status, to)
	}

	now := m.now()
	if to == models.StatusFollowedUp {
		record.FollowUpCount++
	}

	record.Status = to
	record.Timeline = append(record.Timeline, models.TimelineEntry{
		Status: to,
		At:     now,
		Note:   note,
	})
	record.UpdatedAt = now
	m.schedule(record, now)

	m.log.Debug("application transitioned", map[string]interface{}{
		"opportunity": record.OpportunityID,
		"status":      to,
	})
	return nil
}

// FollowUp advances one due record: another follow-up when the budget
// allows, ARCHIVED once it is spent.
func (m *Machine) FollowUp(record *models.ApplicationRecord) error {
	if record.FollowUpCount >= m.maxFollowUps {
		return m.Transition(record, models.StatusArchived, "follow-up budget exhausted")
	}
	return m.Transition(record, models.StatusFollowedUp, "")
}

func (m *Machine) legal(from, to string) bool {
	if to == models.StatusArchived {
		return !(models.ApplicationRecord{Status: from}).Terminal()
	}
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// schedule sets or clears NextFollowUpAt. Outreach that just went out,
// or a follow-up that just fired, books the next rung of the ladder;
// a ladder shorter than the follow-up budget repeats its last rung.
// The last follow-up books one further due time so the record comes up
// for its archive check instead of stranding in FOLLOWED_UP.
// Everything else waits on nothing.
func (m *Machine) schedule(record *models.ApplicationRecord, now time.Time) {
	switch record.Status {
	case models.StatusDispatched, models.StatusFollowedUp:
		if len(m.ladder) > 0 {
			rung := record.FollowUpCount
			if rung >= len(m.ladder) {
				rung = len(m.ladder) - 1
			}
			next := now.Add(m.ladder[rung])
			record.NextFollowUpAt = &next
			return
		}
	}
	record.NextFollowUpAt = nil
}
