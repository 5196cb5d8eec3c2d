// internal/pipeline/engagement/tracker.go
package engagement

import (
	"context"
	"time"

	"github.com/google/uuid"

	"jobhunter-workers/internal/common/errors"
	"jobhunter-workers/internal/common/logger"
	"jobhunter-workers/internal/common/metrics"
	"jobhunter-workers/internal/models"
	"jobhunter-workers/internal/pipeline/lifecycle"
)

// Store is the persistence surface the tracker needs.
type Store interface {
	InsertEngagementEvent(ctx context.Context, e *models.EngagementEvent) error
	EscalatePriorityByCompany(ctx context.Context, company string) (int64, error)
	GetOpportunity(ctx context.Context, id string) (*models.Opportunity, error)
	GetApplicationRecord(ctx context.Context, opportunityID string) (*models.ApplicationRecord, error)
	SaveApplicationRecord(ctx context.Context, r *models.ApplicationRecord) error
}

// Note details that drive the post-response transitions.
const (
	DetailInterviewScheduled = "interview_scheduled"
	DetailRejected           = "rejected"
)

// Tracker records inbound engagement signals, escalates priority on
// high-interest ones, and advances the application lifecycle: a reply
// moves the record to RESPONDED (ending follow-ups), and outcome notes
// close it out as INTERVIEW_SCHEDULED or REJECTED.
type Tracker struct {
	store   Store
	machine *lifecycle.Machine
	log     logger.Logger
	now     func() time.Time
}

func NewTracker(store Store, machine *lifecycle.Machine, log logger.Logger) *Tracker {
	return &Tracker{store: store, machine: machine, log: log, now: time.Now}
}

var validTypes = map[string]bool{
	models.EngagementLinkClick: true,
	models.EngagementReply:     true,
	models.EngagementNote:      true,
}

// Record validates, persists, and reacts to one engagement event.
// Unknown types and channels are rejected before any write.
func (t *Tracker) Record(ctx context.Context, event *models.EngagementEvent) error {
	if !validTypes[event.Type] {
		return errors.NewInvalidEngagementError("unknown event type " + event.Type)
	}
	if !models.ValidChannel(event.Channel) {
		return errors.NewInvalidEngagementError("unknown channel " + string(event.Channel))
	}
	if event.OpportunityID == "" {
		return errors.NewInvalidEngagementError("missing opportunity id")
	}

	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = t.now()
	}
	if event.Company == "" {
		opp, err := t.store.GetOpportunity(ctx, event.OpportunityID)
		if err != nil {
			if !errors.Is(err, errors.ErrCodeNotFound) {
				return err
			}
			// Event references an opportunity this instance never saw.
			// Record it anyway; signals are too rare to drop.
			t.log.Warn("engagement event for unknown opportunity", map[string]interface{}{
				"opportunity": event.OpportunityID,
			})
		} else {
			event.Company = opp.Company
		}
	}

	if err := t.store.InsertEngagementEvent(ctx, event); err != nil {
		return err
	}
	metrics.EngagementEvents.WithLabelValues(event.Type).Inc()

	if event.HighInterest() && event.Company != "" {
		n, err := t.store.EscalatePriorityByCompany(ctx, event.Company)
		if err != nil {
			return err
		}
		t.log.Info("priority escalated on engagement", map[string]interface{}{
			"company":       event.Company,
			"type":          event.Type,
			"opportunities": n,
		})
	}

	return t.advanceLifecycle(ctx, event)
}

// advanceLifecycle applies the event to the application record. A reply
// on outreach that went out moves the record to RESPONDED, which clears
// the follow-up schedule; a negative reply closes it as REJECTED.
// Outcome notes move a responded record to its terminal state.
func (t *Tracker) advanceLifecycle(ctx context.Context, event *models.EngagementEvent) error {
	record, err := t.store.GetApplicationRecord(ctx, event.OpportunityID)
	if err != nil {
		if errors.Is(err, errors.ErrCodeNotFound) {
			return nil
		}
		return err
	}

	changed := false
	switch event.Type {
	case models.EngagementReply:
		if record.Status == models.StatusDispatched || record.Status == models.StatusFollowedUp {
			if err := t.machine.Transition(record, models.StatusResponded,
				"reply received on "+string(event.Channel)); err != nil {
				return err
			}
			changed = true
		}
		if record.Status == models.StatusResponded && event.Sentiment != nil && *event.Sentiment == "negative" {
			if err := t.machine.Transition(record, models.StatusRejected, "negative reply"); err != nil {
				return err
			}
			changed = true
		}

	case models.EngagementNote:
		var to string
		switch event.Detail {
		case DetailInterviewScheduled:
			to = models.StatusInterviewScheduled
		case DetailRejected:
			to = models.StatusRejected
		}
		if to == "" || record.Status != models.StatusResponded {
			break
		}
		if err := t.machine.Transition(record, to, event.Detail); err != nil {
			return err
		}
		changed = true
	}

	if !changed {
		return nil
	}
	t.log.Info("engagement advanced application", map[string]interface{}{
		"opportunity": record.OpportunityID,
		"status":      record.Status,
		"type":        event.Type,
	})
	return t.store.SaveApplicationRecord(ctx, record)
}
