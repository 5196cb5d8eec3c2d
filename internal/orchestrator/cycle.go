// internal/orchestrator/cycle.go
package orchestrator

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"jobhunter-workers/internal/common/config"
	"jobhunter-workers/internal/common/errors"
	"jobhunter-workers/internal/common/logger"
	"jobhunter-workers/internal/common/metrics"
	"jobhunter-workers/internal/models"
	"jobhunter-workers/internal/pipeline/discovery"
	"jobhunter-workers/internal/pipeline/enrich"
	"jobhunter-workers/internal/pipeline/lifecycle"
	"jobhunter-workers/internal/pipeline/scoring"
)

// Store is the persistence surface a cycle needs.
type Store interface {
	KnownOpportunityIDs(ctx context.Context) (map[string]bool, error)
	UpsertOpportunity(ctx context.Context, o *models.Opportunity) error
	GetOpportunity(ctx context.Context, id string) (*models.Opportunity, error)
	UpdateScore(ctx context.Context, id string, score int, reasons []string) error
	MarkContacted(ctx context.Context, id string) error
	PendingOpportunityIDs(ctx context.Context) ([]string, error)

	UpsertContact(ctx context.Context, c *models.Contact) error
	GetContact(ctx context.Context, id string) (*models.Contact, error)

	UpsertMessage(ctx context.Context, m *models.OutreachMessage) error
	UpdateMessageStatus(ctx context.Context, id, status string, sentAt *time.Time) error
	MessageExists(ctx context.Context, id string) (bool, error)
	MessagesForOpportunity(ctx context.Context, opportunityID string) ([]models.OutreachMessage, error)

	EngagementEvents(ctx context.Context, opportunityID string) ([]models.EngagementEvent, error)

	SaveApplicationRecord(ctx context.Context, r *models.ApplicationRecord) error
	GetApplicationRecord(ctx context.Context, opportunityID string) (*models.ApplicationRecord, error)
	RecordsDueFollowUp(ctx context.Context, now time.Time) ([]string, error)
	StaleRecordIDs(ctx context.Context, cutoff time.Time) ([]string, error)

	UnfinishedRun(ctx context.Context) (string, error)
	StartRun(ctx context.Context, runID string, itemsTotal int) error
	MarkProcessed(ctx context.Context, runID, opportunityID, outcome string) error
	ProcessedIDs(ctx context.Context, runID string) (map[string]bool, error)
	CompleteRun(ctx context.Context, runID, status string) error
}

// Discoverer produces the cycle's candidate opportunities.
type Discoverer interface {
	Collect(ctx context.Context, query string) []*models.Opportunity
}

// Scorer rates one opportunity against the persona.
type Scorer interface {
	Score(opp *models.Opportunity) scoring.Result
}

// Enricher looks up company facts and a contact.
type Enricher interface {
	Enrich(ctx context.Context, company string) (*enrich.Enrichment, error)
}

// Generator drafts channel messages for an enriched opportunity.
type Generator interface {
	GenerateAll(ctx context.Context, opp *models.Opportunity, contact *models.Contact, facts []string, eligible func(models.Channel) bool) []*models.OutreachMessage
}

// Dispatcher sends one message and reports its terminal status.
type Dispatcher interface {
	Dispatch(ctx context.Context, msg *models.OutreachMessage, contact *models.Contact) (string, error)
	HasBudget(ch models.Channel) bool
}

// Stats summarizes one completed cycle.
type Stats struct {
	RunID      string
	Resumed    bool
	Discovered int
	Processed  int
	Dispatched int
	FollowUps  int
	Archived   int
	Duration   time.Duration
}

// Cycle runs the full pipeline end to end: discover, score, enrich,
// generate, dispatch, follow up. Each processed item is checkpointed so
// an interrupted run resumes where it stopped instead of re-contacting
// anyone.
type Cycle struct {
	store      Store
	discoverer Discoverer
	scorer     Scorer
	enricher   Enricher
	generator  Generator
	dispatcher Dispatcher
	machine    *lifecycle.Machine

	persona config.PersonaConfig
	cfg     config.OrchestratorConfig
	query   string
	log     logger.Logger
	now     func() time.Time
}

func NewCycle(store Store, discoverer Discoverer, scorer Scorer, enricher Enricher,
	generator Generator, dispatcher Dispatcher, machine *lifecycle.Machine,
	persona config.PersonaConfig, cfg config.OrchestratorConfig, query string, log logger.Logger) *Cycle {
	return &Cycle{
		store:      store,
		discoverer: discoverer,
		scorer:     scorer,
		enricher:   enricher,
		generator:  generator,
		dispatcher: dispatcher,
		machine:    machine,
		persona:    persona,
		cfg:        cfg,
		query:      query,
		log:        log,
		now:        time.Now,
	}
}

// Run executes one cycle. A FATAL error aborts the run (the scheduler
// decides whether to try again later); any other per-item error is
// isolated to its item.
func (c *Cycle) Run(ctx context.Context) (*Stats, error) {
	start := c.now()
	stats := &Stats{}

	runID, err := c.store.UnfinishedRun(ctx)
	if err != nil {
		return nil, err
	}
	stats.Resumed = runID != ""

	done := map[string]bool{}
	if stats.Resumed {
		c.log.Info("resuming unfinished cycle", map[string]interface{}{"run_id": runID})
		if done, err = c.store.ProcessedIDs(ctx, runID); err != nil {
			return nil, err
		}
	} else {
		runID = uuid.NewString()
		if stats.Discovered, err = c.discover(ctx); err != nil {
			return nil, err
		}
	}
	stats.RunID = runID

	items, err := c.store.PendingOpportunityIDs(ctx)
	if err != nil {
		return nil, err
	}
	if !stats.Resumed {
		if err := c.store.StartRun(ctx, runID, len(items)); err != nil {
			return nil, err
		}
	}

	fatal := c.processAll(ctx, runID, items, done, stats)
	if fatal != nil {
		c.completeRun(runID, "aborted")
		metrics.CyclesCompleted.WithLabelValues("aborted").Inc()
		return nil, fatal
	}

	followUps, err := c.followUps(ctx)
	if err != nil {
		c.completeRun(runID, "aborted")
		metrics.CyclesCompleted.WithLabelValues("aborted").Inc()
		return nil, err
	}
	stats.FollowUps = followUps

	archived, err := c.archiveStale(ctx)
	if err != nil {
		c.completeRun(runID, "aborted")
		metrics.CyclesCompleted.WithLabelValues("aborted").Inc()
		return nil, err
	}
	stats.Archived = archived

	if err := c.store.CompleteRun(ctx, runID, "completed"); err != nil {
		return nil, err
	}

	stats.Duration = c.now().Sub(start)
	metrics.CyclesCompleted.WithLabelValues("completed").Inc()
	metrics.CycleDuration.Observe(stats.Duration.Seconds())
	c.log.Info("cycle completed", map[string]interface{}{
		"run_id":     stats.RunID,
		"resumed":    stats.Resumed,
		"discovered": stats.Discovered,
		"processed":  stats.Processed,
		"dispatched": stats.Dispatched,
		"follow_ups": stats.FollowUps,
		"archived":   stats.Archived,
		"duration":   stats.Duration.String(),
	})
	return stats, nil
}

// discover pulls all sources, drops already-known opportunities, and
// persists the fresh ones with a DISCOVERED record each.
func (c *Cycle) discover(ctx context.Context) (int, error) {
	collected := c.discoverer.Collect(ctx, c.query)

	known, err := c.store.KnownOpportunityIDs(ctx)
	if err != nil {
		return 0, err
	}
	fresh := discovery.FilterKnown(collected, known)

	for _, opp := range fresh {
		if err := c.store.UpsertOpportunity(ctx, opp); err != nil {
			return 0, err
		}
		if err := c.store.SaveApplicationRecord(ctx, c.machine.NewRecord(opp.ID)); err != nil {
			return 0, err
		}
	}
	return len(fresh), nil
}

// processAll drains the work list through a bounded worker pool. The
// first FATAL error cancels the pool; everything else is per-item.
func (c *Cycle) processAll(ctx context.Context, runID string, items []string, done map[string]bool, stats *Stats) error {
	workers := c.cfg.WorkerCount
	if workers < 1 {
		workers = 1
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	work := make(chan string)
	var mu sync.Mutex
	var fatal error
	var processed, dispatched int

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for id := range work {
				outcome, err := c.processOne(ctx, id)
				if err != nil && errors.IsFatal(err) {
					mu.Lock()
					if fatal == nil {
						fatal = err
					}
					mu.Unlock()
					cancel()
					return
				}
				if err != nil {
					c.log.Warn("opportunity processing failed", map[string]interface{}{
						"opportunity": id,
						"error":       err.Error(),
					})
					outcome = "failed"
				}
				metrics.OpportunitiesProcessed.WithLabelValues(outcome).Inc()
				if err := c.store.MarkProcessed(ctx, runID, id, outcome); err != nil {
					c.log.Error("failed to checkpoint item", map[string]interface{}{
						"opportunity": id,
						"error":       err.Error(),
					})
				}
				mu.Lock()
				processed++
				if outcome == "dispatched" {
					dispatched++
				}
				mu.Unlock()
			}
		}()
	}

	for _, id := range items {
		if done[id] {
			continue
		}
		select {
		case work <- id:
		case <-ctx.Done():
		}
	}
	close(work)
	wg.Wait()

	stats.Processed = processed
	stats.Dispatched = dispatched
	if fatal != nil {
		return fatal
	}
	return nil
}

// processOne advances one opportunity as far as it can get this cycle
// and returns the outcome label for the checkpoint.
func (c *Cycle) processOne(ctx context.Context, id string) (string, error) {
	opp, err := c.store.GetOpportunity(ctx, id)
	if err != nil {
		return "", err
	}
	record, err := c.store.GetApplicationRecord(ctx, id)
	if err != nil {
		return "", err
	}
	if record.Status != models.StatusDiscovered {
		return "skipped", nil
	}

	result := c.scorer.Score(opp)
	if err := c.store.UpdateScore(ctx, id, result.Score, result.Reasons); err != nil {
		return "", err
	}
	if err := c.machine.Transition(record, models.StatusScored,
		"scored "+strconv.Itoa(result.Score)); err != nil {
		return "", err
	}
	if !result.Qualified {
		if err := c.machine.Transition(record, models.StatusArchived, "below score floor"); err != nil {
			return "", err
		}
		if err := c.store.SaveApplicationRecord(ctx, record); err != nil {
			return "", err
		}
		return "archived", nil
	}

	enrichment, err := c.enricher.Enrich(ctx, opp.Company)
	if err != nil {
		return "", err
	}
	if err := c.machine.Transition(record, models.StatusEnriched, ""); err != nil {
		return "", err
	}
	if enrichment.Contact != nil {
		if err := c.store.UpsertContact(ctx, enrichment.Contact); err != nil {
			return "", err
		}
	}

	msgs := c.generator.GenerateAll(ctx, opp, enrichment.Contact, enrichment.Facts, c.dispatcher.HasBudget)
	if len(msgs) == 0 {
		if err := c.store.SaveApplicationRecord(ctx, record); err != nil {
			return "", err
		}
		return "no_outreach", nil
	}
	if err := c.machine.Transition(record, models.StatusMessaged, ""); err != nil {
		return "", err
	}

	delivered := 0
	for _, msg := range msgs {
		exists, err := c.store.MessageExists(ctx, msg.ID)
		if err != nil {
			return "", err
		}
		if exists {
			// A prior interrupted attempt persisted this triple already.
			// If it went out, count it and do not send again.
			done, err := c.alreadyDelivered(ctx, opp.ID, msg.ID)
			if err != nil {
				return "", err
			}
			if done {
				delivered++
				continue
			}
		}
		if err := c.store.UpsertMessage(ctx, msg); err != nil {
			return "", err
		}
		if !c.dispatcher.HasBudget(msg.Channel) {
			// No token to spend; the draft stays queued instead of
			// blocking on the limiter.
			c.log.Info("dispatch deferred, channel budget exhausted", map[string]interface{}{
				"message": msg.ID,
				"channel": string(msg.Channel),
			})
			continue
		}
		status, err := c.dispatcher.Dispatch(ctx, msg, enrichment.Contact)
		if err != nil && errors.Is(err, errors.ErrCodeRateLimited) {
			// Budget spent on this channel; the draft stays queued for a
			// later cycle.
			c.log.Info("dispatch deferred by rate limit", map[string]interface{}{
				"message": msg.ID,
				"channel": string(msg.Channel),
			})
			continue
		}
		if err != nil {
			c.log.Warn("dispatch failed", map[string]interface{}{
				"message": msg.ID,
				"channel": string(msg.Channel),
				"error":   err.Error(),
			})
		}
		if err := c.store.UpdateMessageStatus(ctx, msg.ID, msg.Status, msg.SentAt); err != nil {
			return "", err
		}
		if status == models.MessageStatusSent || status == models.MessageStatusLogged {
			delivered++
		}
	}

	outcome := "messaged"
	if delivered > 0 {
		if err := c.machine.Transition(record, models.StatusDispatched,
			fmt.Sprintf("delivered on %d channel(s)", delivered)); err != nil {
			return "", err
		}
		if err := c.store.MarkContacted(ctx, id); err != nil {
			return "", err
		}
		outcome = "dispatched"
	}
	if err := c.store.SaveApplicationRecord(ctx, record); err != nil {
		return "", err
	}
	return outcome, nil
}

// followUps advances every record whose follow-up is due. A follow-up
// that still has budget re-dispatches a short nudge on the channel the
// original outreach went out on.
func (c *Cycle) followUps(ctx context.Context) (int, error) {
	due, err := c.store.RecordsDueFollowUp(ctx, c.now())
	if err != nil {
		return 0, err
	}

	count := 0
	for _, id := range due {
		record, err := c.store.GetApplicationRecord(ctx, id)
		if err != nil {
			c.log.Warn("follow-up record unavailable", map[string]interface{}{
				"opportunity": id,
				"error":       err.Error(),
			})
			continue
		}
		replied, err := c.hasReply(ctx, id)
		if err != nil {
			return count, err
		}
		if replied {
			// The contact already answered; a nudge on top of a live
			// conversation reads badly. Hand the record over instead.
			if err := c.machine.Transition(record, models.StatusResponded, "reply on record, follow-up skipped"); err != nil {
				c.log.Warn("responded transition failed", map[string]interface{}{
					"opportunity": id,
					"error":       err.Error(),
				})
				continue
			}
			if err := c.store.SaveApplicationRecord(ctx, record); err != nil {
				return count, err
			}
			continue
		}
		if err := c.machine.FollowUp(record); err != nil {
			c.log.Warn("follow-up transition failed", map[string]interface{}{
				"opportunity": id,
				"error":       err.Error(),
			})
			continue
		}
		if record.Status == models.StatusFollowedUp {
			if err := c.dispatchFollowUp(ctx, record); err != nil {
				c.log.Warn("follow-up dispatch failed", map[string]interface{}{
					"opportunity": id,
					"error":       err.Error(),
				})
			}
		}
		if err := c.store.SaveApplicationRecord(ctx, record); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

// archiveStale retires records that have gone quiet: nothing scheduled
// and no movement for the configured window.
func (c *Cycle) archiveStale(ctx context.Context) (int, error) {
	if c.cfg.ArchiveAfter <= 0 {
		return 0, nil
	}
	stale, err := c.store.StaleRecordIDs(ctx, c.now().Add(-c.cfg.ArchiveAfter))
	if err != nil {
		return 0, err
	}

	archived := 0
	for _, id := range stale {
		record, err := c.store.GetApplicationRecord(ctx, id)
		if err != nil {
			c.log.Warn("stale record unavailable", map[string]interface{}{
				"opportunity": id,
				"error":       err.Error(),
			})
			continue
		}
		if err := c.machine.Transition(record, models.StatusArchived, "no activity, archived by sweep"); err != nil {
			c.log.Warn("stale archive transition failed", map[string]interface{}{
				"opportunity": id,
				"error":       err.Error(),
			})
			continue
		}
		if err := c.store.SaveApplicationRecord(ctx, record); err != nil {
			return archived, err
		}
		archived++
	}
	return archived, nil
}

func (c *Cycle) dispatchFollowUp(ctx context.Context, record *models.ApplicationRecord) error {
	messages, err := c.store.MessagesForOpportunity(ctx, record.OpportunityID)
	if err != nil {
		return err
	}
	var original *models.OutreachMessage
	for i := range messages {
		if messages[i].Status == models.MessageStatusSent || messages[i].Status == models.MessageStatusLogged {
			original = &messages[i]
			break
		}
	}
	if original == nil {
		return errors.NewDispatchFailedError("follow-up",
			fmt.Errorf("no delivered message to follow up on for %s", record.OpportunityID))
	}

	contact, err := c.store.GetContact(ctx, original.ContactID)
	if err != nil {
		return err
	}
	opp, err := c.store.GetOpportunity(ctx, record.OpportunityID)
	if err != nil {
		return err
	}

	body := fmt.Sprintf("Hi %s, following up on my note about the %s role at %s. Still very interested.",
		contact.Name, opp.Title, opp.Company)
	if c.persona.CredibilityLink != "" {
		body += "\n" + c.persona.CredibilityLink
	}

	// Follow-ups reuse the (opportunity, contact, channel) message
	// identity: the row is rewritten in place rather than minting a
	// sibling, so the triple stays unique in storage.
	followUp := &models.OutreachMessage{
		ID:            models.MessageID(record.OpportunityID, contact.ID, original.Channel),
		OpportunityID: record.OpportunityID,
		ContactID:     contact.ID,
		Channel:       original.Channel,
		Body:          body,
		GeneratedAt:   c.now(),
		Status:        models.MessageStatusQueued,
	}
	if err := c.store.UpsertMessage(ctx, followUp); err != nil {
		return err
	}
	if !c.dispatcher.HasBudget(followUp.Channel) {
		c.log.Info("follow-up deferred, channel budget exhausted", map[string]interface{}{
			"message": followUp.ID,
			"channel": string(followUp.Channel),
		})
		return nil
	}
	if _, err := c.dispatcher.Dispatch(ctx, followUp, contact); err != nil {
		return err
	}
	return c.store.UpdateMessageStatus(ctx, followUp.ID, followUp.Status, followUp.SentAt)
}

// hasReply reports whether a reply engagement event is on record for
// the opportunity.
func (c *Cycle) hasReply(ctx context.Context, opportunityID string) (bool, error) {
	events, err := c.store.EngagementEvents(ctx, opportunityID)
	if err != nil {
		return false, err
	}
	for i := range events {
		if events[i].Type == models.EngagementReply {
			return true, nil
		}
	}
	return false, nil
}

// alreadyDelivered reports whether the persisted message with the given
// id already went out on a prior (possibly interrupted) attempt.
func (c *Cycle) alreadyDelivered(ctx context.Context, opportunityID, messageID string) (bool, error) {
	messages, err := c.store.MessagesForOpportunity(ctx, opportunityID)
	if err != nil {
		return false, err
	}
	for i := range messages {
		if messages[i].ID != messageID {
			continue
		}
		return messages[i].Status == models.MessageStatusSent ||
			messages[i].Status == models.MessageStatusLogged, nil
	}
	return false, nil
}

func (c *Cycle) completeRun(runID, status string) {
	// Best effort on the abort path; the run stays resumable if even
	// this write fails.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.store.CompleteRun(ctx, runID, status); err != nil {
		c.log.Error("failed to finalize run", map[string]interface{}{
			"run_id": runID,
			"error":  err.Error(),
		})
	}
}
