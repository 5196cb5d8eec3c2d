// internal/store/store.go
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/lib/pq"

	"jobhunter-workers/internal/common/errors"
	"jobhunter-workers/internal/common/logger"
	"jobhunter-workers/internal/models"
)

// Store persists pipeline state in Postgres. Every write keyed by a
// content fingerprint is an upsert, so re-running a cycle over the same
// inputs never duplicates rows.
type Store struct {
	db  *sql.DB
	log logger.Logger
}

func New(db *sql.DB, log logger.Logger) *Store {
	return &Store{db: db, log: log}
}

// --- opportunities ---

func (s *Store) UpsertOpportunity(ctx context.Context, o *models.Opportunity) error {
	query := `
		INSERT INTO opportunities
			(id, title, company, location, description, source, url, discovered_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
		ON CONFLICT (id) DO UPDATE SET
			location    = COALESCE(NULLIF(EXCLUDED.location, ''), opportunities.location),
			description = COALESCE(NULLIF(EXCLUDED.description, ''), opportunities.description),
			url         = COALESCE(NULLIF(EXCLUDED.url, ''), opportunities.url),
			updated_at  = NOW()`
	_, err := s.db.ExecContext(ctx, query,
		o.ID, o.Title, o.Company, o.Location, o.Description, o.Source, o.URL, o.DiscoveredAt)
	if err != nil {
		return errors.NewFatalError("failed to upsert opportunity", err)
	}
	return nil
}

// KnownOpportunityIDs returns the full set of persisted opportunity ids.
// Discovery uses it to drop cross-cycle duplicates before scoring.
func (s *Store) KnownOpportunityIDs(ctx context.Context) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM opportunities`)
	if err != nil {
		return nil, errors.NewFatalError("failed to list opportunity ids", err)
	}
	defer rows.Close()

	known := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, errors.NewFatalError("failed to scan opportunity id", err)
		}
		known[id] = true
	}
	return known, rows.Err()
}

func (s *Store) GetOpportunity(ctx context.Context, id string) (*models.Opportunity, error) {
	query := `
		SELECT id, title, company, COALESCE(location, ''), COALESCE(description, ''),
		       source, COALESCE(url, ''), discovered_at, score, score_reasons,
		       priority_tier, contacted
		FROM opportunities WHERE id = $1`
	var o models.Opportunity
	var reasons pq.StringArray
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&o.ID, &o.Title, &o.Company, &o.Location, &o.Description,
		&o.Source, &o.URL, &o.DiscoveredAt, &o.Score, &reasons,
		&o.PriorityTier, &o.Contacted)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFoundError("opportunity", id)
	}
	if err != nil {
		return nil, errors.NewFatalError("failed to load opportunity", err)
	}
	o.ScoreReasons = reasons
	return &o, nil
}

func (s *Store) UpdateScore(ctx context.Context, id string, score int, reasons []string) error {
	query := `UPDATE opportunities SET score = $2, score_reasons = $3, updated_at = NOW() WHERE id = $1`
	_, err := s.db.ExecContext(ctx, query, id, score, pq.Array(reasons))
	if err != nil {
		return errors.NewFatalError("failed to update score", err)
	}
	return nil
}

func (s *Store) MarkContacted(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE opportunities SET contacted = TRUE, updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return errors.NewFatalError("failed to mark opportunity contacted", err)
	}
	return nil
}

// EscalatePriorityByCompany bumps the tier of every open opportunity at
// the company. High-interest engagement signals apply company wide, not
// just to the opportunity the signal arrived on.
func (s *Store) EscalatePriorityByCompany(ctx context.Context, company string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE opportunities SET priority_tier = priority_tier + 1, updated_at = NOW() WHERE company = $1`,
		company)
	if err != nil {
		return 0, errors.NewFatalError("failed to escalate priority", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// PendingOpportunityIDs lists opportunities whose records have not yet
// entered outreach, highest priority tier first. This is the work list
// for a cycle, and what a resumed run re-derives its items from.
func (s *Store) PendingOpportunityIDs(ctx context.Context) ([]string, error) {
	query := `
		SELECT o.id FROM opportunities o
		JOIN application_records r ON r.opportunity_id = o.id
		WHERE r.status = 'DISCOVERED'
		ORDER BY o.priority_tier DESC, o.discovered_at DESC`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, errors.NewFatalError("failed to list pending opportunities", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, errors.NewFatalError("failed to scan pending opportunity", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// --- contacts ---

func (s *Store) UpsertContact(ctx context.Context, c *models.Contact) error {
	query := `
		INSERT INTO contacts
			(id, name, company, linkedin_handle, twitter_handle, email,
			 last_activity_at, confidence, refreshed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			linkedin_handle  = COALESCE(NULLIF(EXCLUDED.linkedin_handle, ''), contacts.linkedin_handle),
			twitter_handle   = COALESCE(NULLIF(EXCLUDED.twitter_handle, ''), contacts.twitter_handle),
			email            = COALESCE(NULLIF(EXCLUDED.email, ''), contacts.email),
			last_activity_at = COALESCE(EXCLUDED.last_activity_at, contacts.last_activity_at),
			confidence       = GREATEST(EXCLUDED.confidence, contacts.confidence),
			refreshed_at     = EXCLUDED.refreshed_at`
	_, err := s.db.ExecContext(ctx, query,
		c.ID, c.Name, c.Company, c.LinkedInHandle, c.TwitterHandle, c.Email,
		c.LastActivityAt, c.Confidence, c.RefreshedAt)
	if err != nil {
		return errors.NewFatalError("failed to upsert contact", err)
	}
	return nil
}

func (s *Store) GetContact(ctx context.Context, id string) (*models.Contact, error) {
	query := `
		SELECT id, name, company, COALESCE(linkedin_handle, ''), COALESCE(twitter_handle, ''),
		       COALESCE(email, ''), last_activity_at, confidence, refreshed_at
		FROM contacts WHERE id = $1`
	var c models.Contact
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&c.ID, &c.Name, &c.Company, &c.LinkedInHandle, &c.TwitterHandle,
		&c.Email, &c.LastActivityAt, &c.Confidence, &c.RefreshedAt)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFoundError("contact", id)
	}
	if err != nil {
		return nil, errors.NewFatalError("failed to load contact", err)
	}
	return &c, nil
}

// --- outreach messages ---

func (s *Store) UpsertMessage(ctx context.Context, m *models.OutreachMessage) error {
	query := `
		INSERT INTO outreach_messages
			(id, opportunity_id, contact_id, channel, body, generated_at, status, sent_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			body         = EXCLUDED.body,
			generated_at = EXCLUDED.generated_at,
			status       = EXCLUDED.status,
			sent_at      = COALESCE(EXCLUDED.sent_at, outreach_messages.sent_at)`
	_, err := s.db.ExecContext(ctx, query,
		m.ID, m.OpportunityID, m.ContactID, string(m.Channel), m.Body,
		m.GeneratedAt, m.Status, m.SentAt)
	if err != nil {
		return errors.NewFatalError("failed to upsert message", err)
	}
	return nil
}

func (s *Store) UpdateMessageStatus(ctx context.Context, id, status string, sentAt *time.Time) error {
	query := `UPDATE outreach_messages SET status = $2, sent_at = COALESCE($3, sent_at) WHERE id = $1`
	_, err := s.db.ExecContext(ctx, query, id, status, sentAt)
	if err != nil {
		return errors.NewFatalError("failed to update message status", err)
	}
	return nil
}

// MessageExists reports whether a message for the (opportunity, contact,
// channel) triple was already generated in a previous cycle.
func (s *Store) MessageExists(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM outreach_messages WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return false, errors.NewFatalError("failed to check message existence", err)
	}
	return exists, nil
}

// MessagesForOpportunity returns the opportunity's messages, newest
// first.
func (s *Store) MessagesForOpportunity(ctx context.Context, opportunityID string) ([]models.OutreachMessage, error) {
	query := `
		SELECT id, opportunity_id, contact_id, channel, body, generated_at, status, sent_at
		FROM outreach_messages WHERE opportunity_id = $1 ORDER BY generated_at DESC`
	rows, err := s.db.QueryContext(ctx, query, opportunityID)
	if err != nil {
		return nil, errors.NewFatalError("failed to list messages", err)
	}
	defer rows.Close()

	var messages []models.OutreachMessage
	for rows.Next() {
		var m models.OutreachMessage
		var channel string
		if err := rows.Scan(&m.ID, &m.OpportunityID, &m.ContactID, &channel,
			&m.Body, &m.GeneratedAt, &m.Status, &m.SentAt); err != nil {
			return nil, errors.NewFatalError("failed to scan message", err)
		}
		m.Channel = models.Channel(channel)
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

// --- engagement events ---

// InsertEngagementEvent is append only. Duplicate ids are ignored so
// replayed webhook deliveries do not double count.
func (s *Store) InsertEngagementEvent(ctx context.Context, e *models.EngagementEvent) error {
	query := `
		INSERT INTO engagement_events
			(id, opportunity_id, company, channel, type, detail, sentiment, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING`
	_, err := s.db.ExecContext(ctx, query,
		e.ID, e.OpportunityID, e.Company, string(e.Channel), e.Type,
		e.Detail, e.Sentiment, e.OccurredAt)
	if err != nil {
		return errors.NewFatalError("failed to insert engagement event", err)
	}
	return nil
}

func (s *Store) EngagementEvents(ctx context.Context, opportunityID string) ([]models.EngagementEvent, error) {
	query := `
		SELECT id, opportunity_id, COALESCE(company, ''), channel, type,
		       COALESCE(detail, ''), sentiment, occurred_at
		FROM engagement_events WHERE opportunity_id = $1 ORDER BY occurred_at`
	rows, err := s.db.QueryContext(ctx, query, opportunityID)
	if err != nil {
		return nil, errors.NewFatalError("failed to list engagement events", err)
	}
	defer rows.Close()

	var events []models.EngagementEvent
	for rows.Next() {
		var e models.EngagementEvent
		var channel string
		if err := rows.Scan(&e.ID, &e.OpportunityID, &e.Company, &channel, &e.Type,
			&e.Detail, &e.Sentiment, &e.OccurredAt); err != nil {
			return nil, errors.NewFatalError("failed to scan engagement event", err)
		}
		e.Channel = models.Channel(channel)
		events = append(events, e)
	}
	return events, rows.Err()
}

// --- application records ---

func (s *Store) SaveApplicationRecord(ctx context.Context, r *models.ApplicationRecord) error {
	timeline, err := json.Marshal(r.Timeline)
	if err != nil {
		return errors.NewStateCorruptedError("failed to encode timeline", err)
	}
	query := `
		INSERT INTO application_records
			(opportunity_id, status, timeline, follow_up_count, next_follow_up_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		ON CONFLICT (opportunity_id) DO UPDATE SET
			status            = EXCLUDED.status,
			timeline          = EXCLUDED.timeline,
			follow_up_count   = EXCLUDED.follow_up_count,
			next_follow_up_at = EXCLUDED.next_follow_up_at,
			updated_at        = NOW()`
	_, err = s.db.ExecContext(ctx, query,
		r.OpportunityID, r.Status, timeline, r.FollowUpCount, r.NextFollowUpAt, r.CreatedAt)
	if err != nil {
		return errors.NewFatalError("failed to save application record", err)
	}
	return nil
}

func (s *Store) GetApplicationRecord(ctx context.Context, opportunityID string) (*models.ApplicationRecord, error) {
	query := `
		SELECT opportunity_id, status, timeline, follow_up_count, next_follow_up_at, created_at, updated_at
		FROM application_records WHERE opportunity_id = $1`
	var r models.ApplicationRecord
	var timeline []byte
	err := s.db.QueryRowContext(ctx, query, opportunityID).Scan(
		&r.OpportunityID, &r.Status, &timeline, &r.FollowUpCount,
		&r.NextFollowUpAt, &r.CreatedAt, &r.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFoundError("application record", opportunityID)
	}
	if err != nil {
		return nil, errors.NewFatalError("failed to load application record", err)
	}
	if err := json.Unmarshal(timeline, &r.Timeline); err != nil {
		return nil, errors.NewStateCorruptedError("failed to decode timeline", err)
	}
	return &r, nil
}

// RecordsDueFollowUp lists non-terminal records whose next follow-up
// time has passed.
func (s *Store) RecordsDueFollowUp(ctx context.Context, now time.Time) ([]string, error) {
	query := `
		SELECT opportunity_id FROM application_records
		WHERE next_follow_up_at IS NOT NULL AND next_follow_up_at <= $1
		  AND status NOT IN ('RESPONDED', 'ARCHIVED', 'REJECTED')
		ORDER BY next_follow_up_at`
	rows, err := s.db.QueryContext(ctx, query, now)
	if err != nil {
		return nil, errors.NewFatalError("failed to list due follow-ups", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, errors.NewFatalError("failed to scan follow-up id", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// StaleRecordIDs lists non-terminal records with nothing scheduled that
// have not moved since the cutoff. These are candidates for archival.
func (s *Store) StaleRecordIDs(ctx context.Context, cutoff time.Time) ([]string, error) {
	query := `
		SELECT opportunity_id FROM application_records
		WHERE next_follow_up_at IS NULL
		  AND status NOT IN ('INTERVIEW_SCHEDULED', 'ARCHIVED', 'REJECTED')
		  AND updated_at < $1
		ORDER BY updated_at`
	rows, err := s.db.QueryContext(ctx, query, cutoff)
	if err != nil {
		return nil, errors.NewFatalError("failed to list stale records", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, errors.NewFatalError("failed to scan stale record id", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// --- cycle checkpoints ---

// UnfinishedRun returns the id of a previous run that never completed,
// or "" when the last run finished cleanly.
func (s *Store) UnfinishedRun(ctx context.Context) (string, error) {
	var runID string
	err := s.db.QueryRowContext(ctx,
		`SELECT run_id FROM cycle_runs WHERE status = 'running' ORDER BY started_at DESC LIMIT 1`).
		Scan(&runID)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", errors.NewCheckpointFailedError("", err)
	}
	return runID, nil
}

func (s *Store) StartRun(ctx context.Context, runID string, itemsTotal int) error {
	query := `
		INSERT INTO cycle_runs (run_id, items_total) VALUES ($1, $2)
		ON CONFLICT (run_id) DO UPDATE SET items_total = EXCLUDED.items_total`
	if _, err := s.db.ExecContext(ctx, query, runID, itemsTotal); err != nil {
		return errors.NewCheckpointFailedError(runID, err)
	}
	return nil
}

// MarkProcessed checkpoints one item. A resumed run skips every id
// already present for its run_id.
func (s *Store) MarkProcessed(ctx context.Context, runID, opportunityID, outcome string) error {
	query := `
		INSERT INTO cycle_items (run_id, opportunity_id, outcome) VALUES ($1, $2, $3)
		ON CONFLICT (run_id, opportunity_id) DO NOTHING`
	if _, err := s.db.ExecContext(ctx, query, runID, opportunityID, outcome); err != nil {
		return errors.NewCheckpointFailedError(runID, err)
	}
	if _, err := s.db.ExecContext(ctx,
		`UPDATE cycle_runs SET items_done = items_done + 1 WHERE run_id = $1`, runID); err != nil {
		return errors.NewCheckpointFailedError(runID, err)
	}
	return nil
}

func (s *Store) ProcessedIDs(ctx context.Context, runID string) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT opportunity_id FROM cycle_items WHERE run_id = $1`, runID)
	if err != nil {
		return nil, errors.NewCheckpointFailedError(runID, err)
	}
	defer rows.Close()

	done := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, errors.NewCheckpointFailedError(runID, err)
		}
		done[id] = true
	}
	return done, rows.Err()
}

func (s *Store) CompleteRun(ctx context.Context, runID, status string) error {
	query := `UPDATE cycle_runs SET status = $2, completed_at = NOW() WHERE run_id = $1`
	if _, err := s.db.ExecContext(ctx, query, runID, status); err != nil {
		return errors.NewCheckpointFailedError(runID, err)
	}
	return nil
}
