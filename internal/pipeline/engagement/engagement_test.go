// internal/pipeline/engagement/engagement_test.go
package engagement

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobhunter-workers/internal/common/config"
	"jobhunter-workers/internal/common/errors"
	"jobhunter-workers/internal/common/logger"
	"jobhunter-workers/internal/models"
	"jobhunter-workers/internal/pipeline/lifecycle"
)

type mockStore struct {
	inserted  []*models.EngagementEvent
	escalated []string
	getOpp    func(id string) (*models.Opportunity, error)
	records   map[string]*models.ApplicationRecord
	saved     []string
}

func (m *mockStore) InsertEngagementEvent(ctx context.Context, e *models.EngagementEvent) error {
	m.inserted = append(m.inserted, e)
	return nil
}

func (m *mockStore) EscalatePriorityByCompany(ctx context.Context, company string) (int64, error) {
	m.escalated = append(m.escalated, company)
	return 1, nil
}

func (m *mockStore) GetOpportunity(ctx context.Context, id string) (*models.Opportunity, error) {
	if m.getOpp != nil {
		return m.getOpp(id)
	}
	return &models.Opportunity{ID: id, Company: "Acme"}, nil
}

func (m *mockStore) GetApplicationRecord(ctx context.Context, opportunityID string) (*models.ApplicationRecord, error) {
	if r, ok := m.records[opportunityID]; ok {
		return r, nil
	}
	return nil, errors.NewNotFoundError("application record", opportunityID)
}

func (m *mockStore) SaveApplicationRecord(ctx context.Context, r *models.ApplicationRecord) error {
	if m.records == nil {
		m.records = map[string]*models.ApplicationRecord{}
	}
	m.records[r.OpportunityID] = r
	m.saved = append(m.saved, r.OpportunityID)
	return nil
}

func newTracker(store *mockStore) *Tracker {
	machine := lifecycle.NewMachine(config.OrchestratorConfig{MaxFollowUps: 3}, logger.NewNoOpLogger())
	return NewTracker(store, machine, logger.NewNoOpLogger())
}

func TestRecordLinkClickEscalates(t *testing.T) {
	store := &mockStore{}
	tracker := newTracker(store)

	err := tracker.Record(context.Background(), &models.EngagementEvent{
		OpportunityID: "opp-1",
		Channel:       models.ChannelEmail,
		Type:          models.EngagementLinkClick,
	})
	require.NoError(t, err)
	require.Len(t, store.inserted, 1)
	assert.Equal(t, []string{"Acme"}, store.escalated)
	// ID and timestamp are filled in by the tracker.
	assert.NotEmpty(t, store.inserted[0].ID)
	assert.False(t, store.inserted[0].OccurredAt.IsZero())
}

func TestRecordNegativeReplyDoesNotEscalate(t *testing.T) {
	store := &mockStore{}
	tracker := newTracker(store)

	negative := "negative"
	err := tracker.Record(context.Background(), &models.EngagementEvent{
		OpportunityID: "opp-1",
		Channel:       models.ChannelLinkedIn,
		Type:          models.EngagementReply,
		Sentiment:     &negative,
	})
	require.NoError(t, err)
	require.Len(t, store.inserted, 1)
	assert.Empty(t, store.escalated)
}

func TestRecordNoteNeverEscalates(t *testing.T) {
	store := &mockStore{}
	tracker := newTracker(store)

	err := tracker.Record(context.Background(), &models.EngagementEvent{
		OpportunityID: "opp-1",
		Channel:       models.ChannelTwitter,
		Type:          models.EngagementNote,
	})
	require.NoError(t, err)
	assert.Empty(t, store.escalated)
}

func TestRecordUnknownTypeRejected(t *testing.T) {
	store := &mockStore{}
	tracker := newTracker(store)

	err := tracker.Record(context.Background(), &models.EngagementEvent{
		OpportunityID: "opp-1",
		Channel:       models.ChannelEmail,
		Type:          "ghosted",
	})
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeInvalidEngagement, errors.CodeOf(err))
	assert.Empty(t, store.inserted)
}

func TestRecordUnknownOpportunityStillRecorded(t *testing.T) {
	store := &mockStore{getOpp: func(id string) (*models.Opportunity, error) {
		return nil, errors.NewNotFoundError("opportunity", id)
	}}
	tracker := newTracker(store)

	err := tracker.Record(context.Background(), &models.EngagementEvent{
		OpportunityID: "never-seen",
		Channel:       models.ChannelEmail,
		Type:          models.EngagementLinkClick,
	})
	require.NoError(t, err)
	require.Len(t, store.inserted, 1)
	// No company resolved, so no escalation target.
	assert.Empty(t, store.escalated)
}

func newIntake(t *testing.T, store *mockStore) *IntakeHandler {
	h, err := NewIntakeHandler(newTracker(store), logger.NewNoOpLogger())
	require.NoError(t, err)
	return h
}

func TestIntakeAcceptsValidPayload(t *testing.T) {
	store := &mockStore{}
	h := newIntake(t, store)

	req := httptest.NewRequest(http.MethodPost, "/engagement", strings.NewReader(
		`{"opportunityId":"opp-1","channel":"email","type":"reply","sentiment":"positive"}`))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	require.Len(t, store.inserted, 1)
	assert.Equal(t, models.EngagementReply, store.inserted[0].Type)
	assert.Contains(t, rec.Body.String(), "eventId")
}

func TestIntakeRejectsSchemaViolations(t *testing.T) {
	store := &mockStore{}
	h := newIntake(t, store)

	cases := []struct {
		name string
		body string
	}{
		{"missing opportunity id", `{"channel":"email","type":"reply"}`},
		{"bad channel", `{"opportunityId":"x","channel":"fax","type":"reply"}`},
		{"bad type", `{"opportunityId":"x","channel":"email","type":"vibe"}`},
		{"unknown field", `{"opportunityId":"x","channel":"email","type":"reply","surprise":1}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/engagement", strings.NewReader(tc.body))
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		})
	}
	assert.Empty(t, store.inserted)
}

func TestIntakeRejectsNonPost(t *testing.T) {
	h := newIntake(t, &mockStore{})
	req := httptest.NewRequest(http.MethodGet, "/engagement", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func dispatchedRecord(oppID string) *models.ApplicationRecord {
	due := time.Now().Add(-time.Hour)
	return &models.ApplicationRecord{
		OpportunityID:  oppID,
		Status:         models.StatusDispatched,
		Timeline:       []models.TimelineEntry{{Status: models.StatusDispatched, At: due}},
		NextFollowUpAt: &due,
	}
}

func TestReplyMovesRecordToResponded(t *testing.T) {
	store := &mockStore{records: map[string]*models.ApplicationRecord{
		"opp-1": dispatchedRecord("opp-1"),
	}}
	tracker := newTracker(store)

	positive := "positive"
	err := tracker.Record(context.Background(), &models.EngagementEvent{
		OpportunityID: "opp-1",
		Channel:       models.ChannelEmail,
		Type:          models.EngagementReply,
		Sentiment:     &positive,
	})
	require.NoError(t, err)

	record := store.records["opp-1"]
	assert.Equal(t, models.StatusResponded, record.Status)
	// A contact who replied is never followed up again.
	assert.Nil(t, record.NextFollowUpAt)
	assert.Equal(t, []string{"opp-1"}, store.saved)
}

func TestNegativeReplyClosesAsRejected(t *testing.T) {
	store := &mockStore{records: map[string]*models.ApplicationRecord{
		"opp-1": dispatchedRecord("opp-1"),
	}}
	tracker := newTracker(store)

	negative := "negative"
	err := tracker.Record(context.Background(), &models.EngagementEvent{
		OpportunityID: "opp-1",
		Channel:       models.ChannelLinkedIn,
		Type:          models.EngagementReply,
		Sentiment:     &negative,
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusRejected, store.records["opp-1"].Status)
}

func TestOutcomeNotesCloseRespondedRecord(t *testing.T) {
	cases := []struct {
		detail string
		want   string
	}{
		{DetailInterviewScheduled, models.StatusInterviewScheduled},
		{DetailRejected, models.StatusRejected},
	}
	for _, tc := range cases {
		t.Run(tc.detail, func(t *testing.T) {
			record := dispatchedRecord("opp-1")
			record.Status = models.StatusResponded
			record.NextFollowUpAt = nil
			store := &mockStore{records: map[string]*models.ApplicationRecord{"opp-1": record}}
			tracker := newTracker(store)

			err := tracker.Record(context.Background(), &models.EngagementEvent{
				OpportunityID: "opp-1",
				Channel:       models.ChannelEmail,
				Type:          models.EngagementNote,
				Detail:        tc.detail,
			})
			require.NoError(t, err)
			assert.Equal(t, tc.want, store.records["opp-1"].Status)
		})
	}
}

func TestReplyBeforeDispatchLeavesRecordAlone(t *testing.T) {
	record := dispatchedRecord("opp-1")
	record.Status = models.StatusMessaged
	record.NextFollowUpAt = nil
	store := &mockStore{records: map[string]*models.ApplicationRecord{"opp-1": record}}
	tracker := newTracker(store)

	err := tracker.Record(context.Background(), &models.EngagementEvent{
		OpportunityID: "opp-1",
		Channel:       models.ChannelEmail,
		Type:          models.EngagementReply,
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusMessaged, record.Status)
	assert.Empty(t, store.saved)
}
