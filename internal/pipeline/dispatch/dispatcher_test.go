// internal/pipeline/dispatch/dispatcher_test.go
package dispatch

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobhunter-workers/internal/common/config"
	"jobhunter-workers/internal/common/errors"
	"jobhunter-workers/internal/common/logger"
	"jobhunter-workers/internal/common/ratelimit"
	"jobhunter-workers/internal/models"
)

type fakeEmailSender struct {
	sent []string
	err  error
}

func (f *fakeEmailSender) SendEmail(ctx context.Context, to, subject, body string) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, to)
	return nil
}

func testChannels(liveEmail bool) map[string]config.ChannelConfig {
	return map[string]config.ChannelConfig{
		"email": {
			Enabled:        true,
			BurstSize:      5,
			RefillInterval: time.Hour,
			AcquireTimeout: 50 * time.Millisecond,
			LiveSend:       liveEmail,
		},
		"linkedin": {
			Enabled:        true,
			BurstSize:      1,
			RefillInterval: time.Hour,
			AcquireTimeout: 50 * time.Millisecond,
		},
	}
}

func newTestDispatcher(t *testing.T, email EmailSender, liveEmail bool) (*Dispatcher, string) {
	channels := testChannels(liveEmail)
	limiter := ratelimit.New(logger.NewNoOpLogger())
	for name, ch := range channels {
		limiter.Configure(name, ch.BurstSize, ch.RefillInterval)
	}

	dir := t.TempDir()
	outbox, err := NewOutbox(dir)
	require.NoError(t, err)

	return New(limiter, outbox, email, nil, channels, logger.NewNoOpLogger()), dir
}

func testMessage(ch models.Channel) *models.OutreachMessage {
	return &models.OutreachMessage{
		ID:            "msg-1",
		OpportunityID: "opp-1",
		ContactID:     "contact-1",
		Channel:       ch,
		Body:          "Hi Dana.",
		Status:        models.MessageStatusQueued,
	}
}

func testContact() *models.Contact {
	return &models.Contact{
		ID:             "contact-1",
		Name:           "Dana",
		Company:        "Acme",
		Email:          "dana@acme.example",
		LinkedInHandle: "dana-acme",
	}
}

func TestDispatchLiveEmail(t *testing.T) {
	sender := &fakeEmailSender{}
	d, _ := newTestDispatcher(t, sender, true)

	msg := testMessage(models.ChannelEmail)
	status, err := d.Dispatch(context.Background(), msg, testContact())
	require.NoError(t, err)
	assert.Equal(t, models.MessageStatusSent, status)
	assert.Equal(t, []string{"dana@acme.example"}, sender.sent)
	require.NotNil(t, msg.SentAt)
}

func TestDispatchManualChannelLandsInOutbox(t *testing.T) {
	d, dir := newTestDispatcher(t, nil, false)

	msg := testMessage(models.ChannelLinkedIn)
	status, err := d.Dispatch(context.Background(), msg, testContact())
	require.NoError(t, err)
	assert.Equal(t, models.MessageStatusLogged, status)

	f, err := os.Open(filepath.Join(dir, "linkedin-outbox.jsonl"))
	require.NoError(t, err)
	defer f.Close()

	scanner := bufio.NewScanner(f)
	require.True(t, scanner.Scan())
	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(scanner.Bytes(), &entry))
	assert.Equal(t, "msg-1", entry["messageId"])
	assert.Equal(t, "dana-acme", entry["recipient"])
	assert.False(t, scanner.Scan(), "exactly one line expected")
}

func TestDispatchEmailManualModeUsesOutbox(t *testing.T) {
	sender := &fakeEmailSender{}
	d, dir := newTestDispatcher(t, sender, false)

	status, err := d.Dispatch(context.Background(), testMessage(models.ChannelEmail), testContact())
	require.NoError(t, err)
	assert.Equal(t, models.MessageStatusLogged, status)
	assert.Empty(t, sender.sent)

	_, err = os.Stat(filepath.Join(dir, "email-outbox.jsonl"))
	assert.NoError(t, err)
}

func TestDispatchLiveSendWithoutSenderFallsBackToOutbox(t *testing.T) {
	// email marked live but no SES client wired in
	d, dir := newTestDispatcher(t, nil, true)

	msg := testMessage(models.ChannelEmail)
	status, err := d.Dispatch(context.Background(), msg, testContact())
	require.NoError(t, err)
	assert.Equal(t, models.MessageStatusLogged, status)
	assert.Equal(t, models.MessageStatusLogged, msg.Status)

	_, err = os.Stat(filepath.Join(dir, "email-outbox.jsonl"))
	assert.NoError(t, err)
}

func TestDispatchSendErrorIsFailed(t *testing.T) {
	sender := &fakeEmailSender{err: errors.NewDispatchFailedError("email", assert.AnError)}
	d, _ := newTestDispatcher(t, sender, true)

	msg := testMessage(models.ChannelEmail)
	status, err := d.Dispatch(context.Background(), msg, testContact())
	require.Error(t, err)
	assert.Equal(t, models.MessageStatusFailed, status)
}

func TestDispatchRateLimitedLeavesMessageQueued(t *testing.T) {
	d, _ := newTestDispatcher(t, nil, false)
	contact := testContact()

	// linkedin has a burst of one; the second send exhausts the bucket.
	first := testMessage(models.ChannelLinkedIn)
	_, err := d.Dispatch(context.Background(), first, contact)
	require.NoError(t, err)

	second := testMessage(models.ChannelLinkedIn)
	second.ID = "msg-2"
	status, err := d.Dispatch(context.Background(), second, contact)
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeRateLimited, errors.CodeOf(err))
	assert.Empty(t, status)
	assert.Equal(t, models.MessageStatusQueued, second.Status)
}

func TestDispatchMissingHandleFails(t *testing.T) {
	d, _ := newTestDispatcher(t, nil, false)
	contact := testContact()
	contact.LinkedInHandle = ""

	status, err := d.Dispatch(context.Background(), testMessage(models.ChannelLinkedIn), contact)
	require.Error(t, err)
	assert.Equal(t, models.MessageStatusFailed, status)
	assert.Equal(t, errors.ErrCodeDispatchFailed, errors.CodeOf(err))
}

func TestDispatchDisabledChannelRejected(t *testing.T) {
	d, _ := newTestDispatcher(t, nil, false)

	status, err := d.Dispatch(context.Background(), testMessage(models.ChannelTwitter), testContact())
	require.Error(t, err)
	assert.Empty(t, status)
	assert.Equal(t, errors.ErrCodeChannelUnsupported, errors.CodeOf(err))
}
