// internal/pipeline/dispatch/dispatcher.go
package dispatch

import (
	"context"
	"fmt"
	"time"

	"jobhunter-workers/internal/common/config"
	"jobhunter-workers/internal/common/errors"
	"jobhunter-workers/internal/common/logger"
	"jobhunter-workers/internal/common/metrics"
	"jobhunter-workers/internal/common/ratelimit"
	"jobhunter-workers/internal/common/retry"
	"jobhunter-workers/internal/models"
)

// Dispatcher delivers generated messages, one rate-limit token per
// send. Email goes out live through SES when the channel is configured
// for it; everything else, including email in manual mode, lands in the
// per-channel outbox as a logged dispatch.
type Dispatcher struct {
	limiter  *ratelimit.Limiter
	outbox   *Outbox
	email    EmailSender
	retry    *retry.Policy
	channels map[string]config.ChannelConfig
	log      logger.Logger
	now      func() time.Time
}

func New(limiter *ratelimit.Limiter, outbox *Outbox, email EmailSender, policy *retry.Policy, channels map[string]config.ChannelConfig, log logger.Logger) *Dispatcher {
	return &Dispatcher{
		limiter:  limiter,
		outbox:   outbox,
		email:    email,
		retry:    policy,
		channels: channels,
		log:      log,
		now:      time.Now,
	}
}

// HasBudget reports whether the channel is enabled and has a send token
// available right now. A pre-check only; the token is consumed in
// Dispatch.
func (d *Dispatcher) HasBudget(ch models.Channel) bool {
	chCfg, ok := d.channels[string(ch)]
	if !ok || !chCfg.Enabled {
		return false
	}
	return d.limiter.Available(string(ch))
}

// Dispatch sends one message and returns its terminal dispatch status.
// RATE_LIMITED surfaces as an error with the message untouched so the
// caller can defer it to a later cycle instead of burning the draft.
func (d *Dispatcher) Dispatch(ctx context.Context, msg *models.OutreachMessage, contact *models.Contact) (string, error) {
	chCfg, ok := d.channels[string(msg.Channel)]
	if !ok || !chCfg.Enabled {
		return "", errors.NewChannelUnsupportedError(string(msg.Channel))
	}

	recipient := contact.HandleFor(msg.Channel)
	if recipient == "" {
		return models.MessageStatusFailed, errors.NewDispatchFailedError(string(msg.Channel),
			fmt.Errorf("contact %s has no handle for channel", contact.ID))
	}

	acquireCtx := ctx
	if chCfg.AcquireTimeout > 0 {
		var cancel context.CancelFunc
		acquireCtx, cancel = context.WithTimeout(ctx, chCfg.AcquireTimeout)
		defer cancel()
	}
	// The limiter accounts for waits itself, outcome label included.
	if err := d.limiter.Acquire(acquireCtx, string(msg.Channel)); err != nil {
		return "", err
	}

	status, err := d.deliver(ctx, msg, contact, chCfg, recipient)
	metrics.DispatchesTotal.WithLabelValues(string(msg.Channel), status).Inc()
	return status, err
}

func (d *Dispatcher) deliver(ctx context.Context, msg *models.OutreachMessage, contact *models.Contact, chCfg config.ChannelConfig, recipient string) (string, error) {
	if msg.Channel == models.ChannelEmail && chCfg.LiveSend && d.email != nil {
		subject := fmt.Sprintf("Reaching out about %s", contact.Company)
		err := d.sendEmail(ctx, recipient, subject, msg.Body)
		if err != nil {
			d.log.Error("live email send failed", map[string]interface{}{
				"message": msg.ID,
				"error":   err.Error(),
			})
			return models.MessageStatusFailed, err
		}
		now := d.now()
		msg.Status = models.MessageStatusSent
		msg.SentAt = &now
		return models.MessageStatusSent, nil
	}

	if chCfg.LiveSend {
		// Channel asked for live delivery but no integration is wired
		// for it. Degrade to the outbox rather than dropping the draft.
		sendErr := errors.NewSendUnavailableError(string(msg.Channel))
		d.log.Warn("live send unavailable, falling back to outbox", map[string]interface{}{
			"message": msg.ID,
			"channel": string(msg.Channel),
			"error":   sendErr.Error(),
		})
	}

	if err := d.outbox.Append(msg, recipient); err != nil {
		return models.MessageStatusFailed, err
	}
	d.log.Info("message logged to outbox for manual send", map[string]interface{}{
		"message": msg.ID,
		"channel": string(msg.Channel),
	})
	msg.Status = models.MessageStatusLogged
	return models.MessageStatusLogged, nil
}

func (d *Dispatcher) sendEmail(ctx context.Context, to, subject, body string) error {
	if d.retry == nil {
		return d.email.SendEmail(ctx, to, subject, body)
	}
	return d.retry.Do(ctx, "ses send", func(ctx context.Context) error {
		return d.email.SendEmail(ctx, to, subject, body)
	})
}
