// internal/pipeline/generate/generator.go
package generate

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode"

	"jobhunter-workers/internal/common/config"
	"jobhunter-workers/internal/common/errors"
	"jobhunter-workers/internal/common/logger"
	"jobhunter-workers/internal/common/metrics"
	"jobhunter-workers/internal/common/ratelimit"
	"jobhunter-workers/internal/models"
)

// Per-channel hard length limits, in runes.
const (
	twitterLimit  = 280
	linkedinLimit = 2000
)

// Drafter produces message prose from a prompt. The genai client is the
// production implementation.
type Drafter interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// Generator turns an enriched opportunity into channel-specific outreach
// drafts. Generation is all-or-nothing per channel: a draft that cannot
// satisfy its channel's constraints is absent, never truncated into
// nonsense or sent half-formed.
type Generator struct {
	drafter  Drafter
	persona  config.PersonaConfig
	channels []models.Channel
	limiter  *ratelimit.Limiter
	log      logger.Logger
	now      func() time.Time
}

// New builds a Generator. The limiter meters completions against the
// shared external-call budget; nil disables metering.
func New(drafter Drafter, persona config.PersonaConfig, channels []models.Channel, limiter *ratelimit.Limiter, log logger.Logger) *Generator {
	return &Generator{
		drafter:  drafter,
		persona:  persona,
		channels: channels,
		limiter:  limiter,
		log:      log,
		now:      time.Now,
	}
}

// GenerateAll drafts one message per enabled channel. Failures are per
// channel: a channel whose draft fails contributes nothing and the rest
// proceed. Channels the contact is unreachable on are skipped silently,
// as are channels the eligible predicate rejects, so no completion is
// paid for a draft that could not go out anyway.
func (g *Generator) GenerateAll(ctx context.Context, opp *models.Opportunity, contact *models.Contact, facts []string, eligible func(models.Channel) bool) []*models.OutreachMessage {
	if contact == nil {
		g.log.Debug("no contact, skipping generation", map[string]interface{}{
			"opportunity": opp.ID,
		})
		return nil
	}

	var messages []*models.OutreachMessage
	for _, ch := range g.channels {
		if contact.HandleFor(ch) == "" {
			g.log.Debug("contact has no handle for channel", map[string]interface{}{
				"opportunity": opp.ID,
				"channel":     string(ch),
			})
			continue
		}
		if eligible != nil && !eligible(ch) {
			g.log.Debug("channel not eligible, skipping draft", map[string]interface{}{
				"opportunity": opp.ID,
				"channel":     string(ch),
			})
			continue
		}
		msg, err := g.Generate(ctx, opp, contact, facts, ch)
		if err != nil {
			metrics.GenerationFailures.WithLabelValues(string(ch)).Inc()
			g.log.Warn("generation failed for channel", map[string]interface{}{
				"opportunity": opp.ID,
				"channel":     string(ch),
				"error":       err.Error(),
			})
			continue
		}
		messages = append(messages, msg)
	}
	return messages
}

// Generate drafts one message for one channel and enforces the channel's
// constraints on the result.
func (g *Generator) Generate(ctx context.Context, opp *models.Opportunity, contact *models.Contact, facts []string, ch models.Channel) (*models.OutreachMessage, error) {
	if !models.ValidChannel(ch) {
		return nil, errors.NewChannelUnsupportedError(string(ch))
	}

	// Email without a concrete company fact reads as a mass blast and
	// does more harm than silence.
	if ch == models.ChannelEmail && len(facts) == 0 {
		return nil, errors.NewGenerationFailedError(string(ch),
			fmt.Errorf("no company facts available for personalization"))
	}

	if g.limiter != nil {
		if err := g.limiter.Acquire(ctx, ratelimit.GlobalBucket); err != nil {
			return nil, err
		}
	}

	draft, err := g.drafter.Complete(ctx, g.systemPrompt(ch), g.userPrompt(opp, contact, facts, ch))
	if err != nil {
		if errors.Is(err, errors.ErrCodeGenerationFailed) {
			return nil, err
		}
		return nil, errors.NewGenerationFailedError(string(ch), err)
	}

	body := strings.TrimSpace(draft)
	if body == "" {
		return nil, errors.NewGenerationFailedError(string(ch), fmt.Errorf("empty draft"))
	}

	body = g.ensureCredibilityLink(body)
	body, err = fitChannel(body, g.persona.CredibilityLink, ch)
	if err != nil {
		return nil, err
	}

	return &models.OutreachMessage{
		ID:            models.MessageID(opp.ID, contact.ID, ch),
		OpportunityID: opp.ID,
		ContactID:     contact.ID,
		Channel:       ch,
		Body:          body,
		GeneratedAt:   g.now(),
		Status:        models.MessageStatusQueued,
	}, nil
}

func (g *Generator) systemPrompt(ch models.Channel) string {
	var b strings.Builder
	b.WriteString("You write short, specific outreach messages for a job seeker. ")
	b.WriteString("Never use filler praise and never invent facts about the company. ")
	switch ch {
	case models.ChannelTwitter:
		b.WriteString("Write a single direct message under 200 characters.")
	case models.ChannelLinkedIn:
		b.WriteString("Write a LinkedIn connection note under 1500 characters.")
	case models.ChannelEmail:
		b.WriteString("Write a three-paragraph email. Reference at least one supplied company fact.")
	}
	return b.String()
}

func (g *Generator) userPrompt(opp *models.Opportunity, contact *models.Contact, facts []string, ch models.Channel) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Role: %s at %s\n", opp.Title, opp.Company)
	fmt.Fprintf(&b, "Recipient: %s\n", contact.Name)
	fmt.Fprintf(&b, "Sender: %s, targeting %s roles\n", g.persona.SenderName, g.persona.TargetRole)
	if g.persona.ValueStatement != "" {
		fmt.Fprintf(&b, "Sender value statement: %s\n", g.persona.ValueStatement)
	}
	if len(facts) > 0 {
		b.WriteString("Company facts:\n")
		for _, fact := range facts {
			fmt.Fprintf(&b, "- %s\n", fact)
		}
	}
	if g.persona.CredibilityLink != "" {
		fmt.Fprintf(&b, "Include this link: %s\n", g.persona.CredibilityLink)
	}
	fmt.Fprintf(&b, "Channel: %s\n", ch)
	return b.String()
}

func (g *Generator) ensureCredibilityLink(body string) string {
	link := g.persona.CredibilityLink
	if link == "" || strings.Contains(body, link) {
		return body
	}
	return body + "\n" + link
}

// fitChannel enforces the per-channel length limit. Twitter drafts are
// trimmed from the prose end so the credibility link survives the cut;
// a limit that cannot be met even with empty prose fails the draft.
func fitChannel(body, link string, ch models.Channel) (string, error) {
	var limit int
	switch ch {
	case models.ChannelTwitter:
		limit = twitterLimit
	case models.ChannelLinkedIn:
		limit = linkedinLimit
	default:
		return body, nil
	}

	runes := []rune(body)
	if len(runes) <= limit {
		return body, nil
	}

	if ch != models.ChannelTwitter || link == "" || !strings.Contains(body, link) {
		return trimToWord(runes, limit), nil
	}

	// Budget for "<prose>\n<link>".
	proseBudget := limit - len([]rune(link)) - 1
	if proseBudget <= 0 {
		return "", errors.NewGenerationFailedError(string(ch),
			fmt.Errorf("credibility link alone exceeds the %d character limit", limit))
	}

	prose := strings.Replace(body, link, "", 1)
	prose = strings.TrimSpace(prose)
	return trimToWord([]rune(prose), proseBudget) + "\n" + link, nil
}

// trimToWord cuts runes down to at most limit, backing up to the last
// word boundary so the message never ends mid-word.
func trimToWord(runes []rune, limit int) string {
	if len(runes) <= limit {
		return strings.TrimSpace(string(runes))
	}
	cut := string(runes[:limit])
	if i := strings.LastIndexFunc(cut, unicode.IsSpace); i > 0 {
		cut = cut[:i]
	}
	return strings.TrimSpace(cut)
}
