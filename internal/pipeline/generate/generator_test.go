// internal/pipeline/generate/generator_test.go
package generate

import (
	"context"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobhunter-workers/internal/common/config"
	"jobhunter-workers/internal/common/errors"
	"jobhunter-workers/internal/common/logger"
	"jobhunter-workers/internal/common/ratelimit"
	"jobhunter-workers/internal/models"
)

const testLink = "https://portfolio.example/work"

type stubDrafter struct {
	fn func(ctx context.Context, system, user string) (string, error)
}

func (s *stubDrafter) Complete(ctx context.Context, system, user string) (string, error) {
	return s.fn(ctx, system, user)
}

func testGenerator(drafter Drafter) *Generator {
	persona := config.PersonaConfig{
		CredibilityLink: testLink,
		ValueStatement:  "I ship reliable Go services.",
		TargetRole:      "platform engineering",
		SenderName:      "Sam",
	}
	return New(drafter, persona, models.AllChannels, nil, logger.NewNoOpLogger())
}

func fullContact() *models.Contact {
	return &models.Contact{
		ID:             models.ContactID("Acme", "Dana"),
		Name:           "Dana",
		Company:        "Acme",
		Email:          "dana@acme.example",
		LinkedInHandle: "dana-acme",
		TwitterHandle:  "@dana",
	}
}

func testOpportunity() *models.Opportunity {
	return &models.Opportunity{
		ID:      models.OpportunityID("Platform Engineer", "Acme"),
		Title:   "Platform Engineer",
		Company: "Acme",
	}
}

func TestGenerateAppendsCredibilityLink(t *testing.T) {
	g := testGenerator(&stubDrafter{fn: func(ctx context.Context, system, user string) (string, error) {
		return "Hi Dana, saw the platform opening at Acme.", nil
	}})

	msg, err := g.Generate(context.Background(), testOpportunity(), fullContact(),
		[]string{"Acme raised a Series A"}, models.ChannelEmail)
	require.NoError(t, err)
	assert.Contains(t, msg.Body, testLink)
	assert.Equal(t, models.MessageStatusQueued, msg.Status)
}

func TestGenerateSpendsGlobalCallBudget(t *testing.T) {
	limiter := ratelimit.New(logger.NewNoOpLogger())
	limiter.Configure(ratelimit.GlobalBucket, 10, time.Hour)

	drafter := &stubDrafter{fn: func(ctx context.Context, system, user string) (string, error) {
		return "Hi Dana, saw the platform opening at Acme.", nil
	}}
	g := New(drafter, config.PersonaConfig{SenderName: "Sam"}, models.AllChannels, limiter, logger.NewNoOpLogger())

	_, err := g.Generate(context.Background(), testOpportunity(), fullContact(),
		[]string{"Acme raised a Series A"}, models.ChannelEmail)
	require.NoError(t, err)
	assert.Equal(t, 1, limiter.Spent(ratelimit.GlobalBucket))
}

func TestGenerateBlockedByExhaustedGlobalBudget(t *testing.T) {
	limiter := ratelimit.New(logger.NewNoOpLogger())
	limiter.Configure(ratelimit.GlobalBucket, 1, time.Hour)

	called := 0
	drafter := &stubDrafter{fn: func(ctx context.Context, system, user string) (string, error) {
		called++
		return "Hi Dana, saw the platform opening at Acme.", nil
	}}
	g := New(drafter, config.PersonaConfig{SenderName: "Sam"}, models.AllChannels, limiter, logger.NewNoOpLogger())

	_, err := g.Generate(context.Background(), testOpportunity(), fullContact(),
		[]string{"Acme raised a Series A"}, models.ChannelEmail)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = g.Generate(ctx, testOpportunity(), fullContact(),
		[]string{"Acme raised a Series A"}, models.ChannelEmail)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeRateLimited))
	assert.Equal(t, 1, called, "no completion paid once the budget is dry")
}

func TestGenerateEmailWithoutFactsFails(t *testing.T) {
	g := testGenerator(&stubDrafter{fn: func(ctx context.Context, system, user string) (string, error) {
		t.Fatal("drafter should not be called without facts")
		return "", nil
	}})

	_, err := g.Generate(context.Background(), testOpportunity(), fullContact(), nil, models.ChannelEmail)
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeGenerationFailed, errors.CodeOf(err))
}

func TestGenerateTwitterTruncationPreservesLink(t *testing.T) {
	long := strings.Repeat("Interesting platform work at Acme. ", 20)
	g := testGenerator(&stubDrafter{fn: func(ctx context.Context, system, user string) (string, error) {
		return long, nil
	}})

	msg, err := g.Generate(context.Background(), testOpportunity(), fullContact(), nil, models.ChannelTwitter)
	require.NoError(t, err)
	assert.LessOrEqual(t, utf8.RuneCountInString(msg.Body), 280)
	assert.Contains(t, msg.Body, testLink)
	assert.True(t, strings.HasSuffix(msg.Body, testLink), "link should survive at the end")

	// The prose is cut at a word boundary, never mid-word.
	prose := strings.TrimSuffix(msg.Body, "\n"+testLink)
	words := strings.Fields(prose)
	require.NotEmpty(t, words)
	assert.Contains(t, []string{"Interesting", "platform", "work", "at", "Acme."}, words[len(words)-1])
}

func TestGenerateLinkedInLengthCap(t *testing.T) {
	g := testGenerator(&stubDrafter{fn: func(ctx context.Context, system, user string) (string, error) {
		return strings.Repeat("x", 3000), nil
	}})

	msg, err := g.Generate(context.Background(), testOpportunity(), fullContact(), nil, models.ChannelLinkedIn)
	require.NoError(t, err)
	assert.LessOrEqual(t, utf8.RuneCountInString(msg.Body), 2000)
}

func TestGenerateMessageIDIsStable(t *testing.T) {
	g := testGenerator(&stubDrafter{fn: func(ctx context.Context, system, user string) (string, error) {
		return "draft one", nil
	}})

	first, err := g.Generate(context.Background(), testOpportunity(), fullContact(), nil, models.ChannelTwitter)
	require.NoError(t, err)
	second, err := g.Generate(context.Background(), testOpportunity(), fullContact(), nil, models.ChannelTwitter)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
}

func TestGenerateAllSkipsMissingHandlesAndFailedDrafts(t *testing.T) {
	// Contact reachable on linkedin and twitter only; the twitter draft
	// fails. One message survives.
	contact := fullContact()
	contact.Email = ""

	g := testGenerator(&stubDrafter{fn: func(ctx context.Context, system, user string) (string, error) {
		if strings.Contains(user, "Channel: twitter") {
			return "", errors.NewGenerationFailedError("twitter", assert.AnError)
		}
		return "Hi Dana, impressive platform work.", nil
	}})

	messages := g.GenerateAll(context.Background(), testOpportunity(), contact, []string{"fact"}, nil)
	require.Len(t, messages, 1)
	assert.Equal(t, models.ChannelLinkedIn, messages[0].Channel)
}

func TestGenerateAllSkipsIneligibleChannels(t *testing.T) {
	// Drafting is skipped entirely for channels the predicate rejects;
	// no completion is requested for them.
	var drafted []string
	g := testGenerator(&stubDrafter{fn: func(ctx context.Context, system, user string) (string, error) {
		drafted = append(drafted, user)
		return "Hi Dana, impressive platform work.", nil
	}})

	onlyLinkedIn := func(ch models.Channel) bool { return ch == models.ChannelLinkedIn }
	messages := g.GenerateAll(context.Background(), testOpportunity(), fullContact(), []string{"fact"}, onlyLinkedIn)
	require.Len(t, messages, 1)
	assert.Equal(t, models.ChannelLinkedIn, messages[0].Channel)
	assert.Len(t, drafted, 1)
}

func TestGenerateAllNilContactYieldsNothing(t *testing.T) {
	g := testGenerator(&stubDrafter{fn: func(ctx context.Context, system, user string) (string, error) {
		t.Fatal("drafter should not be called without a contact")
		return "", nil
	}})

	assert.Nil(t, g.GenerateAll(context.Background(), testOpportunity(), nil, nil, nil))
}

func TestGenerateUnknownChannelRejected(t *testing.T) {
	g := testGenerator(&stubDrafter{fn: func(ctx context.Context, system, user string) (string, error) {
		return "draft", nil
	}})

	_, err := g.Generate(context.Background(), testOpportunity(), fullContact(), nil, models.Channel("smoke-signal"))
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeChannelUnsupported, errors.CodeOf(err))
}
