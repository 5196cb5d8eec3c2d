// internal/pipeline/dispatch/outbox.go
package dispatch

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"jobhunter-workers/internal/common/errors"
	"jobhunter-workers/internal/models"
)

// Outbox appends messages awaiting manual send to per-channel JSONL
// files. An outbox entry is a successful dispatch outcome, not a
// failure: channels without a sending API terminate here.
type Outbox struct {
	mu  sync.Mutex
	dir string
}

func NewOutbox(dir string) (*Outbox, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create outbox dir %s: %w", dir, err)
	}
	return &Outbox{dir: dir}, nil
}

type outboxEntry struct {
	MessageID     string    `json:"messageId"`
	OpportunityID string    `json:"opportunityId"`
	Channel       string    `json:"channel"`
	Recipient     string    `json:"recipient"`
	Body          string    `json:"body"`
	LoggedAt      time.Time `json:"loggedAt"`
}

// Append writes one entry to the channel's outbox file. Entries are one
// JSON object per line so the file tails cleanly.
func (o *Outbox) Append(msg *models.OutreachMessage, recipient string) error {
	entry := outboxEntry{
		MessageID:     msg.ID,
		OpportunityID: msg.OpportunityID,
		Channel:       string(msg.Channel),
		Recipient:     recipient,
		Body:          msg.Body,
		LoggedAt:      time.Now().UTC(),
	}
	line, err := json.Marshal(entry)
	if err != nil {
		return errors.NewDispatchFailedError(string(msg.Channel), err)
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	path := filepath.Join(o.dir, string(msg.Channel)+"-outbox.jsonl")
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return errors.NewDispatchFailedError(string(msg.Channel), err)
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return errors.NewDispatchFailedError(string(msg.Channel), err)
	}
	return nil
}
