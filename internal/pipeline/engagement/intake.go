// internal/pipeline/engagement/intake.go
package engagement

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/xeipuuv/gojsonschema"

	"jobhunter-workers/internal/common/errors"
	"jobhunter-workers/internal/common/logger"
	"jobhunter-workers/internal/models"
)

// eventSchema validates inbound engagement payloads before they touch
// the tracker. The source of the signal does not matter; anything that
// satisfies the schema is accepted.
const eventSchema = `{
	"type": "object",
	"required": ["opportunityId", "channel", "type"],
	"properties": {
		"opportunityId": {"type": "string", "minLength": 1},
		"company":       {"type": "string"},
		"channel":       {"type": "string", "enum": ["email", "linkedin", "twitter"]},
		"type":          {"type": "string", "enum": ["link_click", "reply", "note"]},
		"detail":        {"type": "string"},
		"sentiment":     {"type": "string", "enum": ["positive", "neutral", "negative"]},
		"occurredAt":    {"type": "string", "format": "date-time"}
	},
	"additionalProperties": false
}`

// IntakeHandler accepts engagement events over HTTP POST.
type IntakeHandler struct {
	tracker *Tracker
	schema  *gojsonschema.Schema
	log     logger.Logger
}

func NewIntakeHandler(tracker *Tracker, log logger.Logger) (*IntakeHandler, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(eventSchema))
	if err != nil {
		return nil, errors.NewFatalError("failed to compile engagement schema", err)
	}
	return &IntakeHandler{tracker: tracker, schema: schema, log: log}, nil
}

type intakePayload struct {
	OpportunityID string  `json:"opportunityId"`
	Company       string  `json:"company"`
	Channel       string  `json:"channel"`
	Type          string  `json:"type"`
	Detail        string  `json:"detail"`
	Sentiment     *string `json:"sentiment"`
	OccurredAt    string  `json:"occurredAt"`
}

func (h *IntakeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 64<<10))
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}

	result, err := h.schema.Validate(gojsonschema.NewBytesLoader(body))
	if err != nil {
		http.Error(w, "payload is not valid JSON", http.StatusBadRequest)
		return
	}
	if !result.Valid() {
		var reasons []string
		for _, desc := range result.Errors() {
			reasons = append(reasons, desc.String())
		}
		h.log.Warn("rejected engagement payload", map[string]interface{}{
			"reasons": strings.Join(reasons, "; "),
		})
		http.Error(w, strings.Join(reasons, "; "), http.StatusUnprocessableEntity)
		return
	}

	var payload intakePayload
	if err := json.Unmarshal(body, &payload); err != nil {
		http.Error(w, "failed to decode payload", http.StatusBadRequest)
		return
	}

	event := &models.EngagementEvent{
		OpportunityID: payload.OpportunityID,
		Company:       payload.Company,
		Channel:       models.Channel(payload.Channel),
		Type:          payload.Type,
		Detail:        payload.Detail,
		Sentiment:     payload.Sentiment,
	}
	if payload.OccurredAt != "" {
		if at, err := time.Parse(time.RFC3339, payload.OccurredAt); err == nil {
			event.OccurredAt = at
		}
	}

	if err := h.tracker.Record(r.Context(), event); err != nil {
		if errors.Is(err, errors.ErrCodeInvalidEngagement) {
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
			return
		}
		h.log.Error("failed to record engagement event", map[string]interface{}{
			"error": err.Error(),
		})
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]string{"eventId": event.ID})
}
