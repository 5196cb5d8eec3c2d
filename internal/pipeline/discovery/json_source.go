// internal/pipeline/discovery/json_source.go
package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"jobhunter-workers/internal/common/errors"
	"jobhunter-workers/internal/common/logger"
)

// JSONSource fetches a board that serves its listings as a JSON array.
// The registry's field mapping names which keys carry which values, so
// one implementation covers every JSON board.
type JSONSource struct {
	spec       SourceSpec
	httpClient *http.Client
	log        logger.Logger
}

func NewJSONSource(spec SourceSpec, httpClient *http.Client, log logger.Logger) *JSONSource {
	return &JSONSource{spec: spec, httpClient: httpClient, log: log}
}

func (s *JSONSource) ID() string { return s.spec.ID }

func (s *JSONSource) Fetch(ctx context.Context, query string) ([]RawListing, error) {
	endpoint := s.spec.URL
	if query != "" {
		sep := "?"
		if strings.Contains(endpoint, "?") {
			sep = "&"
		}
		endpoint += sep + "q=" + url.QueryEscape(query)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, errors.NewSourceFetchFailedError(s.spec.ID, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, errors.NewSourceFetchFailedError(s.spec.ID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.NewSourceFetchFailedError(s.spec.ID,
			fmt.Errorf("status %d", resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, errors.NewSourceFetchFailedError(s.spec.ID, err)
	}

	items, err := s.listingArray(body)
	if err != nil {
		return nil, errors.NewSourceFetchFailedError(s.spec.ID, err)
	}

	listings := make([]RawListing, 0, len(items))
	for _, item := range items {
		title := stringField(item, s.spec.Fields.Title)
		company := stringField(item, s.spec.Fields.Company)
		if title == "" || company == "" {
			continue
		}
		listings = append(listings, RawListing{
			Title:       title,
			Company:     company,
			Location:    stringField(item, s.spec.Fields.Location),
			Description: stringField(item, s.spec.Fields.Description),
			URL:         stringField(item, s.spec.Fields.URL),
		})
	}

	s.log.Debug("json source fetched", map[string]interface{}{
		"source":   s.spec.ID,
		"listings": len(listings),
	})
	return listings, nil
}

// listingArray locates the array of listing objects, either at the top
// level or under the configured root key.
func (s *JSONSource) listingArray(body []byte) ([]map[string]interface{}, error) {
	if s.spec.Fields.Root == "" {
		var items []map[string]interface{}
		if err := json.Unmarshal(body, &items); err != nil {
			return nil, fmt.Errorf("response is not a listing array: %w", err)
		}
		return items, nil
	}

	var wrapper map[string]json.RawMessage
	if err := json.Unmarshal(body, &wrapper); err != nil {
		return nil, fmt.Errorf("response is not an object: %w", err)
	}
	raw, ok := wrapper[s.spec.Fields.Root]
	if !ok {
		return nil, fmt.Errorf("response has no %q key", s.spec.Fields.Root)
	}
	var items []map[string]interface{}
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("%q is not a listing array: %w", s.spec.Fields.Root, err)
	}
	return items, nil
}

func stringField(item map[string]interface{}, key string) string {
	if key == "" {
		return ""
	}
	if v, ok := item[key].(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}
