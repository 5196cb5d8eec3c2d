// internal/pipeline/discovery/html_source.go
package discovery

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"jobhunter-workers/internal/common/errors"
	"jobhunter-workers/internal/common/logger"
)

// HTMLSource scrapes a board that only serves rendered HTML. The
// registry supplies the CSS selectors, one per field, scoped to a
// repeating listing element.
type HTMLSource struct {
	spec       SourceSpec
	httpClient *http.Client
	log        logger.Logger
}

func NewHTMLSource(spec SourceSpec, httpClient *http.Client, log logger.Logger) *HTMLSource {
	return &HTMLSource{spec: spec, httpClient: httpClient, log: log}
}

func (s *HTMLSource) ID() string { return s.spec.ID }

func (s *HTMLSource) Fetch(ctx context.Context, query string) ([]RawListing, error) {
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
	req.Header.Set("User-Agent", "jobhunter-workers/1.0")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, errors.NewSourceFetchFailedError(s.spec.ID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.NewSourceFetchFailedError(s.spec.ID,
			fmt.Errorf("status %d", resp.StatusCode))
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, errors.NewSourceFetchFailedError(s.spec.ID, err)
	}

	base, _ := url.Parse(s.spec.URL)

	var listings []RawListing
	doc.Find(s.spec.Selectors.Listing).Each(func(_ int, sel *goquery.Selection) {
		title := strings.TrimSpace(sel.Find(s.spec.Selectors.Title).First().Text())
		company := strings.TrimSpace(sel.Find(s.spec.Selectors.Company).First().Text())
		if title == "" || company == "" {
			return
		}

		listing := RawListing{
			Title:   title,
			Company: company,
		}
		if s.spec.Selectors.Location != "" {
			listing.Location = strings.TrimSpace(sel.Find(s.spec.Selectors.Location).First().Text())
		}
		if s.spec.Selectors.Link != "" {
			if href, ok := sel.Find(s.spec.Selectors.Link).First().Attr("href"); ok {
				listing.URL = resolveURL(base, href)
			}
		}
		listings = append(listings, listing)
	})

	s.log.Debug("html source fetched", map[string]interface{}{
		"source":   s.spec.ID,
		"listings": len(listings),
	})
	return listings, nil
}

func resolveURL(base *url.URL, href string) string {
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return ""
	}
	if base == nil {
		return ref.String()
	}
	return base.ResolveReference(ref).String()
}
