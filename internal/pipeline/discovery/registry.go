// internal/pipeline/discovery/registry.go
package discovery

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"jobhunter-workers/internal/common/logger"
)

// SourceSpec is one entry in the sources registry file.
type SourceSpec struct {
	ID      string `yaml:"id"`
	Type    string `yaml:"type"` // "json" or "html"
	URL     string `yaml:"url"`
	Enabled *bool  `yaml:"enabled"`

	// JSON board field mapping, keys of the listing objects.
	Fields struct {
		Root        string `yaml:"root"` // path to the listing array, empty for top-level
		Title       string `yaml:"title"`
		Company     string `yaml:"company"`
		Location    string `yaml:"location"`
		Description string `yaml:"description"`
		URL         string `yaml:"url"`
	} `yaml:"fields"`

	// HTML board CSS selectors.
	Selectors struct {
		Listing  string `yaml:"listing"`
		Title    string `yaml:"title"`
		Company  string `yaml:"company"`
		Location string `yaml:"location"`
		Link     string `yaml:"link"`
	} `yaml:"selectors"`
}

type registryFile struct {
	Sources []SourceSpec `yaml:"sources"`
}

// LoadRegistry reads the sources YAML and builds a Source per enabled
// entry. Unknown source types are an error at load time rather than at
// fetch time.
func LoadRegistry(path string, timeout time.Duration, log logger.Logger) ([]Source, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read sources registry %s: %w", path, err)
	}

	var file registryFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse sources registry %s: %w", path, err)
	}

	if timeout == 0 {
		timeout = 15 * time.Second
	}
	httpClient := &http.Client{Timeout: timeout}

	var sources []Source
	for _, spec := range file.Sources {
		if spec.Enabled != nil && !*spec.Enabled {
			log.Debug("skipping disabled source", map[string]interface{}{"source": spec.ID})
			continue
		}
		switch spec.Type {
		case "json":
			sources = append(sources, NewJSONSource(spec, httpClient, log))
		case "html":
			sources = append(sources, NewHTMLSource(spec, httpClient, log))
		default:
			return nil, fmt.Errorf("source %s has unknown type %q", spec.ID, spec.Type)
		}
	}

	log.Info("loaded discovery sources", map[string]interface{}{"count": len(sources)})
	return sources, nil
}
