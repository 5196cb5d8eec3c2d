// internal/pipeline/scoring/engine.go
package scoring

import (
	"fmt"
	"sort"
	"strings"

	"jobhunter-workers/internal/common/config"
	"jobhunter-workers/internal/common/logger"
	"jobhunter-workers/internal/models"
)

// Dimension names recognized by the rubric. Weights in the persona
// config are keyed by these.
const (
	DimRoleFit         = "role_fit"
	DimStageFit        = "stage_fit"
	DimCompensationFit = "compensation_fit"
	DimAutonomyFit     = "autonomy_fit"
)

// neutralScore applies when a dimension has no declared criteria. An
// opportunity is neither rewarded nor punished for signals the persona
// never asked about.
const neutralScore = 50

// Result is the scored verdict for one opportunity.
type Result struct {
	Score     int
	Reasons   []string
	Qualified bool
}

// Engine scores opportunities against the persona rubric. Scoring is
// pure: the same opportunity and persona always produce the same result.
type Engine struct {
	persona config.PersonaConfig
	log     logger.Logger
}

func NewEngine(persona config.PersonaConfig, log logger.Logger) *Engine {
	return &Engine{persona: persona, log: log}
}

// Score evaluates the opportunity on every weighted dimension and gates
// the total against the persona's floor. Each dimension contributes at
// least one human-readable reason so the verdict is explainable.
func (e *Engine) Score(opp *models.Opportunity) Result {
	if e.excluded(opp) {
		return Result{
			Score:     0,
			Reasons:   []string{fmt.Sprintf("location %q is in an excluded region", opp.Location)},
			Qualified: false,
		}
	}

	text := strings.ToLower(opp.Title + " " + opp.Description)

	dims := map[string][]string{
		DimRoleFit:         e.persona.RoleKeywords,
		DimStageFit:        e.persona.StageKeywords,
		DimCompensationFit: e.persona.CompKeywords,
		DimAutonomyFit:     e.persona.AutonomyCues,
	}

	// Iterate in a fixed order so reasons are stable across runs.
	names := make([]string, 0, len(dims))
	for name := range dims {
		names = append(names, name)
	}
	sort.Strings(names)

	total := 0
	var reasons []string
	for _, name := range names {
		weight := e.persona.Weights[name]
		score, reason := scoreDimension(name, text, dims[name])
		total += weight * score
		reasons = append(reasons, reason)
	}
	total /= 100

	qualified := total >= e.persona.ScoreFloor
	if !qualified {
		reasons = append(reasons, fmt.Sprintf("total %d is below the floor of %d", total, e.persona.ScoreFloor))
	}

	e.log.Debug("opportunity scored", map[string]interface{}{
		"opportunity": opp.ID,
		"score":       total,
		"qualified":   qualified,
	})
	return Result{Score: total, Reasons: reasons, Qualified: qualified}
}

// scoreDimension rates one dimension 0-100 from keyword hits. No
// declared criteria scores neutral; with criteria, the score scales
// with the fraction matched and a full miss scores zero.
func scoreDimension(name, text string, keywords []string) (int, string) {
	if len(keywords) == 0 {
		return neutralScore, fmt.Sprintf("%s: no criteria declared, scored neutral", name)
	}

	var hits []string
	for _, kw := range keywords {
		if kw != "" && strings.Contains(text, strings.ToLower(kw)) {
			hits = append(hits, kw)
		}
	}
	if len(hits) == 0 {
		return 0, fmt.Sprintf("%s: no declared signals present", name)
	}

	score := 100 * len(hits) / len(keywords)
	// A single hit still signals real fit even on a long keyword list.
	if score < 60 {
		score = 60
	}
	return score, fmt.Sprintf("%s: matched %s", name, strings.Join(hits, ", "))
}

func (e *Engine) excluded(opp *models.Opportunity) bool {
	loc := strings.ToLower(opp.Location)
	if loc == "" {
		return false
	}
	for _, region := range e.persona.ExcludeRegions {
		if region != "" && strings.Contains(loc, strings.ToLower(region)) {
			return true
		}
	}
	return false
}
