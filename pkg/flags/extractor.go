package flags

import (
	"sort"
	"strings"

	"github.com/maai-ai/featurizer/pkg/common/logger"
	"github.com/maai-ai/featurizer/pkg/common/models"
	"github.com/maai-ai/featurizer/pkg/vocabulary"
)

// Mode selects how event text is matched against group keywords.
type Mode int

const (
	// Exact sets a flag when any keyword appears as a case-insensitive
	// substring of the event text.
	Exact Mode = iota
	// Fuzzy sets a flag when the best token-set similarity between the
	// event text and any keyword reaches the threshold.
	Fuzzy
)

// Extractor derives binary flag columns from free-text medication and
// diagnosis events. Flags aggregate to (encounter, hour) by logical OR:
// one matching event in an hour sets the flag for that hour, regardless of
// how many non-matching events share it.
type Extractor struct {
	groups    map[string][]string
	mode      Mode
	threshold float64
	scorer    Scorer
}

func NewExtractor(groups map[string][]string, mode Mode, threshold float64, scorer Scorer) *Extractor {
	if scorer == nil {
		scorer = TokenSetScorer{}
	}
	if threshold <= 0 {
		threshold = 80
	}
	return &Extractor{groups: groups, mode: mode, threshold: threshold, scorer: scorer}
}

// FlagNames lists the flag columns this extractor produces, sorted for a
// stable output schema.
func (e *Extractor) FlagNames() []vocabulary.Feature {
	names := make([]string, 0, len(e.groups))
	for name := range e.groups {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]vocabulary.Feature, len(names))
	for i, n := range names {
		out[i] = vocabulary.Feature(n)
	}
	return out
}

// Apply stamps every record of the series with one 0/1 column per group,
// reading the pre-bucketed event texts for that encounter. Hours without
// events get explicit zeros so the columns are always defined.
func (e *Extractor) Apply(series *models.EncounterSeries, eventsByHour map[int][]string) *models.EncounterSeries {
	out := series.Clone()
	names := e.FlagNames()

	for _, rec := range out.Records {
		for _, name := range names {
			rec.Set(name, 0)
		}
		for _, text := range eventsByHour[rec.Hour] {
			for _, name := range names {
				if v, _ := rec.Get(name); v == 1 {
					continue // OR semantics: set flags never clear
				}
				if e.matches(text, e.groups[string(name)]) {
					rec.Set(name, 1)
				}
			}
		}
	}

	return out
}

// Match reports whether a single event text activates the named group.
func (e *Extractor) Match(groupName, text string) bool {
	keywords, ok := e.groups[groupName]
	if !ok {
		logger.Log.WithField("group", groupName).Warn("Unknown flag group")
		return false
	}
	return e.matches(text, keywords)
}

func (e *Extractor) matches(text string, keywords []string) bool {
	if e.mode == Fuzzy {
		for _, kw := range keywords {
			if e.scorer.Score(text, kw) >= e.threshold {
				return true
			}
		}
		return false
	}

	lowered := strings.ToLower(text)
	for _, kw := range keywords {
		if strings.Contains(lowered, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}
