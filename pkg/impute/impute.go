package impute

import (
	"github.com/maai-ai/featurizer/pkg/common/models"
	"github.com/maai-ai/featurizer/pkg/vocabulary"
)

// Imputer fills gaps in an hourly series: bounded per-encounter
// forward-fill first, population median second. After Fill every feature in
// its list is defined at every hour.
type Imputer struct {
	features []vocabulary.Feature
	limit    int // max hours a value may be carried forward; <=0 means unbounded
}

func New(features []vocabulary.Feature, limit int) *Imputer {
	return &Imputer{features: features, limit: limit}
}

// Fill returns a filled copy of the series. The phase order is fixed:
// forward-fill runs to completion before the population fallback so a
// stale-but-within-limit prior value always wins over the population
// median.
func (im *Imputer) Fill(series *models.EncounterSeries, pop models.PopulationStats) *models.EncounterSeries {
	out := series.Clone()
	im.forwardFill(out)
	im.populationFill(out, pop)
	return out
}

// forwardFill carries the last realized value of each feature forward until
// the configured limit of hours has elapsed since it was observed. Values
// are only ever carried forward in time.
func (im *Imputer) forwardFill(series *models.EncounterSeries) {
	for _, f := range im.features {
		lastValue := 0.0
		lastSeen := -1
		for i, rec := range series.Records {
			if v, ok := rec.Get(f); ok {
				lastValue = v
				lastSeen = i
				continue
			}
			if lastSeen < 0 {
				continue // nothing observed yet
			}
			if im.limit > 0 && i-lastSeen > im.limit {
				continue // prior value is stale
			}
			rec.Set(f, lastValue)
		}
	}
}

// populationFill replaces anything still missing with the population
// median, or the sentinel when the whole population never realized the
// feature.
func (im *Imputer) populationFill(series *models.EncounterSeries, pop models.PopulationStats) {
	for _, f := range im.features {
		fallback := pop.MedianOr(f, FallbackSentinel)
		for _, rec := range series.Records {
			if _, ok := rec.Get(f); !ok {
				rec.Set(f, fallback)
			}
		}
	}
}
