package impute

import (
	"github.com/maai-ai/featurizer/pkg/common/models"
	"github.com/maai-ai/featurizer/pkg/vocabulary"
)

// Clipper winsorizes features to the population percentile bounds carried
// in PopulationStats. The bounds come from the same realized-value snapshot
// that produced the imputation medians, so the two statistics cannot drift
// apart. Exempt features (already-bounded clinical scores) pass through.
type Clipper struct {
	features []vocabulary.Feature
	exempt   map[vocabulary.Feature]struct{}
}

func NewClipper(features []vocabulary.Feature, exempt []vocabulary.Feature) *Clipper {
	exemptSet := make(map[vocabulary.Feature]struct{}, len(exempt))
	for _, f := range exempt {
		exemptSet[f] = struct{}{}
	}
	return &Clipper{features: features, exempt: exemptSet}
}

// Clip returns a clipped copy of the series. All values are clipped to the
// inclusive [lower, upper] range, including previously imputed ones.
func (c *Clipper) Clip(series *models.EncounterSeries, pop models.PopulationStats) *models.EncounterSeries {
	out := series.Clone()
	for _, f := range c.features {
		if _, skip := c.exempt[f]; skip {
			continue
		}
		lower, hasLower := pop.Lower[f]
		upper, hasUpper := pop.Upper[f]
		if !hasLower || !hasUpper {
			continue // feature never realized; nothing to bound against
		}
		for _, rec := range out.Records {
			v, ok := rec.Get(f)
			if !ok {
				continue
			}
			if v < lower {
				rec.Set(f, lower)
			} else if v > upper {
				rec.Set(f, upper)
			}
		}
	}
	return out
}
