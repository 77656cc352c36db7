package impute

import (
	"sort"

	"github.com/maai-ai/featurizer/pkg/common/logger"
	"github.com/maai-ai/featurizer/pkg/common/models"
	"github.com/maai-ai/featurizer/pkg/vocabulary"
	"gonum.org/v1/gonum/stat"
)

// FallbackSentinel fills a feature with zero realized values anywhere in
// the population.
const FallbackSentinel = 0.0

// ComputePopulationStats aggregates realized values across every encounter
// into the median used for imputation fallback and the winsorization
// bounds. It must run before any per-encounter fill so imputed values never
// leak into the statistics; both the median and the percentiles come from
// this single snapshot.
func ComputePopulationStats(matrix models.Matrix, features []vocabulary.Feature, lowerPct, upperPct float64) models.PopulationStats {
	stats := models.PopulationStats{
		Median:   make(map[vocabulary.Feature]float64, len(features)),
		Lower:    make(map[vocabulary.Feature]float64, len(features)),
		Upper:    make(map[vocabulary.Feature]float64, len(features)),
		Realized: make(map[vocabulary.Feature]int, len(features)),
	}

	for _, f := range features {
		var values []float64
		for _, series := range matrix {
			for _, rec := range series.Records {
				if v, ok := rec.Get(f); ok {
					values = append(values, v)
				}
			}
		}
		stats.Realized[f] = len(values)
		if len(values) == 0 {
			logger.Log.WithField("feature", string(f)).Warn(
				"Feature has zero realized values across the population; sentinel fallback will apply")
			continue
		}
		sort.Float64s(values)
		stats.Median[f] = stat.Quantile(0.5, stat.Empirical, values, nil)
		stats.Lower[f] = stat.Quantile(lowerPct/100, stat.Empirical, values, nil)
		stats.Upper[f] = stat.Quantile(upperPct/100, stat.Empirical, values, nil)
	}

	return stats
}
