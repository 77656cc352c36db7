package rolling

import (
	"math"

	"github.com/maai-ai/featurizer/pkg/common/models"
	"github.com/maai-ai/featurizer/pkg/vocabulary"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Aggregator computes causal sliding-window statistics per base feature.
// The window at hour h covers [max(h-W+1, stay start), h] and never reads a
// later record. Variance-derived statistics over a single sample are zero.
type Aggregator struct {
	features      []vocabulary.Feature
	window        int
	higherMoments bool
}

func New(features []vocabulary.Feature, window int, higherMoments bool) *Aggregator {
	if window < 1 {
		window = 1
	}
	return &Aggregator{features: features, window: window, higherMoments: higherMoments}
}

// Suffixes returns the statistic suffixes this aggregator emits, in column
// order.
func (a *Aggregator) Suffixes() []string {
	suffixes := []string{
		vocabulary.SuffixMean,
		vocabulary.SuffixStd,
		vocabulary.SuffixMin,
		vocabulary.SuffixMax,
	}
	if a.higherMoments {
		suffixes = append(suffixes, vocabulary.SuffixSkew, vocabulary.SuffixKurtosis)
	}
	return suffixes
}

// Aggregate returns a copy of the series with the suffixed statistic
// columns added to every record. Missing values inside the window are
// skipped; the imputation stage runs first, so in practice every window is
// fully populated.
func (a *Aggregator) Aggregate(series *models.EncounterSeries) *models.EncounterSeries {
	out := series.Clone()

	for _, f := range a.features {
		for i, rec := range out.Records {
			start := i - a.window + 1
			if start < 0 {
				start = 0
			}

			window := make([]float64, 0, a.window)
			for j := start; j <= i; j++ {
				if v, ok := out.Records[j].Get(f); ok {
					window = append(window, v)
				}
			}
			a.apply(rec, f, window)
		}
	}

	return out
}

func (a *Aggregator) apply(rec *models.HourlyRecord, f vocabulary.Feature, window []float64) {
	name := string(f)
	if len(window) == 0 {
		rec.Set(vocabulary.Feature(name+vocabulary.SuffixMean), models.Missing())
		rec.Set(vocabulary.Feature(name+vocabulary.SuffixStd), models.Missing())
		rec.Set(vocabulary.Feature(name+vocabulary.SuffixMin), models.Missing())
		rec.Set(vocabulary.Feature(name+vocabulary.SuffixMax), models.Missing())
		if a.higherMoments {
			rec.Set(vocabulary.Feature(name+vocabulary.SuffixSkew), models.Missing())
			rec.Set(vocabulary.Feature(name+vocabulary.SuffixKurtosis), models.Missing())
		}
		return
	}

	rec.Set(vocabulary.Feature(name+vocabulary.SuffixMean), stat.Mean(window, nil))
	rec.Set(vocabulary.Feature(name+vocabulary.SuffixStd), finiteOrZero(stat.StdDev(window, nil)))
	rec.Set(vocabulary.Feature(name+vocabulary.SuffixMin), floats.Min(window))
	rec.Set(vocabulary.Feature(name+vocabulary.SuffixMax), floats.Max(window))
	if a.higherMoments {
		rec.Set(vocabulary.Feature(name+vocabulary.SuffixSkew), finiteOrZero(stat.Skew(window, nil)))
		rec.Set(vocabulary.Feature(name+vocabulary.SuffixKurtosis), finiteOrZero(stat.ExKurtosis(window, nil)))
	}
}

// finiteOrZero maps the NaN that gonum produces for degenerate sample
// counts (single-sample stddev, sub-3-sample skew) onto the defined zero.
func finiteOrZero(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
