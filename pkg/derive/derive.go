package derive

import (
	"fmt"
	"math"

	"github.com/maai-ai/featurizer/pkg/common/models"
	"github.com/maai-ai/featurizer/pkg/vocabulary"
	"gonum.org/v1/gonum/stat"
)

// Derived column names.
const (
	SFRatio         vocabulary.Feature = "sf_ratio"
	BunCrRatio      vocabulary.Feature = "bun_cr_ratio"
	NLRatio         vocabulary.Feature = "nl_ratio"
	ShockIndex      vocabulary.Feature = "shock_index"
	ShockIndexHigh  vocabulary.Feature = "age_adjusted_shock_index_high"
	AnionGap        vocabulary.Feature = "anion_gap"
	DeltaAnionGap   vocabulary.Feature = "delta_anion_gap"
	HourOfDaySine   vocabulary.Feature = "hour_sin"
	HourOfDayCosine vocabulary.Feature = "hour_cos"
)

// Normal reference values for the anion gap delta.
const (
	normalAnionGap    = 12.0
	normalBicarbonate = 24.0
)

// ageShockBand maps a patient age band to the shock index value above
// which the age-adjusted flag trips.
type ageShockBand struct {
	maxAgeYears float64
	threshold   float64
}

// Pediatric age-adjusted shock index thresholds (SIPA-style bands).
var shockBands = []ageShockBand{
	{maxAgeYears: 1, threshold: 1.8},
	{maxAgeYears: 4, threshold: 1.5},
	{maxAgeYears: 6, threshold: 1.3},
	{maxAgeYears: 12, threshold: 1.0},
	{maxAgeYears: math.Inf(1), threshold: 0.9},
}

// Synthesizer computes derived clinical values per (encounter, hour):
// ratios, composite indices, anion-gap deltas, lagged rates of change,
// patient z-scores, and cyclical hour-of-day encodings. A zero or missing
// denominator yields the missing marker, resolved by a later fill.
type Synthesizer struct {
	rocFeatures []vocabulary.Feature
	rocLag      int
	zFeatures   []vocabulary.Feature
}

func New(rocFeatures []vocabulary.Feature, rocLag int, zFeatures []vocabulary.Feature) *Synthesizer {
	if rocLag < 1 {
		rocLag = 1
	}
	return &Synthesizer{rocFeatures: rocFeatures, rocLag: rocLag, zFeatures: zFeatures}
}

// Names lists every column this synthesizer adds, for schema assembly.
func (s *Synthesizer) Names() []vocabulary.Feature {
	names := []vocabulary.Feature{
		SFRatio, BunCrRatio, NLRatio, ShockIndex, ShockIndexHigh,
		AnionGap, DeltaAnionGap, HourOfDaySine, HourOfDayCosine,
	}
	for _, f := range s.rocFeatures {
		names = append(names, s.rocName(f))
	}
	for _, f := range s.zFeatures {
		names = append(names, vocabulary.Feature(string(f)+vocabulary.SuffixZScore))
	}
	return names
}

func (s *Synthesizer) rocName(f vocabulary.Feature) vocabulary.Feature {
	return vocabulary.Feature(fmt.Sprintf("%s_roc%dh", f, s.rocLag))
}

// Synthesize returns a copy of the series with the derived columns added.
// It expects the post-imputation series, so lagged differences and
// z-scores read a fully dense base.
func (s *Synthesizer) Synthesize(series *models.EncounterSeries) *models.EncounterSeries {
	out := series.Clone()

	for i, rec := range out.Records {
		rec.Set(SFRatio, ratio(get(rec, "spo2"), fioFraction(rec)))
		rec.Set(BunCrRatio, ratio(get(rec, "bun"), get(rec, "creatinine")))
		rec.Set(NLRatio, ratio(get(rec, "neutrophils"), get(rec, "lymphocytes")))

		si := ratio(get(rec, "pulse"), get(rec, "bp_sys"))
		rec.Set(ShockIndex, si)
		rec.Set(ShockIndexHigh, shockIndexFlag(si, out.AgeYears))

		gap := anionGap(rec)
		rec.Set(AnionGap, gap)
		rec.Set(DeltaAnionGap, deltaAnionGap(gap, get(rec, "bicarbonate")))

		hourOfDay := float64(rec.Hour % 24)
		angle := 2 * math.Pi * hourOfDay / 24
		rec.Set(HourOfDaySine, math.Sin(angle))
		rec.Set(HourOfDayCosine, math.Cos(angle))

		for _, f := range s.rocFeatures {
			rec.Set(s.rocName(f), s.rateOfChange(out, i, f))
		}
	}

	s.zScores(out)

	return out
}

// rateOfChange is current value minus the value rocLag hours earlier
// within the same encounter. Hours too close to the stay start have no
// defined lag value.
func (s *Synthesizer) rateOfChange(series *models.EncounterSeries, i int, f vocabulary.Feature) float64 {
	if i-s.rocLag < 0 {
		return models.Missing()
	}
	current, ok1 := series.Records[i].Get(f)
	previous, ok2 := series.Records[i-s.rocLag].Get(f)
	if !ok1 || !ok2 {
		return models.Missing()
	}
	return current - previous
}

// zScores standardizes each configured feature against the patient's own
// whole-stay mean and standard deviation. A zero or undefined deviation
// yields the missing marker.
func (s *Synthesizer) zScores(series *models.EncounterSeries) {
	for _, f := range s.zFeatures {
		name := vocabulary.Feature(string(f) + vocabulary.SuffixZScore)

		var values []float64
		for _, rec := range series.Records {
			if v, ok := rec.Get(f); ok {
				values = append(values, v)
			}
		}

		if len(values) < 2 {
			for _, rec := range series.Records {
				rec.Set(name, models.Missing())
			}
			continue
		}

		mean := stat.Mean(values, nil)
		std := stat.StdDev(values, nil)

		for _, rec := range series.Records {
			v, ok := rec.Get(f)
			if !ok || std == 0 || math.IsNaN(std) {
				rec.Set(name, models.Missing())
				continue
			}
			rec.Set(name, (v-mean)/std)
		}
	}
}

func get(rec *models.HourlyRecord, f vocabulary.Feature) float64 {
	if v, ok := rec.Get(f); ok {
		return v
	}
	return models.Missing()
}

// fioFraction normalizes fio2 to a fraction: charted percentages (values
// above 1) are divided by 100.
func fioFraction(rec *models.HourlyRecord) float64 {
	v, ok := rec.Get("fio2")
	if !ok {
		return models.Missing()
	}
	if v > 1 {
		return v / 100
	}
	return v
}

func ratio(numerator, denominator float64) float64 {
	if models.IsMissing(numerator) || models.IsMissing(denominator) || denominator == 0 {
		return models.Missing()
	}
	return numerator / denominator
}

func shockIndexFlag(si, ageYears float64) float64 {
	if models.IsMissing(si) || ageYears <= 0 {
		return models.Missing()
	}
	for _, band := range shockBands {
		if ageYears < band.maxAgeYears {
			if si > band.threshold {
				return 1
			}
			return 0
		}
	}
	return 0
}

func anionGap(rec *models.HourlyRecord) float64 {
	na := get(rec, "sodium")
	cl := get(rec, "chloride")
	bicarb := get(rec, "bicarbonate")
	if models.IsMissing(na) || models.IsMissing(cl) || models.IsMissing(bicarb) {
		return models.Missing()
	}
	return na - cl - bicarb
}

func deltaAnionGap(gap, bicarb float64) float64 {
	if models.IsMissing(gap) || models.IsMissing(bicarb) {
		return models.Missing()
	}
	return (gap - normalAnionGap) - (normalBicarbonate - bicarb)
}
