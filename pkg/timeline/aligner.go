package timeline

import (
	"math"
	"sort"
	"time"

	"github.com/maai-ai/featurizer/pkg/common/logger"
	"github.com/maai-ai/featurizer/pkg/common/models"
	"github.com/maai-ai/featurizer/pkg/vocabulary"
)

// Aligner pivots canonical observations into the gap-free per-encounter
// hourly grid. Each observation lands in bucket
// floor((timestamp - admission) / resolution); several observations of the
// same feature in one bucket collapse to their median.
type Aligner struct {
	resolution time.Duration
}

func New(resolution time.Duration) *Aligner {
	if resolution <= 0 {
		resolution = time.Hour
	}
	return &Aligner{resolution: resolution}
}

// BucketHour computes the hour index of ts relative to admission. ok is
// false for observations before admission; those carry no defined slot.
func (a *Aligner) BucketHour(ts, admission time.Time) (int, bool) {
	elapsed := ts.Sub(admission)
	if elapsed < 0 {
		return 0, false
	}
	return int(elapsed / a.resolution), true
}

// Align builds one EncounterSeries per encounter that has at least one
// in-range observation. The series spans every integer hour from the
// minimum to the maximum observed bucket, with explicit missing values
// where nothing was observed. Encounters with zero usable observations are
// not represented.
func (a *Aligner) Align(obs []models.Observation, encounters map[string]models.Encounter) models.Matrix {
	type bucketKey struct {
		hour    int
		feature vocabulary.Feature
	}

	samples := make(map[string]map[bucketKey][]float64)
	var skipped int

	for _, o := range obs {
		enc, ok := encounters[o.EncounterID]
		if !ok {
			skipped++
			continue
		}
		hour, ok := a.BucketHour(o.Timestamp, enc.AdmissionTime)
		if !ok {
			skipped++
			continue
		}
		if samples[o.EncounterID] == nil {
			samples[o.EncounterID] = make(map[bucketKey][]float64)
		}
		key := bucketKey{hour: hour, feature: o.Feature}
		samples[o.EncounterID][key] = append(samples[o.EncounterID][key], o.Value)
	}

	if skipped > 0 {
		logger.Log.WithField("skipped", skipped).Warn(
			"Observations without a usable admission anchor were dropped")
	}

	encounterIDs := make([]string, 0, len(samples))
	for id := range samples {
		encounterIDs = append(encounterIDs, id)
	}
	sort.Strings(encounterIDs)

	matrix := make(models.Matrix, 0, len(encounterIDs))
	for _, id := range encounterIDs {
		enc := encounters[id]
		buckets := samples[id]

		minHour, maxHour := math.MaxInt32, 0
		for key := range buckets {
			if key.hour < minHour {
				minHour = key.hour
			}
			if key.hour > maxHour {
				maxHour = key.hour
			}
		}

		series := &models.EncounterSeries{
			PatientID:   enc.PatientID,
			EncounterID: enc.EncounterID,
			AgeYears:    enc.AgeYears,
			Records:     make([]*models.HourlyRecord, 0, maxHour-minHour+1),
		}

		for hour := minHour; hour <= maxHour; hour++ {
			rec := &models.HourlyRecord{
				PatientID:   enc.PatientID,
				EncounterID: enc.EncounterID,
				Hour:        hour,
				Values:      make(map[vocabulary.Feature]float64),
			}
			for key, values := range buckets {
				if key.hour == hour {
					rec.Values[key.feature] = median(values)
				}
			}
			series.Records = append(series.Records, rec)
		}

		matrix = append(matrix, series)
	}

	logger.Log.WithFields(map[string]interface{}{
		"encounters": len(matrix),
		"rows":       matrix.Rows(),
	}).Info("Temporal alignment complete")

	return matrix
}

// BucketEvents groups free-text events into (encounter, hour) buckets using
// the same bucketing rule as observations. Events for unknown encounters or
// before admission are ignored.
func (a *Aligner) BucketEvents(events []models.TextEvent, encounters map[string]models.Encounter) map[string]map[int][]string {
	out := make(map[string]map[int][]string)
	for _, ev := range events {
		enc, ok := encounters[ev.EncounterID]
		if !ok {
			continue
		}
		hour, ok := a.BucketHour(ev.Timestamp, enc.AdmissionTime)
		if !ok {
			continue
		}
		if out[ev.EncounterID] == nil {
			out[ev.EncounterID] = make(map[int][]string)
		}
		out[ev.EncounterID][hour] = append(out[ev.EncounterID][hour], ev.Text)
	}
	return out
}

func median(values []float64) float64 {
	if len(values) == 0 {
		return models.Missing()
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}
