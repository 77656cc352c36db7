package models

import (
	"math"
	"time"

	"github.com/maai-ai/featurizer/pkg/vocabulary"
)

// RawObservation is a single measurement event exactly as extracted from a
// source system. Names and units are whatever the source used; values are
// uncoerced strings. Read-only input to the normalizer.
type RawObservation struct {
	PatientID   string    `json:"patient_id"`
	EncounterID string    `json:"encounter_id"`
	Timestamp   time.Time `json:"timestamp"`
	Variable    string    `json:"variable_name"`
	RawValue    string    `json:"raw_value"`
	Unit        string    `json:"unit,omitempty"`
}

// Observation is a raw observation after schema normalization: the variable
// is a canonical vocabulary feature and the value is numeric.
type Observation struct {
	PatientID   string             `json:"patient_id"`
	EncounterID string             `json:"encounter_id"`
	Timestamp   time.Time          `json:"timestamp"`
	Feature     vocabulary.Feature `json:"feature"`
	Value       float64            `json:"value"`
}

// Encounter is one hospital admission episode, the unit of timeline
// alignment. AdmissionTime anchors hour index zero.
type Encounter struct {
	EncounterID   string    `json:"encounter_id"`
	PatientID     string    `json:"patient_id"`
	AdmissionTime time.Time `json:"admission_time"`
	AgeYears      float64   `json:"age_years,omitempty"`
}

// TextEvent is a medication administration or diagnosis entry carried as
// free text, consumed by the event flag extractor.
type TextEvent struct {
	EncounterID string    `json:"encounter_id"`
	Timestamp   time.Time `json:"timestamp"`
	Text        string    `json:"text"`
}

// CohortLabel is the external cohort collaborator's verdict on one
// encounter. A nil LabelTime means the encounter never met the outcome
// criteria.
type CohortLabel struct {
	EncounterID string     `json:"encounter_id"`
	LabelTime   *time.Time `json:"label_time,omitempty"`
}

// HourlyRecord is one row of the per-patient-hour matrix. Values holds
// every column present at this hour; a missing value is stored as NaN so
// column sets stay uniform across an encounter.
type HourlyRecord struct {
	PatientID   string                         `json:"patient_id"`
	EncounterID string                         `json:"encounter_id"`
	Hour        int                            `json:"hour_index"`
	Values      map[vocabulary.Feature]float64 `json:"values"`
}

// NewHourlyRecord builds an empty row bound to one patient hour.
func NewHourlyRecord(patientID, encounterID string, hour int) *HourlyRecord {
	return &HourlyRecord{
		PatientID:   patientID,
		EncounterID: encounterID,
		Hour:        hour,
		Values:      make(map[vocabulary.Feature]float64),
	}
}

// Get returns the value for f. ok is false when the column is absent or
// holds the missing marker.
func (r *HourlyRecord) Get(f vocabulary.Feature) (float64, bool) {
	v, present := r.Values[f]
	if !present || math.IsNaN(v) {
		return 0, false
	}
	return v, true
}

// Set stores v under f, allocating the value map on first use.
func (r *HourlyRecord) Set(f vocabulary.Feature, v float64) {
	if r.Values == nil {
		r.Values = make(map[vocabulary.Feature]float64)
	}
	r.Values[f] = v
}

// Missing is the in-pipeline marker for an absent value.
func Missing() float64 { return math.NaN() }

// IsMissing reports whether v is the missing marker.
func IsMissing(v float64) bool { return math.IsNaN(v) }

// EncounterSeries is the gap-free hourly timeline of one encounter. Records
// are ordered by strictly increasing, contiguous Hour.
type EncounterSeries struct {
	PatientID   string          `json:"patient_id"`
	EncounterID string          `json:"encounter_id"`
	AgeYears    float64         `json:"age_years,omitempty"`
	Records     []*HourlyRecord `json:"records"`
}

// Clone deep-copies the series so stages can hand exclusive ownership of
// their output to the next stage.
func (s *EncounterSeries) Clone() *EncounterSeries {
	out := &EncounterSeries{
		PatientID:   s.PatientID,
		EncounterID: s.EncounterID,
		AgeYears:    s.AgeYears,
		Records:     make([]*HourlyRecord, len(s.Records)),
	}
	for i, rec := range s.Records {
		values := make(map[vocabulary.Feature]float64, len(rec.Values))
		for k, v := range rec.Values {
			values[k] = v
		}
		out.Records[i] = &HourlyRecord{
			PatientID:   rec.PatientID,
			EncounterID: rec.EncounterID,
			Hour:        rec.Hour,
			Values:      values,
		}
	}
	return out
}

// Matrix is the whole-population hourly table, partitioned by encounter.
type Matrix []*EncounterSeries

// Rows counts hourly records across all encounters.
func (m Matrix) Rows() int {
	total := 0
	for _, s := range m {
		total += len(s.Records)
	}
	return total
}

// Clone deep-copies every series.
func (m Matrix) Clone() Matrix {
	out := make(Matrix, len(m))
	for i, s := range m {
		out[i] = s.Clone()
	}
	return out
}

// PopulationStats is the explicit value object holding per-feature
// population aggregates. It is computed once, before any per-encounter
// fill or clip, from realized (never imputed) values only, and passed into
// every per-encounter transform.
type PopulationStats struct {
	Median   map[vocabulary.Feature]float64 `json:"median"`
	Lower    map[vocabulary.Feature]float64 `json:"lower"`
	Upper    map[vocabulary.Feature]float64 `json:"upper"`
	Realized map[vocabulary.Feature]int     `json:"realized"`
}

// MedianOr returns the population median for f, or the sentinel when the
// feature had zero realized values across the population.
func (p PopulationStats) MedianOr(f vocabulary.Feature, sentinel float64) float64 {
	if v, ok := p.Median[f]; ok {
		return v
	}
	return sentinel
}

// SequenceBatch is the fixed-shape windowed output consumed by the
// downstream sequence model: one block per feature family plus the aligned
// label vector. Block shapes are [samples][lookback][features].
type SequenceBatch struct {
	Vitals [][][]float64 `json:"vitals"`
	Labs   [][][]float64 `json:"labs"`
	Meds   [][][]float64 `json:"meds"`
	Labels []float64     `json:"labels"`
}

// Samples returns the number of emitted windows.
func (b SequenceBatch) Samples() int { return len(b.Labels) }
