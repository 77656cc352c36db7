package rolling

import (
	"math"
	"testing"

	"github.com/maai-ai/featurizer/pkg/common/models"
	"github.com/maai-ai/featurizer/pkg/vocabulary"
)

func seriesOf(values ...float64) *models.EncounterSeries {
	s := &models.EncounterSeries{PatientID: "p1", EncounterID: "e1"}
	for h, v := range values {
		rec := &models.HourlyRecord{PatientID: "p1", EncounterID: "e1", Hour: h}
		rec.Set("pulse", v)
		s.Records = append(s.Records, rec)
	}
	return s
}

func get(t *testing.T, rec *models.HourlyRecord, name string) float64 {
	t.Helper()
	v, ok := rec.Get(vocabulary.Feature(name))
	if !ok {
		t.Fatalf("column %s missing", name)
	}
	return v
}

func TestFirstHourBoundary(t *testing.T) {
	agg := New([]vocabulary.Feature{"pulse"}, 3, true)
	out := agg.Aggregate(seriesOf(100, 110, 120))

	first := out.Records[0]
	for _, name := range []string{"pulse_mean", "pulse_min", "pulse_max"} {
		if v := get(t, first, name); v != 100 {
			t.Fatalf("%s at first hour: got %v, want 100", name, v)
		}
	}
	for _, name := range []string{"pulse_std", "pulse_skew", "pulse_kurtosis"} {
		if v := get(t, first, name); v != 0 {
			t.Fatalf("%s at first hour: got %v, want 0", name, v)
		}
	}
}

func TestWindowStatistics(t *testing.T) {
	agg := New([]vocabulary.Feature{"pulse"}, 3, false)
	out := agg.Aggregate(seriesOf(100, 110, 120, 130))

	// Hour 3 window covers hours 1..3.
	last := out.Records[3]
	if v := get(t, last, "pulse_mean"); v != 120 {
		t.Fatalf("mean: got %v, want 120", v)
	}
	if v := get(t, last, "pulse_min"); v != 110 {
		t.Fatalf("min: got %v, want 110", v)
	}
	if v := get(t, last, "pulse_max"); v != 130 {
		t.Fatalf("max: got %v, want 130", v)
	}
	if v := get(t, last, "pulse_std"); math.Abs(v-10) > 1e-9 {
		t.Fatalf("std: got %v, want 10", v)
	}
}

func TestCausality(t *testing.T) {
	agg := New([]vocabulary.Feature{"pulse"}, 3, false)

	base := seriesOf(100, 110, 120, 130, 140)
	perturbed := base.Clone()
	// Mutate future hours only.
	perturbed.Records[3].Set("pulse", 999)
	perturbed.Records[4].Set("pulse", -999)

	a := agg.Aggregate(base)
	b := agg.Aggregate(perturbed)

	for h := 0; h <= 2; h++ {
		for _, name := range []string{"pulse_mean", "pulse_std", "pulse_min", "pulse_max"} {
			if get(t, a.Records[h], name) != get(t, b.Records[h], name) {
				t.Fatalf("hour %d %s changed after future mutation", h, name)
			}
		}
	}
}

func TestAggregateDoesNotMutateInput(t *testing.T) {
	agg := New([]vocabulary.Feature{"pulse"}, 2, false)
	in := seriesOf(100, 110)
	agg.Aggregate(in)

	if len(in.Records[0].Values) != 1 {
		t.Fatalf("input series gained columns: %v", in.Records[0].Values)
	}
}
