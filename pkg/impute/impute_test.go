package impute

import (
	"reflect"
	"testing"

	"github.com/maai-ai/featurizer/pkg/common/models"
	"github.com/maai-ai/featurizer/pkg/vocabulary"
)

func seriesWith(values map[int]float64, hours int) *models.EncounterSeries {
	s := &models.EncounterSeries{PatientID: "p1", EncounterID: "e1"}
	for h := 0; h < hours; h++ {
		rec := &models.HourlyRecord{PatientID: "p1", EncounterID: "e1", Hour: h}
		if v, ok := values[h]; ok {
			rec.Set("pulse", v)
		}
		s.Records = append(s.Records, rec)
	}
	return s
}

func TestForwardFillWithinLimit(t *testing.T) {
	im := New([]vocabulary.Feature{"pulse"}, 2)
	series := seriesWith(map[int]float64{0: 100}, 6)
	pop := models.PopulationStats{Median: map[vocabulary.Feature]float64{"pulse": 80}}

	out := im.Fill(series, pop)

	want := []float64{100, 100, 100, 80, 80, 80}
	for h, expected := range want {
		v, ok := out.Records[h].Get("pulse")
		if !ok {
			t.Fatalf("hour %d still missing after fill", h)
		}
		if v != expected {
			t.Fatalf("hour %d: got %v, want %v", h, v, expected)
		}
	}
}

func TestPopulationFallbackSentinel(t *testing.T) {
	im := New([]vocabulary.Feature{"pulse"}, 0)
	series := seriesWith(nil, 3)

	out := im.Fill(series, models.PopulationStats{})
	for h := 0; h < 3; h++ {
		v, ok := out.Records[h].Get("pulse")
		if !ok || v != FallbackSentinel {
			t.Fatalf("hour %d: expected sentinel %v, got %v (ok=%v)", h, FallbackSentinel, v, ok)
		}
	}
}

func TestFillIdempotent(t *testing.T) {
	im := New([]vocabulary.Feature{"pulse"}, 3)
	series := seriesWith(map[int]float64{1: 90}, 8)
	pop := models.PopulationStats{Median: map[vocabulary.Feature]float64{"pulse": 75}}

	once := im.Fill(series, pop)
	twice := im.Fill(once, pop)

	for h := range once.Records {
		a, _ := once.Records[h].Get("pulse")
		b, _ := twice.Records[h].Get("pulse")
		if a != b {
			t.Fatalf("hour %d drifted on second fill: %v vs %v", h, a, b)
		}
	}
}

func TestFillDoesNotMutateInput(t *testing.T) {
	im := New([]vocabulary.Feature{"pulse"}, 2)
	series := seriesWith(map[int]float64{0: 100}, 4)
	before := series.Clone()

	im.Fill(series, models.PopulationStats{Median: map[vocabulary.Feature]float64{"pulse": 80}})

	if !reflect.DeepEqual(valuesOf(series), valuesOf(before)) {
		t.Fatal("Fill mutated its input series")
	}
}

func valuesOf(s *models.EncounterSeries) []map[vocabulary.Feature]float64 {
	out := make([]map[vocabulary.Feature]float64, len(s.Records))
	for i, r := range s.Records {
		out[i] = r.Values
	}
	return out
}

func TestPopulationStatsIgnoreMissing(t *testing.T) {
	// e1 never realizes pulse; e2 and e3 do. The median must come from the
	// realized values only.
	e1 := seriesWith(nil, 2)
	e2 := seriesWith(map[int]float64{0: 60, 1: 70}, 2)
	e3 := seriesWith(map[int]float64{0: 80}, 1)
	matrix := models.Matrix{e1, e2, e3}

	stats := ComputePopulationStats(matrix, []vocabulary.Feature{"pulse"}, 1, 99)
	if stats.Realized["pulse"] != 3 {
		t.Fatalf("expected 3 realized samples, got %d", stats.Realized["pulse"])
	}
	if stats.Median["pulse"] != 70 {
		t.Fatalf("expected median 70, got %v", stats.Median["pulse"])
	}
}

func TestClipBounds(t *testing.T) {
	series := seriesWith(map[int]float64{0: 10, 1: 100, 2: 300}, 3)
	pop := models.PopulationStats{
		Lower: map[vocabulary.Feature]float64{"pulse": 40},
		Upper: map[vocabulary.Feature]float64{"pulse": 200},
	}

	clipper := NewClipper([]vocabulary.Feature{"pulse"}, nil)
	out := clipper.Clip(series, pop)

	want := []float64{40, 100, 200}
	for h, expected := range want {
		v, _ := out.Records[h].Get("pulse")
		if v != expected {
			t.Fatalf("hour %d: got %v, want %v", h, v, expected)
		}
	}
}

func TestClipExempt(t *testing.T) {
	series := seriesWith(map[int]float64{0: 300}, 1)
	pop := models.PopulationStats{
		Lower: map[vocabulary.Feature]float64{"pulse": 40},
		Upper: map[vocabulary.Feature]float64{"pulse": 200},
	}

	clipper := NewClipper([]vocabulary.Feature{"pulse"}, []vocabulary.Feature{"pulse"})
	out := clipper.Clip(series, pop)

	if v, _ := out.Records[0].Get("pulse"); v != 300 {
		t.Fatalf("exempt feature was clipped: %v", v)
	}
}
