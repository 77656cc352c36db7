package timeline

import (
	"testing"
	"time"

	"github.com/maai-ai/featurizer/pkg/common/models"
	"github.com/maai-ai/featurizer/pkg/vocabulary"
)

var admission = time.Date(2022, 3, 1, 8, 0, 0, 0, time.UTC)

func testEncounters() map[string]models.Encounter {
	return map[string]models.Encounter{
		"e1": {EncounterID: "e1", PatientID: "p1", AdmissionTime: admission},
	}
}

func obsAt(minutesAfterAdmission int, feature string, value float64) models.Observation {
	return models.Observation{
		PatientID:   "p1",
		EncounterID: "e1",
		Timestamp:   admission.Add(time.Duration(minutesAfterAdmission) * time.Minute),
		Feature:     vocabulary.Feature(feature),
		Value:       value,
	}
}

func TestContiguousGrid(t *testing.T) {
	a := New(time.Hour)
	obs := []models.Observation{
		obsAt(10, "pulse", 100),  // hour 0
		obsAt(250, "pulse", 110), // hour 4
	}
	matrix := a.Align(obs, testEncounters())
	if len(matrix) != 1 {
		t.Fatalf("expected 1 encounter, got %d", len(matrix))
	}
	series := matrix[0]
	if len(series.Records) != 5 {
		t.Fatalf("expected hours 0..4 = 5 records, got %d", len(series.Records))
	}
	for i, rec := range series.Records {
		if rec.Hour != i {
			t.Fatalf("record %d has hour %d, want contiguous sequence", i, rec.Hour)
		}
	}
	if _, ok := series.Records[2].Get("pulse"); ok {
		t.Fatal("hour 2 should be explicitly missing")
	}
}

func TestMedianBucketing(t *testing.T) {
	a := New(time.Hour)
	obs := []models.Observation{
		obsAt(5, "pulse", 90),
		obsAt(20, "pulse", 100),
		obsAt(55, "pulse", 130),
	}
	matrix := a.Align(obs, testEncounters())
	v, ok := matrix[0].Records[0].Get("pulse")
	if !ok || v != 100 {
		t.Fatalf("expected median 100 for hour 0, got %v (ok=%v)", v, ok)
	}
}

func TestFloorBucketing(t *testing.T) {
	a := New(time.Hour)
	hour, ok := a.BucketHour(admission.Add(119*time.Minute), admission)
	if !ok || hour != 1 {
		t.Fatalf("119 minutes should floor to hour 1, got %d (ok=%v)", hour, ok)
	}

	if _, ok := a.BucketHour(admission.Add(-time.Minute), admission); ok {
		t.Fatal("pre-admission timestamps have no bucket")
	}
}

func TestEventsBucketed(t *testing.T) {
	a := New(time.Hour)
	events := []models.TextEvent{
		{EncounterID: "e1", Timestamp: admission.Add(90 * time.Minute), Text: "vancomycin 10mg"},
		{EncounterID: "unknown", Timestamp: admission, Text: "ignored"},
	}
	buckets := a.BucketEvents(events, testEncounters())
	if len(buckets["e1"][1]) != 1 {
		t.Fatalf("expected one event in hour 1, got %v", buckets)
	}
	if _, ok := buckets["unknown"]; ok {
		t.Fatal("unknown encounter must be ignored")
	}
}
