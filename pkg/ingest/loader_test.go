package ingest

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestObservationsByHeaderName(t *testing.T) {
	dir := t.TempDir()
	// Columns deliberately out of canonical order, with an extra one.
	writeFile(t, dir, "observations.csv",
		"unit,value,encounter_id,patient_id,site,variable_name,timestamp\n"+
			"bpm,100,e1,p1,icu,heart_rate,2024-03-01T08:15:00Z\n")

	obs, err := NewLoader(dir).Observations()
	if err != nil {
		t.Fatalf("Observations: %v", err)
	}
	if len(obs) != 1 {
		t.Fatalf("rows = %d, want 1", len(obs))
	}
	o := obs[0]
	if o.EncounterID != "e1" || o.Variable != "heart_rate" || o.RawValue != "100" || o.Unit != "bpm" {
		t.Errorf("unexpected row: %+v", o)
	}
}

func TestObservationsMissingIsError(t *testing.T) {
	_, err := NewLoader(t.TempDir()).Observations()
	if err == nil {
		t.Fatal("expected error for missing observations table")
	}
	if !IsMissingSource(err) {
		t.Fatalf("err = %v, want missing source", err)
	}
	var se SourceError
	if !errors.As(err, &se) || se.Table != "observations.csv" {
		t.Fatalf("err does not name the table: %v", err)
	}
}

func TestOptionalTablesAbsent(t *testing.T) {
	l := NewLoader(t.TempDir())

	events, err := l.Events()
	if err != nil || len(events) != 0 {
		t.Fatalf("Events = %v, %v; want empty, nil", events, err)
	}
	labels, err := l.CohortLabels()
	if err != nil || len(labels) != 0 {
		t.Fatalf("CohortLabels = %v, %v; want empty, nil", labels, err)
	}
}

func TestCohortLabelsNullTime(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "cohort.csv",
		"encounter_id,label_time\n"+
			"e1,2024-03-02T14:00:00Z\n"+
			"e2,\n")

	labels, err := NewLoader(dir).CohortLabels()
	if err != nil {
		t.Fatalf("CohortLabels: %v", err)
	}
	if len(labels) != 2 {
		t.Fatalf("rows = %d, want 2", len(labels))
	}
	if labels[0].LabelTime == nil {
		t.Error("e1 label time should be set")
	}
	if labels[1].LabelTime != nil {
		t.Error("e2 label time should be nil")
	}
}

func TestBadTimestampNamesLine(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "encounters.csv",
		"encounter_id,patient_id,admission_time,age_years\n"+
			"e1,p1,not-a-time,6\n")

	_, err := NewLoader(dir).Encounters()
	if err == nil {
		t.Fatal("expected parse error")
	}
	var se SourceError
	if !errors.As(err, &se) || se.Table != "encounters.csv" {
		t.Fatalf("err does not name the table: %v", err)
	}
}
