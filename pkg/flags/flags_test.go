package flags

import (
	"testing"

	"github.com/maai-ai/featurizer/pkg/common/models"
)

func testGroups() map[string][]string {
	return map[string][]string{
		"on_vasopressors": {"epinephrine", "norepinephrine", "dopamine"},
		"on_insulin":      {"insulin"},
	}
}

func hourSeries(hours int) *models.EncounterSeries {
	s := &models.EncounterSeries{PatientID: "p1", EncounterID: "e1"}
	for h := 0; h < hours; h++ {
		s.Records = append(s.Records, &models.HourlyRecord{
			PatientID: "p1", EncounterID: "e1", Hour: h,
		})
	}
	return s
}

func TestExactMatchCaseInsensitive(t *testing.T) {
	e := NewExtractor(testGroups(), Exact, 80, nil)
	if !e.Match("on_vasopressors", "EPINEPHrine 0.1 mg/kg IV push") {
		t.Fatal("expected case-insensitive substring match")
	}
	if e.Match("on_vasopressors", "acetaminophen 15 mg/kg") {
		t.Fatal("unexpected match")
	}
}

func TestUnmatchedTextYieldsZero(t *testing.T) {
	e := NewExtractor(testGroups(), Exact, 80, nil)
	out := e.Apply(hourSeries(1), map[int][]string{0: {"total mystery drug"}})

	for _, name := range e.FlagNames() {
		v, ok := out.Records[0].Get(name)
		if !ok || v != 0 {
			t.Fatalf("flag %s: expected explicit 0, got %v (ok=%v)", name, v, ok)
		}
	}
}

func TestHourlyORAggregation(t *testing.T) {
	e := NewExtractor(testGroups(), Exact, 80, nil)
	orders := [][]string{
		{"normal saline", "insulin drip", "tylenol"},
		{"insulin drip", "normal saline", "tylenol"},
		{"tylenol", "normal saline", "insulin drip"},
	}
	for _, events := range orders {
		out := e.Apply(hourSeries(1), map[int][]string{0: events})
		if v, _ := out.Records[0].Get("on_insulin"); v != 1 {
			t.Fatalf("flag not set for event order %v", events)
		}
		if v, _ := out.Records[0].Get("on_vasopressors"); v != 0 {
			t.Fatalf("unrelated flag set for event order %v", events)
		}
	}
}

func TestHoursWithoutEventsGetZeros(t *testing.T) {
	e := NewExtractor(testGroups(), Exact, 80, nil)
	out := e.Apply(hourSeries(3), map[int][]string{1: {"dopamine infusion"}})

	want := []float64{0, 1, 0}
	for h, expected := range want {
		v, ok := out.Records[h].Get("on_vasopressors")
		if !ok || v != expected {
			t.Fatalf("hour %d: got %v (ok=%v), want %v", h, v, ok, expected)
		}
	}
}

func TestFuzzyMatching(t *testing.T) {
	e := NewExtractor(testGroups(), Fuzzy, 80, nil)
	// Word order and dose decoration should not defeat the match.
	if !e.Match("on_vasopressors", "norepinephrine bitartrate 4 mg") {
		t.Fatal("expected fuzzy match on decorated medication name")
	}
	if e.Match("on_vasopressors", "vitamin d supplement") {
		t.Fatal("unexpected fuzzy match")
	}
}

func TestTokenSetScorer(t *testing.T) {
	s := TokenSetScorer{}
	if got := s.Score("septic shock", "shock septic"); got < 99 {
		t.Fatalf("word order should not matter, got %v", got)
	}
	if got := s.Score("sodium chloride 0.9% flush", "sodium chloride"); got < 99 {
		t.Fatalf("subset should score ~100, got %v", got)
	}
	if got := s.Score("", "anything"); got != 0 {
		t.Fatalf("empty text scores 0, got %v", got)
	}
}
