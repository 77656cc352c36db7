package main

import (
	"context"
	"testing"

	"github.com/maai-ai/featurizer/pkg/common/models"
)

func TestDrainTakesBuffer(t *testing.T) {
	s := &FeatureService{}
	for _, id := range []string{"e1", "e2"} {
		if err := s.buffered(context.Background(), models.RawObservation{EncounterID: id}); err != nil {
			t.Fatal(err)
		}
	}

	drained := s.drain()
	if len(drained) != 2 {
		t.Fatalf("drained %d observations, want 2", len(drained))
	}
	if len(s.drain()) != 0 {
		t.Error("second drain should return nothing")
	}
}

func TestRestoreKeepsDrainedObservations(t *testing.T) {
	s := &FeatureService{}
	for _, id := range []string{"e1", "e2"} {
		s.buffered(context.Background(), models.RawObservation{EncounterID: id})
	}

	// A failed run hands its drained batch back while the consumer keeps
	// appending new observations.
	drained := s.drain()
	s.buffered(context.Background(), models.RawObservation{EncounterID: "e3"})
	s.restore(drained)

	got := s.drain()
	want := []string{"e1", "e2", "e3"}
	if len(got) != len(want) {
		t.Fatalf("buffer has %d observations, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].EncounterID != want[i] {
			t.Errorf("observation %d = %q, want %q", i, got[i].EncounterID, want[i])
		}
	}
}

func TestRestoreEmptyBatchIsNoop(t *testing.T) {
	s := &FeatureService{}
	s.restore(nil)
	if len(s.drain()) != 0 {
		t.Error("restoring nothing should leave the buffer empty")
	}
}
