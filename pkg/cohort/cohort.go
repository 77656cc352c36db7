package cohort

import (
	"context"

	"github.com/maai-ai/featurizer/pkg/common/models"
	"github.com/maai-ai/featurizer/pkg/vocabulary"
)

// Provider supplies the outcome verdict per encounter. Implementations are
// external collaborators; the pipeline only depends on this interface.
type Provider interface {
	Labels(ctx context.Context) ([]models.CohortLabel, error)
}

// StaticProvider serves a pre-loaded outcome table. This is the canonical
// provider: the cohort collaborator hands over one row per qualifying
// encounter with its label time.
type StaticProvider struct {
	labels []models.CohortLabel
}

func NewStaticProvider(labels []models.CohortLabel) *StaticProvider {
	return &StaticProvider{labels: labels}
}

func (p *StaticProvider) Labels(ctx context.Context) ([]models.CohortLabel, error) {
	return p.labels, nil
}

// Index arranges labels for joining by encounter.
func Index(labels []models.CohortLabel) map[string]models.CohortLabel {
	out := make(map[string]models.CohortLabel, len(labels))
	for _, l := range labels {
		existing, ok := out[l.EncounterID]
		if !ok {
			out[l.EncounterID] = l
			continue
		}
		// Keep the earliest label time when an encounter appears twice.
		if l.LabelTime != nil && (existing.LabelTime == nil || l.LabelTime.Before(*existing.LabelTime)) {
			out[l.EncounterID] = l
		}
	}
	return out
}

// Apply attaches the supervised target to every hour of the series: 1 when
// the encounter has a non-null label time, else 0. Encounters absent from
// the cohort stay in the table with label 0.
func Apply(series *models.EncounterSeries, labels map[string]models.CohortLabel) *models.EncounterSeries {
	out := series.Clone()

	target := 0.0
	if l, ok := labels[out.EncounterID]; ok && l.LabelTime != nil {
		target = 1
	}

	for _, rec := range out.Records {
		rec.Set(vocabulary.TargetLabel, target)
	}
	return out
}
