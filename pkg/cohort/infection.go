package cohort

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/maai-ai/featurizer/pkg/common/logger"
	"github.com/maai-ai/featurizer/pkg/common/models"
)

// CultureOrder is a microbiology culture order from the labs feed.
type CultureOrder struct {
	EncounterID string
	OrderTime   time.Time
}

// AntiinfDose is one administration of an anti-infective medication.
type AntiinfDose struct {
	EncounterID string
	AdminTime   time.Time
}

// InfectionProvider derives a suspected-infection cohort from culture
// orders paired with anti-infective administrations, both restricted to
// the first week of the stay. An encounter qualifies when an anti-infective
// is given on admission day one, or on the same relative day a culture was
// ordered; the label time is the earlier of the dose and the paired
// culture order.
type InfectionProvider struct {
	encounters map[string]models.Encounter
	cultures   []CultureOrder
	doses      []AntiinfDose
	maxRelDay  int
}

func NewInfectionProvider(encounters map[string]models.Encounter, cultures []CultureOrder, doses []AntiinfDose) *InfectionProvider {
	return &InfectionProvider{
		encounters: encounters,
		cultures:   cultures,
		doses:      doses,
		maxRelDay:  7,
	}
}

// relDay is the one-based day of the stay: anything in the first 24 hours
// is day 1.
func relDay(ts, admission time.Time) (int, bool) {
	elapsed := ts.Sub(admission)
	if elapsed < 0 {
		return 0, false
	}
	day := int(math.Ceil(elapsed.Hours() / 24))
	if day == 0 {
		day = 1
	}
	return day, true
}

func (p *InfectionProvider) Labels(ctx context.Context) ([]models.CohortLabel, error) {
	cultureDays := make(map[string]map[int]time.Time) // encounter -> relDay -> earliest order
	for _, c := range p.cultures {
		enc, ok := p.encounters[c.EncounterID]
		if !ok {
			continue
		}
		day, ok := relDay(c.OrderTime, enc.AdmissionTime)
		if !ok || day > p.maxRelDay {
			continue
		}
		if cultureDays[c.EncounterID] == nil {
			cultureDays[c.EncounterID] = make(map[int]time.Time)
		}
		if existing, ok := cultureDays[c.EncounterID][day]; !ok || c.OrderTime.Before(existing) {
			cultureDays[c.EncounterID][day] = c.OrderTime
		}
	}

	infTimes := make(map[string]time.Time)
	for _, d := range p.doses {
		enc, ok := p.encounters[d.EncounterID]
		if !ok {
			continue
		}
		day, ok := relDay(d.AdminTime, enc.AdmissionTime)
		if !ok || day > p.maxRelDay {
			continue
		}

		var candidate time.Time
		switch {
		case day == 1:
			candidate = d.AdminTime
			if order, ok := cultureDays[d.EncounterID][day]; ok && order.Before(candidate) {
				candidate = order
			}
		default:
			order, ok := cultureDays[d.EncounterID][day]
			if !ok {
				continue // no culture on the same relative day
			}
			candidate = d.AdminTime
			if order.Before(candidate) {
				candidate = order
			}
		}

		if existing, ok := infTimes[d.EncounterID]; !ok || candidate.Before(existing) {
			infTimes[d.EncounterID] = candidate
		}
	}

	ids := make([]string, 0, len(infTimes))
	for id := range infTimes {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	labels := make([]models.CohortLabel, 0, len(ids))
	for _, id := range ids {
		t := infTimes[id]
		labels = append(labels, models.CohortLabel{EncounterID: id, LabelTime: &t})
	}

	logger.Log.WithField("cohort_size", len(labels)).Info("Suspected-infection cohort derived")
	return labels, nil
}
