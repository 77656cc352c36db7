package normalizer

import (
	"math"
	"strings"

	"github.com/maai-ai/featurizer/pkg/common/logger"
	"github.com/maai-ai/featurizer/pkg/common/models"
	"github.com/maai-ai/featurizer/pkg/vocabulary"
	"github.com/spf13/cast"
)

// Normalizer maps raw observations of unknown name and unit conventions
// onto the canonical feature vocabulary. Values that cannot be coerced to a
// number are dropped as missing, never fatal.
type Normalizer struct {
	vocab       vocabulary.Vocabulary
	dropUnknown bool

	dropped   int
	malformed int
}

func New(vocab vocabulary.Vocabulary, dropUnknown bool) *Normalizer {
	return &Normalizer{vocab: vocab, dropUnknown: dropUnknown}
}

// Normalize converts a batch of raw observations into canonical ones.
// Compound fields expand into two observations; malformed fragments are
// skipped individually so "120/x" still yields the systolic half.
func (n *Normalizer) Normalize(raw []models.RawObservation) []models.Observation {
	out := make([]models.Observation, 0, len(raw))
	for _, obs := range raw {
		out = append(out, n.normalizeOne(obs)...)
	}

	logger.Log.WithFields(map[string]interface{}{
		"input_rows":  len(raw),
		"output_rows": len(out),
		"malformed":   n.malformed,
		"unmapped":    n.dropped,
	}).Info("Schema normalization complete")

	return out
}

func (n *Normalizer) normalizeOne(obs models.RawObservation) []models.Observation {
	if compound, ok := n.vocab.Compound(obs.Variable); ok {
		return n.splitCompound(obs, compound)
	}

	feature, ok := n.vocab.Resolve(obs.Variable)
	if !ok {
		if n.dropUnknown {
			n.dropped++
			return nil
		}
		feature = vocabulary.Feature(strings.ToLower(strings.TrimSpace(obs.Variable)))
	}

	value, ok := n.coerce(obs.RawValue)
	if !ok {
		n.malformed++
		logger.Log.WithFields(map[string]interface{}{
			"encounter_id": obs.EncounterID,
			"variable":     obs.Variable,
			"raw_value":    obs.RawValue,
		}).Warn("Dropping non-numeric observation value")
		return nil
	}

	value = convertUnit(feature, obs.Unit, value)

	return []models.Observation{{
		PatientID:   obs.PatientID,
		EncounterID: obs.EncounterID,
		Timestamp:   obs.Timestamp,
		Feature:     feature,
		Value:       value,
	}}
}

func (n *Normalizer) splitCompound(obs models.RawObservation, c vocabulary.CompoundField) []models.Observation {
	parts := strings.SplitN(obs.RawValue, c.Delimiter, 2)
	targets := []vocabulary.Feature{c.First, c.Second}

	var out []models.Observation
	for i, target := range targets {
		if i >= len(parts) {
			break
		}
		value, ok := n.coerce(parts[i])
		if !ok {
			n.malformed++
			continue
		}
		out = append(out, models.Observation{
			PatientID:   obs.PatientID,
			EncounterID: obs.EncounterID,
			Timestamp:   obs.Timestamp,
			Feature:     target,
			Value:       value,
		})
	}
	return out
}

func (n *Normalizer) coerce(raw string) (float64, bool) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return 0, false
	}
	value, err := cast.ToFloat64E(trimmed)
	if err != nil || math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, false
	}
	return value, true
}

// convertUnit applies the fixed linear unit conversions. Temperatures
// reported in Fahrenheit become Celsius (1 decimal); weights in ounces
// become pounds (2 decimals). Unrecognized units pass through unchanged.
func convertUnit(feature vocabulary.Feature, unit string, value float64) float64 {
	switch normalizeUnit(unit) {
	case "f", "fahrenheit", "degf":
		if feature == "temp" {
			return round1((value - 32) * 5 / 9)
		}
	case "oz", "ounce", "ounces":
		if feature == "weight" {
			return round2(value / 16)
		}
	}
	return value
}

func normalizeUnit(unit string) string {
	u := strings.ToLower(strings.TrimSpace(unit))
	u = strings.TrimPrefix(u, "°")
	return u
}

func round1(v float64) float64 { return math.Round(v*10) / 10 }

func round2(v float64) float64 { return math.Round(v*100) / 100 }
