package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cast"

	"github.com/maai-ai/featurizer/pkg/cohort"
	"github.com/maai-ai/featurizer/pkg/common/logger"
	"github.com/maai-ai/featurizer/pkg/common/models"
)

// Source file names inside a batch directory. Observations and encounters
// are required; the rest are optional extras.
const (
	observationsFile = "observations.csv"
	encountersFile   = "encounters.csv"
	eventsFile       = "events.csv"
	cohortFile       = "cohort.csv"
	culturesFile     = "cultures.csv"
	antiinfFile      = "antiinf_doses.csv"
)

var errMissingSource = errors.New("missing source table")

// SourceError wraps a per-table load failure with the table it came from.
type SourceError struct {
	Table  string
	reason error
}

func (e SourceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Table, e.reason)
}

func (e SourceError) Unwrap() error {
	return e.reason
}

// IsMissingSource reports whether err is a load failure caused by an absent
// source table.
func IsMissingSource(err error) bool {
	return errors.Is(err, errMissingSource)
}

// Loader reads one batch directory of CSV extracts. Columns are resolved by
// header name, so source systems may emit extra columns in any order.
type Loader struct {
	dir string
}

func NewLoader(dir string) *Loader {
	return &Loader{dir: dir}
}

// Observations loads the raw measurement extract. Required.
func (l *Loader) Observations() ([]models.RawObservation, error) {
	var out []models.RawObservation
	err := l.read(observationsFile, true, func(row record) error {
		ts, err := row.time("timestamp")
		if err != nil {
			return err
		}
		out = append(out, models.RawObservation{
			PatientID:   row.get("patient_id"),
			EncounterID: row.get("encounter_id"),
			Timestamp:   ts,
			Variable:    row.get("variable_name"),
			RawValue:    row.get("value"),
			Unit:        row.get("unit"),
		})
		return nil
	})
	return out, err
}

// Encounters loads the admission roster. Required.
func (l *Loader) Encounters() ([]models.Encounter, error) {
	var out []models.Encounter
	err := l.read(encountersFile, true, func(row record) error {
		admitted, err := row.time("admission_time")
		if err != nil {
			return err
		}
		age, err := cast.ToFloat64E(row.get("age_years"))
		if err != nil {
			age = 0
		}
		out = append(out, models.Encounter{
			EncounterID:   row.get("encounter_id"),
			PatientID:     row.get("patient_id"),
			AdmissionTime: admitted,
			AgeYears:      age,
		})
		return nil
	})
	return out, err
}

// Events loads the free-text medication and diagnosis events. Optional; a
// missing file yields no events.
func (l *Loader) Events() ([]models.TextEvent, error) {
	var out []models.TextEvent
	err := l.read(eventsFile, false, func(row record) error {
		ts, err := row.time("timestamp")
		if err != nil {
			return err
		}
		out = append(out, models.TextEvent{
			EncounterID: row.get("encounter_id"),
			Timestamp:   ts,
			Text:        row.get("text"),
		})
		return nil
	})
	return out, err
}

// CohortLabels loads precomputed outcome labels. An empty label_time column
// means the encounter never met the outcome criteria.
func (l *Loader) CohortLabels() ([]models.CohortLabel, error) {
	var out []models.CohortLabel
	err := l.read(cohortFile, false, func(row record) error {
		label := models.CohortLabel{EncounterID: row.get("encounter_id")}
		if raw := row.get("label_time"); raw != "" {
			ts, err := row.time("label_time")
			if err != nil {
				return err
			}
			label.LabelTime = &ts
		}
		out = append(out, label)
		return nil
	})
	return out, err
}

// Cultures loads culture order times for the infection heuristic. Optional.
func (l *Loader) Cultures() ([]cohort.CultureOrder, error) {
	var out []cohort.CultureOrder
	err := l.read(culturesFile, false, func(row record) error {
		ts, err := row.time("order_time")
		if err != nil {
			return err
		}
		out = append(out, cohort.CultureOrder{
			EncounterID: row.get("encounter_id"),
			OrderTime:   ts,
		})
		return nil
	})
	return out, err
}

// AntiinfDoses loads anti-infective administration times. Optional.
func (l *Loader) AntiinfDoses() ([]cohort.AntiinfDose, error) {
	var out []cohort.AntiinfDose
	err := l.read(antiinfFile, false, func(row record) error {
		ts, err := row.time("admin_time")
		if err != nil {
			return err
		}
		out = append(out, cohort.AntiinfDose{
			EncounterID: row.get("encounter_id"),
			AdminTime:   ts,
		})
		return nil
	})
	return out, err
}

// record is one CSV row addressed by header name.
type record struct {
	columns map[string]int
	fields  []string
}

func (r record) get(name string) string {
	idx, ok := r.columns[name]
	if !ok || idx >= len(r.fields) {
		return ""
	}
	return strings.TrimSpace(r.fields[idx])
}

func (r record) time(name string) (time.Time, error) {
	raw := r.get(name)
	ts, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("column %s: %w", name, err)
	}
	return ts, nil
}

func (l *Loader) read(name string, required bool, fn func(record) error) error {
	path := filepath.Join(l.dir, name)
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			if required {
				return SourceError{Table: name, reason: errMissingSource}
			}
			logger.WithField("table", name).Debug("Optional source table absent")
			return nil
		}
		return SourceError{Table: name, reason: err}
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return SourceError{Table: name, reason: fmt.Errorf("reading header: %w", err)}
	}
	columns := make(map[string]int, len(header))
	for i, h := range header {
		columns[strings.ToLower(strings.TrimSpace(h))] = i
	}

	line := 1
	for {
		fields, err := reader.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return SourceError{Table: name, reason: fmt.Errorf("line %d: %w", line+1, err)}
		}
		line++
		if err := fn(record{columns: columns, fields: fields}); err != nil {
			return SourceError{Table: name, reason: fmt.Errorf("line %d: %w", line, err)}
		}
	}
}
