package storage

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/maai-ai/featurizer/pkg/common/models"
	"github.com/maai-ai/featurizer/pkg/vocabulary"
)

// ExportCSV writes the matrix as a flat CSV with one row per patient hour.
// Columns give the feature order; identity columns come first. Missing
// values export as empty cells.
func ExportCSV(w io.Writer, matrix models.Matrix, columns []vocabulary.Feature) error {
	cw := csv.NewWriter(w)

	header := []string{"patient_id", "encounter_id", "hour_index"}
	for _, c := range columns {
		header = append(header, string(c))
	}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}

	row := make([]string, len(header))
	for _, series := range matrix {
		for _, rec := range series.Records {
			row[0] = rec.PatientID
			row[1] = rec.EncounterID
			row[2] = strconv.Itoa(rec.Hour)
			for i, c := range columns {
				if v, ok := rec.Get(c); ok {
					row[3+i] = strconv.FormatFloat(v, 'g', -1, 64)
				} else {
					row[3+i] = ""
				}
			}
			if err := cw.Write(row); err != nil {
				return fmt.Errorf("writing row: %w", err)
			}
		}
	}

	cw.Flush()
	return cw.Error()
}
