package sequence

import (
	"github.com/sirupsen/logrus"

	"github.com/maai-ai/featurizer/pkg/common/logger"
	"github.com/maai-ai/featurizer/pkg/common/models"
	"github.com/maai-ai/featurizer/pkg/vocabulary"
)

// Families names the feature columns backing each block of the sequence
// batch, in block column order.
type Families struct {
	Vitals []vocabulary.Feature
	Labs   []vocabulary.Feature
	Meds   []vocabulary.Feature
}

// Windower slices the finished per-hour matrix into fixed-length lookback
// windows. Each sample covers L consecutive hours and carries the label of
// its last covered hour, never a future one.
type Windower struct {
	lookback int
	families Families
}

func New(lookback int, families Families) *Windower {
	if lookback < 1 {
		lookback = 1
	}
	return &Windower{lookback: lookback, families: families}
}

// Build emits the triple-block batch over every encounter. An encounter
// with fewer than lookback+1 rows contributes nothing.
func (w *Windower) Build(matrix models.Matrix) models.SequenceBatch {
	batch := models.SequenceBatch{}

	for _, series := range matrix {
		w.appendSeries(&batch, series)
	}

	logger.Log.WithFields(logrus.Fields{
		"samples":  batch.Samples(),
		"lookback": w.lookback,
	}).Info("Sequence windowing complete")

	return batch
}

func (w *Windower) appendSeries(batch *models.SequenceBatch, series *models.EncounterSeries) {
	count := len(series.Records) - w.lookback
	if count <= 0 {
		return
	}

	for i := 0; i < count; i++ {
		end := i + w.lookback - 1

		batch.Vitals = append(batch.Vitals, w.block(series, i, w.families.Vitals))
		batch.Labs = append(batch.Labs, w.block(series, i, w.families.Labs))
		batch.Meds = append(batch.Meds, w.block(series, i, w.families.Meds))

		label, _ := series.Records[end].Get(vocabulary.TargetLabel)
		batch.Labels = append(batch.Labels, label)
	}
}

func (w *Windower) block(series *models.EncounterSeries, start int, features []vocabulary.Feature) [][]float64 {
	rows := make([][]float64, w.lookback)
	for offset := 0; offset < w.lookback; offset++ {
		rec := series.Records[start+offset]
		row := make([]float64, len(features))
		for col, f := range features {
			v, _ := rec.Get(f)
			row[col] = v
		}
		rows[offset] = row
	}
	return rows
}
