package main

import (
	"context"
	"flag"
	"os"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/maai-ai/featurizer/pkg/cohort"
	"github.com/maai-ai/featurizer/pkg/common/config"
	"github.com/maai-ai/featurizer/pkg/common/logger"
	"github.com/maai-ai/featurizer/pkg/common/models"
	"github.com/maai-ai/featurizer/pkg/ingest"
	"github.com/maai-ai/featurizer/pkg/pipeline"
	"github.com/maai-ai/featurizer/pkg/storage"
	"github.com/maai-ai/featurizer/pkg/vocabulary"
)

func main() {
	inputDir := flag.String("input", ".", "directory holding the CSV source tables")
	outputPath := flag.String("output", "features.csv", "destination for the flat feature matrix")
	sequences := flag.Bool("sequences", false, "also window the matrix and report sample counts")
	flag.Parse()

	logger.Init()
	cfg := config.Load()

	vocab, err := vocabulary.Load(cfg.VocabularyPath)
	if err != nil {
		logger.Log.WithError(err).Warn("Falling back to the built-in vocabulary")
	}

	loader := ingest.NewLoader(*inputDir)

	observations, err := loader.Observations()
	if err != nil {
		logger.Log.WithError(err).Fatal("Failed to load observations")
	}
	encounters, err := loader.Encounters()
	if err != nil {
		logger.Log.WithError(err).Fatal("Failed to load encounters")
	}
	events, err := loader.Events()
	if err != nil {
		logger.Log.WithError(err).Fatal("Failed to load events")
	}

	provider, err := resolveProvider(loader, encounters)
	if err != nil {
		logger.Log.WithError(err).Fatal("Failed to load cohort sources")
	}

	p := pipeline.New(cfg, vocab, provider)
	runID := uuid.New().String()

	result, err := p.Run(context.Background(), runID, pipeline.Input{
		Observations: observations,
		Encounters:   encounters,
		Events:       events,
	})
	if err != nil {
		logger.Log.WithError(err).Fatal("Featurization run failed")
	}

	out, err := os.Create(*outputPath)
	if err != nil {
		logger.Log.WithError(err).Fatal("Failed to create output file")
	}
	defer out.Close()

	if err := storage.ExportCSV(out, result.Matrix, p.Columns()); err != nil {
		logger.Log.WithError(err).Fatal("Failed to export feature matrix")
	}

	logger.Log.WithFields(logrus.Fields{
		"run_id":     runID,
		"encounters": result.Encounters,
		"rows":       result.Rows,
		"output":     *outputPath,
	}).Info("Feature matrix written")

	if *sequences {
		batch := p.Sequences(result.Matrix)
		logger.Log.WithFields(logrus.Fields{
			"samples":  batch.Samples(),
			"lookback": cfg.SequenceLookback,
		}).Info("Sequence batch built")
	}
}

// resolveProvider picks the label source for this batch: a precomputed
// cohort table wins, then the infection heuristic when culture and dose
// extracts are present, else every encounter is labeled negative.
func resolveProvider(loader *ingest.Loader, encounters []models.Encounter) (cohort.Provider, error) {
	labels, err := loader.CohortLabels()
	if err != nil {
		return nil, err
	}
	if len(labels) > 0 {
		return cohort.NewStaticProvider(labels), nil
	}

	cultures, err := loader.Cultures()
	if err != nil {
		return nil, err
	}
	doses, err := loader.AntiinfDoses()
	if err != nil {
		return nil, err
	}
	if len(cultures) == 0 || len(doses) == 0 {
		return nil, nil
	}

	byID := make(map[string]models.Encounter, len(encounters))
	for _, e := range encounters {
		byID[e.EncounterID] = e
	}
	return cohort.NewInfectionProvider(byID, cultures, doses), nil
}
