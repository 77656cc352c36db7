package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/exascience/pargo/parallel"
	"github.com/sirupsen/logrus"

	"github.com/maai-ai/featurizer/pkg/cohort"
	"github.com/maai-ai/featurizer/pkg/common/config"
	"github.com/maai-ai/featurizer/pkg/common/logger"
	"github.com/maai-ai/featurizer/pkg/common/models"
	"github.com/maai-ai/featurizer/pkg/derive"
	"github.com/maai-ai/featurizer/pkg/flags"
	"github.com/maai-ai/featurizer/pkg/impute"
	"github.com/maai-ai/featurizer/pkg/normalizer"
	"github.com/maai-ai/featurizer/pkg/rolling"
	"github.com/maai-ai/featurizer/pkg/sequence"
	"github.com/maai-ai/featurizer/pkg/timeline"
	"github.com/maai-ai/featurizer/pkg/vocabulary"
)

// Input is everything one featurization run consumes: raw measurements,
// the admission roster they hang off, and the free-text medication and
// diagnosis events.
type Input struct {
	Observations []models.RawObservation
	Encounters   []models.Encounter
	Events       []models.TextEvent
}

// Result is the finished run: the labeled per-hour matrix, the population
// statistics it was built with, and stage counters for the run record.
type Result struct {
	RunID      string
	Matrix     models.Matrix
	Stats      models.PopulationStats
	Encounters int
	Rows       int
	Started    time.Time
	Elapsed    time.Duration
}

// Pipeline chains the featurization stages in their fixed order. Every
// per-encounter stage consumes and returns cloned series, so encounters can
// be processed in parallel without shared state.
type Pipeline struct {
	cfg      *config.Config
	vocab    vocabulary.Vocabulary
	provider cohort.Provider

	normalizer *normalizer.Normalizer
	aligner    *timeline.Aligner
	imputer    *impute.Imputer
	clipper    *impute.Clipper
	aggregator *rolling.Aggregator
	extractor  *flags.Extractor
	deriver    *derive.Synthesizer
}

// New wires the stages from config. provider supplies the supervised
// outcome labels and may be nil, in which case every encounter is labeled 0.
func New(cfg *config.Config, vocab vocabulary.Vocabulary, provider cohort.Provider) *Pipeline {
	base := vocab.Base()

	mode := flags.Exact
	if cfg.FuzzyMatching {
		mode = flags.Fuzzy
	}
	groups := make(map[string][]string, len(vocab.MedicationFlags)+len(vocab.DiagnosisFlags))
	for name, keywords := range vocab.MedicationFlags {
		groups[name] = keywords
	}
	for name, keywords := range vocab.DiagnosisFlags {
		groups[name] = keywords
	}

	rocBases := []vocabulary.Feature{"pulse", "map", "lactic_acid", "creatinine"}
	zBases := []vocabulary.Feature{"pulse", "temp", "wbc", "lactic_acid"}

	return &Pipeline{
		cfg:        cfg,
		vocab:      vocab,
		provider:   provider,
		normalizer: normalizer.New(vocab, cfg.DropUnknownNames),
		aligner:    timeline.New(cfg.TimeResolution),
		imputer:    impute.New(base, cfg.ForwardFillLimit),
		// Bounded clinical scores are exempt from winsorization.
		clipper:    impute.NewClipper(base, []vocabulary.Feature{"coma_scale_total"}),
		aggregator: rolling.New(base, cfg.LookbackWindow, cfg.HigherMoments),
		extractor:  flags.NewExtractor(groups, mode, cfg.FuzzyThreshold, nil),
		deriver:    derive.New(rocBases, cfg.RateOfChangeLag, zBases),
	}
}

// Run executes the full stage chain over one input batch.
func (p *Pipeline) Run(ctx context.Context, runID string, in Input) (*Result, error) {
	started := time.Now()
	log := logger.WithField("run_id", runID)

	if len(in.Encounters) == 0 {
		return nil, fmt.Errorf("run %s: no encounters to featurize", runID)
	}

	encounters := make(map[string]models.Encounter, len(in.Encounters))
	for _, e := range in.Encounters {
		encounters[e.EncounterID] = e
	}

	obs := p.normalizer.Normalize(in.Observations)
	matrix := p.aligner.Align(obs, encounters)
	events := p.aligner.BucketEvents(in.Events, encounters)

	// Population statistics come from realized values only and must be
	// fixed before any encounter is filled or clipped.
	stats := impute.ComputePopulationStats(matrix, p.vocab.Base(),
		p.cfg.ClipLowerPercent, p.cfg.ClipUpperPercent)

	p.forEach(matrix, func(s *models.EncounterSeries) *models.EncounterSeries {
		s = p.imputer.Fill(s, stats)
		s = p.clipper.Clip(s, stats)
		s = p.aggregator.Aggregate(s)
		s = p.extractor.Apply(s, events[s.EncounterID])
		return p.deriver.Synthesize(s)
	})
	log.Info("Per-encounter transforms complete")

	// Derived columns can be undefined early in a stay (rate-of-change
	// lags, zero-denominator ratios). Run a second fill over just those
	// columns with their own population medians.
	derivedStats := impute.ComputePopulationStats(matrix, p.deriver.Names(),
		p.cfg.ClipLowerPercent, p.cfg.ClipUpperPercent)
	derivedFill := impute.New(p.deriver.Names(), p.cfg.ForwardFillLimit)
	p.forEach(matrix, func(s *models.EncounterSeries) *models.EncounterSeries {
		return derivedFill.Fill(s, derivedStats)
	})

	labels, err := p.labels(ctx)
	if err != nil {
		return nil, fmt.Errorf("run %s: resolving cohort labels: %w", runID, err)
	}
	p.forEach(matrix, func(s *models.EncounterSeries) *models.EncounterSeries {
		return cohort.Apply(s, labels)
	})
	log.WithField("labeled_encounters", len(labels)).Info("Label merge complete")

	result := &Result{
		RunID:      runID,
		Matrix:     matrix,
		Stats:      stats,
		Encounters: len(matrix),
		Rows:       matrix.Rows(),
		Started:    started,
		Elapsed:    time.Since(started),
	}
	log.WithFields(logrus.Fields{
		"rows": result.Rows, "elapsed": result.Elapsed.String(),
	}).Info("Featurization run complete")
	return result, nil
}

// Sequences windows a finished matrix into the triple-block batch consumed
// by the downstream sequence model.
func (p *Pipeline) Sequences(matrix models.Matrix) models.SequenceBatch {
	families := sequence.Families{
		Vitals: vocabulary.Suffixed(p.vocab.Vitals, p.aggregator.Suffixes()),
		Labs:   vocabulary.Suffixed(p.vocab.Labs, p.aggregator.Suffixes()),
		Meds:   p.extractor.FlagNames(),
	}
	return sequence.New(p.cfg.SequenceLookback, families).Build(matrix)
}

// Columns lists every feature column a run emits, in stable schema order.
func (p *Pipeline) Columns() []vocabulary.Feature {
	out := append([]vocabulary.Feature{}, p.vocab.Base()...)
	out = append(out, vocabulary.Suffixed(p.vocab.Base(), p.aggregator.Suffixes())...)
	out = append(out, p.extractor.FlagNames()...)
	out = append(out, p.deriver.Names()...)
	out = append(out, vocabulary.TargetLabel)
	return out
}

func (p *Pipeline) labels(ctx context.Context) (map[string]models.CohortLabel, error) {
	if p.provider == nil {
		return map[string]models.CohortLabel{}, nil
	}
	labels, err := p.provider.Labels(ctx)
	if err != nil {
		return nil, err
	}
	return cohort.Index(labels), nil
}

// forEach applies a pure per-encounter transform across the matrix in
// parallel, writing each result back to its own slot.
func (p *Pipeline) forEach(matrix models.Matrix, fn func(*models.EncounterSeries) *models.EncounterSeries) {
	parallel.Range(0, len(matrix), p.cfg.PipelineWorkers, func(low, high int) {
		for i := low; i < high; i++ {
			matrix[i] = fn(matrix[i])
		}
	})
}
