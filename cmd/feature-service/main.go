package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/maai-ai/featurizer/pkg/cohort"
	"github.com/maai-ai/featurizer/pkg/common/config"
	"github.com/maai-ai/featurizer/pkg/common/database"
	"github.com/maai-ai/featurizer/pkg/common/kafka"
	"github.com/maai-ai/featurizer/pkg/common/logger"
	"github.com/maai-ai/featurizer/pkg/common/models"
	"github.com/maai-ai/featurizer/pkg/observability/metrics"
	"github.com/maai-ai/featurizer/pkg/pipeline"
	"github.com/maai-ai/featurizer/pkg/storage"
	"github.com/maai-ai/featurizer/pkg/vocabulary"
)

// FeatureService buffers raw observations off the ingest topic and turns
// them into feature matrices on demand. Each run request carries its own
// encounter roster and optional cohort labels.
type FeatureService struct {
	cfg      *config.Config
	vocab    vocabulary.Vocabulary
	repo     *storage.Repository
	cache    *storage.OnlineCache
	producer *kafka.Producer
	consumer *kafka.Consumer

	mu     sync.Mutex
	buffer []models.RawObservation
}

func main() {
	logger.Init()
	metrics.Init()
	cfg := config.Load()

	vocab, err := vocabulary.Load(cfg.VocabularyPath)
	if err != nil {
		logger.Log.WithError(err).Warn("Falling back to the built-in vocabulary")
	}

	db, err := database.GetPostgres()
	if err != nil {
		logger.Log.WithError(err).Fatal("Failed to connect to PostgreSQL")
	}
	repo := storage.NewRepository(db)
	if err := repo.AutoMigrate(); err != nil {
		logger.Log.WithError(err).Fatal("Failed to migrate feature tables")
	}

	service := &FeatureService{
		cfg:   cfg,
		vocab: vocab,
		repo:  repo,
		cache: storage.NewOnlineCache(database.GetRedis(), cfg.FeatureCacheTTL),
	}

	service.producer = kafka.NewProducer(cfg.FeatureRowsTopic)
	defer service.producer.Close()

	service.consumer = kafka.NewConsumer(cfg.ObservationsTopic, cfg.KafkaGroupID)
	defer service.consumer.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := service.consumer.Consume(ctx, service.buffered); err != nil && !errors.Is(err, context.Canceled) {
			logger.Log.WithError(err).Fatal("Consumer error")
		}
	}()

	router := mux.NewRouter()
	router.HandleFunc("/health", healthCheck).Methods("GET")
	router.HandleFunc("/metrics", func(w http.ResponseWriter, r *http.Request) {
		metrics.WritePrometheus(w)
	}).Methods("GET")
	router.HandleFunc("/api/v1/runs", service.handleCreateRun).Methods("POST")
	router.HandleFunc("/api/v1/runs", service.handleListRuns).Methods("GET")
	router.HandleFunc("/api/v1/runs/{id}", service.handleGetRun).Methods("GET")
	router.HandleFunc("/api/v1/encounters/{encounterID}/features", service.handleLatestFeatures).Methods("GET")

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.ServerHost, cfg.ServerPort),
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	go func() {
		logger.Log.WithFields(logrus.Fields{
			"host": cfg.ServerHost,
			"port": cfg.ServerPort,
		}).Info("Feature Service started")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.WithError(err).Fatal("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Log.Info("Shutting down Feature Service...")
	cancel()

	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelShutdown()

	if err := server.Shutdown(ctxShutdown); err != nil {
		logger.Log.WithError(err).Error("Server forced to shutdown")
	}

	database.ClosePostgres()
	database.CloseRedis()
	logger.Log.Info("Feature Service stopped")
}

func healthCheck(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"healthy"}`))
}

// buffered accumulates one consumed observation for the next run.
func (s *FeatureService) buffered(ctx context.Context, obs models.RawObservation) error {
	s.mu.Lock()
	s.buffer = append(s.buffer, obs)
	s.mu.Unlock()
	metrics.ObserveConsume(1, 0)
	return nil
}

// drain takes ownership of everything buffered so far.
func (s *FeatureService) drain() []models.RawObservation {
	s.mu.Lock()
	defer s.mu.Unlock()
	observations := s.buffer
	s.buffer = nil
	return observations
}

// restore puts a drained batch back at the front of the buffer so a failed
// run does not lose consumed observations.
func (s *FeatureService) restore(observations []models.RawObservation) {
	if len(observations) == 0 {
		return
	}
	s.mu.Lock()
	s.buffer = append(observations, s.buffer...)
	s.mu.Unlock()
}

type runRequest struct {
	Encounters   []models.Encounter      `json:"encounters"`
	Events       []models.TextEvent      `json:"events,omitempty"`
	CohortLabels []models.CohortLabel    `json:"cohort_labels,omitempty"`
	Observations []models.RawObservation `json:"observations,omitempty"`
}

func (s *FeatureService) handleCreateRun(w http.ResponseWriter, r *http.Request) {
	var req runRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}
	if len(req.Encounters) == 0 {
		http.Error(w, "No encounters in request", http.StatusBadRequest)
		return
	}

	drained := s.drain()
	observations := append(drained, req.Observations...)

	var provider cohort.Provider
	if len(req.CohortLabels) > 0 {
		provider = cohort.NewStaticProvider(req.CohortLabels)
	}

	runID := uuid.New()
	run := &storage.RunModel{
		ID:     runID,
		Status: storage.StatusRunning,
		Params: map[string]interface{}{
			"lookback_window":    s.cfg.LookbackWindow,
			"forward_fill_limit": s.cfg.ForwardFillLimit,
			"fuzzy_matching":     s.cfg.FuzzyMatching,
		},
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	if err := s.repo.CreateRun(r.Context(), run); err != nil {
		s.restore(drained)
		logger.Log.WithError(err).Error("Failed to record run")
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}

	p := pipeline.New(s.cfg, s.vocab, provider)
	result, err := p.Run(r.Context(), runID.String(), pipeline.Input{
		Observations: observations,
		Encounters:   req.Encounters,
		Events:       req.Events,
	})
	if err != nil {
		s.restore(drained)
		s.repo.FailRun(r.Context(), runID, err)
		metrics.ObserveRun(0, 0, true)
		logger.Log.WithError(err).Error("Featurization run failed")
		http.Error(w, "Run failed", http.StatusUnprocessableEntity)
		return
	}

	if err := s.finishRun(r.Context(), runID, result); err != nil {
		s.restore(drained)
		s.repo.FailRun(r.Context(), runID, err)
		metrics.ObserveRun(0, 0, true)
		logger.Log.WithError(err).Error("Failed to persist run output")
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}
	metrics.ObserveRun(result.Rows, result.Elapsed.Milliseconds(), false)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"run_id":     runID.String(),
		"encounters": result.Encounters,
		"rows":       result.Rows,
	})
}

// finishRun persists the matrix, refreshes the online cache, publishes the
// rows downstream, and marks the run completed.
func (s *FeatureService) finishRun(ctx context.Context, runID uuid.UUID, result *pipeline.Result) error {
	if err := s.repo.SaveMatrix(ctx, runID, result.Matrix); err != nil {
		return fmt.Errorf("saving matrix: %w", err)
	}
	if err := s.cache.PutLatest(ctx, result.Matrix); err != nil {
		logger.Log.WithError(err).Warn("Failed to refresh online cache")
	}
	for _, series := range result.Matrix {
		for _, rec := range series.Records {
			if err := s.producer.PublishFeatureRow(ctx, runID.String(), rec); err != nil {
				return fmt.Errorf("publishing feature rows: %w", err)
			}
		}
	}

	stats := map[string]interface{}{}
	for f, v := range result.Stats.Median {
		stats[string(f)] = v
	}
	return s.repo.CompleteRun(ctx, runID, result.Encounters, result.Rows, stats)
}

func (s *FeatureService) handleListRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := s.repo.ListRuns(r.Context(), 50)
	if err != nil {
		logger.Log.WithError(err).Error("Failed to list runs")
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(runs)
}

func (s *FeatureService) handleGetRun(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "Invalid run id", http.StatusBadRequest)
		return
	}
	run, err := s.repo.GetRun(r.Context(), id)
	if errors.Is(err, storage.ErrRunNotFound) {
		http.Error(w, "Run not found", http.StatusNotFound)
		return
	}
	if err != nil {
		logger.Log.WithError(err).Error("Failed to fetch run")
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(run)
}

// handleLatestFeatures serves the most recent feature row for an
// encounter: online cache first, Postgres fallback on a miss.
func (s *FeatureService) handleLatestFeatures(w http.ResponseWriter, r *http.Request) {
	encounterID := mux.Vars(r)["encounterID"]

	rec, err := s.cache.Get(r.Context(), encounterID)
	if err == nil {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(rec)
		return
	}
	if !errors.Is(err, storage.ErrNotCached) {
		logger.Log.WithError(err).Warn("Online cache read failed, falling back to Postgres")
	}

	row, err := s.repo.LatestRow(r.Context(), encounterID)
	if errors.Is(err, storage.ErrNoRows) {
		http.Error(w, "No features for encounter", http.StatusNotFound)
		return
	}
	if err != nil {
		logger.Log.WithError(err).Error("Failed to fetch feature row")
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(row)
}
