package storage

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/maai-ai/featurizer/pkg/common/models"
)

var (
	ErrRunNotFound = errors.New("feature run not found")
	ErrNoRows      = errors.New("no feature rows for encounter")
)

const insertBatchSize = 500

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) AutoMigrate() error {
	return r.db.AutoMigrate(&RunModel{}, &FeatureRowModel{})
}

func (r *Repository) CreateRun(ctx context.Context, run *RunModel) error {
	return r.db.WithContext(ctx).Create(run).Error
}

func (r *Repository) CompleteRun(ctx context.Context, runID uuid.UUID, encounters, rows int, stats map[string]interface{}) error {
	now := time.Now().UTC()
	updates := map[string]interface{}{
		"status":       StatusCompleted,
		"encounters":   encounters,
		"rows":         rows,
		"updated_at":   now,
		"completed_at": now,
	}
	if stats != nil {
		updates["stats"] = datatypes.JSONMap(stats)
	}
	return r.db.WithContext(ctx).Model(&RunModel{}).Where("id = ?", runID).Updates(updates).Error
}

func (r *Repository) FailRun(ctx context.Context, runID uuid.UUID, cause error) error {
	return r.db.WithContext(ctx).Model(&RunModel{}).Where("id = ?", runID).Updates(map[string]interface{}{
		"status":        StatusFailed,
		"error_message": cause.Error(),
		"updated_at":    time.Now().UTC(),
	}).Error
}

func (r *Repository) GetRun(ctx context.Context, runID uuid.UUID) (*RunModel, error) {
	var run RunModel
	if err := r.db.WithContext(ctx).First(&run, "id = ?", runID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRunNotFound
		}
		return nil, err
	}
	return &run, nil
}

func (r *Repository) ListRuns(ctx context.Context, limit int) ([]RunModel, error) {
	if limit <= 0 {
		limit = 50
	}
	var runs []RunModel
	err := r.db.WithContext(ctx).Order("created_at DESC").Limit(limit).Find(&runs).Error
	return runs, err
}

// SaveMatrix persists every hourly row of a finished run in insert batches.
func (r *Repository) SaveMatrix(ctx context.Context, runID uuid.UUID, matrix models.Matrix) error {
	rows := make([]FeatureRowModel, 0, matrix.Rows())
	for _, series := range matrix {
		for _, rec := range series.Records {
			rows = append(rows, FeatureRowModel{
				ID:          uuid.New(),
				RunID:       runID,
				PatientID:   rec.PatientID,
				EncounterID: rec.EncounterID,
				Hour:        rec.Hour,
				Values:      rowValues(rec),
				CreatedAt:   time.Now().UTC(),
			})
		}
	}
	if len(rows) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).CreateInBatches(rows, insertBatchSize).Error
}

// LatestRow returns the most recently persisted hour for an encounter,
// across runs. Serves as the fallback when the online cache misses.
func (r *Repository) LatestRow(ctx context.Context, encounterID string) (*FeatureRowModel, error) {
	var row FeatureRowModel
	err := r.db.WithContext(ctx).
		Where("encounter_id = ?", encounterID).
		Order("created_at DESC").
		Order("hour_index DESC").
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNoRows
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *Repository) EncounterRows(ctx context.Context, runID uuid.UUID, encounterID string) ([]FeatureRowModel, error) {
	var rows []FeatureRowModel
	err := r.db.WithContext(ctx).
		Where("run_id = ? AND encounter_id = ?", runID, encounterID).
		Order("hour_index ASC").
		Find(&rows).Error
	return rows, err
}

// rowValues converts a record's column map for the JSONB column. NaN has no
// JSON encoding, so missing markers are stored as nulls.
func rowValues(rec *models.HourlyRecord) datatypes.JSONMap {
	out := make(datatypes.JSONMap, len(rec.Values))
	for f, v := range rec.Values {
		if math.IsNaN(v) {
			out[string(f)] = nil
			continue
		}
		out[string(f)] = v
	}
	return out
}
