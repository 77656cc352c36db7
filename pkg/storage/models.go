package storage

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// RunModel records one featurization run: its parameters, the population
// statistics it was built with, and its row counts.
type RunModel struct {
	ID           uuid.UUID         `gorm:"type:uuid;primaryKey;column:id"`
	Status       string            `gorm:"column:status"`
	Params       datatypes.JSONMap `gorm:"column:params"`
	Stats        datatypes.JSONMap `gorm:"column:stats"`
	Encounters   int               `gorm:"column:encounters"`
	Rows         int               `gorm:"column:rows"`
	ErrorMessage string            `gorm:"column:error_message"`
	CreatedAt    time.Time         `gorm:"column:created_at"`
	UpdatedAt    time.Time         `gorm:"column:updated_at"`
	CompletedAt  *time.Time        `gorm:"column:completed_at"`
}

func (RunModel) TableName() string {
	return "feature_runs"
}

// FeatureRowModel is one persisted patient hour. Values carries the full
// column map as JSONB so schema changes never need a migration.
type FeatureRowModel struct {
	ID          uuid.UUID         `gorm:"type:uuid;primaryKey;column:id"`
	RunID       uuid.UUID         `gorm:"type:uuid;index;column:run_id"`
	PatientID   string            `gorm:"index;column:patient_id"`
	EncounterID string            `gorm:"index;column:encounter_id"`
	Hour        int               `gorm:"column:hour_index"`
	Values      datatypes.JSONMap `gorm:"column:values"`
	CreatedAt   time.Time         `gorm:"column:created_at"`
}

func (FeatureRowModel) TableName() string {
	return "feature_rows"
}
