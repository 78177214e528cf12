package store

import (
	"time"
)

// Run status constants.
const (
	StatusSuccess = "SUCCESS"
	StatusFailed  = "FAILED"
)

// BenchmarkRun is one persisted benchmark invocation.
type BenchmarkRun struct {
	ID             uint              `gorm:"primaryKey" json:"id"`
	RunID          string            `gorm:"uniqueIndex;size:36;not null" json:"run_id"`
	Name           string            `gorm:"index;not null" json:"name"`
	UniqueName     string            `gorm:"index:idx_runs_unique_env;not null" json:"unique_name"`
	Environment    string            `gorm:"index:idx_runs_unique_env" json:"environment"`
	SequenceID     string            `gorm:"not null" json:"sequence_id"`
	DataSource     string            `gorm:"not null" json:"datasource"`
	Concurrency    int               `gorm:"not null" json:"concurrency"`
	Runs           int               `gorm:"not null" json:"runs"`
	ThroughputTest bool              `json:"throughput_test"`
	Variables      map[string]string `gorm:"serializer:json" json:"variables,omitempty"`
	Status         string            `gorm:"index;not null" json:"status"`
	Error          string            `json:"error,omitempty"`
	StartedAt      time.Time         `gorm:"index" json:"started_at"`
	EndedAt        time.Time         `json:"ended_at"`
	CreatedAt      time.Time         `json:"created_at"`

	Executions   []QueryExecution `gorm:"constraint:OnDelete:CASCADE" json:"executions,omitempty"`
	Measurements []Measurement    `gorm:"constraint:OnDelete:CASCADE" json:"measurements,omitempty"`
}

// QueryExecution is one persisted query execution of a benchmark run.
type QueryExecution struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	BenchmarkRunID uint      `gorm:"index;not null" json:"-"`
	QueryName      string    `gorm:"not null" json:"query_name"`
	SequenceID     int       `gorm:"not null" json:"sequence_id"`
	RowsCount      int64     `json:"rows_count"`
	Successful     bool      `json:"successful"`
	Error          string    `json:"error,omitempty"`
	StartedAt      time.Time `json:"started_at"`
	EndedAt        time.Time `json:"ended_at"`
	DurationMs     float64   `json:"duration_ms"`
}

// Measurement is a named value attached to a benchmark run.
type Measurement struct {
	ID             uint    `gorm:"primaryKey" json:"-"`
	BenchmarkRunID uint    `gorm:"index;not null" json:"-"`
	Name           string  `gorm:"not null" json:"name"`
	Unit           string  `gorm:"not null" json:"unit"`
	Value          float64 `json:"value"`
}
