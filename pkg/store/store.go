package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethpandaops/queryoor/pkg/config"
	"github.com/ethpandaops/queryoor/pkg/datasource"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// ErrNotFound is returned when a run does not exist.
var ErrNotFound = errors.New("not found")

// ListOptions filters ListBenchmarkRuns.
type ListOptions struct {
	Name   string
	Status string
	Limit  int
	Offset int
}

// Store provides persistence for benchmark results.
type Store interface {
	Start(ctx context.Context) error
	Stop() error

	// SaveBenchmarkRun persists a run with its executions and measurements.
	SaveBenchmarkRun(ctx context.Context, run *BenchmarkRun) error

	// ListBenchmarkRuns returns runs newest first without executions.
	ListBenchmarkRuns(ctx context.Context, opts ListOptions) ([]BenchmarkRun, error)

	// GetBenchmarkRun returns a run with executions and measurements.
	GetBenchmarkRun(ctx context.Context, runID string) (*BenchmarkRun, error)

	// LastSuccessfulRun returns the start time of the newest successful run
	// of a benchmark in an environment. ok is false when none exists.
	LastSuccessfulRun(
		ctx context.Context,
		uniqueName, environment string,
	) (time.Time, bool, error)
}

// Compile-time interface check.
var _ Store = (*store)(nil)

const defaultListLimit = 100

type store struct {
	log logrus.FieldLogger
	cfg *config.DatabaseConfig
	db  *gorm.DB
}

// NewStore creates a new Store backed by the configured database driver.
func NewStore(
	log logrus.FieldLogger,
	cfg *config.DatabaseConfig,
) Store {
	return &store{
		log: log.WithField("component", "store"),
		cfg: cfg,
	}
}

// Start opens the database connection and runs migrations.
func (s *store) Start(ctx context.Context) error {
	db, err := datasource.Open(s.cfg)
	if err != nil {
		return err
	}

	s.db = db

	if err := s.db.WithContext(ctx).AutoMigrate(
		&BenchmarkRun{},
		&QueryExecution{},
		&Measurement{},
	); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	s.log.WithField("driver", s.cfg.Driver).Info("Database connected")

	return nil
}

// Stop closes the underlying database connection.
func (s *store) Stop() error {
	if s.db == nil {
		return nil
	}

	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("getting underlying db: %w", err)
	}

	return sqlDB.Close()
}

func (s *store) SaveBenchmarkRun(ctx context.Context, run *BenchmarkRun) error {
	if err := s.db.WithContext(ctx).Create(run).Error; err != nil {
		return fmt.Errorf("saving benchmark run: %w", err)
	}

	return nil
}

func (s *store) ListBenchmarkRuns(
	ctx context.Context, opts ListOptions,
) ([]BenchmarkRun, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}

	q := s.db.WithContext(ctx).Order("started_at DESC").Order("id DESC")

	if opts.Name != "" {
		q = q.Where("name = ?", opts.Name)
	}

	if opts.Status != "" {
		q = q.Where("status = ?", opts.Status)
	}

	var runs []BenchmarkRun
	if err := q.Limit(limit).Offset(opts.Offset).Find(&runs).Error; err != nil {
		return nil, fmt.Errorf("listing benchmark runs: %w", err)
	}

	return runs, nil
}

func (s *store) GetBenchmarkRun(
	ctx context.Context, runID string,
) (*BenchmarkRun, error) {
	var run BenchmarkRun
	if err := s.db.WithContext(ctx).
		Preload("Executions", func(db *gorm.DB) *gorm.DB {
			return db.Order("sequence_id ASC")
		}).
		Preload("Measurements").
		Where("run_id = ?", runID).
		First(&run).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("benchmark run %q: %w", runID, ErrNotFound)
		}

		return nil, fmt.Errorf("getting benchmark run: %w", err)
	}

	return &run, nil
}

func (s *store) LastSuccessfulRun(
	ctx context.Context,
	uniqueName, environment string,
) (time.Time, bool, error) {
	var runs []BenchmarkRun
	if err := s.db.WithContext(ctx).
		Where("unique_name = ? AND environment = ? AND status = ?",
			uniqueName, environment, StatusSuccess).
		Order("started_at DESC").
		Limit(1).
		Find(&runs).Error; err != nil {
		return time.Time{}, false, fmt.Errorf("getting last successful run: %w", err)
	}

	if len(runs) == 0 {
		return time.Time{}, false, nil
	}

	return runs[0].StartedAt, true, nil
}
