package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/wehubfusion/datacleaner/pkg/result"
)

// ErrRunNotFound is returned when no run matches a lookup
var ErrRunNotFound = errors.New("run not found")

// RunRecord is one row of the run history
type RunRecord struct {
	ID          uint      `gorm:"primaryKey"`
	RunID       string    `gorm:"size:36;not null;uniqueIndex"`
	JobName     string    `gorm:"size:255;not null;index"`
	Status      string    `gorm:"size:20;not null"`
	StartedAt   time.Time `gorm:"not null"`
	FinishedAt  time.Time `gorm:"not null"`
	DurationMs  int64
	ResultCount int
	ErrorCount  int
	Errors      string `gorm:"type:text"`
	ResultURL   string `gorm:"size:1024"`
	CreatedAt   time.Time
}

func (RunRecord) TableName() string { return "datacleaner_runs" }

// ErrorMessages splits the stored errors
func (r *RunRecord) ErrorMessages() []string {
	if r.Errors == "" {
		return nil
	}
	return strings.Split(r.Errors, "\n")
}

// RunRepository keeps the history of analysis runs in a SQL database
type RunRepository struct {
	db     *gorm.DB
	logger *zap.Logger
}

// OpenRunRepository connects to "sqlite" or "postgres" and migrates the schema
func OpenRunRepository(driver, dsn string, logger *zap.Logger) (*RunRepository, error) {
	var dialector gorm.Dialector
	switch strings.ToLower(driver) {
	case "sqlite", "sqlite3":
		dialector = sqlite.Open(dsn)
	case "postgres", "postgresql":
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported run repository driver %q", driver)
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("open run repository: %w", err)
	}
	return NewRunRepository(db, logger)
}

// NewRunRepository wraps an open database and migrates the schema
func NewRunRepository(db *gorm.DB, logger *zap.Logger) (*RunRepository, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := db.AutoMigrate(&RunRecord{}); err != nil {
		return nil, fmt.Errorf("migrate run repository: %w", err)
	}
	return &RunRepository{db: db, logger: logger}, nil
}

// Record stores a finished run together with the reference of its result file
func (r *RunRepository) Record(ctx context.Context, snap *result.AnalysisResult, resultURL string) (*RunRecord, error) {
	if snap == nil || snap.RunID == "" {
		return nil, fmt.Errorf("snapshot needs a run id")
	}
	rec := &RunRecord{
		RunID:       snap.RunID,
		JobName:     snap.JobName,
		Status:      snap.Status,
		StartedAt:   snap.StartedAt,
		FinishedAt:  snap.FinishedAt,
		DurationMs:  snap.FinishedAt.Sub(snap.StartedAt).Milliseconds(),
		ResultCount: len(snap.Results),
		ErrorCount:  len(snap.Errors),
		Errors:      strings.Join(snap.Errors, "\n"),
		ResultURL:   resultURL,
	}
	if err := r.db.WithContext(ctx).Create(rec).Error; err != nil {
		return nil, fmt.Errorf("record run %s: %w", snap.RunID, err)
	}
	r.logger.Debug("Recorded run",
		zap.String("run_id", rec.RunID),
		zap.String("job", rec.JobName),
		zap.String("status", rec.Status))
	return rec, nil
}

// Get returns the record of a run
func (r *RunRepository) Get(ctx context.Context, runID string) (*RunRecord, error) {
	var rec RunRecord
	err := r.db.WithContext(ctx).Where("run_id = ?", runID).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%s: %w", runID, ErrRunNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// List returns the most recent runs of a job, newest first. An empty job
// name lists every job; limit 0 means no limit.
func (r *RunRepository) List(ctx context.Context, jobName string, limit int) ([]RunRecord, error) {
	q := r.db.WithContext(ctx).Order("started_at DESC").Order("id DESC")
	if jobName != "" {
		q = q.Where("job_name = ?", jobName)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	var recs []RunRecord
	if err := q.Find(&recs).Error; err != nil {
		return nil, err
	}
	return recs, nil
}

// Latest returns the most recent run of a job
func (r *RunRepository) Latest(ctx context.Context, jobName string) (*RunRecord, error) {
	recs, err := r.List(ctx, jobName, 1)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, fmt.Errorf("no runs of %s: %w", jobName, ErrRunNotFound)
	}
	return &recs[0], nil
}

// DeleteBefore removes runs that started before t
func (r *RunRepository) DeleteBefore(ctx context.Context, t time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Where("started_at < ?", t).Delete(&RunRecord{})
	return res.RowsAffected, res.Error
}

// Close closes the underlying connection pool
func (r *RunRepository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
