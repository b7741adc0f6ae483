package runner

import (
	"go.uber.org/zap"

	"github.com/wehubfusion/datacleaner/pkg/data"
	"github.com/wehubfusion/datacleaner/pkg/job"
	"github.com/wehubfusion/datacleaner/pkg/result"
)

// LoggingListener writes the lifecycle of runs to a zap logger. Per-row
// events are logged at debug level.
type LoggingListener struct {
	logger *zap.Logger
}

// NewLoggingListener creates a logging listener. A nil logger disables logging.
func NewLoggingListener(logger *zap.Logger) *LoggingListener {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LoggingListener{logger: logger}
}

func (l *LoggingListener) JobBegin(aj *job.AnalysisJob, m JobMetrics) {
	l.logger.Info("Job begin",
		zap.String("job", aj.Name()),
		zap.String("runID", m.RunID),
		zap.String("datastore", aj.Datastore().Name()))
}

func (l *LoggingListener) JobSuccess(aj *job.AnalysisJob, m JobMetrics) {
	l.logger.Info("Job success",
		zap.String("job", aj.Name()),
		zap.String("runID", m.RunID),
		zap.Int64("rows", m.RowsProcessed),
		zap.Duration("duration", m.Duration))
}

func (l *LoggingListener) JobFailed(aj *job.AnalysisJob, m JobMetrics, err error) {
	l.logger.Error("Job failed",
		zap.String("job", aj.Name()),
		zap.String("runID", m.RunID),
		zap.Int64("rows", m.RowsProcessed),
		zap.Int("errors", m.Errors),
		zap.Error(err))
}

func (l *LoggingListener) JobCancelled(aj *job.AnalysisJob, m JobMetrics) {
	l.logger.Warn("Job cancelled",
		zap.String("job", aj.Name()),
		zap.String("runID", m.RunID),
		zap.Int64("rows", m.RowsProcessed))
}

func (l *LoggingListener) RowProcessingBegin(aj *job.AnalysisJob, expectedRows int64) {
	l.logger.Info("Row processing begin", zap.String("job", aj.Name()), zap.Int64("expectedRows", expectedRows))
}

func (l *LoggingListener) RowProcessingProgress(aj *job.AnalysisJob, rowsProcessed int64) {
	l.logger.Debug("Row processing progress", zap.String("job", aj.Name()), zap.Int64("rows", rowsProcessed))
}

func (l *LoggingListener) RowProcessingSuccess(aj *job.AnalysisJob, rowsProcessed int64) {
	l.logger.Info("Row processing success", zap.String("job", aj.Name()), zap.Int64("rows", rowsProcessed))
}

func (l *LoggingListener) ComponentBegin(aj *job.AnalysisJob, cj job.ComponentJob) {
	l.logger.Debug("Component begin", zap.String("job", aj.Name()), zap.String("component", cj.String()))
}

func (l *LoggingListener) ComponentSuccess(aj *job.AnalysisJob, cj job.ComponentJob, r result.AnalyzerResult) {
	fields := []zap.Field{zap.String("job", aj.Name()), zap.String("component", cj.String())}
	if r != nil {
		fields = append(fields, zap.String("resultKind", r.Kind()))
	}
	l.logger.Debug("Component success", fields...)
}

func (l *LoggingListener) ErrorInComponent(aj *job.AnalysisJob, cj job.ComponentJob, row data.InputRow, err error) {
	fields := []zap.Field{zap.String("job", aj.Name()), zap.String("component", cj.String()), zap.Error(err)}
	if row != nil {
		fields = append(fields, zap.Int64("row", row.ID()))
	}
	l.logger.Warn("Error in component", fields...)
}

func (l *LoggingListener) ErrorUnknown(aj *job.AnalysisJob, err error) {
	l.logger.Error("Unexpected error", zap.String("job", aj.Name()), zap.Error(err))
}
