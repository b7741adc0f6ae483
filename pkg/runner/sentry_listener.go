package runner

import (
	"strconv"

	"github.com/getsentry/sentry-go"

	"github.com/wehubfusion/datacleaner/pkg/data"
	"github.com/wehubfusion/datacleaner/pkg/job"
)

// SentryHub is the part of *sentry.Hub the listener needs
type SentryHub interface {
	WithScope(f func(scope *sentry.Scope))
	CaptureException(exception error) *sentry.EventID
	AddBreadcrumb(breadcrumb *sentry.Breadcrumb, hint *sentry.BreadcrumbHint)
}

// SentryListener reports failed runs and component lifecycle failures to
// Sentry. Per-row errors become breadcrumbs of the run, so a storm of row
// errors does not flood the project.
type SentryListener struct {
	ListenerAdaptor
	hub SentryHub
}

// NewSentryListener creates a listener reporting to hub. A nil hub uses
// the current hub.
func NewSentryListener(hub SentryHub) *SentryListener {
	if hub == nil {
		hub = sentry.CurrentHub()
	}
	return &SentryListener{hub: hub}
}

func (l *SentryListener) JobFailed(aj *job.AnalysisJob, m JobMetrics, err error) {
	l.hub.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("job", aj.Name())
		scope.SetTag("run_id", m.RunID)
		scope.SetExtra("rows_processed", m.RowsProcessed)
		scope.SetExtra("errors", m.Errors)
		l.hub.CaptureException(err)
	})
}

func (l *SentryListener) ErrorInComponent(aj *job.AnalysisJob, cj job.ComponentJob, row data.InputRow, err error) {
	if row != nil {
		l.hub.AddBreadcrumb(&sentry.Breadcrumb{
			Category: "component",
			Message:  err.Error(),
			Level:    sentry.LevelWarning,
			Data: map[string]interface{}{
				"job":       aj.Name(),
				"component": cj.Name(),
				"row":       strconv.FormatInt(row.ID(), 10),
			},
		}, nil)
		return
	}
	l.hub.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("job", aj.Name())
		scope.SetTag("component", cj.Name())
		scope.SetTag("component_kind", string(cj.Kind()))
		l.hub.CaptureException(err)
	})
}

func (l *SentryListener) ErrorUnknown(aj *job.AnalysisJob, err error) {
	l.hub.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("job", aj.Name())
		l.hub.CaptureException(err)
	})
}
