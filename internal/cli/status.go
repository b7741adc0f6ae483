package cli

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cast"
	"go.uber.org/zap"

	"github.com/wehubfusion/datacleaner/pkg/scheduler"
	"github.com/wehubfusion/datacleaner/pkg/storage"
)

type scheduleLister interface {
	Entries() []scheduler.EntryInfo
}

type scheduleView struct {
	Name    string     `json:"name"`
	Cron    string     `json:"cron"`
	Next    time.Time  `json:"next"`
	Prev    *time.Time `json:"prev,omitempty"`
	Running bool       `json:"running"`
}

type runView struct {
	RunID      string    `json:"runId"`
	Job        string    `json:"job"`
	Status     string    `json:"status"`
	StartedAt  time.Time `json:"startedAt"`
	DurationMs int64     `json:"durationMs"`
	Results    int       `json:"results"`
	Errors     []string  `json:"errors,omitempty"`
	ResultURL  string    `json:"resultUrl,omitempty"`
}

func newRunView(rec *storage.RunRecord) runView {
	return runView{
		RunID:      rec.RunID,
		Job:        rec.JobName,
		Status:     rec.Status,
		StartedAt:  rec.StartedAt,
		DurationMs: rec.DurationMs,
		Results:    rec.ResultCount,
		Errors:     rec.ErrorMessages(),
		ResultURL:  rec.ResultURL,
	}
}

type errorBody struct {
	Error string `json:"error"`
}

// statusAPI is the HTTP surface of serve-schedule. runs is nil without a
// run history, in which case /runs answers 404.
type statusAPI struct {
	schedules scheduleLister
	runs      *storage.RunRepository
	logger    *zap.Logger
}

func newStatusRouter(reg *prometheus.Registry, schedules scheduleLister, runs *storage.RunRepository, logger *zap.Logger) http.Handler {
	api := &statusAPI{schedules: schedules, runs: runs, logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		render.PlainText(w, r, "ok")
	})
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	r.Get("/schedules", api.listSchedules)
	r.Route("/runs", func(r chi.Router) {
		r.Use(api.requireRuns)
		r.Get("/", api.listRuns)
		r.Get("/{runID}", api.getRun)
	})
	return r
}

func (a *statusAPI) fail(w http.ResponseWriter, r *http.Request, status int, err error) {
	if status >= http.StatusInternalServerError {
		a.logger.Error("Status request failed",
			zap.String("path", r.URL.Path),
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Error(err))
	}
	render.Status(r, status)
	render.JSON(w, r, errorBody{Error: err.Error()})
}

func (a *statusAPI) requireRuns(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.runs == nil {
			a.fail(w, r, http.StatusNotFound, errors.New("run history is not configured"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (a *statusAPI) listSchedules(w http.ResponseWriter, r *http.Request) {
	entries := a.schedules.Entries()
	out := make([]scheduleView, 0, len(entries))
	for _, e := range entries {
		v := scheduleView{Name: e.Name, Cron: e.Spec, Next: e.Next, Running: e.Running}
		if !e.Prev.IsZero() {
			prev := e.Prev
			v.Prev = &prev
		}
		out = append(out, v)
	}
	render.JSON(w, r, out)
}

// listRuns serves ?job=<name>&limit=<n>, newest first, at most 100
func (a *statusAPI) listRuns(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := cast.ToIntE(raw)
		if err != nil || n < 1 {
			a.fail(w, r, http.StatusBadRequest, errors.New("limit must be a positive integer"))
			return
		}
		limit = min(n, 100)
	}

	recs, err := a.runs.List(r.Context(), r.URL.Query().Get("job"), limit)
	if err != nil {
		a.fail(w, r, http.StatusInternalServerError, err)
		return
	}
	out := make([]runView, 0, len(recs))
	for i := range recs {
		out = append(out, newRunView(&recs[i]))
	}
	render.JSON(w, r, out)
}

func (a *statusAPI) getRun(w http.ResponseWriter, r *http.Request) {
	rec, err := a.runs.Get(r.Context(), chi.URLParam(r, "runID"))
	switch {
	case errors.Is(err, storage.ErrRunNotFound):
		a.fail(w, r, http.StatusNotFound, err)
	case err != nil:
		a.fail(w, r, http.StatusInternalServerError, err)
	default:
		render.JSON(w, r, newRunView(rec))
	}
}
