package cluster

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/wehubfusion/datacleaner/pkg/component"
	"github.com/wehubfusion/datacleaner/pkg/components/all"
	"github.com/wehubfusion/datacleaner/pkg/concurrency"
	"github.com/wehubfusion/datacleaner/pkg/data"
	dcerrors "github.com/wehubfusion/datacleaner/pkg/errors"
	"github.com/wehubfusion/datacleaner/pkg/job"
	"github.com/wehubfusion/datacleaner/pkg/result"
	"github.com/wehubfusion/datacleaner/pkg/runner"
	"github.com/wehubfusion/datacleaner/pkg/storage"
)

func TestSplitRows(t *testing.T) {
	parts := SplitRows(10, 3)
	want := []Partition{{0, 1, 4}, {1, 5, 3}, {2, 8, 3}}
	if len(parts) != len(want) {
		t.Fatalf("expected %d partitions, got %v", len(want), parts)
	}
	for i := range want {
		if parts[i] != want[i] {
			t.Errorf("partition %d: expected %+v, got %+v", i, want[i], parts[i])
		}
	}

	if got := SplitRows(2, 5); len(got) != 2 || got[1].FirstRow != 2 || got[1].MaxRows != 1 {
		t.Errorf("expected one row per partition when rows are scarce, got %v", got)
	}
	if got := SplitRows(0, 4); got != nil {
		t.Errorf("expected no partitions for an empty datastore, got %v", got)
	}
}

func eventsDatastore(n int) *data.MemoryDatastore {
	ds := data.NewMemoryDatastore("events", "when", "who")
	start := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		who := interface{}("someone")
		if i%4 == 0 {
			who = nil
		}
		ds.Add(start.Add(time.Duration(i)*29*time.Hour), who)
	}
	return ds
}

type eventsJob struct {
	aj           *job.AnalysisJob
	count        job.ComponentJob
	weekdays     job.ComponentJob
	completeness job.ComponentJob
}

func buildEventsJob(t *testing.T, reg *component.Registry, ds data.Datastore) eventsJob {
	t.Helper()
	b := job.NewBuilder(reg).WithName("events").WithDatastore(ds)
	when := b.AddSourceColumn("when", data.TypeDate)
	who := b.AddSourceColumn("who", data.TypeString)
	count := b.AddAnalyzer("count", "Row count").WithInputs(when)
	weekdays := b.AddAnalyzer("weekdays", "Weekday distribution").WithInputs(when)
	completeness := b.AddAnalyzer("completeness", "Completeness analyzer").WithInputs(who)
	aj, err := b.Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	return eventsJob{aj: aj, count: count.Job(), weekdays: weekdays.Job(), completeness: completeness.Job()}
}

func newRunner(t *testing.T) *runner.Runner {
	t.Helper()
	r, err := runner.NewRunner(runner.DefaultOptions().WithWorkers(2))
	if err != nil {
		t.Fatalf("new runner: %v", err)
	}
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func TestDistributedRunMatchesLocalRun(t *testing.T) {
	r := newRunner(t)
	ej := buildEventsJob(t, all.NewRegistry(), eventsDatastore(50))

	local, err := r.RunAndAwait(context.Background(), ej.aj)
	if err != nil {
		t.Fatalf("local run: %v", err)
	}

	dr, err := NewDistributedRunner(r, DefaultOptions().WithPartitions(4))
	if err != nil {
		t.Fatalf("new distributed runner: %v", err)
	}
	out, err := dr.Run(context.Background(), ej.aj)
	if err != nil {
		t.Fatalf("distributed run: %v", err)
	}
	if out.Status != result.StatusSuccess {
		t.Fatalf("expected success, got %s: %v", out.Status, out.Errors)
	}

	if got, _ := out.Result("count"); got.(*result.NumberResult).Value != 50 {
		t.Errorf("expected 50 rows, got %v", got)
	}

	want, _ := local.Result(ej.weekdays)
	got, _ := out.Result("weekdays")
	if !want.(*result.CrosstabResult).Crosstab.Equal(got.(*result.CrosstabResult).Crosstab) {
		t.Errorf("weekday crosstabs differ:\nlocal %v\ndistributed %v", want, got)
	}

	wantRows, _ := local.Result(ej.completeness)
	gotRows, _ := out.Result("completeness")
	if w, g := wantRows.(*result.AnnotatedRowsResult).RowCount(), gotRows.(*result.AnnotatedRowsResult).RowCount(); w != g || g != 13 {
		t.Errorf("expected 13 incomplete rows in both runs, got local %d distributed %d", w, g)
	}
}

func TestDistributedRunRejectsMaxRows(t *testing.T) {
	b := job.NewBuilder(all.NewRegistry()).WithName("limited").WithDatastore(eventsDatastore(3))
	when := b.AddSourceColumn("when", data.TypeDate)
	limit := b.AddFilter("limit", "Max rows").WithInputs(when)
	b.AddAnalyzer("count", "Row count").WithInputs(when).WithRequirement(job.Requires(limit.Outcome("VALID")))
	aj, err := b.Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	err = CheckDistributable(aj)
	if !errors.Is(err, dcerrors.ErrNotDistributable) {
		t.Fatalf("expected ErrNotDistributable, got %v", err)
	}

	dr, _ := NewDistributedRunner(newRunner(t), DefaultOptions())
	if _, err := dr.Run(context.Background(), aj); !errors.Is(err, dcerrors.ErrNotDistributable) {
		t.Fatalf("expected distributed run to be refused, got %v", err)
	}
}

type countOnly struct{ n float64 }

func (c *countOnly) Run(data.InputRow, int) error { c.n++; return nil }

func (c *countOnly) Result() (result.AnalyzerResult, error) {
	return &result.NumberResult{Value: c.n}, nil
}

func TestAnalyzerWithoutReducerIsNotDistributable(t *testing.T) {
	reg := all.NewRegistry().MustRegister(&component.Descriptor{
		Name:      "Unreducible",
		Kind:      component.KindAnalyzer,
		MinInputs: 1,
		Create:    func(component.Config) (component.Component, error) { return &countOnly{}, nil },
	})
	b := job.NewBuilder(reg).WithName("unreducible").WithDatastore(eventsDatastore(3))
	when := b.AddSourceColumn("when", data.TypeDate)
	b.AddAnalyzer("target", "Unreducible").WithInputs(when)
	aj, err := b.Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if err := CheckDistributable(aj); !errors.Is(err, dcerrors.ErrNotDistributable) {
		t.Fatalf("expected ErrNotDistributable, got %v", err)
	}
}

func TestPublishedPartitionsAreCollected(t *testing.T) {
	js := newMockJS()
	r := newRunner(t)
	ej := buildEventsJob(t, all.NewRegistry(), eventsDatastore(20))

	pub, err := NewJetStreamPublisher(js, DefaultPublisherConfig())
	if err != nil {
		t.Fatalf("new publisher: %v", err)
	}
	collector := NewCollector(ej.aj, "", nil, nil)
	if _, err := collector.Subscribe(js, DefaultPublisherConfig().Subject+".>"); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	dr, _ := NewDistributedRunner(r, DefaultOptions().WithPartitions(3).WithPublisher(pub))
	out, err := dr.Run(context.Background(), ej.aj)
	if err != nil {
		t.Fatalf("distributed run: %v", err)
	}

	if _, ok := js.streams["DATACLEANER_PARTIALS"]; !ok {
		t.Errorf("expected the partition stream to be created")
	}
	msgs := js.messages()
	if len(msgs) != 3 {
		t.Fatalf("expected 3 published partitions, got %d", len(msgs))
	}
	if msgs[0].Subject != pub.Subject(out.RunID) {
		t.Errorf("expected subject %s, got %s", pub.Subject(out.RunID), msgs[0].Subject)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	collected, err := collector.Await(ctx)
	if err != nil {
		t.Fatalf("await collector: %v", err)
	}
	if collected.RunID != out.RunID || collected.Status != result.StatusSuccess {
		t.Errorf("expected successful run %s, got %s %s %v", out.RunID, collected.RunID, collected.Status, collected.Errors)
	}
	if got, _ := collected.Result("count"); got.(*result.NumberResult).Value != 20 {
		t.Errorf("expected collected count 20, got %v", got)
	}
	want, _ := out.Result("weekdays")
	got, _ := collected.Result("weekdays")
	if !want.(*result.CrosstabResult).Crosstab.Equal(got.(*result.CrosstabResult).Crosstab) {
		t.Errorf("collected weekdays differ from the distributed run")
	}

	// redelivery does not count twice
	if err := collector.Add(msgs[0].Data); err != nil {
		t.Fatalf("redelivered add: %v", err)
	}
	if again, _ := collector.Result(); again.Results["count"].(*result.NumberResult).Value != 20 {
		t.Errorf("expected redelivered partition to be ignored")
	}
}

func TestCollectorRejectsForeignRuns(t *testing.T) {
	codec := result.NewCodec()
	ej := buildEventsJob(t, all.NewRegistry(), eventsDatastore(1))
	c := NewCollector(ej.aj, "run-a", codec, nil)

	raw, err := EncodePartition(codec, &PartitionResult{
		RunID: "run-b", JobName: "events", Partition: Partition{Index: 0, FirstRow: 1, MaxRows: 1}, Partitions: 1,
		Result: &result.AnalysisResult{RunID: "run-b", Status: result.StatusSuccess},
	})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if err := c.Add(raw); err == nil {
		t.Fatalf("expected a partition of another run to be rejected")
	}

	out, err := c.Result()
	if err != nil {
		t.Fatalf("result: %v", err)
	}
	if out.Status != result.StatusFailed {
		t.Errorf("expected an empty collection to be failed, got %s", out.Status)
	}
}

func TestPublisherRetries(t *testing.T) {
	js := newMockJS()
	js.failures = 2
	cfg := DefaultPublisherConfig()
	cfg.RetryDelay = time.Millisecond
	pub, _ := NewJetStreamPublisher(js, cfg)

	pr := &PartitionResult{
		RunID: "run", JobName: "events", Partition: Partition{Index: 1}, Partitions: 2,
		Result: &result.AnalysisResult{
			Status:  result.StatusSuccess,
			Results: map[string]result.AnalyzerResult{"count": &result.NumberResult{Value: 3}},
		},
	}
	if err := pub.PublishPartial(context.Background(), pr); err != nil {
		t.Fatalf("expected publish to succeed after retries, got %v", err)
	}
	if js.attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", js.attempts)
	}

	js.failures = 10
	if err := pub.PublishPartial(context.Background(), pr); err == nil {
		t.Fatalf("expected publish to fail once retries are exhausted")
	}
	if js.attempts != 3+cfg.MaxRetries+1 {
		t.Errorf("expected %d attempts in total, got %d", 3+cfg.MaxRetries+1, js.attempts)
	}

	decoded, err := DecodePartition(result.NewCodec(), js.messages()[0].Data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Partition.Index != 1 || decoded.Result.Results["count"].(*result.NumberResult).Value != 3 {
		t.Errorf("unexpected decoded partition %+v", decoded)
	}
}

func TestPublisherBreakerFailsFast(t *testing.T) {
	js := newMockJS()
	cfg := DefaultPublisherConfig()
	cfg.MaxRetries = 0
	cfg.BreakerThreshold = 2
	cfg.BreakerCooldown = time.Hour
	pub, _ := NewJetStreamPublisher(js, cfg)

	pr := &PartitionResult{
		RunID: "run", JobName: "events", Partition: Partition{Index: 0}, Partitions: 1,
		Result: &result.AnalysisResult{Status: result.StatusSuccess},
	}
	js.failures = 100
	for i := 0; i < 2; i++ {
		if err := pub.PublishPartial(context.Background(), pr); err == nil {
			t.Fatalf("expected publish %d to fail", i)
		}
	}
	attempts := js.attempts

	err := pub.PublishPartial(context.Background(), pr)
	if !errors.Is(err, concurrency.ErrBreakerOpen) {
		t.Fatalf("expected ErrBreakerOpen, got %v", err)
	}
	if js.attempts != attempts {
		t.Errorf("expected no publish attempt while the breaker is open")
	}
}

func TestLargePartitionsAreOffloaded(t *testing.T) {
	js := newMockJS()
	blob := storage.NewMemoryBlobStore("partials")
	// every message exceeds one byte, so all partitions are offloaded
	offloader := NewOffloader(blob, 1)

	cfg := DefaultPublisherConfig()
	cfg.Offloader = offloader
	pub, err := NewJetStreamPublisher(js, cfg)
	if err != nil {
		t.Fatalf("new publisher: %v", err)
	}
	ej := buildEventsJob(t, all.NewRegistry(), eventsDatastore(12))
	collector := NewCollector(ej.aj, "", nil, nil).WithOffloader(offloader)
	if _, err := collector.Subscribe(js, cfg.Subject+".>"); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	dr, _ := NewDistributedRunner(newRunner(t), DefaultOptions().WithPartitions(2).WithPublisher(pub))
	out, err := dr.Run(context.Background(), ej.aj)
	if err != nil {
		t.Fatalf("distributed run: %v", err)
	}

	if got := len(blob.Paths()); got != 2 {
		t.Fatalf("expected 2 offloaded partitions, got %d", got)
	}
	if stored, _ := blob.Stat(blob.Paths()[0]); stored.ContentType != "application/msgpack" {
		t.Errorf("unexpected content type %q", stored.ContentType)
	}
	if _, err := DecodePartition(result.NewCodec(), js.messages()[0].Data); err == nil {
		t.Errorf("expected a reference message to need resolving")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	collected, err := collector.Await(ctx)
	if err != nil {
		t.Fatalf("await collector: %v", err)
	}
	if collected.RunID != out.RunID {
		t.Errorf("expected run %s, got %s", out.RunID, collected.RunID)
	}
	if got, _ := collected.Result("count"); got.(*result.NumberResult).Value != 12 {
		t.Errorf("expected collected count 12, got %v", got)
	}

	// without a blob store the reference cannot be resolved
	if err := NewCollector(ej.aj, "", nil, nil).Add(js.messages()[0].Data); err == nil {
		t.Errorf("expected an error resolving an offloaded partition without blob store")
	}
}

func TestSmallPartitionsStayInline(t *testing.T) {
	blob := storage.NewMemoryBlobStore("partials")
	pr := &PartitionResult{
		RunID:      "run-1",
		JobName:    "events",
		Partition:  Partition{Index: 0, FirstRow: 1, MaxRows: 5},
		Partitions: 1,
		Result: &result.AnalysisResult{
			RunID:   "run-1",
			JobName: "events",
			Status:  result.StatusSuccess,
			Results: map[string]result.AnalyzerResult{"count": &result.NumberResult{Value: 5}},
		},
	}
	payload, offloaded, err := NewOffloader(blob, 0).Prepare(context.Background(), result.NewCodec(), pr)
	if err != nil {
		t.Fatalf("prepare: %v", err)
	}
	if offloaded || len(blob.Paths()) != 0 {
		t.Errorf("expected the partition to stay inline")
	}
	back, err := DecodePartition(result.NewCodec(), payload)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if back.Result.Results["count"].(*result.NumberResult).Value != 5 {
		t.Errorf("unexpected decoded partition %+v", back.Result)
	}
	if PartitionPath("events", "run-1", 3) != "partials/events/run-1/3.msgpack" {
		t.Errorf("unexpected partition path %s", PartitionPath("events", "run-1", 3))
	}
}
