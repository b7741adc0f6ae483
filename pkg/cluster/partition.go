// Package cluster runs analysis jobs split into row partitions and merges
// the partial analyzer results. Partitions run through a local runner and
// can additionally be published to NATS JetStream, where a Collector
// reduces them elsewhere.
package cluster

import (
	"fmt"

	"github.com/wehubfusion/datacleaner/pkg/data"
	dcerrors "github.com/wehubfusion/datacleaner/pkg/errors"
	"github.com/wehubfusion/datacleaner/pkg/job"
	"github.com/wehubfusion/datacleaner/pkg/result"
)

// Partition is a contiguous window of rows. FirstRow is 1-based.
type Partition struct {
	Index    int   `json:"index" msgpack:"index"`
	FirstRow int64 `json:"firstRow" msgpack:"firstRow"`
	MaxRows  int64 `json:"maxRows" msgpack:"maxRows"`
}

func (p Partition) String() string {
	return fmt.Sprintf("partition %d [%d, %d]", p.Index, p.FirstRow, p.FirstRow+p.MaxRows-1)
}

// Apply restricts ds to the rows of the partition
func (p Partition) Apply(ds data.Datastore) data.Datastore {
	return data.Slice(ds, p.FirstRow, p.MaxRows)
}

// SplitRows divides total rows into at most n partitions of near equal
// size. The first total%n partitions get one extra row.
func SplitRows(total int64, n int) []Partition {
	if total <= 0 || n <= 0 {
		return nil
	}
	if int64(n) > total {
		n = int(total)
	}
	size := total / int64(n)
	extra := total % int64(n)

	parts := make([]Partition, n)
	first := int64(1)
	for i := range parts {
		rows := size
		if int64(i) < extra {
			rows++
		}
		parts[i] = Partition{Index: i, FirstRow: first, MaxRows: rows}
		first += rows
	}
	return parts
}

// CheckDistributable verifies that every component of the job can run on
// partitions and that every analyzer has a reducer
func CheckDistributable(aj *job.AnalysisJob) error {
	if aj == nil {
		return dcerrors.Configuration("analysis job is nil")
	}
	for _, cj := range aj.ComponentJobs() {
		d := cj.Descriptor()
		if d.NotDistributable {
			return dcerrors.NewError(dcerrors.CodeNotDistributable,
				fmt.Sprintf("component %s (%s) needs to see every row", cj.Name(), d.Name), nil)
		}
		if !d.Distributable() {
			return dcerrors.NewError(dcerrors.CodeNotDistributable,
				fmt.Sprintf("analyzer %s (%s) has no result reducer", cj.Name(), d.Name), nil)
		}
	}
	return nil
}

// ReduceResults merges the per analyzer results of several partition
// snapshots. Analyzers without any partial are left out.
func ReduceResults(aj *job.AnalysisJob, partials []*result.AnalysisResult) (map[string]result.AnalyzerResult, error) {
	out := make(map[string]result.AnalyzerResult, len(aj.Analyzers()))
	for _, a := range aj.Analyzers() {
		var rs []result.AnalyzerResult
		for _, p := range partials {
			if p == nil {
				continue
			}
			if r, ok := p.Result(a.Name()); ok && r != nil {
				rs = append(rs, r)
			}
		}
		if len(rs) == 0 {
			continue
		}
		d := a.Descriptor()
		if d.Reducer == nil {
			return nil, dcerrors.NewError(dcerrors.CodeNotDistributable,
				fmt.Sprintf("analyzer %s has no result reducer", a.Name()), nil)
		}
		reduced, err := d.Reducer().Reduce(rs)
		if err != nil {
			return nil, fmt.Errorf("reduce results of %s: %w", a.Name(), err)
		}
		if reduced != nil {
			out[a.Name()] = reduced
		}
	}
	return out, nil
}
