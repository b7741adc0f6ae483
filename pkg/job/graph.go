package job

import (
	"sort"
	"strings"

	"github.com/wehubfusion/datacleaner/pkg/data"
	dcerrors "github.com/wehubfusion/datacleaner/pkg/errors"
)

// SourceColumnFinder answers lineage questions about a job: which job
// produced a column and which jobs a component transitively depends on.
type SourceColumnFinder struct {
	producers map[*data.Column]*TransformerJob
	sources   map[*data.Column]struct{}
}

// NewSourceColumnFinder indexes the columns of aj
func NewSourceColumnFinder(aj *AnalysisJob) *SourceColumnFinder {
	return newFinder(aj.sourceColumns, aj.transformers)
}

func newFinder(sourceColumns []*data.Column, transformers []*TransformerJob) *SourceColumnFinder {
	f := &SourceColumnFinder{
		producers: make(map[*data.Column]*TransformerJob),
		sources:   make(map[*data.Column]struct{}, len(sourceColumns)),
	}
	for _, c := range sourceColumns {
		f.sources[c] = struct{}{}
	}
	for _, t := range transformers {
		for _, c := range t.outputs {
			f.producers[c] = t
		}
	}
	return f
}

// Producer returns the transformer job that outputs col
func (f *SourceColumnFinder) Producer(col *data.Column) (*TransformerJob, bool) {
	t, ok := f.producers[col]
	return t, ok
}

// IsSourceColumn reports whether col is a physical source column of the job
func (f *SourceColumnFinder) IsSourceColumn(col *data.Column) bool {
	_, ok := f.sources[col]
	return ok
}

// DirectDependencies returns the jobs that must run before cj on each row:
// producers of its input columns and filters named by its requirement.
func (f *SourceColumnFinder) DirectDependencies(cj ComponentJob) []ComponentJob {
	var deps []ComponentJob
	seen := make(map[ComponentJob]struct{})
	add := func(d ComponentJob) {
		if _, ok := seen[d]; ok {
			return
		}
		seen[d] = struct{}{}
		deps = append(deps, d)
	}
	for _, c := range cj.Inputs() {
		if t, ok := f.producers[c]; ok {
			add(t)
		}
	}
	if r := cj.Requirement(); r != nil {
		for _, o := range r.ProcessingDependencies() {
			if o.filter != nil {
				add(o.filter)
			}
		}
	}
	return deps
}

// FindAllSourceJobs returns every job cj transitively depends on
func (f *SourceColumnFinder) FindAllSourceJobs(cj ComponentJob) []ComponentJob {
	var out []ComponentJob
	seen := map[ComponentJob]struct{}{cj: {}}
	queue := f.DirectDependencies(cj)
	for len(queue) > 0 {
		next := queue[0]
		queue = queue[1:]
		if _, ok := seen[next]; ok {
			continue
		}
		seen[next] = struct{}{}
		out = append(out, next)
		queue = append(queue, f.DirectDependencies(next)...)
	}
	return out
}

// OriginatingColumns returns the physical columns the inputs of cj are derived from
func (f *SourceColumnFinder) OriginatingColumns(cj ComponentJob) []*data.Column {
	var out []*data.Column
	seen := make(map[*data.Column]struct{})
	var walk func(cols []*data.Column)
	walk = func(cols []*data.Column) {
		for _, c := range cols {
			if _, ok := seen[c]; ok {
				continue
			}
			seen[c] = struct{}{}
			if c.IsPhysical() {
				out = append(out, c)
				continue
			}
			if t, ok := f.producers[c]; ok {
				walk(t.inputs)
			}
		}
	}
	walk(cj.Inputs())
	return out
}

// InheritedRequirementJobs returns the transitive column sources of cj that
// carry a requirement. A component without a requirement of its own is
// only satisfied when one of these is.
func (f *SourceColumnFinder) InheritedRequirementJobs(cj ComponentJob) []ComponentJob {
	var out []ComponentJob
	for _, src := range f.FindAllSourceJobs(cj) {
		if _, isTransformer := src.(*TransformerJob); isTransformer && src.Requirement() != nil {
			out = append(out, src)
		}
	}
	return out
}

// ProcessOrder sorts component jobs so that every job comes after the jobs
// it depends on. Ties keep the input order. A dependency cycle is a
// configuration error.
func ProcessOrder(jobs []ComponentJob, finder *SourceColumnFinder) ([]ComponentJob, error) {
	position := make(map[ComponentJob]int, len(jobs))
	for i, j := range jobs {
		position[j] = i
	}

	indegree := make(map[ComponentJob]int, len(jobs))
	dependents := make(map[ComponentJob][]ComponentJob, len(jobs))
	for _, j := range jobs {
		for _, d := range finder.DirectDependencies(j) {
			if _, inSet := position[d]; !inSet {
				continue
			}
			indegree[j]++
			dependents[d] = append(dependents[d], j)
		}
	}

	var ready []ComponentJob
	for _, j := range jobs {
		if indegree[j] == 0 {
			ready = append(ready, j)
		}
	}

	ordered := make([]ComponentJob, 0, len(jobs))
	for len(ready) > 0 {
		sort.SliceStable(ready, func(a, b int) bool { return position[ready[a]] < position[ready[b]] })
		next := ready[0]
		ready = ready[1:]
		ordered = append(ordered, next)
		for _, dep := range dependents[next] {
			indegree[dep]--
			if indegree[dep] == 0 {
				ready = append(ready, dep)
			}
		}
	}

	if len(ordered) != len(jobs) {
		var stuck []string
		for _, j := range jobs {
			if indegree[j] > 0 {
				stuck = append(stuck, j.Name())
			}
		}
		return nil, dcerrors.Configuration("dependency cycle between components: %s", strings.Join(stuck, ", "))
	}
	return ordered, nil
}
