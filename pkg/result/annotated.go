package result

import (
	"fmt"
	"reflect"
	"sort"
	"strings"

	dcerrors "github.com/wehubfusion/datacleaner/pkg/errors"
)

// AnnotatedRow is a row sample kept by an analyzer, e.g. an incomplete record
type AnnotatedRow struct {
	ID     int64         `json:"id"`
	Values []interface{} `json:"values"`
	// Count is the multiplicity of the row
	Count int `json:"count"`
}

// AnnotatedRowsResult lists annotated rows. HighlightedColumns names the
// columns that caused the annotation and must be identical across partials
// of one job.
type AnnotatedRowsResult struct {
	Columns            []string       `json:"columns"`
	HighlightedColumns []string       `json:"highlightedColumns"`
	Rows               []AnnotatedRow `json:"rows"`
}

const KindAnnotatedRows = "annotated-rows"

func (r *AnnotatedRowsResult) Kind() string { return KindAnnotatedRows }

// RowCount returns the annotated row count including multiplicities
func (r *AnnotatedRowsResult) RowCount() int {
	n := 0
	for _, row := range r.Rows {
		n += row.Count
	}
	return n
}

// AnnotatedRowsReducer unions the rows of AnnotatedRowsResult partials.
// A row ID seen in more than one partial must carry the same values and
// count everywhere, otherwise the partials are incompatible.
type AnnotatedRowsReducer struct{}

func (AnnotatedRowsReducer) Reduce(partials []AnalyzerResult) (AnalyzerResult, error) {
	if len(partials) == 0 {
		return nil, nil
	}
	typed, err := castAll[*AnnotatedRowsResult](KindAnnotatedRows, partials)
	if err != nil {
		return nil, err
	}

	first := typed[0]
	out := &AnnotatedRowsResult{
		Columns:            append([]string(nil), first.Columns...),
		HighlightedColumns: append([]string(nil), first.HighlightedColumns...),
	}
	seen := make(map[int64]AnnotatedRow)
	for _, r := range typed {
		if strings.Join(r.HighlightedColumns, ",") != strings.Join(out.HighlightedColumns, ",") ||
			strings.Join(r.Columns, ",") != strings.Join(out.Columns, ",") {
			return nil, incompatible(KindAnnotatedRows, r)
		}
		for _, row := range r.Rows {
			if prev, dup := seen[row.ID]; dup {
				if prev.Count != row.Count || !reflect.DeepEqual(prev.Values, row.Values) {
					return nil, dcerrors.NewError(dcerrors.CodeReduction,
						fmt.Sprintf("annotated row %d differs between partials", row.ID),
						dcerrors.ErrIncompatibleResults)
				}
				continue
			}
			seen[row.ID] = row
			out.Rows = append(out.Rows, AnnotatedRow{ID: row.ID, Values: append([]interface{}(nil), row.Values...), Count: row.Count})
		}
	}
	sort.Slice(out.Rows, func(i, j int) bool { return out.Rows[i].ID < out.Rows[j].ID })
	return out, nil
}
