package transformers

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cast"

	"github.com/wehubfusion/datacleaner/pkg/component"
	"github.com/wehubfusion/datacleaner/pkg/data"
)

// Property names of the date conversion
const (
	PropertyDateFormats = "date formats"
	PropertyTimezone    = "timezone"
)

// Named date formats. Any other format is used as a Go time layout.
const (
	FormatRFC3339  = "RFC3339"
	FormatRFC1123  = "RFC1123"
	FormatRFC822   = "RFC822"
	FormatANSIC    = "ANSIC"
	FormatDateTime = "DateTime"
	FormatDateOnly = "DateOnly"
	FormatDMY      = "DD/MM/YYYY"
	FormatMDY      = "MM/DD/YYYY"
)

var formatLayouts = map[string]string{
	FormatRFC3339:  time.RFC3339,
	FormatRFC1123:  time.RFC1123,
	FormatRFC822:   time.RFC822,
	FormatANSIC:    time.ANSIC,
	FormatDateTime: time.DateTime,
	FormatDateOnly: time.DateOnly,
	FormatDMY:      "02/01/2006",
	FormatMDY:      "01/02/2006",
}

// ConvertToDateTransformer converts values into dates. Strings are parsed
// with the configured formats in order, numbers are milliseconds since the
// epoch. Values that cannot be converted become null.
type ConvertToDateTransformer struct {
	inputs   []*data.Column
	formats  []string
	layouts  []string
	timezone string
	location *time.Location
}

func ConvertToDateDescriptor() *component.Descriptor {
	return &component.Descriptor{
		Name:        "Convert to date",
		Kind:        component.KindTransformer,
		Description: "Converts strings and numbers into dates.",
		MinInputs:   1,
		Properties: []component.PropertySpec{
			{Name: PropertyDateFormats, Type: component.PropertyStringList,
				Default: []string{FormatDateOnly, FormatDateTime, FormatRFC3339}},
			{Name: PropertyTimezone, Type: component.PropertyString, Default: "UTC"},
		},
		Create: func(cfg component.Config) (component.Component, error) {
			t := &ConvertToDateTransformer{
				inputs:   cfg.Inputs,
				formats:  cfg.Properties.StringList(PropertyDateFormats),
				timezone: cfg.Properties.String(PropertyTimezone),
				location: time.UTC,
			}
			for _, f := range t.formats {
				if layout, ok := formatLayouts[f]; ok {
					t.layouts = append(t.layouts, layout)
				} else {
					t.layouts = append(t.layouts, f)
				}
			}
			return t, nil
		},
	}
}

func (t *ConvertToDateTransformer) Validate() error {
	if len(t.layouts) == 0 {
		return fmt.Errorf("no date formats configured")
	}
	if t.timezone != "" {
		loc, err := time.LoadLocation(t.timezone)
		if err != nil {
			return fmt.Errorf("invalid timezone %q: %w", t.timezone, err)
		}
		t.location = loc
	}
	return nil
}

func (t *ConvertToDateTransformer) OutputColumns() []component.OutputColumn {
	out := make([]component.OutputColumn, len(t.inputs))
	for i, col := range t.inputs {
		out[i] = component.OutputColumn{Name: col.Name() + " (as date)", DataType: data.TypeDate}
	}
	return out
}

func (t *ConvertToDateTransformer) Transform(row data.InputRow) ([]interface{}, error) {
	out := make([]interface{}, len(t.inputs))
	for i, col := range t.inputs {
		if d, ok := t.convert(row.Value(col)); ok {
			out[i] = d
		}
	}
	return out, nil
}

func (t *ConvertToDateTransformer) convert(v interface{}) (time.Time, bool) {
	switch value := v.(type) {
	case nil:
		return time.Time{}, false
	case time.Time:
		return value, true
	case string:
		return t.parse(strings.TrimSpace(value))
	case bool:
		return time.Time{}, false
	}
	millis, err := cast.ToInt64E(v)
	if err != nil {
		return time.Time{}, false
	}
	return time.UnixMilli(millis).In(t.location), true
}

func (t *ConvertToDateTransformer) parse(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for i, layout := range t.layouts {
		if parsed, err := time.ParseInLocation(layout, normalizeInputDate(s, t.formats[i]), t.location); err == nil {
			return parsed, true
		}
	}
	return time.Time{}, false
}

// normalizeInputDate completes partial inputs of the named formats
func normalizeInputDate(s, format string) string {
	switch format {
	case FormatDateTime:
		if len(s) == 16 && strings.Count(s, ":") == 1 {
			return s + ":00"
		}
	case FormatDateOnly:
		if len(s) == 8 && !strings.ContainsAny(s, "-/") {
			return s[:4] + "-" + s[4:6] + "-" + s[6:8]
		}
	}
	return s
}
