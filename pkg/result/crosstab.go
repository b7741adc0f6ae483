package result

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

const keySeparator = "\x1f"

// Dimension is one axis of a crosstab. Categories keep insertion order.
type Dimension struct {
	name       string
	categories []string
	index      map[string]struct{}
}

func newDimension(name string) *Dimension {
	return &Dimension{name: name, index: make(map[string]struct{})}
}

// Name returns the dimension name
func (d *Dimension) Name() string { return d.name }

// Categories returns the categories in insertion order
func (d *Dimension) Categories() []string {
	return append([]string(nil), d.categories...)
}

// Contains reports whether category exists on the axis
func (d *Dimension) Contains(category string) bool {
	_, ok := d.index[category]
	return ok
}

// AddCategory appends category if missing
func (d *Dimension) AddCategory(category string) {
	if _, ok := d.index[category]; ok {
		return
	}
	d.index[category] = struct{}{}
	d.categories = append(d.categories, category)
}

// Crosstab is an n-dimensional table of numbers. It is not safe for
// concurrent mutation; analyzers guard it with their own lock.
type Crosstab struct {
	dims  []*Dimension
	cells map[string]float64
}

// NewCrosstab creates an empty crosstab with the named dimensions
func NewCrosstab(dimensions ...string) *Crosstab {
	c := &Crosstab{cells: make(map[string]float64)}
	for _, d := range dimensions {
		c.dims = append(c.dims, newDimension(d))
	}
	return c
}

// DimensionNames returns the dimension names in order
func (c *Crosstab) DimensionNames() []string {
	names := make([]string, len(c.dims))
	for i, d := range c.dims {
		names[i] = d.name
	}
	return names
}

// Dimension returns the named dimension or nil
func (c *Crosstab) Dimension(name string) *Dimension {
	for _, d := range c.dims {
		if d.name == name {
			return d
		}
	}
	return nil
}

// Where starts a navigator at the given coordinate
func (c *Crosstab) Where(dimension, category string) *Navigator {
	return (&Navigator{crosstab: c, coords: map[string]string{}}).Where(dimension, category)
}

func (c *Crosstab) key(coords map[string]string) (string, []string, error) {
	if len(coords) != len(c.dims) {
		return "", nil, fmt.Errorf("crosstab has %d dimensions, navigator names %d", len(c.dims), len(coords))
	}
	parts := make([]string, len(c.dims))
	for i, d := range c.dims {
		cat, ok := coords[d.name]
		if !ok {
			return "", nil, fmt.Errorf("no category given for dimension %q", d.name)
		}
		parts[i] = cat
	}
	return strings.Join(parts, keySeparator), parts, nil
}

func (c *Crosstab) set(parts []string, key string, value float64) {
	for i, d := range c.dims {
		d.AddCategory(parts[i])
	}
	c.cells[key] = value
}

// Value returns the cell at the ordered categories, one per dimension
func (c *Crosstab) Value(categories ...string) (float64, bool) {
	v, ok := c.cells[strings.Join(categories, keySeparator)]
	return v, ok
}

// Len returns the number of populated cells
func (c *Crosstab) Len() int { return len(c.cells) }

// Cell is one populated crosstab cell
type Cell struct {
	Categories []string `json:"coords"`
	Value      float64  `json:"value"`
}

// Cells returns the populated cells ordered by the dimension categories
func (c *Crosstab) Cells() []Cell {
	cells := make([]Cell, 0, len(c.cells))
	for k, v := range c.cells {
		cells = append(cells, Cell{Categories: strings.Split(k, keySeparator), Value: v})
	}
	positions := make([]map[string]int, len(c.dims))
	for i, d := range c.dims {
		positions[i] = make(map[string]int, len(d.categories))
		for j, cat := range d.categories {
			positions[i][cat] = j
		}
	}
	sort.Slice(cells, func(a, b int) bool {
		for i := range c.dims {
			pa, pb := positions[i][cells[a].Categories[i]], positions[i][cells[b].Categories[i]]
			if pa != pb {
				return pa < pb
			}
		}
		return false
	})
	return cells
}

// Clone returns a deep copy
func (c *Crosstab) Clone() *Crosstab {
	out := &Crosstab{cells: make(map[string]float64, len(c.cells))}
	for _, d := range c.dims {
		nd := newDimension(d.name)
		for _, cat := range d.categories {
			nd.AddCategory(cat)
		}
		out.dims = append(out.dims, nd)
	}
	for k, v := range c.cells {
		out.cells[k] = v
	}
	return out
}

// Equal compares dimensions, category sets and cells. Category order is ignored.
func (c *Crosstab) Equal(other *Crosstab) bool {
	if c == nil || other == nil {
		return c == other
	}
	if len(c.dims) != len(other.dims) || len(c.cells) != len(other.cells) {
		return false
	}
	for i, d := range c.dims {
		od := other.dims[i]
		if d.name != od.name || len(d.categories) != len(od.categories) {
			return false
		}
		for _, cat := range d.categories {
			if !od.Contains(cat) {
				return false
			}
		}
	}
	for k, v := range c.cells {
		if ov, ok := other.cells[k]; !ok || ov != v {
			return false
		}
	}
	return true
}

// String renders the crosstab for logs
func (c *Crosstab) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Crosstab%v", c.DimensionNames())
	for _, cell := range c.Cells() {
		fmt.Fprintf(&b, "\n  %s = %g", strings.Join(cell.Categories, " | "), cell.Value)
	}
	return b.String()
}

type crosstabJSON struct {
	Dimensions []dimensionJSON `json:"dimensions"`
	Cells      []Cell          `json:"cells"`
}

type dimensionJSON struct {
	Name       string   `json:"name"`
	Categories []string `json:"categories"`
}

func (c *Crosstab) MarshalJSON() ([]byte, error) {
	out := crosstabJSON{Cells: c.Cells()}
	for _, d := range c.dims {
		out.Dimensions = append(out.Dimensions, dimensionJSON{Name: d.name, Categories: d.Categories()})
	}
	return json.Marshal(out)
}

func (c *Crosstab) UnmarshalJSON(raw []byte) error {
	var in crosstabJSON
	if err := json.Unmarshal(raw, &in); err != nil {
		return err
	}
	c.dims = nil
	c.cells = make(map[string]float64, len(in.Cells))
	for _, d := range in.Dimensions {
		nd := newDimension(d.Name)
		for _, cat := range d.Categories {
			nd.AddCategory(cat)
		}
		c.dims = append(c.dims, nd)
	}
	for _, cell := range in.Cells {
		if len(cell.Categories) != len(c.dims) {
			return fmt.Errorf("cell %v does not match %d dimensions", cell.Categories, len(c.dims))
		}
		c.set(cell.Categories, strings.Join(cell.Categories, keySeparator), cell.Value)
	}
	return nil
}

// Navigator addresses one cell of a crosstab
type Navigator struct {
	crosstab *Crosstab
	coords   map[string]string
}

// Where returns a navigator with one more coordinate
func (n *Navigator) Where(dimension, category string) *Navigator {
	coords := make(map[string]string, len(n.coords)+1)
	for k, v := range n.coords {
		coords[k] = v
	}
	coords[dimension] = category
	return &Navigator{crosstab: n.crosstab, coords: coords}
}

// Get returns the cell value
func (n *Navigator) Get() (float64, bool) {
	key, _, err := n.crosstab.key(n.coords)
	if err != nil {
		return 0, false
	}
	v, ok := n.crosstab.cells[key]
	return v, ok
}

// Put sets the cell value, adding missing categories to the dimensions
func (n *Navigator) Put(value float64) error {
	key, parts, err := n.crosstab.key(n.coords)
	if err != nil {
		return err
	}
	n.crosstab.set(parts, key, value)
	return nil
}

// Add increments the cell value
func (n *Navigator) Add(delta float64) error {
	key, parts, err := n.crosstab.key(n.coords)
	if err != nil {
		return err
	}
	n.crosstab.set(parts, key, n.crosstab.cells[key]+delta)
	return nil
}

// AttachCategories ensures the categories of the navigator exist without
// populating a cell
func (n *Navigator) AttachCategories() error {
	_, parts, err := n.crosstab.key(n.coords)
	if err != nil {
		return err
	}
	for i, d := range n.crosstab.dims {
		d.AddCategory(parts[i])
	}
	return nil
}
