package data

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
)

// CSVDatastore reads records from a delimited text file with a header line
type CSVDatastore struct {
	name      string
	path      string
	separator rune
}

// NewCSVDatastore creates a datastore over the file at path. A zero
// separator means comma.
func NewCSVDatastore(name, path string, separator rune) *CSVDatastore {
	if separator == 0 {
		separator = ','
	}
	return &CSVDatastore{name: name, path: path, separator: separator}
}

func (c *CSVDatastore) Name() string { return c.name }

func (c *CSVDatastore) reader() (*os.File, *csv.Reader, []string, error) {
	f, err := os.Open(c.path)
	if err != nil {
		return nil, nil, nil, err
	}
	r := csv.NewReader(f)
	r.Comma = c.separator
	r.FieldsPerRecord = -1
	r.ReuseRecord = false
	header, err := r.Read()
	if err != nil {
		f.Close()
		return nil, nil, nil, fmt.Errorf("read header of %s: %w", c.path, err)
	}
	return f, r, header, nil
}

// Fields returns the header names of the file
func (c *CSVDatastore) Fields() ([]string, error) {
	f, _, header, err := c.reader()
	if err != nil {
		return nil, err
	}
	f.Close()
	return header, nil
}

func (c *CSVDatastore) CountRows(ctx context.Context) (int64, error) {
	f, r, _, err := c.reader()
	if err != nil {
		return 0, err
	}
	defer f.Close()

	var n int64
	for {
		if _, err := r.Read(); err == io.EOF {
			return n, nil
		} else if err != nil {
			return n, err
		}
		n++
	}
}

func (c *CSVDatastore) Open(ctx context.Context, q Query) (Cursor, error) {
	f, r, header, err := c.reader()
	if err != nil {
		return nil, err
	}
	index := make(map[string]int, len(header))
	for i, h := range header {
		index[h] = i
	}
	positions, err := resolveFields(index, c.name, q.Columns)
	if err != nil {
		f.Close()
		return nil, err
	}

	offset, limit := q.Window()
	for i := int64(0); i < offset; i++ {
		if _, err := r.Read(); err != nil {
			f.Close()
			if err == io.EOF {
				return emptyCursor{}, nil
			}
			return nil, err
		}
	}
	return &csvCursor{file: f, reader: r, positions: positions, remaining: limit}, nil
}

type csvCursor struct {
	file      *os.File
	reader    *csv.Reader
	positions []int
	remaining int64
	read      int64
}

func (c *csvCursor) Next(ctx context.Context) ([]interface{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if c.remaining > 0 && c.read >= c.remaining {
		return nil, io.EOF
	}
	record, err := c.reader.Read()
	if err != nil {
		return nil, err
	}
	c.read++
	values := make([]interface{}, len(c.positions))
	for i, p := range c.positions {
		if p < len(record) {
			values[i] = record[p]
		}
	}
	return values, nil
}

func (c *csvCursor) Close() error {
	return c.file.Close()
}
