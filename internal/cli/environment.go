package cli

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"gopkg.in/yaml.v3"

	"github.com/wehubfusion/datacleaner/pkg/data"
	dcerrors "github.com/wehubfusion/datacleaner/pkg/errors"
	"github.com/wehubfusion/datacleaner/pkg/refdata"
)

// Datastore types of an environment file
const (
	DatastoreCSV      = "csv"
	DatastoreSQLite   = "sqlite"
	DatastorePostgres = "postgres"
)

// Environment is the YAML file declaring the datastores and reference data
// jobs refer to by name
//
//	datastores:
//	  - {name: customers, type: csv, path: customers.csv}
//	  - {name: crm, type: postgres, dsn: "host=db dbname=crm", table: customers}
//	reference-data:
//	  dictionaries:
//	    - {name: greetings, values: [hello, hi]}
//	  string-patterns:
//	    - {name: digits, regex: '\d+', match-entire: true}
//	    - {name: lower word, pattern: aaaa}
type Environment struct {
	Datastores    []DatastoreDefinition `yaml:"datastores"`
	ReferenceData ReferenceData         `yaml:"reference-data"`

	// dir resolves relative CSV paths
	dir string
	mu  sync.Mutex
	dbs map[string]*sql.DB
}

type DatastoreDefinition struct {
	Name      string `yaml:"name"`
	Type      string `yaml:"type"`
	Path      string `yaml:"path"`
	Separator string `yaml:"separator"`
	DSN       string `yaml:"dsn"`
	Table     string `yaml:"table"`
}

type ReferenceData struct {
	Dictionaries    []DictionaryDefinition     `yaml:"dictionaries"`
	SynonymCatalogs []SynonymCatalogDefinition `yaml:"synonym-catalogs"`
	StringPatterns  []StringPatternDefinition  `yaml:"string-patterns"`
}

type DictionaryDefinition struct {
	Name          string   `yaml:"name"`
	CaseSensitive bool     `yaml:"case-sensitive"`
	Values        []string `yaml:"values"`
}

type SynonymCatalogDefinition struct {
	Name          string              `yaml:"name"`
	CaseSensitive bool                `yaml:"case-sensitive"`
	Synonyms      map[string][]string `yaml:"synonyms"`
}

// StringPatternDefinition holds either a regex or a simple token pattern
type StringPatternDefinition struct {
	Name        string `yaml:"name"`
	Regex       string `yaml:"regex"`
	MatchEntire bool   `yaml:"match-entire"`
	Pattern     string `yaml:"pattern"`
}

// LoadEnvironment reads an environment file. An empty path is an empty
// environment.
func LoadEnvironment(path string) (*Environment, error) {
	env := &Environment{dbs: make(map[string]*sql.DB)}
	if path == "" {
		return env, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, dcerrors.NewError(dcerrors.CodeConfiguration, "cannot open environment file", err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(env); err != nil {
		return nil, dcerrors.NewError(dcerrors.CodeConfiguration, "invalid environment file", err)
	}
	env.dir = filepath.Dir(path)
	return env, env.validate()
}

func (e *Environment) validate() error {
	seen := make(map[string]bool)
	for _, d := range e.Datastores {
		if d.Name == "" {
			return dcerrors.Configuration("datastore without name")
		}
		if seen[d.Name] {
			return dcerrors.Configuration("duplicate datastore %q", d.Name)
		}
		seen[d.Name] = true

		switch strings.ToLower(d.Type) {
		case DatastoreCSV:
			if d.Path == "" {
				return dcerrors.Configuration("datastore %q: path is required", d.Name)
			}
			if len([]rune(d.Separator)) > 1 {
				return dcerrors.Configuration("datastore %q: separator must be a single character", d.Name)
			}
		case DatastoreSQLite, DatastorePostgres:
			if d.DSN == "" || d.Table == "" {
				return dcerrors.Configuration("datastore %q: dsn and table are required", d.Name)
			}
		default:
			return dcerrors.Configuration("datastore %q: unknown type %q", d.Name, d.Type)
		}
	}
	for _, p := range e.ReferenceData.StringPatterns {
		if (p.Regex == "") == (p.Pattern == "") {
			return dcerrors.Configuration("string pattern %q needs exactly one of regex and pattern", p.Name)
		}
	}
	return nil
}

// Datastore resolves a datastore by name. SQL connections are opened on
// first use and kept until Close.
func (e *Environment) Datastore(name string) (data.Datastore, error) {
	for _, d := range e.Datastores {
		if d.Name != name {
			continue
		}
		switch strings.ToLower(d.Type) {
		case DatastoreCSV:
			path := d.Path
			if !filepath.IsAbs(path) {
				path = filepath.Join(e.dir, path)
			}
			var sep rune
			if d.Separator != "" {
				sep = []rune(d.Separator)[0]
			}
			return data.NewCSVDatastore(d.Name, path, sep), nil
		case DatastoreSQLite:
			db, err := e.open(d.Name, "sqlite3", d.DSN)
			if err != nil {
				return nil, err
			}
			return data.NewSQLDatastore(d.Name, db, d.Table, data.DialectSQLite), nil
		case DatastorePostgres:
			db, err := e.open(d.Name, "postgres", d.DSN)
			if err != nil {
				return nil, err
			}
			return data.NewSQLDatastore(d.Name, db, d.Table, data.DialectPostgres), nil
		}
	}
	return nil, dcerrors.Configuration("no such datastore %q", name)
}

func (e *Environment) open(name, driver, dsn string) (*sql.DB, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if db, ok := e.dbs[name]; ok {
		return db, nil
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, dcerrors.Datastore(fmt.Sprintf("cannot open datastore %q", name), err)
	}
	e.dbs[name] = db
	return db, nil
}

// Catalog builds the reference data catalog
func (e *Environment) Catalog() (*refdata.Catalog, error) {
	catalog := refdata.NewCatalog()
	rd := e.ReferenceData
	for _, d := range rd.Dictionaries {
		catalog.AddDictionary(refdata.NewSimpleDictionary(d.Name, d.CaseSensitive, d.Values...))
	}
	for _, s := range rd.SynonymCatalogs {
		catalog.AddSynonymCatalog(refdata.NewSimpleSynonymCatalog(s.Name, s.CaseSensitive, s.Synonyms))
	}
	for _, p := range rd.StringPatterns {
		if p.Pattern != "" {
			catalog.AddStringPattern(refdata.NewSimpleStringPattern(p.Name, p.Pattern))
			continue
		}
		pattern, err := refdata.NewRegexStringPattern(p.Name, p.Regex, p.MatchEntire)
		if err != nil {
			return nil, dcerrors.NewError(dcerrors.CodeConfiguration, fmt.Sprintf("string pattern %q", p.Name), err)
		}
		catalog.AddStringPattern(pattern)
	}
	return catalog, nil
}

// Close closes the SQL connections opened by Datastore
func (e *Environment) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	var errs []error
	for name, db := range e.dbs {
		if err := db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close datastore %q: %w", name, err))
		}
		delete(e.dbs, name)
	}
	return errors.Join(errs...)
}
