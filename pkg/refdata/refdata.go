// Package refdata holds reference data used by matching components:
// dictionaries, synonym catalogs and string patterns.
package refdata

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dlclark/regexp2"
	"golang.org/x/text/cases"
)

// Dictionary is a set of known values
type Dictionary interface {
	Name() string
	Contains(value string) bool
}

// SynonymCatalog maps synonyms to their master term
type SynonymCatalog interface {
	Name() string
	MasterTerm(value string) (string, bool)
}

// StringPattern tests values against a pattern
type StringPattern interface {
	Name() string
	Matches(value string) bool
}

// fold case-folds s. Casers are stateful, so each call gets its own.
func fold(s string) string {
	return cases.Fold().String(s)
}

// SimpleDictionary is an in-memory dictionary
type SimpleDictionary struct {
	name          string
	caseSensitive bool
	values        map[string]struct{}
}

// NewSimpleDictionary creates a dictionary over values. Case-insensitive
// dictionaries compare case-folded values.
func NewSimpleDictionary(name string, caseSensitive bool, values ...string) *SimpleDictionary {
	d := &SimpleDictionary{name: name, caseSensitive: caseSensitive, values: make(map[string]struct{}, len(values))}
	for _, v := range values {
		d.values[d.normalize(v)] = struct{}{}
	}
	return d
}

func (d *SimpleDictionary) normalize(v string) string {
	if d.caseSensitive {
		return v
	}
	return fold(v)
}

func (d *SimpleDictionary) Name() string { return d.name }

func (d *SimpleDictionary) Contains(value string) bool {
	_, ok := d.values[d.normalize(value)]
	return ok
}

// SimpleSynonymCatalog is an in-memory synonym catalog
type SimpleSynonymCatalog struct {
	name          string
	caseSensitive bool
	masters       map[string]string
}

// NewSimpleSynonymCatalog creates a catalog from master term -> synonyms.
// A master term is its own synonym.
func NewSimpleSynonymCatalog(name string, caseSensitive bool, synonyms map[string][]string) *SimpleSynonymCatalog {
	c := &SimpleSynonymCatalog{name: name, caseSensitive: caseSensitive, masters: make(map[string]string)}
	masters := make([]string, 0, len(synonyms))
	for m := range synonyms {
		masters = append(masters, m)
	}
	sort.Strings(masters)
	for _, master := range masters {
		c.masters[c.normalize(master)] = master
		for _, s := range synonyms[master] {
			c.masters[c.normalize(s)] = master
		}
	}
	return c
}

func (c *SimpleSynonymCatalog) normalize(v string) string {
	if c.caseSensitive {
		return v
	}
	return fold(v)
}

func (c *SimpleSynonymCatalog) Name() string { return c.name }

func (c *SimpleSynonymCatalog) MasterTerm(value string) (string, bool) {
	m, ok := c.masters[c.normalize(value)]
	return m, ok
}

// RegexStringPattern matches values with a .NET/Perl style regular
// expression. With matchEntire the whole value must match.
type RegexStringPattern struct {
	name        string
	expression  string
	matchEntire bool
	re          *regexp2.Regexp
}

// NewRegexStringPattern compiles expression
func NewRegexStringPattern(name, expression string, matchEntire bool) (*RegexStringPattern, error) {
	expr := expression
	if matchEntire {
		expr = `^(?:` + expression + `)$`
	}
	re, err := regexp2.Compile(expr, regexp2.None)
	if err != nil {
		return nil, fmt.Errorf("compile pattern %s: %w", name, err)
	}
	re.MatchTimeout = time.Second
	return &RegexStringPattern{name: name, expression: expression, matchEntire: matchEntire, re: re}, nil
}

func (p *RegexStringPattern) Name() string { return p.name }

// Expression returns the uncompiled expression
func (p *RegexStringPattern) Expression() string { return p.expression }

func (p *RegexStringPattern) Matches(value string) bool {
	ok, err := p.re.MatchString(value)
	return err == nil && ok
}

// SimpleStringPattern matches values against a token pattern: 'a' is any
// lowercase letter, 'A' any uppercase letter, '9' any digit; other runes
// match themselves. Letter and digit tokens match runs of one or more.
// "Aaaa 99" matches "John 42".
type SimpleStringPattern struct {
	name   string
	tokens []patternToken
}

type tokenClass int

const (
	tokenLower tokenClass = iota
	tokenUpper
	tokenDigit
	tokenLiteral
)

type patternToken struct {
	class   tokenClass
	literal rune
}

// NewSimpleStringPattern creates a token pattern
func NewSimpleStringPattern(name, pattern string) *SimpleStringPattern {
	return &SimpleStringPattern{name: name, tokens: tokenize(pattern)}
}

func classify(r rune) patternToken {
	switch {
	case r >= 'a' && r <= 'z':
		return patternToken{class: tokenLower}
	case r >= 'A' && r <= 'Z':
		return patternToken{class: tokenUpper}
	case r >= '0' && r <= '9':
		return patternToken{class: tokenDigit}
	}
	return patternToken{class: tokenLiteral, literal: r}
}

// tokenize collapses runs of one class into a single token
func tokenize(s string) []patternToken {
	var tokens []patternToken
	for _, r := range s {
		tok := classify(r)
		if n := len(tokens); n > 0 && tok.class != tokenLiteral && tokens[n-1].class == tok.class {
			continue
		}
		tokens = append(tokens, tok)
	}
	return tokens
}

func (p *SimpleStringPattern) Name() string { return p.name }

func (p *SimpleStringPattern) Matches(value string) bool {
	got := tokenize(value)
	if len(got) != len(p.tokens) {
		return false
	}
	for i, tok := range p.tokens {
		if got[i] != tok {
			return false
		}
	}
	return true
}

// Catalog resolves reference data by name
type Catalog struct {
	mu           sync.RWMutex
	dictionaries map[string]Dictionary
	synonyms     map[string]SynonymCatalog
	patterns     map[string]StringPattern
}

// NewCatalog creates an empty catalog
func NewCatalog() *Catalog {
	return &Catalog{
		dictionaries: make(map[string]Dictionary),
		synonyms:     make(map[string]SynonymCatalog),
		patterns:     make(map[string]StringPattern),
	}
}

// AddDictionary registers d under its name
func (c *Catalog) AddDictionary(d Dictionary) *Catalog {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dictionaries[d.Name()] = d
	return c
}

// AddSynonymCatalog registers s under its name
func (c *Catalog) AddSynonymCatalog(s SynonymCatalog) *Catalog {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.synonyms[s.Name()] = s
	return c
}

// AddStringPattern registers p under its name
func (c *Catalog) AddStringPattern(p StringPattern) *Catalog {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.patterns[p.Name()] = p
	return c
}

func (c *Catalog) Dictionary(name string) (Dictionary, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if d, ok := c.dictionaries[name]; ok {
		return d, nil
	}
	return nil, fmt.Errorf("no dictionary named %q", name)
}

func (c *Catalog) SynonymCatalog(name string) (SynonymCatalog, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if s, ok := c.synonyms[name]; ok {
		return s, nil
	}
	return nil, fmt.Errorf("no synonym catalog named %q", name)
}

func (c *Catalog) StringPattern(name string) (StringPattern, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if p, ok := c.patterns[name]; ok {
		return p, nil
	}
	return nil, fmt.Errorf("no string pattern named %q", name)
}

// Names lists the registered reference data names per type
func (c *Catalog) Names() (dictionaries, synonymCatalogs, patterns []string) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return sortedKeys(c.dictionaries), sortedKeys(c.synonyms), sortedKeys(c.patterns)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// String renders the catalog content for logs
func (c *Catalog) String() string {
	d, s, p := c.Names()
	return fmt.Sprintf("Catalog{dictionaries=[%s], synonyms=[%s], patterns=[%s]}",
		strings.Join(d, ","), strings.Join(s, ","), strings.Join(p, ","))
}
