package result

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Envelope carries an encoded result together with its kind
type Envelope struct {
	Kind    string          `json:"kind" msgpack:"kind"`
	Payload json.RawMessage `json:"payload" msgpack:"payload"`
}

// Factory creates an empty result of one kind for decoding
type Factory func() AnalyzerResult

// Codec encodes and decodes analyzer results by kind
type Codec struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewCodec returns a codec that knows the built-in result kinds
func NewCodec() *Codec {
	c := &Codec{factories: make(map[string]Factory)}
	c.Register(KindNumber, func() AnalyzerResult { return &NumberResult{} })
	c.Register(KindCrosstab, func() AnalyzerResult { return &CrosstabResult{} })
	c.Register(KindBoolean, func() AnalyzerResult { return &BooleanResult{} })
	c.Register(KindAnnotatedRows, func() AnalyzerResult { return &AnnotatedRowsResult{} })
	return c
}

// Register adds or replaces the factory of a result kind
func (c *Codec) Register(kind string, factory Factory) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.factories[kind] = factory
}

// Kinds returns the registered kinds, sorted
func (c *Codec) Kinds() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	kinds := make([]string, 0, len(c.factories))
	for k := range c.factories {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// Encode wraps r into an envelope
func (c *Codec) Encode(r AnalyzerResult) (Envelope, error) {
	if r == nil {
		return Envelope{}, fmt.Errorf("cannot encode nil result")
	}
	payload, err := json.Marshal(r)
	if err != nil {
		return Envelope{}, fmt.Errorf("encode %s result: %w", r.Kind(), err)
	}
	return Envelope{Kind: r.Kind(), Payload: payload}, nil
}

// Decode restores the result carried by env
func (c *Codec) Decode(env Envelope) (AnalyzerResult, error) {
	c.mu.RLock()
	factory, ok := c.factories[env.Kind]
	c.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown result kind %q", env.Kind)
	}
	r := factory()
	if err := json.Unmarshal(env.Payload, r); err != nil {
		return nil, fmt.Errorf("decode %s result: %w", env.Kind, err)
	}
	return r, nil
}

// Run status values of an AnalysisResult
const (
	StatusSuccess   = "SUCCESS"
	StatusFailed    = "FAILED"
	StatusCancelled = "CANCELLED"
)

// AnalysisResult is a detached snapshot of a finished run, keyed by the
// names of the producing analyzer jobs. It is what gets persisted and shipped.
type AnalysisResult struct {
	RunID      string                    `json:"runId"`
	JobName    string                    `json:"jobName"`
	Status     string                    `json:"status"`
	StartedAt  time.Time                 `json:"startedAt"`
	FinishedAt time.Time                 `json:"finishedAt"`
	Results    map[string]AnalyzerResult `json:"-"`
	Errors     []string                  `json:"errors,omitempty"`
}

// Result returns the result of the named analyzer job
func (a *AnalysisResult) Result(name string) (AnalyzerResult, bool) {
	r, ok := a.Results[name]
	return r, ok
}

type analysisResultJSON struct {
	RunID      string              `json:"runId"`
	JobName    string              `json:"jobName"`
	Status     string              `json:"status"`
	StartedAt  time.Time           `json:"startedAt"`
	FinishedAt time.Time           `json:"finishedAt"`
	Results    map[string]Envelope `json:"results"`
	Errors     []string            `json:"errors,omitempty"`
}

// MarshalAnalysisResult encodes a snapshot as JSON
func (c *Codec) MarshalAnalysisResult(a *AnalysisResult) ([]byte, error) {
	out := analysisResultJSON{
		RunID:      a.RunID,
		JobName:    a.JobName,
		Status:     a.Status,
		StartedAt:  a.StartedAt,
		FinishedAt: a.FinishedAt,
		Results:    make(map[string]Envelope, len(a.Results)),
		Errors:     a.Errors,
	}
	for name, r := range a.Results {
		if r == nil {
			continue
		}
		env, err := c.Encode(r)
		if err != nil {
			return nil, fmt.Errorf("result of %s: %w", name, err)
		}
		out.Results[name] = env
	}
	return json.Marshal(out)
}

// UnmarshalAnalysisResult decodes a snapshot written by MarshalAnalysisResult
func (c *Codec) UnmarshalAnalysisResult(raw []byte) (*AnalysisResult, error) {
	var in analysisResultJSON
	if err := json.Unmarshal(raw, &in); err != nil {
		return nil, err
	}
	a := &AnalysisResult{
		RunID:      in.RunID,
		JobName:    in.JobName,
		Status:     in.Status,
		StartedAt:  in.StartedAt,
		FinishedAt: in.FinishedAt,
		Results:    make(map[string]AnalyzerResult, len(in.Results)),
		Errors:     in.Errors,
	}
	for name, env := range in.Results {
		r, err := c.Decode(env)
		if err != nil {
			return nil, fmt.Errorf("result of %s: %w", name, err)
		}
		a.Results[name] = r
	}
	return a, nil
}
