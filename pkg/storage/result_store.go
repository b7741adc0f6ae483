package storage

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/wehubfusion/datacleaner/pkg/result"
)

// ResultPath returns the blob path of a run's result file
func ResultPath(jobName, runID string) string {
	return fmt.Sprintf("results/%s/%s/results.json", jobName, runID)
}

// ResultStore writes analysis snapshots as JSON result files and reads
// them back
type ResultStore struct {
	blobs  BlobStore
	codec  *result.Codec
	logger *zap.Logger
	now    func() time.Time
}

// NewResultStore creates a store. A nil codec means result.NewCodec().
func NewResultStore(blobs BlobStore, codec *result.Codec, logger *zap.Logger) *ResultStore {
	if codec == nil {
		codec = result.NewCodec()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ResultStore{blobs: blobs, codec: codec, logger: logger, now: time.Now}
}

// Save writes the snapshot and returns the reference of its result file.
// The blob metadata repeats the run summary so that listings need not
// download the file.
func (s *ResultStore) Save(ctx context.Context, snap *result.AnalysisResult) (string, error) {
	if s.blobs == nil {
		return "", fmt.Errorf("no blob store configured")
	}
	if snap == nil || snap.RunID == "" {
		return "", fmt.Errorf("snapshot needs a run id")
	}

	raw, err := s.codec.MarshalAnalysisResult(snap)
	if err != nil {
		return "", fmt.Errorf("encode result file of run %s: %w", snap.RunID, err)
	}
	ref, err := s.blobs.Put(ctx, Blob{
		Path:        ResultPath(snap.JobName, snap.RunID),
		ContentType: "application/json",
		Data:        raw,
		Metadata: map[string]string{
			"job_name":     snap.JobName,
			"run_id":       snap.RunID,
			"status":       snap.Status,
			"result_count": strconv.Itoa(len(snap.Results)),
			"error_count":  strconv.Itoa(len(snap.Errors)),
			"saved_at":     s.now().UTC().Format(time.RFC3339),
		},
	})
	if err != nil {
		return "", fmt.Errorf("store result file of run %s: %w", snap.RunID, err)
	}

	s.logger.Info("Saved analysis result",
		zap.String("job", snap.JobName),
		zap.String("run_id", snap.RunID),
		zap.String("status", snap.Status),
		zap.Int("bytes", len(raw)))
	return ref, nil
}

// Load reads the result file of a run
func (s *ResultStore) Load(ctx context.Context, jobName, runID string) (*result.AnalysisResult, error) {
	return s.LoadReference(ctx, ResultPath(jobName, runID))
}

// LoadReference reads a result file by the reference Save returned
func (s *ResultStore) LoadReference(ctx context.Context, ref string) (*result.AnalysisResult, error) {
	if s.blobs == nil {
		return nil, fmt.Errorf("no blob store configured")
	}
	raw, err := s.blobs.Get(ctx, ref)
	if err != nil {
		return nil, err
	}
	snap, err := s.codec.UnmarshalAnalysisResult(raw)
	if err != nil {
		return nil, fmt.Errorf("decode result file %s: %w", ref, err)
	}
	return snap, nil
}

// Exists reports whether a run has a result file
func (s *ResultStore) Exists(ctx context.Context, jobName, runID string) (bool, error) {
	if s.blobs == nil {
		return false, fmt.Errorf("no blob store configured")
	}
	return s.blobs.Exists(ctx, ResultPath(jobName, runID))
}
