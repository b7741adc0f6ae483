package cluster

import (
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/wehubfusion/datacleaner/pkg/result"
)

// PartitionResultMessage is the wire form of a PartitionResult. Analyzer
// results travel as codec envelopes keyed by analyzer job name.
type PartitionResultMessage struct {
	RunID       string                     `msgpack:"runId"`
	JobName     string                     `msgpack:"jobName"`
	Partition   Partition                  `msgpack:"partition"`
	Partitions  int                        `msgpack:"partitions"`
	Status      string                     `msgpack:"status"`
	StartedAt   time.Time                  `msgpack:"startedAt"`
	FinishedAt  time.Time                  `msgpack:"finishedAt"`
	Results     map[string]result.Envelope `msgpack:"results"`
	Errors      []string                   `msgpack:"errors,omitempty"`
	PublishedAt time.Time                  `msgpack:"publishedAt"`
	// BlobRef is set when the message body was moved to blob storage
	BlobRef string `msgpack:"blobRef,omitempty"`
}

// EncodePartition serializes pr with msgpack
func EncodePartition(codec *result.Codec, pr *PartitionResult) ([]byte, error) {
	if pr == nil || pr.Result == nil {
		return nil, fmt.Errorf("partition result cannot be nil")
	}
	msg := PartitionResultMessage{
		RunID:       pr.RunID,
		JobName:     pr.JobName,
		Partition:   pr.Partition,
		Partitions:  pr.Partitions,
		Status:      pr.Result.Status,
		StartedAt:   pr.Result.StartedAt,
		FinishedAt:  pr.Result.FinishedAt,
		Results:     make(map[string]result.Envelope, len(pr.Result.Results)),
		Errors:      pr.Result.Errors,
		PublishedAt: time.Now().UTC(),
	}
	for name, r := range pr.Result.Results {
		if r == nil {
			continue
		}
		env, err := codec.Encode(r)
		if err != nil {
			return nil, fmt.Errorf("result of %s: %w", name, err)
		}
		msg.Results[name] = env
	}
	return msgpack.Marshal(&msg)
}

// DecodePartition restores a PartitionResult written by EncodePartition
func DecodePartition(codec *result.Codec, raw []byte) (*PartitionResult, error) {
	var msg PartitionResultMessage
	if err := msgpack.Unmarshal(raw, &msg); err != nil {
		return nil, fmt.Errorf("decode partition message: %w", err)
	}
	if msg.BlobRef != "" {
		return nil, fmt.Errorf("partition %d is stored at %s", msg.Partition.Index, msg.BlobRef)
	}
	snap := &result.AnalysisResult{
		RunID:      msg.RunID,
		JobName:    msg.JobName,
		Status:     msg.Status,
		StartedAt:  msg.StartedAt,
		FinishedAt: msg.FinishedAt,
		Results:    make(map[string]result.AnalyzerResult, len(msg.Results)),
		Errors:     msg.Errors,
	}
	for name, env := range msg.Results {
		r, err := codec.Decode(env)
		if err != nil {
			return nil, fmt.Errorf("result of %s: %w", name, err)
		}
		snap.Results[name] = r
	}
	return &PartitionResult{
		RunID:      msg.RunID,
		JobName:    msg.JobName,
		Partition:  msg.Partition,
		Partitions: msg.Partitions,
		Result:     snap,
	}, nil
}
