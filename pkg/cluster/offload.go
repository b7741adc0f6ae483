package cluster

import (
	"context"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/wehubfusion/datacleaner/pkg/result"
	"github.com/wehubfusion/datacleaner/pkg/storage"
)

// DefaultMaxInlineBytes is the largest partition message published inline.
// It stays below the 1MB NATS payload limit to leave room for headers.
const DefaultMaxInlineBytes = 500 * 1024

// PartitionPath is the blob path of an offloaded partition message
func PartitionPath(jobName, runID string, index int) string {
	return fmt.Sprintf("partials/%s/%s/%d.msgpack", jobName, runID, index)
}

// Offloader moves partition messages above a size threshold to blob
// storage and publishes a reference instead. A nil blob store keeps
// every message inline.
type Offloader struct {
	blob           storage.BlobStore
	maxInlineBytes int
}

// NewOffloader creates an offloader. maxInlineBytes <= 0 means DefaultMaxInlineBytes.
func NewOffloader(blob storage.BlobStore, maxInlineBytes int) *Offloader {
	if maxInlineBytes <= 0 {
		maxInlineBytes = DefaultMaxInlineBytes
	}
	return &Offloader{blob: blob, maxInlineBytes: maxInlineBytes}
}

// Prepare returns the payload to publish for pr and whether it was offloaded
func (o *Offloader) Prepare(ctx context.Context, codec *result.Codec, pr *PartitionResult) ([]byte, bool, error) {
	payload, err := EncodePartition(codec, pr)
	if err != nil {
		return nil, false, err
	}
	if o == nil || o.blob == nil || len(payload) <= o.maxInlineBytes {
		return payload, false, nil
	}

	ref, err := o.blob.Put(ctx, storage.Blob{
		Path:        PartitionPath(pr.JobName, pr.RunID, pr.Partition.Index),
		ContentType: "application/msgpack",
		Data:        payload,
		Metadata: map[string]string{
			"job_name":  pr.JobName,
			"run_id":    pr.RunID,
			"partition": fmt.Sprint(pr.Partition.Index),
		},
	})
	if err != nil {
		return nil, false, fmt.Errorf("offload partition %d: %w", pr.Partition.Index, err)
	}
	stub, err := msgpack.Marshal(&PartitionResultMessage{
		RunID:      pr.RunID,
		JobName:    pr.JobName,
		Partition:  pr.Partition,
		Partitions: pr.Partitions,
		BlobRef:    ref,
	})
	if err != nil {
		return nil, false, err
	}
	return stub, true, nil
}

// Resolve decodes a published payload, downloading offloaded messages
func (o *Offloader) Resolve(ctx context.Context, codec *result.Codec, raw []byte) (*PartitionResult, error) {
	var head struct {
		BlobRef string `msgpack:"blobRef"`
	}
	if err := msgpack.Unmarshal(raw, &head); err != nil {
		return nil, fmt.Errorf("decode partition message: %w", err)
	}
	if head.BlobRef == "" {
		return DecodePartition(codec, raw)
	}
	if o == nil || o.blob == nil {
		return nil, fmt.Errorf("partition stored at %s but no blob store is configured", head.BlobRef)
	}
	full, err := o.blob.Get(ctx, head.BlobRef)
	if err != nil {
		return nil, fmt.Errorf("download partition from %s: %w", head.BlobRef, err)
	}
	return DecodePartition(codec, full)
}
