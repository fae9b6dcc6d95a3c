package memory

import (
	"encoding/json"
	"fmt"
)

// Bucket names used by the snapshotting SQL stores, one row per bucket.
const (
	BucketVessels     = "vessels"
	BucketBatches     = "batches"
	BucketAllocations = "allocations"
	BucketLots        = "lots"
	BucketRecipes     = "recipes"
)

// Buckets lists every snapshot bucket in persistence order.
var Buckets = []string{BucketVessels, BucketBatches, BucketAllocations, BucketLots, BucketRecipes}

func (s *Snapshot) target(bucket string) (any, bool) {
	switch bucket {
	case BucketVessels:
		return &s.Vessels, true
	case BucketBatches:
		return &s.Batches, true
	case BucketAllocations:
		return &s.Allocations, true
	case BucketLots:
		return &s.Lots, true
	case BucketRecipes:
		return &s.Recipes, true
	}
	return nil, false
}

// EncodeBucket marshals one bucket of the snapshot to JSON.
func (s Snapshot) EncodeBucket(bucket string) ([]byte, error) {
	target, ok := s.target(bucket)
	if !ok {
		return nil, fmt.Errorf("unknown bucket %q", bucket)
	}
	data, err := json.Marshal(target)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", bucket, err)
	}
	return data, nil
}

// DecodeBucket unmarshals a stored payload into the matching snapshot bucket.
// Unknown buckets and empty payloads are ignored so older databases still load.
func (s *Snapshot) DecodeBucket(bucket string, payload []byte) error {
	if len(payload) == 0 {
		return nil
	}
	target, ok := s.target(bucket)
	if !ok {
		return nil
	}
	if err := json.Unmarshal(payload, target); err != nil {
		return fmt.Errorf("decode %s: %w", bucket, err)
	}
	return nil
}
