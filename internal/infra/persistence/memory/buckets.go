package memory

import (
	"encoding/json"
	"fmt"
)

// Buckets lists the snapshot sections durable backends persist, one row each.
var Buckets = []string{"settings", "resources", "generators", "upgrades", "tiers"}

func (s *Snapshot) bucketTarget(bucket string) (any, bool) {
	switch bucket {
	case "settings":
		return &s.Settings, true
	case "resources":
		return &s.Resources, true
	case "generators":
		return &s.Generators, true
	case "upgrades":
		return &s.Upgrades, true
	case "tiers":
		return &s.Tiers, true
	default:
		return nil, false
	}
}

// EncodeBucket marshals one section of the snapshot.
func (s Snapshot) EncodeBucket(bucket string) ([]byte, error) {
	target, ok := s.bucketTarget(bucket)
	if !ok {
		return nil, fmt.Errorf("unknown bucket %q", bucket)
	}
	return json.Marshal(target)
}

// DecodeBucket unmarshals payload into the matching section. Unknown buckets
// are ignored so older databases with retired buckets still load.
func (s *Snapshot) DecodeBucket(bucket string, payload []byte) error {
	target, ok := s.bucketTarget(bucket)
	if !ok || len(payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(payload, target); err != nil {
		return fmt.Errorf("decode %s: %w", bucket, err)
	}
	return nil
}
