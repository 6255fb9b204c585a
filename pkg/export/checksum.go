package export

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// canonicalJSON renders v as deterministic JSON. Marshaling to a generic
// value and back sorts all object keys, so the same data always produces the
// same bytes regardless of struct field order or map iteration.
func canonicalJSON(v interface{}) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal for canonicalization: %w", err)
	}

	var generic interface{}
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, fmt.Errorf("failed to rebuild canonical value: %w", err)
	}

	canonical, err := json.Marshal(generic)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal canonical value: %w", err)
	}
	return canonical, nil
}

// checksum hashes the canonical JSON of the package's memories section. Only
// the memories participate, so re-exporting the same data at a different
// time yields the same checksum.
func checksum(memories Memories) (string, error) {
	canonical, err := canonicalJSON(memories)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

// signature identifies a memory by its type and canonical content, ignoring
// record ids and timestamps. Two memories with the same signature are
// duplicates for import purposes.
func signature(memoryType string, content interface{}) (string, error) {
	canonical, err := canonicalJSON(content)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(append([]byte(memoryType+"\x00"), canonical...))
	return hex.EncodeToString(sum[:]), nil
}
