package models

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"
)

// ExecutionSnapshot is a persisted, restorable copy of ExecutionState at a
// point in time. Sequence numbers increase monotonically per execution;
// snapshots flagged Audit survive history compaction.
type ExecutionSnapshot struct {
	ID          string          `json:"id"`
	ExecutionID string          `json:"execution_id"`
	WorkflowID  string          `json:"workflow_id"`
	Sequence    int64           `json:"sequence"`
	State       *ExecutionState `json:"state"`
	Audit       bool            `json:"audit"`
	Checksum    string          `json:"checksum"`
	CreatedAt   time.Time       `json:"created_at"`
}

// NewSnapshot copies the given state into a snapshot and seals it with a
// checksum. The sequence number is assigned by the snapshot repository.
func NewSnapshot(state *ExecutionState, audit bool) (*ExecutionSnapshot, error) {
	snap := &ExecutionSnapshot{
		ExecutionID: state.ID,
		WorkflowID:  state.WorkflowID,
		State:       state.Clone(),
		Audit:       audit,
		CreatedAt:   time.Now().UTC(),
	}

	sum, err := snap.ComputeChecksum()
	if err != nil {
		return nil, err
	}

	snap.Checksum = sum

	return snap, nil
}

// ComputeChecksum hashes the canonical JSON encoding of the captured state.
// encoding/json sorts map keys, so the encoding is deterministic.
func (s *ExecutionSnapshot) ComputeChecksum() (string, error) {
	payload, err := json.Marshal(s.State)
	if err != nil {
		return "", fmt.Errorf("encode snapshot state: %w", err)
	}

	sum := sha256.Sum256(payload)

	return hex.EncodeToString(sum[:]), nil
}

// Validate checks the structural integrity of a loaded snapshot. A mismatched
// checksum or missing state means the stored payload was corrupted.
func (s *ExecutionSnapshot) Validate() error {
	if s.State == nil {
		return fmt.Errorf("snapshot %s has no state payload", s.ID)
	}

	if s.State.ID == "" || s.State.WorkflowID == "" {
		return fmt.Errorf("snapshot %s state is missing identifiers", s.ID)
	}

	if s.Sequence <= 0 {
		return fmt.Errorf("snapshot %s has invalid sequence %d", s.ID, s.Sequence)
	}

	sum, err := s.ComputeChecksum()
	if err != nil {
		return err
	}

	if sum != s.Checksum {
		return fmt.Errorf("snapshot %s checksum mismatch", s.ID)
	}

	return nil
}
