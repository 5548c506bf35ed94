package file

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/dandpb/jung-edu-app-sub012/pkg/models"
	"github.com/dandpb/jung-edu-app-sub012/pkg/persistence"
)

// snapshotFileFormat zero-pads sequences so lexicographic file order matches
// sequence order.
const snapshotFileFormat = "%020d.json"

// SnapshotRepository stores the snapshot log as one directory per execution,
// one JSON file per sequence.
type SnapshotRepository struct {
	root string
	mu   sync.Mutex
}

// NewSnapshotRepository creates a new snapshot repository.
func NewSnapshotRepository(root string) *SnapshotRepository {
	return &SnapshotRepository{root: root}
}

func (sr *SnapshotRepository) dir(executionID string) string {
	return filepath.Join(sr.root, "snapshots", executionID)
}

// Create appends a snapshot, assigning the next sequence for its execution.
func (sr *SnapshotRepository) Create(_ context.Context, snapshot *models.ExecutionSnapshot) error {
	if err := validateID(snapshot.ExecutionID); err != nil {
		return persistence.NewSnapshotError("Create", snapshot.ExecutionID, 0, err)
	}

	sr.mu.Lock()
	defer sr.mu.Unlock()

	dir := sr.dir(snapshot.ExecutionID)
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return persistence.NewSnapshotError("Create", snapshot.ExecutionID, 0, fmt.Errorf("failed to create snapshots directory: %w", err))
	}

	sequences, err := sr.sequences(snapshot.ExecutionID)
	if err != nil {
		return persistence.NewSnapshotError("Create", snapshot.ExecutionID, 0, err)
	}

	snapshot.Sequence = 1
	if len(sequences) > 0 {
		snapshot.Sequence = sequences[len(sequences)-1] + 1
	}

	data, err := json.Marshal(snapshot)
	if err != nil {
		return persistence.NewSnapshotError("Create", snapshot.ExecutionID, snapshot.Sequence, fmt.Errorf("failed to marshal snapshot: %w", err))
	}

	path := filepath.Join(dir, fmt.Sprintf(snapshotFileFormat, snapshot.Sequence))
	if err := os.WriteFile(path, data, filePerm); err != nil {
		return persistence.NewSnapshotError("Create", snapshot.ExecutionID, snapshot.Sequence, fmt.Errorf("failed to write snapshot: %w", err))
	}

	return nil
}

// Latest returns the highest-sequence snapshot or ErrSnapshotNotFound.
func (sr *SnapshotRepository) Latest(_ context.Context, executionID string) (*models.ExecutionSnapshot, error) {
	if err := validateID(executionID); err != nil {
		return nil, persistence.NewSnapshotError("Latest", executionID, 0, err)
	}

	sr.mu.Lock()
	defer sr.mu.Unlock()

	sequences, err := sr.sequences(executionID)
	if err != nil {
		return nil, persistence.NewSnapshotError("Latest", executionID, 0, err)
	}

	if len(sequences) == 0 {
		return nil, persistence.NewSnapshotError("Latest", executionID, 0, persistence.ErrSnapshotNotFound)
	}

	return sr.read(executionID, sequences[len(sequences)-1])
}

// GetBySequence returns one snapshot or ErrSnapshotNotFound.
func (sr *SnapshotRepository) GetBySequence(_ context.Context, executionID string, sequence int64) (*models.ExecutionSnapshot, error) {
	if err := validateID(executionID); err != nil {
		return nil, persistence.NewSnapshotError("GetBySequence", executionID, sequence, err)
	}

	sr.mu.Lock()
	defer sr.mu.Unlock()

	return sr.read(executionID, sequence)
}

// History returns all snapshots of an execution in sequence order.
func (sr *SnapshotRepository) History(_ context.Context, executionID string) ([]*models.ExecutionSnapshot, error) {
	if err := validateID(executionID); err != nil {
		return nil, persistence.NewSnapshotError("History", executionID, 0, err)
	}

	sr.mu.Lock()
	defer sr.mu.Unlock()

	sequences, err := sr.sequences(executionID)
	if err != nil {
		return nil, persistence.NewSnapshotError("History", executionID, 0, err)
	}

	snapshots := make([]*models.ExecutionSnapshot, 0, len(sequences))

	for _, sequence := range sequences {
		snapshot, err := sr.read(executionID, sequence)
		if err != nil {
			return nil, err
		}

		snapshots = append(snapshots, snapshot)
	}

	return snapshots, nil
}

// Compact removes old snapshots, keeping the keepLatest most recent ones and
// every audit snapshot. Returns how many were deleted.
func (sr *SnapshotRepository) Compact(_ context.Context, executionID string, keepLatest int) (int, error) {
	if err := validateID(executionID); err != nil {
		return 0, persistence.NewSnapshotError("Compact", executionID, 0, err)
	}

	if keepLatest < 0 {
		keepLatest = 0
	}

	sr.mu.Lock()
	defer sr.mu.Unlock()

	sequences, err := sr.sequences(executionID)
	if err != nil {
		return 0, persistence.NewSnapshotError("Compact", executionID, 0, err)
	}

	if len(sequences) <= keepLatest {
		return 0, nil
	}

	deleted := 0

	for _, sequence := range sequences[:len(sequences)-keepLatest] {
		snapshot, err := sr.read(executionID, sequence)
		if err != nil {
			return deleted, err
		}

		if snapshot.Audit {
			continue
		}

		path := filepath.Join(sr.dir(executionID), fmt.Sprintf(snapshotFileFormat, sequence))
		if err := os.Remove(path); err != nil {
			return deleted, persistence.NewSnapshotError("Compact", executionID, sequence, err)
		}

		deleted++
	}

	return deleted, nil
}

// DeleteAll removes every snapshot of an execution.
func (sr *SnapshotRepository) DeleteAll(_ context.Context, executionID string) error {
	if err := validateID(executionID); err != nil {
		return persistence.NewSnapshotError("DeleteAll", executionID, 0, err)
	}

	sr.mu.Lock()
	defer sr.mu.Unlock()

	if err := os.RemoveAll(sr.dir(executionID)); err != nil {
		return persistence.NewSnapshotError("DeleteAll", executionID, 0, err)
	}

	return nil
}

// sequences returns the stored sequence numbers in ascending order.
func (sr *SnapshotRepository) sequences(executionID string) ([]int64, error) {
	dir := sr.dir(executionID)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return nil, nil
	}

	jsonFiles, err := fs.Glob(os.DirFS(dir), "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshot files: %w", err)
	}

	sequences := make([]int64, 0, len(jsonFiles))

	for _, file := range jsonFiles {
		sequence, err := strconv.ParseInt(strings.TrimSuffix(file, ".json"), 10, 64)
		if err != nil {
			continue
		}

		sequences = append(sequences, sequence)
	}

	sort.Slice(sequences, func(i, j int) bool { return sequences[i] < sequences[j] })

	return sequences, nil
}

// read loads one snapshot and verifies its integrity.
func (sr *SnapshotRepository) read(executionID string, sequence int64) (*models.ExecutionSnapshot, error) {
	path := filepath.Join(sr.dir(executionID), fmt.Sprintf(snapshotFileFormat, sequence))

	data, err := os.ReadFile(path) // #nosec G304 -- id is validated against traversal
	if err != nil {
		if os.IsNotExist(err) {
			return nil, persistence.NewSnapshotError("Get", executionID, sequence, persistence.ErrSnapshotNotFound)
		}

		return nil, persistence.NewSnapshotError("Get", executionID, sequence, err)
	}

	var snapshot models.ExecutionSnapshot

	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, persistence.NewSnapshotError("Get", executionID, sequence, fmt.Errorf("%w: %w", persistence.ErrCorruptSnapshot, err))
	}

	if err := snapshot.Validate(); err != nil {
		return nil, persistence.NewSnapshotError("Get", executionID, sequence, fmt.Errorf("%w: %w", persistence.ErrCorruptSnapshot, err))
	}

	return &snapshot, nil
}
