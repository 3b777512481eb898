package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/baldhumanity/neat-evo/neat"
)

// CheckpointPrefix is the file name prefix of checkpoints in a FileStore.
const CheckpointPrefix = "neat-checkpoint-"

// FileStore writes one gzip+gob file per generation into a directory.
type FileStore struct {
	dir string
}

// NewFileStore creates a store rooted at dir.
func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir}
}

// Init creates the directory if needed.
func (s *FileStore) Init(context.Context) error {
	if s.dir == "" {
		return errors.New("checkpoint directory is required")
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create checkpoint directory '%s': %w", s.dir, err)
	}
	return nil
}

// Path returns the file a checkpoint of the given generation is written to.
func (s *FileStore) Path(generation int) string {
	return filepath.Join(s.dir, CheckpointPrefix+strconv.Itoa(generation))
}

// Save writes the checkpoint through a temporary file so that a reader never
// sees a partial checkpoint.
func (s *FileStore) Save(_ context.Context, cp *neat.Checkpoint) error {
	path := s.Path(cp.Generation)
	tmp := path + ".tmp"
	if err := neat.SaveCheckpoint(tmp, cp); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("publish checkpoint '%s': %w", path, err)
	}
	return nil
}

// Latest returns the checkpoint with the highest generation in the directory.
func (s *FileStore) Latest(ctx context.Context) (*neat.Checkpoint, bool, error) {
	generations, err := s.Generations()
	if err != nil {
		return nil, false, err
	}
	if len(generations) == 0 {
		return nil, false, nil
	}
	return s.Load(ctx, "", generations[len(generations)-1])
}

// Load reads the checkpoint of a generation. A non-empty runID must match the
// run that wrote it.
func (s *FileStore) Load(_ context.Context, runID string, generation int) (*neat.Checkpoint, bool, error) {
	cp, err := neat.LoadCheckpoint(s.Path(generation))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, err
	}
	if runID != "" && cp.RunID.String() != runID {
		return nil, false, nil
	}
	return cp, true, nil
}

// Generations lists the generations present in the directory, ascending.
func (s *FileStore) Generations() ([]int, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read checkpoint directory '%s': %w", s.dir, err)
	}
	var generations []int
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, CheckpointPrefix) {
			continue
		}
		gen, err := strconv.Atoi(strings.TrimPrefix(name, CheckpointPrefix))
		if err != nil {
			continue
		}
		generations = append(generations, gen)
	}
	sort.Ints(generations)
	return generations, nil
}

func (s *FileStore) Close() error { return nil }
