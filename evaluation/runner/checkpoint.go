package runner

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"taubench/evaluation/metrics"
	tauerrors "taubench/internal/errors"
	"taubench/internal/fsutil"
	jsonx "taubench/internal/shared/json"
)

// Checkpoint is the durable JSON array of finished trials. Every append
// reads the file, adds the row and atomically rewrites it, all under one
// lock, so concurrent workers never lose a row and a crash leaves either the
// old or the new array on disk.
type Checkpoint struct {
	mu   sync.Mutex
	path string
}

// NewCheckpoint returns a checkpoint backed by path. The file is created on
// the first append.
func NewCheckpoint(path string) *Checkpoint {
	return &Checkpoint{path: path}
}

// Path returns the backing file.
func (c *Checkpoint) Path() string { return c.path }

// Load returns every row currently on disk. A missing or empty file holds no
// rows.
func (c *Checkpoint) Load() ([]metrics.EpisodeResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.read()
}

// Append adds result to the file. Any failure is a *errors.CheckpointError.
func (c *Checkpoint) Append(result metrics.EpisodeResult) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	rows, err := c.read()
	if err != nil {
		return err
	}
	rows = append(rows, result)
	data, err := jsonx.MarshalStable(rows, "  ")
	if err != nil {
		return tauerrors.NewCheckpointError("encode", c.path, err)
	}
	if err := fsutil.WriteFileAtomic(c.path, append(data, '\n'), 0o644); err != nil {
		return tauerrors.NewCheckpointError("write", c.path, err)
	}
	return nil
}

func (c *Checkpoint) read() ([]metrics.EpisodeResult, error) {
	data, err := os.ReadFile(c.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, tauerrors.NewCheckpointError("read", c.path, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	var rows []metrics.EpisodeResult
	if err := jsonx.Unmarshal(data, &rows); err != nil {
		return nil, tauerrors.NewCheckpointError("decode", c.path, err)
	}
	return rows, nil
}

// CheckpointName derives the checkpoint file name of a run:
// <agent>-<model>-<temperature>_range_<start>-<end>_user-<user model>-<user strategy>_<timestamp>.json
// Path separators in model names are replaced so the name stays a single
// path element.
func CheckpointName(cfg Config, now time.Time) string {
	clean := strings.NewReplacer("/", "_", "\\", "_")
	name := fmt.Sprintf("%s-%s-%s_range_%d-%d_user-%s-%s_%s.json",
		cfg.AgentStrategy,
		cfg.Model,
		strconv.FormatFloat(cfg.Temperature, 'f', -1, 64),
		cfg.StartIndex,
		cfg.EndIndex,
		cfg.UserModel,
		cfg.UserStrategy,
		now.Format("0102150405"),
	)
	return clean.Replace(name)
}
