package source

import (
	"context"
	"crypto/md5"
	"encoding/csv"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/TomerMadmon/md5-cracker/internal/errkind"
)

// KeySize is the fixed width of a record key in bytes.
const KeySize = md5.Size

// Record is one precomputed (hash, phone) pair read from a partition.
type Record struct {
	Key   [KeySize]byte
	Value string
}

// Task identifies one input partition. The ID is the partition's base name,
// not its path, so moving or remounting the input directory does not
// invalidate a checkpoint.
type Task struct {
	ID   string
	Path string
}

// Source exposes a finite, ordered set of input partitions and streams their
// records in bounded batches. Re-reading the same task yields the same data.
type Source interface {
	// ListTasks returns the task descriptors in name order. The order is
	// stable across calls on an unchanged input set.
	ListTasks(ctx context.Context) ([]Task, error)

	// ReadBatches streams the task's records to fn in batches of at most
	// batchSize. Errors from fn propagate unchanged; read and parse errors
	// are tagged source_unreadable.
	ReadBatches(ctx context.Context, task Task, batchSize int, fn func([]Record) error) error
}

// FileSource reads CSV partitions from a local directory.
type FileSource struct {
	dir string
}

// NewFileSource creates a source over the CSV files in dir.
func NewFileSource(dir string) *FileSource {
	return &FileSource{dir: dir}
}

// ListTasks lists the *.csv files in the source directory.
func (s *FileSource) ListTasks(ctx context.Context) ([]Task, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, errkind.Wrapf(errkind.KindSourceUnreadable, "read input directory %s: %w", s.dir, err)
	}

	var tasks []Task
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".csv") {
			continue
		}
		tasks = append(tasks, Task{
			ID:   entry.Name(),
			Path: filepath.Join(s.dir, entry.Name()),
		})
	}

	sort.Slice(tasks, func(i, j int) bool { return tasks[i].ID < tasks[j].ID })
	return tasks, nil
}

// ReadBatches opens the partition file and streams its records.
func (s *FileSource) ReadBatches(ctx context.Context, task Task, batchSize int, fn func([]Record) error) error {
	f, err := os.Open(task.Path)
	if err != nil {
		return errkind.Wrapf(errkind.KindSourceUnreadable, "open partition %s: %w", task.ID, err)
	}
	defer f.Close()

	return readBatches(ctx, f, task, batchSize, fn)
}

// readBatches parses key_hex,value rows from r and delivers them in batches.
// Shared by the file and object-storage sources.
func readBatches(ctx context.Context, r io.Reader, task Task, batchSize int, fn func([]Record) error) error {
	if batchSize <= 0 {
		batchSize = 1
	}

	reader := csv.NewReader(r)
	reader.FieldsPerRecord = 2
	reader.ReuseRecord = true

	batch := make([]Record, 0, batchSize)
	line := 0

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return errkind.Wrapf(errkind.KindSourceUnreadable, "partition %s: %w", task.ID, err)
		}
		line++

		rec, err := parseRecord(row[0], row[1])
		if err != nil {
			return errkind.Wrapf(errkind.KindSourceUnreadable, "partition %s line %d: %w", task.ID, line, err)
		}
		batch = append(batch, rec)

		if len(batch) >= batchSize {
			if err := fn(batch); err != nil {
				return err
			}
			batch = batch[:0]
		}
	}

	if len(batch) > 0 {
		return fn(batch)
	}
	return nil
}

func parseRecord(keyHex, value string) (Record, error) {
	var rec Record
	if len(keyHex) != KeySize*2 {
		return rec, fmt.Errorf("key %q: want %d hex characters", keyHex, KeySize*2)
	}
	if _, err := hex.Decode(rec.Key[:], []byte(keyHex)); err != nil {
		return rec, fmt.Errorf("key %q: %w", keyHex, err)
	}
	rec.Value = value
	return rec, nil
}
