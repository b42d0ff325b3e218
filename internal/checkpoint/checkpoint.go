// Package checkpoint durably records which tasks have completed or failed so
// an interrupted run can resume without redoing finished work.
package checkpoint

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/TomerMadmon/md5-cracker/internal/source"
)

// State is the in-memory checkpoint. Completed and Failed are disjoint: a
// task id lives in at most one set, and once completed it never leaves.
type State struct {
	Completed  map[string]struct{}
	Failed     map[string]struct{}
	StartedAt  time.Time
	LastUpdate time.Time
}

// NewState creates an empty state stamped with the current time.
func NewState() *State {
	now := time.Now().UTC()
	return &State{
		Completed:  make(map[string]struct{}),
		Failed:     make(map[string]struct{}),
		StartedAt:  now,
		LastUpdate: now,
	}
}

// MarkCompleted records a successful task. A task that previously failed is
// moved out of the failed set. Recording the same success twice is a no-op.
func (s *State) MarkCompleted(id string) {
	delete(s.Failed, id)
	s.Completed[id] = struct{}{}
	s.LastUpdate = time.Now().UTC()
}

// MarkFailed records a permanently failed task for this run. Completed is
// sticky: marking a completed task failed is ignored.
func (s *State) MarkFailed(id string) {
	if _, ok := s.Completed[id]; ok {
		return
	}
	s.Failed[id] = struct{}{}
	s.LastUpdate = time.Now().UTC()
}

// IsCompleted reports whether the task has already been loaded.
func (s *State) IsCompleted(id string) bool {
	_, ok := s.Completed[id]
	return ok
}

// Residual returns the tasks not yet completed, in input order. Previously
// failed tasks stay in the residual set so a fresh run retries them.
func (s *State) Residual(all []source.Task) []source.Task {
	residual := make([]source.Task, 0, len(all))
	for _, t := range all {
		if !s.IsCompleted(t.ID) {
			residual = append(residual, t)
		}
	}
	return residual
}

// stateFile is the persisted form.
type stateFile struct {
	CompletedTaskIDs []string  `json:"completed_task_ids"`
	FailedTaskIDs    []string  `json:"failed_task_ids"`
	StartedAt        time.Time `json:"started_at"`
	LastUpdate       time.Time `json:"last_update"`
}

// Store persists a State at a well-known path.
type Store struct {
	path string
}

// NewStore creates a store for the checkpoint file at path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Exists reports whether a checkpoint has been persisted.
func (st *Store) Exists() bool {
	_, err := os.Stat(st.path)
	return err == nil
}

// Load reads the persisted state, or returns a fresh empty state when no
// checkpoint exists yet.
func (st *Store) Load() (*State, error) {
	data, err := os.ReadFile(st.path)
	if os.IsNotExist(err) {
		return NewState(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read checkpoint %s: %w", st.path, err)
	}

	var f stateFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse checkpoint %s: %w", st.path, err)
	}

	s := &State{
		Completed:  make(map[string]struct{}, len(f.CompletedTaskIDs)),
		Failed:     make(map[string]struct{}, len(f.FailedTaskIDs)),
		StartedAt:  f.StartedAt,
		LastUpdate: f.LastUpdate,
	}
	for _, id := range f.CompletedTaskIDs {
		s.Completed[id] = struct{}{}
	}
	for _, id := range f.FailedTaskIDs {
		// Completed wins if a corrupt file lists an id in both sets.
		if _, ok := s.Completed[id]; !ok {
			s.Failed[id] = struct{}{}
		}
	}
	return s, nil
}

// Flush persists the state atomically: the new content is written to a
// temporary file and renamed over the old one, so a crash mid-write never
// leaves a half-written checkpoint readable.
func (st *Store) Flush(s *State) error {
	f := stateFile{
		CompletedTaskIDs: sortedIDs(s.Completed),
		FailedTaskIDs:    sortedIDs(s.Failed),
		StartedAt:        s.StartedAt,
		LastUpdate:       s.LastUpdate,
	}

	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("encode checkpoint: %w", err)
	}

	dir := filepath.Dir(st.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(st.path)+".tmp*")
	if err != nil {
		return fmt.Errorf("create checkpoint temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write checkpoint: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close checkpoint temp file: %w", err)
	}
	if err := os.Rename(tmpName, st.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace checkpoint: %w", err)
	}
	return nil
}

// Reset discards the persisted checkpoint. Missing files are not an error.
func (st *Store) Reset() error {
	err := os.Remove(st.path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove checkpoint %s: %w", st.path, err)
	}
	return nil
}

func sortedIDs(set map[string]struct{}) []string {
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
