package checkpoint

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/TomerMadmon/md5-cracker/internal/source"
)

func TestStateMarks(t *testing.T) {
	s := NewState()

	s.MarkFailed("a")
	require.False(t, s.IsCompleted("a"))

	// A later success moves the task out of the failed set.
	s.MarkCompleted("a")
	require.True(t, s.IsCompleted("a"))
	require.Empty(t, s.Failed)

	// Completed is sticky.
	s.MarkFailed("a")
	require.True(t, s.IsCompleted("a"))
	require.Empty(t, s.Failed)

	s.MarkCompleted("a")
	require.Len(t, s.Completed, 1)
}

func TestStateResidual(t *testing.T) {
	s := NewState()
	s.MarkCompleted("b")
	s.MarkFailed("c")

	all := []source.Task{{ID: "a"}, {ID: "b"}, {ID: "c"}, {ID: "d"}}
	residual := s.Residual(all)

	// Failed tasks stay in the residual set; input order is preserved.
	require.Equal(t, []source.Task{{ID: "a"}, {ID: "c"}, {ID: "d"}}, residual)
}

func TestStoreLoadFresh(t *testing.T) {
	st := NewStore(filepath.Join(t.TempDir(), "checkpoint.json"))
	require.False(t, st.Exists())

	s, err := st.Load()
	require.NoError(t, err)
	require.Empty(t, s.Completed)
	require.Empty(t, s.Failed)
}

func TestStoreFlushLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "checkpoint.json")
	st := NewStore(path)

	s := NewState()
	s.MarkCompleted("part_0001.csv")
	s.MarkCompleted("part_0003.csv")
	s.MarkFailed("part_0002.csv")

	require.NoError(t, st.Flush(s))
	require.True(t, st.Exists())

	loaded, err := st.Load()
	require.NoError(t, err)
	require.True(t, loaded.IsCompleted("part_0001.csv"))
	require.True(t, loaded.IsCompleted("part_0003.csv"))
	require.False(t, loaded.IsCompleted("part_0002.csv"))
	require.Contains(t, loaded.Failed, "part_0002.csv")
}

func TestStoreFlushWritesSortedIDs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "checkpoint.json")
	st := NewStore(path)

	s := NewState()
	s.MarkCompleted("z.csv")
	s.MarkCompleted("a.csv")
	s.MarkCompleted("m.csv")
	require.NoError(t, st.Flush(s))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var f stateFile
	require.NoError(t, json.Unmarshal(data, &f))
	require.Equal(t, []string{"a.csv", "m.csv", "z.csv"}, f.CompletedTaskIDs)
}

func TestStoreFlushLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	st := NewStore(filepath.Join(dir, "checkpoint.json"))

	require.NoError(t, st.Flush(NewState()))
	require.NoError(t, st.Flush(NewState()))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "checkpoint.json", entries[0].Name())
}

func TestStoreLoadCompletedWinsOverFailed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "checkpoint.json")
	data := []byte(`{
		"completed_task_ids": ["a.csv"],
		"failed_task_ids": ["a.csv", "b.csv"]
	}`)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	s, err := NewStore(path).Load()
	require.NoError(t, err)
	require.True(t, s.IsCompleted("a.csv"))
	require.NotContains(t, s.Failed, "a.csv")
	require.Contains(t, s.Failed, "b.csv")
}

func TestStoreLoadCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "checkpoint.json")
	require.NoError(t, os.WriteFile(path, []byte("{truncated"), 0o644))

	_, err := NewStore(path).Load()
	require.Error(t, err)
}

func TestStoreReset(t *testing.T) {
	path := filepath.Join(t.TempDir(), "checkpoint.json")
	st := NewStore(path)

	// Resetting a missing checkpoint is fine.
	require.NoError(t, st.Reset())

	require.NoError(t, st.Flush(NewState()))
	require.True(t, st.Exists())
	require.NoError(t, st.Reset())
	require.False(t, st.Exists())
}
