package infra

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTaskStore(t *testing.T) (*EncryptedTaskStore, string, []byte) {
	t.Helper()
	dir := t.TempDir()
	key, err := GenerateKey()
	require.NoError(t, err)

	store, err := NewEncryptedTaskStore(dir, key)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store, dir, key
}

// TestTaskStore_AddAndList verifies basic CRUD
func TestTaskStore_AddAndList(t *testing.T) {
	store, _, _ := newTestTaskStore(t)

	first, err := store.Add("read chapter 4")
	require.NoError(t, err)
	assert.Positive(t, first.ID)
	assert.False(t, first.Done)

	second, err := store.Add("write summary")
	require.NoError(t, err)
	assert.Greater(t, second.ID, first.ID)

	tasks, err := store.List()
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.Equal(t, "read chapter 4", tasks[0].Text)
	assert.Equal(t, "write summary", tasks[1].Text)
}

// TestTaskStore_EmptyTextRejected verifies input validation
func TestTaskStore_EmptyTextRejected(t *testing.T) {
	store, _, _ := newTestTaskStore(t)

	_, err := store.Add("")
	assert.Error(t, err)
}

// TestTaskStore_Complete verifies done marking and missing-ID errors
func TestTaskStore_Complete(t *testing.T) {
	store, _, _ := newTestTaskStore(t)
	task, err := store.Add("review notes")
	require.NoError(t, err)

	require.NoError(t, store.Complete(task.ID))

	tasks, err := store.List()
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.True(t, tasks[0].Done)

	assert.Error(t, store.Complete(9999))
}

// TestTaskStore_Remove verifies deletion and missing-ID errors
func TestTaskStore_Remove(t *testing.T) {
	store, _, _ := newTestTaskStore(t)
	task, err := store.Add("obsolete item")
	require.NoError(t, err)

	require.NoError(t, store.Remove(task.ID))

	tasks, err := store.List()
	require.NoError(t, err)
	assert.Empty(t, tasks)

	assert.Error(t, store.Remove(task.ID))
}

// TestTaskStore_SurvivesReopen verifies persistence across connections
func TestTaskStore_SurvivesReopen(t *testing.T) {
	store, dir, key := newTestTaskStore(t)
	_, err := store.Add("persistent task")
	require.NoError(t, err)
	require.NoError(t, store.Close())

	reopened, err := NewEncryptedTaskStore(dir, key)
	require.NoError(t, err)
	defer reopened.Close()

	tasks, err := reopened.List()
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, "persistent task", tasks[0].Text)
}

// TestTaskStore_WrongKeyFails verifies the database is actually encrypted
func TestTaskStore_WrongKeyFails(t *testing.T) {
	store, dir, _ := newTestTaskStore(t)
	_, err := store.Add("secret task")
	require.NoError(t, err)
	require.NoError(t, store.Close())

	wrongKey, err := GenerateKey()
	require.NoError(t, err)

	reopened, err := NewEncryptedTaskStore(dir, wrongKey)
	if err == nil {
		defer reopened.Close()
		_, err = reopened.List()
	}
	assert.Error(t, err)
}
