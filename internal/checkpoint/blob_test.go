package checkpoint

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/profile-harvester/internal/crawler"
	"github.com/JakeFAU/profile-harvester/internal/storage/memory"
)

type failingStore struct{}

func (failingStore) PutObject(context.Context, string, string, io.Reader) (string, error) {
	return "", errors.New("bucket unavailable")
}

func (failingStore) GetObject(context.Context, string) (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader([]byte("{not json"))), nil
}

func TestBlobSaveAndLoad(t *testing.T) {
	t.Parallel()

	store := memory.NewBlobStore()
	cp, err := NewBlob(store, "runs/r1/records.json")
	require.NoError(t, err)

	isNotFound := func(err error) bool { return errors.Is(err, memory.ErrNotFound) }
	_, err = cp.Load(context.Background(), isNotFound)
	require.ErrorIs(t, err, ErrNoCheckpoint)

	snap := snapshotOf(t, []string{"a"}, []string{"b", "c"})
	require.NoError(t, cp.Save(context.Background(), snap))
	assert.Equal(t, "memory://runs/r1/records.json", cp.URI())
	assert.Equal(t, "application/json", store.ContentType("runs/r1/records.json"))

	loaded, err := cp.Load(context.Background(), isNotFound)
	require.NoError(t, err)
	assert.Equal(t, snap.Pages, loaded.Pages)
	assert.Equal(t, 3, loaded.TotalCount)
}

func TestBlobErrors(t *testing.T) {
	t.Parallel()

	_, err := NewBlob(nil, "x")
	require.Error(t, err)
	_, err = NewBlob(memory.NewBlobStore(), "")
	require.Error(t, err)

	cp, err := NewBlob(failingStore{}, "records.json")
	require.NoError(t, err)
	err = cp.Save(context.Background(), snapshotOf(t, []string{"a"}))
	require.ErrorIs(t, err, crawler.ErrPersistence)

	_, err = cp.Load(context.Background(), nil)
	require.Error(t, err)
}

func TestMultiAttemptsEveryBackend(t *testing.T) {
	t.Parallel()

	store := memory.NewBlobStore()
	good, err := NewBlob(store, "records.json")
	require.NoError(t, err)
	bad, err := NewBlob(failingStore{}, "records.json")
	require.NoError(t, err)

	err = Multi{bad, good}.Save(context.Background(), snapshotOf(t, []string{"a"}))
	require.ErrorIs(t, err, crawler.ErrPersistence)
	assert.Equal(t, []string{"records.json"}, store.Paths())
}

func TestMeasuredPassesThrough(t *testing.T) {
	t.Parallel()

	store := memory.NewBlobStore()
	inner, err := NewBlob(store, "run/records.json")
	require.NoError(t, err)

	require.NoError(t, Measured{Backend: "memory", Next: inner}.Save(context.Background(), snapshotOf(t, []string{"a"})))
	assert.Equal(t, []string{"run/records.json"}, store.Paths())

	bad, err := NewBlob(failingStore{}, "records.json")
	require.NoError(t, err)
	err = Measured{Backend: "memory", Next: bad}.Save(context.Background(), snapshotOf(t, []string{"a"}))
	require.ErrorIs(t, err, crawler.ErrPersistence)
}
