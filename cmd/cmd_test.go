package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/profile-harvester/internal/app"
	"github.com/JakeFAU/profile-harvester/internal/checkpoint"
	"github.com/JakeFAU/profile-harvester/internal/config"
	"github.com/JakeFAU/profile-harvester/internal/crawler"
	"github.com/JakeFAU/profile-harvester/internal/profile"
	blobmem "github.com/JakeFAU/profile-harvester/internal/storage/memory"
)

func snapshotWith(urls ...string) crawler.Snapshot {
	records := make([]crawler.Record, 0, len(urls))
	for _, u := range urls {
		records = append(records, crawler.Record{Key: u, URL: u})
	}
	return crawler.Snapshot{
		Timestamp:  time.Unix(1700000000, 0).UTC(),
		TotalCount: len(records),
		Pages:      map[string][]crawler.Record{crawler.PageName(1): records},
	}
}

func TestOpenCheckpointsSavesToEveryBackend(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	blobs := blobmem.NewBlobStore()
	cps, err := openCheckpoints(config.CheckpointConfig{
		Backends:   []string{"file", "blob", "sqlite"},
		Path:       filepath.Join(dir, "state.json"),
		BlobPath:   "checkpoints/state.json",
		SQLitePath: filepath.Join(dir, "state.db"),
	}, blobs)
	require.NoError(t, err)
	defer func() { require.NoError(t, cps.Close()) }()
	require.Len(t, cps.saver, 3)

	snap := snapshotWith("https://example.com/in/a", "https://example.com/in/b")
	require.NoError(t, cps.saver.Save(context.Background(), snap))

	fromFile, err := checkpoint.Load(filepath.Join(dir, "state.json"))
	require.NoError(t, err)
	assert.Equal(t, 2, fromFile.TotalCount)
	assert.Contains(t, blobs.Paths(), "checkpoints/state.json")

	state, err := cps.resumeState(context.Background(), zap.NewNop())
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.Equal(t, 2, state.TotalCount())
}

func TestResumeStateSkipsEmptyBackends(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	blobs := blobmem.NewBlobStore()
	cps, err := openCheckpoints(config.CheckpointConfig{
		Backends: []string{"file", "blob"},
		Path:     filepath.Join(dir, "missing.json"),
		BlobPath: "checkpoints/state.json",
	}, blobs)
	require.NoError(t, err)

	state, err := cps.resumeState(context.Background(), zap.NewNop())
	require.NoError(t, err)
	assert.Nil(t, state)

	data, err := json.Marshal(snapshotWith("https://example.com/in/c"))
	require.NoError(t, err)
	_, err = blobs.PutObject(context.Background(), "checkpoints/state.json", "application/json", bytes.NewReader(data))
	require.NoError(t, err)

	state, err = cps.resumeState(context.Background(), zap.NewNop())
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.True(t, state.Seen().Contains("https://example.com/in/c"))
}

func TestOpenCheckpointsRejectsUnknownBackend(t *testing.T) {
	t.Parallel()

	_, err := openCheckpoints(config.CheckpointConfig{Backends: []string{"s3"}}, blobmem.NewBlobStore())
	require.Error(t, err)
}

func TestWriteProfileURLsSkipsRecordsWithoutURL(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "urls.txt")
	err := writeProfileURLs(path, []crawler.Record{
		{Key: "a", URL: "https://example.com/in/a"},
		{Key: "Jane Doe"},
		{Key: "b", URL: "https://example.com/in/b"},
	})
	require.NoError(t, err)

	targets, err := profile.ReadTargets(path)
	require.NoError(t, err)
	require.Len(t, targets, 2)
	assert.Equal(t, "https://example.com/in/b", targets[1].URL)

	require.NoError(t, writeProfileURLs("", nil))
}

func TestPendingTargetsDropsStoredAndDuplicateURLs(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	input := filepath.Join(dir, "urls.txt")
	require.NoError(t, profile.WriteTargets(input, []string{
		"https://example.com/in/a",
		"https://example.com/in/b",
		"https://example.com/in/b",
		"https://example.com/in/c",
	}))
	out, err := profile.NewOutputFile(filepath.Join(dir, "profiles.json"))
	require.NoError(t, err)
	_, err = out.Append(profile.Profile{URL: "https://example.com/in/a", Name: "A"})
	require.NoError(t, err)

	pending, err := pendingTargets(input, out)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "https://example.com/in/b", pending[0].URL)
	assert.Equal(t, "https://example.com/in/c", pending[1].URL)
}

func TestLoadItemsFromCheckpoint(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "state.json")
	f, err := checkpoint.NewFile(path)
	require.NoError(t, err)
	require.NoError(t, f.Save(context.Background(), snapshotWith("https://example.com/in/a")))

	items, err := loadItems(config.EmbeddingConfig{Source: "checkpoint", Input: path})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "https://example.com/in/a", items[0].ID)

	_, err = loadItems(config.EmbeddingConfig{Source: "nowhere"})
	require.Error(t, err)
}

func TestNewEmbedderSelectsProvider(t *testing.T) {
	t.Parallel()

	_, err := newEmbedder(config.EmbeddingConfig{Provider: "openai"})
	require.Error(t, err, "openai requires an api key")

	e, err := newEmbedder(config.EmbeddingConfig{Provider: "ollama", Model: "nomic-embed-text"})
	require.NoError(t, err)
	assert.NotNil(t, e)

	_, err = newEmbedder(config.EmbeddingConfig{Provider: "cohere"})
	require.Error(t, err)
}

func TestOpenVectorSinkMemory(t *testing.T) {
	t.Parallel()

	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.VectorStore.Backend = "memory"
	sink, release, err := openVectorSink(context.Background(), cfg)
	require.NoError(t, err)
	defer release()
	require.NoError(t, sink.Upsert(context.Background(), nil))
}

func TestEmbedCommandEndToEnd(t *testing.T) {
	ollama := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/embeddings", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"embedding":[0.1,0.2,0.3]}`))
	}))
	defer ollama.Close()

	dir := t.TempDir()
	profilesPath := filepath.Join(dir, "profiles.json")
	out, err := profile.NewOutputFile(profilesPath)
	require.NoError(t, err)
	for _, p := range []profile.Profile{
		{URL: "https://example.com/in/a", Name: "A", Important: []string{"Go"}, AllDetails: "Backend engineer"},
		{URL: "https://example.com/in/b", Name: "B", Important: []string{"Rust"}, AllDetails: "Systems engineer"},
	} {
		_, err := out.Append(p)
		require.NoError(t, err)
	}

	vectorsPath := filepath.Join(dir, "embeddings.json")
	cfgPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`
storage:
  backend: memory
embedding:
  provider: ollama
  model: nomic-embed-text
  base_url: `+ollama.URL+`
  source: profiles
  input: `+profilesPath+`
  dimensions: 3
  requests_per_second: 0
vectorstore:
  backend: file
  file_path: `+vectorsPath+`
`), 0o600))

	original := newApp
	newApp = func(ctx context.Context, cfg config.Config, logger *zap.Logger) (*app.App, error) {
		return app.NewApp(ctx, cfg, zap.NewNop(), app.WithRegisterer(prometheus.NewRegistry()))
	}
	t.Cleanup(func() { newApp = original })

	root := newRootCmd()
	root.SetArgs([]string{"--config", cfgPath, "embed"})
	require.NoError(t, root.ExecuteContext(context.Background()))

	data, err := os.ReadFile(vectorsPath)
	require.NoError(t, err)
	var entries []struct {
		URL       string    `json:"url"`
		Embedding []float32 `json:"embedding"`
	}
	require.NoError(t, json.Unmarshal(data, &entries))
	require.Len(t, entries, 2)
	assert.Equal(t, "https://example.com/in/a", entries[0].URL)
	assert.Len(t, entries[0].Embedding, 3)
}

func TestRootRejectsInvalidConfig(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("browser:\n  mode: lynx\n"), 0o600))

	root := newRootCmd()
	root.SetArgs([]string{"--config", cfgPath, "crawl"})
	root.SetOut(new(nopWriter))
	root.SetErr(new(nopWriter))
	err := root.ExecuteContext(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "browser.mode")
}

type nopWriter struct{}

func (*nopWriter) Write(p []byte) (int, error) { return len(p), nil }
