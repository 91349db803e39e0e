package worker

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/profile-harvester/internal/profile"
	"github.com/JakeFAU/profile-harvester/internal/queue/memory"
	blobmem "github.com/JakeFAU/profile-harvester/internal/storage/memory"
)

// fakePage scrolls through a fixed list of offsets.
type fakePage struct {
	offsets []int64
	idx     int
	shots   int
	navErr  error
}

func (p *fakePage) Navigate(context.Context, string) error {
	p.idx = 0
	return p.navErr
}

func (p *fakePage) Screenshot(context.Context) ([]byte, error) {
	p.shots++
	return []byte{byte(p.shots)}, nil
}

func (p *fakePage) ScrollByViewport(context.Context) (int64, error) {
	if p.idx < len(p.offsets)-1 {
		p.idx++
	}
	return p.offsets[p.idx], nil
}

func (p *fakePage) ScrollOffset(context.Context) (int64, error) {
	return p.offsets[p.idx], nil
}

type fakeAnalyzer struct {
	mu    sync.Mutex
	fail  map[string]bool
	calls map[string]int
}

func (a *fakeAnalyzer) Analyze(_ context.Context, url string, shots [][]byte) (profile.Profile, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.calls == nil {
		a.calls = map[string]int{}
	}
	a.calls[url] = len(shots)
	if a.fail[url] {
		return profile.Profile{}, errors.New("vision unavailable")
	}
	return profile.Profile{URL: url, Name: "Person", Important: []string{"Go"}}, nil
}

type recordingObserver struct {
	mu   sync.Mutex
	errs map[string]error
}

func (r *recordingObserver) TargetDone(url string, _ int, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.errs == nil {
		r.errs = map[string]error{}
	}
	r.errs[url] = err
}

func TestWorkerProcessesTargetsAndArchivesScreenshots(t *testing.T) {
	t.Parallel()

	output, err := profile.NewOutputFile(filepath.Join(t.TempDir(), "profiles.json"))
	require.NoError(t, err)
	q := memory.NewQueue(4)
	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, profile.Target{URL: "https://www.linkedin.com/in/alice/"}))
	require.NoError(t, q.Enqueue(ctx, profile.Target{URL: "https://www.linkedin.com/in/bob"}))
	q.Close()

	blobs := blobmem.NewBlobStore()
	analyzer := &fakeAnalyzer{fail: map[string]bool{"https://www.linkedin.com/in/bob": true}}
	obs := &recordingObserver{}
	w := New(q, &fakePage{offsets: []int64{0, 800, 1600}}, analyzer, output,
		Config{ID: 1, RunID: "run-1", ArchivePrefix: "/shots/"},
		zap.NewNop(),
		WithBlobStore(blobs),
		WithObserver(obs),
	)

	require.NoError(t, w.Run(ctx))

	profiles, err := output.Load()
	require.NoError(t, err)
	require.Len(t, profiles, 1)
	assert.Equal(t, "https://www.linkedin.com/in/alice/", profiles[0].URL)

	assert.Equal(t, 3, analyzer.calls["https://www.linkedin.com/in/alice/"])
	assert.Contains(t, blobs.Paths(), "shots/run-1/alice/screenshot_1.png")
	assert.Contains(t, blobs.Paths(), "shots/run-1/alice/screenshot_3.png")
	assert.Equal(t, "image/png", blobs.ContentType("shots/run-1/alice/screenshot_1.png"))

	assert.NoError(t, obs.errs["https://www.linkedin.com/in/alice/"])
	assert.Error(t, obs.errs["https://www.linkedin.com/in/bob"])
}

func TestWorkerContinuesAfterNavigationFailure(t *testing.T) {
	t.Parallel()

	output, err := profile.NewOutputFile(filepath.Join(t.TempDir(), "profiles.json"))
	require.NoError(t, err)
	q := memory.NewQueue(1)
	require.NoError(t, q.Enqueue(context.Background(), profile.Target{URL: "https://www.linkedin.com/in/carol"}))
	q.Close()

	obs := &recordingObserver{}
	w := New(q, &fakePage{offsets: []int64{0}, navErr: errors.New("net::ERR_TIMED_OUT")}, &fakeAnalyzer{}, output,
		Config{RunID: "run"}, nil, WithObserver(obs))
	require.NoError(t, w.Run(context.Background()))
	assert.ErrorContains(t, obs.errs["https://www.linkedin.com/in/carol"], "ERR_TIMED_OUT")

	profiles, err := output.Load()
	require.NoError(t, err)
	assert.Empty(t, profiles)
}

type denyLimiter struct{}

func (denyLimiter) Wait(context.Context, string) error { return errors.New("limiter closed") }

func TestWorkerStopsOnCancelAndHonorsLimiter(t *testing.T) {
	t.Parallel()

	output, err := profile.NewOutputFile(filepath.Join(t.TempDir(), "profiles.json"))
	require.NoError(t, err)
	q := memory.NewQueue(1)
	require.NoError(t, q.Enqueue(context.Background(), profile.Target{URL: "https://www.linkedin.com/in/dan"}))

	obs := &recordingObserver{}
	page := &fakePage{offsets: []int64{0}}
	ctx, cancel := context.WithCancel(context.Background())
	w := New(q, page, &fakeAnalyzer{}, output, Config{}, zap.NewNop(),
		WithLimiter(denyLimiter{}), WithObserver(obs))

	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	require.Eventually(t, func() bool {
		obs.mu.Lock()
		defer obs.mu.Unlock()
		return obs.errs["https://www.linkedin.com/in/dan"] != nil
	}, time.Second, 5*time.Millisecond)
	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
	assert.Zero(t, page.shots)
}
