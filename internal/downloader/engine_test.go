package downloader

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"mediagrab/pkg/config"
	errs "mediagrab/pkg/errors"
	"mediagrab/pkg/extract"
	"mediagrab/pkg/fetch"
	"mediagrab/pkg/logger"
	"mediagrab/pkg/retry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testEngine(t *testing.T, cfg Config) *Engine {
	t.Helper()
	client := fetch.NewClient(5*time.Second, fetch.WithLogger(logger.NewTestLogger()))
	if cfg.Backoff == nil {
		cfg.Backoff = &retry.ConstantBackoff{Delay: time.Millisecond}
	}
	return NewEngine(client, cfg, logger.NewTestLogger())
}

func payload(n int) []byte {
	return bytes.Repeat([]byte{0xAB}, n)
}

func TestAcquireSkipsExistingWithoutRequest(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.Write(payload(4096))
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "a.jpg")
	require.NoError(t, os.WriteFile(dest, []byte("already here"), 0o644))

	e := testEngine(t, Config{MaxAttempts: 3})
	res := e.Acquire(context.Background(), Task{URL: srv.URL + "/a.jpg", Dest: dest})

	assert.Equal(t, OutcomeSkipped, res.Outcome)
	assert.Zero(t, atomic.LoadInt32(&hits))
	data, _ := os.ReadFile(dest)
	assert.Equal(t, "already here", string(data))
}

func TestAcquireEmptyExistingFileIsReplaced(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(payload(4096))
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "a.jpg")
	require.NoError(t, os.WriteFile(dest, nil, 0o644))

	res := testEngine(t, Config{MaxAttempts: 1}).Acquire(context.Background(), Task{URL: srv.URL + "/a.jpg", Dest: dest})
	assert.Equal(t, OutcomeSuccess, res.Outcome)
	assert.Equal(t, int64(4096), res.Bytes)
}

func TestAcquireRetriesTransientStatus(t *testing.T) {
	var hits int32
	body := payload(10000)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "image/jpeg")
		w.Write(body)
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "sub", "b.jpg")
	res := testEngine(t, Config{MaxAttempts: 5, ImageFloor: 2048}).Acquire(context.Background(), Task{URL: srv.URL + "/b.jpg", Dest: dest})

	require.Equal(t, OutcomeSuccess, res.Outcome, "err: %v", res.Err)
	assert.Equal(t, 2, res.Retries)
	info, err := os.Stat(dest)
	require.NoError(t, err)
	assert.Equal(t, int64(len(body)), info.Size())
	assert.Equal(t, int64(len(body)), res.Bytes)
	_, err = os.Stat(dest + ".part")
	assert.True(t, os.IsNotExist(err))
}

func TestAcquireHTMLFailsWithoutRetry(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte("<html>blocked</html>"))
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "c.mp4")
	res := testEngine(t, Config{MaxAttempts: 5, RejectHTML: true}).Acquire(context.Background(), Task{URL: srv.URL + "/c.mp4", Dest: dest})

	assert.Equal(t, OutcomeFailed, res.Outcome)
	assert.Zero(t, res.Retries)
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
	assert.True(t, errs.Is(res.Err, errs.ErrorTypeContentMismatch))
	_, err := os.Stat(dest)
	assert.True(t, os.IsNotExist(err))
}

func TestAcquireBelowFloorIsDeleted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(payload(500))
	}))
	defer srv.Close()

	dir := t.TempDir()
	e := testEngine(t, Config{MaxAttempts: 3, ImageFloor: 2048, VideoFloor: 10 << 10})

	res := e.Acquire(context.Background(), Task{URL: srv.URL + "/d.jpg", Dest: filepath.Join(dir, "d.jpg")})
	assert.Equal(t, OutcomeFailed, res.Outcome)
	assert.Zero(t, res.Retries)
	assert.True(t, errs.Is(res.Err, errs.ErrorTypeValidation))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestAcquireVideoUsesHigherFloor(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(payload(4096))
	}))
	defer srv.Close()

	e := testEngine(t, Config{MaxAttempts: 1, ImageFloor: 2048, VideoFloor: 10 << 10})
	dir := t.TempDir()

	img := e.Acquire(context.Background(), Task{URL: srv.URL + "/e.jpg", Dest: filepath.Join(dir, "e.jpg")})
	assert.Equal(t, OutcomeSuccess, img.Outcome)

	vid := e.Acquire(context.Background(), Task{URL: srv.URL + "/e.mp4", Dest: filepath.Join(dir, "e.mp4"), Kind: extract.KindVideo})
	assert.Equal(t, OutcomeFailed, vid.Outcome)
}

func TestAcquireNotFoundIsTerminal(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	res := testEngine(t, Config{MaxAttempts: 4}).Acquire(context.Background(), Task{URL: srv.URL + "/gone.jpg", Dest: filepath.Join(t.TempDir(), "gone.jpg")})
	assert.Equal(t, OutcomeFailed, res.Outcome)
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
	assert.True(t, errs.Is(res.Err, errs.ErrorTypeNotFound))
}

func TestAcquireExhaustsAttempts(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	res := testEngine(t, Config{MaxAttempts: 3}).Acquire(context.Background(), Task{URL: srv.URL + "/x.jpg", Dest: filepath.Join(t.TempDir(), "x.jpg")})
	assert.Equal(t, OutcomeFailed, res.Outcome)
	assert.Equal(t, 2, res.Retries)
	assert.Equal(t, int32(3), atomic.LoadInt32(&hits))
	assert.Equal(t, errs.ErrorTypePermanent, errs.TypeOf(res.Err))
	assert.Contains(t, res.Err.Error(), "gave up after 3 attempts (transient)")

	var cause *errs.Error
	require.True(t, errors.As(errors.Unwrap(res.Err), &cause))
	assert.Equal(t, errs.ErrorTypeTransient, cause.Type)
}

func TestAcquireFirstFallsBack(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/broken.jpg", func(w http.ResponseWriter, r *http.Request) { http.NotFound(w, r) })
	mux.HandleFunc("/good.jpg", func(w http.ResponseWriter, r *http.Request) { w.Write(payload(3000)) })
	srv := httptest.NewServer(mux)
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "f.jpg")
	res := testEngine(t, Config{MaxAttempts: 2}).AcquireFirst(context.Background(),
		[]string{srv.URL + "/broken.jpg", srv.URL + "/good.jpg"}, Task{Dest: dest})

	require.Equal(t, OutcomeSuccess, res.Outcome)
	assert.Equal(t, srv.URL+"/good.jpg", res.URL)

	res = testEngine(t, Config{}).AcquireFirst(context.Background(), nil, Task{Dest: dest})
	assert.Equal(t, OutcomeFailed, res.Outcome)
	assert.True(t, errs.Is(res.Err, errs.ErrorTypeExtractionEmpty))
}

func TestConcurrentTasksSamePathDoNotCorrupt(t *testing.T) {
	body := payload(64 << 10)
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.Write(body)
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "same.jpg")
	e := testEngine(t, Config{MaxAttempts: 1})

	var wg sync.WaitGroup
	results := make([]Result, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = e.Acquire(context.Background(), Task{URL: srv.URL + "/same.jpg", Dest: dest})
		}(i)
	}
	wg.Wait()

	counts := map[Outcome]int{}
	for _, r := range results {
		counts[r.Outcome]++
	}
	assert.Equal(t, 1, counts[OutcomeSuccess])
	assert.Equal(t, 7, counts[OutcomeSkipped])
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, body, data)
}

func TestRenamePolicyPicksFreeNames(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(payload(2048))
	}))
	defer srv.Close()

	dir := t.TempDir()
	dest := filepath.Join(dir, "g.jpg")
	require.NoError(t, os.WriteFile(dest, []byte("original"), 0o644))

	e := testEngine(t, Config{MaxAttempts: 1, Overwrite: config.OverwriteRename})
	var wg sync.WaitGroup
	results := make([]Result, 3)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = e.Acquire(context.Background(), Task{URL: srv.URL + "/g.jpg", Dest: dest})
		}(i)
	}
	wg.Wait()

	paths := map[string]bool{}
	for _, r := range results {
		require.Equal(t, OutcomeSuccess, r.Outcome)
		paths[r.Path] = true
	}
	assert.Equal(t, map[string]bool{
		filepath.Join(dir, "g_1.jpg"): true,
		filepath.Join(dir, "g_2.jpg"): true,
		filepath.Join(dir, "g_3.jpg"): true,
	}, paths)
	data, _ := os.ReadFile(dest)
	assert.Equal(t, "original", string(data))
}

func TestOverwritePolicyReplaces(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(payload(2048))
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "h.jpg")
	require.NoError(t, os.WriteFile(dest, []byte("stale"), 0o644))

	res := testEngine(t, Config{MaxAttempts: 1, Overwrite: config.OverwriteReplace}).Acquire(context.Background(), Task{URL: srv.URL + "/h.jpg", Dest: dest})
	require.Equal(t, OutcomeSuccess, res.Outcome)
	info, _ := os.Stat(dest)
	assert.Equal(t, int64(2048), info.Size())
}

type fakeAcquirer struct {
	inFlight int32
	peak     int32
}

func (f *fakeAcquirer) AcquireFirst(_ context.Context, urls []string, t Task) Result {
	n := atomic.AddInt32(&f.inFlight, 1)
	for {
		p := atomic.LoadInt32(&f.peak)
		if n <= p || atomic.CompareAndSwapInt32(&f.peak, p, n) {
			break
		}
	}
	time.Sleep(5 * time.Millisecond)
	atomic.AddInt32(&f.inFlight, -1)
	return Result{Task: t, Outcome: OutcomeSuccess, URL: urls[0]}
}

func TestWorkerPoolProcessesAllJobs(t *testing.T) {
	f := &fakeAcquirer{}
	pool := NewWorkerPool(context.Background(), 2, f, logger.NewTestLogger())
	pool.Start()

	go func() {
		for i := 0; i < 6; i++ {
			assert.NoError(t, pool.Submit(Job{Task: Task{URL: "https://cdn.test/x.jpg"}}))
		}
		pool.Stop()
	}()

	count := 0
	for r := range pool.Results() {
		assert.Equal(t, OutcomeSuccess, r.Outcome)
		count++
	}
	assert.Equal(t, 6, count)
	assert.LessOrEqual(t, atomic.LoadInt32(&f.peak), int32(2))
	pool.Stop()
}
