package registers

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	perrors "github.com/propmon-agent/pkg/errors"
	"github.com/propmon-agent/pkg/metrics"
	"github.com/propmon-agent/pkg/monitor"
	"github.com/propmon-agent/pkg/sink"
)

type fakeFetcher struct {
	mu      sync.Mutex
	sizes   []int
	failOn  map[int]error
	panicOn map[int]bool
	short   bool
	started chan struct{}
	release chan struct{}
}

func (f *fakeFetcher) Name() string { return "fake" }

func (f *fakeFetcher) FetchValues(ctx context.Context, items []monitor.WorkItem) ([]monitor.WorkItem, error) {
	f.mu.Lock()
	call := len(f.sizes)
	f.sizes = append(f.sizes, len(items))
	err := f.failOn[call]
	explode := f.panicOn[call]
	f.mu.Unlock()

	if explode {
		panic("fetcher exploded")
	}
	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.release != nil {
		<-f.release
	}
	if err != nil {
		return nil, err
	}

	out := make([]monitor.WorkItem, len(items))
	for i, it := range items {
		it.Value = monitor.FloatPtr(float64(i))
		it.Timestamp = time.Now()
		out[i] = it
	}
	if f.short {
		out = out[:len(out)-1]
	}
	return out, nil
}

func (f *fakeFetcher) callSizes() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.sizes...)
}

type recordingWriter struct {
	mu      sync.Mutex
	written []string
	fail    map[string]error
	panicOn string
}

func (w *recordingWriter) Write(_ context.Context, item monitor.WorkItem, _ time.Duration) (bool, error) {
	if item.Write.Path == w.panicOn {
		panic("sink exploded")
	}
	if err := w.fail[item.Write.Path]; err != nil {
		return false, err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.written = append(w.written, item.Write.Path)
	return true, nil
}

func (w *recordingWriter) paths() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.written...)
}

func newTestRegistry(t *testing.T, f Fetcher, w ItemWriter, chunk int) (*Registry, *metrics.WorkerMetrics) {
	t.Helper()
	wm := metrics.NewIsolatedFactory().NewWorkerMetrics()
	r, err := NewRegistry(context.Background(), WorkerOptions{
		ChunkSize: chunk,
		Fetcher:   f,
		Writer:    w,
		Metrics:   wm,
		Logger:    zap.NewNop(),
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = r.Shutdown(ctx)
	})
	return r, wm
}

func fill(w *IntervalWorker, n int) {
	for i := 0; i < n; i++ {
		w.Add(monitor.NewWorkItem("/e", "p", monitor.WriteSpec{Path: fmt.Sprintf("path-%d", i)}))
	}
}

func TestGetOrCreateConcurrentSamePeriod(t *testing.T) {
	r, _ := newTestRegistry(t, &fakeFetcher{}, &recordingWriter{}, 256)

	const callers = 100
	results := make([]*IntervalWorker, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			w, err := r.GetOrCreate(time.Hour)
			assert.NoError(t, err)
			results[i] = w
		}(i)
	}
	wg.Wait()

	for _, w := range results {
		assert.Same(t, results[0], w)
	}
	assert.Len(t, r.Workers(), 1)
	assert.Equal(t, int32(1), results[0].starts.Load())
	assert.True(t, results[0].Running())
}

func TestGetOrCreateDistinctPeriods(t *testing.T) {
	r, _ := newTestRegistry(t, &fakeFetcher{}, &recordingWriter{}, 256)

	a, err := r.GetOrCreate(time.Minute)
	require.NoError(t, err)
	b, err := r.GetOrCreate(5 * time.Minute)
	require.NoError(t, err)

	assert.NotSame(t, a, b)
	assert.Equal(t, "IntervalWorker-60", a.Name())
	assert.Equal(t, "IntervalWorker-300", b.Name())

	stats := r.Stats()
	require.Len(t, stats, 2)
	assert.Equal(t, int64(60), stats[0].PeriodSec)
	assert.Equal(t, int64(300), stats[1].PeriodSec)
}

func TestGetOrCreateRejectsInvalidPeriod(t *testing.T) {
	r, _ := newTestRegistry(t, &fakeFetcher{}, &recordingWriter{}, 256)
	_, err := r.GetOrCreate(0)
	assert.True(t, errors.Is(err, perrors.ErrUnknownCadence))
}

func TestNewRegistryRejectsBadOptions(t *testing.T) {
	_, err := NewRegistry(context.Background(), WorkerOptions{ChunkSize: 0, Fetcher: &fakeFetcher{}, Writer: &recordingWriter{}})
	assert.True(t, errors.Is(err, perrors.ErrConfigInvalid))

	_, err = NewRegistry(context.Background(), WorkerOptions{ChunkSize: 10})
	assert.True(t, errors.Is(err, perrors.ErrConfigInvalid))
}

func TestTickChunksFetchCalls(t *testing.T) {
	f := &fakeFetcher{}
	wr := &recordingWriter{}
	r, wm := newTestRegistry(t, f, wr, 256)
	w, err := r.GetOrCreate(time.Hour)
	require.NoError(t, err)

	fill(w, 600)
	assert.Equal(t, 600, w.QueueSize())

	assert.True(t, w.Tick(context.Background()))
	assert.Equal(t, []int{256, 256, 88}, f.callSizes())
	assert.Len(t, wr.paths(), 600)
	assert.Equal(t, 0, w.QueueSize())
	assert.Equal(t, 600.0, testutil.ToFloat64(wm.ItemsWritten.WithLabelValues("1h0m0s")))
}

func TestTickWithNothingPendingMakesNoCall(t *testing.T) {
	f := &fakeFetcher{}
	r, _ := newTestRegistry(t, f, &recordingWriter{}, 256)
	w, err := r.GetOrCreate(time.Hour)
	require.NoError(t, err)

	assert.True(t, w.Tick(context.Background()))
	assert.Empty(t, f.callSizes())
}

func TestChunkFetchFailureDoesNotStopOtherChunks(t *testing.T) {
	f := &fakeFetcher{failOn: map[int]error{1: fmt.Errorf("connection reset")}}
	wr := &recordingWriter{}
	r, wm := newTestRegistry(t, f, wr, 2)
	w, err := r.GetOrCreate(time.Hour)
	require.NoError(t, err)

	fill(w, 6)
	w.Tick(context.Background())

	assert.Equal(t, []int{2, 2, 2}, f.callSizes())
	assert.Equal(t, []string{"path-0", "path-1", "path-4", "path-5"}, wr.paths())
	assert.Equal(t, 1.0, testutil.ToFloat64(wm.ChunkErrors.WithLabelValues("1h0m0s")))
	assert.Equal(t, 0, w.QueueSize(), "dropped chunk is not requeued")
}

func TestShortFetchResultDropsChunk(t *testing.T) {
	f := &fakeFetcher{short: true}
	wr := &recordingWriter{}
	r, wm := newTestRegistry(t, f, wr, 10)
	w, err := r.GetOrCreate(time.Hour)
	require.NoError(t, err)

	fill(w, 3)
	w.Tick(context.Background())

	assert.Empty(t, wr.paths())
	assert.Equal(t, 1.0, testutil.ToFloat64(wm.ChunkErrors.WithLabelValues("1h0m0s")))
}

func TestItemWriteFailureDoesNotStopNextItem(t *testing.T) {
	wr := &recordingWriter{
		fail:    map[string]error{"path-0": perrors.NewError(perrors.ErrCodeSinkWrite, "rejected")},
		panicOn: "path-1",
	}
	r, wm := newTestRegistry(t, &fakeFetcher{}, wr, 256)
	w, err := r.GetOrCreate(time.Hour)
	require.NoError(t, err)

	fill(w, 3)
	w.Tick(context.Background())

	assert.Equal(t, []string{"path-2"}, wr.paths())
	assert.Equal(t, 2.0, testutil.ToFloat64(wm.ItemErrors.WithLabelValues("1h0m0s", "SINK_WRITE")))
}

func TestMalformedPathIsolatedEndToEnd(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	gauge := sink.NewGaugeSink("propmon", false)
	d, err := sink.NewDispatcher(gauge, sink.AbsentSkip)
	require.NoError(t, err)

	r, err := NewRegistry(context.Background(), WorkerOptions{
		ChunkSize: 256,
		Fetcher:   &fakeFetcher{},
		Writer:    d,
		Logger:    zap.New(core),
	})
	require.NoError(t, err)
	defer r.Shutdown(context.Background())

	w, err := r.GetOrCreate(time.Hour)
	require.NoError(t, err)
	w.Add(monitor.NewWorkItem("/e", "p", monitor.WriteSpec{Path: `{"type":"OTHER"}/bad`}))
	w.Add(monitor.NewWorkItem("/e", "p", monitor.WriteSpec{Path: `{"type":"METRIC_DATA","device":"d1"}/good`}))

	w.Tick(context.Background())

	assert.Equal(t, 1, gauge.Len())
	failures := logs.FilterMessage("write failed").All()
	require.Len(t, failures, 1)
	assert.Equal(t, `{"type":"OTHER"}/bad`, failures[0].ContextMap()["path"])
}

func TestTickIsNotReentrant(t *testing.T) {
	f := &fakeFetcher{started: make(chan struct{}, 1), release: make(chan struct{})}
	r, wm := newTestRegistry(t, f, &recordingWriter{}, 256)
	w, err := r.GetOrCreate(time.Hour)
	require.NoError(t, err)
	fill(w, 1)

	first := make(chan bool)
	go func() { first <- w.Tick(context.Background()) }()
	<-f.started

	fill(w, 1)
	assert.False(t, w.Tick(context.Background()), "second tick must be skipped while the first runs")
	assert.Equal(t, 1, w.QueueSize(), "items added during a tick wait for the next one")

	close(f.release)
	assert.True(t, <-first)
	assert.Equal(t, 1.0, testutil.ToFloat64(wm.TicksSkipped.WithLabelValues("1h0m0s")))
}

func TestTimerDrivenTick(t *testing.T) {
	wr := &recordingWriter{}
	r, _ := newTestRegistry(t, &fakeFetcher{}, wr, 256)
	w, err := r.GetOrCreate(20 * time.Millisecond)
	require.NoError(t, err)
	fill(w, 5)

	assert.Eventually(t, func() bool { return len(wr.paths()) == 5 }, 2*time.Second, 10*time.Millisecond)
}

func TestStartRevivesExitedLoop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var wg sync.WaitGroup
	w := newIntervalWorker(ctx, &wg, time.Second, WorkerOptions{
		ChunkSize: 1,
		Fetcher:   &fakeFetcher{},
		Writer:    &recordingWriter{},
		Metrics:   metrics.NewIsolatedFactory().NewWorkerMetrics(),
		Logger:    zap.NewNop(),
	})

	assert.True(t, w.Start())
	wg.Wait()
	assert.False(t, w.Running())

	assert.True(t, w.Start())
	wg.Wait()
	assert.Equal(t, int32(2), w.starts.Load())
}

func TestShutdownStopsLoops(t *testing.T) {
	r, err := NewRegistry(context.Background(), WorkerOptions{ChunkSize: 1, Fetcher: &fakeFetcher{}, Writer: &recordingWriter{}})
	require.NoError(t, err)
	w, err := r.GetOrCreate(time.Hour)
	require.NoError(t, err)

	require.NoError(t, r.Shutdown(context.Background()))
	assert.False(t, w.Running())
}

func TestFetcherPanicDropsOnlyItsChunk(t *testing.T) {
	f := &fakeFetcher{panicOn: map[int]bool{0: true}}
	wr := &recordingWriter{}
	r, wm := newTestRegistry(t, f, wr, 2)
	w, err := r.GetOrCreate(time.Minute)
	require.NoError(t, err)

	fill(w, 6)
	assert.True(t, w.Tick(context.Background()))

	assert.Equal(t, []int{2, 2, 2}, f.callSizes())
	assert.Len(t, wr.paths(), 4)
	assert.Equal(t, 1.0, testutil.ToFloat64(wm.ChunkErrors.WithLabelValues("1m0s")))
}
