package session

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/bdougie/repcount/internal/counter"
	"github.com/bdougie/repcount/internal/metrics"
	"github.com/bdougie/repcount/internal/models"
	"github.com/bdougie/repcount/internal/pose"
	"github.com/bdougie/repcount/internal/storage"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func curlLandmarks(deg float64) pose.Landmarks {
	lms := make(pose.Landmarks, pose.NumLandmarks)
	rad := deg * math.Pi / 180
	lms[pose.LeftElbow] = pose.Point{X: 300, Y: 300}
	lms[pose.LeftShoulder] = pose.Point{X: 400, Y: 300}
	lms[pose.LeftWrist] = pose.Point{X: 300 + 100*math.Cos(rad), Y: 300 + 100*math.Sin(rad)}
	return lms
}

// curlTrace renders angles as a JSON Lines trace. NaN marks a frame with no
// detected pose.
func curlTrace(t *testing.T, angles ...float64) string {
	t.Helper()
	var b strings.Builder
	for _, a := range angles {
		var lms pose.Landmarks
		if !math.IsNaN(a) {
			lms = curlLandmarks(a)
		}
		line, err := json.Marshal(map[string]any{"landmarks": lms})
		require.NoError(t, err)
		b.Write(line)
		b.WriteByte('\n')
	}
	return b.String()
}

type memorySink struct {
	mu      sync.Mutex
	results []models.FrameResult
	summary *models.Summary
	flushed int
	failAt  int
}

func (s *memorySink) AddResult(_ context.Context, r models.FrameResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAt > 0 && len(s.results)+1 == s.failAt {
		return errors.New("disk full")
	}
	s.results = append(s.results, r)
	return nil
}

func (s *memorySink) SaveSummary(_ context.Context, summary models.Summary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.summary = &summary
	return nil
}

func (s *memorySink) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flushed++
	return nil
}

func newRunner(t *testing.T, cfg Config) *Runner {
	t.Helper()
	r, err := NewRunner(cfg)
	require.NoError(t, err)
	return r
}

func TestRunCountsCurls(t *testing.T) {
	nan := math.NaN()
	trace := curlTrace(t,
		320, 280, 220, nan, 200, 260, 315, // rep 1 with a gap
		300, 210, 330, // rep 2
		nan, nan, // no pose at the end
	)

	sink := &memorySink{}
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	var seen []int
	r := newRunner(t, Config{
		Kind:    counter.BicepCurl,
		Sink:    sink,
		Metrics: m,
		OnFrame: func(fr models.FrameResult) { seen = append(seen, fr.Count) },
	})

	summary, err := r.Run(context.Background(), NewTraceSource(strings.NewReader(trace)))
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Count)
	assert.Equal(t, counter.StageUp, summary.Stage)
	assert.Equal(t, 12, summary.Frames)
	assert.Equal(t, 3, summary.SkippedFrames)
	assert.False(t, summary.GoalReached)
	assert.Equal(t, r.ID(), summary.SessionID)
	assert.False(t, summary.EndedAt.Before(summary.StartedAt))

	require.Len(t, sink.results, 12)
	require.NotNil(t, sink.summary)
	assert.Equal(t, summary, *sink.summary)
	assert.Equal(t, 1, sink.flushed)

	var reps []int
	for _, fr := range sink.results {
		if fr.Rep {
			reps = append(reps, fr.Frame)
			assert.NotEmpty(t, fr.Landmarks)
		} else {
			assert.Empty(t, fr.Landmarks)
		}
	}
	assert.Equal(t, []int{7, 10}, reps)

	gap := sink.results[3]
	assert.False(t, gap.Detected)
	assert.InDelta(t, 220, gap.Metric, 1e-6, "gap frames keep the last reading")
	assert.Equal(t, "REPS 0", gap.Overlay.Reps)
	assert.Equal(t, "REPS 2", sink.results[11].Overlay.Reps)

	assert.Equal(t, []int{0, 0, 0, 0, 0, 0, 1, 1, 1, 2, 2, 2}, seen)

	assert.Equal(t, 12.0, testutil.ToFloat64(m.Frames.WithLabelValues("bicep-curl")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.SkippedFrames.WithLabelValues("bicep-curl")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Reps.WithLabelValues("bicep-curl")))
}

func TestRunStopsAtTarget(t *testing.T) {
	var angles []float64
	for i := 0; i < 5; i++ {
		angles = append(angles, 300, 200, 320)
	}

	sink := &memorySink{}
	r := newRunner(t, Config{Kind: counter.BicepCurl, TargetReps: 3, Sink: sink})

	summary, err := r.Run(context.Background(), NewTraceSource(strings.NewReader(curlTrace(t, angles...))))
	require.NoError(t, err)
	assert.True(t, summary.GoalReached)
	assert.Equal(t, 3, summary.Count)
	assert.Equal(t, 9, summary.Frames, "no frames are read past the goal")
}

func TestRunNoPose(t *testing.T) {
	nan := math.NaN()
	r := newRunner(t, Config{Kind: counter.Squat})

	summary, err := r.Run(context.Background(), NewTraceSource(strings.NewReader(curlTrace(t, nan, nan, nan, nan))))
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Count)
	assert.Equal(t, counter.StageNone, summary.Stage)
	assert.Equal(t, 4, summary.SkippedFrames)
}

type cancellingSource struct {
	frames []pose.Landmarks
	after  int
	cancel context.CancelFunc
	pos    int
}

func (s *cancellingSource) Next(ctx context.Context) (models.Frame, error) {
	if s.pos == s.after {
		s.cancel()
	}
	if err := ctx.Err(); err != nil {
		return models.Frame{}, err
	}
	if s.pos >= len(s.frames) {
		return models.Frame{}, io.EOF
	}
	s.pos++
	return models.Frame{Index: s.pos, Landmarks: s.frames[s.pos-1]}, nil
}

func (s *cancellingSource) Close() error { return nil }

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	src := &cancellingSource{
		frames: []pose.Landmarks{curlLandmarks(300), curlLandmarks(200), curlLandmarks(320), curlLandmarks(200), curlLandmarks(320)},
		after:  3,
		cancel: cancel,
	}
	sink := &memorySink{}
	r := newRunner(t, Config{Kind: counter.BicepCurl, Sink: sink})

	summary, err := r.Run(ctx, src)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, summary.Count)
	assert.Equal(t, 3, summary.Frames)
	require.NotNil(t, sink.summary, "summary is saved after cancellation")
	assert.Equal(t, 1, sink.summary.Count)
}

func TestRunSinkError(t *testing.T) {
	sink := &memorySink{failAt: 2}
	r := newRunner(t, Config{Kind: counter.BicepCurl, Sink: sink})

	summary, err := r.Run(context.Background(), NewTraceSource(strings.NewReader(curlTrace(t, 300, 200, 320))))
	assert.ErrorContains(t, err, "disk full")
	assert.Equal(t, 2, summary.Frames)
}

func TestRunBadTrace(t *testing.T) {
	r := newRunner(t, Config{Kind: counter.Squat})
	_, err := r.Run(context.Background(), NewTraceSource(strings.NewReader("{not json}\n")))
	assert.ErrorContains(t, err, "trace line 1")
}

func TestNewRunnerValidation(t *testing.T) {
	_, err := NewRunner(Config{Kind: counter.Kind(42)})
	assert.ErrorIs(t, err, counter.ErrUnknownKind)

	_, err = NewRunner(Config{Kind: counter.Squat, TargetReps: -2})
	assert.Error(t, err)

	r, err := NewRunner(Config{Kind: counter.Squat, SessionID: "fixed"})
	require.NoError(t, err)
	assert.Equal(t, "fixed", r.ID())
}

func TestTraceSource(t *testing.T) {
	input := `{"frame": 10, "landmarks": []}

{"landmarks": [{"x": 1, "y": 2}]}
`
	src := NewTraceSource(io.NopCloser(strings.NewReader(input)))
	defer src.Close()

	f, err := src.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 10, f.Index)
	assert.False(t, f.Landmarks.Detected())

	f, err = src.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, f.Index, "frames without an index are numbered in arrival order")
	assert.Equal(t, pose.Landmarks{{X: 1, Y: 2}}, f.Landmarks)

	_, err = src.Next(context.Background())
	assert.ErrorIs(t, err, io.EOF)
}

func TestOpenTraceStdin(t *testing.T) {
	orig := stdin
	t.Cleanup(func() { stdin = orig })
	live := &closeTracker{Reader: strings.NewReader(curlTrace(t, 300, 200, 320, 210, 330))}
	stdin = live

	src, err := OpenTrace(StdinPath)
	require.NoError(t, err)

	r := newRunner(t, Config{Kind: counter.BicepCurl})
	summary, err := r.Run(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Count)
	assert.Equal(t, 5, summary.Frames)

	require.NoError(t, src.Close())
	assert.False(t, live.closed, "stdin stays open")

	_, err = OpenTrace(filepath.Join(t.TempDir(), "missing.jsonl"))
	assert.Error(t, err)
}

type closeTracker struct {
	io.Reader
	closed bool
}

func (c *closeTracker) Close() error {
	c.closed = true
	return nil
}

type fakeDetector struct {
	poses map[string]pose.Landmarks
}

func (d fakeDetector) Detect(_ context.Context, path string) (pose.Landmarks, error) {
	lms, ok := d.poses[filepath.Base(path)]
	if !ok {
		return nil, errors.New("model crashed")
	}
	return lms, nil
}

func TestDirSource(t *testing.T) {
	dir := t.TempDir()
	names := []string{"frame_0001.jpg", "frame_0002.jpg", "frame_0003.jpg", "frame_0004.jpg"}
	for _, n := range names {
		require.NoError(t, os.WriteFile(filepath.Join(dir, n), []byte("jpeg"), 0644))
	}

	det := fakeDetector{poses: map[string]pose.Landmarks{
		"frame_0001.jpg": curlLandmarks(300),
		"frame_0002.jpg": curlLandmarks(200),
		"frame_0004.jpg": curlLandmarks(320),
	}}
	src, err := NewDirSource(dir, det, nil)
	require.NoError(t, err)
	assert.Equal(t, 4, src.Len())

	fileSink := storage.NewFileStorage(t.TempDir(), "dir-session")
	r := newRunner(t, Config{Kind: counter.BicepCurl, Sink: fileSink, SessionID: "dir-session"})

	summary, err := r.Run(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Count)
	assert.Equal(t, 1, summary.SkippedFrames, "detector failure is a skipped frame")

	results, err := fileSink.LoadResults()
	require.NoError(t, err)
	require.Len(t, results, 4)
	assert.Equal(t, "frame_0003.jpg", results[2].Path)
	assert.False(t, results[2].Detected)
	assert.True(t, results[3].Rep)
}

func TestDirSourceEmpty(t *testing.T) {
	_, err := NewDirSource(t.TempDir(), fakeDetector{}, nil)
	assert.Error(t, err)
}
