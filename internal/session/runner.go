// Package session drives the repetition counter over a stream of frames.
//
// A Runner owns one counter state for the lifetime of a session and processes
// frames strictly one at a time, in the order the source yields them.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/bdougie/repcount/internal/counter"
	"github.com/bdougie/repcount/internal/metrics"
	"github.com/bdougie/repcount/internal/models"
	"github.com/bdougie/repcount/internal/storage"
)

// Config holds the dependencies of a Runner.
type Config struct {
	SessionID  string
	Kind       counter.Kind
	TargetReps int
	Counter    *counter.Counter
	Sink       storage.Storage
	Metrics    *metrics.Metrics
	Logger     *slog.Logger
	// OnFrame, when set, is called with every frame result
	OnFrame func(models.FrameResult)
}

// Runner processes one session.
type Runner struct {
	id         string
	kind       counter.Kind
	targetReps int
	counter    *counter.Counter
	sink       storage.Storage
	metrics    *metrics.Metrics
	logger     *slog.Logger
	onFrame    func(models.FrameResult)
	now        func() time.Time
}

// NewRunner validates cfg and fills in defaults.
func NewRunner(cfg Config) (*Runner, error) {
	c := cfg.Counter
	if c == nil {
		var err error
		if c, err = counter.New(nil); err != nil {
			return nil, err
		}
	}
	if _, ok := c.Rule(cfg.Kind); !ok {
		return nil, fmt.Errorf("%w: %v", counter.ErrUnknownKind, cfg.Kind)
	}
	if cfg.TargetReps < 0 {
		return nil, errors.New("target reps must not be negative")
	}

	r := &Runner{
		id:         cfg.SessionID,
		kind:       cfg.Kind,
		targetReps: cfg.TargetReps,
		counter:    c,
		sink:       cfg.Sink,
		metrics:    cfg.Metrics,
		logger:     cfg.Logger,
		onFrame:    cfg.OnFrame,
		now:        time.Now,
	}
	if r.id == "" {
		r.id = uuid.NewString()
	}
	if r.sink == nil {
		r.sink = storage.Discard{}
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	r.logger = r.logger.With("session", r.id, "exercise", r.kind.String())
	return r, nil
}

// ID returns the session ID.
func (r *Runner) ID() string {
	return r.id
}

// Run reads src until it is exhausted, the target is reached or ctx is
// cancelled. The summary is returned in every case; on cancellation it is
// accompanied by ctx.Err().
func (r *Runner) Run(ctx context.Context, src Source) (models.Summary, error) {
	summary := models.Summary{
		SessionID:  r.id,
		Exercise:   r.kind,
		TargetReps: r.targetReps,
		StartedAt:  r.now(),
	}
	state := counter.NewState()

	r.logger.Info("session started", "target_reps", r.targetReps)

	runErr := r.loop(ctx, src, &state, &summary)

	summary.Count = state.Count
	summary.Stage = state.Stage
	summary.EndedAt = r.now()

	if err := r.finish(ctx, summary); err != nil {
		runErr = errors.Join(runErr, err)
	}

	r.logger.Info("session ended",
		"reps", summary.Count,
		"frames", summary.Frames,
		"skipped", summary.SkippedFrames,
		"goal_reached", summary.GoalReached,
	)
	return summary, runErr
}

func (r *Runner) loop(ctx context.Context, src Source, state *counter.State, summary *models.Summary) error {
	for {
		frame, err := src.Next(ctx)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		prev := state.Count
		next, m, measured := r.counter.Advance(r.kind, frame.Landmarks, *state)
		*state = next
		rep := next.Count > prev

		summary.Frames++
		if !measured {
			summary.SkippedFrames++
		}
		r.metrics.Observe(r.kind.String(), !measured, rep)

		result := models.FrameResult{
			Frame:    frame.Index,
			Path:     frame.Path,
			Detected: measured,
			Stage:    next.Stage,
			Count:    next.Count,
			Metric:   m,
			Overlay:  counter.DisplayText(next),
			Rep:      rep,
		}
		if rep {
			result.Landmarks = frame.Landmarks
			r.logger.Debug("rep counted", "count", next.Count, "frame", frame.Index, "metric", m)
		}

		if err := r.sink.AddResult(ctx, result); err != nil {
			return fmt.Errorf("frame %d: %w", frame.Index, err)
		}
		if r.onFrame != nil {
			r.onFrame(result)
		}

		if r.targetReps > 0 && next.Count >= r.targetReps {
			summary.GoalReached = true
			return nil
		}
	}
}

func (r *Runner) finish(ctx context.Context, summary models.Summary) error {
	// results are persisted even when the session was cancelled
	ctx = context.WithoutCancel(ctx)

	if err := r.sink.Flush(); err != nil {
		return fmt.Errorf("failed to flush final results: %w", err)
	}
	if err := r.sink.SaveSummary(ctx, summary); err != nil {
		return fmt.Errorf("failed to save summary: %w", err)
	}
	return nil
}
