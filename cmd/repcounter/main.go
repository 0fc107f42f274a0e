package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/lmittmann/tint"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/bdougie/repcount/internal/config"
	"github.com/bdougie/repcount/internal/counter"
	"github.com/bdougie/repcount/internal/extractor"
	"github.com/bdougie/repcount/internal/metrics"
	"github.com/bdougie/repcount/internal/models"
	"github.com/bdougie/repcount/internal/pose"
	"github.com/bdougie/repcount/internal/session"
	"github.com/bdougie/repcount/internal/storage"
)

func main() {
	configPath := flag.String("config", "", "path for the TOML config file")
	exercise := flag.String("exercise", "", "exercise [push-up | squat | bicep-curl | shoulder-press]")
	input := flag.String("input", "", "trace file, video file or frame directory (- reads a trace from stdin)")
	mode := flag.String("mode", "", "input mode [trace | video | frames]")
	target := flag.Int("target", 0, "stop after this many reps (0 = no target)")
	output := flag.String("output", "", "directory for frame results")
	detector := flag.String("detector", "", "pose detector command, called with the frame path")
	metricsAddr := flag.String("metrics-addr", "", "serve prometheus metrics on this address")
	logLevel := flag.String("log-level", "", "log level [debug | info | warn | error]")
	initSchema := flag.Bool("init-schema", false, "create the postgres schema before running")
	similar := flag.Int("similar", 0, "list this many stored reps closest to the last credited pose (needs postgres)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	// Flags override the file
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "exercise":
			cfg.Exercise = *exercise
		case "input":
			cfg.Input.Path = *input
		case "mode":
			cfg.Input.Mode = *mode
		case "target":
			cfg.TargetReps = *target
		case "output":
			cfg.OutputDir = *output
		case "detector":
			cfg.Detector.Command = *detector
		case "metrics-addr":
			cfg.MetricsAddr = *metricsAddr
		case "log-level":
			cfg.LogLevel = *logLevel
		}
	})

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		fmt.Fprintln(os.Stderr, "Usage: repcounter --input trace.jsonl --exercise squat [--config config.toml]")
		fmt.Fprintln(os.Stderr, "       detector | repcounter --input - --exercise squat")
		os.Exit(1)
	}

	level, _ := config.ParseLevel(cfg.LogLevel)

	// Configure logger
	logger := slog.New(
		tint.NewHandler(os.Stderr, &tint.Options{
			Level:      level,
			TimeFormat: "15:04:05",
		}),
	)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := runOptions{initSchema: *initSchema, similar: *similar, out: os.Stdout}
	if err := run(ctx, cfg, logger, opts); err != nil {
		logger.Error("session failed", "err", err)
		os.Exit(1)
	}
}

type runOptions struct {
	initSchema bool
	similar    int
	out        io.Writer
}

// repSearcher ranks stored reps by pose similarity
type repSearcher interface {
	SearchSimilarReps(ctx context.Context, lms pose.Landmarks, limit int) ([]models.RepSearchResult, error)
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts runOptions) error {
	kind, err := cfg.Kind()
	if err != nil {
		return err
	}
	table, err := cfg.Table()
	if err != nil {
		return err
	}
	counterOpts := []counter.Option{counter.WithMinVisibility(cfg.Detector.MinVisibility)}
	if w, h, ok := cfg.Input.FrameSize(); ok {
		counterOpts = append(counterOpts, counter.WithFrameSize(w, h))
	}
	repCounter, err := counter.New(table, counterOpts...)
	if err != nil {
		return err
	}

	sessionID := uuid.NewString()

	// Initialize the storage
	sinks := storage.Multi{storage.NewFileStorage(cfg.OutputDir, sessionID)}
	var searcher repSearcher
	if cfg.Postgres.Enabled() {
		if opts.initSchema {
			if err := storage.InitSchema(ctx, cfg.Postgres); err != nil {
				return err
			}
		}
		pg, err := storage.NewPostgresStorage(ctx, cfg.Postgres, sessionID, kind, logger,
			storage.WithPoseVisibility(cfg.Detector.MinVisibility))
		if err != nil {
			return err
		}
		defer pg.Close()
		sinks = append(sinks, pg)
		searcher = pg
	} else if opts.similar > 0 {
		logger.Warn("similar rep search needs postgres, skipping")
	}

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	if cfg.MetricsAddr != "" {
		go func() {
			if err := metrics.Serve(ctx, logger, cfg.MetricsAddr, reg); err != nil {
				logger.Error("metrics server failed", "err", err)
			}
		}()
	}

	src, err := openSource(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer src.Close()

	var lastRep pose.Landmarks

	runner, err := session.NewRunner(session.Config{
		SessionID:  sessionID,
		Kind:       kind,
		TargetReps: cfg.TargetReps,
		Counter:    repCounter,
		Sink:       sinks,
		Metrics:    m,
		Logger:     logger,
		OnFrame: func(r models.FrameResult) {
			if r.Rep {
				lastRep = r.Landmarks
				logger.Info(r.Overlay.Reps, "frame", r.Frame, "angle", r.Overlay.Angle)
			}
		},
	})
	if err != nil {
		return err
	}

	summary, runErr := runner.Run(ctx, src)
	if err := finishSession(opts.out, logger, summary, runErr); err != nil {
		return err
	}

	if searcher != nil && opts.similar > 0 {
		// The session may have ended on a signal
		searchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if err := reportSimilar(searchCtx, opts.out, searcher, lastRep, opts.similar); err != nil {
			logger.Warn("similar rep search failed", "err", err)
		}
	}
	return nil
}

// finishSession prints the summary of a session that ended normally or was
// interrupted. Any other error is returned.
func finishSession(w io.Writer, logger *slog.Logger, summary models.Summary, err error) error {
	if err != nil {
		if !errors.Is(err, context.Canceled) || summary.SessionID == "" {
			return err
		}
		logger.Info("session interrupted", "session", summary.SessionID)
	}

	fmt.Fprintf(w, "%s: %d reps (%d frames, %d without pose)\n",
		summary.Exercise, summary.Count, summary.Frames, summary.SkippedFrames)
	if summary.GoalReached {
		fmt.Fprintln(w, "Target reached!")
	}
	return nil
}

// reportSimilar lists the stored reps whose pose is closest to lms.
func reportSimilar(ctx context.Context, w io.Writer, s repSearcher, lms pose.Landmarks, limit int) error {
	if limit <= 0 || !lms.Detected() {
		return nil
	}
	results, err := s.SearchSimilarReps(ctx, lms, limit)
	if err != nil {
		return err
	}
	if len(results) == 0 {
		fmt.Fprintln(w, "No similar reps in earlier sessions")
		return nil
	}

	fmt.Fprintln(w, "Closest reps from earlier sessions:")
	for _, r := range results {
		fmt.Fprintf(w, "  session %s rep %d (frame %d) similarity %.3f\n",
			r.SessionID, r.RepNumber, r.Frame, r.Similarity)
	}
	return nil
}

func openSource(ctx context.Context, cfg *config.Config, logger *slog.Logger) (session.Source, error) {
	switch cfg.Input.Mode {
	case config.InputTrace:
		return session.OpenTrace(cfg.Input.Path)
	case config.InputVideo:
		dir, err := extractor.ExtractFrames(ctx, logger, cfg.Input.Path, cfg.OutputDir, cfg.Input.FPS)
		if err != nil {
			return nil, err
		}
		return session.NewDirSource(dir, pose.NewExecDetector(cfg.Detector.Command, cfg.Detector.Args...), logger)
	case config.InputFrames:
		return session.NewDirSource(cfg.Input.Path, pose.NewExecDetector(cfg.Detector.Command, cfg.Detector.Args...), logger)
	default:
		return nil, fmt.Errorf("unknown input mode %q", cfg.Input.Mode)
	}
}
