package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the session counters, labelled by exercise.
type Metrics struct {
	Frames        *prometheus.CounterVec
	SkippedFrames *prometheus.CounterVec
	Reps          *prometheus.CounterVec
}

// New creates the counters and registers them with reg. A nil reg leaves
// them unregistered.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Frames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "repcount",
			Name:      "frames_total",
			Help:      "Frames processed by the repetition counter.",
		}, []string{"exercise"}),
		SkippedFrames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "repcount",
			Name:      "frames_skipped_total",
			Help:      "Frames skipped because no usable pose was found.",
		}, []string{"exercise"}),
		Reps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "repcount",
			Name:      "reps_total",
			Help:      "Repetitions credited.",
		}, []string{"exercise"}),
	}
	if reg != nil {
		reg.MustRegister(m.Frames, m.SkippedFrames, m.Reps)
	}
	return m
}

// Observe records one processed frame.
func (m *Metrics) Observe(exercise string, skipped, rep bool) {
	if m == nil {
		return
	}
	m.Frames.WithLabelValues(exercise).Inc()
	if skipped {
		m.SkippedFrames.WithLabelValues(exercise).Inc()
	}
	if rep {
		m.Reps.WithLabelValues(exercise).Inc()
	}
}

// Serve exposes gatherer on addr under /metrics until ctx is done.
func Serve(ctx context.Context, logger *slog.Logger, addr string, gatherer prometheus.Gatherer) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("serving metrics", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
