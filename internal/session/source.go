package session

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/bdougie/repcount/internal/extractor"
	"github.com/bdougie/repcount/internal/models"
	"github.com/bdougie/repcount/internal/pose"
)

// Source yields frames in arrival order. Next returns io.EOF once the source
// is exhausted.
type Source interface {
	Next(ctx context.Context) (models.Frame, error)
	Close() error
}

// traceLine is one line of a landmark trace
type traceLine struct {
	Frame     *int           `json:"frame"`
	Landmarks pose.Landmarks `json:"landmarks"`
}

// TraceSource reads frames from a JSON Lines landmark trace. Lines with no
// landmarks are frames where no body was detected.
type TraceSource struct {
	scanner *bufio.Scanner
	closer  io.Closer
	line    int
	index   int
}

// NewTraceSource reads a trace from r. If r is an io.Closer it is closed by
// Close.
func NewTraceSource(r io.Reader) *TraceSource {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	s := &TraceSource{scanner: scanner}
	if c, ok := r.(io.Closer); ok {
		s.closer = c
	}
	return s
}

// StdinPath names standard input as a trace, for a detector piping landmarks
// live.
const StdinPath = "-"

var stdin io.Reader = os.Stdin

// OpenTrace opens a trace file, or standard input when path is StdinPath.
// Standard input is left open by Close.
func OpenTrace(path string) (*TraceSource, error) {
	if path == StdinPath {
		return NewTraceSource(io.NopCloser(stdin)), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open trace '%s': %w", path, err)
	}
	return NewTraceSource(f), nil
}

// Next implements Source.
func (s *TraceSource) Next(ctx context.Context) (models.Frame, error) {
	for {
		if err := ctx.Err(); err != nil {
			return models.Frame{}, err
		}
		if !s.scanner.Scan() {
			if err := s.scanner.Err(); err != nil {
				return models.Frame{}, fmt.Errorf("failed to read trace: %w", err)
			}
			return models.Frame{}, io.EOF
		}
		s.line++

		data := s.scanner.Bytes()
		if len(bytes.TrimSpace(data)) == 0 {
			continue
		}

		var tl traceLine
		if err := json.Unmarshal(data, &tl); err != nil {
			return models.Frame{}, fmt.Errorf("trace line %d: %w", s.line, err)
		}
		if len(tl.Landmarks) > pose.NumLandmarks {
			return models.Frame{}, fmt.Errorf("trace line %d: got %d landmarks, expected at most %d", s.line, len(tl.Landmarks), pose.NumLandmarks)
		}

		s.index++
		index := s.index
		if tl.Frame != nil {
			index = *tl.Frame
		}
		return models.Frame{Index: index, Landmarks: tl.Landmarks}, nil
	}
}

// Close implements Source.
func (s *TraceSource) Close() error {
	if s.closer != nil {
		return s.closer.Close()
	}
	return nil
}

// DirSource runs a detector over the extracted frames of a directory.
type DirSource struct {
	dir      string
	frames   []string
	pos      int
	detector pose.Detector
	logger   *slog.Logger
}

// NewDirSource lists the frames in dir. Detector failures on a single frame
// are logged and the frame is reported as having no pose.
func NewDirSource(dir string, detector pose.Detector, logger *slog.Logger) (*DirSource, error) {
	if logger == nil {
		logger = slog.Default()
	}
	frames, err := extractor.ListFrames(dir)
	if err != nil {
		return nil, err
	}
	if len(frames) == 0 {
		return nil, fmt.Errorf("no JPEG frames found in directory '%s'", dir)
	}
	return &DirSource{dir: dir, frames: frames, detector: detector, logger: logger}, nil
}

// Len returns the number of frames in the directory.
func (s *DirSource) Len() int {
	return len(s.frames)
}

// Next implements Source.
func (s *DirSource) Next(ctx context.Context) (models.Frame, error) {
	if err := ctx.Err(); err != nil {
		return models.Frame{}, err
	}
	if s.pos >= len(s.frames) {
		return models.Frame{}, io.EOF
	}

	name := s.frames[s.pos]
	s.pos++
	path := filepath.Join(s.dir, name)

	lms, err := s.detector.Detect(ctx, path)
	if err != nil {
		if ctx.Err() != nil {
			return models.Frame{}, ctx.Err()
		}
		s.logger.Warn("pose detection failed, skipping frame", "frame", name, "err", err)
		lms = nil
	}

	return models.Frame{Index: s.pos, Path: name, Landmarks: lms}, nil
}

// Close implements Source.
func (s *DirSource) Close() error {
	return nil
}
