package pose

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
)

// Detector extracts landmarks from a single image frame. An empty result with
// a nil error means no body was found.
type Detector interface {
	Detect(ctx context.Context, imagePath string) (Landmarks, error)
}

// ExecDetector runs an external pose estimator once per frame. The frame path
// is appended to Args and the command must print a JSON array of points on
// stdout. Empty output or "[]" means no body was detected. Coordinates are
// taken as pixels unless the counter is configured with a frame size.
type ExecDetector struct {
	Command string
	Args    []string
}

// NewExecDetector returns a detector for the given command line.
func NewExecDetector(command string, args ...string) *ExecDetector {
	return &ExecDetector{Command: command, Args: args}
}

// Detect implements Detector.
func (d *ExecDetector) Detect(ctx context.Context, imagePath string) (Landmarks, error) {
	if d.Command == "" {
		return nil, errors.New("detector command is not configured")
	}

	args := append(append([]string{}, d.Args...), imagePath)
	cmd := exec.CommandContext(ctx, d.Command, args...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("detector failed on '%s': %w\nOutput: %s", imagePath, err, stderr.String())
	}

	return ParseLandmarks(out)
}

// ParseLandmarks decodes a JSON array of points. Blank input and JSON null
// decode to an empty set.
func ParseLandmarks(data []byte) (Landmarks, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, nil
	}

	var points Landmarks
	if err := json.Unmarshal(data, &points); err != nil {
		return nil, fmt.Errorf("failed to decode landmarks: %w", err)
	}
	if len(points) > NumLandmarks {
		return nil, fmt.Errorf("got %d landmarks, expected at most %d", len(points), NumLandmarks)
	}
	return points, nil
}
