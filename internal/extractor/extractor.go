package extractor

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// FramePattern is the file name pattern ffmpeg writes frames with.
const FramePattern = "frame_%04d.jpg"

// FrameDir returns the directory frames of videoPath are extracted into.
func FrameDir(videoPath, outputDir string) string {
	videoName := strings.TrimSuffix(filepath.Base(videoPath), filepath.Ext(videoPath))
	return filepath.Join(outputDir, videoName)
}

// ExtractFrames dumps frames from a video file at the given rate using ffmpeg
// and returns the directory holding them. A non-positive fps keeps every frame.
func ExtractFrames(ctx context.Context, logger *slog.Logger, videoPath, outputDir string, fps float64) (string, error) {
	if logger == nil {
		logger = slog.Default()
	}

	// Check if video file exists
	if _, err := os.Stat(videoPath); os.IsNotExist(err) {
		return "", fmt.Errorf("video file does not exist at path: '%s'", videoPath)
	}

	frameDirPath := FrameDir(videoPath, outputDir)

	// Check if frames already exist in the subfolder
	if frames, err := ListFrames(frameDirPath); err == nil && len(frames) > 0 {
		logger.Info("frames already extracted, skipping", "dir", frameDirPath, "frames", len(frames))
		return frameDirPath, nil
	}

	if err := os.MkdirAll(frameDirPath, 0755); err != nil {
		return "", fmt.Errorf("failed to create frame directory '%s': %w", frameDirPath, err)
	}

	logger.Info("extracting frames", "video", videoPath, "dir", frameDirPath, "fps", fps)

	args := []string{"-hide_banner", "-loglevel", "error", "-i", videoPath}
	if fps > 0 {
		args = append(args, "-vf", "fps="+strconv.FormatFloat(fps, 'f', -1, 64))
	}
	args = append(args, filepath.Join(frameDirPath, FramePattern))

	ffmpegCommand := exec.CommandContext(ctx, "ffmpeg", args...)

	// Capture output for better error reporting
	output, err := ffmpegCommand.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("ffmpeg failed: %w\nOutput: %s", err, string(output))
	}

	return frameDirPath, nil
}

// ListFrames returns the sorted JPEG file names in dir.
func ListFrames(dir string) ([]string, error) {
	files, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read frames directory '%s': %w", dir, err)
	}

	var frames []string
	for _, file := range files {
		if !file.IsDir() && strings.HasSuffix(strings.ToLower(file.Name()), ".jpg") {
			frames = append(frames, file.Name())
		}
	}
	sort.Strings(frames)
	return frames, nil
}
