package extractor

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListFrames(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"frame_0002.jpg", "frame_0001.JPG", "notes.txt", "frame_0010.jpg"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.jpg"), 0755))

	frames, err := ListFrames(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"frame_0001.JPG", "frame_0002.jpg", "frame_0010.jpg"}, frames)

	_, err = ListFrames(filepath.Join(dir, "missing"))
	assert.Error(t, err)
}

func TestFrameDir(t *testing.T) {
	assert.Equal(t, filepath.Join("out", "squats"), FrameDir("/videos/squats.mp4", "out"))
}

func TestExtractFramesMissingVideo(t *testing.T) {
	_, err := ExtractFrames(context.Background(), nil, filepath.Join(t.TempDir(), "nope.mp4"), t.TempDir(), 5)
	assert.Error(t, err)
}

func TestExtractFramesSkipsExisting(t *testing.T) {
	src := t.TempDir()
	out := t.TempDir()

	video := filepath.Join(src, "curls.mp4")
	require.NoError(t, os.WriteFile(video, []byte("not a video"), 0644))

	frameDir := FrameDir(video, out)
	require.NoError(t, os.MkdirAll(frameDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(frameDir, "frame_0001.jpg"), []byte("x"), 0644))

	// ffmpeg is never invoked when frames are already present
	got, err := ExtractFrames(context.Background(), nil, video, out, 5)
	require.NoError(t, err)
	assert.Equal(t, frameDir, got)
}
