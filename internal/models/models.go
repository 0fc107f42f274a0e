package models

import (
	"time"

	"github.com/bdougie/repcount/internal/counter"
	"github.com/bdougie/repcount/internal/pose"
)

// Frame is one unit of work handed from a source to the session runner
type Frame struct {
	Index     int
	Path      string
	Landmarks pose.Landmarks
}

// FrameResult is the per-frame outcome of the counter
type FrameResult struct {
	Frame    int             `json:"frame"`
	Path     string          `json:"path,omitempty"`
	Detected bool            `json:"detected"`
	Stage    counter.Stage   `json:"stage"`
	Count    int             `json:"count"`
	Metric   float64         `json:"metric"`
	Overlay  counter.Overlay `json:"overlay"`
	// Rep is set on the frame that credited a repetition
	Rep bool `json:"rep,omitempty"`
	// Landmarks are only retained for frames that credited a repetition
	Landmarks pose.Landmarks `json:"-"`
}

// Summary describes a finished session
type Summary struct {
	SessionID     string        `json:"session_id"`
	Exercise      counter.Kind  `json:"exercise"`
	Frames        int           `json:"frames"`
	SkippedFrames int           `json:"skipped_frames"`
	Count         int           `json:"count"`
	Stage         counter.Stage `json:"stage"`
	TargetReps    int           `json:"target_reps,omitempty"`
	GoalReached   bool          `json:"goal_reached"`
	StartedAt     time.Time     `json:"started_at"`
	EndedAt       time.Time     `json:"ended_at"`
}

// RepSearchResult is a stored repetition ranked by pose similarity
type RepSearchResult struct {
	SessionID  string
	RepNumber  int
	Frame      int
	Similarity float64
}
