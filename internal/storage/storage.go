package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/bdougie/repcount/internal/models"
)

const batchSize = 10 // Number of results to batch write

const (
	resultsFile = "results.json"
	summaryFile = "summary.json"
)

// Storage defines the interface for storing session results
type Storage interface {
	// AddResult adds a single frame result
	AddResult(ctx context.Context, result models.FrameResult) error

	// SaveSummary records the outcome of a finished session
	SaveSummary(ctx context.Context, summary models.Summary) error

	// Flush ensures all pending results are saved
	Flush() error
}

// FileStorage batches frame results into a JSON file per session
type FileStorage struct {
	results   []models.FrameResult
	mu        sync.Mutex
	outputDir string
	sessionID string
}

// NewFileStorage creates a new storage manager writing under outputDir/sessionID
func NewFileStorage(outputDir, sessionID string) *FileStorage {
	return &FileStorage{
		results:   []models.FrameResult{},
		outputDir: outputDir,
		sessionID: sessionID,
	}
}

// Dir returns the directory this session's files are written to
func (s *FileStorage) Dir() string {
	return filepath.Join(s.outputDir, s.sessionID)
}

// AddResult adds a result to the batch and flushes if the batch is full
func (s *FileStorage) AddResult(ctx context.Context, result models.FrameResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = append(s.results, result)

	// Write to disk when batch is full
	if len(s.results) >= batchSize {
		if err := s.flush(); err != nil {
			return fmt.Errorf("failed to flush results: %w", err)
		}
	}
	return nil
}

// Flush writes all pending results to disk
func (s *FileStorage) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flush()
}

// Internal flush implementation
func (s *FileStorage) flush() error {
	if len(s.results) == 0 {
		return nil
	}

	resultsFilePath := filepath.Join(s.Dir(), resultsFile)

	existingResults, err := readResults(resultsFilePath)
	if err != nil {
		return err
	}

	allResults := append(existingResults, s.results...)

	if err := writeJSON(resultsFilePath, allResults); err != nil {
		return err
	}

	s.results = nil // Clear the batch
	return nil
}

// SaveSummary writes summary.json next to the results
func (s *FileStorage) SaveSummary(ctx context.Context, summary models.Summary) error {
	return writeJSON(filepath.Join(s.Dir(), summaryFile), summary)
}

// LoadResults reads every flushed result of the session
func (s *FileStorage) LoadResults() ([]models.FrameResult, error) {
	return readResults(filepath.Join(s.Dir(), resultsFile))
}

func readResults(path string) ([]models.FrameResult, error) {
	var results []models.FrameResult
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return results, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read results file: %w", err)
	}
	if err := json.Unmarshal(data, &results); err != nil {
		return nil, fmt.Errorf("failed to unmarshal existing results: %w", err)
	}
	return results, nil
}

func writeJSON(path string, v any) error {
	// Create directory if it doesn't exist
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory for results: %w", err)
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	enc := json.NewEncoder(file)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode %s: %w", filepath.Base(path), err)
	}
	return nil
}

// Discard drops every result; used when no output is configured
type Discard struct{}

func (Discard) AddResult(context.Context, models.FrameResult) error { return nil }
func (Discard) SaveSummary(context.Context, models.Summary) error   { return nil }
func (Discard) Flush() error                                        { return nil }

// Multi fans results out to several storages, stopping at the first error
type Multi []Storage

func (m Multi) AddResult(ctx context.Context, result models.FrameResult) error {
	for _, s := range m {
		if err := s.AddResult(ctx, result); err != nil {
			return err
		}
	}
	return nil
}

func (m Multi) SaveSummary(ctx context.Context, summary models.Summary) error {
	for _, s := range m {
		if err := s.SaveSummary(ctx, summary); err != nil {
			return err
		}
	}
	return nil
}

func (m Multi) Flush() error {
	for _, s := range m {
		if err := s.Flush(); err != nil {
			return err
		}
	}
	return nil
}
