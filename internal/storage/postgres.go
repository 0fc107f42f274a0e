package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/bdougie/repcount/internal/counter"
	"github.com/bdougie/repcount/internal/embeddings"
	"github.com/bdougie/repcount/internal/models"
	"github.com/bdougie/repcount/internal/pose"
)

// PostgresConfig holds connection details for PostgreSQL
type PostgresConfig struct {
	Host     string `toml:"host"`
	Port     string `toml:"port"`
	User     string `toml:"user"`
	Password string `toml:"password"`
	DBName   string `toml:"dbname"`
	SSLMode  string `toml:"sslmode"`
}

// Enabled reports whether a database has been configured
func (c PostgresConfig) Enabled() bool {
	return c.Host != "" && c.DBName != ""
}

// ConnString builds the pgx connection URL
func (c PostgresConfig) ConnString() string {
	port := c.Port
	if port == "" {
		port = "5432"
	}
	conn := fmt.Sprintf("postgres://%s:%s@%s:%s/%s", c.User, c.Password, c.Host, port, c.DBName)
	if c.SSLMode != "" {
		conn += "?sslmode=" + c.SSLMode
	}
	return conn
}

// PostgresStorage keeps sessions and credited repetitions in PostgreSQL
type PostgresStorage struct {
	pool      *pgxpool.Pool
	sessionID string
	kind      counter.Kind
	logger    *slog.Logger

	minVisibility float64
}

// PostgresOption configures a PostgresStorage.
type PostgresOption func(*PostgresStorage)

// WithPoseVisibility leaves joints reported below v out of rep embeddings.
func WithPoseVisibility(v float64) PostgresOption {
	return func(s *PostgresStorage) {
		s.minVisibility = v
	}
}

// NewPostgresStorage connects and registers the session row
func NewPostgresStorage(ctx context.Context, config PostgresConfig, sessionID string, kind counter.Kind, logger *slog.Logger, opts ...PostgresOption) (*PostgresStorage, error) {
	if logger == nil {
		logger = slog.Default()
	}

	pool, err := pgxpool.New(ctx, config.ConnString())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Verify connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	storage := &PostgresStorage{
		pool:      pool,
		sessionID: sessionID,
		kind:      kind,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(storage)
	}

	if err := storage.createSession(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return storage, nil
}

// Close closes the database connection
func (s *PostgresStorage) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

func (s *PostgresStorage) createSession(ctx context.Context) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO sessions (id, exercise, started_at)
        VALUES ($1, $2, $3)
        ON CONFLICT (id) DO NOTHING`,
		s.sessionID, s.kind.String(), time.Now())
	if err != nil {
		return fmt.Errorf("failed to create session entry: %w", err)
	}
	return nil
}

// AddResult stores frames that credited a repetition, with a pose embedding
// of the frame. Other frames are not persisted.
func (s *PostgresStorage) AddResult(ctx context.Context, result models.FrameResult) error {
	if !result.Rep {
		return nil
	}

	var embedding any
	vec, err := embeddings.FromLandmarks(result.Landmarks, s.minVisibility)
	if err != nil {
		// Store the rep without an embedding
		s.logger.Warn("rep stored without pose embedding", "frame", result.Frame, "err", err)
	} else {
		embedding = pgvector.NewVector(vec)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO reps
        (session_id, rep_number, frame, metric, embedding, created_at)
        VALUES ($1, $2, $3, $4, $5, $6)`,
		s.sessionID, result.Count, result.Frame, result.Metric, embedding, time.Now())
	if err != nil {
		return fmt.Errorf("failed to store rep %d: %w", result.Count, err)
	}

	return nil
}

// SaveSummary updates the session row with the final outcome
func (s *PostgresStorage) SaveSummary(ctx context.Context, summary models.Summary) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE sessions
        SET frames = $2, skipped_frames = $3, reps = $4, stage = $5,
            target_reps = $6, goal_reached = $7, ended_at = $8
        WHERE id = $1`,
		s.sessionID, summary.Frames, summary.SkippedFrames, summary.Count, summary.Stage.String(),
		summary.TargetReps, summary.GoalReached, summary.EndedAt)
	if err != nil {
		return fmt.Errorf("failed to save session summary: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("session %s not found", s.sessionID)
	}
	return nil
}

// Flush implements the Storage interface - no-op for Postgres as we save immediately
func (s *PostgresStorage) Flush() error {
	return nil
}

// SearchSimilarReps finds repetitions of the same exercise from earlier
// sessions whose pose is closest to lms
func (s *PostgresStorage) SearchSimilarReps(ctx context.Context, lms pose.Landmarks, limit int) ([]models.RepSearchResult, error) {
	if limit <= 0 {
		return nil, nil
	}
	queryEmbedding, err := embeddings.FromLandmarks(lms, s.minVisibility)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query pose: %w", err)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT r.session_id::text, r.rep_number, r.frame,
        1 - (r.embedding <=> $1) AS similarity
        FROM reps r
        JOIN sessions s ON r.session_id = s.id
        WHERE s.exercise = $2 AND r.embedding IS NOT NULL
            AND r.session_id <> $4
        ORDER BY r.embedding <=> $1
        LIMIT $3`,
		pgvector.NewVector(queryEmbedding), s.kind.String(), limit, s.sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to search similar reps: %w", err)
	}
	defer rows.Close()

	var results []models.RepSearchResult
	for rows.Next() {
		var result models.RepSearchResult
		if err := rows.Scan(&result.SessionID, &result.RepNumber, &result.Frame, &result.Similarity); err != nil {
			return nil, fmt.Errorf("failed to scan search results: %w", err)
		}
		results = append(results, result)
	}

	return results, rows.Err()
}

// InitSchema creates the database schema if it doesn't exist
func InitSchema(ctx context.Context, config PostgresConfig) error {
	conn, err := pgx.Connect(ctx, config.ConnString())
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer conn.Close(ctx)

	// Check if vector extension exists
	var exists bool
	err = conn.QueryRow(ctx,
		"SELECT EXISTS (SELECT 1 FROM pg_extension WHERE extname = 'vector')").Scan(&exists)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("failed to check for vector extension: %w", err)
	}

	if !exists {
		if _, err = conn.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
			return fmt.Errorf("failed to create vector extension: %w", err)
		}
	}

	_, err = conn.Exec(ctx, fmt.Sprintf(`
        CREATE TABLE IF NOT EXISTS sessions (
            id UUID PRIMARY KEY,
            exercise VARCHAR(32) NOT NULL,
            frames INTEGER NOT NULL DEFAULT 0,
            skipped_frames INTEGER NOT NULL DEFAULT 0,
            reps INTEGER NOT NULL DEFAULT 0,
            stage VARCHAR(8) NOT NULL DEFAULT '',
            target_reps INTEGER NOT NULL DEFAULT 0,
            goal_reached BOOLEAN NOT NULL DEFAULT FALSE,
            started_at TIMESTAMPTZ NOT NULL,
            ended_at TIMESTAMPTZ
        );

        CREATE TABLE IF NOT EXISTS reps (
            id SERIAL PRIMARY KEY,
            session_id UUID REFERENCES sessions(id) ON DELETE CASCADE,
            rep_number INTEGER NOT NULL,
            frame INTEGER NOT NULL,
            metric DOUBLE PRECISION NOT NULL,
            embedding vector(%d),
            created_at TIMESTAMPTZ NOT NULL,
            UNIQUE(session_id, rep_number)
        );
    `, embeddings.Dimensions))
	if err != nil {
		return fmt.Errorf("failed to create database schema: %w", err)
	}

	_, err = conn.Exec(ctx, `
        CREATE INDEX IF NOT EXISTS idx_sessions_exercise ON sessions(exercise);
        CREATE INDEX IF NOT EXISTS idx_reps_session_id ON reps(session_id);
        CREATE INDEX IF NOT EXISTS idx_reps_embedding ON reps USING ivfflat (embedding vector_cosine_ops) WITH (lists = 100);
    `)
	if err != nil {
		return fmt.Errorf("failed to create database indexes: %w", err)
	}

	return nil
}
