package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/sitebot/backend/internal/storage/models"
	"github.com/sitebot/backend/pkg/logger"
)

type Client struct {
	db *sql.DB
}

func NewClient(dbPath string) (*Client, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	_, err = db.Exec("PRAGMA foreign_keys = ON")
	if err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	_, err = db.Exec("PRAGMA journal_mode = WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	logger.Info("SQLite client initialized", zap.String("path", dbPath))

	return &Client{db: db}, nil
}

func (c *Client) Close() error {
	return c.db.Close()
}

func (c *Client) InitSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS ingestions (
		id TEXT PRIMARY KEY,
		source_kind TEXT NOT NULL,
		source_label TEXT,
		strategy TEXT,
		knowledge_length INTEGER DEFAULT 0,
		degraded INTEGER DEFAULT 0,
		status TEXT NOT NULL,
		error TEXT,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_ingestions_kind ON ingestions(source_kind);
	CREATE INDEX IF NOT EXISTS idx_ingestions_created ON ingestions(created_at);

	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		source_kind TEXT NOT NULL,
		source_label TEXT,
		user_turns INTEGER NOT NULL,
		final_state TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		ended_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_created ON sessions(created_at);

	CREATE TABLE IF NOT EXISTS transcript_entries (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		sender TEXT NOT NULL,
		text TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_transcript_session ON transcript_entries(session_id);
	`

	_, err := c.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info("SQLite schema initialized")
	return nil
}

func (c *Client) SaveIngestion(rec *models.IngestionRecord) error {
	query := `
		INSERT INTO ingestions (id, source_kind, source_label, strategy, knowledge_length, degraded, status, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	degraded := 0
	if rec.Degraded {
		degraded = 1
	}

	_, err := c.db.Exec(
		query,
		rec.ID,
		rec.SourceKind,
		rec.SourceLabel,
		rec.Strategy,
		rec.KnowledgeLength,
		degraded,
		rec.Status,
		rec.Error,
		rec.CreatedAt.Unix(),
	)

	if err != nil {
		return fmt.Errorf("failed to insert ingestion record: %w", err)
	}

	logger.Debug("Ingestion record archived", zap.String("id", rec.ID), zap.String("status", rec.Status))
	return nil
}

func (c *Client) SaveSession(rec *models.SessionRecord, transcript []models.TranscriptEntry) error {
	tx, err := c.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT INTO sessions (id, source_kind, source_label, user_turns, final_state, created_at, ended_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.ID,
		rec.SourceKind,
		rec.SourceLabel,
		rec.UserTurns,
		rec.FinalState,
		rec.CreatedAt.Unix(),
		rec.EndedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert session record: %w", err)
	}

	stmt, err := tx.Prepare(`INSERT INTO transcript_entries (session_id, sender, text, created_at) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare transcript insert: %w", err)
	}
	defer stmt.Close()

	for _, entry := range transcript {
		if _, err := stmt.Exec(rec.ID, entry.Sender, entry.Text, entry.CreatedAt.Unix()); err != nil {
			return fmt.Errorf("failed to insert transcript entry: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit session archive: %w", err)
	}

	logger.Debug("Session archived",
		zap.String("session_id", rec.ID),
		zap.Int("messages", len(transcript)),
	)
	return nil
}

func (c *Client) RecentIngestions(limit int) ([]models.IngestionRecord, error) {
	rows, err := c.db.Query(
		`SELECT id, source_kind, source_label, strategy, knowledge_length, degraded, status, error, created_at
		 FROM ingestions ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query ingestions: %w", err)
	}
	defer rows.Close()

	var records []models.IngestionRecord
	for rows.Next() {
		var rec models.IngestionRecord
		var degraded int
		var createdAt int64
		if err := rows.Scan(&rec.ID, &rec.SourceKind, &rec.SourceLabel, &rec.Strategy,
			&rec.KnowledgeLength, &degraded, &rec.Status, &rec.Error, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan ingestion record: %w", err)
		}
		rec.Degraded = degraded == 1
		rec.CreatedAt = time.Unix(createdAt, 0)
		records = append(records, rec)
	}

	return records, rows.Err()
}
