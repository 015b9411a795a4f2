package models

import "time"

// IngestionRecord is the durable trace of one ingestion attempt. The live
// knowledge base is never persisted; this exists for diagnostics.
type IngestionRecord struct {
	ID              string
	SourceKind      string
	SourceLabel     string
	Strategy        string
	KnowledgeLength int
	Degraded        bool
	Status          string
	Error           string
	CreatedAt       time.Time
}

// SessionRecord archives a finished chat session.
type SessionRecord struct {
	ID          string
	SourceKind  string
	SourceLabel string
	UserTurns   int
	FinalState  string
	CreatedAt   time.Time
	EndedAt     time.Time
}

// TranscriptEntry is one archived message of a finished session.
type TranscriptEntry struct {
	ID        int
	SessionID string
	Sender    string
	Text      string
	CreatedAt time.Time
}
