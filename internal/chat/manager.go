package chat

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sitebot/backend/internal/ingest"
	"github.com/sitebot/backend/internal/source"
	"github.com/sitebot/backend/internal/storage/models"
	"github.com/sitebot/backend/pkg/logger"
)

// Ingestor produces a knowledge base from a source descriptor.
type Ingestor interface {
	Ingest(ctx context.Context, desc source.Descriptor) (*ingest.Result, error)
}

// SessionArchiver persists a finished session's transcript. Optional and
// non-authoritative; the live session lives only in memory.
type SessionArchiver interface {
	SaveSession(rec *models.SessionRecord, transcript []models.TranscriptEntry) error
}

type Config struct {
	MaxUserTurns   int
	ConvertDelay   time.Duration
	WelcomeMessage string
	Clock          Clock
}

// Manager owns all live sessions. Each session is written only through its
// own methods; the manager map just routes requests to sessions.
type Manager struct {
	pipeline       Ingestor
	model          ReplyModel
	archive        SessionArchiver
	clock          Clock
	maxUserTurns   int
	convertDelay   time.Duration
	welcomeMessage string

	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewManager(pipeline Ingestor, model ReplyModel, archive SessionArchiver, cfg Config) *Manager {
	if cfg.MaxUserTurns == 0 {
		cfg.MaxUserTurns = 3
	}
	if cfg.ConvertDelay == 0 {
		cfg.ConvertDelay = 2 * time.Second
	}
	if cfg.Clock == nil {
		cfg.Clock = NewRealClock()
	}

	return &Manager{
		pipeline:       pipeline,
		model:          model,
		archive:        archive,
		clock:          cfg.Clock,
		maxUserTurns:   cfg.MaxUserTurns,
		convertDelay:   cfg.ConvertDelay,
		welcomeMessage: cfg.WelcomeMessage,
		sessions:       make(map[string]*Session),
	}
}

// StartSession runs the ingestion pipeline for the descriptor and, on
// success, opens a chat session seeded with a synthetic assistant welcome at
// turn count zero. On ingestion failure no session is created and the caller
// may retry with a corrected source.
func (m *Manager) StartSession(ctx context.Context, desc source.Descriptor) (*Session, error) {
	s := &Session{
		ID:           uuid.New().String(),
		Source:       desc,
		model:        m.model,
		clock:        m.clock,
		maxUserTurns: m.maxUserTurns,
		convertDelay: m.convertDelay,
		onConvert:    m.archiveSession,
		state:        StateIngesting,
		createdAt:    m.clock.Now(),
	}

	logger.Info("Session ingesting",
		zap.String("session_id", s.ID),
		zap.String("source_kind", desc.Kind.String()),
		zap.String("source", desc.Label()),
	)

	result, err := m.pipeline.Ingest(ctx, desc)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.knowledgeBase = result.KnowledgeBase
	s.state = StateChatting
	s.appendLocked(SenderAssistant, m.welcomeMessage)
	s.mu.Unlock()

	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()

	logger.Info("Session chatting",
		zap.String("session_id", s.ID),
		zap.Int("knowledge_length", len(result.KnowledgeBase)),
		zap.Bool("degraded", result.Degraded),
	)

	return s, nil
}

func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok
}

// Remove destroys a live session, e.g. when the user restarts with a new
// source or leaves.
func (m *Manager) Remove(id string) {
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
}

// archiveSession is the onConvert hook: it writes the finished transcript to
// the archive. The session itself stays live so the conversion screen can
// still read it; Remove drops it.
func (m *Manager) archiveSession(s *Session, trigger string) {
	logger.Debug("Archiving converted session",
		zap.String("session_id", s.ID),
		zap.String("trigger", trigger),
	)

	if m.archive != nil {
		rec := &models.SessionRecord{
			ID:          s.ID,
			SourceKind:  s.Source.Kind.String(),
			SourceLabel: s.Source.Label(),
			UserTurns:   s.UserTurnCount(),
			FinalState:  StateConverting.String(),
			CreatedAt:   s.createdAt,
			EndedAt:     m.clock.Now(),
		}

		messages := s.Messages()
		transcript := make([]models.TranscriptEntry, 0, len(messages))
		for _, msg := range messages {
			transcript = append(transcript, models.TranscriptEntry{
				SessionID: s.ID,
				Sender:    string(msg.Sender),
				Text:      msg.Text,
				CreatedAt: msg.Timestamp,
			})
		}

		if err := m.archive.SaveSession(rec, transcript); err != nil {
			logger.Warn("Failed to archive session",
				zap.String("session_id", s.ID),
				zap.Error(err),
			)
		}
	}
}
