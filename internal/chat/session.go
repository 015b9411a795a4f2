// Package chat holds the bounded chat session: a knowledge-grounded
// conversation capped at a fixed number of user turns, after which the
// session transitions to the conversion state.
package chat

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sitebot/backend/internal/errs"
	"github.com/sitebot/backend/internal/metrics"
	"github.com/sitebot/backend/internal/source"
	"github.com/sitebot/backend/pkg/logger"
)

type State int

const (
	StateIdle State = iota
	StateIngesting
	StateChatting
	StateLimitReached
	StateConverting
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateIngesting:
		return "ingesting"
	case StateChatting:
		return "chatting"
	case StateLimitReached:
		return "limit_reached"
	case StateConverting:
		return "converting"
	default:
		return "unknown"
	}
}

type Sender string

const (
	SenderUser      Sender = "user"
	SenderAssistant Sender = "assistant"
)

type Message struct {
	ID        string
	Text      string
	Sender    Sender
	Timestamp time.Time
}

var (
	ErrNotChatting  = errors.New("session is not in a chatting state")
	ErrTurnInFlight = errors.New("a reply is already being generated for this session")
	ErrTurnLimit    = errors.New("the free turn limit for this session has been reached")
	ErrSessionOver  = errors.New("session has moved to the conversion flow")
)

const fallbackReply = "Sorry, I ran into a problem generating that answer. Please try asking again."

// ReplyModel is the slice of the LLM client a session needs.
type ReplyModel interface {
	GenerateReply(ctx context.Context, knowledgeBase, userMessage string) (string, error)
}

// Session owns one chat: its knowledge base, its append-only message log and
// the turn-cap state machine. There is exactly one logical writer; the mutex
// only guards against concurrent HTTP handlers hitting the same session.
type Session struct {
	ID     string
	Source source.Descriptor

	model        ReplyModel
	clock        Clock
	maxUserTurns int
	convertDelay time.Duration
	onConvert    func(s *Session, trigger string)

	mu              sync.Mutex
	state           State
	knowledgeBase   string
	messages        []Message
	pending         bool
	lastResponseErr error
	convertTimer    Timer
	createdAt       time.Time
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) KnowledgeBase() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.knowledgeBase
}

// Messages returns a copy of the transcript.
func (s *Session) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// UserTurnCount is derived from the message log. It is never stored
// separately, so it cannot desync from the transcript.
func (s *Session) UserTurnCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userTurnCountLocked()
}

// LastResponseError reports the most recent degraded turn, if any.
func (s *Session) LastResponseError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastResponseErr
}

// Submit processes one user message: append, generate a grounded reply,
// append the reply. Rejected outright once the turn cap is reached or while
// a previous turn's reply is still outstanding. A model failure degrades to
// a canned reply and never aborts the session.
func (s *Session) Submit(ctx context.Context, text string) (*Message, error) {
	s.mu.Lock()

	switch s.state {
	case StateConverting:
		s.mu.Unlock()
		return nil, ErrSessionOver
	case StateLimitReached:
		s.mu.Unlock()
		return nil, ErrTurnLimit
	case StateChatting:
	default:
		s.mu.Unlock()
		return nil, ErrNotChatting
	}

	if s.pending {
		s.mu.Unlock()
		return nil, ErrTurnInFlight
	}

	if s.userTurnCountLocked() >= s.maxUserTurns {
		s.enterLimitReachedLocked()
		s.mu.Unlock()
		return nil, ErrTurnLimit
	}

	s.pending = true
	s.appendLocked(SenderUser, text)
	kb := s.knowledgeBase
	s.mu.Unlock()

	// The lock is not held across the model call; pending keeps the session
	// single-in-flight in the meantime.
	replyText, err := s.model.GenerateReply(ctx, kb, text)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.pending = false

	if err != nil {
		s.lastResponseErr = &errs.ResponseError{Err: err}
		metrics.ResponseFailuresTotal.Inc()
		logger.Error("Reply generation failed, substituting canned reply",
			zap.String("session_id", s.ID),
			zap.Error(err),
		)
		replyText = fallbackReply
	}

	reply := s.appendLocked(SenderAssistant, replyText)
	metrics.ChatTurnsTotal.Inc()

	// The turn counter is re-derived from the transcript here; the pending
	// flag guarantees no message landed in between, so this check and the
	// pre-acceptance one above can never disagree.
	if s.userTurnCountLocked() >= s.maxUserTurns && s.state == StateChatting {
		logger.Info("Turn limit reached, scheduling conversion",
			zap.String("session_id", s.ID),
			zap.Duration("delay", s.convertDelay),
		)
		s.convertTimer = s.clock.AfterFunc(s.convertDelay, s.convertFromTimer)
	}

	return &reply, nil
}

// Convert is the explicit user acknowledgement that moves a capped session
// into the conversion flow.
func (s *Session) Convert() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateConverting:
		return nil
	case StateLimitReached:
		s.enterConvertingLocked("user")
		return nil
	case StateChatting:
		if s.userTurnCountLocked() >= s.maxUserTurns {
			s.enterConvertingLocked("user")
			return nil
		}
		return ErrNotChatting
	default:
		return ErrNotChatting
	}
}

func (s *Session) convertFromTimer() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateChatting {
		return
	}
	s.enterConvertingLocked("timer")
}

func (s *Session) userTurnCountLocked() int {
	count := 0
	for _, m := range s.messages {
		if m.Sender == SenderUser {
			count++
		}
	}
	return count
}

func (s *Session) appendLocked(sender Sender, text string) Message {
	msg := Message{
		ID:        uuid.New().String(),
		Text:      text,
		Sender:    sender,
		Timestamp: s.clock.Now(),
	}
	s.messages = append(s.messages, msg)
	return msg
}

func (s *Session) enterLimitReachedLocked() {
	if s.convertTimer != nil {
		s.convertTimer.Stop()
		s.convertTimer = nil
	}
	s.state = StateLimitReached
	logger.Info("Session reached turn limit", zap.String("session_id", s.ID))
}

func (s *Session) enterConvertingLocked(trigger string) {
	if s.convertTimer != nil {
		s.convertTimer.Stop()
		s.convertTimer = nil
	}
	s.state = StateConverting
	metrics.ConversionsTotal.WithLabelValues(trigger).Inc()
	logger.Info("Session converting",
		zap.String("session_id", s.ID),
		zap.String("trigger", trigger),
	)

	if s.onConvert != nil {
		// Runs after the lock is released; the hook reads the session
		// through its accessors.
		go s.onConvert(s, trigger)
	}
}
