package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"unicode/utf8"

	"chatpro/internal/models"
	"chatpro/internal/transport"
)

type State string

const (
	StateLoading State = "loading"
	StateReady   State = "ready"
	StateSending State = "sending"
	StateClosed  State = "closed"
)

var (
	ErrSessionClosed = errors.New("session closed")
	ErrSendInFlight  = errors.New("a send is already in flight")
	ErrNotReady      = errors.New("session is not ready")
)

// Session owns one chatroom's message log. It is the only writer of that
// log; no sibling component mutates it. The lifecycle is
// Loading -> Ready -> Sending -> Ready with a terminal Closed state.
type Session struct {
	client *transport.Client
	userID int64
	roomID int64
	syncer Syncer
	log    *slog.Logger

	mu               sync.Mutex
	state            State
	messages         []models.Message
	participantCount int
	draft            string

	// ctx bounds every fetch this session issues; Close cancels it so a
	// stale response can never mutate a discarded session.
	ctx    context.Context
	cancel context.CancelFunc
}

func New(client *transport.Client, userID, roomID int64, syncer Syncer) *Session {
	if syncer == nil {
		syncer = Manual{}
	}
	return &Session{
		client: client,
		userID: userID,
		roomID: roomID,
		syncer: syncer,
		state:  StateLoading,
		log:    slog.Default().With("component", "session", "chatroomId", roomID),
	}
}

// Open fetches the message log and the participant count concurrently and
// transitions to Ready. A failed count fetch degrades the count to zero
// without blocking message display; a failed log fetch still reaches
// Ready (with an empty log) and returns the error.
func (s *Session) Open(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateLoading || s.ctx != nil {
		s.mu.Unlock()
		return fmt.Errorf("session for chatroom %d already opened", s.roomID)
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	var (
		wg       sync.WaitGroup
		messages []models.Message
		count    int
		msgErr   error
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		messages, msgErr = s.fetchLog()
	}()
	go func() {
		defer wg.Done()
		c, err := s.fetchParticipantCount()
		if err != nil {
			s.log.Warn("participant count fetch failed, degrading to zero", "error", err)
			return
		}
		count = c
	}()
	wg.Wait()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed {
		// Closed while loading; the responses are discarded.
		return nil
	}

	s.messages = messages
	s.participantCount = count
	s.state = StateReady

	go s.syncer.Run(s.ctx, s.Refresh)

	if msgErr != nil {
		return fmt.Errorf("failed to load messages: %w", msgErr)
	}
	return nil
}

// Send posts text to the room and, on success, re-fetches the full log
// before returning to Ready, so the sent message is visible in the next
// read (read-after-write consistency). On failure the draft is kept so
// the caller can retry without retyping. Empty and over-limit texts are
// rejected locally without touching the network or the state.
func (s *Session) Send(text string) error {
	if strings.TrimSpace(text) == "" {
		return &models.ValidationError{Reason: "message is empty"}
	}
	if utf8.RuneCountInString(text) > models.MaxMessageLength {
		return &models.ValidationError{
			Reason: fmt.Sprintf("message exceeds %d characters", models.MaxMessageLength),
		}
	}

	s.mu.Lock()
	switch s.state {
	case StateClosed:
		s.mu.Unlock()
		return ErrSessionClosed
	case StateSending:
		s.mu.Unlock()
		return ErrSendInFlight
	case StateLoading:
		s.mu.Unlock()
		return ErrNotReady
	}
	s.state = StateSending
	s.draft = text
	s.mu.Unlock()

	body := struct {
		Content string `json:"content"`
	}{Content: text}

	_, err := s.client.Call(s.ctx, http.MethodPost,
		fmt.Sprintf("/chatrooms/%d/messages", s.roomID), body,
		&transport.Identity{UserID: s.userID})
	if err != nil {
		s.mu.Lock()
		closed := s.state == StateClosed
		if s.state == StateSending {
			s.state = StateReady
		}
		s.mu.Unlock()
		if closed {
			return nil
		}
		return fmt.Errorf("failed to send message: %w", err)
	}

	// The re-fetch must not start before the send response is observed.
	messages, fetchErr := s.fetchLog()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed {
		return nil
	}

	s.draft = ""
	if fetchErr == nil {
		s.messages = messages
	}
	s.state = StateReady

	if fetchErr != nil {
		return fmt.Errorf("message sent but log refresh failed: %w", fetchErr)
	}
	return nil
}

// Refresh re-fetches the message log. Safe to call repeatedly. While a
// send is in flight the call is ignored: the send's own re-fetch is
// authoritative and refreshes never interleave with it.
func (s *Session) Refresh() error {
	s.mu.Lock()
	if s.state != StateReady {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	messages, err := s.fetchLog()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateReady {
		// A send started or the session closed meanwhile; the
		// outcome is stale and is discarded.
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to refresh messages: %w", err)
	}
	s.messages = messages

	return nil
}

// Close discards the in-memory log and cancels any in-flight fetch.
// Idempotent.
func (s *Session) Close() {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return
	}
	s.state = StateClosed
	s.messages = nil
	s.draft = ""
	cancel := s.cancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Messages returns a copy of the current log in server order.
func (s *Session) Messages() []models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

func (s *Session) ParticipantCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.participantCount
}

// Draft returns the text of the last failed send, preserved for retry.
func (s *Session) Draft() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.draft
}

func (s *Session) ChatroomID() int64 {
	return s.roomID
}

func (s *Session) fetchLog() ([]models.Message, error) {
	raw, err := s.client.Call(s.ctx, http.MethodGet,
		fmt.Sprintf("/chatrooms/%d/messages", s.roomID), nil,
		&transport.Identity{UserID: s.userID})
	if err != nil {
		return nil, err
	}

	var messages []models.Message
	if err := json.Unmarshal(raw, &messages); err != nil {
		return nil, fmt.Errorf("failed to decode messages: %w", err)
	}

	return messages, nil
}

func (s *Session) fetchParticipantCount() (int, error) {
	raw, err := s.client.Call(s.ctx, http.MethodGet,
		fmt.Sprintf("/chatrooms/%d/participants/count", s.roomID), nil,
		&transport.Identity{UserID: s.userID})
	if err != nil {
		return 0, err
	}

	var count int
	if err := json.Unmarshal(raw, &count); err != nil {
		return 0, fmt.Errorf("failed to decode participant count: %w", err)
	}

	return count, nil
}
