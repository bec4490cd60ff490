// internal/service/session_service.go
package service

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"animation-studio/internal/client"
	"animation-studio/internal/models"
	"animation-studio/internal/storage"
	"animation-studio/internal/validation"

	"github.com/google/uuid"
)

// Sentinel errors, matched with errors.Is.
var (
	ErrSessionNotFound    = errors.New("session not found")
	ErrSubmissionInFlight = errors.New("a generation is already running for this session")
)

const (
	DefaultHistoryLimit = 50
	DefaultSessionTTL   = 24 * time.Hour
)

// Generator is the single collaborator a session submits to.
type Generator interface {
	Generate(ctx context.Context, description string) client.Result
}

// Notifier is told about every session state transition.
type Notifier interface {
	Publish(sessionID uuid.UUID, loading bool, message string)
}

type OutcomeKind int

const (
	OutcomeNoop OutcomeKind = iota
	OutcomeVideo
	OutcomeError
)

// Outcome is what one Submit call resulted in: exactly one of no-op, a new
// video, or a surfaced error message.
type Outcome struct {
	Kind       OutcomeKind
	Submission *models.Submission
	Message    string
}

// Session is the per-browser page state. Fields are guarded by mu.
type Session struct {
	ID uuid.UUID

	mu       sync.Mutex
	input    string
	loading  bool
	history  []models.Submission
	current  string
	message  string
	lastSeen time.Time
}

type SessionService struct {
	Generator    Generator
	Videos       storage.Storage
	Notifier     Notifier
	HistoryLimit int
	TTL          time.Duration
	Now          func() time.Time

	mu       sync.Mutex
	sessions map[uuid.UUID]*Session
	inflight sync.WaitGroup
}

func NewSessionService(gen Generator, videos storage.Storage, notifier Notifier) *SessionService {
	return &SessionService{
		Generator:    gen,
		Videos:       videos,
		Notifier:     notifier,
		HistoryLimit: DefaultHistoryLimit,
		TTL:          DefaultSessionTTL,
		Now:          time.Now,
		sessions:     make(map[uuid.UUID]*Session),
	}
}

// FindOrCreateSession returns the session for id, or a fresh one when id is
// unknown (first visit, expired cookie, restarted process).
func (s *SessionService) FindOrCreateSession(id uuid.UUID) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess, ok := s.sessions[id]; ok {
		sess.touch(s.Now())
		return sess
	}

	sess := &Session{ID: uuid.New(), lastSeen: s.Now()}
	s.sessions[sess.ID] = sess
	return sess
}

func (s *SessionService) GetSession(id uuid.UUID) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	sess.touch(s.Now())
	return sess, nil
}

// Submit runs one generation for the session and waits for it to finish.
func (s *SessionService) Submit(ctx context.Context, id uuid.UUID, raw string) (Outcome, error) {
	sess, desc, early, err := s.begin(id, raw)
	if err != nil {
		return Outcome{Kind: OutcomeNoop}, err
	}
	if early != nil {
		return *early, nil
	}
	return s.run(ctx, sess, desc), nil
}

// SubmitAsync starts a generation in the background and reports whether one
// was started. ctx must outlive the HTTP request that triggered it.
func (s *SessionService) SubmitAsync(ctx context.Context, id uuid.UUID, raw string) (bool, error) {
	sess, desc, early, err := s.begin(id, raw)
	if err != nil || early != nil {
		return false, err
	}

	go s.run(ctx, sess, desc)
	return true, nil
}

// Wait blocks until every running generation has concluded.
func (s *SessionService) Wait() {
	s.inflight.Wait()
}

// begin moves the session to Submitting. When no request should be issued
// it returns the final outcome instead: a no-op for empty input, an error
// for a description that fails validation.
func (s *SessionService) begin(id uuid.UUID, raw string) (*Session, string, *Outcome, error) {
	sess, err := s.GetSession(id)
	if err != nil {
		return nil, "", nil, err
	}

	desc, err := validation.NormalizeDescription(raw)
	if errors.Is(err, validation.ErrEmptyDescription) {
		return nil, "", &Outcome{Kind: OutcomeNoop}, nil
	}

	sess.mu.Lock()
	if sess.loading {
		sess.mu.Unlock()
		return nil, "", nil, ErrSubmissionInFlight
	}
	if err != nil {
		sess.input = raw
		sess.message = err.Error()
		sess.mu.Unlock()
		s.publish(sess.ID, false, err.Error())
		return nil, "", &Outcome{Kind: OutcomeError, Message: err.Error()}, nil
	}
	sess.input = raw
	sess.loading = true
	sess.message = ""
	sess.mu.Unlock()

	s.inflight.Add(1)
	s.publish(sess.ID, true, "")
	return sess, desc, nil, nil
}

func (s *SessionService) run(ctx context.Context, sess *Session, desc string) (out Outcome) {
	defer s.inflight.Done()
	defer func() {
		sess.mu.Lock()
		sess.loading = false
		if out.Kind == OutcomeError {
			sess.message = out.Message
		}
		sess.mu.Unlock()
		s.publish(sess.ID, false, out.Message)
	}()

	res := s.Generator.Generate(ctx, desc)
	if !res.OK() {
		log.Printf("session %s: generation failed (%s): %v", sess.ID, res.Kind, res.Err)
		return Outcome{Kind: OutcomeError, Message: res.Message}
	}

	key, err := s.Videos.Save(ctx, res.Video, validation.VideoExtension(res.ContentType))
	if err != nil {
		log.Printf("session %s: storing video failed: %v", sess.ID, err)
		return Outcome{Kind: OutcomeError, Message: client.MsgUnknown}
	}

	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	sub := models.Submission{
		ID:          id,
		Description: desc,
		VideoKey:    key,
		CreatedAt:   s.Now(),
	}

	sess.mu.Lock()
	sess.history = append([]models.Submission{sub}, sess.history...)
	evicted := s.evict(sess)
	sess.current = key
	sess.input = ""
	sess.mu.Unlock()

	s.release(evicted)
	return Outcome{Kind: OutcomeVideo, Submission: &sub}
}

// evict trims history to HistoryLimit and returns the dropped records.
// Callers hold sess.mu.
func (s *SessionService) evict(sess *Session) []models.Submission {
	if s.HistoryLimit <= 0 || len(sess.history) <= s.HistoryLimit {
		return nil
	}
	evicted := append([]models.Submission(nil), sess.history[s.HistoryLimit:]...)
	sess.history = sess.history[:s.HistoryLimit]
	for _, sub := range evicted {
		if sub.VideoKey == sess.current {
			sess.current = ""
		}
	}
	return evicted
}

func (s *SessionService) release(subs []models.Submission) {
	for _, sub := range subs {
		if err := s.Videos.Delete(context.Background(), sub.VideoKey); err != nil && !errors.Is(err, storage.ErrVideoNotFound) {
			log.Printf("release video %s: %v", sub.VideoKey, err)
		}
	}
}

// Select shows a past submission. Unknown submission IDs leave the session
// untouched.
func (s *SessionService) Select(id, submissionID uuid.UUID) error {
	sess, err := s.GetSession(id)
	if err != nil {
		return err
	}

	sess.mu.Lock()
	changed := false
	for _, sub := range sess.history {
		if sub.ID == submissionID {
			sess.current = sub.VideoKey
			changed = true
			break
		}
	}
	loading := sess.loading
	sess.mu.Unlock()

	if changed {
		s.publish(sess.ID, loading, "")
	}
	return nil
}

// Snapshot copies the session state without side effects.
func (s *SessionService) Snapshot(id uuid.UUID) (models.SessionView, error) {
	sess, err := s.GetSession(id)
	if err != nil {
		return models.SessionView{}, err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.view(), nil
}

// View copies the session state for rendering and consumes the pending
// message, so each message is shown once.
func (s *SessionService) View(id uuid.UUID) (models.SessionView, error) {
	sess, err := s.GetSession(id)
	if err != nil {
		return models.SessionView{}, err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	v := sess.view()
	sess.message = ""
	return v, nil
}

// Owns reports whether key belongs to the session's history.
func (s *SessionService) Owns(id uuid.UUID, key string) bool {
	sess, err := s.GetSession(id)
	if err != nil {
		return false
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	for _, sub := range sess.history {
		if sub.VideoKey == key {
			return true
		}
	}
	return false
}

// Reap drops sessions idle longer than TTL together with their videos.
// Sessions with a generation running are kept.
func (s *SessionService) Reap() int {
	cutoff := s.Now().Add(-s.TTL)

	var dropped []*Session
	s.mu.Lock()
	for id, sess := range s.sessions {
		sess.mu.Lock()
		idle := !sess.loading && sess.lastSeen.Before(cutoff)
		sess.mu.Unlock()
		if idle {
			delete(s.sessions, id)
			dropped = append(dropped, sess)
		}
	}
	s.mu.Unlock()

	for _, sess := range dropped {
		sess.mu.Lock()
		history := sess.history
		sess.history = nil
		sess.mu.Unlock()
		s.release(history)
	}
	return len(dropped)
}

// RunReaper calls Reap every interval until ctx is done.
func (s *SessionService) RunReaper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.Reap(); n > 0 {
				log.Printf("reaped %d idle sessions", n)
			}
		}
	}
}

func (s *SessionService) publish(id uuid.UUID, loading bool, message string) {
	if s.Notifier != nil {
		s.Notifier.Publish(id, loading, message)
	}
}

func (sess *Session) touch(now time.Time) {
	sess.mu.Lock()
	sess.lastSeen = now
	sess.mu.Unlock()
}

// view copies state. Callers hold sess.mu.
func (sess *Session) view() models.SessionView {
	history := make([]models.Submission, len(sess.history))
	copy(history, sess.history)
	return models.SessionView{
		SessionID:    sess.ID,
		Input:        sess.input,
		Loading:      sess.loading,
		CurrentVideo: sess.current,
		Message:      sess.message,
		History:      history,
	}
}
