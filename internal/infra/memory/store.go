package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"live-assessment-service/internal/domain"
)

// Store is an in-memory implementation of app.Store. A single lock guards all
// records, which makes CommitSubmission trivially atomic.
type Store struct {
	mu           sync.RWMutex
	sessions     map[string]domain.QuizSession
	codes        map[string]string
	participants map[string]domain.Participant
	bySession    map[string][]string
	responses    map[string][]domain.Response // by participant, append order
	latest       map[pairKey]domain.Response
}

type pairKey struct {
	participantID string
	questionID    string
}

func NewStore() *Store {
	return &Store{
		sessions:     make(map[string]domain.QuizSession),
		codes:        make(map[string]string),
		participants: make(map[string]domain.Participant),
		bySession:    make(map[string][]string),
		responses:    make(map[string][]domain.Response),
		latest:       make(map[pairKey]domain.Response),
	}
}

func (s *Store) CreateSession(_ context.Context, session domain.QuizSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.codes[session.Code]; ok {
		return domain.ErrJoinCodeTaken
	}
	s.sessions[session.ID] = session
	s.codes[session.Code] = session.ID
	return nil
}

func (s *Store) GetSession(_ context.Context, id string) (domain.QuizSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[id]
	if !ok {
		return domain.QuizSession{}, domain.ErrSessionNotFound
	}
	return session, nil
}

func (s *Store) GetSessionByCode(_ context.Context, code string) (domain.QuizSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.codes[code]
	if !ok {
		return domain.QuizSession{}, domain.ErrSessionNotFound
	}
	return s.sessions[id], nil
}

func (s *Store) UpdateSession(_ context.Context, session domain.QuizSession, expectedVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.sessions[session.ID]
	if !ok {
		return domain.ErrSessionNotFound
	}
	if current.Version != expectedVersion {
		return domain.ErrConflict
	}
	s.sessions[session.ID] = session
	return nil
}

func (s *Store) CreateParticipant(_ context.Context, p domain.Participant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[p.SessionID]; !ok {
		return domain.ErrSessionNotFound
	}
	if p.ExternalStudentID != "" {
		for _, id := range s.bySession[p.SessionID] {
			if s.participants[id].ExternalStudentID == p.ExternalStudentID {
				return domain.ErrExternalIDTaken
			}
		}
	}
	s.participants[p.ID] = p
	s.bySession[p.SessionID] = append(s.bySession[p.SessionID], p.ID)
	return nil
}

func (s *Store) GetParticipant(_ context.Context, id string) (domain.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.participants[id]
	if !ok {
		return domain.Participant{}, domain.ErrParticipantNotFound
	}
	return p, nil
}

func (s *Store) FindParticipantByExternalID(_ context.Context, sessionID, externalID string) (domain.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, id := range s.bySession[sessionID] {
		if p := s.participants[id]; p.ExternalStudentID == externalID {
			return p, nil
		}
	}
	return domain.Participant{}, domain.ErrParticipantNotFound
}

func (s *Store) ListParticipants(_ context.Context, sessionID string) ([]domain.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.bySession[sessionID]
	out := make([]domain.Participant, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.participants[id])
	}
	return out, nil
}

func (s *Store) TouchParticipant(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.participants[id]
	if !ok {
		return domain.ErrParticipantNotFound
	}
	if at.After(p.LastSeenAt) {
		p.LastSeenAt = at
		s.participants[id] = p
	}
	return nil
}

func (s *Store) LatestResponse(_ context.Context, participantID, questionID string) (domain.Response, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.latest[pairKey{participantID, questionID}]
	return r, ok, nil
}

func (s *Store) ListResponses(_ context.Context, participantID string) ([]domain.Response, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Response, len(s.responses[participantID]))
	copy(out, s.responses[participantID])
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].SubmittedAt.Before(out[j].SubmittedAt)
	})
	return out, nil
}

func (s *Store) CommitSubmission(_ context.Context, c domain.SubmissionCommit) (domain.Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	resp := c.Response
	session, ok := s.sessions[resp.SessionID]
	if !ok {
		return domain.Participant{}, domain.ErrSessionNotFound
	}
	if err := session.AcceptsAnswerFor(resp.QuestionID); err != nil {
		return domain.Participant{}, err
	}
	p, ok := s.participants[resp.ParticipantID]
	if !ok || p.SessionID != session.ID {
		return domain.Participant{}, domain.ErrParticipantNotFound
	}
	key := pairKey{resp.ParticipantID, resp.QuestionID}
	if s.latest[key].Attempt != c.PreviousAttempt {
		return domain.Participant{}, domain.ErrConflict
	}

	s.responses[resp.ParticipantID] = append(s.responses[resp.ParticipantID], resp)
	s.latest[key] = resp

	p.Score = domain.RoundScore(p.Score + c.Delta.Score)
	p.ResponseCount += c.Delta.Responded
	p.CorrectCount += c.Delta.Correct
	if resp.SubmittedAt.After(p.LastSeenAt) {
		p.LastSeenAt = resp.SubmittedAt
	}
	s.participants[p.ID] = p
	return p, nil
}
