package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"live-assessment-service/internal/domain"
)

// Store is a Redis implementation of app.Store, so several service instances
// can share session state.
//
// Layout (all keys expire after ttl when ttl > 0):
//
//	live:session:{id}               JSON session
//	live:code:{code}                session id
//	live:session:{id}:participants  SET of participant ids
//	live:session:{id}:external      HASH externalStudentId -> participant id
//	live:session:{id}:seen          ZSET participant id scored by lastSeenAt (µs)
//	live:participant:{id}           HASH identity and aggregates
//	live:responses:{pid}            LIST of JSON responses in commit order
//	live:latest:{pid}               HASH questionId -> JSON latest response
//
// Session updates and submission commits are WATCH/MULTI transactions; a lost
// race surfaces as domain.ErrConflict.
type Store struct {
	client *redis.Client
	ttl    time.Duration
}

func NewStore(client *redis.Client, ttl time.Duration) *Store {
	return &Store{client: client, ttl: ttl}
}

// CreateSession claims the join code and writes the session in one MULTI, so
// a failed create never leaves an orphaned code.
func (s *Store) CreateSession(ctx context.Context, session domain.QuizSession) error {
	raw, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	code := codeKey(session.Code)
	err = s.client.Watch(ctx, func(tx *redis.Tx) error {
		taken, err := tx.Exists(ctx, code).Result()
		if err != nil {
			return err
		}
		if taken > 0 {
			return domain.ErrJoinCodeTaken
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, code, session.ID, s.ttl)
			pipe.Set(ctx, sessionKey(session.ID), raw, s.ttl)
			return nil
		})
		return err
	}, code)
	if errors.Is(err, redis.TxFailedErr) {
		return domain.ErrJoinCodeTaken
	}
	return err
}

func (s *Store) GetSession(ctx context.Context, id string) (domain.QuizSession, error) {
	return readSession(ctx, s.client, id)
}

func (s *Store) GetSessionByCode(ctx context.Context, code string) (domain.QuizSession, error) {
	id, err := s.client.Get(ctx, codeKey(code)).Result()
	if errors.Is(err, redis.Nil) {
		return domain.QuizSession{}, domain.ErrSessionNotFound
	}
	if err != nil {
		return domain.QuizSession{}, err
	}
	return readSession(ctx, s.client, id)
}

func (s *Store) UpdateSession(ctx context.Context, session domain.QuizSession, expectedVersion int64) error {
	raw, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	key := sessionKey(session.ID)
	err = s.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := readSession(ctx, tx, session.ID)
		if err != nil {
			return err
		}
		if current.Version != expectedVersion {
			return domain.ErrConflict
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, raw, s.ttl)
			return nil
		})
		return err
	}, key)
	return txError(err)
}

// CreateParticipant claims the external student id, if any, in the same
// transaction that writes the participant. Another instance that claimed it
// first wins and the caller gets domain.ErrExternalIDTaken.
func (s *Store) CreateParticipant(ctx context.Context, p domain.Participant) error {
	exists, err := s.client.Exists(ctx, sessionKey(p.SessionID)).Result()
	if err != nil {
		return err
	}
	if exists == 0 {
		return domain.ErrSessionNotFound
	}
	if p.ExternalStudentID == "" {
		_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			s.writeParticipant(ctx, pipe, p)
			return nil
		})
		return err
	}

	index := externalKey(p.SessionID)
	for attempt := 0; attempt < maxClaimAttempts; attempt++ {
		err = s.client.Watch(ctx, func(tx *redis.Tx) error {
			owner, err := tx.HGet(ctx, index, p.ExternalStudentID).Result()
			switch {
			case err == nil && owner == p.ID:
				return nil
			case err == nil:
				return domain.ErrExternalIDTaken
			case !errors.Is(err, redis.Nil):
				return err
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.HSet(ctx, index, p.ExternalStudentID, p.ID)
				s.writeParticipant(ctx, pipe, p)
				return nil
			})
			return err
		}, index)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
	}
	return domain.ErrConflict
}

// maxClaimAttempts bounds WATCH retries when other joins touch the same
// external-id index concurrently.
const maxClaimAttempts = 5

func (s *Store) writeParticipant(ctx context.Context, pipe redis.Pipeliner, p domain.Participant) {
	pipe.HSet(ctx, participantKey(p.ID), participantFields(p))
	pipe.SAdd(ctx, membersKey(p.SessionID), p.ID)
	pipe.ZAdd(ctx, seenKey(p.SessionID), redis.Z{Score: micros(p.LastSeenAt), Member: p.ID})
	s.expire(ctx, pipe, participantKey(p.ID), membersKey(p.SessionID), seenKey(p.SessionID), externalKey(p.SessionID))
}

func (s *Store) GetParticipant(ctx context.Context, id string) (domain.Participant, error) {
	fields, err := s.client.HGetAll(ctx, participantKey(id)).Result()
	if err != nil {
		return domain.Participant{}, err
	}
	if len(fields) == 0 {
		return domain.Participant{}, domain.ErrParticipantNotFound
	}
	p, err := parseParticipant(id, fields)
	if err != nil {
		return domain.Participant{}, err
	}
	seen, err := s.client.ZScore(ctx, seenKey(p.SessionID), id).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return domain.Participant{}, err
	}
	if err == nil {
		p.LastSeenAt = fromMicros(seen)
	}
	return p, nil
}

func (s *Store) FindParticipantByExternalID(ctx context.Context, sessionID, externalID string) (domain.Participant, error) {
	id, err := s.client.HGet(ctx, externalKey(sessionID), externalID).Result()
	if errors.Is(err, redis.Nil) {
		return domain.Participant{}, domain.ErrParticipantNotFound
	}
	if err != nil {
		return domain.Participant{}, err
	}
	return s.GetParticipant(ctx, id)
}

func (s *Store) ListParticipants(ctx context.Context, sessionID string) ([]domain.Participant, error) {
	ids, err := s.client.SMembers(ctx, membersKey(sessionID)).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []domain.Participant{}, nil
	}
	pipe := s.client.Pipeline()
	hashes := make([]*redis.MapStringStringCmd, len(ids))
	for i, id := range ids {
		hashes[i] = pipe.HGetAll(ctx, participantKey(id))
	}
	seen := pipe.ZRangeWithScores(ctx, seenKey(sessionID), 0, -1)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, err
	}

	lastSeen := make(map[string]time.Time, len(ids))
	for _, z := range seen.Val() {
		if member, ok := z.Member.(string); ok {
			lastSeen[member] = fromMicros(z.Score)
		}
	}
	out := make([]domain.Participant, 0, len(ids))
	for i, id := range ids {
		fields := hashes[i].Val()
		if len(fields) == 0 {
			continue
		}
		p, err := parseParticipant(id, fields)
		if err != nil {
			return nil, err
		}
		if at, ok := lastSeen[id]; ok {
			p.LastSeenAt = at
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].JoinedAt.Equal(out[j].JoinedAt) {
			return out[i].JoinedAt.Before(out[j].JoinedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// TouchParticipant relies on ZADD GT so lastSeenAt never moves backwards.
func (s *Store) TouchParticipant(ctx context.Context, id string, at time.Time) error {
	sessionID, err := s.client.HGet(ctx, participantKey(id), "sessionId").Result()
	if errors.Is(err, redis.Nil) {
		return domain.ErrParticipantNotFound
	}
	if err != nil {
		return err
	}
	return s.client.ZAddGT(ctx, seenKey(sessionID), redis.Z{Score: micros(at), Member: id}).Err()
}

func (s *Store) LatestResponse(ctx context.Context, participantID, questionID string) (domain.Response, bool, error) {
	return latestResponse(ctx, s.client, participantID, questionID)
}

func (s *Store) ListResponses(ctx context.Context, participantID string) ([]domain.Response, error) {
	items, err := s.client.LRange(ctx, responsesKey(participantID), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]domain.Response, 0, len(items))
	for _, item := range items {
		var r domain.Response
		if err := json.Unmarshal([]byte(item), &r); err != nil {
			return nil, fmt.Errorf("unmarshal response: %w", err)
		}
		out = append(out, r)
	}
	return out, nil
}

func (s *Store) CommitSubmission(ctx context.Context, c domain.SubmissionCommit) (domain.Participant, error) {
	resp := c.Response
	raw, err := json.Marshal(resp)
	if err != nil {
		return domain.Participant{}, fmt.Errorf("marshal response: %w", err)
	}

	var (
		fields *redis.MapStringStringCmd
		seen   *redis.FloatCmd
	)
	pKey := participantKey(resp.ParticipantID)
	lKey := latestKey(resp.ParticipantID)
	err = s.client.Watch(ctx, func(tx *redis.Tx) error {
		session, err := readSession(ctx, tx, resp.SessionID)
		if err != nil {
			return err
		}
		if err := session.AcceptsAnswerFor(resp.QuestionID); err != nil {
			return err
		}
		owner, err := tx.HGet(ctx, pKey, "sessionId").Result()
		if errors.Is(err, redis.Nil) || (err == nil && owner != session.ID) {
			return domain.ErrParticipantNotFound
		}
		if err != nil {
			return err
		}
		latest, _, err := latestResponse(ctx, tx, resp.ParticipantID, resp.QuestionID)
		if err != nil {
			return err
		}
		if latest.Attempt != c.PreviousAttempt {
			return domain.ErrConflict
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.RPush(ctx, responsesKey(resp.ParticipantID), raw)
			pipe.HSet(ctx, lKey, resp.QuestionID, raw)
			if c.Delta.Score != 0 {
				pipe.HIncrByFloat(ctx, pKey, "score", c.Delta.Score)
			}
			if c.Delta.Responded != 0 {
				pipe.HIncrBy(ctx, pKey, "responseCount", int64(c.Delta.Responded))
			}
			if c.Delta.Correct != 0 {
				pipe.HIncrBy(ctx, pKey, "correctCount", int64(c.Delta.Correct))
			}
			pipe.ZAddGT(ctx, seenKey(session.ID), redis.Z{Score: micros(resp.SubmittedAt), Member: resp.ParticipantID})
			s.expire(ctx, pipe, responsesKey(resp.ParticipantID), lKey, pKey)
			fields = pipe.HGetAll(ctx, pKey)
			seen = pipe.ZScore(ctx, seenKey(session.ID), resp.ParticipantID)
			return nil
		})
		return err
	}, sessionKey(resp.SessionID), lKey)
	if err := txError(err); err != nil {
		return domain.Participant{}, err
	}

	p, err := parseParticipant(resp.ParticipantID, fields.Val())
	if err != nil {
		return domain.Participant{}, err
	}
	p.LastSeenAt = fromMicros(seen.Val())
	return p, nil
}

func (s *Store) expire(ctx context.Context, pipe redis.Pipeliner, keys ...string) {
	if s.ttl <= 0 {
		return
	}
	for _, key := range keys {
		pipe.Expire(ctx, key, s.ttl)
	}
}

// reader is the read subset shared by *redis.Client and *redis.Tx.
type reader interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	HGet(ctx context.Context, key, field string) *redis.StringCmd
}

func readSession(ctx context.Context, c reader, id string) (domain.QuizSession, error) {
	raw, err := c.Get(ctx, sessionKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.QuizSession{}, domain.ErrSessionNotFound
	}
	if err != nil {
		return domain.QuizSession{}, err
	}
	var session domain.QuizSession
	if err := json.Unmarshal(raw, &session); err != nil {
		return domain.QuizSession{}, fmt.Errorf("unmarshal session: %w", err)
	}
	return session, nil
}

func latestResponse(ctx context.Context, c reader, participantID, questionID string) (domain.Response, bool, error) {
	raw, err := c.HGet(ctx, latestKey(participantID), questionID).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Response{}, false, nil
	}
	if err != nil {
		return domain.Response{}, false, err
	}
	var r domain.Response
	if err := json.Unmarshal(raw, &r); err != nil {
		return domain.Response{}, false, fmt.Errorf("unmarshal response: %w", err)
	}
	return r, true, nil
}

// txError maps an aborted EXEC to a version conflict.
func txError(err error) error {
	if errors.Is(err, redis.TxFailedErr) {
		return domain.ErrConflict
	}
	return err
}

func participantFields(p domain.Participant) map[string]interface{} {
	return map[string]interface{}{
		"sessionId":         p.SessionID,
		"displayName":       p.DisplayName,
		"externalStudentId": p.ExternalStudentID,
		"joinedAt":          p.JoinedAt.UTC().Format(time.RFC3339Nano),
		"score":             strconv.FormatFloat(p.Score, 'f', -1, 64),
		"responseCount":     p.ResponseCount,
		"correctCount":      p.CorrectCount,
	}
}

func parseParticipant(id string, fields map[string]string) (domain.Participant, error) {
	p := domain.Participant{
		ID:                id,
		SessionID:         fields["sessionId"],
		DisplayName:       fields["displayName"],
		ExternalStudentID: fields["externalStudentId"],
	}
	var err error
	if p.JoinedAt, err = time.Parse(time.RFC3339Nano, fields["joinedAt"]); err != nil {
		return domain.Participant{}, fmt.Errorf("participant %s joinedAt: %w", id, err)
	}
	p.LastSeenAt = p.JoinedAt
	if p.Score, err = strconv.ParseFloat(fields["score"], 64); err != nil {
		return domain.Participant{}, fmt.Errorf("participant %s score: %w", id, err)
	}
	p.Score = domain.RoundScore(p.Score)
	if p.ResponseCount, err = strconv.Atoi(fields["responseCount"]); err != nil {
		return domain.Participant{}, fmt.Errorf("participant %s responseCount: %w", id, err)
	}
	if p.CorrectCount, err = strconv.Atoi(fields["correctCount"]); err != nil {
		return domain.Participant{}, fmt.Errorf("participant %s correctCount: %w", id, err)
	}
	return p, nil
}

func micros(t time.Time) float64 {
	return float64(t.UnixMicro())
}

func fromMicros(f float64) time.Time {
	return time.UnixMicro(int64(f)).UTC()
}

func sessionKey(id string) string     { return "live:session:" + id }
func codeKey(code string) string      { return "live:code:" + code }
func membersKey(id string) string     { return "live:session:" + id + ":participants" }
func externalKey(id string) string    { return "live:session:" + id + ":external" }
func seenKey(id string) string        { return "live:session:" + id + ":seen" }
func participantKey(id string) string { return "live:participant:" + id }
func responsesKey(pid string) string  { return "live:responses:" + pid }
func latestKey(pid string) string     { return "live:latest:" + pid }
