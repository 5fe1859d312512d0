package app

import (
	"context"
	"log"
	"sync"
	"time"

	"pvp-quiz-service/internal/domain"
)

const collaboratorTimeout = 10 * time.Second

// MatchConfig carries the tunables for one match.
type MatchConfig struct {
	TotalQuestions int
	QuestionTime   time.Duration
	Reward         int
	Level          int
	Difficulty     int
	RetryAttempts  int
	RetryBackoff   time.Duration
}

func (c MatchConfig) withDefaults() MatchConfig {
	if c.TotalQuestions <= 0 {
		c.TotalQuestions = 10
	}
	if c.QuestionTime <= 0 {
		c.QuestionTime = 30 * time.Second
	}
	if c.Reward <= 0 {
		c.Reward = DefaultReward
	}
	if c.RetryAttempts <= 0 {
		c.RetryAttempts = 3
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = 100 * time.Millisecond
	}
	return c
}

// Match coordinates one competitive session. All state mutation funnels
// through its mutex, so no two goroutines ever touch the same match state
// concurrently; events are published only after the mutex is released.
type Match struct {
	id     string
	roomID string
	cfg    MatchConfig

	bus     *Bus
	source  QuestionSource
	results ResultStore
	lb      LeaderboardSink
	onDone  func(completed bool)
	now     func() time.Time
	after   func(d time.Duration, f func()) *time.Timer

	mu       sync.Mutex
	status   domain.MatchStatus
	current  int
	question domain.Question
	players  map[string]*domain.PlayerState
	order    []string
	answers  map[int]map[string]domain.Answer
	timer    *time.Timer
}

// NewMatch snapshots the given participants as the match's players. Later
// room membership changes do not affect the snapshot. lb may be nil; onDone
// is notified asynchronously exactly once when the match ends.
func NewMatch(id, roomID string, participants []domain.Participant, cfg MatchConfig,
	bus *Bus, source QuestionSource, results ResultStore, lb LeaderboardSink,
	onDone func(completed bool)) *Match {

	m := &Match{
		id:      id,
		roomID:  roomID,
		cfg:     cfg.withDefaults(),
		bus:     bus,
		source:  source,
		results: results,
		lb:      lb,
		onDone:  onDone,
		now:     time.Now,
		after:   time.AfterFunc,
		status:  domain.MatchWaiting,
		players: make(map[string]*domain.PlayerState, len(participants)),
		answers: make(map[int]map[string]domain.Answer),
	}
	for _, p := range participants {
		if _, dup := m.players[p.UserID]; dup {
			continue
		}
		m.players[p.UserID] = &domain.PlayerState{Participant: p, Connected: true}
		m.order = append(m.order, p.UserID)
	}
	return m
}

func (m *Match) ID() string     { return m.id }
func (m *Match) RoomID() string { return m.roomID }

func (m *Match) Status() domain.MatchStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// Players returns the player states in join order.
func (m *Match) Players() []domain.PlayerState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.orderedLocked()
}

func (m *Match) orderedLocked() []domain.PlayerState {
	out := make([]domain.PlayerState, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, *m.players[id])
	}
	return out
}

// Start issues the first question and begins the per-question timer. A match
// whose question source is unreachable is cancelled, never left waiting.
func (m *Match) Start(ctx context.Context) {
	m.mu.Lock()
	if m.status != domain.MatchWaiting {
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()

	q, err := m.fetchQuestion(ctx)
	if err != nil {
		log.Printf("match %s: first question failed: %v", m.id, err)
		m.cancel("failed to load question")
		return
	}

	m.mu.Lock()
	if m.status != domain.MatchWaiting {
		m.mu.Unlock()
		return
	}
	m.status = domain.MatchActive
	m.current = 1
	q.Number = 1
	m.question = q
	m.armTimerLocked()
	view := m.questionViewLocked()
	m.mu.Unlock()

	m.bus.Publish(GameTopic(m.roomID),
		domain.Event{Type: domain.EventGameStart, Data: domain.GameStartPayload{MatchID: m.id}},
		domain.Event{Type: domain.EventQuestion, Data: domain.QuestionPayload{Data: view}},
	)
}

// SubmitAnswer validates and applies one answer. At most one answer is
// accepted per (question, player); later submissions are rejected without
// touching the score.
func (m *Match) SubmitAnswer(userID string, questionNumber int, value string, responseTime float64) (domain.Answer, int, error) {
	m.mu.Lock()
	if m.status != domain.MatchActive {
		m.mu.Unlock()
		return domain.Answer{}, 0, domain.ErrMatchOver
	}
	ps, ok := m.players[userID]
	if !ok {
		m.mu.Unlock()
		return domain.Answer{}, 0, domain.ErrNotAPlayer
	}
	if questionNumber != m.current || !m.issuedLocked() {
		m.mu.Unlock()
		return domain.Answer{}, 0, domain.ErrStaleQuestion
	}
	if _, dup := m.answers[m.current][userID]; dup {
		m.mu.Unlock()
		return domain.Answer{}, 0, domain.ErrDuplicateAnswer
	}

	answer := domain.Answer{
		QuestionNumber: m.current,
		UserID:         userID,
		Value:          value,
		Correct:        value == m.question.Answer,
		ResponseTime:   responseTime,
	}
	*ps = ApplyAnswer(*ps, answer.Correct, responseTime, m.cfg.Reward)
	if m.answers[m.current] == nil {
		m.answers[m.current] = make(map[string]domain.Answer)
	}
	m.answers[m.current][userID] = answer

	score := ps.Score
	from := m.current
	allAnswered := m.allConnectedLocked(func(p *domain.PlayerState) bool { return p.Answered })
	m.mu.Unlock()

	m.bus.Publish(GameTopic(m.roomID), domain.Event{
		Type: domain.EventAnswerResult,
		Data: domain.AnswerResultPayload{
			UserID:         userID,
			QuestionNumber: answer.QuestionNumber,
			IsCorrect:      answer.Correct,
			Score:          score,
		},
	})

	if allAnswered {
		m.advanceFrom(from)
	}
	return answer, score, nil
}

// ReadyForNext records a player's advance vote. When every connected player
// has voted, the match moves on without waiting for the timer.
func (m *Match) ReadyForNext(userID string) error {
	m.mu.Lock()
	if m.status != domain.MatchActive {
		m.mu.Unlock()
		return domain.ErrMatchOver
	}
	ps, ok := m.players[userID]
	if !ok {
		m.mu.Unlock()
		return domain.ErrNotAPlayer
	}
	ps.ReadyForNext = true
	from := m.current
	all := m.issuedLocked() && m.allConnectedLocked(func(p *domain.PlayerState) bool { return p.ReadyForNext })
	m.mu.Unlock()

	if all {
		m.advanceFrom(from)
	}
	return nil
}

// PlayerDisconnected keeps the player's score in the ranking but stops
// counting them toward consensus. When nobody is left connected the match is
// cancelled and its channel released without persisting a result.
func (m *Match) PlayerDisconnected(userID string) {
	m.mu.Lock()
	ps, ok := m.players[userID]
	if !ok || (m.status != domain.MatchActive && m.status != domain.MatchWaiting) {
		m.mu.Unlock()
		return
	}
	ps.Connected = false

	anyConnected := false
	for _, p := range m.players {
		if p.Connected {
			anyConnected = true
			break
		}
	}
	if !anyConnected {
		m.status = domain.MatchCancelled
		m.stopTimerLocked()
		m.mu.Unlock()
		m.bus.CloseTopic(GameTopic(m.roomID))
		if m.onDone != nil {
			go m.onDone(false)
		}
		return
	}

	from := m.current
	active := m.status == domain.MatchActive
	allAnswered := active && m.issuedLocked() &&
		m.allConnectedLocked(func(p *domain.PlayerState) bool { return p.Answered })
	m.mu.Unlock()

	// A disconnect can complete the remaining players' consensus.
	if allAnswered {
		m.advanceFrom(from)
	}
}

// PlayerReconnected marks a snapshot player as connected again.
func (m *Match) PlayerReconnected(userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ps, ok := m.players[userID]
	if !ok {
		return domain.ErrNotAPlayer
	}
	ps.Connected = true
	return nil
}

// CurrentQuestion returns the in-flight question view, for clients that
// reconnect mid-question.
func (m *Match) CurrentQuestion() (domain.QuestionView, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.status != domain.MatchActive {
		return domain.QuestionView{}, domain.ErrMatchOver
	}
	return m.questionViewLocked(), nil
}

// Cancel force-ends the match, e.g. when its room is torn down.
func (m *Match) Cancel(reason string) {
	m.cancel(reason)
}

// issuedLocked reports whether the question for the current index has been
// published. While the next question is being fetched the index is already
// advanced but no question exists for it yet; answers and advance votes in
// that window must not be graded against the previous question.
func (m *Match) issuedLocked() bool {
	return m.question.Number == m.current
}

func (m *Match) allConnectedLocked(pred func(*domain.PlayerState) bool) bool {
	any := false
	for _, p := range m.players {
		if !p.Connected {
			continue
		}
		any = true
		if !pred(p) {
			return false
		}
	}
	return any
}

func (m *Match) questionViewLocked() domain.QuestionView {
	limit := m.question.TimeLimit
	if limit <= 0 {
		limit = m.cfg.QuestionTime
	}
	return domain.QuestionView{
		QuestionNumber: m.question.Number,
		QuestionText:   m.question.Text,
		TimeLimit:      int(limit / time.Second),
	}
}

func (m *Match) armTimerLocked() {
	m.stopTimerLocked()
	limit := m.question.TimeLimit
	if limit <= 0 {
		limit = m.cfg.QuestionTime
	}
	n := m.current
	m.timer = m.after(limit, func() { m.advanceFrom(n) })
}

func (m *Match) stopTimerLocked() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}

// advanceFrom moves past question n. It is a no-op unless the match is still
// active on exactly that question, which makes timer expiry, all-answered and
// all-ready triggers safely idempotent against each other.
func (m *Match) advanceFrom(n int) {
	m.mu.Lock()
	if m.status != domain.MatchActive || m.current != n {
		m.mu.Unlock()
		return
	}
	m.stopTimerLocked()

	if n >= m.cfg.TotalQuestions {
		m.status = domain.MatchCompleted
		rankings := Rank(m.orderedLocked())
		m.mu.Unlock()
		m.finish(rankings)
		return
	}

	m.current = n + 1
	m.mu.Unlock()

	q, err := m.fetchQuestion(context.Background())
	if err != nil {
		log.Printf("match %s: question %d failed: %v", m.id, n+1, err)
		m.cancel("failed to load question")
		return
	}

	m.mu.Lock()
	if m.status != domain.MatchActive || m.current != n+1 {
		m.mu.Unlock()
		return
	}
	q.Number = m.current
	m.question = q
	// Reset here, not before the fetch, so answers and votes that raced the
	// fetch never carry over to the question being issued.
	for _, p := range m.players {
		p.Answered = false
		p.ReadyForNext = false
	}
	m.armTimerLocked()
	view := m.questionViewLocked()
	m.mu.Unlock()

	m.bus.Publish(GameTopic(m.roomID), domain.Event{
		Type: domain.EventQuestion,
		Data: domain.QuestionPayload{Data: view},
	})
}

// fetchQuestion retries the question source with exponential backoff.
func (m *Match) fetchQuestion(ctx context.Context) (domain.Question, error) {
	var lastErr error
	backoff := m.cfg.RetryBackoff
	for attempt := 0; attempt < m.cfg.RetryAttempts; attempt++ {
		if attempt > 0 {
			time.Sleep(backoff)
			backoff *= 2
		}
		callCtx, cancel := context.WithTimeout(ctx, collaboratorTimeout)
		q, err := m.source.NextQuestion(callCtx, m.cfg.Level, m.cfg.Difficulty)
		cancel()
		if err == nil {
			return q, nil
		}
		lastErr = err
	}
	return domain.Question{}, lastErr
}

// finish publishes the final ranking, persists the result exactly once and
// signals the room. Persistence exhaustion downgrades the match to cancelled
// after telling everyone.
func (m *Match) finish(rankings []domain.RankingEntry) {
	m.bus.Publish(GameTopic(m.roomID), domain.Event{
		Type: domain.EventGameEnded,
		Data: domain.GameEndedPayload{Rankings: rankings},
	})

	result := domain.MatchResult{
		MatchID:  m.id,
		RoomID:   m.roomID,
		Rankings: rankings,
		EndedAt:  m.now(),
	}
	if err := m.saveResult(result); err != nil {
		log.Printf("match %s: save result failed: %v", m.id, err)
		m.mu.Lock()
		m.status = domain.MatchCancelled
		m.mu.Unlock()
		m.bus.Publish(GameTopic(m.roomID), domain.Event{
			Type: domain.EventGameError,
			Data: domain.GameErrorPayload{Message: "failed to save match result"},
		})
		if m.onDone != nil {
			go m.onDone(false)
		}
		return
	}

	if m.lb != nil {
		ctx, cancel := context.WithTimeout(context.Background(), collaboratorTimeout)
		rows, err := m.lb.Record(ctx, rankings)
		cancel()
		if err != nil {
			log.Printf("match %s: leaderboard update failed: %v", m.id, err)
		} else {
			m.bus.Publish(LeaderboardTopic, domain.Event{
				Type: domain.EventLeaderboardUpdate,
				Data: domain.LeaderboardUpdatePayload{Data: rows},
			})
		}
	}

	if m.onDone != nil {
		go m.onDone(true)
	}
}

func (m *Match) saveResult(result domain.MatchResult) error {
	var lastErr error
	backoff := m.cfg.RetryBackoff
	for attempt := 0; attempt < m.cfg.RetryAttempts; attempt++ {
		if attempt > 0 {
			time.Sleep(backoff)
			backoff *= 2
		}
		ctx, cancel := context.WithTimeout(context.Background(), collaboratorTimeout)
		err := m.results.SaveMatchResult(ctx, result)
		cancel()
		if err == nil {
			return nil
		}
		lastErr = err
	}
	return lastErr
}

func (m *Match) cancel(reason string) {
	m.mu.Lock()
	if m.status == domain.MatchCompleted || m.status == domain.MatchCancelled {
		m.mu.Unlock()
		return
	}
	m.status = domain.MatchCancelled
	m.stopTimerLocked()
	m.mu.Unlock()

	m.bus.Publish(GameTopic(m.roomID), domain.Event{
		Type: domain.EventGameError,
		Data: domain.GameErrorPayload{Message: reason},
	})
	if m.onDone != nil {
		go m.onDone(false)
	}
}
