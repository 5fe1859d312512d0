package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"pvp-quiz-service/internal/domain"
)

// BankLoader fetches the full question set for a level/difficulty pair from
// the backing store.
type BankLoader interface {
	LoadBank(ctx context.Context, level, difficulty int) ([]domain.Question, error)
}

// QuestionCache keeps each level's question bank in Redis so matches don't
// hammer the backing store on every question. Cache fills go through
// singleflight and expire with jitter to spread reloads.
type QuestionCache struct {
	client *redis.Client
	loader BankLoader
	ttl    time.Duration
	sf     singleflight.Group

	mu  sync.Mutex
	rnd *rand.Rand
}

func NewQuestionCache(client *redis.Client, loader BankLoader, ttl time.Duration) *QuestionCache {
	return &QuestionCache{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

type cachedQuestion struct {
	Text             string `json:"text"`
	Answer           string `json:"answer"`
	TimeLimitSeconds int    `json:"timeLimitSeconds"`
}

// NextQuestion serves a random question from the cached bank, filling the
// cache on miss.
func (c *QuestionCache) NextQuestion(ctx context.Context, level, difficulty int) (domain.Question, error) {
	key := c.bankKey(level, difficulty)

	if bank, ok := c.cachedBank(ctx, key); ok {
		return c.pick(bank), nil
	}

	result, err, _ := c.sf.Do(key, func() (interface{}, error) {
		// Re-check the cache in case another goroutine filled it.
		if bank, ok := c.cachedBank(ctx, key); ok {
			return bank, nil
		}

		questions, err := c.loader.LoadBank(ctx, level, difficulty)
		if err != nil {
			return nil, err
		}
		if len(questions) == 0 {
			return nil, fmt.Errorf("no questions for level=%d difficulty=%d", level, difficulty)
		}

		bank := make([]cachedQuestion, 0, len(questions))
		for _, q := range questions {
			bank = append(bank, cachedQuestion{
				Text:             q.Text,
				Answer:           q.Answer,
				TimeLimitSeconds: int(q.TimeLimit / time.Second),
			})
		}
		raw, err := json.Marshal(bank)
		if err != nil {
			return nil, err
		}
		_ = c.client.Set(ctx, key, raw, c.ttlWithJitter()).Err()
		return bank, nil
	})
	if err != nil {
		return domain.Question{}, err
	}
	return c.pick(result.([]cachedQuestion)), nil
}

func (c *QuestionCache) cachedBank(ctx context.Context, key string) ([]cachedQuestion, bool) {
	raw, err := c.client.Get(ctx, key).Bytes()
	if err != nil || len(raw) == 0 {
		return nil, false
	}
	var bank []cachedQuestion
	if err := json.Unmarshal(raw, &bank); err != nil || len(bank) == 0 {
		return nil, false
	}
	return bank, true
}

func (c *QuestionCache) pick(bank []cachedQuestion) domain.Question {
	c.mu.Lock()
	q := bank[c.rnd.Intn(len(bank))]
	c.mu.Unlock()
	return domain.Question{
		Text:      q.Text,
		Answer:    q.Answer,
		TimeLimit: time.Duration(q.TimeLimitSeconds) * time.Second,
	}
}

func (c *QuestionCache) bankKey(level, difficulty int) string {
	return fmt.Sprintf("pvp:questions:%d:%d", level, difficulty)
}

func (c *QuestionCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	// up to 10% jitter to spread expirations
	jitterMax := int64(c.ttl) / 10
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
