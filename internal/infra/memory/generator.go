package memory

import (
	"context"
	"fmt"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"pvp-quiz-service/internal/domain"
)

// Generator produces random arithmetic questions. It is the in-process
// question source used when no question bank is configured.
type Generator struct {
	timeLimit time.Duration

	mu  sync.Mutex
	rnd *rand.Rand
}

func NewGenerator(timeLimit time.Duration) *Generator {
	return &Generator{
		timeLimit: timeLimit,
		rnd:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

var operators = []string{"+", "-", "*"}

// NextQuestion returns a random a-op-b question with operands in 1..100.
// Level and difficulty are accepted for interface compatibility; generated
// arithmetic does not scale with them.
func (g *Generator) NextQuestion(_ context.Context, _, _ int) (domain.Question, error) {
	g.mu.Lock()
	a := g.rnd.Intn(100) + 1
	b := g.rnd.Intn(100) + 1
	op := operators[g.rnd.Intn(len(operators))]
	g.mu.Unlock()

	var answer int
	switch op {
	case "+":
		answer = a + b
	case "-":
		answer = a - b
	default:
		answer = a * b
	}

	return domain.Question{
		Text:      fmt.Sprintf("%d %s %d = ?", a, op, b),
		Answer:    strconv.Itoa(answer),
		TimeLimit: g.timeLimit,
	}, nil
}
