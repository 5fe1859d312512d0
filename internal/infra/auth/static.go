package auth

import (
	"context"

	"pvp-quiz-service/internal/domain"
)

// StaticVerifier resolves tokens from a fixed map. Useful for demos and
// tests where a real token service is overkill.
type StaticVerifier struct {
	tokens map[string]domain.Participant
}

func NewStaticVerifier(tokens map[string]domain.Participant) *StaticVerifier {
	return &StaticVerifier{tokens: tokens}
}

func (v *StaticVerifier) Verify(_ context.Context, token string) (domain.Participant, error) {
	p, ok := v.tokens[token]
	if !ok {
		return domain.Participant{}, domain.ErrInvalidToken
	}
	return p, nil
}
