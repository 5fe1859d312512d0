package app

import (
	"context"

	"pvp-quiz-service/internal/domain"
)

// IdentityVerifier is the external identity collaborator. The engine never
// parses credentials itself; it hands the raw token over and gets a
// participant back, or an auth failure.
type IdentityVerifier interface {
	Verify(ctx context.Context, token string) (domain.Participant, error)
}
