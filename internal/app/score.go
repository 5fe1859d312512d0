package app

import (
	"sort"

	"pvp-quiz-service/internal/domain"
)

// DefaultReward is the score added for each correct answer.
const DefaultReward = 10

// ApplyAnswer folds one answer outcome into a player's state and returns the
// updated copy. The response-time average uses the half-weighted recurrence
// avg' = (avg + t) / 2, which weights the newest sample equally against the
// whole history. Legacy clients depend on that exact sequence, so it is kept
// instead of a true mean.
func ApplyAnswer(ps domain.PlayerState, correct bool, responseTime float64, reward int) domain.PlayerState {
	if correct {
		ps.Score += reward
		ps.Correct++
	} else {
		ps.Incorrect++
	}
	ps.AverageTime = (ps.AverageTime + responseTime) / 2
	ps.Answered = true
	return ps
}

// Rank orders players by score descending, then average response time
// ascending (faster wins ties). Exact ties keep the original join order, so
// the input slice must already be in join order.
func Rank(players []domain.PlayerState) []domain.RankingEntry {
	ordered := make([]domain.PlayerState, len(players))
	copy(ordered, players)

	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Score != ordered[j].Score {
			return ordered[i].Score > ordered[j].Score
		}
		return ordered[i].AverageTime < ordered[j].AverageTime
	})

	rankings := make([]domain.RankingEntry, 0, len(ordered))
	for i, ps := range ordered {
		rankings = append(rankings, domain.RankingEntry{
			Rank:        i + 1,
			UserID:      ps.UserID,
			FirstName:   ps.FirstName,
			LastName:    ps.LastName,
			Score:       ps.Score,
			Correct:     ps.Correct,
			Incorrect:   ps.Incorrect,
			AverageTime: ps.AverageTime,
		})
	}
	return rankings
}
