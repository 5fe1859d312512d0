package domain

import "time"

// Participant is an authenticated player identity. It is supplied once by the
// identity collaborator and never mutated by the engine.
type Participant struct {
	UserID    string `json:"userId"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

// RoomState tracks the lobby lifecycle.
type RoomState int

const (
	RoomOpen RoomState = iota
	RoomStarting
	RoomInMatch
	RoomClosed
)

func (s RoomState) String() string {
	switch s {
	case RoomOpen:
		return "open"
	case RoomStarting:
		return "starting"
	case RoomInMatch:
		return "in_match"
	case RoomClosed:
		return "closed"
	}
	return "unknown"
}

// RoomMember is a participant's lobby view, including readiness.
type RoomMember struct {
	Participant
	Ready bool `json:"isReady"`
}

// RoomSnapshot is the full lobby view broadcast as room_info.
type RoomSnapshot struct {
	RoomID         string       `json:"roomId"`
	RoomName       string       `json:"roomName"`
	MaxPlayers     int          `json:"maxPlayers"`
	CurrentPlayers int          `json:"currentPlayers"`
	Players        []RoomMember `json:"players"`
}

// MatchStatus tracks the match lifecycle.
type MatchStatus int

const (
	MatchWaiting MatchStatus = iota
	MatchActive
	MatchCompleted
	MatchCancelled
)

func (s MatchStatus) String() string {
	switch s {
	case MatchWaiting:
		return "waiting"
	case MatchActive:
		return "active"
	case MatchCompleted:
		return "completed"
	case MatchCancelled:
		return "cancelled"
	}
	return "unknown"
}

// PlayerState accumulates one player's match progress. It is mutated only by
// the coordinator that owns the match.
type PlayerState struct {
	Participant
	Score        int
	Correct      int
	Incorrect    int
	AverageTime  float64
	Connected    bool
	Answered     bool
	ReadyForNext bool
}

// Question is immutable once issued; one per (match, question number).
type Question struct {
	Number    int
	Text      string
	Answer    string
	TimeLimit time.Duration
}

// Answer records a single accepted submission. Later submissions for the same
// (question, player) are rejected, never overwritten.
type Answer struct {
	QuestionNumber int
	UserID         string
	Value          string
	Correct        bool
	ResponseTime   float64
}

// RankingEntry is one row of the final match ranking.
type RankingEntry struct {
	Rank        int     `json:"rank"`
	UserID      string  `json:"userId"`
	FirstName   string  `json:"firstName"`
	LastName    string  `json:"lastName"`
	Score       int     `json:"score"`
	Correct     int     `json:"correct"`
	Incorrect   int     `json:"incorrect"`
	AverageTime float64 `json:"averageTime"`
}

// MatchResult is what gets handed to the persistence collaborator when a
// match completes.
type MatchResult struct {
	MatchID  string
	RoomID   string
	Rankings []RankingEntry
	EndedAt  time.Time
}

// LeaderboardRow is one row of the global XP leaderboard feed.
type LeaderboardRow struct {
	Rank   int    `json:"rank"`
	Name   string `json:"name"`
	XP     int    `json:"xp"`
	UserID string `json:"userId"`
}
