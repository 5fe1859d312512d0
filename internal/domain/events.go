package domain

import "encoding/json"

// Event type tags understood by clients.
const (
	EventRoomInfo          = "room_info"
	EventPlayerJoined      = "player_joined"
	EventPlayerReady       = "player_ready"
	EventPlayerLeft        = "player_left"
	EventChatMessage       = "chat_message"
	EventGameStart         = "game_start"
	EventQuestion          = "question"
	EventAnswerResult      = "answer_result"
	EventGameEnded         = "game_ended"
	EventGameError         = "game_error"
	EventLeaderboardUpdate = "leaderboard_update"
	EventError             = "error"
)

// Event is one broadcast frame. It marshals flat: the payload's fields are
// merged with the type tag, so clients see {"type":"player_ready","userId":...}.
type Event struct {
	Type string
	Data any
}

func (e Event) MarshalJSON() ([]byte, error) {
	fields := map[string]json.RawMessage{}
	if e.Data != nil {
		raw, err := json.Marshal(e.Data)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(raw, &fields); err != nil {
			return nil, err
		}
	}
	tag, err := json.Marshal(e.Type)
	if err != nil {
		return nil, err
	}
	fields["type"] = tag
	return json.Marshal(fields)
}

// RoomInfoPayload wraps the full lobby snapshot.
type RoomInfoPayload struct {
	Data RoomSnapshot `json:"data"`
}

type PlayerJoinedPayload struct {
	UserID    string `json:"userId"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

type PlayerReadyPayload struct {
	UserID string `json:"userId"`
	Ready  bool   `json:"ready"`
}

type PlayerLeftPayload struct {
	UserID    string `json:"userId"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

type ChatMessagePayload struct {
	UserID    string `json:"userId"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

type GameStartPayload struct {
	MatchID string `json:"matchId"`
}

// QuestionView is the client-facing slice of a question. The correct answer
// never leaves the coordinator.
type QuestionView struct {
	QuestionNumber int    `json:"questionNumber"`
	QuestionText   string `json:"questionText"`
	TimeLimit      int    `json:"timeLimit"`
}

type QuestionPayload struct {
	Data QuestionView `json:"data"`
}

type AnswerResultPayload struct {
	UserID         string `json:"userId"`
	QuestionNumber int    `json:"questionNumber"`
	IsCorrect      bool   `json:"isCorrect"`
	Score          int    `json:"score"`
}

type GameEndedPayload struct {
	Rankings []RankingEntry `json:"rankings"`
}

type GameErrorPayload struct {
	Message string `json:"message"`
}

type LeaderboardUpdatePayload struct {
	Data []LeaderboardRow `json:"data"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}
