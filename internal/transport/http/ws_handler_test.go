package http_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"pvp-quiz-service/internal/app"
	"pvp-quiz-service/internal/domain"
	"pvp-quiz-service/internal/infra/auth"
	"pvp-quiz-service/internal/infra/memory"
	transport "pvp-quiz-service/internal/transport/http"
)

type fixedSource struct {
	question domain.Question
}

func (s fixedSource) NextQuestion(context.Context, int, int) (domain.Question, error) {
	return s.question, nil
}

type wsFixture struct {
	server  *httptest.Server
	manager *app.Manager
	results *memory.ResultStore
}

func newWSFixture(t *testing.T) *wsFixture {
	t.Helper()

	bus := app.NewBus(64)
	registry := app.NewRegistry()
	results := memory.NewResultStore()
	source := fixedSource{question: domain.Question{Text: "2 + 2 = ?", Answer: "4"}}

	factory := func(matchID, roomID string, players []domain.Participant, onDone func(completed bool)) *app.Match {
		return app.NewMatch(matchID, roomID, players, app.MatchConfig{TotalQuestions: 1, Reward: 10},
			bus, source, results, nil, onDone)
	}
	seq := 0
	manager := app.NewManager(bus, factory, app.RoomsConfig{Capacity: 4}, func() string {
		seq++
		return fmt.Sprintf("m-%d", seq)
	})

	verifier := auth.NewStaticVerifier(map[string]domain.Participant{
		"tok-alice": {UserID: "u-alice", FirstName: "Alice", LastName: "Nguyen"},
		"tok-bob":   {UserID: "u-bob", FirstName: "Bob", LastName: "Tran"},
	})

	handler := transport.NewHandler(manager, registry, bus, verifier, nil)
	mux := http.NewServeMux()
	handler.Register(mux)

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return &wsFixture{server: server, manager: manager, results: results}
}

func (f *wsFixture) dial(t *testing.T, path, token string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + path
	if token != "" {
		url += "?token=" + token
	}
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", path, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

type frame map[string]any

func readFrame(t *testing.T, conn *websocket.Conn) frame {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	var f frame
	if err := conn.ReadJSON(&f); err != nil {
		t.Fatalf("read frame: %v", err)
	}
	return f
}

func readUntilType(t *testing.T, conn *websocket.Conn, eventType string) frame {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		f := readFrame(t, conn)
		if f["type"] == eventType {
			return f
		}
	}
	t.Fatalf("timed out waiting for %s frame", eventType)
	return nil
}

func expectCloseCode(t *testing.T, conn *websocket.Conn, code int) {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, _, err := conn.ReadMessage()
	closeErr, ok := err.(*websocket.CloseError)
	if !ok {
		t.Fatalf("expected close error, got %v", err)
	}
	if closeErr.Code != code {
		t.Fatalf("expected close code %d, got %d", code, closeErr.Code)
	}
}

func TestLobbyRejectsMissingToken(t *testing.T) {
	f := newWSFixture(t)
	conn := f.dial(t, "/ws/lobby/r1", "")
	expectCloseCode(t, conn, transport.CloseMissingToken)
}

func TestLobbyRejectsInvalidToken(t *testing.T) {
	f := newWSFixture(t)
	conn := f.dial(t, "/ws/lobby/r1", "tok-nobody")
	expectCloseCode(t, conn, transport.CloseInvalidToken)
}

func TestGameRequiresActiveMatch(t *testing.T) {
	f := newWSFixture(t)
	conn := f.dial(t, "/ws/game/r1", "tok-alice")
	expectCloseCode(t, conn, transport.CloseNoActiveMatch)
}

func TestLobbyUnknownMessageType(t *testing.T) {
	f := newWSFixture(t)
	conn := f.dial(t, "/ws/lobby/r1", "tok-alice")
	readUntilType(t, conn, "room_info")

	if err := conn.WriteJSON(map[string]any{"type": "bogus"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	ev := readUntilType(t, conn, "error")
	if ev["message"] != "unsupported message type" {
		t.Fatalf("unexpected error payload: %v", ev)
	}

	// Malformed JSON also answers with an error and keeps the socket open.
	if err := conn.WriteMessage(websocket.TextMessage, []byte("{nope")); err != nil {
		t.Fatalf("write: %v", err)
	}
	readUntilType(t, conn, "error")
}

func TestFullMatchOverWebsocket(t *testing.T) {
	f := newWSFixture(t)

	aliceLobby := f.dial(t, "/ws/lobby/r1", "tok-alice")
	readUntilType(t, aliceLobby, "room_info")
	bobLobby := f.dial(t, "/ws/lobby/r1", "tok-bob")
	readUntilType(t, bobLobby, "room_info")

	if err := aliceLobby.WriteJSON(map[string]any{"type": "ready", "ready": true}); err != nil {
		t.Fatalf("alice ready: %v", err)
	}
	if err := bobLobby.WriteJSON(map[string]any{"type": "chat_message", "message": "glhf"}); err != nil {
		t.Fatalf("bob chat: %v", err)
	}
	chat := readUntilType(t, aliceLobby, "chat_message")
	if chat["message"] != "glhf" {
		t.Fatalf("unexpected chat frame: %v", chat)
	}
	if err := bobLobby.WriteJSON(map[string]any{"type": "ready", "ready": true}); err != nil {
		t.Fatalf("bob ready: %v", err)
	}

	start := readUntilType(t, aliceLobby, "game_start")
	if id, ok := start["matchId"].(string); !ok || id == "" {
		t.Fatalf("game_start without match id: %v", start)
	}

	// Wait for the coordinator to issue the first question before the game
	// sockets connect, then pull it explicitly the way reconnecting clients do.
	waitForActiveMatch(t, f.manager, "r1")

	aliceGame := f.dial(t, "/ws/game/r1", "tok-alice")
	bobGame := f.dial(t, "/ws/game/r1", "tok-bob")

	if err := aliceGame.WriteJSON(map[string]any{"type": "game_action", "action": "request_question"}); err != nil {
		t.Fatalf("request question: %v", err)
	}
	q := readUntilType(t, aliceGame, "question")
	data, ok := q["data"].(map[string]any)
	if !ok || data["questionText"] != "2 + 2 = ?" {
		t.Fatalf("unexpected question frame: %v", q)
	}

	if err := aliceGame.WriteJSON(map[string]any{
		"type": "answer", "questionNumber": 1, "answer": "4", "responseTime": 1.5,
	}); err != nil {
		t.Fatalf("alice answer: %v", err)
	}
	result := readUntilType(t, bobGame, "answer_result")
	if result["userId"] != "u-alice" || result["isCorrect"] != true {
		t.Fatalf("unexpected answer_result: %v", result)
	}

	if err := bobGame.WriteJSON(map[string]any{
		"type": "answer", "questionNumber": 1, "answer": "5", "responseTime": 2.0,
	}); err != nil {
		t.Fatalf("bob answer: %v", err)
	}

	ended := readUntilType(t, aliceGame, "game_ended")
	rankings, ok := ended["rankings"].([]any)
	if !ok || len(rankings) != 2 {
		t.Fatalf("unexpected game_ended frame: %v", ended)
	}
	winner := rankings[0].(map[string]any)
	if winner["userId"] != "u-alice" || winner["score"] != float64(10) {
		t.Fatalf("unexpected winner row: %v", winner)
	}

	// The lobby reopens for another round once the match result lands.
	readUntilType(t, aliceLobby, "room_info")
	if len(f.results.Results()) != 1 {
		t.Fatalf("expected one persisted result, got %d", len(f.results.Results()))
	}
}

func TestLeaderboardInitialPush(t *testing.T) {
	f := newWSFixture(t)
	conn := f.dial(t, "/ws/leaderboard", "tok-alice")

	ev := readUntilType(t, conn, "leaderboard_update")
	if _, ok := ev["data"].([]any); !ok {
		t.Fatalf("expected data array, got %v", ev)
	}

	if err := conn.WriteJSON(map[string]any{"type": "request_update"}); err != nil {
		t.Fatalf("request update: %v", err)
	}
	readUntilType(t, conn, "leaderboard_update")
}

func waitForActiveMatch(t *testing.T, manager *app.Manager, roomID string) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if match, err := manager.ActiveMatch(roomID); err == nil && match.Status() == domain.MatchActive {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("match never became active")
}
