package app_test

import (
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"pvp-quiz-service/internal/app"
	"pvp-quiz-service/internal/domain"
	"pvp-quiz-service/internal/infra/memory"
)

// countingFactory builds real one-question matches and counts how many times
// it was asked to.
type countingFactory struct {
	bus     *app.Bus
	source  app.QuestionSource
	results *memory.ResultStore
	count   atomic.Int32
}

func (f *countingFactory) new(matchID, roomID string, players []domain.Participant, onDone func(completed bool)) *app.Match {
	f.count.Add(1)
	return app.NewMatch(matchID, roomID, players, app.MatchConfig{TotalQuestions: 1, Reward: 10},
		f.bus, f.source, f.results, nil, onDone)
}

func newTestManager(t *testing.T, cfg app.RoomsConfig) (*app.Manager, *app.Bus, *countingFactory) {
	t.Helper()
	bus := app.NewBus(64)
	factory := &countingFactory{
		bus:     bus,
		source:  &scriptedSource{question: domain.Question{Text: "2 + 2 = ?", Answer: "4"}},
		results: memory.NewResultStore(),
	}
	var seq atomic.Int32
	manager := app.NewManager(bus, factory.new, cfg, func() string {
		return fmt.Sprintf("m-%d", seq.Add(1))
	})
	return manager, bus, factory
}

func TestJoinCapacityAndRejoin(t *testing.T) {
	manager, _, _ := newTestManager(t, app.RoomsConfig{Capacity: 2})
	cara := domain.Participant{UserID: "u-cara", FirstName: "Cara"}

	if _, err := manager.Join("r1", alice); err != nil {
		t.Fatalf("alice join: %v", err)
	}
	snap, err := manager.Join("r1", bob)
	if err != nil {
		t.Fatalf("bob join: %v", err)
	}
	if snap.CurrentPlayers != 2 || snap.MaxPlayers != 2 {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
	if _, err := manager.Join("r1", cara); !errors.Is(err, domain.ErrRoomFull) {
		t.Fatalf("expected room full, got %v", err)
	}

	// Rejoining does not take a second seat.
	snap, err = manager.Join("r1", alice)
	if err != nil {
		t.Fatalf("alice rejoin: %v", err)
	}
	if snap.CurrentPlayers != 2 {
		t.Fatalf("rejoin changed player count: %+v", snap)
	}
}

func TestReadyConsensusStartsExactlyOnce(t *testing.T) {
	manager, _, factory := newTestManager(t, app.RoomsConfig{Capacity: 4})

	manager.Join("r1", alice)
	manager.Join("r1", bob)

	if err := manager.SetReady("r1", alice, true); err != nil {
		t.Fatalf("alice ready: %v", err)
	}
	if factory.count.Load() != 0 {
		t.Fatalf("match started before consensus")
	}
	if err := manager.SetReady("r1", bob, true); err != nil {
		t.Fatalf("bob ready: %v", err)
	}
	if factory.count.Load() != 1 {
		t.Fatalf("expected exactly one match, got %d", factory.count.Load())
	}

	// Extra ready toggles and start requests after the transition are no-ops.
	manager.SetReady("r1", bob, true)
	manager.RequestStart("r1", alice)
	if factory.count.Load() != 1 {
		t.Fatalf("expected exactly one match, got %d", factory.count.Load())
	}

	// The room no longer admits anyone while a match runs.
	cara := domain.Participant{UserID: "u-cara", FirstName: "Cara"}
	if _, err := manager.Join("r1", cara); !errors.Is(err, domain.ErrRoomClosed) {
		t.Fatalf("expected room closed, got %v", err)
	}
}

func TestReadyToggleOffPreventsStart(t *testing.T) {
	manager, _, factory := newTestManager(t, app.RoomsConfig{Capacity: 4})

	manager.Join("r1", alice)
	manager.Join("r1", bob)

	manager.SetReady("r1", alice, true)
	manager.SetReady("r1", alice, false)
	manager.SetReady("r1", bob, true)

	if factory.count.Load() != 0 {
		t.Fatalf("match started despite ready toggle off")
	}
}

func TestMinimumPlayersRequired(t *testing.T) {
	manager, _, factory := newTestManager(t, app.RoomsConfig{Capacity: 4})

	manager.Join("r1", alice)
	manager.SetReady("r1", alice, true)
	manager.RequestStart("r1", alice)

	if factory.count.Load() != 0 {
		t.Fatalf("match started with a single player")
	}
}

func TestSetReadyRequiresMembership(t *testing.T) {
	manager, _, _ := newTestManager(t, app.RoomsConfig{})

	if err := manager.SetReady("r1", alice, true); !errors.Is(err, domain.ErrNotAMember) {
		t.Fatalf("expected not-a-member for unknown room, got %v", err)
	}
	manager.Join("r1", alice)
	if err := manager.SetReady("r1", bob, true); !errors.Is(err, domain.ErrNotAMember) {
		t.Fatalf("expected not-a-member for non-member, got %v", err)
	}
}

func TestLeaveClosesEmptyRoomAndCancelsMatch(t *testing.T) {
	manager, _, _ := newTestManager(t, app.RoomsConfig{Capacity: 4})

	manager.Join("r1", alice)
	manager.Join("r1", bob)
	manager.SetReady("r1", alice, true)
	manager.SetReady("r1", bob, true)

	match, err := manager.ActiveMatch("r1")
	if err != nil {
		t.Fatalf("expected active match: %v", err)
	}

	manager.Leave("r1", alice)
	manager.Leave("r1", bob)
	manager.Leave("r1", bob) // idempotent

	deadline := time.Now().Add(3 * time.Second)
	for match.Status() != domain.MatchCancelled {
		if time.Now().After(deadline) {
			t.Fatalf("expected cancelled match, got %s", match.Status())
		}
		time.Sleep(5 * time.Millisecond)
	}
	if _, ok := manager.Snapshot("r1"); ok {
		t.Fatalf("expected room to be dropped")
	}
}

func TestLeaveDuringMatchCreationCancels(t *testing.T) {
	bus := app.NewBus(64)
	results := memory.NewResultStore()
	source := &scriptedSource{question: domain.Question{Text: "2 + 2 = ?", Answer: "4"}}

	// The factory runs outside the room lock; everyone leaving inside it hits
	// the window before the match is bound to the room.
	var manager *app.Manager
	var created *app.Match
	factory := func(matchID, roomID string, players []domain.Participant, onDone func(completed bool)) *app.Match {
		manager.Leave(roomID, alice)
		manager.Leave(roomID, bob)
		created = app.NewMatch(matchID, roomID, players, app.MatchConfig{TotalQuestions: 1, Reward: 10},
			bus, source, results, nil, onDone)
		return created
	}
	manager = app.NewManager(bus, factory, app.RoomsConfig{Capacity: 4}, func() string { return "m-1" })

	manager.Join("r1", alice)
	manager.Join("r1", bob)
	manager.SetReady("r1", alice, true)
	manager.SetReady("r1", bob, true)

	if created == nil {
		t.Fatalf("factory never invoked")
	}
	if created.Status() != domain.MatchCancelled {
		t.Fatalf("expected cancelled match in closed room, got %s", created.Status())
	}
	if _, ok := manager.Snapshot("r1"); ok {
		t.Fatalf("expected room to be dropped")
	}
	if _, err := manager.ActiveMatch("r1"); !errors.Is(err, domain.ErrNoActiveMatch) {
		t.Fatalf("expected no active match, got %v", err)
	}
	if len(results.Results()) != 0 {
		t.Fatalf("match in closed room must not persist a result, got %d", len(results.Results()))
	}
}

func TestRoomReopensAfterMatch(t *testing.T) {
	manager, bus, factory := newTestManager(t, app.RoomsConfig{Capacity: 4})
	lobby := bus.Subscribe(app.LobbyTopic("r1"), nil)
	game := bus.Subscribe(app.GameTopic("r1"), nil)

	manager.Join("r1", alice)
	manager.Join("r1", bob)
	manager.SetReady("r1", alice, true)
	manager.SetReady("r1", bob, true)

	expectEvent(t, game, domain.EventQuestion)
	match, err := manager.ActiveMatch("r1")
	if err != nil {
		t.Fatalf("expected active match: %v", err)
	}
	if _, _, err := match.SubmitAnswer(alice.UserID, 1, "4", 1); err != nil {
		t.Fatalf("alice submit: %v", err)
	}
	if _, _, err := match.SubmitAnswer(bob.UserID, 1, "4", 2); err != nil {
		t.Fatalf("bob submit: %v", err)
	}
	expectEvent(t, game, domain.EventGameEnded)

	// Joins publish the first two room_info frames; the third marks the reopen.
	for i := 0; i < 3; i++ {
		ev := expectEvent(t, lobby, domain.EventRoomInfo)
		if i < 2 {
			continue
		}
		snap := ev.Data.(domain.RoomInfoPayload).Data
		for _, member := range snap.Players {
			if member.Ready {
				t.Fatalf("expected readiness reset after match, got %+v", snap.Players)
			}
		}
	}

	// The reopened room can host a second match.
	manager.SetReady("r1", alice, true)
	manager.SetReady("r1", bob, true)
	if factory.count.Load() != 2 {
		t.Fatalf("expected a second match, got %d", factory.count.Load())
	}
}

func TestChatRelay(t *testing.T) {
	manager, bus, _ := newTestManager(t, app.RoomsConfig{})
	sub := bus.Subscribe(app.LobbyTopic("r1"), nil)

	manager.Join("r1", alice)
	manager.Chat("r1", alice, "  ") // blank, dropped
	manager.Chat("r1", alice, "good luck")

	ev := expectEvent(t, sub, domain.EventChatMessage)
	payload := ev.Data.(domain.ChatMessagePayload)
	if payload.UserID != alice.UserID || payload.Message != "good luck" {
		t.Fatalf("unexpected chat payload: %+v", payload)
	}
	if _, err := time.Parse(time.RFC3339, payload.Timestamp); err != nil {
		t.Fatalf("bad chat timestamp %q: %v", payload.Timestamp, err)
	}
}
