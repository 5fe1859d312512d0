package app

import (
	"context"
	"strings"
	"sync"
	"time"

	"pvp-quiz-service/internal/domain"
)

// RoomsConfig carries the lobby tunables.
type RoomsConfig struct {
	Capacity   int
	MinPlayers int
}

func (c RoomsConfig) withDefaults() RoomsConfig {
	if c.Capacity <= 0 {
		c.Capacity = 4
	}
	if c.MinPlayers < 2 {
		// A competitive match needs at least two players.
		c.MinPlayers = 2
	}
	return c
}

// MatchFactory builds the coordinator for a freshly started match. onDone is
// the room's asynchronous completion callback.
type MatchFactory func(matchID, roomID string, players []domain.Participant, onDone func(completed bool)) *Match

// Manager owns the room table. The table has its own lock; each room has its
// own mutex, so operations on different rooms run fully in parallel. Events
// are published only after a room's mutex is released.
type Manager struct {
	bus     *Bus
	factory MatchFactory
	cfg     RoomsConfig
	now     func() time.Time
	newID   func() string

	mu    sync.RWMutex
	rooms map[string]*Room
}

func NewManager(bus *Bus, factory MatchFactory, cfg RoomsConfig, newID func() string) *Manager {
	return &Manager{
		bus:     bus,
		factory: factory,
		cfg:     cfg.withDefaults(),
		now:     time.Now,
		newID:   newID,
		rooms:   make(map[string]*Room),
	}
}

// Room is a pre-match lobby. Invariants: member count never exceeds capacity,
// a participant appears at most once, readiness keys are a subset of members.
type Room struct {
	id       string
	capacity int
	min      int

	mu      sync.Mutex
	state   domain.RoomState
	members map[string]*domain.RoomMember
	order   []string
	match   *Match
}

func (m *Manager) getOrCreate(roomID string) *Room {
	m.mu.Lock()
	defer m.mu.Unlock()
	if room, ok := m.rooms[roomID]; ok {
		return room
	}
	room := &Room{
		id:       roomID,
		capacity: m.cfg.Capacity,
		min:      m.cfg.MinPlayers,
		state:    domain.RoomOpen,
		members:  make(map[string]*domain.RoomMember),
	}
	m.rooms[roomID] = room
	return room
}

func (m *Manager) get(roomID string) (*Room, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	room, ok := m.rooms[roomID]
	return room, ok
}

func (m *Manager) drop(roomID string) {
	m.mu.Lock()
	delete(m.rooms, roomID)
	m.mu.Unlock()
	m.bus.CloseTopic(LobbyTopic(roomID))
}

// Join admits a participant into a room, creating the room on first join.
// Rejoining members get the current snapshot back without a second seat.
func (m *Manager) Join(roomID string, p domain.Participant) (domain.RoomSnapshot, error) {
	room := m.getOrCreate(roomID)

	room.mu.Lock()
	if room.state != domain.RoomOpen {
		room.mu.Unlock()
		return domain.RoomSnapshot{}, domain.ErrRoomClosed
	}
	if _, already := room.members[p.UserID]; already {
		snap := room.snapshotLocked()
		room.mu.Unlock()
		return snap, nil
	}
	if len(room.members) >= room.capacity {
		room.mu.Unlock()
		return domain.RoomSnapshot{}, domain.ErrRoomFull
	}
	room.members[p.UserID] = &domain.RoomMember{Participant: p}
	room.order = append(room.order, p.UserID)
	snap := room.snapshotLocked()
	room.mu.Unlock()

	m.bus.Publish(LobbyTopic(roomID),
		domain.Event{Type: domain.EventRoomInfo, Data: domain.RoomInfoPayload{Data: snap}},
		domain.Event{Type: domain.EventPlayerJoined, Data: domain.PlayerJoinedPayload{
			UserID: p.UserID, FirstName: p.FirstName, LastName: p.LastName,
		}},
	)
	return snap, nil
}

// Leave removes a participant. Idempotent; an empty room closes and its match,
// if any, is cancelled along with its timers.
func (m *Manager) Leave(roomID string, p domain.Participant) {
	room, ok := m.get(roomID)
	if !ok {
		return
	}

	room.mu.Lock()
	if _, member := room.members[p.UserID]; !member {
		room.mu.Unlock()
		return
	}
	delete(room.members, p.UserID)
	for i, id := range room.order {
		if id == p.UserID {
			room.order = append(room.order[:i], room.order[i+1:]...)
			break
		}
	}
	empty := len(room.members) == 0
	var match *Match
	if empty {
		room.state = domain.RoomClosed
		match = room.match
		room.match = nil
	}
	room.mu.Unlock()

	m.bus.Publish(LobbyTopic(roomID), domain.Event{
		Type: domain.EventPlayerLeft,
		Data: domain.PlayerLeftPayload{UserID: p.UserID, FirstName: p.FirstName, LastName: p.LastName},
	})

	if empty {
		if match != nil {
			match.Cancel("room closed")
		}
		m.drop(roomID)
	}
}

// SetReady applies a readiness toggle. When every member of an open room is
// ready and the minimum player count is met, the match is created exactly
// once: the Open -> Starting transition under the room mutex is the guard
// against concurrent double-triggers.
func (m *Manager) SetReady(roomID string, p domain.Participant, ready bool) error {
	room, ok := m.get(roomID)
	if !ok {
		return domain.ErrNotAMember
	}

	room.mu.Lock()
	member, exists := room.members[p.UserID]
	if !exists {
		room.mu.Unlock()
		return domain.ErrNotAMember
	}
	member.Ready = ready
	players := room.maybeStartLocked()
	room.mu.Unlock()

	m.bus.Publish(LobbyTopic(roomID), domain.Event{
		Type: domain.EventPlayerReady,
		Data: domain.PlayerReadyPayload{UserID: p.UserID, Ready: ready},
	})

	if players != nil {
		m.startMatch(room, players)
	}
	return nil
}

// RequestStart is a member's explicit start request. If consensus has not
// been reached it is a silent no-op: starting is a consensus action, not a
// command to reject.
func (m *Manager) RequestStart(roomID string, p domain.Participant) error {
	room, ok := m.get(roomID)
	if !ok {
		return domain.ErrNotAMember
	}

	room.mu.Lock()
	if _, exists := room.members[p.UserID]; !exists {
		room.mu.Unlock()
		return domain.ErrNotAMember
	}
	players := room.maybeStartLocked()
	room.mu.Unlock()

	if players != nil {
		m.startMatch(room, players)
	}
	return nil
}

// maybeStartLocked transitions Open -> Starting and returns the player
// snapshot when readiness consensus holds, nil otherwise.
func (r *Room) maybeStartLocked() []domain.Participant {
	if r.state != domain.RoomOpen || len(r.members) < r.min {
		return nil
	}
	for _, member := range r.members {
		if !member.Ready {
			return nil
		}
	}
	r.state = domain.RoomStarting
	players := make([]domain.Participant, 0, len(r.order))
	for _, id := range r.order {
		players = append(players, r.members[id].Participant)
	}
	return players
}

func (m *Manager) startMatch(room *Room, players []domain.Participant) {
	matchID := m.newID()
	match := m.factory(matchID, room.id, players, func(completed bool) {
		m.matchDone(room.id)
	})

	room.mu.Lock()
	if room.state != domain.RoomStarting {
		// Everyone left while the match was being built; the room closed with
		// nothing bound to it, so the cancel falls to us.
		room.mu.Unlock()
		match.Cancel("room closed")
		return
	}
	room.match = match
	room.state = domain.RoomInMatch
	room.mu.Unlock()

	m.bus.Publish(LobbyTopic(room.id), domain.Event{
		Type: domain.EventGameStart,
		Data: domain.GameStartPayload{MatchID: matchID},
	})

	go match.Start(context.Background())
}

// matchDone reopens the room for another match, or closes it if everyone has
// left in the meantime. Always invoked asynchronously by the match, never as
// a nested call under the match's own lock.
func (m *Manager) matchDone(roomID string) {
	room, ok := m.get(roomID)
	if !ok {
		return
	}

	room.mu.Lock()
	room.match = nil
	if len(room.members) == 0 {
		room.state = domain.RoomClosed
		room.mu.Unlock()
		m.drop(roomID)
		return
	}
	room.state = domain.RoomOpen
	for _, member := range room.members {
		member.Ready = false
	}
	snap := room.snapshotLocked()
	room.mu.Unlock()

	m.bus.Publish(LobbyTopic(roomID), domain.Event{
		Type: domain.EventRoomInfo,
		Data: domain.RoomInfoPayload{Data: snap},
	})
}

// ActiveMatch returns the room's waiting or active match.
func (m *Manager) ActiveMatch(roomID string) (*Match, error) {
	room, ok := m.get(roomID)
	if !ok {
		return nil, domain.ErrNoActiveMatch
	}
	room.mu.Lock()
	defer room.mu.Unlock()
	if room.match == nil {
		return nil, domain.ErrNoActiveMatch
	}
	switch room.match.Status() {
	case domain.MatchWaiting, domain.MatchActive:
		return room.match, nil
	}
	return nil, domain.ErrNoActiveMatch
}

// Snapshot returns the current lobby view.
func (m *Manager) Snapshot(roomID string) (domain.RoomSnapshot, bool) {
	room, ok := m.get(roomID)
	if !ok {
		return domain.RoomSnapshot{}, false
	}
	room.mu.Lock()
	defer room.mu.Unlock()
	return room.snapshotLocked(), true
}

// Chat relays a lobby chat message. Blank messages are dropped silently.
func (m *Manager) Chat(roomID string, p domain.Participant, message string) {
	if strings.TrimSpace(message) == "" {
		return
	}
	m.bus.Publish(LobbyTopic(roomID), domain.Event{
		Type: domain.EventChatMessage,
		Data: domain.ChatMessagePayload{
			UserID:    p.UserID,
			FirstName: p.FirstName,
			LastName:  p.LastName,
			Message:   message,
			Timestamp: m.now().UTC().Format(time.RFC3339),
		},
	})
}

func (r *Room) snapshotLocked() domain.RoomSnapshot {
	players := make([]domain.RoomMember, 0, len(r.order))
	for _, id := range r.order {
		players = append(players, *r.members[id])
	}
	return domain.RoomSnapshot{
		RoomID:         r.id,
		RoomName:       r.id,
		MaxPlayers:     r.capacity,
		CurrentPlayers: len(players),
		Players:        players,
	}
}
