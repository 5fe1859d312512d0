package http

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"pvp-quiz-service/internal/app"
	"pvp-quiz-service/internal/domain"
)

// Connection close codes understood by clients.
const (
	CloseInternalError = 4000
	CloseMissingToken  = 4001
	CloseInvalidToken  = 4002
	CloseNoActiveMatch = 4003
)

const writeWait = 10 * time.Second

// Handler exposes the lobby, game and leaderboard websocket endpoints.
type Handler struct {
	rooms    *app.Manager
	registry *app.Registry
	bus      *app.Bus
	verifier app.IdentityVerifier
	lb       app.LeaderboardSink
	upgrader websocket.Upgrader
}

// NewHandler wires the engine into websocket endpoints. lb may be nil when no
// leaderboard backend is configured.
func NewHandler(rooms *app.Manager, registry *app.Registry, bus *app.Bus, verifier app.IdentityVerifier, lb app.LeaderboardSink) *Handler {
	return &Handler{
		rooms:    rooms,
		registry: registry,
		bus:      bus,
		verifier: verifier,
		lb:       lb,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Register mounts the websocket routes.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/ws/lobby/", h.ServeLobby)
	mux.HandleFunc("/ws/game/", h.ServeGame)
	mux.HandleFunc("/ws/leaderboard", h.ServeLeaderboard)
}

// inboundMessage is the union of every client message shape; Type selects
// which fields matter.
type inboundMessage struct {
	Type           string  `json:"type"`
	Ready          bool    `json:"ready"`
	Message        string  `json:"message"`
	QuestionNumber int     `json:"questionNumber"`
	Answer         string  `json:"answer"`
	ResponseTime   float64 `json:"responseTime"`
	Action         string  `json:"action"`
}

// authenticate upgrades the request and resolves the token to a participant.
// Auth failures close the socket with the dedicated code and return ok=false.
func (h *Handler) authenticate(w http.ResponseWriter, r *http.Request) (*websocket.Conn, domain.Participant, bool) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return nil, domain.Participant{}, false
	}

	token := r.URL.Query().Get("token")
	if token == "" {
		closeWith(conn, CloseMissingToken, "missing token")
		return nil, domain.Participant{}, false
	}
	p, err := h.verifier.Verify(r.Context(), token)
	if err != nil {
		closeWith(conn, CloseInvalidToken, "invalid token")
		return nil, domain.Participant{}, false
	}
	return conn, p, true
}

func closeWith(conn *websocket.Conn, code int, reason string) {
	deadline := time.Now().Add(writeWait)
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
	_ = conn.Close()
}

// session owns the single writer goroutine for one connection and the pump
// that forwards broadcast events into it. All writes go through send so the
// gorilla connection never sees concurrent writers.
type session struct {
	send         chan domain.Event
	closeSignals chan struct{}
	writerDone   chan struct{}
	pumpDone     chan struct{}
}

func newSession(conn *websocket.Conn, sub *app.Subscriber) *session {
	s := &session{
		send:         make(chan domain.Event, 16),
		closeSignals: make(chan struct{}),
		writerDone:   make(chan struct{}),
		pumpDone:     make(chan struct{}),
	}

	go func() {
		defer close(s.writerDone)
		for ev := range s.send {
			if err := conn.WriteJSON(ev); err != nil {
				log.Printf("ws write error: %v", err)
				return
			}
		}
	}()

	go func() {
		defer close(s.pumpDone)
		if sub == nil {
			<-s.closeSignals
			return
		}
		for {
			select {
			case ev, ok := <-sub.Events():
				if !ok {
					return
				}
				select {
				case s.send <- ev:
				case <-s.closeSignals:
					return
				}
			case <-s.closeSignals:
				return
			}
		}
	}()

	return s
}

// push queues a targeted event for this connection only.
func (s *session) push(ev domain.Event) {
	select {
	case s.send <- ev:
	case <-s.closeSignals:
	}
}

func (s *session) pushError(message string) {
	s.push(domain.Event{Type: domain.EventError, Data: domain.ErrorPayload{Message: message}})
}

func (s *session) shutdown() {
	close(s.closeSignals)
	<-s.pumpDone
	close(s.send)
	<-s.writerDone
}

// ServeLobby handles one participant's lobby channel for a room.
func (h *Handler) ServeLobby(w http.ResponseWriter, r *http.Request) {
	roomID := strings.TrimPrefix(r.URL.Path, "/ws/lobby/")
	if roomID == "" {
		http.Error(w, "missing room id", http.StatusBadRequest)
		return
	}

	conn, p, ok := h.authenticate(w, r)
	if !ok {
		return
	}
	defer conn.Close()

	topic := app.LobbyTopic(roomID)
	connID := uuid.NewString()
	// Unregister carries the disconnect notification to the room.
	if err := h.registry.Register(connID, p, topic, func() { h.rooms.Leave(roomID, p) }); err != nil {
		closeWith(conn, CloseInternalError, err.Error())
		return
	}
	defer h.registry.Unregister(connID)

	sub := h.bus.Subscribe(topic, func() { _ = conn.Close() })
	defer h.bus.Unsubscribe(topic, sub)

	session := newSession(conn, sub)
	defer session.shutdown()

	if _, err := h.rooms.Join(roomID, p); err != nil {
		session.pushError(err.Error())
		return
	}

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var inbound inboundMessage
		if err := json.Unmarshal(raw, &inbound); err != nil {
			session.pushError("invalid JSON format")
			continue
		}

		switch inbound.Type {
		case "ready":
			if err := h.rooms.SetReady(roomID, p, inbound.Ready); err != nil {
				session.pushError(err.Error())
			}
		case "start_game":
			if err := h.rooms.RequestStart(roomID, p); err != nil {
				session.pushError(err.Error())
			}
		case "chat_message":
			h.rooms.Chat(roomID, p, inbound.Message)
		case "leave_room":
			return
		default:
			session.pushError("unsupported message type")
		}
	}
}

// ServeGame handles one player's game channel for a room's active match.
func (h *Handler) ServeGame(w http.ResponseWriter, r *http.Request) {
	roomID := strings.TrimPrefix(r.URL.Path, "/ws/game/")
	if roomID == "" {
		http.Error(w, "missing room id", http.StatusBadRequest)
		return
	}

	conn, p, ok := h.authenticate(w, r)
	if !ok {
		return
	}
	defer conn.Close()

	match, err := h.rooms.ActiveMatch(roomID)
	if err != nil {
		closeWith(conn, CloseNoActiveMatch, "no active match for room")
		return
	}

	topic := app.GameTopic(roomID)
	connID := uuid.NewString()
	// Unregister carries the disconnect notification to the match.
	if err := h.registry.Register(connID, p, topic, func() { match.PlayerDisconnected(p.UserID) }); err != nil {
		closeWith(conn, CloseInternalError, err.Error())
		return
	}
	defer h.registry.Unregister(connID)

	sub := h.bus.Subscribe(topic, func() { _ = conn.Close() })
	defer h.bus.Unsubscribe(topic, sub)

	// Non-players may still watch; reconnect flips a snapshot player back on.
	_ = match.PlayerReconnected(p.UserID)

	session := newSession(conn, sub)
	defer session.shutdown()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var inbound inboundMessage
		if err := json.Unmarshal(raw, &inbound); err != nil {
			session.pushError("invalid JSON format")
			continue
		}

		switch inbound.Type {
		case "answer":
			if _, _, err := match.SubmitAnswer(p.UserID, inbound.QuestionNumber, inbound.Answer, inbound.ResponseTime); err != nil {
				session.pushError(err.Error())
			}
		case "ready_for_next":
			if err := match.ReadyForNext(p.UserID); err != nil {
				session.pushError(err.Error())
			}
		case "game_action":
			if inbound.Action != "request_question" {
				session.pushError("unsupported game action")
				continue
			}
			view, err := match.CurrentQuestion()
			if err != nil {
				session.pushError(err.Error())
				continue
			}
			session.push(domain.Event{Type: domain.EventQuestion, Data: domain.QuestionPayload{Data: view}})
		default:
			session.pushError("unsupported message type")
		}
	}
}

// ServeLeaderboard streams the global XP leaderboard feed.
func (h *Handler) ServeLeaderboard(w http.ResponseWriter, r *http.Request) {
	conn, _, ok := h.authenticate(w, r)
	if !ok {
		return
	}
	defer conn.Close()

	sub := h.bus.Subscribe(app.LeaderboardTopic, func() { _ = conn.Close() })
	defer h.bus.Unsubscribe(app.LeaderboardTopic, sub)

	session := newSession(conn, sub)
	defer session.shutdown()

	session.push(h.leaderboardEvent(r.Context()))

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var inbound inboundMessage
		if err := json.Unmarshal(raw, &inbound); err != nil {
			session.pushError("invalid JSON format")
			continue
		}

		switch inbound.Type {
		case "request_update":
			session.push(h.leaderboardEvent(r.Context()))
		default:
			session.pushError("unsupported message type")
		}
	}
}

func (h *Handler) leaderboardEvent(ctx context.Context) domain.Event {
	rows := []domain.LeaderboardRow{}
	if h.lb != nil {
		top, err := h.lb.Top(ctx)
		if err != nil {
			log.Printf("leaderboard top failed: %v", err)
		} else if top != nil {
			rows = top
		}
	}
	return domain.Event{Type: domain.EventLeaderboardUpdate, Data: domain.LeaderboardUpdatePayload{Data: rows}}
}
