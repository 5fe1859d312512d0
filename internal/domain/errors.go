package domain

import "errors"

var (
	// ErrRoomFull is returned when a join would exceed room capacity.
	ErrRoomFull = errors.New("room is full")
	// ErrRoomClosed is returned when joining a room that is not open.
	ErrRoomClosed = errors.New("room is closed")
	// ErrNotAMember is returned when a non-member toggles readiness.
	ErrNotAMember = errors.New("not a member of this room")
	// ErrStaleQuestion is returned for answers to a question other than the current one.
	ErrStaleQuestion = errors.New("answer targets a stale question")
	// ErrDuplicateAnswer is returned when a player answers the same question twice.
	ErrDuplicateAnswer = errors.New("question already answered")
	// ErrDuplicateConnection is returned when a participant already holds a live
	// connection to the same room.
	ErrDuplicateConnection = errors.New("participant already connected to room")
	// ErrNoActiveMatch indicates the room has no waiting or active match.
	ErrNoActiveMatch = errors.New("no active match for room")
	// ErrMatchOver is returned for actions against a completed or cancelled match.
	ErrMatchOver = errors.New("match already over")
	// ErrNotAPlayer is returned when someone outside the match snapshot submits an answer.
	ErrNotAPlayer = errors.New("not a player in this match")
	// ErrInvalidToken covers expired, malformed and unknown credentials.
	ErrInvalidToken = errors.New("invalid or expired token")
)
