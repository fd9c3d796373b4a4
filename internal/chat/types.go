package chat

import (
	"errors"
	"strconv"
)

// RoomID identifies a chat room. Valid ids run from 1 to the configured
// room count, inclusive.
type RoomID int

func (id RoomID) String() string { return strconv.Itoa(int(id)) }

// State is a step of the session lifecycle.
type State int

const (
	StateUnauthenticated State = iota
	StateSelectingRoom
	StateSelectingUsername
	StateActive
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateSelectingRoom:
		return "selecting_room"
	case StateSelectingUsername:
		return "selecting_username"
	case StateActive:
		return "active"
	case StateTerminated:
		return "terminated"
	}
	return "unknown"
}

// Member is anything that can sit in a room and receive lines.
// Deliver must not block; it reports false when the line was dropped.
type Member interface {
	Deliver(line string) bool
}

// RoomDirectory is the membership view a session works against.
type RoomDirectory interface {
	Rooms() int
	Valid(room RoomID) bool
	Join(room RoomID, username string, m Member) error
	Leave(room RoomID, username string, m Member)
	IsActive(username string) bool
	MembersExcept(room RoomID, exclude Member) []Member
}

// Notice is the kind of system banner sent to a room.
type Notice int

const (
	NoticeJoined Notice = iota
	NoticeLeft
)

func (n Notice) String() string {
	if n == NoticeJoined {
		return "join"
	}
	return "leave"
}

var (
	ErrDuplicateUsername = errors.New("duplicate_username")
	ErrInvalidRoom       = errors.New("invalid_room")
	ErrInvalidUsername   = errors.New("invalid_username")
	ErrMalformedInput    = errors.New("malformed_input")
	ErrConnectionLost    = errors.New("connection_lost")
)
