package chat

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/andy6609/multiroom-chat-server/internal/config"
)

const (
	promptLogin         = `Enter "LOGIN" to continue or "LOGOUT" to exit: `
	promptRoom          = "Enter an integer in range [1-%d] to select a chat room: "
	promptNotInt        = "Not an int, enter an int in range [1-%d]: "
	promptUsername      = "Enter Username: "
	promptDifferentName = "Enter a different username: "
	promptValidName     = "Enter a valid username (1-%d characters): "
	msgSlowDown         = "Slow down, message not sent.\n"
	msgWelcome          = "\n\nWELCOME TO CHATROOM #%d!\n-To disconnect of the chat enter \"LOGOUT\"-\n\n\n"
	msgGoodbye          = "\n\nYOU HAVE EXITED CHATROOM #%d!\n"
)

var _ Member = (*Session)(nil)

// Session drives one connection from login to logout.
type Session struct {
	id      string
	conn    net.Conn
	reader  *bufio.Reader
	out     *outbox
	rooms   RoomDirectory
	bc      *Broadcaster
	cfg     config.Config
	limiter *rate.Limiter // nil when rate limiting is off
	logger  *slog.Logger

	// owned by the Run goroutine
	state    State
	username string
	room     RoomID
}

func NewSession(conn net.Conn, rooms RoomDirectory, bc *Broadcaster, cfg config.Config, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.Sanitize()
	id := uuid.NewString()
	logger = logger.With("session", id, "remote", remoteAddr(conn))

	var limiter *rate.Limiter
	if cfg.RateLimit.Enabled() {
		every := cfg.RateLimit.Interval / time.Duration(cfg.RateLimit.Burst)
		limiter = rate.NewLimiter(rate.Every(every), cfg.RateLimit.Burst)
	}

	return &Session{
		id:      id,
		conn:    conn,
		reader:  bufio.NewReader(conn),
		out:     startOutbox(conn, cfg.OutboxSize, cfg.WriteTimeout, logger),
		rooms:   rooms,
		bc:      bc,
		cfg:     cfg,
		limiter: limiter,
		logger:  logger,
		state:   StateUnauthenticated,
	}
}

func (s *Session) ID() string { return s.id }

// State is only meaningful once Run has returned.
func (s *Session) State() State { return s.state }

// Deliver queues a line from another session. It never blocks.
func (s *Session) Deliver(line string) bool {
	return s.out.offer(line + "\n")
}

// Close shuts the connection, which makes a blocked Run return.
func (s *Session) Close() error {
	return s.conn.Close()
}

// Run executes the session until logout or connection loss, then closes
// the connection.
func (s *Session) Run() {
	defer s.teardown()

	var err error
	for s.state != StateTerminated && err == nil {
		switch s.state {
		case StateUnauthenticated:
			err = s.awaitLogin()
		case StateSelectingRoom:
			err = s.selectRoom()
		case StateSelectingUsername:
			err = s.selectUsername()
		case StateActive:
			err = s.chat()
		}
	}
	if err != nil {
		s.connectionLost(err)
	}
}

func (s *Session) awaitLogin() error {
	for {
		s.out.push(promptLogin)
		line, err := s.readLine()
		if err != nil {
			return err
		}
		// commands match exactly, as in the chat loop
		switch line {
		case "LOGIN":
			s.state = StateSelectingRoom
			return nil
		case "LOGOUT":
			s.state = StateTerminated
			return nil
		}
	}
}

func (s *Session) selectRoom() error {
	n := s.rooms.Rooms()
	s.out.push(fmt.Sprintf(promptRoom, n))
	for {
		line, err := s.readLine()
		if err != nil {
			return err
		}
		room, perr := parseRoom(line, s.rooms)
		switch {
		case errors.Is(perr, ErrMalformedInput):
			s.out.push(fmt.Sprintf(promptNotInt, n))
		case errors.Is(perr, ErrInvalidRoom):
			s.out.push(fmt.Sprintf(promptRoom, n))
		default:
			s.room = room
			s.state = StateSelectingUsername
			return nil
		}
	}
}

func parseRoom(line string, rooms RoomDirectory) (RoomID, error) {
	n, err := strconv.Atoi(strings.TrimSpace(line))
	if err != nil {
		return 0, ErrMalformedInput
	}
	room := RoomID(n)
	if !rooms.Valid(room) {
		return 0, ErrInvalidRoom
	}
	return room, nil
}

func (s *Session) selectUsername() error {
	s.out.push(promptUsername)
	for {
		line, err := s.readLine()
		if err != nil {
			return err
		}
		name, verr := parseUsername(line, s.cfg.MaxUsernameLen)
		if verr != nil {
			s.out.push(fmt.Sprintf(promptValidName, s.cfg.MaxUsernameLen))
			continue
		}
		if s.rooms.IsActive(name) {
			s.out.push(promptDifferentName)
			continue
		}
		// another session may have claimed the name since IsActive
		if jerr := s.rooms.Join(s.room, name, s); jerr != nil {
			if errors.Is(jerr, ErrDuplicateUsername) {
				s.out.push(promptDifferentName)
				continue
			}
			return jerr
		}

		s.username = name
		s.state = StateActive
		s.logger = s.logger.With("username", name, "room", int(s.room))

		s.out.push(fmt.Sprintf(msgWelcome, int(s.room)))
		s.bc.Announce(s.room, s, name, NoticeJoined)
		return nil
	}
}

// parseUsername takes the first whitespace-separated token of line.
func parseUsername(line string, maxLen int) (string, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return "", ErrInvalidUsername
	}
	name := fields[0]
	if utf8.RuneCountInString(name) > maxLen {
		return "", ErrInvalidUsername
	}
	return name, nil
}

func (s *Session) chat() error {
	for {
		line, err := s.readLine()
		if err != nil {
			return err
		}
		if line == "LOGOUT" {
			s.logout()
			return nil
		}
		if s.limiter != nil && !s.limiter.Allow() {
			s.out.push(msgSlowDown)
			continue
		}
		if s.cfg.MaxMessageLen > 0 {
			line = truncate(line, s.cfg.MaxMessageLen)
		}
		s.bc.Send(s.room, s, s.username, line)
	}
}

func (s *Session) logout() {
	s.bc.Announce(s.room, s, s.username, NoticeLeft)
	s.rooms.Leave(s.room, s.username, s)
	s.out.push(fmt.Sprintf(msgGoodbye, int(s.room)))
	s.state = StateTerminated
	s.logger.Info("user logged out")
}

// connectionLost cleans up after a read failure. Only this session is
// affected; if it had joined a room the others see it leave.
func (s *Session) connectionLost(err error) {
	if isClosedErr(err) {
		s.logger.Info("client disconnected", "state", s.state.String())
	} else {
		s.logger.Warn("session ended by transport error", "state", s.state.String(), "error", err)
	}
	if s.state == StateActive {
		s.bc.Announce(s.room, s, s.username, NoticeLeft)
		s.rooms.Leave(s.room, s.username, s)
	}
	s.state = StateTerminated
}

func (s *Session) teardown() {
	s.out.close()
	_ = s.conn.Close()
	s.logger.Debug("session closed")
}

func (s *Session) readLine() (string, error) {
	if s.cfg.ReadTimeout > 0 {
		_ = s.conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
	}
	line, err := s.reader.ReadString('\n')
	if err == nil {
		return strings.TrimRight(line, "\r\n"), nil
	}
	if err == io.EOF && line != "" {
		// last line without newline
		return strings.TrimRight(line, "\r\n"), nil
	}
	return "", fmt.Errorf("read: %w: %w", ErrConnectionLost, err)
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

func isClosedErr(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe)
}

func remoteAddr(conn net.Conn) string {
	if conn == nil || conn.RemoteAddr() == nil {
		return ""
	}
	return conn.RemoteAddr().String()
}
