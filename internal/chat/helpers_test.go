package chat

import (
	"errors"
	"io"
	"log/slog"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/andy6609/multiroom-chat-server/internal/config"
)

const waitTimeout = 2 * time.Second

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeMember records delivered lines; full makes it refuse them.
type fakeMember struct {
	mu    sync.Mutex
	lines []string
	full  bool
}

func (f *fakeMember) Deliver(line string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.full {
		return false
	}
	f.lines = append(f.lines, line)
	return true
}

func (f *fakeMember) Lines() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.lines...)
}

func testConfig() config.Config {
	cfg := config.Default()
	cfg.Addr = "127.0.0.1:0"
	cfg.MetricsAddr = ""
	cfg.WriteTimeout = time.Second
	return cfg
}

// testClient is the far end of a session's connection.
type testClient struct {
	t       *testing.T
	conn    net.Conn
	pending string
}

func newTestClient(t *testing.T, conn net.Conn) *testClient {
	t.Helper()
	t.Cleanup(func() { _ = conn.Close() })
	return &testClient{t: t, conn: conn}
}

func (c *testClient) send(line string) {
	c.t.Helper()
	_ = c.conn.SetWriteDeadline(time.Now().Add(waitTimeout))
	_, err := c.conn.Write([]byte(line + "\n"))
	require.NoErrorf(c.t, err, "send(%q)", line)
}

// expect consumes output up to and including want.
func (c *testClient) expect(want string) {
	c.t.Helper()
	deadline := time.Now().Add(waitTimeout)
	buf := make([]byte, 1024)
	for {
		if i := strings.Index(c.pending, want); i >= 0 {
			c.pending = c.pending[i+len(want):]
			return
		}
		_ = c.conn.SetReadDeadline(deadline)
		n, err := c.conn.Read(buf)
		c.pending += string(buf[:n])
		if err != nil && !strings.Contains(c.pending, want) {
			require.FailNowf(c.t, "missing output", "waiting for %q: %v (got %q)", want, err, c.pending)
		}
	}
}

// refute reads for d and fails if unwanted shows up.
func (c *testClient) refute(unwanted string, d time.Duration) {
	c.t.Helper()
	deadline := time.Now().Add(d)
	buf := make([]byte, 1024)
	for time.Now().Before(deadline) {
		_ = c.conn.SetReadDeadline(deadline)
		n, err := c.conn.Read(buf)
		c.pending += string(buf[:n])
		if err != nil {
			break
		}
	}
	require.NotContainsf(c.t, c.pending, unwanted, "unexpected %q", unwanted)
}

// expectClosed waits for the server to close the connection.
func (c *testClient) expectClosed() {
	c.t.Helper()
	deadline := time.Now().Add(waitTimeout)
	buf := make([]byte, 1024)
	for {
		_ = c.conn.SetReadDeadline(deadline)
		n, err := c.conn.Read(buf)
		c.pending += string(buf[:n])
		if err == nil {
			continue
		}
		var ne net.Error
		if errors.As(err, &ne) {
			require.Falsef(c.t, ne.Timeout(), "connection still open (got %q)", c.pending)
		}
		return
	}
}

// login walks the handshake up to the welcome banner.
func (c *testClient) login(room, username string) {
	c.t.Helper()
	c.expect(promptLogin)
	c.send("LOGIN")
	c.expect("to select a chat room: ")
	c.send(room)
	c.expect(promptUsername)
	c.send(username)
	c.expect("WELCOME TO CHATROOM #" + room + "!")
}

type pipeSession struct {
	*testClient
	sess *Session
	done chan struct{}
}

func (p *pipeSession) wait() {
	p.t.Helper()
	select {
	case <-p.done:
	case <-time.After(waitTimeout):
		require.FailNow(p.t, "session did not terminate")
	}
}

// startSession runs a Session over net.Pipe against reg.
func startSession(t *testing.T, reg *Registry, cfg config.Config) *pipeSession {
	t.Helper()
	serverSide, clientSide := net.Pipe()
	sess := NewSession(serverSide, reg, NewBroadcaster(reg, discardLogger()), cfg, discardLogger())
	done := make(chan struct{})
	go func() {
		sess.Run()
		close(done)
	}()
	t.Cleanup(func() {
		_ = sess.Close()
		<-done
	})
	return &pipeSession{testClient: newTestClient(t, clientSide), sess: sess, done: done}
}
