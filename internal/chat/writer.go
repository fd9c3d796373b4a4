package chat

import (
	"bufio"
	"log/slog"
	"net"
	"sync"
	"time"
)

// outbox is a session's bounded outbound queue. A single writer goroutine
// drains it to the connection, so a slow peer only ever stalls itself.
type outbox struct {
	conn         net.Conn
	ch           chan string
	writeTimeout time.Duration
	logger       *slog.Logger

	mu     sync.Mutex
	closed bool
	done   chan struct{}
}

func startOutbox(conn net.Conn, size int, writeTimeout time.Duration, logger *slog.Logger) *outbox {
	o := &outbox{
		conn:         conn,
		ch:           make(chan string, size),
		writeTimeout: writeTimeout,
		logger:       logger,
		done:         make(chan struct{}),
	}
	go o.run()
	return o
}

func (o *outbox) run() {
	defer close(o.done)

	w := bufio.NewWriter(o.conn)
	for msg := range o.ch {
		if o.writeTimeout > 0 {
			_ = o.conn.SetWriteDeadline(time.Now().Add(o.writeTimeout))
		}
		_, err := w.WriteString(msg)
		// batch whatever is already queued into one flush
		if err == nil && len(o.ch) == 0 {
			err = w.Flush()
		}
		if err != nil {
			o.logger.Debug("outbound write failed", "error", err)
			// unblocks the session's reader so it can tear down
			_ = o.conn.Close()
			for range o.ch {
			}
			return
		}
	}
	_ = w.Flush()
}

// offer queues text without blocking. It is safe from any goroutine and
// reports false if the queue is full or already closed.
func (o *outbox) offer(text string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return false
	}
	select {
	case o.ch <- text:
		return true
	default:
		return false
	}
}

// push queues text, waiting for room. Only the owning session calls it,
// and that session is also the only caller of close.
func (o *outbox) push(text string) {
	if o.closed {
		return
	}
	o.ch <- text
}

// close stops accepting text and waits until everything queued is written.
func (o *outbox) close() {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		<-o.done
		return
	}
	o.closed = true
	close(o.ch)
	o.mu.Unlock()
	<-o.done
}
