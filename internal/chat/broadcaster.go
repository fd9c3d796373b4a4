package chat

import (
	"fmt"
	"log/slog"
	"time"
)

// Broadcaster fans lines out to the other occupants of a room.
type Broadcaster struct {
	rooms  RoomDirectory
	logger *slog.Logger
}

func NewBroadcaster(rooms RoomDirectory, logger *slog.Logger) *Broadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{rooms: rooms, logger: logger}
}

// Send delivers "<username>: <message>" to everyone in room except sender.
func (b *Broadcaster) Send(room RoomID, sender Member, username, message string) int {
	return b.fanout("chat", room, sender, username+": "+message)
}

// Announce delivers a join or leave banner to everyone in room except sender.
func (b *Broadcaster) Announce(room RoomID, sender Member, username string, n Notice) int {
	return b.fanout(n.String(), room, sender, noticeLine(username, n))
}

func noticeLine(username string, n Notice) string {
	verb := "joined"
	if n == NoticeLeft {
		verb = "left"
	}
	return fmt.Sprintf("\n=== %s has %s the chat! ===\n", username, verb)
}

// fanout works on a snapshot, so members joining or leaving mid-call may
// or may not be included. It returns the number of lines queued.
func (b *Broadcaster) fanout(kind string, room RoomID, sender Member, line string) int {
	start := time.Now()

	recipients := b.rooms.MembersExcept(room, sender)
	delivered := 0
	for _, m := range recipients {
		if m.Deliver(line) {
			delivered++
			continue
		}
		DroppedDeliveries.Inc()
	}

	MessagesTotal.WithLabelValues(kind).Inc()
	BroadcastDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())

	if delivered < len(recipients) {
		b.logger.Warn("broadcast partially dropped",
			"type", kind, "room", int(room), "recipients", len(recipients), "delivered", delivered)
	}
	return delivered
}
