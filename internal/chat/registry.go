package chat

import (
	"log/slog"
	"sort"
	"sync"
)

// occupant locates a claimed username.
type occupant struct {
	room   RoomID
	member Member
}

// roomRecord pairs every member of one room with its username. A single map
// keeps the two sides from ever disagreeing.
type roomRecord struct {
	mu      sync.Mutex
	members map[Member]string
}

// Registry tracks which members sit in which room and which usernames are
// claimed. The username index is global so a name is unique across rooms.
//
// Lock order is always names then room. Locks cover map updates only.
type Registry struct {
	mu     sync.Mutex
	names  map[string]occupant
	rooms  map[RoomID]*roomRecord
	logger *slog.Logger
}

var _ RoomDirectory = (*Registry)(nil)

// NewRegistry creates rooms 1..n.
func NewRegistry(n int, logger *slog.Logger) *Registry {
	if n <= 0 {
		n = 3
	}
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{
		names:  make(map[string]occupant),
		rooms:  make(map[RoomID]*roomRecord, n),
		logger: logger,
	}
	for id := RoomID(1); id <= RoomID(n); id++ {
		r.rooms[id] = &roomRecord{members: make(map[Member]string)}
		RoomOccupancy.WithLabelValues(id.String()).Set(0)
	}
	return r
}

func (r *Registry) Rooms() int { return len(r.rooms) }

func (r *Registry) Valid(room RoomID) bool {
	_, ok := r.rooms[room]
	return ok
}

// Join claims username and places m in room. It fails without touching any
// state if the room does not exist or the name is taken in any room.
func (r *Registry) Join(room RoomID, username string, m Member) error {
	rec, ok := r.rooms[room]
	if !ok {
		return ErrInvalidRoom
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, taken := r.names[username]; taken {
		return ErrDuplicateUsername
	}

	rec.mu.Lock()
	rec.members[m] = username
	count := len(rec.members)
	rec.mu.Unlock()

	r.names[username] = occupant{room: room, member: m}

	RoomOccupancy.WithLabelValues(room.String()).Set(float64(count))
	r.logger.Info("user joined", "username", username, "room", int(room), "occupants", count)
	return nil
}

// Leave releases username and removes m from room. Absent pairs are ignored,
// and a name held by a different member is left alone.
func (r *Registry) Leave(room RoomID, username string, m Member) {
	rec, ok := r.rooms[room]
	if !ok {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	occ, held := r.names[username]
	if !held || occ.room != room || occ.member != m {
		return
	}

	rec.mu.Lock()
	delete(rec.members, m)
	count := len(rec.members)
	rec.mu.Unlock()

	delete(r.names, username)

	RoomOccupancy.WithLabelValues(room.String()).Set(float64(count))
	r.logger.Info("user left", "username", username, "room", int(room), "occupants", count)
}

func (r *Registry) IsActive(username string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.names[username]
	return ok
}

// MembersExcept snapshots room's occupants without exclude. Only the room's
// own lock is taken, so fan-out in one room never waits on another.
func (r *Registry) MembersExcept(room RoomID, exclude Member) []Member {
	rec, ok := r.rooms[room]
	if !ok {
		return nil
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()

	out := make([]Member, 0, len(rec.members))
	for m := range rec.members {
		if exclude != nil && m == exclude {
			continue
		}
		out = append(out, m)
	}
	return out
}

func (r *Registry) Count(room RoomID) int {
	rec, ok := r.rooms[room]
	if !ok {
		return 0
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return len(rec.members)
}

// Usernames lists room's occupants in sorted order.
func (r *Registry) Usernames(room RoomID) []string {
	rec, ok := r.rooms[room]
	if !ok {
		return nil
	}

	rec.mu.Lock()
	names := make([]string, 0, len(rec.members))
	for _, name := range rec.members {
		names = append(names, name)
	}
	rec.mu.Unlock()

	sort.Strings(names)
	return names
}
