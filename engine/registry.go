package engine

import (
	"net"
	"sort"
)

// client bundles everything the engine holds per connected player beyond
// the Player record itself: the stream, its incremental frame reader, and
// the teardown flag the broadcaster sets on write failure.
type client struct {
	conn    net.Conn
	reader  *frameReader
	traceID string // uuid minted by the acceptor, for log correlation
	// doomed marks the connection for teardown at the start of the next
	// tick (set on broadcast write error).
	doomed bool
}

// Registry maps player ids to player records and to their connections.
// All mutation happens under the server's single lock; the tick engine is
// the only steady-state writer.
type Registry struct {
	players map[uint16]*Player
	clients map[uint16]*client
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		players: make(map[uint16]*Player),
		clients: make(map[uint16]*client),
	}
}

// AllocateID returns the smallest positive id not currently in use.
// Id 0 is the empty-cell sentinel in the snake grid and is never handed out.
func (r *Registry) AllocateID() uint16 {
	for id := uint16(1); ; id++ {
		if _, taken := r.players[id]; !taken {
			return id
		}
	}
}

// Add inserts a player record together with its connection.
func (r *Registry) Add(p *Player, conn net.Conn, traceID string) {
	r.players[p.ID] = p
	r.clients[p.ID] = &client{
		conn:    conn,
		reader:  newFrameReader(conn),
		traceID: traceID,
	}
}

// Remove drops the player record and client entry. The caller is
// responsible for closing the stream (the death handler closes exactly
// once).
func (r *Registry) Remove(id uint16) {
	delete(r.players, id)
	delete(r.clients, id)
}

// Player returns the record for an id, or nil.
func (r *Registry) Player(id uint16) *Player {
	return r.players[id]
}

// Count returns the number of connected players.
func (r *Registry) Count() int {
	return len(r.players)
}

// IDs returns all player ids in ascending order. The movement resolver
// iterates in this order so a tick's outcome is reproducible.
func (r *Registry) IDs() []uint16 {
	ids := make([]uint16, 0, len(r.players))
	for id := range r.players {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// LeaderboardSize caps the status endpoint's two leaderboards.
const LeaderboardSize = 9

// TopByScore returns up to LeaderboardSize players sorted by descending
// score, ties broken by ascending id.
func (r *Registry) TopByScore() []*Player {
	return r.top(func(a, b *Player) bool {
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		return a.ID < b.ID
	})
}

// TopByKills returns up to LeaderboardSize players sorted by descending
// kills, ties broken by ascending id.
func (r *Registry) TopByKills() []*Player {
	return r.top(func(a, b *Player) bool {
		if a.Kills != b.Kills {
			return a.Kills > b.Kills
		}
		return a.ID < b.ID
	})
}

func (r *Registry) top(less func(a, b *Player) bool) []*Player {
	all := make([]*Player, 0, len(r.players))
	for _, p := range r.players {
		all = append(all, p)
	}
	sort.Slice(all, func(i, j int) bool { return less(all[i], all[j]) })
	if len(all) > LeaderboardSize {
		all = all[:LeaderboardSize]
	}
	return all
}
