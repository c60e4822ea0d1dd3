package engine

import (
	"errors"
	"log"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// handshakeTimeout is how long a fresh connection may idle before its
// first frame arrives.
const handshakeTimeout = 60 * time.Second

// ipLimiter throttles connection acceptance per source IP with one token
// bucket per address. Stale buckets are swept every minute.
type ipLimiter struct {
	mu       sync.Mutex
	buckets  map[string]*rate.Limiter
	lastSeen map[string]time.Time
	every    rate.Limit
}

func newIPLimiter(cooldownSec int) *ipLimiter {
	rl := &ipLimiter{
		buckets:  make(map[string]*rate.Limiter),
		lastSeen: make(map[string]time.Time),
	}
	if cooldownSec > 0 {
		rl.every = rate.Every(time.Duration(cooldownSec) * time.Second)
		go func() {
			for range time.Tick(60 * time.Second) {
				rl.sweep()
			}
		}()
	}
	return rl
}

// allow reports whether a connection from ip may proceed, consuming one
// token if so.
func (rl *ipLimiter) allow(ip string) bool {
	if rl.every == 0 {
		return true
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()
	b, ok := rl.buckets[ip]
	if !ok {
		b = rate.NewLimiter(rl.every, 1)
		rl.buckets[ip] = b
	}
	rl.lastSeen[ip] = time.Now()
	return b.Allow()
}

func (rl *ipLimiter) sweep() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	cutoff := time.Now().Add(-5 * time.Minute)
	for ip, t := range rl.lastSeen {
		if t.Before(cutoff) {
			delete(rl.buckets, ip)
			delete(rl.lastSeen, ip)
		}
	}
}

// AcceptLoop accepts TCP connections forever and hands each to a
// handshake goroutine. Call after Listen, typically as `go s.AcceptLoop()`
// with Run on the main goroutine.
func (s *Server) AcceptLoop() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			log.Printf("accept error: %v", err)
			continue
		}
		go s.handshake(conn)
	}
}

// handshake classifies a new connection by its first frame: a play
// request joins the game, a status request gets the metadata/leaderboard
// reply. Anything else, or any validation failure, gets an ERROR frame
// and a closed socket.
func (s *Server) handshake(conn net.Conn) {
	traceID := uuid.New().String()

	ip, _, err := net.SplitHostPort(conn.RemoteAddr().String())
	if err != nil {
		ip = conn.RemoteAddr().String()
	}
	// Loopback is exempt: the server's own bots reconnect from it.
	if parsed := net.ParseIP(ip); (parsed == nil || !parsed.IsLoopback()) && !s.limiter.allow(ip) {
		log.Printf("refusing %s (%s): connecting too fast", ip, traceID)
		conn.Close()
		return
	}

	conn.SetReadDeadline(time.Now().Add(handshakeTimeout))
	payload, err := ReadFrameBlocking(conn, 1)
	if err != nil {
		log.Printf("handshake read from %s (%s) failed: %v", ip, traceID, err)
		conn.Close()
		return
	}
	if len(payload) == 0 {
		conn.Close()
		return
	}

	switch payload[0] {
	case OpRequestToPlay:
		s.join(conn, traceID, payload[1:])
	case OpServerStatus:
		s.sendStatus(conn)
		conn.Close()
	default:
		sendError(conn, "unknown request")
		conn.Close()
	}
}

// join validates the nickname and capacity, spawns a snake, replies with
// JOINED_GAME, and registers the stream for tick-engine polling.
func (s *Server) join(conn net.Conn, traceID string, rawNick []byte) {
	nickname := escapeNickname(rawNick)
	if len(nickname) < 1 || len(nickname) > 10 {
		sendError(conn, "nickname too short/long")
		conn.Close()
		return
	}

	s.mu.Lock()
	if s.reg.Count() >= int(s.cfg.MaxPlayers) {
		s.mu.Unlock()
		sendError(conn, "server full")
		conn.Close()
		return
	}
	id := s.reg.AllocateID()
	dir := Direction(s.rng.Intn(4))
	parts, score, err := FindSpawn(s.world, id, dir, s.rng)
	if err != nil {
		s.mu.Unlock()
		sendError(conn, err.Error())
		conn.Close()
		return
	}
	p := &Player{
		ID:            id,
		Nickname:      nickname,
		Direction:     dir,
		LastDirection: dir,
		Parts:         parts,
		Score:         score,
	}
	s.reg.Add(p, conn, traceID)

	// The reply is written before the lock is released, so no tick can
	// broadcast to this stream ahead of JOINED_GAME.
	reply := make([]byte, 0, 7)
	reply = append(reply, OpJoinedGame)
	reply = be16(reply, id)
	reply = be16(reply, s.cfg.WorldWidth)
	reply = be16(reply, s.cfg.WorldHeight)
	if err := WriteFrameS2C(conn, reply); err != nil {
		log.Printf("join reply to %s failed: %v", nickname, err)
		s.killPlayer(id, false)
		s.mu.Unlock()
		return
	}

	// From here the tick engine polls the stream; clear the handshake
	// deadline so the frame reader's short deadlines are the only ones in
	// play.
	conn.SetReadDeadline(time.Time{})
	s.mu.Unlock()
	log.Printf("%s connected with nickname %s (%s)", conn.RemoteAddr(), nickname, traceID)
}

// sendStatus replies with world and capacity metadata followed by the
// top-9 leaderboards by score and by kills.
//
// Layout: 2B max players, 2B playing now, 2B W, 2B H, 1B food rate,
// 1B game speed, then two leaderboard blocks (score, kills), each a
// 1-byte row count followed by rows of 1B nickname length, nickname,
// 2B score, 2B kills.
func (s *Server) sendStatus(conn net.Conn) {
	s.mu.Lock()
	payload := make([]byte, 0, 64)
	payload = be16(payload, s.cfg.MaxPlayers)
	payload = be16(payload, uint16(s.reg.Count()))
	payload = be16(payload, s.cfg.WorldWidth)
	payload = be16(payload, s.cfg.WorldHeight)
	payload = append(payload, s.cfg.FoodRate, s.cfg.GameSpeed)
	payload = appendLeaderboard(payload, s.reg.TopByScore())
	payload = appendLeaderboard(payload, s.reg.TopByKills())
	s.mu.Unlock()

	if err := WriteFrameS2C(conn, payload); err != nil {
		log.Printf("status reply failed: %v", err)
	}
}

func appendLeaderboard(b []byte, rows []*Player) []byte {
	b = append(b, byte(len(rows)))
	for _, p := range rows {
		b = append(b, byte(len(p.Nickname)))
		b = append(b, p.Nickname...)
		b = be16(b, p.Score)
		b = be16(b, p.Kills)
	}
	return b
}

// sendError writes an ERROR frame with a UTF-8 reason. Best effort; the
// connection is closing either way.
func sendError(conn net.Conn, reason string) {
	payload := append([]byte{OpError}, reason...)
	if err := WriteFrameS2C(conn, payload); err != nil {
		log.Printf("error reply failed: %v", err)
	}
}
