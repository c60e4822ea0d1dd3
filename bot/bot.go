// Package bot is a headless reference client: it speaks the same TCP
// protocol as a terminal player, parsing each game frame and answering
// with direction changes and fast-mode toggles.
package bot

import (
	"encoding/binary"
	"log"
	"math/rand"
	"net"
	"time"

	"github.com/pkg/errors"

	"serpent-arena/engine"
)

// cell is a viewport-relative position (head = origin).
type cell struct {
	X, Y int8
}

// frame is one parsed GAME_DATA broadcast, reduced to what steering needs.
type frame struct {
	foods      map[cell]uint8  // doubled (sub-cell) resolution
	parts      map[cell]uint16 // snake-cell resolution, value = owner id
	inFastMode bool
}

// Bot holds one connected bot's session state.
type Bot struct {
	conn     net.Conn
	id       uint16
	nickname string
	rng      *rand.Rand

	lastDir engine.Direction
}

// Run connects a bot to addr, plays until death or a connection error,
// and returns. Callers wanting a persistent bot population respawn by
// calling Run again.
func Run(addr, nickname string) {
	b, err := dial(addr, nickname)
	if err != nil {
		log.Printf("bot %s: %v", nickname, err)
		return
	}
	defer b.conn.Close()

	for {
		payload, err := engine.ReadFrameBlocking(b.conn, 2)
		if err != nil {
			log.Printf("bot %s lost connection: %v", b.nickname, err)
			return
		}
		if len(payload) == 0 {
			continue
		}
		switch payload[0] {
		case engine.OpDeath:
			log.Printf("bot %s died", b.nickname)
			return
		case engine.OpGameData:
			f, err := parseGameData(payload[1:], b.id)
			if err != nil {
				log.Printf("bot %s: bad game frame: %v", b.nickname, err)
				return
			}
			b.steer(f)
		}
	}
}

// dial performs the REQUEST_TO_PLAY handshake and returns a ready bot.
func dial(addr, nickname string) (*Bot, error) {
	conn, err := net.DialTimeout("tcp", addr, 10*time.Second)
	if err != nil {
		return nil, errors.Wrap(err, "couldn't connect to server")
	}
	req := append([]byte{engine.OpRequestToPlay}, nickname...)
	if err := engine.WriteFrameC2S(conn, req); err != nil {
		conn.Close()
		return nil, errors.Wrap(err, "handshake write failed")
	}
	reply, err := engine.ReadFrameBlocking(conn, 2)
	if err != nil {
		conn.Close()
		return nil, errors.Wrap(err, "handshake read failed")
	}
	if len(reply) > 0 && reply[0] == engine.OpError {
		conn.Close()
		return nil, errors.Errorf("server refused: %s", reply[1:])
	}
	if len(reply) != 7 || reply[0] != engine.OpJoinedGame {
		conn.Close()
		return nil, errors.New("corrupted join reply")
	}
	return &Bot{
		conn:     conn,
		id:       binary.BigEndian.Uint16(reply[1:3]),
		nickname: nickname,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}, nil
}

// parseGameData walks the shared prefix and the per-player tail of a
// GAME_DATA payload (opcode already stripped).
func parseGameData(data []byte, myID uint16) (*frame, error) {
	f := &frame{
		foods: make(map[cell]uint8),
		parts: make(map[cell]uint16),
	}
	i := 0
	need := func(n int) error {
		if i+n > len(data) {
			return errors.New("truncated game data")
		}
		return nil
	}

	if err := need(2); err != nil {
		return nil, err
	}
	snakes := int(binary.BigEndian.Uint16(data[i:]))
	i += 2
	for n := 0; n < snakes; n++ {
		if err := need(3); err != nil {
			return nil, err
		}
		id := binary.BigEndian.Uint16(data[i:])
		nickLen := int(data[i+2])
		i += 3
		if err := need(nickLen + 9); err != nil {
			return nil, err
		}
		i += nickLen
		if id == myID {
			f.inFastMode = data[i+8] == 1
		}
		i += 9 // score, kills, head x, head y, fast-mode flag
	}

	if err := need(2); err != nil {
		return nil, err
	}
	foods := int(binary.BigEndian.Uint16(data[i:]))
	i += 2
	for n := 0; n < foods; n++ {
		if err := need(3); err != nil {
			return nil, err
		}
		f.foods[cell{int8(data[i]), int8(data[i+1])}] = data[i+2]
		i += 3
	}

	if err := need(2); err != nil {
		return nil, err
	}
	parts := int(binary.BigEndian.Uint16(data[i:]))
	i += 2
	for n := 0; n < parts; n++ {
		if err := need(4); err != nil {
			return nil, err
		}
		f.parts[cell{int8(data[i]), int8(data[i+1])}] = binary.BigEndian.Uint16(data[i+2:])
		i += 4
	}
	return f, nil
}

// steer decides this frame's commands. Priorities: keep the next cell
// clear of snake bodies, toggle fast mode toward the state the situation
// calls for, otherwise head for the most valuable nearby food.
func (b *Bot) steer(f *frame) {
	// Fast mode pays off when another snake is within 3 cells (escape or
	// contest); it wastes score otherwise. Toggle lazily, 1-in-5 per
	// frame, so a pack of bots doesn't thrash the flag in lockstep.
	wantFast := false
	for c, id := range f.parts {
		if id != b.id && abs8(c.X) <= 3 && abs8(c.Y) <= 3 {
			wantFast = true
			break
		}
	}
	if wantFast != f.inFastMode && b.rng.Intn(5) == 0 {
		if err := engine.WriteFrameC2S(b.conn, []byte{engine.OpToggleFast}); err != nil {
			return
		}
	}

	dir, ok := b.bestFoodDirection(f)
	if !ok {
		dir = engine.Direction(b.rng.Intn(4))
	}

	// Never steer into a visible snake part; sidestep to any clear
	// neighbor instead. The server rejects 180s anyway, so prefer not to
	// waste the frame on one.
	if _, blocked := f.parts[dirCell(dir)]; blocked {
		dir = b.anyClearDirection(f)
	}
	if dir.Opposite(b.lastDir) {
		return
	}
	b.lastDir = dir
	engine.WriteFrameC2S(b.conn, []byte{engine.OpChangeDirection, byte(dir)})
}

// bestFoodDirection scores every visible food pile by amount^2 over
// squared distance and returns the cardinal direction toward the winner.
func (b *Bot) bestFoodDirection(f *frame) (engine.Direction, bool) {
	var best cell
	bestScore := 0.0
	for c, amount := range f.foods {
		d2 := float64(int(c.X)*int(c.X) + int(c.Y)*int(c.Y))
		if d2 == 0 {
			continue
		}
		score := float64(amount) * float64(amount) / d2
		if score > bestScore {
			bestScore = score
			best = c
		}
	}
	if bestScore == 0 {
		return 0, false
	}
	if abs8(best.X) >= abs8(best.Y) {
		if best.X > 0 {
			return engine.DirRight, true
		}
		return engine.DirLeft, true
	}
	if best.Y > 0 {
		return engine.DirDown, true
	}
	return engine.DirUp, true
}

// anyClearDirection returns the first cardinal direction whose adjacent
// cell holds no snake part, or a random one when boxed in.
func (b *Bot) anyClearDirection(f *frame) engine.Direction {
	for _, d := range []engine.Direction{engine.DirRight, engine.DirLeft, engine.DirDown, engine.DirUp} {
		if _, blocked := f.parts[dirCell(d)]; !blocked {
			return d
		}
	}
	return engine.Direction(b.rng.Intn(4))
}

// dirCell maps a direction to the adjacent viewport cell it leads into.
func dirCell(d engine.Direction) cell {
	dx, dy := d.Vector()
	return cell{int8(dx), int8(dy)}
}

func abs8(v int8) int8 {
	if v < 0 {
		return -v
	}
	return v
}
