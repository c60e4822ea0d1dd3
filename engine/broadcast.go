package engine

import (
	"encoding/binary"
	"log"
)

// Viewport half-extents: the per-player window is 49 x 29 cells centered
// on the head, X offsets in [-24, 24] and Y offsets in [-14, 14].
const (
	viewHalfW = 24
	viewHalfH = 14
)

// broadcast builds one game frame per player: a shared prefix describing
// every snake, then that player's viewport tail. Write errors mark the
// connection for teardown at the start of the next tick; they never stop
// the loop.
func (s *Server) broadcast() {
	prefix := s.buildPrefix()
	for _, id := range s.reg.IDs() {
		c := s.reg.clients[id]
		if c == nil || c.doomed {
			continue
		}
		frame := s.appendViewport(prefix, s.reg.players[id])
		if err := WriteFrameS2C(c.conn, frame); err != nil {
			log.Printf("send error to %s (%s): %v", s.reg.players[id].Nickname, c.traceID, err)
			c.doomed = true
		}
	}
}

// buildPrefix assembles the tick's shared frame prefix: the GAME_DATA
// opcode, the snake count, and one record per snake (id, nickname,
// score, kills, absolute head position, fast-mode flag).
func (s *Server) buildPrefix() []byte {
	ids := s.reg.IDs()
	prefix := make([]byte, 0, 3+16*len(ids))
	prefix = append(prefix, OpGameData)
	prefix = be16(prefix, uint16(len(ids)))
	for _, id := range ids {
		p := s.reg.players[id]
		head := p.Head()
		prefix = be16(prefix, id)
		prefix = append(prefix, byte(len(p.Nickname)))
		prefix = append(prefix, p.Nickname...)
		prefix = be16(prefix, p.Score)
		prefix = be16(prefix, p.Kills)
		prefix = be16(prefix, head.X)
		prefix = be16(prefix, head.Y)
		if p.FastMode {
			prefix = append(prefix, 1)
		} else {
			prefix = append(prefix, 0)
		}
	}
	return prefix
}

// appendViewport appends the recipient's tail to a copy of the shared
// prefix and returns the complete frame payload.
//
// The viewport walk is raster order, Y outer. A cell holding a snake part
// emits one 4-byte part record and hides any food arithmetic; an empty
// cell emits up to four 3-byte food records, one per non-zero quadrant,
// with coordinates in doubled (sub-cell) resolution.
func (s *Server) appendViewport(prefix []byte, p *Player) []byte {
	head := p.Head()

	var foods []byte
	var parts []byte
	for y := -viewHalfH; y <= viewHalfH; y++ {
		for x := -viewHalfW; x <= viewHalfW; x++ {
			wx, wy := s.world.Wrap(head.X, head.Y, x, y)
			if id := s.world.SnakeAt(wx, wy); id != EmptyCell {
				parts = append(parts, byte(int8(x)), byte(int8(y)))
				parts = be16(parts, id)
				continue
			}
			for q, sc := range s.world.SubCells(wx, wy) {
				amount := s.world.FoodAt(sc[0], sc[1])
				if amount == 0 {
					continue
				}
				fx := 2*x + q%2
				fy := 2*y + q/2
				foods = append(foods, byte(int8(fx)), byte(int8(fy)), amount)
			}
		}
	}

	frame := make([]byte, len(prefix), len(prefix)+8+len(foods)+len(parts))
	copy(frame, prefix)
	frame = be16(frame, uint16(len(foods)/3))
	frame = append(frame, foods...)
	frame = be16(frame, uint16(len(parts)/4))
	frame = append(frame, parts...)
	frame = be16(frame, head.X)
	frame = be16(frame, head.Y)
	return frame
}

// be16 appends v big-endian.
func be16(b []byte, v uint16) []byte {
	var tmp [2]byte
	binary.BigEndian.PutUint16(tmp[:], v)
	return append(b, tmp[0], tmp[1])
}
