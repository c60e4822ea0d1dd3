package engine

import "log"

// killPlayer destroys a snake: notifies the victim (unless the death came
// from a clean exit or a broken stream), converts its score into food
// spread along the body, clears every part from the snake grid, and
// releases the player record and connection.
//
// The score is redistributed exactly: Length(score)*4 sub-cell amounts are
// computed by ceiling-division so they sum to score, then written under
// the first Length(score) parts tail-first. Body parts beyond that are
// cleared without food. If the body is shorter than Length(score), the
// leftover food is placed by the world's random placement walk.
func (s *Server) killPlayer(id uint16, notify bool) {
	p := s.reg.players[id]
	c := s.reg.clients[id]
	if p == nil {
		return
	}

	if notify && c != nil {
		if err := WriteFrameS2C(c.conn, []byte{OpDeath}); err != nil {
			log.Printf("death notify to %s failed: %v", p.Nickname, err)
		}
	}

	amounts := spreadFood(p.Score, Length(p.Score)*4)

	for i, part := range p.Parts {
		s.world.ClearSnake(part.X, part.Y)
		if i >= Length(p.Score) {
			continue
		}
		for q, sc := range s.world.SubCells(part.X, part.Y) {
			s.world.SetFood(sc[0], sc[1], amounts[4*i+q])
		}
	}

	// Food budgeted for parts the body never had still has to enter the
	// world, or deaths would leak score.
	if leftover := 4 * len(p.Parts); leftover < len(amounts) {
		for _, a := range amounts[leftover:] {
			for j := uint8(0); j < a; j++ {
				s.world.AddFood()
			}
		}
	}

	s.reg.Remove(id)
	if c != nil {
		c.conn.Close()
	}
}

// spreadFood splits total into k amounts that sum exactly to total, using
// ceiling division on the remainder so the early slots carry the excess:
// amount_i = ceil(remaining / (k - i)).
func spreadFood(total uint16, k int) []uint8 {
	amounts := make([]uint8, k)
	remaining := int(total)
	for i := 0; i < k; i++ {
		slots := k - i
		a := (remaining + slots - 1) / slots
		amounts[i] = uint8(a)
		remaining -= a
	}
	return amounts
}
