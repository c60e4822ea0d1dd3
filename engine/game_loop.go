package engine

import (
	"log"
	"time"
)

// Run drives the simulation at the configured tick rate. Each tick drains
// pending client input, resolves movement and deaths, and broadcasts game
// frames. If a tick overruns its budget the next one starts immediately;
// there is no catch-up.
//
// Run is the sole writer to the world and player state. It blocks until
// the process exits.
func (s *Server) Run() {
	period := time.Second / time.Duration(s.cfg.GameSpeed)
	log.Printf("game loop started at %d ticks/sec", s.cfg.GameSpeed)

	for {
		start := time.Now()
		s.Tick()
		if remaining := period - time.Since(start); remaining > 0 {
			time.Sleep(remaining)
		}
	}
}

// Tick executes a single simulation step: teardown of connections that
// failed to write last tick, input drain, movement, broadcast.
func (s *Server) Tick() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.reapDoomed()
	s.drainInput()
	s.moveSnakes()
	s.broadcast()
}

// reapDoomed kills every snake whose connection hit a write error during
// the previous broadcast. No DEATH frame — the stream is already broken.
func (s *Server) reapDoomed() {
	for _, id := range s.reg.IDs() {
		if c := s.reg.clients[id]; c != nil && c.doomed {
			log.Printf("tearing down %s (%s) after write error", s.reg.players[id].Nickname, c.traceID)
			s.killPlayer(id, false)
		}
	}
}

// drainInput reads every complete pending frame from every connection.
// A WouldBlock ends that connection's drain for this tick; a fatal read
// error or an exit frame invokes the death handler without a DEATH frame.
func (s *Server) drainInput() {
	for _, id := range s.reg.IDs() {
		c := s.reg.clients[id]
		p := s.reg.players[id]
		if c == nil || p == nil {
			continue
		}
		for {
			payload, ok, err := c.reader.tryRead()
			if err != nil {
				log.Printf("connection to player %s lost: %v", p.Nickname, err)
				s.killPlayer(id, false)
				break
			}
			if !ok {
				break
			}
			if exit := s.handleCommand(p, payload); exit {
				s.killPlayer(id, false)
				break
			}
		}
	}
}

// handleCommand applies one client frame to the player record. Returns
// true for a clean exit.
func (s *Server) handleCommand(p *Player, payload []byte) bool {
	if len(payload) == 0 {
		return false
	}
	switch payload[0] {
	case OpChangeDirection:
		if len(payload) != 2 {
			return false
		}
		dir := DirectionFromByte(payload[1])
		// Compare against the direction resolved last tick, not the
		// pending one, so two frames within one tick can't add up to a
		// 180 degree reversal.
		if dir.Opposite(p.LastDirection) {
			return false
		}
		p.Direction = dir
	case OpToggleFast:
		if p.Score == 0 {
			return false
		}
		p.FastMode = !p.FastMode
	case OpExit:
		return true
	}
	return false
}

// headClaim is one snake's intent to occupy a cell this tick. A fast-mode
// snake files two claims, in sub-step order.
type headClaim struct {
	id   uint16
	cell Point
}

// moveSnakes advances every snake one step (two in fast mode) using
// deferred head resolution: every snake's intended head cells are
// collected first, then resolved, so simultaneous head-on-head crashes
// are symmetric and nobody gets kill credit for them.
func (s *Server) moveSnakes() {
	ids := s.reg.IDs()

	// Intent phase. Tail trimming happens here too, before any head is
	// stamped, so a following snake can move into a cell the leader's
	// tail vacates this same tick.
	claims := make([]headClaim, 0, 2*len(ids))
	claimants := make(map[Point]int, 2*len(ids))
	for _, id := range ids {
		p := s.reg.players[id]

		if p.FastMode && p.Score < 1 {
			p.FastMode = false
		}
		fast := p.FastMode
		if fast {
			p.Score--
		}

		dx, dy := p.Direction.Vector()
		p.LastDirection = p.Direction
		steps := 1
		if fast {
			steps = 2
		}
		cell := p.Head()
		for i := 0; i < steps; i++ {
			x, y := s.world.Wrap(cell.X, cell.Y, dx, dy)
			cell = Point{x, y}
			claims = append(claims, headClaim{id: id, cell: cell})
			claimants[cell]++
		}

		s.trimTail(p, fast)
	}

	// Resolution phase.
	crashed := make(map[uint16]bool)
	for _, cl := range claims {
		if crashed[cl.id] {
			continue
		}
		p := s.reg.players[cl.id]

		if claimants[cl.cell] >= 2 {
			// Everyone who wanted this cell dies with it; no kill
			// credit since the responsible parties are all dying too.
			crashed[cl.id] = true
			continue
		}
		if occupier := s.world.SnakeAt(cl.cell.X, cl.cell.Y); occupier != EmptyCell {
			crashed[cl.id] = true
			if occupier != cl.id {
				if op := s.reg.players[occupier]; op != nil {
					op.Kills++
				}
			}
			continue
		}
		p.Score += s.world.EatCell(cl.cell.X, cl.cell.Y)
		s.world.SetSnake(cl.cell.X, cl.cell.Y, cl.id)
		p.Parts = append(p.Parts, cl.cell)
	}

	// Death phase.
	for _, cl := range claims {
		if crashed[cl.id] && s.reg.players[cl.id] != nil {
			log.Printf("%s crashed at (%d, %d)", s.reg.players[cl.id].Nickname, cl.cell.X, cl.cell.Y)
			s.killPlayer(cl.id, true)
		}
	}
}

// trimTail pops excess tail cells until the snake is back at its target
// part count. In fast mode the receding tail leaves one food unit behind
// (under a random quadrant of the popped cell); the burn's food still
// enters the world even on the ticks where nothing was popped.
func (s *Server) trimTail(p *Player, fast bool) {
	popped := false
	for len(p.Parts)-3 > Length(p.Score) {
		tail := p.Parts[0]
		p.Parts = p.Parts[1:]
		s.world.ClearSnake(tail.X, tail.Y)
		if fast && !popped {
			sc := s.world.SubCells(tail.X, tail.Y)[s.rng.Intn(4)]
			s.world.DropFoodAt(sc[0], sc[1])
		}
		popped = true
	}
	if fast && !popped {
		s.world.AddFood()
	}
}
