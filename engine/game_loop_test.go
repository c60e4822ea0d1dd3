package engine

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestServer builds a server around an empty world, bypassing Listen
// so movement can be driven tick by tick without sockets.
func newTestServer(t *testing.T, w, h uint16) *Server {
	t.Helper()
	cfg := DefaultConfig()
	cfg.WorldWidth = w
	cfg.WorldHeight = h
	return &Server{
		cfg:   cfg,
		world: emptyWorld(w, h),
		reg:   NewRegistry(),
		rng:   rand.New(rand.NewSource(1)),
	}
}

// addSnake registers a player with the given parts (tail to head) and
// stamps the snake grid. No connection is attached; the engine treats
// such players as unreachable-but-alive, which is exactly what movement
// tests need.
func addSnake(s *Server, id uint16, dir Direction, score uint16, parts ...Point) *Player {
	p := &Player{
		ID:            id,
		Nickname:      "snake",
		Direction:     dir,
		LastDirection: dir,
		Parts:         parts,
		Score:         score,
	}
	s.reg.players[id] = p
	for _, part := range parts {
		s.world.SetSnake(part.X, part.Y, id)
	}
	return p
}

func TestMovementAdvancesHead(t *testing.T) {
	s := newTestServer(t, 20, 20)
	p := addSnake(s, 1, DirRight, 0, Point{3, 5}, Point{4, 5}, Point{5, 5})

	s.moveSnakes()

	assert.Equal(t, Point{6, 5}, p.Head())
	assert.Equal(t, uint16(1), s.world.SnakeAt(6, 5))
}

func TestMovementWrapsAroundWorldEdge(t *testing.T) {
	s := newTestServer(t, 20, 20)
	p := addSnake(s, 1, DirLeft, 0, Point{2, 5}, Point{1, 5}, Point{0, 5})

	s.moveSnakes()

	assert.Equal(t, Point{19, 5}, p.Head())
	assert.Equal(t, uint16(1), s.world.SnakeAt(19, 5))
}

func TestReversalIgnoredAtInput(t *testing.T) {
	s := newTestServer(t, 20, 20)
	p := addSnake(s, 1, DirRight, 0, Point{3, 5}, Point{4, 5}, Point{5, 5})

	exit := s.handleCommand(p, []byte{OpChangeDirection, byte(DirLeft)})
	require.False(t, exit)
	assert.Equal(t, DirRight, p.Direction)

	s.moveSnakes()
	assert.Equal(t, Point{6, 5}, p.Head())
}

func TestTwoReversalsWithinOneTickStillRejected(t *testing.T) {
	s := newTestServer(t, 20, 20)
	p := addSnake(s, 1, DirRight, 0, Point{3, 5}, Point{4, 5}, Point{5, 5})

	// Up is legal, but a follow-up Left still compares against the
	// direction resolved last tick (Right), so it stays forbidden.
	s.handleCommand(p, []byte{OpChangeDirection, byte(DirUp)})
	s.handleCommand(p, []byte{OpChangeDirection, byte(DirLeft)})
	assert.Equal(t, DirUp, p.Direction)
}

func TestFoodAbsorption(t *testing.T) {
	s := newTestServer(t, 20, 20)
	p := addSnake(s, 1, DirRight, 0, Point{3, 5}, Point{4, 5}, Point{5, 5})
	s.world.SetFood(12, 10, 2) // sub-cell (2*6, 2*5) of the cell ahead
	s.world.SetFood(13, 11, 1)

	s.moveSnakes()

	assert.Equal(t, uint16(3), p.Score)
	for _, sc := range s.world.SubCells(6, 5) {
		assert.Zero(t, s.world.FoodAt(sc[0], sc[1]))
	}
}

func TestHeadOnHeadCrashKillsBothWithoutCredit(t *testing.T) {
	s := newTestServer(t, 20, 20)
	a := addSnake(s, 1, DirRight, 5, Point{2, 5}, Point{3, 5}, Point{4, 5})
	b := addSnake(s, 2, DirLeft, 7, Point{8, 5}, Point{7, 5}, Point{6, 5})

	before := s.world.TotalFood()
	s.moveSnakes()

	assert.Nil(t, s.reg.Player(1))
	assert.Nil(t, s.reg.Player(2))
	assert.Zero(t, a.Kills)
	assert.Zero(t, b.Kills)
	// Both scores re-enter the world as food: conservation.
	assert.Equal(t, before+5+7, s.world.TotalFood())
	// Every body cell is released.
	for _, p := range []Point{{2, 5}, {3, 5}, {4, 5}, {6, 5}, {7, 5}, {8, 5}} {
		assert.Equal(t, EmptyCell, s.world.SnakeAt(p.X, p.Y))
	}
}

func TestCrashIntoBodyCreditsOccupier(t *testing.T) {
	s := newTestServer(t, 20, 20)
	addSnake(s, 1, DirRight, 4, Point{3, 5}, Point{4, 5}, Point{5, 5})
	other := addSnake(s, 2, DirDown, 0, Point{6, 3}, Point{6, 4}, Point{6, 5})

	// Snake 1 moves right into (6,5), which snake 2's head occupies and
	// does not vacate (snake 2 heads down to (6,6)).
	s.moveSnakes()

	assert.Nil(t, s.reg.Player(1))
	require.NotNil(t, s.reg.Player(2))
	assert.Equal(t, uint16(1), other.Kills)
}

func TestSelfCrashGivesNoKillCredit(t *testing.T) {
	s := newTestServer(t, 20, 20)
	// A hooked body: head at (5,5) facing left into its own part.
	p := addSnake(s, 1, DirLeft, 50,
		Point{4, 5}, Point{4, 6}, Point{5, 6}, Point{6, 6}, Point{6, 5}, Point{5, 5})

	s.moveSnakes()

	assert.Nil(t, s.reg.Player(1))
	assert.Zero(t, p.Kills)
}

func TestFastModeBurnAndAutoDisable(t *testing.T) {
	s := newTestServer(t, 40, 20)
	parts := make([]Point, 0, 10)
	for i := 0; i < 10; i++ {
		parts = append(parts, Point{uint16(i), 5})
	}
	p := addSnake(s, 1, DirRight, 3, parts...)
	p.FastMode = true

	scores := []uint16{}
	for i := 0; i < 4; i++ {
		s.moveSnakes()
		require.NotNil(t, s.reg.Player(1), "tick %d", i)
		scores = append(scores, p.Score)
	}

	assert.Equal(t, []uint16{2, 1, 0, 0}, scores)
	assert.False(t, p.FastMode)
}

func TestFastModeMovesTwoCellsPerTick(t *testing.T) {
	s := newTestServer(t, 40, 20)
	p := addSnake(s, 1, DirRight, 10, Point{3, 5}, Point{4, 5}, Point{5, 5})
	p.FastMode = true

	s.moveSnakes()

	assert.Equal(t, Point{7, 5}, p.Head())
}

func TestFastModeBurnConservesFood(t *testing.T) {
	s := newTestServer(t, 40, 20)
	parts := make([]Point, 0, 10)
	for i := 0; i < 10; i++ {
		parts = append(parts, Point{uint16(i), 5})
	}
	p := addSnake(s, 1, DirRight, 3, parts...)
	p.FastMode = true

	before := s.world.TotalFood()
	s.moveSnakes()

	// The burned score unit re-enters the world as one food unit behind
	// the receding tail.
	assert.Equal(t, uint16(2), p.Score)
	assert.Equal(t, before+1, s.world.TotalFood())
}

func TestTailTrimTowardLength(t *testing.T) {
	s := newTestServer(t, 40, 20)
	parts := make([]Point, 0, 12)
	for i := 0; i < 12; i++ {
		parts = append(parts, Point{uint16(i), 5})
	}
	p := addSnake(s, 1, DirRight, 0, parts...)

	s.moveSnakes()

	// Length(0) = 3, so the trim drives the body down toward 6 parts;
	// the head push adds one back on top.
	assert.Equal(t, 3+Length(p.Score)+1, len(p.Parts))
	assert.Equal(t, EmptyCell, s.world.SnakeAt(0, 5))
	assert.Equal(t, EmptyCell, s.world.SnakeAt(5, 5))
	assert.Equal(t, uint16(1), s.world.SnakeAt(6, 5))
}

func TestToggleFastRequiresScore(t *testing.T) {
	s := newTestServer(t, 20, 20)
	p := addSnake(s, 1, DirRight, 0, Point{3, 5}, Point{4, 5}, Point{5, 5})

	s.handleCommand(p, []byte{OpToggleFast})
	assert.False(t, p.FastMode)

	p.Score = 1
	s.handleCommand(p, []byte{OpToggleFast})
	assert.True(t, p.FastMode)
	s.handleCommand(p, []byte{OpToggleFast})
	assert.False(t, p.FastMode)
}

func TestExitCommandRemovesPlayer(t *testing.T) {
	s := newTestServer(t, 20, 20)
	p := addSnake(s, 1, DirRight, 2, Point{3, 5}, Point{4, 5}, Point{5, 5})

	exit := s.handleCommand(p, []byte{OpExit})
	require.True(t, exit)

	before := s.world.TotalFood()
	s.killPlayer(1, false)
	assert.Nil(t, s.reg.Player(1))
	assert.Equal(t, before+2, s.world.TotalFood())
}

func TestSingleOccupancyAfterManyTicks(t *testing.T) {
	s := newTestServer(t, 20, 20)
	addSnake(s, 1, DirRight, 0, Point{3, 5}, Point{4, 5}, Point{5, 5})
	addSnake(s, 2, DirDown, 6, Point{10, 10}, Point{10, 11}, Point{10, 12})

	for i := 0; i < 30; i++ {
		s.moveSnakes()
	}

	// Whatever survived, every snake-grid cell must agree with exactly
	// one player's parts list.
	cells := make(map[Point]uint16)
	for _, id := range s.reg.IDs() {
		for _, part := range s.reg.players[id].Parts {
			_, dup := cells[part]
			require.False(t, dup, "cell %v owned twice", part)
			cells[part] = id
		}
	}
	for y := uint16(0); y < 20; y++ {
		for x := uint16(0); x < 20; x++ {
			owner, ok := cells[Point{x, y}]
			if !ok {
				owner = EmptyCell
			}
			require.Equal(t, owner, s.world.SnakeAt(x, y), "cell (%d,%d)", x, y)
			if s.world.SnakeAt(x, y) != EmptyCell {
				for _, sc := range s.world.SubCells(x, y) {
					require.Zero(t, s.world.FoodAt(sc[0], sc[1]))
				}
			}
		}
	}
}
