package engine

import "math/rand"

// World holds the two superimposed grids: the snake grid S (W x H cells,
// each empty or owned by exactly one snake id) and the food grid F
// (2W x 2H sub-cells, each a count in [0, 255]). Every snake cell (x, y)
// contains the four food sub-cells (2x+a, 2y+b) for a, b in {0, 1}.
//
// Invariant: a cell with a snake part on it has all four of its food
// sub-cells at zero. Eating a cell always eats all four quadrants.
type World struct {
	W, H uint16

	snakes []uint16 // y*W + x, 0 = empty
	food   []uint8  // v*2W + u

	rng *rand.Rand
}

// EmptyCell is the sentinel id for an unoccupied snake-grid cell.
const EmptyCell uint16 = 0

// NewWorld preallocates both grids and seeds the initial food:
// floor(W*H*4 / foodRate) units placed by the standard placement walk.
func NewWorld(w, h uint16, foodRate uint8, rng *rand.Rand) *World {
	world := &World{
		W:      w,
		H:      h,
		snakes: make([]uint16, int(w)*int(h)),
		food:   make([]uint8, 4*int(w)*int(h)),
		rng:    rng,
	}
	initial := int(w) * int(h) * 4 / int(foodRate)
	for i := 0; i < initial; i++ {
		world.AddFood()
	}
	return world
}

func (w *World) idxS(x, y uint16) int {
	return int(y)*int(w.W) + int(x)
}

func (w *World) idxF(u, v uint16) int {
	return int(v)*2*int(w.W) + int(u)
}

// Wrap maps a possibly-negative or overflowing coordinate pair onto the
// torus. dx and dy may be any offset with magnitude < 2*W (resp. 2*H),
// which covers every caller: movement steps are unit vectors and viewport
// offsets stay within [-24, 24].
func (w *World) Wrap(x, y uint16, dx, dy int) (uint16, uint16) {
	nx := (int(x) + dx + 2*int(w.W)) % int(w.W)
	ny := (int(y) + dy + 2*int(w.H)) % int(w.H)
	return uint16(nx), uint16(ny)
}

// SnakeAt returns the id occupying the snake cell, or EmptyCell.
func (w *World) SnakeAt(x, y uint16) uint16 {
	return w.snakes[w.idxS(x, y)]
}

// SetSnake stamps a snake id onto a cell.
func (w *World) SetSnake(x, y, id uint16) {
	w.snakes[w.idxS(x, y)] = id
}

// ClearSnake empties a snake cell.
func (w *World) ClearSnake(x, y uint16) {
	w.snakes[w.idxS(x, y)] = EmptyCell
}

// FoodAt returns the count at a food sub-cell (u, v in [0, 2W) x [0, 2H)).
func (w *World) FoodAt(u, v uint16) uint8 {
	return w.food[w.idxF(u, v)]
}

// SetFood overwrites the count at a food sub-cell.
func (w *World) SetFood(u, v uint16, amount uint8) {
	w.food[w.idxF(u, v)] = amount
}

// SubCells returns the four food sub-cells contained by snake cell (x, y),
// in the fixed (0,0), (1,0), (0,1), (1,1) quadrant order the broadcaster
// and death handler both rely on.
func (w *World) SubCells(x, y uint16) [4][2]uint16 {
	u, v := 2*x, 2*y
	return [4][2]uint16{{u, v}, {u + 1, v}, {u, v + 1}, {u + 1, v + 1}}
}

// EatCell consumes all four food sub-cells under a snake cell and returns
// their total.
func (w *World) EatCell(x, y uint16) uint16 {
	var total uint16
	for _, sc := range w.SubCells(x, y) {
		i := w.idxF(sc[0], sc[1])
		total += uint16(w.food[i])
		w.food[i] = 0
	}
	return total
}

// AddFood drops one food unit at a uniformly random sub-cell, walking
// forward in raster order past sub-cells that sit under a snake part or
// already hold 255. Terminates whenever the world is not fully saturated.
func (w *World) AddFood() {
	u := uint16(w.rng.Intn(2 * int(w.W)))
	v := uint16(w.rng.Intn(2 * int(w.H)))
	w.DropFoodAt(u, v)
}

// DropFoodAt adds one food unit at (u, v), or at the next valid sub-cell
// in raster order if (u, v) is under a snake part or holds 255 already.
func (w *World) DropFoodAt(u, v uint16) {
	for {
		if w.SnakeAt(u/2, v/2) == EmptyCell && w.food[w.idxF(u, v)] < 255 {
			w.food[w.idxF(u, v)]++
			return
		}
		u++
		if u >= 2*w.W {
			u = 0
			v++
			if v >= 2*w.H {
				v = 0
			}
		}
	}
}

// TotalFood sums every food sub-cell. Used in conservation checks.
func (w *World) TotalFood() int {
	total := 0
	for _, c := range w.food {
		total += int(c)
	}
	return total
}
