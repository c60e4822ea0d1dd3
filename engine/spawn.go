package engine

import (
	"math/rand"

	"github.com/pkg/errors"
)

// spawnClearance is the Chebyshev radius around every part of a candidate
// spawn corridor that must be free of other snakes.
const spawnClearance = 7

// ErrWorldFull is returned when no clear spawn corridor exists anywhere
// in the world. The acceptor relays it to the joining client.
var ErrWorldFull = errors.New("not enough space in world. try again")

// FindSpawn searches for a clear 3-cell corridor for a new snake heading
// in direction d: head, head-d, head-2d. The search starts at a random
// head cell and walks forward in raster order, wrapping, until a
// candidate passes or the whole world has been scanned.
//
// On success the corridor's food is eaten (credited as the returned
// initial score), the snake grid is stamped with id, and the parts are
// returned tail-to-head.
func FindSpawn(w *World, id uint16, d Direction, rng *rand.Rand) ([]Point, uint16, error) {
	dx, dy := d.Vector()
	total := int(w.W) * int(w.H)
	start := rng.Intn(total)

	for i := 0; i < total; i++ {
		n := (start + i) % total
		hx := uint16(n % int(w.W))
		hy := uint16(n / int(w.W))

		headX, headY := hx, hy
		midX, midY := w.Wrap(hx, hy, -dx, -dy)
		tailX, tailY := w.Wrap(hx, hy, -2*dx, -2*dy)
		parts := []Point{{tailX, tailY}, {midX, midY}, {headX, headY}}

		if !clearAround(w, parts) {
			continue
		}

		var score uint16
		for _, p := range parts {
			score += w.EatCell(p.X, p.Y)
			w.SetSnake(p.X, p.Y, id)
		}
		return parts, score, nil
	}
	return nil, 0, ErrWorldFull
}

// clearAround reports whether every cell within spawnClearance (Chebyshev)
// of every part is free of snake parts.
func clearAround(w *World, parts []Point) bool {
	for _, p := range parts {
		for dy := -spawnClearance; dy <= spawnClearance; dy++ {
			for dx := -spawnClearance; dx <= spawnClearance; dx++ {
				x, y := w.Wrap(p.X, p.Y, dx, dy)
				if w.SnakeAt(x, y) != EmptyCell {
					return false
				}
			}
		}
	}
	return true
}
