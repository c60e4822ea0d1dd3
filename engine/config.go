package engine

import "github.com/pkg/errors"

// Config holds the startup parameters the core receives before the first
// tick. Command-line parsing is deliberately not part of this package —
// cmd/server assembles a Config literal and hands it to NewServer.
type Config struct {
	// MaxPlayers caps simultaneous connected players. Must be >= 1.
	MaxPlayers uint16
	// GameSpeed is the tick rate in Hz. Must be >= 1.
	GameSpeed uint8
	// Port is the TCP port to listen on.
	Port uint16
	// WorldWidth and WorldHeight are the snake-grid dimensions. Both must
	// be >= MinWorldSize.
	WorldWidth  uint16
	WorldHeight uint16
	// FoodRate controls initial food density: floor(W*H*4 / FoodRate).
	// Must be >= 1.
	FoodRate uint8
	// BotCount is the number of reference bot clients the server process
	// dials against itself after it starts listening.
	BotCount uint16
	// IPCooldownSec is the minimum spacing, in seconds, between accepted
	// connections from the same source IP. 0 disables the limiter.
	IPCooldownSec int
}

// DefaultConfig returns the stock settings. cmd/server runs with them
// unchanged; tests override individual fields.
func DefaultConfig() Config {
	return Config{
		MaxPlayers:    50,
		GameSpeed:     10,
		Port:          4000,
		WorldWidth:    200,
		WorldHeight:   200,
		FoodRate:      10,
		BotCount:      8,
		IPCooldownSec: 5,
	}
}

// MinWorldSize is the smallest W or H the world store accepts.
const MinWorldSize = 20

// Validate checks the startup configuration, returning an error naming
// the first violation.
func (c Config) Validate() error {
	if c.MaxPlayers < 1 {
		return errors.New("max_players must be >= 1")
	}
	if c.GameSpeed < 1 {
		return errors.New("game_speed must be >= 1")
	}
	if c.WorldWidth < MinWorldSize || c.WorldHeight < MinWorldSize {
		return errors.Errorf("world size must be >= %d x %d", MinWorldSize, MinWorldSize)
	}
	if c.FoodRate < 1 {
		return errors.New("food_rate must be >= 1")
	}
	return nil
}
