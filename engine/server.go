package engine

import (
	"fmt"
	"math/rand"
	"net"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// Server owns the authoritative game state: the world, the player
// registry, and the listening socket. The tick engine (Run) is the single
// steady-state writer; the acceptor's handshake path takes the same lock
// for its short critical sections.
type Server struct {
	cfg Config

	mu    sync.Mutex
	world *World
	reg   *Registry
	rng   *rand.Rand

	listener net.Listener
	limiter  *ipLimiter
}

// NewServer validates the configuration and builds the world and registry.
// The simulation's random generator is owned by the tick engine; the
// acceptor path borrows it only under the lock.
func NewServer(cfg Config) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid config")
	}
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	return &Server{
		cfg:     cfg,
		world:   NewWorld(cfg.WorldWidth, cfg.WorldHeight, cfg.FoodRate, rng),
		reg:     NewRegistry(),
		rng:     rng,
		limiter: newIPLimiter(cfg.IPCooldownSec),
	}, nil
}

// Listen binds the TCP port. Returns a wrapped error if the port is
// taken; main exits non-zero on that.
func (s *Server) Listen() error {
	l, err := net.Listen("tcp", fmt.Sprintf(":%d", s.cfg.Port))
	if err != nil {
		return errors.Wrapf(err, "can't bind to port %d", s.cfg.Port)
	}
	s.listener = l
	return nil
}

// Addr returns the bound listener address. Valid after Listen.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}
