package main

import (
	"fmt"
	"log"
	"math/rand"
	"os"
	"time"

	"serpent-arena/bot"
	"serpent-arena/engine"
)

func main() {
	cfg := engine.DefaultConfig()

	srv, err := engine.NewServer(cfg)
	if err != nil {
		log.Printf("%v", err)
		os.Exit(1)
	}
	if err := srv.Listen(); err != nil {
		log.Printf("%v", err)
		os.Exit(1)
	}
	log.Printf("listening on port %d (world %dx%d)", cfg.Port, cfg.WorldWidth, cfg.WorldHeight)

	go srv.AcceptLoop()

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Port)
	for i := uint16(0); i < cfg.BotCount; i++ {
		seed := time.Now().UnixNano() + int64(i)
		go func() {
			rng := rand.New(rand.NewSource(seed))
			for {
				bot.Run(addr, bot.PickName(rng))
				// Dead or disconnected; give the world a moment before
				// rejoining so bots don't hammer the acceptor.
				time.Sleep(5 * time.Second)
			}
		}()
	}

	srv.Run()
}
