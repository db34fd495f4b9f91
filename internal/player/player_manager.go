package player

import (
	"context"
	"errors"
	"sync"

	"github.com/disgoorg/snowflake/v2"
)

// Factory builds the player for a guild the first time it is seen.
type Factory func(ctx context.Context, guildID snowflake.ID) *Player

type PlayerManager struct {
	ctx     context.Context
	factory Factory

	mu      sync.Mutex
	Players map[snowflake.ID]*Player
}

func NewPlayerManager(ctx context.Context, factory Factory) *PlayerManager {
	return &PlayerManager{
		ctx:     ctx,
		factory: factory,
		Players: make(map[snowflake.ID]*Player),
	}
}

// Get returns the guild's player, creating it on first use. Concurrent
// callers for the same guild always observe the same instance.
func (pm *PlayerManager) Get(guildID snowflake.ID) *Player {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	if p, ok := pm.Players[guildID]; ok {
		return p
	}
	p := pm.factory(pm.ctx, guildID)
	pm.Players[guildID] = p
	return p
}

func (pm *PlayerManager) Peek(guildID snowflake.ID) *Player {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	return pm.Players[guildID]
}

// Active counts players currently holding a voice connection.
func (pm *PlayerManager) Active() int {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	n := 0
	for _, p := range pm.Players {
		if p.Connected() {
			n++
		}
	}
	return n
}

// Shutdown closes every player and waits for their loops to exit.
func (pm *PlayerManager) Shutdown(ctx context.Context) error {
	pm.mu.Lock()
	players := make([]*Player, 0, len(pm.Players))
	for _, p := range pm.Players {
		players = append(players, p)
	}
	pm.mu.Unlock()

	var (
		wg   sync.WaitGroup
		emu  sync.Mutex
		errs []error
	)
	for _, p := range players {
		wg.Add(1)
		go func(p *Player) {
			defer wg.Done()
			if err := p.Close(ctx); err != nil {
				emu.Lock()
				errs = append(errs, err)
				emu.Unlock()
			}
		}(p)
	}
	wg.Wait()
	return errors.Join(errs...)
}
