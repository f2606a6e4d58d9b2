package service

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/freeeve/machiavelli/internal/repository"
	redisrepo "github.com/freeeve/machiavelli/internal/repository/redis"
)

const defaultPollInterval = time.Minute

// turnResolver is the part of TurnService the scheduler drives.
type turnResolver interface {
	ResolveTurn(ctx context.Context, gameID string) error
}

// TimerListener listens for Redis keyspace notifications on expired timer keys
// and resolves the game whose deadline passed. A polling fallback catches
// deadlines missed while keyspace notifications were unavailable.
type TimerListener struct {
	rdb      *redis.Client
	turns    turnResolver
	store    repository.GameStore
	interval time.Duration
	now      func() time.Time
}

// NewTimerListener creates a TimerListener. A nil rdb runs the poller only.
func NewTimerListener(rdb *redis.Client, turns turnResolver, store repository.GameStore, interval time.Duration) *TimerListener {
	if interval <= 0 {
		interval = defaultPollInterval
	}
	return &TimerListener{rdb: rdb, turns: turns, store: store, interval: interval, now: time.Now}
}

// Start begins listening for expired key events and runs the polling
// fallback. It blocks until ctx is done.
func (t *TimerListener) Start(ctx context.Context) {
	if t.rdb != nil {
		go t.listenKeyspace(ctx)
	}
	t.pollDueGames(ctx)
}

// listenKeyspace subscribes to Redis keyspace notifications for expired keys.
func (t *TimerListener) listenKeyspace(ctx context.Context) {
	pubsub := t.rdb.PSubscribe(ctx, "__keyevent@*__:expired")
	defer pubsub.Close()

	log.Info().Msg("Timer listener started, listening for expired keys")
	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			t.handleExpiry(ctx, msg.Payload)
		}
	}
}

// pollDueGames periodically checks for games past their deadline.
func (t *TimerListener) pollDueGames(ctx context.Context) {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	log.Info().Dur("interval", t.interval).Msg("Deadline poller started")
	t.checkDueGames(ctx)
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Deadline poller stopped")
			return
		case <-ticker.C:
			t.checkDueGames(ctx)
		}
	}
}

// checkDueGames resolves every game whose deadline has passed. One failing
// game never stops the others.
func (t *TimerListener) checkDueGames(ctx context.Context) {
	due, err := t.store.ListDueGames(ctx, t.now())
	if err != nil {
		log.Error().Err(err).Msg("Failed to list due games")
		return
	}
	if len(due) > 0 {
		log.Info().Int("count", len(due)).Msg("Poller found due games")
	}
	for _, g := range due {
		log.Info().Str("gameId", g.ID).Str("phase", string(g.Phase)).
			Time("deadline", g.Deadline).Msg("Poller resolving due game")
		t.resolve(ctx, g.ID, "poller")
	}
}

// handleExpiry processes an expired key. Only acts on game timer keys.
func (t *TimerListener) handleExpiry(ctx context.Context, key string) {
	gameID, ok := redisrepo.GameIDFromTimerKey(key)
	if !ok {
		return
	}
	log.Info().Str("gameId", gameID).Msg("Timer expired, triggering turn resolution")
	t.resolve(ctx, gameID, "timer")
}

func (t *TimerListener) resolve(ctx context.Context, gameID, source string) {
	err := t.turns.ResolveTurn(ctx, gameID)
	switch {
	case err == nil:
	case errors.Is(err, repository.ErrLeaseHeld):
		log.Debug().Str("gameId", gameID).Str("source", source).Msg("Another worker is resolving this game")
	case errors.Is(err, repository.ErrVersionConflict):
		log.Warn().Err(err).Str("gameId", gameID).Str("source", source).Msg("Turn commit conflicted, will retry on next tick")
	default:
		log.Error().Err(err).Str("gameId", gameID).Str("source", source).Msg("Turn resolution failed")
	}
}
